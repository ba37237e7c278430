package attr

// Entry is one named attribute of a Map.
type Entry struct {
	Name  string
	Value Value
}

// Map is the ordered attribute bag owned by a single sub-process.
// The zero value is an empty map ready to use.
type Map struct {
	entries []Entry
}

// NewMap builds a map from entries; later duplicates replace earlier ones.
func NewMap(entries ...Entry) Map {
	var m Map
	for _, e := range entries {
		m.Set(e.Name, e.Value)
	}
	return m
}

func (m Map) Len() int { return len(m.entries) }

func (m Map) Keys() []string {
	keys := make([]string, 0, len(m.entries))
	for _, e := range m.entries {
		keys = append(keys, e.Name)
	}
	return keys
}

// Entries returns a copy of the entries in order.
func (m Map) Entries() []Entry {
	out := make([]Entry, len(m.entries))
	copy(out, m.entries)
	return out
}

func (m Map) Get(name string) (Value, bool) {
	if i := m.index(name); i >= 0 {
		return m.entries[i].Value, true
	}
	return Value{}, false
}

func (m Map) Has(name string) bool { return m.index(name) >= 0 }

// Set replaces the value of an existing name in place or appends it.
func (m *Map) Set(name string, v Value) {
	if i := m.index(name); i >= 0 {
		m.entries[i].Value = v
		return
	}
	m.entries = append(m.entries, Entry{Name: name, Value: v})
}

// Delete removes name and reports whether it was present.
func (m *Map) Delete(name string) bool {
	i := m.index(name)
	if i < 0 {
		return false
	}
	m.entries = append(m.entries[:i:i], m.entries[i+1:]...)
	return true
}

// Replace swaps the entry stored under oldName for newName/v, keeping its
// position. Any other entry already named newName is dropped.
func (m *Map) Replace(oldName, newName string, v Value) {
	i := m.index(oldName)
	if i < 0 {
		m.Set(newName, v)
		return
	}
	if oldName != newName {
		if j := m.index(newName); j >= 0 {
			m.entries = append(m.entries[:j:j], m.entries[j+1:]...)
			if j < i {
				i--
			}
		}
	}
	m.entries[i] = Entry{Name: newName, Value: v}
}

func (m Map) Clone() Map {
	out := Map{entries: make([]Entry, len(m.entries))}
	for i, e := range m.entries {
		out.entries[i] = Entry{Name: e.Name, Value: e.Value.Clone()}
	}
	return out
}

func (m Map) index(name string) int {
	for i, e := range m.entries {
		if e.Name == name {
			return i
		}
	}
	return -1
}
