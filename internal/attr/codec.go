package attr

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
)

// Wire format: a top-level value is {"type":"<kind>","value":<payload>}.
// Payloads of nested object fields and array elements are bare JSON, except
// richtext, which keeps its wrapper so it does not decode back as a string.

func (v Value) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	if err := writeTagged(&buf, v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (v *Value) UnmarshalJSON(data []byte) error {
	out, err := Decode(data)
	if err != nil {
		return err
	}
	*v = out
	return nil
}

func (m Map) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, e := range m.entries {
		if i > 0 {
			buf.WriteByte(',')
		}
		writeString(&buf, e.Name)
		buf.WriteByte(':')
		if err := writeTagged(&buf, e.Value); err != nil {
			return nil, err
		}
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func (m *Map) UnmarshalJSON(data []byte) error {
	out, err := DecodeMap(data)
	if err != nil {
		return err
	}
	*m = out
	return nil
}

type bareValue struct{ v Value }

func (b bareValue) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	if err := writeBare(&buf, b.v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// bare wraps v so it marshals as its untagged payload.
func bare(v Value) json.Marshaler { return bareValue{v} }

func writeTagged(buf *bytes.Buffer, v Value) error {
	kind := v.Kind
	if kind == "" {
		kind = KindString
	}
	buf.WriteString(`{"type":`)
	writeString(buf, string(kind))
	buf.WriteString(`,"value":`)
	if err := writeBare(buf, v); err != nil {
		return err
	}
	buf.WriteByte('}')
	return nil
}

func writeNested(buf *bytes.Buffer, v Value) error {
	if v.Kind == KindRichText || looksTagged(v) {
		return writeTagged(buf, v)
	}
	return writeBare(buf, v)
}

// looksTagged reports whether v written bare would read back as a
// {"type","value"} wrapper.
func looksTagged(v Value) bool {
	if v.Kind != KindObject || len(v.Fields) != 2 {
		return false
	}
	t, ok := v.Get("type")
	if !ok || t.Kind != KindString || !Kind(t.Text).Valid() {
		return false
	}
	_, ok = v.Get("value")
	return ok
}

func writeBare(buf *bytes.Buffer, v Value) error {
	switch v.Kind {
	case KindNumber:
		b, err := json.Marshal(v.Number)
		if err != nil {
			return fmt.Errorf("encode number: %w", err)
		}
		buf.Write(b)
	case KindBoolean:
		buf.WriteString(FormatBool(v.Bool))
	case KindArray:
		buf.WriteByte('[')
		for i, it := range v.Items {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := writeNested(buf, it); err != nil {
				return err
			}
		}
		buf.WriteByte(']')
	case KindObject:
		buf.WriteByte('{')
		for i, f := range v.Fields {
			if i > 0 {
				buf.WriteByte(',')
			}
			writeString(buf, f.Key)
			buf.WriteByte(':')
			if err := writeNested(buf, f.Value); err != nil {
				return err
			}
		}
		buf.WriteByte('}')
	default:
		writeString(buf, v.Text)
	}
	return nil
}

func writeString(buf *bytes.Buffer, s string) {
	b, _ := json.Marshal(s)
	buf.Write(b)
}

// Decode reads one attribute value. Tagged values are taken at their word;
// legacy untagged shapes are inferred: JSON number -> number, JSON bool ->
// boolean, array -> array, object -> object, anything else -> string.
func Decode(data []byte) (Value, error) {
	n, err := parseJSON(data)
	if err != nil {
		return Value{}, err
	}
	return fromNode(n), nil
}

// DecodeMap reads an attribute map, keeping key order. Each entry goes
// through the same rules as Decode.
func DecodeMap(data []byte) (Map, error) {
	var m Map
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return m, nil
	}
	n, err := parseJSON(trimmed)
	if err != nil {
		return m, err
	}
	if n.kind != nodeObject {
		return m, errors.New("attributes must be a JSON object")
	}
	for i, key := range n.keys {
		m.Set(key, fromNode(n.vals[i]))
	}
	return m, nil
}

type nodeKind int

const (
	nodeNull nodeKind = iota
	nodeString
	nodeNumber
	nodeBool
	nodeArray
	nodeObject
)

// node is a JSON value that remembers object key order.
type node struct {
	kind  nodeKind
	str   string
	num   json.Number
	b     bool
	items []*node
	keys  []string
	vals  []*node
}

func (n *node) get(key string) (*node, bool) {
	for i, k := range n.keys {
		if k == key {
			return n.vals[i], true
		}
	}
	return nil, false
}

func parseJSON(data []byte) (*node, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	n, err := readNode(dec)
	if err != nil {
		return nil, fmt.Errorf("decode attribute: %w", err)
	}
	if _, err := dec.Token(); err != io.EOF {
		return nil, errors.New("decode attribute: trailing data")
	}
	return n, nil
}

func readNode(dec *json.Decoder) (*node, error) {
	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}
	switch t := tok.(type) {
	case json.Delim:
		switch t {
		case '{':
			n := &node{kind: nodeObject}
			for dec.More() {
				kt, err := dec.Token()
				if err != nil {
					return nil, err
				}
				key, ok := kt.(string)
				if !ok {
					return nil, fmt.Errorf("unexpected object key %v", kt)
				}
				child, err := readNode(dec)
				if err != nil {
					return nil, err
				}
				if existing, ok := indexOf(n.keys, key); ok {
					n.vals[existing] = child
					continue
				}
				n.keys = append(n.keys, key)
				n.vals = append(n.vals, child)
			}
			if _, err := dec.Token(); err != nil {
				return nil, err
			}
			return n, nil
		case '[':
			n := &node{kind: nodeArray}
			for dec.More() {
				child, err := readNode(dec)
				if err != nil {
					return nil, err
				}
				n.items = append(n.items, child)
			}
			if _, err := dec.Token(); err != nil {
				return nil, err
			}
			return n, nil
		}
		return nil, fmt.Errorf("unexpected delimiter %v", t)
	case string:
		return &node{kind: nodeString, str: t}, nil
	case json.Number:
		return &node{kind: nodeNumber, num: t}, nil
	case bool:
		return &node{kind: nodeBool, b: t}, nil
	case nil:
		return &node{kind: nodeNull}, nil
	}
	return nil, fmt.Errorf("unexpected token %v", tok)
}

func indexOf(keys []string, key string) (int, bool) {
	for i, k := range keys {
		if k == key {
			return i, true
		}
	}
	return 0, false
}

// tagOf recognizes the {"type","value"} wrapper.
func tagOf(n *node) (Kind, *node, bool) {
	if n.kind != nodeObject || len(n.keys) != 2 {
		return "", nil, false
	}
	t, ok := n.get("type")
	if !ok || t.kind != nodeString {
		return "", nil, false
	}
	payload, ok := n.get("value")
	if !ok {
		return "", nil, false
	}
	kind := Kind(t.str)
	if !kind.Valid() {
		return "", nil, false
	}
	return kind, payload, true
}

func fromNode(n *node) Value {
	if kind, payload, ok := tagOf(n); ok {
		return coerce(kind, payload)
	}
	return infer(n)
}

func infer(n *node) Value {
	switch n.kind {
	case nodeNumber:
		f, err := n.num.Float64()
		if err != nil {
			return String(n.num.String())
		}
		return Number(f)
	case nodeBool:
		return Bool(n.b)
	case nodeArray:
		v := Array()
		v.Items = make([]Value, 0, len(n.items))
		for _, it := range n.items {
			v.Items = append(v.Items, fromNode(it))
		}
		return v
	case nodeObject:
		v := Object()
		v.Fields = make([]Field, 0, len(n.keys))
		for i, k := range n.keys {
			v.Fields = append(v.Fields, Field{Key: k, Value: fromNode(n.vals[i])})
		}
		return v
	case nodeString:
		return String(n.str)
	default:
		return String("")
	}
}

// coerce reads a tagged payload. A payload that does not fit its declared
// kind falls back to the inferred value.
func coerce(kind Kind, n *node) Value {
	switch kind {
	case KindString, KindRichText:
		var text string
		switch n.kind {
		case nodeString:
			text = n.str
		case nodeNull:
		default:
			text = itemText(infer(n))
		}
		return Value{Kind: kind, Text: text}
	case KindNumber:
		switch n.kind {
		case nodeNumber:
			return infer(n)
		case nodeString:
			if f, err := parseNumber(n.str); err == nil {
				return Number(f)
			}
		}
	case KindBoolean:
		switch n.kind {
		case nodeBool:
			return Bool(n.b)
		case nodeString:
			if b, err := parseBool(n.str); err == nil {
				return Bool(b)
			}
		}
	case KindArray:
		switch n.kind {
		case nodeArray:
			return infer(n)
		case nodeString:
			return Strings(SplitList(n.str)...)
		}
	case KindObject:
		if n.kind == nodeObject {
			return infer(n)
		}
	}
	return infer(n)
}

// KeySet extracts only the attribute names of an encoded map, without
// decoding the values.
func KeySet(data []byte) ([]string, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil, nil
	}
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(trimmed, &raw); err != nil {
		return nil, fmt.Errorf("decode attribute keys: %w", err)
	}
	keys := make([]string, 0, len(raw))
	for k := range raw {
		if strings.TrimSpace(k) != "" {
			keys = append(keys, k)
		}
	}
	return keys, nil
}
