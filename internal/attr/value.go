// Package attr models the typed attribute values carried by sub-processes.
//
// A Value is an explicit tagged variant. Untyped legacy data only enters the
// package through Decode and DecodeMap, which infer a kind from the shape of
// the JSON and return tagged values.
package attr

import (
	"fmt"
	"strconv"
	"strings"
)

type Kind string

const (
	KindString   Kind = "string"
	KindNumber   Kind = "number"
	KindBoolean  Kind = "boolean"
	KindObject   Kind = "object"
	KindArray    Kind = "array"
	KindRichText Kind = "richtext"
)

// Kinds lists every supported kind in presentation order.
var Kinds = []Kind{KindString, KindNumber, KindBoolean, KindObject, KindArray, KindRichText}

// ParseKind validates a raw type tag.
func ParseKind(s string) (Kind, error) {
	k := Kind(strings.ToLower(strings.TrimSpace(s)))
	if !k.Valid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidKind, s)
	}
	return k, nil
}

func (k Kind) Valid() bool {
	switch k {
	case KindString, KindNumber, KindBoolean, KindObject, KindArray, KindRichText:
		return true
	}
	return false
}

// Scalar reports whether the kind carries a single text, number or flag.
func (k Kind) Scalar() bool {
	return k != KindObject && k != KindArray
}

// Value is one typed attribute value. Only the payload matching Kind is set.
type Value struct {
	Kind   Kind
	Text   string
	Number float64
	Bool   bool
	Items  []Value
	Fields []Field
}

// Field is one named entry of an object value. Field order is preserved.
type Field struct {
	Key   string
	Value Value
}

func String(s string) Value   { return Value{Kind: KindString, Text: s} }
func RichText(s string) Value { return Value{Kind: KindRichText, Text: s} }
func Number(f float64) Value  { return Value{Kind: KindNumber, Number: f} }
func Bool(b bool) Value       { return Value{Kind: KindBoolean, Bool: b} }

func Array(items ...Value) Value  { return Value{Kind: KindArray, Items: items} }
func Object(fields ...Field) Value { return Value{Kind: KindObject, Fields: fields} }

// Strings builds an array of string elements.
func Strings(items ...string) Value {
	v := Value{Kind: KindArray, Items: make([]Value, 0, len(items))}
	for _, s := range items {
		v.Items = append(v.Items, String(s))
	}
	return v
}

// Get returns the named field of an object value.
func (v Value) Get(key string) (Value, bool) {
	for _, f := range v.Fields {
		if f.Key == key {
			return f.Value, true
		}
	}
	return Value{}, false
}

// HasObjects reports whether an array value contains object elements.
func (v Value) HasObjects() bool {
	for _, it := range v.Items {
		if it.Kind == KindObject {
			return true
		}
	}
	return false
}

// Clone returns a deep copy.
func (v Value) Clone() Value {
	out := v
	if v.Items != nil {
		out.Items = make([]Value, len(v.Items))
		for i, it := range v.Items {
			out.Items[i] = it.Clone()
		}
	}
	if v.Fields != nil {
		out.Fields = make([]Field, len(v.Fields))
		for i, f := range v.Fields {
			out.Fields[i] = Field{Key: f.Key, Value: f.Value.Clone()}
		}
	}
	return out
}

// setField replaces an existing key in place or appends a new one.
func (v *Value) setField(key string, val Value) {
	for i := range v.Fields {
		if v.Fields[i].Key == key {
			v.Fields[i].Value = val
			return
		}
	}
	v.Fields = append(v.Fields, Field{Key: key, Value: val})
}

// FormatNumber renders a number in its shortest exact decimal form.
func FormatNumber(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

// FormatBool renders a flag the way the editor's boolean input expects it.
func FormatBool(b bool) string {
	if b {
		return "true"
	}
	return "false"
}
