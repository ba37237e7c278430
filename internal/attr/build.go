package attr

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
)

// maxObjectDepth is the number of object levels the editor can build.
const maxObjectDepth = 2

// Row is one editor row: raw form input for a single object field.
type Row struct {
	Key    string `json:"key"`
	Kind   Kind   `json:"type"`
	Value  string `json:"value,omitempty"`
	Fields []Row  `json:"fields,omitempty"`
}

// Build turns raw editor input into a validated value. raw is used for
// scalar and array kinds, rows for objects.
func Build(kind Kind, raw string, rows []Row) (Value, error) {
	return build("", kind, raw, rows, 0)
}

func build(key string, kind Kind, raw string, rows []Row, depth int) (Value, error) {
	switch kind {
	case KindString:
		return String(raw), nil
	case KindRichText:
		return RichText(raw), nil
	case KindNumber:
		f, err := parseNumber(raw)
		if err != nil {
			return Value{}, &FieldError{Key: key, Err: err}
		}
		return Number(f), nil
	case KindBoolean:
		b, err := parseBool(raw)
		if err != nil {
			return Value{}, &FieldError{Key: key, Err: err}
		}
		return Bool(b), nil
	case KindArray:
		return Strings(SplitList(raw)...), nil
	case KindObject:
		if depth >= maxObjectDepth {
			return Value{}, &FieldError{Key: key, Err: ErrNestingTooDeep}
		}
		obj := Object()
		for _, row := range rows {
			k := strings.TrimSpace(row.Key)
			if k == "" {
				continue
			}
			rowKind := row.Kind
			if rowKind == "" {
				rowKind = KindString
			}
			if !rowKind.Valid() {
				return Value{}, &FieldError{Key: k, Err: ErrInvalidKind}
			}
			child, err := build(k, rowKind, row.Value, row.Fields, depth+1)
			if err != nil {
				return Value{}, err
			}
			// duplicate keys: last write wins
			obj.setField(k, child)
		}
		return obj, nil
	default:
		return Value{}, &FieldError{Key: key, Err: ErrInvalidKind}
	}
}

func parseNumber(raw string) (float64, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return 0, ErrInvalidNumber
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, ErrInvalidNumber
	}
	return f, nil
}

func parseBool(raw string) (bool, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return false, nil
	}
	b, err := strconv.ParseBool(s)
	if err != nil {
		return false, ErrInvalidBoolean
	}
	return b, nil
}

// SplitList splits comma separated input, trimming elements and dropping
// empty ones. Commas cannot appear inside an element.
func SplitList(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Decompose is the inverse of Build: it returns the kind, raw text and
// rows an editor needs to present v for editing.
func Decompose(v Value) (Kind, string, []Row) {
	switch v.Kind {
	case KindObject:
		rows := make([]Row, 0, len(v.Fields))
		for _, f := range v.Fields {
			kind, raw, sub := Decompose(f.Value)
			rows = append(rows, Row{Key: f.Key, Kind: kind, Value: raw, Fields: sub})
		}
		return KindObject, "", rows
	case KindArray:
		parts := make([]string, 0, len(v.Items))
		for _, it := range v.Items {
			parts = append(parts, itemText(it))
		}
		return KindArray, strings.Join(parts, ", "), nil
	case KindNumber:
		return KindNumber, FormatNumber(v.Number), nil
	case KindBoolean:
		return KindBoolean, FormatBool(v.Bool), nil
	case KindRichText:
		return KindRichText, v.Text, nil
	default:
		return KindString, v.Text, nil
	}
}

func itemText(v Value) string {
	switch v.Kind {
	case KindNumber:
		return FormatNumber(v.Number)
	case KindBoolean:
		return FormatBool(v.Bool)
	case KindObject, KindArray:
		b, _ := json.Marshal(bare(v))
		return string(b)
	default:
		return v.Text
	}
}
