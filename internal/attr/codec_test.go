package attr

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMarshalTaggedShape(t *testing.T) {
	data, err := json.Marshal(Strings("RO", "Nurse"))
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"array","value":["RO","Nurse"]}`, string(data))

	data, err = json.Marshal(Object(Field{Key: "priority", Value: Number(3)}))
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"object","value":{"priority":3}}`, string(data))
}

func TestMarshalNestedRichTextKeepsTag(t *testing.T) {
	v := Object(Field{Key: "notes", Value: RichText("**b**")}, Field{Key: "plain", Value: String("s")})
	data, err := json.Marshal(v)
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"object","value":{"notes":{"type":"richtext","value":"**b**"},"plain":"s"}}`, string(data))

	back, err := Decode(data)
	require.NoError(t, err)
	assert.Equal(t, v, back)
}

func TestNestedObjectShapedLikeWrapperRoundTrips(t *testing.T) {
	v, err := Build(KindObject, "", []Row{{
		Key:  "meta",
		Kind: KindObject,
		Fields: []Row{
			{Key: "type", Kind: KindString, Value: "number"},
			{Key: "value", Kind: KindString, Value: "3"},
		},
	}})
	require.NoError(t, err)

	data, err := json.Marshal(v)
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"object","value":{"meta":{"type":"object","value":{"type":"number","value":"3"}}}}`, string(data))

	back, err := Decode(data)
	require.NoError(t, err)
	assert.Equal(t, v, back)
	meta, ok := back.Get("meta")
	require.True(t, ok)
	assert.Equal(t, KindObject, meta.Kind)

	// a type field that names no kind is not mistaken for a wrapper
	plain := Object(Field{Key: "meta", Value: Object(
		Field{Key: "type", Value: String("referral")},
		Field{Key: "value", Value: String("3")},
	)})
	data, err = json.Marshal(plain)
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"object","value":{"meta":{"type":"referral","value":"3"}}}`, string(data))
}

func TestDecodeLegacyShapes(t *testing.T) {
	cases := map[string]Value{
		`"Initial consultation"`: String("Initial consultation"),
		`["RO"]`:                 Strings("RO"),
		`7`:                      Number(7),
		`true`:                   Bool(true),
		`null`:                   String(""),
		`{"a":1,"b":["x"]}`: Object(
			Field{Key: "a", Value: Number(1)},
			Field{Key: "b", Value: Strings("x")},
		),
	}
	for in, want := range cases {
		got, err := Decode([]byte(in))
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
}

func TestDecodeTaggedCoercion(t *testing.T) {
	got, err := Decode([]byte(`{"type":"number","value":"2.5"}`))
	require.NoError(t, err)
	assert.Equal(t, Number(2.5), got)

	got, err = Decode([]byte(`{"type":"array","value":"a, b"}`))
	require.NoError(t, err)
	assert.Equal(t, Strings("a", "b"), got)

	got, err = Decode([]byte(`{"type":"number","value":"lots"}`))
	require.NoError(t, err)
	assert.Equal(t, String("lots"), got)
}

func TestDecodeMapKeepsOrder(t *testing.T) {
	m, err := DecodeMap([]byte(`{"role":["RO"],"output":{"type":"array","value":["eBAF"]},"description":"Initial"}`))
	require.NoError(t, err)
	assert.Equal(t, []string{"role", "output", "description"}, m.Keys())

	data, err := json.Marshal(m)
	require.NoError(t, err)
	assert.Equal(t,
		`{"role":{"type":"array","value":["RO"]},"output":{"type":"array","value":["eBAF"]},"description":{"type":"string","value":"Initial"}}`,
		string(data))
}

func TestDecodeMapRejectsNonObject(t *testing.T) {
	_, err := DecodeMap([]byte(`["a"]`))
	assert.Error(t, err)
	_, err = DecodeMap([]byte(`{"a":`))
	assert.Error(t, err)
}

func TestKeySet(t *testing.T) {
	keys, err := KeySet([]byte(`{"role":{"type":"array","value":["RO"]},"system":"ARIA"}`))
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"role", "system"}, keys)
}

func TestMapReplaceKeepsPosition(t *testing.T) {
	m := NewMap(Entry{"a", String("1")}, Entry{"b", String("2")}, Entry{"c", String("3")})
	m.Replace("b", "B", String("x"))
	assert.Equal(t, []string{"a", "B", "c"}, m.Keys())
	assert.True(t, m.Delete("a"))
	assert.False(t, m.Delete("a"))
	assert.Equal(t, []string{"B", "c"}, m.Keys())
}
