package constraints

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"constraintkit/internal/logic"
)

func TestParseLink(t *testing.T) {
	tests := []struct {
		name string
		term logic.Term
		want *string
	}{
		{"nil token", logic.Nil, nil},
		{"string", logic.Str("^1.0.0"), strPtr("^1.0.0")},
		{"atom", logic.Atom("dependencies"), strPtr("dependencies")},
		{"integer", logic.Int(42), strPtr("42")},
		{"float", logic.Float(1.5), strPtr("1.5")},
		{"sequence", logic.List(logic.Int(1), logic.Str("a")), strPtr(`[1,"a"]`)},
		{"nested sequence", logic.List(logic.List(), logic.List(logic.Int(2))), strPtr(`[[],[2]]`)},
		{"other compound", logic.NewCompound("f", logic.Int(1)), strPtr("f(1)")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseLink(tt.term))
		})
	}
}

func TestParseLinkToJSON(t *testing.T) {
	tests := []struct {
		name string
		term logic.Term
		want *string
	}{
		{"nil token", logic.Nil, nil},
		{"json array text", logic.Str("[1,2]"), strPtr("[1,2]")},
		{"json object text", logic.Str(`{"b": 1, "a": "x"}`), strPtr(`{"a":"x","b":1}`)},
		{"json literal text", logic.Str("true"), strPtr("true")},
		{"plain text", logic.Str("hello"), strPtr(`"hello"`)},
		{"json string text", logic.Str(`"MIT"`), strPtr(`"MIT"`)},
		{"number", logic.Int(3), strPtr("3")},
		{"sequence", logic.List(logic.Str("a"), logic.Str("b")), strPtr(`["a","b"]`)},
		{"html is not escaped", logic.Str("<a&b>"), strPtr(`"<a&b>"`)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseLinkToJSON(tt.term))
		})
	}
}

func TestCanonicalJSON(t *testing.T) {
	got, err := CanonicalJSON(`{ "z": [1, 2.50], "a": {"y": null, "x": false} }`)
	require.NoError(t, err)
	assert.Equal(t, `{"a":{"x":false,"y":null},"z":[1,2.50]}`, got)

	_, err = CanonicalJSON(`{"a": 1} {"b": 2}`)
	assert.Error(t, err)

	_, err = CanonicalJSON(`not json`)
	assert.Error(t, err)
}
