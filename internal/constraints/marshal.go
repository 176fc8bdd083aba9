package constraints

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"strconv"

	"constraintkit/internal/logic"
)

// materialize converts a bound term into a plain Go value. Sequences become
// slices; any other compound is kept as its source text.
func materialize(t logic.Term) any {
	switch v := t.(type) {
	case logic.Str:
		return string(v)
	case logic.Atom:
		return string(v)
	case logic.Int:
		return int64(v)
	case logic.Float:
		return float64(v)
	case logic.Compound:
		if v.Indicator() != "./2" {
			return v.String()
		}
		var items []any
		var cur logic.Term = v
		for {
			cell, ok := cur.(logic.Compound)
			if !ok || cell.Indicator() != "./2" {
				break
			}
			items = append(items, materialize(cell.Args[0]))
			cur = cell.Args[1]
		}
		return items
	default:
		if logic.IsNil(t) {
			return []any{}
		}
		return t.String()
	}
}

// ParseLink converts a bound term into its string form. The Nil token maps
// to nil; sequences are rendered as canonical JSON.
func ParseLink(t logic.Term) *string {
	if t == nil || logic.IsNil(t) {
		return nil
	}
	var s string
	switch v := materialize(t).(type) {
	case string:
		s = v
	case int64:
		s = strconv.FormatInt(v, 10)
	case float64:
		s = strconv.FormatFloat(v, 'f', -1, 64)
	default:
		encoded, err := encodeJSON(v)
		if err != nil {
			s = t.String()
		} else {
			s = encoded
		}
	}
	return &s
}

// ParseLinkToJSON converts a bound term into canonical JSON text. Text that
// already holds a JSON document is re-serialized canonically; other text
// becomes a JSON string literal.
func ParseLinkToJSON(t logic.Term) *string {
	if t == nil || logic.IsNil(t) {
		return nil
	}
	v := materialize(t)
	if text, ok := v.(string); ok {
		if canonical, err := CanonicalJSON(text); err == nil {
			return &canonical
		}
	}
	encoded, err := encodeJSON(v)
	if err != nil {
		// unreachable for materialized values
		s := strconv.Quote(t.String())
		return &s
	}
	return &encoded
}

// CanonicalJSON re-serializes a JSON document compactly with sorted object
// keys, numbers kept verbatim and no HTML escaping.
func CanonicalJSON(text string) (string, error) {
	dec := json.NewDecoder(bytes.NewReader([]byte(text)))
	dec.UseNumber()

	var v any
	if err := dec.Decode(&v); err != nil {
		return "", err
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return "", errors.New("trailing data after JSON value")
	}
	return encodeJSON(v)
}

func encodeJSON(v any) (string, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return "", err
	}
	return string(bytes.TrimSuffix(buf.Bytes(), []byte("\n"))), nil
}
