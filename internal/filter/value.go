package filter

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/turfinme1/webstore-sub000/internal/schema"
)

// Kind is the shape of a filter value
type Kind int

const (
	Empty Kind = iota
	Scalar
	Range
	List
)

// Value is one field's raw filter: a scalar, a {min, max} range or a list
type Value struct {
	Kind   Kind
	Scalar interface{}
	Min    interface{}
	Max    interface{}
	Items  []interface{}
}

func ScalarOf(v interface{}) Value {
	if blank(v) {
		return Value{}
	}
	return Value{Kind: Scalar, Scalar: v}
}

// RangeOf builds a range; pass nil for an open side
func RangeOf(min, max interface{}) Value {
	if blank(min) {
		min = nil
	}
	if blank(max) {
		max = nil
	}
	if min == nil && max == nil {
		return Value{}
	}
	return Value{Kind: Range, Min: min, Max: max}
}

func ListOf(items ...interface{}) Value {
	kept := make([]interface{}, 0, len(items))
	for _, it := range items {
		if !blank(it) {
			kept = append(kept, it)
		}
	}
	if len(kept) == 0 {
		return Value{}
	}
	return Value{Kind: List, Items: kept}
}

func (v Value) IsEmpty() bool { return v.Kind == Empty }

// Decode converts a JSON-decoded value into a filter Value. Objects must be
// ranges with "min" and/or "max" keys.
func Decode(field string, raw interface{}) (Value, error) {
	switch x := raw.(type) {
	case nil:
		return Value{}, nil
	case []interface{}:
		items := make([]interface{}, 0, len(x))
		for _, it := range x {
			if !isScalar(it) {
				return Value{}, schema.Invalid(field, "list filter items must be scalars")
			}
			items = append(items, normalize(it))
		}
		return ListOf(items...), nil
	case map[string]interface{}:
		for k := range x {
			if k != "min" && k != "max" {
				return Value{}, schema.Invalid(field, "unexpected key %q in range filter", k)
			}
		}
		min, max := x["min"], x["max"]
		if !isScalar(min) || !isScalar(max) {
			return Value{}, schema.Invalid(field, "range bounds must be scalars")
		}
		return RangeOf(normalize(min), normalize(max)), nil
	default:
		if !isScalar(raw) {
			return Value{}, schema.Invalid(field, "unsupported filter value %T", raw)
		}
		return ScalarOf(normalize(raw)), nil
	}
}

// ParseParams decodes a filterParams JSON object. Numbers keep integer
// precision.
func ParseParams(data []byte) (map[string]Value, error) {
	out := make(map[string]Value)
	if len(bytes.TrimSpace(data)) == 0 {
		return out, nil
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var raw map[string]interface{}
	if err := dec.Decode(&raw); err != nil {
		return nil, schema.Invalid("filterParams", "malformed JSON: %v", err)
	}
	for field, r := range raw {
		v, err := Decode(field, r)
		if err != nil {
			return nil, err
		}
		out[field] = v
	}
	return out, nil
}

func blank(v interface{}) bool {
	if v == nil {
		return true
	}
	if s, ok := v.(string); ok {
		return s == ""
	}
	if n, ok := v.(json.Number); ok {
		return n == ""
	}
	return false
}

func isScalar(v interface{}) bool {
	switch v.(type) {
	case nil, string, bool, json.Number, float64, float32, int, int32, int64:
		return true
	}
	return false
}

func normalize(v interface{}) interface{} {
	n, ok := v.(json.Number)
	if !ok {
		return v
	}
	if i, err := n.Int64(); err == nil {
		return i
	}
	if f, err := n.Float64(); err == nil {
		return f
	}
	return n.String()
}

func numeric(v interface{}) bool {
	switch x := v.(type) {
	case int, int32, int64, float32, float64:
		return true
	case string:
		_, err := strconv.ParseFloat(strings.TrimSpace(x), 64)
		return err == nil
	}
	return false
}

func boolean(v interface{}) (bool, bool) {
	switch x := v.(type) {
	case bool:
		return x, true
	case string:
		b, err := strconv.ParseBool(x)
		return b, err == nil
	}
	return false, false
}

func describe(v interface{}) string {
	return fmt.Sprintf("%v", v)
}
