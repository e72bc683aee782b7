package listing

import (
	"encoding/json"
	"strings"

	"github.com/turfinme1/webstore-sub000/internal/schema"
)

// ParseOrder decodes orderParams, a JSON array of [field, direction] pairs.
// An empty input means default ordering.
func ParseOrder(data string) ([]OrderSpec, error) {
	if strings.TrimSpace(data) == "" {
		return nil, nil
	}
	var raw [][]string
	if err := json.Unmarshal([]byte(data), &raw); err != nil {
		return nil, schema.Invalid("orderParams", "expected [[field, direction], ...]: %v", err)
	}
	out := make([]OrderSpec, 0, len(raw))
	for _, pair := range raw {
		switch len(pair) {
		case 1:
			out = append(out, OrderSpec{Field: pair[0]})
		case 2:
			out = append(out, OrderSpec{Field: pair[0], Direction: pair[1]})
		default:
			return nil, schema.Invalid("orderParams", "expected [field, direction], got %d items", len(pair))
		}
	}
	return out, nil
}

// ParseGroup decodes groupParams, a JSON array of {column, granularity}
func ParseGroup(data string) ([]GroupSpec, error) {
	if strings.TrimSpace(data) == "" {
		return nil, nil
	}
	var out []GroupSpec
	if err := json.Unmarshal([]byte(data), &out); err != nil {
		return nil, schema.Invalid("groupParams", "expected [{column, granularity}, ...]: %v", err)
	}
	return out, nil
}
