// Package grouping plans GROUPING SETS clauses and arranges the grand-total
// row they produce.
package grouping

import (
	"fmt"
	"strings"

	x "github.com/turfinme1/webstore-sub000/internal/sqlexpr"
)

// TotalFlag is the output column that tags the grand-total row
const TotalFlag = "is_total"

// Dimension is one candidate grouping column
type Dimension struct {
	Name      string
	Expr      x.Node // expression as selected, e.g. DATE_TRUNC('month', created_at)
	Position  int    // 1-based SELECT position, 0 when unknown
	Groupable bool
	Selected  bool
}

// Active returns the dimensions taking part in grouping: the selected ones,
// or every groupable one when nothing was selected (full detail).
func Active(dims []Dimension) []Dimension {
	var selected, groupable []Dimension
	for _, d := range dims {
		if d.Selected {
			selected = append(selected, d)
		}
		if d.Groupable {
			groupable = append(groupable, d)
		}
	}
	if len(selected) > 0 {
		return selected
	}
	return groupable
}

// Sets renders GROUPING SETS ((k1, k2, ...), ()). The empty set yields
// exactly one grand-total row.
func Sets(keys []x.Node) x.Node {
	sets := x.Tuple{}
	if len(keys) > 0 {
		sets = append(sets, x.Tuple(keys))
	}
	sets = append(sets, x.Tuple{})
	return x.Seq{x.Raw("GROUPING SETS "), sets}
}

// Positions converts dimensions to ordinal GROUP BY keys
func Positions(dims []Dimension) []x.Node {
	keys := make([]x.Node, 0, len(dims))
	for _, d := range dims {
		keys = append(keys, x.Int(d.Position))
	}
	return keys
}

// Exprs converts dimensions to expression GROUP BY keys
func Exprs(dims []Dimension) []x.Node {
	keys := make([]x.Node, 0, len(dims))
	for _, d := range dims {
		keys = append(keys, d.Expr)
	}
	return keys
}

// Flag renders the boolean that is true only on the grand-total row.
// GROUPING() needs expressions, not ordinals.
func Flag(dims []Dimension) x.Node {
	if len(dims) == 0 {
		return x.Raw("TRUE")
	}
	return x.Binary{Left: x.Call("GROUPING", Exprs(dims)...), Op: "<>", Right: x.Int(0)}
}

// Arrange returns records with the grand-total row moved to the end.
// Rows are matched on the TotalFlag column; when no row carries it, the
// first row is taken as the total if all dimKeys are NULL there, which is
// where PostgreSQL sorts it by default.
func Arrange(records []map[string]interface{}, dimKeys []string) ([]map[string]interface{}, error) {
	if len(records) == 0 {
		return records, nil
	}

	totalIdx := -1
	flagged := false
	for i, rec := range records {
		v, ok := rec[TotalFlag]
		if !ok {
			continue
		}
		flagged = true
		if truthy(v) {
			if totalIdx >= 0 {
				return nil, fmt.Errorf("grouped result has more than one grand-total row")
			}
			totalIdx = i
		}
	}

	if !flagged && len(dimKeys) > 0 {
		first := records[0]
		allNull := true
		for _, k := range dimKeys {
			if first[k] != nil {
				allNull = false
				break
			}
		}
		if allNull {
			totalIdx = 0
		}
	}

	if totalIdx < 0 || totalIdx == len(records)-1 {
		return records, nil
	}

	out := make([]map[string]interface{}, 0, len(records))
	out = append(out, records[:totalIdx]...)
	out = append(out, records[totalIdx+1:]...)
	out = append(out, records[totalIdx])
	return out, nil
}

func truthy(v interface{}) bool {
	switch b := v.(type) {
	case bool:
		return b
	case string:
		s := strings.ToLower(b)
		return s == "true" || s == "t"
	case []byte:
		s := strings.ToLower(string(b))
		return s == "true" || s == "t"
	}
	return false
}
