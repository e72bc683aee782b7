// Package filter compiles one field's filter value into a parameterized SQL
// predicate, dispatching on the field's declared type and format.
package filter

import (
	"strings"
	"time"

	"github.com/turfinme1/webstore-sub000/internal/schema"
	x "github.com/turfinme1/webstore-sub000/internal/sqlexpr"
)

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// Compile returns the predicate for field, or nil when v carries no filter
func Compile(field schema.FieldDescriptor, v Value) (x.Node, error) {
	if v.IsEmpty() {
		return nil, nil
	}
	col := x.Ident(field.Name)

	switch field.Format {
	case schema.FormatDateTimeNoYear:
		return compileNoYear(field, col, v)
	case schema.FormatOverlapRangeStart:
		return compileOverlap(field, col, v)
	}

	if field.Type == schema.TypeArray {
		return compileArrayColumn(field, col, v)
	}

	switch v.Kind {
	case List:
		return compileList(field, col, v)
	case Range:
		return compileRange(field, col, v)
	}

	val, err := Coerce(field, v.Scalar)
	if err != nil {
		return nil, err
	}
	if field.Type == schema.TypeString {
		return contains(col, x.Arg(val)), nil
	}
	return x.Eq(col, x.Arg(val)), nil
}

// CompileAll validates every filter key against the entity and then builds
// the AND of all predicates in column declaration order. keyword, when set,
// is matched against every searchable column.
func CompileAll(entity *schema.Entity, filters map[string]Value, keyword string) (x.And, error) {
	for name := range filters {
		if _, ok := entity.Column(name); !ok {
			return nil, schema.Invalid(name, "unknown filter field for %s", entity.Name)
		}
	}

	preds := x.And{}
	if keyword != "" {
		p := x.Arg(keyword)
		var search x.Or
		for _, c := range entity.Columns {
			if c.Searchable {
				search = append(search, contains(x.Ident(c.Name), p))
			}
		}
		if len(search) == 0 {
			return nil, schema.Invalid("keyword", "%s has no searchable columns", entity.Name)
		}
		preds = append(preds, search)
	}

	for _, c := range entity.Columns {
		v, ok := filters[c.Name]
		if !ok {
			continue
		}
		pred, err := Compile(c, v)
		if err != nil {
			return nil, err
		}
		if pred != nil {
			preds = append(preds, pred)
		}
	}
	return preds, nil
}

// STRPOS(LOWER(CAST(col AS text)), LOWER($n)) > 0
func contains(col x.Node, p *x.Param) x.Node {
	return x.Binary{
		Left:  x.Call("STRPOS", lowerText(col), x.Call("LOWER", p)),
		Op:    ">",
		Right: x.Int(0),
	}
}

func lowerText(col x.Node) x.Node {
	return x.Call("LOWER", x.Cast{Expr: col, Type: "text"})
}

func compileList(field schema.FieldDescriptor, col x.Ident, v Value) (x.Node, error) {
	or := make(x.Or, 0, len(v.Items))
	for _, it := range v.Items {
		val, err := Coerce(field, it)
		if err != nil {
			return nil, err
		}
		or = append(or, x.Eq(lowerText(col), x.Call("LOWER", x.Arg(val))))
	}
	return or, nil
}

func compileRange(field schema.FieldDescriptor, col x.Ident, v Value) (x.Node, error) {
	if field.Type != schema.TypeNumber && field.Type != schema.TypeTimestamp {
		return nil, schema.Invalid(field.Name, "range filters apply to number and timestamp fields")
	}
	and := x.And{}
	if v.Min != nil {
		min, err := Coerce(field, v.Min)
		if err != nil {
			return nil, err
		}
		and = append(and, x.Gte(col, x.Arg(min)))
	}
	if v.Max != nil {
		max, err := Coerce(field, v.Max)
		if err != nil {
			return nil, err
		}
		and = append(and, x.Lte(col, x.Arg(max)))
	}
	return and, nil
}

// (EXTRACT(MONTH FROM col), EXTRACT(DAY FROM col)) =
// (EXTRACT(MONTH FROM $n::date), EXTRACT(DAY FROM $n::date))
func compileNoYear(field schema.FieldDescriptor, col x.Ident, v Value) (x.Node, error) {
	if v.Kind != Scalar {
		return nil, schema.Invalid(field.Name, "recurring date filters take a single date")
	}
	val, err := Coerce(field, v.Scalar)
	if err != nil {
		return nil, err
	}
	p := x.Arg(val)
	day := x.PgCast{Expr: p, Type: "date"}
	return x.Eq(
		x.Tuple{x.Extract{Field: "MONTH", From: col}, x.Extract{Field: "DAY", From: col}},
		x.Tuple{x.Extract{Field: "MONTH", From: day}, x.Extract{Field: "DAY", From: day}},
	), nil
}

// $n <= end_col AND start_col <= $m; a scalar is a point query
func compileOverlap(field schema.FieldDescriptor, start x.Ident, v Value) (x.Node, error) {
	end := x.Ident(field.RangeEnd)
	var lo, hi interface{}
	switch v.Kind {
	case Scalar:
		lo, hi = v.Scalar, v.Scalar
	case Range:
		lo, hi = v.Min, v.Max
	default:
		return nil, schema.Invalid(field.Name, "overlap filters take a date or a {min, max} range")
	}

	and := x.And{}
	var loParam *x.Param
	if lo != nil {
		val, err := Coerce(field, lo)
		if err != nil {
			return nil, err
		}
		loParam = x.Arg(val)
		and = append(and, x.Lte(loParam, end))
	}
	if hi != nil {
		hiParam := loParam
		if v.Kind != Scalar {
			val, err := Coerce(field, hi)
			if err != nil {
				return nil, err
			}
			hiParam = x.Arg(val)
		}
		and = append(and, x.Lte(start, hiParam))
	}
	return and, nil
}

// ARRAY(SELECT LOWER(unnest(col))) && ARRAY[LOWER($1), ...]::text[]
func compileArrayColumn(field schema.FieldDescriptor, col x.Ident, v Value) (x.Node, error) {
	var items []interface{}
	switch v.Kind {
	case Scalar:
		items = []interface{}{v.Scalar}
	case List:
		items = v.Items
	default:
		return nil, schema.Invalid(field.Name, "array fields take a value or a list of values")
	}
	arr := make(x.Array, 0, len(items))
	for _, it := range items {
		arr = append(arr, x.Call("LOWER", x.Arg(describe(it))))
	}
	return x.Binary{
		Left:  x.Call("ARRAY", x.Seq{x.Raw("SELECT "), x.Call("LOWER", x.Call("unnest", col))}),
		Op:    "&&",
		Right: x.PgCast{Expr: arr, Type: "text[]"},
	}, nil
}

// Coerce checks a scalar against the field type before it is bound
func Coerce(field schema.FieldDescriptor, v interface{}) (interface{}, error) {
	switch field.Type {
	case schema.TypeNumber:
		if !numeric(v) {
			return nil, schema.Invalid(field.Name, "%q is not a number", describe(v))
		}
	case schema.TypeBoolean:
		b, ok := boolean(v)
		if !ok {
			return nil, schema.Invalid(field.Name, "%q is not a boolean", describe(v))
		}
		return b, nil
	case schema.TypeTimestamp:
		switch t := v.(type) {
		case time.Time:
			return t, nil
		case string:
			if parseTimestamp(t) {
				return t, nil
			}
		}
		return nil, schema.Invalid(field.Name, "%q is not a timestamp", describe(v))
	}
	return v, nil
}

func parseTimestamp(s string) bool {
	s = strings.TrimSpace(s)
	for _, layout := range timestampLayouts {
		if _, err := time.Parse(layout, s); err == nil {
			return true
		}
	}
	return false
}
