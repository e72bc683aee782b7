package filter

import (
	"reflect"
	"testing"

	"github.com/turfinme1/webstore-sub000/internal/schema"
	"github.com/turfinme1/webstore-sub000/internal/sqlexpr"
)

var orders = &schema.Entity{
	Name: "orders",
	View: "orders_view",
	Columns: []schema.FieldDescriptor{
		{Name: "id", Type: schema.TypeNumber},
		{Name: "email", Type: schema.TypeString, Searchable: true},
		{Name: "order_hash", Type: schema.TypeString, Searchable: true},
		{Name: "status", Type: schema.TypeString},
		{Name: "price", Type: schema.TypeNumber},
		{Name: "is_active", Type: schema.TypeBoolean},
		{Name: "created_at", Type: schema.TypeTimestamp},
		{Name: "birth_date", Type: schema.TypeTimestamp, Format: schema.FormatDateTimeNoYear},
		{Name: "start_date", Type: schema.TypeTimestamp, Format: schema.FormatOverlapRangeStart, RangeEnd: "end_date"},
		{Name: "end_date", Type: schema.TypeTimestamp, Format: schema.FormatOverlapRangeEnd},
		{Name: "categories", Type: schema.TypeArray},
	},
}

func render(t *testing.T, n sqlexpr.Node) sqlexpr.Statement {
	t.Helper()
	st, err := sqlexpr.Render(n)
	if err != nil {
		t.Fatalf("Render failed: %v", err)
	}
	if err := st.Check(); err != nil {
		t.Fatalf("Placeholder invariant broken: %v (%s)", err, st.SQL)
	}
	return st
}

func TestCompile(t *testing.T) {
	cases := []struct {
		name   string
		field  string
		value  Value
		sql    string
		params []interface{}
	}{
		{
			name:   "string contains",
			field:  "email",
			value:  ScalarOf("gmail.com"),
			sql:    "STRPOS(LOWER(CAST(email AS text)), LOWER($1)) > 0",
			params: []interface{}{"gmail.com"},
		},
		{
			name:   "number exact",
			field:  "id",
			value:  ScalarOf(int64(42)),
			sql:    "id = $1",
			params: []interface{}{int64(42)},
		},
		{
			name:   "boolean exact from string",
			field:  "is_active",
			value:  ScalarOf("true"),
			sql:    "is_active = $1",
			params: []interface{}{true},
		},
		{
			name:   "timestamp exact",
			field:  "created_at",
			value:  ScalarOf("2024-05-01"),
			sql:    "created_at = $1",
			params: []interface{}{"2024-05-01"},
		},
		{
			name:   "range both",
			field:  "price",
			value:  RangeOf(10, 100),
			sql:    "price >= $1 AND price <= $2",
			params: []interface{}{10, 100},
		},
		{
			name:   "range min only",
			field:  "price",
			value:  RangeOf(10, nil),
			sql:    "price >= $1",
			params: []interface{}{10},
		},
		{
			name:   "range max only",
			field:  "created_at",
			value:  RangeOf("", "2024-12-31"),
			sql:    "created_at <= $1",
			params: []interface{}{"2024-12-31"},
		},
		{
			name:   "list",
			field:  "status",
			value:  ListOf("Paid", "Pending"),
			sql:    "(LOWER(CAST(status AS text)) = LOWER($1) OR LOWER(CAST(status AS text)) = LOWER($2))",
			params: []interface{}{"Paid", "Pending"},
		},
		{
			name:   "date without year",
			field:  "birth_date",
			value:  ScalarOf("2000-03-14"),
			sql:    "(EXTRACT(MONTH FROM birth_date), EXTRACT(DAY FROM birth_date)) = (EXTRACT(MONTH FROM $1::date), EXTRACT(DAY FROM $1::date))",
			params: []interface{}{"2000-03-14"},
		},
		{
			name:   "overlap range",
			field:  "start_date",
			value:  RangeOf("2024-01-01", "2024-01-31"),
			sql:    "$1 <= end_date AND start_date <= $2",
			params: []interface{}{"2024-01-01", "2024-01-31"},
		},
		{
			name:   "overlap point",
			field:  "start_date",
			value:  ScalarOf("2024-01-15"),
			sql:    "$1 <= end_date AND start_date <= $1",
			params: []interface{}{"2024-01-15"},
		},
		{
			name:   "overlap open end",
			field:  "start_date",
			value:  RangeOf(nil, "2024-01-31"),
			sql:    "start_date <= $1",
			params: []interface{}{"2024-01-31"},
		},
		{
			name:   "array column",
			field:  "categories",
			value:  ListOf("Books", "Toys"),
			sql:    "ARRAY(SELECT LOWER(unnest(categories))) && ARRAY[LOWER($1), LOWER($2)]::text[]",
			params: []interface{}{"Books", "Toys"},
		},
	}

	for _, c := range cases {
		field, _ := orders.Column(c.field)
		node, err := Compile(field, c.value)
		if err != nil {
			t.Errorf("%s: unexpected error %v", c.name, err)
			continue
		}
		st := render(t, node)
		if st.SQL != c.sql {
			t.Errorf("%s: expected\n  %s\ngot\n  %s", c.name, c.sql, st.SQL)
		}
		if !reflect.DeepEqual(st.Params, c.params) {
			t.Errorf("%s: expected params %v, got %v", c.name, c.params, st.Params)
		}
	}
}

func TestCompileSkipsEmptyValues(t *testing.T) {
	field, _ := orders.Column("email")
	for _, v := range []Value{{}, ScalarOf(""), ScalarOf(nil), ListOf(), ListOf("", nil), RangeOf("", nil)} {
		node, err := Compile(field, v)
		if err != nil || node != nil {
			t.Errorf("Expected no predicate for %+v, got %v / %v", v, node, err)
		}
	}
}

func TestCompileRejectsBadValues(t *testing.T) {
	cases := []struct {
		field string
		value Value
	}{
		{"price", ScalarOf("cheap")},
		{"is_active", ScalarOf("maybe")},
		{"created_at", ScalarOf("yesterday")},
		{"email", RangeOf("a", "b")},
		{"birth_date", RangeOf("2000-01-01", "2000-02-01")},
		{"start_date", ListOf("2024-01-01")},
		{"categories", RangeOf("a", "z")},
	}
	for _, c := range cases {
		field, _ := orders.Column(c.field)
		if _, err := Compile(field, c.value); !schema.IsValidation(err) {
			t.Errorf("%s: expected validation error, got %v", c.field, err)
		}
	}
}

func TestCompileAll(t *testing.T) {
	filters := map[string]Value{
		"status": ListOf("Paid"),
		"price":  RangeOf(10, 100),
		"email":  ScalarOf(""),
	}
	preds, err := CompileAll(orders, filters, "")
	if err != nil {
		t.Fatalf("CompileAll failed: %v", err)
	}
	st := render(t, preds)
	expected := "(LOWER(CAST(status AS text)) = LOWER($1)) AND price >= $2 AND price <= $3"
	if st.SQL != expected {
		t.Errorf("Expected %s, got %s", expected, st.SQL)
	}
	if !reflect.DeepEqual(st.Params, []interface{}{"Paid", 10, 100}) {
		t.Errorf("Unexpected params %v", st.Params)
	}
}

func TestCompileAllEmptyIsTrue(t *testing.T) {
	preds, err := CompileAll(orders, map[string]Value{}, "")
	if err != nil {
		t.Fatal(err)
	}
	st := render(t, preds)
	if st.SQL != "TRUE" || len(st.Params) != 0 {
		t.Errorf("Expected TRUE with no params, got %q %v", st.SQL, st.Params)
	}
}

func TestCompileAllKeyword(t *testing.T) {
	preds, err := CompileAll(orders, nil, "abc")
	if err != nil {
		t.Fatal(err)
	}
	st := render(t, preds)
	expected := "(STRPOS(LOWER(CAST(email AS text)), LOWER($1)) > 0 OR STRPOS(LOWER(CAST(order_hash AS text)), LOWER($1)) > 0)"
	if st.SQL != expected {
		t.Errorf("Expected %s, got %s", expected, st.SQL)
	}
	if len(st.Params) != 1 {
		t.Errorf("Expected keyword bound once, got %v", st.Params)
	}
}

func TestCompileAllRejectsUnknownField(t *testing.T) {
	_, err := CompileAll(orders, map[string]Value{"price; DROP TABLE orders": ScalarOf(1)}, "")
	if !schema.IsValidation(err) {
		t.Errorf("Expected validation error, got %v", err)
	}
}

func TestParseParams(t *testing.T) {
	params, err := ParseParams([]byte(`{"status":["Paid","Pending"],"price":{"min":10,"max":99.5},"email":"","id":7}`))
	if err != nil {
		t.Fatalf("ParseParams failed: %v", err)
	}
	if params["status"].Kind != List || len(params["status"].Items) != 2 {
		t.Errorf("Unexpected status value %+v", params["status"])
	}
	price := params["price"]
	if price.Kind != Range || price.Min != int64(10) || price.Max != 99.5 {
		t.Errorf("Unexpected price value %+v", price)
	}
	if !params["email"].IsEmpty() {
		t.Errorf("Expected empty email filter, got %+v", params["email"])
	}
	if params["id"].Scalar != int64(7) {
		t.Errorf("Expected int64 7, got %#v", params["id"].Scalar)
	}

	if _, err := ParseParams([]byte(`{"price":{"from":1}}`)); !schema.IsValidation(err) {
		t.Errorf("Expected validation error for bad range key, got %v", err)
	}
	if _, err := ParseParams([]byte(`{not json`)); !schema.IsValidation(err) {
		t.Errorf("Expected validation error for malformed JSON, got %v", err)
	}
}

func TestCoerce(t *testing.T) {
	tests := []struct {
		field    schema.FieldDescriptor
		in       interface{}
		expected interface{}
	}{
		{schema.FieldDescriptor{Name: "is_active", Type: schema.TypeBoolean}, "true", true},
		{schema.FieldDescriptor{Name: "price", Type: schema.TypeNumber}, int64(5), int64(5)},
		{schema.FieldDescriptor{Name: "created_at", Type: schema.TypeTimestamp}, "2024-02-01", "2024-02-01"},
		{schema.FieldDescriptor{Name: "email", Type: schema.TypeString}, "x@y", "x@y"},
	}
	for _, tt := range tests {
		got, err := Coerce(tt.field, tt.in)
		if err != nil {
			t.Errorf("%s: Coerce failed: %v", tt.field.Name, err)
			continue
		}
		if got != tt.expected {
			t.Errorf("%s: expected %v, got %v", tt.field.Name, tt.expected, got)
		}
	}

	if _, err := Coerce(schema.FieldDescriptor{Name: "price", Type: schema.TypeNumber}, "cheap"); !schema.IsValidation(err) {
		t.Errorf("Expected validation error, got %v", err)
	}
}
