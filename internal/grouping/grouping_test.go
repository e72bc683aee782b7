package grouping

import (
	"testing"

	x "github.com/turfinme1/webstore-sub000/internal/sqlexpr"
)

func TestSets(t *testing.T) {
	dims := []Dimension{
		{Name: "created_at", Position: 1, Expr: x.Call("DATE_TRUNC", x.Literal("month"), x.Ident("created_at"))},
		{Name: "status", Position: 3, Expr: x.Ident("status")},
	}

	st, _ := x.Render(Sets(Positions(dims)))
	if st.SQL != "GROUPING SETS ((1, 3), ())" {
		t.Errorf("Unexpected grouping sets: %s", st.SQL)
	}

	st, _ = x.Render(Sets(Exprs(dims)))
	if st.SQL != "GROUPING SETS ((DATE_TRUNC('month', created_at), status), ())" {
		t.Errorf("Unexpected grouping sets: %s", st.SQL)
	}

	st, _ = x.Render(Sets(nil))
	if st.SQL != "GROUPING SETS (())" {
		t.Errorf("Expected grand total only, got %s", st.SQL)
	}
}

func TestFlag(t *testing.T) {
	dims := []Dimension{{Expr: x.Ident("a")}, {Expr: x.Ident("b")}}
	st, _ := x.Render(Flag(dims))
	if st.SQL != "GROUPING(a, b) <> 0" {
		t.Errorf("Unexpected flag: %s", st.SQL)
	}
}

func TestActive(t *testing.T) {
	dims := []Dimension{
		{Name: "a", Groupable: true},
		{Name: "b", Groupable: true, Selected: true},
		{Name: "c"},
	}
	active := Active(dims)
	if len(active) != 1 || active[0].Name != "b" {
		t.Errorf("Expected only selected dimension b, got %+v", active)
	}

	dims[1].Selected = false
	active = Active(dims)
	if len(active) != 2 || active[0].Name != "a" || active[1].Name != "b" {
		t.Errorf("Expected all groupable dimensions, got %+v", active)
	}
}

func TestArrangeMovesFlaggedTotalLast(t *testing.T) {
	records := []map[string]interface{}{
		{"status": nil, "count": int64(5), TotalFlag: true},
		{"status": "Paid", "count": int64(3), TotalFlag: false},
		{"status": "Pending", "count": int64(2), TotalFlag: false},
	}
	out, err := Arrange(records, []string{"status"})
	if err != nil {
		t.Fatalf("Arrange failed: %v", err)
	}
	if len(out) != 3 {
		t.Fatalf("Expected 3 rows, got %d", len(out))
	}
	if out[2][TotalFlag] != true || out[0]["status"] != "Paid" || out[1]["status"] != "Pending" {
		t.Errorf("Expected detail rows then total, got %v", out)
	}
}

func TestArrangeFallsBackToNullKeys(t *testing.T) {
	records := []map[string]interface{}{
		{"month": nil, "count": int64(9)},
		{"month": "2024-01", "count": int64(9)},
	}
	out, _ := Arrange(records, []string{"month"})
	if out[1]["month"] != nil {
		t.Errorf("Expected NULL-key total row last, got %v", out)
	}
}

func TestArrangeRejectsDuplicateTotals(t *testing.T) {
	records := []map[string]interface{}{
		{TotalFlag: "t"},
		{TotalFlag: []byte("true")},
	}
	if _, err := Arrange(records, nil); err == nil {
		t.Error("Expected error for two total rows")
	}
}
