package sqlexpr

import (
	"reflect"
	"strings"
	"testing"
)

func TestRenderNumbersParamsInOrder(t *testing.T) {
	node := And{
		Gte(Ident("price"), Arg(10)),
		Lte(Ident("price"), Arg(100)),
	}
	st, err := Render(node)
	if err != nil {
		t.Fatalf("Render failed: %v", err)
	}
	if st.SQL != "price >= $1 AND price <= $2" {
		t.Errorf("Unexpected SQL: %s", st.SQL)
	}
	if !reflect.DeepEqual(st.Params, []interface{}{10, 100}) {
		t.Errorf("Unexpected params: %v", st.Params)
	}
	if err := st.Check(); err != nil {
		t.Errorf("Check failed: %v", err)
	}
}

func TestEmptyAndRendersTrue(t *testing.T) {
	st, _ := Render(And{})
	if st.SQL != "TRUE" || len(st.Params) != 0 {
		t.Errorf("Expected TRUE with no params, got %q %v", st.SQL, st.Params)
	}
}

func TestSameParamReusesPlaceholder(t *testing.T) {
	p := Arg("x")
	st, err := Render(Seq{p, Raw(" = "), p})
	if err != nil {
		t.Fatal(err)
	}
	if st.SQL != "$1 = $1" || len(st.Params) != 1 {
		t.Errorf("Expected single shared placeholder, got %q %v", st.SQL, st.Params)
	}
}

func TestLiteralEscapesQuotes(t *testing.T) {
	st, _ := Render(Literal("it's"))
	if st.SQL != "'it''s'" {
		t.Errorf("Unexpected literal: %s", st.SQL)
	}
}

func TestTemplateBinding(t *testing.T) {
	tpl := ParseTemplate("SELECT $a$ FROM t WHERE $b$ GROUP BY $a$")
	if got := tpl.Slots(); !reflect.DeepEqual(got, []string{"a", "b"}) {
		t.Errorf("Unexpected slots: %v", got)
	}

	st, err := Render(tpl.Bind(map[string]Node{
		"a": Ident("U.email"),
		"b": Eq(Ident("U.id"), Arg(7)),
	}))
	if err != nil {
		t.Fatalf("Render failed: %v", err)
	}
	expected := "SELECT U.email FROM t WHERE U.id = $1 GROUP BY U.email"
	if st.SQL != expected {
		t.Errorf("Expected %q, got %q", expected, st.SQL)
	}
}

func TestTemplateUnboundSlotFails(t *testing.T) {
	tpl := ParseTemplate("SELECT 1 WHERE $missing$")
	if _, err := Render(tpl.Bind(nil)); err == nil {
		t.Error("Expected error for unbound slot")
	}
}

func TestTemplateRejectsUnknownBinding(t *testing.T) {
	tpl := ParseTemplate("SELECT $a$")
	_, err := Render(tpl.Bind(map[string]Node{"a": Raw("1"), "b": Raw("2")}))
	if err == nil {
		t.Error("Expected error for binding a missing token")
	}
}

func TestTemplateIgnoresPositionalAndDollarQuotes(t *testing.T) {
	tpl := ParseTemplate("SELECT $1, $$ body $$")
	if len(tpl.Slots()) != 0 {
		t.Errorf("Expected no slots, got %v", tpl.Slots())
	}
}

func TestRenderAfterContinuesNumbering(t *testing.T) {
	base := Statement{SQL: "SELECT * FROM t WHERE a = $1", Params: []interface{}{"x"}}
	st, err := RenderAfter(base, Seq{Raw("SELECT * FROM ("), Raw(base.SQL), Raw(") AS r LIMIT "), Arg(11)})
	if err != nil {
		t.Fatalf("RenderAfter failed: %v", err)
	}
	if !strings.HasSuffix(st.SQL, "LIMIT $2") {
		t.Errorf("Expected LIMIT $2, got %s", st.SQL)
	}
	if len(st.Params) != 2 || st.Params[1] != 11 {
		t.Errorf("Unexpected params: %v", st.Params)
	}
}

func TestCheckDetectsMismatch(t *testing.T) {
	cases := []Statement{
		{SQL: "a = $1 AND b = $2", Params: []interface{}{1}},
		{SQL: "a = $1", Params: []interface{}{1, 2}},
		{SQL: "a = $0", Params: nil},
	}
	for _, c := range cases {
		if err := c.Check(); err == nil {
			t.Errorf("Expected mismatch error for %q with %v", c.SQL, c.Params)
		}
	}
	if n := Placeholders("$1 $2 $1"); n != 2 {
		t.Errorf("Expected 2 distinct placeholders, got %d", n)
	}
}
