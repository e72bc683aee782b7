package schema

import (
	"errors"
	"strings"
	"testing"
)

func TestLoadYAMLCatalog(t *testing.T) {
	cat, err := Load("testdata/catalog.yaml")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if len(cat.Entities) != 2 {
		t.Fatalf("Expected 2 entities, got %d", len(cat.Entities))
	}

	orders, err := cat.Entity("orders")
	if err != nil {
		t.Fatalf("Entity lookup failed: %v", err)
	}
	if orders.Relation(true) != "orders_export_view" {
		t.Errorf("Expected export view, got %s", orders.Relation(true))
	}
	if orders.Key() != "id" {
		t.Errorf("Expected default primary key id, got %s", orders.Key())
	}
	col, ok := orders.Column("total_price")
	if !ok || col.GroupBehavior != "SUM" {
		t.Errorf("Expected total_price with SUM behavior, got %+v", col)
	}

	users, _ := cat.Entity("users")
	if users.Relation(true) != "users_view" {
		t.Errorf("Expected listing view as export fallback, got %s", users.Relation(true))
	}
	country, _ := users.Column("country_name")
	if country.GroupExpr() != "COALESCE(country_name, 'Unknown')" {
		t.Errorf("Unexpected grouping expression %q", country.GroupExpr())
	}
}

func TestLoadJSONCatalog(t *testing.T) {
	cat, err := Load("testdata/campaigns.json")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	e, _ := cat.Entity("campaigns")
	start, _ := e.Column("start_date")
	if start.Format != FormatOverlapRangeStart || start.RangeEnd != "end_date" {
		t.Errorf("Unexpected overlap descriptor %+v", start)
	}
}

func TestUnknownEntityIsValidationError(t *testing.T) {
	cat := &Catalog{}
	_, err := cat.Entity("nope")
	if !IsValidation(err) {
		t.Errorf("Expected validation error, got %v", err)
	}
	var v *ValidationError
	if !errors.As(err, &v) || v.Field != "entity" {
		t.Errorf("Expected field 'entity', got %+v", v)
	}
}

func TestParseRejectsSchemaViolations(t *testing.T) {
	cases := map[string]string{
		"bad type":        `{"entities":[{"name":"a","view":"a_view","columns":[{"name":"x","type":"blob"}]}]}`,
		"injected view":   `{"entities":[{"name":"a","view":"a_view; DROP TABLE users","columns":[{"name":"x","type":"string"}]}]}`,
		"missing columns": `{"entities":[{"name":"a","view":"a_view"}]}`,
		"unknown key":     `{"entities":[{"name":"a","view":"v","columns":[{"name":"x","type":"string","sql":"1"}]}]}`,
	}
	for name, doc := range cases {
		if _, err := Parse([]byte(doc), ".json"); err == nil {
			t.Errorf("%s: expected error", name)
		}
	}
}

func TestEntityValidate(t *testing.T) {
	cases := []struct {
		name    string
		entity  Entity
		wantErr string
	}{
		{
			name: "overlap without end",
			entity: Entity{Name: "c", View: "c_view", Columns: []FieldDescriptor{
				{Name: "start_date", Type: TypeTimestamp, Format: FormatOverlapRangeStart, RangeEnd: "end_date"},
			}},
			wantErr: "range_end",
		},
		{
			name: "format on string",
			entity: Entity{Name: "c", View: "c_view", Columns: []FieldDescriptor{
				{Name: "birthday", Type: TypeString, Format: FormatDateTimeNoYear},
			}},
			wantErr: "requires a timestamp",
		},
		{
			name: "duplicate column",
			entity: Entity{Name: "c", View: "c_view", Columns: []FieldDescriptor{
				{Name: "a", Type: TypeString}, {Name: "a", Type: TypeNumber},
			}},
			wantErr: "duplicate",
		},
		{
			name: "placeholder in expression",
			entity: Entity{Name: "c", View: "c_view", Columns: []FieldDescriptor{
				{Name: "a", Type: TypeString, GroupingExpression: "a || $1"},
			}},
			wantErr: "may not contain",
		},
	}
	for _, c := range cases {
		err := c.entity.Validate()
		if err == nil || !strings.Contains(err.Error(), c.wantErr) {
			t.Errorf("%s: expected error containing %q, got %v", c.name, c.wantErr, err)
		}
	}
}

func TestValidGranularity(t *testing.T) {
	for _, g := range Granularities {
		if !ValidGranularity(g) {
			t.Errorf("Expected %s to be valid", g)
		}
	}
	if ValidGranularity("decade") || ValidGranularity("month'; --") {
		t.Error("Expected unknown granularity to be rejected")
	}
}
