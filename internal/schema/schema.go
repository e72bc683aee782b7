// Package schema holds the entity metadata the query compiler works from:
// listing/export views and the ordered field descriptors of each entity.
package schema

import (
	"fmt"
	"regexp"
	"strings"
)

// FieldType is the logical type of a column
type FieldType string

const (
	TypeString    FieldType = "string"
	TypeNumber    FieldType = "number"
	TypeBoolean   FieldType = "boolean"
	TypeTimestamp FieldType = "timestamp"
	TypeArray     FieldType = "array"
)

// FieldFormat refines how a timestamp column is filtered
type FieldFormat string

const (
	FormatNone              FieldFormat = ""
	FormatDateTimeNoYear    FieldFormat = "date-time-no-year"
	FormatOverlapRangeStart FieldFormat = "date-range-overlap-start"
	FormatOverlapRangeEnd   FieldFormat = "date-range-overlap-end"
)

// Granularities accepted for DATE_TRUNC grouping
var Granularities = []string{"minute", "hour", "day", "week", "month", "year"}

// GroupBehaviors are the aggregate functions a column may declare
var GroupBehaviors = []string{"SUM", "AVG", "MIN", "MAX", "COUNT"}

var (
	identRe    = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)
	relationRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*(\.[A-Za-z_][A-Za-z0-9_]*)?$`)
)

// FieldDescriptor describes one column of an entity
type FieldDescriptor struct {
	Name                  string      `json:"name" yaml:"name"`
	Type                  FieldType   `json:"type" yaml:"type"`
	Format                FieldFormat `json:"format,omitempty" yaml:"format,omitempty"`
	Groupable             bool        `json:"groupable,omitempty" yaml:"groupable,omitempty"`
	GroupingExpression    string      `json:"grouping_expression,omitempty" yaml:"grouping_expression,omitempty"`
	AggregationExpression string      `json:"aggregation_expression,omitempty" yaml:"aggregation_expression,omitempty"`
	GroupBehavior         string      `json:"group_behavior,omitempty" yaml:"group_behavior,omitempty"`
	Searchable            bool        `json:"searchable,omitempty" yaml:"searchable,omitempty"`
	RangeEnd              string      `json:"range_end,omitempty" yaml:"range_end,omitempty"` // end column of an overlap pair
}

// GroupExpr is the SQL expression used when the column is a grouping dimension
func (f FieldDescriptor) GroupExpr() string {
	if f.GroupingExpression != "" {
		return f.GroupingExpression
	}
	return f.Name
}

// AggExpr is the SQL expression aggregated by GroupBehavior
func (f FieldDescriptor) AggExpr() string {
	if f.AggregationExpression != "" {
		return f.AggregationExpression
	}
	return f.Name
}

// Entity is one listable object: its views and ordered columns
type Entity struct {
	Name       string            `json:"name" yaml:"name"`
	View       string            `json:"view" yaml:"view"`
	ExportView string            `json:"export_view,omitempty" yaml:"export_view,omitempty"`
	PrimaryKey string            `json:"primary_key,omitempty" yaml:"primary_key,omitempty"`
	Columns    []FieldDescriptor `json:"columns" yaml:"columns"`
}

// Column looks up a declared column by name
func (e *Entity) Column(name string) (FieldDescriptor, bool) {
	for _, c := range e.Columns {
		if c.Name == name {
			return c, true
		}
	}
	return FieldDescriptor{}, false
}

// Key returns the primary key column, "id" unless declared otherwise
func (e *Entity) Key() string {
	if e.PrimaryKey != "" {
		return e.PrimaryKey
	}
	return "id"
}

// Relation returns the listing view, or the export view when export is set
func (e *Entity) Relation(export bool) string {
	if export && e.ExportView != "" {
		return e.ExportView
	}
	return e.View
}

// Validate checks that every identifier that will be spliced into SQL is
// well formed and that column declarations are consistent.
func (e *Entity) Validate() error {
	if !identRe.MatchString(e.Name) {
		return fmt.Errorf("entity %q: invalid name", e.Name)
	}
	if !relationRe.MatchString(e.View) {
		return fmt.Errorf("entity %s: invalid view %q", e.Name, e.View)
	}
	if e.ExportView != "" && !relationRe.MatchString(e.ExportView) {
		return fmt.Errorf("entity %s: invalid export view %q", e.Name, e.ExportView)
	}
	if !identRe.MatchString(e.Key()) {
		return fmt.Errorf("entity %s: invalid primary key %q", e.Name, e.Key())
	}
	if len(e.Columns) == 0 {
		return fmt.Errorf("entity %s: no columns", e.Name)
	}

	seen := make(map[string]bool)
	for _, c := range e.Columns {
		if !identRe.MatchString(c.Name) {
			return fmt.Errorf("entity %s: invalid column name %q", e.Name, c.Name)
		}
		if seen[c.Name] {
			return fmt.Errorf("entity %s: duplicate column %s", e.Name, c.Name)
		}
		seen[c.Name] = true

		switch c.Type {
		case TypeString, TypeNumber, TypeBoolean, TypeTimestamp, TypeArray:
		default:
			return fmt.Errorf("entity %s: column %s has unknown type %q", e.Name, c.Name, c.Type)
		}

		switch c.Format {
		case FormatNone:
		case FormatDateTimeNoYear, FormatOverlapRangeStart, FormatOverlapRangeEnd:
			if c.Type != TypeTimestamp {
				return fmt.Errorf("entity %s: format %s requires a timestamp column, %s is %s", e.Name, c.Format, c.Name, c.Type)
			}
		default:
			return fmt.Errorf("entity %s: column %s has unknown format %q", e.Name, c.Name, c.Format)
		}

		if c.GroupBehavior != "" && !contains(GroupBehaviors, strings.ToUpper(c.GroupBehavior)) {
			return fmt.Errorf("entity %s: column %s has unknown group behavior %q", e.Name, c.Name, c.GroupBehavior)
		}
		for _, expr := range []string{c.GroupingExpression, c.AggregationExpression} {
			if strings.ContainsAny(expr, ";$") {
				return fmt.Errorf("entity %s: column %s expression may not contain ';' or '$'", e.Name, c.Name)
			}
		}
	}

	for _, c := range e.Columns {
		if c.Format != FormatOverlapRangeStart {
			continue
		}
		end, ok := e.Column(c.RangeEnd)
		if !ok || end.Format != FormatOverlapRangeEnd {
			return fmt.Errorf("entity %s: column %s needs range_end naming a %s column", e.Name, c.Name, FormatOverlapRangeEnd)
		}
	}
	return nil
}

// IsIdentifier reports whether s is a bare SQL identifier
func IsIdentifier(s string) bool {
	return identRe.MatchString(s)
}

// ValidGranularity reports whether g is an accepted DATE_TRUNC unit
func ValidGranularity(g string) bool {
	return contains(Granularities, g)
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
