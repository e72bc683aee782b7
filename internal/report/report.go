// Package report holds the analytical report definitions and expands their
// SQL templates against request inputs.
package report

import (
	_ "embed"
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/turfinme1/webstore-sub000/internal/schema"
	x "github.com/turfinme1/webstore-sub000/internal/sqlexpr"
)

//go:embed reports.yaml
var builtin []byte

const (
	// GroupingSetsToken renders GROUPING SETS over the active dimensions
	GroupingSetsToken = "grouping_sets"
	// TotalFlagToken renders the grand-total row marker
	TotalFlagToken = "total_flag"

	valueToken = "FILTER_VALUE"
)

// Header is one displayed report column
type Header struct {
	Key    string `json:"key" yaml:"key"`
	Label  string `json:"label" yaml:"label"`
	Format string `json:"format,omitempty" yaml:"format,omitempty"`
}

type UIConfig struct {
	Title        string   `json:"title" yaml:"title"`
	DataEndpoint string   `json:"dataEndpoint" yaml:"data_endpoint"`
	Headers      []Header `json:"headers" yaml:"headers"`
}

// FilterDescriptor declares one report input: how it groups and how it filters
type FilterDescriptor struct {
	Key                     string           `json:"key" yaml:"key"`
	Label                   string           `json:"label,omitempty" yaml:"label,omitempty"`
	Type                    schema.FieldType `json:"type" yaml:"type"`
	Groupable               bool             `json:"groupable,omitempty" yaml:"groupable,omitempty"`
	GroupingExpression      string           `json:"groupingExpression" yaml:"grouping_expression"`
	FilterExpression        string           `json:"filterExpression" yaml:"filter_expression"`
	MinimumFilterExpression string           `json:"minimumFilterExpression,omitempty" yaml:"minimum_filter_expression,omitempty"`
	MaximumFilterExpression string           `json:"maximumFilterExpression,omitempty" yaml:"maximum_filter_expression,omitempty"`

	filter, min, max *x.Template
}

// Definition is a named report
type Definition struct {
	Key      string             `json:"key" yaml:"key"`
	UIConfig UIConfig           `json:"reportUIConfig" yaml:"ui_config"`
	SQL      string             `json:"-" yaml:"sql"`
	Filters  []FilterDescriptor `json:"reportFilters" yaml:"filters"`

	template *x.Template
}

// Metadata is what clients see of a report
type Metadata struct {
	UIConfig UIConfig           `json:"reportUIConfig"`
	Filters  []FilterDescriptor `json:"reportFilters"`
}

func (d *Definition) Metadata() Metadata {
	return Metadata{UIConfig: d.UIConfig, Filters: d.Filters}
}

// Filter looks up a descriptor by key
func (d *Definition) Filter(key string) (FilterDescriptor, bool) {
	for _, f := range d.Filters {
		if f.Key == key {
			return f, true
		}
	}
	return FilterDescriptor{}, false
}

// prepare parses every template once and checks that all tokens are known
func (d *Definition) prepare() error {
	if strings.TrimSpace(d.SQL) == "" {
		return fmt.Errorf("report %s: empty sql", d.Key)
	}
	if n := x.Placeholders(d.SQL); n > 0 {
		return fmt.Errorf("report %s: positional placeholders are not allowed in templates", d.Key)
	}

	known := map[string]bool{GroupingSetsToken: true, TotalFlagToken: true}
	for i := range d.Filters {
		f := &d.Filters[i]
		if !schema.IsIdentifier(f.Key) {
			return fmt.Errorf("report %s: invalid filter key %q", d.Key, f.Key)
		}
		if known[f.Key+"_filter_expression"] {
			return fmt.Errorf("report %s: duplicate filter key %s", d.Key, f.Key)
		}
		switch f.Type {
		case schema.TypeString, schema.TypeNumber, schema.TypeBoolean, schema.TypeTimestamp:
		default:
			return fmt.Errorf("report %s: filter %s has unsupported type %q", d.Key, f.Key, f.Type)
		}
		if strings.TrimSpace(f.GroupingExpression) == "" {
			return fmt.Errorf("report %s: filter %s has no grouping expression", d.Key, f.Key)
		}

		var err error
		if f.filter, err = valueTemplate(d.Key, f.Key, f.FilterExpression, true); err != nil {
			return err
		}
		if f.min, err = valueTemplate(d.Key, f.Key, f.MinimumFilterExpression, false); err != nil {
			return err
		}
		if f.max, err = valueTemplate(d.Key, f.Key, f.MaximumFilterExpression, false); err != nil {
			return err
		}
		known[f.Key+"_filter_expression"] = true
		known[f.Key+"_grouping_expression"] = true
	}

	d.template = x.ParseTemplate(d.SQL)
	for _, slot := range d.template.Slots() {
		if !known[slot] {
			return fmt.Errorf("report %s: unknown token $%s$", d.Key, slot)
		}
	}
	return nil
}

func valueTemplate(report, key, expr string, required bool) (*x.Template, error) {
	if strings.TrimSpace(expr) == "" {
		if required {
			return nil, fmt.Errorf("report %s: filter %s has no filter expression", report, key)
		}
		return nil, nil
	}
	if x.Placeholders(expr) > 0 {
		return nil, fmt.Errorf("report %s: filter %s uses positional placeholders", report, key)
	}
	t := x.ParseTemplate(expr)
	slots := t.Slots()
	if len(slots) != 1 || slots[0] != valueToken {
		return nil, fmt.Errorf("report %s: filter %s expression must use only $%s$", report, key, valueToken)
	}
	return t, nil
}

// Registry is a read-only lookup of report definitions by key
type Registry struct {
	reports map[string]*Definition
}

type catalogFile struct {
	Reports []*Definition `yaml:"reports"`
}

// Builtin returns the registry of the reports shipped with the binary
func Builtin() (*Registry, error) {
	return Parse(builtin)
}

// Load reads a report catalog from a YAML file
func Load(path string) (*Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read report catalog: %w", err)
	}
	return Parse(data)
}

func Parse(data []byte) (*Registry, error) {
	var file catalogFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse report catalog: %w", err)
	}
	return NewRegistry(file.Reports...)
}

func NewRegistry(defs ...*Definition) (*Registry, error) {
	r := &Registry{reports: make(map[string]*Definition, len(defs))}
	for _, d := range defs {
		if _, dup := r.reports[d.Key]; dup {
			return nil, fmt.Errorf("duplicate report %s", d.Key)
		}
		if err := d.prepare(); err != nil {
			return nil, err
		}
		r.reports[d.Key] = d
	}
	return r, nil
}

// Get returns the report registered under key
func (r *Registry) Get(key string) (*Definition, error) {
	d, ok := r.reports[key]
	if !ok {
		return nil, schema.Invalid("report", "unknown report %q", key)
	}
	return d, nil
}

func (r *Registry) Keys() []string {
	keys := make([]string, 0, len(r.reports))
	for k := range r.reports {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
