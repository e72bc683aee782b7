// Package membership builds the statements that keep a dynamic user group's
// member list in sync with the saved report filters of the group.
package membership

import (
	"fmt"
	"strings"

	"github.com/turfinme1/webstore-sub000/internal/filter"
	"github.com/turfinme1/webstore-sub000/internal/report"
	"github.com/turfinme1/webstore-sub000/internal/schema"
	x "github.com/turfinme1/webstore-sub000/internal/sqlexpr"
)

// Tables names the group and join tables
type Tables struct {
	Groups      string `yaml:"groups"`
	Members     string `yaml:"members"`
	UserColumn  string `yaml:"user_column"`
	GroupColumn string `yaml:"group_column"`
	RowID       string `yaml:"row_id"` // id column of the report rows
}

func DefaultTables() Tables {
	return Tables{
		Groups:      "user_groups",
		Members:     "user_user_groups",
		UserColumn:  "user_id",
		GroupColumn: "user_group_id",
		RowID:       "id",
	}
}

func (t Tables) withDefaults() Tables {
	d := DefaultTables()
	if t.Groups == "" {
		t.Groups = d.Groups
	}
	if t.Members == "" {
		t.Members = d.Members
	}
	if t.UserColumn == "" {
		t.UserColumn = d.UserColumn
	}
	if t.GroupColumn == "" {
		t.GroupColumn = d.GroupColumn
	}
	if t.RowID == "" {
		t.RowID = d.RowID
	}
	return t
}

func (t Tables) Validate() error {
	for _, name := range []string{t.Groups, t.Members, t.UserColumn, t.GroupColumn, t.RowID} {
		if !schema.IsIdentifier(name) {
			return fmt.Errorf("invalid membership identifier %q", name)
		}
	}
	return nil
}

// Group is a dynamic user group and its saved report inputs
type Group struct {
	ID      int64
	Name    string
	Filters map[string]filter.Value
}

// Plan is the statements for one group, run in order inside a transaction
type Plan struct {
	GroupID int64
	Delete  x.Statement
	Insert  x.Statement
	Touch   x.Statement
}

func (p *Plan) Statements() []x.Statement {
	return []x.Statement{p.Delete, p.Insert, p.Touch}
}

// Builder renders membership plans against one report definition
type Builder struct {
	report *report.Definition
	tables Tables
}

func NewBuilder(def *report.Definition, tables Tables) (*Builder, error) {
	tables = tables.withDefaults()
	if err := tables.Validate(); err != nil {
		return nil, err
	}
	return &Builder{report: def, tables: tables}, nil
}

// ActiveGroups selects the groups to refresh
func (b *Builder) ActiveGroups() x.Statement {
	return x.Statement{
		SQL:    fmt.Sprintf("SELECT id, name, filters FROM %s WHERE is_active = TRUE ORDER BY id", b.tables.Groups),
		Params: []interface{}{},
	}
}

// Plan expands the report with the group's filters and wraps it in the
// delete, insert and touch statements. The group id is bound after the
// report parameters.
func (b *Builder) Plan(g Group) (*Plan, error) {
	inputs := make(map[string]filter.Value, len(g.Filters))
	for k, v := range g.Filters {
		// membership is per user row, never grouped
		if strings.HasSuffix(k, report.GroupingSelectSuffix) {
			continue
		}
		inputs[k] = v
	}

	exp, err := report.Expand(b.report, inputs)
	if err != nil {
		return nil, fmt.Errorf("group %d: %w", g.ID, err)
	}

	t := b.tables
	members := x.Seq{
		x.Raw("SELECT members." + t.RowID + " FROM ("),
		x.Raw(exp.SQL),
		x.Raw(") AS members WHERE members." + t.RowID + " IS NOT NULL"),
	}

	id := x.Arg(g.ID)
	del, err := x.RenderAfter(exp.Statement, x.Seq{
		x.Raw("DELETE FROM " + t.Members + " WHERE " + t.GroupColumn + " = "), id,
		x.Raw(" AND " + t.UserColumn + " NOT IN ("), members, x.Raw(")"),
	})
	if err != nil {
		return nil, err
	}

	id = x.Arg(g.ID)
	ins, err := x.RenderAfter(exp.Statement, x.Seq{
		x.Raw("INSERT INTO " + t.Members + " (" + t.UserColumn + ", " + t.GroupColumn + ") "),
		x.Raw("SELECT members." + t.RowID + ", "), id,
		x.Raw(" FROM ("), x.Raw(exp.SQL), x.Raw(") AS members WHERE members."+t.RowID+" IS NOT NULL"),
		x.Raw(" ON CONFLICT (" + t.UserColumn + ", " + t.GroupColumn + ") DO NOTHING"),
	})
	if err != nil {
		return nil, err
	}

	touch, err := x.Render(x.Seq{
		x.Raw("UPDATE " + t.Groups + " SET updated_at = NOW() WHERE id = "), x.Arg(g.ID),
	})
	if err != nil {
		return nil, err
	}

	return &Plan{GroupID: g.ID, Delete: del, Insert: ins, Touch: touch}, nil
}
