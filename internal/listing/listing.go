// Package listing assembles the paginated listing query for an entity and the
// companion aggregated-total query over the same filtered set.
package listing

import (
	"fmt"
	"math"
	"strings"

	sq "github.com/Masterminds/squirrel"

	"github.com/turfinme1/webstore-sub000/internal/filter"
	"github.com/turfinme1/webstore-sub000/internal/grouping"
	"github.com/turfinme1/webstore-sub000/internal/schema"
	x "github.com/turfinme1/webstore-sub000/internal/sqlexpr"
)

const (
	DefaultPageSize = 10
	countColumn     = "count"
)

// OrderSpec is one ORDER BY item
type OrderSpec struct {
	Field     string
	Direction string
}

// GroupSpec selects a grouping dimension; Granularity applies to timestamps
type GroupSpec struct {
	Column      string `json:"column"`
	Granularity string `json:"granularity,omitempty"`
}

// Request is everything the caller asked for in one listing call
type Request struct {
	Filters  map[string]filter.Value
	Keyword  string
	Order    []OrderSpec
	Group    []GroupSpec
	Page     int
	PageSize int
	Export   bool
}

// CompiledQuery is the listing query, its parameters and the aggregated-total
// query. Both queries share Params.
type CompiledQuery struct {
	SQL                string        `json:"query"`
	Params             []interface{} `json:"searchValues"`
	AggregatedTotalSQL string        `json:"aggregatedTotalQuery,omitempty"`
	Grouped            bool          `json:"grouped"`
	Dimensions         []string      `json:"dimensions,omitempty"`
	Page               int           `json:"page"`
	PageSize           int           `json:"pageSize"`
}

func (c *CompiledQuery) Main() x.Statement {
	return x.Statement{SQL: c.SQL, Params: c.Params}
}

func (c *CompiledQuery) Totals() x.Statement {
	return x.Statement{SQL: c.AggregatedTotalSQL, Params: c.Params}
}

// Assembler compiles listing requests. It holds only configuration and is
// safe for concurrent use.
type Assembler struct {
	DefaultPageSize int
	MaxPageSize     int
}

func NewAssembler(defaultPageSize, maxPageSize int) *Assembler {
	if defaultPageSize <= 0 {
		defaultPageSize = DefaultPageSize
	}
	return &Assembler{DefaultPageSize: defaultPageSize, MaxPageSize: maxPageSize}
}

// Compile validates req against entity and builds both queries
func (a *Assembler) Compile(entity *schema.Entity, req Request) (*CompiledQuery, error) {
	dims, err := resolveGroups(entity, req.Group)
	if err != nil {
		return nil, err
	}
	grouped := len(dims) > 0
	if err := validateOrder(entity, req.Order, grouped); err != nil {
		return nil, err
	}
	page, size := a.page(req)
	if !req.Export && int64(page-1) > math.MaxInt64/int64(size) {
		return nil, schema.Invalid("page", "page %d is out of range for page size %d", page, size)
	}

	preds, err := filter.CompileAll(entity, req.Filters, req.Keyword)
	if err != nil {
		return nil, err
	}
	where, err := x.Render(preds)
	if err != nil {
		return nil, err
	}

	columns, err := selectColumns(entity, dims)
	if err != nil {
		return nil, err
	}
	relation := entity.Relation(req.Export)

	main := sq.Select(columns...).
		From(relation).
		Where(sq.Expr(where.SQL, where.Params...))

	active := grouping.Active(dims)
	if grouped {
		groupBy, err := text(grouping.Sets(grouping.Positions(active)))
		if err != nil {
			return nil, err
		}
		main = main.GroupBy(groupBy)
	}
	main = main.OrderBy(orderBy(entity, req.Order, active)...)

	if !req.Export {
		main = main.Limit(uint64(size)).Offset(uint64(int64(page-1) * int64(size)))
	}

	sqlText, params, err := main.ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to assemble listing query: %w", err)
	}

	totals := sq.Select(totalColumns(entity)...).
		From(relation).
		Where(sq.Expr(where.SQL, where.Params...))
	totalsSQL, _, err := totals.ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to assemble aggregated total query: %w", err)
	}

	if params == nil {
		params = []interface{}{}
	}
	out := &CompiledQuery{
		SQL:                sqlText,
		Params:             params,
		AggregatedTotalSQL: totalsSQL,
		Grouped:            grouped,
		Page:               page,
		PageSize:           size,
	}
	for _, d := range active {
		out.Dimensions = append(out.Dimensions, d.Name)
	}
	if err := out.Main().Check(); err != nil {
		return nil, err
	}
	if err := out.Totals().Check(); err != nil {
		return nil, err
	}
	return out, nil
}

func (a *Assembler) page(req Request) (int, int) {
	page := req.Page
	if page < 1 {
		page = 1
	}
	size := req.PageSize
	if size <= 0 {
		size = a.DefaultPageSize
		if size <= 0 {
			size = DefaultPageSize
		}
	}
	if a.MaxPageSize > 0 && size > a.MaxPageSize {
		size = a.MaxPageSize
	}
	return page, size
}

// resolveGroups validates group specs and returns one dimension per column
// in the order requested
func resolveGroups(entity *schema.Entity, specs []GroupSpec) ([]grouping.Dimension, error) {
	var dims []grouping.Dimension
	seen := make(map[string]bool)
	for _, g := range specs {
		col, ok := entity.Column(g.Column)
		if !ok {
			return nil, schema.Invalid(g.Column, "unknown group field for %s", entity.Name)
		}
		if !col.Groupable {
			return nil, schema.Invalid(g.Column, "field is not groupable")
		}
		if seen[g.Column] {
			continue
		}
		seen[g.Column] = true

		var expr x.Node = x.Raw(col.GroupExpr())
		if col.Type == schema.TypeTimestamp && g.Granularity != "" {
			if !schema.ValidGranularity(g.Granularity) {
				return nil, schema.Invalid(g.Column, "invalid granularity %q", g.Granularity)
			}
			expr = x.Call("DATE_TRUNC", x.Literal(g.Granularity), expr)
		}
		dims = append(dims, grouping.Dimension{
			Name:      col.Name,
			Expr:      expr,
			Position:  position(entity, col.Name),
			Groupable: true,
			Selected:  true,
		})
	}
	return dims, nil
}

func validateOrder(entity *schema.Entity, order []OrderSpec, grouped bool) error {
	for _, o := range order {
		_, declared := entity.Column(o.Field)
		switch {
		case declared:
		case grouped && o.Field == countColumn:
		case !grouped && o.Field == entity.Key():
		default:
			return schema.Invalid(o.Field, "unknown sort field for %s", entity.Name)
		}
		dir := strings.ToUpper(o.Direction)
		if dir != "" && dir != "ASC" && dir != "DESC" {
			return schema.Invalid(o.Field, "invalid sort direction %q", o.Direction)
		}
	}
	return nil
}

func selectColumns(entity *schema.Entity, dims []grouping.Dimension) ([]string, error) {
	if len(dims) == 0 {
		cols := make([]string, 0, len(entity.Columns))
		for _, c := range entity.Columns {
			cols = append(cols, c.Name)
		}
		return cols, nil
	}

	byName := make(map[string]grouping.Dimension, len(dims))
	for _, d := range dims {
		byName[d.Name] = d
	}

	cols := make([]string, 0, len(entity.Columns)+2)
	for _, c := range entity.Columns {
		var node x.Node
		if d, ok := byName[c.Name]; ok {
			node = d.Expr
		} else if c.GroupBehavior != "" {
			node = x.Call(strings.ToUpper(c.GroupBehavior), x.Raw(c.AggExpr()))
		} else {
			// keeps the row shape stable across rollup levels
			node = x.Literal("All")
		}
		s, err := text(x.As{Expr: node, Alias: c.Name})
		if err != nil {
			return nil, err
		}
		cols = append(cols, s)
	}

	flag, err := text(x.As{Expr: grouping.Flag(grouping.Active(dims)), Alias: grouping.TotalFlag})
	if err != nil {
		return nil, err
	}
	return append(cols, "COUNT(*) AS "+countColumn, flag), nil
}

func orderBy(entity *schema.Entity, order []OrderSpec, active []grouping.Dimension) []string {
	var parts []string
	if len(active) > 0 {
		parts = append(parts, grouping.TotalFlag+" DESC")
	}
	for _, o := range order {
		dir := strings.ToUpper(o.Direction)
		if dir == "" {
			dir = "ASC"
		}
		parts = append(parts, o.Field+" "+dir)
	}
	if len(order) == 0 {
		if len(active) == 0 {
			parts = append(parts, entity.Key()+" ASC")
		}
		for _, d := range active {
			parts = append(parts, d.Name+" ASC")
		}
	}
	return parts
}

func totalColumns(entity *schema.Entity) []string {
	cols := []string{"COUNT(*) AS total_rows"}
	for _, c := range entity.Columns {
		if c.GroupBehavior != "" {
			cols = append(cols, fmt.Sprintf("SUM(%s) AS total_%s", c.AggExpr(), c.Name))
		}
	}
	return cols
}

func position(entity *schema.Entity, name string) int {
	for i, c := range entity.Columns {
		if c.Name == name {
			return i + 1
		}
	}
	return 0
}

// text renders a parameter-free node
func text(n x.Node) (string, error) {
	st, err := x.Render(n)
	if err != nil {
		return "", err
	}
	if len(st.Params) > 0 {
		return "", fmt.Errorf("unexpected parameters in %q", st.SQL)
	}
	return st.SQL, nil
}
