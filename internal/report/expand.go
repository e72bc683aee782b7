package report

import (
	"errors"
	"fmt"

	"github.com/turfinme1/webstore-sub000/internal/filter"
	"github.com/turfinme1/webstore-sub000/internal/grouping"
	"github.com/turfinme1/webstore-sub000/internal/schema"
	x "github.com/turfinme1/webstore-sub000/internal/sqlexpr"
)

// Input name suffixes, prefixed by the filter key
const (
	FilterValueSuffix    = "_filter_value"
	MinimumValueSuffix   = "_minimum_filter_value"
	MaximumValueSuffix   = "_maximum_filter_value"
	GroupingSelectSuffix = "_grouping_select_value"
)

// Expansion is an expanded report query
type Expansion struct {
	x.Statement
	Dimensions []string `json:"dimensions,omitempty"`
}

// Expand resolves every token of def's template against inputs and returns
// the statement with its parameters in placeholder order. Inputs that no
// descriptor reads are ignored.
func Expand(def *Definition, inputs map[string]filter.Value) (*Expansion, error) {
	if def.template == nil {
		if err := def.prepare(); err != nil {
			return nil, err
		}
	}

	anyGrouping := false
	for _, f := range def.Filters {
		if selected(inputs[f.Key+GroupingSelectSuffix]) {
			anyGrouping = true
			break
		}
	}

	bindings := make(map[string]x.Node)
	var dims []grouping.Dimension
	for _, f := range def.Filters {
		g, isSelected, err := groupingExpr(f, inputs[f.Key+GroupingSelectSuffix], anyGrouping)
		if err != nil {
			return nil, err
		}
		pred, err := filterExpr(f, inputs)
		if err != nil {
			return nil, err
		}
		bindings[f.Key+"_grouping_expression"] = g
		bindings[f.Key+"_filter_expression"] = pred
		if f.Groupable || isSelected {
			dims = append(dims, grouping.Dimension{Name: f.Key, Expr: g, Groupable: f.Groupable, Selected: isSelected})
		}
	}

	active := grouping.Active(dims)
	bindings[GroupingSetsToken] = grouping.Sets(grouping.Exprs(active))
	bindings[TotalFlagToken] = grouping.Flag(active)

	// only tokens present in this template are bound
	for name := range bindings {
		if !def.template.HasSlot(name) {
			delete(bindings, name)
		}
	}

	st, err := x.Render(def.template.Bind(bindings))
	if err != nil {
		return nil, fmt.Errorf("failed to expand report %s: %w", def.Key, err)
	}
	if err := st.Check(); err != nil {
		return nil, fmt.Errorf("failed to expand report %s: %w", def.Key, err)
	}

	out := &Expansion{Statement: st}
	for _, d := range active {
		out.Dimensions = append(out.Dimensions, d.Name)
	}
	return out, nil
}

// groupingExpr returns the node for $key_grouping_expression$ and whether the
// caller grouped by this descriptor
func groupingExpr(f FilterDescriptor, v filter.Value, anyGrouping bool) (x.Node, bool, error) {
	raw := x.Raw(f.GroupingExpression)
	if selected(v) {
		if f.Type != schema.TypeTimestamp {
			return raw, true, nil
		}
		gran, _ := v.Scalar.(string)
		if !schema.ValidGranularity(gran) {
			return nil, false, schema.Invalid(f.Key+GroupingSelectSuffix, "invalid granularity %q", fmt.Sprint(v.Scalar))
		}
		return x.Call("DATE_TRUNC", x.Literal(gran), raw), true, nil
	}
	if anyGrouping {
		return x.Literal("All"), false, nil
	}
	return raw, false, nil
}

// filterExpr ANDs the exact, minimum and maximum expressions whose inputs are
// present; TRUE when none are
func filterExpr(f FilterDescriptor, inputs map[string]filter.Value) (x.Node, error) {
	field := schema.FieldDescriptor{Name: f.Key, Type: f.Type}
	var parts x.And

	for _, side := range []struct {
		suffix string
		tmpl   *x.Template
	}{
		{FilterValueSuffix, f.filter},
		{MinimumValueSuffix, f.min},
		{MaximumValueSuffix, f.max},
	} {
		v := inputs[f.Key+side.suffix]
		if v.IsEmpty() {
			continue
		}
		name := f.Key + side.suffix
		if side.tmpl == nil {
			return nil, schema.Invalid(name, "report filter %s does not accept this input", f.Key)
		}
		if v.Kind != filter.Scalar {
			return nil, schema.Invalid(name, "expected a single value")
		}
		val, err := filter.Coerce(field, v.Scalar)
		if err != nil {
			var ve *schema.ValidationError
			if errors.As(err, &ve) {
				return nil, schema.Invalid(name, "%s", ve.Message)
			}
			return nil, err
		}
		parts = append(parts, side.tmpl.Bind(map[string]x.Node{valueToken: x.Arg(val)}))
	}

	switch len(parts) {
	case 0:
		return x.Raw("TRUE"), nil
	case 1:
		return parts[0], nil
	}
	wrapped := make(x.And, 0, len(parts))
	for _, p := range parts {
		wrapped = append(wrapped, paren(p))
	}
	return paren(wrapped), nil
}

func paren(n x.Node) x.Node {
	return x.Seq{x.Raw("("), n, x.Raw(")")}
}

// selected reports whether a grouping-select input is present. An explicit
// boolean false leaves the descriptor ungrouped.
func selected(v filter.Value) bool {
	if v.Kind != filter.Scalar {
		return false
	}
	if b, ok := v.Scalar.(bool); ok {
		return b
	}
	return true
}

// WithRowLimit wraps an expanded report so at most limit+1 rows come back.
// Callers that receive limit+1 rows know the display limit was exceeded.
func WithRowLimit(st x.Statement, limit int) (x.Statement, error) {
	return x.RenderAfter(st, x.Seq{
		x.Raw("SELECT * FROM ("),
		x.Raw(st.SQL),
		x.Raw(") AS report LIMIT "),
		x.Arg(limit + 1),
	})
}
