package cursorpool

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"

	"github.com/turfinme1/webstore-sub000/internal/grouping"
	"github.com/turfinme1/webstore-sub000/internal/listing"
	"github.com/turfinme1/webstore-sub000/internal/membership"
	"github.com/turfinme1/webstore-sub000/internal/report"
	x "github.com/turfinme1/webstore-sub000/internal/sqlexpr"
)

// ListingResult is one page of a listing plus totals over all matching rows
type ListingResult struct {
	Rows      []map[string]interface{}   `json:"result"`
	TotalRows int64                      `json:"count"`
	Totals    map[string]decimal.Decimal `json:"aggregationResults"`
	Page      int                        `json:"page"`
	PageSize  int                        `json:"pageSize"`
}

// ReportResult is the rows of an expanded report
type ReportResult struct {
	Rows                []map[string]interface{} `json:"rows"`
	OverRowDisplayLimit bool                     `json:"overRowDisplayLimit"`
}

// Listing runs the page query and the aggregated-total query
func (p *CursorPool) Listing(ctx context.Context, q *listing.CompiledQuery) (*ListingResult, error) {
	rows, err := p.Query(ctx, q.Main())
	if err != nil {
		return nil, err
	}
	if q.Grouped {
		if rows, err = grouping.Arrange(rows, q.Dimensions); err != nil {
			return nil, err
		}
	}

	res := &ListingResult{Rows: rows, Totals: map[string]decimal.Decimal{}, Page: q.Page, PageSize: q.PageSize}
	if q.AggregatedTotalSQL == "" {
		res.TotalRows = int64(len(rows))
		return res, nil
	}

	totals, err := p.Query(ctx, q.Totals())
	if err != nil {
		return nil, err
	}
	if len(totals) != 1 {
		return nil, fmt.Errorf("aggregated total query returned %d rows", len(totals))
	}
	if err := decodeTotals(totals[0], res); err != nil {
		return nil, err
	}
	return res, nil
}

func decodeTotals(row map[string]interface{}, res *ListingResult) error {
	for col, v := range row {
		if col == "total_rows" {
			n, err := toInt64(v)
			if err != nil {
				return fmt.Errorf("bad total_rows: %w", err)
			}
			res.TotalRows = n
			continue
		}
		if !strings.HasPrefix(col, "total_") {
			continue
		}
		name := strings.TrimPrefix(col, "total_")
		if v == nil {
			res.Totals[name] = decimal.Zero
			continue
		}
		d, err := decimal.NewFromString(fmt.Sprint(v))
		if err != nil {
			return fmt.Errorf("bad %s: %w", col, err)
		}
		res.Totals[name] = d
	}
	return nil
}

func toInt64(v interface{}) (int64, error) {
	switch n := v.(type) {
	case int64:
		return n, nil
	case int:
		return int64(n), nil
	case int32:
		return int64(n), nil
	case float64:
		return int64(n), nil
	case nil:
		return 0, nil
	}
	return strconv.ParseInt(fmt.Sprint(v), 10, 64)
}

// Report runs an expanded report capped at limit rows. The total row, when
// the report emits one, is moved last.
func (p *CursorPool) Report(ctx context.Context, exp *report.Expansion, limit int) (*ReportResult, error) {
	st := exp.Statement
	if limit > 0 {
		var err error
		if st, err = report.WithRowLimit(st, limit); err != nil {
			return nil, err
		}
	}
	rows, err := p.Query(ctx, st)
	if err != nil {
		return nil, err
	}

	res := &ReportResult{}
	if limit > 0 && len(rows) > limit {
		res.OverRowDisplayLimit = true
		rows = rows[:limit]
	}
	if rows, err = grouping.Arrange(rows, exp.Dimensions); err != nil {
		return nil, err
	}
	res.Rows = rows
	return res, nil
}

// Export streams st through a cursor in batches of size rows
func (p *CursorPool) Export(ctx context.Context, st x.Statement, size int, fn func([]map[string]interface{}) error) error {
	sid := "export-" + uuid.NewString()
	if _, err := p.InitializeCursor(ctx, sid, st); err != nil {
		return err
	}
	defer p.Release(sid)

	for {
		batch, err := p.FetchPage(ctx, sid, size)
		if err != nil {
			return err
		}
		if len(batch) == 0 {
			return nil
		}
		if err := fn(batch); err != nil {
			return err
		}
		if len(batch) < size {
			return nil
		}
	}
}

// ApplyPlan runs a membership plan in one transaction
func (p *CursorPool) ApplyPlan(ctx context.Context, plan *membership.Plan) error {
	return p.WithTx(ctx, func(tx *sqlx.Tx) error {
		for _, st := range plan.Statements() {
			p.debug("membership", st.SQL, st.Params)
			if _, err := tx.ExecContext(ctx, st.SQL, st.Params...); err != nil {
				return fmt.Errorf("group %d: %w", plan.GroupID, err)
			}
		}
		slog.Info("Group membership refreshed", "group", plan.GroupID)
		return nil
	})
}
