package membership

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/google/uuid"

	"github.com/turfinme1/webstore-sub000/internal/filter"
	x "github.com/turfinme1/webstore-sub000/internal/sqlexpr"
)

// Store runs membership statements. *cursorpool.CursorPool implements it.
type Store interface {
	Query(ctx context.Context, st x.Statement) ([]map[string]interface{}, error)
	ApplyPlan(ctx context.Context, plan *Plan) error
}

// Summary counts the outcome of one refresh run
type Summary struct {
	RunID     string
	Refreshed int
	Failed    int
}

// Refresh recomputes the members of every active group. A group that fails
// is logged and skipped; only failing to list groups aborts the run.
func (b *Builder) Refresh(ctx context.Context, store Store) (Summary, error) {
	sum := Summary{RunID: uuid.NewString()}
	log := slog.With("run", sum.RunID)

	rows, err := store.Query(ctx, b.ActiveGroups())
	if err != nil {
		return sum, fmt.Errorf("failed to list groups: %w", err)
	}

	for _, row := range rows {
		if err := ctx.Err(); err != nil {
			return sum, err
		}
		g, err := DecodeGroup(row)
		if err == nil {
			var plan *Plan
			if plan, err = b.Plan(g); err == nil {
				err = store.ApplyPlan(ctx, plan)
			}
		}
		if err != nil {
			sum.Failed++
			log.Error("Group refresh failed", "group", row["id"], "error", err)
			continue
		}
		sum.Refreshed++
	}
	log.Info("Membership refresh finished", "refreshed", sum.Refreshed, "failed", sum.Failed)
	return sum, nil
}

// DecodeGroup reads an id, name, filters row. filters holds the saved
// report inputs as a JSON object.
func DecodeGroup(row map[string]interface{}) (Group, error) {
	var g Group
	switch id := row["id"].(type) {
	case int64:
		g.ID = id
	case int:
		g.ID = int64(id)
	case string:
		n, err := strconv.ParseInt(id, 10, 64)
		if err != nil {
			return g, fmt.Errorf("bad group id %q", id)
		}
		g.ID = n
	default:
		return g, fmt.Errorf("bad group id %v", row["id"])
	}
	if name, ok := row["name"].(string); ok {
		g.Name = name
	}

	var raw []byte
	switch f := row["filters"].(type) {
	case nil:
	case string:
		raw = []byte(f)
	case []byte:
		raw = f
	default:
		return g, fmt.Errorf("group %d: unexpected filters type %T", g.ID, f)
	}
	filters, err := filter.ParseParams(raw)
	if err != nil {
		return g, fmt.Errorf("group %d: %w", g.ID, err)
	}
	g.Filters = filters
	return g, nil
}
