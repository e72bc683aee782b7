package cursorpool

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	x "github.com/turfinme1/webstore-sub000/internal/sqlexpr"
)

// CursorState holds the session state for a PostgreSQL cursor
type CursorState struct {
	SessionID  string
	CursorName string
	Conn       *sqlx.Conn
	Tx         *sqlx.Tx
	CreatedAt  time.Time
	LastUsed   time.Time
	Query      string
	sync.Mutex
}

// Options tunes the pool
type Options struct {
	MaxConnections int
	IdleTimeout    time.Duration
	AbsTimeout     time.Duration
	QueryTimeout   time.Duration
	DebugSQL       bool
}

func (o Options) withDefaults() Options {
	if o.MaxConnections <= 0 {
		o.MaxConnections = 10
	}
	if o.IdleTimeout <= 0 {
		o.IdleTimeout = 5 * time.Minute
	}
	if o.AbsTimeout <= 0 {
		o.AbsTimeout = time.Hour
	}
	return o
}

// CursorPool runs compiled statements and manages cursor sessions
type CursorPool struct {
	db          *sqlx.DB
	cursors     map[string]*CursorState
	mu          sync.Mutex
	opts        Options
	cleanupStop chan struct{}
	closeOnce   sync.Once
}

// NewCursorPool opens a lib/pq connection pool, tunes it and verifies it
func NewCursorPool(connStr string, opts Options) (*CursorPool, error) {
	db, err := sqlx.Open("postgres", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	opts = opts.withDefaults()

	db.SetMaxOpenConns(opts.MaxConnections)
	db.SetMaxIdleConns(opts.MaxConnections / 2)
	db.SetConnMaxLifetime(opts.AbsTimeout)
	db.SetConnMaxIdleTime(opts.IdleTimeout)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return newPool(db, opts), nil
}

// New wraps an already opened database handle
func New(db *sql.DB, opts Options) *CursorPool {
	return newPool(sqlx.NewDb(db, "postgres"), opts.withDefaults())
}

func newPool(db *sqlx.DB, opts Options) *CursorPool {
	p := &CursorPool{
		db:          db,
		cursors:     make(map[string]*CursorState),
		opts:        opts,
		cleanupStop: make(chan struct{}),
	}
	p.startCleanupRoutine()
	return p
}

// Close releases all cursors and the database handle
func (p *CursorPool) Close() error {
	p.closeOnce.Do(func() { close(p.cleanupStop) })

	p.mu.Lock()
	for sid, state := range p.cursors {
		state.Lock()
		p.removeCursor(sid, state)
		state.Unlock()
	}
	p.mu.Unlock()
	return p.db.Close()
}

func (p *CursorPool) startCleanupRoutine() {
	ticker := time.NewTicker(30 * time.Second)
	go func() {
		for {
			select {
			case <-ticker.C:
				p.cleanupTimeouts()
			case <-p.cleanupStop:
				ticker.Stop()
				return
			}
		}
	}()
}

func (p *CursorPool) cleanupTimeouts() {
	p.mu.Lock()
	defer p.mu.Unlock()

	now := time.Now()
	for sid, state := range p.cursors {
		state.Lock()
		if now.Sub(state.CreatedAt) > p.opts.AbsTimeout || now.Sub(state.LastUsed) > p.opts.IdleTimeout {
			slog.Info("Cleaning up expired cursor", "cursorname", state.CursorName)
			p.removeCursor(sid, state)
		}
		state.Unlock()
	}
}

func (p *CursorPool) removeCursor(sid string, state *CursorState) {
	if state.Tx != nil {
		state.Tx.Rollback()
	}
	if state.Conn != nil {
		state.Conn.Close()
	}
	delete(p.cursors, sid)
}

// Release closes the cursor of a session, if any
func (p *CursorPool) Release(sid string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if state, ok := p.cursors[sid]; ok {
		state.Lock()
		p.removeCursor(sid, state)
		state.Unlock()
	}
}

// InitializeCursor declares a forward-only cursor over st for session sid, or
// returns the session's existing cursor
func (p *CursorPool) InitializeCursor(ctx context.Context, sid string, st x.Statement) (*CursorState, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if state, exists := p.cursors[sid]; exists {
		state.Lock()
		defer state.Unlock()
		state.LastUsed = time.Now()
		return state, nil
	}

	if len(p.cursors) >= p.opts.MaxConnections {
		return nil, fmt.Errorf("cursor pool capacity reached (max %d)", p.opts.MaxConnections)
	}

	conn, err := p.db.Connx(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get connection: %w", err)
	}

	tx, err := conn.BeginTxx(ctx, &sql.TxOptions{ReadOnly: true})
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to start transaction: %w", err)
	}

	cursorName := "cur_" + uuid.New().String()[:8]
	declareSQL := fmt.Sprintf("DECLARE %s NO SCROLL CURSOR FOR %s", pq.QuoteIdentifier(cursorName), st.SQL)
	p.debug("declare cursor", declareSQL, st.Params)

	if _, err := tx.ExecContext(ctx, declareSQL, st.Params...); err != nil {
		tx.Rollback()
		conn.Close()
		return nil, fmt.Errorf("failed to declare cursor: %w", err)
	}

	now := time.Now()
	state := &CursorState{
		SessionID:  sid,
		CursorName: cursorName,
		Conn:       conn,
		Tx:         tx,
		CreatedAt:  now,
		LastUsed:   now,
		Query:      st.SQL,
	}
	p.cursors[sid] = state
	return state, nil
}

func fetchQuery(cursorName string, size int) string {
	return fmt.Sprintf("FETCH FORWARD %d FROM %s;", size, pq.QuoteIdentifier(cursorName))
}

// FetchPage reads the next count rows from the session's cursor
func (p *CursorPool) FetchPage(ctx context.Context, sid string, count int) ([]map[string]interface{}, error) {
	p.mu.Lock()
	state, ok := p.cursors[sid]
	p.mu.Unlock()

	if !ok {
		return nil, fmt.Errorf("no active cursor for session %s", sid)
	}

	state.Lock()
	defer state.Unlock()
	state.LastUsed = time.Now()

	rows, err := state.Tx.QueryxContext(ctx, fetchQuery(state.CursorName, count))
	if err != nil {
		return nil, fmt.Errorf("fetch failed: %w", err)
	}
	defer rows.Close()

	return scanRows(rows)
}

// Query runs st without a cursor
func (p *CursorPool) Query(ctx context.Context, st x.Statement) ([]map[string]interface{}, error) {
	ctx, cancel := p.withTimeout(ctx)
	defer cancel()

	p.debug("query", st.SQL, st.Params)
	rows, err := p.db.QueryxContext(ctx, st.SQL, st.Params...)
	if err != nil {
		return nil, fmt.Errorf("query failed: %w", err)
	}
	defer rows.Close()

	return scanRows(rows)
}

// WithTx runs fn inside a transaction, committing when fn succeeds
func (p *CursorPool) WithTx(ctx context.Context, fn func(tx *sqlx.Tx) error) error {
	tx, err := p.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to start transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			slog.Error("Rollback failed", "error", rbErr)
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit failed: %w", err)
	}
	return nil
}

func (p *CursorPool) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if p.opts.QueryTimeout > 0 {
		return context.WithTimeout(ctx, p.opts.QueryTimeout)
	}
	return context.WithCancel(ctx)
}

func (p *CursorPool) debug(msg, query string, params []interface{}) {
	if p.opts.DebugSQL {
		slog.Debug(msg, "sql", query, "params", params)
	}
}

func scanRows(rows *sqlx.Rows) ([]map[string]interface{}, error) {
	results := []map[string]interface{}{}
	for rows.Next() {
		row := make(map[string]interface{})
		if err := rows.MapScan(row); err != nil {
			return nil, err
		}
		for col, val := range row {
			if b, ok := val.([]byte); ok {
				row[col] = string(b)
			}
		}
		results = append(results, row)
	}
	return results, rows.Err()
}
