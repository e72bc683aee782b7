// Package webstore exposes the listing, export and report query compiler
// over HTTP.
package webstore

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/turfinme1/webstore-sub000/database/cursorpool"
	"github.com/turfinme1/webstore-sub000/internal/filter"
	"github.com/turfinme1/webstore-sub000/internal/listing"
	"github.com/turfinme1/webstore-sub000/internal/report"
	"github.com/turfinme1/webstore-sub000/internal/schema"
	x "github.com/turfinme1/webstore-sub000/internal/sqlexpr"
)

const (
	defaultExportBatch = 500
	maxReportBody      = 1 << 20
)

// Executor runs compiled statements. *cursorpool.CursorPool implements it.
type Executor interface {
	Listing(ctx context.Context, q *listing.CompiledQuery) (*cursorpool.ListingResult, error)
	Export(ctx context.Context, st x.Statement, size int, fn func([]map[string]interface{}) error) error
	Report(ctx context.Context, exp *report.Expansion, limit int) (*cursorpool.ReportResult, error)
}

// Handler serves the backoffice query endpoints
type Handler struct {
	Catalog         *schema.Catalog
	Reports         *report.Registry
	Assembler       *listing.Assembler
	Exec            Executor
	RowDisplayLimit int
	ExportBatch     int
	DebugSQL        bool

	mux *http.ServeMux
}

func NewHandler(cat *schema.Catalog, reports *report.Registry, assembler *listing.Assembler, exec Executor) *Handler {
	h := &Handler{
		Catalog:     cat,
		Reports:     reports,
		Assembler:   assembler,
		Exec:        exec,
		ExportBatch: defaultExportBatch,
	}
	mux := http.NewServeMux()
	mux.HandleFunc("GET /crud/{entity}", h.handleListing)
	mux.HandleFunc("GET /crud/{entity}/export", h.handleExport)
	mux.HandleFunc("POST /reports/{report}", h.handleReport)
	mux.HandleFunc("GET /reports/{report}/metadata", h.handleReportMetadata)
	h.mux = mux
	return h
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mux.ServeHTTP(w, r)
}

// ListingResponse is a listing page, with the compiled query when DebugSQL is on
type ListingResponse struct {
	*cursorpool.ListingResult
	Grouped  bool                   `json:"grouped"`
	Compiled *listing.CompiledQuery `json:"compiled,omitempty"`
}

// ParseParams reads filterParams, orderParams, groupParams, keyword, page
// and pageSize from the query string
func ParseParams(r *http.Request) (listing.Request, error) {
	q := r.URL.Query()
	var req listing.Request
	var err error

	if raw := q.Get("filterParams"); raw != "" {
		if req.Filters, err = filter.ParseParams([]byte(raw)); err != nil {
			return req, err
		}
	}
	if req.Order, err = listing.ParseOrder(q.Get("orderParams")); err != nil {
		return req, err
	}
	if req.Group, err = listing.ParseGroup(q.Get("groupParams")); err != nil {
		return req, err
	}
	req.Keyword = q.Get("keyword")

	if req.Page, err = intParam(q.Get("page"), "page"); err != nil {
		return req, err
	}
	if req.PageSize, err = intParam(q.Get("pageSize"), "pageSize"); err != nil {
		return req, err
	}
	return req, nil
}

func intParam(s, name string) (int, error) {
	if s == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return 0, schema.Invalid(name, "expected a non-negative integer, got %q", s)
	}
	return n, nil
}

func (h *Handler) compile(r *http.Request, export bool) (*listing.CompiledQuery, error) {
	entity, err := h.Catalog.Entity(r.PathValue("entity"))
	if err != nil {
		return nil, err
	}
	req, err := ParseParams(r)
	if err != nil {
		return nil, err
	}
	req.Export = export
	q, err := h.Assembler.Compile(entity, req)
	if err != nil {
		return nil, err
	}
	if h.DebugSQL {
		slog.Debug("compiled listing", "entity", entity.Name, "sql", q.SQL, "params", q.Params, "totals", q.AggregatedTotalSQL)
	}
	return q, nil
}

func (h *Handler) handleListing(w http.ResponseWriter, r *http.Request) {
	q, err := h.compile(r, false)
	if err != nil {
		writeError(w, err)
		return
	}
	res, err := h.Exec.Listing(r.Context(), q)
	if err != nil {
		writeError(w, err)
		return
	}
	resp := ListingResponse{ListingResult: res, Grouped: q.Grouped}
	if h.DebugSQL {
		resp.Compiled = q
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleExport streams the export view as a JSON array
func (h *Handler) handleExport(w http.ResponseWriter, r *http.Request) {
	q, err := h.compile(r, true)
	if err != nil {
		writeError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	enc := json.NewEncoder(w)
	started := false
	err = h.Exec.Export(r.Context(), q.Main(), h.ExportBatch, func(batch []map[string]interface{}) error {
		for _, row := range batch {
			sep := ","
			if !started {
				sep = "["
				started = true
			}
			if _, err := io.WriteString(w, sep); err != nil {
				return err
			}
			if err := enc.Encode(row); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil && !started {
		writeError(w, err)
		return
	}
	if err != nil {
		slog.Error("Export aborted", "entity", r.PathValue("entity"), "error", err)
		return
	}
	if !started {
		io.WriteString(w, "[")
	}
	io.WriteString(w, "]\n")
}

func (h *Handler) handleReport(w http.ResponseWriter, r *http.Request) {
	def, err := h.Reports.Get(r.PathValue("report"))
	if err != nil {
		writeError(w, err)
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxReportBody))
	if err != nil {
		writeError(w, err)
		return
	}
	inputs, err := filter.ParseParams(body)
	if err != nil {
		writeError(w, err)
		return
	}

	exp, err := report.Expand(def, inputs)
	if err != nil {
		writeError(w, err)
		return
	}
	if h.DebugSQL {
		slog.Debug("expanded report", "report", def.Key, "sql", exp.SQL, "params", exp.Params)
	}

	res, err := h.Exec.Report(r.Context(), exp, h.RowDisplayLimit)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *Handler) handleReportMetadata(w http.ResponseWriter, r *http.Request) {
	def, err := h.Reports.Get(r.PathValue("report"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, def.Metadata())
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Failed to encode response", "error", err)
	}
}

func writeError(w http.ResponseWriter, err error) {
	if schema.IsValidation(err) {
		writeJSON(w, http.StatusBadRequest, map[string]interface{}{"error": err.Error()})
		return
	}
	slog.Error("Request failed", "error", err)
	writeJSON(w, http.StatusInternalServerError, map[string]interface{}{"error": "internal server error"})
}
