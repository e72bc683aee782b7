package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	webstore "github.com/turfinme1/webstore-sub000"
	"github.com/turfinme1/webstore-sub000/database/cursorpool"
	"github.com/turfinme1/webstore-sub000/internal/config"
	"github.com/turfinme1/webstore-sub000/internal/listing"
	"github.com/turfinme1/webstore-sub000/internal/report"
	"github.com/turfinme1/webstore-sub000/internal/schema"
)

func configPath() string {
	if p := os.Getenv("CONFIG_PATH"); p != "" {
		return p
	}
	return config.DefaultPath
}

func loadReports(path string) (*report.Registry, error) {
	if path == "" {
		return report.Builtin()
	}
	return report.Load(path)
}

func main() {
	cfg, err := config.Load(configPath())
	if err != nil {
		slog.Error("Failed to load config", "error", err)
		os.Exit(1)
	}
	if cfg.Server.DebugSQL {
		slog.SetLogLoggerLevel(slog.LevelDebug)
	}

	dbCfg, err := cfg.DefaultDatabase()
	if err != nil {
		slog.Error("No database configured", "error", err)
		os.Exit(1)
	}

	if cfg.Catalog.Path == "" {
		slog.Error("catalog.path or CATALOG_PATH must be set")
		os.Exit(1)
	}
	cat, err := schema.Load(cfg.Catalog.Path)
	if err != nil {
		slog.Error("Failed to load catalog", "path", cfg.Catalog.Path, "error", err)
		os.Exit(1)
	}
	reports, err := loadReports(cfg.Reports.Path)
	if err != nil {
		slog.Error("Failed to load reports", "error", err)
		os.Exit(1)
	}

	to := cfg.Timeouts()
	pool, err := cursorpool.NewCursorPool(dbCfg.ConnString(), cursorpool.Options{
		MaxConnections: cfg.CursorPool.MaxConnections,
		IdleTimeout:    to.Idle,
		AbsTimeout:     to.Abs,
		QueryTimeout:   to.Query,
		DebugSQL:       cfg.Server.DebugSQL,
	})
	if err != nil {
		slog.Error("Failed to initialize CursorPool", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	h := webstore.NewHandler(cat, reports, listing.NewAssembler(cfg.Listing.DefaultPageSize, cfg.Listing.MaxPageSize), pool)
	h.RowDisplayLimit = cfg.Reports.RowDisplayLimit
	h.DebugSQL = cfg.Server.DebugSQL

	srv := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	fmt.Printf("%s starting at http://localhost:%s (%d entities, reports: %v)\n",
		cfg.Application.Name, cfg.Server.Port, len(cat.Entities), reports.Keys())
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("Server error", "error", err)
		os.Exit(1)
	}
}
