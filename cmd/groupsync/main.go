package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/turfinme1/webstore-sub000/database/cursorpool"
	"github.com/turfinme1/webstore-sub000/internal/config"
	"github.com/turfinme1/webstore-sub000/internal/membership"
	"github.com/turfinme1/webstore-sub000/internal/report"
)

func main() {
	once := flag.Bool("once", false, "refresh all groups once and exit")
	flag.Parse()

	path := os.Getenv("CONFIG_PATH")
	if path == "" {
		path = config.DefaultPath
	}
	cfg, err := config.Load(path)
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

	var reports *report.Registry
	if cfg.Reports.Path == "" {
		reports, err = report.Builtin()
	} else {
		reports, err = report.Load(cfg.Reports.Path)
	}
	if err != nil {
		slog.Error("Failed to load reports", "error", err)
		os.Exit(1)
	}
	def, err := reports.Get(cfg.Membership.Report)
	if err != nil {
		slog.Error("Membership report not found", "report", cfg.Membership.Report, "error", err)
		os.Exit(1)
	}
	builder, err := membership.NewBuilder(def, cfg.Membership.Tables)
	if err != nil {
		slog.Error("Invalid membership tables", "error", err)
		os.Exit(1)
	}

	to := cfg.Timeouts()
	pool, err := cursorpool.NewCursorPool(dbCfg.ConnString(), cursorpool.Options{
		MaxConnections: cfg.CursorPool.MaxConnections,
		QueryTimeout:   to.Query,
		DebugSQL:       cfg.Server.DebugSQL,
	})
	if err != nil {
		slog.Error("Failed to initialize CursorPool", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	run := func() {
		if _, err := builder.Refresh(ctx, pool); err != nil {
			slog.Error("Membership refresh aborted", "error", err)
		}
	}

	run()
	if *once {
		return
	}

	slog.Info("Group sync running", "report", def.Key, "interval", to.Membership)
	ticker := time.NewTicker(to.Membership)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			run()
		case <-ctx.Done():
			slog.Info("Group sync stopped")
			return
		}
	}
}
