package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

const sample = `
application:
  name: webstore
server:
  port: "9090"
database:
  - name: replica
    host: replica.local
    port: "5432"
  - name: main
    host: ${WEBSTORE_TEST_DB_HOST}
    port: "5433"
    user: admin
    password: secret
    database: webstore
    schema: admin
    default: true
listing:
  max_page_size: 200
cursorpool:
  idle_timeout: 2m
  query_timeout: 5s
membership:
  interval: 1h
  tables:
    members: group_members
`

func TestParse(t *testing.T) {
	t.Setenv("WEBSTORE_TEST_DB_HOST", "db.internal")

	cfg, err := Parse([]byte(sample))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if cfg.Server.Port != "9090" {
		t.Errorf("Expected port 9090, got %s", cfg.Server.Port)
	}
	if cfg.Listing.DefaultPageSize != 10 || cfg.Listing.MaxPageSize != 200 {
		t.Errorf("Unexpected listing settings %+v", cfg.Listing)
	}
	if cfg.Membership.Report != "report-users" || cfg.Membership.Tables.Members != "group_members" {
		t.Errorf("Unexpected membership settings %+v", cfg.Membership)
	}

	db, err := cfg.DefaultDatabase()
	if err != nil {
		t.Fatal(err)
	}
	if db.Host != "db.internal" {
		t.Errorf("Expected env expansion, got host %q", db.Host)
	}
	conn := db.ConnString()
	if !strings.Contains(conn, "dbname=webstore") || !strings.Contains(conn, "search_path=admin,public") || !strings.Contains(conn, "sslmode=disable") {
		t.Errorf("Unexpected connection string %s", conn)
	}

	to := cfg.Timeouts()
	if to.Idle != 2*time.Minute || to.Abs != time.Hour || to.Query != 5*time.Second || to.Membership != time.Hour {
		t.Errorf("Unexpected timeouts %+v", to)
	}
}

func TestParseRejectsBadDuration(t *testing.T) {
	if _, err := Parse([]byte("cursorpool:\n  idle_timeout: soon\n")); err == nil {
		t.Error("Expected error for bad duration")
	}
}

func TestDefaultDatabaseMissing(t *testing.T) {
	cfg, err := Parse([]byte("server:\n  port: \"1\"\n"))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := cfg.DefaultDatabase(); err == nil {
		t.Error("Expected error when no database is configured")
	}
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("server:\n  port: \"7000\"\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Server.Port != "7000" || cfg.Reports.RowDisplayLimit != 10000 {
		t.Errorf("Unexpected config %+v", cfg.Server)
	}
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("Expected error for missing file")
	}
}
