// Package config loads config.yaml with ${ENV} expansion after reading .env.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/turfinme1/webstore-sub000/internal/membership"
)

const DefaultPath = "config.yaml"

type Database struct {
	Name     string `yaml:"name"`
	Host     string `yaml:"host"`
	Port     string `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Database string `yaml:"database"`
	Schema   string `yaml:"schema"`
	SSLMode  string `yaml:"sslmode"`
	Default  bool   `yaml:"default"`
}

// ConnString renders a lib/pq keyword/value connection string
func (d Database) ConnString() string {
	ssl := d.SSLMode
	if ssl == "" {
		ssl = "disable"
	}
	s := fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.Database, ssl)
	if d.Schema != "" {
		s += fmt.Sprintf(" search_path=%s,public", d.Schema)
	}
	return s
}

type Config struct {
	Application struct {
		Name    string `yaml:"name"`
		Version string `yaml:"version"`
	} `yaml:"application"`
	Server struct {
		Port     string `yaml:"port"`
		DebugSQL bool   `yaml:"debug_sql"`
	} `yaml:"server"`
	Database []Database `yaml:"database"`
	Catalog  struct {
		Path string `yaml:"path"`
	} `yaml:"catalog"`
	Reports struct {
		Path            string `yaml:"path"` // empty means the built-in reports
		RowDisplayLimit int    `yaml:"row_display_limit"`
	} `yaml:"reports"`
	Listing struct {
		DefaultPageSize int `yaml:"default_page_size"`
		MaxPageSize     int `yaml:"max_page_size"`
	} `yaml:"listing"`
	CursorPool struct {
		MaxConnections int    `yaml:"max_connections"`
		IdleTimeout    string `yaml:"idle_timeout"`
		AbsTimeout     string `yaml:"abs_timeout"`
		QueryTimeout   string `yaml:"query_timeout"`
	} `yaml:"cursorpool"`
	Membership struct {
		Interval string            `yaml:"interval"`
		Report   string            `yaml:"report"`
		Tables   membership.Tables `yaml:"tables"`
	} `yaml:"membership"`
}

// Load reads .env (if any), expands environment references in path and
// decodes the result, filling defaults
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(data)
}

func Parse(data []byte) (*Config, error) {
	expanded := os.ExpandEnv(string(data))
	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	cfg.applyDefaults()
	if _, err := cfg.durations(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Server.Port == "" {
		c.Server.Port = "8080"
	}
	if os.Getenv("DEBUG_SQL") == "true" {
		c.Server.DebugSQL = true
	}
	if p := os.Getenv("CATALOG_PATH"); p != "" {
		c.Catalog.Path = p
	}
	if c.Reports.RowDisplayLimit == 0 {
		c.Reports.RowDisplayLimit = 10000
	}
	if c.Listing.DefaultPageSize == 0 {
		c.Listing.DefaultPageSize = 10
	}
	if c.Listing.MaxPageSize == 0 {
		c.Listing.MaxPageSize = 1000
	}
	if c.CursorPool.MaxConnections == 0 {
		c.CursorPool.MaxConnections = 10
	}
	if c.Membership.Report == "" {
		c.Membership.Report = "report-users"
	}
}

// DefaultDatabase returns the entry marked default, or the first one
func (c *Config) DefaultDatabase() (Database, error) {
	for _, d := range c.Database {
		if d.Default {
			return d, nil
		}
	}
	if len(c.Database) > 0 {
		return c.Database[0], nil
	}
	return Database{}, fmt.Errorf("no database configured")
}

// Timeouts are the parsed duration settings
type Timeouts struct {
	Idle       time.Duration
	Abs        time.Duration
	Query      time.Duration
	Membership time.Duration
}

func (c *Config) Timeouts() Timeouts {
	t, _ := c.durations()
	return t
}

func (c *Config) durations() (Timeouts, error) {
	t := Timeouts{
		Idle:       5 * time.Minute,
		Abs:        time.Hour,
		Query:      30 * time.Second,
		Membership: 15 * time.Minute,
	}
	for _, d := range []struct {
		name  string
		value string
		dst   *time.Duration
	}{
		{"cursorpool.idle_timeout", c.CursorPool.IdleTimeout, &t.Idle},
		{"cursorpool.abs_timeout", c.CursorPool.AbsTimeout, &t.Abs},
		{"cursorpool.query_timeout", c.CursorPool.QueryTimeout, &t.Query},
		{"membership.interval", c.Membership.Interval, &t.Membership},
	} {
		if d.value == "" {
			continue
		}
		v, err := time.ParseDuration(d.value)
		if err != nil {
			return t, fmt.Errorf("invalid %s %q: %w", d.name, d.value, err)
		}
		*d.dst = v
	}
	return t, nil
}
