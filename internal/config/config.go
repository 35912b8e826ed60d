// Package config loads and validates the recbatch configuration file.
//
// The configuration supplies storage connection parameters and is consumed
// identically by the rollup engines, the export tool, and the stats batch.
// JSON and CUE files are validated by unifying with an embedded CUE schema;
// YAML files are decoded first and then pushed through the same schema.
package config

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"gopkg.in/yaml.v3"
)

//go:embed schema.cue
var schemaCUE string

// Postgres holds PostgreSQL connection parameters.
type Postgres struct {
	Host     string `json:"host"`
	Port     int    `json:"port"`
	User     string `json:"user"`
	Password string `json:"pw"`
	Database string `json:"db"`
	SSLMode  string `json:"sslmode"`
}

// SQLite holds the SQLite database location.
type SQLite struct {
	Path string `json:"path"`
}

// Config is the decoded, validated configuration.
type Config struct {
	Driver    string   `json:"driver"`
	Postgres  Postgres `json:"postgresql"`
	SQLite    SQLite   `json:"sqlite"`
	PGDataDir string   `json:"pg_data_dir"`
}

// Load reads, validates, and decodes the configuration file at path.
//
// A missing or unreadable file is a configuration error: callers are expected
// to report it and exit non-zero before any database connection is attempted.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	// Normalize YAML to JSON so a single CUE validation path handles
	// every supported format (JSON is valid CUE).
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		var raw map[string]any
		if err := yaml.Unmarshal(data, &raw); err != nil {
			return nil, fmt.Errorf("parse yaml config: %w", err)
		}
		data, err = json.Marshal(raw)
		if err != nil {
			return nil, fmt.Errorf("convert yaml config: %w", err)
		}
	}

	ctx := cuecontext.New()

	schema := ctx.CompileString(schemaCUE, cue.Filename("schema.cue"))
	if err := schema.Err(); err != nil {
		return nil, fmt.Errorf("compile config schema: %w", err)
	}
	def := schema.LookupPath(cue.ParsePath("#Config"))
	if err := def.Err(); err != nil {
		return nil, fmt.Errorf("lookup config schema: %w", err)
	}

	val := ctx.CompileBytes(data, cue.Filename(path))
	if err := val.Err(); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}

	unified := def.Unify(val)
	if err := unified.Validate(cue.Concrete(true)); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	cfg := &Config{}
	if err := unified.Decode(cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	if cfg.Driver == "sqlite" && cfg.SQLite.Path == "" {
		return nil, fmt.Errorf("validate config: driver is sqlite but sqlite.path is not set")
	}

	return cfg, nil
}

// DSN returns the database/sql driver name and data source name for the
// configured storage backend.
func (c *Config) DSN() (driver, dsn string) {
	if c.Driver == "sqlite" {
		// _loc=UTC keeps stored timestamps comparable across sessions.
		return "sqlite3", fmt.Sprintf("file:%s?_loc=UTC", c.SQLite.Path)
	}
	pg := c.Postgres
	return "postgres", fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		pg.Host, pg.Port, pg.User, pg.Password, pg.Database, pg.SSLMode,
	)
}
