package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sensorgrid/recbatch/internal/config"
)

func writeConfig(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadJSON(t *testing.T) {
	path := writeConfig(t, "config.json", `{
		"driver": "postgres",
		"postgresql": {
			"host": "db.example.org",
			"port": 5433,
			"user": "recorder",
			"pw": "secret",
			"db": "sensors",
			"sslmode": "require"
		},
		"pg_data_dir": "/var/lib/postgresql/data"
	}`)

	cfg, err := config.Load(path)
	require.NoError(t, err)

	assert.Equal(t, "postgres", cfg.Driver)
	assert.Equal(t, "db.example.org", cfg.Postgres.Host)
	assert.Equal(t, 5433, cfg.Postgres.Port)
	assert.Equal(t, "recorder", cfg.Postgres.User)
	assert.Equal(t, "secret", cfg.Postgres.Password)
	assert.Equal(t, "sensors", cfg.Postgres.Database)
	assert.Equal(t, "require", cfg.Postgres.SSLMode)
	assert.Equal(t, "/var/lib/postgresql/data", cfg.PGDataDir)

	driver, dsn := cfg.DSN()
	assert.Equal(t, "postgres", driver)
	assert.Equal(t,
		"host=db.example.org port=5433 user=recorder password=secret dbname=sensors sslmode=require",
		dsn)
}

func TestLoadDefaults(t *testing.T) {
	path := writeConfig(t, "config.json", `{}`)

	cfg, err := config.Load(path)
	require.NoError(t, err)

	assert.Equal(t, "postgres", cfg.Driver)
	assert.Equal(t, "localhost", cfg.Postgres.Host)
	assert.Equal(t, 5432, cfg.Postgres.Port)
	assert.Equal(t, "sr2", cfg.Postgres.User)
	assert.Equal(t, "sr2", cfg.Postgres.Database)
	assert.Equal(t, "disable", cfg.Postgres.SSLMode)
}

func TestLoadYAML(t *testing.T) {
	path := writeConfig(t, "config.yaml", `
driver: sqlite
sqlite:
  path: /tmp/recorder.db
`)

	cfg, err := config.Load(path)
	require.NoError(t, err)

	assert.Equal(t, "sqlite", cfg.Driver)
	assert.Equal(t, "/tmp/recorder.db", cfg.SQLite.Path)

	driver, dsn := cfg.DSN()
	assert.Equal(t, "sqlite3", driver)
	assert.Equal(t, "file:/tmp/recorder.db?_loc=UTC", dsn)
}

func TestLoadRejectsInvalid(t *testing.T) {
	tests := []struct {
		name    string
		file    string
		content string
	}{
		{"bad driver", "config.json", `{"driver": "oracle"}`},
		{"bad port", "config.json", `{"postgresql": {"port": 0}}`},
		{"bad sslmode", "config.json", `{"postgresql": {"sslmode": "yes"}}`},
		{"sqlite without path", "config.json", `{"driver": "sqlite"}`},
		{"malformed yaml", "config.yaml", "driver: [unclosed"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeConfig(t, tt.file, tt.content)
			_, err := config.Load(path)
			assert.Error(t, err)
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := config.Load(filepath.Join(t.TempDir(), "nope.json"))
	assert.Error(t, err)
}
