package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sample = `
logger:
  level: debug
units:
  - name: orders
    driver: gorm
    properties:
      dsn: file:orders.db
      gorm.prepare_stmt: "true"
  - name: audit
    tag: audit
    driver: sql
    properties:
      dsn: audit.db
      sqldb.max_open_conns: 4
    handle_properties:
      sqldb.isolation: serializable
`

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	file := filepath.Join(t.TempDir(), "persist.yaml")
	require.NoError(t, os.WriteFile(file, []byte(content), 0o600))
	return file
}

func TestLoad(t *testing.T) {
	cfg, err := Load(writeConfig(t, sample))
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.Logger.Level)
	assert.False(t, cfg.Logger.Production)
	require.Len(t, cfg.Units, 2)

	orders := cfg.Units[0]
	assert.Equal(t, "orders", orders.Name)
	assert.Equal(t, "", orders.Tag)
	assert.Equal(t, "gorm", orders.Driver)
	assert.Equal(t, map[string]string{"dsn": "file:orders.db", "gorm.prepare_stmt": "true"}, orders.Properties)

	audit := cfg.Units[1]
	assert.Equal(t, "audit", audit.Tag)
	assert.Equal(t, "4", audit.Properties["sqldb.max_open_conns"])
	assert.Equal(t, "serializable", audit.HandleProperties["sqldb.isolation"])
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("PERSIST_LOGGER_LEVEL", "warn")
	t.Setenv("PERSIST_LOGGER_PRODUCTION", "true")

	cfg, err := Load(writeConfig(t, sample))
	require.NoError(t, err)
	assert.Equal(t, "warn", cfg.Logger.Level)
	assert.True(t, cfg.Logger.Production)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name  string
		units []UnitConfig
		err   string
	}{
		{name: "empty", err: "at least one unit"},
		{name: "no name", units: []UnitConfig{{Driver: "gorm"}}, err: "name is required"},
		{name: "no driver", units: []UnitConfig{{Name: "orders"}}, err: "driver is required"},
		{
			name:  "duplicate tag",
			units: []UnitConfig{{Name: "orders", Driver: "gorm"}, {Name: "audit", Driver: "sql"}},
			err:   "already used by unit orders",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := (&Config{Units: tt.units}).Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.err)
		})
	}
}
