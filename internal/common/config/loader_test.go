package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfigFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadFromFile(t *testing.T) {
	path := writeConfigFile(t, `
app:
  name: camp-lifecycle
  environment: test
database:
  postgres:
    host: localhost
    port: 5432
    database: camp
    user: camp
  redis:
    address: localhost:6379
automation:
  timezone: America/Chicago
`)

	cfg, err := LoadFromFile(path)
	require.NoError(t, err)

	assert.Equal(t, "camp-lifecycle", cfg.App.Name)
	assert.Equal(t, "localhost", cfg.Database.Postgres.Host)

	// Unset fields pick up defaults.
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 3, cfg.Approval.Threshold)
	assert.Equal(t, 168, cfg.Automation.MinPeriodHours)
}

func TestLoadFromFile_MissingFile(t *testing.T) {
	_, err := LoadFromFile(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
}

func TestLoadFromFile_InvalidTimezoneRejected(t *testing.T) {
	path := writeConfigFile(t, `
database:
  postgres:
    host: localhost
    database: camp
    user: camp
  redis:
    address: localhost:6379
automation:
  timezone: Mars/Olympus_Mons
`)

	_, err := LoadFromFile(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "timezone")
}
