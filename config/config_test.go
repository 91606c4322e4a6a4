package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	path := writeConfig(t, "database:\n  dsn: host=localhost\n")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "postgres", cfg.Database.Driver)
	assert.Equal(t, 10, cfg.Database.MaxOpenConns)
	assert.Equal(t, 2*time.Second, cfg.Transaction.MaxWait)
	assert.Equal(t, 5*time.Second, cfg.Transaction.Timeout)
	assert.Equal(t, 10, cfg.Transaction.MaxConcurrent)
	assert.Equal(t, 5*time.Minute, cfg.Cache.OwnershipTTL)
	assert.Equal(t, []string{"open", "responded", "resolved", "closed"}, cfg.Statuses.Call)
	assert.True(t, *cfg.Security.HashPasswords)
	assert.Equal(t, "info", cfg.Log.Level)
}

func TestLoad_Overrides(t *testing.T) {
	path := writeConfig(t, `
database:
  driver: sqlite
  dsn: file:test.db
transaction:
  max_wait_ms: 100
  timeout_ms: 250
  isolation: serializable
statuses:
  call: []
security:
  hash_passwords: false
  bcrypt_cost: 4
`)
	t.Setenv("DATABASE_DSN", "file:override.db")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "sqlite", cfg.Database.Driver)
	assert.Equal(t, "file:override.db", cfg.Database.DSN)
	assert.Equal(t, 100*time.Millisecond, cfg.Transaction.MaxWait)
	assert.Equal(t, 250*time.Millisecond, cfg.Transaction.Timeout)
	assert.Equal(t, "serializable", cfg.Transaction.Isolation)
	assert.Empty(t, cfg.Statuses.Call, "an explicit empty list disables status validation")
	assert.False(t, *cfg.Security.HashPasswords)
}

func TestLoad_Invalid(t *testing.T) {
	testCases := []struct {
		name string
		body string
	}{
		{name: "unknown driver", body: "database:\n  driver: oracle\n"},
		{name: "unknown isolation", body: "transaction:\n  isolation: snapshot\n"},
		{name: "bcrypt cost out of range", body: "security:\n  bcrypt_cost: 40\n"},
		{name: "malformed yaml", body: "database: [\n"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tc.body))
			assert.Error(t, err)
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
