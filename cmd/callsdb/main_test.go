package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/go-extras/cobraflags"
	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"facility-calls-backend/config"
	"facility-calls-backend/internal/db"
	"facility-calls-backend/internal/model"
	"facility-calls-backend/internal/store"
)

func writeConfig(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `database:
  driver: sqlite
  dsn: "` + filepath.Join(dir, "calls.db") + `"
  max_open_conns: 1
  log_level: silent
log:
  level: error
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	t.Setenv("DATABASE_DSN", "")
	t.Setenv("DATABASE_DRIVER", "")
	return path
}

func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	root := newRootCommand()
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

// seed creates two tenants directly through the store; only the first owns a division.
func seed(t *testing.T, path string) (acme, beta *model.Tenant) {
	t.Helper()
	ctx := context.Background()
	cfg, err := config.Load(path)
	require.NoError(t, err)
	gormDB, err := db.Open(&cfg.Database)
	require.NoError(t, err)
	sqlDB, err := gormDB.DB()
	require.NoError(t, err)
	defer sqlDB.Close()

	s := store.New(gormDB, store.OptionsFromConfig(cfg), nil, nil)
	acme = &model.Tenant{Name: "Acme", Slug: "acme", SubscriptionTier: "basic"}
	require.NoError(t, s.Tenants.Create(ctx, acme))
	require.NoError(t, s.Divisions.Create(ctx, &model.Division{Name: "Maintenance", TenantID: acme.ID}))
	beta = &model.Tenant{Name: "Beta", Slug: "beta", SubscriptionTier: "basic"}
	require.NoError(t, s.Tenants.Create(ctx, beta))
	return acme, beta
}

func TestCLI_MigrateStatsAndPurge(t *testing.T) {
	path := writeConfig(t)

	_, err := runCLI(t, "--config", path, "migrate")
	require.NoError(t, err)

	acme, beta := seed(t, path)

	out, err := runCLI(t, "--config", path, "stats")
	require.NoError(t, err)
	assert.Contains(t, out, "Tenant     2\n")
	assert.Contains(t, out, "Division   1\n")

	out, err = runCLI(t, "--config", path, "stats", "--tenant", beta.ID)
	require.NoError(t, err)
	assert.Contains(t, out, "Tenant     1\n")
	assert.Contains(t, out, "Division   0\n")

	out, err = runCLI(t, "--config", path, "purge-tenant", acme.ID)
	require.NoError(t, err)
	assert.Contains(t, out, "Tenant     1\n")
	assert.Contains(t, out, "Division   1\n")

	out, err = runCLI(t, "--config", path, "stats")
	require.NoError(t, err)
	assert.Contains(t, out, "Tenant     1\n")
	assert.Contains(t, out, "Division   0\n")

	_, err = runCLI(t, "--config", path, "purge-tenant", acme.ID)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestCLI_Errors(t *testing.T) {
	testCases := []struct {
		name    string
		args    []string
		wantErr string
	}{
		{name: "missing config file", args: []string{"--config", filepath.Join(t.TempDir(), "absent.yaml"), "stats"}, wantErr: "failed to load configuration"},
		{name: "purge needs a tenant id", args: []string{"purge-tenant"}, wantErr: "accepts 1 arg(s)"},
		{name: "unknown command", args: []string{"vacuum"}, wantErr: "unknown command"},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := runCLI(t, tc.args...)
			assert.ErrorContains(t, err, tc.wantErr)
		})
	}
}

func TestConfigPath(t *testing.T) {
	flag := &cobraflags.StringFlag{Name: configFlag}
	cmd := &cobra.Command{Use: "callsdb"}
	flag.Register(cmd)

	t.Setenv("CONFIG_PATH", "")
	assert.Equal(t, "./config/config.yaml", configPath(flag))

	t.Setenv("CONFIG_PATH", "/etc/callsdb/config.yaml")
	assert.Equal(t, "/etc/callsdb/config.yaml", configPath(flag))

	require.NoError(t, cmd.Flags().Set(configFlag, "custom.yaml"))
	assert.Equal(t, "custom.yaml", configPath(flag))
}
