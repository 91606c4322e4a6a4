package db

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm/logger"

	"facility-calls-backend/config"
	"facility-calls-backend/internal/model"
)

func TestSQLiteDSN(t *testing.T) {
	testCases := []struct {
		name string
		dsn  string
		want string
	}{
		{name: "plain file", dsn: "calls.db", want: "calls.db?_fk=1&_cslike=1"},
		{name: "existing query", dsn: "file:x?mode=memory", want: "file:x?mode=memory&_fk=1&_cslike=1"},
		{name: "already set", dsn: "file:x?_fk=0&_cslike=0", want: "file:x?_fk=0&_cslike=0"},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, SQLiteDSN(tc.dsn))
		})
	}
}

func TestLogLevel(t *testing.T) {
	assert.Equal(t, logger.Silent, logLevel("silent"))
	assert.Equal(t, logger.Info, logLevel("INFO"))
	assert.Equal(t, logger.Error, logLevel("error"))
	assert.Equal(t, logger.Warn, logLevel(""))
}

func TestInit_SQLiteMigrates(t *testing.T) {
	cfg := config.Default().Database
	cfg.Driver = "sqlite"
	cfg.DSN = "file:" + uuid.NewString() + "?mode=memory&cache=shared"
	cfg.MaxOpenConns = 1
	cfg.LogLevel = "silent"
	cfg.AutoMigrate = true

	gormDB, err := Init(&cfg, nil)
	require.NoError(t, err)

	for _, m := range model.All() {
		assert.True(t, gormDB.Migrator().HasTable(m), "%T table missing", m)
	}
	assert.True(t, gormDB.Migrator().HasIndex(&model.Machine{}, "idx_machines_tenant_code"))
}

func TestOpen_UnknownDriver(t *testing.T) {
	_, err := Open(&config.DatabaseConfig{Driver: "mysql"})
	assert.ErrorContains(t, err, "unsupported database driver")
}
