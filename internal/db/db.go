package db

import (
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"facility-calls-backend/config"
	"facility-calls-backend/internal/model"
)

// Init opens the configured database and, when enabled, runs migrations.
func Init(cfg *config.DatabaseConfig, log *zap.Logger) (*gorm.DB, error) {
	if log == nil {
		log = zap.NewNop()
	}
	db, err := Open(cfg)
	if err != nil {
		return nil, err
	}
	log.Info("database connected", zap.String("driver", cfg.Driver))

	if cfg.AutoMigrate {
		log.Info("running database migrations")
		if err := Migrate(db); err != nil {
			return nil, err
		}
	}
	log.Info("database initialization complete")
	return db, nil
}

// Open connects to the database without migrating it.
func Open(cfg *config.DatabaseConfig) (*gorm.DB, error) {
	var dialector gorm.Dialector
	switch cfg.Driver {
	case "postgres", "":
		dialector = postgres.Open(cfg.DSN)
	case "sqlite":
		dialector = sqlite.Open(SQLiteDSN(cfg.DSN))
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}

	db, err := gorm.Open(dialector, GormConfig(cfg.LogLevel))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get sql.DB: %w", err)
	}
	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(time.Duration(cfg.ConnMaxLifetimeMinutes) * time.Minute)
	return db, nil
}

// GormConfig is shared by every connection the data layer opens. Timestamps are taken in
// UTC at microsecond precision so that values read back compare equal to values written.
func GormConfig(level string) *gorm.Config {
	return &gorm.Config{
		Logger:         logger.Default.LogMode(logLevel(level)),
		TranslateError: true,
		NowFunc: func() time.Time {
			return time.Now().UTC().Truncate(time.Microsecond)
		},
	}
}

func logLevel(level string) logger.LogLevel {
	switch strings.ToLower(level) {
	case "silent":
		return logger.Silent
	case "error":
		return logger.Error
	case "info":
		return logger.Info
	}
	return logger.Warn
}

// SQLiteDSN enables foreign keys and case-sensitive LIKE on a sqlite DSN.
func SQLiteDSN(dsn string) string {
	params := []string{"_fk=1", "_cslike=1"}
	for _, p := range params {
		key := p[:strings.Index(p, "=")+1]
		if strings.Contains(dsn, key) {
			continue
		}
		if strings.Contains(dsn, "?") {
			dsn += "&" + p
		} else {
			dsn += "?" + p
		}
	}
	return dsn
}

// Migrate creates or updates the schema of every entity.
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(model.All()...); err != nil {
		return fmt.Errorf("automigrate failed: %w", err)
	}
	return nil
}
