package config

import (
	"fmt"
	"log"
	"os"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config represents the overall application configuration.
type Config struct {
	Database    DatabaseConfig    `yaml:"database"`
	Transaction TransactionConfig `yaml:"transaction"`
	Cache       CacheConfig       `yaml:"cache"`
	Statuses    StatusConfig      `yaml:"statuses"`
	Security    SecurityConfig    `yaml:"security"`
	Log         LogConfig         `yaml:"log"`
}

// DatabaseConfig holds the database connection configuration.
type DatabaseConfig struct {
	Driver                 string `yaml:"driver"` // "postgres" or "sqlite"
	DSN                    string `yaml:"dsn"`
	MaxOpenConns           int    `yaml:"max_open_conns"`
	MaxIdleConns           int    `yaml:"max_idle_conns"`
	ConnMaxLifetimeMinutes int    `yaml:"conn_max_lifetime_minutes"`
	LogLevel               string `yaml:"log_level"`
	AutoMigrate            bool   `yaml:"auto_migrate"`
}

// TransactionConfig holds the defaults for interactive transactions.
type TransactionConfig struct {
	MaxWaitMillis int    `yaml:"max_wait_ms"`
	TimeoutMillis int    `yaml:"timeout_ms"`
	Isolation     string `yaml:"isolation"`
	MaxConcurrent int    `yaml:"max_concurrent"`

	MaxWait time.Duration `yaml:"-"`
	Timeout time.Duration `yaml:"-"`
}

// CacheConfig controls the tenant ownership cache.
type CacheConfig struct {
	OwnershipTTLSeconds int           `yaml:"ownership_ttl_seconds"`
	OwnershipTTL        time.Duration `yaml:"-"`
}

// StatusConfig lists the accepted status values. An empty list accepts any non-empty value.
type StatusConfig struct {
	Call   []string `yaml:"call"`
	Tenant []string `yaml:"tenant"`
}

// SecurityConfig controls how user passwords are persisted.
type SecurityConfig struct {
	HashPasswords *bool `yaml:"hash_passwords"`
	BcryptCost    int   `yaml:"bcrypt_cost"`
}

// LogConfig configures the structured logger.
type LogConfig struct {
	Level       string `yaml:"level"`
	Environment string `yaml:"environment"`
}

// Load reads the configuration from the given path. Values from a .env file and the
// DATABASE_DSN / DATABASE_DRIVER environment variables override the file.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Printf("warning: could not read .env file: %v", err)
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var cfg Config
	decoder := yaml.NewDecoder(f)
	if err := decoder.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}

	if dsn := os.Getenv("DATABASE_DSN"); dsn != "" {
		cfg.Database.DSN = dsn
	}
	if driver := os.Getenv("DATABASE_DRIVER"); driver != "" {
		cfg.Database.Driver = driver
	}

	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Default returns a configuration with every default applied.
func Default() *Config {
	cfg := &Config{}
	cfg.ApplyDefaults()
	return cfg
}

// ApplyDefaults fills zero values with their defaults.
func (cfg *Config) ApplyDefaults() {
	if cfg.Database.Driver == "" {
		cfg.Database.Driver = "postgres"
	}
	if cfg.Database.MaxOpenConns <= 0 {
		cfg.Database.MaxOpenConns = 10
	}
	if cfg.Database.MaxIdleConns <= 0 {
		cfg.Database.MaxIdleConns = 5
	}
	if cfg.Database.ConnMaxLifetimeMinutes <= 0 {
		cfg.Database.ConnMaxLifetimeMinutes = 30
	}
	if cfg.Database.LogLevel == "" {
		cfg.Database.LogLevel = "warn"
	}

	if cfg.Transaction.MaxWaitMillis <= 0 {
		cfg.Transaction.MaxWaitMillis = 2000
	}
	if cfg.Transaction.TimeoutMillis <= 0 {
		cfg.Transaction.TimeoutMillis = 5000
	}
	if cfg.Transaction.MaxConcurrent <= 0 {
		cfg.Transaction.MaxConcurrent = cfg.Database.MaxOpenConns
	}
	cfg.Transaction.MaxWait = time.Duration(cfg.Transaction.MaxWaitMillis) * time.Millisecond
	cfg.Transaction.Timeout = time.Duration(cfg.Transaction.TimeoutMillis) * time.Millisecond

	if cfg.Cache.OwnershipTTLSeconds <= 0 {
		cfg.Cache.OwnershipTTLSeconds = 300
	}
	cfg.Cache.OwnershipTTL = time.Duration(cfg.Cache.OwnershipTTLSeconds) * time.Second

	if cfg.Statuses.Call == nil {
		cfg.Statuses.Call = []string{"open", "responded", "resolved", "closed"}
	}
	if cfg.Statuses.Tenant == nil {
		cfg.Statuses.Tenant = []string{"active", "suspended", "archived"}
	}

	if cfg.Security.HashPasswords == nil {
		on := true
		cfg.Security.HashPasswords = &on
	}
	if cfg.Security.BcryptCost <= 0 {
		cfg.Security.BcryptCost = 10
	}

	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Environment == "" {
		cfg.Log.Environment = "development"
	}
}

// Validate rejects configurations the data layer cannot run with.
func (cfg *Config) Validate() error {
	switch cfg.Database.Driver {
	case "postgres", "sqlite":
	default:
		return fmt.Errorf("database.driver must be postgres or sqlite, got %q", cfg.Database.Driver)
	}
	switch cfg.Transaction.Isolation {
	case "", "read_uncommitted", "read_committed", "repeatable_read", "serializable":
	default:
		return fmt.Errorf("transaction.isolation %q is not supported", cfg.Transaction.Isolation)
	}
	if cfg.Security.BcryptCost < 4 || cfg.Security.BcryptCost > 31 {
		return fmt.Errorf("security.bcrypt_cost must be between 4 and 31, got %d", cfg.Security.BcryptCost)
	}
	return nil
}
