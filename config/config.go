// Package config loads service configuration from the environment,
// optionally seeded from a .env file.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/warp/inventory-ledger/ledger"
)

// Config represents the full application configuration surface.
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Ledger   LedgerConfig
	Redis    RedisConfig
	MongoDB  MongoDBConfig
	Alerts   AlertsConfig
	Sheets   SheetsConfig
	LogLevel string
}

// ServerConfig holds HTTP server related options.
type ServerConfig struct {
	Port string
}

// DatabaseConfig selects the transactional store.
type DatabaseConfig struct {
	Driver string // sqlite | mysql
	DSN    string
}

// LedgerConfig tunes the mutator.
type LedgerConfig struct {
	MaxAttempts        int
	RetryBackoff       time.Duration
	MutationTimeout    time.Duration
	AllowNegativeSales bool
}

// MutatorConfig maps the ledger settings onto the mutator. Collaborators
// (clock, publisher, logger) are left for the caller.
func (c LedgerConfig) MutatorConfig() ledger.MutatorConfig {
	return ledger.MutatorConfig{
		Policy:      ledger.DefaultStockPolicy().WithNegativeSales(c.AllowNegativeSales),
		MaxAttempts: c.MaxAttempts,
		Backoff:     c.RetryBackoff,
		Timeout:     c.MutationTimeout,
	}
}

// RedisConfig enables the entry stream when Addr is set.
type RedisConfig struct {
	Addr   string
	Stream string
}

// MongoDBConfig enables the entry archive when URI is set.
type MongoDBConfig struct {
	URI    string
	DBName string
}

// AlertsConfig drives the low-stock scheduler.
type AlertsConfig struct {
	Enabled      bool
	CronSchedule string
	Threshold    int64
	WebhookURL   string
}

// SheetsConfig enables Google Sheets reconciliation when CredentialsPath is set.
type SheetsConfig struct {
	CredentialsPath string
}

// Load reads environment variables (optionally from the provided file) and
// materializes a Config instance.
func Load(envFile string) (*Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil {
			if !errors.Is(err, os.ErrNotExist) {
				return nil, fmt.Errorf("failed loading env file %s: %w", envFile, err)
			}
		}
	} else {
		// A missing .env is fine when everything comes from the environment.
		_ = godotenv.Load()
	}

	var errs []error
	cfg := &Config{
		Server: ServerConfig{
			Port: getenvWithDefault("LEDGER_HTTP_PORT", "8080"),
		},
		Database: DatabaseConfig{
			Driver: strings.ToLower(getenvWithDefault("LEDGER_DB_DRIVER", "sqlite")),
			DSN:    getenvWithDefault("LEDGER_DB_DSN", "ledger.db"),
		},
		Ledger: LedgerConfig{
			MaxAttempts:        getenvInt(&errs, "LEDGER_MAX_ATTEMPTS", 4),
			RetryBackoff:       getenvDuration(&errs, "LEDGER_RETRY_BACKOFF", 10*time.Millisecond),
			MutationTimeout:    getenvDuration(&errs, "LEDGER_MUTATION_TIMEOUT", 5*time.Second),
			AllowNegativeSales: getenvBool(&errs, "LEDGER_ALLOW_NEGATIVE_SALES", false),
		},
		Redis: RedisConfig{
			Addr:   os.Getenv("LEDGER_REDIS_ADDR"),
			Stream: getenvWithDefault("LEDGER_REDIS_STREAM", "inventory:entries"),
		},
		MongoDB: MongoDBConfig{
			URI:    os.Getenv("LEDGER_MONGO_URI"),
			DBName: getenvWithDefault("LEDGER_MONGO_DB", "inventory"),
		},
		Alerts: AlertsConfig{
			Enabled:      getenvBool(&errs, "LEDGER_LOW_STOCK_ENABLED", true),
			CronSchedule: getenvWithDefault("LEDGER_LOW_STOCK_CRON", "@hourly"),
			Threshold:    int64(getenvInt(&errs, "LEDGER_LOW_STOCK_THRESHOLD", 5)),
			WebhookURL:   os.Getenv("LEDGER_ALERT_WEBHOOK_URL"),
		},
		Sheets: SheetsConfig{
			CredentialsPath: os.Getenv("GOOGLE_SHEETS_CREDENTIALS_PATH"),
		},
		LogLevel: getenvWithDefault("LOG_LEVEL", "info"),
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate ensures that required configuration fields are populated.
func (c *Config) Validate() error {
	if c == nil {
		return errors.New("config is nil")
	}

	if c.Server.Port == "" {
		return errors.New("LEDGER_HTTP_PORT must be provided")
	}

	switch c.Database.Driver {
	case "sqlite", "mysql":
	default:
		return fmt.Errorf("LEDGER_DB_DRIVER must be sqlite or mysql, got %q", c.Database.Driver)
	}
	if c.Database.DSN == "" {
		return errors.New("LEDGER_DB_DSN must be provided")
	}

	if c.Ledger.MaxAttempts < 1 {
		return errors.New("LEDGER_MAX_ATTEMPTS must be at least 1")
	}
	if c.Ledger.RetryBackoff < 0 {
		return errors.New("LEDGER_RETRY_BACKOFF must not be negative")
	}
	if c.Ledger.MutationTimeout <= 0 {
		return errors.New("LEDGER_MUTATION_TIMEOUT must be positive")
	}

	if c.Alerts.Threshold < 0 {
		return errors.New("LEDGER_LOW_STOCK_THRESHOLD must not be negative")
	}
	if c.Alerts.CronSchedule == "" {
		return errors.New("LEDGER_LOW_STOCK_CRON must be provided")
	}

	if c.Redis.Addr != "" && c.Redis.Stream == "" {
		return errors.New("LEDGER_REDIS_STREAM must not be empty")
	}
	if c.MongoDB.URI != "" && c.MongoDB.DBName == "" {
		return errors.New("LEDGER_MONGO_DB must not be empty")
	}

	return nil
}

func getenvWithDefault(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getenvInt(errs *[]error, key string, fallback int) int {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("%s: invalid integer %q", key, value))
		return fallback
	}
	return n
}

func getenvDuration(errs *[]error, key string, fallback time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("%s: invalid duration %q", key, value))
		return fallback
	}
	return d
}

func getenvBool(errs *[]error, key string, fallback bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	b, err := strconv.ParseBool(value)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("%s: invalid boolean %q", key, value))
		return fallback
	}
	return b
}
