package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

const defaultHTTPPort = "8080"

// Database drivers accepted in DATABASE_DRIVER.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "pgx"
	DriverMemory   = "memory"
)

// Config holds application configuration values.
type Config struct {
	HTTPPort       string `envconfig:"HTTP_PORT" default:"8080"`
	DatabaseDriver string `envconfig:"DATABASE_DRIVER" default:"sqlite"`
	DatabaseDSN    string `envconfig:"DATABASE_DSN" default:"pharmapos.db"`
	SeedPath       string `envconfig:"SEED_PATH" default:"assets/medicines.csv"`

	KafkaBrokers []string `envconfig:"KAFKA_BROKERS"`
	KafkaTopic   string   `envconfig:"KAFKA_TOPIC" default:"pharmacy.sales"`

	// StockAlertSchedule is a five field cron expression; empty disables the job.
	StockAlertSchedule string `envconfig:"STOCK_ALERT_SCHEDULE" default:"0 8 * * *"`
	ExpiryWarningDays  int    `envconfig:"EXPIRY_WARNING_DAYS" default:"30"`

	AllowedOrigins []string `envconfig:"ALLOWED_ORIGINS" default:"*"`
	LogLevel       string   `envconfig:"LOG_LEVEL" default:"info"`

	warnings []string
}

// Load reads environment variables, optionally from envFile or a local .env,
// and materializes a Config.
func Load(envFile string) (*Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("failed loading env file %s: %w", envFile, err)
		}
	} else {
		// a missing .env is fine when the environment is set directly
		_ = godotenv.Load()
	}

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to process environment: %w", err)
	}

	if _, err := strconv.Atoi(cfg.HTTPPort); err != nil {
		cfg.warnings = append(cfg.warnings, fmt.Sprintf("invalid HTTP_PORT value %q, defaulting to %s", cfg.HTTPPort, defaultHTTPPort))
		cfg.HTTPPort = defaultHTTPPort
	}

	switch cfg.DatabaseDriver {
	case DriverSQLite, DriverPostgres, DriverMemory:
	default:
		return nil, fmt.Errorf("unsupported DATABASE_DRIVER %q", cfg.DatabaseDriver)
	}

	if cfg.ExpiryWarningDays < 0 {
		return nil, fmt.Errorf("EXPIRY_WARNING_DAYS must not be negative, got %d", cfg.ExpiryWarningDays)
	}
	return &cfg, nil
}

// Warnings lists the values Load replaced with defaults.
func (c *Config) Warnings() []string {
	return c.warnings
}

// KafkaEnabled reports whether sale events should be published.
func (c *Config) KafkaEnabled() bool {
	return len(c.KafkaBrokers) > 0
}
