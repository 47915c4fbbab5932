// Package config loads the crawler's environment-driven configuration,
// following the caarlos0/env struct-tag convention and loading a local
// .env file first when present.
package config

import (
	"fmt"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Config is the full configuration surface: upstream portal access,
// storage backend selection, validation strictness, scheduled job
// cadence, and bulk-campaign defaults.
type Config struct {
	BaseURL     string `env:"BASE_URL,required"`
	UserAgent   string `env:"USER_AGENT" envDefault:"legaldocml-crawler/1.0"`
	RateLimitMs int    `env:"RATE_LIMIT_MS" envDefault:"500"`

	StorageBasePath string `env:"STORAGE_BASE_PATH" envDefault:"/data/archive"`
	StorageType     string `env:"STORAGE_TYPE" envDefault:"dual"`

	SolrURL string `env:"SOLR_URL" envDefault:"http://solr:8983/solr/legaldocs"`

	PostgresDSN string `env:"POSTGRES_DSN,required"`

	ValidationSchemaEnabled     bool `env:"VALIDATION_SCHEMA_ENABLED" envDefault:"true"`
	ValidationLegalDocMLEnabled bool `env:"VALIDATION_LEGALDOCML_ENABLED" envDefault:"true"`
	ValidationECLIEnabled       bool `env:"VALIDATION_ECLI_ENABLED" envDefault:"true"`
	ValidationStrictMode        bool `env:"VALIDATION_STRICT_MODE" envDefault:"false"`
	ValidationAsync             bool `env:"VALIDATION_ASYNC" envDefault:"false"`
	ValidationTimeoutSeconds    int  `env:"VALIDATION_TIMEOUT_SECONDS" envDefault:"30"`
	ValidationMaxSizeMiB        int  `env:"VALIDATION_MAX_SIZE_MIB" envDefault:"20"`

	ScheduledEnabled    bool   `env:"SCHEDULED_ENABLED" envDefault:"true"`
	ScheduledDaysBack   int    `env:"SCHEDULED_DAYS_BACK" envDefault:"7"`
	ScheduledDailyCron  string `env:"SCHEDULED_DAILY_CRON" envDefault:"0 6 * * *"`
	ScheduledWeeklyCron string `env:"SCHEDULED_WEEKLY_CRON" envDefault:"0 2 * * 0"`
	ScheduledRetryCron  string `env:"SCHEDULED_RETRY_CRON" envDefault:"0 */6 * * *"`

	BulkMaxConcurrentOperations      int `env:"BULK_MAX_CONCURRENT_OPERATIONS" envDefault:"2"`
	BulkMaxConcurrentChecks          int `env:"BULK_MAX_CONCURRENT_CHECKS" envDefault:"5"`
	BulkDefaultRateLimitMs           int `env:"BULK_DEFAULT_RATE_LIMIT_MS" envDefault:"500"`
	BulkDefaultMaxConcurrentDownloads int `env:"BULK_DEFAULT_MAX_CONCURRENT_DOWNLOADS" envDefault:"1"`
	BulkDiscoveryTimeoutHours        int `env:"BULK_DISCOVERY_TIMEOUT_HOURS" envDefault:"1"`
	BulkStuckOperationTimeoutHours   int `env:"BULK_STUCK_OPERATION_TIMEOUT_HOURS" envDefault:"6"`
	BulkProgressUpdateIntervalMs     int `env:"BULK_PROGRESS_UPDATE_INTERVAL_MS" envDefault:"5000"`

	HealthPort int    `env:"HEALTH_PORT" envDefault:"8080"`
	LogLevel   string `env:"LOG_LEVEL" envDefault:"info"`
}

// StorageKind enumerates the recognized values of StorageType.
type StorageKind string

const (
	StorageArchive StorageKind = "archive"
	StorageSearch  StorageKind = "search"
	StorageDual    StorageKind = "dual"
)

// Kind validates and returns the configured storage backend selection.
func (c *Config) Kind() (StorageKind, error) {
	switch StorageKind(c.StorageType) {
	case StorageArchive, StorageSearch, StorageDual:
		return StorageKind(c.StorageType), nil
	default:
		return "", fmt.Errorf("unrecognized storage.type %q", c.StorageType)
	}
}

// Load reads a local .env file if present, then parses environment
// variables into a Config.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	if _, err := cfg.Kind(); err != nil {
		return nil, err
	}

	return cfg, nil
}
