package config

import (
	"fmt"
	"time"

	pkgconfig "github.com/stagelink/rentops/pkg/config"
	"github.com/stagelink/rentops/pkg/database"
)

// Config holds all configuration for the rentops service.
type Config struct {
	Environment string `env:"ENVIRONMENT" envDefault:"development"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`

	// HTTP server
	HTTPPort int `env:"RENTOPS_HTTP_PORT" envDefault:"8080"`

	// PostgreSQL
	PostgresHost string `env:"POSTGRES_HOST" envDefault:"localhost"`
	PostgresPort int    `env:"POSTGRES_PORT" envDefault:"5432"`
	PostgresUser string `env:"POSTGRES_USER" envDefault:"rentops"`
	PostgresPass string `env:"POSTGRES_PASSWORD" envDefault:"rentops_secret"`
	PostgresDB   string `env:"RENTOPS_DB_NAME" envDefault:"rentops_db"`
	PostgresSSL  string `env:"POSTGRES_SSL_MODE" envDefault:"disable"`

	// Database pool
	DBMaxConns            int32 `env:"DB_MAX_CONNS" envDefault:"25"`
	DBMinConns            int32 `env:"DB_MIN_CONNS" envDefault:"5"`
	DBMaxConnLifetimeMins int   `env:"DB_MAX_CONN_LIFETIME_MINUTES" envDefault:"60"`
	DBMaxConnIdleTimeMins int   `env:"DB_MAX_CONN_IDLE_TIME_MINUTES" envDefault:"30"`

	// Redis (status snapshot cache)
	RedisHost       string `env:"REDIS_HOST" envDefault:"localhost"`
	RedisPort       int    `env:"REDIS_PORT" envDefault:"6379"`
	RedisPassword   string `env:"REDIS_PASSWORD" envDefault:""`
	RedisDB         int    `env:"REDIS_DB" envDefault:"0"`
	StatusCacheTTLS int    `env:"STATUS_CACHE_TTL_SECONDS" envDefault:"60"`

	// Kafka
	KafkaBrokers       []string `env:"KAFKA_BROKERS" envDefault:"localhost:9092" envSeparator:","`
	KafkaConsumerGroup string   `env:"KAFKA_CONSUMER_GROUP" envDefault:"rentops"`

	// CRM client directory
	CRMBaseURL    string `env:"CRM_BASE_URL" envDefault:""`
	CRMCacheTTLS  int    `env:"CRM_CACHE_TTL_SECONDS" envDefault:"300"`
	CRMTimeoutMs  int    `env:"CRM_TIMEOUT_MS" envDefault:"2000"`
	CRMStaticName string `env:"CRM_STATIC_CLIENT_NAME" envDefault:""`

	// Maintenance jobs
	SweepIntervalMins     int `env:"SWEEP_INTERVAL_MINUTES" envDefault:"15"`
	ReconcileIntervalMins int `env:"RECONCILE_INTERVAL_MINUTES" envDefault:"60"`

	// OpenTelemetry
	OTELEnabled    bool    `env:"OTEL_ENABLED" envDefault:"false"`
	OTELEndpoint   string  `env:"OTEL_EXPORTER_OTLP_ENDPOINT" envDefault:"localhost:4318"`
	OTELSampleRate float64 `env:"OTEL_SAMPLE_RATE" envDefault:"1.0"`

	// Slow query logging
	SlowQueryThresholdMs int `env:"LOG_SLOW_QUERY_MS" envDefault:"500"`
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := pkgconfig.Load(cfg); err != nil {
		return nil, fmt.Errorf("load rentops config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// validate checks configuration invariants.
func (c *Config) validate() error {
	if c.HTTPPort < 1 || c.HTTPPort > 65535 {
		return fmt.Errorf("invalid HTTP port: %d", c.HTTPPort)
	}
	if c.PostgresHost == "" {
		return fmt.Errorf("POSTGRES_HOST is required")
	}
	if c.PostgresUser == "" {
		return fmt.Errorf("POSTGRES_USER is required")
	}
	if len(c.KafkaBrokers) == 0 {
		return fmt.Errorf("KAFKA_BROKERS is required")
	}
	if c.OTELSampleRate < 0 || c.OTELSampleRate > 1.0 {
		return fmt.Errorf("OTEL_SAMPLE_RATE must be between 0.0 and 1.0, got %f", c.OTELSampleRate)
	}
	if c.SweepIntervalMins <= 0 {
		return fmt.Errorf("SWEEP_INTERVAL_MINUTES must be > 0, got %d", c.SweepIntervalMins)
	}
	if c.ReconcileIntervalMins <= 0 {
		return fmt.Errorf("RECONCILE_INTERVAL_MINUTES must be > 0, got %d", c.ReconcileIntervalMins)
	}
	return nil
}

// PostgresConfig builds the pool configuration for the database package.
func (c *Config) PostgresConfig() *database.PostgresConfig {
	return &database.PostgresConfig{
		Host:            c.PostgresHost,
		Port:            c.PostgresPort,
		User:            c.PostgresUser,
		Password:        c.PostgresPass,
		DBName:          c.PostgresDB,
		SSLMode:         c.PostgresSSL,
		MaxConns:        c.DBMaxConns,
		MinConns:        c.DBMinConns,
		MaxConnLifetime: time.Duration(c.DBMaxConnLifetimeMins) * time.Minute,
		MaxConnIdleTime: time.Duration(c.DBMaxConnIdleTimeMins) * time.Minute,
	}
}

// RedisConfig builds the Redis client configuration.
func (c *Config) RedisConfig() database.RedisConfig {
	return database.RedisConfig{
		Host:     c.RedisHost,
		Port:     c.RedisPort,
		Password: c.RedisPassword,
		DB:       c.RedisDB,
	}
}

// StatusCacheTTL returns the snapshot cache TTL.
func (c *Config) StatusCacheTTL() time.Duration {
	return time.Duration(c.StatusCacheTTLS) * time.Second
}

// SweepInterval returns how often the expiry sweeper runs.
func (c *Config) SweepInterval() time.Duration {
	return time.Duration(c.SweepIntervalMins) * time.Minute
}

// ReconcileInterval returns how often counter reconciliation runs.
func (c *Config) ReconcileInterval() time.Duration {
	return time.Duration(c.ReconcileIntervalMins) * time.Minute
}
