// ABOUTME: Environment-driven configuration for the reader sync service
// ABOUTME: Groups database, redis, sync facade, rate budget and storage settings

package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds all configuration for the sync service.
type Config struct {
	ServiceName string
	LogLevel    string

	Database  DatabaseConfig
	Redis     RedisConfig
	SyncAPI   SyncAPIConfig
	RateLimit RateLimitConfig
	Storage   StorageConfig
	HTTP      HTTPConfig
}

// DatabaseConfig holds PostgreSQL connection settings.
type DatabaseConfig struct {
	Host     string
	Port     string
	Name     string
	User     string
	Password string
	SSLMode  string
	MaxConns int32
	MinConns int32
}

// ConnectionString builds a pgx-compatible DSN.
func (d DatabaseConfig) ConnectionString() string {
	return fmt.Sprintf("host=%s port=%s dbname=%s user=%s password=%s sslmode=%s",
		d.Host, d.Port, d.Name, d.User, d.Password, d.SSLMode)
}

// RedisConfig holds the session state store settings.
type RedisConfig struct {
	URL string
}

// SyncAPIConfig holds the sync facade endpoint settings.
type SyncAPIConfig struct {
	BaseURL string
	Timeout time.Duration
}

// RateLimitConfig holds the daily remote API budget.
type RateLimitConfig struct {
	DailyLimit   int
	FullSyncCost int
}

// StorageConfig holds quota and retention settings for the article cache.
type StorageConfig struct {
	QuotaBytes          int64
	ArticleCeiling      int
	MigrationBatchSize  int
	MigrationBatchDelay time.Duration
}

// HTTPConfig holds the API server settings.
type HTTPConfig struct {
	Port string
}

// Load reads configuration from environment variables with sensible defaults.
func Load() (*Config, error) {
	cfg := &Config{
		ServiceName: getEnvOrDefault("SERVICE_NAME", "reader-sync"),
		LogLevel:    getEnvOrDefault("LOG_LEVEL", "info"),
		Database: DatabaseConfig{
			Host:     getEnvOrDefault("DB_HOST", "localhost"),
			Port:     getEnvOrDefault("DB_PORT", "5432"),
			Name:     getEnvOrDefault("DB_NAME", "reader_sync"),
			User:     getEnvOrDefault("DB_USER", "reader_sync_user"),
			Password: os.Getenv("DB_PASSWORD"),
			SSLMode:  getEnvOrDefault("DB_SSL_MODE", "prefer"),
			MaxConns: int32(getEnvIntOrDefault("DB_MAX_CONNS", 10)),
			MinConns: int32(getEnvIntOrDefault("DB_MIN_CONNS", 2)),
		},
		Redis: RedisConfig{
			URL: getEnvOrDefault("REDIS_URL", "redis://localhost:6379/0"),
		},
		SyncAPI: SyncAPIConfig{
			BaseURL: getEnvOrDefault("SYNC_API_BASE_URL", "http://localhost:9000/v1"),
			Timeout: getEnvDurationOrDefault("SYNC_API_TIMEOUT", 30*time.Second),
		},
		RateLimit: RateLimitConfig{
			DailyLimit:   getEnvIntOrDefault("RATE_LIMIT_DAILY", 100),
			FullSyncCost: getEnvIntOrDefault("RATE_LIMIT_FULL_SYNC_COST", 5),
		},
		Storage: StorageConfig{
			QuotaBytes:          getEnvInt64OrDefault("STORAGE_QUOTA_BYTES", 512*1024*1024),
			ArticleCeiling:      getEnvIntOrDefault("STORAGE_ARTICLE_CEILING", 500),
			MigrationBatchSize:  getEnvIntOrDefault("MIGRATION_BATCH_SIZE", 50),
			MigrationBatchDelay: getEnvDurationOrDefault("MIGRATION_BATCH_DELAY", 100*time.Millisecond),
		},
		HTTP: HTTPConfig{
			Port: getEnvOrDefault("HTTP_PORT", "8080"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Validate checks configuration consistency.
func (c *Config) Validate() error {
	if c.Database.Host == "" || c.Database.Name == "" {
		return fmt.Errorf("database host and name are required")
	}
	if c.SyncAPI.BaseURL == "" {
		return fmt.Errorf("sync API base URL is required")
	}
	if c.RateLimit.DailyLimit <= 0 {
		return fmt.Errorf("daily rate limit must be positive, got %d", c.RateLimit.DailyLimit)
	}
	if c.RateLimit.FullSyncCost <= 0 || c.RateLimit.FullSyncCost > c.RateLimit.DailyLimit {
		return fmt.Errorf("full sync cost must be positive and within the daily limit")
	}
	if c.Storage.ArticleCeiling <= 0 {
		return fmt.Errorf("article ceiling must be positive, got %d", c.Storage.ArticleCeiling)
	}
	if c.Storage.MigrationBatchSize <= 0 {
		return fmt.Errorf("migration batch size must be positive, got %d", c.Storage.MigrationBatchSize)
	}
	return nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvInt64OrDefault(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseInt(value, 10, 64); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}
