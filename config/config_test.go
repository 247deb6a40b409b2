// ABOUTME: Tests for environment-driven configuration loading and validation
// ABOUTME: Uses t.Setenv so overrides are scoped to each test

package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "reader-sync", cfg.ServiceName)
	assert.Equal(t, "localhost", cfg.Database.Host)
	assert.Equal(t, int32(10), cfg.Database.MaxConns)
	assert.Equal(t, 100, cfg.RateLimit.DailyLimit)
	assert.Equal(t, 5, cfg.RateLimit.FullSyncCost)
	assert.Equal(t, 500, cfg.Storage.ArticleCeiling)
	assert.Equal(t, 50, cfg.Storage.MigrationBatchSize)
	assert.Equal(t, "8080", cfg.HTTP.Port)
}

func TestLoadReadsOverrides(t *testing.T) {
	t.Setenv("DB_HOST", "db.internal")
	t.Setenv("RATE_LIMIT_DAILY", "250")
	t.Setenv("SYNC_API_TIMEOUT", "45s")
	t.Setenv("STORAGE_ARTICLE_CEILING", "1000")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "db.internal", cfg.Database.Host)
	assert.Equal(t, 250, cfg.RateLimit.DailyLimit)
	assert.Equal(t, 45*time.Second, cfg.SyncAPI.Timeout)
	assert.Equal(t, 1000, cfg.Storage.ArticleCeiling)
}

func TestLoadIgnoresMalformedNumbers(t *testing.T) {
	t.Setenv("RATE_LIMIT_DAILY", "lots")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 100, cfg.RateLimit.DailyLimit)
}

func TestConnectionString(t *testing.T) {
	d := DatabaseConfig{
		Host: "h", Port: "5432", Name: "db", User: "u", Password: "p", SSLMode: "require",
	}
	assert.Equal(t, "host=h port=5432 dbname=db user=u password=p sslmode=require", d.ConnectionString())
}

func TestValidateRejectsBadBudget(t *testing.T) {
	t.Setenv("RATE_LIMIT_FULL_SYNC_COST", "500")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "full sync cost")
}

func TestValidateRejectsZeroCeiling(t *testing.T) {
	t.Setenv("STORAGE_ARTICLE_CEILING", "-1")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "article ceiling")
}
