// ABOUTME: Storage quota estimation against the PostgreSQL database size
// ABOUTME: Feeds the storage steward's healthy/warning/critical classification

package repository

import (
	"context"
	"fmt"
)

// PostgresQuotaEstimator reports database size against a configured quota.
type PostgresQuotaEstimator struct {
	db         DBPool
	quotaBytes int64
}

// NewPostgresQuotaEstimator creates a quota estimator with a fixed byte quota.
func NewPostgresQuotaEstimator(db DBPool, quotaBytes int64) *PostgresQuotaEstimator {
	return &PostgresQuotaEstimator{db: db, quotaBytes: quotaBytes}
}

// Estimate returns the configured quota and current database size in bytes.
func (e *PostgresQuotaEstimator) Estimate(ctx context.Context) (int64, int64, error) {
	var usage int64
	err := e.db.QueryRow(ctx, `SELECT pg_database_size(current_database())`).Scan(&usage)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to estimate storage usage: %w", err)
	}
	return e.quotaBytes, usage, nil
}
