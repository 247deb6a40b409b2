// ABOUTME: PostgreSQL implementation of the durable outbound sync queue
// ABOUTME: Local mutations wait here until pushed to the remote aggregator

package repository

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"reader-sync/models"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// PostgresSyncQueueRepository implements SyncQueueRepository using PostgreSQL.
type PostgresSyncQueueRepository struct {
	db     DBPool
	logger *slog.Logger
}

// NewPostgresSyncQueueRepository creates a new outbound queue repository.
func NewPostgresSyncQueueRepository(db DBPool, logger *slog.Logger) *PostgresSyncQueueRepository {
	if logger == nil {
		logger = slog.Default()
	}
	return &PostgresSyncQueueRepository{db: db, logger: logger}
}

// Enqueue appends a mutation record to the durable queue.
func (r *PostgresSyncQueueRepository) Enqueue(ctx context.Context, entry *models.OutboundQueueEntry) error {
	query := `
		INSERT INTO sync_queue (id, action_type, article_id, remote_item_id, created_at, retry_count, max_retries)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`

	_, err := r.db.Exec(ctx, query,
		entry.ID,
		entry.Type,
		entry.ArticleID,
		entry.RemoteItemID,
		entry.CreatedAt,
		entry.RetryCount,
		entry.MaxRetries,
	)
	if err != nil {
		r.logger.Error("Failed to enqueue sync action",
			"action", entry.Type,
			"article_id", entry.ArticleID,
			"error", err)
		return fmt.Errorf("failed to enqueue sync action: %w", err)
	}

	r.logger.Debug("Enqueued sync action",
		"action", entry.Type,
		"article_id", entry.ArticleID)
	return nil
}

// ListPending returns queued entries in arrival order.
func (r *PostgresSyncQueueRepository) ListPending(ctx context.Context, limit int) ([]*models.OutboundQueueEntry, error) {
	if limit <= 0 {
		limit = 100
	}

	query := `
		SELECT id, action_type, article_id, remote_item_id, created_at, retry_count, max_retries
		FROM sync_queue
		ORDER BY created_at ASC, id ASC
		LIMIT $1`

	rows, err := r.db.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list pending sync actions: %w", err)
	}
	defer rows.Close()

	var entries []*models.OutboundQueueEntry
	for rows.Next() {
		entry := &models.OutboundQueueEntry{}
		err := rows.Scan(
			&entry.ID,
			&entry.Type,
			&entry.ArticleID,
			&entry.RemoteItemID,
			&entry.CreatedAt,
			&entry.RetryCount,
			&entry.MaxRetries,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan sync queue row: %w", err)
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}

	return entries, nil
}

// Delete removes a processed or dropped entry.
func (r *PostgresSyncQueueRepository) Delete(ctx context.Context, id uuid.UUID) error {
	_, err := r.db.Exec(ctx, `DELETE FROM sync_queue WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete sync queue entry: %w", err)
	}
	return nil
}

// IncrementRetry bumps the retry counter and returns the new value.
func (r *PostgresSyncQueueRepository) IncrementRetry(ctx context.Context, id uuid.UUID) (int, error) {
	var retryCount int
	err := r.db.QueryRow(ctx,
		`UPDATE sync_queue SET retry_count = retry_count + 1 WHERE id = $1 RETURNING retry_count`,
		id,
	).Scan(&retryCount)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, fmt.Errorf("sync queue entry not found: %s", id)
		}
		return 0, fmt.Errorf("failed to increment retry count: %w", err)
	}
	return retryCount, nil
}

// Count returns the number of queued entries.
func (r *PostgresSyncQueueRepository) Count(ctx context.Context) (int, error) {
	var count int
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM sync_queue`).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count sync queue entries: %w", err)
	}
	return count, nil
}
