// ABOUTME: Tests for the durable outbound queue repository against pgxmock
// ABOUTME: Verifies arrival ordering and retry counter round-trips

package repository

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"reader-sync/models"
)

func TestEnqueueInsertsEntry(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	entry := models.NewOutboundQueueEntry(models.ActionMarkRead, uuid.New(), "remote-1")

	mock.ExpectExec(`INSERT INTO sync_queue`).
		WithArgs(entry.ID, entry.Type, entry.ArticleID, entry.RemoteItemID,
			entry.CreatedAt, entry.RetryCount, entry.MaxRetries).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	repo := NewPostgresSyncQueueRepository(mock, nil)
	require.NoError(t, repo.Enqueue(context.Background(), entry))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestListPendingPreservesArrivalOrder(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	first := uuid.New()
	second := uuid.New()
	base := time.Now().Add(-time.Minute)

	rows := pgxmock.NewRows([]string{
		"id", "action_type", "article_id", "remote_item_id", "created_at", "retry_count", "max_retries",
	}).
		AddRow(first, models.ActionMarkRead, uuid.New(), "r1", base, 0, 3).
		AddRow(second, models.ActionStar, uuid.New(), "r2", base.Add(time.Second), 1, 3)

	mock.ExpectQuery(`ORDER BY created_at ASC, id ASC`).
		WithArgs(100).
		WillReturnRows(rows)

	repo := NewPostgresSyncQueueRepository(mock, nil)
	entries, err := repo.ListPending(context.Background(), 100)

	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, first, entries[0].ID)
	assert.Equal(t, second, entries[1].ID)
	assert.Equal(t, models.ActionStar, entries[1].Type)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestIncrementRetryReturnsNewCount(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	id := uuid.New()
	mock.ExpectQuery(`retry_count = retry_count \+ 1`).
		WithArgs(id).
		WillReturnRows(pgxmock.NewRows([]string{"retry_count"}).AddRow(2))

	repo := NewPostgresSyncQueueRepository(mock, nil)
	count, err := repo.IncrementRetry(context.Background(), id)

	require.NoError(t, err)
	assert.Equal(t, 2, count)
	assert.NoError(t, mock.ExpectationsWereMet())
}
