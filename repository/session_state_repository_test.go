// ABOUTME: Tests for the Redis session state repository against miniredis
// ABOUTME: Verifies round-trips, expiry handling and TTL placement

package repository

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"reader-sync/models"
)

func newTestSessionRepo(t *testing.T) (*RedisSessionStateRepository, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewRedisSessionStateRepository(client, nil), mr
}

func TestListStateRoundTrip(t *testing.T) {
	repo, _ := newTestSessionRepo(t)
	ctx := context.Background()

	feedID := uuid.New()
	state := models.NewSessionListState(
		models.ArticleScope{FeedID: &feedID}, models.FilterUnread, time.Now())
	state.TrackRead([]uuid.UUID{uuid.New(), uuid.New()}, models.MarkManual)

	require.NoError(t, repo.SaveListState(ctx, "sess-1", state))

	loaded, err := repo.GetListState(ctx, "sess-1")
	require.NoError(t, err)
	require.NotNil(t, loaded)
	assert.Equal(t, state.FilterMode, loaded.FilterMode)
	require.NotNil(t, loaded.FeedID)
	assert.Equal(t, feedID, *loaded.FeedID)
	assert.Len(t, loaded.ManualReadArticles, 2)
	assert.Len(t, loaded.ReadStates, 2)
}

func TestGetListStateMissingReturnsNil(t *testing.T) {
	repo, _ := newTestSessionRepo(t)

	loaded, err := repo.GetListState(context.Background(), "unknown")
	require.NoError(t, err)
	assert.Nil(t, loaded)
}

func TestExpiredListStateIsDiscardedWholesale(t *testing.T) {
	repo, mr := newTestSessionRepo(t)
	ctx := context.Background()

	state := models.NewSessionListState(models.ArticleScope{}, models.FilterUnread, time.Now())
	state.TrackRead([]uuid.UUID{uuid.New()}, models.MarkAuto)

	// Store a blob that is already past its own expiry timestamp.
	state.CreatedAt = time.Now().Add(-time.Hour)
	state.ExpiresAt = time.Now().Add(-time.Minute)
	require.NoError(t, repo.SaveListState(ctx, "sess-2", state))

	loaded, err := repo.GetListState(ctx, "sess-2")
	require.NoError(t, err)
	assert.Nil(t, loaded)

	// The stale key is deleted rather than left for partial reuse.
	assert.False(t, mr.Exists(listStateKeyPrefix+"sess-2"))
}

func TestPreservedRoundTripAndTTL(t *testing.T) {
	repo, mr := newTestSessionRepo(t)
	ctx := context.Background()

	records := []models.PreservedArticleRecord{
		{ID: uuid.New(), Timestamp: time.Now()},
		{ID: uuid.New(), Timestamp: time.Now().Add(-time.Minute)},
	}
	require.NoError(t, repo.SavePreserved(ctx, "sess-3", records))

	loaded, err := repo.GetPreserved(ctx, "sess-3")
	require.NoError(t, err)
	assert.Len(t, loaded, 2)

	ttl := mr.TTL(preservedKeyPrefix + "sess-3")
	assert.Greater(t, ttl, time.Duration(0))
	assert.LessOrEqual(t, ttl, models.PreservedArticleWindow)
}

func TestRateLimitStateRoundTrip(t *testing.T) {
	repo, _ := newTestSessionRepo(t)
	ctx := context.Background()

	state := models.RateLimitState{
		Used:      42,
		Limit:     100,
		Remaining: 58,
		ResetAt:   time.Now().Add(6 * time.Hour),
		UpdatedAt: time.Now(),
	}
	require.NoError(t, repo.SaveRateLimitState(ctx, state))

	loaded, err := repo.GetRateLimitState(ctx)
	require.NoError(t, err)
	require.NotNil(t, loaded)
	assert.Equal(t, 42, loaded.Used)
	assert.Equal(t, 58, loaded.Remaining)
}

func TestRateLimitStateMissingReturnsNil(t *testing.T) {
	repo, _ := newTestSessionRepo(t)

	loaded, err := repo.GetRateLimitState(context.Background())
	require.NoError(t, err)
	assert.Nil(t, loaded)
}
