// ABOUTME: Redis implementation of the session-scoped ephemeral state store
// ABOUTME: Holds list-state and preserved-id blobs with TTLs plus the rate-limit snapshot

package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"reader-sync/models"
)

const (
	listStateKeyPrefix = "session:list_state:"
	preservedKeyPrefix = "session:preserved:"
	rateLimitStateKey  = "ratelimit:state"
)

// RedisSessionStateRepository implements SessionStateRepository on Redis.
// Blobs carry their own expiry timestamps; the key TTL is a backstop so
// abandoned sessions clean themselves up.
type RedisSessionStateRepository struct {
	client *redis.Client
	logger *slog.Logger
}

// NewRedisSessionStateRepository creates a session state repository.
func NewRedisSessionStateRepository(client *redis.Client, logger *slog.Logger) *RedisSessionStateRepository {
	if logger == nil {
		logger = slog.Default()
	}
	return &RedisSessionStateRepository{client: client, logger: logger}
}

// GetListState loads the session's list state. Missing or expired state
// returns nil; expired state is dropped wholesale, never partially merged.
func (r *RedisSessionStateRepository) GetListState(ctx context.Context, sessionID string) (*models.SessionListState, error) {
	raw, err := r.client.Get(ctx, listStateKeyPrefix+sessionID).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to load session list state: %w", err)
	}

	var state models.SessionListState
	if err := json.Unmarshal(raw, &state); err != nil {
		r.logger.Warn("Discarding undecodable session list state", "session_id", sessionID, "error", err)
		return nil, nil
	}

	if state.IsExpired(time.Now()) {
		if err := r.client.Del(ctx, listStateKeyPrefix+sessionID).Err(); err != nil {
			r.logger.Warn("Failed to delete expired session list state", "session_id", sessionID, "error", err)
		}
		return nil, nil
	}

	return &state, nil
}

// SaveListState replaces the session's list state wholesale.
func (r *RedisSessionStateRepository) SaveListState(ctx context.Context, sessionID string, state *models.SessionListState) error {
	raw, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("failed to encode session list state: %w", err)
	}

	ttl := time.Until(state.ExpiresAt)
	if ttl <= 0 {
		ttl = time.Second
	}

	if err := r.client.Set(ctx, listStateKeyPrefix+sessionID, raw, ttl).Err(); err != nil {
		return fmt.Errorf("failed to save session list state: %w", err)
	}
	return nil
}

// GetPreserved loads the session's preserved-id records.
func (r *RedisSessionStateRepository) GetPreserved(ctx context.Context, sessionID string) ([]models.PreservedArticleRecord, error) {
	raw, err := r.client.Get(ctx, preservedKeyPrefix+sessionID).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to load preserved article ids: %w", err)
	}

	var records []models.PreservedArticleRecord
	if err := json.Unmarshal(raw, &records); err != nil {
		r.logger.Warn("Discarding undecodable preserved-id blob", "session_id", sessionID, "error", err)
		return nil, nil
	}
	return records, nil
}

// SavePreserved replaces the session's preserved-id records.
func (r *RedisSessionStateRepository) SavePreserved(ctx context.Context, sessionID string, records []models.PreservedArticleRecord) error {
	raw, err := json.Marshal(records)
	if err != nil {
		return fmt.Errorf("failed to encode preserved article ids: %w", err)
	}

	if err := r.client.Set(ctx, preservedKeyPrefix+sessionID, raw, models.PreservedArticleWindow).Err(); err != nil {
		return fmt.Errorf("failed to save preserved article ids: %w", err)
	}
	return nil
}

// GetRateLimitState loads the persisted rate-limit snapshot, if any.
func (r *RedisSessionStateRepository) GetRateLimitState(ctx context.Context) (*models.RateLimitState, error) {
	raw, err := r.client.Get(ctx, rateLimitStateKey).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to load rate limit state: %w", err)
	}

	var state models.RateLimitState
	if err := json.Unmarshal(raw, &state); err != nil {
		r.logger.Warn("Discarding undecodable rate limit state", "error", err)
		return nil, nil
	}
	return &state, nil
}

// SaveRateLimitState persists the rate-limit snapshot until its daily reset.
func (r *RedisSessionStateRepository) SaveRateLimitState(ctx context.Context, state models.RateLimitState) error {
	raw, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("failed to encode rate limit state: %w", err)
	}

	ttl := time.Until(state.ResetAt)
	if ttl <= 0 {
		ttl = time.Minute
	}

	if err := r.client.Set(ctx, rateLimitStateKey, raw, ttl).Err(); err != nil {
		return fmt.Errorf("failed to save rate limit state: %w", err)
	}
	return nil
}
