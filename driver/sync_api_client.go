// ABOUTME: HTTP client for the server-side sync facade in front of the aggregator
// ABOUTME: Handles pull trigger, status polling, queue recording and rate-limit headers

package driver

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"reader-sync/models"
	"reader-sync/utils"
)

const defaultRequestTimeout = 30 * time.Second

// RateLimitHook receives the rate-limit state parsed from response headers
// after every remote call.
type RateLimitHook func(state *models.RateLimitState)

// SyncAPIClient talks to the sync facade over HTTP. All calls run through a
// circuit breaker so a dead remote cannot stall queue draining.
type SyncAPIClient struct {
	httpClient  *http.Client
	baseURL     string
	breaker     *utils.CircuitBreaker
	logger      *slog.Logger
	onRateLimit RateLimitHook
}

// NewSyncAPIClient creates a new facade client.
func NewSyncAPIClient(baseURL string, timeout time.Duration, onRateLimit RateLimitHook, logger *slog.Logger) *SyncAPIClient {
	if logger == nil {
		logger = slog.Default()
	}
	if timeout <= 0 {
		timeout = defaultRequestTimeout
	}

	return &SyncAPIClient{
		httpClient:  &http.Client{Timeout: timeout},
		baseURL:     strings.TrimRight(baseURL, "/"),
		breaker:     utils.NewCircuitBreaker(nil, logger),
		logger:      logger,
		onRateLimit: onRateLimit,
	}
}

// TriggerSync starts a server-side pull and returns the job id. Rate-limit
// headers on the trigger response are applied immediately, independent of
// how the poll later turns out.
func (c *SyncAPIClient) TriggerSync(ctx context.Context) (*models.SyncTriggerResponse, error) {
	var trigger models.SyncTriggerResponse

	err := c.breaker.Execute(ctx, func(ctx context.Context) error {
		body, headers, err := c.do(ctx, http.MethodPost, "/sync", nil)
		if err != nil {
			return err
		}

		if err := json.Unmarshal(body, &trigger); err != nil {
			return fmt.Errorf("failed to decode sync trigger response: %w", err)
		}
		if trigger.RateLimit == nil {
			trigger.RateLimit = parseRateLimitHeaders(headers)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("sync trigger failed: %w", err)
	}

	c.logger.Info("Remote pull triggered", "sync_id", trigger.SyncID)
	return &trigger, nil
}

// GetSyncStatus polls the status of a running pull job.
func (c *SyncAPIClient) GetSyncStatus(ctx context.Context, syncID string) (*models.SyncStatusResponse, error) {
	var status models.SyncStatusResponse

	err := c.breaker.Execute(ctx, func(ctx context.Context) error {
		body, _, err := c.do(ctx, http.MethodGet, "/sync/status/"+syncID, nil)
		if err != nil {
			return err
		}
		if err := json.Unmarshal(body, &status); err != nil {
			return fmt.Errorf("failed to decode sync status response: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("sync status poll failed: %w", err)
	}

	return &status, nil
}

// RemoteArticle is one article row in a pull snapshot from the facade.
// Feeds are identified by title; the engine resolves them to local ids.
type RemoteArticle struct {
	RemoteItemID string    `json:"remote_item_id"`
	FeedTitle    string    `json:"feed_title"`
	Title        string    `json:"title"`
	Content      string    `json:"content"`
	URL          string    `json:"url"`
	IsRead       bool      `json:"is_read"`
	IsStarred    bool      `json:"is_starred"`
	PublishedAt  time.Time `json:"published_at"`
}

// SyncChangesResponse is the article snapshot produced by a completed pull.
type SyncChangesResponse struct {
	SnapshotAt time.Time       `json:"snapshot_at"`
	Articles   []RemoteArticle `json:"articles"`
}

// FetchChanges downloads the snapshot produced by a completed pull job.
func (c *SyncAPIClient) FetchChanges(ctx context.Context, syncID string) (*SyncChangesResponse, error) {
	var changes SyncChangesResponse

	err := c.breaker.Execute(ctx, func(ctx context.Context) error {
		body, _, err := c.do(ctx, http.MethodGet, "/sync/changes/"+syncID, nil)
		if err != nil {
			return err
		}
		if err := json.Unmarshal(body, &changes); err != nil {
			return fmt.Errorf("failed to decode sync changes response: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to fetch sync changes: %w", err)
	}

	c.logger.Info("Fetched pull snapshot", "sync_id", syncID, "articles", len(changes.Articles))
	return &changes, nil
}

// AddToSyncQueue records a local mutation in the server-side outbound queue
// keyed by remote item id. The actual push to the aggregator happens server
// side.
func (c *SyncAPIClient) AddToSyncQueue(ctx context.Context, articleID uuid.UUID, remoteItemID string, action models.SyncActionType) error {
	payload := map[string]string{
		"article_id":     articleID.String(),
		"remote_item_id": remoteItemID,
		"action_type":    string(action),
	}

	err := c.breaker.Execute(ctx, func(ctx context.Context) error {
		_, _, err := c.do(ctx, http.MethodPost, "/sync/queue", payload)
		return err
	})
	if err != nil {
		return fmt.Errorf("failed to record %s for %s: %w", action, remoteItemID, err)
	}

	c.logger.Debug("Recorded mutation in remote sync queue",
		"action", action,
		"remote_item_id", remoteItemID)
	return nil
}

// do performs one HTTP round trip and feeds rate-limit headers to the hook.
func (c *SyncAPIClient) do(ctx context.Context, method, path string, payload any) ([]byte, http.Header, error) {
	var reqBody io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to encode request body: %w", err)
		}
		reqBody = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to build request: %w", err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, nil, fmt.Errorf("request to %s failed: %w", path, err)
	}
	defer resp.Body.Close()

	if state := parseRateLimitHeaders(resp.Header); state != nil && c.onRateLimit != nil {
		c.onRateLimit(state)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, nil, fmt.Errorf("unexpected status %d from %s", resp.StatusCode, path)
	}

	return body, resp.Header, nil
}

// parseRateLimitHeaders extracts the daily budget position from the
// aggregator's zone headers. Returns nil when no usage header is present.
func parseRateLimitHeaders(headers http.Header) *models.RateLimitState {
	usageRaw := headers.Get("X-Reader-Zone1-Usage")
	if usageRaw == "" {
		return nil
	}

	now := time.Now()
	state := &models.RateLimitState{
		ResetAt:   models.NextMidnight(now),
		UpdatedAt: now,
	}

	if usage, err := strconv.Atoi(usageRaw); err == nil {
		state.Used = usage
	}
	if limit, err := strconv.Atoi(headers.Get("X-Reader-Zone1-Limit")); err == nil {
		state.Limit = limit
	}
	if remaining, err := strconv.Atoi(headers.Get("X-Reader-Zone1-Remaining")); err == nil {
		state.Remaining = remaining
	} else if state.Limit > 0 {
		state.Remaining = state.Limit - state.Used
	}
	if resetAfter, err := strconv.Atoi(headers.Get("X-Reader-Limits-Reset-After")); err == nil && resetAfter > 0 {
		state.ResetAt = now.Add(time.Duration(resetAfter) * time.Second)
	}

	return state
}
