// ABOUTME: This file defines models for outbound sync, rate budgeting and full sync jobs
// ABOUTME: Covers the durable mutation queue and the remote pull trigger/poll protocol

package models

import (
	"time"

	"github.com/google/uuid"
)

// SyncActionType identifies a local mutation awaiting push to the remote
// aggregator.
type SyncActionType string

const (
	ActionMarkRead   SyncActionType = "mark_read"
	ActionMarkUnread SyncActionType = "mark_unread"
	ActionStar       SyncActionType = "star"
	ActionUnstar     SyncActionType = "unstar"
)

// DefaultMaxRetries is how often a queue entry is retried before being
// dropped with a warning.
const DefaultMaxRetries = 3

// OutboundQueueEntry is a durable record of a local mutation awaiting push.
type OutboundQueueEntry struct {
	ID           uuid.UUID      `json:"id" db:"id"`
	Type         SyncActionType `json:"type" db:"action_type"`
	ArticleID    uuid.UUID      `json:"article_id" db:"article_id"`
	RemoteItemID string         `json:"remote_item_id" db:"remote_item_id"`
	CreatedAt    time.Time      `json:"created_at" db:"created_at"`
	RetryCount   int            `json:"retry_count" db:"retry_count"`
	MaxRetries   int            `json:"max_retries" db:"max_retries"`
}

// NewOutboundQueueEntry creates a queue entry for a mutated article.
func NewOutboundQueueEntry(action SyncActionType, articleID uuid.UUID, remoteItemID string) *OutboundQueueEntry {
	return &OutboundQueueEntry{
		ID:           uuid.New(),
		Type:         action,
		ArticleID:    articleID,
		RemoteItemID: remoteItemID,
		CreatedAt:    time.Now(),
		RetryCount:   0,
		MaxRetries:   DefaultMaxRetries,
	}
}

// Exhausted reports whether the entry has used up its retry budget.
func (e *OutboundQueueEntry) Exhausted() bool {
	return e.RetryCount >= e.MaxRetries
}

// RateLimitState is the current position against the remote daily call budget,
// updated from response metadata after every remote call.
type RateLimitState struct {
	Used      int       `json:"used"`
	Limit     int       `json:"limit"`
	Remaining int       `json:"remaining"`
	ResetAt   time.Time `json:"reset_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewRateLimitState creates a fresh state for the given daily limit.
func NewRateLimitState(limit int, now time.Time) RateLimitState {
	return RateLimitState{
		Used:      0,
		Limit:     limit,
		Remaining: limit,
		ResetAt:   NextMidnight(now),
		UpdatedAt: now,
	}
}

// SyncJobStatus is the remote pull job state reported by the status endpoint.
type SyncJobStatus string

const (
	SyncPending   SyncJobStatus = "pending"
	SyncCompleted SyncJobStatus = "completed"
	SyncFailed    SyncJobStatus = "failed"
)

// SyncTriggerResponse is the response to a remote pull trigger.
type SyncTriggerResponse struct {
	SyncID    string          `json:"sync_id"`
	RateLimit *RateLimitState `json:"rate_limit,omitempty"`
}

// SyncStatusResponse is one poll of the remote pull job.
type SyncStatusResponse struct {
	Status   SyncJobStatus `json:"status"`
	Progress int           `json:"progress"`
	Message  string        `json:"message"`
	Error    string        `json:"error,omitempty"`
}

// SyncStatus is the engine-side status snapshot exposed to the UI.
type SyncStatus struct {
	IsSyncing bool           `json:"is_syncing"`
	Progress  int            `json:"progress"`
	Message   string         `json:"message"`
	RateLimit RateLimitState `json:"rate_limit"`
}

// NextMidnight returns the start of the next day in local time, the point at
// which the remote daily budget resets.
func NextMidnight(now time.Time) time.Time {
	return time.Date(now.Year(), now.Month(), now.Day()+1, 0, 0, 0, 0, now.Location())
}
