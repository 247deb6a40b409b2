// ABOUTME: Tracks the remote aggregator's daily call budget
// ABOUTME: Updates from response headers, persists snapshots and refuses over-budget work

package service

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"reader-sync/models"
	"reader-sync/repository"
)

// RateLimitError is returned when an operation would exceed the remaining
// daily budget. It carries enough context for the UI to explain the refusal.
type RateLimitError struct {
	Required  int
	Remaining int
	ResetAt   time.Time
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("daily API budget exhausted: need %d, %d remaining until %s",
		e.Required, e.Remaining, e.ResetAt.Format(time.RFC3339))
}

// RateLimitManager tracks the position against the remote daily budget.
// State is process-local with a persisted snapshot so a restart inside the
// same budget day resumes from the last known position.
type RateLimitManager struct {
	store  repository.SessionStateRepository
	logger *slog.Logger
	now    func() time.Time

	mu    sync.RWMutex
	state models.RateLimitState
}

// NewRateLimitManager creates a manager seeded with a fresh daily budget.
func NewRateLimitManager(dailyLimit int, store repository.SessionStateRepository, logger *slog.Logger) *RateLimitManager {
	if logger == nil {
		logger = slog.Default()
	}
	now := time.Now
	return &RateLimitManager{
		store:  store,
		logger: logger,
		now:    now,
		state:  models.NewRateLimitState(dailyLimit, now()),
	}
}

// Load restores the persisted snapshot if one exists and is still inside the
// current budget day.
func (m *RateLimitManager) Load(ctx context.Context) error {
	state, err := m.store.GetRateLimitState(ctx)
	if err != nil {
		return fmt.Errorf("failed to load rate limit snapshot: %w", err)
	}
	if state == nil {
		return nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.now().After(state.ResetAt) {
		m.logger.Info("Persisted rate limit snapshot is from a previous day, starting fresh")
		return nil
	}

	m.state = *state
	m.logger.Info("Restored rate limit snapshot",
		"used", state.Used,
		"remaining", state.Remaining,
		"reset_at", state.ResetAt)
	return nil
}

// UpdateFromHeaders applies a state parsed from remote response headers.
// Header-derived state is authoritative and replaces local bookkeeping.
func (m *RateLimitManager) UpdateFromHeaders(ctx context.Context, state *models.RateLimitState) {
	if state == nil {
		return
	}

	m.mu.Lock()
	m.state = *state
	snapshot := m.state
	m.mu.Unlock()

	m.logger.Info("Rate limit updated from response headers",
		"used", snapshot.Used,
		"limit", snapshot.Limit,
		"remaining", snapshot.Remaining)

	if err := m.store.SaveRateLimitState(ctx, snapshot); err != nil {
		m.logger.Warn("Failed to persist rate limit snapshot", "error", err)
	}
}

// RecordUse counts locally initiated remote calls between header updates.
func (m *RateLimitManager) RecordUse(ctx context.Context, calls int) {
	if calls <= 0 {
		return
	}

	m.mu.Lock()
	m.resetIfNewDayLocked()
	m.state.Used += calls
	m.state.Remaining = m.state.Limit - m.state.Used
	if m.state.Remaining < 0 {
		m.state.Remaining = 0
	}
	m.state.UpdatedAt = m.now()
	snapshot := m.state
	m.mu.Unlock()

	if err := m.store.SaveRateLimitState(ctx, snapshot); err != nil {
		m.logger.Warn("Failed to persist rate limit snapshot", "error", err)
	}
}

// CheckBudget refuses an operation whose estimated cost exceeds the remaining
// budget. The refusal happens before any remote call is issued.
func (m *RateLimitManager) CheckBudget(estimatedCost int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.resetIfNewDayLocked()

	if m.state.Remaining < estimatedCost {
		return &RateLimitError{
			Required:  estimatedCost,
			Remaining: m.state.Remaining,
			ResetAt:   m.state.ResetAt,
		}
	}
	return nil
}

// Snapshot returns a copy of the current budget position.
func (m *RateLimitManager) Snapshot() models.RateLimitState {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.resetIfNewDayLocked()
	return m.state
}

// resetIfNewDayLocked rolls the budget over once the reset point has passed.
// Caller must hold mu.
func (m *RateLimitManager) resetIfNewDayLocked() {
	now := m.now()
	if now.After(m.state.ResetAt) {
		m.logger.Info("Daily rate limit reset", "previous_used", m.state.Used)
		m.state = models.NewRateLimitState(m.state.Limit, now)
	}
}
