// ABOUTME: This file defines session-scoped view state for filtered article lists
// ABOUTME: Tracks recently read articles so filtered views do not drop them mid-session

package models

import (
	"sort"
	"time"

	"github.com/google/uuid"
)

const (
	// SessionStateTTL bounds how long a browsing session's list state lives.
	SessionStateTTL = 30 * time.Minute

	// TrackedArticleLimit caps each of the auto/manual tracked arrays.
	TrackedArticleLimit = 50

	// PreservedArticleLimit caps the preserved-id set.
	PreservedArticleLimit = 50

	// PreservedArticleWindow is how long a preserved id stays eligible for
	// the hybrid query.
	PreservedArticleWindow = 30 * time.Minute
)

// MarkType distinguishes how an article came to be marked read.
type MarkType string

const (
	MarkManual MarkType = "manual"
	MarkAuto   MarkType = "auto"
	MarkBulk   MarkType = "bulk"
)

// SessionListState is the per-session view state for a filtered article list.
// It is created lazily, replaced wholesale on save, and expires by timestamp.
// Scope fields are captured only at creation and never overwritten.
type SessionListState struct {
	ArticleIDs         []uuid.UUID        `json:"article_ids"`
	ReadStates         map[uuid.UUID]bool `json:"read_states"`
	AutoReadArticles   []uuid.UUID        `json:"auto_read_articles"`
	ManualReadArticles []uuid.UUID        `json:"manual_read_articles"`
	FilterMode         ReadStatusFilter   `json:"filter_mode"`
	FeedID             *uuid.UUID         `json:"feed_id,omitempty"`
	FolderID           *uuid.UUID         `json:"folder_id,omitempty"`
	CreatedAt          time.Time          `json:"created_at"`
	ExpiresAt          time.Time          `json:"expires_at"`
}

// NewSessionListState creates a session state scoped to the given context.
func NewSessionListState(scope ArticleScope, filter ReadStatusFilter, now time.Time) *SessionListState {
	return &SessionListState{
		ReadStates:         make(map[uuid.UUID]bool),
		AutoReadArticles:   []uuid.UUID{},
		ManualReadArticles: []uuid.UUID{},
		FilterMode:         filter,
		FeedID:             scope.FeedID,
		FolderID:           scope.FolderID,
		CreatedAt:          now,
		ExpiresAt:          now.Add(SessionStateTTL),
	}
}

// IsExpired reports whether the session state has passed its expiry.
// Expired state is discarded wholesale, never partially merged.
func (s *SessionListState) IsExpired(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}

// TrackRead folds newly read article ids into the tracked arrays. Bulk marks
// are tracked as manual. Each array is deduplicated keeping the most recent
// occurrence and truncated to the newest TrackedArticleLimit entries, then
// ReadStates is recomputed restricted to ids present in the tracked arrays.
func (s *SessionListState) TrackRead(ids []uuid.UUID, markType MarkType) {
	if len(ids) == 0 {
		return
	}

	switch markType {
	case MarkAuto:
		s.AutoReadArticles = appendBounded(s.AutoReadArticles, ids, TrackedArticleLimit)
	default:
		s.ManualReadArticles = appendBounded(s.ManualReadArticles, ids, TrackedArticleLimit)
	}

	s.recomputeReadStates()
}

// SetReadState records a read-state override for an already tracked id.
// Untracked ids are ignored to keep the map bounded.
func (s *SessionListState) SetReadState(id uuid.UUID, read bool) {
	if _, tracked := s.ReadStates[id]; tracked {
		s.ReadStates[id] = read
	}
}

// TrackedUnion returns the union of both tracked arrays, newest last.
func (s *SessionListState) TrackedUnion() []uuid.UUID {
	seen := make(map[uuid.UUID]struct{}, len(s.AutoReadArticles)+len(s.ManualReadArticles))
	union := make([]uuid.UUID, 0, len(s.AutoReadArticles)+len(s.ManualReadArticles))
	for _, id := range s.AutoReadArticles {
		if _, ok := seen[id]; !ok {
			seen[id] = struct{}{}
			union = append(union, id)
		}
	}
	for _, id := range s.ManualReadArticles {
		if _, ok := seen[id]; !ok {
			seen[id] = struct{}{}
			union = append(union, id)
		}
	}
	return union
}

// recomputeReadStates rebuilds the map as exactly the tracked-array union,
// preserving explicit overrides and defaulting new entries to read.
func (s *SessionListState) recomputeReadStates() {
	next := make(map[uuid.UUID]bool, len(s.AutoReadArticles)+len(s.ManualReadArticles))
	for _, id := range s.TrackedUnion() {
		if prev, ok := s.ReadStates[id]; ok {
			next[id] = prev
		} else {
			next[id] = true
		}
	}
	s.ReadStates = next
}

// appendBounded appends ids deduplicated by most-recent occurrence and keeps
// only the newest limit entries.
func appendBounded(existing, incoming []uuid.UUID, limit int) []uuid.UUID {
	merged := make([]uuid.UUID, 0, len(existing)+len(incoming))
	merged = append(merged, existing...)
	merged = append(merged, incoming...)

	seen := make(map[uuid.UUID]struct{}, len(merged))
	deduped := make([]uuid.UUID, 0, len(merged))
	for i := len(merged) - 1; i >= 0; i-- {
		id := merged[i]
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		deduped = append(deduped, id)
	}

	// deduped is newest-first; restore chronological order.
	for i, j := 0, len(deduped)-1; i < j; i, j = i+1, j-1 {
		deduped[i], deduped[j] = deduped[j], deduped[i]
	}

	if len(deduped) > limit {
		deduped = deduped[len(deduped)-limit:]
	}
	return deduped
}

// PreservedArticleRecord keeps an article id visible in filtered views for a
// bounded window after it stopped matching the filter predicate.
type PreservedArticleRecord struct {
	ID        uuid.UUID `json:"id"`
	Timestamp time.Time `json:"timestamp"`
}

// MergePreserved folds ids into an existing preserved set with fresh
// timestamps, deduplicates keeping the newest timestamp per id, drops entries
// older than PreservedArticleWindow and caps the result at
// PreservedArticleLimit entries by recency.
func MergePreserved(existing []PreservedArticleRecord, ids []uuid.UUID, now time.Time) []PreservedArticleRecord {
	newest := make(map[uuid.UUID]time.Time, len(existing)+len(ids))
	for _, rec := range existing {
		if ts, ok := newest[rec.ID]; !ok || rec.Timestamp.After(ts) {
			newest[rec.ID] = rec.Timestamp
		}
	}
	for _, id := range ids {
		if ts, ok := newest[id]; !ok || now.After(ts) {
			newest[id] = now
		}
	}

	cutoff := now.Add(-PreservedArticleWindow)
	merged := make([]PreservedArticleRecord, 0, len(newest))
	for id, ts := range newest {
		if ts.After(cutoff) {
			merged = append(merged, PreservedArticleRecord{ID: id, Timestamp: ts})
		}
	}

	sort.Slice(merged, func(i, j int) bool {
		if merged[i].Timestamp.Equal(merged[j].Timestamp) {
			return merged[i].ID.String() < merged[j].ID.String()
		}
		return merged[i].Timestamp.After(merged[j].Timestamp)
	})

	if len(merged) > PreservedArticleLimit {
		merged = merged[:PreservedArticleLimit]
	}
	return merged
}

// ActivePreservedIDs returns the ids still inside the preservation window.
func ActivePreservedIDs(records []PreservedArticleRecord, now time.Time) []uuid.UUID {
	cutoff := now.Add(-PreservedArticleWindow)
	ids := make([]uuid.UUID, 0, len(records))
	for _, rec := range records {
		if rec.Timestamp.After(cutoff) {
			ids = append(ids, rec.ID)
		}
	}
	return ids
}
