// ABOUTME: Orchestrates a full remote pull: budget check, queue drain, trigger, poll, apply
// ABOUTME: Deduplicates concurrent triggers and leaves the cache untouched on failure

package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"reader-sync/driver"
	"reader-sync/models"
	"reader-sync/repository"
)

const (
	syncPollInterval = 2 * time.Second
	syncMaxPolls     = 60
)

// ErrSyncTimeout is returned when the remote pull job does not finish within
// the polling window.
var ErrSyncTimeout = errors.New("sync did not complete within the polling window")

// SyncError carries the exact failure message reported by the remote side.
type SyncError struct {
	Message string
}

func (e *SyncError) Error() string {
	return e.Message
}

// SyncClient is the facade surface the full sync needs.
type SyncClient interface {
	TriggerSync(ctx context.Context) (*models.SyncTriggerResponse, error)
	GetSyncStatus(ctx context.Context, syncID string) (*models.SyncStatusResponse, error)
	FetchChanges(ctx context.Context, syncID string) (*driver.SyncChangesResponse, error)
}

// FullSyncService runs the full pull cycle against the remote aggregator.
// Concurrent triggers collapse into one run via singleflight.
type FullSyncService struct {
	client       SyncClient
	queue        *OutboundQueueService
	rateLimits   *RateLimitManager
	articles     repository.ArticleRepository
	engine       *ArticleQueryEngine
	logger       *slog.Logger
	fullSyncCost int

	group singleflight.Group
	sleep func(ctx context.Context, d time.Duration) error

	mu        sync.RWMutex
	isSyncing bool
	progress  int
	message   string
}

// NewFullSyncService creates the full sync orchestrator.
func NewFullSyncService(
	client SyncClient,
	queue *OutboundQueueService,
	rateLimits *RateLimitManager,
	articles repository.ArticleRepository,
	engine *ArticleQueryEngine,
	fullSyncCost int,
	logger *slog.Logger,
) *FullSyncService {
	if logger == nil {
		logger = slog.Default()
	}
	if fullSyncCost <= 0 {
		fullSyncCost = 1
	}
	return &FullSyncService{
		client:       client,
		queue:        queue,
		rateLimits:   rateLimits,
		articles:     articles,
		engine:       engine,
		logger:       logger,
		fullSyncCost: fullSyncCost,
		sleep:        sleepContext,
	}
}

// PerformFullSync runs one full pull cycle. Calls arriving while a sync is
// already running share its outcome instead of starting another one.
func (s *FullSyncService) PerformFullSync(ctx context.Context) error {
	_, err, _ := s.group.Do("full_sync", func() (any, error) {
		return nil, s.run(ctx)
	})
	return err
}

// Status returns the current sync snapshot for the UI.
func (s *FullSyncService) Status() models.SyncStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return models.SyncStatus{
		IsSyncing: s.isSyncing,
		Progress:  s.progress,
		Message:   s.message,
		RateLimit: s.rateLimits.Snapshot(),
	}
}

func (s *FullSyncService) run(ctx context.Context) error {
	// The budget check comes before anything that could reach the remote
	// side; a refusal must not cost a single API call.
	if err := s.rateLimits.CheckBudget(s.fullSyncCost); err != nil {
		s.logger.Warn("Full sync refused by rate budget", "error", err)
		return err
	}

	s.setStatus(true, 0, "starting sync")
	defer func() {
		s.setStatus(false, 0, "")
	}()

	// Push pending local mutations first so the pull snapshot reflects them.
	if pushed, err := s.queue.Drain(ctx); err != nil {
		s.logger.Warn("Pre-sync queue drain failed, continuing", "error", err)
	} else if pushed > 0 {
		s.logger.Info("Drained outbound queue before pull", "pushed", pushed)
	}

	trigger, err := s.client.TriggerSync(ctx)
	if err != nil {
		return fmt.Errorf("failed to trigger full sync: %w", err)
	}

	// Rate-limit headers on the trigger are applied immediately, no matter
	// how the poll below turns out. The header state already counts the
	// trigger call; only a header-less response is counted locally.
	if trigger.RateLimit != nil {
		s.rateLimits.UpdateFromHeaders(ctx, trigger.RateLimit)
	} else {
		s.rateLimits.RecordUse(ctx, 1)
	}

	status, err := s.poll(ctx, trigger.SyncID)
	if err != nil {
		return err
	}

	if err := s.applyChanges(ctx, trigger.SyncID); err != nil {
		return err
	}

	s.engine.Invalidate()
	s.logger.Info("Full sync completed", "sync_id", trigger.SyncID, "message", status.Message)
	return nil
}

// poll waits for the remote pull job to finish. A failed job surfaces the
// remote error message verbatim; the local cache is left untouched.
func (s *FullSyncService) poll(ctx context.Context, syncID string) (*models.SyncStatusResponse, error) {
	for attempt := 0; attempt < syncMaxPolls; attempt++ {
		if err := s.sleep(ctx, syncPollInterval); err != nil {
			return nil, err
		}

		status, err := s.client.GetSyncStatus(ctx, syncID)
		if err != nil {
			s.logger.Warn("Sync status poll failed, retrying", "sync_id", syncID, "error", err)
			continue
		}

		s.setStatus(true, status.Progress, status.Message)

		switch status.Status {
		case models.SyncCompleted:
			return status, nil
		case models.SyncFailed:
			message := status.Error
			if message == "" {
				message = status.Message
			}
			return nil, &SyncError{Message: message}
		}
	}

	return nil, ErrSyncTimeout
}

// applyChanges downloads the pull snapshot and upserts it into the cache.
// Rows mutated locally after the snapshot was taken keep their local state.
func (s *FullSyncService) applyChanges(ctx context.Context, syncID string) error {
	changes, err := s.client.FetchChanges(ctx, syncID)
	if err != nil {
		return err
	}
	if len(changes.Articles) == 0 {
		return nil
	}

	feedIDs := make(map[string]uuid.UUID)
	articles := make([]*models.Article, 0, len(changes.Articles))
	for _, remote := range changes.Articles {
		article, err := s.toArticle(ctx, remote, feedIDs)
		if err != nil {
			s.logger.Warn("Skipping unmappable remote article",
				"remote_item_id", remote.RemoteItemID, "error", err)
			continue
		}
		articles = append(articles, article)
	}

	applied, err := s.articles.UpsertFromRemote(ctx, articles, changes.SnapshotAt)
	if err != nil {
		return fmt.Errorf("failed to apply pull snapshot: %w", err)
	}

	s.logger.Info("Applied pull snapshot", "received", len(articles), "applied", applied)
	return nil
}

func (s *FullSyncService) toArticle(ctx context.Context, remote driver.RemoteArticle, feedIDs map[string]uuid.UUID) (*models.Article, error) {
	feedID, ok := feedIDs[remote.FeedTitle]
	if !ok {
		var err error
		feedID, err = s.articles.FindOrCreateFeed(ctx, remote.FeedTitle)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve feed %q: %w", remote.FeedTitle, err)
		}
		feedIDs[remote.FeedTitle] = feedID
	}

	now := time.Now()
	return &models.Article{
		ID:           uuid.New(),
		FeedID:       feedID,
		Title:        remote.Title,
		Content:      remote.Content,
		URL:          remote.URL,
		IsRead:       remote.IsRead,
		IsStarred:    remote.IsStarred,
		PublishedAt:  remote.PublishedAt,
		RemoteItemID: remote.RemoteItemID,
		CreatedAt:    now,
	}, nil
}

func (s *FullSyncService) setStatus(syncing bool, progress int, message string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.isSyncing = syncing
	s.progress = progress
	s.message = message
}

// sleepContext sleeps for d or until the context is cancelled.
func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
