// ABOUTME: Durable outbound queue for read/star mutations awaiting remote push
// ABOUTME: Drains on the online signal and before full syncs, dropping exhausted entries

package service

import (
	"context"
	"log/slog"
	"sync/atomic"

	"github.com/google/uuid"

	"reader-sync/models"
	"reader-sync/repository"
)

// drainBatchSize bounds how many entries one drain pass loads.
const drainBatchSize = 100

// QueuePusher pushes one recorded mutation to the remote side.
type QueuePusher interface {
	AddToSyncQueue(ctx context.Context, articleID uuid.UUID, remoteItemID string, action models.SyncActionType) error
}

// OutboundQueueService owns the durable mutation queue. Enqueueing is cheap
// and local; pushing happens in drain passes so a dead remote never blocks a
// mark-read.
type OutboundQueueService struct {
	queue    repository.SyncQueueRepository
	pusher   QueuePusher
	logger   *slog.Logger
	draining atomic.Bool
}

// NewOutboundQueueService creates the outbound queue service.
func NewOutboundQueueService(queue repository.SyncQueueRepository, pusher QueuePusher, logger *slog.Logger) *OutboundQueueService {
	if logger == nil {
		logger = slog.Default()
	}
	return &OutboundQueueService{
		queue:  queue,
		pusher: pusher,
		logger: logger,
	}
}

// Enqueue records a mutation for later push. Articles without a remote item
// id are local-only and skipped.
func (s *OutboundQueueService) Enqueue(ctx context.Context, action models.SyncActionType, articleID uuid.UUID, remoteItemID string) error {
	if remoteItemID == "" {
		s.logger.Debug("Skipping outbound entry for local-only article",
			"article_id", articleID, "action", action)
		return nil
	}

	entry := models.NewOutboundQueueEntry(action, articleID, remoteItemID)
	if err := s.queue.Enqueue(ctx, entry); err != nil {
		return err
	}

	s.logger.Debug("Queued outbound mutation",
		"action", action,
		"article_id", articleID,
		"remote_item_id", remoteItemID)
	return nil
}

// Drain pushes pending entries oldest first. Per-entry push failures bump the
// retry count; entries that exhaust their retries are dropped with a warning.
// Only a failure to read the queue itself is an error.
func (s *OutboundQueueService) Drain(ctx context.Context) (int, error) {
	entries, err := s.queue.ListPending(ctx, drainBatchSize)
	if err != nil {
		return 0, err
	}
	if len(entries) == 0 {
		return 0, nil
	}

	pushed := 0
	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return pushed, err
		}

		err := s.pusher.AddToSyncQueue(ctx, entry.ArticleID, entry.RemoteItemID, entry.Type)
		if err == nil {
			if err := s.queue.Delete(ctx, entry.ID); err != nil {
				s.logger.Warn("Failed to delete pushed queue entry", "entry_id", entry.ID, "error", err)
			}
			pushed++
			continue
		}

		retries, retryErr := s.queue.IncrementRetry(ctx, entry.ID)
		if retryErr != nil {
			s.logger.Warn("Failed to record push retry", "entry_id", entry.ID, "error", retryErr)
			continue
		}

		if retries >= entry.MaxRetries {
			s.logger.Warn("Dropping outbound entry after exhausting retries",
				"entry_id", entry.ID,
				"action", entry.Type,
				"remote_item_id", entry.RemoteItemID,
				"retries", retries,
				"error", err)
			if err := s.queue.Delete(ctx, entry.ID); err != nil {
				s.logger.Warn("Failed to drop exhausted queue entry", "entry_id", entry.ID, "error", err)
			}
		} else {
			s.logger.Debug("Push failed, entry kept for retry",
				"entry_id", entry.ID,
				"retries", retries,
				"error", err)
		}
	}

	s.logger.Info("Outbound queue drain completed", "pushed", pushed, "loaded", len(entries))
	return pushed, nil
}

// NotifyOnline starts a background drain when connectivity returns. Repeated
// signals while a drain is running are ignored.
func (s *OutboundQueueService) NotifyOnline() {
	if !s.draining.CompareAndSwap(false, true) {
		return
	}

	go func() {
		defer s.draining.Store(false)
		if _, err := s.Drain(context.Background()); err != nil {
			s.logger.Warn("Online drain failed", "error", err)
		}
	}()
}

// Pending returns the number of entries awaiting push.
func (s *OutboundQueueService) Pending(ctx context.Context) (int, error) {
	return s.queue.Count(ctx)
}
