// ABOUTME: Applies read and star mutations to the cache, session state and outbound queue
// ABOUTME: Optimistic apply-then-reconcile: the local write is never rolled back on push failure

package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"reader-sync/models"
	"reader-sync/repository"
)

// VisibleStateMirror receives optimistic updates for rows the UI currently
// shows. Implemented by the query engine.
type VisibleStateMirror interface {
	ApplyReadState(ids []uuid.UUID, read bool)
	ApplyStar(id uuid.UUID, starred bool)
}

// MarkContext carries the session and view scope a mutation happened in.
// Scope and filter are only used when a session state has to be created.
type MarkContext struct {
	SessionID string
	Scope     models.ArticleScope
	Filter    models.ReadStatusFilter
}

// ReadStateService coordinates a mutation across the durable cache, the
// session view state, the preserved-id set and the outbound queue. The cache
// write is the source of truth; session bookkeeping and enqueueing are
// best-effort on top of it.
type ReadStateService struct {
	articles repository.ArticleRepository
	sessions repository.SessionStateRepository
	queue    *OutboundQueueService
	mirror   VisibleStateMirror
	logger   *slog.Logger
	now      func() time.Time
}

// NewReadStateService creates the read-state service.
func NewReadStateService(
	articles repository.ArticleRepository,
	sessions repository.SessionStateRepository,
	queue *OutboundQueueService,
	mirror VisibleStateMirror,
	logger *slog.Logger,
) *ReadStateService {
	if logger == nil {
		logger = slog.Default()
	}
	return &ReadStateService{
		articles: articles,
		sessions: sessions,
		queue:    queue,
		mirror:   mirror,
		logger:   logger,
		now:      time.Now,
	}
}

// MarkRead marks articles read. Already-read articles are a no-op and produce
// no session tracking and no outbound entries. Mutated rows are folded into
// the session's tracked arrays and preserved-id set, then queued for push.
func (s *ReadStateService) MarkRead(ctx context.Context, mc MarkContext, ids []uuid.UUID, markType models.MarkType) error {
	if len(ids) == 0 {
		return nil
	}

	mutated, err := s.articles.MarkRead(ctx, ids, true, s.now())
	if err != nil {
		return err
	}
	if len(mutated) == 0 {
		return nil
	}

	mutatedIDs := collectIDs(mutated)
	s.mirror.ApplyReadState(mutatedIDs, true)
	s.trackSession(ctx, mc, mutatedIDs, markType)
	s.enqueueAll(ctx, models.ActionMarkRead, mutated)
	return nil
}

// MarkUnread reverts articles to unread. Unread rows leave the preserved set
// alone: they match the unread predicate on their own.
func (s *ReadStateService) MarkUnread(ctx context.Context, mc MarkContext, ids []uuid.UUID) error {
	if len(ids) == 0 {
		return nil
	}

	mutated, err := s.articles.MarkRead(ctx, ids, false, s.now())
	if err != nil {
		return err
	}
	if len(mutated) == 0 {
		return nil
	}

	mutatedIDs := collectIDs(mutated)
	s.mirror.ApplyReadState(mutatedIDs, false)
	s.overrideSessionReadState(ctx, mc.SessionID, mutatedIDs, false)
	s.enqueueAll(ctx, models.ActionMarkUnread, mutated)
	return nil
}

// MarkAllRead marks every article in the scope read, tracked as a bulk mark.
func (s *ReadStateService) MarkAllRead(ctx context.Context, mc MarkContext) (int, error) {
	mutated, err := s.articles.MarkAllRead(ctx, mc.Scope, s.now())
	if err != nil {
		return 0, err
	}
	if len(mutated) == 0 {
		return 0, nil
	}

	mutatedIDs := collectIDs(mutated)
	s.mirror.ApplyReadState(mutatedIDs, true)
	s.trackSession(ctx, mc, mutatedIDs, models.MarkBulk)
	s.enqueueAll(ctx, models.ActionMarkRead, mutated)
	return len(mutated), nil
}

// ToggleStar flips an article's star and queues the matching remote action.
func (s *ReadStateService) ToggleStar(ctx context.Context, id uuid.UUID) (*models.MutatedArticle, error) {
	mutated, err := s.articles.ToggleStar(ctx, id, s.now())
	if err != nil {
		return nil, err
	}

	s.mirror.ApplyStar(mutated.ID, mutated.IsStarred)

	action := models.ActionUnstar
	if mutated.IsStarred {
		action = models.ActionStar
	}
	if err := s.queue.Enqueue(ctx, action, mutated.ID, mutated.RemoteItemID); err != nil {
		s.logger.Warn("Failed to queue star mutation", "article_id", mutated.ID, "error", err)
	}
	return mutated, nil
}

// trackSession folds mutated ids into the session's list state and preserved
// set. The state is created lazily with the scope of the first mutation and
// never rescoped afterwards. Failures are logged, not returned: the cache
// write already happened and must not be reported as failed.
func (s *ReadStateService) trackSession(ctx context.Context, mc MarkContext, ids []uuid.UUID, markType models.MarkType) {
	if mc.SessionID == "" {
		return
	}
	now := s.now()

	state, err := s.sessions.GetListState(ctx, mc.SessionID)
	if err != nil {
		s.logger.Warn("Failed to load session list state", "session_id", mc.SessionID, "error", err)
		return
	}
	if state == nil {
		state = models.NewSessionListState(mc.Scope, mc.Filter, now)
	}

	state.TrackRead(ids, markType)
	if err := s.sessions.SaveListState(ctx, mc.SessionID, state); err != nil {
		s.logger.Warn("Failed to save session list state", "session_id", mc.SessionID, "error", err)
	}

	records, err := s.sessions.GetPreserved(ctx, mc.SessionID)
	if err != nil {
		s.logger.Warn("Failed to load preserved ids", "session_id", mc.SessionID, "error", err)
		return
	}
	merged := models.MergePreserved(records, ids, now)
	if err := s.sessions.SavePreserved(ctx, mc.SessionID, merged); err != nil {
		s.logger.Warn("Failed to save preserved ids", "session_id", mc.SessionID, "error", err)
	}
}

// overrideSessionReadState flips the tracked read flag for ids the session
// already knows about. Untracked ids are left alone.
func (s *ReadStateService) overrideSessionReadState(ctx context.Context, sessionID string, ids []uuid.UUID, read bool) {
	if sessionID == "" {
		return
	}

	state, err := s.sessions.GetListState(ctx, sessionID)
	if err != nil {
		s.logger.Warn("Failed to load session list state", "session_id", sessionID, "error", err)
		return
	}
	if state == nil {
		return
	}

	for _, id := range ids {
		state.SetReadState(id, read)
	}
	if err := s.sessions.SaveListState(ctx, sessionID, state); err != nil {
		s.logger.Warn("Failed to save session list state", "session_id", sessionID, "error", err)
	}
}

func (s *ReadStateService) enqueueAll(ctx context.Context, action models.SyncActionType, mutated []models.MutatedArticle) {
	for _, m := range mutated {
		if err := s.queue.Enqueue(ctx, action, m.ID, m.RemoteItemID); err != nil {
			s.logger.Warn("Failed to queue outbound mutation",
				"action", action, "article_id", m.ID, "error", err)
		}
	}
}

func collectIDs(mutated []models.MutatedArticle) []uuid.UUID {
	ids := make([]uuid.UUID, 0, len(mutated))
	for _, m := range mutated {
		ids = append(ids, m.ID)
	}
	return ids
}
