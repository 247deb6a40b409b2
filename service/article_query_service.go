// ABOUTME: Query engine for filtered, cursor-paginated article listings
// ABOUTME: Guards against stale out-of-order results with a monotonic request sequence

package service

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"reader-sync/models"
	"reader-sync/repository"
)

// DefaultPageSize is the fixed page size for article listings.
const DefaultPageSize = 20

// ErrStaleQuery is returned when a newer query was issued while this one was
// in flight. The result has been discarded without touching visible state.
var ErrStaleQuery = errors.New("query superseded by a newer request")

// ArticleQueryEngine serves filtered article pages from the durable cache.
// Every query captures the current request sequence; by the time its result
// arrives, a bumped sequence means a newer query or a cache invalidation has
// superseded it, and the result is dropped on success and error paths alike.
type ArticleQueryEngine struct {
	articles repository.ArticleRepository
	sessions repository.SessionStateRepository
	logger   *slog.Logger
	now      func() time.Time

	seq atomic.Uint64

	mu      sync.RWMutex
	visible []*models.Article
}

// NewArticleQueryEngine creates a query engine over the article cache.
func NewArticleQueryEngine(articles repository.ArticleRepository, sessions repository.SessionStateRepository, logger *slog.Logger) *ArticleQueryEngine {
	if logger == nil {
		logger = slog.Default()
	}
	return &ArticleQueryEngine{
		articles: articles,
		sessions: sessions,
		logger:   logger,
		now:      time.Now,
	}
}

// ListRequest describes one article listing call.
type ListRequest struct {
	SessionID string
	Scope     models.ArticleScope
	Filter    models.ReadStatusFilter
	Cursor    *time.Time
}

// ListArticles returns one page for the request. For the unread filter the
// session's preserved ids widen the predicate so just-read articles stay
// visible. A page that arrives after a newer request was issued is discarded
// and reported as ErrStaleQuery.
func (e *ArticleQueryEngine) ListArticles(ctx context.Context, req ListRequest) (*models.ArticlePage, error) {
	issued := e.seq.Add(1)

	filter := req.Filter
	if !filter.Valid() {
		filter = models.FilterUnread
	}

	var preserved []uuid.UUID
	if filter == models.FilterUnread && req.SessionID != "" {
		records, err := e.sessions.GetPreserved(ctx, req.SessionID)
		if err != nil {
			e.logger.Warn("Failed to load preserved ids, querying without them",
				"session_id", req.SessionID, "error", err)
		} else {
			preserved = models.ActivePreservedIDs(records, e.now())
		}
	}

	// Fetch one extra row to detect whether another page exists.
	rows, err := e.articles.List(ctx, repository.ArticleQuery{
		Scope:        req.Scope,
		Filter:       filter,
		PreservedIDs: preserved,
		Cursor:       req.Cursor,
		Limit:        DefaultPageSize + 1,
	})

	// The staleness check and the visible-state write share one critical
	// section: once a newer request has published its page, an older result
	// can no longer pass the check and overwrite it.
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.seq.Load() != issued {
		e.logger.Debug("Discarding stale query result", "issued_seq", issued)
		return nil, ErrStaleQuery
	}
	if err != nil {
		return nil, err
	}

	page := &models.ArticlePage{Articles: rows}
	if len(rows) > DefaultPageSize {
		page.Articles = rows[:DefaultPageSize]
		page.HasMore = true
	}
	e.visible = page.Articles

	return page, nil
}

// Hierarchy returns the folder/feed tree for rendering the subscription list.
func (e *ArticleQueryEngine) Hierarchy(ctx context.Context) (*models.FeedHierarchy, error) {
	folders, err := e.articles.ListFolders(ctx)
	if err != nil {
		return nil, err
	}
	feeds, err := e.articles.ListFeeds(ctx)
	if err != nil {
		return nil, err
	}
	return &models.FeedHierarchy{Folders: folders, Feeds: feeds}, nil
}

// Invalidate bumps the request sequence so any in-flight query result is
// discarded. Called after a full sync rewrites the cache.
func (e *ArticleQueryEngine) Invalidate() {
	e.seq.Add(1)
	e.mu.Lock()
	e.visible = nil
	e.mu.Unlock()
}

// ApplyReadState optimistically updates the read flag on currently visible
// rows so a just-marked article does not flash back to its old state.
func (e *ArticleQueryEngine) ApplyReadState(ids []uuid.UUID, read bool) {
	if len(ids) == 0 {
		return
	}
	target := make(map[uuid.UUID]struct{}, len(ids))
	for _, id := range ids {
		target[id] = struct{}{}
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	for _, article := range e.visible {
		if _, ok := target[article.ID]; ok {
			article.IsRead = read
		}
	}
}

// ApplyStar mirrors a star toggle onto the visible rows.
func (e *ArticleQueryEngine) ApplyStar(id uuid.UUID, starred bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, article := range e.visible {
		if article.ID == id {
			article.IsStarred = starred
			return
		}
	}
}
