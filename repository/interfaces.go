// ABOUTME: Repository layer common interfaces for clean architecture
// ABOUTME: Defines contracts for durable cache, outbound queue and session state access

package repository

import (
	"context"
	"time"

	"reader-sync/models"

	"github.com/google/uuid"
)

// ArticleQuery describes one filtered, cursor-paginated read of the cache.
// PreservedIDs widens the unread predicate into the hybrid predicate.
type ArticleQuery struct {
	Scope        models.ArticleScope
	Filter       models.ReadStatusFilter
	PreservedIDs []uuid.UUID
	Cursor       *time.Time
	Limit        int
}

// ArticleRepository is the durable cache access contract.
type ArticleRepository interface {
	// Read operations
	List(ctx context.Context, q ArticleQuery) ([]*models.Article, error)
	ListFolders(ctx context.Context) ([]*models.Folder, error)
	ListFeeds(ctx context.Context) ([]*models.Feed, error)
	CountTotal(ctx context.Context) (int, error)
	CountStarred(ctx context.Context) (int, error)

	// Write operations
	CreateBatch(ctx context.Context, articles []*models.Article) (int, error)
	UpsertFromRemote(ctx context.Context, articles []*models.Article, snapshotAt time.Time) (int, error)
	MarkRead(ctx context.Context, ids []uuid.UUID, read bool, now time.Time) ([]models.MutatedArticle, error)
	MarkAllRead(ctx context.Context, scope models.ArticleScope, now time.Time) ([]models.MutatedArticle, error)
	ToggleStar(ctx context.Context, id uuid.UUID, now time.Time) (*models.MutatedArticle, error)
	FindOrCreateFeed(ctx context.Context, title string) (uuid.UUID, error)

	// Pruning operations
	DeleteOldestUnstarred(ctx context.Context, limit int) (int, error)
	DeleteOldest(ctx context.Context, limit int) (int, error)

	// Corruption recovery
	SalvageAll(ctx context.Context) ([]*models.Article, error)
	ResetArticleStorage(ctx context.Context) error
}

// SyncQueueRepository is the durable outbound mutation queue contract.
type SyncQueueRepository interface {
	Enqueue(ctx context.Context, entry *models.OutboundQueueEntry) error
	ListPending(ctx context.Context, limit int) ([]*models.OutboundQueueEntry, error)
	Delete(ctx context.Context, id uuid.UUID) error
	IncrementRetry(ctx context.Context, id uuid.UUID) (int, error)
	Count(ctx context.Context) (int, error)
}

// SessionStateRepository stores session-scoped ephemeral state with TTLs:
// the per-session list state blob, the preserved-id blob and the persisted
// rate-limit snapshot. Expiry and bounding rules live in the models; the
// repository only guarantees lossless round-trips and TTL enforcement.
type SessionStateRepository interface {
	GetListState(ctx context.Context, sessionID string) (*models.SessionListState, error)
	SaveListState(ctx context.Context, sessionID string, state *models.SessionListState) error
	GetPreserved(ctx context.Context, sessionID string) ([]models.PreservedArticleRecord, error)
	SavePreserved(ctx context.Context, sessionID string, records []models.PreservedArticleRecord) error
	GetRateLimitState(ctx context.Context) (*models.RateLimitState, error)
	SaveRateLimitState(ctx context.Context, state models.RateLimitState) error
}

// LegacyStoreRepository discovers and drains legacy article stores left
// behind by earlier versions of the reader.
type LegacyStoreRepository interface {
	Discover(ctx context.Context) ([]models.LegacyStoreInfo, error)
	Extract(ctx context.Context, info models.LegacyStoreInfo) ([]models.LegacyRecord, error)
	Drop(ctx context.Context, table string) error
}

// QuotaEstimator reports the storage quota and current usage in bytes.
type QuotaEstimator interface {
	Estimate(ctx context.Context) (quota int64, usage int64, err error)
}
