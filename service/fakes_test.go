// ABOUTME: In-memory fakes for the repository and driver seams used in service tests
// ABOUTME: Function-field fakes so each test overrides only the behavior it cares about

package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"reader-sync/driver"
	"reader-sync/models"
	"reader-sync/repository"
)

type fakeArticleRepo struct {
	listFn             func(ctx context.Context, q repository.ArticleQuery) ([]*models.Article, error)
	markReadFn         func(ctx context.Context, ids []uuid.UUID, read bool, now time.Time) ([]models.MutatedArticle, error)
	markAllReadFn      func(ctx context.Context, scope models.ArticleScope, now time.Time) ([]models.MutatedArticle, error)
	toggleStarFn       func(ctx context.Context, id uuid.UUID, now time.Time) (*models.MutatedArticle, error)
	countTotalFn       func(ctx context.Context) (int, error)
	countStarredFn     func(ctx context.Context) (int, error)
	deleteUnstarredFn  func(ctx context.Context, limit int) (int, error)
	deleteOldestFn     func(ctx context.Context, limit int) (int, error)
	createBatchFn      func(ctx context.Context, articles []*models.Article) (int, error)
	upsertFn           func(ctx context.Context, articles []*models.Article, snapshotAt time.Time) (int, error)
	salvageFn          func(ctx context.Context) ([]*models.Article, error)
	resetFn            func(ctx context.Context) error
	findOrCreateFeedFn func(ctx context.Context, title string) (uuid.UUID, error)
}

func (f *fakeArticleRepo) List(ctx context.Context, q repository.ArticleQuery) ([]*models.Article, error) {
	if f.listFn != nil {
		return f.listFn(ctx, q)
	}
	return nil, nil
}

func (f *fakeArticleRepo) ListFolders(ctx context.Context) ([]*models.Folder, error) {
	return nil, nil
}

func (f *fakeArticleRepo) ListFeeds(ctx context.Context) ([]*models.Feed, error) {
	return nil, nil
}

func (f *fakeArticleRepo) CountTotal(ctx context.Context) (int, error) {
	if f.countTotalFn != nil {
		return f.countTotalFn(ctx)
	}
	return 0, nil
}

func (f *fakeArticleRepo) CountStarred(ctx context.Context) (int, error) {
	if f.countStarredFn != nil {
		return f.countStarredFn(ctx)
	}
	return 0, nil
}

func (f *fakeArticleRepo) CreateBatch(ctx context.Context, articles []*models.Article) (int, error) {
	if f.createBatchFn != nil {
		return f.createBatchFn(ctx, articles)
	}
	return len(articles), nil
}

func (f *fakeArticleRepo) UpsertFromRemote(ctx context.Context, articles []*models.Article, snapshotAt time.Time) (int, error) {
	if f.upsertFn != nil {
		return f.upsertFn(ctx, articles, snapshotAt)
	}
	return len(articles), nil
}

func (f *fakeArticleRepo) MarkRead(ctx context.Context, ids []uuid.UUID, read bool, now time.Time) ([]models.MutatedArticle, error) {
	if f.markReadFn != nil {
		return f.markReadFn(ctx, ids, read, now)
	}
	return nil, nil
}

func (f *fakeArticleRepo) MarkAllRead(ctx context.Context, scope models.ArticleScope, now time.Time) ([]models.MutatedArticle, error) {
	if f.markAllReadFn != nil {
		return f.markAllReadFn(ctx, scope, now)
	}
	return nil, nil
}

func (f *fakeArticleRepo) ToggleStar(ctx context.Context, id uuid.UUID, now time.Time) (*models.MutatedArticle, error) {
	if f.toggleStarFn != nil {
		return f.toggleStarFn(ctx, id, now)
	}
	return &models.MutatedArticle{ID: id}, nil
}

func (f *fakeArticleRepo) FindOrCreateFeed(ctx context.Context, title string) (uuid.UUID, error) {
	if f.findOrCreateFeedFn != nil {
		return f.findOrCreateFeedFn(ctx, title)
	}
	return uuid.New(), nil
}

func (f *fakeArticleRepo) DeleteOldestUnstarred(ctx context.Context, limit int) (int, error) {
	if f.deleteUnstarredFn != nil {
		return f.deleteUnstarredFn(ctx, limit)
	}
	return limit, nil
}

func (f *fakeArticleRepo) DeleteOldest(ctx context.Context, limit int) (int, error) {
	if f.deleteOldestFn != nil {
		return f.deleteOldestFn(ctx, limit)
	}
	return limit, nil
}

func (f *fakeArticleRepo) SalvageAll(ctx context.Context) ([]*models.Article, error) {
	if f.salvageFn != nil {
		return f.salvageFn(ctx)
	}
	return nil, nil
}

func (f *fakeArticleRepo) ResetArticleStorage(ctx context.Context) error {
	if f.resetFn != nil {
		return f.resetFn(ctx)
	}
	return nil
}

// fakeQueueRepo is an in-memory SyncQueueRepository preserving insert order.
type fakeQueueRepo struct {
	mu      sync.Mutex
	entries []*models.OutboundQueueEntry
}

func (f *fakeQueueRepo) Enqueue(ctx context.Context, entry *models.OutboundQueueEntry) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	copied := *entry
	f.entries = append(f.entries, &copied)
	return nil
}

func (f *fakeQueueRepo) ListPending(ctx context.Context, limit int) ([]*models.OutboundQueueEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]*models.OutboundQueueEntry, 0, len(f.entries))
	for _, e := range f.entries {
		copied := *e
		out = append(out, &copied)
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (f *fakeQueueRepo) Delete(ctx context.Context, id uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, e := range f.entries {
		if e.ID == id {
			f.entries = append(f.entries[:i], f.entries[i+1:]...)
			return nil
		}
	}
	return nil
}

func (f *fakeQueueRepo) IncrementRetry(ctx context.Context, id uuid.UUID) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, e := range f.entries {
		if e.ID == id {
			e.RetryCount++
			return e.RetryCount, nil
		}
	}
	return 0, fmt.Errorf("entry %s not found", id)
}

func (f *fakeQueueRepo) Count(ctx context.Context) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.entries), nil
}

// fakeSessionRepo is an in-memory SessionStateRepository.
type fakeSessionRepo struct {
	mu         sync.Mutex
	listStates map[string]*models.SessionListState
	preserved  map[string][]models.PreservedArticleRecord
	rateLimit  *models.RateLimitState
}

func newFakeSessionRepo() *fakeSessionRepo {
	return &fakeSessionRepo{
		listStates: make(map[string]*models.SessionListState),
		preserved:  make(map[string][]models.PreservedArticleRecord),
	}
}

func (f *fakeSessionRepo) GetListState(ctx context.Context, sessionID string) (*models.SessionListState, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.listStates[sessionID], nil
}

func (f *fakeSessionRepo) SaveListState(ctx context.Context, sessionID string, state *models.SessionListState) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listStates[sessionID] = state
	return nil
}

func (f *fakeSessionRepo) GetPreserved(ctx context.Context, sessionID string) ([]models.PreservedArticleRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.preserved[sessionID], nil
}

func (f *fakeSessionRepo) SavePreserved(ctx context.Context, sessionID string, records []models.PreservedArticleRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.preserved[sessionID] = records
	return nil
}

func (f *fakeSessionRepo) GetRateLimitState(ctx context.Context) (*models.RateLimitState, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.rateLimit, nil
}

func (f *fakeSessionRepo) SaveRateLimitState(ctx context.Context, state models.RateLimitState) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rateLimit = &state
	return nil
}

// fakePusher records pushes and can be told to fail.
type fakePusher struct {
	mu     sync.Mutex
	calls  []models.SyncActionType
	pushFn func(remoteItemID string, action models.SyncActionType) error
}

func (f *fakePusher) AddToSyncQueue(ctx context.Context, articleID uuid.UUID, remoteItemID string, action models.SyncActionType) error {
	f.mu.Lock()
	f.calls = append(f.calls, action)
	f.mu.Unlock()
	if f.pushFn != nil {
		return f.pushFn(remoteItemID, action)
	}
	return nil
}

func (f *fakePusher) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

// fakeSyncClient implements SyncClient with function fields.
type fakeSyncClient struct {
	mu           sync.Mutex
	triggerCalls int
	statusCalls  int
	triggerFn    func(ctx context.Context) (*models.SyncTriggerResponse, error)
	statusFn     func(ctx context.Context, syncID string, call int) (*models.SyncStatusResponse, error)
	changesFn    func(ctx context.Context, syncID string) (*driver.SyncChangesResponse, error)
}

func (f *fakeSyncClient) TriggerSync(ctx context.Context) (*models.SyncTriggerResponse, error) {
	f.mu.Lock()
	f.triggerCalls++
	f.mu.Unlock()
	if f.triggerFn != nil {
		return f.triggerFn(ctx)
	}
	return &models.SyncTriggerResponse{SyncID: "job-1"}, nil
}

func (f *fakeSyncClient) GetSyncStatus(ctx context.Context, syncID string) (*models.SyncStatusResponse, error) {
	f.mu.Lock()
	f.statusCalls++
	call := f.statusCalls
	f.mu.Unlock()
	if f.statusFn != nil {
		return f.statusFn(ctx, syncID, call)
	}
	return &models.SyncStatusResponse{Status: models.SyncCompleted}, nil
}

func (f *fakeSyncClient) FetchChanges(ctx context.Context, syncID string) (*driver.SyncChangesResponse, error) {
	if f.changesFn != nil {
		return f.changesFn(ctx, syncID)
	}
	return &driver.SyncChangesResponse{SnapshotAt: time.Now()}, nil
}

// fakeLegacyRepo serves canned legacy stores.
type fakeLegacyRepo struct {
	stores  []models.LegacyStoreInfo
	records map[string][]models.LegacyRecord
	dropped []string
}

func (f *fakeLegacyRepo) Discover(ctx context.Context) ([]models.LegacyStoreInfo, error) {
	return f.stores, nil
}

func (f *fakeLegacyRepo) Extract(ctx context.Context, info models.LegacyStoreInfo) ([]models.LegacyRecord, error) {
	records, ok := f.records[info.Table]
	if !ok {
		return nil, fmt.Errorf("unknown table %s", info.Table)
	}
	return records, nil
}

func (f *fakeLegacyRepo) Drop(ctx context.Context, table string) error {
	f.dropped = append(f.dropped, table)
	return nil
}

// fakeQuota reports fixed quota and usage.
type fakeQuota struct {
	quota int64
	usage int64
}

func (f *fakeQuota) Estimate(ctx context.Context) (int64, int64, error) {
	return f.quota, f.usage, nil
}

// noSleep replaces polling and batch delays in tests.
func noSleep(ctx context.Context, d time.Duration) error {
	return ctx.Err()
}
