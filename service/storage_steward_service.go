// ABOUTME: Keeps the durable cache inside its storage quota and article ceiling
// ABOUTME: Also migrates legacy article stores and recovers from cache corruption

package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"reader-sync/models"
	"reader-sync/repository"
)

// aggressivePruneFraction is how far below the ceiling the aggressive prune
// aims when the starred exemption left nothing to delete under quota pressure.
const aggressivePruneFraction = 0.7

// StorageStewardService owns quota checks, pruning, legacy store migration
// and corruption recovery for the article cache.
type StorageStewardService struct {
	articles   repository.ArticleRepository
	legacy     repository.LegacyStoreRepository
	quota      repository.QuotaEstimator
	logger     *slog.Logger
	ceiling    int
	batchSize  int
	batchDelay time.Duration
	sleep      func(ctx context.Context, d time.Duration) error
}

// NewStorageStewardService creates the storage steward.
func NewStorageStewardService(
	articles repository.ArticleRepository,
	legacy repository.LegacyStoreRepository,
	quota repository.QuotaEstimator,
	ceiling int,
	batchSize int,
	batchDelay time.Duration,
	logger *slog.Logger,
) *StorageStewardService {
	if logger == nil {
		logger = slog.Default()
	}
	if ceiling <= 0 {
		ceiling = 500
	}
	if batchSize <= 0 {
		batchSize = 50
	}
	return &StorageStewardService{
		articles:   articles,
		legacy:     legacy,
		quota:      quota,
		logger:     logger,
		ceiling:    ceiling,
		batchSize:  batchSize,
		batchDelay: batchDelay,
		sleep:      sleepContext,
	}
}

// CheckQuota classifies current storage usage. A critical level triggers
// quota pressure handling before the status is returned.
func (s *StorageStewardService) CheckQuota(ctx context.Context) (*models.StorageStatus, error) {
	quota, usage, err := s.quota.Estimate(ctx)
	if err != nil {
		return nil, err
	}

	status := &models.StorageStatus{
		QuotaBytes: quota,
		UsageBytes: usage,
		Level:      models.ClassifyStorageLevel(usage, quota),
	}

	if status.Level == models.StorageCritical {
		s.logger.Warn("Storage usage critical, pruning", "usage", usage, "quota", quota)
		pruned, err := s.HandleQuotaPressure(ctx)
		if err != nil {
			s.logger.Warn("Quota pressure handling failed", "error", err)
		}
		status.Pruned = pruned
	}

	return status, nil
}

// Prune deletes the oldest unstarred articles above the ceiling. Starred
// articles are exempt, so a cache full of stars may legitimately stay above
// the ceiling.
func (s *StorageStewardService) Prune(ctx context.Context) (int, error) {
	total, err := s.articles.CountTotal(ctx)
	if err != nil {
		return 0, err
	}

	excess := total - s.ceiling
	if excess <= 0 {
		return 0, nil
	}

	deleted, err := s.articles.DeleteOldestUnstarred(ctx, excess)
	if err != nil {
		return 0, fmt.Errorf("failed to prune articles: %w", err)
	}

	s.logger.Info("Pruned article cache", "deleted", deleted, "excess", excess)
	return deleted, nil
}

// HandleQuotaPressure prunes under quota exhaustion. When the starred
// exemption blocks the normal prune entirely, it falls back to an aggressive
// pass that deletes oldest-first regardless of stars, down to 70% of the
// ceiling.
func (s *StorageStewardService) HandleQuotaPressure(ctx context.Context) (int, error) {
	deleted, err := s.Prune(ctx)
	if err != nil {
		return 0, err
	}
	if deleted > 0 {
		return deleted, nil
	}

	total, err := s.articles.CountTotal(ctx)
	if err != nil {
		return 0, err
	}

	target := int(float64(s.ceiling) * aggressivePruneFraction)
	excess := total - target
	if excess <= 0 {
		return 0, nil
	}

	s.logger.Warn("Starred exemption blocked pruning under quota pressure, deleting oldest regardless",
		"total", total, "target", target)

	deleted, err = s.articles.DeleteOldest(ctx, excess)
	if err != nil {
		return 0, fmt.Errorf("aggressive prune failed: %w", err)
	}
	return deleted, nil
}

// MigrateLegacyStores drains every discovered legacy store into the canonical
// cache. A table may only be dropped once every one of its rows is accounted
// for as inserted or unmappable; per-table failures are collected so one bad
// store never aborts the rest.
func (s *StorageStewardService) MigrateLegacyStores(ctx context.Context, dropAfter bool) (*models.MigrationReport, error) {
	stores, err := s.legacy.Discover(ctx)
	if err != nil {
		return nil, err
	}

	report := &models.MigrationReport{}
	for _, store := range stores {
		result, err := s.migrateStore(ctx, store, dropAfter)
		if err != nil {
			s.logger.Warn("Legacy store migration failed", "table", store.Table, "error", err)
			report.Errors = append(report.Errors, fmt.Sprintf("%s: %v", store.Table, err))
			continue
		}
		report.Tables = append(report.Tables, *result)
	}

	s.logger.Info("Legacy migration completed",
		"stores", len(stores),
		"migrated", len(report.Tables),
		"failed", len(report.Errors))
	return report, nil
}

func (s *StorageStewardService) migrateStore(ctx context.Context, store models.LegacyStoreInfo, dropAfter bool) (*models.MigrationTableResult, error) {
	records, err := s.legacy.Extract(ctx, store)
	if err != nil {
		return nil, err
	}

	feedIDs := make(map[string]uuid.UUID)
	mapped := make([]*models.Article, 0, len(records))
	skipped := 0
	for _, record := range records {
		feedID, ok := feedIDs[record.FeedName()]
		if !ok {
			feedID, err = s.articles.FindOrCreateFeed(ctx, record.FeedName())
			if err != nil {
				return nil, fmt.Errorf("failed to resolve feed for legacy row: %w", err)
			}
			feedIDs[record.FeedName()] = feedID
		}

		article, err := record.ToArticle(feedID)
		if err != nil {
			skipped++
			continue
		}
		mapped = append(mapped, article)
	}

	// Chunked upload with a pause between batches keeps the migration from
	// starving interactive queries.
	created := 0
	for start := 0; start < len(mapped); start += s.batchSize {
		end := start + s.batchSize
		if end > len(mapped) {
			end = len(mapped)
		}

		n, err := s.articles.CreateBatch(ctx, mapped[start:end])
		if err != nil {
			return nil, fmt.Errorf("batch insert failed at offset %d: %w", start, err)
		}
		created += n

		if end < len(mapped) && s.batchDelay > 0 {
			if err := s.sleep(ctx, s.batchDelay); err != nil {
				return nil, err
			}
		}
	}

	// Verification is against the legacy side: every row the table claims to
	// hold must be either freshly inserted or provably unmappable. A short
	// extract or a batch swallowed by conflicts leaves the table in place.
	verified := created+skipped >= store.RowCount

	dropped := false
	if dropAfter {
		if !verified {
			s.logger.Warn("Refusing to drop legacy table, rows are not fully accounted for",
				"table", store.Table,
				"rows", store.RowCount,
				"created", created,
				"skipped", skipped)
		} else if err := s.legacy.Drop(ctx, store.Table); err != nil {
			s.logger.Warn("Failed to drop migrated legacy table", "table", store.Table, "error", err)
		} else {
			dropped = true
		}
	}

	s.logger.Info("Migrated legacy store",
		"table", store.Table,
		"rows", store.RowCount,
		"created", created,
		"skipped", skipped,
		"dropped", dropped)

	return &models.MigrationTableResult{
		Table:    store.Table,
		RowCount: store.RowCount,
		Migrated: created,
		Verified: verified,
		Dropped:  dropped,
	}, nil
}

// RecoverCorruptCache salvages whatever rows still scan, resets the article
// tables and reimports the salvage. Returns whether any data survived.
func (s *StorageStewardService) RecoverCorruptCache(ctx context.Context) (bool, error) {
	salvaged, err := s.articles.SalvageAll(ctx)
	if err != nil {
		s.logger.Warn("Salvage read failed, proceeding with what was recovered",
			"recovered", len(salvaged), "error", err)
	}

	if err := s.articles.ResetArticleStorage(ctx); err != nil {
		return false, fmt.Errorf("failed to reset article storage: %w", err)
	}

	if len(salvaged) == 0 {
		s.logger.Warn("Cache reset with no salvageable rows")
		return false, nil
	}

	created, err := s.articles.CreateBatch(ctx, salvaged)
	if err != nil {
		return false, fmt.Errorf("failed to reimport salvaged articles: %w", err)
	}

	s.logger.Info("Recovered article cache", "salvaged", len(salvaged), "reimported", created)
	return created > 0, nil
}
