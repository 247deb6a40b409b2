// ABOUTME: PostgreSQL implementation of the ArticleRepository interface
// ABOUTME: Owns the hybrid filtered listing and local-update-guarded remote upserts

package repository

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"reader-sync/models"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// ErrArticleNotFound is returned when a mutation targets a missing row.
var ErrArticleNotFound = errors.New("article not found")

const articleColumns = `id, feed_id, title, content, url, is_read, is_starred,
	published_at, last_local_update, remote_item_id, created_at`

// PostgresArticleRepository implements ArticleRepository using PostgreSQL.
type PostgresArticleRepository struct {
	db     DBPool
	logger *slog.Logger
}

// NewPostgresArticleRepository creates a new PostgreSQL article repository.
func NewPostgresArticleRepository(db DBPool, logger *slog.Logger) *PostgresArticleRepository {
	if logger == nil {
		logger = slog.Default()
	}
	return &PostgresArticleRepository{db: db, logger: logger}
}

// List returns one page of articles for the query, newest publication first.
// For the unread filter with a non-empty preserved set the predicate becomes
// the single hybrid predicate (is_read = FALSE OR id = ANY(preserved)), so
// just-read articles stay visible without a second query or duplicate rows.
func (r *PostgresArticleRepository) List(ctx context.Context, q ArticleQuery) ([]*models.Article, error) {
	var conds []string
	var args []any

	if q.Scope.FeedID != nil {
		args = append(args, *q.Scope.FeedID)
		conds = append(conds, fmt.Sprintf("feed_id = $%d", len(args)))
	} else if q.Scope.FolderID != nil {
		args = append(args, *q.Scope.FolderID)
		conds = append(conds, fmt.Sprintf("feed_id IN (SELECT id FROM feeds WHERE folder_id = $%d)", len(args)))
	}

	switch q.Filter {
	case models.FilterUnread:
		if len(q.PreservedIDs) > 0 {
			args = append(args, q.PreservedIDs)
			conds = append(conds, fmt.Sprintf("(is_read = FALSE OR id = ANY($%d))", len(args)))
		} else {
			conds = append(conds, "is_read = FALSE")
		}
	case models.FilterRead:
		conds = append(conds, "is_read = TRUE")
	}

	if q.Cursor != nil {
		args = append(args, *q.Cursor)
		conds = append(conds, fmt.Sprintf("published_at < $%d", len(args)))
	}

	limit := q.Limit
	if limit <= 0 {
		limit = 20
	}
	args = append(args, limit)

	query := "SELECT " + articleColumns + " FROM articles"
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += fmt.Sprintf(" ORDER BY published_at DESC, id DESC LIMIT $%d", len(args))

	return r.queryArticles(ctx, query, args...)
}

// CreateBatch inserts articles, skipping rows whose remote item id is already
// cached. Returns the number of rows actually created.
func (r *PostgresArticleRepository) CreateBatch(ctx context.Context, articles []*models.Article) (int, error) {
	if len(articles) == 0 {
		return 0, nil
	}

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	query := `
		INSERT INTO articles (` + articleColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (remote_item_id) WHERE remote_item_id <> '' DO NOTHING`

	created := 0
	for _, article := range articles {
		tag, err := tx.Exec(ctx, query,
			article.ID,
			article.FeedID,
			article.Title,
			article.Content,
			article.URL,
			article.IsRead,
			article.IsStarred,
			article.PublishedAt,
			article.LastLocalUpdate,
			article.RemoteItemID,
			article.CreatedAt,
		)
		if err != nil {
			r.logger.Warn("Failed to insert article in batch",
				"remote_item_id", article.RemoteItemID,
				"error", err)
			continue
		}
		if tag.RowsAffected() > 0 {
			created++
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("failed to commit transaction: %w", err)
	}

	r.logger.Info("Batch article creation completed",
		"total_articles", len(articles),
		"created", created,
		"skipped", len(articles)-created)

	return created, nil
}

// UpsertFromRemote writes a remote snapshot into the cache. Rows whose
// last_local_update is at or after snapshotAt keep their local read/star
// state; the remote copy never silently reverts a newer local mutation.
func (r *PostgresArticleRepository) UpsertFromRemote(ctx context.Context, articles []*models.Article, snapshotAt time.Time) (int, error) {
	if len(articles) == 0 {
		return 0, nil
	}

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	query := `
		INSERT INTO articles (` + articleColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (remote_item_id) WHERE remote_item_id <> '' DO UPDATE SET
			title = EXCLUDED.title,
			content = EXCLUDED.content,
			url = EXCLUDED.url,
			is_read = EXCLUDED.is_read,
			is_starred = EXCLUDED.is_starred,
			published_at = EXCLUDED.published_at
		WHERE articles.last_local_update IS NULL OR articles.last_local_update < $12`

	applied := 0
	for _, article := range articles {
		tag, err := tx.Exec(ctx, query,
			article.ID,
			article.FeedID,
			article.Title,
			article.Content,
			article.URL,
			article.IsRead,
			article.IsStarred,
			article.PublishedAt,
			article.LastLocalUpdate,
			article.RemoteItemID,
			article.CreatedAt,
			snapshotAt,
		)
		if err != nil {
			r.logger.Warn("Failed to upsert remote article",
				"remote_item_id", article.RemoteItemID,
				"error", err)
			continue
		}
		if tag.RowsAffected() > 0 {
			applied++
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("failed to commit transaction: %w", err)
	}

	return applied, nil
}

// MarkRead flips the read flag for the given ids, touching only rows whose
// state actually changes. Marking an already-read article is a no-op.
func (r *PostgresArticleRepository) MarkRead(ctx context.Context, ids []uuid.UUID, read bool, now time.Time) ([]models.MutatedArticle, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	query := `
		UPDATE articles
		SET is_read = $1, last_local_update = $2
		WHERE id = ANY($3) AND is_read <> $1
		RETURNING id, remote_item_id, is_starred`

	rows, err := r.db.Query(ctx, query, read, now, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to mark articles read=%t: %w", read, err)
	}
	defer rows.Close()

	return scanMutated(rows)
}

// MarkAllRead marks every unread article in scope as read, not just a loaded
// page, and returns the full affected set.
func (r *PostgresArticleRepository) MarkAllRead(ctx context.Context, scope models.ArticleScope, now time.Time) ([]models.MutatedArticle, error) {
	conds := []string{"is_read = FALSE"}
	args := []any{now}

	if scope.FeedID != nil {
		args = append(args, *scope.FeedID)
		conds = append(conds, fmt.Sprintf("feed_id = $%d", len(args)))
	} else if scope.FolderID != nil {
		args = append(args, *scope.FolderID)
		conds = append(conds, fmt.Sprintf("feed_id IN (SELECT id FROM feeds WHERE folder_id = $%d)", len(args)))
	}

	query := `
		UPDATE articles
		SET is_read = TRUE, last_local_update = $1
		WHERE ` + strings.Join(conds, " AND ") + `
		RETURNING id, remote_item_id, is_starred`

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to mark all read: %w", err)
	}
	defer rows.Close()

	return scanMutated(rows)
}

// ToggleStar flips the star flag and returns the resulting state.
func (r *PostgresArticleRepository) ToggleStar(ctx context.Context, id uuid.UUID, now time.Time) (*models.MutatedArticle, error) {
	query := `
		UPDATE articles
		SET is_starred = NOT is_starred, last_local_update = $2
		WHERE id = $1
		RETURNING id, remote_item_id, is_starred`

	var m models.MutatedArticle
	err := r.db.QueryRow(ctx, query, id, now).Scan(&m.ID, &m.RemoteItemID, &m.IsStarred)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrArticleNotFound
		}
		return nil, fmt.Errorf("failed to toggle star: %w", err)
	}

	return &m, nil
}

// FindOrCreateFeed resolves a feed by title, creating a placeholder feed for
// legacy rows whose source feed is known only by name.
func (r *PostgresArticleRepository) FindOrCreateFeed(ctx context.Context, title string) (uuid.UUID, error) {
	var id uuid.UUID
	err := r.db.QueryRow(ctx, `SELECT id FROM feeds WHERE title = $1`, title).Scan(&id)
	if err == nil {
		return id, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return uuid.Nil, fmt.Errorf("failed to look up feed %q: %w", title, err)
	}

	id = uuid.New()
	if _, err := r.db.Exec(ctx, `INSERT INTO feeds (id, title) VALUES ($1, $2)`, id, title); err != nil {
		return uuid.Nil, fmt.Errorf("failed to create feed %q: %w", title, err)
	}
	return id, nil
}

// ListFolders returns the folder hierarchy.
func (r *PostgresArticleRepository) ListFolders(ctx context.Context) ([]*models.Folder, error) {
	rows, err := r.db.Query(ctx, `SELECT id, title FROM folders ORDER BY title ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list folders: %w", err)
	}
	defer rows.Close()

	var folders []*models.Folder
	for rows.Next() {
		folder := &models.Folder{}
		if err := rows.Scan(&folder.ID, &folder.Title); err != nil {
			return nil, fmt.Errorf("failed to scan folder row: %w", err)
		}
		folders = append(folders, folder)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return folders, nil
}

// ListFeeds returns all subscribed feeds.
func (r *PostgresArticleRepository) ListFeeds(ctx context.Context) ([]*models.Feed, error) {
	rows, err := r.db.Query(ctx, `SELECT id, folder_id, title, url, created_at FROM feeds ORDER BY title ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list feeds: %w", err)
	}
	defer rows.Close()

	var feeds []*models.Feed
	for rows.Next() {
		feed := &models.Feed{}
		if err := rows.Scan(&feed.ID, &feed.FolderID, &feed.Title, &feed.URL, &feed.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan feed row: %w", err)
		}
		feeds = append(feeds, feed)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return feeds, nil
}

// CountTotal returns the total number of cached articles.
func (r *PostgresArticleRepository) CountTotal(ctx context.Context) (int, error) {
	var count int
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM articles`).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count articles: %w", err)
	}
	return count, nil
}

// CountStarred returns the number of starred articles.
func (r *PostgresArticleRepository) CountStarred(ctx context.Context) (int, error) {
	var count int
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM articles WHERE is_starred = TRUE`).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count starred articles: %w", err)
	}
	return count, nil
}

// DeleteOldestUnstarred deletes up to limit of the oldest non-starred
// articles. Derived summaries go with them via cascade.
func (r *PostgresArticleRepository) DeleteOldestUnstarred(ctx context.Context, limit int) (int, error) {
	if limit <= 0 {
		return 0, nil
	}

	query := `
		DELETE FROM articles
		WHERE id IN (
			SELECT id FROM articles
			WHERE is_starred = FALSE
			ORDER BY published_at ASC, id ASC
			LIMIT $1
		)`

	tag, err := r.db.Exec(ctx, query, limit)
	if err != nil {
		return 0, fmt.Errorf("failed to prune unstarred articles: %w", err)
	}

	deleted := int(tag.RowsAffected())
	r.logger.Info("Pruned oldest unstarred articles", "deleted", deleted, "limit", limit)
	return deleted, nil
}

// DeleteOldest deletes up to limit of the oldest articles regardless of the
// starred exemption. Used only by the aggressive quota-pressure pass.
func (r *PostgresArticleRepository) DeleteOldest(ctx context.Context, limit int) (int, error) {
	if limit <= 0 {
		return 0, nil
	}

	query := `
		DELETE FROM articles
		WHERE id IN (
			SELECT id FROM articles
			ORDER BY published_at ASC, id ASC
			LIMIT $1
		)`

	tag, err := r.db.Exec(ctx, query, limit)
	if err != nil {
		return 0, fmt.Errorf("failed to prune articles: %w", err)
	}

	deleted := int(tag.RowsAffected())
	r.logger.Warn("Aggressive prune deleted articles ignoring star exemption",
		"deleted", deleted, "limit", limit)
	return deleted, nil
}

// SalvageAll reads every article row that is still readable, skipping rows
// that fail to scan. Used by corruption recovery.
func (r *PostgresArticleRepository) SalvageAll(ctx context.Context) ([]*models.Article, error) {
	rows, err := r.db.Query(ctx, "SELECT "+articleColumns+" FROM articles ORDER BY published_at DESC")
	if err != nil {
		return nil, fmt.Errorf("failed to read articles for salvage: %w", err)
	}
	defer rows.Close()

	var salvaged []*models.Article
	for rows.Next() {
		article := &models.Article{}
		if err := scanArticle(rows, article); err != nil {
			r.logger.Warn("Skipping unreadable article row during salvage", "error", err)
			continue
		}
		salvaged = append(salvaged, article)
	}
	if err := rows.Err(); err != nil {
		r.logger.Warn("Salvage stopped early on iteration error", "error", err, "salvaged", len(salvaged))
	}

	return salvaged, nil
}

// ResetArticleStorage drops and recreates the article tables.
func (r *PostgresArticleRepository) ResetArticleStorage(ctx context.Context) error {
	for _, stmt := range []string{
		`DROP TABLE IF EXISTS article_summaries`,
		`DROP TABLE IF EXISTS articles`,
	} {
		if _, err := r.db.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("failed to drop article storage: %w", err)
		}
	}

	if err := EnsureArticleTables(ctx, r.db); err != nil {
		return fmt.Errorf("failed to recreate article storage: %w", err)
	}

	r.logger.Warn("Article storage was reset")
	return nil
}

// queryArticles is a helper to execute queries returning multiple articles.
func (r *PostgresArticleRepository) queryArticles(ctx context.Context, query string, args ...any) ([]*models.Article, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query articles: %w", err)
	}
	defer rows.Close()

	var articles []*models.Article
	for rows.Next() {
		article := &models.Article{}
		if err := scanArticle(rows, article); err != nil {
			return nil, fmt.Errorf("failed to scan article row: %w", err)
		}
		articles = append(articles, article)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}

	return articles, nil
}

func scanArticle(rows pgx.Rows, article *models.Article) error {
	return rows.Scan(
		&article.ID,
		&article.FeedID,
		&article.Title,
		&article.Content,
		&article.URL,
		&article.IsRead,
		&article.IsStarred,
		&article.PublishedAt,
		&article.LastLocalUpdate,
		&article.RemoteItemID,
		&article.CreatedAt,
	)
}

func scanMutated(rows pgx.Rows) ([]models.MutatedArticle, error) {
	var mutated []models.MutatedArticle
	for rows.Next() {
		var m models.MutatedArticle
		if err := rows.Scan(&m.ID, &m.RemoteItemID, &m.IsStarred); err != nil {
			return nil, fmt.Errorf("failed to scan mutated row: %w", err)
		}
		mutated = append(mutated, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return mutated, nil
}
