// ABOUTME: Discovery and extraction of legacy article stores in PostgreSQL
// ABOUTME: Inspects candidate tables without loading data and drains them per schema version

package repository

import (
	"context"
	"fmt"
	"log/slog"

	"reader-sync/models"
)

// legacyTablePatterns are the name heuristics for stores left behind by
// earlier reader versions.
var legacyTablePatterns = []string{
	"legacy\\_%",
	"reader\\_articles%",
	"rss\\_items%",
}

// PostgresLegacyStoreRepository implements LegacyStoreRepository.
type PostgresLegacyStoreRepository struct {
	db     DBPool
	logger *slog.Logger
}

// NewPostgresLegacyStoreRepository creates a legacy store repository.
func NewPostgresLegacyStoreRepository(db DBPool, logger *slog.Logger) *PostgresLegacyStoreRepository {
	if logger == nil {
		logger = slog.Default()
	}
	return &PostgresLegacyStoreRepository{db: db, logger: logger}
}

// Discover finds candidate legacy tables by name heuristics, then inspects
// column names and row counts without loading any row data.
func (r *PostgresLegacyStoreRepository) Discover(ctx context.Context) ([]models.LegacyStoreInfo, error) {
	query := `
		SELECT table_name
		FROM information_schema.tables
		WHERE table_schema = 'public'
		  AND (table_name LIKE $1 OR table_name LIKE $2 OR table_name LIKE $3)
		ORDER BY table_name ASC`

	rows, err := r.db.Query(ctx, query,
		legacyTablePatterns[0], legacyTablePatterns[1], legacyTablePatterns[2])
	if err != nil {
		return nil, fmt.Errorf("failed to discover legacy tables: %w", err)
	}
	defer rows.Close()

	var tables []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("failed to scan table name: %w", err)
		}
		tables = append(tables, name)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}

	infos := make([]models.LegacyStoreInfo, 0, len(tables))
	for _, table := range tables {
		version, err := r.detectVersion(ctx, table)
		if err != nil {
			r.logger.Warn("Failed to inspect legacy table, skipping", "table", table, "error", err)
			continue
		}

		count, err := r.countRows(ctx, table)
		if err != nil {
			r.logger.Warn("Failed to count legacy table rows, skipping", "table", table, "error", err)
			continue
		}

		infos = append(infos, models.LegacyStoreInfo{
			Table:    table,
			Version:  version,
			RowCount: count,
		})
	}

	r.logger.Info("Legacy store discovery completed", "candidates", len(tables), "usable", len(infos))
	return infos, nil
}

// Extract loads every row of a discovered store as tagged legacy records.
func (r *PostgresLegacyStoreRepository) Extract(ctx context.Context, info models.LegacyStoreInfo) ([]models.LegacyRecord, error) {
	switch info.Version {
	case models.LegacySchemaV1:
		return r.extractV1(ctx, info.Table)
	case models.LegacySchemaV2:
		return r.extractV2(ctx, info.Table)
	default:
		return nil, fmt.Errorf("legacy table %s has unknown schema", info.Table)
	}
}

// Drop removes a fully migrated legacy table.
func (r *PostgresLegacyStoreRepository) Drop(ctx context.Context, table string) error {
	if !isKnownLegacyTable(table) {
		return fmt.Errorf("refusing to drop non-legacy table %q", table)
	}

	if _, err := r.db.Exec(ctx, fmt.Sprintf(`DROP TABLE IF EXISTS %q`, table)); err != nil {
		return fmt.Errorf("failed to drop legacy table %s: %w", table, err)
	}

	r.logger.Info("Dropped legacy table", "table", table)
	return nil
}

// detectVersion classifies a table by its distinguishing column names.
func (r *PostgresLegacyStoreRepository) detectVersion(ctx context.Context, table string) (models.LegacySchemaVersion, error) {
	query := `
		SELECT column_name
		FROM information_schema.columns
		WHERE table_schema = 'public' AND table_name = $1`

	rows, err := r.db.Query(ctx, query, table)
	if err != nil {
		return models.LegacySchemaUnknown, fmt.Errorf("failed to list columns: %w", err)
	}
	defer rows.Close()

	columns := make(map[string]bool)
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return models.LegacySchemaUnknown, fmt.Errorf("failed to scan column name: %w", err)
		}
		columns[name] = true
	}
	if err := rows.Err(); err != nil {
		return models.LegacySchemaUnknown, fmt.Errorf("row iteration error: %w", err)
	}

	switch {
	case columns["guid"]:
		return models.LegacySchemaV2, nil
	case columns["item_id"]:
		return models.LegacySchemaV1, nil
	default:
		return models.LegacySchemaUnknown, nil
	}
}

func (r *PostgresLegacyStoreRepository) countRows(ctx context.Context, table string) (int, error) {
	var count int
	if err := r.db.QueryRow(ctx, fmt.Sprintf(`SELECT COUNT(*) FROM %q`, table)).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count rows: %w", err)
	}
	return count, nil
}

func (r *PostgresLegacyStoreRepository) extractV1(ctx context.Context, table string) ([]models.LegacyRecord, error) {
	query := fmt.Sprintf(
		`SELECT item_id, feed, headline, body, link, read, starred, pub_date FROM %q`, table)

	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to extract v1 rows from %s: %w", table, err)
	}
	defer rows.Close()

	var records []models.LegacyRecord
	for rows.Next() {
		var rec models.LegacyArticleV1
		err := rows.Scan(&rec.ItemID, &rec.Feed, &rec.Headline, &rec.Body, &rec.Link,
			&rec.Read, &rec.Starred, &rec.PubDate)
		if err != nil {
			r.logger.Warn("Skipping unreadable v1 row", "table", table, "error", err)
			continue
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return records, fmt.Errorf("row iteration error: %w", err)
	}
	return records, nil
}

func (r *PostgresLegacyStoreRepository) extractV2(ctx context.Context, table string) ([]models.LegacyRecord, error) {
	query := fmt.Sprintf(
		`SELECT guid, feed_ref, title, content, url, is_read, is_starred, published_at FROM %q`, table)

	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to extract v2 rows from %s: %w", table, err)
	}
	defer rows.Close()

	var records []models.LegacyRecord
	for rows.Next() {
		var rec models.LegacyArticleV2
		err := rows.Scan(&rec.GUID, &rec.FeedRef, &rec.Title, &rec.Content, &rec.URL,
			&rec.IsRead, &rec.IsStarred, &rec.PublishedAt)
		if err != nil {
			r.logger.Warn("Skipping unreadable v2 row", "table", table, "error", err)
			continue
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return records, fmt.Errorf("row iteration error: %w", err)
	}
	return records, nil
}

func isKnownLegacyTable(table string) bool {
	prefixes := []string{"legacy_", "reader_articles", "rss_items"}
	for _, p := range prefixes {
		if len(table) >= len(p) && table[:len(p)] == p {
			return true
		}
	}
	return false
}
