// ABOUTME: PostgreSQL pool construction and schema bootstrap for the durable cache
// ABOUTME: Defines the DBPool seam that lets repositories run against pgxmock in tests

package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"reader-sync/config"
)

// DBPool is the subset of pgxpool.Pool the repositories use. pgxmock
// implements the same method set, so repositories are testable without a
// running database.
type DBPool interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
}

// NewPool creates a pgx connection pool from the database configuration.
func NewPool(ctx context.Context, cfg config.DatabaseConfig) (*pgxpool.Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.ConnectionString())
	if err != nil {
		return nil, fmt.Errorf("failed to parse database config: %w", err)
	}
	poolCfg.MaxConns = int32(cfg.MaxConns)
	poolCfg.MinConns = int32(cfg.MinConns)

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return pool, nil
}

var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS folders (
		id UUID PRIMARY KEY,
		title TEXT NOT NULL UNIQUE
	)`,
	`CREATE TABLE IF NOT EXISTS feeds (
		id UUID PRIMARY KEY,
		folder_id UUID REFERENCES folders(id) ON DELETE SET NULL,
		title TEXT NOT NULL,
		url TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	articlesTableDDL,
	summariesTableDDL,
	`CREATE TABLE IF NOT EXISTS sync_queue (
		id UUID PRIMARY KEY,
		action_type TEXT NOT NULL,
		article_id UUID NOT NULL,
		remote_item_id TEXT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		retry_count INT NOT NULL DEFAULT 0,
		max_retries INT NOT NULL DEFAULT 3
	)`,
}

const articlesTableDDL = `CREATE TABLE IF NOT EXISTS articles (
	id UUID PRIMARY KEY,
	feed_id UUID NOT NULL REFERENCES feeds(id) ON DELETE CASCADE,
	title TEXT NOT NULL DEFAULT '',
	content TEXT NOT NULL DEFAULT '',
	url TEXT NOT NULL DEFAULT '',
	is_read BOOLEAN NOT NULL DEFAULT FALSE,
	is_starred BOOLEAN NOT NULL DEFAULT FALSE,
	published_at TIMESTAMPTZ NOT NULL,
	last_local_update TIMESTAMPTZ,
	remote_item_id TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`

// Summaries are derived data and go away with their article.
const summariesTableDDL = `CREATE TABLE IF NOT EXISTS article_summaries (
	article_id UUID PRIMARY KEY REFERENCES articles(id) ON DELETE CASCADE,
	summary TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`

var schemaIndexStatements = []string{
	`CREATE UNIQUE INDEX IF NOT EXISTS articles_remote_item_id_key
		ON articles (remote_item_id) WHERE remote_item_id <> ''`,
	`CREATE INDEX IF NOT EXISTS articles_published_at_idx
		ON articles (published_at DESC, id DESC)`,
	`CREATE INDEX IF NOT EXISTS sync_queue_created_at_idx
		ON sync_queue (created_at ASC)`,
}

// EnsureSchema creates the durable cache tables and indexes if missing.
func EnsureSchema(ctx context.Context, db DBPool) error {
	for _, stmt := range append(append([]string{}, schemaStatements...), schemaIndexStatements...) {
		if _, err := db.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("failed to ensure schema: %w", err)
		}
	}
	return nil
}

// EnsureArticleTables recreates just the article storage, used after a
// corruption reset.
func EnsureArticleTables(ctx context.Context, db DBPool) error {
	for _, stmt := range []string{articlesTableDDL, summariesTableDDL} {
		if _, err := db.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("failed to ensure article tables: %w", err)
		}
	}
	for _, stmt := range schemaIndexStatements[:2] {
		if _, err := db.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("failed to ensure article indexes: %w", err)
		}
	}
	return nil
}
