// ABOUTME: This file defines tagged legacy record variants for store migration
// ABOUTME: Each known legacy schema version maps to the canonical article shape

package models

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// LegacySchemaVersion tags a discovered legacy store with its known schema.
type LegacySchemaVersion string

const (
	LegacySchemaV1      LegacySchemaVersion = "v1"
	LegacySchemaV2      LegacySchemaVersion = "v2"
	LegacySchemaUnknown LegacySchemaVersion = "unknown"
)

// LegacyStoreInfo describes a discovered legacy store without loading its rows.
type LegacyStoreInfo struct {
	Table    string              `json:"table"`
	Version  LegacySchemaVersion `json:"version"`
	RowCount int                 `json:"row_count"`
}

// LegacyRecord is a row extracted from a legacy store that can be mapped onto
// the canonical article shape.
type LegacyRecord interface {
	// FeedName is the feed label stored on the legacy row, used to resolve
	// or create the canonical feed before mapping.
	FeedName() string
	ToArticle(feedID uuid.UUID) (*Article, error)
}

// LegacyArticleV1 is the oldest known store layout. Read and starred flags
// were stored as integers and the publication time as a unix timestamp.
type LegacyArticleV1 struct {
	ItemID   string `db:"item_id"`
	Feed     string `db:"feed"`
	Headline string `db:"headline"`
	Body     string `db:"body"`
	Link     string `db:"link"`
	Read     int    `db:"read"`
	Starred  int    `db:"starred"`
	PubDate  int64  `db:"pub_date"`
}

// FeedName returns the v1 feed label.
func (l LegacyArticleV1) FeedName() string {
	return l.Feed
}

// ToArticle maps a v1 row onto the canonical article shape.
func (l LegacyArticleV1) ToArticle(feedID uuid.UUID) (*Article, error) {
	if l.ItemID == "" {
		return nil, fmt.Errorf("legacy v1 row has empty item_id")
	}

	publishedAt := time.Unix(l.PubDate, 0)
	if l.PubDate <= 0 {
		publishedAt = time.Now()
	}

	return &Article{
		ID:           uuid.New(),
		FeedID:       feedID,
		Title:        l.Headline,
		Content:      l.Body,
		URL:          l.Link,
		IsRead:       l.Read != 0,
		IsStarred:    l.Starred != 0,
		PublishedAt:  publishedAt,
		RemoteItemID: l.ItemID,
		CreatedAt:    time.Now(),
	}, nil
}

// LegacyArticleV2 is the newer store layout, already close to the canonical
// shape but keyed by guid and missing the local-update marker.
type LegacyArticleV2 struct {
	GUID        string     `db:"guid"`
	FeedRef     string     `db:"feed_ref"`
	Title       string     `db:"title"`
	Content     string     `db:"content"`
	URL         string     `db:"url"`
	IsRead      bool       `db:"is_read"`
	IsStarred   bool       `db:"is_starred"`
	PublishedAt *time.Time `db:"published_at"`
}

// FeedName returns the v2 feed label.
func (l LegacyArticleV2) FeedName() string {
	return l.FeedRef
}

// ToArticle maps a v2 row onto the canonical article shape.
func (l LegacyArticleV2) ToArticle(feedID uuid.UUID) (*Article, error) {
	if l.GUID == "" {
		return nil, fmt.Errorf("legacy v2 row has empty guid")
	}

	publishedAt := time.Now()
	if l.PublishedAt != nil {
		publishedAt = *l.PublishedAt
	}

	return &Article{
		ID:           uuid.New(),
		FeedID:       feedID,
		Title:        l.Title,
		Content:      l.Content,
		URL:          l.URL,
		IsRead:       l.IsRead,
		IsStarred:    l.IsStarred,
		PublishedAt:  publishedAt,
		RemoteItemID: l.GUID,
		CreatedAt:    time.Now(),
	}, nil
}

// MigrationTableResult is the per-store outcome of a legacy migration run.
type MigrationTableResult struct {
	Table    string `json:"table"`
	RowCount int    `json:"row_count"`
	Migrated int    `json:"migrated"`
	Verified bool   `json:"verified"`
	Dropped  bool   `json:"dropped"`
}

// MigrationReport is the structured, best-effort result of migrating all
// discovered legacy stores. Per-table failures are collected, not raised.
type MigrationReport struct {
	Tables []MigrationTableResult `json:"tables"`
	Errors []string               `json:"errors,omitempty"`
}

// StorageLevel classifies storage quota pressure.
type StorageLevel string

const (
	StorageHealthy  StorageLevel = "healthy"
	StorageWarning  StorageLevel = "warning"
	StorageCritical StorageLevel = "critical"
)

// StorageStatus is the quota snapshot exposed to the UI.
type StorageStatus struct {
	QuotaBytes int64        `json:"quota_bytes"`
	UsageBytes int64        `json:"usage_bytes"`
	Level      StorageLevel `json:"level"`
	Pruned     int          `json:"pruned,omitempty"`
}

// ClassifyStorageLevel maps a usage ratio onto the quota pressure levels:
// healthy below 80%, warning from 80% to under 95%, critical at 95% and up.
func ClassifyStorageLevel(usage, quota int64) StorageLevel {
	if quota <= 0 {
		return StorageHealthy
	}
	ratio := float64(usage) / float64(quota)
	switch {
	case ratio >= 0.95:
		return StorageCritical
	case ratio >= 0.80:
		return StorageWarning
	default:
		return StorageHealthy
	}
}
