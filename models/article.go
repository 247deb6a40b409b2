// ABOUTME: This file defines domain models for cached articles, feeds and folders
// ABOUTME: The durable cache rows the UI reads and the sync engine reconciles

package models

import (
	"time"

	"github.com/google/uuid"
)

// Article represents a cached article row in the durable cache.
// LastLocalUpdate marks local mutations so a remote refresh taken before the
// mutation can never silently revert it.
type Article struct {
	ID              uuid.UUID  `json:"id" db:"id"`
	FeedID          uuid.UUID  `json:"feed_id" db:"feed_id"`
	Title           string     `json:"title" db:"title"`
	Content         string     `json:"content" db:"content"`
	URL             string     `json:"url" db:"url"`
	IsRead          bool       `json:"is_read" db:"is_read"`
	IsStarred       bool       `json:"is_starred" db:"is_starred"`
	PublishedAt     time.Time  `json:"published_at" db:"published_at"`
	LastLocalUpdate *time.Time `json:"last_local_update,omitempty" db:"last_local_update"`
	RemoteItemID    string     `json:"remote_item_id" db:"remote_item_id"`
	CreatedAt       time.Time  `json:"created_at" db:"created_at"`
}

// HasRemoteID reports whether the article is known to the remote aggregator.
// Local-only articles are skipped when enqueueing outbound mutations.
func (a *Article) HasRemoteID() bool {
	return a.RemoteItemID != ""
}

// Feed represents a subscribed feed in the durable cache.
type Feed struct {
	ID        uuid.UUID  `json:"id" db:"id"`
	FolderID  *uuid.UUID `json:"folder_id,omitempty" db:"folder_id"`
	Title     string     `json:"title" db:"title"`
	URL       string     `json:"url" db:"url"`
	CreatedAt time.Time  `json:"created_at" db:"created_at"`
}

// Folder groups feeds in the subscription hierarchy.
type Folder struct {
	ID    uuid.UUID `json:"id" db:"id"`
	Title string    `json:"title" db:"title"`
}

// FeedHierarchy is the folder/feed tree the UI renders after a full sync.
type FeedHierarchy struct {
	Folders []*Folder `json:"folders"`
	Feeds   []*Feed   `json:"feeds"`
}

// ReadStatusFilter restricts an article listing by read state.
type ReadStatusFilter string

const (
	FilterAll    ReadStatusFilter = "all"
	FilterUnread ReadStatusFilter = "unread"
	FilterRead   ReadStatusFilter = "read"
)

// Valid reports whether the filter is one of the supported values.
func (f ReadStatusFilter) Valid() bool {
	switch f {
	case FilterAll, FilterUnread, FilterRead:
		return true
	}
	return false
}

// ArticleScope narrows a listing or bulk mutation to a feed or folder.
// Both fields nil means the whole cache.
type ArticleScope struct {
	FeedID   *uuid.UUID `json:"feed_id,omitempty"`
	FolderID *uuid.UUID `json:"folder_id,omitempty"`
}

// ArticlePage is one page of a filtered, cursor-paginated listing.
type ArticlePage struct {
	Articles []*Article `json:"articles"`
	HasMore  bool       `json:"has_more"`
}

// MutatedArticle carries just enough of a mutated row to build an outbound
// queue entry from it.
type MutatedArticle struct {
	ID           uuid.UUID `json:"id"`
	RemoteItemID string    `json:"remote_item_id"`
	IsStarred    bool      `json:"is_starred"`
}
