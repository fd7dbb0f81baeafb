package domain

import (
	"errors"
	"time"
)

// ErrNotFound is returned when a content item cannot be resolved, e.g. it
// was removed between job scheduling and job execution.
var ErrNotFound = errors.New("content item not found")

// ContentStatus is the lifecycle status of a content item as reported by
// the editorial system.
type ContentStatus string

const (
	ContentDraft     ContentStatus = "draft"
	ContentScheduled ContentStatus = "scheduled"
	ContentPublished ContentStatus = "published"
	ContentTrashed   ContentStatus = "trashed"
)

// Live reports whether the status makes the item eligible for a story:
// published now, or scheduled for future publication.
func (s ContentStatus) Live() bool {
	return s == ContentPublished || s == ContentScheduled
}

// ContentItem is the editorial entity this system mirrors. It is owned by
// the content source; the sync engine only reads it and toggles SyncEnabled.
type ContentItem struct {
	ID          int64         `db:"id"`
	Title       string        `db:"title"`
	Body        string        `db:"body"`
	Status      ContentStatus `db:"status"`
	PublishAt   time.Time     `db:"publish_at"`
	SyncEnabled bool          `db:"sync_enabled"`
	UpdatedAt   time.Time     `db:"updated_at"`
}

// ChangeEvent describes one lifecycle transition of a content item. All
// trigger surfaces (editor save, REST update, CLI, trash/untrash) reduce to
// this shape before entering the sync engine.
type ChangeEvent struct {
	ItemID       int64         `json:"item_id"`
	OldEnabled   bool          `json:"old_enabled"`
	NewEnabled   bool          `json:"new_enabled"`
	OldStatus    ContentStatus `json:"old_status"`
	NewStatus    ContentStatus `json:"new_status"`
	OldPublishAt time.Time     `json:"old_publish_at"`
	NewPublishAt time.Time     `json:"new_publish_at"`
}
