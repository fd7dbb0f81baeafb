package domain

import "time"

// SyncStatus is the processing status of a content item's remote story.
// Persisted as text; only these values are valid.
type SyncStatus string

const (
	StatusNotStarted SyncStatus = "not_started"
	StatusScheduled  SyncStatus = "scheduled"
	StatusProcessing SyncStatus = "processing"
	StatusSent       SyncStatus = "sent"
	StatusError      SyncStatus = "error"
	StatusDeleted    SyncStatus = "deleted"
)

// Valid reports whether s is one of the known status values.
func (s SyncStatus) Valid() bool {
	switch s {
	case StatusNotStarted, StatusScheduled, StatusProcessing,
		StatusSent, StatusError, StatusDeleted:
		return true
	}
	return false
}

// StoryState is the per-item sync record. RemoteStoryID is non-empty only
// once a remote story has been created; it must never be overwritten by a
// second create for the same item.
type StoryState struct {
	ItemID              int64      `db:"item_id"`
	Status              SyncStatus `db:"status"`
	RemoteStoryID       string     `db:"remote_story_id"`
	Message             string     `db:"message"`
	GeneratedTitle      string     `db:"generated_title"`
	GeneratedSpeechText string     `db:"generated_speech_text"`
	StatusChangedAt     time.Time  `db:"status_changed_at"`
}

// StateUpdate is a partial story state change. Nil fields are left as they
// are; Reset returns the record to NotStarted and clears everything except
// the audit timestamp.
type StateUpdate struct {
	Status              *SyncStatus
	RemoteStoryID       *string
	Message             *string
	GeneratedTitle      *string
	GeneratedSpeechText *string
	Reset               bool
}

// StoryResult is the outcome of a remote story operation. API and transport
// failures are reported here, not as errors, so the message can be persisted
// verbatim into story state.
type StoryResult struct {
	OK      bool
	Message string
	StoryID string
}

// StoryPayload is the full body sent when creating a remote story.
type StoryPayload struct {
	Title     string
	Text      string
	StartDate string // YYYY-MM-DD
	EndDate   string // YYYY-MM-DD
	Status    string
	Weekdays  int
	ItemID    int64
}

// StoryFields is the partial body for updating an existing story's
// scheduling window. A zero value means "leave unchanged".
type StoryFields struct {
	StartDate string
	EndDate   string
	Weekdays  *int
}

// Empty reports whether the update carries no fields at all.
func (f StoryFields) Empty() bool {
	return f.StartDate == "" && f.EndDate == "" && f.Weekdays == nil
}

// GenerationKind selects which text the generator produces.
type GenerationKind string

const (
	KindTitle  GenerationKind = "title"
	KindSpeech GenerationKind = "speech"
)
