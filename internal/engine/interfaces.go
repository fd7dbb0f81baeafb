package engine

//go:generate mockgen -source=interfaces.go -destination=mocks/mocks.go -package=mocks

import (
	"context"

	"babbel_syncer/internal/domain"
)

type StateStore interface {
	Get(ctx context.Context, itemID int64) (*domain.StoryState, error)
	Update(ctx context.Context, itemID int64, upd domain.StateUpdate) error
}

type ContentStore interface {
	Get(ctx context.Context, itemID int64) (*domain.ContentItem, error)
}

type JobScheduler interface {
	HasPending(ctx context.Context, itemID int64) (bool, error)
	Enqueue(ctx context.Context, itemID int64) error
	CancelAll(ctx context.Context, itemID int64) error
}

type StoryClient interface {
	Create(ctx context.Context, p domain.StoryPayload) domain.StoryResult
	Update(ctx context.Context, storyID string, fields domain.StoryFields) domain.StoryResult
	Delete(ctx context.Context, storyID string) domain.StoryResult
	Restore(ctx context.Context, storyID string) domain.StoryResult
}

type Generator interface {
	Generate(ctx context.Context, source string, kind domain.GenerationKind) (string, error)
}
