// Package jobs ties the durable pending-job ledger to the message queue:
// the Scheduler enqueues at most one live job per item, the Worker claims
// deliveries and runs the deferred job body.
package jobs

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"babbel_syncer/internal/domain"
)

type PendingStore interface {
	HasPending(ctx context.Context, itemID int64) (bool, error)
	Create(ctx context.Context, job domain.PendingJob) error
	CancelAll(ctx context.Context, itemID int64) error
	Claim(ctx context.Context, jobID string) (bool, error)
}

type JobPublisher interface {
	PublishJob(ctx context.Context, msg domain.JobMessage) error
}

// Scheduler implements the engine's job scheduling contract on top of a
// Postgres ledger and a RabbitMQ publisher. The ledger row is written
// before the publish so HasPending never misses an in-flight enqueue.
type Scheduler struct {
	store     PendingStore
	publisher JobPublisher
	logger    *slog.Logger
}

func NewScheduler(store PendingStore, publisher JobPublisher, logger *slog.Logger) *Scheduler {
	return &Scheduler{
		store:     store,
		publisher: publisher,
		logger:    logger.With("component", "jobs"),
	}
}

func (s *Scheduler) HasPending(ctx context.Context, itemID int64) (bool, error) {
	return s.store.HasPending(ctx, itemID)
}

func (s *Scheduler) Enqueue(ctx context.Context, itemID int64) error {
	job := domain.PendingJob{
		JobID:      uuid.NewString(),
		ItemID:     itemID,
		EnqueuedAt: time.Now().UTC(),
	}

	if err := s.store.Create(ctx, job); err != nil {
		return err
	}

	msg := domain.JobMessage{
		JobID:      job.JobID,
		ItemID:     job.ItemID,
		EnqueuedAt: job.EnqueuedAt,
	}
	if err := s.publisher.PublishJob(ctx, msg); err != nil {
		// Withdraw the ledger row so a failed publish does not block
		// the next enqueue attempt behind HasPending.
		_ = s.store.CancelAll(ctx, itemID)
		return fmt.Errorf("publish job: %w", err)
	}

	s.logger.Info("job enqueued", "job_id", job.JobID, "item_id", itemID)
	return nil
}

func (s *Scheduler) CancelAll(ctx context.Context, itemID int64) error {
	return s.store.CancelAll(ctx, itemID)
}
