package jobs

import (
	"context"
	"log/slog"

	"babbel_syncer/internal/domain"
)

type JobRunner interface {
	RunJob(ctx context.Context, itemID int64) error
}

type JobConsumer interface {
	ConsumeJobs(ctx context.Context, handler func(ctx context.Context, msg domain.JobMessage)) error
}

// Worker consumes job deliveries, claims them against the ledger and runs
// the deferred job body. A delivery whose ledger row was cancelled or
// already claimed is dropped without touching the remote API.
type Worker struct {
	consumer JobConsumer
	store    PendingStore
	runner   JobRunner
	logger   *slog.Logger
}

func NewWorker(consumer JobConsumer, store PendingStore, runner JobRunner, logger *slog.Logger) *Worker {
	return &Worker{
		consumer: consumer,
		store:    store,
		runner:   runner,
		logger:   logger.With("component", "worker"),
	}
}

func (w *Worker) Run(ctx context.Context) error {
	return w.consumer.ConsumeJobs(ctx, w.handle)
}

func (w *Worker) handle(ctx context.Context, msg domain.JobMessage) {
	log := w.logger.With("job_id", msg.JobID, "item_id", msg.ItemID)

	claimed, err := w.store.Claim(ctx, msg.JobID)
	if err != nil {
		log.Error("claim failed", "error", err)
		return
	}
	if !claimed {
		log.Info("job cancelled or already claimed, dropping")
		return
	}

	if err := w.runner.RunJob(ctx, msg.ItemID); err != nil {
		// RunJob records item-level failures in story state itself; an
		// error here is infrastructure (store unreachable).
		log.Error("job execution failed", "error", err)
	}
}
