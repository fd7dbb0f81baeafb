package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"babbel_syncer/internal/domain"
)

// PendingJobStore is the durable dedup ledger for deferred jobs. A row
// exists from enqueue until the worker claims the delivery; cancellation
// marks the row instead of racing the broker.
type PendingJobStore struct {
	db *sqlx.DB
}

func NewPendingJobStore(db *sqlx.DB) *PendingJobStore {
	return &PendingJobStore{db: db}
}

// HasPending reports whether an uncancelled job already exists for the item.
func (s *PendingJobStore) HasPending(ctx context.Context, itemID int64) (bool, error) {
	var pending bool
	err := s.db.GetContext(ctx, &pending,
		"SELECT EXISTS(SELECT 1 FROM pending_jobs WHERE item_id = $1 AND cancelled_at IS NULL)",
		itemID,
	)
	if err != nil {
		return false, fmt.Errorf("check pending job: %w", err)
	}
	return pending, nil
}

func (s *PendingJobStore) Create(ctx context.Context, job domain.PendingJob) error {
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO pending_jobs (job_id, item_id, enqueued_at) VALUES ($1, $2, $3)",
		job.JobID, job.ItemID, job.EnqueuedAt,
	)
	if err != nil {
		return fmt.Errorf("create pending job: %w", err)
	}
	return nil
}

// CancelAll marks every uncancelled job for the item. The rows stay until
// their deliveries arrive so the worker can tell "cancelled" from "unknown".
func (s *PendingJobStore) CancelAll(ctx context.Context, itemID int64) error {
	_, err := s.db.ExecContext(ctx,
		"UPDATE pending_jobs SET cancelled_at = now() WHERE item_id = $1 AND cancelled_at IS NULL",
		itemID,
	)
	if err != nil {
		return fmt.Errorf("cancel pending jobs: %w", err)
	}
	return nil
}

// Claim removes the row for a delivered job and reports whether it was
// still live. A cancelled or missing row means the delivery must be
// dropped without running the job.
func (s *PendingJobStore) Claim(ctx context.Context, jobID string) (bool, error) {
	var cancelledAt sql.NullTime
	err := s.db.GetContext(ctx, &cancelledAt,
		"DELETE FROM pending_jobs WHERE job_id = $1 RETURNING cancelled_at",
		jobID,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("claim pending job: %w", err)
	}
	return !cancelledAt.Valid, nil
}
