package domain

import "time"

// PendingJob is a durable marker for deferred story creation. At most one
// uncancelled row exists per item; its presence is the dedup key checked
// before enqueueing.
type PendingJob struct {
	JobID       string     `db:"job_id"`
	ItemID      int64      `db:"item_id"`
	EnqueuedAt  time.Time  `db:"enqueued_at"`
	CancelledAt *time.Time `db:"cancelled_at"`
}

// JobMessage is the queue payload for one deferred job.
type JobMessage struct {
	JobID      string    `json:"job_id"`
	ItemID     int64     `json:"item_id"`
	EnqueuedAt time.Time `json:"enqueued_at"`
}
