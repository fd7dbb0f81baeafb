package scheduler

import (
	"context"
	"log/slog"
	"time"
)

// Reconciler applies the scheduling rule to one content item; the engine
// implements it.
type Reconciler interface {
	Reconcile(ctx context.Context, itemID int64) error
}

type CandidateLister interface {
	ListCandidates(ctx context.Context) ([]int64, error)
}

// Scheduler periodically sweeps enabled, live content items through the
// sync engine so items whose change events were lost still converge.
type Scheduler struct {
	reconciler Reconciler
	candidates CandidateLister
	interval   time.Duration
	logger     *slog.Logger
}

func NewScheduler(reconciler Reconciler, candidates CandidateLister, interval time.Duration, logger *slog.Logger) *Scheduler {
	return &Scheduler{
		reconciler: reconciler,
		candidates: candidates,
		interval:   interval,
		logger:     logger,
	}
}

func (s *Scheduler) Start(ctx context.Context) error {
	s.logger.Info("reconciler started", "interval", s.interval)

	s.runSweep(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("reconciler stopped")
			return ctx.Err()
		case <-ticker.C:
			s.runSweep(ctx)
		}
	}
}

func (s *Scheduler) runSweep(ctx context.Context) {
	sweepCtx, cancel := context.WithTimeout(ctx, 5*time.Minute)
	defer cancel()

	ids, err := s.candidates.ListCandidates(sweepCtx)
	if err != nil {
		s.logger.Error("list candidates failed", "error", err)
		return
	}

	var errs int
	for _, id := range ids {
		if err := s.reconciler.Reconcile(sweepCtx, id); err != nil {
			errs++
			s.logger.Error("reconcile failed", "item_id", id, "error", err)
		}
	}

	s.logger.Info("reconcile sweep completed", "candidates", len(ids), "errors", errs)
}
