package scheduler

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
)

type fakeReconciler struct {
	reconciled []int64
	failFor    int64
}

func (f *fakeReconciler) Reconcile(_ context.Context, itemID int64) error {
	f.reconciled = append(f.reconciled, itemID)
	if itemID == f.failFor {
		return errors.New("reconcile failed")
	}
	return nil
}

type fakeLister struct {
	ids []int64
	err error
}

func (f *fakeLister) ListCandidates(context.Context) ([]int64, error) {
	return f.ids, f.err
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

func TestRunSweep_ReconcilesEveryCandidate(t *testing.T) {
	rec := &fakeReconciler{}
	sched := NewScheduler(rec, &fakeLister{ids: []int64{1, 2, 3}}, 0, testLogger())

	sched.runSweep(context.Background())

	assert.Equal(t, []int64{1, 2, 3}, rec.reconciled)
}

func TestRunSweep_ContinuesPastFailures(t *testing.T) {
	rec := &fakeReconciler{failFor: 2}
	sched := NewScheduler(rec, &fakeLister{ids: []int64{1, 2, 3}}, 0, testLogger())

	sched.runSweep(context.Background())

	assert.Equal(t, []int64{1, 2, 3}, rec.reconciled)
}

func TestRunSweep_ListFailureSkipsSweep(t *testing.T) {
	rec := &fakeReconciler{}
	sched := NewScheduler(rec, &fakeLister{err: errors.New("db down")}, 0, testLogger())

	sched.runSweep(context.Background())

	assert.Empty(t, rec.reconciled)
}
