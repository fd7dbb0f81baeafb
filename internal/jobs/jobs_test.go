package jobs

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"babbel_syncer/internal/domain"
)

type fakeStore struct {
	pending     bool
	created     []domain.PendingJob
	cancelled   []int64
	claimResult bool
	claimErr    error
	claimedJobs []string
	createErr   error
}

func (f *fakeStore) HasPending(context.Context, int64) (bool, error) { return f.pending, nil }

func (f *fakeStore) Create(_ context.Context, job domain.PendingJob) error {
	if f.createErr != nil {
		return f.createErr
	}
	f.created = append(f.created, job)
	return nil
}

func (f *fakeStore) CancelAll(_ context.Context, itemID int64) error {
	f.cancelled = append(f.cancelled, itemID)
	return nil
}

func (f *fakeStore) Claim(_ context.Context, jobID string) (bool, error) {
	f.claimedJobs = append(f.claimedJobs, jobID)
	return f.claimResult, f.claimErr
}

type fakePublisher struct {
	published []domain.JobMessage
	err       error
}

func (f *fakePublisher) PublishJob(_ context.Context, msg domain.JobMessage) error {
	if f.err != nil {
		return f.err
	}
	f.published = append(f.published, msg)
	return nil
}

type fakeRunner struct {
	ran []int64
	err error
}

func (f *fakeRunner) RunJob(_ context.Context, itemID int64) error {
	f.ran = append(f.ran, itemID)
	return f.err
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

func TestScheduler_EnqueueWritesLedgerThenPublishes(t *testing.T) {
	store := &fakeStore{}
	pub := &fakePublisher{}
	sched := NewScheduler(store, pub, testLogger())

	err := sched.Enqueue(context.Background(), 42)
	require.NoError(t, err)

	require.Len(t, store.created, 1)
	require.Len(t, pub.published, 1)
	assert.Equal(t, int64(42), store.created[0].ItemID)
	assert.NotEmpty(t, store.created[0].JobID)
	assert.Equal(t, store.created[0].JobID, pub.published[0].JobID)
	assert.Equal(t, store.created[0].EnqueuedAt, pub.published[0].EnqueuedAt)
	assert.Empty(t, store.cancelled)
}

func TestScheduler_EnqueuePublishFailureWithdrawsLedgerRow(t *testing.T) {
	store := &fakeStore{}
	pub := &fakePublisher{err: errors.New("broker gone")}
	sched := NewScheduler(store, pub, testLogger())

	err := sched.Enqueue(context.Background(), 42)
	assert.ErrorContains(t, err, "broker gone")

	require.Len(t, store.created, 1)
	assert.Equal(t, []int64{42}, store.cancelled)
}

func TestScheduler_EnqueueLedgerFailureSkipsPublish(t *testing.T) {
	store := &fakeStore{createErr: errors.New("db down")}
	pub := &fakePublisher{}
	sched := NewScheduler(store, pub, testLogger())

	err := sched.Enqueue(context.Background(), 42)
	assert.ErrorContains(t, err, "db down")
	assert.Empty(t, pub.published)
}

func TestScheduler_Passthroughs(t *testing.T) {
	store := &fakeStore{pending: true}
	sched := NewScheduler(store, &fakePublisher{}, testLogger())

	pending, err := sched.HasPending(context.Background(), 7)
	require.NoError(t, err)
	assert.True(t, pending)

	require.NoError(t, sched.CancelAll(context.Background(), 7))
	assert.Equal(t, []int64{7}, store.cancelled)
}

func TestWorker_RunsClaimedJob(t *testing.T) {
	store := &fakeStore{claimResult: true}
	runner := &fakeRunner{}
	worker := NewWorker(nil, store, runner, testLogger())

	worker.handle(context.Background(), domain.JobMessage{JobID: "job-1", ItemID: 42})

	assert.Equal(t, []string{"job-1"}, store.claimedJobs)
	assert.Equal(t, []int64{42}, runner.ran)
}

func TestWorker_DropsUnclaimedJob(t *testing.T) {
	store := &fakeStore{claimResult: false}
	runner := &fakeRunner{}
	worker := NewWorker(nil, store, runner, testLogger())

	worker.handle(context.Background(), domain.JobMessage{JobID: "job-1", ItemID: 42})

	assert.Equal(t, []string{"job-1"}, store.claimedJobs)
	assert.Empty(t, runner.ran)
}

func TestWorker_ClaimErrorSkipsRun(t *testing.T) {
	store := &fakeStore{claimErr: errors.New("db down")}
	runner := &fakeRunner{}
	worker := NewWorker(nil, store, runner, testLogger())

	worker.handle(context.Background(), domain.JobMessage{JobID: "job-1", ItemID: 42})

	assert.Empty(t, runner.ran)
}
