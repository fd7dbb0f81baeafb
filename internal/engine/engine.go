// Package engine decides, for every content lifecycle event, whether to
// create, update, delete or restore the corresponding remote story. All
// trigger surfaces funnel through HandleChange; deferred story creation
// runs through RunJob on the worker.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"babbel_syncer/internal/domain"
	"babbel_syncer/internal/weekday"
)

// Config carries the scheduling parameters applied to every story.
type Config struct {
	StartOffsetDays int
	EndOffsetDays   int
	Weekdays        weekday.Selection
	Location        *time.Location
	StoryStatus     string
}

type Engine struct {
	states    StateStore
	contents  ContentStore
	jobs      JobScheduler
	client    StoryClient
	generator Generator
	logger    *slog.Logger
	cfg       Config
	now       func() time.Time
}

func New(
	states StateStore,
	contents ContentStore,
	jobs JobScheduler,
	client StoryClient,
	generator Generator,
	logger *slog.Logger,
	cfg Config,
) *Engine {
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	return &Engine{
		states:    states,
		contents:  contents,
		jobs:      jobs,
		client:    client,
		generator: generator,
		logger:    logger.With("component", "engine"),
		cfg:       cfg,
		now:       time.Now,
	}
}

// active reports whether the item is already sent or has work in flight,
// which blocks entering the creation path again.
func active(s domain.SyncStatus) bool {
	return s == domain.StatusSent || s == domain.StatusScheduled || s == domain.StatusProcessing
}

// HandleChange routes one lifecycle transition through the state machine.
// Every surface (editor save, REST update, CLI edit, trash, untrash)
// reduces its observation to a ChangeEvent and calls this.
func (e *Engine) HandleChange(ctx context.Context, ev domain.ChangeEvent) error {
	state, err := e.states.Get(ctx, ev.ItemID)
	if err != nil {
		return err
	}

	log := e.logger.With("item_id", ev.ItemID, "status", state.Status)

	switch {
	case ev.NewStatus == domain.ContentTrashed && ev.OldStatus != domain.ContentTrashed:
		log.Info("post trashed")
		return e.teardown(ctx, ev.ItemID, state, "post trashed")

	case ev.OldStatus == domain.ContentTrashed && ev.NewStatus != domain.ContentTrashed:
		if ev.NewEnabled && state.Status == domain.StatusDeleted && state.RemoteStoryID != "" {
			log.Info("post untrashed, restoring story")
			return e.restoreStory(ctx, ev.ItemID, state)
		}
		if ev.NewEnabled && ev.NewStatus.Live() && !active(state.Status) {
			log.Info("post untrashed without restorable story, scheduling")
			return e.schedule(ctx, ev.ItemID)
		}
		return nil

	case ev.OldEnabled && !ev.NewEnabled:
		log.Info("sync disabled")
		return e.teardown(ctx, ev.ItemID, state, "sync disabled")

	case !ev.OldEnabled && ev.NewEnabled:
		if !ev.NewStatus.Live() {
			return nil
		}
		if state.Status == domain.StatusDeleted && state.RemoteStoryID != "" {
			log.Info("sync enabled, restoring deleted story")
			return e.restoreStory(ctx, ev.ItemID, state)
		}
		if !active(state.Status) {
			log.Info("sync enabled, scheduling")
			return e.schedule(ctx, ev.ItemID)
		}
		return nil

	case ev.NewEnabled && ev.NewStatus.Live() && !ev.OldStatus.Live():
		if !active(state.Status) {
			log.Info("post went live, scheduling")
			return e.schedule(ctx, ev.ItemID)
		}
		return nil

	case ev.NewEnabled && state.Status == domain.StatusSent &&
		ev.NewStatus == domain.ContentScheduled && !ev.OldPublishAt.Equal(ev.NewPublishAt):
		log.Info("publish time changed, updating story dates")
		return e.updateDates(ctx, ev.ItemID, state, ev.NewStatus, ev.NewPublishAt)

	case ev.OldStatus.Live() && !ev.NewStatus.Live():
		log.Info("post no longer live")
		return e.teardown(ctx, ev.ItemID, state, "post no longer live")
	}

	return nil
}

// Reconcile is the cron entry point: it applies the scheduling rule to an
// item without requiring a transition, so items missed by event delivery
// still converge.
func (e *Engine) Reconcile(ctx context.Context, itemID int64) error {
	state, err := e.states.Get(ctx, itemID)
	if err != nil {
		return err
	}
	if active(state.Status) {
		return nil
	}

	item, err := e.contents.Get(ctx, itemID)
	if errors.Is(err, domain.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if !item.SyncEnabled || !item.Status.Live() {
		return nil
	}

	e.logger.Info("reconcile scheduling item", "item_id", itemID)
	return e.schedule(ctx, itemID)
}

// schedule enqueues the deferred creation job, unless one is already
// pending for the item. The pending check and the Sent guard in RunJob are
// independent safety nets against duplicate stories.
func (e *Engine) schedule(ctx context.Context, itemID int64) error {
	pending, err := e.jobs.HasPending(ctx, itemID)
	if err != nil {
		return err
	}
	if pending {
		e.logger.Info("job already pending, skipping enqueue", "item_id", itemID)
		return e.states.Update(ctx, itemID, domain.StateUpdate{
			Message: ptr("story job already queued"),
		})
	}

	if err := e.jobs.Enqueue(ctx, itemID); err != nil {
		return e.states.Update(ctx, itemID, domain.StateUpdate{
			Status:  ptr(domain.StatusError),
			Message: ptr(fmt.Sprintf("failed to queue story job: %v", err)),
		})
	}

	return e.states.Update(ctx, itemID, domain.StateUpdate{
		Status:  ptr(domain.StatusScheduled),
		Message: ptr("story job queued"),
	})
}

// teardown handles disable, unschedule and trash: cancel pending work,
// then delete the remote story when one exists, or clear the record when
// processing never finished.
func (e *Engine) teardown(ctx context.Context, itemID int64, state *domain.StoryState, reason string) error {
	if err := e.jobs.CancelAll(ctx, itemID); err != nil {
		return err
	}

	switch {
	// Any state still holding a remote id needs the delete, including Error
	// after a failed earlier attempt.
	case state.RemoteStoryID != "" && state.Status != domain.StatusDeleted:
		res := e.client.Delete(ctx, state.RemoteStoryID)
		if !res.OK {
			return e.states.Update(ctx, itemID, domain.StateUpdate{
				Status:  ptr(domain.StatusError),
				Message: ptr(res.Message),
			})
		}
		return e.states.Update(ctx, itemID, domain.StateUpdate{
			Status:  ptr(domain.StatusDeleted),
			Message: ptr(res.Message),
		})

	case state.Status == domain.StatusScheduled || state.Status == domain.StatusProcessing:
		return e.states.Update(ctx, itemID, domain.StateUpdate{
			Reset:   true,
			Message: ptr(reason),
		})
	}

	return nil
}

func (e *Engine) restoreStory(ctx context.Context, itemID int64, state *domain.StoryState) error {
	res := e.client.Restore(ctx, state.RemoteStoryID)
	if !res.OK {
		return e.states.Update(ctx, itemID, domain.StateUpdate{
			Status:  ptr(domain.StatusError),
			Message: ptr(res.Message),
		})
	}
	return e.states.Update(ctx, itemID, domain.StateUpdate{
		Status:  ptr(domain.StatusSent),
		Message: ptr(res.Message),
	})
}

func (e *Engine) updateDates(ctx context.Context, itemID int64, state *domain.StoryState, status domain.ContentStatus, publishAt time.Time) error {
	start, end := e.storyDates(status, publishAt)
	mask := weekday.Encode(e.cfg.Weekdays)

	res := e.client.Update(ctx, state.RemoteStoryID, domain.StoryFields{
		StartDate: start,
		EndDate:   end,
		Weekdays:  &mask,
	})
	if !res.OK {
		return e.states.Update(ctx, itemID, domain.StateUpdate{
			Status:  ptr(domain.StatusError),
			Message: ptr(res.Message),
		})
	}
	// Status stays Sent; only the message records the refresh.
	return e.states.Update(ctx, itemID, domain.StateUpdate{
		Message: ptr(res.Message),
	})
}

// RunJob is the deferred job body: generate title and speech text, then
// create the remote story. It is idempotent under redelivery because a
// Sent state short-circuits before any remote call.
func (e *Engine) RunJob(ctx context.Context, itemID int64) error {
	log := e.logger.With("item_id", itemID)

	state, err := e.states.Get(ctx, itemID)
	if err != nil {
		return err
	}
	if state.Status == domain.StatusSent {
		log.Info("story already sent, skipping duplicate job")
		return e.states.Update(ctx, itemID, domain.StateUpdate{
			Message: ptr("story already sent, skipping duplicate job"),
		})
	}
	// A recorded remote id means a story exists whatever the status says;
	// creating again would duplicate it.
	if state.RemoteStoryID != "" {
		log.Info("remote story already exists, skipping create", "story_id", state.RemoteStoryID)
		return e.states.Update(ctx, itemID, domain.StateUpdate{
			Message: ptr("remote story already exists, skipping duplicate create"),
		})
	}

	item, err := e.contents.Get(ctx, itemID)
	if errors.Is(err, domain.ErrNotFound) {
		return e.states.Update(ctx, itemID, domain.StateUpdate{
			Status:  ptr(domain.StatusError),
			Message: ptr("content item no longer exists"),
		})
	}
	if err != nil {
		return err
	}
	if !item.SyncEnabled {
		log.Info("sync disabled before job ran, clearing state")
		return e.states.Update(ctx, itemID, domain.StateUpdate{
			Reset:   true,
			Message: ptr("sync disabled before processing started"),
		})
	}

	if err := e.states.Update(ctx, itemID, domain.StateUpdate{
		Status:  ptr(domain.StatusProcessing),
		Message: ptr("generating story text"),
	}); err != nil {
		return err
	}

	source := item.Body
	if source == "" {
		source = item.Title
	}

	title, err := e.generator.Generate(ctx, source, domain.KindTitle)
	if err != nil {
		log.Error("title generation failed", "error", err)
		return e.states.Update(ctx, itemID, domain.StateUpdate{
			Status:  ptr(domain.StatusError),
			Message: ptr(fmt.Sprintf("title generation failed: %v", err)),
		})
	}

	speech, err := e.generator.Generate(ctx, source, domain.KindSpeech)
	if err != nil {
		log.Error("speech generation failed", "error", err)
		return e.states.Update(ctx, itemID, domain.StateUpdate{
			Status:  ptr(domain.StatusError),
			Message: ptr(fmt.Sprintf("speech generation failed: %v", err)),
		})
	}

	start, end := e.storyDates(item.Status, item.PublishAt)
	res := e.client.Create(ctx, domain.StoryPayload{
		Title:     title,
		Text:      speech,
		StartDate: start,
		EndDate:   end,
		Status:    e.cfg.StoryStatus,
		Weekdays:  weekday.Encode(e.cfg.Weekdays),
		ItemID:    itemID,
	})
	if !res.OK {
		return e.states.Update(ctx, itemID, domain.StateUpdate{
			Status:  ptr(domain.StatusError),
			Message: ptr(res.Message),
		})
	}

	log.Info("story sent", "story_id", res.StoryID)
	return e.states.Update(ctx, itemID, domain.StateUpdate{
		Status:              ptr(domain.StatusSent),
		RemoteStoryID:       &res.StoryID,
		Message:             ptr(res.Message),
		GeneratedTitle:      &title,
		GeneratedSpeechText: &speech,
	})
}

// storyDates computes the airing window: the scheduled publish time is the
// base when the item is scheduled for the future, otherwise now; offsets
// are applied and the result truncated to calendar dates in the configured
// time zone.
func (e *Engine) storyDates(status domain.ContentStatus, publishAt time.Time) (string, string) {
	base := e.now()
	if status == domain.ContentScheduled && publishAt.After(base) {
		base = publishAt
	}
	base = base.In(e.cfg.Location)

	start := base.AddDate(0, 0, e.cfg.StartOffsetDays).Format("2006-01-02")
	end := base.AddDate(0, 0, e.cfg.EndOffsetDays).Format("2006-01-02")
	return start, end
}

func ptr[T any](v T) *T {
	return &v
}
