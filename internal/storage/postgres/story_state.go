package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"babbel_syncer/internal/domain"
)

// StoryStateStore persists one sync record per content item. Records are
// never physically deleted; a reset returns them to NotStarted so the
// history of status_changed_at survives for debugging.
type StoryStateStore struct {
	db *sqlx.DB
	tm *TransactionManager

	// OnChange, when set, is called after every successful Update with the
	// state before and after the merge. Used for logging; not required for
	// correctness.
	OnChange func(old, new *domain.StoryState)
}

func NewStoryStateStore(db *sqlx.DB) *StoryStateStore {
	return &StoryStateStore{db: db, tm: NewTransactionManager(db)}
}

// Get returns the current state for an item, or a default NotStarted state
// when the item has never been processed.
func (s *StoryStateStore) Get(ctx context.Context, itemID int64) (*domain.StoryState, error) {
	return s.get(ctx, GetExecutor(ctx, s.db), itemID, false)
}

func (s *StoryStateStore) get(ctx context.Context, exec sqlx.ExtContext, itemID int64, forUpdate bool) (*domain.StoryState, error) {
	query := `
		SELECT item_id, status, remote_story_id, message,
		       generated_title, generated_speech_text, status_changed_at
		FROM story_states
		WHERE item_id = $1`
	if forUpdate {
		query += " FOR UPDATE"
	}

	var state domain.StoryState
	err := sqlx.GetContext(ctx, exec, &state, query, itemID)
	if errors.Is(err, sql.ErrNoRows) {
		return &domain.StoryState{
			ItemID: itemID,
			Status: domain.StatusNotStarted,
		}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get story state: %w", err)
	}
	return &state, nil
}

// Update applies a partial change as a single read-merge-write: the current
// row is locked and re-read, upd is merged over it, status_changed_at is
// stamped, and the merged record is upserted in the same transaction.
func (s *StoryStateStore) Update(ctx context.Context, itemID int64, upd domain.StateUpdate) error {
	var old, merged *domain.StoryState

	err := s.tm.WithTransaction(ctx, func(txCtx context.Context) error {
		exec := GetExecutor(txCtx, s.db)

		cur, err := s.get(txCtx, exec, itemID, true)
		if err != nil {
			return err
		}
		old = cur

		next := merge(cur, upd)
		next.StatusChangedAt = time.Now().UTC()
		merged = next

		query := `
			INSERT INTO story_states (
				item_id, status, remote_story_id, message,
				generated_title, generated_speech_text, status_changed_at
			) VALUES ($1, $2, $3, $4, $5, $6, $7)
			ON CONFLICT (item_id) DO UPDATE SET
				status = EXCLUDED.status,
				remote_story_id = EXCLUDED.remote_story_id,
				message = EXCLUDED.message,
				generated_title = EXCLUDED.generated_title,
				generated_speech_text = EXCLUDED.generated_speech_text,
				status_changed_at = EXCLUDED.status_changed_at`

		_, err = exec.ExecContext(txCtx, query,
			next.ItemID,
			next.Status,
			next.RemoteStoryID,
			next.Message,
			next.GeneratedTitle,
			next.GeneratedSpeechText,
			next.StatusChangedAt,
		)
		if err != nil {
			return fmt.Errorf("upsert story state: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	if s.OnChange != nil {
		s.OnChange(old, merged)
	}
	return nil
}

func merge(cur *domain.StoryState, upd domain.StateUpdate) *domain.StoryState {
	next := *cur
	if upd.Reset {
		next = domain.StoryState{
			ItemID: cur.ItemID,
			Status: domain.StatusNotStarted,
		}
	}
	if upd.Status != nil {
		next.Status = *upd.Status
	}
	if upd.RemoteStoryID != nil {
		next.RemoteStoryID = *upd.RemoteStoryID
	}
	if upd.Message != nil {
		next.Message = *upd.Message
	}
	if upd.GeneratedTitle != nil {
		next.GeneratedTitle = *upd.GeneratedTitle
	}
	if upd.GeneratedSpeechText != nil {
		next.GeneratedSpeechText = *upd.GeneratedSpeechText
	}
	return &next
}
