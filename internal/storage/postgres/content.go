package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"babbel_syncer/internal/domain"
)

// ContentStore reads the mirrored editorial items and owns their per-item
// sync flag. Item bodies and lifecycle status are written by the editorial
// system, not by this service.
type ContentStore struct {
	db *sqlx.DB
}

func NewContentStore(db *sqlx.DB) *ContentStore {
	return &ContentStore{db: db}
}

func (s *ContentStore) Get(ctx context.Context, itemID int64) (*domain.ContentItem, error) {
	query := `
		SELECT id, title, body, status, publish_at, sync_enabled, updated_at
		FROM content_items
		WHERE id = $1`

	var item domain.ContentItem
	err := sqlx.GetContext(ctx, GetExecutor(ctx, s.db), &item, query, itemID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get content item: %w", err)
	}
	return &item, nil
}

func (s *ContentStore) SetSyncEnabled(ctx context.Context, itemID int64, enabled bool) error {
	res, err := s.db.ExecContext(ctx,
		"UPDATE content_items SET sync_enabled = $2, updated_at = now() WHERE id = $1",
		itemID, enabled,
	)
	if err != nil {
		return fmt.Errorf("set sync flag: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// ListCandidates returns ids of items that are enabled and in a live
// lifecycle status. The reconciliation loop routes each one through the
// engine, which skips anything already sent or in flight.
func (s *ContentStore) ListCandidates(ctx context.Context) ([]int64, error) {
	query := `
		SELECT id FROM content_items
		WHERE sync_enabled AND status IN ($1, $2)
		ORDER BY id`

	var ids []int64
	err := s.db.SelectContext(ctx, &ids, query,
		domain.ContentPublished, domain.ContentScheduled,
	)
	if err != nil {
		return nil, fmt.Errorf("list sync candidates: %w", err)
	}
	return ids, nil
}
