// ABOUTME: Append-only activity journal storage
// ABOUTME: Inserts and lists audit entries; no update or delete path exists
package db

import (
	"context"
	"crypto/rand"
	"database/sql"
	"sync"
	"time"

	"github.com/harperreed/closer/models"
	"github.com/oklog/ulid/v2"
)

var (
	entropyMu sync.Mutex
	entropy   = ulid.Monotonic(rand.Reader, 0)
)

// NewActivityID returns a ULID stamped with t, monotonic within a millisecond.
func NewActivityID(t time.Time) string {
	entropyMu.Lock()
	defer entropyMu.Unlock()
	return ulid.MustNew(ulid.Timestamp(t), entropy).String()
}

// ActivityRepository provides append and read access to the audit trail.
type ActivityRepository struct {
	db *sql.DB
}

// NewActivityRepository creates a new activity repository.
func NewActivityRepository(db *sql.DB) *ActivityRepository {
	return &ActivityRepository{db: db}
}

// Append writes one activity for a deal owned by ownerID.
func (r *ActivityRepository) Append(ctx context.Context, ownerID string, act *models.Activity) error {
	if act == nil {
		return ErrInvalidActivity
	}

	return withTx(ctx, r.db, func(tx *sql.Tx) error {
		if err := requireOwnedDeal(ctx, tx, act.DealID.String(), ownerID); err != nil {
			return err
		}
		return insertActivity(ctx, tx, act)
	})
}

// ListByDeal returns the deal's activities oldest first.
func (r *ActivityRepository) ListByDeal(ctx context.Context, ownerID string, dealID string) ([]models.Activity, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT a.id, a.deal_id, a.activity_type, a.title, a.description, a.old_stage, a.new_stage, a.author_id, a.created_at
		FROM activities a
		JOIN deals d ON d.id = a.deal_id
		WHERE a.deal_id = ? AND d.owner_id = ? AND d.deleted_at IS NULL
		ORDER BY a.created_at ASC, a.id ASC
	`, dealID, ownerID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var activities []models.Activity
	for rows.Next() {
		var a models.Activity
		if err := rows.Scan(&a.ID, &a.DealID, &a.Type, &a.Title, &a.Description, &a.OldStage, &a.NewStage, &a.AuthorID, &a.CreatedAt); err != nil {
			return nil, err
		}
		activities = append(activities, a)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	if len(activities) == 0 {
		// distinguish an empty trail from a deal the caller cannot see
		if err := withTx(ctx, r.db, func(tx *sql.Tx) error {
			return requireOwnedDeal(ctx, tx, dealID, ownerID)
		}); err != nil {
			return nil, err
		}
	}

	return activities, nil
}

// insertActivity writes act inside tx and bumps the deal's last activity time.
func insertActivity(ctx context.Context, tx *sql.Tx, act *models.Activity) error {
	if act == nil || act.Title == "" {
		return ErrInvalidActivity
	}
	if act.CreatedAt.IsZero() {
		act.CreatedAt = time.Now().UTC()
	}
	if act.ID == "" {
		act.ID = NewActivityID(act.CreatedAt)
	}

	_, err := tx.ExecContext(ctx, `
		INSERT INTO activities (id, deal_id, activity_type, title, description, old_stage, new_stage, author_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, act.ID, act.DealID.String(), string(act.Type), act.Title, act.Description, act.OldStage, act.NewStage, act.AuthorID, act.CreatedAt)
	if err != nil {
		return err
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE deals SET last_activity_at = ? WHERE id = ? AND last_activity_at < ?
	`, act.CreatedAt, act.DealID.String(), act.CreatedAt)
	return err
}
