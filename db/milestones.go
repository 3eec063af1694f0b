// ABOUTME: Milestone database operations
// ABOUTME: Template batch generation with a persisted idempotency marker, plus manual CRUD
package db

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/harperreed/closer/models"
)

const milestoneColumns = `m.id, m.deal_id, m.milestone_type, m.name, m.scheduled_date, m.status,
	m.completed_date, m.source, m.created_at, m.updated_at`

// MilestoneRepository stores milestones. Access is checked through the
// owning deal.
type MilestoneRepository struct {
	db *sql.DB
}

// NewMilestoneRepository creates a new milestone repository.
func NewMilestoneRepository(db *sql.DB) *MilestoneRepository {
	return &MilestoneRepository{db: db}
}

func scanMilestone(row rowScanner) (*models.Milestone, error) {
	m := &models.Milestone{}
	err := row.Scan(
		&m.ID,
		&m.DealID,
		&m.MilestoneType,
		&m.Name,
		&m.ScheduledDate,
		&m.Status,
		&m.CompletedDate,
		&m.Source,
		&m.CreatedAt,
		&m.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return m, nil
}

// CreateBatch inserts a generated batch and records that triggerStage has
// fired for the deal. Both land in one transaction. If the marker already
// exists nothing is written and ErrAlreadyGenerated is returned.
func (r *MilestoneRepository) CreateBatch(ctx context.Context, ownerID string, dealID uuid.UUID, triggerStage string, milestones []*models.Milestone) error {
	now := time.Now().UTC()

	return withTx(ctx, r.db, func(tx *sql.Tx) error {
		if err := requireOwnedDeal(ctx, tx, dealID.String(), ownerID); err != nil {
			return err
		}

		result, err := tx.ExecContext(ctx, `
			INSERT INTO milestone_generations (deal_id, trigger_stage, milestone_count, generated_at)
			VALUES (?, ?, ?, ?)
			ON CONFLICT(deal_id, trigger_stage) DO NOTHING
		`, dealID.String(), triggerStage, len(milestones), now)
		if err != nil {
			return err
		}
		rows, err := result.RowsAffected()
		if err != nil {
			return err
		}
		if rows == 0 {
			return ErrAlreadyGenerated
		}

		for _, m := range milestones {
			m.DealID = dealID
			if err := insertMilestone(ctx, tx, m, now); err != nil {
				return err
			}
		}
		return nil
	})
}

// HasGenerated reports whether the trigger stage already produced a batch.
func (r *MilestoneRepository) HasGenerated(ctx context.Context, dealID uuid.UUID, triggerStage string) (bool, error) {
	var count int
	err := r.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM milestone_generations WHERE deal_id = ? AND trigger_stage = ?
	`, dealID.String(), triggerStage).Scan(&count)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// Create inserts a single milestone with any accompanying activities.
func (r *MilestoneRepository) Create(ctx context.Context, ownerID string, m *models.Milestone, activities ...*models.Activity) error {
	now := time.Now().UTC()

	return withTx(ctx, r.db, func(tx *sql.Tx) error {
		if err := requireOwnedDeal(ctx, tx, m.DealID.String(), ownerID); err != nil {
			return err
		}
		if err := insertMilestone(ctx, tx, m, now); err != nil {
			return err
		}
		return insertActivities(ctx, tx, m.DealID, activities)
	})
}

// Get returns a milestone visible to ownerID.
func (r *MilestoneRepository) Get(ctx context.Context, ownerID string, id uuid.UUID) (*models.Milestone, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+milestoneColumns+`
		FROM milestones m
		JOIN deals d ON d.id = m.deal_id
		WHERE m.id = ? AND d.owner_id = ? AND d.deleted_at IS NULL
	`, id.String(), ownerID)

	m, err := scanMilestone(row)
	if err == sql.ErrNoRows {
		return nil, ErrMilestoneNotFound
	}
	if err != nil {
		return nil, err
	}
	return m, nil
}

// Update saves the milestone's mutable fields and appends activities atomically.
func (r *MilestoneRepository) Update(ctx context.Context, ownerID string, m *models.Milestone, activities ...*models.Activity) error {
	now := time.Now().UTC()

	err := withTx(ctx, r.db, func(tx *sql.Tx) error {
		if err := requireOwnedDeal(ctx, tx, m.DealID.String(), ownerID); err != nil {
			return err
		}

		result, err := tx.ExecContext(ctx, `
			UPDATE milestones
			SET milestone_type = ?, name = ?, scheduled_date = ?, status = ?, completed_date = ?, updated_at = ?
			WHERE id = ? AND deal_id = ?
		`, m.MilestoneType, m.Name, models.DateOnly(m.ScheduledDate), string(m.Status), m.CompletedDate, now,
			m.ID.String(), m.DealID.String())
		if err != nil {
			return err
		}
		rows, err := result.RowsAffected()
		if err != nil {
			return err
		}
		if rows == 0 {
			return ErrMilestoneNotFound
		}

		return insertActivities(ctx, tx, m.DealID, activities)
	})
	if err != nil {
		return err
	}

	m.UpdatedAt = now
	return nil
}

// Delete removes a milestone and appends activities atomically.
func (r *MilestoneRepository) Delete(ctx context.Context, ownerID string, m *models.Milestone, activities ...*models.Activity) error {
	return withTx(ctx, r.db, func(tx *sql.Tx) error {
		if err := requireOwnedDeal(ctx, tx, m.DealID.String(), ownerID); err != nil {
			return err
		}

		result, err := tx.ExecContext(ctx, `DELETE FROM milestones WHERE id = ? AND deal_id = ?`, m.ID.String(), m.DealID.String())
		if err != nil {
			return err
		}
		rows, err := result.RowsAffected()
		if err != nil {
			return err
		}
		if rows == 0 {
			return ErrMilestoneNotFound
		}

		return insertActivities(ctx, tx, m.DealID, activities)
	})
}

// ListByDeal returns the deal's milestones ordered by scheduled date.
func (r *MilestoneRepository) ListByDeal(ctx context.Context, ownerID string, dealID uuid.UUID) ([]models.Milestone, error) {
	var milestones []models.Milestone

	err := withTx(ctx, r.db, func(tx *sql.Tx) error {
		if err := requireOwnedDeal(ctx, tx, dealID.String(), ownerID); err != nil {
			return err
		}

		rows, err := tx.QueryContext(ctx, `
			SELECT `+milestoneColumns+`
			FROM milestones m
			WHERE m.deal_id = ?
			ORDER BY m.scheduled_date ASC, m.created_at ASC, m.id ASC
		`, dealID.String())
		if err != nil {
			return err
		}
		defer func() { _ = rows.Close() }()

		for rows.Next() {
			m, err := scanMilestone(rows)
			if err != nil {
				return err
			}
			milestones = append(milestones, *m)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}

	return milestones, nil
}

func insertMilestone(ctx context.Context, tx *sql.Tx, m *models.Milestone, now time.Time) error {
	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}
	if m.Status == "" {
		m.Status = models.MilestoneStatusPending
	}
	if m.Source == "" {
		m.Source = models.MilestoneSourceManual
	}
	m.ScheduledDate = models.DateOnly(m.ScheduledDate)
	m.CreatedAt = now
	m.UpdatedAt = now

	_, err := tx.ExecContext(ctx, `
		INSERT INTO milestones (id, deal_id, milestone_type, name, scheduled_date, status, completed_date, source, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, m.ID.String(), m.DealID.String(), m.MilestoneType, m.Name, m.ScheduledDate, string(m.Status), m.CompletedDate, m.Source, m.CreatedAt, m.UpdatedAt)
	return err
}

func insertActivities(ctx context.Context, tx *sql.Tx, dealID uuid.UUID, activities []*models.Activity) error {
	for _, act := range activities {
		if act == nil {
			continue
		}
		act.DealID = dealID
		if err := insertActivity(ctx, tx, act); err != nil {
			return err
		}
	}
	return nil
}
