// ABOUTME: Deal database operations
// ABOUTME: Owner-scoped CRUD, version-checked updates and soft delete
package db

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/harperreed/closer/models"
)

const (
	DefaultPageSize = 25
	MaxPageSize     = 100
)

const dealColumns = `id, owner_id, deal_type_id, client_id, assigned_to, title, current_stage, status,
	deal_value, commission_rate, commission_split_percent, commission_amount, agent_commission,
	expected_close_date, actual_close_date, closed_at, lost_reason, notes, version,
	created_at, updated_at, last_activity_at, deleted_at`

// DealFilter narrows a deal listing. Empty fields do not filter.
type DealFilter struct {
	ClientID   string
	Status     string
	DealTypeID string
	AssignedTo string
	Stage      string
}

// Page selects a window of results.
type Page struct {
	Limit  int
	Offset int
}

// Normalize applies the default size and the 100-row cap.
func (p Page) Normalize() Page {
	if p.Limit <= 0 {
		p.Limit = DefaultPageSize
	}
	if p.Limit > MaxPageSize {
		p.Limit = MaxPageSize
	}
	if p.Offset < 0 {
		p.Offset = 0
	}
	return p
}

// DealList is one page of deals plus the unpaged total.
type DealList struct {
	Deals  []models.Deal `json:"deals"`
	Total  int           `json:"total"`
	Limit  int           `json:"limit"`
	Offset int           `json:"offset"`
}

// DealRepository is the persistence contract for deals. Every method is
// scoped to the owning caller; another owner's deal looks missing.
type DealRepository struct {
	db *sql.DB
}

// NewDealRepository creates a new deal repository.
func NewDealRepository(db *sql.DB) *DealRepository {
	return &DealRepository{db: db}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDeal(row rowScanner) (*models.Deal, error) {
	deal := &models.Deal{}
	err := row.Scan(
		&deal.ID,
		&deal.OwnerID,
		&deal.DealTypeID,
		&deal.ClientID,
		&deal.AssignedTo,
		&deal.Title,
		&deal.CurrentStage,
		&deal.Status,
		&deal.DealValue,
		&deal.CommissionRate,
		&deal.CommissionSplitPercent,
		&deal.CommissionAmount,
		&deal.AgentCommission,
		&deal.ExpectedCloseDate,
		&deal.ActualCloseDate,
		&deal.ClosedAt,
		&deal.LostReason,
		&deal.Notes,
		&deal.Version,
		&deal.CreatedAt,
		&deal.UpdatedAt,
		&deal.LastActivityAt,
		&deal.DeletedAt,
	)
	if err != nil {
		return nil, err
	}
	return deal, nil
}

// Create inserts a new deal together with any accompanying activities.
func (r *DealRepository) Create(ctx context.Context, deal *models.Deal, activities ...*models.Activity) error {
	if deal.ID == uuid.Nil {
		deal.ID = uuid.New()
	}
	now := time.Now().UTC()
	if deal.CreatedAt.IsZero() {
		deal.CreatedAt = now
	}
	deal.UpdatedAt = deal.CreatedAt
	deal.LastActivityAt = deal.CreatedAt
	deal.Version = 1

	return withTx(ctx, r.db, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO deals (`+dealColumns+`)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`,
			deal.ID.String(),
			deal.OwnerID,
			deal.DealTypeID,
			deal.ClientID,
			deal.AssignedTo,
			deal.Title,
			deal.CurrentStage,
			string(deal.Status),
			deal.DealValue,
			deal.CommissionRate,
			deal.CommissionSplitPercent,
			deal.CommissionAmount,
			deal.AgentCommission,
			deal.ExpectedCloseDate,
			deal.ActualCloseDate,
			deal.ClosedAt,
			deal.LostReason,
			deal.Notes,
			deal.Version,
			deal.CreatedAt,
			deal.UpdatedAt,
			deal.LastActivityAt,
			nil,
		)
		if err != nil {
			return err
		}

		return insertActivities(ctx, tx, deal.ID, activities)
	})
}

// Get returns a live deal owned by ownerID.
func (r *DealRepository) Get(ctx context.Context, ownerID string, id uuid.UUID) (*models.Deal, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+dealColumns+`
		FROM deals WHERE id = ? AND owner_id = ? AND deleted_at IS NULL
	`, id.String(), ownerID)

	deal, err := scanDeal(row)
	if err == sql.ErrNoRows {
		return nil, ErrDealNotFound
	}
	if err != nil {
		return nil, err
	}
	return deal, nil
}

// Update writes every mutable column of deal if the stored version still
// equals expectedVersion, appending activities in the same transaction.
// A concurrent writer makes it fail with ErrStaleDeal and change nothing.
func (r *DealRepository) Update(ctx context.Context, deal *models.Deal, expectedVersion int64, activities ...*models.Activity) error {
	now := time.Now().UTC()
	for _, act := range activities {
		if act != nil && act.CreatedAt.After(now) {
			now = act.CreatedAt
		}
	}

	err := withTx(ctx, r.db, func(tx *sql.Tx) error {
		result, err := tx.ExecContext(ctx, `
			UPDATE deals
			SET client_id = ?, assigned_to = ?, title = ?, current_stage = ?, status = ?,
				deal_value = ?, commission_rate = ?, commission_split_percent = ?,
				commission_amount = ?, agent_commission = ?,
				expected_close_date = ?, actual_close_date = ?, closed_at = ?, lost_reason = ?, notes = ?,
				version = version + 1, updated_at = ?, last_activity_at = ?
			WHERE id = ? AND owner_id = ? AND version = ? AND deleted_at IS NULL
		`,
			deal.ClientID,
			deal.AssignedTo,
			deal.Title,
			deal.CurrentStage,
			string(deal.Status),
			deal.DealValue,
			deal.CommissionRate,
			deal.CommissionSplitPercent,
			deal.CommissionAmount,
			deal.AgentCommission,
			deal.ExpectedCloseDate,
			deal.ActualCloseDate,
			deal.ClosedAt,
			deal.LostReason,
			deal.Notes,
			now,
			now,
			deal.ID.String(),
			deal.OwnerID,
			expectedVersion,
		)
		if err != nil {
			return err
		}

		rows, err := result.RowsAffected()
		if err != nil {
			return err
		}
		if rows == 0 {
			if err := requireOwnedDeal(ctx, tx, deal.ID.String(), deal.OwnerID); err != nil {
				return err
			}
			return ErrStaleDeal
		}

		return insertActivities(ctx, tx, deal.ID, activities)
	})
	if err != nil {
		return err
	}

	deal.Version = expectedVersion + 1
	deal.UpdatedAt = now
	deal.LastActivityAt = now
	return nil
}

// SoftDelete hides a deal from every read. Rows are never removed.
func (r *DealRepository) SoftDelete(ctx context.Context, ownerID string, id uuid.UUID, activities ...*models.Activity) error {
	now := time.Now().UTC()

	return withTx(ctx, r.db, func(tx *sql.Tx) error {
		// the audit entry is written while the deal is still live
		if err := requireOwnedDeal(ctx, tx, id.String(), ownerID); err != nil {
			return err
		}
		if err := insertActivities(ctx, tx, id, activities); err != nil {
			return err
		}

		_, err := tx.ExecContext(ctx, `
			UPDATE deals SET deleted_at = ?, updated_at = ?, version = version + 1
			WHERE id = ? AND owner_id = ? AND deleted_at IS NULL
		`, now, now, id.String(), ownerID)
		return err
	})
}

// List returns one page of ownerID's live deals matching filter, most
// recently active first.
func (r *DealRepository) List(ctx context.Context, ownerID string, filter DealFilter, page Page) (*DealList, error) {
	page = page.Normalize()

	conditions := []string{"owner_id = ?", "deleted_at IS NULL"}
	args := []any{ownerID}

	if filter.ClientID != "" {
		conditions = append(conditions, "client_id = ?")
		args = append(args, filter.ClientID)
	}
	if filter.Status != "" {
		conditions = append(conditions, "status = ?")
		args = append(args, filter.Status)
	}
	if filter.DealTypeID != "" {
		conditions = append(conditions, "deal_type_id = ?")
		args = append(args, filter.DealTypeID)
	}
	if filter.AssignedTo != "" {
		conditions = append(conditions, "assigned_to = ?")
		args = append(args, filter.AssignedTo)
	}
	if filter.Stage != "" {
		conditions = append(conditions, "current_stage = ?")
		args = append(args, filter.Stage)
	}

	where := strings.Join(conditions, " AND ")

	list := &DealList{Limit: page.Limit, Offset: page.Offset, Deals: []models.Deal{}}
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM deals WHERE `+where, args...).Scan(&list.Total); err != nil {
		return nil, err
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT `+dealColumns+`
		FROM deals
		WHERE `+where+`
		ORDER BY last_activity_at DESC, id ASC
		LIMIT ? OFFSET ?
	`, append(args, page.Limit, page.Offset)...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		deal, err := scanDeal(rows)
		if err != nil {
			return nil, err
		}
		list.Deals = append(list.Deals, *deal)
	}

	return list, rows.Err()
}
