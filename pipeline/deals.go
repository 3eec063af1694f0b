// ABOUTME: Deal lifecycle operations outside stage transitions
// ABOUTME: Create, read, partial update with commission recompute, soft delete and activities
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/harperreed/closer/activity"
	"github.com/harperreed/closer/commission"
	"github.com/harperreed/closer/db"
	"github.com/harperreed/closer/models"
	"github.com/shopspring/decimal"
)

// CreateDealInput holds the caller-supplied fields of a new deal.
type CreateDealInput struct {
	DealTypeID string
	ClientID   string
	Title      string
	AssignedTo string
	Notes      string

	DealValue decimal.Decimal
	// CommissionRate defaults to the deal type's rate when nil
	CommissionRate         *decimal.Decimal
	CommissionSplitPercent decimal.NullDecimal

	ExpectedCloseDate *time.Time
}

// UpdateDealInput is a partial update; nil fields are left alone.
type UpdateDealInput struct {
	Title      *string
	ClientID   *string
	AssignedTo *string
	Notes      *string

	DealValue              *decimal.Decimal
	CommissionRate         *decimal.Decimal
	CommissionSplitPercent *decimal.NullDecimal

	ExpectedCloseDate      *time.Time
	ClearExpectedCloseDate bool
	ActualCloseDate        *time.Time

	LostReason *string
}

func (in UpdateDealInput) touchesFinancials() bool {
	return in.DealValue != nil || in.CommissionRate != nil || in.CommissionSplitPercent != nil
}

// touchesFrozenFields reports whether the update edits anything other than
// the metadata a closed deal still accepts.
func (in UpdateDealInput) touchesFrozenFields() bool {
	return in.ClientID != nil || in.AssignedTo != nil || in.touchesFinancials() ||
		in.ExpectedCloseDate != nil || in.ClearExpectedCloseDate || in.ActualCloseDate != nil
}

// ListDealsInput filters and pages a deal listing.
type ListDealsInput struct {
	ClientID   string
	Status     string
	DealTypeID string
	AssignedTo string
	Stage      string
	Limit      int
	Offset     int
}

// CreateActivityInput is a caller-initiated activity.
type CreateActivityInput struct {
	Type        models.ActivityType
	Title       string
	Description string
}

// CreateDeal opens a deal at its type's initial stage with commission derived
// from value, rate and split.
func (s *Service) CreateDeal(ctx context.Context, ownerID string, input CreateDealInput) (*models.Deal, error) {
	dt, err := s.DealType(strings.TrimSpace(input.DealTypeID))
	if err != nil {
		return nil, err
	}

	clientID := strings.TrimSpace(input.ClientID)
	if clientID == "" {
		return nil, invalid("client_id", CodeRequired, "client is required")
	}
	title := strings.TrimSpace(input.Title)
	if title == "" {
		return nil, invalid("title", CodeRequired, "title is required")
	}

	rate := dt.DefaultCommissionRate
	if input.CommissionRate != nil {
		rate = *input.CommissionRate
	}

	initial := dt.InitialStage()
	now := s.now().UTC()

	deal := &models.Deal{
		OwnerID:                ownerID,
		DealTypeID:             dt.ID,
		ClientID:               clientID,
		AssignedTo:             strings.TrimSpace(input.AssignedTo),
		Title:                  title,
		CurrentStage:           initial.Code,
		Status:                 models.DealStatusActive,
		DealValue:              input.DealValue,
		CommissionRate:         rate,
		CommissionSplitPercent: input.CommissionSplitPercent,
		Notes:                  input.Notes,
		CreatedAt:              now,
	}
	if input.ExpectedCloseDate != nil {
		d := models.DateOnly(*input.ExpectedCloseDate)
		deal.ExpectedCloseDate = &d
	}
	if err := applyCommission(deal); err != nil {
		return nil, err
	}

	act := &models.Activity{
		Type:        models.ActivityOther,
		Title:       "Deal created",
		Description: fmt.Sprintf("%s deal opened at %s", dt.Name, initial.Code),
		AuthorID:    ownerID,
		CreatedAt:   now,
	}
	if err := s.deals.Create(ctx, deal, act); err != nil {
		return nil, storeError("create deal", err)
	}

	s.logger.Info("deal created", "deal_id", deal.ID, "deal_type", dt.ID, "stage", deal.CurrentStage)
	return deal, nil
}

func (s *Service) GetDeal(ctx context.Context, ownerID string, dealID uuid.UUID) (*models.Deal, error) {
	deal, err := s.deals.Get(ctx, ownerID, dealID)
	if err != nil {
		return nil, storeError("get deal", err)
	}
	return deal, nil
}

// UpdateDeal applies a partial update. Financial edits recompute commission.
// Closed deals accept only title, notes and lost reason changes. Stage moves
// go through ChangeStage.
func (s *Service) UpdateDeal(ctx context.Context, ownerID string, dealID uuid.UUID, input UpdateDealInput) (*models.Deal, error) {
	deal, _, _, err := s.mutateDeal(ctx, "update deal", ownerID, dealID, func(deal *models.Deal, dt *models.DealType) ([]*models.Activity, bool, error) {
		if deal.Status.IsClosed() && input.touchesFrozenFields() {
			return nil, false, invalid("deal", CodeDealClosed,
				"deal is %s; only title, notes and lost reason can change", deal.Status)
		}

		before := *deal
		if err := applyUpdate(deal, input); err != nil {
			return nil, false, err
		}
		if input.touchesFinancials() {
			if err := applyCommission(deal); err != nil {
				return nil, false, err
			}
		}

		changes := activity.Changes(&before, deal)
		if len(changes) == 0 {
			return nil, false, nil
		}
		return []*models.Activity{activity.FieldUpdate(deal.ID, ownerID, changes, s.now().UTC())}, true, nil
	})
	if err != nil {
		return nil, err
	}
	return deal, nil
}

func applyUpdate(deal *models.Deal, in UpdateDealInput) error {
	if in.Title != nil {
		title := strings.TrimSpace(*in.Title)
		if title == "" {
			return invalid("title", CodeRequired, "title cannot be empty")
		}
		deal.Title = title
	}
	if in.ClientID != nil {
		clientID := strings.TrimSpace(*in.ClientID)
		if clientID == "" {
			return invalid("client_id", CodeRequired, "client cannot be empty")
		}
		deal.ClientID = clientID
	}
	if in.AssignedTo != nil {
		deal.AssignedTo = strings.TrimSpace(*in.AssignedTo)
	}
	if in.Notes != nil {
		deal.Notes = *in.Notes
	}

	if in.DealValue != nil {
		deal.DealValue = *in.DealValue
	}
	if in.CommissionRate != nil {
		deal.CommissionRate = *in.CommissionRate
	}
	if in.CommissionSplitPercent != nil {
		deal.CommissionSplitPercent = *in.CommissionSplitPercent
	}

	if in.ClearExpectedCloseDate {
		deal.ExpectedCloseDate = nil
	} else if in.ExpectedCloseDate != nil {
		d := models.DateOnly(*in.ExpectedCloseDate)
		deal.ExpectedCloseDate = &d
	}
	if in.ActualCloseDate != nil {
		d := models.DateOnly(*in.ActualCloseDate)
		deal.ActualCloseDate = &d
	}

	if in.LostReason != nil {
		if deal.Status != models.DealStatusClosedLost {
			return invalid("lost_reason", CodeInvalidValue, "lost reason applies only to lost deals")
		}
		reason := strings.TrimSpace(*in.LostReason)
		if utf8.RuneCountInString(reason) < models.MinLostReasonLength {
			return invalid("lost_reason", CodeLostReasonTooShort,
				"a lost reason of at least %d characters is required", models.MinLostReasonLength)
		}
		deal.LostReason = &reason
	}
	return nil
}

func applyCommission(deal *models.Deal) error {
	err := commission.Apply(deal)
	switch {
	case errors.Is(err, commission.ErrNegativeInput):
		return invalid("deal_value", CodeInvalidValue, "deal value, rate and split must not be negative")
	case errors.Is(err, commission.ErrPercentOutOfRange):
		return invalid("commission_rate", CodeInvalidValue, "commission rate and split must be at most 100")
	}
	return err
}

// DeleteDeal soft-deletes a deal; it disappears from every read.
func (s *Service) DeleteDeal(ctx context.Context, ownerID string, dealID uuid.UUID) error {
	act := &models.Activity{
		Type:      models.ActivityOther,
		Title:     "Deal deleted",
		AuthorID:  ownerID,
		CreatedAt: s.now().UTC(),
	}
	if err := s.deals.SoftDelete(ctx, ownerID, dealID, act); err != nil {
		return storeError("delete deal", err)
	}
	s.logger.Info("deal deleted", "deal_id", dealID)
	return nil
}

// ListDeals returns one page of the caller's deals.
func (s *Service) ListDeals(ctx context.Context, ownerID string, input ListDealsInput) (*db.DealList, error) {
	if input.Status != "" && !models.ValidDealStatus(input.Status) {
		return nil, invalid("status", CodeInvalidValue, "unknown status %q", input.Status)
	}
	if input.Limit < 0 || input.Offset < 0 {
		return nil, invalid("limit", CodeInvalidValue, "limit and offset must not be negative")
	}

	list, err := s.deals.List(ctx, ownerID, db.DealFilter{
		ClientID:   input.ClientID,
		Status:     input.Status,
		DealTypeID: input.DealTypeID,
		AssignedTo: input.AssignedTo,
		Stage:      input.Stage,
	}, db.Page{Limit: input.Limit, Offset: input.Offset})
	if err != nil {
		return nil, storeError("list deals", err)
	}
	return list, nil
}

// AllDeals pages through every deal matching the filter, most recently
// active first.
func (s *Service) AllDeals(ctx context.Context, ownerID string, input ListDealsInput) ([]models.Deal, error) {
	input.Limit = db.MaxPageSize
	input.Offset = 0

	deals := []models.Deal{}
	for {
		page, err := s.ListDeals(ctx, ownerID, input)
		if err != nil {
			return nil, err
		}
		deals = append(deals, page.Deals...)
		input.Offset += len(page.Deals)
		if len(page.Deals) == 0 || input.Offset >= page.Total {
			return deals, nil
		}
	}
}

// CreateActivity records a caller-initiated activity. System types are
// rejected, and a write failure is returned to the caller.
func (s *Service) CreateActivity(ctx context.Context, ownerID string, dealID uuid.UUID, input CreateActivityInput) (*models.Activity, error) {
	if !models.ValidActivityType(string(input.Type)) || input.Type.IsSystem() {
		return nil, invalid("activity_type", CodeInvalidActivityType, "activity type %q cannot be created directly", input.Type)
	}
	title := strings.TrimSpace(input.Title)
	if title == "" {
		return nil, invalid("title", CodeRequired, "title is required")
	}

	act := &models.Activity{
		DealID:      dealID,
		Type:        input.Type,
		Title:       title,
		Description: input.Description,
		AuthorID:    ownerID,
		CreatedAt:   s.now().UTC(),
	}
	if err := s.activities.Append(ctx, ownerID, act); err != nil {
		return nil, storeError("create activity", err)
	}
	return act, nil
}

// ListActivities returns the deal's activity trail oldest first.
func (s *Service) ListActivities(ctx context.Context, ownerID string, dealID uuid.UUID) ([]models.Activity, error) {
	acts, err := s.activities.List(ctx, ownerID, dealID)
	if err != nil {
		return nil, storeError("list activities", err)
	}
	return acts, nil
}
