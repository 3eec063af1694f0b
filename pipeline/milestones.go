// ABOUTME: Milestone generation from deal type templates and manual milestone CRUD
// ABOUTME: Batches are written once per deal and trigger stage behind a persisted marker
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/harperreed/closer/activity"
	"github.com/harperreed/closer/db"
	"github.com/harperreed/closer/metrics"
	"github.com/harperreed/closer/models"
)

// MilestoneGenerator expands templates into dated milestones.
type MilestoneGenerator struct {
	store   MilestoneStore
	log     *activity.Log
	metrics *metrics.Metrics
	now     func() time.Time
}

func NewMilestoneGenerator(store MilestoneStore, log *activity.Log, m *metrics.Metrics, now func() time.Time) *MilestoneGenerator {
	if now == nil {
		now = time.Now
	}
	return &MilestoneGenerator{store: store, log: log, metrics: m, now: now}
}

// BuildMilestones returns one pending milestone per template, scheduled
// daysOffset calendar days after anchor.
func BuildMilestones(dealID uuid.UUID, templates []models.MilestoneTemplate, anchor time.Time) []*models.Milestone {
	anchor = models.DateOnly(anchor)
	milestones := make([]*models.Milestone, 0, len(templates))
	for _, tmpl := range templates {
		milestones = append(milestones, &models.Milestone{
			DealID:        dealID,
			MilestoneType: tmpl.MilestoneType,
			Name:          tmpl.Name,
			ScheduledDate: anchor.AddDate(0, 0, tmpl.DaysOffset),
			Status:        models.MilestoneStatusPending,
			Source:        models.MilestoneSourceTemplate,
		})
	}
	return milestones
}

// Generate writes the deal type's template batch unless it was already
// written for this deal's trigger stage, and returns how many rows it created.
// The anchor is the expected close date, or today when none is set.
func (g *MilestoneGenerator) Generate(ctx context.Context, ownerID string, deal *models.Deal, dt *models.DealType) (int, error) {
	if len(dt.Milestones) == 0 {
		return 0, nil
	}

	anchor := g.now().UTC()
	if deal.ExpectedCloseDate != nil {
		anchor = *deal.ExpectedCloseDate
	}

	batch := BuildMilestones(deal.ID, dt.Milestones, anchor)
	err := g.store.CreateBatch(ctx, ownerID, deal.ID, dt.TriggerStage, batch)
	if errors.Is(err, db.ErrAlreadyGenerated) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("create milestone batch: %w", err)
	}

	g.metrics.MilestonesCreated(len(batch))

	names := make([]string, len(batch))
	for i, m := range batch {
		names[i] = m.Name
	}
	g.log.RecordBestEffort(ctx, ownerID, activity.MilestonesGenerated(deal.ID, ownerID, dt.TriggerStage, names, g.now().UTC()))

	return len(batch), nil
}

// CreateMilestoneInput describes a manually added milestone.
type CreateMilestoneInput struct {
	MilestoneType string
	Name          string
	ScheduledDate time.Time
}

// UpdateMilestoneInput changes any subset of a milestone's fields.
type UpdateMilestoneInput struct {
	MilestoneType *string
	Name          *string
	ScheduledDate *time.Time
	Status        *models.MilestoneStatus
}

func (s *Service) CreateMilestone(ctx context.Context, ownerID string, dealID uuid.UUID, input CreateMilestoneInput) (*models.Milestone, error) {
	name := strings.TrimSpace(input.Name)
	if name == "" {
		return nil, invalid("name", CodeRequired, "milestone name is required")
	}
	mtype := strings.TrimSpace(input.MilestoneType)
	if mtype == "" {
		mtype = "custom"
	}
	if input.ScheduledDate.IsZero() {
		return nil, invalid("scheduled_date", CodeRequired, "scheduled date is required")
	}

	m := &models.Milestone{
		DealID:        dealID,
		MilestoneType: mtype,
		Name:          name,
		ScheduledDate: models.DateOnly(input.ScheduledDate),
		Status:        models.MilestoneStatusPending,
		Source:        models.MilestoneSourceManual,
	}
	if err := s.milestones.Create(ctx, ownerID, m); err != nil {
		return nil, storeError("create milestone", err)
	}
	return m, nil
}

// UpdateMilestone renames, reschedules or changes the status of a milestone.
// Completing one appends a milestone_complete activity in the same write.
func (s *Service) UpdateMilestone(ctx context.Context, ownerID string, dealID, milestoneID uuid.UUID, input UpdateMilestoneInput) (*models.Milestone, error) {
	m, err := s.getMilestone(ctx, ownerID, dealID, milestoneID)
	if err != nil {
		return nil, err
	}

	if input.Name != nil {
		name := strings.TrimSpace(*input.Name)
		if name == "" {
			return nil, invalid("name", CodeRequired, "milestone name cannot be empty")
		}
		m.Name = name
	}
	if input.MilestoneType != nil {
		mtype := strings.TrimSpace(*input.MilestoneType)
		if mtype == "" {
			return nil, invalid("milestone_type", CodeRequired, "milestone type cannot be empty")
		}
		m.MilestoneType = mtype
	}
	if input.ScheduledDate != nil {
		if input.ScheduledDate.IsZero() {
			return nil, invalid("scheduled_date", CodeRequired, "scheduled date cannot be empty")
		}
		m.ScheduledDate = models.DateOnly(*input.ScheduledDate)
	}

	var acts []*models.Activity
	if input.Status != nil {
		completed, err := m.TransitionStatus(*input.Status, s.now().UTC())
		if err != nil {
			return nil, invalid("status", CodeInvalidStatus, "%v", err)
		}
		if completed {
			acts = append(acts, &models.Activity{
				DealID:    dealID,
				Type:      models.ActivityMilestoneComplete,
				Title:     "Milestone completed: " + m.Name,
				AuthorID:  ownerID,
				CreatedAt: s.now().UTC(),
			})
		}
	}

	if err := s.milestones.Update(ctx, ownerID, m, acts...); err != nil {
		return nil, storeError("update milestone", err)
	}
	return m, nil
}

// DeleteMilestone removes a milestone and records an activity for it.
func (s *Service) DeleteMilestone(ctx context.Context, ownerID string, dealID, milestoneID uuid.UUID) error {
	m, err := s.getMilestone(ctx, ownerID, dealID, milestoneID)
	if err != nil {
		return err
	}

	act := &models.Activity{
		DealID:      dealID,
		Type:        models.ActivityOther,
		Title:       "Milestone deleted: " + m.Name,
		Description: fmt.Sprintf("%s scheduled %s was %s", m.MilestoneType, m.ScheduledDate.Format(time.DateOnly), m.Status),
		AuthorID:    ownerID,
		CreatedAt:   s.now().UTC(),
	}
	if err := s.milestones.Delete(ctx, ownerID, m, act); err != nil {
		return storeError("delete milestone", err)
	}
	return nil
}

// ListMilestones returns the deal's milestones by scheduled date.
func (s *Service) ListMilestones(ctx context.Context, ownerID string, dealID uuid.UUID) ([]models.Milestone, error) {
	milestones, err := s.milestones.ListByDeal(ctx, ownerID, dealID)
	if err != nil {
		return nil, storeError("list milestones", err)
	}
	if milestones == nil {
		milestones = []models.Milestone{}
	}
	return milestones, nil
}

func (s *Service) getMilestone(ctx context.Context, ownerID string, dealID, milestoneID uuid.UUID) (*models.Milestone, error) {
	m, err := s.milestones.Get(ctx, ownerID, milestoneID)
	if err != nil {
		return nil, storeError("get milestone", err)
	}
	if m.DealID != dealID {
		return nil, fmt.Errorf("get milestone: %w", ErrNotFoundOrAccessDenied)
	}
	return m, nil
}
