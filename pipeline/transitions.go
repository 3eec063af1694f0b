// ABOUTME: Stage transition engine
// ABOUTME: Validates target stages, derives status and fires milestone generation
package pipeline

import (
	"context"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/harperreed/closer/activity"
	"github.com/harperreed/closer/models"
)

// TransitionResult is the outcome of ChangeStage.
type TransitionResult struct {
	Deal              *models.Deal `json:"deal"`
	MilestonesCreated int          `json:"milestones_created"`
	// Changed is false when the deal already sat at the requested stage.
	Changed bool `json:"changed"`
}

// ChangeStage moves a deal to newStage. The deal update and its stage_change
// activity commit together. If newStage is the deal type's trigger stage the
// milestone templates are expanded once per deal; a failure there is logged
// and counted but does not undo the transition.
func (s *Service) ChangeStage(ctx context.Context, ownerID string, dealID uuid.UUID, newStage, lostReason string) (*TransitionResult, error) {
	newStage = strings.TrimSpace(newStage)
	reason := strings.TrimSpace(lostReason)

	deal, dt, changed, err := s.mutateDeal(ctx, "change stage", ownerID, dealID, func(deal *models.Deal, dt *models.DealType) ([]*models.Activity, bool, error) {
		if !dt.HasStage(newStage) {
			return nil, false, invalid("new_stage", CodeInvalidStage,
				"%q is not a stage of %s (valid: %s)", newStage, dt.ID, strings.Join(dt.StageCodes(), ", "))
		}
		if dt.IsLost(newStage) && utf8.RuneCountInString(reason) < models.MinLostReasonLength {
			return nil, false, invalid("lost_reason", CodeLostReasonTooShort,
				"a lost reason of at least %d characters is required", models.MinLostReasonLength)
		}
		if newStage == deal.CurrentStage {
			return nil, false, nil
		}
		if deal.Status.IsClosed() {
			return nil, false, invalid("new_stage", CodeDealClosed,
				"deal is %s at %q and cannot move to another stage", deal.Status, deal.CurrentStage)
		}

		oldStage := deal.CurrentStage
		now := s.now().UTC()
		applyStage(deal, dt, newStage, reason, now)

		note := ""
		if dt.IsLost(newStage) {
			note = reason
		}
		return []*models.Activity{activity.StageChange(deal.ID, ownerID, oldStage, newStage, note, now)}, true, nil
	})
	if err != nil {
		return nil, err
	}

	result := &TransitionResult{Deal: deal, Changed: changed}

	if changed {
		s.metrics.TransitionCommitted(dt.ID, deal.CurrentStage)
		switch deal.Status {
		case models.DealStatusClosedWon:
			s.metrics.DealClosed("won")
		case models.DealStatusClosedLost:
			s.metrics.DealClosed("lost")
		}
		s.logger.Info("deal stage changed",
			"deal_id", deal.ID,
			"deal_type", dt.ID,
			"stage", deal.CurrentStage,
			"status", deal.Status,
		)
	}

	if dt.IsTrigger(deal.CurrentStage) {
		created, err := s.generator.Generate(ctx, ownerID, deal, dt)
		if err != nil {
			s.metrics.MilestoneGenerationFailed()
			s.logger.Error("milestone generation failed",
				"deal_id", deal.ID,
				"trigger_stage", dt.TriggerStage,
				"error", err,
			)
		}
		result.MilestonesCreated = created
	}

	return result, nil
}

// MarkLost moves a deal to its type's lost stage.
func (s *Service) MarkLost(ctx context.Context, ownerID string, dealID uuid.UUID, reason string) (*models.Deal, error) {
	deal, err := s.GetDeal(ctx, ownerID, dealID)
	if err != nil {
		return nil, err
	}
	dt, err := s.DealType(deal.DealTypeID)
	if err != nil {
		return nil, err
	}

	lost, ok := dt.LostStage()
	if !ok {
		return nil, invalid("deal_type_id", CodeNoLostStage, "deal type %s has no lost stage", dt.ID)
	}

	result, err := s.ChangeStage(ctx, ownerID, dealID, lost, reason)
	if err != nil {
		return nil, err
	}
	return result.Deal, nil
}

// applyStage sets the stage and the status derived from it.
func applyStage(deal *models.Deal, dt *models.DealType, stage, reason string, now time.Time) {
	deal.CurrentStage = stage

	switch {
	case dt.IsWon(stage):
		deal.Status = models.DealStatusClosedWon
		deal.ClosedAt = &now
		if deal.ActualCloseDate == nil {
			today := models.DateOnly(now)
			deal.ActualCloseDate = &today
		}
		deal.LostReason = nil
	case dt.IsLost(stage):
		deal.Status = models.DealStatusClosedLost
		deal.ClosedAt = &now
		deal.LostReason = &reason
	default:
		deal.Status = models.DealStatusActive
		deal.ClosedAt = nil
		deal.LostReason = nil
	}
}
