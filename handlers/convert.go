// ABOUTME: Shared conversions between MCP tool payloads and pipeline types
// ABOUTME: Money travels as decimal strings and dates as YYYY-MM-DD
package handlers

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/harperreed/closer/models"
	"github.com/harperreed/closer/pipeline"
	"github.com/shopspring/decimal"
)

type DealOutput struct {
	ID                     string  `json:"id"`
	DealTypeID             string  `json:"deal_type_id"`
	ClientID               string  `json:"client_id"`
	AssignedTo             string  `json:"assigned_to,omitempty"`
	Title                  string  `json:"title"`
	CurrentStage           string  `json:"current_stage"`
	Status                 string  `json:"status"`
	DealValue              string  `json:"deal_value"`
	CommissionRate         string  `json:"commission_rate"`
	CommissionSplitPercent *string `json:"commission_split_percent,omitempty"`
	CommissionAmount       string  `json:"commission_amount"`
	AgentCommission        string  `json:"agent_commission"`
	ExpectedCloseDate      *string `json:"expected_close_date,omitempty"`
	ActualCloseDate        *string `json:"actual_close_date,omitempty"`
	ClosedAt               *string `json:"closed_at,omitempty"`
	LostReason             *string `json:"lost_reason,omitempty"`
	Notes                  string  `json:"notes,omitempty"`
	Version                int64   `json:"version"`
	CreatedAt              string  `json:"created_at"`
	UpdatedAt              string  `json:"updated_at"`
	LastActivityAt         string  `json:"last_activity_at"`
}

type MilestoneOutput struct {
	ID            string  `json:"id"`
	DealID        string  `json:"deal_id"`
	MilestoneType string  `json:"milestone_type"`
	Name          string  `json:"name"`
	ScheduledDate string  `json:"scheduled_date"`
	Status        string  `json:"status"`
	CompletedDate *string `json:"completed_date,omitempty"`
	Source        string  `json:"source"`
}

type ActivityOutput struct {
	ID           string  `json:"id"`
	DealID       string  `json:"deal_id"`
	ActivityType string  `json:"activity_type"`
	Title        string  `json:"title"`
	Description  string  `json:"description,omitempty"`
	OldStage     *string `json:"old_stage,omitempty"`
	NewStage     *string `json:"new_stage,omitempty"`
	AuthorID     string  `json:"author_id"`
	CreatedAt    string  `json:"created_at"`
}

func dealToOutput(deal *models.Deal) DealOutput {
	output := DealOutput{
		ID:                deal.ID.String(),
		DealTypeID:        deal.DealTypeID,
		ClientID:          deal.ClientID,
		AssignedTo:        deal.AssignedTo,
		Title:             deal.Title,
		CurrentStage:      deal.CurrentStage,
		Status:            string(deal.Status),
		DealValue:         deal.DealValue.StringFixed(2),
		CommissionRate:    deal.CommissionRate.String(),
		CommissionAmount:  deal.CommissionAmount.StringFixed(2),
		AgentCommission:   deal.AgentCommission.StringFixed(2),
		ExpectedCloseDate: formatDate(deal.ExpectedCloseDate),
		ActualCloseDate:   formatDate(deal.ActualCloseDate),
		LostReason:        deal.LostReason,
		Notes:             deal.Notes,
		Version:           deal.Version,
		CreatedAt:         deal.CreatedAt.Format(time.RFC3339),
		UpdatedAt:         deal.UpdatedAt.Format(time.RFC3339),
		LastActivityAt:    deal.LastActivityAt.Format(time.RFC3339),
	}

	if deal.CommissionSplitPercent.Valid {
		split := deal.CommissionSplitPercent.Decimal.String()
		output.CommissionSplitPercent = &split
	}
	if deal.ClosedAt != nil {
		closed := deal.ClosedAt.Format(time.RFC3339)
		output.ClosedAt = &closed
	}

	return output
}

func milestoneToOutput(m *models.Milestone) MilestoneOutput {
	return MilestoneOutput{
		ID:            m.ID.String(),
		DealID:        m.DealID.String(),
		MilestoneType: m.MilestoneType,
		Name:          m.Name,
		ScheduledDate: m.ScheduledDate.Format(time.DateOnly),
		Status:        string(m.Status),
		CompletedDate: formatDate(m.CompletedDate),
		Source:        m.Source,
	}
}

func activityToOutput(act *models.Activity) ActivityOutput {
	return ActivityOutput{
		ID:           act.ID,
		DealID:       act.DealID.String(),
		ActivityType: string(act.Type),
		Title:        act.Title,
		Description:  act.Description,
		OldStage:     act.OldStage,
		NewStage:     act.NewStage,
		AuthorID:     act.AuthorID,
		CreatedAt:    act.CreatedAt.Format(time.RFC3339),
	}
}

func formatDate(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := t.Format(time.DateOnly)
	return &s
}

func parseID(field, value string) (uuid.UUID, error) {
	if strings.TrimSpace(value) == "" {
		return uuid.Nil, &pipeline.ValidationError{Field: field, Code: pipeline.CodeRequired, Message: field + " is required"}
	}
	id, err := uuid.Parse(strings.TrimSpace(value))
	if err != nil {
		return uuid.Nil, &pipeline.ValidationError{Field: field, Code: pipeline.CodeInvalidValue, Message: fmt.Sprintf("invalid %s: %v", field, err)}
	}
	return id, nil
}

func parseDecimal(field, value string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(value))
	if err != nil {
		return decimal.Zero, &pipeline.ValidationError{Field: field, Code: pipeline.CodeInvalidValue, Message: fmt.Sprintf("%q is not a number", value)}
	}
	return d, nil
}

func parseDate(field, value string) (time.Time, error) {
	t, err := models.ParseDate(value)
	if err != nil {
		return time.Time{}, &pipeline.ValidationError{Field: field, Code: pipeline.CodeInvalidValue, Message: fmt.Sprintf("%q is not a date (use YYYY-MM-DD)", value)}
	}
	return t, nil
}

func optionalDecimal(field string, value *string) (*decimal.Decimal, error) {
	if value == nil {
		return nil, nil
	}
	d, err := parseDecimal(field, *value)
	if err != nil {
		return nil, err
	}
	return &d, nil
}

func optionalDate(field string, value *string) (*time.Time, error) {
	if value == nil {
		return nil, nil
	}
	t, err := parseDate(field, *value)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// toolError prefixes validation failures with their code so agents can
// branch on it. The original error stays wrapped.
func toolError(op string, err error) error {
	var verr *pipeline.ValidationError
	if errors.As(err, &verr) {
		return fmt.Errorf("%s: %s: %w", op, verr.Code, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}
