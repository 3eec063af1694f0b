// ABOUTME: Data models for the deal pipeline
// ABOUTME: Defines Deal, Milestone, Activity and their enumerations
package models

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// DealStatus is derived from the deal's current stage.
type DealStatus string

const (
	DealStatusActive     DealStatus = "active"
	DealStatusClosedWon  DealStatus = "closed_won"
	DealStatusClosedLost DealStatus = "closed_lost"
)

// IsClosed reports whether the status is one of the terminal statuses.
func (s DealStatus) IsClosed() bool {
	return s == DealStatusClosedWon || s == DealStatusClosedLost
}

// ValidDealStatus reports whether s names a known deal status.
func ValidDealStatus(s string) bool {
	switch DealStatus(s) {
	case DealStatusActive, DealStatusClosedWon, DealStatusClosedLost:
		return true
	}
	return false
}

// MinLostReasonLength is the minimum number of characters a lost reason needs.
const MinLostReasonLength = 10

type Deal struct {
	ID                     uuid.UUID           `json:"id"`
	OwnerID                string              `json:"owner_id"`
	DealTypeID             string              `json:"deal_type_id"`
	ClientID               string              `json:"client_id"`
	AssignedTo             string              `json:"assigned_to,omitempty"`
	Title                  string              `json:"title"`
	CurrentStage           string              `json:"current_stage"`
	Status                 DealStatus          `json:"status"`
	DealValue              decimal.Decimal     `json:"deal_value"`
	CommissionRate         decimal.Decimal     `json:"commission_rate"`
	CommissionSplitPercent decimal.NullDecimal `json:"commission_split_percent"`
	CommissionAmount       decimal.Decimal     `json:"commission_amount"`
	AgentCommission        decimal.Decimal     `json:"agent_commission"`
	ExpectedCloseDate      *time.Time          `json:"expected_close_date,omitempty"`
	ActualCloseDate        *time.Time          `json:"actual_close_date,omitempty"`
	ClosedAt               *time.Time          `json:"closed_at,omitempty"`
	LostReason             *string             `json:"lost_reason,omitempty"`
	Notes                  string              `json:"notes,omitempty"`
	Version                int64               `json:"version"`
	CreatedAt              time.Time           `json:"created_at"`
	UpdatedAt              time.Time           `json:"updated_at"`
	LastActivityAt         time.Time           `json:"last_activity_at"`
	DeletedAt              *time.Time          `json:"deleted_at,omitempty"`
}

// MilestoneStatus is the lifecycle state of a milestone.
type MilestoneStatus string

const (
	MilestoneStatusPending   MilestoneStatus = "pending"
	MilestoneStatusCompleted MilestoneStatus = "completed"
	MilestoneStatusCancelled MilestoneStatus = "cancelled"
)

// Milestone sources.
const (
	MilestoneSourceTemplate = "template"
	MilestoneSourceManual   = "manual"
)

type Milestone struct {
	ID            uuid.UUID       `json:"id"`
	DealID        uuid.UUID       `json:"deal_id"`
	MilestoneType string          `json:"milestone_type"`
	Name          string          `json:"name"`
	ScheduledDate time.Time       `json:"scheduled_date"`
	Status        MilestoneStatus `json:"status"`
	CompletedDate *time.Time      `json:"completed_date,omitempty"`
	Source        string          `json:"source"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

// ActivityType enumerates audit entry kinds.
type ActivityType string

const (
	ActivityStageChange       ActivityType = "stage_change"
	ActivityNote              ActivityType = "note"
	ActivityCall              ActivityType = "call"
	ActivityEmail             ActivityType = "email"
	ActivityMeeting           ActivityType = "meeting"
	ActivityShowing           ActivityType = "showing"
	ActivityDocumentUpload    ActivityType = "document_upload"
	ActivityDocumentDelete    ActivityType = "document_delete"
	ActivityMilestoneComplete ActivityType = "milestone_complete"
	ActivityFieldUpdate       ActivityType = "field_update"
	ActivityOther             ActivityType = "other"
)

// AllActivityTypes lists every activity type in declaration order.
var AllActivityTypes = []ActivityType{
	ActivityStageChange,
	ActivityNote,
	ActivityCall,
	ActivityEmail,
	ActivityMeeting,
	ActivityShowing,
	ActivityDocumentUpload,
	ActivityDocumentDelete,
	ActivityMilestoneComplete,
	ActivityFieldUpdate,
	ActivityOther,
}

// ValidActivityType reports whether s names a known activity type.
func ValidActivityType(s string) bool {
	for _, t := range AllActivityTypes {
		if string(t) == s {
			return true
		}
	}
	return false
}

// IsSystem reports whether only the pipeline itself may write this type.
func (t ActivityType) IsSystem() bool {
	switch t {
	case ActivityStageChange, ActivityMilestoneComplete, ActivityFieldUpdate:
		return true
	}
	return false
}

// Activity is an append-only audit entry. ID is a ULID so the trail sorts by time.
type Activity struct {
	ID          string       `json:"id"`
	DealID      uuid.UUID    `json:"deal_id"`
	Type        ActivityType `json:"activity_type"`
	Title       string       `json:"title"`
	Description string       `json:"description,omitempty"`
	OldStage    *string      `json:"old_stage,omitempty"`
	NewStage    *string      `json:"new_stage,omitempty"`
	AuthorID    string       `json:"author_id"`
	CreatedAt   time.Time    `json:"created_at"`
}

// DateOnly truncates t to midnight UTC of its calendar date.
func DateOnly(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// ParseDate accepts YYYY-MM-DD or RFC3339 and returns the calendar date.
func ParseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if t, err := time.Parse(time.DateOnly, s); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, err
	}
	return DateOnly(t), nil
}
