// ABOUTME: Milestone and activity MCP tool handlers
// ABOUTME: Manual milestone CRUD plus logging and reading a deal's activity trail
package handlers

import (
	"context"
	"fmt"
	"strings"

	"github.com/harperreed/closer/models"
	"github.com/harperreed/closer/pipeline"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

type MilestoneHandlers struct {
	svc   *pipeline.Service
	owner string
}

func NewMilestoneHandlers(svc *pipeline.Service, owner string) *MilestoneHandlers {
	return &MilestoneHandlers{svc: svc, owner: owner}
}

type CreateMilestoneInput struct {
	DealID        string `json:"deal_id" jsonschema:"Deal ID (required)"`
	Name          string `json:"name" jsonschema:"Milestone name (required)"`
	MilestoneType string `json:"milestone_type,omitempty" jsonschema:"Milestone type (default custom)"`
	ScheduledDate string `json:"scheduled_date" jsonschema:"Scheduled date (YYYY-MM-DD, required)"`
}

func (h *MilestoneHandlers) CreateMilestone(ctx context.Context, request *mcp.CallToolRequest, input CreateMilestoneInput) (*mcp.CallToolResult, MilestoneOutput, error) {
	dealID, err := parseID("deal_id", input.DealID)
	if err != nil {
		return nil, MilestoneOutput{}, toolError("create milestone", err)
	}
	date, err := parseDate("scheduled_date", input.ScheduledDate)
	if err != nil {
		return nil, MilestoneOutput{}, toolError("create milestone", err)
	}

	m, err := h.svc.CreateMilestone(ctx, h.owner, dealID, pipeline.CreateMilestoneInput{
		MilestoneType: input.MilestoneType,
		Name:          input.Name,
		ScheduledDate: date,
	})
	if err != nil {
		return nil, MilestoneOutput{}, toolError("create milestone", err)
	}
	return nil, milestoneToOutput(m), nil
}

type UpdateMilestoneInput struct {
	DealID        string  `json:"deal_id" jsonschema:"Deal ID (required)"`
	ID            string  `json:"id" jsonschema:"Milestone ID (required)"`
	Name          *string `json:"name,omitempty" jsonschema:"Updated name"`
	MilestoneType *string `json:"milestone_type,omitempty" jsonschema:"Updated type"`
	ScheduledDate *string `json:"scheduled_date,omitempty" jsonschema:"Updated scheduled date (YYYY-MM-DD)"`
	Status        *string `json:"status,omitempty" jsonschema:"New status: pending, completed, cancelled"`
}

func (h *MilestoneHandlers) UpdateMilestone(ctx context.Context, request *mcp.CallToolRequest, input UpdateMilestoneInput) (*mcp.CallToolResult, MilestoneOutput, error) {
	dealID, err := parseID("deal_id", input.DealID)
	if err != nil {
		return nil, MilestoneOutput{}, toolError("update milestone", err)
	}
	id, err := parseID("id", input.ID)
	if err != nil {
		return nil, MilestoneOutput{}, toolError("update milestone", err)
	}

	in := pipeline.UpdateMilestoneInput{
		Name:          input.Name,
		MilestoneType: input.MilestoneType,
	}
	if in.ScheduledDate, err = optionalDate("scheduled_date", input.ScheduledDate); err != nil {
		return nil, MilestoneOutput{}, toolError("update milestone", err)
	}
	if input.Status != nil {
		status := models.MilestoneStatus(strings.TrimSpace(*input.Status))
		in.Status = &status
	}

	m, err := h.svc.UpdateMilestone(ctx, h.owner, dealID, id, in)
	if err != nil {
		return nil, MilestoneOutput{}, toolError("update milestone", err)
	}
	return nil, milestoneToOutput(m), nil
}

type DeleteMilestoneInput struct {
	DealID string `json:"deal_id" jsonschema:"Deal ID (required)"`
	ID     string `json:"id" jsonschema:"Milestone ID (required)"`
}

func (h *MilestoneHandlers) DeleteMilestone(ctx context.Context, request *mcp.CallToolRequest, input DeleteMilestoneInput) (*mcp.CallToolResult, DeleteDealOutput, error) {
	dealID, err := parseID("deal_id", input.DealID)
	if err != nil {
		return nil, DeleteDealOutput{}, toolError("delete milestone", err)
	}
	id, err := parseID("id", input.ID)
	if err != nil {
		return nil, DeleteDealOutput{}, toolError("delete milestone", err)
	}

	if err := h.svc.DeleteMilestone(ctx, h.owner, dealID, id); err != nil {
		return nil, DeleteDealOutput{}, toolError("delete milestone", err)
	}
	return nil, DeleteDealOutput{
		Success: true,
		Message: fmt.Sprintf("Milestone %s deleted successfully", id),
	}, nil
}

type DealRefInput struct {
	DealID string `json:"deal_id" jsonschema:"Deal ID (required)"`
}

type ListMilestonesOutput struct {
	Milestones []MilestoneOutput `json:"milestones"`
}

func (h *MilestoneHandlers) ListMilestones(ctx context.Context, request *mcp.CallToolRequest, input DealRefInput) (*mcp.CallToolResult, ListMilestonesOutput, error) {
	dealID, err := parseID("deal_id", input.DealID)
	if err != nil {
		return nil, ListMilestonesOutput{}, toolError("list milestones", err)
	}

	milestones, err := h.svc.ListMilestones(ctx, h.owner, dealID)
	if err != nil {
		return nil, ListMilestonesOutput{}, toolError("list milestones", err)
	}

	output := ListMilestonesOutput{Milestones: make([]MilestoneOutput, 0, len(milestones))}
	for i := range milestones {
		output.Milestones = append(output.Milestones, milestoneToOutput(&milestones[i]))
	}
	return nil, output, nil
}

type LogActivityInput struct {
	DealID       string `json:"deal_id" jsonschema:"Deal ID (required)"`
	ActivityType string `json:"activity_type" jsonschema:"One of note, call, email, meeting, showing, document_upload, document_delete, other (required)"`
	Title        string `json:"title" jsonschema:"Short summary (required)"`
	Description  string `json:"description,omitempty" jsonschema:"Details"`
}

func (h *MilestoneHandlers) LogActivity(ctx context.Context, request *mcp.CallToolRequest, input LogActivityInput) (*mcp.CallToolResult, ActivityOutput, error) {
	dealID, err := parseID("deal_id", input.DealID)
	if err != nil {
		return nil, ActivityOutput{}, toolError("log activity", err)
	}

	act, err := h.svc.CreateActivity(ctx, h.owner, dealID, pipeline.CreateActivityInput{
		Type:        models.ActivityType(strings.TrimSpace(input.ActivityType)),
		Title:       input.Title,
		Description: input.Description,
	})
	if err != nil {
		return nil, ActivityOutput{}, toolError("log activity", err)
	}
	return nil, activityToOutput(act), nil
}

type ListActivitiesOutput struct {
	Activities []ActivityOutput `json:"activities"`
}

func (h *MilestoneHandlers) ListActivities(ctx context.Context, request *mcp.CallToolRequest, input DealRefInput) (*mcp.CallToolResult, ListActivitiesOutput, error) {
	dealID, err := parseID("deal_id", input.DealID)
	if err != nil {
		return nil, ListActivitiesOutput{}, toolError("list activities", err)
	}

	acts, err := h.svc.ListActivities(ctx, h.owner, dealID)
	if err != nil {
		return nil, ListActivitiesOutput{}, toolError("list activities", err)
	}

	output := ListActivitiesOutput{Activities: make([]ActivityOutput, 0, len(acts))}
	for i := range acts {
		output.Activities = append(output.Activities, activityToOutput(&acts[i]))
	}
	return nil, output, nil
}
