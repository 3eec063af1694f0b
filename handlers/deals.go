// ABOUTME: Deal MCP tool handlers
// ABOUTME: Implements deal CRUD, listing, change_stage and mark_lost tools
package handlers

import (
	"context"
	"fmt"

	"github.com/harperreed/closer/pipeline"
	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/shopspring/decimal"
)

// DealHandlers act on behalf of a single owner; the MCP server runs for one agent.
type DealHandlers struct {
	svc   *pipeline.Service
	owner string
}

func NewDealHandlers(svc *pipeline.Service, owner string) *DealHandlers {
	return &DealHandlers{svc: svc, owner: owner}
}

type CreateDealInput struct {
	DealTypeID             string `json:"deal_type_id" jsonschema:"Deal type ID from list_deal_types (required)"`
	ClientID               string `json:"client_id" jsonschema:"Client identifier (required)"`
	Title                  string `json:"title" jsonschema:"Deal title, usually the property address (required)"`
	AssignedTo             string `json:"assigned_to,omitempty" jsonschema:"Agent the deal is assigned to"`
	Notes                  string `json:"notes,omitempty" jsonschema:"Free-form notes"`
	DealValue              string `json:"deal_value,omitempty" jsonschema:"Deal value as a decimal string, e.g. 425000.00"`
	CommissionRate         string `json:"commission_rate,omitempty" jsonschema:"Commission percent; defaults to the deal type's rate"`
	CommissionSplitPercent string `json:"commission_split_percent,omitempty" jsonschema:"Agent's share of the commission in percent; omit for no split"`
	ExpectedCloseDate      string `json:"expected_close_date,omitempty" jsonschema:"Expected close date (YYYY-MM-DD)"`
}

func (h *DealHandlers) CreateDeal(ctx context.Context, request *mcp.CallToolRequest, input CreateDealInput) (*mcp.CallToolResult, DealOutput, error) {
	in := pipeline.CreateDealInput{
		DealTypeID: input.DealTypeID,
		ClientID:   input.ClientID,
		Title:      input.Title,
		AssignedTo: input.AssignedTo,
		Notes:      input.Notes,
	}

	if input.DealValue != "" {
		value, err := parseDecimal("deal_value", input.DealValue)
		if err != nil {
			return nil, DealOutput{}, toolError("create deal", err)
		}
		in.DealValue = value
	}
	if input.CommissionRate != "" {
		rate, err := parseDecimal("commission_rate", input.CommissionRate)
		if err != nil {
			return nil, DealOutput{}, toolError("create deal", err)
		}
		in.CommissionRate = &rate
	}
	if input.CommissionSplitPercent != "" {
		split, err := parseDecimal("commission_split_percent", input.CommissionSplitPercent)
		if err != nil {
			return nil, DealOutput{}, toolError("create deal", err)
		}
		in.CommissionSplitPercent = decimal.NewNullDecimal(split)
	}
	if input.ExpectedCloseDate != "" {
		date, err := parseDate("expected_close_date", input.ExpectedCloseDate)
		if err != nil {
			return nil, DealOutput{}, toolError("create deal", err)
		}
		in.ExpectedCloseDate = &date
	}

	deal, err := h.svc.CreateDeal(ctx, h.owner, in)
	if err != nil {
		return nil, DealOutput{}, toolError("create deal", err)
	}
	return nil, dealToOutput(deal), nil
}

type GetDealInput struct {
	ID string `json:"id" jsonschema:"Deal ID (required)"`
}

func (h *DealHandlers) GetDeal(ctx context.Context, request *mcp.CallToolRequest, input GetDealInput) (*mcp.CallToolResult, DealOutput, error) {
	id, err := parseID("id", input.ID)
	if err != nil {
		return nil, DealOutput{}, toolError("get deal", err)
	}

	deal, err := h.svc.GetDeal(ctx, h.owner, id)
	if err != nil {
		return nil, DealOutput{}, toolError("get deal", err)
	}
	return nil, dealToOutput(deal), nil
}

type UpdateDealInput struct {
	ID                     string  `json:"id" jsonschema:"Deal ID (required)"`
	Title                  *string `json:"title,omitempty" jsonschema:"Updated title"`
	ClientID               *string `json:"client_id,omitempty" jsonschema:"Updated client identifier"`
	AssignedTo             *string `json:"assigned_to,omitempty" jsonschema:"Updated assignee; empty string unassigns"`
	Notes                  *string `json:"notes,omitempty" jsonschema:"Replacement notes"`
	DealValue              *string `json:"deal_value,omitempty" jsonschema:"Updated deal value; commission is recomputed"`
	CommissionRate         *string `json:"commission_rate,omitempty" jsonschema:"Updated commission percent; commission is recomputed"`
	CommissionSplitPercent *string `json:"commission_split_percent,omitempty" jsonschema:"Updated agent split percent; empty string removes the split"`
	ExpectedCloseDate      *string `json:"expected_close_date,omitempty" jsonschema:"Updated expected close date (YYYY-MM-DD); empty string clears it"`
	ActualCloseDate        *string `json:"actual_close_date,omitempty" jsonschema:"Actual close date (YYYY-MM-DD)"`
	LostReason             *string `json:"lost_reason,omitempty" jsonschema:"Replacement lost reason for a lost deal (10+ characters)"`
}

// UpdateDeal edits deal fields. Stage moves go through change_stage.
func (h *DealHandlers) UpdateDeal(ctx context.Context, request *mcp.CallToolRequest, input UpdateDealInput) (*mcp.CallToolResult, DealOutput, error) {
	id, err := parseID("id", input.ID)
	if err != nil {
		return nil, DealOutput{}, toolError("update deal", err)
	}

	in := pipeline.UpdateDealInput{
		Title:      input.Title,
		ClientID:   input.ClientID,
		AssignedTo: input.AssignedTo,
		Notes:      input.Notes,
		LostReason: input.LostReason,
	}

	if in.DealValue, err = optionalDecimal("deal_value", input.DealValue); err != nil {
		return nil, DealOutput{}, toolError("update deal", err)
	}
	if in.CommissionRate, err = optionalDecimal("commission_rate", input.CommissionRate); err != nil {
		return nil, DealOutput{}, toolError("update deal", err)
	}
	if input.CommissionSplitPercent != nil {
		split := decimal.NullDecimal{}
		if *input.CommissionSplitPercent != "" {
			d, err := parseDecimal("commission_split_percent", *input.CommissionSplitPercent)
			if err != nil {
				return nil, DealOutput{}, toolError("update deal", err)
			}
			split = decimal.NewNullDecimal(d)
		}
		in.CommissionSplitPercent = &split
	}
	if input.ExpectedCloseDate != nil && *input.ExpectedCloseDate == "" {
		in.ClearExpectedCloseDate = true
	} else if in.ExpectedCloseDate, err = optionalDate("expected_close_date", input.ExpectedCloseDate); err != nil {
		return nil, DealOutput{}, toolError("update deal", err)
	}
	if in.ActualCloseDate, err = optionalDate("actual_close_date", input.ActualCloseDate); err != nil {
		return nil, DealOutput{}, toolError("update deal", err)
	}

	deal, err := h.svc.UpdateDeal(ctx, h.owner, id, in)
	if err != nil {
		return nil, DealOutput{}, toolError("update deal", err)
	}
	return nil, dealToOutput(deal), nil
}

type DeleteDealInput struct {
	ID string `json:"id" jsonschema:"Deal ID (required)"`
}

type DeleteDealOutput struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

func (h *DealHandlers) DeleteDeal(ctx context.Context, request *mcp.CallToolRequest, input DeleteDealInput) (*mcp.CallToolResult, DeleteDealOutput, error) {
	id, err := parseID("id", input.ID)
	if err != nil {
		return nil, DeleteDealOutput{}, toolError("delete deal", err)
	}

	if err := h.svc.DeleteDeal(ctx, h.owner, id); err != nil {
		return nil, DeleteDealOutput{}, toolError("delete deal", err)
	}

	return nil, DeleteDealOutput{
		Success: true,
		Message: fmt.Sprintf("Deal %s deleted successfully", id),
	}, nil
}

type ListDealsInput struct {
	ClientID   string `json:"client_id,omitempty" jsonschema:"Only deals for this client"`
	Status     string `json:"status,omitempty" jsonschema:"Only deals with this status: active, closed_won, closed_lost"`
	DealTypeID string `json:"deal_type_id,omitempty" jsonschema:"Only deals of this type"`
	AssignedTo string `json:"assigned_to,omitempty" jsonschema:"Only deals assigned to this agent"`
	Stage      string `json:"stage,omitempty" jsonschema:"Only deals at this stage"`
	Limit      int    `json:"limit,omitempty" jsonschema:"Page size (default 25, max 100)"`
	Offset     int    `json:"offset,omitempty" jsonschema:"Number of deals to skip"`
}

type ListDealsOutput struct {
	Deals  []DealOutput `json:"deals"`
	Total  int          `json:"total"`
	Limit  int          `json:"limit"`
	Offset int          `json:"offset"`
}

func (h *DealHandlers) ListDeals(ctx context.Context, request *mcp.CallToolRequest, input ListDealsInput) (*mcp.CallToolResult, ListDealsOutput, error) {
	list, err := h.svc.ListDeals(ctx, h.owner, pipeline.ListDealsInput{
		ClientID:   input.ClientID,
		Status:     input.Status,
		DealTypeID: input.DealTypeID,
		AssignedTo: input.AssignedTo,
		Stage:      input.Stage,
		Limit:      input.Limit,
		Offset:     input.Offset,
	})
	if err != nil {
		return nil, ListDealsOutput{}, toolError("list deals", err)
	}

	output := ListDealsOutput{
		Deals:  make([]DealOutput, 0, len(list.Deals)),
		Total:  list.Total,
		Limit:  list.Limit,
		Offset: list.Offset,
	}
	for i := range list.Deals {
		output.Deals = append(output.Deals, dealToOutput(&list.Deals[i]))
	}
	return nil, output, nil
}

type ChangeStageInput struct {
	DealID     string `json:"deal_id" jsonschema:"Deal ID (required)"`
	NewStage   string `json:"new_stage" jsonschema:"Target stage code from the deal type (required)"`
	LostReason string `json:"lost_reason,omitempty" jsonschema:"Why the deal was lost; required (10+ characters) when moving to a lost stage"`
}

type ChangeStageOutput struct {
	Deal              DealOutput `json:"deal"`
	MilestonesCreated int        `json:"milestones_created"`
	Changed           bool       `json:"changed"`
}

func (h *DealHandlers) ChangeStage(ctx context.Context, request *mcp.CallToolRequest, input ChangeStageInput) (*mcp.CallToolResult, ChangeStageOutput, error) {
	id, err := parseID("deal_id", input.DealID)
	if err != nil {
		return nil, ChangeStageOutput{}, toolError("change stage", err)
	}

	result, err := h.svc.ChangeStage(ctx, h.owner, id, input.NewStage, input.LostReason)
	if err != nil {
		return nil, ChangeStageOutput{}, toolError("change stage", err)
	}

	return nil, ChangeStageOutput{
		Deal:              dealToOutput(result.Deal),
		MilestonesCreated: result.MilestonesCreated,
		Changed:           result.Changed,
	}, nil
}

type MarkLostInput struct {
	DealID string `json:"deal_id" jsonschema:"Deal ID (required)"`
	Reason string `json:"reason" jsonschema:"Why the deal was lost, at least 10 characters (required)"`
}

func (h *DealHandlers) MarkLost(ctx context.Context, request *mcp.CallToolRequest, input MarkLostInput) (*mcp.CallToolResult, DealOutput, error) {
	id, err := parseID("deal_id", input.DealID)
	if err != nil {
		return nil, DealOutput{}, toolError("mark lost", err)
	}

	deal, err := h.svc.MarkLost(ctx, h.owner, id, input.Reason)
	if err != nil {
		return nil, DealOutput{}, toolError("mark lost", err)
	}
	return nil, dealToOutput(deal), nil
}
