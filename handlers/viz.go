// ABOUTME: Deal type catalog and GraphViz MCP handlers
// ABOUTME: Provides list_deal_types and generate_pipeline_graph tools
package handlers

import (
	"context"
	"fmt"
	"strings"

	"github.com/harperreed/closer/models"
	"github.com/harperreed/closer/pipeline"
	"github.com/harperreed/closer/viz"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

type VizHandlers struct {
	svc *pipeline.Service
}

func NewVizHandlers(svc *pipeline.Service) *VizHandlers {
	return &VizHandlers{svc: svc}
}

type StageOutput struct {
	Code     string `json:"code"`
	Name     string `json:"name"`
	Order    int    `json:"order"`
	Outcome  string `json:"outcome,omitempty"`
	Triggers bool   `json:"triggers_milestones,omitempty"`
}

type MilestoneTemplateOutput struct {
	MilestoneType string `json:"milestone_type"`
	Name          string `json:"name"`
	DaysOffset    int    `json:"days_offset"`
}

type DealTypeOutput struct {
	ID                    string                    `json:"id"`
	TypeCode              string                    `json:"type_code"`
	Name                  string                    `json:"name"`
	DefaultCommissionRate string                    `json:"default_commission_rate"`
	Stages                []StageOutput             `json:"stages"`
	Milestones            []MilestoneTemplateOutput `json:"milestones"`
}

type ListDealTypesInput struct{}

type ListDealTypesOutput struct {
	DealTypes []DealTypeOutput `json:"deal_types"`
}

func (h *VizHandlers) ListDealTypes(_ context.Context, request *mcp.CallToolRequest, input ListDealTypesInput) (*mcp.CallToolResult, ListDealTypesOutput, error) {
	types := h.svc.DealTypes()
	output := ListDealTypesOutput{DealTypes: make([]DealTypeOutput, 0, len(types))}
	for _, dt := range types {
		output.DealTypes = append(output.DealTypes, dealTypeToOutput(dt))
	}
	return nil, output, nil
}

func dealTypeToOutput(dt *models.DealType) DealTypeOutput {
	output := DealTypeOutput{
		ID:                    dt.ID,
		TypeCode:              dt.TypeCode,
		Name:                  dt.Name,
		DefaultCommissionRate: dt.DefaultCommissionRate.String(),
		Stages:                make([]StageOutput, 0, len(dt.Stages)),
		Milestones:            make([]MilestoneTemplateOutput, 0, len(dt.Milestones)),
	}

	for _, stage := range dt.OrderedStages() {
		so := StageOutput{
			Code:     stage.Code,
			Name:     viz.StageLabel(stage),
			Order:    stage.Order,
			Triggers: dt.IsTrigger(stage.Code),
		}
		switch {
		case dt.IsWon(stage.Code):
			so.Outcome = "won"
		case dt.IsLost(stage.Code):
			so.Outcome = "lost"
		}
		output.Stages = append(output.Stages, so)
	}
	for _, tmpl := range dt.Milestones {
		output.Milestones = append(output.Milestones, MilestoneTemplateOutput(tmpl))
	}

	return output
}

type GenerateGraphInput struct {
	DealTypeID string `json:"deal_type_id" jsonschema:"Deal type to draw (required)"`
}

type GenerateGraphOutput struct {
	DealTypeID string `json:"deal_type_id"`
	DOTSource  string `json:"dot_source"`
	NodeCount  int    `json:"node_count"`
	EdgeCount  int    `json:"edge_count"`
}

func (h *VizHandlers) GenerateGraph(ctx context.Context, request *mcp.CallToolRequest, input GenerateGraphInput) (*mcp.CallToolResult, GenerateGraphOutput, error) {
	dt, err := h.svc.DealType(strings.TrimSpace(input.DealTypeID))
	if err != nil {
		return nil, GenerateGraphOutput{}, toolError("generate graph", err)
	}

	dot, err := viz.PipelineGraph(ctx, dt)
	if err != nil {
		return nil, GenerateGraphOutput{}, fmt.Errorf("failed to generate graph: %w", err)
	}

	return nil, GenerateGraphOutput{
		DealTypeID: dt.ID,
		DOTSource:  dot,
		NodeCount:  len(dt.Stages) + len(milestoneNodes(dt)),
		EdgeCount:  strings.Count(dot, "->"),
	}, nil
}

func milestoneNodes(dt *models.DealType) []models.MilestoneTemplate {
	if !dt.HasStage(dt.TriggerStage) {
		return nil
	}
	return dt.Milestones
}
