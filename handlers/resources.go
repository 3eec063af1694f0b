// ABOUTME: MCP resource handlers for exposing pipeline data
// ABOUTME: Provides read-only JSON for deal types, a deal's full record and the dashboard
package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/harperreed/closer/pipeline"
	"github.com/harperreed/closer/viz"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

const (
	DealTypesURI   = "closer://deal-types"
	PipelineURI    = "closer://pipeline"
	DealURIPrefix  = "closer://deals/"
	DealURIPattern = DealURIPrefix + "{deal_id}"
)

type ResourceHandlers struct {
	svc   *pipeline.Service
	owner string
	now   func() time.Time
}

func NewResourceHandlers(svc *pipeline.Service, owner string) *ResourceHandlers {
	return &ResourceHandlers{svc: svc, owner: owner, now: time.Now}
}

// Register adds the static resources and the deal template to server.
func (h *ResourceHandlers) Register(server *mcp.Server) {
	server.AddResource(&mcp.Resource{
		Name:        "deal_types",
		Title:       "Deal Types",
		Description: "Active deal types with stages, terminal outcomes and milestone templates",
		MIMEType:    "application/json",
		URI:         DealTypesURI,
	}, h.ReadResource)

	server.AddResource(&mcp.Resource{
		Name:        "pipeline",
		Title:       "Pipeline Dashboard",
		Description: "Deal counts and value per stage, earned commission and stale deals",
		MIMEType:    "application/json",
		URI:         PipelineURI,
	}, h.ReadResource)

	server.AddResourceTemplate(&mcp.ResourceTemplate{
		Name:        "deal",
		Title:       "Deal",
		Description: "A deal with its milestones and activity trail. URI format: " + DealURIPattern,
		MIMEType:    "application/json",
		URITemplate: DealURIPattern,
	}, h.ReadResource)
}

// ReadResource handles resource read requests
func (h *ResourceHandlers) ReadResource(ctx context.Context, request *mcp.ReadResourceRequest) (*mcp.ReadResourceResult, error) {
	uri := request.Params.URI

	switch {
	case uri == DealTypesURI:
		return h.readDealTypes(uri)
	case uri == PipelineURI:
		return h.readPipeline(ctx, uri)
	case strings.HasPrefix(uri, DealURIPrefix):
		return h.readDeal(ctx, uri, strings.TrimPrefix(uri, DealURIPrefix))
	default:
		return nil, mcp.ResourceNotFoundError(uri)
	}
}

func (h *ResourceHandlers) readDealTypes(uri string) (*mcp.ReadResourceResult, error) {
	types := h.svc.DealTypes()
	out := make([]DealTypeOutput, 0, len(types))
	for _, dt := range types {
		out = append(out, dealTypeToOutput(dt))
	}
	return jsonResource(uri, out)
}

type dealRecord struct {
	Deal       DealOutput        `json:"deal"`
	Milestones []MilestoneOutput `json:"milestones"`
	Activities []ActivityOutput  `json:"activities"`
}

func (h *ResourceHandlers) readDeal(ctx context.Context, uri, idStr string) (*mcp.ReadResourceResult, error) {
	id, err := parseID("deal_id", idStr)
	if err != nil {
		return nil, mcp.ResourceNotFoundError(uri)
	}

	deal, err := h.svc.GetDeal(ctx, h.owner, id)
	if err != nil {
		return nil, mcp.ResourceNotFoundError(uri)
	}
	milestones, err := h.svc.ListMilestones(ctx, h.owner, id)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch milestones: %w", err)
	}
	acts, err := h.svc.ListActivities(ctx, h.owner, id)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch activities: %w", err)
	}

	record := dealRecord{
		Deal:       dealToOutput(deal),
		Milestones: make([]MilestoneOutput, 0, len(milestones)),
		Activities: make([]ActivityOutput, 0, len(acts)),
	}
	for i := range milestones {
		record.Milestones = append(record.Milestones, milestoneToOutput(&milestones[i]))
	}
	for i := range acts {
		record.Activities = append(record.Activities, activityToOutput(&acts[i]))
	}
	return jsonResource(uri, record)
}

type pipelineStage struct {
	Stage string `json:"stage"`
	Count int    `json:"count"`
	Value string `json:"value"`
}

type pipelineSummary struct {
	DealTypes        map[string][]pipelineStage `json:"deal_types"`
	TotalDeals       int                        `json:"total_deals"`
	ActiveDeals      int                        `json:"active_deals"`
	WonDeals         int                        `json:"won_deals"`
	LostDeals        int                        `json:"lost_deals"`
	OpenValue        string                     `json:"open_value"`
	EarnedCommission string                     `json:"earned_commission"`
	StaleDeals       []viz.StaleDeal            `json:"stale_deals"`
}

func (h *ResourceHandlers) readPipeline(ctx context.Context, uri string) (*mcp.ReadResourceResult, error) {
	deals, err := h.svc.AllDeals(ctx, h.owner, pipeline.ListDealsInput{})
	if err != nil {
		return nil, fmt.Errorf("failed to fetch deals: %w", err)
	}
	stats := viz.BuildDashboard(h.svc.DealTypes(), deals, h.now())

	summary := pipelineSummary{
		DealTypes:        make(map[string][]pipelineStage, len(stats.Types)),
		TotalDeals:       stats.TotalDeals,
		ActiveDeals:      stats.ActiveDeals,
		WonDeals:         stats.WonDeals,
		LostDeals:        stats.LostDeals,
		OpenValue:        stats.OpenValue.StringFixed(2),
		EarnedCommission: stats.EarnedCommission.StringFixed(2),
		StaleDeals:       stats.StaleDeals,
	}
	for _, ts := range stats.Types {
		stages := make([]pipelineStage, 0, len(ts.Stages))
		for _, s := range ts.Stages {
			stages = append(stages, pipelineStage{Stage: s.Code, Count: s.Count, Value: s.Value.StringFixed(2)})
		}
		summary.DealTypes[ts.DealType.ID] = stages
	}
	return jsonResource(uri, summary)
}

func jsonResource(uri string, v any) (*mcp.ReadResourceResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s: %w", uri, err)
	}

	return &mcp.ReadResourceResult{Contents: []*mcp.ResourceContents{
		{
			URI:      uri,
			MIMEType: "application/json",
			Text:     string(data),
		},
	}}, nil
}
