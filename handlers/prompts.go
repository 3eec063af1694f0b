// ABOUTME: MCP prompt handlers for reusable pipeline workflow templates
// ABOUTME: Provides deal-review and pipeline-analysis prompts built from live data
package handlers

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/harperreed/closer/models"
	"github.com/harperreed/closer/pipeline"
	"github.com/harperreed/closer/viz"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

type PromptHandlers struct {
	svc   *pipeline.Service
	owner string
	now   func() time.Time
}

func NewPromptHandlers(svc *pipeline.Service, owner string) *PromptHandlers {
	return &PromptHandlers{svc: svc, owner: owner, now: time.Now}
}

// Register adds every prompt to server.
func (h *PromptHandlers) Register(server *mcp.Server) {
	server.AddPrompt(&mcp.Prompt{
		Name:        "deal-review",
		Description: "Review one deal's status, upcoming milestones and recent activity",
		Arguments: []*mcp.PromptArgument{
			{Name: "deal_id", Description: "Deal to review", Required: true},
		},
	}, h.GetPrompt)

	server.AddPrompt(&mcp.Prompt{
		Name:        "pipeline-analysis",
		Description: "Analyze the whole pipeline by deal type and stage",
	}, h.GetPrompt)
}

// GetPrompt generates the prompt message based on the template
func (h *PromptHandlers) GetPrompt(ctx context.Context, request *mcp.GetPromptRequest) (*mcp.GetPromptResult, error) {
	switch request.Params.Name {
	case "deal-review":
		return h.getDealReviewPrompt(ctx, request.Params.Arguments)
	case "pipeline-analysis":
		return h.getPipelineAnalysisPrompt(ctx)
	default:
		return nil, fmt.Errorf("unknown prompt: %s", request.Params.Name)
	}
}

func (h *PromptHandlers) getDealReviewPrompt(ctx context.Context, args map[string]string) (*mcp.GetPromptResult, error) {
	dealID, err := parseID("deal_id", args["deal_id"])
	if err != nil {
		return nil, err
	}

	deal, err := h.svc.GetDeal(ctx, h.owner, dealID)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch deal: %w", err)
	}
	milestones, err := h.svc.ListMilestones(ctx, h.owner, dealID)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch milestones: %w", err)
	}
	acts, err := h.svc.ListActivities(ctx, h.owner, dealID)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch activities: %w", err)
	}

	var promptText strings.Builder
	promptText.WriteString("Please review this real estate deal:\n\n")
	fmt.Fprintf(&promptText, "Title: %s\n", deal.Title)
	fmt.Fprintf(&promptText, "Type: %s\n", deal.DealTypeID)
	fmt.Fprintf(&promptText, "Stage: %s (%s)\n", deal.CurrentStage, deal.Status)
	fmt.Fprintf(&promptText, "Value: $%s, agent commission $%s\n", deal.DealValue.StringFixed(2), deal.AgentCommission.StringFixed(2))
	if deal.ExpectedCloseDate != nil {
		fmt.Fprintf(&promptText, "Expected Close: %s\n", deal.ExpectedCloseDate.Format(time.DateOnly))
	}
	if deal.LostReason != nil {
		fmt.Fprintf(&promptText, "Lost Reason: %s\n", *deal.LostReason)
	}

	if len(milestones) > 0 {
		promptText.WriteString("\nMilestones:\n")
		for _, m := range milestones {
			fmt.Fprintf(&promptText, "  - %s %s (%s)\n", m.ScheduledDate.Format(time.DateOnly), m.Name, m.Status)
		}
	}

	if len(acts) > 0 {
		promptText.WriteString("\nRecent Activity:\n")
		start := max(len(acts)-10, 0)
		for _, act := range acts[start:] {
			fmt.Fprintf(&promptText, "  - %s [%s] %s\n", act.CreatedAt.Format(time.DateOnly), act.Type, act.Title)
		}
	}

	if deal.Notes != "" {
		fmt.Fprintf(&promptText, "\nNotes: %s\n", deal.Notes)
	}

	promptText.WriteString("\nPlease provide:")
	promptText.WriteString("\n1. A short status summary")
	promptText.WriteString("\n2. Overdue or at-risk milestones")
	promptText.WriteString("\n3. The next concrete actions to move the deal forward")

	return &mcp.GetPromptResult{
		Description: fmt.Sprintf("Review for deal: %s", deal.Title),
		Messages: []*mcp.PromptMessage{
			{
				Role:    "user",
				Content: &mcp.TextContent{Text: promptText.String()},
			},
		},
	}, nil
}

func (h *PromptHandlers) getPipelineAnalysisPrompt(ctx context.Context) (*mcp.GetPromptResult, error) {
	deals, err := h.svc.AllDeals(ctx, h.owner, pipeline.ListDealsInput{})
	if err != nil {
		return nil, fmt.Errorf("failed to fetch deals: %w", err)
	}
	stats := viz.BuildDashboard(h.svc.DealTypes(), deals, h.now())

	var promptText strings.Builder
	promptText.WriteString("Please analyze the current deal pipeline:\n\n")
	fmt.Fprintf(&promptText, "Total Deals: %d (%d active, %d won, %d lost)\n",
		stats.TotalDeals, stats.ActiveDeals, stats.WonDeals, stats.LostDeals)
	fmt.Fprintf(&promptText, "Open Value: $%s\n", stats.OpenValue.StringFixed(2))
	fmt.Fprintf(&promptText, "Earned Commission: $%s\n", stats.EarnedCommission.StringFixed(2))

	for _, ts := range stats.Types {
		if ts.Count == 0 {
			continue
		}
		fmt.Fprintf(&promptText, "\n%s:\n", ts.DealType.Name)
		for _, s := range ts.Stages {
			fmt.Fprintf(&promptText, "  - %s: %d deals, $%s\n", s.Label, s.Count, s.Value.StringFixed(2))
		}
	}

	if len(stats.StaleDeals) > 0 {
		fmt.Fprintf(&promptText, "\nStale (no activity in %d+ days):\n", viz.StaleAfterDays)
		for _, d := range stats.StaleDeals {
			fmt.Fprintf(&promptText, "  - %s at %s, %d days\n", d.Title, d.Stage, d.DaysSince)
		}
	}

	promptText.WriteString("\nPlease provide:")
	promptText.WriteString("\n1. Analysis of pipeline health and distribution")
	promptText.WriteString("\n2. Deals that need attention and why")
	promptText.WriteString("\n3. Suggestions for improving conversion to " + wonLabel(h.svc.DealTypes()))

	return &mcp.GetPromptResult{
		Description: "Deal pipeline analysis",
		Messages: []*mcp.PromptMessage{
			{
				Role:    "user",
				Content: &mcp.TextContent{Text: promptText.String()},
			},
		},
	}, nil
}

func wonLabel(types []*models.DealType) string {
	seen := map[string]bool{}
	var labels []string
	for _, dt := range types {
		for _, code := range dt.WonStages {
			if !seen[code] {
				seen[code] = true
				labels = append(labels, code)
			}
		}
	}
	if len(labels) == 0 {
		return "a close"
	}
	return strings.Join(labels, " or ")
}
