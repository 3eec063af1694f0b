// ABOUTME: MCP server subcommand
// ABOUTME: Starts the MCP server with deal pipeline tools, resources and prompts on stdio
package cli

import (
	"context"
	"log/slog"

	"github.com/harperreed/closer/handlers"
	"github.com/harperreed/closer/pipeline"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// Version is reported to MCP clients.
var Version = "0.1.0"

// NewMCPServer builds the server with every tool, resource and prompt
// registered for owner.
func NewMCPServer(svc *pipeline.Service, owner string) *mcp.Server {
	dealHandlers := handlers.NewDealHandlers(svc, owner)
	milestoneHandlers := handlers.NewMilestoneHandlers(svc, owner)
	vizHandlers := handlers.NewVizHandlers(svc)

	server := mcp.NewServer(&mcp.Implementation{
		Name:    "closer",
		Version: Version,
	}, nil)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "create_deal",
		Description: "Open a new deal at its deal type's first stage with commission computed from value, rate and split",
	}, dealHandlers.CreateDeal)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "get_deal",
		Description: "Fetch a deal by ID",
	}, dealHandlers.GetDeal)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "update_deal",
		Description: "Edit deal fields; commission is recomputed when value, rate or split change. Use change_stage to move stages",
	}, dealHandlers.UpdateDeal)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "delete_deal",
		Description: "Delete a deal and its milestones",
	}, dealHandlers.DeleteDeal)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "list_deals",
		Description: "List deals filtered by type, stage, status, client or assignee, most recently active first",
	}, dealHandlers.ListDeals)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "change_stage",
		Description: "Move a deal to another stage. Entering the contract stage schedules milestones once; lost stages require a reason",
	}, dealHandlers.ChangeStage)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "mark_lost",
		Description: "Close a deal as lost with a reason of at least 10 characters",
	}, dealHandlers.MarkLost)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "create_milestone",
		Description: "Add a manual milestone to a deal",
	}, milestoneHandlers.CreateMilestone)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "update_milestone",
		Description: "Reschedule, rename or change the status of a milestone",
	}, milestoneHandlers.UpdateMilestone)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "delete_milestone",
		Description: "Remove a milestone from a deal",
	}, milestoneHandlers.DeleteMilestone)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "list_milestones",
		Description: "List a deal's milestones in schedule order",
	}, milestoneHandlers.ListMilestones)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "log_activity",
		Description: "Record a note, call, email, meeting, showing or document event on a deal",
	}, milestoneHandlers.LogActivity)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "list_activities",
		Description: "List a deal's activity trail oldest first",
	}, milestoneHandlers.ListActivities)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "list_deal_types",
		Description: "List deal types with their stages, terminal outcomes and milestone templates",
	}, vizHandlers.ListDealTypes)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "generate_pipeline_graph",
		Description: "Render a deal type's stage pipeline as GraphViz source",
	}, vizHandlers.GenerateGraph)

	handlers.NewResourceHandlers(svc, owner).Register(server)
	handlers.NewPromptHandlers(svc, owner).Register(server)

	return server
}

// MCPCommand starts the MCP server on stdio
func MCPCommand(ctx context.Context, svc *pipeline.Service, owner string, logger *slog.Logger) error {
	logger.Info("starting closer MCP server", "owner", owner, "version", Version)

	server := NewMCPServer(svc, owner)
	return server.Run(ctx, &mcp.StdioTransport{})
}
