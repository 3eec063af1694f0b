// ABOUTME: Entry point for the closer deal pipeline CLI and MCP server
// ABOUTME: Loads configuration, wires storage and services, then routes to subcommands
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/harperreed/closer/catalog"
	"github.com/harperreed/closer/cli"
	"github.com/harperreed/closer/config"
	"github.com/harperreed/closer/db"
	"github.com/harperreed/closer/metrics"
	"github.com/harperreed/closer/pipeline"
	"github.com/harperreed/closer/web"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

const version = "0.1.0"

type command func(svc *pipeline.Service, owner string, args []string) error

var dealCommands = map[string]command{
	"add-deal":      cli.AddDealCommand,
	"list-deals":    cli.ListDealsCommand,
	"show-deal":     cli.ShowDealCommand,
	"update-deal":   cli.UpdateDealCommand,
	"delete-deal":   cli.DeleteDealCommand,
	"move-deal":     cli.MoveDealCommand,
	"lose-deal":     cli.LoseDealCommand,
	"log-activity":  cli.LogActivityCommand,
	"add-milestone": cli.AddMilestoneCommand,
	"set-milestone": cli.SetMilestoneCommand,
	"deal-types":    cli.DealTypesCommand,
}

var vizCommands = map[string]command{
	"graph":     cli.VizGraphCommand,
	"dashboard": cli.VizDashboardCommand,
}

func main() {
	// Global flags
	showVersion := flag.Bool("version", false, "Show version and exit")
	dbPath := flag.String("db-path", "", "Database path (default: $CLOSER_DB_PATH or ~/.local/share/closer/closer.db)")
	envFile := flag.String("env-file", "", "Env file to load (default: ./.env)")
	catalogPath := flag.String("catalog", "", "Deal type catalog YAML (default: $CLOSER_CATALOG_PATH or built-in)")
	owner := flag.String("owner", "", "Act as this owner (default: $CLOSER_OWNER)")
	initOnly := flag.Bool("init", false, "Initialize database and exit")

	// Parse global flags but don't fail on unknown (for subcommands)
	_ = flag.CommandLine.Parse(os.Args[1:])

	if *showVersion {
		fmt.Printf("closer version %s\n", version)
		os.Exit(0)
	}

	args := flag.Args()
	if len(args) == 0 && !*initOnly {
		printUsage()
		os.Exit(0)
	}

	cfg, err := config.Load(*envFile)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if *dbPath != "" {
		cfg.DBPath = *dbPath
	}
	if *catalogPath != "" {
		cfg.CatalogPath = *catalogPath
	}
	if *owner != "" {
		cfg.Owner = *owner
	}

	// stdout belongs to the MCP transport, so logs always go to stderr
	logger := cfg.NewLogger(os.Stderr)

	database, err := db.OpenDatabase(cfg.DBPath)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer func() { _ = database.Close() }()

	if *initOnly {
		logger.Info("database initialized", "path", cfg.DBPath)
		return
	}

	cat, err := catalog.Load(cfg.CatalogPath)
	if err != nil {
		log.Fatalf("Failed to load deal types: %v", err)
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	svc := pipeline.NewSQLiteService(database, cat,
		pipeline.WithLogger(logger),
		pipeline.WithMetrics(metrics.New(registry)),
		pipeline.WithMaxAttempts(cfg.TransitionAttempts),
		pipeline.WithAuditTimeout(cfg.AuditTimeout),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	name := args[0]
	commandArgs := args[1:]

	switch name {
	case "mcp":
		if err := cli.MCPCommand(ctx, svc, cfg.Owner, logger); err != nil {
			log.Fatalf("MCP server failed: %v", err)
		}

	case "serve":
		fs := flag.NewFlagSet("serve", flag.ExitOnError)
		addr := fs.String("addr", cfg.HTTPAddr, "Listen address")
		_ = fs.Parse(commandArgs)

		if err := web.NewServer(svc, cfg.Owner, registry, logger).Start(ctx, *addr); err != nil {
			log.Fatalf("Web server failed: %v", err)
		}

	case "deals":
		if len(commandArgs) == 0 {
			fmt.Println("Error: deals requires a subcommand")
			printUsage()
			os.Exit(1)
		}
		run(dealCommands, "deals", svc, cfg.Owner, commandArgs)

	case "viz":
		if len(commandArgs) == 0 {
			fmt.Println("Error: viz requires a subcommand")
			printUsage()
			os.Exit(1)
		}
		run(vizCommands, "viz", svc, cfg.Owner, commandArgs)

	case "board":
		if err := cli.BoardCommand(svc, cfg.Owner, commandArgs); err != nil {
			log.Fatalf("Error: %v", err)
		}

	default:
		fmt.Printf("Unknown command: %s\n\n", name)
		printUsage()
		os.Exit(1)
	}
}

func run(commands map[string]command, group string, svc *pipeline.Service, owner string, args []string) {
	cmd, ok := commands[args[0]]
	if !ok {
		fmt.Printf("Unknown %s command: %s\n\n", group, args[0])
		printUsage()
		os.Exit(1)
	}
	if err := cmd(svc, owner, args[1:]); err != nil {
		log.Fatalf("Error: %v", err)
	}
}

func printUsage() {
	fmt.Printf(`closer v%s - Real estate deal pipeline

USAGE:
  closer [global flags] <command> [subcommand] [flags]

GLOBAL FLAGS:
  --version              Show version and exit
  --db-path <path>       Database path (default: ~/.local/share/closer/closer.db)
  --env-file <path>      Env file to load (default: ./.env)
  --catalog <path>       Deal type catalog YAML (default: built-in)
  --owner <id>           Act as this owner (default: $CLOSER_OWNER or "local")
  --init                 Initialize database and exit

COMMANDS:
  mcp                    Start MCP server on stdio
  serve                  Start the read-only HTTP server
  deals                  Deal management commands
  viz                    Visualization commands
  board                  Kanban board of one deal type

MCP SERVER:
  closer mcp             Start MCP server (tools, resources and prompts)

HTTP SERVER:
  closer serve           Serve /healthz, /metrics, /deal-types, /dashboard
    --addr <host:port>     Listen address (default: $CLOSER_HTTP_ADDR)

DEAL COMMANDS:
  closer deals add-deal     Add a new deal at its type's first stage
    --type <id>               Deal type (required)
    --client <id>             Client ID (required)
    --title <title>           Deal title (required)
    --value <amount>          Deal value
    --rate <percent>          Commission percent (default: deal type rate)
    --split <percent>         Agent split percent
    --close <date>            Expected close date (YYYY-MM-DD)
    --assign <agent>          Assigned agent
    --notes <notes>           Notes

  closer deals list-deals   List deals
    --type, --stage, --status, --client   Filters
    --limit <n>               Max results (default: 50)
    --offset <n>              Skip this many deals

  closer deals show-deal <id>              Deal with milestones and activity
  closer deals update-deal [flags] <id>    Edit deal fields
    --value, --rate, --split ("none" clears), --close ("none" clears),
    --closed-on, --title, --client, --assign, --notes, --reason
    Note: flags must come before the deal ID
  closer deals delete-deal <id>            Delete a deal
  closer deals move-deal [--reason text] <id> <stage>
                                           Change stage (contract stage schedules milestones)
  closer deals lose-deal --reason <text> <id>
                                           Mark a deal lost
  closer deals log-activity --type <t> --title <text> <id>
  closer deals add-milestone --name <n> --date <YYYY-MM-DD> <id>
  closer deals set-milestone [--status s] <deal-id> <milestone-id>
  closer deals deal-types                  List deal types and stages

VIZ COMMANDS:
  closer viz graph <deal-type>   Render a deal type's pipeline
    --format <dot|svg>             Output format (default: dot)
    --output <file>                Output file (default: stdout)

  closer viz dashboard           Pipeline totals and stale deals
    --type <id>                    Only this deal type

  closer board [--type <id>]     Kanban board sized to the terminal

EXAMPLES:
  # Start MCP server
  closer mcp

  # Add a listing
  closer deals add-deal --type residential_sale --client c-17 --title "12 Elm Street" --value 425000 --split 60

  # Go under contract and schedule inspection, appraisal and closing
  closer deals move-deal <id> under_contract

  # Render the residential pipeline as SVG
  closer viz graph --format svg --output pipeline.svg residential_sale

`, version)
}
