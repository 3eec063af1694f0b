// ABOUTME: Visualization CLI commands
// ABOUTME: Handles the pipeline graph, dashboard and kanban board commands
package cli

import (
	"bytes"
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/goccy/go-graphviz"
	"github.com/harperreed/closer/pipeline"
	"github.com/harperreed/closer/viz"
	"golang.org/x/term"
)

// VizGraphCommand renders a deal type's pipeline as DOT or SVG.
func VizGraphCommand(svc *pipeline.Service, owner string, args []string) error {
	fs := flag.NewFlagSet("viz graph", flag.ExitOnError)
	output := fs.String("output", "", "Output file (default: stdout)")
	format := fs.String("format", "dot", "Output format (dot, svg)")

	if err := fs.Parse(args); err != nil {
		return err
	}

	if fs.NArg() < 1 {
		return fmt.Errorf("deal type ID required")
	}

	dt, err := svc.DealType(fs.Arg(0))
	if err != nil {
		return err
	}

	var gvFormat graphviz.Format
	switch *format {
	case "dot":
		gvFormat = graphviz.XDOT
	case "svg":
		gvFormat = graphviz.SVG
	default:
		return fmt.Errorf("unknown format %q (use dot or svg)", *format)
	}

	var buf bytes.Buffer
	if err := viz.RenderPipeline(context.Background(), dt, gvFormat, &buf); err != nil {
		return err
	}

	if *output != "" {
		if err := os.WriteFile(*output, buf.Bytes(), 0644); err != nil {
			return err
		}
		fmt.Fprintf(stdout, "✓ Wrote %s pipeline to %s\n", dt.ID, *output)
		return nil
	}

	_, err = stdout.Write(buf.Bytes())
	return err
}

// VizDashboardCommand prints pipeline totals per stage and stale deals.
func VizDashboardCommand(svc *pipeline.Service, owner string, args []string) error {
	fs := flag.NewFlagSet("viz dashboard", flag.ExitOnError)
	dealType := fs.String("type", "", "Only include this deal type")
	_ = fs.Parse(args)

	deals, err := svc.AllDeals(context.Background(), owner, pipeline.ListDealsInput{DealTypeID: *dealType})
	if err != nil {
		return err
	}

	stats := viz.BuildDashboard(svc.DealTypes(), deals, time.Now())
	fmt.Fprint(stdout, viz.RenderDashboard(stats))
	return nil
}

// BoardCommand draws a kanban board of one deal type's active stages.
func BoardCommand(svc *pipeline.Service, owner string, args []string) error {
	fs := flag.NewFlagSet("board", flag.ExitOnError)
	dealType := fs.String("type", "", "Deal type to show (default: first configured)")
	_ = fs.Parse(args)

	typeID := *dealType
	if typeID == "" {
		types := svc.DealTypes()
		if len(types) == 0 {
			return fmt.Errorf("no deal types configured")
		}
		typeID = types[0].ID
	}

	dt, err := svc.DealType(typeID)
	if err != nil {
		return err
	}

	deals, err := svc.AllDeals(context.Background(), owner, pipeline.ListDealsInput{DealTypeID: dt.ID})
	if err != nil {
		return err
	}

	width := 0
	if w, _, err := term.GetSize(int(os.Stdout.Fd())); err == nil {
		width = w
	}

	fmt.Fprintln(stdout, viz.RenderBoard(dt, deals, width))
	return nil
}
