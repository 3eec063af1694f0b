// ABOUTME: Deal type pipeline graphs
// ABOUTME: Renders stages, terminal outcomes and the milestone trigger with graphviz
package viz

import (
	"bytes"
	"context"
	"fmt"
	"io"

	"github.com/goccy/go-graphviz"
	"github.com/goccy/go-graphviz/cgraph"
	"github.com/harperreed/closer/models"
)

// PipelineGraph returns the DOT source for a deal type's stage pipeline.
func PipelineGraph(ctx context.Context, dt *models.DealType) (string, error) {
	var buf bytes.Buffer
	if err := RenderPipeline(ctx, dt, graphviz.XDOT, &buf); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// RenderPipeline lays out a deal type and writes it to w in the given format.
// Active stages are chained in order, every active stage has a dashed edge to
// each lost stage, and the trigger stage fans out to its milestone templates.
func RenderPipeline(ctx context.Context, dt *models.DealType, format graphviz.Format, w io.Writer) error {
	gv, err := graphviz.New(ctx)
	if err != nil {
		return fmt.Errorf("failed to create graphviz: %w", err)
	}
	defer func() { _ = gv.Close() }()

	graph, err := gv.Graph()
	if err != nil {
		return fmt.Errorf("failed to create graph: %w", err)
	}
	defer func() { _ = graph.Close() }()

	graph.SetLabel(dt.Name)
	graph.SetRankDir(cgraph.LRRank)

	nodes := make(map[string]*cgraph.Node, len(dt.Stages))
	var flow, active []*cgraph.Node
	for _, stage := range dt.OrderedStages() {
		node, err := graph.CreateNodeByName(stage.Code)
		if err != nil {
			return fmt.Errorf("failed to create stage node: %w", err)
		}
		node.SetLabel(StageLabel(stage))
		node.SetShape("box")
		node.SetStyle("rounded,filled")

		switch {
		case dt.IsWon(stage.Code):
			node.SetFillColor("palegreen")
		case dt.IsLost(stage.Code):
			node.SetFillColor("lightpink")
		default:
			node.SetFillColor("white")
			active = append(active, node)
		}
		if dt.IsTrigger(stage.Code) {
			node.SetPenWidth(3)
		}

		nodes[stage.Code] = node
		if !dt.IsLost(stage.Code) {
			flow = append(flow, node)
		}
	}

	for i := 1; i < len(flow); i++ {
		if _, err := graph.CreateEdgeByName(fmt.Sprintf("next_%d", i), flow[i-1], flow[i]); err != nil {
			return fmt.Errorf("failed to create stage edge: %w", err)
		}
	}

	for _, code := range dt.LostStages {
		lost, ok := nodes[code]
		if !ok {
			continue
		}
		for i, from := range active {
			edge, err := graph.CreateEdgeByName(fmt.Sprintf("lost_%s_%d", code, i), from, lost)
			if err != nil {
				return fmt.Errorf("failed to create lost edge: %w", err)
			}
			edge.SetStyle("dashed")
			edge.SetColor("gray")
		}
	}

	if trigger, ok := nodes[dt.TriggerStage]; ok {
		for i, tmpl := range dt.Milestones {
			node, err := graph.CreateNodeByName(fmt.Sprintf("milestone_%d", i))
			if err != nil {
				return fmt.Errorf("failed to create milestone node: %w", err)
			}
			node.SetLabel(tmpl.Name)
			node.SetShape("note")
			node.SetFontSize(10)

			edge, err := graph.CreateEdgeByName(fmt.Sprintf("schedules_%d", i), trigger, node)
			if err != nil {
				return fmt.Errorf("failed to create milestone edge: %w", err)
			}
			edge.SetLabel(OffsetLabel(tmpl.DaysOffset))
			edge.SetStyle("dotted")
		}
	}

	if err := gv.Render(ctx, graph, format, w); err != nil {
		return fmt.Errorf("failed to render graph: %w", err)
	}
	return nil
}

// StageLabel is the display name of a stage, falling back to its code.
func StageLabel(stage models.PipelineStage) string {
	if stage.Name != "" {
		return stage.Name
	}
	return stage.Code
}

// OffsetLabel formats a template's day offset relative to the anchor date.
func OffsetLabel(days int) string {
	if days >= 0 {
		return fmt.Sprintf("+%dd", days)
	}
	return fmt.Sprintf("%dd", days)
}
