// ABOUTME: Terminal dashboard statistics and rendering
// ABOUTME: Summarizes deals per type and stage with open value, earned commission and stale deals
package viz

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/harperreed/closer/models"
	"github.com/shopspring/decimal"
)

// StaleAfterDays is how long an active deal can go without activity before
// the dashboard flags it.
const StaleAfterDays = 14

type DashboardStats struct {
	Types []TypeStats

	TotalDeals  int
	ActiveDeals int
	WonDeals    int
	LostDeals   int

	// OpenValue sums deal value over active deals.
	OpenValue decimal.Decimal
	// EarnedCommission sums the agent's share over won deals.
	EarnedCommission decimal.Decimal

	StaleDeals []StaleDeal
}

type TypeStats struct {
	DealType *models.DealType
	Stages   []StageStats
	Count    int
}

type StageStats struct {
	Code     string
	Label    string
	Terminal bool
	Count    int
	Value    decimal.Decimal
}

type StaleDeal struct {
	Title     string `json:"title"`
	Stage     string `json:"stage"`
	DaysSince int    `json:"days_since"`
}

// BuildDashboard aggregates deals by type and stage. Deals whose type is not
// in types are counted in the totals only.
func BuildDashboard(types []*models.DealType, deals []models.Deal, now time.Time) *DashboardStats {
	stats := &DashboardStats{}

	index := make(map[string]*TypeStats, len(types))
	stageIndex := make(map[string]map[string]int, len(types))
	for _, dt := range types {
		ts := TypeStats{DealType: dt}
		positions := make(map[string]int, len(dt.Stages))
		for i, stage := range dt.OrderedStages() {
			ts.Stages = append(ts.Stages, StageStats{
				Code:     stage.Code,
				Label:    StageLabel(stage),
				Terminal: dt.IsTerminal(stage.Code),
			})
			positions[stage.Code] = i
		}
		stats.Types = append(stats.Types, ts)
		stageIndex[dt.ID] = positions
	}
	for i := range stats.Types {
		index[stats.Types[i].DealType.ID] = &stats.Types[i]
	}

	for _, deal := range deals {
		stats.TotalDeals++
		switch deal.Status {
		case models.DealStatusActive:
			stats.ActiveDeals++
			stats.OpenValue = stats.OpenValue.Add(deal.DealValue)

			days := int(now.Sub(deal.LastActivityAt).Hours() / 24)
			if days > StaleAfterDays {
				stats.StaleDeals = append(stats.StaleDeals, StaleDeal{
					Title:     deal.Title,
					Stage:     deal.CurrentStage,
					DaysSince: days,
				})
			}
		case models.DealStatusClosedWon:
			stats.WonDeals++
			stats.EarnedCommission = stats.EarnedCommission.Add(deal.AgentCommission)
		case models.DealStatusClosedLost:
			stats.LostDeals++
		}

		ts, ok := index[deal.DealTypeID]
		if !ok {
			continue
		}
		ts.Count++
		if pos, ok := stageIndex[deal.DealTypeID][deal.CurrentStage]; ok {
			ts.Stages[pos].Count++
			ts.Stages[pos].Value = ts.Stages[pos].Value.Add(deal.DealValue)
		}
	}

	sort.SliceStable(stats.StaleDeals, func(i, j int) bool {
		return stats.StaleDeals[i].DaysSince > stats.StaleDeals[j].DaysSince
	})

	return stats
}

var (
	headerStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("170"))
	sectionStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("39"))
	warnStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))
)

func RenderDashboard(stats *DashboardStats) string {
	var out strings.Builder

	out.WriteString("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━\n")
	out.WriteString(headerStyle.Render("  CLOSER PIPELINE DASHBOARD"))
	out.WriteString("\n━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━\n\n")

	for _, ts := range stats.Types {
		if ts.Count == 0 {
			continue
		}
		out.WriteString(sectionStyle.Render(strings.ToUpper(ts.DealType.Name)))
		out.WriteString("\n")
		renderStages(&out, ts.Stages)
		out.WriteString("\n")
	}

	out.WriteString(sectionStyle.Render("STATS"))
	out.WriteString("\n")
	fmt.Fprintf(&out, "  %d deals  %d active  %d won  %d lost\n",
		stats.TotalDeals, stats.ActiveDeals, stats.WonDeals, stats.LostDeals)
	fmt.Fprintf(&out, "  open value $%s  earned commission $%s\n\n",
		stats.OpenValue.StringFixed(2), stats.EarnedCommission.StringFixed(2))

	if len(stats.StaleDeals) > 0 {
		out.WriteString(sectionStyle.Render("NEEDS ATTENTION"))
		out.WriteString("\n")
		out.WriteString(warnStyle.Render(fmt.Sprintf("  ⚠️  %d deals - no activity in %d+ days", len(stats.StaleDeals), StaleAfterDays)))
		out.WriteString("\n")
		for _, d := range stats.StaleDeals {
			fmt.Fprintf(&out, "     %s (%s, %dd)\n", d.Title, d.Stage, d.DaysSince)
		}
	}

	return out.String()
}

func renderStages(out *strings.Builder, stages []StageStats) {
	maxCount := 1
	for _, s := range stages {
		if s.Count > maxCount {
			maxCount = s.Count
		}
	}

	for _, s := range stages {
		barLength := (s.Count * 10) / maxCount
		bar := strings.Repeat("█", barLength) + strings.Repeat("░", 10-barLength)
		fmt.Fprintf(out, "  %-13s %s  %2d ($%s)\n", s.Label, bar, s.Count, s.Value.StringFixed(0))
	}
}
