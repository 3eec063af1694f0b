// ABOUTME: Kanban board rendering for one deal type
// ABOUTME: Lays stages out as lipgloss columns sized to the terminal width
package viz

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/harperreed/closer/models"
)

const (
	minColumnWidth = 16
	maxCardsShown  = 8
)

var (
	columnStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("240")).
			Padding(0, 1)

	columnTitleStyle = lipgloss.NewStyle().
				Bold(true).
				Foreground(lipgloss.Color("39"))

	triggerTitleStyle = columnTitleStyle.
				Foreground(lipgloss.Color("170"))

	cardStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("252"))

	mutedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("240"))
)

// RenderBoard draws one column per stage of dt holding the deals that sit
// there. width is the total width available; zero means unbounded.
func RenderBoard(dt *models.DealType, deals []models.Deal, width int) string {
	stages := dt.OrderedStages()
	if len(stages) == 0 {
		return ""
	}

	byStage := make(map[string][]models.Deal, len(stages))
	for _, deal := range deals {
		if deal.DealTypeID != dt.ID {
			continue
		}
		byStage[deal.CurrentStage] = append(byStage[deal.CurrentStage], deal)
	}

	colWidth := 24
	if width > 0 {
		// border and padding take four cells per column
		colWidth = max(width/len(stages)-4, minColumnWidth)
	}

	columns := make([]string, 0, len(stages))
	for _, stage := range stages {
		title := columnTitleStyle
		if dt.IsTrigger(stage.Code) {
			title = triggerTitleStyle
		}

		cards := byStage[stage.Code]
		lines := []string{
			title.Render(truncate(fmt.Sprintf("%s (%d)", StageLabel(stage), len(cards)), colWidth)),
		}
		for i, deal := range cards {
			if i == maxCardsShown {
				lines = append(lines, mutedStyle.Render(fmt.Sprintf("+%d more", len(cards)-maxCardsShown)))
				break
			}
			lines = append(lines,
				cardStyle.Render(truncate(deal.Title, colWidth)),
				mutedStyle.Render(truncate("$"+deal.DealValue.StringFixed(0), colWidth)),
			)
		}

		columns = append(columns, columnStyle.Width(colWidth).Render(strings.Join(lines, "\n")))
	}

	return lipgloss.JoinHorizontal(lipgloss.Top, columns...)
}

func truncate(s string, width int) string {
	r := []rune(s)
	if len(r) <= width {
		return s
	}
	if width <= 1 {
		return string(r[:width])
	}
	return string(r[:width-1]) + "…"
}
