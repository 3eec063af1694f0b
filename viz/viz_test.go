package viz

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/harperreed/closer/models"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func saleType() *models.DealType {
	return &models.DealType{
		ID:           "residential_sale",
		Name:         "Residential sale",
		TriggerStage: "contract",
		WonStages:    []string{"closed"},
		LostStages:   []string{"lost"},
		Stages: []models.PipelineStage{
			{Code: "lost", Name: "Lost", Order: 3},
			{Code: "lead", Name: "Lead", Order: 0},
			{Code: "contract", Name: "Under contract", Order: 1},
			{Code: "closed", Order: 2},
		},
		Milestones: []models.MilestoneTemplate{
			{MilestoneType: "inspection", Name: "Inspection", DaysOffset: -20},
			{MilestoneType: "closing", Name: "Closing", DaysOffset: 0},
		},
	}
}

func deal(title, stage string, status models.DealStatus, value int64, lastActivity time.Time) models.Deal {
	return models.Deal{
		ID:              uuid.New(),
		DealTypeID:      "residential_sale",
		Title:           title,
		CurrentStage:    stage,
		Status:          status,
		DealValue:       decimal.NewFromInt(value),
		AgentCommission: decimal.NewFromInt(value / 100),
		LastActivityAt:  lastActivity,
	}
}

func TestBuildDashboard(t *testing.T) {
	now := time.Date(2026, 4, 1, 12, 0, 0, 0, time.UTC)
	deals := []models.Deal{
		deal("12 Elm", "lead", models.DealStatusActive, 300000, now.AddDate(0, 0, -2)),
		deal("4 Oak", "contract", models.DealStatusActive, 500000, now.AddDate(0, 0, -30)),
		deal("9 Pine", "closed", models.DealStatusClosedWon, 400000, now.AddDate(0, 0, -40)),
		deal("1 Ash", "lost", models.DealStatusClosedLost, 100000, now.AddDate(0, 0, -90)),
		{DealTypeID: "unknown", Status: models.DealStatusActive, DealValue: decimal.NewFromInt(7), LastActivityAt: now},
	}

	stats := BuildDashboard([]*models.DealType{saleType()}, deals, now)

	assert.Equal(t, 5, stats.TotalDeals)
	assert.Equal(t, 3, stats.ActiveDeals)
	assert.Equal(t, 1, stats.WonDeals)
	assert.Equal(t, 1, stats.LostDeals)
	assert.Equal(t, "800007.00", stats.OpenValue.StringFixed(2))
	assert.Equal(t, "4000.00", stats.EarnedCommission.StringFixed(2))

	require.Len(t, stats.StaleDeals, 1)
	assert.Equal(t, "4 Oak", stats.StaleDeals[0].Title)
	assert.Equal(t, 30, stats.StaleDeals[0].DaysSince)

	require.Len(t, stats.Types, 1)
	ts := stats.Types[0]
	assert.Equal(t, 4, ts.Count)
	require.Len(t, ts.Stages, 4)
	assert.Equal(t, "lead", ts.Stages[0].Code)
	assert.Equal(t, "closed", ts.Stages[2].Label)
	assert.True(t, ts.Stages[3].Terminal)
	assert.Equal(t, 1, ts.Stages[1].Count)
	assert.Equal(t, "500000", ts.Stages[1].Value.String())

	out := RenderDashboard(stats)
	assert.Contains(t, out, "RESIDENTIAL SALE")
	assert.Contains(t, out, "earned commission $4000.00")
	assert.Contains(t, out, "4 Oak (contract, 30d)")
}

func TestRenderBoard(t *testing.T) {
	now := time.Now()
	deals := []models.Deal{
		deal("12 Elm Street", "lead", models.DealStatusActive, 300000, now),
		deal("4 Oak Avenue", "contract", models.DealStatusActive, 500000, now),
		{DealTypeID: "referral", Title: "Other type", CurrentStage: "lead"},
	}

	out := RenderBoard(saleType(), deals, 0)
	assert.Contains(t, out, "Lead (1)")
	assert.Contains(t, out, "Under contract (1)")
	assert.Contains(t, out, "12 Elm Street")
	assert.Contains(t, out, "$500000")
	assert.NotContains(t, out, "Other type")

	assert.Empty(t, RenderBoard(&models.DealType{ID: "empty"}, deals, 80))
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", truncate("short", 10))
	assert.Equal(t, "Victor…", truncate("Victoria Street", 7))
	assert.True(t, strings.HasSuffix(truncate("résidence principale", 5), "…"))
}

func TestOffsetLabel(t *testing.T) {
	assert.Equal(t, "+10d", OffsetLabel(10))
	assert.Equal(t, "+0d", OffsetLabel(0))
	assert.Equal(t, "-20d", OffsetLabel(-20))
}

func TestPipelineGraph(t *testing.T) {
	dot, err := PipelineGraph(context.Background(), saleType())
	require.NoError(t, err)

	assert.Contains(t, dot, "Under contract")
	assert.Contains(t, dot, "Inspection")
	assert.Contains(t, dot, "->")
}
