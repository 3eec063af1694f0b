// ABOUTME: Tests for the deal and visualization CLI commands
// ABOUTME: Runs commands against a temp database and checks their printed output
package cli

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/harperreed/closer/catalog"
	"github.com/harperreed/closer/db"
	"github.com/harperreed/closer/models"
	"github.com/harperreed/closer/pipeline"
	"github.com/shopspring/decimal"
)

const testOwner = "agent-cli"

func setupTestCLI(t *testing.T) (*pipeline.Service, *bytes.Buffer) {
	t.Helper()

	database, err := db.OpenDatabase(filepath.Join(t.TempDir(), "cli.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = database.Close() })

	cat, err := catalog.Default()
	if err != nil {
		t.Fatal(err)
	}

	out := &bytes.Buffer{}
	stdout = out
	t.Cleanup(func() { stdout = os.Stdout })

	return pipeline.NewSQLiteService(database, cat), out
}

func createCLIDeal(t *testing.T, svc *pipeline.Service, title string) *models.Deal {
	t.Helper()

	closeDate := time.Date(2026, 6, 30, 0, 0, 0, 0, time.UTC)
	deal, err := svc.CreateDeal(context.Background(), testOwner, pipeline.CreateDealInput{
		DealTypeID:        "residential_sale",
		ClientID:          "client-1",
		Title:             title,
		DealValue:         decimal.NewFromInt(300000),
		ExpectedCloseDate: &closeDate,
	})
	if err != nil {
		t.Fatalf("CreateDeal failed: %v", err)
	}
	return deal
}

func TestAddDealCommand(t *testing.T) {
	svc, out := setupTestCLI(t)

	err := AddDealCommand(svc, testOwner, []string{
		"--type", "residential_sale",
		"--client", "client-9",
		"--title", "12 Elm Street",
		"--value", "500000",
		"--split", "50",
		"--close", "2026-08-01",
	})
	if err != nil {
		t.Fatalf("AddDealCommand failed: %v", err)
	}

	text := out.String()
	if !strings.Contains(text, "✓ Deal created: 12 Elm Street") {
		t.Errorf("missing confirmation in %q", text)
	}
	if !strings.Contains(text, "Commission: $15000.00 (agent $7500.00)") {
		t.Errorf("unexpected commission line in %q", text)
	}

	list, err := svc.ListDeals(context.Background(), testOwner, pipeline.ListDealsInput{})
	if err != nil {
		t.Fatalf("ListDeals failed: %v", err)
	}
	if list.Total != 1 || list.Deals[0].CurrentStage != "lead" {
		t.Errorf("expected one deal at lead, got %+v", list)
	}
}

func TestAddDealCommandValidation(t *testing.T) {
	svc, _ := setupTestCLI(t)

	if err := AddDealCommand(svc, testOwner, []string{"--title", "No type"}); err == nil {
		t.Error("expected error without --type")
	}
	if err := AddDealCommand(svc, testOwner, []string{"--type", "residential_sale", "--client", "c", "--title", "t", "--value", "lots"}); err == nil {
		t.Error("expected error for non-numeric value")
	}
	if err := AddDealCommand(svc, testOwner, []string{"--type", "yacht_charter", "--client", "c", "--title", "t"}); err == nil {
		t.Error("expected error for unknown deal type")
	}
}

func TestListDealsCommand(t *testing.T) {
	svc, out := setupTestCLI(t)

	if err := ListDealsCommand(svc, testOwner, nil); err != nil {
		t.Fatalf("ListDealsCommand failed: %v", err)
	}
	if !strings.Contains(out.String(), "No deals found") {
		t.Errorf("expected empty message, got %q", out.String())
	}

	createCLIDeal(t, svc, "First House")
	createCLIDeal(t, svc, "Second House")
	out.Reset()

	if err := ListDealsCommand(svc, testOwner, []string{"--stage", "lead"}); err != nil {
		t.Fatalf("ListDealsCommand failed: %v", err)
	}
	text := out.String()
	for _, want := range []string{"TITLE", "First House", "Second House", "Showing 2 of 2 deal(s) - $600000.00"} {
		if !strings.Contains(text, want) {
			t.Errorf("output missing %q:\n%s", want, text)
		}
	}
}

func TestMoveDealCommandSchedulesMilestones(t *testing.T) {
	svc, out := setupTestCLI(t)
	deal := createCLIDeal(t, svc, "Contract House")

	if err := MoveDealCommand(svc, testOwner, []string{deal.ID.String(), "under_contract"}); err != nil {
		t.Fatalf("MoveDealCommand failed: %v", err)
	}
	text := out.String()
	if !strings.Contains(text, "✓ Contract House moved to under_contract (active)") {
		t.Errorf("unexpected output %q", text)
	}
	if !strings.Contains(text, "4 milestones scheduled") {
		t.Errorf("expected milestone count in %q", text)
	}

	out.Reset()
	if err := MoveDealCommand(svc, testOwner, []string{deal.ID.String(), "under_contract"}); err != nil {
		t.Fatalf("repeat MoveDealCommand failed: %v", err)
	}
	if !strings.Contains(out.String(), "Deal already at under_contract") {
		t.Errorf("expected no-op message, got %q", out.String())
	}

	if err := MoveDealCommand(svc, testOwner, []string{deal.ID.String()}); err == nil {
		t.Error("expected usage error without a stage")
	}
}

func TestLoseDealCommand(t *testing.T) {
	svc, out := setupTestCLI(t)
	deal := createCLIDeal(t, svc, "Lost House")

	if err := LoseDealCommand(svc, testOwner, []string{"--reason", "short", deal.ID.String()}); err == nil {
		t.Fatal("expected error for short reason")
	}

	if err := LoseDealCommand(svc, testOwner, []string{"--reason", "buyer financing fell through", deal.ID.String()}); err != nil {
		t.Fatalf("LoseDealCommand failed: %v", err)
	}
	if !strings.Contains(out.String(), "✓ Lost House marked lost") {
		t.Errorf("unexpected output %q", out.String())
	}

	got, err := svc.GetDeal(context.Background(), testOwner, deal.ID)
	if err != nil {
		t.Fatalf("GetDeal failed: %v", err)
	}
	if got.Status != models.DealStatusClosedLost {
		t.Errorf("expected closed_lost, got %s", got.Status)
	}
}

func TestUpdateDealCommand(t *testing.T) {
	svc, out := setupTestCLI(t)
	deal := createCLIDeal(t, svc, "Update House")

	err := UpdateDealCommand(svc, testOwner, []string{"--value", "400000", "--split", "25", "--close", "none", deal.ID.String()})
	if err != nil {
		t.Fatalf("UpdateDealCommand failed: %v", err)
	}
	if !strings.Contains(out.String(), "✓ Updated deal: Update House") {
		t.Errorf("unexpected output %q", out.String())
	}

	got, err := svc.GetDeal(context.Background(), testOwner, deal.ID)
	if err != nil {
		t.Fatalf("GetDeal failed: %v", err)
	}
	if got.CommissionAmount.StringFixed(2) != "12000.00" || got.AgentCommission.StringFixed(2) != "3000.00" {
		t.Errorf("commission not recomputed: %s / %s", got.CommissionAmount, got.AgentCommission)
	}
	if got.ExpectedCloseDate != nil {
		t.Errorf("expected close date cleared, got %v", got.ExpectedCloseDate)
	}
}

func TestShowDealAndActivityCommands(t *testing.T) {
	svc, out := setupTestCLI(t)
	deal := createCLIDeal(t, svc, "Show House")

	if err := LogActivityCommand(svc, testOwner, []string{"--type", "showing", "--title", "Saturday open house", deal.ID.String()}); err != nil {
		t.Fatalf("LogActivityCommand failed: %v", err)
	}
	if err := LogActivityCommand(svc, testOwner, []string{"--type", "stage_change", "--title", "sneaky", deal.ID.String()}); err == nil {
		t.Error("expected system activity type to be rejected")
	}
	if err := AddMilestoneCommand(svc, testOwner, []string{"--name", "Survey", "--date", "2026-05-01", deal.ID.String()}); err != nil {
		t.Fatalf("AddMilestoneCommand failed: %v", err)
	}

	out.Reset()
	if err := ShowDealCommand(svc, testOwner, []string{deal.ID.String()}); err != nil {
		t.Fatalf("ShowDealCommand failed: %v", err)
	}
	text := out.String()
	for _, want := range []string{"Show House", "Expected:   2026-06-30", "MILESTONES", "Survey", "[showing] Saturday open house"} {
		if !strings.Contains(text, want) {
			t.Errorf("output missing %q:\n%s", want, text)
		}
	}
}

func TestSetMilestoneCommand(t *testing.T) {
	svc, out := setupTestCLI(t)
	deal := createCLIDeal(t, svc, "Milestone House")

	m, err := svc.CreateMilestone(context.Background(), testOwner, deal.ID, pipeline.CreateMilestoneInput{
		Name:          "Radon test",
		ScheduledDate: time.Date(2026, 5, 2, 0, 0, 0, 0, time.UTC),
	})
	if err != nil {
		t.Fatalf("CreateMilestone failed: %v", err)
	}

	if err := SetMilestoneCommand(svc, testOwner, []string{deal.ID.String(), m.ID.String()}); err != nil {
		t.Fatalf("SetMilestoneCommand failed: %v", err)
	}
	if !strings.Contains(out.String(), "✓ Radon test is completed") {
		t.Errorf("unexpected output %q", out.String())
	}
}

func TestDeleteDealCommand(t *testing.T) {
	svc, out := setupTestCLI(t)
	deal := createCLIDeal(t, svc, "Doomed House")

	if err := DeleteDealCommand(svc, testOwner, []string{deal.ID.String()}); err != nil {
		t.Fatalf("DeleteDealCommand failed: %v", err)
	}
	if !strings.Contains(out.String(), "✓ Deleted deal") {
		t.Errorf("unexpected output %q", out.String())
	}
	if _, err := svc.GetDeal(context.Background(), testOwner, deal.ID); err == nil {
		t.Error("expected deleted deal to be gone")
	}
	if err := DeleteDealCommand(svc, testOwner, []string{"not-a-uuid"}); err == nil {
		t.Error("expected error for invalid ID")
	}
}

func TestDealTypesCommand(t *testing.T) {
	svc, out := setupTestCLI(t)

	if err := DealTypesCommand(svc, testOwner, nil); err != nil {
		t.Fatalf("DealTypesCommand failed: %v", err)
	}
	text := out.String()
	if !strings.Contains(text, "residential_sale") || !strings.Contains(text, "lead → listing_appointment") {
		t.Errorf("unexpected output:\n%s", text)
	}
}

func TestVizCommands(t *testing.T) {
	svc, out := setupTestCLI(t)
	createCLIDeal(t, svc, "Dashboard House")

	if err := VizDashboardCommand(svc, testOwner, nil); err != nil {
		t.Fatalf("VizDashboardCommand failed: %v", err)
	}
	if !strings.Contains(out.String(), "CLOSER PIPELINE DASHBOARD") {
		t.Errorf("unexpected dashboard output:\n%s", out.String())
	}

	out.Reset()
	if err := BoardCommand(svc, testOwner, []string{"--type", "residential_sale"}); err != nil {
		t.Fatalf("BoardCommand failed: %v", err)
	}
	if !strings.Contains(out.String(), "Dashboard House") {
		t.Errorf("board missing deal:\n%s", out.String())
	}

	graphFile := filepath.Join(t.TempDir(), "pipeline.dot")
	if err := VizGraphCommand(svc, testOwner, []string{"--output", graphFile, "residential_sale"}); err != nil {
		t.Fatalf("VizGraphCommand failed: %v", err)
	}
	data, err := os.ReadFile(graphFile)
	if err != nil {
		t.Fatalf("graph file not written: %v", err)
	}
	if !strings.Contains(string(data), "digraph") {
		t.Errorf("expected DOT output, got %q", string(data))
	}

	if err := VizGraphCommand(svc, testOwner, []string{"--format", "png", "residential_sale"}); err == nil {
		t.Error("expected error for unsupported format")
	}
}

func TestNewMCPServer(t *testing.T) {
	svc, _ := setupTestCLI(t)

	if NewMCPServer(svc, testOwner) == nil {
		t.Fatal("expected server")
	}
}
