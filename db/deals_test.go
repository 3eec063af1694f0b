// ABOUTME: Tests for deal database operations
// ABOUTME: Covers owner scoping, version checks, soft delete and paging
package db

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/harperreed/closer/models"
	"github.com/shopspring/decimal"
)

func newTestDeal(owner string) *models.Deal {
	return &models.Deal{
		OwnerID:          owner,
		DealTypeID:       "residential_sale",
		ClientID:         "client-1",
		Title:            "12 Elm Street",
		CurrentStage:     "lead",
		Status:           models.DealStatusActive,
		DealValue:        decimal.NewFromInt(200000),
		CommissionRate:   decimal.NewFromInt(3),
		CommissionAmount: decimal.NewFromInt(6000),
		AgentCommission:  decimal.NewFromInt(6000),
	}
}

func TestCreateAndGetDeal(t *testing.T) {
	db := setupTestDB(t)
	repo := NewDealRepository(db)
	ctx := context.Background()

	deal := newTestDeal("agent-a")
	deal.CommissionSplitPercent = decimal.NewNullDecimal(decimal.NewFromInt(50))
	closeDate := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	deal.ExpectedCloseDate = &closeDate

	if err := repo.Create(ctx, deal); err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if deal.ID == uuid.Nil {
		t.Error("Deal ID was not set")
	}
	if deal.Version != 1 {
		t.Errorf("Expected version 1, got %d", deal.Version)
	}

	found, err := repo.Get(ctx, "agent-a", deal.ID)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if found.Title != deal.Title {
		t.Errorf("Expected title %q, got %q", deal.Title, found.Title)
	}
	if !found.DealValue.Equal(decimal.NewFromInt(200000)) {
		t.Errorf("Expected deal value 200000, got %s", found.DealValue)
	}
	if !found.CommissionSplitPercent.Valid || found.CommissionSplitPercent.Decimal.String() != "50" {
		t.Errorf("Expected split 50, got %+v", found.CommissionSplitPercent)
	}
	if found.ExpectedCloseDate == nil || !found.ExpectedCloseDate.Equal(closeDate) {
		t.Errorf("Expected close date %v, got %v", closeDate, found.ExpectedCloseDate)
	}
	if found.LostReason != nil {
		t.Error("Expected nil lost reason")
	}
}

func TestGetDealOtherOwner(t *testing.T) {
	db := setupTestDB(t)
	repo := NewDealRepository(db)
	ctx := context.Background()

	deal := newTestDeal("agent-a")
	if err := repo.Create(ctx, deal); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	if _, err := repo.Get(ctx, "agent-b", deal.ID); !errors.Is(err, ErrDealNotFound) {
		t.Errorf("Expected ErrDealNotFound for other owner, got %v", err)
	}
	if _, err := repo.Get(ctx, "agent-a", uuid.New()); !errors.Is(err, ErrDealNotFound) {
		t.Errorf("Expected ErrDealNotFound for missing deal, got %v", err)
	}
}

func TestUpdateDealVersionCheck(t *testing.T) {
	db := setupTestDB(t)
	repo := NewDealRepository(db)
	ctx := context.Background()

	deal := newTestDeal("agent-a")
	if err := repo.Create(ctx, deal); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	deal.CurrentStage = "under_contract"
	act := &models.Activity{
		Type:     models.ActivityStageChange,
		Title:    "Stage changed",
		OldStage: strPtr("lead"),
		NewStage: strPtr("under_contract"),
		AuthorID: "agent-a",
	}
	if err := repo.Update(ctx, deal, 1, act); err != nil {
		t.Fatalf("Update failed: %v", err)
	}
	if deal.Version != 2 {
		t.Errorf("Expected version 2, got %d", deal.Version)
	}

	stale := *deal
	stale.Title = "stale write"
	if err := repo.Update(ctx, &stale, 1); !errors.Is(err, ErrStaleDeal) {
		t.Errorf("Expected ErrStaleDeal, got %v", err)
	}

	other := *deal
	other.OwnerID = "agent-b"
	if err := repo.Update(ctx, &other, 2); !errors.Is(err, ErrDealNotFound) {
		t.Errorf("Expected ErrDealNotFound for other owner, got %v", err)
	}

	found, err := repo.Get(ctx, "agent-a", deal.ID)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if found.CurrentStage != "under_contract" || found.Title != "12 Elm Street" {
		t.Errorf("Unexpected deal after updates: stage=%s title=%s", found.CurrentStage, found.Title)
	}

	acts, err := NewActivityRepository(db).ListByDeal(ctx, "agent-a", deal.ID.String())
	if err != nil {
		t.Fatalf("ListByDeal failed: %v", err)
	}
	if len(acts) != 1 {
		t.Fatalf("Expected 1 activity, got %d", len(acts))
	}
}

func TestUpdateDealRollsBackOnBadActivity(t *testing.T) {
	db := setupTestDB(t)
	repo := NewDealRepository(db)
	ctx := context.Background()

	deal := newTestDeal("agent-a")
	if err := repo.Create(ctx, deal); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	deal.CurrentStage = "under_contract"
	// old == new violates the stage_change check, so the deal update must roll back too
	bad := &models.Activity{
		Type:     models.ActivityStageChange,
		Title:    "Stage changed",
		OldStage: strPtr("lead"),
		NewStage: strPtr("lead"),
		AuthorID: "agent-a",
	}
	if err := repo.Update(ctx, deal, 1, bad); err == nil {
		t.Fatal("Expected error from invalid stage_change activity")
	}

	found, err := repo.Get(ctx, "agent-a", deal.ID)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if found.CurrentStage != "lead" || found.Version != 1 {
		t.Errorf("Expected unchanged deal, got stage=%s version=%d", found.CurrentStage, found.Version)
	}
}

func TestLostDealRequiresReason(t *testing.T) {
	db := setupTestDB(t)
	repo := NewDealRepository(db)
	ctx := context.Background()

	deal := newTestDeal("agent-a")
	if err := repo.Create(ctx, deal); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	now := time.Now().UTC()
	deal.Status = models.DealStatusClosedLost
	deal.ClosedAt = &now
	deal.LostReason = strPtr("short")
	if err := repo.Update(ctx, deal, 1); err == nil {
		t.Error("Expected check constraint to reject a short lost reason")
	}
}

func TestSoftDeleteDeal(t *testing.T) {
	db := setupTestDB(t)
	repo := NewDealRepository(db)
	ctx := context.Background()

	deal := newTestDeal("agent-a")
	if err := repo.Create(ctx, deal); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	if err := repo.SoftDelete(ctx, "agent-b", deal.ID); !errors.Is(err, ErrDealNotFound) {
		t.Errorf("Expected ErrDealNotFound deleting another owner's deal, got %v", err)
	}

	act := &models.Activity{Type: models.ActivityOther, Title: "Deal deleted", AuthorID: "agent-a"}
	if err := repo.SoftDelete(ctx, "agent-a", deal.ID, act); err != nil {
		t.Fatalf("SoftDelete failed: %v", err)
	}

	if _, err := repo.Get(ctx, "agent-a", deal.ID); !errors.Is(err, ErrDealNotFound) {
		t.Errorf("Expected deleted deal to be hidden, got %v", err)
	}

	var deletedAt *time.Time
	if err := db.QueryRow("SELECT deleted_at FROM deals WHERE id = ?", deal.ID.String()).Scan(&deletedAt); err != nil {
		t.Fatalf("Row should still exist: %v", err)
	}
	if deletedAt == nil {
		t.Error("Expected deleted_at to be set")
	}

	if err := repo.SoftDelete(ctx, "agent-a", deal.ID); !errors.Is(err, ErrDealNotFound) {
		t.Errorf("Expected second delete to report not found, got %v", err)
	}
}

func TestListDealsFilterAndPage(t *testing.T) {
	db := setupTestDB(t)
	repo := NewDealRepository(db)
	ctx := context.Background()

	for i := 0; i < 30; i++ {
		deal := newTestDeal("agent-a")
		deal.Title = fmt.Sprintf("Deal %d", i)
		if i%3 == 0 {
			deal.ClientID = "client-2"
		}
		if err := repo.Create(ctx, deal); err != nil {
			t.Fatalf("Create failed: %v", err)
		}
	}
	if err := repo.Create(ctx, newTestDeal("agent-b")); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	list, err := repo.List(ctx, "agent-a", DealFilter{}, Page{})
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if list.Total != 30 {
		t.Errorf("Expected total 30, got %d", list.Total)
	}
	if len(list.Deals) != DefaultPageSize {
		t.Errorf("Expected default page of %d, got %d", DefaultPageSize, len(list.Deals))
	}

	list, err = repo.List(ctx, "agent-a", DealFilter{}, Page{Limit: 25, Offset: 25})
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(list.Deals) != 5 {
		t.Errorf("Expected 5 deals on second page, got %d", len(list.Deals))
	}

	list, err = repo.List(ctx, "agent-a", DealFilter{ClientID: "client-2"}, Page{Limit: 500})
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if list.Total != 10 || len(list.Deals) != 10 {
		t.Errorf("Expected 10 client-2 deals, got total=%d len=%d", list.Total, len(list.Deals))
	}
	if list.Limit != MaxPageSize {
		t.Errorf("Expected limit capped at %d, got %d", MaxPageSize, list.Limit)
	}

	list, err = repo.List(ctx, "agent-a", DealFilter{Status: "closed_won"}, Page{})
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if list.Total != 0 || list.Deals == nil {
		t.Errorf("Expected empty non-nil result, got %+v", list)
	}
}

func TestPageNormalize(t *testing.T) {
	tests := []struct {
		in   Page
		want Page
	}{
		{Page{}, Page{Limit: 25}},
		{Page{Limit: 10, Offset: 5}, Page{Limit: 10, Offset: 5}},
		{Page{Limit: 101}, Page{Limit: 100}},
		{Page{Limit: -1, Offset: -4}, Page{Limit: 25}},
	}
	for _, tt := range tests {
		if got := tt.in.Normalize(); got != tt.want {
			t.Errorf("Normalize(%+v) = %+v, want %+v", tt.in, got, tt.want)
		}
	}
}

func strPtr(s string) *string {
	return &s
}
