// ABOUTME: Tests for the append-only activity journal
// ABOUTME: Checks ordering, ownership and that stored rows cannot change
package db

import (
	"context"
	"testing"
	"time"

	"github.com/harperreed/closer/models"
	"github.com/oklog/ulid/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAppendAndListActivities(t *testing.T) {
	db := setupTestDB(t)
	deals := NewDealRepository(db)
	repo := NewActivityRepository(db)
	ctx := context.Background()

	deal := createTestDeal(t, deals, "agent-a")

	for _, title := range []string{"Called buyer", "Sent disclosures", "Showing at 4pm"} {
		act := &models.Activity{DealID: deal.ID, Type: models.ActivityCall, Title: title, AuthorID: "agent-a"}
		require.NoError(t, repo.Append(ctx, "agent-a", act))
		_, err := ulid.ParseStrict(act.ID)
		assert.NoError(t, err)
	}

	trail, err := repo.ListByDeal(ctx, "agent-a", deal.ID.String())
	require.NoError(t, err)
	require.Len(t, trail, 3)
	assert.Equal(t, "Called buyer", trail[0].Title)
	assert.Equal(t, "Showing at 4pm", trail[2].Title)

	updated, err := deals.Get(ctx, "agent-a", deal.ID)
	require.NoError(t, err)
	assert.True(t, updated.LastActivityAt.Equal(trail[2].CreatedAt))
}

func TestAppendActivityOtherOwner(t *testing.T) {
	db := setupTestDB(t)
	deals := NewDealRepository(db)
	repo := NewActivityRepository(db)
	ctx := context.Background()

	deal := createTestDeal(t, deals, "agent-a")

	act := &models.Activity{DealID: deal.ID, Type: models.ActivityNote, Title: "sneaky", AuthorID: "agent-b"}
	assert.ErrorIs(t, repo.Append(ctx, "agent-b", act), ErrDealNotFound)

	_, err := repo.ListByDeal(ctx, "agent-b", deal.ID.String())
	assert.ErrorIs(t, err, ErrDealNotFound)

	trail, err := repo.ListByDeal(ctx, "agent-a", deal.ID.String())
	require.NoError(t, err)
	assert.Empty(t, trail)
}

func TestAppendInvalidActivity(t *testing.T) {
	db := setupTestDB(t)
	deals := NewDealRepository(db)
	repo := NewActivityRepository(db)
	ctx := context.Background()

	deal := createTestDeal(t, deals, "agent-a")

	assert.ErrorIs(t, repo.Append(ctx, "agent-a", nil), ErrInvalidActivity)
	assert.ErrorIs(t, repo.Append(ctx, "agent-a", &models.Activity{DealID: deal.ID, Type: models.ActivityNote}), ErrInvalidActivity)

	unknown := &models.Activity{DealID: deal.ID, Type: "gossip", Title: "x", AuthorID: "agent-a"}
	assert.Error(t, repo.Append(ctx, "agent-a", unknown))
}

func TestActivitiesAreImmutable(t *testing.T) {
	db := setupTestDB(t)
	deals := NewDealRepository(db)
	repo := NewActivityRepository(db)
	ctx := context.Background()

	deal := createTestDeal(t, deals, "agent-a")
	act := &models.Activity{DealID: deal.ID, Type: models.ActivityNote, Title: "original", AuthorID: "agent-a"}
	require.NoError(t, repo.Append(ctx, "agent-a", act))

	_, err := db.Exec("UPDATE activities SET title = 'rewritten' WHERE id = ?", act.ID)
	assert.ErrorContains(t, err, "append-only")

	_, err = db.Exec("DELETE FROM activities WHERE id = ?", act.ID)
	assert.ErrorContains(t, err, "append-only")

	trail, err := repo.ListByDeal(ctx, "agent-a", deal.ID.String())
	require.NoError(t, err)
	require.Len(t, trail, 1)
	assert.Equal(t, "original", trail[0].Title)
}

func TestNewActivityIDMonotonic(t *testing.T) {
	now := time.Now()
	prev := NewActivityID(now)
	for i := 0; i < 100; i++ {
		next := NewActivityID(now)
		assert.Greater(t, next, prev)
		prev = next
	}
}
