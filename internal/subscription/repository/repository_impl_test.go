package repository

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tapmenu/platform/internal/subscription/domain"
	"gorm.io/gorm"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&domain.Subscription{}))
	return db
}

func seed(t *testing.T, db *gorm.DB, node *snowflake.Node, status domain.SubscriptionStatus) snowflake.ID {
	t.Helper()
	venueID := node.Generate()
	require.NoError(t, Provide().Upsert(context.Background(), db, &domain.Subscription{
		ID:      node.Generate(),
		VenueID: venueID,
		Status:  status,
	}))
	return venueID
}

func TestUpsertReplacesByVenue(t *testing.T) {
	db := newTestDB(t)
	repo := Provide()
	ctx := context.Background()
	node, _ := snowflake.NewNode(1)

	venueID := seed(t, db, node, domain.SubscriptionStatusTrial)

	require.NoError(t, repo.Upsert(ctx, db, &domain.Subscription{
		ID:      node.Generate(),
		VenueID: venueID,
		Status:  domain.SubscriptionStatusActive,
	}))

	var count int64
	db.Model(&domain.Subscription{}).Count(&count)
	assert.Equal(t, int64(1), count)

	sub, err := repo.FindByVenue(ctx, db, venueID)
	require.NoError(t, err)
	assert.Equal(t, domain.SubscriptionStatusActive, sub.Status)
}

func TestListBillable(t *testing.T) {
	db := newTestDB(t)
	repo := Provide()
	ctx := context.Background()
	node, _ := snowflake.NewNode(1)

	seed(t, db, node, domain.SubscriptionStatusTrial)
	seed(t, db, node, domain.SubscriptionStatusActive)
	seed(t, db, node, domain.SubscriptionStatusPastDue)
	seed(t, db, node, domain.SubscriptionStatusCanceled)
	seed(t, db, node, domain.SubscriptionStatusSuspended)

	items, err := repo.ListBillable(ctx, db, 100)
	require.NoError(t, err)
	assert.Len(t, items, 2)
	for _, item := range items {
		assert.Contains(t, []domain.SubscriptionStatus{
			domain.SubscriptionStatusTrial,
			domain.SubscriptionStatusActive,
		}, item.Status)
	}
}

func TestTransitionStatusGuards(t *testing.T) {
	db := newTestDB(t)
	repo := Provide()
	ctx := context.Background()
	node, _ := snowflake.NewNode(1)
	now := time.Date(2024, 5, 2, 0, 0, 0, 0, time.UTC)

	t.Run("allowed transition applies", func(t *testing.T) {
		venueID := seed(t, db, node, domain.SubscriptionStatusActive)

		changed, err := repo.TransitionStatus(ctx, db, venueID, domain.SubscriptionStatusPastDue,
			[]domain.SubscriptionStatus{domain.SubscriptionStatusActive, domain.SubscriptionStatusTrial}, now)
		require.NoError(t, err)
		assert.True(t, changed)
	})

	t.Run("sticky status is not overridden", func(t *testing.T) {
		venueID := seed(t, db, node, domain.SubscriptionStatusCanceled)

		changed, err := repo.TransitionStatus(ctx, db, venueID, domain.SubscriptionStatusPastDue,
			[]domain.SubscriptionStatus{domain.SubscriptionStatusActive, domain.SubscriptionStatusTrial}, now)
		require.NoError(t, err)
		assert.False(t, changed)

		sub, err := repo.FindByVenue(ctx, db, venueID)
		require.NoError(t, err)
		assert.Equal(t, domain.SubscriptionStatusCanceled, sub.Status)
	})

	t.Run("empty allowed set rejected", func(t *testing.T) {
		venueID := seed(t, db, node, domain.SubscriptionStatusActive)

		_, err := repo.TransitionStatus(ctx, db, venueID, domain.SubscriptionStatusPastDue, nil, now)
		assert.ErrorIs(t, err, domain.ErrInvalidStatus)
	})
}

func TestMarkActivePaid(t *testing.T) {
	db := newTestDB(t)
	repo := Provide()
	ctx := context.Background()
	node, _ := snowflake.NewNode(1)

	venueID := seed(t, db, node, domain.SubscriptionStatusPastDue)

	first := time.Date(2024, 5, 3, 10, 0, 0, 0, time.UTC)
	changed, err := repo.MarkActivePaid(ctx, db, venueID, first)
	require.NoError(t, err)
	assert.True(t, changed)

	sub, err := repo.FindByVenue(ctx, db, venueID)
	require.NoError(t, err)
	assert.Equal(t, domain.SubscriptionStatusActive, sub.Status)
	require.NotNil(t, sub.PaidStartAt)
	assert.Equal(t, first, sub.PaidStartAt.UTC())

	// paid_start_at records the first settlement only.
	_, err = repo.MarkActivePaid(ctx, db, venueID, first.AddDate(0, 1, 0))
	require.NoError(t, err)

	sub, err = repo.FindByVenue(ctx, db, venueID)
	require.NoError(t, err)
	assert.Equal(t, first, sub.PaidStartAt.UTC())
}
