package repository

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tapmenu/platform/internal/invoice/domain"
	subscriptiondomain "github.com/tapmenu/platform/internal/subscription/domain"
	"gorm.io/gorm"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&domain.Invoice{}, &subscriptiondomain.Subscription{}))
	return db
}

func newInvoice(node *snowflake.Node, venueID snowflake.ID, periodStart time.Time) *domain.Invoice {
	now := time.Date(2024, 4, 20, 12, 0, 0, 0, time.UTC)
	return &domain.Invoice{
		ID:          node.Generate(),
		VenueID:     venueID,
		PeriodStart: periodStart,
		PeriodEnd:   periodStart.AddDate(0, 1, 0),
		DueAt:       periodStart.AddDate(0, 0, 5),
		Amount:      5000_00,
		Currency:    "RUB",
		Description: "Platform subscription",
		Provider:    "fake",
		Status:      domain.InvoiceStatusOpen,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

func TestCreateIdempotent(t *testing.T) {
	db := newTestDB(t)
	repo := Provide()
	ctx := context.Background()
	node, _ := snowflake.NewNode(1)

	venueID := node.Generate()
	periodStart := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)

	first, inserted, err := repo.CreateIdempotent(ctx, db, newInvoice(node, venueID, periodStart))
	require.NoError(t, err)
	assert.True(t, inserted)

	// Same period with a fresh id: the stored row wins.
	second, inserted, err := repo.CreateIdempotent(ctx, db, newInvoice(node, venueID, periodStart))
	require.NoError(t, err)
	assert.False(t, inserted)
	assert.Equal(t, first.ID, second.ID)

	var count int64
	db.Model(&domain.Invoice{}).Count(&count)
	assert.Equal(t, int64(1), count)

	t.Run("different period inserts", func(t *testing.T) {
		_, inserted, err := repo.CreateIdempotent(ctx, db, newInvoice(node, venueID, periodStart.AddDate(0, 1, 0)))
		require.NoError(t, err)
		assert.True(t, inserted)
	})
}

func TestMarkPaidTerminalGuard(t *testing.T) {
	db := newTestDB(t)
	repo := Provide()
	ctx := context.Background()
	node, _ := snowflake.NewNode(1)

	invoice, _, err := repo.CreateIdempotent(ctx, db, newInvoice(node, node.Generate(), time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)))
	require.NoError(t, err)

	paidAt := time.Date(2024, 5, 3, 10, 0, 0, 0, time.UTC)
	settled, err := repo.MarkPaid(ctx, db, invoice.ID, paidAt, "system")
	require.NoError(t, err)
	assert.True(t, settled)

	stored, err := repo.FindByID(ctx, db, invoice.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.InvoiceStatusPaid, stored.Status)
	require.NotNil(t, stored.PaidAt)
	assert.Equal(t, paidAt, stored.PaidAt.UTC())
	require.NotNil(t, stored.PaidBy)
	assert.Equal(t, "system", *stored.PaidBy)

	t.Run("second settle is a no-op", func(t *testing.T) {
		settled, err := repo.MarkPaid(ctx, db, invoice.ID, paidAt.Add(time.Hour), "system")
		require.NoError(t, err)
		assert.False(t, settled)

		stored, err := repo.FindByID(ctx, db, invoice.ID)
		require.NoError(t, err)
		assert.Equal(t, paidAt, stored.PaidAt.UTC())
	})

	t.Run("past due invoice settles", func(t *testing.T) {
		other, _, err := repo.CreateIdempotent(ctx, db, newInvoice(node, node.Generate(), time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)))
		require.NoError(t, err)

		moved, err := repo.MarkPastDue(ctx, db, other.ID, paidAt)
		require.NoError(t, err)
		assert.True(t, moved)

		settled, err := repo.MarkPaid(ctx, db, other.ID, paidAt, "system")
		require.NoError(t, err)
		assert.True(t, settled)
	})

	t.Run("canceled invoice never settles", func(t *testing.T) {
		other, _, err := repo.CreateIdempotent(ctx, db, newInvoice(node, node.Generate(), time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)))
		require.NoError(t, err)

		canceled, err := repo.Cancel(ctx, db, other.ID, paidAt)
		require.NoError(t, err)
		assert.True(t, canceled)

		settled, err := repo.MarkPaid(ctx, db, other.ID, paidAt, "system")
		require.NoError(t, err)
		assert.False(t, settled)
	})
}

func TestMarkPastDueOnlyFromOpen(t *testing.T) {
	db := newTestDB(t)
	repo := Provide()
	ctx := context.Background()
	node, _ := snowflake.NewNode(1)

	invoice, _, err := repo.CreateIdempotent(ctx, db, newInvoice(node, node.Generate(), time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)))
	require.NoError(t, err)

	movedAt := time.Date(2024, 5, 7, 0, 0, 0, 0, time.UTC)
	moved, err := repo.MarkPastDue(ctx, db, invoice.ID, movedAt)
	require.NoError(t, err)
	assert.True(t, moved)

	stored, err := repo.FindByID(ctx, db, invoice.ID)
	require.NoError(t, err)
	assert.Equal(t, movedAt, stored.UpdatedAt.UTC())

	moved, err = repo.MarkPastDue(ctx, db, invoice.ID, movedAt)
	require.NoError(t, err)
	assert.False(t, moved)
}

func TestAttachProviderInvoiceOnce(t *testing.T) {
	db := newTestDB(t)
	repo := Provide()
	ctx := context.Background()
	node, _ := snowflake.NewNode(1)

	invoice, _, err := repo.CreateIdempotent(ctx, db, newInvoice(node, node.Generate(), time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)))
	require.NoError(t, err)

	url := "https://pay.example.com/abc"
	attached, err := repo.AttachProviderInvoice(ctx, db, invoice.ID, "prov-1", &url, nil, time.Date(2024, 5, 2, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.True(t, attached)

	// A second attach against an already-minted invoice writes nothing.
	attached, err = repo.AttachProviderInvoice(ctx, db, invoice.ID, "prov-2", nil, nil, time.Date(2024, 5, 2, 1, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.False(t, attached)

	stored, err := repo.FindByProviderInvoiceID(ctx, db, "fake", "prov-1")
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Equal(t, invoice.ID, stored.ID)

	missing, err := repo.FindByProviderInvoiceID(ctx, db, "fake", "prov-2")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestOverdueSweepQueries(t *testing.T) {
	db := newTestDB(t)
	repo := Provide()
	ctx := context.Background()
	node, _ := snowflake.NewNode(1)

	venueID := node.Generate()
	require.NoError(t, db.Create(&subscriptiondomain.Subscription{
		ID:      node.Generate(),
		VenueID: venueID,
		Status:  subscriptiondomain.SubscriptionStatusActive,
	}).Error)

	periodStart := time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC)
	invoice, _, err := repo.CreateIdempotent(ctx, db, newInvoice(node, venueID, periodStart))
	require.NoError(t, err)

	dueAt := invoice.DueAt

	t.Run("open within reminder window", func(t *testing.T) {
		items, err := repo.ListOpenDueWithin(ctx, db, dueAt.AddDate(0, 0, -3), dueAt, 100)
		require.NoError(t, err)
		require.Len(t, items, 1)
		assert.Equal(t, invoice.ID, items[0].ID)
	})

	t.Run("overdue joins subscription status", func(t *testing.T) {
		items, err := repo.ListOverdue(ctx, db, dueAt.AddDate(0, 0, 1), 100)
		require.NoError(t, err)
		require.Len(t, items, 1)
		assert.Equal(t, invoice.ID, items[0].ID)
		assert.Equal(t, string(subscriptiondomain.SubscriptionStatusActive), items[0].SubscriptionStatus)
	})

	t.Run("overdue includes suspended venues", func(t *testing.T) {
		suspendedVenue := node.Generate()
		require.NoError(t, db.Create(&subscriptiondomain.Subscription{
			ID:      node.Generate(),
			VenueID: suspendedVenue,
			Status:  subscriptiondomain.SubscriptionStatusSuspended,
		}).Error)
		suspended, _, err := repo.CreateIdempotent(ctx, db, newInvoice(node, suspendedVenue, periodStart))
		require.NoError(t, err)

		items, err := repo.ListOverdue(ctx, db, dueAt.AddDate(0, 0, 1), 100)
		require.NoError(t, err)
		require.Len(t, items, 2)

		statuses := map[snowflake.ID]string{}
		for _, item := range items {
			statuses[item.ID] = item.SubscriptionStatus
		}
		assert.Equal(t, string(subscriptiondomain.SubscriptionStatusSuspended), statuses[suspended.ID])
	})

	t.Run("past due before cutoff", func(t *testing.T) {
		moved, err := repo.MarkPastDue(ctx, db, invoice.ID, dueAt.AddDate(0, 0, 1))
		require.NoError(t, err)
		assert.True(t, moved)

		items, err := repo.ListPastDueDueBefore(ctx, db, dueAt.AddDate(0, 0, 7), 100)
		require.NoError(t, err)
		require.Len(t, items, 1)

		items, err = repo.ListPastDueDueBefore(ctx, db, dueAt.AddDate(0, 0, -1), 100)
		require.NoError(t, err)
		assert.Empty(t, items)
	})
}
