package service

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	auditdomain "github.com/tapmenu/platform/internal/audit/domain"
	auditrepository "github.com/tapmenu/platform/internal/audit/repository"
	auditservice "github.com/tapmenu/platform/internal/audit/service"
	"github.com/tapmenu/platform/internal/clock"
	invoicedomain "github.com/tapmenu/platform/internal/invoice/domain"
	invoicerepository "github.com/tapmenu/platform/internal/invoice/repository"
	"github.com/tapmenu/platform/internal/metrics"
	notificationdomain "github.com/tapmenu/platform/internal/notification/domain"
	"github.com/tapmenu/platform/internal/payment/domain"
	"github.com/tapmenu/platform/internal/payment/providers"
	"github.com/tapmenu/platform/internal/payment/providers/fakepay"
	paymentrepository "github.com/tapmenu/platform/internal/payment/repository"
	settingsdomain "github.com/tapmenu/platform/internal/settings/domain"
	subscriptiondomain "github.com/tapmenu/platform/internal/subscription/domain"
	subscriptionrepository "github.com/tapmenu/platform/internal/subscription/repository"
	subscriptionservice "github.com/tapmenu/platform/internal/subscription/service"
	"go.uber.org/zap/zaptest"
	"gorm.io/gorm"
)

type harness struct {
	db       *gorm.DB
	node     *snowflake.Node
	clock    *clock.FakeClock
	fake     *fakepay.Provider
	svc      *Service
	invoices invoicedomain.Repository
	subs     subscriptiondomain.Repository
	payments domain.Repository
	audit    auditdomain.Service
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&subscriptiondomain.Subscription{},
		&invoicedomain.Invoice{},
		&domain.EventRecord{},
		&notificationdomain.Notification{},
		&settingsdomain.PricingSetting{},
		&auditdomain.AuditLog{},
	))

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	log := zaptest.NewLogger(t)
	fakeClock := clock.NewFakeClock(time.Date(2024, 4, 20, 12, 0, 0, 0, time.UTC))

	invoiceRepo := invoicerepository.Provide()
	subRepo := subscriptionrepository.Provide()
	paymentRepo := paymentrepository.Provide()

	auditSvc := auditservice.NewService(auditservice.Params{
		DB:    db,
		Log:   log,
		GenID: node,
		Clock: fakeClock,
		Repo:  auditrepository.Provide(),
	})

	subSvc := subscriptionservice.NewService(subscriptionservice.Params{
		DB:       db,
		Log:      log,
		Repo:     subRepo,
		AuditSvc: auditSvc,
	})

	fake := fakepay.New()
	registry := providers.NewRegistry(fakepay.ProviderName, fake)

	svc := NewService(Params{
		DB:          db,
		Log:         log,
		GenID:       node,
		Clock:       fakeClock,
		InvoiceRepo: invoiceRepo,
		PaymentRepo: paymentRepo,
		Registry:    registry,
		AuditSvc:    auditSvc,
		Hook:        subscriptionservice.ProvideHook(subSvc),
		Metrics:     metrics.NewWithRegisterer(prometheus.NewRegistry()),
	})

	return &harness{
		db:       db,
		node:     node,
		clock:    fakeClock,
		fake:     fake,
		svc:      svc,
		invoices: invoiceRepo,
		subs:     subRepo,
		payments: paymentRepo,
		audit:    auditSvc,
	}
}

func (h *harness) seedSubscription(t *testing.T, status subscriptiondomain.SubscriptionStatus) snowflake.ID {
	t.Helper()
	venueID := h.node.Generate()
	require.NoError(t, h.subs.Upsert(context.Background(), h.db, &subscriptiondomain.Subscription{
		ID:      h.node.Generate(),
		VenueID: venueID,
		Status:  status,
	}))
	return venueID
}

func (h *harness) seedInvoice(t *testing.T, venueID snowflake.ID) *invoicedomain.Invoice {
	t.Helper()
	invoice, err := h.svc.CreateDraftOrOpenInvoice(context.Background(), CreateDraftOrOpenInvoiceRequest{
		VenueID:     venueID,
		PeriodStart: time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC),
		PeriodEnd:   time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC),
		DueAt:       time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC),
		Amount:      5000_00,
		Currency:    "RUB",
		Description: "Platform subscription 2024-04",
	})
	require.NoError(t, err)
	return invoice
}

func succeededEvent(invoice *invoicedomain.Invoice, eventID string) *domain.PaymentEvent {
	return &domain.PaymentEvent{
		Provider:          fakepay.ProviderName,
		ProviderEventID:   eventID,
		ProviderInvoiceID: *invoice.ProviderInvoiceID,
		Status:            domain.EventStatusSucceeded,
		Amount:            invoice.Amount,
		Currency:          invoice.Currency,
		OccurredAt:        time.Date(2024, 5, 3, 10, 0, 0, 0, time.UTC),
	}
}

func TestApplyPaymentEventSettles(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	venueID := h.seedSubscription(t, subscriptiondomain.SubscriptionStatusPastDue)
	invoice := h.seedInvoice(t, venueID)

	require.NoError(t, h.svc.ApplyPaymentEvent(ctx, succeededEvent(invoice, "evt-1")))

	stored, err := h.invoices.FindByID(ctx, h.db, invoice.ID)
	require.NoError(t, err)
	assert.Equal(t, invoicedomain.InvoiceStatusPaid, stored.Status)
	require.NotNil(t, stored.PaidAt)
	assert.Equal(t, time.Date(2024, 5, 3, 10, 0, 0, 0, time.UTC), stored.PaidAt.UTC())

	sub, err := h.subs.FindByVenue(ctx, h.db, venueID)
	require.NoError(t, err)
	assert.Equal(t, subscriptiondomain.SubscriptionStatusActive, sub.Status)
	require.NotNil(t, sub.PaidStartAt)

	event, err := h.payments.FindEvent(ctx, h.db, fakepay.ProviderName, "evt-1")
	require.NoError(t, err)
	require.NotNil(t, event)
	assert.Equal(t, invoice.ID, event.InvoiceID)
	assert.Equal(t, domain.EventStatusSucceeded, event.Status)

	// Audit bookkeeping follows the injected clock.
	var entries []auditdomain.AuditLog
	require.NoError(t, h.db.Find(&entries).Error)
	require.NotEmpty(t, entries)
	for _, entry := range entries {
		assert.True(t, entry.CreatedAt.UTC().Equal(h.clock.Now()), entry.Action)
	}
}

func TestApplyPaymentEventIdempotent(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	venueID := h.seedSubscription(t, subscriptiondomain.SubscriptionStatusActive)
	invoice := h.seedInvoice(t, venueID)

	// The same delivery applied repeatedly: one event row, one settlement.
	for i := 0; i < 5; i++ {
		require.NoError(t, h.svc.ApplyPaymentEvent(ctx, succeededEvent(invoice, "evt-dup")))
	}

	var count int64
	h.db.Model(&domain.EventRecord{}).Count(&count)
	assert.Equal(t, int64(1), count)

	stored, err := h.invoices.FindByID(ctx, h.db, invoice.ID)
	require.NoError(t, err)
	assert.Equal(t, invoicedomain.InvoiceStatusPaid, stored.Status)
	assert.Equal(t, time.Date(2024, 5, 3, 10, 0, 0, 0, time.UTC), stored.PaidAt.UTC())
}

func TestApplyPaymentEventMismatch(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	venueID := h.seedSubscription(t, subscriptiondomain.SubscriptionStatusActive)
	invoice := h.seedInvoice(t, venueID)

	t.Run("amount mismatch leaves invoice unpaid", func(t *testing.T) {
		event := succeededEvent(invoice, "evt-amount")
		event.Amount = invoice.Amount - 1

		require.NoError(t, h.svc.ApplyPaymentEvent(ctx, event))

		stored, err := h.invoices.FindByID(ctx, h.db, invoice.ID)
		require.NoError(t, err)
		assert.Equal(t, invoicedomain.InvoiceStatusOpen, stored.Status)
		assert.Nil(t, stored.PaidAt)
	})

	t.Run("currency mismatch leaves invoice unpaid", func(t *testing.T) {
		event := succeededEvent(invoice, "evt-currency")
		event.Currency = "USD"

		require.NoError(t, h.svc.ApplyPaymentEvent(ctx, event))

		stored, err := h.invoices.FindByID(ctx, h.db, invoice.ID)
		require.NoError(t, err)
		assert.Equal(t, invoicedomain.InvoiceStatusOpen, stored.Status)
	})

	t.Run("mismatched events are still recorded", func(t *testing.T) {
		var count int64
		h.db.Model(&domain.EventRecord{}).Count(&count)
		assert.Equal(t, int64(2), count)
	})
}

func TestApplyPaymentEventUnknownInvoice(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	err := h.svc.ApplyPaymentEvent(ctx, &domain.PaymentEvent{
		Provider:          fakepay.ProviderName,
		ProviderEventID:   "evt-unknown",
		ProviderInvoiceID: "no-such-invoice",
		Status:            domain.EventStatusSucceeded,
		Amount:            100,
		Currency:          "RUB",
		OccurredAt:        time.Now().UTC(),
	})
	// Not a failure: retrying the delivery cannot help, so the provider gets 200.
	assert.NoError(t, err)

	var count int64
	h.db.Model(&domain.EventRecord{}).Count(&count)
	assert.Equal(t, int64(0), count)
}

func TestApplyPaymentEventFailedStatus(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	venueID := h.seedSubscription(t, subscriptiondomain.SubscriptionStatusActive)
	invoice := h.seedInvoice(t, venueID)

	event := succeededEvent(invoice, "evt-failed")
	event.Status = domain.EventStatusFailed

	require.NoError(t, h.svc.ApplyPaymentEvent(ctx, event))

	stored, err := h.invoices.FindByID(ctx, h.db, invoice.ID)
	require.NoError(t, err)
	assert.Equal(t, invoicedomain.InvoiceStatusOpen, stored.Status)

	var count int64
	h.db.Model(&domain.EventRecord{}).Count(&count)
	assert.Equal(t, int64(1), count)
}

func TestApplyPaymentEventCanceledSubscriptionStaysCanceled(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	venueID := h.seedSubscription(t, subscriptiondomain.SubscriptionStatusCanceled)
	invoice := h.seedInvoice(t, venueID)

	require.NoError(t, h.svc.ApplyPaymentEvent(ctx, succeededEvent(invoice, "evt-canceled")))

	stored, err := h.invoices.FindByID(ctx, h.db, invoice.ID)
	require.NoError(t, err)
	assert.Equal(t, invoicedomain.InvoiceStatusPaid, stored.Status)

	sub, err := h.subs.FindByVenue(ctx, h.db, venueID)
	require.NoError(t, err)
	assert.Equal(t, subscriptiondomain.SubscriptionStatusCanceled, sub.Status)
}

func TestCreateDraftOrOpenInvoiceMintsAtMostOnce(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	venueID := h.seedSubscription(t, subscriptiondomain.SubscriptionStatusActive)

	req := CreateDraftOrOpenInvoiceRequest{
		VenueID:     venueID,
		PeriodStart: time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC),
		PeriodEnd:   time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC),
		DueAt:       time.Date(2024, 5, 6, 0, 0, 0, 0, time.UTC),
		Amount:      5000_00,
		Currency:    "RUB",
	}

	first, err := h.svc.CreateDraftOrOpenInvoice(ctx, req)
	require.NoError(t, err)
	require.NotNil(t, first.ProviderInvoiceID)

	for i := 0; i < 3; i++ {
		repeat, err := h.svc.CreateDraftOrOpenInvoice(ctx, req)
		require.NoError(t, err)
		assert.Equal(t, first.ID, repeat.ID)
		assert.Equal(t, *first.ProviderInvoiceID, *repeat.ProviderInvoiceID)
	}

	assert.Equal(t, int64(1), h.fake.CreateCalls())
}

func TestCreateDraftOrOpenInvoiceRecoversFromProviderFailure(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	venueID := h.seedSubscription(t, subscriptiondomain.SubscriptionStatusActive)

	req := CreateDraftOrOpenInvoiceRequest{
		VenueID:     venueID,
		PeriodStart: time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC),
		PeriodEnd:   time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC),
		DueAt:       time.Date(2024, 5, 6, 0, 0, 0, 0, time.UTC),
		Amount:      5000_00,
		Currency:    "RUB",
	}

	h.fake.FailCreate(true)
	_, err := h.svc.CreateDraftOrOpenInvoice(ctx, req)
	require.Error(t, err)

	// The invoice row survived the provider failure; the retry only mints.
	h.fake.FailCreate(false)
	invoice, err := h.svc.CreateDraftOrOpenInvoice(ctx, req)
	require.NoError(t, err)
	require.NotNil(t, invoice.ProviderInvoiceID)

	var count int64
	h.db.Model(&invoicedomain.Invoice{}).Count(&count)
	assert.Equal(t, int64(1), count)
}

func TestCreateDraftOrOpenInvoiceValidation(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	base := CreateDraftOrOpenInvoiceRequest{
		VenueID:     h.node.Generate(),
		PeriodStart: time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC),
		PeriodEnd:   time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC),
		DueAt:       time.Date(2024, 5, 6, 0, 0, 0, 0, time.UTC),
		Amount:      5000_00,
		Currency:    "RUB",
	}

	t.Run("inverted period", func(t *testing.T) {
		req := base
		req.PeriodEnd = req.PeriodStart.AddDate(0, -1, 0)
		_, err := h.svc.CreateDraftOrOpenInvoice(ctx, req)
		assert.ErrorIs(t, err, invoicedomain.ErrInvalidPeriod)
	})

	t.Run("non-positive amount", func(t *testing.T) {
		req := base
		req.Amount = 0
		_, err := h.svc.CreateDraftOrOpenInvoice(ctx, req)
		assert.ErrorIs(t, err, invoicedomain.ErrInvalidAmount)
	})

	t.Run("missing currency", func(t *testing.T) {
		req := base
		req.Currency = "  "
		_, err := h.svc.CreateDraftOrOpenInvoice(ctx, req)
		assert.ErrorIs(t, err, invoicedomain.ErrInvalidCurrency)
	})
}
