package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

var (
	ErrInvoiceNotFound = errors.New("invoice_not_found")
	ErrInvalidPeriod   = errors.New("invalid_invoice_period")
	ErrInvalidAmount   = errors.New("invalid_invoice_amount")
	ErrInvalidCurrency = errors.New("invalid_invoice_currency")
)

// OverdueInvoice is an invoice row joined with its venue's current
// subscription status, used by the reconciliation sweep.
type OverdueInvoice struct {
	Invoice
	SubscriptionStatus string
}

type Repository interface {
	// CreateIdempotent inserts the invoice unless a row already exists for
	// (venue, period_start, period_end); the stored row is returned either
	// way, with inserted reporting whether this call wrote it.
	CreateIdempotent(ctx context.Context, db *gorm.DB, invoice *Invoice) (*Invoice, bool, error)

	// MarkPaid transitions a non-terminal invoice to PAID. Returns false and
	// writes nothing when the invoice is already PAID/CANCELED or missing.
	MarkPaid(ctx context.Context, db *gorm.DB, id snowflake.ID, paidAt time.Time, actor string) (bool, error)

	// MarkPastDue transitions OPEN to PAST_DUE; no-op otherwise.
	MarkPastDue(ctx context.Context, db *gorm.DB, id snowflake.ID, now time.Time) (bool, error)

	// Cancel transitions any non-terminal invoice to CANCELED.
	Cancel(ctx context.Context, db *gorm.DB, id snowflake.ID, now time.Time) (bool, error)

	// AttachProviderInvoice persists the provider-assigned id and payment URL,
	// only when no provider invoice is attached yet.
	AttachProviderInvoice(ctx context.Context, db *gorm.DB, id snowflake.ID, providerInvoiceID string, paymentURL *string, rawPayload []byte, now time.Time) (bool, error)

	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Invoice, error)
	FindByProviderInvoiceID(ctx context.Context, db *gorm.DB, provider string, providerInvoiceID string) (*Invoice, error)
	FindByVenuePeriod(ctx context.Context, db *gorm.DB, venueID snowflake.ID, periodStart, periodEnd time.Time) (*Invoice, error)
	ListByVenue(ctx context.Context, db *gorm.DB, venueID snowflake.ID) ([]Invoice, error)

	// ListOpenDueWithin returns OPEN invoices whose due date falls inside
	// [now, until], for the reminder step.
	ListOpenDueWithin(ctx context.Context, db *gorm.DB, now, until time.Time, limit int) ([]Invoice, error)

	// ListOverdue returns OPEN invoices past their due date together with the
	// venue's current subscription status. Every venue is included; the
	// invoice must move to PAST_DUE even when the subscription stays put.
	ListOverdue(ctx context.Context, db *gorm.DB, now time.Time, limit int) ([]OverdueInvoice, error)

	// ListPastDueDueBefore returns PAST_DUE invoices whose due date is at or
	// before the cutoff, for the grace-expiry sweep.
	ListPastDueDueBefore(ctx context.Context, db *gorm.DB, cutoff time.Time, limit int) ([]Invoice, error)
}
