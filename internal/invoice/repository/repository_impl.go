package repository

import (
	"context"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/tapmenu/platform/internal/invoice/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) CreateIdempotent(ctx context.Context, db *gorm.DB, invoice *domain.Invoice) (*domain.Invoice, bool, error) {
	res := db.WithContext(ctx).Exec(
		`INSERT INTO platform_invoices (
			id, venue_id, period_start, period_end, due_at, amount, currency,
			description, provider, provider_invoice_id, payment_url, raw_payload,
			status, paid_at, paid_by, created_by, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (venue_id, period_start, period_end) DO NOTHING`,
		invoice.ID,
		invoice.VenueID,
		invoice.PeriodStart,
		invoice.PeriodEnd,
		invoice.DueAt,
		invoice.Amount,
		invoice.Currency,
		invoice.Description,
		invoice.Provider,
		invoice.ProviderInvoiceID,
		invoice.PaymentURL,
		invoice.RawPayload,
		invoice.Status,
		invoice.PaidAt,
		invoice.PaidBy,
		invoice.CreatedBy,
		invoice.CreatedAt,
		invoice.UpdatedAt,
	)
	if res.Error != nil {
		return nil, false, res.Error
	}
	inserted := res.RowsAffected > 0

	// Read back regardless: a concurrent caller may have won the insert.
	stored, err := r.FindByVenuePeriod(ctx, db, invoice.VenueID, invoice.PeriodStart, invoice.PeriodEnd)
	if err != nil {
		return nil, false, err
	}
	if stored == nil {
		return nil, false, domain.ErrInvoiceNotFound
	}
	return stored, inserted, nil
}

func (r *repo) MarkPaid(ctx context.Context, db *gorm.DB, id snowflake.ID, paidAt time.Time, actor string) (bool, error) {
	var paidBy *string
	if trimmed := strings.TrimSpace(actor); trimmed != "" {
		paidBy = &trimmed
	}
	res := db.WithContext(ctx).Exec(
		`UPDATE platform_invoices
		 SET status = ?, paid_at = ?, paid_by = ?, updated_at = ?
		 WHERE id = ? AND status IN (?, ?)`,
		domain.InvoiceStatusPaid,
		paidAt,
		paidBy,
		paidAt,
		id,
		domain.InvoiceStatusOpen,
		domain.InvoiceStatusPastDue,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repo) MarkPastDue(ctx context.Context, db *gorm.DB, id snowflake.ID, now time.Time) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE platform_invoices
		 SET status = ?, updated_at = ?
		 WHERE id = ? AND status = ?`,
		domain.InvoiceStatusPastDue,
		now,
		id,
		domain.InvoiceStatusOpen,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repo) Cancel(ctx context.Context, db *gorm.DB, id snowflake.ID, now time.Time) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE platform_invoices
		 SET status = ?, updated_at = ?
		 WHERE id = ? AND status IN (?, ?)`,
		domain.InvoiceStatusCanceled,
		now,
		id,
		domain.InvoiceStatusOpen,
		domain.InvoiceStatusPastDue,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repo) AttachProviderInvoice(ctx context.Context, db *gorm.DB, id snowflake.ID, providerInvoiceID string, paymentURL *string, rawPayload []byte, now time.Time) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE platform_invoices
		 SET provider_invoice_id = ?, payment_url = ?, raw_payload = ?, updated_at = ?
		 WHERE id = ? AND provider_invoice_id IS NULL`,
		providerInvoiceID,
		paymentURL,
		rawPayload,
		now,
		id,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Invoice, error) {
	var item domain.Invoice
	err := db.WithContext(ctx).Raw(
		`SELECT * FROM platform_invoices WHERE id = ? LIMIT 1`,
		id,
	).Scan(&item).Error
	if err != nil {
		return nil, err
	}
	if item.ID == 0 {
		return nil, nil
	}
	return &item, nil
}

func (r *repo) FindByProviderInvoiceID(ctx context.Context, db *gorm.DB, provider string, providerInvoiceID string) (*domain.Invoice, error) {
	var item domain.Invoice
	err := db.WithContext(ctx).Raw(
		`SELECT * FROM platform_invoices
		 WHERE provider = ? AND provider_invoice_id = ?
		 LIMIT 1`,
		provider,
		providerInvoiceID,
	).Scan(&item).Error
	if err != nil {
		return nil, err
	}
	if item.ID == 0 {
		return nil, nil
	}
	return &item, nil
}

func (r *repo) FindByVenuePeriod(ctx context.Context, db *gorm.DB, venueID snowflake.ID, periodStart, periodEnd time.Time) (*domain.Invoice, error) {
	var item domain.Invoice
	err := db.WithContext(ctx).Raw(
		`SELECT * FROM platform_invoices
		 WHERE venue_id = ? AND period_start = ? AND period_end = ?
		 LIMIT 1`,
		venueID,
		periodStart,
		periodEnd,
	).Scan(&item).Error
	if err != nil {
		return nil, err
	}
	if item.ID == 0 {
		return nil, nil
	}
	return &item, nil
}

func (r *repo) ListByVenue(ctx context.Context, db *gorm.DB, venueID snowflake.ID) ([]domain.Invoice, error) {
	var items []domain.Invoice
	err := db.WithContext(ctx).Raw(
		`SELECT * FROM platform_invoices
		 WHERE venue_id = ?
		 ORDER BY period_start DESC`,
		venueID,
	).Scan(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repo) ListOpenDueWithin(ctx context.Context, db *gorm.DB, now, until time.Time, limit int) ([]domain.Invoice, error) {
	var items []domain.Invoice
	err := db.WithContext(ctx).Raw(
		`SELECT * FROM platform_invoices
		 WHERE status = ? AND due_at >= ? AND due_at <= ?
		 ORDER BY due_at ASC
		 LIMIT ?`,
		domain.InvoiceStatusOpen,
		now,
		until,
		limit,
	).Scan(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repo) ListOverdue(ctx context.Context, db *gorm.DB, now time.Time, limit int) ([]domain.OverdueInvoice, error) {
	var items []domain.OverdueInvoice
	err := db.WithContext(ctx).Raw(
		`SELECT i.*, s.status AS subscription_status
		 FROM platform_invoices i
		 JOIN venue_subscriptions s ON s.venue_id = i.venue_id
		 WHERE i.status = ? AND i.due_at < ?
		 ORDER BY i.due_at ASC
		 LIMIT ?`,
		domain.InvoiceStatusOpen,
		now,
		limit,
	).Scan(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repo) ListPastDueDueBefore(ctx context.Context, db *gorm.DB, cutoff time.Time, limit int) ([]domain.Invoice, error) {
	var items []domain.Invoice
	err := db.WithContext(ctx).Raw(
		`SELECT * FROM platform_invoices
		 WHERE status = ? AND due_at <= ?
		 ORDER BY due_at ASC
		 LIMIT ?`,
		domain.InvoiceStatusPastDue,
		cutoff,
		limit,
	).Scan(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}
