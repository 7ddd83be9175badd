package service

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	auditdomain "github.com/tapmenu/platform/internal/audit/domain"
	"github.com/tapmenu/platform/internal/clock"
	invoicedomain "github.com/tapmenu/platform/internal/invoice/domain"
	"github.com/tapmenu/platform/internal/metrics"
	"github.com/tapmenu/platform/internal/payment/domain"
	"github.com/tapmenu/platform/internal/payment/providers"
	subscriptiondomain "github.com/tapmenu/platform/internal/subscription/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB          *gorm.DB
	Log         *zap.Logger
	GenID       *snowflake.Node
	Clock       clock.Clock
	InvoiceRepo invoicedomain.Repository
	PaymentRepo domain.Repository
	Registry    *providers.Registry
	AuditSvc    auditdomain.Service
	Hook        subscriptiondomain.Hook `optional:"true"`
	Metrics     *metrics.Metrics        `optional:"true"`
}

// Service orchestrates the invoice and payment stores with the provider
// registry: it applies inbound payment events and creates invoices with
// at-most-once provider minting.
type Service struct {
	db          *gorm.DB
	log         *zap.Logger
	genID       *snowflake.Node
	clock       clock.Clock
	invoiceRepo invoicedomain.Repository
	paymentRepo domain.Repository
	registry    *providers.Registry
	auditSvc    auditdomain.Service
	hook        subscriptiondomain.Hook
	metrics     *metrics.Metrics
}

func NewService(p Params) *Service {
	return &Service{
		db:          p.DB,
		log:         p.Log.Named("billing.service"),
		genID:       p.GenID,
		clock:       p.Clock,
		invoiceRepo: p.InvoiceRepo,
		paymentRepo: p.PaymentRepo,
		registry:    p.Registry,
		auditSvc:    p.AuditSvc,
		hook:        p.Hook,
		metrics:     p.Metrics,
	}
}

// IngestWebhook resolves the provider by name, lets it verify and parse the
// request, and applies the resulting event.
func (s *Service) IngestWebhook(ctx context.Context, providerName string, payload []byte, headers http.Header) error {
	provider, err := s.registry.Resolve(providerName)
	if err != nil {
		return err
	}

	event, err := provider.HandleWebhook(ctx, payload, headers)
	if err != nil {
		s.countWebhook(providerName, "rejected")
		return err
	}

	if err := s.ApplyPaymentEvent(ctx, event); err != nil {
		s.countWebhook(providerName, "error")
		return err
	}
	s.countWebhook(providerName, "accepted")
	return nil
}

// ApplyPaymentEvent applies a parsed provider event:
//
//  1. resolve the target invoice by provider invoice id;
//  2. insert the event row, tolerating duplicates;
//  3. settle the invoice only when amount and currency match, relying on the
//     terminal-state guard for re-entrancy;
//  4. notify the subscription hook after a successful settlement.
//
// Steps 2 and 3 are deliberately decoupled: a crash between them is resumed
// by the provider redelivering the same event id, which makes step 2 a no-op
// and step 3 naturally idempotent.
func (s *Service) ApplyPaymentEvent(ctx context.Context, event *domain.PaymentEvent) error {
	if err := validateEvent(event); err != nil {
		return err
	}

	invoice, err := s.invoiceRepo.FindByProviderInvoiceID(ctx, s.db, event.Provider, event.ProviderInvoiceID)
	if err != nil {
		return err
	}
	if invoice == nil {
		// Unknown invoice reference (stale or test data): surfaced as an
		// anomaly, never a webhook failure that would be retried forever.
		s.countAnomaly("unknown_invoice")
		s.log.Warn("payment event references unknown invoice",
			zap.String("provider", event.Provider),
			zap.String("provider_invoice_id", event.ProviderInvoiceID),
			zap.String("provider_event_id", event.ProviderEventID),
		)
		s.writeAuditLog(ctx, nil, "payment.unknown_invoice", map[string]any{
			"provider":            event.Provider,
			"provider_invoice_id": event.ProviderInvoiceID,
			"provider_event_id":   event.ProviderEventID,
		})
		return nil
	}

	record := &domain.EventRecord{
		ID:              s.genID.Generate(),
		InvoiceID:       invoice.ID,
		Provider:        event.Provider,
		ProviderEventID: event.ProviderEventID,
		Amount:          event.Amount,
		Currency:        event.Currency,
		Status:          event.Status,
		OccurredAt:      event.OccurredAt,
		RawPayload:      datatypes.JSON(event.RawPayload),
		ReceivedAt:      s.clock.Now(),
	}
	inserted, err := s.paymentRepo.InsertEventIdempotent(ctx, s.db, record)
	if err != nil {
		return err
	}
	if !inserted {
		s.log.Debug("duplicate payment event delivery",
			zap.String("provider", event.Provider),
			zap.String("provider_event_id", event.ProviderEventID),
		)
	}

	if event.Status != domain.EventStatusSucceeded {
		s.writeAuditLog(ctx, &invoice.VenueID, "payment.failed", map[string]any{
			"invoice_id":        invoice.ID.String(),
			"provider_event_id": event.ProviderEventID,
		})
		return nil
	}

	// Settlement runs even for a duplicate delivery: the previous attempt may
	// have crashed after inserting the event but before settling. MarkPaid's
	// terminal-state guard keeps this safe.
	if event.Amount != invoice.Amount || !strings.EqualFold(event.Currency, invoice.Currency) {
		s.countAnomaly("settlement_mismatch")
		s.log.Warn("payment amount or currency mismatch, invoice left unpaid",
			zap.String("invoice_id", invoice.ID.String()),
			zap.Int64("event_amount", event.Amount),
			zap.Int64("invoice_amount", invoice.Amount),
			zap.String("event_currency", event.Currency),
			zap.String("invoice_currency", invoice.Currency),
		)
		s.writeAuditLog(ctx, &invoice.VenueID, "payment.settlement_mismatch", map[string]any{
			"invoice_id":        invoice.ID.String(),
			"provider_event_id": event.ProviderEventID,
			"event_amount":      event.Amount,
			"invoice_amount":    invoice.Amount,
			"event_currency":    event.Currency,
			"invoice_currency":  invoice.Currency,
		})
		return nil
	}

	paidAt := event.OccurredAt
	if paidAt.IsZero() {
		paidAt = s.clock.Now()
	}
	settled, err := s.invoiceRepo.MarkPaid(ctx, s.db, invoice.ID, paidAt, auditdomain.ActorSystem)
	if err != nil {
		return err
	}
	if !settled {
		return nil
	}

	s.writeAuditLog(ctx, &invoice.VenueID, "invoice.paid", map[string]any{
		"invoice_id":        invoice.ID.String(),
		"provider_event_id": event.ProviderEventID,
		"amount":            event.Amount,
		"currency":          event.Currency,
		"paid_at":           paidAt.UTC().Format(time.RFC3339),
	})

	if s.hook != nil {
		if err := s.hook.OnInvoicePaid(ctx, invoice.VenueID, paidAt); err != nil {
			return err
		}
	}
	return nil
}

// CreateDraftOrOpenInvoiceRequest describes an on-demand or scheduled
// invoice creation.
type CreateDraftOrOpenInvoiceRequest struct {
	VenueID     snowflake.ID
	PeriodStart time.Time
	PeriodEnd   time.Time
	DueAt       time.Time
	Amount      int64
	Currency    string
	Description string
	Actor       string
}

// CreateDraftOrOpenInvoice idempotently creates the invoice row and then,
// only when no provider invoice is attached yet, mints one with the active
// provider. The provider is called at most once per (venue, period) even
// across repeated calls.
func (s *Service) CreateDraftOrOpenInvoice(ctx context.Context, req CreateDraftOrOpenInvoiceRequest) (*invoicedomain.Invoice, error) {
	if !req.PeriodEnd.After(req.PeriodStart) {
		return nil, invoicedomain.ErrInvalidPeriod
	}
	if req.Amount <= 0 {
		return nil, invoicedomain.ErrInvalidAmount
	}
	currency := strings.ToUpper(strings.TrimSpace(req.Currency))
	if currency == "" {
		return nil, invoicedomain.ErrInvalidCurrency
	}

	provider, err := s.registry.Active()
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	var createdBy *string
	if actor := strings.TrimSpace(req.Actor); actor != "" {
		createdBy = &actor
	}

	invoice := &invoicedomain.Invoice{
		ID:          s.genID.Generate(),
		VenueID:     req.VenueID,
		PeriodStart: req.PeriodStart,
		PeriodEnd:   req.PeriodEnd,
		DueAt:       req.DueAt,
		Amount:      req.Amount,
		Currency:    currency,
		Description: req.Description,
		Provider:    provider.Name(),
		Status:      invoicedomain.InvoiceStatusOpen,
		CreatedBy:   createdBy,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	stored, inserted, err := s.invoiceRepo.CreateIdempotent(ctx, s.db, invoice)
	if err != nil {
		return nil, err
	}
	if inserted {
		s.writeAuditLog(ctx, &stored.VenueID, "invoice.created", map[string]any{
			"invoice_id":   stored.ID.String(),
			"period_start": stored.PeriodStart.UTC().Format(time.RFC3339),
			"period_end":   stored.PeriodEnd.UTC().Format(time.RFC3339),
			"amount":       stored.Amount,
			"currency":     stored.Currency,
		})
	}

	if stored.ProviderInvoiceID != nil {
		return stored, nil
	}

	result, err := provider.CreateInvoice(ctx, domain.CreateInvoiceRequest{
		InvoiceID:   stored.ID,
		VenueID:     stored.VenueID,
		Amount:      stored.Amount,
		Currency:    stored.Currency,
		Description: stored.Description,
	})
	if err != nil {
		// The invoice row stays; the next call retries the provider mint.
		return nil, err
	}

	if _, err := s.invoiceRepo.AttachProviderInvoice(ctx, s.db, stored.ID, result.ProviderInvoiceID, result.PaymentURL, result.RawPayload, s.clock.Now()); err != nil {
		return nil, err
	}

	return s.invoiceRepo.FindByID(ctx, s.db, stored.ID)
}

func validateEvent(event *domain.PaymentEvent) error {
	if event == nil {
		return domain.ErrInvalidEvent
	}
	event.Provider = strings.ToLower(strings.TrimSpace(event.Provider))
	if event.Provider == "" {
		return domain.ErrInvalidProvider
	}
	event.ProviderEventID = strings.TrimSpace(event.ProviderEventID)
	if event.ProviderEventID == "" {
		return domain.ErrInvalidEvent
	}
	event.ProviderInvoiceID = strings.TrimSpace(event.ProviderInvoiceID)
	if event.ProviderInvoiceID == "" {
		return domain.ErrInvalidEvent
	}
	event.Currency = strings.ToUpper(strings.TrimSpace(event.Currency))
	if event.Currency == "" {
		return domain.ErrInvalidCurrency
	}
	if event.Status == domain.EventStatusSucceeded && event.Amount <= 0 {
		return domain.ErrInvalidAmount
	}
	return nil
}

func (s *Service) countWebhook(provider, outcome string) {
	if s.metrics == nil {
		return
	}
	s.metrics.WebhookEvents.WithLabelValues(provider, outcome).Inc()
}

func (s *Service) countAnomaly(reason string) {
	if s.metrics == nil {
		return
	}
	s.metrics.PaymentAnomalies.WithLabelValues(reason).Inc()
}

func (s *Service) writeAuditLog(ctx context.Context, venueID *snowflake.ID, action string, metadata map[string]any) {
	if s.auditSvc == nil {
		return
	}
	if err := s.auditSvc.AuditLog(ctx, venueID, auditdomain.ActorSystem, action, "invoice", metadata); err != nil {
		s.log.Warn("failed to write billing audit log", zap.String("action", action), zap.Error(err))
	}
}
