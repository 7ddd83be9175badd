// Package reconcile implements the periodic billing tick: invoice issuance,
// due-date reminders, past-due demotion and grace-expiry suspension. Every
// step is idempotent against the durable stores, so overlapping or repeated
// ticks produce no additional writes.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	auditdomain "github.com/tapmenu/platform/internal/audit/domain"
	"github.com/tapmenu/platform/internal/clock"
	"github.com/tapmenu/platform/internal/config"
	invoicedomain "github.com/tapmenu/platform/internal/invoice/domain"
	"github.com/tapmenu/platform/internal/metrics"
	notificationdomain "github.com/tapmenu/platform/internal/notification/domain"
	paymentservice "github.com/tapmenu/platform/internal/payment/service"
	settingsdomain "github.com/tapmenu/platform/internal/settings/domain"
	subscriptiondomain "github.com/tapmenu/platform/internal/subscription/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const sweepBatchLimit = 500

type Params struct {
	fx.In

	DB           *gorm.DB
	Log          *zap.Logger
	GenID        *snowflake.Node
	Clock        clock.Clock
	Policy       *config.BillingPolicyHolder
	InvoiceRepo  invoicedomain.Repository
	SubRepo      subscriptiondomain.Repository
	NotifRepo    notificationdomain.Repository
	SettingsRepo settingsdomain.Repository
	Billing      *paymentservice.Service
	AuditSvc     auditdomain.Service
	Metrics      *metrics.Metrics `optional:"true"`
}

type Engine struct {
	db           *gorm.DB
	log          *zap.Logger
	genID        *snowflake.Node
	clock        clock.Clock
	policy       *config.BillingPolicyHolder
	invoiceRepo  invoicedomain.Repository
	subRepo      subscriptiondomain.Repository
	notifRepo    notificationdomain.Repository
	settingsRepo settingsdomain.Repository
	billing      *paymentservice.Service
	auditSvc     auditdomain.Service
	metrics      *metrics.Metrics
}

func NewEngine(p Params) *Engine {
	return &Engine{
		db:           p.DB,
		log:          p.Log.Named("reconcile"),
		genID:        p.GenID,
		clock:        p.Clock,
		policy:       p.Policy,
		invoiceRepo:  p.InvoiceRepo,
		subRepo:      p.SubRepo,
		notifRepo:    p.NotifRepo,
		settingsRepo: p.SettingsRepo,
		billing:      p.Billing,
		auditSvc:     p.AuditSvc,
		metrics:      p.Metrics,
	}
}

// RunOnce executes one full tick. A failing venue never aborts the batch:
// per-venue errors are collected and joined, and every step still runs.
func (e *Engine) RunOnce(ctx context.Context) error {
	started := time.Now()
	now := e.clock.Now()
	policy := e.policy.Get()

	e.log.Info("reconciliation tick started",
		zap.Time("now", now),
		zap.Int("lead_days", policy.LeadDays),
		zap.Int("reminder_days", policy.ReminderDays),
		zap.Int("grace_days", policy.GraceDays),
	)

	err := errors.Join(
		e.issueInvoices(ctx, now, policy),
		e.sendReminders(ctx, now, policy),
		e.expireToPastDue(ctx, now),
		e.suspendAfterGrace(ctx, now, policy),
	)

	if e.metrics != nil {
		e.metrics.ReconcileRuns.Inc()
		e.metrics.ReconcileDuration.Observe(time.Since(started).Seconds())
	}
	if err != nil {
		e.log.Warn("reconciliation tick finished with failures", zap.Error(err))
	} else {
		e.log.Info("reconciliation tick finished", zap.Duration("took", time.Since(started)))
	}
	return err
}

// issueInvoices creates the next invoice for every billable venue whose next
// period starts within the lead window. Creation is idempotent on
// (venue, period), so re-runs and overlapping ticks cannot duplicate.
func (e *Engine) issueInvoices(ctx context.Context, now time.Time, policy config.BillingPolicy) error {
	subs, err := e.subRepo.ListBillable(ctx, e.db, sweepBatchLimit)
	if err != nil {
		e.countError("issue")
		return fmt.Errorf("issue: list billable subscriptions: %w", err)
	}

	var errs []error
	horizon := now.AddDate(0, 0, policy.LeadDays)
	for i := range subs {
		sub := &subs[i]
		if err := e.issueForVenue(ctx, now, horizon, policy, sub); err != nil {
			e.countError("issue")
			e.log.Warn("invoice issuance failed for venue",
				zap.String("venue_id", sub.VenueID.String()),
				zap.Error(err),
			)
			errs = append(errs, fmt.Errorf("issue venue %s: %w", sub.VenueID, err))
		}
	}
	return errors.Join(errs...)
}

func (e *Engine) issueForVenue(ctx context.Context, now, horizon time.Time, policy config.BillingPolicy, sub *subscriptiondomain.Subscription) error {
	invoices, err := e.invoiceRepo.ListByVenue(ctx, e.db, sub.VenueID)
	if err != nil {
		return err
	}

	// ListByVenue orders by period_start descending. An OPEN latest invoice
	// without a provider invoice is a mint that failed on an earlier tick:
	// reissue its period so CreateDraftOrOpenInvoice retries the provider.
	if len(invoices) > 0 {
		latest := &invoices[0]
		if latest.Status == invoicedomain.InvoiceStatusOpen && latest.ProviderInvoiceID == nil {
			return e.issuePeriod(ctx, sub.VenueID, latest.PeriodStart, latest.PeriodEnd, latest.DueAt, latest.Amount, latest.Currency)
		}
	}

	periodStart := e.nextPeriodStart(now, invoices, sub)
	if periodStart.After(horizon) {
		return nil
	}
	periodEnd := periodStart.AddDate(0, policy.PeriodMonths, 0)
	dueAt := periodStart.AddDate(0, 0, policy.DueDays)

	amount := policy.DefaultAmount
	currency := policy.DefaultCurrency
	pricing, err := e.settingsRepo.ResolveForVenue(ctx, e.db, sub.VenueID, periodStart)
	if err != nil {
		return err
	}
	if pricing != nil {
		amount = pricing.Amount
		currency = pricing.Currency
	}

	return e.issuePeriod(ctx, sub.VenueID, periodStart, periodEnd, dueAt, amount, currency)
}

func (e *Engine) issuePeriod(ctx context.Context, venueID snowflake.ID, periodStart, periodEnd, dueAt time.Time, amount int64, currency string) error {
	invoice, err := e.billing.CreateDraftOrOpenInvoice(ctx, paymentservice.CreateDraftOrOpenInvoiceRequest{
		VenueID:     venueID,
		PeriodStart: periodStart,
		PeriodEnd:   periodEnd,
		DueAt:       dueAt,
		Amount:      amount,
		Currency:    currency,
		Description: fmt.Sprintf("Platform subscription %s", periodStart.Format("2006-01")),
		Actor:       auditdomain.ActorSystem,
	})
	if err != nil {
		return err
	}
	e.countStep("issue")
	e.log.Debug("invoice issued",
		zap.String("venue_id", venueID.String()),
		zap.String("invoice_id", invoice.ID.String()),
		zap.Time("period_start", periodStart),
	)
	return nil
}

// nextPeriodStart anchors the billing schedule on the latest existing invoice,
// falling back to the trial end for trialing venues and to the paid start (or
// now) for active ones.
func (e *Engine) nextPeriodStart(now time.Time, invoices []invoicedomain.Invoice, sub *subscriptiondomain.Subscription) time.Time {
	if len(invoices) > 0 {
		return invoices[0].PeriodEnd
	}
	if sub.Status == subscriptiondomain.SubscriptionStatusTrial && sub.TrialEndsAt != nil {
		return truncateToDay(*sub.TrialEndsAt)
	}
	if sub.PaidStartAt != nil {
		return truncateToDay(*sub.PaidStartAt)
	}
	return truncateToDay(now)
}

// sendReminders records and emits an UPCOMING_DUE notification for every OPEN
// invoice due inside the reminder window. The (invoice, kind) uniqueness in
// the notification store is what makes a second tick inside the window silent.
func (e *Engine) sendReminders(ctx context.Context, now time.Time, policy config.BillingPolicy) error {
	until := now.AddDate(0, 0, policy.ReminderDays)
	invoices, err := e.invoiceRepo.ListOpenDueWithin(ctx, e.db, now, until, sweepBatchLimit)
	if err != nil {
		e.countError("remind")
		return fmt.Errorf("remind: list open invoices: %w", err)
	}

	var errs []error
	for i := range invoices {
		invoice := &invoices[i]
		inserted, err := e.notifRepo.InsertIdempotent(ctx, e.db, &notificationdomain.Notification{
			ID:        e.genID.Generate(),
			InvoiceID: invoice.ID,
			VenueID:   invoice.VenueID,
			Kind:      notificationdomain.NotificationUpcomingDue,
			SentAt:    now,
		})
		if err != nil {
			e.countError("remind")
			errs = append(errs, fmt.Errorf("remind invoice %s: %w", invoice.ID, err))
			continue
		}
		if !inserted {
			continue
		}
		e.countStep("remind")
		e.log.Info("upcoming due reminder sent",
			zap.String("venue_id", invoice.VenueID.String()),
			zap.String("invoice_id", invoice.ID.String()),
			zap.Time("due_at", invoice.DueAt),
		)
		e.writeAuditLog(ctx, invoice.VenueID, "notification.upcoming_due", map[string]any{
			"invoice_id": invoice.ID.String(),
			"due_at":     invoice.DueAt.UTC().Format(time.RFC3339),
		})
	}
	return errors.Join(errs...)
}

// expireToPastDue marks overdue OPEN invoices PAST_DUE and downgrades the
// venue's subscription only from ACTIVE or TRIAL. CANCELED and
// SUSPENDED_BY_PLATFORM subscriptions keep their status while the invoice
// still moves. A past-due warning rides the same per-invoice notification
// dedup as the reminder step.
func (e *Engine) expireToPastDue(ctx context.Context, now time.Time) error {
	overdue, err := e.invoiceRepo.ListOverdue(ctx, e.db, now, sweepBatchLimit)
	if err != nil {
		e.countError("expire")
		return fmt.Errorf("expire: list overdue invoices: %w", err)
	}

	var errs []error
	for i := range overdue {
		item := &overdue[i]
		changed, err := e.invoiceRepo.MarkPastDue(ctx, e.db, item.ID, now)
		if err != nil {
			e.countError("expire")
			errs = append(errs, fmt.Errorf("expire invoice %s: %w", item.ID, err))
			continue
		}
		if !changed {
			continue
		}
		e.countStep("expire")

		downgraded, err := e.subRepo.TransitionStatus(ctx, e.db, item.VenueID,
			subscriptiondomain.SubscriptionStatusPastDue,
			[]subscriptiondomain.SubscriptionStatus{
				subscriptiondomain.SubscriptionStatusActive,
				subscriptiondomain.SubscriptionStatusTrial,
			}, now)
		if err != nil {
			e.countError("expire")
			errs = append(errs, fmt.Errorf("expire venue %s: %w", item.VenueID, err))
			continue
		}
		e.log.Info("invoice past due",
			zap.String("venue_id", item.VenueID.String()),
			zap.String("invoice_id", item.ID.String()),
			zap.Bool("subscription_downgraded", downgraded),
		)
		e.writeAuditLog(ctx, item.VenueID, "invoice.past_due", map[string]any{
			"invoice_id":               item.ID.String(),
			"due_at":                   item.DueAt.UTC().Format(time.RFC3339),
			"subscription_downgraded":  downgraded,
			"subscription_status_seen": item.SubscriptionStatus,
		})

		sent, err := e.notifRepo.InsertIdempotent(ctx, e.db, &notificationdomain.Notification{
			ID:        e.genID.Generate(),
			InvoiceID: item.ID,
			VenueID:   item.VenueID,
			Kind:      notificationdomain.NotificationPastDueWarning,
			SentAt:    now,
		})
		if err != nil {
			e.countError("expire")
			errs = append(errs, fmt.Errorf("expire warning %s: %w", item.ID, err))
			continue
		}
		if sent {
			e.writeAuditLog(ctx, item.VenueID, "notification.past_due_warning", map[string]any{
				"invoice_id": item.ID.String(),
			})
		}
	}
	return errors.Join(errs...)
}

// suspendAfterGrace suspends venues whose PAST_DUE invoice has outlived the
// grace window. The PAST_DUE-only transition guard leaves CANCELED and
// already-suspended venues alone.
func (e *Engine) suspendAfterGrace(ctx context.Context, now time.Time, policy config.BillingPolicy) error {
	cutoff := now.AddDate(0, 0, -policy.GraceDays)
	invoices, err := e.invoiceRepo.ListPastDueDueBefore(ctx, e.db, cutoff, sweepBatchLimit)
	if err != nil {
		e.countError("suspend")
		return fmt.Errorf("suspend: list past due invoices: %w", err)
	}

	var errs []error
	for i := range invoices {
		invoice := &invoices[i]
		suspended, err := e.subRepo.TransitionStatus(ctx, e.db, invoice.VenueID,
			subscriptiondomain.SubscriptionStatusSuspended,
			[]subscriptiondomain.SubscriptionStatus{subscriptiondomain.SubscriptionStatusPastDue},
			now)
		if err != nil {
			e.countError("suspend")
			errs = append(errs, fmt.Errorf("suspend venue %s: %w", invoice.VenueID, err))
			continue
		}
		if !suspended {
			continue
		}
		e.countStep("suspend")
		if e.metrics != nil {
			e.metrics.Suspensions.Inc()
		}
		elapsedDays := int(now.Sub(invoice.DueAt).Hours() / 24)
		e.log.Warn("subscription suspended after grace expiry",
			zap.String("venue_id", invoice.VenueID.String()),
			zap.String("invoice_id", invoice.ID.String()),
			zap.Int("days_past_due", elapsedDays),
		)
		// Suspension is a material transition; a missing audit entry here is a
		// venue-level failure, not a warning.
		if err := e.auditSvc.AuditLog(ctx, &invoice.VenueID, auditdomain.ActorSystem,
			"subscription.suspended", "subscription", map[string]any{
				"invoice_id":    invoice.ID.String(),
				"due_at":        invoice.DueAt.UTC().Format(time.RFC3339),
				"days_past_due": elapsedDays,
			}); err != nil {
			errs = append(errs, fmt.Errorf("suspend venue %s audit: %w", invoice.VenueID, err))
		}
	}
	return errors.Join(errs...)
}

func (e *Engine) countStep(step string) {
	if e.metrics == nil {
		return
	}
	e.metrics.ReconcileStep.WithLabelValues(step).Inc()
}

func (e *Engine) countError(step string) {
	if e.metrics == nil {
		return
	}
	e.metrics.ReconcileErrors.WithLabelValues(step).Inc()
}

func (e *Engine) writeAuditLog(ctx context.Context, venueID snowflake.ID, action string, metadata map[string]any) {
	if err := e.auditSvc.AuditLog(ctx, &venueID, auditdomain.ActorSystem, action, "invoice", metadata); err != nil {
		e.log.Warn("failed to write reconcile audit log", zap.String("action", action), zap.Error(err))
	}
}

func truncateToDay(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
