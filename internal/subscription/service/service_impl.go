package service

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	auditdomain "github.com/tapmenu/platform/internal/audit/domain"
	"github.com/tapmenu/platform/internal/subscription/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB       *gorm.DB
	Log      *zap.Logger
	Repo     domain.Repository
	AuditSvc auditdomain.Service
}

// Service owns venue subscription state and implements the settlement hook
// consumed by the billing service.
type Service struct {
	db       *gorm.DB
	log      *zap.Logger
	repo     domain.Repository
	auditSvc auditdomain.Service
}

func NewService(p Params) *Service {
	return &Service{
		db:       p.DB,
		log:      p.Log.Named("subscription.service"),
		repo:     p.Repo,
		auditSvc: p.AuditSvc,
	}
}

// ProvideHook exposes the service as the billing settlement hook.
func ProvideHook(s *Service) domain.Hook {
	return s
}

func (s *Service) GetByVenue(ctx context.Context, venueID snowflake.ID) (*domain.Subscription, error) {
	sub, err := s.repo.FindByVenue(ctx, s.db, venueID)
	if err != nil {
		return nil, err
	}
	if sub == nil {
		return nil, domain.ErrSubscriptionNotFound
	}
	return sub, nil
}

// OnInvoicePaid moves the venue's subscription to ACTIVE after settlement.
// A paid invoice reactivates PAST_DUE and even SUSPENDED_BY_PLATFORM venues;
// only CANCELED stays as the venue chose to leave.
func (s *Service) OnInvoicePaid(ctx context.Context, venueID snowflake.ID, paidAt time.Time) error {
	sub, err := s.repo.FindByVenue(ctx, s.db, venueID)
	if err != nil {
		return err
	}
	if sub == nil {
		s.log.Warn("settlement for venue without subscription", zap.String("venue_id", venueID.String()))
		return nil
	}
	if sub.Status == domain.SubscriptionStatusCanceled {
		s.log.Info("settlement for canceled subscription, leaving status",
			zap.String("venue_id", venueID.String()))
		return nil
	}

	changed, err := s.repo.MarkActivePaid(ctx, s.db, venueID, paidAt)
	if err != nil {
		return err
	}
	if changed && s.auditSvc != nil {
		venue := venueID
		if err := s.auditSvc.AuditLog(ctx, &venue, auditdomain.ActorSystem, "subscription.activated", "subscription", map[string]any{
			"previous_status": string(sub.Status),
			"paid_at":         paidAt.UTC().Format(time.RFC3339),
		}); err != nil {
			s.log.Warn("failed to write subscription audit log", zap.Error(err))
		}
	}
	return nil
}

var _ domain.Hook = (*Service)(nil)
