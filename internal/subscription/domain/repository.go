package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

var (
	ErrSubscriptionNotFound = errors.New("subscription_not_found")
	ErrInvalidStatus        = errors.New("invalid_subscription_status")
)

type Repository interface {
	FindByVenue(ctx context.Context, db *gorm.DB, venueID snowflake.ID) (*Subscription, error)

	// ListBillable returns subscriptions whose venues receive new invoices
	// (TRIAL and ACTIVE).
	ListBillable(ctx context.Context, db *gorm.DB, limit int) ([]Subscription, error)

	// TransitionStatus moves the venue's subscription to target only when its
	// current status is in allowedFrom; returns whether a row changed.
	TransitionStatus(ctx context.Context, db *gorm.DB, venueID snowflake.ID, target SubscriptionStatus, allowedFrom []SubscriptionStatus, now time.Time) (bool, error)

	// MarkActivePaid sets the subscription ACTIVE and stamps paid_start_at on
	// first settlement.
	MarkActivePaid(ctx context.Context, db *gorm.DB, venueID snowflake.ID, now time.Time) (bool, error)

	Upsert(ctx context.Context, db *gorm.DB, subscription *Subscription) error
}

// Hook is invoked by the billing service after a successful settlement.
type Hook interface {
	OnInvoicePaid(ctx context.Context, venueID snowflake.ID, paidAt time.Time) error
}
