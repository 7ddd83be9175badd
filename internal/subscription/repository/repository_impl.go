package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/tapmenu/platform/internal/subscription/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) FindByVenue(ctx context.Context, db *gorm.DB, venueID snowflake.ID) (*domain.Subscription, error) {
	var item domain.Subscription
	err := db.WithContext(ctx).Raw(
		`SELECT * FROM venue_subscriptions WHERE venue_id = ? LIMIT 1`,
		venueID,
	).Scan(&item).Error
	if err != nil {
		return nil, err
	}
	if item.ID == 0 {
		return nil, nil
	}
	return &item, nil
}

func (r *repo) ListBillable(ctx context.Context, db *gorm.DB, limit int) ([]domain.Subscription, error) {
	var items []domain.Subscription
	err := db.WithContext(ctx).Raw(
		`SELECT * FROM venue_subscriptions
		 WHERE status IN (?, ?)
		 ORDER BY venue_id ASC
		 LIMIT ?`,
		domain.SubscriptionStatusTrial,
		domain.SubscriptionStatusActive,
		limit,
	).Scan(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repo) TransitionStatus(ctx context.Context, db *gorm.DB, venueID snowflake.ID, target domain.SubscriptionStatus, allowedFrom []domain.SubscriptionStatus, now time.Time) (bool, error) {
	if len(allowedFrom) == 0 {
		return false, domain.ErrInvalidStatus
	}
	res := db.WithContext(ctx).Exec(
		`UPDATE venue_subscriptions
		 SET status = ?, updated_at = ?
		 WHERE venue_id = ? AND status IN (?)`,
		target,
		now,
		venueID,
		allowedFrom,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repo) MarkActivePaid(ctx context.Context, db *gorm.DB, venueID snowflake.ID, now time.Time) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE venue_subscriptions
		 SET status = ?,
		     paid_start_at = COALESCE(paid_start_at, ?),
		     updated_at = ?
		 WHERE venue_id = ?`,
		domain.SubscriptionStatusActive,
		now,
		now,
		venueID,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repo) Upsert(ctx context.Context, db *gorm.DB, subscription *domain.Subscription) error {
	res := db.WithContext(ctx).Exec(
		`INSERT INTO venue_subscriptions (id, venue_id, status, trial_ends_at, paid_start_at, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (venue_id) DO UPDATE SET
			status = excluded.status,
			trial_ends_at = excluded.trial_ends_at,
			paid_start_at = excluded.paid_start_at,
			updated_at = excluded.updated_at`,
		subscription.ID,
		subscription.VenueID,
		subscription.Status,
		subscription.TrialEndsAt,
		subscription.PaidStartAt,
		subscription.CreatedAt,
		subscription.UpdatedAt,
	)
	return res.Error
}

var _ domain.Repository = (*repo)(nil)
