package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/tapmenu/platform/internal/settings/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) ResolveForVenue(ctx context.Context, db *gorm.DB, venueID snowflake.ID, at time.Time) (*domain.PricingSetting, error) {
	var item domain.PricingSetting
	err := db.WithContext(ctx).Raw(
		`SELECT * FROM platform_pricing_settings
		 WHERE venue_id = ? AND effective_from <= ?
		 ORDER BY effective_from DESC
		 LIMIT 1`,
		venueID,
		at,
	).Scan(&item).Error
	if err != nil {
		return nil, err
	}
	if item.ID != 0 {
		return &item, nil
	}

	err = db.WithContext(ctx).Raw(
		`SELECT * FROM platform_pricing_settings
		 WHERE venue_id IS NULL AND effective_from <= ?
		 ORDER BY effective_from DESC
		 LIMIT 1`,
		at,
	).Scan(&item).Error
	if err != nil {
		return nil, err
	}
	if item.ID == 0 {
		return nil, nil
	}
	return &item, nil
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, setting *domain.PricingSetting) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO platform_pricing_settings (id, venue_id, effective_from, amount, currency, trial_days, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		setting.ID,
		setting.VenueID,
		setting.EffectiveFrom,
		setting.Amount,
		setting.Currency,
		setting.TrialDays,
		setting.CreatedAt,
	).Error
}
