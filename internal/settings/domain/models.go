// Package domain contains the platform subscription pricing schedule.
package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

// PricingSetting is one entry of the pricing schedule. A nil VenueID row is
// the platform default; venue rows override it. The row with the latest
// effective_from not after the requested date wins.
type PricingSetting struct {
	ID            snowflake.ID  `gorm:"primaryKey"`
	VenueID       *snowflake.ID `gorm:"index"`
	EffectiveFrom time.Time     `gorm:"not null;index"`
	Amount        int64         `gorm:"not null"`
	Currency      string        `gorm:"type:text;not null"`
	TrialDays     *int          `gorm:""`
	CreatedAt     time.Time     `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (PricingSetting) TableName() string { return "platform_pricing_settings" }

type Repository interface {
	// ResolveForVenue returns the pricing effective for the venue at the given
	// date: the venue-specific row if any, else the platform default, else nil.
	ResolveForVenue(ctx context.Context, db *gorm.DB, venueID snowflake.ID, at time.Time) (*PricingSetting, error)

	Insert(ctx context.Context, db *gorm.DB, setting *PricingSetting) error
}
