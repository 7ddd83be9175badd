// Package domain contains persistence models for venue subscriptions.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// SubscriptionStatus represents lifecycle states for a venue subscription.
type SubscriptionStatus string

const (
	SubscriptionStatusTrial     SubscriptionStatus = "TRIAL"
	SubscriptionStatusActive    SubscriptionStatus = "ACTIVE"
	SubscriptionStatusPastDue   SubscriptionStatus = "PAST_DUE"
	SubscriptionStatusCanceled  SubscriptionStatus = "CANCELED"
	SubscriptionStatusSuspended SubscriptionStatus = "SUSPENDED_BY_PLATFORM"
)

// Sticky reports whether the overdue-invoice pathway must leave the
// subscription untouched. CANCELED and SUSPENDED_BY_PLATFORM are never
// downgraded by reconciliation.
func (s SubscriptionStatus) Sticky() bool {
	return s == SubscriptionStatusCanceled || s == SubscriptionStatusSuspended
}

// Subscription is the per-venue platform subscription state.
type Subscription struct {
	ID          snowflake.ID       `gorm:"primaryKey"`
	VenueID     snowflake.ID       `gorm:"not null;uniqueIndex"`
	Status      SubscriptionStatus `gorm:"type:text;not null"`
	TrialEndsAt *time.Time         `gorm:""`
	PaidStartAt *time.Time         `gorm:""`
	CreatedAt   time.Time          `gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt   time.Time          `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (Subscription) TableName() string { return "venue_subscriptions" }
