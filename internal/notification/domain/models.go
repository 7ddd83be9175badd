// Package domain contains the billing notification dedup records.
package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

// NotificationKind identifies the notification deduplicated per invoice.
type NotificationKind string

const (
	NotificationUpcomingDue    NotificationKind = "UPCOMING_DUE"
	NotificationPastDueWarning NotificationKind = "PAST_DUE_WARNING"
)

// Notification records that a notification of a given kind was sent for an
// invoice. Uniqueness on (invoice_id, kind) makes the reconciliation tick
// re-runnable without re-notifying.
type Notification struct {
	ID        snowflake.ID     `gorm:"primaryKey"`
	InvoiceID snowflake.ID     `gorm:"not null;uniqueIndex:ux_notification_invoice_kind"`
	VenueID   snowflake.ID     `gorm:"not null;index"`
	Kind      NotificationKind `gorm:"type:text;not null;uniqueIndex:ux_notification_invoice_kind"`
	SentAt    time.Time        `gorm:"not null"`
}

// TableName sets the database table name.
func (Notification) TableName() string { return "billing_notifications" }

type Repository interface {
	// InsertIdempotent records the notification unless (invoice, kind) already
	// exists; returns whether this call inserted it.
	InsertIdempotent(ctx context.Context, db *gorm.DB, notification *Notification) (bool, error)
}
