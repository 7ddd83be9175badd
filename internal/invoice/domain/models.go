// Package domain contains persistence models for platform invoices.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

// InvoiceStatus represents invoice lifecycle states.
type InvoiceStatus string

const (
	InvoiceStatusOpen     InvoiceStatus = "OPEN"
	InvoiceStatusPastDue  InvoiceStatus = "PAST_DUE"
	InvoiceStatusPaid     InvoiceStatus = "PAID"
	InvoiceStatusCanceled InvoiceStatus = "CANCELED"
)

// Terminal reports whether no further status transition is allowed.
func (s InvoiceStatus) Terminal() bool {
	return s == InvoiceStatusPaid || s == InvoiceStatusCanceled
}

// Invoice is one platform-subscription invoice covering a half-open billing
// period. At most one row exists per (venue, period_start, period_end).
type Invoice struct {
	ID                snowflake.ID   `gorm:"primaryKey"`
	VenueID           snowflake.ID   `gorm:"not null;index;uniqueIndex:ux_invoice_venue_period"`
	PeriodStart       time.Time      `gorm:"not null;uniqueIndex:ux_invoice_venue_period"`
	PeriodEnd         time.Time      `gorm:"not null;uniqueIndex:ux_invoice_venue_period"`
	DueAt             time.Time      `gorm:"not null;index"`
	Amount            int64          `gorm:"not null"`
	Currency          string         `gorm:"type:text;not null"`
	Description       string         `gorm:"type:text"`
	Provider          string         `gorm:"type:text;not null"`
	ProviderInvoiceID *string        `gorm:"type:text;index"`
	PaymentURL        *string        `gorm:"type:text"`
	RawPayload        datatypes.JSON `gorm:"type:jsonb"`
	Status            InvoiceStatus  `gorm:"type:text;not null;default:'OPEN'"`
	PaidAt            *time.Time     `gorm:""`
	PaidBy            *string        `gorm:"type:text"`
	CreatedBy         *string        `gorm:"type:text"`
	CreatedAt         time.Time      `gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt         time.Time      `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (Invoice) TableName() string { return "platform_invoices" }
