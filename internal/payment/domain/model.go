package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

// EventStatus is the normalized payment outcome carried by a provider event.
type EventStatus string

const (
	EventStatusSucceeded EventStatus = "SUCCEEDED"
	EventStatusFailed    EventStatus = "FAILED"
)

// EventRecord is the durable record of an applied payment event. Uniqueness
// on (provider, provider_event_id) is the sole duplicate-delivery defense.
type EventRecord struct {
	ID              snowflake.ID   `gorm:"primaryKey"`
	InvoiceID       snowflake.ID   `gorm:"not null;index"`
	Provider        string         `gorm:"type:text;not null;uniqueIndex:ux_payment_provider_event"`
	ProviderEventID string         `gorm:"type:text;not null;uniqueIndex:ux_payment_provider_event"`
	Amount          int64          `gorm:"not null"`
	Currency        string         `gorm:"type:text;not null"`
	Status          EventStatus    `gorm:"type:text;not null"`
	OccurredAt      time.Time      `gorm:"not null"`
	RawPayload      datatypes.JSON `gorm:"type:jsonb"`
	ReceivedAt      time.Time      `gorm:"not null"`
}

// TableName sets the database table name.
func (EventRecord) TableName() string { return "payment_events" }

// PaymentEvent is the canonical payment event parsed by providers.
type PaymentEvent struct {
	Provider          string
	ProviderEventID   string
	ProviderInvoiceID string
	Status            EventStatus
	Amount            int64
	Currency          string
	OccurredAt        time.Time
	RawPayload        []byte
}
