package domain

import (
	"context"

	"gorm.io/gorm"
)

type Repository interface {
	// InsertEventIdempotent returns true when this call inserted the row,
	// false when (provider, provider_event_id) already existed. Duplicate is
	// a normal outcome under at-least-once delivery, never an error.
	InsertEventIdempotent(ctx context.Context, db *gorm.DB, event *EventRecord) (bool, error)

	FindEvent(ctx context.Context, db *gorm.DB, provider string, providerEventID string) (*EventRecord, error)
}
