// Package domain contains the append-only audit log contract.
package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	ActorSystem = "system"
)

// AuditLog is one append-only record of a material state change.
type AuditLog struct {
	ID         snowflake.ID   `gorm:"primaryKey"`
	VenueID    *snowflake.ID  `gorm:"index"`
	Actor      string         `gorm:"type:text;not null"`
	Action     string         `gorm:"type:text;not null;index"`
	TargetType string         `gorm:"type:text;not null"`
	Metadata   datatypes.JSON `gorm:"type:jsonb"`
	CreatedAt  time.Time      `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (AuditLog) TableName() string { return "audit_logs" }

var ErrInvalidAction = errors.New("invalid_audit_action")

type Service interface {
	AuditLog(ctx context.Context, venueID *snowflake.ID, actor string, action string, targetType string, metadata map[string]any) error
	ListByVenue(ctx context.Context, venueID snowflake.ID, limit int) ([]AuditLog, error)
}

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, entry *AuditLog) error
	ListByVenue(ctx context.Context, db *gorm.DB, venueID snowflake.ID, limit int) ([]AuditLog, error)
}
