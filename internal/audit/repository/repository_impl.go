package repository

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/tapmenu/platform/internal/audit/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, entry *domain.AuditLog) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO audit_logs (id, venue_id, actor, action, target_type, metadata, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		entry.ID,
		entry.VenueID,
		entry.Actor,
		entry.Action,
		entry.TargetType,
		entry.Metadata,
		entry.CreatedAt,
	).Error
}

func (r *repo) ListByVenue(ctx context.Context, db *gorm.DB, venueID snowflake.ID, limit int) ([]domain.AuditLog, error) {
	var items []domain.AuditLog
	err := db.WithContext(ctx).Raw(
		`SELECT * FROM audit_logs
		 WHERE venue_id = ?
		 ORDER BY created_at DESC
		 LIMIT ?`,
		venueID,
		limit,
	).Scan(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}
