package repository

import (
	"context"

	"github.com/tapmenu/platform/internal/notification/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) InsertIdempotent(ctx context.Context, db *gorm.DB, notification *domain.Notification) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`INSERT INTO billing_notifications (id, invoice_id, venue_id, kind, sent_at)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT (invoice_id, kind) DO NOTHING`,
		notification.ID,
		notification.InvoiceID,
		notification.VenueID,
		notification.Kind,
		notification.SentAt,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}
