package migration

import (
	auditdomain "github.com/tapmenu/platform/internal/audit/domain"
	"github.com/tapmenu/platform/internal/config"
	invoicedomain "github.com/tapmenu/platform/internal/invoice/domain"
	notificationdomain "github.com/tapmenu/platform/internal/notification/domain"
	paymentdomain "github.com/tapmenu/platform/internal/payment/domain"
	settingsdomain "github.com/tapmenu/platform/internal/settings/domain"
	subscriptiondomain "github.com/tapmenu/platform/internal/subscription/domain"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

var Module = fx.Module("migrations",
	fx.Invoke(func(conn *gorm.DB, cfg config.Config) error {
		// Versioned SQL migrations are written for postgres. Other dialects
		// (sqlite in local development) fall back to schema auto-migration.
		if cfg.DBType != "postgres" {
			return conn.AutoMigrate(
				&subscriptiondomain.Subscription{},
				&invoicedomain.Invoice{},
				&paymentdomain.EventRecord{},
				&notificationdomain.Notification{},
				&settingsdomain.PricingSetting{},
				&auditdomain.AuditLog{},
			)
		}

		sqlDB, err := conn.DB()
		if err != nil {
			return err
		}
		return RunMigrations(sqlDB)
	}),
)
