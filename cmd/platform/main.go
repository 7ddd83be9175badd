package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/tapmenu/platform/internal/audit"
	"github.com/tapmenu/platform/internal/clock"
	"github.com/tapmenu/platform/internal/config"
	"github.com/tapmenu/platform/internal/invoice"
	"github.com/tapmenu/platform/internal/metrics"
	"github.com/tapmenu/platform/internal/migration"
	"github.com/tapmenu/platform/internal/notification"
	"github.com/tapmenu/platform/internal/payment"
	"github.com/tapmenu/platform/internal/reconcile"
	"github.com/tapmenu/platform/internal/server"
	"github.com/tapmenu/platform/internal/settings"
	"github.com/tapmenu/platform/internal/subscription"
	"github.com/tapmenu/platform/pkg/db"
	"github.com/tapmenu/platform/pkg/log"
	"go.uber.org/fx"
)

func main() {
	app := fx.New(
		// Core infrastructure
		config.Module,
		log.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		clock.Module,
		metrics.Module,
		migration.Module,

		// Billing domains
		audit.Module,
		settings.Module,
		subscription.Module,
		invoice.Module,
		notification.Module,
		payment.Module,
		reconcile.Module,

		server.Module,
	)
	app.Run()
}

func RegisterSnowflake() (*snowflake.Node, error) {
	return snowflake.NewNode(1)
}
