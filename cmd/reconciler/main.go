// Command reconciler runs one reconciliation tick and exits. It is meant to
// be invoked by an external scheduler (cron, systemd timer, Kubernetes
// CronJob) when the in-process runner is disabled.
package main

import (
	"context"
	"os"

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
	"github.com/tapmenu/platform/internal/settings"
	"github.com/tapmenu/platform/internal/subscription"
	"github.com/tapmenu/platform/pkg/db"
	"github.com/tapmenu/platform/pkg/log"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

func main() {
	var exitCode int

	app := fx.New(
		config.Module,
		log.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		clock.Module,
		metrics.Module,
		migration.Module,

		audit.Module,
		settings.Module,
		subscription.Module,
		invoice.Module,
		notification.Module,
		payment.Module,
		fx.Provide(reconcile.NewEngine),

		fx.Invoke(func(engine *reconcile.Engine, logger *zap.Logger, shutdowner fx.Shutdowner) {
			go func() {
				if err := engine.RunOnce(context.Background()); err != nil {
					logger.Error("reconciliation run failed", zap.Error(err))
					exitCode = 1
				}
				_ = shutdowner.Shutdown()
			}()
		}),
	)

	app.Run()
	os.Exit(exitCode)
}

func RegisterSnowflake() (*snowflake.Node, error) {
	return snowflake.NewNode(1)
}
