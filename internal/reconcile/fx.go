package reconcile

import (
	"context"

	"github.com/tapmenu/platform/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("reconcile",
	fx.Provide(NewEngine),
	fx.Invoke(registerRunner),
)

func registerRunner(lc fx.Lifecycle, engine *Engine, log *zap.Logger, cfg config.Config) {
	if cfg.ReconcileInterval <= 0 {
		log.Named("reconcile").Info("periodic reconciliation disabled")
		return
	}
	runner := NewRunner(engine, log, cfg.ReconcileInterval)
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			runner.Start()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			runner.Stop()
			return nil
		},
	})
}
