package reconcile

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Runner drives the engine on a fixed interval. There is no distributed
// locking between replicas: every step is idempotent against the stores, so
// overlapping ticks only cost redundant reads.
type Runner struct {
	engine   *Engine
	log      *zap.Logger
	interval time.Duration

	cancel context.CancelFunc
	done   chan struct{}
}

func NewRunner(engine *Engine, log *zap.Logger, interval time.Duration) *Runner {
	return &Runner{
		engine:   engine,
		log:      log.Named("reconcile.runner"),
		interval: interval,
	}
}

func (r *Runner) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	r.cancel = cancel
	r.done = make(chan struct{})

	go func() {
		defer close(r.done)
		ticker := time.NewTicker(r.interval)
		defer ticker.Stop()

		r.log.Info("reconciliation runner started", zap.Duration("interval", r.interval))
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := r.engine.RunOnce(ctx); err != nil {
					r.log.Warn("reconciliation run reported failures", zap.Error(err))
				}
			}
		}
	}()
}

func (r *Runner) Stop() {
	if r.cancel == nil {
		return
	}
	r.cancel()
	<-r.done
	r.log.Info("reconciliation runner stopped")
}
