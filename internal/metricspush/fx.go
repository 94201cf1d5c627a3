package metricspush

import (
	"context"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/satgate/satgate/internal/config"
)

var registerOnce sync.Once

var Module = fx.Module("metrics.push",
	fx.Provide(func() *prometheus.Registry {
		return prometheus.NewRegistry()
	}),
	fx.Provide(NewPusher),
	fx.Invoke(Register),
)

// Register wires the settlement recorder and, when a push target is
// configured, starts the periodic push loop. The recorder is always
// live so /metrics carries the totals even without a push target.
func Register(lc fx.Lifecycle, cfg config.Config, registry *prometheus.Registry, pusher Pusher, logger *zap.Logger) {
	if logger == nil {
		logger = zap.NewNop()
	}

	registerOnce.Do(func() {
		setRecorder(newRecorder(newMetrics(registry, prometheus.DefaultRegisterer)))
	})

	if pusher == nil {
		return
	}

	interval := time.Duration(cfg.MetricsPush.IntervalSeconds) * time.Second
	if interval <= 0 {
		interval = time.Minute
	}

	ctx, cancel := context.WithCancel(context.Background())
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			logger.Info("starting settlement metrics push", zap.Duration("interval", interval))
			go func() {
				ticker := time.NewTicker(interval)
				defer ticker.Stop()

				if err := pusher.Push(ctx, registry); err != nil {
					logger.Error("initial metrics push failed", zap.Error(err))
				}

				for {
					select {
					case <-ticker.C:
						if err := pusher.Push(ctx, registry); err != nil {
							logger.Error("metrics push failed", zap.Error(err))
						}
					case <-ctx.Done():
						return
					}
				}
			}()
			return nil
		},
		OnStop: func(context.Context) error {
			cancel()
			return nil
		},
	})
}
