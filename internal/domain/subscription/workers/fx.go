// Package workers contains background jobs of the subscription domain
package workers

import (
	"context"

	"github.com/rs/zerolog"
	"go.uber.org/fx"

	"github.com/fanplatform/subscription-service/config"
	"github.com/fanplatform/subscription-service/internal/domain/subscription/deps"
)

// Module registers the purge scheduler for fx dependency injection
var Module = fx.Module("subscription-workers",
	fx.Invoke(registerPurgeScheduler),
)

func registerPurgeScheduler(
	lc fx.Lifecycle,
	cfg *config.SubscriptionConfig,
	purger deps.PurgeUseCase,
	logger zerolog.Logger,
) error {
	if !cfg.PurgeEnabled {
		logger.Info().Msg("scheduled purge disabled")
		return nil
	}

	scheduler, err := NewPurgeScheduler(purger, cfg.PurgeSchedule, logger)
	if err != nil {
		return err
	}

	lc.Append(fx.Hook{
		OnStart: func(_ context.Context) error {
			scheduler.Start()
			return nil
		},
		OnStop: func(_ context.Context) error {
			scheduler.Stop()
			return nil
		},
	})

	return nil
}
