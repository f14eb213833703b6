package app

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"go.uber.org/fx"

	"github.com/fanplatform/subscription-service/config"
	"github.com/fanplatform/subscription-service/internal/domain"
	"github.com/fanplatform/subscription-service/internal/domain/subscription"
	"github.com/fanplatform/subscription-service/internal/domain/subscription/deps"
	"github.com/fanplatform/subscription-service/internal/infrastructure/database"
	"github.com/fanplatform/subscription-service/internal/infrastructure/grpc"
	httpfx "github.com/fanplatform/subscription-service/internal/infrastructure/http"
	"github.com/fanplatform/subscription-service/internal/infrastructure/logger"
	"github.com/fanplatform/subscription-service/internal/infrastructure/metrics"
)

const purgeTimeout = 30 * time.Minute

func CreateApp() fx.Option {
	return fx.Options(
		fx.Provide(config.Out),

		logger.Module,
		database.Module,
		metrics.Module,
		httpfx.Module,
		grpc.Module,

		domain.Module,
	)
}

// CreatePurgeApp runs a single retention sweep and shuts down
func CreatePurgeApp() fx.Option {
	return fx.Options(
		fx.Provide(config.Out),

		logger.Module,
		database.Module,
		metrics.Module,

		subscription.CoreModule,

		fx.Invoke(runPurgeOnce),
	)
}

func runPurgeOnce(lc fx.Lifecycle, shutdowner fx.Shutdowner, purger deps.PurgeUseCase, log zerolog.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), purgeTimeout)

	lc.Append(fx.Hook{
		OnStart: func(_ context.Context) error {
			go func() {
				defer cancel()

				report, err := purger.Purge(ctx)
				if err != nil {
					log.Error().Err(err).Int64("deleted", report.Total()).Msg("purge failed")
					_ = shutdowner.Shutdown(fx.ExitCode(1))
					return
				}

				event := log.Info().Time("cutoff", report.Cutoff).Int64("total", report.Total())
				for kind, n := range report.Deleted {
					event = event.Int64(string(kind), n)
				}
				event.Msg("purge completed")

				_ = shutdowner.Shutdown()
			}()
			return nil
		},
		OnStop: func(_ context.Context) error {
			cancel()
			return nil
		},
	})
}
