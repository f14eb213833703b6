package http

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"go.uber.org/fx"
	"gorm.io/gorm"

	"github.com/fanplatform/subscription-service/config"
	deliveryhttp "github.com/fanplatform/subscription-service/internal/delivery/http"
	"github.com/fanplatform/subscription-service/internal/infrastructure/http/server"
	pkgerrors "github.com/fanplatform/subscription-service/pkg/errors"
)

// Module provides HTTP server for fx DI
var Module = fx.Module("http",
	fx.Provide(
		NewServerFx,
		pkgerrors.NewMapper,
	),
	fx.Invoke(RegisterHealth),
)

// NewServerFx creates HTTP server with lifecycle hooks for fx DI
func NewServerFx(
	lc fx.Lifecycle,
	serviceCfg *config.ServiceConfig,
	logger zerolog.Logger,
) *server.Server {
	srv := server.NewServer(serviceCfg.HTTPPort, serviceCfg.Name, logger)

	srv.RegisterMetrics(prometheus.DefaultGatherer)

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			return srv.Start()
		},
		OnStop: func(ctx context.Context) error {
			return srv.Shutdown(ctx)
		},
	})

	return srv
}

// RegisterHealth registers GET /health
func RegisterHealth(srv *server.Server, db *gorm.DB, logger zerolog.Logger) {
	handler := deliveryhttp.NewHealthHandler(logger, deliveryhttp.NewDatabaseChecker(db))
	srv.Router.GET("/health", handler.Handle)
}
