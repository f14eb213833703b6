package http

import (
	"github.com/fasthttp/router"
	"github.com/rs/zerolog"

	pkgerrors "github.com/fanplatform/subscription-service/pkg/errors"
	"github.com/fanplatform/subscription-service/pkg/httputil"
)

// Router registers subscription HTTP routes
type Router struct {
	handler *SubscriptionHandler
	limiter *UserRateLimiter
	mapper  *pkgerrors.Mapper
	logger  zerolog.Logger
}

func NewRouter(handler *SubscriptionHandler, limiter *UserRateLimiter, mapper *pkgerrors.Mapper, logger zerolog.Logger) *Router {
	return &Router{
		handler: handler,
		limiter: limiter,
		mapper:  mapper,
		logger:  logger,
	}
}

// RegisterRoutes registers subscription routes on the router
func (r *Router) RegisterRoutes(rt *router.Router) {
	api := httputil.NewMiddlewareGroup(rt.Group("/api/v1/subscriptions/{kind}"))

	api.GET("/targets/{target_id}/count", r.handler.Count)

	authed := api.With(Authenticate(r.mapper))
	authed.GET("/targets/{target_id}", r.handler.GetSubscription)
	authed.GET("/current", r.handler.Current)
	authed.GET("/mine", r.handler.Mine)

	mutating := authed.With(r.limiter.Middleware)
	mutating.POST("/targets/{target_id}", r.handler.Subscribe)
	mutating.DELETE("/targets/{target_id}", r.handler.Unsubscribe)

	r.logger.Info().Msg("Subscription routes registered")
}
