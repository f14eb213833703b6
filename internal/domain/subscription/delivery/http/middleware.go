package http

import (
	"strconv"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/rs/zerolog"
	"github.com/valyala/fasthttp"
	"golang.org/x/time/rate"

	"github.com/fanplatform/subscription-service/internal/domain/subscription/consts"
	pkgerrors "github.com/fanplatform/subscription-service/pkg/errors"
	"github.com/fanplatform/subscription-service/pkg/httputil"
)

// Authenticate resolves the caller from the header set by the auth gateway
func Authenticate(mapper *pkgerrors.Mapper) httputil.Middleware {
	return func(next fasthttp.RequestHandler) fasthttp.RequestHandler {
		return func(ctx *fasthttp.RequestCtx) {
			raw := string(ctx.Request.Header.Peek(consts.HeaderUserID))
			userID, err := strconv.ParseInt(raw, 10, 64)
			if raw == "" || err != nil || userID <= 0 {
				mapper.WriteError(ctx, pkgerrors.NewUnauthorizedError("missing or invalid "+consts.HeaderUserID))
				return
			}

			ctx.SetUserValue(consts.UserValueUserID, userID)
			next(ctx)
		}
	}
}

// UserRateLimiter keeps one token bucket per user. Idle buckets are evicted.
type UserRateLimiter struct {
	limiters *expirable.LRU[int64, *rate.Limiter]
	rps      rate.Limit
	burst    int
	refill   time.Duration
	mapper   *pkgerrors.Mapper
	logger   zerolog.Logger
}

func NewUserRateLimiter(rps float64, burst int, mapper *pkgerrors.Mapper, logger zerolog.Logger) *UserRateLimiter {
	return &UserRateLimiter{
		limiters: expirable.NewLRU[int64, *rate.Limiter](10_000, nil, 10*time.Minute),
		rps:      rate.Limit(rps),
		burst:    burst,
		refill:   time.Duration(float64(time.Second) / rps),
		mapper:   mapper,
		logger:   logger,
	}
}

func (l *UserRateLimiter) limiter(userID int64) *rate.Limiter {
	if lim, ok := l.limiters.Get(userID); ok {
		return lim
	}
	lim := rate.NewLimiter(l.rps, l.burst)
	// a racing request may replace the bucket, which only grants it a fresh burst
	l.limiters.Add(userID, lim)
	return lim
}

// Middleware must run after Authenticate
func (l *UserRateLimiter) Middleware(next fasthttp.RequestHandler) fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		userID, _ := ctx.UserValue(consts.UserValueUserID).(int64)

		if !l.limiter(userID).Allow() {
			l.logger.Warn().Int64("user_id", userID).Msg("rate limit exceeded")
			l.mapper.WriteError(ctx, pkgerrors.NewTooManyRequestsError("too many requests").WithRetryAfter(l.refill))
			return
		}

		next(ctx)
	}
}
