package http

import (
	"errors"
	"strconv"

	"github.com/rs/zerolog"
	"github.com/valyala/fasthttp"

	"github.com/fanplatform/subscription-service/internal/domain/subscription/consts"
	"github.com/fanplatform/subscription-service/internal/domain/subscription/deps"
	"github.com/fanplatform/subscription-service/internal/domain/subscription/dto"
	"github.com/fanplatform/subscription-service/internal/domain/subscription/entities"
	suberrors "github.com/fanplatform/subscription-service/internal/domain/subscription/errors"
	"github.com/fanplatform/subscription-service/internal/infrastructure/metrics"
	pkgerrors "github.com/fanplatform/subscription-service/pkg/errors"
	"github.com/fanplatform/subscription-service/pkg/httputil"
)

// SubscriptionHandler handles subscription HTTP requests
type SubscriptionHandler struct {
	useCase   deps.SubscriptionUseCase
	directory deps.TargetDirectory
	metrics   *metrics.Metrics
	mapper    *pkgerrors.Mapper
	logger    zerolog.Logger
}

func NewSubscriptionHandler(
	useCase deps.SubscriptionUseCase,
	directory deps.TargetDirectory,
	m *metrics.Metrics,
	mapper *pkgerrors.Mapper,
	logger zerolog.Logger,
) *SubscriptionHandler {
	return &SubscriptionHandler{
		useCase:   useCase,
		directory: directory,
		metrics:   m,
		mapper:    mapper,
		logger:    logger.With().Str("handler", "subscription").Logger(),
	}
}

// Subscribe handles POST /api/v1/subscriptions/{kind}/targets/{target_id}
func (h *SubscriptionHandler) Subscribe(ctx *fasthttp.RequestCtx) {
	kind, targetID, err := pathTarget(ctx)
	if err != nil {
		h.handleError(ctx, err)
		return
	}
	userID := currentUser(ctx)

	exists, err := h.directory.Exists(ctx, kind, targetID)
	if err != nil {
		h.handleError(ctx, err)
		return
	}
	if !exists {
		h.metrics.RecordSubscribe(string(kind), metrics.OutcomeTargetNotFound)
		h.handleError(ctx, suberrors.ErrTargetNotFound)
		return
	}

	sub, created, err := h.useCase.Subscribe(ctx, kind, userID, targetID)
	if err != nil {
		h.handleError(ctx, err)
		return
	}

	status := fasthttp.StatusOK
	if created {
		status = fasthttp.StatusCreated
	}
	httputil.WriteResponseWithStatus(ctx, dto.NewSubscriptionResponse(sub, h.useCase.Cooldown()), status)
}

// Unsubscribe handles DELETE /api/v1/subscriptions/{kind}/targets/{target_id}
func (h *SubscriptionHandler) Unsubscribe(ctx *fasthttp.RequestCtx) {
	kind, targetID, err := pathTarget(ctx)
	if err != nil {
		h.handleError(ctx, err)
		return
	}

	if err := h.useCase.Unsubscribe(ctx, kind, currentUser(ctx), targetID); err != nil {
		h.handleError(ctx, err)
		return
	}

	httputil.WriteNoContent(ctx)
}

// GetSubscription handles GET /api/v1/subscriptions/{kind}/targets/{target_id}
func (h *SubscriptionHandler) GetSubscription(ctx *fasthttp.RequestCtx) {
	kind, targetID, err := pathTarget(ctx)
	if err != nil {
		h.handleError(ctx, err)
		return
	}

	sub, err := h.useCase.GetSubscription(ctx, kind, currentUser(ctx), targetID)
	if err != nil {
		h.handleError(ctx, err)
		return
	}

	httputil.WriteResponse(ctx, dto.NewSubscriptionResponse(sub, h.useCase.Cooldown()))
}

// Count handles GET /api/v1/subscriptions/{kind}/targets/{target_id}/count
func (h *SubscriptionHandler) Count(ctx *fasthttp.RequestCtx) {
	kind, targetID, err := pathTarget(ctx)
	if err != nil {
		h.handleError(ctx, err)
		return
	}

	count, err := h.useCase.Count(ctx, kind, targetID)
	if err != nil {
		h.handleError(ctx, err)
		return
	}

	httputil.WriteResponse(ctx, dto.CountResponse{
		Kind:     string(kind),
		TargetID: targetID,
		Count:    count,
	})
}

// Current handles GET /api/v1/subscriptions/{kind}/current
func (h *SubscriptionHandler) Current(ctx *fasthttp.RequestCtx) {
	kind, err := pathKind(ctx)
	if err != nil {
		h.handleError(ctx, err)
		return
	}

	sub, err := h.useCase.GetCurrent(ctx, kind, currentUser(ctx))
	if err != nil {
		h.handleError(ctx, err)
		return
	}

	httputil.WriteResponse(ctx, dto.NewSubscriptionResponse(sub, h.useCase.Cooldown()))
}

// Mine handles GET /api/v1/subscriptions/{kind}/mine
func (h *SubscriptionHandler) Mine(ctx *fasthttp.RequestCtx) {
	kind, err := pathKind(ctx)
	if err != nil {
		h.handleError(ctx, err)
		return
	}

	subs, err := h.useCase.ListUserSubscriptions(ctx, kind, currentUser(ctx))
	if err != nil {
		h.handleError(ctx, err)
		return
	}

	resp := make([]dto.SubscriptionResponse, 0, len(subs))
	for i := range subs {
		resp = append(resp, dto.NewSubscriptionResponse(&subs[i], h.useCase.Cooldown()))
	}
	httputil.WriteResponse(ctx, resp)
}

// handleError maps domain errors to HTTP errors and writes them
func (h *SubscriptionHandler) handleError(ctx *fasthttp.RequestCtx, err error) {
	h.mapper.WriteError(ctx, toHTTPError(err))
}

func toHTTPError(err error) error {
	switch {
	case errors.Is(err, suberrors.ErrUnknownKind),
		errors.Is(err, suberrors.ErrInvalidUserID),
		errors.Is(err, suberrors.ErrInvalidTargetID):
		return pkgerrors.NewValidationError(err.Error())
	case errors.Is(err, suberrors.ErrTargetNotFound),
		errors.Is(err, suberrors.ErrSubscriptionNotFound):
		return pkgerrors.NewNotFoundError(err.Error())
	case errors.Is(err, suberrors.ErrResubscribeTooSoon):
		remaining, _ := suberrors.RemainingCooldown(err)
		return pkgerrors.NewValidationError(suberrors.ErrResubscribeTooSoon.Error()).
			WithRetryAfter(remaining)
	case errors.Is(err, suberrors.ErrActiveTargetExists):
		return pkgerrors.NewConflictError(err.Error())
	default:
		return pkgerrors.WrapInternal("internal server error", err)
	}
}

func pathKind(ctx *fasthttp.RequestCtx) (entities.Kind, error) {
	raw, _ := ctx.UserValue(consts.UserValueKind).(string)
	return entities.ParseKind(raw)
}

func pathTarget(ctx *fasthttp.RequestCtx) (entities.Kind, int64, error) {
	kind, err := pathKind(ctx)
	if err != nil {
		return "", 0, err
	}

	raw, _ := ctx.UserValue(consts.UserValueTargetID).(string)
	targetID, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || targetID <= 0 {
		return "", 0, suberrors.ErrInvalidTargetID
	}

	return kind, targetID, nil
}

func currentUser(ctx *fasthttp.RequestCtx) int64 {
	userID, _ := ctx.UserValue(consts.UserValueUserID).(int64)
	return userID
}
