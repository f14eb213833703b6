package errors

import (
	"errors"
	"strconv"

	"github.com/rs/zerolog"
	"github.com/valyala/fasthttp"

	"github.com/fanplatform/subscription-service/pkg/httputil"
)

// Mapper maps transport errors to HTTP status codes
type Mapper struct {
	logger zerolog.Logger
}

// NewMapper creates a new error mapper
func NewMapper(logger zerolog.Logger) *Mapper {
	return &Mapper{logger: logger}
}

// MapErrorToHTTP maps an error to HTTP status code and message
func (m *Mapper) MapErrorToHTTP(err error) (int, string) {
	if err == nil {
		return fasthttp.StatusOK, ""
	}

	var validationErr *ValidationError
	if errors.As(err, &validationErr) {
		return fasthttp.StatusBadRequest, validationErr.Error()
	}

	var unauthorizedErr *UnauthorizedError
	if errors.As(err, &unauthorizedErr) {
		return fasthttp.StatusUnauthorized, unauthorizedErr.Error()
	}

	var notFoundErr *NotFoundError
	if errors.As(err, &notFoundErr) {
		return fasthttp.StatusNotFound, notFoundErr.Error()
	}

	var conflictErr *ConflictError
	if errors.As(err, &conflictErr) {
		return fasthttp.StatusConflict, conflictErr.Error()
	}

	var tooManyErr *TooManyRequestsError
	if errors.As(err, &tooManyErr) {
		return fasthttp.StatusTooManyRequests, tooManyErr.Error()
	}

	var internalErr *InternalError
	if errors.As(err, &internalErr) {
		m.logger.Error().Err(internalErr.Unwrap()).Msg("internal server error")
		return fasthttp.StatusInternalServerError, internalErr.Error()
	}

	m.logger.Error().Err(err).Msg("unknown error")
	return fasthttp.StatusInternalServerError, "internal server error"
}

// WriteError writes err as the JSON error envelope with its details. Errors carrying a wait
// also set the Retry-After header.
func (m *Mapper) WriteError(ctx *fasthttp.RequestCtx, err error) {
	status, msg := m.MapErrorToHTTP(err)

	if wait, ok := RetryAfterOf(err); ok {
		ctx.Response.Header.Set("Retry-After", strconv.FormatInt(RetryAfterSeconds(wait), 10))
	}

	httputil.WriteErrorWithDetails(ctx, msg, DetailsOf(err), status)
}
