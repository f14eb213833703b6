package http

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/valyala/fasthttp"
)

type stubChecker struct {
	name string
	err  error
}

func (c stubChecker) Name() string                        { return c.name }
func (c stubChecker) HealthCheck(_ context.Context) error { return c.err }

func runHealth(t *testing.T, checkers ...HealthChecker) (*fasthttp.RequestCtx, HealthResponse) {
	t.Helper()

	ctx := &fasthttp.RequestCtx{}
	NewHealthHandler(zerolog.Nop(), checkers...).Handle(ctx)

	var resp HealthResponse
	require.NoError(t, json.Unmarshal(ctx.Response.Body(), &resp))
	return ctx, resp
}

func TestHealthHandler_Healthy(t *testing.T) {
	ctx, resp := runHealth(t, stubChecker{name: "postgres"})

	assert.Equal(t, fasthttp.StatusOK, ctx.Response.StatusCode())
	assert.Equal(t, HealthStatusHealthy, resp.Status)
	require.Len(t, resp.Components, 1)
	assert.True(t, resp.Components[0].Healthy)
}

func TestHealthHandler_Unhealthy(t *testing.T) {
	ctx, resp := runHealth(t,
		stubChecker{name: "postgres", err: errors.New("connection refused")},
		stubChecker{name: "kafka"},
	)

	assert.Equal(t, fasthttp.StatusServiceUnavailable, ctx.Response.StatusCode())
	assert.Equal(t, HealthStatusUnhealthy, resp.Status)
	assert.Equal(t, "connection refused", resp.Components[0].Message)
	assert.True(t, resp.Components[1].Healthy)
}
