package server

import (
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/valyala/fasthttp"
)

func TestServer_MetricsEndpoint(t *testing.T) {
	reg := prometheus.NewRegistry()
	promauto.With(reg).NewCounter(prometheus.CounterOpts{
		Name: "subscription_service_test_total",
		Help: "test counter",
	}).Inc()

	srv := NewServer("0", "subscription-service", zerolog.Nop())
	srv.RegisterMetrics(reg)

	var req fasthttp.Request
	req.Header.SetMethod(fasthttp.MethodGet)
	req.SetRequestURI("/metrics")

	ctx := &fasthttp.RequestCtx{}
	ctx.Init(&req, nil, nil)
	srv.Router.Handler(ctx)

	assert.Equal(t, fasthttp.StatusOK, ctx.Response.StatusCode())
	assert.True(t, strings.Contains(string(ctx.Response.Body()), "subscription_service_test_total 1"))
}
