package http

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"github.com/valyala/fasthttp"
	"gorm.io/gorm"

	"github.com/fanplatform/subscription-service/pkg/httputil"
)

// HealthChecker reports the health of one component
type HealthChecker interface {
	Name() string
	HealthCheck(ctx context.Context) error
}

// HealthStatus represents the overall health status
type HealthStatus string

const (
	HealthStatusHealthy   HealthStatus = "healthy"
	HealthStatusUnhealthy HealthStatus = "unhealthy"
)

// ComponentHealth represents health status of a single component
type ComponentHealth struct {
	Name    string `json:"name"`
	Healthy bool   `json:"healthy"`
	Message string `json:"message,omitempty"`
}

// HealthResponse represents the JSON response for health check
type HealthResponse struct {
	Status     HealthStatus      `json:"status"`
	Timestamp  time.Time         `json:"timestamp"`
	Components []ComponentHealth `json:"components"`
}

// HealthHandler handles GET /health
type HealthHandler struct {
	checkers []HealthChecker
	timeout  time.Duration
	logger   zerolog.Logger
}

func NewHealthHandler(logger zerolog.Logger, checkers ...HealthChecker) *HealthHandler {
	return &HealthHandler{
		checkers: checkers,
		timeout:  5 * time.Second,
		logger:   logger,
	}
}

// Handle runs every checker. Any failing component makes the service unhealthy.
func (h *HealthHandler) Handle(ctx *fasthttp.RequestCtx) {
	checkCtx, cancel := context.WithTimeout(context.Background(), h.timeout)
	defer cancel()

	status := HealthStatusHealthy
	components := make([]ComponentHealth, 0, len(h.checkers))

	for _, checker := range h.checkers {
		component := ComponentHealth{Name: checker.Name(), Healthy: true}
		if err := checker.HealthCheck(checkCtx); err != nil {
			component.Healthy = false
			component.Message = err.Error()
			status = HealthStatusUnhealthy
		}
		components = append(components, component)
	}

	logEvent := h.logger.Debug()
	if status == HealthStatusUnhealthy {
		logEvent = h.logger.Warn()
	}
	logEvent.
		Str("status", string(status)).
		Interface("components", components).
		Msg("Health check completed")

	httputil.WriteHealthResponse(ctx, HealthResponse{
		Status:     status,
		Timestamp:  time.Now().UTC(),
		Components: components,
	}, status == HealthStatusHealthy)
}

// DatabaseChecker pings the connection pool
type DatabaseChecker struct {
	db *gorm.DB
}

func NewDatabaseChecker(db *gorm.DB) *DatabaseChecker {
	return &DatabaseChecker{db: db}
}

func (c *DatabaseChecker) Name() string {
	return "postgres"
}

func (c *DatabaseChecker) HealthCheck(ctx context.Context) error {
	sqlDB, err := c.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}
