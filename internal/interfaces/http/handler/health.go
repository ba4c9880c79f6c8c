package handler

import (
	"context"
	"net/http"
	"runtime"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/supplychain/backend/internal/infrastructure/scheduler"
	"github.com/supplychain/backend/internal/interfaces/http/dto"
	"go.uber.org/zap"
)

// Pinger checks a backing store
type Pinger interface {
	Ping(ctx context.Context) error
}

// PingFunc adapts a function to Pinger
type PingFunc func(ctx context.Context) error

// Ping calls f(ctx)
func (f PingFunc) Ping(ctx context.Context) error { return f(ctx) }

// SchedulerStats reports reconcile worker counters
type SchedulerStats interface {
	Stats() scheduler.Stats
}

// HealthHandler serves liveness and readiness probes
type HealthHandler struct {
	BaseHandler
	db        Pinger
	redis     Pinger
	scheduler SchedulerStats
	logger    *zap.Logger
	startTime time.Time
	timeout   time.Duration
}

// HealthOption configures optional readiness dependencies
type HealthOption func(*HealthHandler)

// WithRedisCheck adds the name cache to readiness
func WithRedisCheck(p Pinger) HealthOption {
	return func(h *HealthHandler) { h.redis = p }
}

// WithSchedulerStats includes reconcile counters in readiness output
func WithSchedulerStats(s SchedulerStats) HealthOption {
	return func(h *HealthHandler) { h.scheduler = s }
}

// NewHealthHandler creates a new HealthHandler
func NewHealthHandler(db Pinger, logger *zap.Logger, opts ...HealthOption) *HealthHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	h := &HealthHandler{
		db:        db,
		logger:    logger,
		startTime: time.Now(),
		timeout:   2 * time.Second,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// LivenessResponse is returned by /health
type LivenessResponse struct {
	Status    string `json:"status" example:"ok"`
	GoVersion string `json:"go_version" example:"go1.25.5"`
	Uptime    string `json:"uptime" example:"1h30m45s"`
}

// ReadinessResponse is returned by /ready
type ReadinessResponse struct {
	Status    string            `json:"status" example:"ready"`
	Checks    map[string]string `json:"checks"`
	Reconcile *scheduler.Stats  `json:"reconcile,omitempty"`
}

// Liveness godoc
// @ID           health
// @Summary      Liveness probe
// @Tags         system
// @Produce      json
// @Success      200 {object} APIResponse[LivenessResponse]
// @Router       /health [get]
func (h *HealthHandler) Liveness(c *gin.Context) {
	h.Success(c, LivenessResponse{
		Status:    "ok",
		GoVersion: runtime.Version(),
		Uptime:    time.Since(h.startTime).Round(time.Second).String(),
	})
}

// Readiness godoc
// @ID           ready
// @Summary      Readiness probe
// @Description  Pings the database and, when configured, Redis. Redis is reported but never fails readiness.
// @Tags         system
// @Produce      json
// @Success      200 {object} APIResponse[ReadinessResponse]
// @Failure      503 {object} APIResponse[ReadinessResponse]
// @Router       /ready [get]
func (h *HealthHandler) Readiness(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), h.timeout)
	defer cancel()

	resp := ReadinessResponse{Status: "ready", Checks: map[string]string{}}
	status := http.StatusOK

	if err := h.db.Ping(ctx); err != nil {
		h.logger.Warn("Readiness check failed", zap.String("check", "database"), zap.Error(err))
		resp.Checks["database"] = "unavailable"
		resp.Status = "not_ready"
		status = http.StatusServiceUnavailable
	} else {
		resp.Checks["database"] = "ok"
	}

	// the name cache degrades to direct lookups, so it is informational
	if h.redis != nil {
		if err := h.redis.Ping(ctx); err != nil {
			h.logger.Warn("Readiness check degraded", zap.String("check", "redis"), zap.Error(err))
			resp.Checks["redis"] = "degraded"
		} else {
			resp.Checks["redis"] = "ok"
		}
	}

	if h.scheduler != nil {
		stats := h.scheduler.Stats()
		resp.Reconcile = &stats
	}

	c.JSON(status, dto.Response{Success: status == http.StatusOK, Data: resp})
}
