package health

import (
	"context"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"go.uber.org/zap"
)

const (
	StatusOK        = "ok"
	StatusDegraded  = "degraded"
	StatusUnhealthy = "unhealthy"

	DefaultCheckTimeout = 2 * time.Second
)

// Checker defines the interface for checking a dependency.
type Checker interface {
	Ping(ctx context.Context) error
}

// CheckerFunc adapts a function to Checker.
type CheckerFunc func(ctx context.Context) error

// Ping calls f.
func (f CheckerFunc) Ping(ctx context.Context) error {
	return f(ctx)
}

// Handler handles health check operations.
type Handler struct {
	cache    Checker
	database Checker
	logger   *zap.Logger
}

// NewHandler creates a new health handler.
func NewHandler(cache, database Checker, logger *zap.Logger) *Handler {
	return &Handler{cache: cache, database: database, logger: logger}
}

// Response is the response for health check endpoint.
type Response struct {
	Status int
	Body   struct {
		Status   string `example:"ok"      json:"status"`
		Redis    string `example:"healthy" json:"redis"`
		Database string `example:"healthy" json:"database"`
	}
}

// Check performs a health check of the application and its dependencies.
// A cache outage only degrades the service; the database is required.
func (h *Handler) Check(ctx context.Context, _ *struct{}) (*Response, error) {
	resp := &Response{Status: http.StatusOK}
	resp.Body.Status = StatusOK
	resp.Body.Redis = h.ping(ctx, "redis", h.cache)
	resp.Body.Database = h.ping(ctx, "database", h.database)

	if resp.Body.Redis != "healthy" {
		resp.Body.Status = StatusDegraded
	}

	if resp.Body.Database != "healthy" {
		resp.Body.Status = StatusUnhealthy
		resp.Status = http.StatusServiceUnavailable
	}

	return resp, nil
}

func (h *Handler) ping(ctx context.Context, name string, checker Checker) string {
	ctx, cancel := context.WithTimeout(ctx, DefaultCheckTimeout)
	defer cancel()

	if err := checker.Ping(ctx); err != nil {
		h.logger.Warn("health check failed", zap.String("dependency", name), zap.Error(err))

		return "unhealthy"
	}

	return "healthy"
}

// RegisterRoutes registers health check routes.
func RegisterRoutes(api huma.API, h *Handler) {
	huma.Get(api, "/health", h.Check)
}
