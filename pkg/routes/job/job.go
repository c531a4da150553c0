// Package job exposes the batch job trigger endpoints.
package job

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/Ramsey-B/fern/internal/logging"
	"github.com/Ramsey-B/fern/pkg/jobs"
)

// Handler handles job routes
type Handler struct {
	registry *jobs.Registry
	logger   logging.Logger
}

// NewHandler creates a job handler
func NewHandler(registry *jobs.Registry, logger logging.Logger) *Handler {
	return &Handler{registry: registry, logger: logger}
}

// Register registers job routes
func (h *Handler) Register(g *echo.Group) {
	g.GET("", h.ListJobs)
	g.POST("/:name/run", h.RunJob)
}

// ListJobs returns the registered job names
func (h *Handler) ListJobs(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string][]string{"jobs": h.registry.Names()})
}

// RunJob kicks a job off in the background. Jobs run up to their full
// budget, so the trigger returns immediately rather than holding the
// request open. An optional budget_seconds query caps the run shorter
// than the configured budget.
func (h *Handler) RunJob(c echo.Context) error {
	name := c.Param("name")
	job, ok := h.registry.Get(name)
	if !ok {
		return echo.NewHTTPError(http.StatusNotFound, "unknown job")
	}

	var budget time.Duration
	if raw := c.QueryParam("budget_seconds"); raw != "" {
		seconds, err := strconv.Atoi(raw)
		if err != nil || seconds <= 0 {
			return echo.NewHTTPError(http.StatusBadRequest, "budget_seconds must be a positive integer")
		}
		budget = time.Duration(seconds) * time.Second
	}

	go func() {
		ctx := context.Background()
		cancel := context.CancelFunc(func() {})
		if budget > 0 {
			ctx, cancel = context.WithTimeout(ctx, budget)
		}
		defer cancel()

		result := job.Run(ctx)
		h.logger.WithContext(ctx).WithFields(map[string]any{
			"job":        name,
			"dispatched": result.Dispatched,
			"failed":     result.Failed,
			"elapsed":    result.Elapsed.String(),
		}).Info("Triggered job finished")
	}()

	return c.JSON(http.StatusAccepted, map[string]string{"status": "started", "job": name})
}
