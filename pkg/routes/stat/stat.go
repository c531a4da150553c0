// Package stat exposes the stat read and recompute endpoints.
package stat

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/Ramsey-B/fern/pkg/models"
)

// Store is the stat surface the routes need
type Store interface {
	Get(ctx context.Context, id string) (*models.Stat, error)
}

// Recomputer recomputes one stat row
type Recomputer interface {
	RecomputeStat(ctx context.Context, statID string) (*models.Stat, error)
}

// Handler handles stat routes
type Handler struct {
	stats  Store
	engine Recomputer
}

// NewHandler creates a stat handler
func NewHandler(stats Store, engine Recomputer) *Handler {
	return &Handler{stats: stats, engine: engine}
}

// Register registers stat routes
func (h *Handler) Register(g *echo.Group) {
	g.GET("/:id", h.GetStat)
	g.POST("/:id/recompute", h.RecomputeStat)
}

// GetStat returns one stat
func (h *Handler) GetStat(c echo.Context) error {
	stat, err := h.stats.Get(c.Request().Context(), c.Param("id"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, stat)
}

// RecomputeStat recomputes a stat right now and returns the fresh row
func (h *Handler) RecomputeStat(c echo.Context) error {
	stat, err := h.engine.RecomputeStat(c.Request().Context(), c.Param("id"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, stat)
}
