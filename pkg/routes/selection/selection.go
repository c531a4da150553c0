// Package selection exposes the selection read and repair endpoints.
package selection

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/Ramsey-B/fern/pkg/models"
)

// Store is the selection surface the routes need
type Store interface {
	Get(ctx context.Context, id string) (*models.Selection, error)
}

// Reconciler backfills a selection's membership
type Reconciler interface {
	ReconcileSelection(ctx context.Context, selectionID string) (int, error)
}

// Handler handles selection routes
type Handler struct {
	selections Store
	reconciler Reconciler
}

// NewHandler creates a selection handler
func NewHandler(selections Store, reconciler Reconciler) *Handler {
	return &Handler{selections: selections, reconciler: reconciler}
}

// Register registers selection routes
func (h *Handler) Register(g *echo.Group) {
	g.GET("/:id", h.GetSelection)
	g.POST("/:id/reconcile", h.ReconcileSelection)
}

// GetSelection returns one selection
func (h *Handler) GetSelection(c echo.Context) error {
	selection, err := h.selections.Get(c.Request().Context(), c.Param("id"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, selection)
}

// ReconcileSelection pulls matching members into a selection immediately
func (h *Handler) ReconcileSelection(c echo.Context) error {
	joined, err := h.reconciler.ReconcileSelection(c.Request().Context(), c.Param("id"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]int{"joined": joined})
}
