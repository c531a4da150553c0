// Package listing exposes the listing read and admin endpoints.
package listing

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/Ramsey-B/fern/pkg/models"
)

// Store is the listing persistence surface the routes need
type Store interface {
	Get(ctx context.Context, id string) (*models.Listing, error)
	Archive(ctx context.Context, id string) error
}

// Checker runs an immediate check of one listing
type Checker interface {
	CheckListing(ctx context.Context, id string) (*models.Listing, error)
}

// Handler handles listing routes
type Handler struct {
	listings Store
	checker  Checker
}

// NewHandler creates a listing handler
func NewHandler(listings Store, checker Checker) *Handler {
	return &Handler{listings: listings, checker: checker}
}

// Register registers listing routes
func (h *Handler) Register(g *echo.Group) {
	g.GET("/:id", h.GetListing)
	g.POST("/:id/check", h.CheckListing)
	g.POST("/:id/archive", h.ArchiveListing)
}

// GetListing returns one listing
func (h *Handler) GetListing(c echo.Context) error {
	listing, err := h.listings.Get(c.Request().Context(), c.Param("id"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, listing)
}

// CheckListing checks a listing against the marketplace right now and
// returns it with the transition applied
func (h *Handler) CheckListing(c echo.Context) error {
	listing, err := h.checker.CheckListing(c.Request().Context(), c.Param("id"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, listing)
}

// ArchiveListing retires a listing immediately
func (h *Handler) ArchiveListing(c echo.Context) error {
	if err := h.listings.Archive(c.Request().Context(), c.Param("id")); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]string{"status": "archived"})
}
