// Package card exposes the per-card read endpoints and the sourcing trigger.
package card

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/statsengine"
)

// ListingStore lists a card's listings
type ListingStore interface {
	ListByCard(ctx context.Context, cardID string) ([]models.Listing, error)
}

// StatStore lists a card's stats
type StatStore interface {
	ListByCard(ctx context.Context, cardID string) ([]models.Stat, error)
}

// SelectionStore lists a card's selections
type SelectionStore interface {
	ListByCard(ctx context.Context, cardID string) ([]models.Selection, error)
}

// DefinitionStore lists a card's search definitions
type DefinitionStore interface {
	ListByCard(ctx context.Context, cardID string) ([]models.SearchDefinition, error)
}

// RollupProvider answers valuation queries
type RollupProvider interface {
	CardRollup(ctx context.Context, cardID string, condition models.Condition, currency string) (*statsengine.Rollup, error)
}

// Sourcer runs one definition's marketplace search
type Sourcer interface {
	SourceDefinition(ctx context.Context, def *models.SearchDefinition) error
}

// Handler handles card routes
type Handler struct {
	listings    ListingStore
	stats       StatStore
	selections  SelectionStore
	definitions DefinitionStore
	rollups     RollupProvider
	sourcer     Sourcer
}

// NewHandler creates a card handler
func NewHandler(listings ListingStore, stats StatStore, selections SelectionStore, definitions DefinitionStore, rollups RollupProvider, sourcer Sourcer) *Handler {
	return &Handler{
		listings:    listings,
		stats:       stats,
		selections:  selections,
		definitions: definitions,
		rollups:     rollups,
		sourcer:     sourcer,
	}
}

// Register registers card routes
func (h *Handler) Register(g *echo.Group) {
	g.GET("/:id/listings", h.ListListings)
	g.GET("/:id/stats", h.ListStats)
	g.GET("/:id/selections", h.ListSelections)
	g.GET("/:id/rollup", h.GetRollup)
	g.POST("/:id/source", h.SourceCard)
}

// ListListings returns every listing tracked for a card
func (h *Handler) ListListings(c echo.Context) error {
	listings, err := h.listings.ListByCard(c.Request().Context(), c.Param("id"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, listings)
}

// ListStats returns every stat computed for a card
func (h *Handler) ListStats(c echo.Context) error {
	stats, err := h.stats.ListByCard(c.Request().Context(), c.Param("id"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, stats)
}

// ListSelections returns a card's selections
func (h *Handler) ListSelections(c echo.Context) error {
	selections, err := h.selections.ListByCard(c.Request().Context(), c.Param("id"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, selections)
}

// GetRollup returns the best available valuation for a card in one
// condition and currency
func (h *Handler) GetRollup(c echo.Context) error {
	condition := models.Condition(c.QueryParam("condition"))
	if !condition.IsValid() {
		return echo.NewHTTPError(http.StatusBadRequest, "unknown condition")
	}
	currency := c.QueryParam("currency")
	if len(currency) != 3 {
		return echo.NewHTTPError(http.StatusBadRequest, "currency must be a 3-letter code")
	}

	rollup, err := h.rollups.CardRollup(c.Request().Context(), c.Param("id"), condition, currency)
	if err != nil {
		return err
	}
	if rollup == nil {
		return echo.NewHTTPError(http.StatusNotFound, "no price data for card")
	}
	return c.JSON(http.StatusOK, rollup)
}

// SourceCard runs every active search definition of a card immediately
func (h *Handler) SourceCard(c echo.Context) error {
	ctx := c.Request().Context()
	cardID := c.Param("id")

	defs, err := h.definitions.ListByCard(ctx, cardID)
	if err != nil {
		return err
	}

	sourced := 0
	for i := range defs {
		if !defs[i].Active {
			continue
		}
		if err := h.sourcer.SourceDefinition(ctx, &defs[i]); err != nil {
			return err
		}
		sourced++
	}

	return c.JSON(http.StatusOK, map[string]int{"sourced": sourced})
}
