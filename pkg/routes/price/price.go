// Package price exposes sold price ingestion and moderation endpoints.
package price

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/Ramsey-B/fern/pkg/models"
)

// Store is the sold price surface the routes need
type Store interface {
	Get(ctx context.Context, id string) (*models.SoldPrice, error)
	SetState(ctx context.Context, id string, state models.PriceState) error
}

// Ingestor records an externally reported sold price
type Ingestor interface {
	Ingest(ctx context.Context, req *models.UpsertSoldPriceRequest) (*models.SoldPrice, bool, error)
}

// Recomputer refreshes the stats of the selections a price belongs to
type Recomputer interface {
	RecomputeSelection(ctx context.Context, selectionID string) ([]models.Stat, error)
}

// Handler handles sold price routes
type Handler struct {
	prices   Store
	ingestor Ingestor
	engine   Recomputer
}

// NewHandler creates a price handler
func NewHandler(prices Store, ingestor Ingestor, engine Recomputer) *Handler {
	return &Handler{prices: prices, ingestor: ingestor, engine: engine}
}

// Register registers price routes
func (h *Handler) Register(g *echo.Group) {
	g.POST("", h.UpsertPrice)
	g.GET("/:id", h.GetPrice)
	g.POST("/:id/activate", h.ActivatePrice)
	g.POST("/:id/deactivate", h.DeactivatePrice)
}

// UpsertPrice records a sold price report. Replays of the same
// (source_type, source_id) return the existing record.
func (h *Handler) UpsertPrice(c echo.Context) error {
	var req models.UpsertSoldPriceRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	price, created, err := h.ingestor.Ingest(c.Request().Context(), &req)
	if err != nil {
		return err
	}

	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	return c.JSON(status, price)
}

// GetPrice returns one sold price
func (h *Handler) GetPrice(c echo.Context) error {
	price, err := h.prices.Get(c.Request().Context(), c.Param("id"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, price)
}

// ActivatePrice puts a price back into stats computation
func (h *Handler) ActivatePrice(c echo.Context) error {
	return h.setState(c, models.PriceStateActive)
}

// DeactivatePrice excludes a price from stats computation, for moderating
// bad reports out of the aggregates
func (h *Handler) DeactivatePrice(c echo.Context) error {
	return h.setState(c, models.PriceStateInactive)
}

// setState flips the price's state and recomputes the selections it feeds,
// so the aggregates never serve a moderated-out sample
func (h *Handler) setState(c echo.Context, state models.PriceState) error {
	ctx := c.Request().Context()
	id := c.Param("id")

	price, err := h.prices.Get(ctx, id)
	if err != nil {
		return err
	}
	if err := h.prices.SetState(ctx, id, state); err != nil {
		return err
	}

	for _, selectionID := range price.SelectionIDs {
		if _, err := h.engine.RecomputeSelection(ctx, selectionID); err != nil {
			return err
		}
	}

	price.State = state
	return c.JSON(http.StatusOK, price)
}
