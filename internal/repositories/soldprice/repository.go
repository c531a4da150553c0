package soldprice

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/huandu/go-sqlbuilder"
	"github.com/labstack/echo/v4"

	"github.com/Ramsey-B/fern/internal/database"
	"github.com/Ramsey-B/fern/internal/logging"
	"github.com/Ramsey-B/fern/internal/tracing"
	"github.com/Ramsey-B/fern/pkg/models"
)

var columns = []string{
	"id", "card_id", "condition", "amount", "currency", "sold_at",
	"source_type", "source_id", "state", "grading_company", "grade",
	"search_definition_ids", "selection_ids", "created_at", "updated_at",
}

// Repository handles sold price persistence
type Repository struct {
	db     database.DB
	logger logging.Logger
}

// NewRepository creates a new sold price repository
func NewRepository(db database.DB, logger logging.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: logger,
	}
}

// Upsert records a sold price at most once per (source_type, source_id).
// Re-observing an existing source merges its changed fields and search
// definition memberships into the existing record instead of creating a
// duplicate. Returns the stored record and whether it was newly created.
func (r *Repository) Upsert(ctx context.Context, price *models.SoldPrice) (*models.SoldPrice, bool, error) {
	ctx, span := tracing.StartSpan(ctx, "soldprice.Repository.Upsert")
	defer span.End()

	existing, err := r.GetBySource(ctx, price.SourceType, price.SourceID)
	if err != nil {
		return nil, false, err
	}
	if existing != nil {
		merged, err := r.mergeExisting(ctx, existing, price)
		return merged, false, err
	}

	now := time.Now().UTC()
	if price.ID == "" {
		price.ID = uuid.New().String()
	}
	price.CreatedAt = now
	price.UpdatedAt = now
	if price.State == "" {
		price.State = models.PriceStateActive
	}

	sb := sqlbuilder.PostgreSQL.NewInsertBuilder()
	sb.InsertInto("sold_prices")
	sb.Cols(columns...)
	sb.Values(
		price.ID, price.CardID, price.Condition, price.Amount, price.Currency, price.SoldAt,
		price.SourceType, price.SourceID, price.State, price.GradingCompany, price.Grade,
		price.SearchDefinitionIDs, price.SelectionIDs, price.CreatedAt, price.UpdatedAt,
	)

	query, args := sb.Build()
	// Races between concurrent checks of the same listing collapse onto the
	// unique (source_type, source_id) index; no returned row means the other
	// writer won and this observation merges into its record instead
	query += " ON CONFLICT (source_type, source_id) DO NOTHING RETURNING id"

	var insertedID string
	if err := r.db.GetContext(ctx, &insertedID, query, args...); err != nil {
		if err.Error() == "sql: no rows in result set" {
			winner, err := r.GetBySource(ctx, price.SourceType, price.SourceID)
			if err != nil {
				return nil, false, err
			}
			if winner == nil {
				return nil, false, echo.NewHTTPError(http.StatusInternalServerError, "failed to create sold price")
			}
			merged, err := r.mergeExisting(ctx, winner, price)
			return merged, false, err
		}
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"source_id": price.SourceID}).Error("Failed to create sold price")
		return nil, false, echo.NewHTTPError(http.StatusInternalServerError, "failed to create sold price")
	}

	return price, true, nil
}

// mergeExisting folds a re-observation into the stored record: membership ids
// union, observed fields overwrite when they changed. Pointer fields only
// overwrite when the new observation carries them.
func (r *Repository) mergeExisting(ctx context.Context, existing, price *models.SoldPrice) (*models.SoldPrice, error) {
	sb := sqlbuilder.PostgreSQL.NewUpdateBuilder()
	sb.Update("sold_prices")

	var assignments []string

	merged := mergeIDs(existing.SearchDefinitionIDs, price.SearchDefinitionIDs)
	if len(merged) != len(existing.SearchDefinitionIDs) {
		assignments = append(assignments, sb.Assign("search_definition_ids", merged))
	}
	if price.CardID != "" && price.CardID != existing.CardID {
		assignments = append(assignments, sb.Assign("card_id", price.CardID))
	}
	if price.Condition != "" && price.Condition != existing.Condition {
		assignments = append(assignments, sb.Assign("condition", string(price.Condition)))
	}
	if price.Amount != 0 && price.Amount != existing.Amount {
		assignments = append(assignments, sb.Assign("amount", price.Amount))
	}
	if price.Currency != "" && price.Currency != existing.Currency {
		assignments = append(assignments, sb.Assign("currency", price.Currency))
	}
	if !price.SoldAt.IsZero() && !price.SoldAt.Equal(existing.SoldAt) {
		assignments = append(assignments, sb.Assign("sold_at", price.SoldAt))
	}
	if price.GradingCompany != nil && !equalPtr(price.GradingCompany, existing.GradingCompany) {
		assignments = append(assignments, sb.Assign("grading_company", price.GradingCompany))
	}
	if price.Grade != nil && !equalPtr(price.Grade, existing.Grade) {
		assignments = append(assignments, sb.Assign("grade", price.Grade))
	}

	if len(assignments) == 0 {
		return existing, nil
	}

	now := time.Now().UTC()
	assignments = append(assignments, sb.Assign("updated_at", now))
	sb.Set(assignments...)
	sb.Where(sb.Equal("id", existing.ID))

	query, args := sb.Build()
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"price_id": existing.ID}).Error("Failed to merge sold price")
		return nil, echo.NewHTTPError(http.StatusInternalServerError, "failed to upsert sold price")
	}

	existing.SearchDefinitionIDs = merged
	if price.CardID != "" {
		existing.CardID = price.CardID
	}
	if price.Condition != "" {
		existing.Condition = price.Condition
	}
	if price.Amount != 0 {
		existing.Amount = price.Amount
	}
	if price.Currency != "" {
		existing.Currency = price.Currency
	}
	if !price.SoldAt.IsZero() {
		existing.SoldAt = price.SoldAt
	}
	if price.GradingCompany != nil {
		existing.GradingCompany = price.GradingCompany
	}
	if price.Grade != nil {
		existing.Grade = price.Grade
	}
	existing.UpdatedAt = now
	return existing, nil
}

// Get retrieves a sold price by ID
func (r *Repository) Get(ctx context.Context, id string) (*models.SoldPrice, error) {
	ctx, span := tracing.StartSpan(ctx, "soldprice.Repository.Get")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(columns...)
	sb.From("sold_prices")
	sb.Where(sb.Equal("id", id))

	query, args := sb.Build()
	var price models.SoldPrice
	if err := r.db.GetContext(ctx, &price, query, args...); err != nil {
		if err.Error() == "sql: no rows in result set" {
			return nil, echo.NewHTTPError(http.StatusNotFound, fmt.Sprintf("sold price %s not found", id))
		}
		r.logger.WithContext(ctx).WithError(err).Error("Failed to get sold price")
		return nil, echo.NewHTTPError(http.StatusInternalServerError, "failed to get sold price")
	}

	return &price, nil
}

// GetBySource gets the sold price recorded for a source, or nil when none exists
func (r *Repository) GetBySource(ctx context.Context, sourceType models.PriceSourceType, sourceID string) (*models.SoldPrice, error) {
	ctx, span := tracing.StartSpan(ctx, "soldprice.Repository.GetBySource")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(columns...)
	sb.From("sold_prices")
	sb.Where(
		sb.Equal("source_type", string(sourceType)),
		sb.Equal("source_id", sourceID),
	)
	sb.Limit(1)

	query, args := sb.Build()
	var price models.SoldPrice
	if err := r.db.GetContext(ctx, &price, query, args...); err != nil {
		if err.Error() == "sql: no rows in result set" {
			return nil, nil // No existing price
		}
		r.logger.WithContext(ctx).WithError(err).Error("Failed to get sold price by source")
		return nil, echo.NewHTTPError(http.StatusInternalServerError, "failed to get sold price")
	}

	return &price, nil
}

// SetState activates or deactivates a sold price
func (r *Repository) SetState(ctx context.Context, id string, state models.PriceState) error {
	ctx, span := tracing.StartSpan(ctx, "soldprice.Repository.SetState")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewUpdateBuilder()
	sb.Update("sold_prices")
	sb.Set(
		sb.Assign("state", string(state)),
		sb.Assign("updated_at", time.Now().UTC()),
	)
	sb.Where(sb.Equal("id", id))

	query, args := sb.Build()
	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"price_id": id}).Error("Failed to set sold price state")
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to set sold price state")
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return echo.NewHTTPError(http.StatusNotFound, fmt.Sprintf("sold price %s not found", id))
	}

	return nil
}

// SetSelectionIDs replaces a sold price's selection memberships
func (r *Repository) SetSelectionIDs(ctx context.Context, id string, selectionIDs []string) error {
	ctx, span := tracing.StartSpan(ctx, "soldprice.Repository.SetSelectionIDs")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewUpdateBuilder()
	sb.Update("sold_prices")
	sb.Set(
		sb.Assign("selection_ids", models.StringSlice(selectionIDs)),
		sb.Assign("updated_at", time.Now().UTC()),
	)
	sb.Where(sb.Equal("id", id))

	query, args := sb.Build()
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"price_id": id}).Error("Failed to set sold price selections")
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to set sold price selections")
	}

	return nil
}

// ListByCard retrieves all sold prices for a card
func (r *Repository) ListByCard(ctx context.Context, cardID string) ([]models.SoldPrice, error) {
	ctx, span := tracing.StartSpan(ctx, "soldprice.Repository.ListByCard")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(columns...)
	sb.From("sold_prices")
	sb.Where(sb.Equal("card_id", cardID))
	sb.OrderBy("sold_at DESC")

	query, args := sb.Build()
	var prices []models.SoldPrice
	if err := r.db.SelectContext(ctx, &prices, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to list sold prices by card")
		return nil, echo.NewHTTPError(http.StatusInternalServerError, "failed to list sold prices")
	}

	return prices, nil
}

// ListBySearchDefinition retrieves sold prices that carry a search definition
// in their membership set
func (r *Repository) ListBySearchDefinition(ctx context.Context, searchDefinitionID string) ([]models.SoldPrice, error) {
	ctx, span := tracing.StartSpan(ctx, "soldprice.Repository.ListBySearchDefinition")
	defer span.End()

	query := fmt.Sprintf(`
		SELECT %s
		FROM sold_prices
		WHERE search_definition_ids @> $1::jsonb
		ORDER BY sold_at DESC
	`, strings.Join(columns, ", "))

	var prices []models.SoldPrice
	if err := r.db.SelectContext(ctx, &prices, query, jsonArray(searchDefinitionID)); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to list sold prices by search definition")
		return nil, echo.NewHTTPError(http.StatusInternalServerError, "failed to list sold prices")
	}

	return prices, nil
}

// ListActiveBySelection retrieves active sold prices that are members of a selection
func (r *Repository) ListActiveBySelection(ctx context.Context, selectionID string) ([]models.SoldPrice, error) {
	ctx, span := tracing.StartSpan(ctx, "soldprice.Repository.ListActiveBySelection")
	defer span.End()

	query := fmt.Sprintf(`
		SELECT %s
		FROM sold_prices
		WHERE state = $1
		AND selection_ids @> $2::jsonb
		ORDER BY sold_at DESC
	`, strings.Join(columns, ", "))

	var prices []models.SoldPrice
	if err := r.db.SelectContext(ctx, &prices, query, string(models.PriceStateActive), jsonArray(selectionID)); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to list sold prices by selection")
		return nil, echo.NewHTTPError(http.StatusInternalServerError, "failed to list sold prices")
	}

	return prices, nil
}

func jsonArray(id string) string {
	b, _ := json.Marshal([]string{id})
	return string(b)
}

func equalPtr(a, b *string) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func mergeIDs(existing models.StringSlice, incoming models.StringSlice) models.StringSlice {
	merged := make(models.StringSlice, len(existing), len(existing)+len(incoming))
	copy(merged, existing)
	for _, id := range incoming {
		if !merged.Contains(id) {
			merged = append(merged, id)
		}
	}
	return merged
}
