package selection

import (
	"context"
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
	"id", "card_id", "price_kind", "condition", "currency",
	"search_definition_id", "has_reconciled", "created_at",
}

// Repository handles selection persistence
type Repository struct {
	db     database.DB
	logger logging.Logger
}

// NewRepository creates a new selection repository
func NewRepository(db database.DB, logger logging.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: logger,
	}
}

// Create creates a new selection. Duplicates along the dimension tuple are
// allowed here; the uniqueness enforcer heals them afterwards.
func (r *Repository) Create(ctx context.Context, selection *models.Selection) (*models.Selection, error) {
	ctx, span := tracing.StartSpan(ctx, "selection.Repository.Create")
	defer span.End()

	if selection.ID == "" {
		selection.ID = uuid.New().String()
	}
	selection.CreatedAt = time.Now().UTC()

	sb := sqlbuilder.PostgreSQL.NewInsertBuilder()
	sb.InsertInto("selections")
	sb.Cols(columns...)
	sb.Values(
		selection.ID, selection.CardID, selection.PriceKind, selection.Condition,
		selection.Currency, selection.SearchDefinitionID, selection.HasReconciled, selection.CreatedAt,
	)

	query, args := sb.Build()
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"selection_id": selection.ID}).Error("Failed to create selection")
		return nil, echo.NewHTTPError(http.StatusInternalServerError, "failed to create selection")
	}

	return selection, nil
}

// Get retrieves a selection by ID
func (r *Repository) Get(ctx context.Context, id string) (*models.Selection, error) {
	ctx, span := tracing.StartSpan(ctx, "selection.Repository.Get")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(columns...)
	sb.From("selections")
	sb.Where(sb.Equal("id", id))

	query, args := sb.Build()
	var selection models.Selection
	if err := r.db.GetContext(ctx, &selection, query, args...); err != nil {
		if err.Error() == "sql: no rows in result set" {
			return nil, echo.NewHTTPError(http.StatusNotFound, fmt.Sprintf("selection %s not found", id))
		}
		r.logger.WithContext(ctx).WithError(err).Error("Failed to get selection")
		return nil, echo.NewHTTPError(http.StatusInternalServerError, "failed to get selection")
	}

	return &selection, nil
}

// GetByDimensions gets the selection for a dimension tuple, or nil when none
// exists. With duplicates present the newest wins, matching the enforcer's
// survivor rule.
func (r *Repository) GetByDimensions(ctx context.Context, cardID string, kind models.PriceKind, condition models.Condition, currency, searchDefinitionID string) (*models.Selection, error) {
	ctx, span := tracing.StartSpan(ctx, "selection.Repository.GetByDimensions")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(columns...)
	sb.From("selections")
	sb.Where(
		sb.Equal("card_id", cardID),
		sb.Equal("price_kind", string(kind)),
		sb.Equal("condition", string(condition)),
		sb.Equal("currency", currency),
		sb.Equal("search_definition_id", searchDefinitionID),
	)
	sb.OrderBy("created_at DESC", "id DESC")
	sb.Limit(1)

	query, args := sb.Build()
	var selection models.Selection
	if err := r.db.GetContext(ctx, &selection, query, args...); err != nil {
		if err.Error() == "sql: no rows in result set" {
			return nil, nil // No existing selection
		}
		r.logger.WithContext(ctx).WithError(err).Error("Failed to get selection by dimensions")
		return nil, echo.NewHTTPError(http.StatusInternalServerError, "failed to get selection")
	}

	return &selection, nil
}

// ListByCard retrieves all selections for a card
func (r *Repository) ListByCard(ctx context.Context, cardID string) ([]models.Selection, error) {
	ctx, span := tracing.StartSpan(ctx, "selection.Repository.ListByCard")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(columns...)
	sb.From("selections")
	sb.Where(sb.Equal("card_id", cardID))
	sb.OrderBy("created_at ASC")

	query, args := sb.Build()
	var selections []models.Selection
	if err := r.db.SelectContext(ctx, &selections, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to list selections by card")
		return nil, echo.NewHTTPError(http.StatusInternalServerError, "failed to list selections")
	}

	return selections, nil
}

// ListUnreconciled retrieves selections that have never pulled in their members
func (r *Repository) ListUnreconciled(ctx context.Context, limit int) ([]models.Selection, error) {
	ctx, span := tracing.StartSpan(ctx, "selection.Repository.ListUnreconciled")
	defer span.End()

	if limit < 1 || limit > 500 {
		limit = 100
	}

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(columns...)
	sb.From("selections")
	sb.Where(sb.Equal("has_reconciled", false))
	sb.OrderBy("created_at ASC")
	sb.Limit(limit)

	query, args := sb.Build()
	var selections []models.Selection
	if err := r.db.SelectContext(ctx, &selections, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to list unreconciled selections")
		return nil, echo.NewHTTPError(http.StatusInternalServerError, "failed to list unreconciled selections")
	}

	return selections, nil
}

// MarkReconciled flags a selection as having pulled in its members
func (r *Repository) MarkReconciled(ctx context.Context, id string) error {
	ctx, span := tracing.StartSpan(ctx, "selection.Repository.MarkReconciled")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewUpdateBuilder()
	sb.Update("selections")
	sb.Set(sb.Assign("has_reconciled", true))
	sb.Where(sb.Equal("id", id))

	query, args := sb.Build()
	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"selection_id": id}).Error("Failed to mark selection reconciled")
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to mark selection reconciled")
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return echo.NewHTTPError(http.StatusNotFound, fmt.Sprintf("selection %s not found", id))
	}

	return nil
}

// ListDuplicates retrieves every selection whose dimension tuple is shared by
// at least one other selection, grouped together in the result ordering so
// the enforcer can walk groups sequentially.
func (r *Repository) ListDuplicates(ctx context.Context) ([]models.Selection, error) {
	ctx, span := tracing.StartSpan(ctx, "selection.Repository.ListDuplicates")
	defer span.End()

	query := fmt.Sprintf(`
		SELECT %s
		FROM selections s
		JOIN (
			SELECT card_id, price_kind, condition, currency, search_definition_id
			FROM selections
			GROUP BY card_id, price_kind, condition, currency, search_definition_id
			HAVING COUNT(*) > 1
		) d USING (card_id, price_kind, condition, currency, search_definition_id)
		ORDER BY card_id, price_kind, condition, currency, search_definition_id, created_at DESC, id DESC
	`, prefixed("s"))

	var selections []models.Selection
	if err := r.db.SelectContext(ctx, &selections, query); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to list duplicate selections")
		return nil, echo.NewHTTPError(http.StatusInternalServerError, "failed to list duplicate selections")
	}

	return selections, nil
}

// Delete removes selections by ID
func (r *Repository) Delete(ctx context.Context, ids []string) error {
	ctx, span := tracing.StartSpan(ctx, "selection.Repository.Delete")
	defer span.End()

	if len(ids) == 0 {
		return nil
	}

	sb := sqlbuilder.PostgreSQL.NewDeleteBuilder()
	sb.DeleteFrom("selections")
	sb.Where(sb.In("id", idsToAny(ids)...))

	query, args := sb.Build()
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to delete selections")
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to delete selections")
	}

	return nil
}

func prefixed(alias string) string {
	out := make([]string, len(columns))
	for i, c := range columns {
		out[i] = alias + "." + c
	}
	return strings.Join(out, ", ")
}

func idsToAny(ids []string) []any {
	result := make([]any, len(ids))
	for i, id := range ids {
		result[i] = id
	}
	return result
}
