package searchdefinition

import (
	"context"
	"fmt"
	"net/http"
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
	"id", "card_id", "query", "keywords", "currency", "active",
	"last_sourced_at", "next_source_time", "created_at",
}

// Repository handles search definition persistence
type Repository struct {
	db     database.DB
	logger logging.Logger
}

// NewRepository creates a new search definition repository
func NewRepository(db database.DB, logger logging.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: logger,
	}
}

// Create creates a new search definition
func (r *Repository) Create(ctx context.Context, def *models.SearchDefinition) (*models.SearchDefinition, error) {
	ctx, span := tracing.StartSpan(ctx, "searchdefinition.Repository.Create")
	defer span.End()

	if def.ID == "" {
		def.ID = uuid.New().String()
	}
	def.CreatedAt = time.Now().UTC()
	if def.NextSourceTime.IsZero() {
		def.NextSourceTime = def.CreatedAt
	}

	sb := sqlbuilder.PostgreSQL.NewInsertBuilder()
	sb.InsertInto("search_definitions")
	sb.Cols(columns...)
	sb.Values(
		def.ID, def.CardID, def.Query, def.Keywords, def.Currency, def.Active,
		def.LastSourcedAt, def.NextSourceTime, def.CreatedAt,
	)

	query, args := sb.Build()
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"definition_id": def.ID}).Error("Failed to create search definition")
		return nil, echo.NewHTTPError(http.StatusInternalServerError, "failed to create search definition")
	}

	return def, nil
}

// Get retrieves a search definition by ID
func (r *Repository) Get(ctx context.Context, id string) (*models.SearchDefinition, error) {
	ctx, span := tracing.StartSpan(ctx, "searchdefinition.Repository.Get")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(columns...)
	sb.From("search_definitions")
	sb.Where(sb.Equal("id", id))

	query, args := sb.Build()
	var def models.SearchDefinition
	if err := r.db.GetContext(ctx, &def, query, args...); err != nil {
		if err.Error() == "sql: no rows in result set" {
			return nil, echo.NewHTTPError(http.StatusNotFound, fmt.Sprintf("search definition %s not found", id))
		}
		r.logger.WithContext(ctx).WithError(err).Error("Failed to get search definition")
		return nil, echo.NewHTTPError(http.StatusInternalServerError, "failed to get search definition")
	}

	return &def, nil
}

// GetMany retrieves search definitions by ID
func (r *Repository) GetMany(ctx context.Context, ids []string) ([]models.SearchDefinition, error) {
	ctx, span := tracing.StartSpan(ctx, "searchdefinition.Repository.GetMany")
	defer span.End()

	if len(ids) == 0 {
		return nil, nil
	}

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(columns...)
	sb.From("search_definitions")
	sb.Where(sb.In("id", idsToAny(ids)...))

	query, args := sb.Build()
	var defs []models.SearchDefinition
	if err := r.db.SelectContext(ctx, &defs, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to get search definitions")
		return nil, echo.NewHTTPError(http.StatusInternalServerError, "failed to get search definitions")
	}

	return defs, nil
}

// ListByCard retrieves all search definitions for a card
func (r *Repository) ListByCard(ctx context.Context, cardID string) ([]models.SearchDefinition, error) {
	ctx, span := tracing.StartSpan(ctx, "searchdefinition.Repository.ListByCard")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(columns...)
	sb.From("search_definitions")
	sb.Where(sb.Equal("card_id", cardID))
	sb.OrderBy("created_at ASC")

	query, args := sb.Build()
	var defs []models.SearchDefinition
	if err := r.db.SelectContext(ctx, &defs, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to list search definitions by card")
		return nil, echo.NewHTTPError(http.StatusInternalServerError, "failed to list search definitions")
	}

	return defs, nil
}

// ListDue retrieves active search definitions whose next source time has passed
func (r *Repository) ListDue(ctx context.Context, limit int) ([]models.SearchDefinition, error) {
	ctx, span := tracing.StartSpan(ctx, "searchdefinition.Repository.ListDue")
	defer span.End()

	if limit < 1 || limit > 500 {
		limit = 100
	}

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(columns...)
	sb.From("search_definitions")
	sb.Where(
		sb.Equal("active", true),
		sb.LessEqualThan("next_source_time", time.Now().UTC()),
	)
	sb.OrderBy("next_source_time ASC")
	sb.Limit(limit)

	query, args := sb.Build()
	var defs []models.SearchDefinition
	if err := r.db.SelectContext(ctx, &defs, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to list due search definitions")
		return nil, echo.NewHTTPError(http.StatusInternalServerError, "failed to list due search definitions")
	}

	return defs, nil
}

// MarkSourced stamps a definition as sourced and schedules the next pass
func (r *Repository) MarkSourced(ctx context.Context, id string, sourcedAt, next time.Time) error {
	ctx, span := tracing.StartSpan(ctx, "searchdefinition.Repository.MarkSourced")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewUpdateBuilder()
	sb.Update("search_definitions")
	sb.Set(
		sb.Assign("last_sourced_at", sourcedAt),
		sb.Assign("next_source_time", next),
	)
	sb.Where(sb.Equal("id", id))

	query, args := sb.Build()
	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"definition_id": id}).Error("Failed to mark search definition sourced")
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to mark search definition sourced")
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return echo.NewHTTPError(http.StatusNotFound, fmt.Sprintf("search definition %s not found", id))
	}

	return nil
}

func idsToAny(ids []string) []any {
	result := make([]any, len(ids))
	for i, id := range ids {
		result[i] = id
	}
	return result
}
