package stat

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
	"id", "selection_id", "period_size_days", "modification_key", "stats",
	"period_from", "period_to", "item_ids", "next_calculation_time",
	"last_calculated_at", "created_at",
}

// Repository handles stat persistence
type Repository struct {
	db     database.DB
	logger logging.Logger
}

// NewRepository creates a new stat repository
func NewRepository(db database.DB, logger logging.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: logger,
	}
}

// Upsert writes a stat, replacing any existing row for the same
// (selection, period size, modification key)
func (r *Repository) Upsert(ctx context.Context, stat *models.Stat) (*models.Stat, error) {
	ctx, span := tracing.StartSpan(ctx, "stat.Repository.Upsert")
	defer span.End()

	if stat.ID == "" {
		stat.ID = uuid.New().String()
	}
	if stat.CreatedAt.IsZero() {
		stat.CreatedAt = time.Now().UTC()
	}

	sb := sqlbuilder.PostgreSQL.NewInsertBuilder()
	sb.InsertInto("stats")
	sb.Cols(columns...)
	sb.Values(
		stat.ID, stat.SelectionID, stat.PeriodSizeDays, stat.ModificationKey, stat.Stats,
		stat.From, stat.To, stat.ItemIDs, stat.NextCalculationTime,
		stat.LastCalculatedAt, stat.CreatedAt,
	)

	query, args := sb.Build()
	query += ` ON CONFLICT (selection_id, period_size_days, modification_key) DO UPDATE SET
		stats = EXCLUDED.stats,
		period_from = EXCLUDED.period_from,
		period_to = EXCLUDED.period_to,
		item_ids = EXCLUDED.item_ids,
		next_calculation_time = EXCLUDED.next_calculation_time,
		last_calculated_at = EXCLUDED.last_calculated_at`

	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"selection_id": stat.SelectionID}).Error("Failed to upsert stat")
		return nil, echo.NewHTTPError(http.StatusInternalServerError, "failed to upsert stat")
	}

	return stat, nil
}

// Get retrieves a stat by ID
func (r *Repository) Get(ctx context.Context, id string) (*models.Stat, error) {
	ctx, span := tracing.StartSpan(ctx, "stat.Repository.Get")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(columns...)
	sb.From("stats")
	sb.Where(sb.Equal("id", id))

	query, args := sb.Build()
	var stat models.Stat
	if err := r.db.GetContext(ctx, &stat, query, args...); err != nil {
		if err.Error() == "sql: no rows in result set" {
			return nil, echo.NewHTTPError(http.StatusNotFound, fmt.Sprintf("stat %s not found", id))
		}
		r.logger.WithContext(ctx).WithError(err).Error("Failed to get stat")
		return nil, echo.NewHTTPError(http.StatusInternalServerError, "failed to get stat")
	}

	return &stat, nil
}

// ListBySelection retrieves all stats for a selection
func (r *Repository) ListBySelection(ctx context.Context, selectionID string) ([]models.Stat, error) {
	ctx, span := tracing.StartSpan(ctx, "stat.Repository.ListBySelection")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(columns...)
	sb.From("stats")
	sb.Where(sb.Equal("selection_id", selectionID))
	sb.OrderBy("period_size_days ASC", "modification_key ASC")

	query, args := sb.Build()
	var stats []models.Stat
	if err := r.db.SelectContext(ctx, &stats, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to list stats by selection")
		return nil, echo.NewHTTPError(http.StatusInternalServerError, "failed to list stats")
	}

	return stats, nil
}

// ListByCard retrieves all stats for a card's selections
func (r *Repository) ListByCard(ctx context.Context, cardID string) ([]models.Stat, error) {
	ctx, span := tracing.StartSpan(ctx, "stat.Repository.ListByCard")
	defer span.End()

	query := fmt.Sprintf(`
		SELECT %s
		FROM stats st
		JOIN selections s ON s.id = st.selection_id
		WHERE s.card_id = $1
		ORDER BY st.period_size_days ASC, st.modification_key ASC
	`, prefixed("st"))

	var stats []models.Stat
	if err := r.db.SelectContext(ctx, &stats, query, cardID); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to list stats by card")
		return nil, echo.NewHTTPError(http.StatusInternalServerError, "failed to list stats")
	}

	return stats, nil
}

// ListDue retrieves stats whose next calculation time has passed
func (r *Repository) ListDue(ctx context.Context, limit int) ([]models.Stat, error) {
	ctx, span := tracing.StartSpan(ctx, "stat.Repository.ListDue")
	defer span.End()

	if limit < 1 || limit > 500 {
		limit = 100
	}

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(columns...)
	sb.From("stats")
	sb.Where(sb.LessEqualThan("next_calculation_time", time.Now().UTC()))
	sb.OrderBy("next_calculation_time ASC")
	sb.Limit(limit)

	query, args := sb.Build()
	var stats []models.Stat
	if err := r.db.SelectContext(ctx, &stats, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to list due stats")
		return nil, echo.NewHTTPError(http.StatusInternalServerError, "failed to list due stats")
	}

	return stats, nil
}

// DeleteBySelectionIDs removes all stats belonging to the given selections.
// Called before the selections themselves are deleted so no stat is left
// pointing at a missing selection.
func (r *Repository) DeleteBySelectionIDs(ctx context.Context, selectionIDs []string) error {
	ctx, span := tracing.StartSpan(ctx, "stat.Repository.DeleteBySelectionIDs")
	defer span.End()

	if len(selectionIDs) == 0 {
		return nil
	}

	sb := sqlbuilder.PostgreSQL.NewDeleteBuilder()
	sb.DeleteFrom("stats")
	sb.Where(sb.In("selection_id", idsToAny(selectionIDs)...))

	query, args := sb.Build()
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to delete stats by selection")
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to delete stats")
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
