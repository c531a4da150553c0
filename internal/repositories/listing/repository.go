package listing

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
	"id", "card_id", "search_definition_ids", "url", "name", "seller_notes",
	"item_specifics", "description", "image_urls", "current_price", "currency",
	"buy_now_price", "bid_count", "end_time", "condition", "state",
	"state_reason", "buying_opportunity", "history", "selection_ids",
	"next_check_time", "created_at", "updated_at", "archived_at",
}

// Repository handles listing persistence
type Repository struct {
	db     database.DB
	logger logging.Logger
}

// NewRepository creates a new listing repository
func NewRepository(db database.DB, logger logging.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: logger,
	}
}

// Create creates a new listing
func (r *Repository) Create(ctx context.Context, listing *models.Listing) (*models.Listing, error) {
	ctx, span := tracing.StartSpan(ctx, "listing.Repository.Create")
	defer span.End()

	if listing.ID == "" {
		listing.ID = uuid.New().String()
	}
	listing.CreatedAt = time.Now().UTC()
	listing.UpdatedAt = listing.CreatedAt
	if listing.State == "" {
		listing.State = models.ListingStateOpen
	}

	sb := sqlbuilder.PostgreSQL.NewInsertBuilder()
	sb.InsertInto("listings")
	sb.Cols(columns...)
	sb.Values(
		listing.ID, listing.CardID, listing.SearchDefinitionIDs, listing.URL, listing.Name, listing.SellerNotes,
		listing.ItemSpecifics, listing.Description, listing.ImageURLs, listing.CurrentPrice, listing.Currency,
		listing.BuyNowPrice, listing.BidCount, listing.EndTime, listing.Condition, listing.State,
		listing.StateReason, listing.BuyingOpportunity, listing.History, listing.SelectionIDs,
		listing.NextCheckTime, listing.CreatedAt, listing.UpdatedAt, listing.ArchivedAt,
	)

	query, args := sb.Build()
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"listing_id": listing.ID}).Error("Failed to create listing")
		return nil, echo.NewHTTPError(http.StatusInternalServerError, "failed to create listing")
	}

	return listing, nil
}

// Get retrieves a listing by ID
func (r *Repository) Get(ctx context.Context, id string) (*models.Listing, error) {
	ctx, span := tracing.StartSpan(ctx, "listing.Repository.Get")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(columns...)
	sb.From("listings")
	sb.Where(sb.Equal("id", id))

	query, args := sb.Build()
	var listing models.Listing
	if err := r.db.GetContext(ctx, &listing, query, args...); err != nil {
		if err.Error() == "sql: no rows in result set" {
			return nil, echo.NewHTTPError(http.StatusNotFound, fmt.Sprintf("listing %s not found", id))
		}
		r.logger.WithContext(ctx).WithError(err).Error("Failed to get listing")
		return nil, echo.NewHTTPError(http.StatusInternalServerError, "failed to get listing")
	}

	return &listing, nil
}

// GetByURL gets a listing by its marketplace URL, or nil when none exists
func (r *Repository) GetByURL(ctx context.Context, url string) (*models.Listing, error) {
	ctx, span := tracing.StartSpan(ctx, "listing.Repository.GetByURL")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(columns...)
	sb.From("listings")
	sb.Where(sb.Equal("url", url))
	sb.Limit(1)

	query, args := sb.Build()
	var listing models.Listing
	if err := r.db.GetContext(ctx, &listing, query, args...); err != nil {
		if err.Error() == "sql: no rows in result set" {
			return nil, nil // No existing listing
		}
		r.logger.WithContext(ctx).WithError(err).Error("Failed to get listing by url")
		return nil, echo.NewHTTPError(http.StatusInternalServerError, "failed to get listing")
	}

	return &listing, nil
}

// Update persists the mutable fields of a listing
func (r *Repository) Update(ctx context.Context, listing *models.Listing) error {
	ctx, span := tracing.StartSpan(ctx, "listing.Repository.Update")
	defer span.End()

	listing.UpdatedAt = time.Now().UTC()

	sb := sqlbuilder.PostgreSQL.NewUpdateBuilder()
	sb.Update("listings")
	sb.Set(
		sb.Assign("search_definition_ids", listing.SearchDefinitionIDs),
		sb.Assign("name", listing.Name),
		sb.Assign("seller_notes", listing.SellerNotes),
		sb.Assign("item_specifics", listing.ItemSpecifics),
		sb.Assign("description", listing.Description),
		sb.Assign("image_urls", listing.ImageURLs),
		sb.Assign("current_price", listing.CurrentPrice),
		sb.Assign("buy_now_price", listing.BuyNowPrice),
		sb.Assign("bid_count", listing.BidCount),
		sb.Assign("end_time", listing.EndTime),
		sb.Assign("condition", listing.Condition),
		sb.Assign("state", listing.State),
		sb.Assign("state_reason", listing.StateReason),
		sb.Assign("buying_opportunity", listing.BuyingOpportunity),
		sb.Assign("history", listing.History),
		sb.Assign("selection_ids", listing.SelectionIDs),
		sb.Assign("next_check_time", listing.NextCheckTime),
		sb.Assign("updated_at", listing.UpdatedAt),
		sb.Assign("archived_at", listing.ArchivedAt),
	)
	sb.Where(sb.Equal("id", listing.ID))

	query, args := sb.Build()
	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"listing_id": listing.ID}).Error("Failed to update listing")
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to update listing")
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return echo.NewHTTPError(http.StatusNotFound, fmt.Sprintf("listing %s not found", listing.ID))
	}

	return nil
}

// SetNextCheckTime reschedules a listing without touching anything else.
// Used when a fetch fails and the observation has to be retried later.
func (r *Repository) SetNextCheckTime(ctx context.Context, id string, next time.Time) error {
	ctx, span := tracing.StartSpan(ctx, "listing.Repository.SetNextCheckTime")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewUpdateBuilder()
	sb.Update("listings")
	sb.Set(
		sb.Assign("next_check_time", next),
		sb.Assign("updated_at", time.Now().UTC()),
	)
	sb.Where(sb.Equal("id", id))

	query, args := sb.Build()
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"listing_id": id}).Error("Failed to set next check time")
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to set next check time")
	}

	return nil
}

// SetSelectionIDs replaces a listing's selection memberships
func (r *Repository) SetSelectionIDs(ctx context.Context, id string, selectionIDs []string) error {
	ctx, span := tracing.StartSpan(ctx, "listing.Repository.SetSelectionIDs")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewUpdateBuilder()
	sb.Update("listings")
	sb.Set(
		sb.Assign("selection_ids", models.StringSlice(selectionIDs)),
		sb.Assign("updated_at", time.Now().UTC()),
	)
	sb.Where(sb.Equal("id", id))

	query, args := sb.Build()
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"listing_id": id}).Error("Failed to set listing selections")
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to set listing selections")
	}

	return nil
}

// ListDue retrieves non-archived listings whose next check time has passed
func (r *Repository) ListDue(ctx context.Context, limit int) ([]models.Listing, error) {
	ctx, span := tracing.StartSpan(ctx, "listing.Repository.ListDue")
	defer span.End()

	if limit < 1 || limit > 500 {
		limit = 100
	}

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(columns...)
	sb.From("listings")
	sb.Where(
		sb.IsNull("archived_at"),
		sb.LessEqualThan("next_check_time", time.Now().UTC()),
	)
	sb.OrderBy("next_check_time ASC")
	sb.Limit(limit)

	query, args := sb.Build()
	var listings []models.Listing
	if err := r.db.SelectContext(ctx, &listings, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to list due listings")
		return nil, echo.NewHTTPError(http.StatusInternalServerError, "failed to list due listings")
	}

	return listings, nil
}

// ListByCard retrieves all non-archived listings for a card
func (r *Repository) ListByCard(ctx context.Context, cardID string) ([]models.Listing, error) {
	ctx, span := tracing.StartSpan(ctx, "listing.Repository.ListByCard")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(columns...)
	sb.From("listings")
	sb.Where(
		sb.Equal("card_id", cardID),
		sb.IsNull("archived_at"),
	)
	sb.OrderBy("created_at DESC")

	query, args := sb.Build()
	var listings []models.Listing
	if err := r.db.SelectContext(ctx, &listings, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to list listings by card")
		return nil, echo.NewHTTPError(http.StatusInternalServerError, "failed to list listings")
	}

	return listings, nil
}

// ListBySearchDefinition retrieves non-archived listings that carry a search
// definition in their membership set
func (r *Repository) ListBySearchDefinition(ctx context.Context, searchDefinitionID string) ([]models.Listing, error) {
	ctx, span := tracing.StartSpan(ctx, "listing.Repository.ListBySearchDefinition")
	defer span.End()

	query := fmt.Sprintf(`
		SELECT %s
		FROM listings
		WHERE archived_at IS NULL
		AND search_definition_ids @> $1::jsonb
		ORDER BY created_at DESC
	`, joinColumns())

	var listings []models.Listing
	if err := r.db.SelectContext(ctx, &listings, query, jsonArray(searchDefinitionID)); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to list listings by search definition")
		return nil, echo.NewHTTPError(http.StatusInternalServerError, "failed to list listings")
	}

	return listings, nil
}

// ListBySelection retrieves non-archived listings that are members of a selection
func (r *Repository) ListBySelection(ctx context.Context, selectionID string) ([]models.Listing, error) {
	ctx, span := tracing.StartSpan(ctx, "listing.Repository.ListBySelection")
	defer span.End()

	query := fmt.Sprintf(`
		SELECT %s
		FROM listings
		WHERE archived_at IS NULL
		AND selection_ids @> $1::jsonb
		ORDER BY created_at DESC
	`, joinColumns())

	var listings []models.Listing
	if err := r.db.SelectContext(ctx, &listings, query, jsonArray(selectionID)); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to list listings by selection")
		return nil, echo.NewHTTPError(http.StatusInternalServerError, "failed to list listings")
	}

	return listings, nil
}

// ListArchivable retrieves terminal listings last touched before the cutoff
func (r *Repository) ListArchivable(ctx context.Context, cutoff time.Time, limit int) ([]models.Listing, error) {
	ctx, span := tracing.StartSpan(ctx, "listing.Repository.ListArchivable")
	defer span.End()

	if limit < 1 || limit > 500 {
		limit = 100
	}

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(columns...)
	sb.From("listings")
	sb.Where(
		sb.IsNull("archived_at"),
		sb.In("state", string(models.ListingStateEnded), string(models.ListingStateUnknown)),
		sb.LessEqualThan("updated_at", cutoff),
	)
	sb.OrderBy("updated_at ASC")
	sb.Limit(limit)

	query, args := sb.Build()
	var listings []models.Listing
	if err := r.db.SelectContext(ctx, &listings, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to list archivable listings")
		return nil, echo.NewHTTPError(http.StatusInternalServerError, "failed to list archivable listings")
	}

	return listings, nil
}

// Archive stamps a listing as archived and drops its selection memberships
func (r *Repository) Archive(ctx context.Context, id string) error {
	ctx, span := tracing.StartSpan(ctx, "listing.Repository.Archive")
	defer span.End()

	now := time.Now().UTC()
	sb := sqlbuilder.PostgreSQL.NewUpdateBuilder()
	sb.Update("listings")
	sb.Set(
		sb.Assign("archived_at", now),
		sb.Assign("selection_ids", models.StringSlice{}),
		sb.Assign("updated_at", now),
	)
	sb.Where(
		sb.Equal("id", id),
		sb.IsNull("archived_at"),
	)

	query, args := sb.Build()
	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"listing_id": id}).Error("Failed to archive listing")
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to archive listing")
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return echo.NewHTTPError(http.StatusNotFound, fmt.Sprintf("listing %s not found or already archived", id))
	}

	return nil
}
