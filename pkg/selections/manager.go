// Package selections maintains the derived price partitions and their
// memberships.
package selections

import (
	"context"

	"github.com/Ramsey-B/fern/internal/logging"
	"github.com/Ramsey-B/fern/internal/tracing"
	"github.com/Ramsey-B/fern/pkg/models"
)

// SelectionStore is the selection persistence surface the package needs
type SelectionStore interface {
	Create(ctx context.Context, selection *models.Selection) (*models.Selection, error)
	Get(ctx context.Context, id string) (*models.Selection, error)
	GetByDimensions(ctx context.Context, cardID string, kind models.PriceKind, condition models.Condition, currency, searchDefinitionID string) (*models.Selection, error)
	ListDuplicates(ctx context.Context) ([]models.Selection, error)
	ListUnreconciled(ctx context.Context, limit int) ([]models.Selection, error)
	MarkReconciled(ctx context.Context, id string) error
	Delete(ctx context.Context, ids []string) error
}

// ListingStore is the listing surface the package needs
type ListingStore interface {
	ListBySearchDefinition(ctx context.Context, searchDefinitionID string) ([]models.Listing, error)
	ListBySelection(ctx context.Context, selectionID string) ([]models.Listing, error)
	SetSelectionIDs(ctx context.Context, id string, selectionIDs []string) error
}

// SoldPriceStore is the sold price surface the package needs
type SoldPriceStore interface {
	ListBySearchDefinition(ctx context.Context, searchDefinitionID string) ([]models.SoldPrice, error)
	ListActiveBySelection(ctx context.Context, selectionID string) ([]models.SoldPrice, error)
	SetSelectionIDs(ctx context.Context, id string, selectionIDs []string) error
}

// StatStore is the stat surface the package needs
type StatStore interface {
	DeleteBySelectionIDs(ctx context.Context, selectionIDs []string) error
}

// DefinitionStore is the search definition surface the package needs
type DefinitionStore interface {
	Get(ctx context.Context, id string) (*models.SearchDefinition, error)
	GetMany(ctx context.Context, ids []string) ([]models.SearchDefinition, error)
}

// Manager creates selections lazily as members need them
type Manager struct {
	selections SelectionStore
	logger     logging.Logger
}

// NewManager creates a Manager
func NewManager(selections SelectionStore, logger logging.Logger) *Manager {
	return &Manager{
		selections: selections,
		logger:     logger,
	}
}

// FindOrCreate returns the selection for a dimension tuple, creating it if
// none exists yet. Creation is not guarded by a lock; concurrent callers may
// briefly produce duplicates, which the uniqueness enforcer heals.
func (m *Manager) FindOrCreate(ctx context.Context, cardID string, kind models.PriceKind, condition models.Condition, currency, searchDefinitionID string) (*models.Selection, error) {
	ctx, span := tracing.StartSpan(ctx, "selections.Manager.FindOrCreate")
	defer span.End()

	existing, err := m.selections.GetByDimensions(ctx, cardID, kind, condition, currency, searchDefinitionID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return existing, nil
	}

	created, err := m.selections.Create(ctx, &models.Selection{
		CardID:             cardID,
		PriceKind:          kind,
		Condition:          condition,
		Currency:           currency,
		SearchDefinitionID: searchDefinitionID,
	})
	if err != nil {
		return nil, err
	}

	m.logger.WithContext(ctx).WithFields(map[string]any{
		"selection_id": created.ID,
		"card_id":      cardID,
		"price_kind":   kind,
	}).Debug("Created selection")

	return created, nil
}
