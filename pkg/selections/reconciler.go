package selections

import (
	"context"

	"github.com/Ramsey-B/fern/internal/logging"
	"github.com/Ramsey-B/fern/internal/tracing"
	"github.com/Ramsey-B/fern/pkg/keywords"
	"github.com/Ramsey-B/fern/pkg/models"
)

// Reconciler repairs both directions of the selection relationship: pulling
// matching members into a selection, pushing a member's exact selection set,
// and collapsing duplicate selections onto a single survivor.
type Reconciler struct {
	manager     *Manager
	selections  SelectionStore
	listings    ListingStore
	soldPrices  SoldPriceStore
	stats       StatStore
	definitions DefinitionStore
	matcher     *keywords.Matcher
	logger      logging.Logger
}

// NewReconciler creates a Reconciler
func NewReconciler(manager *Manager, selections SelectionStore, listings ListingStore, soldPrices SoldPriceStore, stats StatStore, definitions DefinitionStore, logger logging.Logger) *Reconciler {
	return &Reconciler{
		manager:     manager,
		selections:  selections,
		listings:    listings,
		soldPrices:  soldPrices,
		stats:       stats,
		definitions: definitions,
		matcher:     keywords.NewMatcher(),
		logger:      logger,
	}
}

// MatchesListing reports whether a listing belongs in a selection: every
// dimension must agree and the listing title must satisfy the definition's
// keywords.
func (r *Reconciler) MatchesListing(selection *models.Selection, def *models.SearchDefinition, listing *models.Listing) bool {
	if selection.PriceKind != models.PriceKindListing ||
		selection.CardID != listing.CardID ||
		selection.Condition != listing.Condition ||
		selection.Currency != listing.Currency {
		return false
	}
	if !listing.SearchDefinitionIDs.Contains(selection.SearchDefinitionID) {
		return false
	}
	return r.matcher.Validate(def, listing.Name).IsValid
}

// MatchesSoldPrice reports whether a sold price belongs in a selection.
// Sold prices carry no title, so membership is purely dimensional.
func (r *Reconciler) MatchesSoldPrice(selection *models.Selection, price *models.SoldPrice) bool {
	return selection.PriceKind == models.PriceKindSold &&
		selection.CardID == price.CardID &&
		selection.Condition == price.Condition &&
		selection.Currency == price.Currency &&
		price.SearchDefinitionIDs.Contains(selection.SearchDefinitionID)
}

// ReconcileSelection repairs a selection's membership in both directions and
// marks the selection reconciled. Candidates are the listings or sold prices
// sharing the selection's search definition: those that match the predicate
// gain the selection's id, those that hold it without matching lose it.
// Returns how many joined.
func (r *Reconciler) ReconcileSelection(ctx context.Context, selectionID string) (int, error) {
	ctx, span := tracing.StartSpan(ctx, "selections.Reconciler.ReconcileSelection")
	defer span.End()

	selection, err := r.selections.Get(ctx, selectionID)
	if err != nil {
		return 0, err
	}

	def, err := r.definitions.Get(ctx, selection.SearchDefinitionID)
	if err != nil {
		return 0, err
	}

	joined := 0
	removed := 0
	switch selection.PriceKind {
	case models.PriceKindListing:
		candidates, err := r.listings.ListBySearchDefinition(ctx, selection.SearchDefinitionID)
		if err != nil {
			return 0, err
		}
		for i := range candidates {
			candidate := &candidates[i]
			matches := r.MatchesListing(selection, def, candidate)
			holds := candidate.SelectionIDs.Contains(selection.ID)
			switch {
			case matches && !holds:
				updated := append([]string{}, candidate.SelectionIDs...)
				updated = append(updated, selection.ID)
				if err := r.listings.SetSelectionIDs(ctx, candidate.ID, updated); err != nil {
					return joined, err
				}
				joined++
			case !matches && holds:
				if err := r.listings.SetSelectionIDs(ctx, candidate.ID, removeID(candidate.SelectionIDs, selection.ID)); err != nil {
					return joined, err
				}
				removed++
			}
		}
	case models.PriceKindSold:
		candidates, err := r.soldPrices.ListBySearchDefinition(ctx, selection.SearchDefinitionID)
		if err != nil {
			return 0, err
		}
		for i := range candidates {
			candidate := &candidates[i]
			matches := r.MatchesSoldPrice(selection, candidate)
			holds := candidate.SelectionIDs.Contains(selection.ID)
			switch {
			case matches && !holds:
				updated := append([]string{}, candidate.SelectionIDs...)
				updated = append(updated, selection.ID)
				if err := r.soldPrices.SetSelectionIDs(ctx, candidate.ID, updated); err != nil {
					return joined, err
				}
				joined++
			case !matches && holds:
				if err := r.soldPrices.SetSelectionIDs(ctx, candidate.ID, removeID(candidate.SelectionIDs, selection.ID)); err != nil {
					return joined, err
				}
				removed++
			}
		}
	}

	if err := r.selections.MarkReconciled(ctx, selection.ID); err != nil {
		return joined, err
	}

	r.logger.WithContext(ctx).WithFields(map[string]any{
		"selection_id": selection.ID,
		"joined":       joined,
		"removed":      removed,
	}).Info("Reconciled selection")

	return joined, nil
}

// SyncListing recomputes a listing's exact selection set from its current
// dimensions, creating missing selections on the way. The stored set is
// replaced, so memberships that no longer hold are dropped.
func (r *Reconciler) SyncListing(ctx context.Context, listing *models.Listing) ([]string, error) {
	ctx, span := tracing.StartSpan(ctx, "selections.Reconciler.SyncListing")
	defer span.End()

	defs, err := r.definitions.GetMany(ctx, listing.SearchDefinitionIDs)
	if err != nil {
		return nil, err
	}

	var selectionIDs []string
	for i := range defs {
		def := &defs[i]
		if !r.matcher.Validate(def, listing.Name).IsValid {
			continue
		}
		selection, err := r.manager.FindOrCreate(ctx, listing.CardID, models.PriceKindListing, listing.Condition, listing.Currency, def.ID)
		if err != nil {
			return nil, err
		}
		selectionIDs = append(selectionIDs, selection.ID)
	}

	if !sameSet(listing.SelectionIDs, selectionIDs) {
		if err := r.listings.SetSelectionIDs(ctx, listing.ID, selectionIDs); err != nil {
			return nil, err
		}
		listing.SelectionIDs = models.StringSlice(selectionIDs)
	}

	return selectionIDs, nil
}

// SyncSoldPrice recomputes a sold price's exact selection set
func (r *Reconciler) SyncSoldPrice(ctx context.Context, price *models.SoldPrice) ([]string, error) {
	ctx, span := tracing.StartSpan(ctx, "selections.Reconciler.SyncSoldPrice")
	defer span.End()

	var selectionIDs []string
	for _, defID := range price.SearchDefinitionIDs {
		selection, err := r.manager.FindOrCreate(ctx, price.CardID, models.PriceKindSold, price.Condition, price.Currency, defID)
		if err != nil {
			return nil, err
		}
		selectionIDs = append(selectionIDs, selection.ID)
	}

	if !sameSet(price.SelectionIDs, selectionIDs) {
		if err := r.soldPrices.SetSelectionIDs(ctx, price.ID, selectionIDs); err != nil {
			return nil, err
		}
		price.SelectionIDs = models.StringSlice(selectionIDs)
	}

	return selectionIDs, nil
}

// EnforceUniqueness collapses duplicate selections sharing a dimension tuple
// onto a single survivor: the newest by creation time, ties broken by ID.
// Losers have their stats deleted before the selections themselves go, and
// member sets are rewritten to point at the survivor.
func (r *Reconciler) EnforceUniqueness(ctx context.Context) (int, error) {
	ctx, span := tracing.StartSpan(ctx, "selections.Reconciler.EnforceUniqueness")
	defer span.End()

	duplicates, err := r.selections.ListDuplicates(ctx)
	if err != nil {
		return 0, err
	}
	if len(duplicates) == 0 {
		return 0, nil
	}

	removed := 0
	for _, group := range groupByDimension(duplicates) {
		survivor := group[0]
		losers := group[1:]

		loserIDs := make([]string, len(losers))
		for i, loser := range losers {
			loserIDs[i] = loser.ID
		}

		// stats first so nothing is ever left pointing at a dead selection
		if err := r.stats.DeleteBySelectionIDs(ctx, loserIDs); err != nil {
			return removed, err
		}

		if err := r.repointMembers(ctx, &survivor, loserIDs); err != nil {
			return removed, err
		}

		if err := r.selections.Delete(ctx, loserIDs); err != nil {
			return removed, err
		}
		removed += len(loserIDs)

		r.logger.WithContext(ctx).WithFields(map[string]any{
			"survivor_id": survivor.ID,
			"removed":     len(loserIDs),
		}).Info("Collapsed duplicate selections")
	}

	return removed, nil
}

func (r *Reconciler) repointMembers(ctx context.Context, survivor *models.Selection, loserIDs []string) error {
	for _, loserID := range loserIDs {
		switch survivor.PriceKind {
		case models.PriceKindListing:
			members, err := r.listings.ListBySelection(ctx, loserID)
			if err != nil {
				return err
			}
			for i := range members {
				member := &members[i]
				if err := r.listings.SetSelectionIDs(ctx, member.ID, replaceID(member.SelectionIDs, loserID, survivor.ID)); err != nil {
					return err
				}
			}
		case models.PriceKindSold:
			members, err := r.soldPrices.ListActiveBySelection(ctx, loserID)
			if err != nil {
				return err
			}
			for i := range members {
				member := &members[i]
				if err := r.soldPrices.SetSelectionIDs(ctx, member.ID, replaceID(member.SelectionIDs, loserID, survivor.ID)); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

// groupByDimension splits the ordered duplicate rows into their dimension
// groups, preserving the newest-first ordering within each group
func groupByDimension(selections []models.Selection) [][]models.Selection {
	var groups [][]models.Selection
	var current []models.Selection
	for i := range selections {
		s := selections[i]
		if len(current) > 0 && current[0].DimensionKey() != s.DimensionKey() {
			groups = append(groups, current)
			current = nil
		}
		current = append(current, s)
	}
	if len(current) > 0 {
		groups = append(groups, current)
	}
	return groups
}

func removeID(ids []string, id string) []string {
	out := make([]string, 0, len(ids))
	for _, existing := range ids {
		if existing != id {
			out = append(out, existing)
		}
	}
	return out
}

func replaceID(ids []string, old, replacement string) []string {
	out := make([]string, 0, len(ids))
	seen := map[string]struct{}{}
	for _, id := range ids {
		if id == old {
			id = replacement
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

func sameSet(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	set := make(map[string]struct{}, len(a))
	for _, id := range a {
		set[id] = struct{}{}
	}
	for _, id := range b {
		if _, ok := set[id]; !ok {
			return false
		}
	}
	return true
}
