// Package lifecycle drives the listing state machine: each check observes a
// listing on the marketplace and moves it between OPEN, ENDED, and UNKNOWN.
package lifecycle

import (
	"context"
	"strings"
	"time"

	"github.com/Ramsey-B/fern/config"
	"github.com/Ramsey-B/fern/internal/logging"
	"github.com/Ramsey-B/fern/internal/tracing"
	"github.com/Ramsey-B/fern/pkg/condition"
	"github.com/Ramsey-B/fern/pkg/extract"
	"github.com/Ramsey-B/fern/pkg/fetch"
	"github.com/Ramsey-B/fern/pkg/keywords"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/opportunity"
	"github.com/Ramsey-B/fern/pkg/schedule"
)

// terminal listings get a slow re-verification cadence until archival claims them
const endedRecheckInterval = 7 * 24 * time.Hour

// ListingStore is the listing persistence surface the tracker needs
type ListingStore interface {
	Get(ctx context.Context, id string) (*models.Listing, error)
	Update(ctx context.Context, listing *models.Listing) error
	SetNextCheckTime(ctx context.Context, id string, next time.Time) error
}

// SoldPriceStore records realized prices
type SoldPriceStore interface {
	Upsert(ctx context.Context, price *models.SoldPrice) (*models.SoldPrice, bool, error)
}

// DefinitionStore loads the search definitions a listing was sourced by
type DefinitionStore interface {
	GetMany(ctx context.Context, ids []string) ([]models.SearchDefinition, error)
}

// Fetcher loads the listing's marketplace page
type Fetcher interface {
	ListingPage(ctx context.Context, url string) (string, error)
}

// Extractor parses a fetched page
type Extractor interface {
	ListingPage(html string) (*models.ListingPage, error)
}

// MembershipSyncer keeps selection memberships in step with observed dimensions
type MembershipSyncer interface {
	SyncListing(ctx context.Context, listing *models.Listing) ([]string, error)
	SyncSoldPrice(ctx context.Context, price *models.SoldPrice) ([]string, error)
}

// SoldStatsProvider supplies the sold price aggregates opportunity scoring
// compares against. A nil result means no usable stats exist yet.
type SoldStatsProvider interface {
	SoldStats(ctx context.Context, listing *models.Listing) (*opportunity.SoldStats, error)
}

// EventEmitter publishes lifecycle events
type EventEmitter interface {
	EmitListingEnded(ctx context.Context, listing *models.Listing) error
	EmitPriceRecorded(ctx context.Context, price *models.SoldPrice, created bool) error
}

// Tracker checks listings against the marketplace and applies state transitions
type Tracker struct {
	listings   ListingStore
	soldPrices SoldPriceStore
	defs       DefinitionStore
	fetcher    Fetcher
	extractor  Extractor
	syncer     MembershipSyncer
	soldStats  SoldStatsProvider
	emitter    EventEmitter
	classifier *condition.Classifier
	scorer     *opportunity.Scorer
	matcher    *keywords.Matcher
	logger     logging.Logger

	ageCutoff     time.Duration
	retryInterval time.Duration
	now           func() time.Time
}

// NewTracker creates a Tracker
func NewTracker(cfg config.Config, listings ListingStore, soldPrices SoldPriceStore, defs DefinitionStore, fetcher Fetcher, extractor Extractor, syncer MembershipSyncer, soldStats SoldStatsProvider, emitter EventEmitter, logger logging.Logger) *Tracker {
	return &Tracker{
		listings:      listings,
		soldPrices:    soldPrices,
		defs:          defs,
		fetcher:       fetcher,
		extractor:     extractor,
		syncer:        syncer,
		soldStats:     soldStats,
		emitter:       emitter,
		classifier:    condition.NewClassifier(),
		scorer:        opportunity.NewScorer(),
		matcher:       keywords.NewMatcher(),
		logger:        logger,
		ageCutoff:     time.Duration(cfg.ListingAgeCutoffDays) * 24 * time.Hour,
		retryInterval: cfg.FetchFailureRetryInterval,
		now:           time.Now,
	}
}

// CheckListing observes a listing once and applies the resulting transition.
// A failed fetch only pushes the next check out; every other outcome rewrites
// the listing's state, history, opportunity, and schedule.
func (t *Tracker) CheckListing(ctx context.Context, id string) (*models.Listing, error) {
	ctx, span := tracing.StartSpan(ctx, "lifecycle.Tracker.CheckListing")
	defer span.End()

	listing, err := t.listings.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if listing.ArchivedAt != nil {
		return listing, nil
	}

	now := t.now().UTC()

	html, err := t.fetcher.ListingPage(ctx, listing.URL)
	if err != nil {
		if fetch.IsNotFound(err) {
			return t.markUnknown(ctx, listing, models.ReasonListingMissing, "page no longer exists", now)
		}
		// transient failure: leave the listing untouched and retry later
		t.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"listing_id": listing.ID}).Warn("Listing check fetch failed")
		if err := t.listings.SetNextCheckTime(ctx, listing.ID, now.Add(t.retryInterval)); err != nil {
			return nil, err
		}
		return listing, nil
	}

	page, err := t.extractor.ListingPage(html)
	if err != nil {
		if extract.IsParseError(err) {
			return t.markUnknown(ctx, listing, models.ReasonUnparsablePage, err.Error(), now)
		}
		return nil, err
	}

	t.applyObservation(listing, page, now)

	mismatch, err := t.nameMismatch(ctx, listing)
	if err != nil {
		return nil, err
	}
	if mismatch {
		return t.markUnknown(ctx, listing, models.ReasonNameMismatch, "title no longer matches any search definition", now)
	}

	if !page.IsLive {
		return t.endListing(ctx, listing, page, now)
	}

	// the age cutoff only stops tracking live pages; an ended page still gets
	// its sale recorded no matter how old the listing is
	if listing.Age(now) > t.ageCutoff {
		return t.markUnknown(ctx, listing, models.ReasonAgedOut, "tracked past the age cutoff", now)
	}

	return t.continueOpen(ctx, listing, now)
}

// applyObservation copies the page's observed fields onto the listing and
// records the snapshot
func (t *Tracker) applyObservation(listing *models.Listing, page *models.ListingPage, now time.Time) {
	listing.Name = page.Title
	listing.CurrentPrice = page.Price
	listing.Currency = page.Currency
	listing.BuyNowPrice = page.BuyNowPrice
	listing.BidCount = page.BidCount
	if page.EndTime != nil {
		listing.EndTime = page.EndTime
	}
	listing.SellerNotes = page.SellerNotes
	if len(page.ItemSpecifics) > 0 {
		listing.ItemSpecifics = page.ItemSpecifics
	}
	if page.Description != "" {
		listing.Description = page.Description
	}
	if len(page.ImageURLs) > 0 {
		listing.ImageURLs = models.StringSlice(page.ImageURLs)
	}

	listing.Condition = t.classifier.Classify(condition.Input{
		ItemSpecifics: listing.ItemSpecifics,
		Title:         listing.Name,
		SellerNotes:   listing.SellerNotes,
		Description:   listing.Description,
	})

	listing.AppendHistory(models.HistoryEntry{
		Amount:     listing.CurrentPrice,
		BidCount:   listing.BidCount,
		ObservedAt: now,
	})
}

func (t *Tracker) nameMismatch(ctx context.Context, listing *models.Listing) (bool, error) {
	defs, err := t.defs.GetMany(ctx, listing.SearchDefinitionIDs)
	if err != nil {
		return false, err
	}
	if len(defs) == 0 {
		return false, nil
	}
	for i := range defs {
		if t.matcher.Validate(&defs[i], listing.Name).IsValid {
			return false, nil
		}
	}
	return true, nil
}

func (t *Tracker) markUnknown(ctx context.Context, listing *models.Listing, kind models.StateReasonKind, detail string, now time.Time) (*models.Listing, error) {
	listing.State = models.ListingStateUnknown
	listing.StateReason = models.NullReason{Reason: models.NewReason(kind, detail)}
	listing.BuyingOpportunity = models.NullOpportunity{}
	listing.NextCheckTime = schedule.NextListingCheck(listing.EndTime, false, listing.Age(now), now)

	if err := t.listings.Update(ctx, listing); err != nil {
		return nil, err
	}

	t.logger.WithContext(ctx).WithFields(map[string]any{
		"listing_id": listing.ID,
		"reason":     kind,
	}).Info("Listing moved to unknown state")

	return listing, nil
}

func (t *Tracker) continueOpen(ctx context.Context, listing *models.Listing, now time.Time) (*models.Listing, error) {
	listing.State = models.ListingStateOpen
	listing.StateReason = models.NullReason{}

	stats, err := t.soldStats.SoldStats(ctx, listing)
	if err != nil {
		return nil, err
	}

	listing.BuyingOpportunity = models.NullOpportunity{}
	if stats != nil {
		score := t.scorer.Score(opportunity.Input{
			Price:       listing.CurrentPrice,
			BuyNowPrice: listing.BuyNowPrice,
			BidCount:    listing.BidCount,
			EndTime:     listing.EndTime,
			Sold:        *stats,
		}, now)
		listing.BuyingOpportunity = models.NullOpportunity{Score: score}
	}

	listing.NextCheckTime = schedule.NextListingCheck(listing.EndTime, listing.BuyingOpportunity.Score != nil, listing.Age(now), now)

	if _, err := t.syncer.SyncListing(ctx, listing); err != nil {
		return nil, err
	}

	if err := t.listings.Update(ctx, listing); err != nil {
		return nil, err
	}

	return listing, nil
}

func (t *Tracker) endListing(ctx context.Context, listing *models.Listing, page *models.ListingPage, now time.Time) (*models.Listing, error) {
	// a best-offer close publishes no sale amount, so it never records a
	// price; bids only count as a sale when the close message is about bidding
	message := strings.ToLower(page.EndMessage)
	sold := !page.BestOfferAccepted &&
		(strings.Contains(message, "sold") ||
			(strings.Contains(message, "bidding") && listing.BidCount > 0))

	listing.State = models.ListingStateEnded
	listing.BuyingOpportunity = models.NullOpportunity{}
	listing.NextCheckTime = now.Add(endedRecheckInterval)

	if sold {
		listing.StateReason = models.NullReason{Reason: models.NewReason(models.ReasonEndedWithSale, page.EndMessage)}

		soldAt := now
		if listing.EndTime != nil && listing.EndTime.Before(now) {
			soldAt = *listing.EndTime
		}
		price := &models.SoldPrice{
			CardID:              listing.CardID,
			Condition:           listing.Condition,
			Amount:              listing.CurrentPrice,
			Currency:            listing.Currency,
			SoldAt:              soldAt,
			SourceType:          models.SourceMarketplaceListing,
			SourceID:            listing.ID,
			SearchDefinitionIDs: listing.SearchDefinitionIDs,
		}

		stored, created, err := t.soldPrices.Upsert(ctx, price)
		if err != nil {
			return nil, err
		}
		if _, err := t.syncer.SyncSoldPrice(ctx, stored); err != nil {
			return nil, err
		}
		if created {
			if err := t.emitter.EmitPriceRecorded(ctx, stored, true); err != nil {
				t.logger.WithContext(ctx).WithError(err).Warn("Failed to emit price event")
			}
		}
	} else {
		listing.StateReason = models.NullReason{Reason: models.NewReason(models.ReasonEndedWithoutSale, page.EndMessage)}
	}

	if err := t.listings.Update(ctx, listing); err != nil {
		return nil, err
	}

	if err := t.emitter.EmitListingEnded(ctx, listing); err != nil {
		t.logger.WithContext(ctx).WithError(err).Warn("Failed to emit listing ended event")
	}

	t.logger.WithContext(ctx).WithFields(map[string]any{
		"listing_id": listing.ID,
		"sold":       sold,
	}).Info("Listing ended")

	return listing, nil
}
