// Package events handles event emission for price discovery changes
package events

import (
	"context"
	"encoding/json"

	"github.com/Ramsey-B/fern/internal/logging"
	"github.com/Ramsey-B/fern/internal/tracing"
	"github.com/Ramsey-B/fern/pkg/kafka"
	"github.com/Ramsey-B/fern/pkg/models"
)

// SchemaVersion is the current event schema version
const SchemaVersion = "1.0"

// Publisher is the producer surface the emitter needs
type Publisher interface {
	PublishPriceEvent(ctx context.Context, event *kafka.PriceEvent) error
}

// Emitter publishes domain events for downstream consumers
type Emitter struct {
	producer Publisher
	logger   logging.Logger
}

// NewEmitter creates a new event emitter
func NewEmitter(producer Publisher, logger logging.Logger) *Emitter {
	return &Emitter{
		producer: producer,
		logger:   logger,
	}
}

// EmitListingEnded emits an event when a listing reaches a terminal state
func (e *Emitter) EmitListingEnded(ctx context.Context, listing *models.Listing) error {
	ctx, span := tracing.StartSpan(ctx, "events.Emitter.EmitListingEnded")
	defer span.End()

	data, _ := json.Marshal(map[string]any{
		"schema_version": SchemaVersion,
		"state":          listing.State,
		"state_reason":   listing.StateReason,
		"final_price":    listing.CurrentPrice,
		"currency":       listing.Currency,
		"bid_count":      listing.BidCount,
	})

	event := &kafka.PriceEvent{
		EventType: "listing.ended",
		CardID:    listing.CardID,
		SubjectID: listing.ID,
		Data:      data,
	}

	if err := e.producer.PublishPriceEvent(ctx, event); err != nil {
		e.logger.WithContext(ctx).WithError(err).Error("Failed to emit listing.ended event")
		return err
	}

	return nil
}

// EmitPriceRecorded emits price.created for new sold prices and
// price.updated when an observation merged into an existing record
func (e *Emitter) EmitPriceRecorded(ctx context.Context, price *models.SoldPrice, created bool) error {
	ctx, span := tracing.StartSpan(ctx, "events.Emitter.EmitPriceRecorded")
	defer span.End()

	eventType := "price.updated"
	if created {
		eventType = "price.created"
	}

	data, _ := json.Marshal(map[string]any{
		"schema_version":   SchemaVersion,
		"amount":           price.Amount,
		"currency":         price.Currency,
		"condition":        price.Condition,
		"sold_at":          price.SoldAt,
		"source_type":      price.SourceType,
		"modification_key": price.ModificationKey(),
	})

	event := &kafka.PriceEvent{
		EventType: eventType,
		CardID:    price.CardID,
		SubjectID: price.ID,
		Data:      data,
	}

	if err := e.producer.PublishPriceEvent(ctx, event); err != nil {
		e.logger.WithContext(ctx).WithError(err).Error("Failed to emit price event")
		return err
	}

	return nil
}

// EmitStatsCalculated emits an event after a stat recomputation
func (e *Emitter) EmitStatsCalculated(ctx context.Context, cardID string, stat *models.Stat) error {
	ctx, span := tracing.StartSpan(ctx, "events.Emitter.EmitStatsCalculated")
	defer span.End()

	data, _ := json.Marshal(map[string]any{
		"schema_version":   SchemaVersion,
		"selection_id":     stat.SelectionID,
		"period_size_days": stat.PeriodSizeDays,
		"modification_key": stat.ModificationKey,
		"stats":            stat.Stats,
	})

	event := &kafka.PriceEvent{
		EventType: "stats.calculated",
		CardID:    cardID,
		SubjectID: stat.ID,
		Data:      data,
	}

	if err := e.producer.PublishPriceEvent(ctx, event); err != nil {
		e.logger.WithContext(ctx).WithError(err).Error("Failed to emit stats.calculated event")
		return err
	}

	return nil
}
