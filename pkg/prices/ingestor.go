// Package prices ingests externally reported sold prices, shared by the
// HTTP surface and the kafka feed consumer.
package prices

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"

	"github.com/Ramsey-B/fern/internal/logging"
	"github.com/Ramsey-B/fern/internal/tracing"
	"github.com/Ramsey-B/fern/pkg/kafka"
	"github.com/Ramsey-B/fern/pkg/models"
)

// PriceStore persists sold prices
type PriceStore interface {
	Upsert(ctx context.Context, price *models.SoldPrice) (*models.SoldPrice, bool, error)
}

// MembershipSyncer assigns a price its selection memberships
type MembershipSyncer interface {
	SyncSoldPrice(ctx context.Context, price *models.SoldPrice) ([]string, error)
}

// EventEmitter publishes price events
type EventEmitter interface {
	EmitPriceRecorded(ctx context.Context, price *models.SoldPrice, created bool) error
}

// Ingestor validates and records incoming sold price reports
type Ingestor struct {
	prices   PriceStore
	syncer   MembershipSyncer
	emitter  EventEmitter
	validate *validator.Validate
	logger   logging.Logger
}

// NewIngestor creates an Ingestor
func NewIngestor(prices PriceStore, syncer MembershipSyncer, emitter EventEmitter, logger logging.Logger) *Ingestor {
	return &Ingestor{
		prices:   prices,
		syncer:   syncer,
		emitter:  emitter,
		validate: validator.New(),
		logger:   logger,
	}
}

// Ingest records one sold price report. Reports are idempotent on
// (source_type, source_id); a replay merges memberships instead of creating
// a duplicate. Returns the stored price and whether it was newly created.
func (i *Ingestor) Ingest(ctx context.Context, req *models.UpsertSoldPriceRequest) (*models.SoldPrice, bool, error) {
	ctx, span := tracing.StartSpan(ctx, "prices.Ingestor.Ingest")
	defer span.End()

	if err := i.validate.Struct(req); err != nil {
		return nil, false, echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	price := &models.SoldPrice{
		CardID:              req.CardID,
		Condition:           req.Condition,
		Amount:              req.Amount,
		Currency:            req.Currency,
		SoldAt:              req.SoldAt,
		SourceType:          req.SourceType,
		SourceID:            req.SourceID,
		GradingCompany:      req.GradingCompany,
		Grade:               req.Grade,
		SearchDefinitionIDs: models.StringSlice(req.SearchDefinitionIDs),
	}

	stored, created, err := i.prices.Upsert(ctx, price)
	if err != nil {
		return nil, false, err
	}

	if _, err := i.syncer.SyncSoldPrice(ctx, stored); err != nil {
		return nil, false, err
	}

	if err := i.emitter.EmitPriceRecorded(ctx, stored, created); err != nil {
		i.logger.WithContext(ctx).WithError(err).Warn("Failed to emit price event")
	}

	i.logger.WithContext(ctx).WithFields(map[string]any{
		"price_id": stored.ID,
		"source":   string(stored.SourceType) + "/" + stored.SourceID,
		"created":  created,
	}).Info("Ingested sold price")

	return stored, created, nil
}

// HandleMessage adapts Ingest to the kafka consumer. Malformed payloads and
// validation failures are logged and dropped rather than retried; storage
// errors propagate so the offset is not committed.
func (i *Ingestor) HandleMessage(ctx context.Context, msg *kafka.IncomingMessage) error {
	var req models.UpsertSoldPriceRequest
	if err := json.Unmarshal(msg.Value, &req); err != nil {
		i.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"topic":  msg.Topic,
			"offset": msg.Offset,
		}).Error("Dropping undecodable sold price message")
		return nil
	}

	_, _, err := i.Ingest(ctx, &req)
	if httpErr, ok := err.(*echo.HTTPError); ok && httpErr.Code == http.StatusBadRequest {
		i.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"topic":  msg.Topic,
			"offset": msg.Offset,
		}).Error("Dropping invalid sold price message")
		return nil
	}
	return err
}
