package models

import "time"

// PriceState is the lifecycle state of a sold price record
type PriceState string

const (
	PriceStateActive   PriceState = "ACTIVE"
	PriceStateInactive PriceState = "INACTIVE"
)

// PriceSourceType identifies where a sold price came from. Together with
// SourceID it forms the idempotency key for upserts.
type PriceSourceType string

const (
	SourceMarketplaceListing PriceSourceType = "MARKETPLACE_LISTING"
	SourceExternalFeed       PriceSourceType = "EXTERNAL_FEED"
)

// UngradedModificationKey partitions raw cards in stats computation
const UngradedModificationKey = "ungraded"

// SoldPrice is a realized transaction price. Created at most once per
// (SourceType, SourceID); re-creation merges into the existing record.
type SoldPrice struct {
	ID                  string          `json:"id" db:"id"`
	CardID              string          `json:"card_id" db:"card_id"`
	Condition           Condition       `json:"condition" db:"condition"`
	Amount              int64           `json:"amount" db:"amount"`
	Currency            string          `json:"currency" db:"currency"`
	SoldAt              time.Time       `json:"sold_at" db:"sold_at"`
	SourceType          PriceSourceType `json:"source_type" db:"source_type"`
	SourceID            string          `json:"source_id" db:"source_id"`
	State               PriceState      `json:"state" db:"state"`
	GradingCompany      *string         `json:"grading_company,omitempty" db:"grading_company"`
	Grade               *string         `json:"grade,omitempty" db:"grade"`
	SearchDefinitionIDs StringSlice     `json:"search_definition_ids" db:"search_definition_ids"`
	SelectionIDs        StringSlice     `json:"selection_ids" db:"selection_ids"`
	CreatedAt           time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt           time.Time       `json:"updated_at" db:"updated_at"`
}

// ModificationKey returns the stats partition key for this price
func (p *SoldPrice) ModificationKey() string {
	if p.GradingCompany == nil || p.Grade == nil {
		return UngradedModificationKey
	}
	return *p.GradingCompany + ":" + *p.Grade
}

// UpsertSoldPriceRequest upserts a sold price keyed by (SourceType, SourceID)
type UpsertSoldPriceRequest struct {
	CardID              string          `json:"card_id" validate:"required"`
	Condition           Condition       `json:"condition" validate:"required"`
	Amount              int64           `json:"amount" validate:"gt=0"`
	Currency            string          `json:"currency" validate:"required,len=3"`
	SoldAt              time.Time       `json:"sold_at" validate:"required"`
	SourceType          PriceSourceType `json:"source_type" validate:"required"`
	SourceID            string          `json:"source_id" validate:"required"`
	GradingCompany      *string         `json:"grading_company,omitempty"`
	Grade               *string         `json:"grade,omitempty"`
	SearchDefinitionIDs []string        `json:"search_definition_ids"`
}
