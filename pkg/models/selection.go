package models

import (
	"strings"
	"time"
)

// PriceKind is the kind of prices a selection aggregates
type PriceKind string

const (
	PriceKindSold    PriceKind = "SOLD"
	PriceKindListing PriceKind = "LISTING"
)

// Selection is a derived partition of prices/listings. At most one
// non-superseded selection may exist per dimension tuple; concurrent
// find-or-create races are healed by the uniqueness enforcer.
type Selection struct {
	ID                 string    `json:"id" db:"id"`
	CardID             string    `json:"card_id" db:"card_id"`
	PriceKind          PriceKind `json:"price_kind" db:"price_kind"`
	Condition          Condition `json:"condition" db:"condition"`
	Currency           string    `json:"currency" db:"currency"`
	SearchDefinitionID string    `json:"search_definition_id" db:"search_definition_id"`
	HasReconciled      bool      `json:"has_reconciled" db:"has_reconciled"`
	CreatedAt          time.Time `json:"created_at" db:"created_at"`
}

// DimensionKey is the uniqueness key for a selection
func (s *Selection) DimensionKey() string {
	return strings.Join([]string{
		s.CardID,
		string(s.PriceKind),
		string(s.Condition),
		s.Currency,
		s.SearchDefinitionID,
	}, "|")
}
