package models

import (
	"time"
)

// ListingState is the lifecycle state of a marketplace listing
type ListingState string

const (
	ListingStateOpen    ListingState = "OPEN"
	ListingStateEnded   ListingState = "ENDED"
	ListingStateUnknown ListingState = "UNKNOWN"
)

// MaxHistoryEntries bounds a listing's snapshot history
const MaxHistoryEntries = 20

// HistoryEntry is one observed snapshot of a listing's price and bids
type HistoryEntry struct {
	Amount     int64     `json:"amount"`
	BidCount   int       `json:"bid_count"`
	ObservedAt time.Time `json:"observed_at"`
}

// Listing is an externally sourced marketplace offer tracked through its
// lifecycle. Amounts are minor units of Currency.
type Listing struct {
	ID                  string          `json:"id" db:"id"`
	CardID              string          `json:"card_id" db:"card_id"`
	SearchDefinitionIDs StringSlice     `json:"search_definition_ids" db:"search_definition_ids"`
	URL                 string          `json:"url" db:"url"`
	Name                string          `json:"name" db:"name"`
	SellerNotes         string          `json:"seller_notes" db:"seller_notes"`
	ItemSpecifics       ItemSpecifics   `json:"item_specifics" db:"item_specifics"`
	Description         string          `json:"description" db:"description"`
	ImageURLs           StringSlice     `json:"image_urls" db:"image_urls"`
	CurrentPrice        int64           `json:"current_price" db:"current_price"`
	Currency            string          `json:"currency" db:"currency"`
	BuyNowPrice         *int64          `json:"buy_now_price,omitempty" db:"buy_now_price"`
	BidCount            int             `json:"bid_count" db:"bid_count"`
	EndTime             *time.Time      `json:"end_time,omitempty" db:"end_time"`
	Condition           Condition       `json:"condition" db:"condition"`
	State               ListingState    `json:"state" db:"state"`
	StateReason         NullReason      `json:"state_reason" db:"state_reason"`
	BuyingOpportunity   NullOpportunity `json:"buying_opportunity" db:"buying_opportunity"`
	History             History         `json:"history" db:"history"`
	SelectionIDs        StringSlice     `json:"selection_ids" db:"selection_ids"`
	NextCheckTime       time.Time       `json:"next_check_time" db:"next_check_time"`
	CreatedAt           time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt           time.Time       `json:"updated_at" db:"updated_at"`
	ArchivedAt          *time.Time      `json:"archived_at,omitempty" db:"archived_at"`
}

// AppendHistory prepends a snapshot, keeping entries newest-first and
// truncated to MaxHistoryEntries
func (l *Listing) AppendHistory(entry HistoryEntry) {
	history := make(History, 0, len(l.History)+1)
	history = append(history, entry)
	history = append(history, l.History...)
	for i := 1; i < len(history); i++ {
		if history[i].ObservedAt.After(history[i-1].ObservedAt) {
			history[i], history[i-1] = history[i-1], history[i]
		}
	}
	if len(history) > MaxHistoryEntries {
		history = history[:MaxHistoryEntries]
	}
	l.History = history
}

// Age returns how long the listing has been tracked as of now
func (l *Listing) Age(now time.Time) time.Duration {
	return now.Sub(l.CreatedAt)
}

// CreateListingRequest creates a listing on first successful fetch
type CreateListingRequest struct {
	CardID             string        `json:"card_id" validate:"required"`
	SearchDefinitionID string        `json:"search_definition_id" validate:"required"`
	URL                string        `json:"url" validate:"required,url"`
	Name               string        `json:"name" validate:"required"`
	SellerNotes        string        `json:"seller_notes"`
	ItemSpecifics      ItemSpecifics `json:"item_specifics"`
	Description        string        `json:"description"`
	ImageURLs          []string      `json:"image_urls"`
	CurrentPrice       int64         `json:"current_price" validate:"gte=0"`
	Currency           string        `json:"currency" validate:"required,len=3"`
	BuyNowPrice        *int64        `json:"buy_now_price,omitempty"`
	BidCount           int           `json:"bid_count" validate:"gte=0"`
	EndTime            *time.Time    `json:"end_time,omitempty"`
}
