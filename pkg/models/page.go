package models

import "time"

// ListingPage is the typed output of extracting a fetched listing page
type ListingPage struct {
	Title             string        `json:"title"`
	Price             int64         `json:"price"`
	Currency          string        `json:"currency"`
	BuyNowPrice       *int64        `json:"buy_now_price,omitempty"`
	BidCount          int           `json:"bid_count"`
	EndTime           *time.Time    `json:"end_time,omitempty"`
	SellerNotes       string        `json:"seller_notes"`
	ItemSpecifics     ItemSpecifics `json:"item_specifics"`
	Description       string        `json:"description"`
	ImageURLs         []string      `json:"image_urls"`
	IsLive            bool          `json:"is_live"`
	EndMessage        string        `json:"end_message"`
	BestOfferAccepted bool          `json:"best_offer_accepted"`
}

// SearchResult is one listing row extracted from a marketplace search page
type SearchResult struct {
	URL      string `json:"url"`
	Title    string `json:"title"`
	Price    int64  `json:"price"`
	Currency string `json:"currency"`
	BidCount int    `json:"bid_count"`
}
