// Package extract parses fetched marketplace HTML into typed pages.
package extract

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/Ramsey-B/fern/pkg/models"
)

// ParseError means the page HTML did not contain the fields a listing page
// must have. Callers treat this as an unparsable page, not a fetch failure.
type ParseError struct {
	Field string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("page missing required field: %s", e.Field)
}

// IsParseError reports whether err came from unparsable page HTML
func IsParseError(err error) bool {
	_, ok := err.(*ParseError)
	return ok
}

var currencySymbols = map[string]string{
	"$": "USD",
	"£": "GBP",
	"€": "EUR",
	"¥": "JPY",
}

var (
	pricePattern    = regexp.MustCompile(`([$£€¥])\s*([\d,]+(?:\.\d{1,2})?)`)
	bidCountPattern = regexp.MustCompile(`(\d+)\s*bids?`)
)

// Extractor parses listing and search pages
type Extractor struct{}

// NewExtractor creates an Extractor
func NewExtractor() *Extractor {
	return &Extractor{}
}

// ListingPage extracts the typed fields of a listing page from its HTML
func (e *Extractor) ListingPage(html string) (*models.ListingPage, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("parse listing html: %w", err)
	}

	page := &models.ListingPage{
		ItemSpecifics: models.ItemSpecifics{},
		IsLive:        true,
	}

	page.Title = strings.TrimSpace(doc.Find(".listing-title, h1[itemprop=name], h1").First().Text())
	if page.Title == "" {
		return nil, &ParseError{Field: "title"}
	}

	if endMessage := strings.TrimSpace(doc.Find(".end-message, .ended-banner").First().Text()); endMessage != "" {
		page.IsLive = false
		page.EndMessage = endMessage
		page.BestOfferAccepted = strings.Contains(strings.ToLower(endMessage), "best offer")
	}

	priceText := strings.TrimSpace(doc.Find(".current-price, [itemprop=price], .price").First().Text())
	amount, currency, ok := parsePrice(priceText)
	if !ok {
		return nil, &ParseError{Field: "price"}
	}
	page.Price = amount
	page.Currency = currency

	if buyNowText := strings.TrimSpace(doc.Find(".buy-now-price").First().Text()); buyNowText != "" {
		if buyNow, _, ok := parsePrice(buyNowText); ok {
			page.BuyNowPrice = &buyNow
		}
	}

	page.BidCount = parseBidCount(doc.Find(".bid-count, .bids").First().Text())

	if endAttr, exists := doc.Find(".end-time[data-end], time.end-time").First().Attr("data-end"); exists {
		if endTime, err := time.Parse(time.RFC3339, endAttr); err == nil {
			utc := endTime.UTC()
			page.EndTime = &utc
		}
	} else if datetime, exists := doc.Find("time.end-time").First().Attr("datetime"); exists {
		if endTime, err := time.Parse(time.RFC3339, datetime); err == nil {
			utc := endTime.UTC()
			page.EndTime = &utc
		}
	}

	page.SellerNotes = strings.TrimSpace(doc.Find(".seller-notes, .condition-description").First().Text())
	page.Description = strings.TrimSpace(doc.Find(".item-description, [itemprop=description]").First().Text())

	doc.Find(".item-specifics tr, .specifics-row").Each(func(_ int, row *goquery.Selection) {
		key := strings.TrimSpace(row.Find("th, .spec-label").First().Text())
		value := strings.TrimSpace(row.Find("td, .spec-value").First().Text())
		if key != "" && value != "" {
			page.ItemSpecifics[key] = value
		}
	})

	doc.Find(".image-gallery img, .listing-images img").Each(func(_ int, img *goquery.Selection) {
		if src, exists := img.Attr("src"); exists && src != "" {
			page.ImageURLs = append(page.ImageURLs, src)
		}
	})

	return page, nil
}

// SearchResults extracts listing rows from a search results page
func (e *Extractor) SearchResults(html string) ([]models.SearchResult, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("parse search html: %w", err)
	}

	var results []models.SearchResult
	doc.Find(".search-result, .result-row").Each(func(_ int, row *goquery.Selection) {
		link := row.Find("a.result-link, a").First()
		url, _ := link.Attr("href")
		title := strings.TrimSpace(link.Text())
		if url == "" || title == "" {
			return
		}

		amount, currency, ok := parsePrice(row.Find(".result-price, .price").First().Text())
		if !ok {
			return
		}

		results = append(results, models.SearchResult{
			URL:      url,
			Title:    title,
			Price:    amount,
			Currency: currency,
			BidCount: parseBidCount(row.Find(".result-bids, .bids").First().Text()),
		})
	})

	return results, nil
}

// parsePrice converts a displayed price like "£1,234.56" into minor units
// and an ISO currency code
func parsePrice(text string) (int64, string, bool) {
	match := pricePattern.FindStringSubmatch(text)
	if match == nil {
		return 0, "", false
	}

	currency, ok := currencySymbols[match[1]]
	if !ok {
		return 0, "", false
	}

	raw := strings.ReplaceAll(match[2], ",", "")
	whole := raw
	fraction := "00"
	if dot := strings.Index(raw, "."); dot >= 0 {
		whole = raw[:dot]
		fraction = raw[dot+1:]
		if len(fraction) == 1 {
			fraction += "0"
		}
	}
	if currency == "JPY" {
		// yen has no minor unit
		fraction = ""
	}

	value, err := strconv.ParseInt(whole+fraction, 10, 64)
	if err != nil {
		return 0, "", false
	}
	return value, currency, true
}

func parseBidCount(text string) int {
	match := bidCountPattern.FindStringSubmatch(text)
	if match == nil {
		return 0
	}
	count, _ := strconv.Atoi(match[1])
	return count
}
