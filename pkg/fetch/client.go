// Package fetch is the HTTP client for the external marketplace.
package fetch

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"github.com/go-resty/resty/v2"

	"github.com/Ramsey-B/fern/config"
	"github.com/Ramsey-B/fern/internal/logging"
	"github.com/Ramsey-B/fern/internal/tracing"
)

// NotFoundError means the marketplace no longer has the page. This is an
// expected outcome for ended or removed listings, not a failure.
type NotFoundError struct {
	URL string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("page not found: %s", e.URL)
}

// IsNotFound reports whether err is a marketplace 404
func IsNotFound(err error) bool {
	_, ok := err.(*NotFoundError)
	return ok
}

// StatusError is a non-404 unexpected marketplace response
type StatusError struct {
	URL    string
	Status int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status %d from %s", e.Status, e.URL)
}

// Client fetches marketplace pages
type Client struct {
	http    *resty.Client
	baseURL string
	logger  logging.Logger
}

// NewClient creates a marketplace client
func NewClient(cfg config.Config, logger logging.Logger) *Client {
	client := resty.New()
	client.SetTimeout(cfg.FetchTimeout)
	client.SetRetryCount(cfg.FetchRetryCount)
	client.SetHeader("User-Agent", cfg.FetchUserAgent)
	client.SetHeader("Accept", "text/html,application/xhtml+xml")
	client.SetHeader("Accept-Language", "en-US,en;q=0.9")

	return &Client{
		http:    client,
		baseURL: cfg.MarketplaceBaseURL,
		logger:  logger,
	}
}

// ListingPage fetches a listing page and returns its raw HTML
func (c *Client) ListingPage(ctx context.Context, pageURL string) (string, error) {
	ctx, span := tracing.StartSpan(ctx, "fetch.Client.ListingPage")
	defer span.End()

	resp, err := c.http.R().SetContext(ctx).Get(pageURL)
	if err != nil {
		c.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"url": pageURL}).Warn("Listing page fetch failed")
		return "", fmt.Errorf("fetch listing page: %w", err)
	}

	switch {
	case resp.StatusCode() == http.StatusNotFound || resp.StatusCode() == http.StatusGone:
		return "", &NotFoundError{URL: pageURL}
	case resp.StatusCode() != http.StatusOK:
		c.logger.WithContext(ctx).WithFields(map[string]any{"url": pageURL, "status": resp.StatusCode()}).Warn("Unexpected listing page status")
		return "", &StatusError{URL: pageURL, Status: resp.StatusCode()}
	}

	return string(resp.Body()), nil
}

// Search runs a marketplace search query and returns the results page HTML
func (c *Client) Search(ctx context.Context, query string) (string, error) {
	ctx, span := tracing.StartSpan(ctx, "fetch.Client.Search")
	defer span.End()

	searchURL := fmt.Sprintf("%s/search?q=%s", c.baseURL, url.QueryEscape(query))
	resp, err := c.http.R().SetContext(ctx).Get(searchURL)
	if err != nil {
		c.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"query": query}).Warn("Search fetch failed")
		return "", fmt.Errorf("fetch search results: %w", err)
	}

	if resp.StatusCode() != http.StatusOK {
		return "", &StatusError{URL: searchURL, Status: resp.StatusCode()}
	}

	return string(resp.Body()), nil
}
