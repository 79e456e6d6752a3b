// Package catalog provides typed access to the public product listing,
// including parallel fetching of all pages of a paged listing.
package catalog

import (
	"context"
	"net/url"
	"strconv"

	"github.com/rs/zerolog"

	"github.com/phuocvo832004/storefront-client/pkg/client"
	"github.com/phuocvo832004/storefront-client/pkg/logging"
)

// Product is one catalog entry.
type Product struct {
	ID          string  `json:"id"`
	Name        string  `json:"name"`
	Description string  `json:"description,omitempty"`
	Category    string  `json:"category,omitempty"`
	Image       string  `json:"image,omitempty"`
	Price       float64 `json:"price"`
}

// Page is one page of the product listing. TotalPages comes back on every
// page, so fetching page one is enough to plan a full listing fetch.
type Page struct {
	Items      []Product `json:"items"`
	Page       int       `json:"page"`
	TotalPages int       `json:"totalPages"`
}

// Browser reads the product catalog through the response cache. Catalog
// reads are public, so cached pages are shared across sessions.
type Browser struct {
	http   *client.Client
	logger zerolog.Logger
}

// NewBrowser creates a catalog browser over the given pipeline client.
func NewBrowser(httpClient *client.Client) *Browser {
	return &Browser{
		http:   httpClient,
		logger: logging.NewLogger("catalog"),
	}
}

// Products fetches one page of the listing. Extra query parameters, such as
// a category filter, may be passed in query; the page parameter is set here.
func (b *Browser) Products(ctx context.Context, page int, query url.Values) (*Page, error) {
	if page < 1 {
		page = 1
	}

	q := url.Values{}
	for k, vs := range query {
		q[k] = vs
	}
	q.Set("page", strconv.Itoa(page))

	var result Page
	if err := b.http.GetJSON(ctx, "/products", q, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// FetchPage implements PageFetcher for the batch fetcher.
func (b *Browser) FetchPage(ctx context.Context, page int) (*Page, error) {
	return b.Products(ctx, page, nil)
}
