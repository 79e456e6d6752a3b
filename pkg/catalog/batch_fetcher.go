package catalog

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/phuocvo832004/storefront-client/pkg/logging"
)

// BatchConfig holds batch fetcher configuration.
type BatchConfig struct {
	// MaxConcurrency is the maximum number of parallel page fetches.
	MaxConcurrency int
	// Timeout per page fetch.
	Timeout time.Duration
}

// DefaultBatchConfig returns safe defaults for a storefront API.
func DefaultBatchConfig() BatchConfig {
	return BatchConfig{
		MaxConcurrency: 4,
		Timeout:        15 * time.Second,
	}
}

// PageFetcher fetches a single page of the product listing.
type PageFetcher interface {
	FetchPage(ctx context.Context, page int) (*Page, error)
}

// pageResult carries one fetched page from a worker.
type pageResult struct {
	page   int
	result *Page
	err    error
}

// BatchFetcher fetches every page of the listing in parallel with a worker
// pool. Page one is fetched first to learn the total page count, then the
// remaining pages are distributed across workers.
type BatchFetcher struct {
	fetcher PageFetcher
	config  BatchConfig
}

// NewBatchFetcher creates a batch fetcher.
func NewBatchFetcher(fetcher PageFetcher, config BatchConfig) *BatchFetcher {
	if config.MaxConcurrency <= 0 {
		config.MaxConcurrency = DefaultBatchConfig().MaxConcurrency
	}
	if config.Timeout <= 0 {
		config.Timeout = DefaultBatchConfig().Timeout
	}
	return &BatchFetcher{
		fetcher: fetcher,
		config:  config,
	}
}

// FetchAll fetches every page and returns all products in page order. A
// failed page fails the whole fetch; partial listings would make derived
// views silently wrong.
func (bf *BatchFetcher) FetchAll(ctx context.Context) ([]Product, error) {
	logger := logging.NewLogger("catalog-batch")
	start := time.Now()

	first, err := bf.fetcher.FetchPage(ctx, 1)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch first page: %w", err)
	}

	totalPages := first.TotalPages
	if totalPages <= 1 {
		return first.Items, nil
	}

	logger.Debug().
		Int("total_pages", totalPages).
		Msg("Starting parallel page fetch")

	pageQueue := make(chan int, totalPages)
	results := make(chan pageResult, totalPages)

	go func() {
		for page := 2; page <= totalPages; page++ {
			pageQueue <- page
		}
		close(pageQueue)
	}()

	var wg sync.WaitGroup
	for i := 0; i < bf.config.MaxConcurrency; i++ {
		wg.Add(1)
		go bf.worker(ctx, pageQueue, results, &wg)
	}

	go func() {
		wg.Wait()
		close(results)
	}()

	pages := map[int][]Product{1: first.Items}
	var firstErr error
	for r := range results {
		if r.err != nil {
			if firstErr == nil {
				firstErr = fmt.Errorf("failed to fetch page %d: %w", r.page, r.err)
			}
			continue
		}
		pages[r.page] = r.result.Items
	}
	if firstErr != nil {
		return nil, firstErr
	}

	order := make([]int, 0, len(pages))
	for page := range pages {
		order = append(order, page)
	}
	sort.Ints(order)

	var products []Product
	for _, page := range order {
		products = append(products, pages[page]...)
	}

	logger.Debug().
		Int("pages", totalPages).
		Int("products", len(products)).
		Dur("duration", time.Since(start)).
		Msg("Fetch complete")

	return products, nil
}

// worker drains the page queue.
func (bf *BatchFetcher) worker(ctx context.Context, pageQueue <-chan int, results chan<- pageResult, wg *sync.WaitGroup) {
	defer wg.Done()

	for page := range pageQueue {
		select {
		case <-ctx.Done():
			results <- pageResult{page: page, err: ctx.Err()}
			return
		default:
		}

		pageCtx, cancel := context.WithTimeout(ctx, bf.config.Timeout)
		result, err := bf.fetcher.FetchPage(pageCtx, page)
		cancel()

		results <- pageResult{page: page, result: result, err: err}
		if err != nil {
			return
		}
	}
}
