package pagination

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"

	"github.com/Sternrassler/hr-gateway/pkg/logging"
)

var (
	// ErrPageLimitExceeded is returned when a source keeps returning cursors past MaxPages.
	ErrPageLimitExceeded = errors.New("pagination page limit exceeded")

	// ErrStaleCursor is returned when a source returns the cursor it was just given.
	ErrStaleCursor = errors.New("pagination cursor did not advance")
)

var (
	pagesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "hr_gateway_pagination_pages_total",
		Help: "Total pages fetched during aggregation by resource",
	}, []string{"resource"})

	abortsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "hr_gateway_pagination_aborts_total",
		Help: "Total aborted aggregations by reason",
	}, []string{"reason"})
)

// Page is one page of records and the cursor for the next page, if any.
type Page struct {
	Records []json.RawMessage `json:"records"`
	Offset  string            `json:"offset,omitempty"`
}

// PageFetcher fetches a single page. An empty cursor requests the first page.
type PageFetcher interface {
	FetchPage(ctx context.Context, cursor string) (*Page, error)
}

// PageFetcherFunc adapts a function to PageFetcher.
type PageFetcherFunc func(ctx context.Context, cursor string) (*Page, error)

// FetchPage calls f.
func (f PageFetcherFunc) FetchPage(ctx context.Context, cursor string) (*Page, error) {
	return f(ctx, cursor)
}

// Config holds aggregator configuration.
type Config struct {
	// MaxPages caps the number of pages fetched for one aggregation.
	MaxPages int
}

// DefaultConfig returns a cap of 1000 pages.
func DefaultConfig() Config {
	return Config{MaxPages: 1000}
}

// Aggregator follows cursors to completion.
type Aggregator struct {
	config Config
	logger zerolog.Logger
}

// NewAggregator creates an aggregator. A non-positive MaxPages selects the default.
func NewAggregator(config Config) *Aggregator {
	if config.MaxPages <= 0 {
		config.MaxPages = DefaultConfig().MaxPages
	}
	return &Aggregator{
		config: config,
		logger: logging.NewLogger("pagination"),
	}
}

// FetchAll fetches every page for resource and returns all records in order.
// The returned slice is never nil. On any error no records are returned.
func (a *Aggregator) FetchAll(ctx context.Context, resource string, fetcher PageFetcher) ([]json.RawMessage, error) {
	start := time.Now()
	records := []json.RawMessage{}
	cursor := ""

	for page := 1; ; page++ {
		if page > a.config.MaxPages {
			abortsTotal.WithLabelValues("page_limit").Inc()
			return nil, fmt.Errorf("%s: %w (%d pages)", resource, ErrPageLimitExceeded, a.config.MaxPages)
		}

		if err := ctx.Err(); err != nil {
			abortsTotal.WithLabelValues("cancelled").Inc()
			return nil, fmt.Errorf("%s page %d: %w", resource, page, err)
		}

		result, err := fetcher.FetchPage(ctx, cursor)
		if err != nil {
			abortsTotal.WithLabelValues("page_error").Inc()
			a.logger.Warn().
				Err(err).
				Str("resource", resource).
				Int("page", page).
				Int("discarded_records", len(records)).
				Msg("Aggregation aborted")
			return nil, fmt.Errorf("%s page %d: %w", resource, page, err)
		}
		pagesTotal.WithLabelValues(resource).Inc()

		records = append(records, result.Records...)

		a.logger.Debug().
			Str("resource", resource).
			Int("page", page).
			Int("page_records", len(result.Records)).
			Bool("has_more", result.Offset != "").
			Msg("Page fetched")

		if result.Offset == "" {
			a.logger.Info().
				Str("resource", resource).
				Int("pages", page).
				Int("records", len(records)).
				Dur("duration", time.Since(start)).
				Msg("Aggregation complete")
			return records, nil
		}

		if result.Offset == cursor {
			abortsTotal.WithLabelValues("stale_cursor").Inc()
			return nil, fmt.Errorf("%s page %d: %w", resource, page, ErrStaleCursor)
		}
		cursor = result.Offset
	}
}
