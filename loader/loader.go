// Package loader drives multi-page retrieval through an externally supplied
// paging callback while enforcing page, item, and cumulative-size budgets.
// The loader is stateless: a single Load call is a pure function of its
// inputs and the supplied callbacks, so independent calls may run in
// parallel.
package loader

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/triagelabs/searchgate/query"
	"github.com/triagelabs/searchgate/sizing"
)

// Page is one batch of items returned by a paging capability. The token is
// opaque to the loader; adapters map it onto vendor pagination parameters.
type Page struct {
	Items         []json.RawMessage
	NextPageToken string
	IsLast        bool
}

// PageFetcher is the paging capability supplied by an adapter. The token is
// empty on the first call. Retry is the adapter's concern, never the
// loader's.
type PageFetcher func(ctx context.Context, q query.Descriptor, pageToken string) (*Page, error)

// BatchFunc receives progress after every accepted batch, strictly in page
// order. Returning an error cancels the load; pages already accepted stay
// counted.
type BatchFunc func(info BatchInfo) error

// Config bounds a single load. MaxItems of zero means no item cap.
type Config struct {
	MaxPages        int
	MaxItems        int
	SizeBudgetBytes int64
}

// BatchInfo describes one accepted batch.
type BatchInfo struct {
	PageIndex           int   `json:"page_index"`
	ItemsInBatch        int   `json:"items_in_batch"`
	CumulativeItems     int   `json:"cumulative_items"`
	CumulativeSizeBytes int64 `json:"cumulative_size_bytes"`
	IsLastPage          bool  `json:"is_last_page"`
}

// StopReason explains why a load stopped.
type StopReason string

const (
	StopExhausted    StopReason = "exhausted"
	StopMaxPages     StopReason = "maxPages"
	StopMaxItems     StopReason = "maxItems"
	StopSizeExceeded StopReason = "sizeExceeded"
	StopCancelled    StopReason = "cancelled"
	StopError        StopReason = "error"
)

// Result summarizes a finished load. Counts reflect only fully accepted
// batches; a batch rejected for the size budget contributes nothing.
type Result struct {
	Items            []json.RawMessage `json:"items"`
	TotalLoaded      int               `json:"total_loaded"`
	PagesLoaded      int               `json:"pages_loaded"`
	StoppedReason    StopReason        `json:"stopped_reason"`
	StoppedDueToSize bool              `json:"stopped_due_to_size"`
}

// Load fetches pages until a budget trips, the source is exhausted, the
// caller cancels, or the fetcher fails. One page is in flight at a time:
// page N+1 is never requested before page N has been measured, accepted or
// rejected, and delivered. A fetch failure returns the counts accumulated so
// far together with the cause and its page index.
func Load(ctx context.Context, q query.Descriptor, fetch PageFetcher, onBatch BatchFunc, cfg Config) (*Result, error) {
	if fetch == nil {
		return nil, fmt.Errorf("page fetcher required")
	}
	if cfg.MaxPages < 1 {
		cfg.MaxPages = 1
	}

	result := &Result{}
	token := q.PageToken()
	var cumulativeSize int64
	lastPage := false

	for {
		switch {
		case lastPage:
			result.StoppedReason = StopExhausted
			return result, nil
		case result.PagesLoaded == cfg.MaxPages:
			result.StoppedReason = StopMaxPages
			return result, nil
		case cfg.MaxItems > 0 && result.TotalLoaded >= cfg.MaxItems:
			result.StoppedReason = StopMaxItems
			return result, nil
		}
		if ctx.Err() != nil {
			result.StoppedReason = StopCancelled
			return result, nil
		}

		page, err := fetch(ctx, q, token)
		if err != nil {
			result.StoppedReason = StopError
			return result, fmt.Errorf("fetch page %d: %w", result.PagesLoaded, err)
		}

		batchMetrics, err := sizing.Measure(page.Items, "")
		if err != nil {
			result.StoppedReason = StopError
			return result, fmt.Errorf("measure page %d: %w", result.PagesLoaded, err)
		}
		if cumulativeSize+batchMetrics.SizeBytes > cfg.SizeBudgetBytes {
			// Whole-batch atomicity: the rejected batch is never
			// partially counted.
			result.StoppedReason = StopSizeExceeded
			result.StoppedDueToSize = true
			return result, nil
		}

		cumulativeSize += batchMetrics.SizeBytes
		result.Items = append(result.Items, page.Items...)
		result.TotalLoaded += len(page.Items)
		result.PagesLoaded++
		lastPage = page.IsLast
		token = page.NextPageToken

		if onBatch != nil {
			info := BatchInfo{
				PageIndex:           result.PagesLoaded - 1,
				ItemsInBatch:        len(page.Items),
				CumulativeItems:     result.TotalLoaded,
				CumulativeSizeBytes: cumulativeSize,
				IsLastPage:          page.IsLast,
			}
			if err := onBatch(info); err != nil {
				result.StoppedReason = StopCancelled
				return result, nil
			}
		}
	}
}
