// Package refine turns a size overflow on a specific query into ranked,
// typed narrowings and applies a chosen subset. Suggestion and application
// are pure transforms over the query descriptors; nothing here touches the
// network.
package refine

import (
	"github.com/triagelabs/searchgate/query"
	"github.com/triagelabs/searchgate/sizing"
)

// Priority is the qualitative urgency attached to an option.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
)

// Kind classifies what a refinement does to the query.
type Kind string

const (
	KindNarrowFilter      Kind = "narrow-filter"
	KindReduceFields      Kind = "reduce-fields"
	KindReducePageSize    Kind = "reduce-page-size"
	KindNarrowDateRange   Kind = "narrow-date-range"
	KindAddRequiredFilter Kind = "add-required-filter"
)

// effortRank is the fixed tie-break precedence: cheaper narrowings sort
// first when reduction ratios are equal.
func effortRank(k Kind) int {
	switch k {
	case KindReducePageSize:
		return 0
	case KindNarrowFilter:
		return 1
	case KindReduceFields:
		return 2
	case KindNarrowDateRange:
		return 3
	case KindAddRequiredFilter:
		return 4
	default:
		return 5
	}
}

// Option is one actionable narrowing for a query.
type Option struct {
	ID                      string   `json:"id"`
	Label                   string   `json:"label"`
	Description             string   `json:"description"`
	Priority                Priority `json:"priority"`
	Kind                    Kind     `json:"kind"`
	EstimatedReductionRatio float64  `json:"estimated_reduction_ratio"`
}

// SuggestionSet carries the ranked options plus the overflow that motivated
// them. Message is a one-line human-readable summary of the overflow.
type SuggestionSet struct {
	Options         []Option       `json:"options"`
	OriginalMetrics sizing.Metrics `json:"original_metrics"`
	MaxAllowed      int64          `json:"max_allowed"`
	Message         string         `json:"message"`
}

// ApplicationResult reports how far option application got. When an option
// does not apply to the query's source kind, Applied holds only the
// successful prefix and Query reflects exactly those narrowings.
type ApplicationResult struct {
	Success              bool             `json:"success"`
	Applied              []Option         `json:"applied"`
	Query                query.Descriptor `json:"-"`
	EstimatedResultCount int              `json:"estimated_result_count"`
}
