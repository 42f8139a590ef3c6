package refine

import (
	"fmt"
	"math"
	"sort"

	"github.com/triagelabs/searchgate/query"
	"github.com/triagelabs/searchgate/sizing"
)

// rule pairs an option with the narrowing it performs. apply reports false
// when the descriptor is not the concrete type the rule expects.
type rule struct {
	option Option
	apply  func(q query.Descriptor) bool
}

func halvePageSize(q query.Descriptor) bool {
	q.SetPageSize(q.PageSize() / 2)
	return true
}

// ruleTable is the static per-source rule set. Option IDs are stable; the
// RPC surface references rules by ID.
var ruleTable = map[query.SourceKind][]rule{
	query.SourceClinicalTrials: {
		{
			option: Option{
				ID:                      "ct-halve-page-size",
				Label:                   "Halve page size",
				Description:             "Request half as many studies per page.",
				Priority:                PriorityHigh,
				Kind:                    KindReducePageSize,
				EstimatedReductionRatio: 0.5,
			},
			apply: halvePageSize,
		},
		{
			option: Option{
				ID:                      "ct-recruiting-only",
				Label:                   "Recruiting studies only",
				Description:             "Keep only studies with an active RECRUITING status.",
				Priority:                PriorityHigh,
				Kind:                    KindNarrowFilter,
				EstimatedReductionRatio: 0.6,
			},
			apply: func(q query.Descriptor) bool {
				ct, ok := q.(*query.ClinicalTrialQuery)
				if !ok {
					return false
				}
				ct.RestrictToRecruiting()
				return true
			},
		},
		{
			option: Option{
				ID:                      "ct-recent-starts",
				Label:                   "Recent study starts",
				Description:             "Limit to studies started within the last five years.",
				Priority:                PriorityMedium,
				Kind:                    KindNarrowDateRange,
				EstimatedReductionRatio: 0.5,
			},
			apply: func(q query.Descriptor) bool {
				ct, ok := q.(*query.ClinicalTrialQuery)
				if !ok {
					return false
				}
				ct.NarrowStartWindow(5)
				return true
			},
		},
		{
			option: Option{
				ID:                      "ct-summary-fields",
				Label:                   "Summary fields only",
				Description:             "Project the compact study summary instead of full records.",
				Priority:                PriorityMedium,
				Kind:                    KindReduceFields,
				EstimatedReductionRatio: 0.4,
			},
			apply: func(q query.Descriptor) bool {
				ct, ok := q.(*query.ClinicalTrialQuery)
				if !ok {
					return false
				}
				ct.TrimFields()
				return true
			},
		},
		{
			option: Option{
				ID:                      "ct-interventional-only",
				Label:                   "Interventional studies only",
				Description:             "Add a required interventional study-type filter.",
				Priority:                PriorityLow,
				Kind:                    KindAddRequiredFilter,
				EstimatedReductionRatio: 0.3,
			},
			apply: func(q query.Descriptor) bool {
				ct, ok := q.(*query.ClinicalTrialQuery)
				if !ok {
					return false
				}
				ct.RequireInterventional()
				return true
			},
		},
	},
	query.SourceLiterature: {
		{
			option: Option{
				ID:                      "lit-drop-abstracts",
				Label:                   "Drop abstracts",
				Description:             "Return citation metadata without abstract text.",
				Priority:                PriorityHigh,
				Kind:                    KindReduceFields,
				EstimatedReductionRatio: 0.7,
			},
			apply: func(q query.Descriptor) bool {
				lit, ok := q.(*query.LiteratureQuery)
				if !ok {
					return false
				}
				lit.DropAbstracts()
				return true
			},
		},
		{
			option: Option{
				ID:                      "lit-halve-page-size",
				Label:                   "Halve result count",
				Description:             "Request half as many citations per page.",
				Priority:                PriorityHigh,
				Kind:                    KindReducePageSize,
				EstimatedReductionRatio: 0.5,
			},
			apply: halvePageSize,
		},
		{
			option: Option{
				ID:                      "lit-recent-pubs",
				Label:                   "Recent publications",
				Description:             "Limit to articles published within the last five years.",
				Priority:                PriorityMedium,
				Kind:                    KindNarrowDateRange,
				EstimatedReductionRatio: 0.5,
			},
			apply: func(q query.Descriptor) bool {
				lit, ok := q.(*query.LiteratureQuery)
				if !ok {
					return false
				}
				lit.NarrowPublicationWindow(5)
				return true
			},
		},
	},
	query.SourceDrugs: {
		{
			option: Option{
				ID:                      "drug-exact-match",
				Label:                   "Exact name match",
				Description:             "Match the drug name or ingredient exactly instead of by substring.",
				Priority:                PriorityHigh,
				Kind:                    KindNarrowFilter,
				EstimatedReductionRatio: 0.6,
			},
			apply: func(q query.Descriptor) bool {
				d, ok := q.(*query.DrugQuery)
				if !ok {
					return false
				}
				d.RequireExactMatch()
				return true
			},
		},
		{
			option: Option{
				ID:                      "drug-halve-page-size",
				Label:                   "Halve page size",
				Description:             "Request half as many labels per page.",
				Priority:                PriorityHigh,
				Kind:                    KindReducePageSize,
				EstimatedReductionRatio: 0.5,
			},
			apply: halvePageSize,
		},
		{
			option: Option{
				ID:                      "drug-core-sections",
				Label:                   "Core label sections",
				Description:             "Project only indications, dosage, and warnings sections.",
				Priority:                PriorityMedium,
				Kind:                    KindReduceFields,
				EstimatedReductionRatio: 0.5,
			},
			apply: func(q query.Descriptor) bool {
				d, ok := q.(*query.DrugQuery)
				if !ok {
					return false
				}
				d.TrimLabelSections()
				return true
			},
		},
	},
}

// SuggestRefinements returns the ranked narrowings for the query's source
// kind. Pure: identical inputs always yield options in identical order.
// Ranking is by descending reduction ratio, ties by effort precedence
// (reduce-page-size < narrow-filter < reduce-fields < narrow-date-range),
// then by option ID.
func SuggestRefinements(q query.Descriptor, measured sizing.Metrics, maxAllowed int64) SuggestionSet {
	rules := ruleTable[q.SourceKind()]
	options := make([]Option, 0, len(rules))
	for _, r := range rules {
		options = append(options, r.option)
	}
	sort.Slice(options, func(i, j int) bool {
		a, b := options[i], options[j]
		if a.EstimatedReductionRatio != b.EstimatedReductionRatio {
			return a.EstimatedReductionRatio > b.EstimatedReductionRatio
		}
		if ra, rb := effortRank(a.Kind), effortRank(b.Kind); ra != rb {
			return ra < rb
		}
		return a.ID < b.ID
	})
	return SuggestionSet{
		Options:         options,
		OriginalMetrics: measured,
		MaxAllowed:      maxAllowed,
		Message: fmt.Sprintf("Result is %s, which exceeds the %s limit. Narrow the query to continue.",
			sizing.FormatSize(measured.SizeBytes), sizing.FormatSize(maxAllowed)),
	}
}

// OptionsByID resolves option IDs against the query's rule table, preserving
// the requested order. Unknown IDs are returned as-is with a zero ratio so
// application can report them as inapplicable.
func OptionsByID(kind query.SourceKind, ids []string) []Option {
	options := make([]Option, 0, len(ids))
	for _, id := range ids {
		found := false
		for _, r := range ruleTable[kind] {
			if r.option.ID == id {
				options = append(options, r.option)
				found = true
				break
			}
		}
		if !found {
			options = append(options, Option{ID: id})
		}
	}
	return options
}

// ApplyRefinements applies the chosen options, in order, to a copy of the
// query. The input query is never mutated. Application stops at the first
// option that does not belong to the query's source kind; Applied then holds
// only the successful prefix. EstimatedResultCount is the page size shrunk
// by each applied ratio in turn, floored at zero, and is a hint rather than
// a guarantee.
func ApplyRefinements(q query.Descriptor, chosen []Option) ApplicationResult {
	mutated := q.Clone()
	estimate := float64(q.PageSize())
	result := ApplicationResult{Success: true, Query: mutated}
	for _, opt := range chosen {
		r, ok := findRule(mutated.SourceKind(), opt.ID)
		if !ok || !r.apply(mutated) {
			result.Success = false
			break
		}
		result.Applied = append(result.Applied, r.option)
		estimate *= 1 - r.option.EstimatedReductionRatio
	}
	count := int(math.Floor(estimate))
	if count < 0 {
		count = 0
	}
	result.EstimatedResultCount = count
	return result
}

func findRule(kind query.SourceKind, id string) (rule, bool) {
	for _, r := range ruleTable[kind] {
		if r.option.ID == id {
			return r, true
		}
	}
	return rule{}, false
}
