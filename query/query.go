// Package query defines source-typed search query descriptors. Each source
// gets its own concrete type exposing only the narrowing operations that are
// valid for it, so an inapplicable refinement is a checkable case instead of
// a runtime surprise.
package query

import (
	"encoding/json"
	"fmt"
)

// SourceKind identifies which external data source a query targets.
type SourceKind string

const (
	SourceClinicalTrials SourceKind = "clinical-trials"
	SourceLiterature     SourceKind = "literature"
	SourceDrugs          SourceKind = "drugs"
)

// Valid reports whether the kind names a known source.
func (k SourceKind) Valid() bool {
	switch k {
	case SourceClinicalTrials, SourceLiterature, SourceDrugs:
		return true
	}
	return false
}

// Descriptor is the common surface of all source-typed queries. Adapters read
// Filters to build vendor requests; the refinement advisor narrows queries
// through the per-type methods after asserting the concrete type.
type Descriptor interface {
	SourceKind() SourceKind
	// Filters returns a copy of the active filter name/value pairs.
	Filters() map[string]string
	PageSize() int
	SetPageSize(size int)
	PageToken() string
	SetPageToken(token string)
	// Clone returns a deep copy; narrowings applied to the clone never leak
	// back into the original.
	Clone() Descriptor
}

// Decode parses a wire-format query for the given source kind.
func Decode(kind SourceKind, raw json.RawMessage) (Descriptor, error) {
	switch kind {
	case SourceClinicalTrials:
		var q ClinicalTrialQuery
		if err := json.Unmarshal(raw, &q); err != nil {
			return nil, fmt.Errorf("decode clinical trial query: %w", err)
		}
		return &q, nil
	case SourceLiterature:
		var q LiteratureQuery
		if err := json.Unmarshal(raw, &q); err != nil {
			return nil, fmt.Errorf("decode literature query: %w", err)
		}
		return &q, nil
	case SourceDrugs:
		var q DrugQuery
		if err := json.Unmarshal(raw, &q); err != nil {
			return nil, fmt.Errorf("decode drug query: %w", err)
		}
		return &q, nil
	default:
		return nil, fmt.Errorf("unknown source kind %q", kind)
	}
}

func clampPageSize(size int) int {
	if size < 1 {
		return 1
	}
	return size
}
