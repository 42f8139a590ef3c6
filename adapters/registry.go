package adapters

import (
	"fmt"

	"github.com/triagelabs/searchgate/loader"
	"github.com/triagelabs/searchgate/query"
)

// Endpoints configures where each source client points. Zero values fall
// back to the public endpoints.
type Endpoints struct {
	ClinicalTrials string
	PubMed         string
	PubMedAPIKey   string
	OpenFDA        string
	OpenFDAAPIKey  string
}

// Registry holds one client per source and hands out their paging
// capabilities.
type Registry struct {
	clinicalTrials *ClinicalTrialsClient
	pubMed         *PubMedClient
	openFDA        *OpenFDAClient
}

// NewRegistry builds all source clients from the endpoint config.
func NewRegistry(eps Endpoints) *Registry {
	return &Registry{
		clinicalTrials: NewClinicalTrialsClient(eps.ClinicalTrials),
		pubMed:         NewPubMedClient(eps.PubMed, eps.PubMedAPIKey),
		openFDA:        NewOpenFDAClient(eps.OpenFDA, eps.OpenFDAAPIKey),
	}
}

// Fetcher returns the paging capability for a source kind.
func (r *Registry) Fetcher(kind query.SourceKind) (loader.PageFetcher, error) {
	switch kind {
	case query.SourceClinicalTrials:
		return r.clinicalTrials.FetchPage, nil
	case query.SourceLiterature:
		return r.pubMed.FetchPage, nil
	case query.SourceDrugs:
		return r.openFDA.FetchPage, nil
	default:
		return nil, fmt.Errorf("no adapter for source kind %q", kind)
	}
}
