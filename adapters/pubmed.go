package adapters

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/triagelabs/searchgate/loader"
	"github.com/triagelabs/searchgate/query"
)

const defaultPubMedEndpoint = "https://eutils.ncbi.nlm.nih.gov/entrez/eutils"

// PubMedClient fetches citation pages through the NCBI E-utilities. The page
// token is the retstart offset.
type PubMedClient struct {
	Endpoint string
	APIKey   string
	client   *http.Client
}

// NewPubMedClient builds a client, defaulting to the public endpoint.
func NewPubMedClient(endpoint, apiKey string) *PubMedClient {
	if endpoint == "" {
		endpoint = defaultPubMedEndpoint
	}
	return &PubMedClient{
		Endpoint: endpoint,
		APIKey:   apiKey,
		client:   &http.Client{Timeout: 30 * time.Second},
	}
}

type esearchResponse struct {
	Result struct {
		Count  string   `json:"count"`
		IDList []string `json:"idlist"`
	} `json:"esearchresult"`
}

// FetchPage implements loader.PageFetcher for literature queries: esearch
// for the page of PMIDs, esummary for the documents.
func (c *PubMedClient) FetchPage(ctx context.Context, q query.Descriptor, pageToken string) (*loader.Page, error) {
	lit, ok := q.(*query.LiteratureQuery)
	if !ok {
		return nil, fmt.Errorf("pubmed adapter: unsupported query type %T", q)
	}
	retstart := 0
	if pageToken != "" {
		parsed, err := strconv.Atoi(pageToken)
		if err != nil {
			return nil, fmt.Errorf("pubmed: bad page token %q", pageToken)
		}
		retstart = parsed
	}

	params := url.Values{}
	params.Set("db", "pubmed")
	params.Set("retmode", "json")
	params.Set("retmax", strconv.Itoa(lit.PageSize()))
	params.Set("retstart", strconv.Itoa(retstart))
	params.Set("term", searchTerm(lit))
	if lit.PublishedAfter != "" || lit.PublishedBefore != "" {
		params.Set("datetype", "pdat")
		if lit.PublishedAfter != "" {
			params.Set("mindate", lit.PublishedAfter)
		}
		if lit.PublishedBefore != "" {
			params.Set("maxdate", lit.PublishedBefore)
		}
	}
	if c.APIKey != "" {
		params.Set("api_key", c.APIKey)
	}

	body, err := getJSON(ctx, c.client, c.Endpoint+"/esearch.fcgi?"+params.Encode())
	if err != nil {
		return nil, fmt.Errorf("pubmed esearch: %w", err)
	}
	var search esearchResponse
	if err := json.Unmarshal(body, &search); err != nil {
		return nil, fmt.Errorf("pubmed esearch: decode response: %w", err)
	}
	total, _ := strconv.Atoi(search.Result.Count)
	ids := search.Result.IDList
	if len(ids) == 0 {
		return &loader.Page{IsLast: true}, nil
	}

	items, err := c.fetchSummaries(ctx, ids, lit.IncludeAbstracts)
	if err != nil {
		return nil, err
	}
	next := retstart + len(ids)
	return &loader.Page{
		Items:         items,
		NextPageToken: strconv.Itoa(next),
		IsLast:        next >= total,
	}, nil
}

// fetchSummaries resolves PMIDs into documents. Without the verbose
// projection each document is trimmed to its citation core, which is what
// the drop-abstracts narrowing relies on.
func (c *PubMedClient) fetchSummaries(ctx context.Context, ids []string, verbose bool) ([]json.RawMessage, error) {
	params := url.Values{}
	params.Set("db", "pubmed")
	params.Set("retmode", "json")
	params.Set("id", strings.Join(ids, ","))
	if c.APIKey != "" {
		params.Set("api_key", c.APIKey)
	}
	body, err := getJSON(ctx, c.client, c.Endpoint+"/esummary.fcgi?"+params.Encode())
	if err != nil {
		return nil, fmt.Errorf("pubmed esummary: %w", err)
	}
	var summary struct {
		Result map[string]json.RawMessage `json:"result"`
	}
	if err := json.Unmarshal(body, &summary); err != nil {
		return nil, fmt.Errorf("pubmed esummary: decode response: %w", err)
	}
	items := make([]json.RawMessage, 0, len(ids))
	for _, id := range ids {
		doc, ok := summary.Result[id]
		if !ok {
			continue
		}
		if !verbose {
			doc = compactCitation(doc)
		}
		items = append(items, doc)
	}
	return items, nil
}

// compactCitation projects a full esummary document down to its citation
// core.
func compactCitation(doc json.RawMessage) json.RawMessage {
	var full struct {
		UID     string `json:"uid"`
		Title   string `json:"title"`
		Source  string `json:"source"`
		PubDate string `json:"pubdate"`
	}
	if err := json.Unmarshal(doc, &full); err != nil {
		return doc
	}
	compact, err := json.Marshal(full)
	if err != nil {
		return doc
	}
	return compact
}

func searchTerm(lit *query.LiteratureQuery) string {
	term := lit.Term
	if lit.Author != "" {
		if term != "" {
			term += " AND "
		}
		term += lit.Author + "[au]"
	}
	return term
}
