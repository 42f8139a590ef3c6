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

const defaultOpenFDAEndpoint = "https://api.fda.gov"

// OpenFDAClient fetches drug label pages from the openFDA API. The page
// token is the skip offset.
type OpenFDAClient struct {
	Endpoint string
	APIKey   string
	client   *http.Client
}

// NewOpenFDAClient builds a client, defaulting to the public endpoint.
func NewOpenFDAClient(endpoint, apiKey string) *OpenFDAClient {
	if endpoint == "" {
		endpoint = defaultOpenFDAEndpoint
	}
	return &OpenFDAClient{
		Endpoint: endpoint,
		APIKey:   apiKey,
		client:   &http.Client{Timeout: 30 * time.Second},
	}
}

type labelResponse struct {
	Meta struct {
		Results struct {
			Skip  int `json:"skip"`
			Limit int `json:"limit"`
			Total int `json:"total"`
		} `json:"results"`
	} `json:"meta"`
	Results []json.RawMessage `json:"results"`
}

// FetchPage implements loader.PageFetcher for drug queries.
func (c *OpenFDAClient) FetchPage(ctx context.Context, q query.Descriptor, pageToken string) (*loader.Page, error) {
	d, ok := q.(*query.DrugQuery)
	if !ok {
		return nil, fmt.Errorf("openfda adapter: unsupported query type %T", q)
	}
	skip := 0
	if pageToken != "" {
		parsed, err := strconv.Atoi(pageToken)
		if err != nil {
			return nil, fmt.Errorf("openfda: bad page token %q", pageToken)
		}
		skip = parsed
	}
	params := url.Values{}
	params.Set("limit", strconv.Itoa(d.PageSize()))
	params.Set("skip", strconv.Itoa(skip))
	if expr := searchExpr(d); expr != "" {
		params.Set("search", expr)
	}
	if c.APIKey != "" {
		params.Set("api_key", c.APIKey)
	}

	body, err := getJSON(ctx, c.client, c.Endpoint+"/drug/label.json?"+params.Encode())
	if err != nil {
		return nil, fmt.Errorf("openfda: %w", err)
	}
	var resp labelResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("openfda: decode response: %w", err)
	}
	items := resp.Results
	if len(d.Sections) > 0 {
		items = projectSections(items, d.Sections)
	}
	next := skip + len(resp.Results)
	return &loader.Page{
		Items:         items,
		NextPageToken: strconv.Itoa(next),
		IsLast:        next >= resp.Meta.Results.Total || len(resp.Results) == 0,
	}, nil
}

func searchExpr(d *query.DrugQuery) string {
	var parts []string
	field := func(name string) string {
		if d.Exact {
			return name + ".exact"
		}
		return name
	}
	if d.Name != "" {
		parts = append(parts, fmt.Sprintf("%s:%q", field("openfda.brand_name"), d.Name))
	}
	if d.Ingredient != "" {
		parts = append(parts, fmt.Sprintf("%s:%q", field("openfda.substance_name"), d.Ingredient))
	}
	if d.Route != "" {
		parts = append(parts, fmt.Sprintf("openfda.route:%q", d.Route))
	}
	return strings.Join(parts, " AND ")
}

// projectSections keeps only the requested label sections plus the openfda
// identification block. Keys come back sorted by the JSON encoder, which
// keeps repeated measurements identical.
func projectSections(items []json.RawMessage, sections []string) []json.RawMessage {
	projected := make([]json.RawMessage, 0, len(items))
	for _, item := range items {
		var full map[string]json.RawMessage
		if err := json.Unmarshal(item, &full); err != nil {
			projected = append(projected, item)
			continue
		}
		trimmed := map[string]json.RawMessage{}
		for _, section := range sections {
			if v, ok := full[section]; ok {
				trimmed[section] = v
			}
		}
		if v, ok := full["openfda"]; ok {
			trimmed["openfda"] = v
		}
		if v, ok := full["id"]; ok {
			trimmed["id"] = v
		}
		encoded, err := json.Marshal(trimmed)
		if err != nil {
			projected = append(projected, item)
			continue
		}
		projected = append(projected, encoded)
	}
	return projected
}
