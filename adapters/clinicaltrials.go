// Package adapters implements the paging capability against the real vendor
// APIs. Each client maps the opaque query/page-token pair onto
// source-specific HTTP parameters. Retry and rate limiting are deliberately
// left to the deployment in front of these clients.
package adapters

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/triagelabs/searchgate/loader"
	"github.com/triagelabs/searchgate/query"
)

const defaultClinicalTrialsEndpoint = "https://clinicaltrials.gov/api/v2"

// ClinicalTrialsClient fetches study pages from the ClinicalTrials.gov v2
// API.
type ClinicalTrialsClient struct {
	Endpoint string
	client   *http.Client
}

// NewClinicalTrialsClient builds a client, defaulting to the public
// endpoint.
func NewClinicalTrialsClient(endpoint string) *ClinicalTrialsClient {
	if endpoint == "" {
		endpoint = defaultClinicalTrialsEndpoint
	}
	return &ClinicalTrialsClient{
		Endpoint: endpoint,
		client:   &http.Client{Timeout: 30 * time.Second},
	}
}

type studiesResponse struct {
	Studies       []json.RawMessage `json:"studies"`
	NextPageToken string            `json:"nextPageToken"`
}

// FetchPage implements loader.PageFetcher for clinical-trial queries.
func (c *ClinicalTrialsClient) FetchPage(ctx context.Context, q query.Descriptor, pageToken string) (*loader.Page, error) {
	ct, ok := q.(*query.ClinicalTrialQuery)
	if !ok {
		return nil, fmt.Errorf("clinical trials adapter: unsupported query type %T", q)
	}
	params := url.Values{}
	params.Set("format", "json")
	params.Set("pageSize", strconv.Itoa(ct.PageSize()))
	if pageToken != "" {
		params.Set("pageToken", pageToken)
	}
	if ct.Condition != "" {
		params.Set("query.cond", ct.Condition)
	}
	if ct.Intervention != "" {
		params.Set("query.intr", ct.Intervention)
	}
	if len(ct.Status) > 0 {
		params.Set("filter.overallStatus", strings.Join(ct.Status, "|"))
	}
	if len(ct.Fields) > 0 {
		params.Set("fields", strings.Join(ct.Fields, ","))
	}
	if expr := startDateFilter(ct); expr != "" {
		params.Set("filter.advanced", expr)
	}

	body, err := getJSON(ctx, c.client, c.Endpoint+"/studies?"+params.Encode())
	if err != nil {
		return nil, fmt.Errorf("clinical trials: %w", err)
	}
	var resp studiesResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("clinical trials: decode response: %w", err)
	}
	items := resp.Studies
	if ct.StudyType != "" {
		items = filterStudyType(items, ct.StudyType)
	}
	return &loader.Page{
		Items:         items,
		NextPageToken: resp.NextPageToken,
		IsLast:        resp.NextPageToken == "",
	}, nil
}

// startDateFilter renders the date window as an advanced AREA expression.
func startDateFilter(ct *query.ClinicalTrialQuery) string {
	if ct.StartedAfter == "" && ct.StartedBefore == "" {
		return ""
	}
	from := ct.StartedAfter
	if from == "" {
		from = "MIN"
	}
	to := ct.StartedBefore
	if to == "" {
		to = "MAX"
	}
	return fmt.Sprintf("AREA[StartDate]RANGE[%s,%s]", from, to)
}

// filterStudyType drops studies whose protocol design does not match the
// required study type. The v2 API has no direct study-type filter parameter,
// so the required-filter narrowing is applied on the response.
func filterStudyType(items []json.RawMessage, studyType string) []json.RawMessage {
	kept := make([]json.RawMessage, 0, len(items))
	for _, item := range items {
		var study struct {
			ProtocolSection struct {
				DesignModule struct {
					StudyType string `json:"studyType"`
				} `json:"designModule"`
			} `json:"protocolSection"`
		}
		if err := json.Unmarshal(item, &study); err == nil &&
			strings.EqualFold(study.ProtocolSection.DesignModule.StudyType, studyType) {
			kept = append(kept, item)
		}
	}
	return kept
}

// getJSON performs a GET and returns the body, with error bodies reported as
// a trimmed snippet.
func getJSON(ctx context.Context, client *http.Client, rawURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		detail := strings.TrimSpace(string(msg))
		if detail != "" {
			return nil, fmt.Errorf("%s: %s", resp.Status, detail)
		}
		return nil, fmt.Errorf("%s", resp.Status)
	}
	return io.ReadAll(resp.Body)
}
