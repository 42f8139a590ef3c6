package server

import (
	"context"
	"encoding/json"
	"io"
	"log"
	"net"
	"strings"
	"sync"
	"testing"

	"github.com/sourcegraph/jsonrpc2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/triagelabs/searchgate/loader"
	"github.com/triagelabs/searchgate/query"
	"github.com/triagelabs/searchgate/sizing"
)

// stubFetcher serves canned pages keyed by offset tokens.
type stubFetcher struct {
	pages [][]json.RawMessage
}

func (s *stubFetcher) fetch(ctx context.Context, q query.Descriptor, token string) (*loader.Page, error) {
	idx := 0
	if token != "" {
		for i := range s.pages {
			if token == pageToken(i) {
				idx = i
				break
			}
		}
	}
	if idx >= len(s.pages) {
		return &loader.Page{IsLast: true}, nil
	}
	return &loader.Page{
		Items:         s.pages[idx],
		NextPageToken: pageToken(idx + 1),
		IsLast:        idx == len(s.pages)-1,
	}, nil
}

func pageToken(i int) string {
	if i == 0 {
		return ""
	}
	return "page-" + string(rune('0'+i))
}

// progressRecorder captures search/progress notifications on the client side.
type progressRecorder struct {
	mu     sync.Mutex
	events []loader.BatchInfo
}

func (p *progressRecorder) Handle(ctx context.Context, conn *jsonrpc2.Conn, req *jsonrpc2.Request) {
	if req.Method != "search/progress" || req.Params == nil {
		return
	}
	var info loader.BatchInfo
	if err := json.Unmarshal(*req.Params, &info); err != nil {
		return
	}
	p.mu.Lock()
	p.events = append(p.events, info)
	p.mu.Unlock()
}

func (p *progressRecorder) batches() []loader.BatchInfo {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]loader.BatchInfo(nil), p.events...)
}

func newTestClient(t *testing.T, srv *RPCServer, clientHandler jsonrpc2.Handler) *jsonrpc2.Conn {
	t.Helper()
	serverSide, clientSide := net.Pipe()
	ctx := context.Background()
	serverConn := srv.Bind(ctx, serverSide)
	t.Cleanup(func() { serverConn.Close() })

	if clientHandler == nil {
		clientHandler = jsonrpc2.HandlerWithError(func(context.Context, *jsonrpc2.Conn, *jsonrpc2.Request) (interface{}, error) {
			return nil, nil
		})
	}
	clientConn := jsonrpc2.NewConn(ctx,
		jsonrpc2.NewBufferedStream(clientSide, jsonrpc2.VSCodeObjectCodec{}),
		clientHandler)
	t.Cleanup(func() { clientConn.Close() })
	return clientConn
}

func withConfig(t *testing.T, cfg sizing.Config) {
	t.Helper()
	prev := sizing.Current()
	require.NoError(t, sizing.Configure(cfg))
	t.Cleanup(func() { _ = sizing.Configure(prev) })
}

func itemsOfSize(count, eachBytes int) []json.RawMessage {
	filler := strings.Repeat("x", eachBytes)
	items := make([]json.RawMessage, 0, count)
	for i := 0; i < count; i++ {
		items = append(items, json.RawMessage(`{"blob":"`+filler+`"}`))
	}
	return items
}

func testServer(pages [][]json.RawMessage) *RPCServer {
	stub := &stubFetcher{pages: pages}
	return &RPCServer{
		Fetchers: func(kind query.SourceKind) (loader.PageFetcher, error) {
			return stub.fetch, nil
		},
		Logger: log.New(io.Discard, "", 0),
	}
}

func TestSizeConfigureAndCheck(t *testing.T) {
	withConfig(t, sizing.DefaultConfig())
	client := newTestClient(t, testServer(nil), nil)
	ctx := context.Background()

	var ok map[string]bool
	err := client.Call(ctx, "size.configure", sizing.Config{
		MaxBytes:       500,
		WarningRatio:   0.8,
		TruncationMode: sizing.TruncationFail,
	}, &ok)
	require.NoError(t, err)
	assert.True(t, ok["ok"])

	var result sizing.CheckResult
	err = client.Call(ctx, "size.check", CheckParams{
		Payload: json.RawMessage(`{"tiny":true}`),
		Label:   "probe",
	}, &result)
	require.NoError(t, err)
	assert.True(t, result.WithinLimit)
	assert.Nil(t, result.Exceeded)
	assert.Equal(t, "probe", result.Metrics.Label)

	err = client.Call(ctx, "size.check", CheckParams{
		Payload: json.RawMessage(`{"blob":"` + strings.Repeat("x", 600) + `"}`),
	}, &result)
	require.NoError(t, err)
	assert.False(t, result.WithinLimit)
	require.NotNil(t, result.Exceeded)
	assert.Greater(t, result.Exceeded.ExceedsByBytes, int64(0))
	assert.NotEmpty(t, result.Exceeded.SuggestedActions)
}

func TestSizeConfigureRejectsInvalid(t *testing.T) {
	withConfig(t, sizing.DefaultConfig())
	client := newTestClient(t, testServer(nil), nil)

	err := client.Call(context.Background(), "size.configure", sizing.Config{MaxBytes: -1}, nil)
	require.Error(t, err)
	var rpcErr *jsonrpc2.Error
	require.ErrorAs(t, err, &rpcErr)
	assert.Equal(t, int64(jsonrpc2.CodeInvalidParams), rpcErr.Code)
	// The rejected swap left the old config active.
	assert.Equal(t, sizing.DefaultConfig(), sizing.Current())
}

func TestRefineSuggestAndApply(t *testing.T) {
	withConfig(t, sizing.DefaultConfig())
	client := newTestClient(t, testServer(nil), nil)
	ctx := context.Background()

	var suggested SuggestResult
	err := client.Call(ctx, "refine.suggest", SuggestParams{
		QueryEnvelope: QueryEnvelope{
			Source: query.SourceClinicalTrials,
			Query:  json.RawMessage(`{"condition":"melanoma","page_size":40}`),
		},
		MeasuredSize: 2 << 20,
	}, &suggested)
	require.NoError(t, err)
	require.NotEmpty(t, suggested.Suggestions.Options)
	assert.NotEmpty(t, suggested.Suggestions.Message)
	assert.NotEmpty(t, suggested.PromptTemplates)

	var applied ApplyResult
	err = client.Call(ctx, "refine.apply", ApplyParams{
		QueryEnvelope: QueryEnvelope{
			Source: query.SourceClinicalTrials,
			Query:  json.RawMessage(`{"condition":"melanoma","page_size":40}`),
		},
		OptionIDs: []string{"ct-halve-page-size", "ct-recruiting-only"},
	}, &applied)
	require.NoError(t, err)
	assert.True(t, applied.Success)
	assert.Len(t, applied.Applied, 2)
	assert.Equal(t, 8, applied.EstimatedResultCount)

	refined, err := query.Decode(query.SourceClinicalTrials, applied.Query)
	require.NoError(t, err)
	ct := refined.(*query.ClinicalTrialQuery)
	assert.Equal(t, 20, ct.PageSize())
	assert.Equal(t, []string{"RECRUITING"}, ct.Status)
}

func TestRefineApplyInapplicableOption(t *testing.T) {
	withConfig(t, sizing.DefaultConfig())
	client := newTestClient(t, testServer(nil), nil)

	var applied ApplyResult
	err := client.Call(context.Background(), "refine.apply", ApplyParams{
		QueryEnvelope: QueryEnvelope{
			Source: query.SourceLiterature,
			Query:  json.RawMessage(`{"term":"sepsis","page_size":50}`),
		},
		OptionIDs: []string{"lit-drop-abstracts", "ct-recruiting-only"},
	}, &applied)
	require.NoError(t, err)
	assert.False(t, applied.Success)
	require.Len(t, applied.Applied, 1)
	assert.Equal(t, "lit-drop-abstracts", applied.Applied[0].ID)
}

func TestSearchBoundedWithinLimit(t *testing.T) {
	withConfig(t, sizing.DefaultConfig())
	srv := testServer([][]json.RawMessage{itemsOfSize(3, 20)})
	client := newTestClient(t, srv, nil)

	var result BoundedResult
	err := client.Call(context.Background(), "search.bounded", QueryEnvelope{
		Source: query.SourceClinicalTrials,
		Query:  json.RawMessage(`{"condition":"asthma","page_size":3}`),
	}, &result)
	require.NoError(t, err)
	assert.Equal(t, StatusOK, result.Status)
	assert.Len(t, result.Items, 3)
	assert.Nil(t, result.Refinement)
}

func TestSearchBoundedRefinementNeeded(t *testing.T) {
	withConfig(t, sizing.Config{MaxBytes: 100, WarningRatio: 0.8, TruncationMode: sizing.TruncationFail})
	srv := testServer([][]json.RawMessage{itemsOfSize(5, 100)})
	client := newTestClient(t, srv, nil)

	var result BoundedResult
	err := client.Call(context.Background(), "search.bounded", QueryEnvelope{
		Source: query.SourceClinicalTrials,
		Query:  json.RawMessage(`{"condition":"asthma","page_size":5}`),
	}, &result)
	require.NoError(t, err)
	assert.Equal(t, StatusRefinementNeeded, result.Status)
	assert.Empty(t, result.Items)
	require.NotNil(t, result.Refinement)
	assert.NotEmpty(t, result.Refinement.Options)
	assert.NotEmpty(t, result.PromptTemplates)
}

func TestSearchBoundedTruncateMode(t *testing.T) {
	withConfig(t, sizing.Config{MaxBytes: 300, WarningRatio: 0.8, TruncationMode: sizing.TruncationTruncate})
	srv := testServer([][]json.RawMessage{itemsOfSize(10, 50)})
	client := newTestClient(t, srv, nil)

	var result BoundedResult
	err := client.Call(context.Background(), "search.bounded", QueryEnvelope{
		Source: query.SourceClinicalTrials,
		Query:  json.RawMessage(`{"condition":"asthma","page_size":10}`),
	}, &result)
	require.NoError(t, err)
	assert.Equal(t, StatusOK, result.Status)
	assert.True(t, result.Truncated)
	assert.Greater(t, result.DroppedItems, 0)
	assert.NotEmpty(t, result.Items)
	assert.Less(t, len(result.Items), 10)
}

func TestSearchBoundedWarnMode(t *testing.T) {
	withConfig(t, sizing.Config{MaxBytes: 100, WarningRatio: 0.8, TruncationMode: sizing.TruncationWarn})
	srv := testServer([][]json.RawMessage{itemsOfSize(5, 100)})
	client := newTestClient(t, srv, nil)

	var result BoundedResult
	err := client.Call(context.Background(), "search.bounded", QueryEnvelope{
		Source: query.SourceClinicalTrials,
		Query:  json.RawMessage(`{"condition":"asthma","page_size":5}`),
	}, &result)
	require.NoError(t, err)
	// Warn mode delivers the oversized payload and flags it.
	assert.Equal(t, StatusOK, result.Status)
	assert.Len(t, result.Items, 5)
	assert.True(t, result.Warning)
}

func TestSearchProgressiveStreamsProgress(t *testing.T) {
	withConfig(t, sizing.DefaultConfig())
	srv := testServer([][]json.RawMessage{
		itemsOfSize(5, 20),
		itemsOfSize(5, 20),
		itemsOfSize(5, 20),
	})
	recorder := &progressRecorder{}
	client := newTestClient(t, srv, recorder)

	var result ProgressiveResult
	err := client.Call(context.Background(), "search.progressive", ProgressiveParams{
		QueryEnvelope: QueryEnvelope{
			Source: query.SourceClinicalTrials,
			Query:  json.RawMessage(`{"condition":"asthma","page_size":5}`),
		},
		MaxPages:        2,
		SizeBudgetBytes: 1 << 20,
	}, &result)
	require.NoError(t, err)
	assert.Equal(t, loader.StopMaxPages, result.StoppedReason)
	assert.Equal(t, 2, result.PagesLoaded)
	assert.Equal(t, 10, result.TotalLoaded)
	assert.Empty(t, result.Error)

	batches := recorder.batches()
	require.Len(t, batches, 2)
	assert.Equal(t, 0, batches[0].PageIndex)
	assert.Equal(t, 1, batches[1].PageIndex)
	assert.Equal(t, 10, batches[1].CumulativeItems)
}

func TestSearchProgressiveSizeBudget(t *testing.T) {
	withConfig(t, sizing.DefaultConfig())
	srv := testServer([][]json.RawMessage{
		itemsOfSize(2, 20),
		itemsOfSize(2, 20),
		itemsOfSize(2, 500),
	})
	client := newTestClient(t, srv, nil)

	var result ProgressiveResult
	err := client.Call(context.Background(), "search.progressive", ProgressiveParams{
		QueryEnvelope: QueryEnvelope{
			Source: query.SourceClinicalTrials,
			Query:  json.RawMessage(`{"condition":"asthma","page_size":2}`),
		},
		MaxPages:        10,
		SizeBudgetBytes: 200,
	}, &result)
	require.NoError(t, err)
	assert.Equal(t, loader.StopSizeExceeded, result.StoppedReason)
	assert.True(t, result.StoppedDueToSize)
	// The oversized third page is rejected whole.
	assert.Equal(t, 2, result.PagesLoaded)
	assert.Equal(t, 4, result.TotalLoaded)
}

func TestUnknownMethod(t *testing.T) {
	client := newTestClient(t, testServer(nil), nil)
	err := client.Call(context.Background(), "search.unknown", nil, nil)
	require.Error(t, err)
	var rpcErr *jsonrpc2.Error
	require.ErrorAs(t, err, &rpcErr)
	assert.Equal(t, int64(jsonrpc2.CodeMethodNotFound), rpcErr.Code)
}

func TestUnknownSource(t *testing.T) {
	client := newTestClient(t, testServer(nil), nil)
	var result BoundedResult
	err := client.Call(context.Background(), "search.bounded", QueryEnvelope{
		Source: query.SourceKind("genomics"),
		Query:  json.RawMessage(`{}`),
	}, &result)
	require.Error(t, err)
}
