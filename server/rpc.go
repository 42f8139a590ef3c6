// Package server exposes the bounded-result contract over JSON-RPC 2.0.
// Every search operation yields either a payload already verified within
// budget or a structured "refinement needed" response carrying the ranked
// narrowings and prompt templates.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net"
	"time"

	"github.com/sourcegraph/jsonrpc2"

	"github.com/triagelabs/searchgate/loader"
	"github.com/triagelabs/searchgate/persistence"
	"github.com/triagelabs/searchgate/query"
	"github.com/triagelabs/searchgate/refine"
	"github.com/triagelabs/searchgate/sizing"
	"github.com/triagelabs/searchgate/telemetry"
)

// FetcherFunc resolves a source kind to its paging capability.
type FetcherFunc func(kind query.SourceKind) (loader.PageFetcher, error)

// RPCServer serves the bounded search methods over jsonrpc2 connections.
type RPCServer struct {
	Fetchers  FetcherFunc
	Store     *persistence.TrackingStore
	Telemetry telemetry.Telemetry
	Logger    *log.Logger
}

// QueryEnvelope is the wire form of a source-typed query.
type QueryEnvelope struct {
	Source query.SourceKind `json:"source"`
	Query  json.RawMessage  `json:"query"`
}

// CheckParams asks for a size check on an arbitrary payload.
type CheckParams struct {
	Payload json.RawMessage `json:"payload"`
	Label   string          `json:"label,omitempty"`
}

// SuggestParams asks for refinement options given a measured overflow.
type SuggestParams struct {
	QueryEnvelope
	MeasuredSize int64 `json:"measured_size"`
}

// SuggestResult pairs the suggestion set with its prompt templates.
type SuggestResult struct {
	Suggestions     refine.SuggestionSet    `json:"suggestions"`
	PromptTemplates []refine.PromptTemplate `json:"prompt_templates"`
}

// ApplyParams applies refinement options, referenced by ID, to a query.
type ApplyParams struct {
	QueryEnvelope
	OptionIDs []string `json:"option_ids"`
}

// ApplyResult is the wire form of a refinement application. Query holds the
// refined query re-encoded for the envelope's source kind.
type ApplyResult struct {
	Success              bool            `json:"success"`
	Applied              []refine.Option `json:"applied"`
	Query                json.RawMessage `json:"query"`
	EstimatedResultCount int             `json:"estimated_result_count"`
}

// BoundedResult is the bounded-result contract response. Exactly one of
// Items or Refinement is populated.
type BoundedResult struct {
	Status          string                  `json:"status"`
	Items           []json.RawMessage       `json:"items,omitempty"`
	Metrics         sizing.Metrics          `json:"metrics"`
	Warning         bool                    `json:"warning,omitempty"`
	Truncated       bool                    `json:"truncated,omitempty"`
	DroppedItems    int                     `json:"dropped_items,omitempty"`
	Refinement      *refine.SuggestionSet   `json:"refinement,omitempty"`
	PromptTemplates []refine.PromptTemplate `json:"prompt_templates,omitempty"`
}

const (
	StatusOK               = "ok"
	StatusRefinementNeeded = "refinement_needed"
)

// ProgressiveParams drives a progressive load over RPC. Accepted batches are
// streamed to the caller as "search/progress" notifications.
type ProgressiveParams struct {
	QueryEnvelope
	MaxPages        int   `json:"max_pages"`
	MaxItems        int   `json:"max_items,omitempty"`
	SizeBudgetBytes int64 `json:"size_budget_bytes"`
}

// ProgressiveResult summarizes a finished progressive load.
type ProgressiveResult struct {
	Items            []json.RawMessage `json:"items"`
	TotalLoaded      int               `json:"total_loaded"`
	PagesLoaded      int               `json:"pages_loaded"`
	StoppedReason    loader.StopReason `json:"stopped_reason"`
	StoppedDueToSize bool              `json:"stopped_due_to_size"`
	Error            string            `json:"error,omitempty"`
}

// Serve accepts TCP connections until the context is cancelled.
func (s *RPCServer) Serve(ctx context.Context, addr string) error {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	if s.Logger != nil {
		s.Logger.Printf("RPC listening on %s", listener.Addr())
	}
	go func() {
		<-ctx.Done()
		_ = listener.Close()
	}()
	for {
		conn, err := listener.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		s.Bind(ctx, conn)
	}
}

// Bind attaches the RPC handler to one connection. Exposed so tests can run
// the server over net.Pipe.
func (s *RPCServer) Bind(ctx context.Context, conn net.Conn) *jsonrpc2.Conn {
	stream := jsonrpc2.NewBufferedStream(conn, jsonrpc2.VSCodeObjectCodec{})
	return jsonrpc2.NewConn(ctx, stream, jsonrpc2.HandlerWithError(s.handle))
}

func (s *RPCServer) handle(ctx context.Context, conn *jsonrpc2.Conn, req *jsonrpc2.Request) (interface{}, error) {
	switch req.Method {
	case "size.configure":
		return s.handleConfigure(req)
	case "size.check":
		return s.handleCheck(req)
	case "refine.suggest":
		return s.handleSuggest(req)
	case "refine.apply":
		return s.handleApply(req)
	case "search.bounded":
		return s.handleBounded(ctx, req)
	case "search.progressive":
		return s.handleProgressive(ctx, conn, req)
	default:
		return nil, &jsonrpc2.Error{Code: jsonrpc2.CodeMethodNotFound, Message: fmt.Sprintf("method %q not found", req.Method)}
	}
}

func decodeParams(req *jsonrpc2.Request, v interface{}) error {
	if req.Params == nil {
		return &jsonrpc2.Error{Code: jsonrpc2.CodeInvalidParams, Message: "params required"}
	}
	if err := json.Unmarshal(*req.Params, v); err != nil {
		return &jsonrpc2.Error{Code: jsonrpc2.CodeInvalidParams, Message: err.Error()}
	}
	return nil
}

func (s *RPCServer) handleConfigure(req *jsonrpc2.Request) (interface{}, error) {
	var cfg sizing.Config
	if err := decodeParams(req, &cfg); err != nil {
		return nil, err
	}
	if err := sizing.Configure(cfg); err != nil {
		return nil, &jsonrpc2.Error{Code: jsonrpc2.CodeInvalidParams, Message: err.Error()}
	}
	return map[string]bool{"ok": true}, nil
}

func (s *RPCServer) handleCheck(req *jsonrpc2.Request) (interface{}, error) {
	var params CheckParams
	if err := decodeParams(req, &params); err != nil {
		return nil, err
	}
	result, err := sizing.CheckSizeLimit(params.Payload, params.Label)
	if err != nil {
		return nil, err
	}
	s.trackMeasurement(result)
	return result, nil
}

func (s *RPCServer) handleSuggest(req *jsonrpc2.Request) (interface{}, error) {
	var params SuggestParams
	if err := decodeParams(req, &params); err != nil {
		return nil, err
	}
	q, err := query.Decode(params.Source, params.Query)
	if err != nil {
		return nil, &jsonrpc2.Error{Code: jsonrpc2.CodeInvalidParams, Message: err.Error()}
	}
	measured := sizing.Metrics{
		SizeBytes:  params.MeasuredSize,
		MeasuredAt: time.Now().UTC(),
	}
	set := refine.SuggestRefinements(q, measured, sizing.Current().MaxBytes)
	s.emit(telemetry.Event{
		Type:   telemetry.EventRefinementSuggested,
		Source: string(params.Source),
		Metadata: map[string]interface{}{
			"options": len(set.Options),
		},
	})
	return SuggestResult{Suggestions: set, PromptTemplates: refine.PromptTemplates()}, nil
}

func (s *RPCServer) handleApply(req *jsonrpc2.Request) (interface{}, error) {
	var params ApplyParams
	if err := decodeParams(req, &params); err != nil {
		return nil, err
	}
	q, err := query.Decode(params.Source, params.Query)
	if err != nil {
		return nil, &jsonrpc2.Error{Code: jsonrpc2.CodeInvalidParams, Message: err.Error()}
	}
	chosen := refine.OptionsByID(params.Source, params.OptionIDs)
	result := refine.ApplyRefinements(q, chosen)
	s.emit(telemetry.Event{
		Type:   telemetry.EventRefinementApplied,
		Source: string(params.Source),
		Metadata: map[string]interface{}{
			"applied": len(result.Applied),
			"success": result.Success,
		},
	})
	refined, err := json.Marshal(result.Query)
	if err != nil {
		return nil, err
	}
	return ApplyResult{
		Success:              result.Success,
		Applied:              result.Applied,
		Query:                refined,
		EstimatedResultCount: result.EstimatedResultCount,
	}, nil
}

func (s *RPCServer) handleBounded(ctx context.Context, req *jsonrpc2.Request) (interface{}, error) {
	var params QueryEnvelope
	if err := decodeParams(req, &params); err != nil {
		return nil, err
	}
	q, err := query.Decode(params.Source, params.Query)
	if err != nil {
		return nil, &jsonrpc2.Error{Code: jsonrpc2.CodeInvalidParams, Message: err.Error()}
	}
	fetch, err := s.fetcher(params.Source)
	if err != nil {
		return nil, err
	}
	page, err := fetch(ctx, q, q.PageToken())
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", params.Source, err)
	}
	return s.deliverBounded(params.Source, q, page.Items)
}

// deliverBounded applies the bounded-result contract to an assembled item
// set: within budget means delivery, overflow means truncation, a warning,
// or a refinement-needed response depending on the configured mode.
func (s *RPCServer) deliverBounded(source query.SourceKind, q query.Descriptor, items []json.RawMessage) (*BoundedResult, error) {
	label := string(source)
	check, err := sizing.CheckSizeLimit(items, label)
	if err != nil {
		return nil, err
	}
	s.trackMeasurement(check)
	if check.WithinLimit {
		if check.Warning {
			s.emit(telemetry.Event{Type: telemetry.EventWarningThreshold, Source: label, Metadata: map[string]interface{}{
				"size_bytes": check.Metrics.SizeBytes,
			}})
		}
		return &BoundedResult{
			Status:  StatusOK,
			Items:   items,
			Metrics: check.Metrics,
			Warning: check.Warning,
		}, nil
	}

	cfg := sizing.Current()
	s.emit(telemetry.Event{Type: telemetry.EventSizeExceeded, Source: label, Metadata: map[string]interface{}{
		"size_bytes": check.Metrics.SizeBytes,
		"max_bytes":  cfg.MaxBytes,
	}})
	switch cfg.TruncationMode {
	case sizing.TruncationWarn:
		return &BoundedResult{
			Status:  StatusOK,
			Items:   items,
			Metrics: check.Metrics,
			Warning: true,
		}, nil
	case sizing.TruncationTruncate:
		truncated, err := sizing.Truncate(items, cfg.MaxBytes)
		if err == nil && truncated.Fits {
			var kept []json.RawMessage
			if err := json.Unmarshal(truncated.Payload, &kept); err == nil {
				return &BoundedResult{
					Status:       StatusOK,
					Items:        kept,
					Metrics:      check.Metrics,
					Truncated:    true,
					DroppedItems: truncated.DroppedItems,
				}, nil
			}
		}
		// Could not shrink under budget; fall through to refinement.
	}
	set := refine.SuggestRefinements(q, check.Metrics, cfg.MaxBytes)
	return &BoundedResult{
		Status:          StatusRefinementNeeded,
		Metrics:         check.Metrics,
		Refinement:      &set,
		PromptTemplates: refine.PromptTemplates(),
	}, nil
}

func (s *RPCServer) handleProgressive(ctx context.Context, conn *jsonrpc2.Conn, req *jsonrpc2.Request) (interface{}, error) {
	var params ProgressiveParams
	if err := decodeParams(req, &params); err != nil {
		return nil, err
	}
	q, err := query.Decode(params.Source, params.Query)
	if err != nil {
		return nil, &jsonrpc2.Error{Code: jsonrpc2.CodeInvalidParams, Message: err.Error()}
	}
	fetch, err := s.fetcher(params.Source)
	if err != nil {
		return nil, err
	}
	budget := params.SizeBudgetBytes
	if budget <= 0 {
		budget = sizing.Current().MaxBytes
	}
	onBatch := func(info loader.BatchInfo) error {
		s.emit(telemetry.Event{Type: telemetry.EventBatchAccepted, Source: string(params.Source), Metadata: map[string]interface{}{
			"page_index":       info.PageIndex,
			"cumulative_items": info.CumulativeItems,
		}})
		if conn != nil {
			_ = conn.Notify(ctx, "search/progress", info)
		}
		return nil
	}
	result, loadErr := loader.Load(ctx, q, fetch, onBatch, loader.Config{
		MaxPages:        params.MaxPages,
		MaxItems:        params.MaxItems,
		SizeBudgetBytes: budget,
	})
	if result == nil {
		return nil, loadErr
	}
	s.trackLoadSession(string(params.Source), result)
	s.emit(telemetry.Event{Type: telemetry.EventLoadFinished, Source: string(params.Source), Metadata: map[string]interface{}{
		"pages_loaded":   result.PagesLoaded,
		"total_loaded":   result.TotalLoaded,
		"stopped_reason": string(result.StoppedReason),
	}})
	resp := ProgressiveResult{
		Items:            result.Items,
		TotalLoaded:      result.TotalLoaded,
		PagesLoaded:      result.PagesLoaded,
		StoppedReason:    result.StoppedReason,
		StoppedDueToSize: result.StoppedDueToSize,
	}
	if loadErr != nil {
		// Partial results travel with the cause instead of an RPC error.
		resp.Error = loadErr.Error()
	}
	return resp, nil
}

func (s *RPCServer) fetcher(kind query.SourceKind) (loader.PageFetcher, error) {
	if s.Fetchers == nil {
		return nil, errors.New("no fetchers configured")
	}
	return s.Fetchers(kind)
}

func (s *RPCServer) trackMeasurement(result sizing.CheckResult) {
	s.emit(telemetry.Event{Type: telemetry.EventMeasurement, Label: result.Metrics.Label, Metadata: map[string]interface{}{
		"size_bytes":   result.Metrics.SizeBytes,
		"within_limit": result.WithinLimit,
	}})
	if s.Store == nil || !sizing.Current().TrackingEnabled {
		return
	}
	if err := s.Store.RecordMeasurement(result.Metrics, result.WithinLimit); err != nil && s.Logger != nil {
		s.Logger.Printf("tracking: record measurement: %v", err)
	}
}

func (s *RPCServer) trackLoadSession(source string, result *loader.Result) {
	if s.Store == nil || !sizing.Current().TrackingEnabled {
		return
	}
	if err := s.Store.RecordLoadSession(source, result); err != nil && s.Logger != nil {
		s.Logger.Printf("tracking: record load session: %v", err)
	}
}

func (s *RPCServer) emit(event telemetry.Event) {
	if s.Telemetry == nil {
		return
	}
	s.Telemetry.Emit(telemetry.Now(event))
}
