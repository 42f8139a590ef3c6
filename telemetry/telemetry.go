// Package telemetry carries the structured event stream emitted by the
// bounded-delivery pipeline. Production deployments can implement exporter
// sinks here, while tests typically swap in lightweight loggers.
package telemetry

import (
	"encoding/json"
	"log"
	"os"
	"sync"
	"time"
)

// EventType categorizes telemetry events.
type EventType string

const (
	EventMeasurement         EventType = "measurement"
	EventWarningThreshold    EventType = "warning_threshold"
	EventSizeExceeded        EventType = "size_exceeded"
	EventBatchAccepted       EventType = "batch_accepted"
	EventLoadFinished        EventType = "load_finished"
	EventRefinementSuggested EventType = "refinement_suggested"
	EventRefinementApplied   EventType = "refinement_applied"
)

// Event captures structured telemetry data.
type Event struct {
	Type      EventType              `json:"type"`
	Source    string                 `json:"source,omitempty"`
	Label     string                 `json:"label,omitempty"`
	Message   string                 `json:"message,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
}

// Telemetry receives pipeline events.
type Telemetry interface {
	Emit(event Event)
}

// MultiplexTelemetry broadcasts events to multiple sinks.
type MultiplexTelemetry struct {
	Sinks []Telemetry
}

// Emit forwards the event to all registered sinks.
func (m MultiplexTelemetry) Emit(event Event) {
	for _, s := range m.Sinks {
		s.Emit(event)
	}
}

// JSONFileTelemetry writes events as newline-delimited JSON so external
// tools can tail and process the stream.
type JSONFileTelemetry struct {
	file *os.File
	enc  *json.Encoder
	mu   sync.Mutex
}

// NewJSONFileTelemetry opens (or creates) the log file.
func NewJSONFileTelemetry(path string) (*JSONFileTelemetry, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, err
	}
	return &JSONFileTelemetry{file: f, enc: json.NewEncoder(f)}, nil
}

// Emit writes the JSON record.
func (j *JSONFileTelemetry) Emit(event Event) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.enc != nil {
		_ = j.enc.Encode(event)
	}
}

// Close releases the file handle.
func (j *JSONFileTelemetry) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.file != nil {
		return j.file.Close()
	}
	return nil
}

// LoggerTelemetry emits events via the standard logger.
type LoggerTelemetry struct {
	Logger *log.Logger
}

// Emit logs the event.
func (t LoggerTelemetry) Emit(event Event) {
	logger := t.Logger
	if logger == nil {
		logger = log.Default()
	}
	logger.Printf("[%s] source=%s label=%s meta=%v msg=%s\n", event.Type, event.Source, event.Label, event.Metadata, event.Message)
}

// NopTelemetry discards every event.
type NopTelemetry struct{}

func (NopTelemetry) Emit(Event) {}

// Now stamps an event with the current UTC time if unset.
func Now(event Event) Event {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
	return event
}
