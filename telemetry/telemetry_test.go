package telemetry

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
)

type captureSink struct {
	events []Event
}

func (c *captureSink) Emit(event Event) {
	c.events = append(c.events, event)
}

func TestMultiplexBroadcasts(t *testing.T) {
	a := &captureSink{}
	b := &captureSink{}
	mux := MultiplexTelemetry{Sinks: []Telemetry{a, b, NopTelemetry{}}}
	mux.Emit(Event{Type: EventMeasurement, Label: "studies"})
	if len(a.events) != 1 || len(b.events) != 1 {
		t.Fatalf("expected both sinks to receive the event: %d, %d", len(a.events), len(b.events))
	}
	if a.events[0].Label != "studies" {
		t.Fatalf("unexpected event: %+v", a.events[0])
	}
}

func TestJSONFileTelemetryWritesNDJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "events.ndjson")
	sink, err := NewJSONFileTelemetry(path)
	if err != nil {
		t.Fatal(err)
	}
	sink.Emit(Now(Event{Type: EventSizeExceeded, Source: "clinical-trials"}))
	sink.Emit(Now(Event{Type: EventLoadFinished, Source: "literature"}))
	if err := sink.Close(); err != nil {
		t.Fatal(err)
	}

	f, err := os.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	scanner := bufio.NewScanner(f)
	var lines int
	for scanner.Scan() {
		var ev Event
		if err := json.Unmarshal(scanner.Bytes(), &ev); err != nil {
			t.Fatalf("line %d is not valid JSON: %v", lines, err)
		}
		if ev.Timestamp.IsZero() {
			t.Fatal("event written without timestamp")
		}
		lines++
	}
	if lines != 2 {
		t.Fatalf("expected 2 records, got %d", lines)
	}
}

func TestNowPreservesExplicitTimestamp(t *testing.T) {
	stamped := Now(Event{Type: EventMeasurement})
	if stamped.Timestamp.IsZero() {
		t.Fatal("expected timestamp set")
	}
	again := Now(stamped)
	if !again.Timestamp.Equal(stamped.Timestamp) {
		t.Fatal("existing timestamp must not be overwritten")
	}
}
