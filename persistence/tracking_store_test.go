package persistence

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/triagelabs/searchgate/loader"
	"github.com/triagelabs/searchgate/sizing"
)

func newTestStore(t *testing.T) *TrackingStore {
	t.Helper()
	store, err := NewTrackingStore(filepath.Join(t.TempDir(), "tracking.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func TestRecordAndListMeasurements(t *testing.T) {
	store := newTestStore(t)
	for i, m := range []sizing.Metrics{
		{SizeBytes: 1000, ItemCount: 10, MeasuredAt: time.Now().UTC(), Label: "studies"},
		{SizeBytes: 150_000, ItemCount: 100, MeasuredAt: time.Now().UTC(), Label: "labels"},
	} {
		if err := store.RecordMeasurement(m, i == 0); err != nil {
			t.Fatal(err)
		}
	}

	records, err := store.RecentMeasurements(10)
	if err != nil {
		t.Fatal(err)
	}
	if len(records) != 2 {
		t.Fatalf("expected 2 records, got %d", len(records))
	}
	// Newest first.
	if records[0].Label != "labels" || records[1].Label != "studies" {
		t.Fatalf("unexpected order: %s, %s", records[0].Label, records[1].Label)
	}
	if records[0].WithinLimit {
		t.Fatal("second measurement recorded as within limit")
	}
	if records[1].SizeBytes != 1000 || records[1].ItemCount != 10 {
		t.Fatalf("measurement fields lost: %+v", records[1])
	}
}

func TestRecordAndListLoadSessions(t *testing.T) {
	store := newTestStore(t)
	result := &loader.Result{
		TotalLoaded:      40,
		PagesLoaded:      4,
		StoppedReason:    loader.StopSizeExceeded,
		StoppedDueToSize: true,
	}
	if err := store.RecordLoadSession("clinical-trials", result); err != nil {
		t.Fatal(err)
	}

	sessions, err := store.RecentLoadSessions(10)
	if err != nil {
		t.Fatal(err)
	}
	if len(sessions) != 1 {
		t.Fatalf("expected 1 session, got %d", len(sessions))
	}
	got := sessions[0]
	if got.Source != "clinical-trials" || got.PagesLoaded != 4 || got.TotalLoaded != 40 {
		t.Fatalf("session fields lost: %+v", got)
	}
	if got.StoppedReason != string(loader.StopSizeExceeded) || !got.StoppedDueToSize {
		t.Fatalf("stop reason lost: %+v", got)
	}
}

func TestRecordLoadSessionRequiresResult(t *testing.T) {
	store := newTestStore(t)
	if err := store.RecordLoadSession("drugs", nil); err == nil {
		t.Fatal("expected error for nil result")
	}
}

func TestNewTrackingStoreRequiresPath(t *testing.T) {
	if _, err := NewTrackingStore(""); err == nil {
		t.Fatal("expected error for empty path")
	}
}

func TestRecentLimitDefaults(t *testing.T) {
	store := newTestStore(t)
	if err := store.RecordMeasurement(sizing.Metrics{SizeBytes: 1, ItemCount: 1, MeasuredAt: time.Now().UTC()}, true); err != nil {
		t.Fatal(err)
	}
	records, err := store.RecentMeasurements(0)
	if err != nil {
		t.Fatal(err)
	}
	if len(records) != 1 {
		t.Fatalf("zero limit must fall back to the default window, got %d rows", len(records))
	}
}
