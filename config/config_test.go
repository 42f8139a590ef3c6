package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/triagelabs/searchgate/sizing"
)

func TestLoadMissingFileYieldsDefaults(t *testing.T) {
	dir := t.TempDir()
	cfg, err := Load(filepath.Join(dir, "searchgate.yaml"), dir)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Size != sizing.DefaultConfig() {
		t.Fatalf("expected default size config, got %+v", cfg.Size)
	}
	if cfg.Listen != "127.0.0.1:7460" {
		t.Fatalf("unexpected listen default: %s", cfg.Listen)
	}
	if cfg.Tracking.Path != "searchgate.db" {
		t.Fatalf("unexpected tracking default: %s", cfg.Tracking.Path)
	}
}

func TestLoadMergesFileOverDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "searchgate.yaml")
	content := `
size:
  max_bytes: 500000
  warning_ratio: 0.5
  truncation_mode: warn
  tracking_enabled: true
listen: "0.0.0.0:9000"
sources:
  pubmed:
    endpoint: "http://localhost:8081"
    api_key: "from-file"
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(path, dir)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Size.MaxBytes != 500_000 || cfg.Size.TruncationMode != sizing.TruncationWarn {
		t.Fatalf("file values not applied: %+v", cfg.Size)
	}
	if !cfg.Size.TrackingEnabled {
		t.Fatal("tracking flag not applied")
	}
	if cfg.Listen != "0.0.0.0:9000" {
		t.Fatalf("listen not applied: %s", cfg.Listen)
	}
	if cfg.Sources.PubMed.Endpoint != "http://localhost:8081" {
		t.Fatalf("source endpoint not applied: %s", cfg.Sources.PubMed.Endpoint)
	}
	// Fields the file omits keep their defaults.
	if cfg.Tracking.Path != "searchgate.db" {
		t.Fatalf("default lost during merge: %s", cfg.Tracking.Path)
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("SEARCHGATE_MAX_BYTES", "250000")
	t.Setenv("SEARCHGATE_TRUNCATION_MODE", "truncate")
	t.Setenv("SEARCHGATE_LISTEN", "127.0.0.1:9999")
	t.Setenv("NCBI_API_KEY", "pubmed-key")
	t.Setenv("OPENFDA_API_KEY", "fda-key")

	cfg, err := Load(filepath.Join(dir, "searchgate.yaml"), dir)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Size.MaxBytes != 250_000 {
		t.Fatalf("env max bytes not applied: %d", cfg.Size.MaxBytes)
	}
	if cfg.Size.TruncationMode != sizing.TruncationTruncate {
		t.Fatalf("env truncation mode not applied: %s", cfg.Size.TruncationMode)
	}
	if cfg.Listen != "127.0.0.1:9999" {
		t.Fatalf("env listen not applied: %s", cfg.Listen)
	}
	if cfg.Sources.PubMed.APIKey != "pubmed-key" || cfg.Sources.OpenFDA.APIKey != "fda-key" {
		t.Fatalf("api keys not applied: %+v", cfg.Sources)
	}
}

func TestLoadDotEnvFile(t *testing.T) {
	dir := t.TempDir()
	// Clear any ambient value so the .env entry is observable.
	t.Setenv("SEARCHGATE_WARNING_RATIO", "")
	os.Unsetenv("SEARCHGATE_WARNING_RATIO")
	if err := os.WriteFile(filepath.Join(dir, ".env"), []byte("SEARCHGATE_WARNING_RATIO=0.6\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(filepath.Join(dir, "searchgate.yaml"), dir)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Size.WarningRatio != 0.6 {
		t.Fatalf(".env override not applied: %g", cfg.Size.WarningRatio)
	}
}

func TestLoadRejectsInvalidSizeConfig(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "searchgate.yaml")
	if err := os.WriteFile(path, []byte("size:\n  max_bytes: -5\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path, dir); err == nil {
		t.Fatal("expected validation error for negative max bytes")
	}
}

func TestSaveRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nested", "searchgate.yaml")
	cfg := Default()
	cfg.Size.MaxBytes = 42_000
	cfg.Sources.OpenFDA.Endpoint = "http://localhost:8082"
	if err := Save(path, cfg); err != nil {
		t.Fatal(err)
	}
	loaded, err := Load(path, dir)
	if err != nil {
		t.Fatal(err)
	}
	if loaded.Size.MaxBytes != 42_000 {
		t.Fatalf("round trip lost max bytes: %d", loaded.Size.MaxBytes)
	}
	if loaded.Sources.OpenFDA.Endpoint != "http://localhost:8082" {
		t.Fatalf("round trip lost endpoint: %s", loaded.Sources.OpenFDA.Endpoint)
	}
}

func TestEndpointsMapping(t *testing.T) {
	cfg := Default()
	cfg.Sources.ClinicalTrials.Endpoint = "http://ct"
	cfg.Sources.PubMed.Endpoint = "http://pm"
	cfg.Sources.PubMed.APIKey = "k1"
	cfg.Sources.OpenFDA.Endpoint = "http://fda"
	cfg.Sources.OpenFDA.APIKey = "k2"
	eps := cfg.Endpoints()
	if eps.ClinicalTrials != "http://ct" || eps.PubMed != "http://pm" || eps.OpenFDA != "http://fda" {
		t.Fatalf("endpoints lost: %+v", eps)
	}
	if eps.PubMedAPIKey != "k1" || eps.OpenFDAAPIKey != "k2" {
		t.Fatalf("api keys lost: %+v", eps)
	}
}
