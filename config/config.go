// Package config loads the searchgate.yaml configuration plus .env/env-var
// overrides. Size governance settings are validated at load time; an invalid
// size budget is fatal at startup rather than silently corrected.
package config

import (
	"errors"
	"os"
	"path/filepath"
	"strconv"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/triagelabs/searchgate/adapters"
	"github.com/triagelabs/searchgate/sizing"
)

const configFileName = "searchgate.yaml"

// Config matches searchgate.yaml.
type Config struct {
	Size     sizing.Config  `yaml:"size"`
	Sources  SourcesConfig  `yaml:"sources"`
	Tracking TrackingConfig `yaml:"tracking"`
	Logging  LoggingConfig  `yaml:"logging"`
	Listen   string         `yaml:"listen"`
}

// SourcesConfig points each adapter at its endpoint.
type SourcesConfig struct {
	ClinicalTrials EndpointConfig `yaml:"clinical_trials"`
	PubMed         EndpointConfig `yaml:"pubmed"`
	OpenFDA        EndpointConfig `yaml:"openfda"`
}

// EndpointConfig holds one vendor endpoint and its optional API key.
type EndpointConfig struct {
	Endpoint string `yaml:"endpoint"`
	APIKey   string `yaml:"api_key"`
}

// TrackingConfig locates the measurement database.
type TrackingConfig struct {
	Path string `yaml:"path"`
}

// LoggingConfig describes log output.
type LoggingConfig struct {
	Level string `yaml:"level"`
	File  string `yaml:"file"`
}

// DefaultPath returns searchgate.yaml within the workspace.
func DefaultPath(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, configFileName)
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Size:   sizing.DefaultConfig(),
		Listen: "127.0.0.1:7460",
		Tracking: TrackingConfig{
			Path: "searchgate.db",
		},
	}
}

// Load reads the config file, merges defaults, applies .env and environment
// overrides, and validates the size settings. A missing file yields the
// defaults.
func Load(path, workspace string) (*Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, err
	}
	if err == nil {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, err
		}
	}
	// .env entries become process env before the override pass.
	_ = godotenv.Load(filepath.Join(workspace, ".env"))
	applyEnv(cfg)
	if err := cfg.Size.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save writes the config to disk.
func Save(path string, cfg *Config) error {
	if cfg == nil {
		return errors.New("config missing")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// Endpoints maps the source config onto the adapter registry input.
func (c *Config) Endpoints() adapters.Endpoints {
	return adapters.Endpoints{
		ClinicalTrials: c.Sources.ClinicalTrials.Endpoint,
		PubMed:         c.Sources.PubMed.Endpoint,
		PubMedAPIKey:   c.Sources.PubMed.APIKey,
		OpenFDA:        c.Sources.OpenFDA.Endpoint,
		OpenFDAAPIKey:  c.Sources.OpenFDA.APIKey,
	}
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("SEARCHGATE_MAX_BYTES"); v != "" {
		if parsed, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.Size.MaxBytes = parsed
		}
	}
	if v := os.Getenv("SEARCHGATE_WARNING_RATIO"); v != "" {
		if parsed, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Size.WarningRatio = parsed
		}
	}
	if v := os.Getenv("SEARCHGATE_TRUNCATION_MODE"); v != "" {
		cfg.Size.TruncationMode = sizing.TruncationMode(v)
	}
	if v := os.Getenv("SEARCHGATE_LISTEN"); v != "" {
		cfg.Listen = v
	}
	if v := os.Getenv("NCBI_API_KEY"); v != "" {
		cfg.Sources.PubMed.APIKey = v
	}
	if v := os.Getenv("OPENFDA_API_KEY"); v != "" {
		cfg.Sources.OpenFDA.APIKey = v
	}
}
