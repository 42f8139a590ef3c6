// Package sizing decides whether candidate payloads fit the configured byte
// budget and explains the overflow when they do not. Measurements use the same
// JSON encoding the RPC transport uses, so the size we report is the size the
// caller receives.
package sizing

import (
	"errors"
	"fmt"
	"sync/atomic"
)

// TruncationMode selects how the delivery layer reacts to an over-budget
// payload.
type TruncationMode string

const (
	// TruncationFail rejects the payload and asks the caller to refine.
	TruncationFail TruncationMode = "fail"
	// TruncationTruncate drops array tail elements until the payload fits.
	TruncationTruncate TruncationMode = "truncate"
	// TruncationWarn delivers the payload anyway and flags the overflow.
	TruncationWarn TruncationMode = "warn"
)

// ErrInvalidConfig marks configuration errors. These are fatal at startup and
// never silently recovered.
var ErrInvalidConfig = errors.New("invalid size config")

// Config governs size measurement process-wide. It is replaced only by whole
// value swap so concurrent readers never observe a torn mix of old and new
// fields.
type Config struct {
	MaxBytes        int64          `json:"max_bytes" yaml:"max_bytes"`
	WarningRatio    float64        `json:"warning_ratio" yaml:"warning_ratio"`
	TruncationMode  TruncationMode `json:"truncation_mode" yaml:"truncation_mode"`
	TrackingEnabled bool           `json:"tracking_enabled" yaml:"tracking_enabled"`
}

// DefaultConfig returns the startup defaults: 1 MB budget, warn at 80%.
func DefaultConfig() Config {
	return Config{
		MaxBytes:       1 << 20,
		WarningRatio:   0.8,
		TruncationMode: TruncationFail,
	}
}

// Validate reports a configuration error for out-of-range fields.
func (c Config) Validate() error {
	if c.MaxBytes <= 0 {
		return fmt.Errorf("%w: max bytes must be positive, got %d", ErrInvalidConfig, c.MaxBytes)
	}
	if c.WarningRatio <= 0 || c.WarningRatio > 1 {
		return fmt.Errorf("%w: warning ratio must be in (0,1], got %g", ErrInvalidConfig, c.WarningRatio)
	}
	switch c.TruncationMode {
	case TruncationFail, TruncationTruncate, TruncationWarn:
	default:
		return fmt.Errorf("%w: unknown truncation mode %q", ErrInvalidConfig, c.TruncationMode)
	}
	return nil
}

// WarningBytes is the byte count at which measurements start flagging the
// warning threshold.
func (c Config) WarningBytes() int64 {
	return int64(float64(c.MaxBytes) * c.WarningRatio)
}

var current atomic.Pointer[Config]

func init() {
	cfg := DefaultConfig()
	current.Store(&cfg)
}

// Configure atomically replaces the process-wide config. The swap is all or
// nothing: an invalid config leaves the previous one in place.
func Configure(cfg Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	current.Store(&cfg)
	return nil
}

// Current returns a copy of the active config.
func Current() Config {
	return *current.Load()
}
