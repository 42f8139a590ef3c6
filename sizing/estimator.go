package sizing

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Metrics is an immutable snapshot taken for a single measurement.
type Metrics struct {
	SizeBytes  int64     `json:"size_bytes"`
	ItemCount  int       `json:"item_count"`
	MeasuredAt time.Time `json:"measured_at"`
	Label      string    `json:"label,omitempty"`
}

// Contributor names a top-level field and its share of the encoded payload.
// ItemCount is non-zero for array-valued fields.
type Contributor struct {
	Field     string `json:"field"`
	SizeBytes int64  `json:"size_bytes"`
	ItemCount int    `json:"item_count,omitempty"`
}

// ExceededInfo exists only when the measured size is over budget.
type ExceededInfo struct {
	ExceedsByBytes      int64         `json:"exceeds_by_bytes"`
	RatioOverLimit      float64       `json:"ratio_over_limit"`
	SuggestedActions    []string      `json:"suggested_actions"`
	LargestContributors []Contributor `json:"largest_contributors,omitempty"`
}

// CheckResult is the outcome of a size check. Exceeded is non-nil exactly
// when WithinLimit is false.
type CheckResult struct {
	WithinLimit bool          `json:"within_limit"`
	Warning     bool          `json:"warning,omitempty"`
	Metrics     Metrics       `json:"metrics"`
	Exceeded    *ExceededInfo `json:"exceeded,omitempty"`
}

// Measure encodes the payload and returns its metrics. Only unencodable
// payloads fail; an oversized payload is not an error here.
func Measure(payload interface{}, label string) (Metrics, error) {
	encoded, err := encode(payload)
	if err != nil {
		return Metrics{}, err
	}
	return Metrics{
		SizeBytes:  int64(len(encoded)),
		ItemCount:  countItems(encoded),
		MeasuredAt: time.Now().UTC(),
		Label:      label,
	}, nil
}

// CheckSizeLimit measures the payload against the current config. The result
// is deterministic for a given payload and config: two calls report the same
// size and the same suggested actions in the same order.
func CheckSizeLimit(payload interface{}, label string) (CheckResult, error) {
	return checkAgainst(payload, label, Current())
}

func checkAgainst(payload interface{}, label string, cfg Config) (CheckResult, error) {
	encoded, err := encode(payload)
	if err != nil {
		return CheckResult{}, err
	}
	metrics := Metrics{
		SizeBytes:  int64(len(encoded)),
		ItemCount:  countItems(encoded),
		MeasuredAt: time.Now().UTC(),
		Label:      label,
	}
	result := CheckResult{
		WithinLimit: metrics.SizeBytes <= cfg.MaxBytes,
		Metrics:     metrics,
	}
	if result.WithinLimit {
		result.Warning = metrics.SizeBytes > cfg.WarningBytes()
		return result, nil
	}
	contributors := topContributors(encoded, 3)
	result.Exceeded = &ExceededInfo{
		ExceedsByBytes:      metrics.SizeBytes - cfg.MaxBytes,
		RatioOverLimit:      float64(metrics.SizeBytes) / float64(cfg.MaxBytes),
		SuggestedActions:    suggestActions(contributors),
		LargestContributors: contributors,
	}
	return result, nil
}

// FormatSize renders a byte count in decimal units, e.g. "97.7 KB".
func FormatSize(size int64) string {
	switch {
	case size < 1_000:
		return fmt.Sprintf("%d B", size)
	case size < 1_000_000:
		return fmt.Sprintf("%.1f KB", float64(size)/1_000)
	case size < 1_000_000_000:
		return fmt.Sprintf("%.1f MB", float64(size)/1_000_000)
	default:
		return fmt.Sprintf("%.1f GB", float64(size)/1_000_000_000)
	}
}

func encode(payload interface{}) ([]byte, error) {
	if raw, ok := payload.(json.RawMessage); ok {
		if !json.Valid(raw) {
			return nil, fmt.Errorf("measure payload: invalid raw JSON")
		}
		return raw, nil
	}
	encoded, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("measure payload: %w", err)
	}
	return encoded, nil
}

// countItems reports the top-level array length, or 1 for any other payload.
func countItems(encoded []byte) int {
	trimmed := bytes.TrimLeft(encoded, " \t\r\n")
	if len(trimmed) == 0 || trimmed[0] != '[' {
		return 1
	}
	var elems []json.RawMessage
	if err := json.Unmarshal(trimmed, &elems); err != nil {
		return 1
	}
	return len(elems)
}

// field is a top-level object member in declaration order.
type field struct {
	name string
	raw  json.RawMessage
}

// topLevelFields walks the object with a token decoder so declaration order
// is preserved. Returns nil when the payload is not a JSON object.
func topLevelFields(encoded []byte) []field {
	trimmed := bytes.TrimLeft(encoded, " \t\r\n")
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return nil
	}
	dec := json.NewDecoder(bytes.NewReader(trimmed))
	if _, err := dec.Token(); err != nil {
		return nil
	}
	var fields []field
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil
		}
		name, ok := tok.(string)
		if !ok {
			return nil
		}
		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return nil
		}
		fields = append(fields, field{name: name, raw: raw})
	}
	return fields
}

// topContributors ranks top-level fields by encoded size, descending, ties
// broken by declaration order.
func topContributors(encoded []byte, limit int) []Contributor {
	fields := topLevelFields(encoded)
	if len(fields) == 0 {
		return nil
	}
	contributors := make([]Contributor, 0, len(fields))
	for _, f := range fields {
		c := Contributor{
			Field:     f.name,
			SizeBytes: int64(len(f.raw)),
		}
		if n := arrayLen(f.raw); n > 0 {
			c.ItemCount = n
		}
		contributors = append(contributors, c)
	}
	// Stable sort keeps declaration order for equal sizes.
	for i := 1; i < len(contributors); i++ {
		for j := i; j > 0 && contributors[j].SizeBytes > contributors[j-1].SizeBytes; j-- {
			contributors[j], contributors[j-1] = contributors[j-1], contributors[j]
		}
	}
	if len(contributors) > limit {
		contributors = contributors[:limit]
	}
	return contributors
}

func arrayLen(raw json.RawMessage) int {
	trimmed := bytes.TrimLeft(raw, " \t\r\n")
	if len(trimmed) == 0 || trimmed[0] != '[' {
		return 0
	}
	var elems []json.RawMessage
	if err := json.Unmarshal(trimmed, &elems); err != nil {
		return 0
	}
	return len(elems)
}

const (
	actionReducePageSize = "reduce page size"
	actionNarrowDates    = "narrow date range"
	actionOmitVerbose    = "omit optional verbose fields"
)

// suggestActions maps the largest contributors to generic mitigations.
func suggestActions(contributors []Contributor) []string {
	if len(contributors) == 0 {
		return []string{actionReducePageSize, actionNarrowDates}
	}
	var actions []string
	seen := map[string]bool{}
	add := func(a string) {
		if !seen[a] {
			seen[a] = true
			actions = append(actions, a)
		}
	}
	for _, c := range contributors {
		switch {
		case c.ItemCount > 0:
			add(actionReducePageSize)
		case looksDated(c.Field):
			add(actionNarrowDates)
		default:
			add(actionOmitVerbose)
		}
	}
	return actions
}

func looksDated(name string) bool {
	lower := strings.ToLower(name)
	for _, hint := range []string{"date", "time", "start", "end", "published"} {
		if strings.Contains(lower, hint) {
			return true
		}
	}
	return false
}
