package result

import (
	"encoding/json"
	"fmt"
	"math"
	"net/url"

	"github.com/pkg/errors"
)

const (
	// MinDuration and MaxDuration bound the test duration in seconds.
	MinDuration = 1
	MaxDuration = 10
)

// Record is the measurement of one completed load test, as produced by the runner.
// Latencies are in seconds.
type Record struct {
	Timestamp             float64 `json:"timestamp"`
	URL                   string  `json:"url"`
	QPS                   int     `json:"qps"`
	Duration              int     `json:"duration"`
	TotalRequests         int64   `json:"total_requests"`
	SuccessfulRequests    int64   `json:"successful_requests"`
	FailedRequests        int64   `json:"failed_requests"`
	ErrorRate             float64 `json:"error_rate"` // percentage
	MedianLatency         float64 `json:"median_latency"`
	P90Latency            float64 `json:"p90_latency"`
	P99Latency            float64 `json:"p99_latency"`
	AvgLatency            float64 `json:"avg_latency"`
	MinLatency            float64 `json:"min_latency"`
	MaxLatency            float64 `json:"max_latency"`
	AvgSize               float64 `json:"avg_size"` // bytes
	CurrentRPS            float64 `json:"current_rps"`
	CurrentFailuresPerSec float64 `json:"current_failures_per_sec"`
}

// MarshalJSON implements json.Marshaler interface for Record
func (r Record) MarshalJSON() ([]byte, error) {
	type Alias Record
	return json.Marshal((Alias)(r))
}

// UnmarshalJSON implements json.Unmarshaler interface for Record
func (r *Record) UnmarshalJSON(data []byte) error {
	type Alias Record
	return json.Unmarshal(data, (*Alias)(r))
}

// ValidationError reports the first field of a record that breaks an invariant.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid record: %s %s", e.Field, e.Reason)
}

// IsValidationError reports whether err, or any error it wraps, is a *ValidationError.
func IsValidationError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

func invalid(field, format string, args ...interface{}) error {
	return &ValidationError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

// Validate checks the numeric and ordering invariants of r. A record that fails
// is rejected as is; nothing is clamped or rounded.
func Validate(r Record) (Record, error) {
	floats := []struct {
		name string
		v    float64
	}{
		{"timestamp", r.Timestamp},
		{"error_rate", r.ErrorRate},
		{"median_latency", r.MedianLatency},
		{"p90_latency", r.P90Latency},
		{"p99_latency", r.P99Latency},
		{"avg_latency", r.AvgLatency},
		{"min_latency", r.MinLatency},
		{"max_latency", r.MaxLatency},
		{"avg_size", r.AvgSize},
		{"current_rps", r.CurrentRPS},
		{"current_failures_per_sec", r.CurrentFailuresPerSec},
	}
	for _, f := range floats {
		if math.IsNaN(f.v) || math.IsInf(f.v, 0) {
			return Record{}, invalid(f.name, "is not a finite number")
		}
		if f.v < 0 {
			return Record{}, invalid(f.name, "must not be negative, got %v", f.v)
		}
	}

	if err := ValidateURL(r.URL); err != nil {
		return Record{}, err
	}
	if r.QPS < 1 {
		return Record{}, invalid("qps", "must be at least 1, got %d", r.QPS)
	}
	if r.Duration < MinDuration || r.Duration > MaxDuration {
		return Record{}, invalid("duration", "must be within [%d, %d], got %d", MinDuration, MaxDuration, r.Duration)
	}

	if r.TotalRequests < 0 {
		return Record{}, invalid("total_requests", "must not be negative, got %d", r.TotalRequests)
	}
	if r.SuccessfulRequests < 0 {
		return Record{}, invalid("successful_requests", "must not be negative, got %d", r.SuccessfulRequests)
	}
	if r.FailedRequests < 0 {
		return Record{}, invalid("failed_requests", "must not be negative, got %d", r.FailedRequests)
	}
	if r.FailedRequests > r.TotalRequests {
		return Record{}, invalid("failed_requests", "exceeds total_requests (%d > %d)", r.FailedRequests, r.TotalRequests)
	}
	if r.ErrorRate > 100 {
		return Record{}, invalid("error_rate", "must be within [0, 100], got %v", r.ErrorRate)
	}

	// min <= median <= p90 <= p99 <= max
	chain := []struct {
		name string
		v    float64
	}{
		{"min_latency", r.MinLatency},
		{"median_latency", r.MedianLatency},
		{"p90_latency", r.P90Latency},
		{"p99_latency", r.P99Latency},
		{"max_latency", r.MaxLatency},
	}
	for i := 1; i < len(chain); i++ {
		if chain[i-1].v > chain[i].v {
			return Record{}, invalid(chain[i-1].name, "exceeds %s (%v > %v)", chain[i].name, chain[i-1].v, chain[i].v)
		}
	}
	if r.AvgLatency < r.MinLatency || r.AvgLatency > r.MaxLatency {
		return Record{}, invalid("avg_latency", "must be within [min_latency, max_latency], got %v", r.AvgLatency)
	}

	return r, nil
}

// ValidateAll validates every record and reports the first failure with its index.
func ValidateAll(records []Record) error {
	for i, r := range records {
		if _, err := Validate(r); err != nil {
			return errors.Wrapf(err, "record %d", i)
		}
	}
	return nil
}

// ValidateURL requires an absolute URL with a scheme and a host.
func ValidateURL(raw string) error {
	if raw == "" {
		return invalid("url", "must not be empty")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return invalid("url", "is not parseable: %v", err)
	}
	if !u.IsAbs() || u.Host == "" {
		return invalid("url", "must be an absolute URL, got %q", raw)
	}
	return nil
}
