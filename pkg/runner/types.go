package runner

import (
	"context"
	"time"

	"loaddash/pkg/result"

	"github.com/pkg/errors"
)

// Params is the body of a start request
type Params struct {
	URL      string `json:"url"`
	QPS      int    `json:"qps"`
	Duration int    `json:"duration"` // in seconds
}

// Validate checks the submit preconditions: an absolute URL, a positive rate and a
// duration within the accepted range.
func (p Params) Validate() error {
	if err := result.ValidateURL(p.URL); err != nil {
		return err
	}
	if p.QPS < 1 {
		return errors.Errorf("qps must be a positive integer, got %d", p.QPS)
	}
	if p.Duration < result.MinDuration || p.Duration > result.MaxDuration {
		return errors.Errorf("duration must be within [%d, %d] seconds, got %d",
			result.MinDuration, result.MaxDuration, p.Duration)
	}
	return nil
}

// PlannedDuration returns the duration as time.Duration
func (p Params) PlannedDuration() time.Duration {
	return time.Duration(p.Duration) * time.Second
}

// Health describes the runner process and its host
type Health struct {
	Status        string  `json:"status"`
	Version       string  `json:"version"`
	Uptime        float64 `json:"uptime"` // in seconds
	Running       bool    `json:"running"`
	CurrentURL    string  `json:"current_url,omitempty"`
	RunID         string  `json:"run_id,omitempty"`
	CPUPercent    float64 `json:"cpu_percent"`
	MemoryPercent float64 `json:"memory_percent"`
}

// ErrorResponse is the body the runner sends with a non-success status
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// Client is the runner contract used by the session controller
type Client interface {
	// StartLoadTest submits a test and returns the snapshot record the runner answers with
	StartLoadTest(ctx context.Context, params Params) (*result.Record, error)

	// Stop asks the runner to stop the running test
	Stop(ctx context.Context) error

	// FetchResults returns the raw authoritative result list
	FetchResults(ctx context.Context) ([]byte, error)
}
