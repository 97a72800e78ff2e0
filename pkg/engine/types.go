package engine

import (
	"time"
)

// Config tunes how the engine drives a target
type Config struct {
	// RequestTimeout bounds one GET including its retries
	RequestTimeout time.Duration

	// RetryCount is the number of retries after a 429/5xx answer or a transport error
	RetryCount int

	// RetryWait is the initial backoff, doubled on every retry up to RetryMaxWait
	RetryWait    time.Duration
	RetryMaxWait time.Duration

	// FinishMargin is how long before the planned duration elapses outstanding
	// requests are abandoned, so the result is stored by the time the duration is up
	FinishMargin time.Duration

	// RunGrace is how long a run may outlast its planned duration before it is cancelled
	RunGrace time.Duration
}

// DefaultConfig retries five times with a 0.5s backoff that doubles on every attempt
func DefaultConfig() Config {
	return Config{
		RequestTimeout: 10 * time.Second,
		RetryCount:     5,
		RetryWait:      500 * time.Millisecond,
		RetryMaxWait:   8 * time.Second,
		FinishMargin:   250 * time.Millisecond,
		RunGrace:       60 * time.Second,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = d.RequestTimeout
	}
	if c.RetryCount < 0 {
		c.RetryCount = 0
	}
	if c.RetryWait <= 0 {
		c.RetryWait = d.RetryWait
	}
	if c.RetryMaxWait < c.RetryWait {
		c.RetryMaxWait = c.RetryWait
	}
	if c.FinishMargin <= 0 {
		c.FinishMargin = d.FinishMargin
	}
	if c.RunGrace <= 0 {
		c.RunGrace = d.RunGrace
	}
	return c
}

// sample is the outcome of one request
type sample struct {
	latency float64 // seconds
	size    int
	ok      bool
}
