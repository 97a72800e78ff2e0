package session

import (
	"time"
)

// State is the lifecycle state of a load test session
type State int

const (
	Idle State = iota
	Submitting
	Running
	Stopping
)

func (s State) String() string {
	switch s {
	case Idle:
		return "Idle"
	case Submitting:
		return "Submitting"
	case Running:
		return "Running"
	case Stopping:
		return "Stopping"
	default:
		return "Unknown"
	}
}

// Status is a point-in-time view of the session for rendering
type Status struct {
	State     State
	URL       string
	QPS       int
	Planned   int // seconds
	Elapsed   int // seconds
	StartedAt time.Time
}

// Busy reports whether a submit must be refused. Submitting and Stopping are
// only observable through it.
func (s Status) Busy() bool {
	return s.State != Idle
}

// Progress returns elapsed/planned clamped to [0, 1]
func (s Status) Progress() float64 {
	if s.Planned <= 0 {
		return 0
	}
	p := float64(s.Elapsed) / float64(s.Planned)
	if p > 1 {
		return 1
	}
	return p
}

// Ticker delivers progress ticks
type Ticker interface {
	C() <-chan time.Time
	Stop()
}

// TickerFactory creates a ticker firing every d
type TickerFactory func(d time.Duration) Ticker

type timeTicker struct {
	ticker *time.Ticker
}

func (t timeTicker) C() <-chan time.Time {
	return t.ticker.C
}

func (t timeTicker) Stop() {
	t.ticker.Stop()
}

// NewTimeTicker is the wall-clock TickerFactory
func NewTimeTicker(d time.Duration) Ticker {
	return timeTicker{ticker: time.NewTicker(d)}
}
