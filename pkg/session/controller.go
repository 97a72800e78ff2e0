package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"loaddash/pkg/runner"
	"loaddash/pkg/store"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
)

// DefaultTickInterval is the period of the local progress clock
const DefaultTickInterval = time.Second

var (
	ErrBusy          = errors.New("a load test session is already active")
	ErrNotRunning    = errors.New("no load test is running")
	ErrInvalidParams = errors.New("invalid load test parameters")
	ErrClosed        = errors.New("controller is closed")
)

// Controller owns the lifecycle of one in-flight load test: submit, the local
// progress clock, stop, and reconciliation of the results store with the runner.
//
// Progress is a local wall-clock estimate of the remote test; the runner is never
// polled for it. When the estimate reaches the planned duration the controller
// fetches the authoritative result list.
type Controller struct {
	ctx    context.Context
	cancel context.CancelFunc

	client runner.Client
	store  *store.Store
	logger zerolog.Logger

	newTicker    TickerFactory
	tickInterval time.Duration

	mu         sync.Mutex
	state      State
	params     runner.Params
	elapsed    int
	startedAt  time.Time
	generation uint64
	stopClock  context.CancelFunc
	clockDone  chan struct{}

	subMu       sync.Mutex
	subscribers map[int]chan Status
	nextSubID   int
}

// NewController creates an idle controller writing into st
func NewController(client runner.Client, st *store.Store, logger zerolog.Logger) *Controller {
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	close(done)

	return &Controller{
		ctx:          ctx,
		cancel:       cancel,
		client:       client,
		store:        st,
		logger:       logger,
		newTicker:    NewTimeTicker,
		tickInterval: DefaultTickInterval,
		clockDone:    done,
		subscribers:  make(map[int]chan Status),
	}
}

// SetTicker replaces the progress clock source. It must be called before Submit.
func (c *Controller) SetTicker(factory TickerFactory, interval time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if factory != nil {
		c.newTicker = factory
	}
	if interval > 0 {
		c.tickInterval = interval
	}
}

// Store returns the results store the controller writes to
func (c *Controller) Store() *store.Store {
	return c.store
}

// Status returns the current session status
func (c *Controller) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.statusLocked()
}

func (c *Controller) statusLocked() Status {
	return Status{
		State:     c.state,
		URL:       c.params.URL,
		QPS:       c.params.QPS,
		Planned:   c.params.Duration,
		Elapsed:   c.elapsed,
		StartedAt: c.startedAt,
	}
}

// Submit starts a load test on the runner. It is refused without a remote call
// when params are invalid or a session is already active. On a runner failure the
// session returns to Idle and the store is left untouched.
func (c *Controller) Submit(ctx context.Context, params runner.Params) error {
	if err := params.Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidParams, err)
	}

	c.mu.Lock()
	if c.ctx.Err() != nil {
		c.mu.Unlock()
		return ErrClosed
	}
	if c.state != Idle {
		state := c.state
		c.mu.Unlock()
		return errors.Wrapf(ErrBusy, "session is %s", state)
	}
	c.state = Submitting
	c.params = params
	c.elapsed = 0
	c.mu.Unlock()
	c.notify()

	log := c.logger.With().
		Str("url", params.URL).
		Int("qps", params.QPS).
		Int("duration", params.Duration).
		Logger()

	log.Info().Msg("Submitting load test")

	record, err := c.client.StartLoadTest(ctx, params)
	if err != nil {
		log.Error().Err(err).Msg("Failed to start load test")
		c.mu.Lock()
		c.state = Idle
		c.mu.Unlock()
		c.notify()
		return err
	}

	// Optimistic insert; the next reconciliation replaces it with the authoritative list.
	if record != nil {
		if err := c.store.Prepend(*record); err != nil {
			log.Warn().Err(err).Msg("Runner returned an invalid record, not storing it")
		}
	}

	c.mu.Lock()
	if c.ctx.Err() != nil {
		// Closed while the start request was in flight; the remote test is left running.
		c.state = Idle
		c.mu.Unlock()
		c.notify()
		log.Warn().Msg("Controller closed during submit, not tracking the test")
		return ErrClosed
	}
	c.generation++
	clockCtx, stopClock := context.WithCancel(c.ctx)
	done := make(chan struct{})
	c.state = Running
	c.startedAt = time.Now()
	c.stopClock = stopClock
	c.clockDone = done
	go c.runClock(clockCtx, c.newTicker(c.tickInterval), c.generation, done)
	c.mu.Unlock()
	c.notify()

	log.Info().Msg("Load test running")
	return nil
}

// Stop asks the runner to stop the running test. On success the clock is cancelled,
// elapsed is reset and the session becomes Idle; no reconciliation fetch is made.
// On failure the session keeps running and the error is returned.
func (c *Controller) Stop(ctx context.Context) error {
	c.mu.Lock()
	if c.state != Running {
		state := c.state
		c.mu.Unlock()
		return errors.Wrapf(ErrNotRunning, "session is %s", state)
	}
	c.state = Stopping
	gen := c.generation
	url := c.params.URL
	c.mu.Unlock()
	c.notify()

	c.logger.Info().Str("url", url).Msg("Stopping load test")

	err := c.client.Stop(ctx)

	c.mu.Lock()
	if gen != c.generation {
		// The clock completed the session while the stop request was in flight.
		c.mu.Unlock()
		if err != nil {
			c.logger.Warn().Err(err).Msg("Stop request failed after session completed")
		}
		return err
	}
	if err != nil {
		c.state = Running
		c.mu.Unlock()
		c.logger.Error().Err(err).Msg("Failed to stop load test")
		c.notify()
		return err
	}
	c.elapsed = 0
	c.endSessionLocked()
	c.mu.Unlock()
	c.notify()

	c.logger.Info().Msg("Load test stopped")
	return nil
}

// Refresh replaces the store with the runner's authoritative result list.
func (c *Controller) Refresh(ctx context.Context) error {
	return c.reconcile(ctx)
}

// Wait blocks until the current progress clock has exited, including the
// reconciliation fetch a natural completion triggers.
func (c *Controller) Wait() {
	c.mu.Lock()
	done := c.clockDone
	c.mu.Unlock()
	<-done
}

// Close cancels the progress clock and any in-flight reconciliation. The remote
// test, if any, is not stopped.
func (c *Controller) Close() {
	c.mu.Lock()
	if c.state != Idle {
		c.endSessionLocked()
	}
	c.mu.Unlock()
	c.cancel()
	c.Wait()
	c.notify()

	c.subMu.Lock()
	for id, ch := range c.subscribers {
		close(ch)
		delete(c.subscribers, id)
	}
	c.subMu.Unlock()
}

// Subscribe returns a channel receiving the latest status after every change, and a
// function to unsubscribe. Slow readers only miss intermediate states.
func (c *Controller) Subscribe() (<-chan Status, func()) {
	ch := make(chan Status, 1)

	c.subMu.Lock()
	id := c.nextSubID
	c.nextSubID++
	c.subscribers[id] = ch
	c.subMu.Unlock()

	return ch, func() {
		c.subMu.Lock()
		defer c.subMu.Unlock()
		if _, ok := c.subscribers[id]; ok {
			delete(c.subscribers, id)
			close(ch)
		}
	}
}

// endSessionLocked moves the session to Idle and invalidates its clock.
func (c *Controller) endSessionLocked() {
	c.state = Idle
	c.generation++
	if c.stopClock != nil {
		c.stopClock()
		c.stopClock = nil
	}
}

func (c *Controller) runClock(ctx context.Context, ticker Ticker, gen uint64, done chan struct{}) {
	defer close(done)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C():
			if c.tick(gen) {
				ticker.Stop()
				if err := c.reconcile(c.ctx); err != nil {
					c.logger.Warn().Err(err).Msg("Reconciliation after completion failed")
				}
				return
			}
		}
	}
}

// tick advances elapsed by one and reports whether the planned duration was reached.
func (c *Controller) tick(gen uint64) bool {
	c.mu.Lock()
	if gen != c.generation {
		c.mu.Unlock()
		return false
	}

	c.elapsed++
	completed := c.elapsed >= c.params.Duration
	if completed {
		c.elapsed = c.params.Duration
		c.endSessionLocked()
	}
	elapsed := c.elapsed
	c.mu.Unlock()
	c.notify()

	if completed {
		c.logger.Info().Int("elapsed", elapsed).Msg("Load test duration elapsed")
	} else {
		c.logger.Debug().Int("elapsed", elapsed).Msg("Progress tick")
	}
	return completed
}

func (c *Controller) reconcile(ctx context.Context) error {
	payload, err := c.client.FetchResults(ctx)
	if err != nil {
		c.logger.Error().Err(err).Msg("Failed to fetch results")
		return err
	}

	err = c.store.ReplaceAllJSON(payload)
	c.notify()
	if err != nil {
		c.logger.Warn().Err(err).Msg("Discarded results payload, store emptied")
		return err
	}

	c.logger.Info().Int("count", c.store.Len()).Msg("Results reconciled")
	return nil
}

func (c *Controller) notify() {
	st := c.Status()

	c.subMu.Lock()
	defer c.subMu.Unlock()

	for _, ch := range c.subscribers {
		select {
		case ch <- st:
		default:
			// Replace the unread status with the latest one.
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- st:
			default:
			}
		}
	}
}
