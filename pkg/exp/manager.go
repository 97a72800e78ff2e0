package exp

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
)

var (
	ErrAlreadyRunning = errors.New("another run is in progress")
	ErrNotRunning     = errors.New("no run is in progress")
)

const (
	Pending = "Pending"
	Running = "Running"
)

// Manager runs at most one experiment at a time and keeps the finished ones in storage
type Manager[T Data] struct {
	logger zerolog.Logger
	fs     *FileStorage[T]

	mu        sync.Mutex
	current   *Experiment[T]
	currentID string
	onDone    func(id string, data T, err error)
}

func NewManager[T Data](fs *FileStorage[T], logger zerolog.Logger) *Manager[T] {
	return &Manager[T]{
		logger: logger,
		fs:     fs,
	}
}

// OnDone registers a hook called when a run finishes, after its data has been saved
func (m *Manager[T]) OnDone(f func(id string, data T, err error)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onDone = f
}

// Start begins a new run named id that gathers its data with collect
func (m *Manager[T]) Start(ctx context.Context, id string, timeout time.Duration, collect CollectFunc[T]) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.current != nil && !m.current.IsDone() {
		return errors.Wrapf(ErrAlreadyRunning, "run %s", m.currentID)
	}
	e := NewExperiment(id, m.fs, collect, m.logger)
	hook := m.onDone
	err := e.Start(ctx, timeout, func(data T, err error) {
		if hook != nil {
			hook(id, data, err)
		}
	})
	if err != nil {
		return err
	}

	m.current = e
	m.currentID = id
	m.logger.Info().Str("run_id", id).Dur("timeout", timeout).Msg("Run started")
	return nil
}

// Stop cancels the current run and waits for its partial data to be saved
func (m *Manager[T]) Stop() error {
	m.mu.Lock()
	e := m.current
	id := m.currentID
	m.mu.Unlock()

	if e == nil || e.IsDone() {
		return ErrNotRunning
	}

	e.Stop()
	m.logger.Info().Str("run_id", id).Msg("Run stopped")
	return nil
}

// Wait blocks until the current run, if any, has finished
func (m *Manager[T]) Wait() {
	m.mu.Lock()
	e := m.current
	m.mu.Unlock()

	if e != nil {
		e.Wait()
	}
}

func (m *Manager[T]) GetExperiment(id string) (T, error) {
	return m.fs.Load(id)
}

func (m *Manager[T]) GetStatus() string {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.current == nil || m.current.IsDone() {
		return Pending
	}
	return Running
}

// GetCurrentExperimentID returns the ID of the run in progress, or "" when idle
func (m *Manager[T]) GetCurrentExperimentID() string {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.current == nil || m.current.IsDone() {
		return ""
	}
	return m.currentID
}

func (m *Manager[T]) ListExperiments() ([]ExperimentInfo, error) {
	return m.fs.List()
}
