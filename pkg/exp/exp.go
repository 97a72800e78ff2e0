package exp

import (
	"context"
	"encoding/json"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
)

// Data is anything a run produces and the file storage can persist
type Data interface {
	json.Marshaler
	json.Unmarshaler
}

// CollectFunc produces the data of one run. It must return what it has gathered
// so far once ctx is cancelled.
type CollectFunc[T Data] func(context.Context) (T, error)

// Experiment is a single background run whose result is saved under its ID
type Experiment[T Data] struct {
	id     string
	logger zerolog.Logger

	collect CollectFunc[T]
	fs      *FileStorage[T]

	cancel context.CancelFunc
	done   chan struct{}
}

func NewExperiment[T Data](id string, fs *FileStorage[T], collect CollectFunc[T], logger zerolog.Logger) *Experiment[T] {
	return &Experiment[T]{
		id:      id,
		fs:      fs,
		collect: collect,
		logger:  logger.With().Str("run_id", id).Logger(),
	}
}

// Start launches the collector in the background. The run is cancelled after timeout.
// onDone, if set, is called after the result has been saved.
func (e *Experiment[T]) Start(parent context.Context, timeout time.Duration, onDone func(T, error)) error {
	if e.id == "" {
		return errors.New("id must not be empty")
	}
	if e.collect == nil {
		return errors.New("no collect func set")
	}

	ctx, cancel := context.WithTimeout(parent, timeout)
	e.cancel = cancel
	e.done = make(chan struct{})

	go func() {
		defer close(e.done)
		defer cancel()

		data, err := e.collect(ctx)
		if err != nil {
			e.logger.Error().Err(err).Msg("Failed to collect data")
		} else if err = e.fs.Save(e.id, data); err != nil {
			e.logger.Error().Err(err).Msg("Failed to save data")
		}

		if onDone != nil {
			onDone(data, err)
		}
	}()

	return nil
}

// Stop cancels the run and waits until its result has been saved
func (e *Experiment[T]) Stop() {
	if e.cancel == nil {
		return
	}
	e.cancel()
	<-e.done
}

// Wait blocks until the run has finished
func (e *Experiment[T]) Wait() {
	if e.done == nil {
		return
	}
	<-e.done
}

// IsDone reports whether the run has finished
func (e *Experiment[T]) IsDone() bool {
	if e.done == nil {
		return true
	}
	select {
	case <-e.done:
		return true
	default:
		return false
	}
}
