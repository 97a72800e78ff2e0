package engine

import (
	"context"
	"sort"
	"sync"
	"time"

	"loaddash/pkg/exp"
	"loaddash/pkg/result"
	"loaddash/pkg/runner"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
)

var (
	ErrTestRunning   = errors.New("another test is currently running")
	ErrNoTestRunning = errors.New("no test is currently running")
)

// Engine runs one load test at a time in the background and keeps every finished
// result on disk
type Engine struct {
	ctx    context.Context
	cancel context.CancelFunc

	cfg     Config
	logger  zerolog.Logger
	fs      *exp.FileStorage[*result.Record]
	manager *exp.Manager[*result.Record]

	mu      sync.Mutex
	current runner.Params
}

// New creates an engine storing results under storagePath
func New(storagePath string, cfg Config, logger zerolog.Logger) (*Engine, error) {
	fs, err := exp.NewFileStorage[*result.Record](storagePath)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create file storage")
	}

	ctx, cancel := context.WithCancel(context.Background())
	e := &Engine{
		ctx:    ctx,
		cancel: cancel,
		cfg:    cfg.withDefaults(),
		logger: logger,
		fs:     fs,
	}
	e.manager = exp.NewManager[*result.Record](fs, logger)
	e.manager.OnDone(func(id string, record *result.Record, err error) {
		if err != nil {
			return
		}
		logger.Info().
			Str("run_id", id).
			Str("url", record.URL).
			Int64("total_requests", record.TotalRequests).
			Float64("error_rate", record.ErrorRate).
			Msg("Result stored")
	})

	return e, nil
}

// Start launches a load test in the background and returns the zero snapshot
// record describing it
func (e *Engine) Start(params runner.Params) (*result.Record, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}

	collector := NewCollector(params, e.cfg, e.logger.With().Str("url", params.URL).Logger())
	timeout := params.PlannedDuration() + e.cfg.RunGrace

	e.mu.Lock()
	defer e.mu.Unlock()

	err := e.manager.Start(e.ctx, uuid.NewString(), timeout, collector.Run)
	if errors.Is(err, exp.ErrAlreadyRunning) {
		return nil, ErrTestRunning
	}
	if err != nil {
		return nil, err
	}
	e.current = params

	return &result.Record{
		Timestamp: float64(time.Now().UnixNano()) / 1e9,
		URL:       params.URL,
		QPS:       params.QPS,
		Duration:  params.Duration,
	}, nil
}

// Stop cancels the running test. The partial result is stored before it returns.
func (e *Engine) Stop() error {
	err := e.manager.Stop()
	if errors.Is(err, exp.ErrNotRunning) {
		return ErrNoTestRunning
	}
	return err
}

// Running reports whether a test is in progress and its target
func (e *Engine) Running() (bool, string) {
	if e.manager.GetStatus() != exp.Running {
		return false, ""
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return true, e.current.URL
}

// CurrentRunID returns the ID the running test's result will be stored under, or ""
// when idle
func (e *Engine) CurrentRunID() string {
	return e.manager.GetCurrentExperimentID()
}

// Results returns stored results oldest first. A positive limit keeps only the most
// recent ones.
func (e *Engine) Results(limit int) ([]result.Record, error) {
	infos, err := e.manager.ListExperiments()
	if err != nil {
		return nil, errors.Wrap(err, "failed to list results")
	}

	records := make([]result.Record, 0, len(infos))
	for _, info := range infos {
		record, err := e.manager.GetExperiment(info.ID)
		if err != nil || record == nil {
			e.logger.Warn().Err(err).Str("run_id", info.ID).Msg("Skipping unreadable result")
			continue
		}
		records = append(records, *record)
	}

	sort.SliceStable(records, func(i, j int) bool {
		return records[i].Timestamp < records[j].Timestamp
	})

	if limit > 0 && len(records) > limit {
		records = records[len(records)-limit:]
	}
	return records, nil
}

// Wait blocks until the running test, if any, has finished
func (e *Engine) Wait() {
	e.manager.Wait()
}

// Close cancels any running test and waits for its result to be stored
func (e *Engine) Close() {
	e.cancel()
	e.manager.Wait()
}
