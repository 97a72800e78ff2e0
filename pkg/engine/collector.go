package engine

import (
	"context"
	"net/http"
	"sort"
	"sync"
	"time"

	"loaddash/pkg/result"
	"loaddash/pkg/runner"

	"github.com/go-resty/resty/v2"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
)

// Collector sends qps*duration GET requests to the target and summarizes them
type Collector struct {
	params runner.Params
	cfg    Config
	client *resty.Client
	logger zerolog.Logger
}

// NewCollector creates a collector for one run
func NewCollector(params runner.Params, cfg Config, logger zerolog.Logger) *Collector {
	cfg = cfg.withDefaults()

	client := resty.New().
		SetTimeout(cfg.RequestTimeout).
		SetRetryCount(cfg.RetryCount).
		SetRetryWaitTime(cfg.RetryWait).
		SetRetryMaxWaitTime(cfg.RetryMaxWait).
		SetLogger(restyLogger{logger: logger}).
		AddRetryCondition(shouldRetry)

	return &Collector{
		params: params,
		cfg:    cfg,
		client: client,
		logger: logger,
	}
}

func shouldRetry(resp *resty.Response, err error) bool {
	if err != nil {
		return !errors.Is(err, context.Canceled)
	}
	switch resp.StatusCode() {
	case http.StatusTooManyRequests,
		http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true
	}
	return false
}

// Run hands all requests to qps workers at once. Requests still outstanding
// FinishMargin before the planned duration are abandoned and count as failed. When
// ctx is cancelled it stops sending and summarizes what has completed.
func (c *Collector) Run(ctx context.Context) (*result.Record, error) {
	total := c.params.QPS * c.params.Duration
	if total <= 0 {
		return nil, errors.Errorf("nothing to send for qps=%d duration=%d", c.params.QPS, c.params.Duration)
	}

	numWorkers := c.params.QPS
	if numWorkers > total {
		numWorkers = total
	}

	start := time.Now()
	runCtx, cancel := context.WithDeadline(ctx, start.Add(c.deadline()))
	defer cancel()

	jobs := make(chan struct{}, numWorkers)
	workerSamples := make([][]sample, numWorkers)

	var wg sync.WaitGroup
	for i := 0; i < numWorkers; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			for range jobs {
				if runCtx.Err() != nil {
					continue
				}
				s := c.send(runCtx)
				// Requests cut short by a stop are not part of the result.
				if !s.ok && ctx.Err() != nil {
					continue
				}
				workerSamples[workerID] = append(workerSamples[workerID], s)
			}
		}(i)
	}

	dispatch(runCtx, jobs, total)
	close(jobs)
	wg.Wait()

	var samples []sample
	for _, ws := range workerSamples {
		samples = append(samples, ws...)
	}

	record := summarize(c.params, samples, time.Since(start), time.Now())

	c.logger.Info().
		Str("url", c.params.URL).
		Int64("total_requests", record.TotalRequests).
		Int64("failed_requests", record.FailedRequests).
		Float64("avg_latency", record.AvgLatency).
		Bool("cancelled", ctx.Err() != nil).
		Bool("deadline_reached", ctx.Err() == nil && runCtx.Err() != nil).
		Msg("Load test finished")

	return record, nil
}

// deadline is the time after start by which every request must have finished
func (c *Collector) deadline() time.Duration {
	planned := c.params.PlannedDuration()
	if d := planned - c.cfg.FinishMargin; d > 0 {
		return d
	}
	return planned
}

// dispatch queues total jobs as fast as the workers take them
func dispatch(ctx context.Context, jobs chan<- struct{}, total int) {
	for sent := 0; sent < total; sent++ {
		select {
		case <-ctx.Done():
			return
		case jobs <- struct{}{}:
		}
	}
}

func (c *Collector) send(ctx context.Context) sample {
	start := time.Now()
	resp, err := c.client.R().SetContext(ctx).Get(c.params.URL)
	latency := time.Since(start).Seconds()

	if err != nil {
		c.logger.Debug().Err(err).Msg("Request failed")
		return sample{latency: latency}
	}
	if resp.StatusCode() >= http.StatusBadRequest {
		c.logger.Debug().Int("status", resp.StatusCode()).Msg("Request failed")
		return sample{latency: latency}
	}
	return sample{latency: latency, size: len(resp.Body()), ok: true}
}

// summarize builds the result record. Latency and size statistics cover successful
// requests only; rates are taken over the wall time of the run.
func summarize(params runner.Params, samples []sample, elapsed time.Duration, now time.Time) *result.Record {
	record := &result.Record{
		Timestamp: float64(now.UnixNano()) / 1e9,
		URL:       params.URL,
		QPS:       params.QPS,
		Duration:  params.Duration,
	}

	var latencies []float64
	var sizeSum float64
	for _, s := range samples {
		if !s.ok {
			record.FailedRequests++
			continue
		}
		record.SuccessfulRequests++
		latencies = append(latencies, s.latency)
		sizeSum += float64(s.size)
	}
	record.TotalRequests = record.SuccessfulRequests + record.FailedRequests

	if record.TotalRequests > 0 {
		record.ErrorRate = float64(record.FailedRequests) / float64(record.TotalRequests) * 100
	}
	if secs := elapsed.Seconds(); secs > 0 {
		record.CurrentRPS = float64(record.TotalRequests) / secs
		record.CurrentFailuresPerSec = float64(record.FailedRequests) / secs
	}

	n := len(latencies)
	if n == 0 {
		return record
	}

	sort.Float64s(latencies)

	var sum float64
	for _, l := range latencies {
		sum += l
	}

	record.MinLatency = latencies[0]
	record.MaxLatency = latencies[n-1]
	record.MedianLatency = median(latencies)
	record.P90Latency = percentile(latencies, 0.90)
	record.P99Latency = percentile(latencies, 0.99)
	record.AvgLatency = clamp(sum/float64(n), record.MinLatency, record.MaxLatency)
	record.AvgSize = sizeSum / float64(n)

	return record
}

func median(sorted []float64) float64 {
	n := len(sorted)
	if n%2 == 1 {
		return sorted[n/2]
	}
	return (sorted[n/2-1] + sorted[n/2]) / 2
}

// percentile returns the element at index int(p*n) of a sorted slice
func percentile(sorted []float64, p float64) float64 {
	i := int(p * float64(len(sorted)))
	if i >= len(sorted) {
		i = len(sorted) - 1
	}
	return sorted[i]
}

// clamp absorbs rounding of the mean outside [lo, hi]
func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// restyLogger routes resty's retry and error messages into zerolog
type restyLogger struct {
	logger zerolog.Logger
}

func (l restyLogger) Errorf(format string, v ...interface{}) {
	l.logger.Debug().Msgf(format, v...)
}

func (l restyLogger) Warnf(format string, v ...interface{}) {
	l.logger.Debug().Msgf(format, v...)
}

func (l restyLogger) Debugf(format string, v ...interface{}) {
	l.logger.Debug().Msgf(format, v...)
}
