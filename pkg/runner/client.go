package runner

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"loaddash/pkg/result"

	"github.com/go-resty/resty/v2"
	"github.com/pkg/errors"
)

// DefaultTimeout bounds every call to the runner when Config.Timeout is unset.
const DefaultTimeout = 10 * time.Second

// ErrTransport marks failures where no HTTP response was received: connection
// errors, timeouts and cancelled contexts.
var ErrTransport = errors.New("runner unreachable")

// StatusError is returned when the runner answers with a non-success status.
type StatusError struct {
	Op      string
	Code    int
	Message string
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("%s failed with status %d", e.Op, e.Code)
	}
	return fmt.Sprintf("%s failed with status %d: %s", e.Op, e.Code, e.Message)
}

// Config configures the HTTP runner client
type Config struct {
	BaseURL string
	Timeout time.Duration
}

// HTTPClient implements Client against the runner's HTTP API
type HTTPClient struct {
	client *resty.Client
}

// NewHTTPClient creates a new runner client
func NewHTTPClient(cfg Config) (*HTTPClient, error) {
	if err := result.ValidateURL(cfg.BaseURL); err != nil {
		return nil, errors.Wrap(err, "invalid runner base URL")
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	client := resty.New().
		SetBaseURL(strings.TrimSuffix(cfg.BaseURL, "/")).
		SetTimeout(timeout).
		SetHeader("Accept", "application/json")

	return &HTTPClient{client: client}, nil
}

// StartLoadTest submits a load test
func (c *HTTPClient) StartLoadTest(ctx context.Context, params Params) (*result.Record, error) {
	resp, err := c.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(params).
		Post("/loadtest")
	if err != nil {
		return nil, transportError("start load test", err)
	}
	if !resp.IsSuccess() {
		return nil, statusError("start load test", resp)
	}

	var record result.Record
	if err := json.Unmarshal(resp.Body(), &record); err != nil {
		return nil, errors.Wrap(err, "failed to decode start response")
	}
	return &record, nil
}

// Stop stops the running load test
func (c *HTTPClient) Stop(ctx context.Context) error {
	resp, err := c.client.R().SetContext(ctx).Post("/stop")
	if err != nil {
		return transportError("stop load test", err)
	}
	if !resp.IsSuccess() {
		return statusError("stop load test", resp)
	}
	return nil
}

// FetchResults returns the raw body of the result list. The body is not decoded here
// so that the store decides how to treat a malformed payload.
func (c *HTTPClient) FetchResults(ctx context.Context) ([]byte, error) {
	resp, err := c.client.R().SetContext(ctx).Get("/results")
	if err != nil {
		return nil, transportError("fetch results", err)
	}
	if !resp.IsSuccess() {
		return nil, statusError("fetch results", resp)
	}
	return resp.Body(), nil
}

// Health queries the runner health endpoint
func (c *HTTPClient) Health(ctx context.Context) (*Health, error) {
	var health Health
	resp, err := c.client.R().SetContext(ctx).SetResult(&health).Get("/health")
	if err != nil {
		return nil, transportError("health check", err)
	}
	if resp.StatusCode() != http.StatusOK {
		return nil, statusError("health check", resp)
	}
	return &health, nil
}

func transportError(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, ErrTransport, err)
}

func statusError(op string, resp *resty.Response) error {
	se := &StatusError{Op: op, Code: resp.StatusCode()}

	var body ErrorResponse
	if err := json.Unmarshal(resp.Body(), &body); err == nil && body.Message != "" {
		se.Message = body.Message
	} else {
		se.Message = strings.TrimSpace(string(resp.Body()))
	}
	return se
}
