package main

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"loaddash/pkg/engine"
	"loaddash/pkg/result"
	"loaddash/pkg/runner"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupRouter(t *testing.T) (*gin.Engine, *engine.Engine) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	cfg := engine.DefaultConfig()
	cfg.RetryCount = 0
	eng, err := engine.New(t.TempDir(), cfg, zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(eng.Close)

	validator, err := engine.NewRequestValidator()
	require.NoError(t, err)

	router := gin.New()
	NewAPIHandler(eng, validator, zerolog.Nop()).RegisterRoutes(router)
	return router, eng
}

func newTarget(t *testing.T) string {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("pong"))
	}))
	t.Cleanup(server.Close)
	return server.URL
}

// newSlowTarget answers every request after delay, or when the client gives up
func newSlowTarget(t *testing.T, delay time.Duration) string {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-time.After(delay):
			_, _ = w.Write([]byte("pong"))
		case <-r.Context().Done():
		}
	}))
	t.Cleanup(server.Close)
	return server.URL
}

func do(router http.Handler, method, path, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, bytes.NewBufferString(body))
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) runner.ErrorResponse {
	t.Helper()
	var resp runner.ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp
}

func TestStartLoadTest(t *testing.T) {
	router, eng := setupRouter(t)
	target := newTarget(t)

	w := do(router, http.MethodPost, "/loadtest", `{"url":"`+target+`","qps":2,"duration":1}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var snapshot result.Record
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &snapshot))
	assert.Equal(t, target, snapshot.URL)
	assert.Equal(t, 2, snapshot.QPS)
	assert.Zero(t, snapshot.TotalRequests)

	eng.Wait()

	w = do(router, http.MethodGet, "/results", "")
	require.Equal(t, http.StatusOK, w.Code)

	var records []result.Record
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &records))
	require.Len(t, records, 1)
	assert.Equal(t, int64(2), records[0].TotalRequests)
	assert.NoError(t, result.ValidateAll(records))
}

func TestStartLoadTest_Conflict(t *testing.T) {
	router, _ := setupRouter(t)
	target := newSlowTarget(t, time.Second)

	body := `{"url":"` + target + `","qps":1,"duration":10}`
	require.Equal(t, http.StatusOK, do(router, http.MethodPost, "/loadtest", body).Code)

	w := do(router, http.MethodPost, "/loadtest", body)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "test_running", decodeError(t, w).Error)

	assert.Equal(t, http.StatusOK, do(router, http.MethodPost, "/stop", "").Code)
}

func TestStartLoadTest_InvalidBody(t *testing.T) {
	router, _ := setupRouter(t)

	cases := []string{
		`{"url":"http://a","qps":0,"duration":1}`,
		`{"url":"http://a","qps":1,"duration":11}`,
		`{"qps":1,"duration":1}`,
		`{"url":"relative/path","qps":1,"duration":1}`,
		`not json`,
	}
	for _, body := range cases {
		w := do(router, http.MethodPost, "/loadtest", body)
		assert.Equal(t, http.StatusBadRequest, w.Code, body)
		assert.Equal(t, "invalid_request", decodeError(t, w).Error, body)
	}
}

func TestStopLoadTest_Idle(t *testing.T) {
	router, _ := setupRouter(t)

	w := do(router, http.MethodPost, "/stop", "")
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "no_test_running", decodeError(t, w).Error)
}

func TestStopLoadTest_StoresPartialResult(t *testing.T) {
	router, _ := setupRouter(t)
	target := newSlowTarget(t, time.Second)

	require.Equal(t, http.StatusOK,
		do(router, http.MethodPost, "/loadtest", `{"url":"`+target+`","qps":1,"duration":10}`).Code)

	w := do(router, http.MethodPost, "/stop", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"message":"Test stopped"}`, w.Body.String())

	w = do(router, http.MethodGet, "/results", "")
	var records []result.Record
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &records))
	assert.Len(t, records, 1)
}

func TestListResults_EmptyAndLimit(t *testing.T) {
	router, eng := setupRouter(t)

	w := do(router, http.MethodGet, "/results", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `[]`, w.Body.String())

	target := newTarget(t)
	for i := 0; i < 2; i++ {
		require.Equal(t, http.StatusOK,
			do(router, http.MethodPost, "/loadtest", `{"url":"`+target+`","qps":1,"duration":1}`).Code)
		eng.Wait()
	}

	w = do(router, http.MethodGet, "/results?limit=1", "")
	require.Equal(t, http.StatusOK, w.Code)
	var records []result.Record
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &records))
	assert.Len(t, records, 1)

	w = do(router, http.MethodGet, "/results?limit=abc", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHealthCheck(t *testing.T) {
	router, _ := setupRouter(t)
	time.Sleep(time.Millisecond)

	w := do(router, http.MethodGet, "/health", "")
	require.Equal(t, http.StatusOK, w.Code)

	var health runner.Health
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &health))
	assert.Equal(t, "healthy", health.Status)
	assert.Equal(t, version, health.Version)
	assert.False(t, health.Running)
	assert.Empty(t, health.RunID)
	assert.Greater(t, health.Uptime, 0.0)
}

func TestHealthCheck_Running(t *testing.T) {
	router, _ := setupRouter(t)
	target := newSlowTarget(t, time.Second)

	require.Equal(t, http.StatusOK,
		do(router, http.MethodPost, "/loadtest", `{"url":"`+target+`","qps":1,"duration":10}`).Code)
	t.Cleanup(func() { do(router, http.MethodPost, "/stop", "") })

	w := do(router, http.MethodGet, "/health", "")
	require.Equal(t, http.StatusOK, w.Code)

	var health runner.Health
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &health))
	assert.True(t, health.Running)
	assert.Equal(t, target, health.CurrentURL)
	assert.NotEmpty(t, health.RunID)
}

func TestUnknownRoute(t *testing.T) {
	router, _ := setupRouter(t)
	assert.Equal(t, http.StatusNotFound, do(router, http.MethodGet, "/nope", "").Code)
}
