package main

import (
	"net/http"
	"time"

	"loaddash/pkg/engine"
	"loaddash/pkg/runner"

	"github.com/gin-gonic/gin"
	"github.com/oapi-codegen/runtime"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"
)

const version = "1.0.0"

// APIHandler serves the runner HTTP API
type APIHandler struct {
	engine    *engine.Engine
	validator *engine.RequestValidator
	logger    zerolog.Logger
	startTime time.Time
}

func NewAPIHandler(eng *engine.Engine, validator *engine.RequestValidator, logger zerolog.Logger) *APIHandler {
	return &APIHandler{
		engine:    eng,
		validator: validator,
		logger:    logger,
		startTime: time.Now(),
	}
}

// RegisterRoutes mounts the API on r
func (h *APIHandler) RegisterRoutes(r gin.IRouter) {
	r.Use(h.validateRequest)

	r.POST("/loadtest", h.StartLoadTest)
	r.POST("/stop", h.StopLoadTest)
	r.GET("/results", h.ListResults)
	r.GET("/health", h.HealthCheck)
}

// validateRequest rejects requests that do not match the OpenAPI document. Unknown
// routes fall through to gin's 404/405 handling.
func (h *APIHandler) validateRequest(c *gin.Context) {
	err := h.validator.Validate(c.Request)
	if err == nil || engine.IsUnknownRoute(err) {
		c.Next()
		return
	}

	c.AbortWithStatusJSON(http.StatusBadRequest, runner.ErrorResponse{
		Error:   "invalid_request",
		Message: err.Error(),
	})
}

// StartLoadTest starts a test in the background and answers with its zero snapshot
func (h *APIHandler) StartLoadTest(c *gin.Context) {
	var params runner.Params
	if err := c.ShouldBindJSON(&params); err != nil {
		c.JSON(http.StatusBadRequest, runner.ErrorResponse{
			Error:   "invalid_request",
			Message: err.Error(),
		})
		return
	}

	snapshot, err := h.engine.Start(params)
	if err != nil {
		statusCode := http.StatusBadRequest
		errorType := "invalid_request"

		if errors.Is(err, engine.ErrTestRunning) {
			statusCode = http.StatusConflict
			errorType = "test_running"
		}

		c.JSON(statusCode, runner.ErrorResponse{
			Error:   errorType,
			Message: err.Error(),
		})
		return
	}

	h.logger.Info().
		Str("url", params.URL).
		Int("qps", params.QPS).
		Int("duration", params.Duration).
		Msg("Load test started")

	c.JSON(http.StatusOK, snapshot)
}

// StopLoadTest cancels the running test
func (h *APIHandler) StopLoadTest(c *gin.Context) {
	if err := h.engine.Stop(); err != nil {
		statusCode := http.StatusInternalServerError
		errorType := "internal_error"

		if errors.Is(err, engine.ErrNoTestRunning) {
			statusCode = http.StatusConflict
			errorType = "no_test_running"
		}

		c.JSON(statusCode, runner.ErrorResponse{
			Error:   errorType,
			Message: err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Test stopped"})
}

// ListResults returns stored results oldest first
func (h *APIHandler) ListResults(c *gin.Context) {
	var limit *int
	if err := runtime.BindQueryParameter("form", true, false, "limit", c.Request.URL.Query(), &limit); err != nil {
		c.JSON(http.StatusBadRequest, runner.ErrorResponse{
			Error:   "invalid_request",
			Message: err.Error(),
		})
		return
	}

	n := 0
	if limit != nil {
		n = *limit
	}

	records, err := h.engine.Results(n)
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to list results")
		c.JSON(http.StatusInternalServerError, runner.ErrorResponse{
			Error:   "internal_error",
			Message: err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, records)
}

// HealthCheck reports the runner state and host load
func (h *APIHandler) HealthCheck(c *gin.Context) {
	running, url := h.engine.Running()

	response := runner.Health{
		Status:     "healthy",
		Version:    version,
		Uptime:     time.Since(h.startTime).Seconds(),
		Running:    running,
		CurrentURL: url,
		RunID:      h.engine.CurrentRunID(),
	}

	if percents, err := cpu.Percent(0, false); err != nil {
		h.logger.Warn().Err(err).Msg("Failed to read CPU usage")
	} else if len(percents) > 0 {
		response.CPUPercent = percents[0]
	}

	if vm, err := mem.VirtualMemory(); err != nil {
		h.logger.Warn().Err(err).Msg("Failed to read memory usage")
	} else {
		response.MemoryPercent = vm.UsedPercent
	}

	c.JSON(http.StatusOK, response)
}
