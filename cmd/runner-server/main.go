package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"loaddash/pkg/engine"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

const (
	defaultPort        = "8000"
	defaultStoragePath = "./data/results"
)

func main() {
	// Get configuration from environment variables
	port := getEnv("PORT", defaultPort)
	storagePath := getEnv("STORAGE_PATH", defaultStoragePath)

	logger := zerolog.New(os.Stdout).With().Timestamp().Str("service", "runner").Logger()

	eng, err := engine.New(storagePath, engine.DefaultConfig(), logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to create engine")
	}

	validator, err := engine.NewRequestValidator()
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to load OpenAPI document")
	}

	apiHandler := NewAPIHandler(eng, validator, logger)

	if os.Getenv(gin.EnvGinMode) == "" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Logger(), gin.Recovery())
	apiHandler.RegisterRoutes(router)

	server := &http.Server{
		Addr:    ":" + port,
		Handler: router,
	}

	go func() {
		logger.Info().Str("port", port).Str("storage_path", storagePath).Msg("Starting runner server")

		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("Server failed to start")
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("Shutting down server...")

	// Cancel the running test; its partial result is still stored
	eng.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Error().Err(err).Msg("Server forced to shutdown")
	}

	logger.Info().Msg("Server exited")
}

// getEnv gets an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
