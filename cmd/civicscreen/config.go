package main

import (
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

// config holds all configuration for the civicscreen CLI.
type config struct {
	// Dataset sinks
	DatasetPath   string
	DatasetSQLite string

	// Model server
	ClassifierURL string
	ClassifierRPS float64

	// Image fetching
	FetchTimeout time.Duration
	FetchRPS     float64

	// Duplicate thresholds
	ImageThreshold          int
	LocationThresholdMeters float64

	// Processing
	Workers int

	// Observability
	MetricsAddr string
	LogLevel    string
}

// loadConfig loads configuration from environment variables.
func loadConfig() *config {
	return &config{
		DatasetPath:   getEnv("CIVIC_DATASET", "data/dataset.jsonl"),
		DatasetSQLite: getEnv("CIVIC_DATASET_SQLITE", ""),

		ClassifierURL: getEnv("CIVIC_CLASSIFIER_URL", ""),
		ClassifierRPS: getFloatEnv("CIVIC_CLASSIFIER_RPS", 0),

		FetchTimeout: getDurationEnv("CIVIC_FETCH_TIMEOUT", 5*time.Second),
		FetchRPS:     getFloatEnv("CIVIC_FETCH_RPS", 0),

		ImageThreshold:          getIntEnv("CIVIC_IMAGE_THRESHOLD", 5),
		LocationThresholdMeters: getFloatEnv("CIVIC_LOCATION_THRESHOLD_METERS", 20),

		Workers: getIntEnv("CIVIC_WORKERS", 4),

		MetricsAddr: getEnv("CIVIC_METRICS_ADDR", ""),
		LogLevel:    getEnv("LOG_LEVEL", "info"),
	}
}

// slogLevel maps LOG_LEVEL onto a slog level; unknown values mean info.
func (c *config) slogLevel() slog.Level {
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// getEnv gets an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getDurationEnv gets a duration environment variable or returns a default value
func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

// getIntEnv gets an integer environment variable or returns a default value
func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

// getFloatEnv gets a float environment variable or returns a default value
func getFloatEnv(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}
