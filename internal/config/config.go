// Package config loads floodmapd's settings from environment variables,
// following the shape of the ETL service's config package (EnvOrDefault
// plus per-field validation), self-contained since that teacher's shared
// helper module lives outside this repo.
package config

import (
	"errors"
	"os"
	"strconv"
	"time"
)

// Config holds all service settings, populated from environment variables.
type Config struct {
	SourceDir         string
	PrecompressedDir  string
	SourceCacheMax    int
	PNGCacheMax       int
	MaxZoom           uint32
	MinWaterLevelM    float64
	MaxWaterLevelM    float64
	ConcurrencyCap    int
	MaxQueueLength    int
	DeadlineMS        int
	HTTPAddr          string
	LogLevel          string
	LogFormat         string
	ShutdownTimeout   time.Duration
}

// Load reads configuration from environment variables, applying defaults
// where unset.
func Load() (*Config, error) {
	maxZoom, err := parseUint("MAX_ZOOM", 11)
	if err != nil {
		return nil, err
	}
	sourceCacheMax, err := parseInt("SOURCE_CACHE_MAX", 128)
	if err != nil {
		return nil, err
	}
	pngCacheMax, err := parseInt("PNG_CACHE_MAX", 1000)
	if err != nil {
		return nil, err
	}
	concurrencyCap, err := parseInt("CONCURRENCY_CAP", 16)
	if err != nil {
		return nil, err
	}
	maxQueueLength, err := parseInt("MAX_QUEUE_LENGTH", 256)
	if err != nil {
		return nil, err
	}
	deadlineMS, err := parseInt("DEADLINE_MS", 5000)
	if err != nil {
		return nil, err
	}
	minWL, err := parseFloat("MIN_WATER_LEVEL_M", -10)
	if err != nil {
		return nil, err
	}
	maxWL, err := parseFloat("MAX_WATER_LEVEL_M", 1000)
	if err != nil {
		return nil, err
	}
	shutdownTimeoutStr := EnvOrDefault("SHUTDOWN_TIMEOUT", "10s")
	shutdownTimeout, err := time.ParseDuration(shutdownTimeoutStr)
	if err != nil || shutdownTimeout <= 0 {
		return nil, errors.New("invalid SHUTDOWN_TIMEOUT")
	}

	cfg := &Config{
		SourceDir:        EnvOrDefault("SOURCE_DIR", "./data/source"),
		PrecompressedDir: EnvOrDefault("PRECOMPRESSED_DIR", ""),
		SourceCacheMax:   sourceCacheMax,
		PNGCacheMax:      pngCacheMax,
		MaxZoom:          uint32(maxZoom),
		MinWaterLevelM:   minWL,
		MaxWaterLevelM:   maxWL,
		ConcurrencyCap:   concurrencyCap,
		MaxQueueLength:   maxQueueLength,
		DeadlineMS:       deadlineMS,
		HTTPAddr:         EnvOrDefault("HTTP_ADDR", ":8080"),
		LogLevel:         EnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:        EnvOrDefault("LOG_FORMAT", "json"),
		ShutdownTimeout:  shutdownTimeout,
	}

	if cfg.SourceDir == "" {
		return nil, errors.New("SOURCE_DIR is required")
	}
	if cfg.MaxWaterLevelM <= cfg.MinWaterLevelM {
		return nil, errors.New("MAX_WATER_LEVEL_M must exceed MIN_WATER_LEVEL_M")
	}
	if cfg.ConcurrencyCap <= 0 {
		return nil, errors.New("CONCURRENCY_CAP must be positive")
	}

	return cfg, nil
}

// EnvOrDefault returns the environment variable's value, or def if unset.
func EnvOrDefault(key, def string) string {
	if v, ok := os.LookupEnv(key); ok {
		return v
	}
	return def
}

func parseInt(key string, def int) (int, error) {
	v, ok := os.LookupEnv(key)
	if !ok {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, errors.New("invalid " + key)
	}
	return n, nil
}

func parseUint(key string, def uint32) (uint32, error) {
	v, ok := os.LookupEnv(key)
	if !ok {
		return def, nil
	}
	n, err := strconv.ParseUint(v, 10, 32)
	if err != nil {
		return 0, errors.New("invalid " + key)
	}
	return uint32(n), nil
}

func parseFloat(key string, def float64) (float64, error) {
	v, ok := os.LookupEnv(key)
	if !ok {
		return def, nil
	}
	n, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, errors.New("invalid " + key)
	}
	return n, nil
}
