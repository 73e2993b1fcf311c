// Package config loads service settings from the environment.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Store backends
const (
	StoreFile     = "file"
	StoreMemory   = "memory"
	StorePostgres = "postgres"
)

// Config holds the service configuration
type Config struct {
	Host           string
	Port           string
	AllowedOrigins []string
	LogLevel       string

	DatabaseURL  string
	StoreBackend string
	ResultsDir   string

	SourceMinRelevance    float64
	AggregateMinRelevance float64
	TopN                  int
	FallbackSize          int

	Headless          bool
	ChromiumPath      string
	ScrapeTimeout     time.Duration
	ScrapeMaxAttempts int

	SearchTimeout      time.Duration
	MaxParallelSources int
	TaskWorkers        int
	WatchSchedule      string

	RateLimitPerSecond float64
	APIKeys            []string
}

// Load reads the configuration from environment variables
func Load() *Config {
	return &Config{
		Host:           getEnv("HOST", "0.0.0.0"),
		Port:           getEnv("PORT", "8080"),
		AllowedOrigins: getEnvList("ALLOWED_ORIGINS", []string{"*"}),
		LogLevel:       getEnv("LOG_LEVEL", "info"),

		DatabaseURL:  os.Getenv("DATABASE_URL"),
		StoreBackend: strings.ToLower(getEnv("STORE_BACKEND", StoreFile)),
		ResultsDir:   getEnv("RESULTS_DIR", "results"),

		SourceMinRelevance:    getEnvFloat("SOURCE_MIN_RELEVANCE", 50),
		AggregateMinRelevance: getEnvFloat("AGGREGATE_MIN_RELEVANCE", 50),
		TopN:                  getEnvInt("TOP_N", 5),
		FallbackSize:          getEnvInt("FALLBACK_SIZE", 5),

		Headless:          getEnvBool("HEADLESS", true),
		ChromiumPath:      os.Getenv("CHROMIUM_PATH"),
		ScrapeTimeout:     getEnvDuration("SCRAPE_TIMEOUT", 90*time.Second),
		ScrapeMaxAttempts: getEnvInt("SCRAPE_MAX_ATTEMPTS", 3),

		SearchTimeout:      getEnvDuration("SEARCH_TIMEOUT", 5*time.Minute),
		MaxParallelSources: getEnvInt("MAX_PARALLEL_SOURCES", 3),
		TaskWorkers:        getEnvInt("TASK_WORKERS", 2),
		WatchSchedule:      getEnv("WATCH_SCHEDULE", "0 0 */12 * * *"),

		RateLimitPerSecond: getEnvFloat("RATE_LIMIT_PER_SECOND", 2),
		APIKeys:            getEnvList("API_KEYS", nil),
	}
}

// Addr returns the listen address
func (c *Config) Addr() string {
	return c.Host + ":" + c.Port
}

// Validate checks settings that would otherwise fail later at runtime
func (c *Config) Validate() error {
	switch c.StoreBackend {
	case StoreFile, StoreMemory:
	case StorePostgres:
		if c.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required when STORE_BACKEND=%s", StorePostgres)
		}
	default:
		return fmt.Errorf("unknown STORE_BACKEND %q", c.StoreBackend)
	}

	if c.SourceMinRelevance < 0 || c.SourceMinRelevance > 100 {
		return fmt.Errorf("SOURCE_MIN_RELEVANCE must be within 0-100, got %v", c.SourceMinRelevance)
	}
	if c.AggregateMinRelevance < 0 || c.AggregateMinRelevance > 100 {
		return fmt.Errorf("AGGREGATE_MIN_RELEVANCE must be within 0-100, got %v", c.AggregateMinRelevance)
	}
	if c.TopN <= 0 {
		return fmt.Errorf("TOP_N must be positive")
	}
	if c.FallbackSize <= 0 {
		return fmt.Errorf("FALLBACK_SIZE must be positive")
	}
	if c.ScrapeMaxAttempts <= 0 {
		return fmt.Errorf("SCRAPE_MAX_ATTEMPTS must be positive")
	}
	if c.MaxParallelSources <= 0 || c.TaskWorkers <= 0 {
		return fmt.Errorf("MAX_PARALLEL_SOURCES and TASK_WORKERS must be positive")
	}
	return nil
}

// HasDatabase reports whether PostgreSQL backed features are available
func (c *Config) HasDatabase() bool {
	return c.DatabaseURL != ""
}

// Helper functions for environment variables
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

func getEnvList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
