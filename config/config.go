// Package config loads process configuration from the environment.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config is the root configuration loaded once at startup and shared by
// reference across the process.
type Config struct {
	Database   DatabaseConfig   `json:"database"`
	Server     ServerConfig     `json:"server"`
	Scheduler  SchedulerConfig  `json:"scheduler"`
	Fetcher    FetcherConfig    `json:"fetcher"`
	Logging    LoggingConfig    `json:"logging"`
	Redis      RedisConfig      `json:"redis"`
}

// DatabaseConfig holds the Postgres connection settings.
type DatabaseConfig struct {
	URL             string        `json:"url"`
	MaxConns        int32         `json:"max_conns"`
	MinConns        int32         `json:"min_conns"`
	MaxConnLifetime time.Duration `json:"max_conn_lifetime"`
	MaxConnIdleTime time.Duration `json:"max_conn_idle_time"`
}

// ServerConfig holds the HTTP façade settings.
type ServerConfig struct {
	Port            int           `json:"port"`
	Host            string        `json:"host"`
	ShutdownTimeout time.Duration `json:"shutdown_timeout"`
}

// SchedulerConfig holds the task scheduler's parallelism and poll cadence.
type SchedulerConfig struct {
	MaxThreads int           `json:"max_threads"`
	PollEvery  time.Duration `json:"poll_every"`
}

// FetcherConfig holds the exchange kline fetcher's rate discipline.
type FetcherConfig struct {
	BaseURL       string        `json:"base_url"`
	RequestsDelay time.Duration `json:"requests_delay"`
	ColdStartSlack time.Duration `json:"cold_start_slack"`
}

// LoggingConfig mirrors internal/logging.Config's knobs.
type LoggingConfig struct {
	Level       string `json:"level"`
	Output      string `json:"output"`
	JSONFormat  bool   `json:"json_format"`
	IncludeFile bool   `json:"include_file"`
}

// RedisConfig holds the optional Redis pub/sub fan-out settings for the
// change channel.
type RedisConfig struct {
	Enabled bool   `json:"enabled"`
	Address string `json:"address"`
	Channel string `json:"channel"`
}

// Load builds a Config from environment variables, failing fast when
// DATABASE_URL is absent.
func Load() (*Config, error) {
	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		return nil, fmt.Errorf("config: DATABASE_URL must be set")
	}

	cfg := &Config{
		Database: DatabaseConfig{
			URL:             dbURL,
			MaxConns:        int32(getEnvIntOrDefault("DB_MAX_CONNS", 25)),
			MinConns:        int32(getEnvIntOrDefault("DB_MIN_CONNS", 5)),
			MaxConnLifetime: getEnvDurationOrDefault("DB_MAX_CONN_LIFETIME", time.Hour),
			MaxConnIdleTime: getEnvDurationOrDefault("DB_MAX_CONN_IDLE_TIME", 30*time.Minute),
		},
		Server: ServerConfig{
			Port:            getEnvIntOrDefault("SERVER_PORT", 9797),
			Host:            getEnvOrDefault("SERVER_HOST", "0.0.0.0"),
			ShutdownTimeout: getEnvDurationOrDefault("SERVER_SHUTDOWN_TIMEOUT", 10*time.Second),
		},
		Scheduler: SchedulerConfig{
			MaxThreads: getEnvIntOrDefault("SCHEDULER_MAX_THREADS", 4),
			PollEvery:  getEnvDurationOrDefault("SCHEDULER_POLL_EVERY", 2*time.Second),
		},
		Fetcher: FetcherConfig{
			BaseURL:        getEnvOrDefault("FETCHER_BASE_URL", "https://fapi.binance.com"),
			RequestsDelay:  getEnvDurationOrDefault("FETCHER_REQUESTS_DELAY", time.Second),
			ColdStartSlack: getEnvDurationOrDefault("FETCHER_COLD_START_SLACK", 100*24*time.Hour),
		},
		Logging: LoggingConfig{
			Level:       getEnvOrDefault("LOG_LEVEL", "INFO"),
			Output:      getEnvOrDefault("LOG_OUTPUT", "stdout"),
			JSONFormat:  getEnvOrDefault("LOG_JSON", "true") == "true",
			IncludeFile: getEnvOrDefault("LOG_INCLUDE_FILE", "false") == "true",
		},
		Redis: RedisConfig{
			Enabled: getEnvOrDefault("REDIS_ENABLED", "false") == "true",
			Address: getEnvOrDefault("REDIS_ADDRESS", "localhost:6379"),
			Channel: getEnvOrDefault("REDIS_TASK_CHANNEL", "task-updates"),
		},
	}

	return cfg, nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
