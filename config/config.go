// Package config loads runtime configuration for the hiveserver process
// from HIVE_* environment variables, with typed defaults.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

const (
	defaultHTTPAddr        = "127.0.0.1:8080"
	defaultShutdownTimeout = 5 * time.Second
	defaultHealthInterval  = 10 * time.Second
	defaultHiveHomeName    = ".hive"
)

// CORSConfig controls the HTTP layer's cross-origin policy, shaped after
// JaimeStill-herald's middleware.CORSConfig.
type CORSConfig struct {
	Enabled          bool
	Origins          []string
	AllowedMethods   []string
	AllowedHeaders   []string
	AllowCredentials bool
	MaxAge           int
}

func (c *CORSConfig) loadDefaults() {
	if len(c.AllowedMethods) == 0 {
		c.AllowedMethods = []string{"GET", "POST", "DELETE", "OPTIONS"}
	}
	if len(c.AllowedHeaders) == 0 {
		c.AllowedHeaders = []string{"Content-Type", "Authorization"}
	}
	if c.MaxAge <= 0 {
		c.MaxAge = 3600
	}
}

// LimitsConfig bounds request size, handling time, and default iteration
// budgets, shaped after the teacher's server/internal/policylimit.Config.
type LimitsConfig struct {
	MaxRequestBodyBytes  int64
	RequestTimeout       time.Duration
	DefaultMaxIterations int
}

// Config is hiveserver's full runtime configuration.
type Config struct {
	HTTPAddr        string
	ShutdownTimeout time.Duration
	HiveHome        string
	HealthInterval  time.Duration
	LogLevel        slog.Level
	CORS            CORSConfig
	Limits          LimitsConfig
}

// Load reads configuration from the environment, applying defaults for
// anything unset.
func Load() (Config, error) {
	cfg := Config{
		HTTPAddr:        defaultHTTPAddr,
		ShutdownTimeout: defaultShutdownTimeout,
		HealthInterval:  defaultHealthInterval,
		LogLevel:        slog.LevelInfo,
		Limits: LimitsConfig{
			MaxRequestBodyBytes:  1 << 20,
			RequestTimeout:       10 * time.Second,
			DefaultMaxIterations: 25,
		},
	}

	home, err := defaultHiveHome()
	if err != nil {
		return Config{}, err
	}
	cfg.HiveHome = home

	if v := os.Getenv("HIVE_HTTP_ADDR"); v != "" {
		cfg.HTTPAddr = v
	}
	if v := os.Getenv("HIVE_HOME"); v != "" {
		cfg.HiveHome = v
	}
	if v := os.Getenv("HIVE_LOG_LEVEL"); v != "" {
		level, err := parseLogLevel(v)
		if err != nil {
			return Config{}, err
		}
		cfg.LogLevel = level
	}
	if v := os.Getenv("HIVE_SHUTDOWN_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d <= 0 {
			return Config{}, fmt.Errorf("parse HIVE_SHUTDOWN_TIMEOUT: %w", err)
		}
		cfg.ShutdownTimeout = d
	}
	if v := os.Getenv("HIVE_HEALTH_JUDGE_INTERVAL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d <= 0 {
			return Config{}, fmt.Errorf("parse HIVE_HEALTH_JUDGE_INTERVAL: %w", err)
		}
		cfg.HealthInterval = d
	}
	if v := os.Getenv("HIVE_MAX_REQUEST_BODY_BYTES"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil || n <= 0 {
			return Config{}, fmt.Errorf("parse HIVE_MAX_REQUEST_BODY_BYTES: %w", err)
		}
		cfg.Limits.MaxRequestBodyBytes = n
	}
	if v := os.Getenv("HIVE_REQUEST_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d <= 0 {
			return Config{}, fmt.Errorf("parse HIVE_REQUEST_TIMEOUT: %w", err)
		}
		cfg.Limits.RequestTimeout = d
	}
	if v := os.Getenv("HIVE_DEFAULT_MAX_ITERATIONS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return Config{}, fmt.Errorf("parse HIVE_DEFAULT_MAX_ITERATIONS: %w", err)
		}
		cfg.Limits.DefaultMaxIterations = n
	}

	if v := os.Getenv("HIVE_CORS_ENABLED"); v != "" {
		enabled, err := strconv.ParseBool(v)
		if err != nil {
			return Config{}, fmt.Errorf("parse HIVE_CORS_ENABLED: %w", err)
		}
		cfg.CORS.Enabled = enabled
	}
	if v := os.Getenv("HIVE_CORS_ORIGINS"); v != "" {
		cfg.CORS.Origins = splitCSV(v)
	}
	if v := os.Getenv("HIVE_CORS_ALLOWED_METHODS"); v != "" {
		cfg.CORS.AllowedMethods = splitCSV(v)
	}
	if v := os.Getenv("HIVE_CORS_ALLOWED_HEADERS"); v != "" {
		cfg.CORS.AllowedHeaders = splitCSV(v)
	}
	if v := os.Getenv("HIVE_CORS_ALLOW_CREDENTIALS"); v != "" {
		creds, err := strconv.ParseBool(v)
		if err != nil {
			return Config{}, fmt.Errorf("parse HIVE_CORS_ALLOW_CREDENTIALS: %w", err)
		}
		cfg.CORS.AllowCredentials = creds
	}
	if v := os.Getenv("HIVE_CORS_MAX_AGE"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return Config{}, fmt.Errorf("parse HIVE_CORS_MAX_AGE: %w", err)
		}
		cfg.CORS.MaxAge = n
	}
	cfg.CORS.loadDefaults()

	return cfg, nil
}

// CheckpointDir is the persistence path for checkpoint.Store, per spec.md
// §6: ~/.hive/checkpoints/{sid}/{cp_id}.json.
func (c Config) CheckpointDir() string {
	return filepath.Join(c.HiveHome, "checkpoints")
}

// AgentsDir is the directory agent specs load from: ~/.hive/agents, with
// one {name}.json file per agent read by the agentfile loader.
func (c Config) AgentsDir() string {
	return filepath.Join(c.HiveHome, "agents")
}

// EventLogDir is the opt-in debug event log path, per spec.md §6:
// ~/.hive/event_logs/<timestamp>.jsonl.
func (c Config) EventLogDir() string {
	return filepath.Join(c.HiveHome, "event_logs")
}

func defaultHiveHome() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve user home dir: %w", err)
	}
	return filepath.Join(home, defaultHiveHomeName), nil
}

func parseLogLevel(v string) (slog.Level, error) {
	switch strings.ToLower(v) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return 0, fmt.Errorf("parse HIVE_LOG_LEVEL: unknown level %q", v)
	}
}

func splitCSV(v string) []string {
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
