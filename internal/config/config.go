package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config contains all runtime settings for the chat decision service.
type Config struct {
	BindAddr         string
	ShutdownTimeout  time.Duration
	MetricsNamespace string

	AllowAnyOrigin bool

	PersonaDir string
	RandSeed   int64

	GenerationURL      string
	GenerationTimeout  time.Duration
	GenerationAttempts int
	GenerationBackoff  time.Duration

	ShardURLs       []string
	ShardRetryAfter time.Duration

	WindowTurnCap   int
	ConversationCap int

	RetentionPeriod  time.Duration
	EvictionInterval time.Duration

	RateLimit time.Duration
}

// Load reads environment variables and applies safe defaults.
func Load() (Config, error) {
	cfg := Config{
		BindAddr:           envOrDefault("APP_BIND_ADDR", ":8080"),
		MetricsNamespace:   envOrDefault("APP_METRICS_NAMESPACE", "pixel"),
		AllowAnyOrigin:     false,
		PersonaDir:         stringsTrimSpace("PIXEL_PERSONA_DIR"),
		GenerationURL:      stringsTrimSpace("GENERATION_URL"),
		ShardURLs:          splitList(os.Getenv("SHARD_URLS")),
		ShutdownTimeout:    15 * time.Second,
		GenerationTimeout:  30 * time.Second,
		GenerationAttempts: 3,
		GenerationBackoff:  time.Second,
		ShardRetryAfter:    30 * time.Second,
		WindowTurnCap:      15,
		ConversationCap:    4096,
		RetentionPeriod:    24 * time.Hour,
		EvictionInterval:   10 * time.Minute,
		RateLimit:          time.Second,
	}

	var err error
	cfg.ShutdownTimeout, err = durationFromEnv("APP_SHUTDOWN_TIMEOUT", cfg.ShutdownTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.AllowAnyOrigin, err = boolFromEnv("APP_ALLOW_ANY_ORIGIN", cfg.AllowAnyOrigin)
	if err != nil {
		return Config{}, err
	}
	cfg.GenerationTimeout, err = durationFromEnv("GENERATION_TIMEOUT", cfg.GenerationTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.GenerationAttempts, err = intFromEnv("GENERATION_ATTEMPTS", cfg.GenerationAttempts)
	if err != nil {
		return Config{}, err
	}
	cfg.GenerationBackoff, err = durationFromEnv("GENERATION_BACKOFF", cfg.GenerationBackoff)
	if err != nil {
		return Config{}, err
	}
	cfg.ShardRetryAfter, err = durationFromEnv("SHARD_RETRY_AFTER", cfg.ShardRetryAfter)
	if err != nil {
		return Config{}, err
	}
	cfg.WindowTurnCap, err = intFromEnv("WINDOW_TURN_CAP", cfg.WindowTurnCap)
	if err != nil {
		return Config{}, err
	}
	cfg.ConversationCap, err = intFromEnv("CONVERSATION_CAP", cfg.ConversationCap)
	if err != nil {
		return Config{}, err
	}
	cfg.RetentionPeriod, err = durationFromEnv("RETENTION_PERIOD", cfg.RetentionPeriod)
	if err != nil {
		return Config{}, err
	}
	cfg.EvictionInterval, err = durationFromEnv("EVICTION_INTERVAL", cfg.EvictionInterval)
	if err != nil {
		return Config{}, err
	}
	cfg.RateLimit, err = durationFromEnv("RATE_LIMIT_INTERVAL", cfg.RateLimit)
	if err != nil {
		return Config{}, err
	}
	cfg.RandSeed, err = int64FromEnv("PIXEL_RAND_SEED", 0)
	if err != nil {
		return Config{}, err
	}

	if cfg.GenerationAttempts < 1 {
		return Config{}, fmt.Errorf("GENERATION_ATTEMPTS must be at least 1")
	}
	if cfg.GenerationTimeout < time.Second {
		return Config{}, fmt.Errorf("GENERATION_TIMEOUT must be at least 1s")
	}
	if cfg.WindowTurnCap < 8 || cfg.WindowTurnCap > 15 {
		return Config{}, fmt.Errorf("WINDOW_TURN_CAP must be in 8..15")
	}
	if cfg.ConversationCap <= 0 {
		return Config{}, fmt.Errorf("CONVERSATION_CAP must be positive")
	}
	if cfg.RetentionPeriod < time.Minute {
		return Config{}, fmt.Errorf("RETENTION_PERIOD must be at least 1m")
	}
	if cfg.EvictionInterval < time.Second {
		return Config{}, fmt.Errorf("EVICTION_INTERVAL must be at least 1s")
	}
	if cfg.RateLimit < 0 {
		return Config{}, fmt.Errorf("RATE_LIMIT_INTERVAL must not be negative")
	}

	return cfg, nil
}

func envOrDefault(key, fallback string) string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return v
}

func stringsTrimSpace(key string) string {
	return strings.TrimSpace(os.Getenv(key))
}

// splitList parses a comma-separated env value, dropping empties.
func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		part = strings.TrimSpace(part)
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}

func durationFromEnv(key string, fallback time.Duration) (time.Duration, error) {
	v := stringsTrimSpace(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return d, nil
}

func intFromEnv(key string, fallback int) (int, error) {
	v := stringsTrimSpace(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return n, nil
}

func int64FromEnv(key string, fallback int64) (int64, error) {
	v := stringsTrimSpace(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return n, nil
}

func boolFromEnv(key string, fallback bool) (bool, error) {
	v := strings.ToLower(stringsTrimSpace(key))
	if v == "" {
		return fallback, nil
	}
	switch v {
	case "1", "true", "t", "yes", "y", "on":
		return true, nil
	case "0", "false", "f", "no", "n", "off":
		return false, nil
	default:
		return false, fmt.Errorf("%s parse error: expected bool", key)
	}
}
