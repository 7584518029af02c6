package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds application configuration values.
type Config struct {
	HTTPPort       string
	DatabaseDSN    string
	LogLevel       string
	AllowedOrigins []string
	SeedCSV        string

	LLMBaseURL      string
	LLMAPIKey       string
	LLMModel        string
	LLMMaxAttempts  int
	LLMInitialDelay time.Duration
	LLMTimeout      time.Duration

	// Warnings lists values that were invalid and replaced by defaults.
	Warnings []string
}

// Load reads configuration from environment variables with reasonable defaults.
func Load() Config {
	cfg := Config{
		HTTPPort:       getenv("HTTP_PORT", "3000"),
		DatabaseDSN:    getenv("DATABASE_DSN", "sustainplate.db"),
		LogLevel:       getenv("LOG_LEVEL", "info"),
		AllowedOrigins: splitList(getenv("CORS_ALLOWED_ORIGINS", "*")),
		SeedCSV:        os.Getenv("SEED_CSV"),

		LLMBaseURL: getenv("LLM_BASE_URL", "https://generativelanguage.googleapis.com"),
		LLMAPIKey:  os.Getenv("LLM_API_KEY"),
		LLMModel:   getenv("LLM_MODEL", "gemini-2.0-flash"),
	}

	// Validate that port is numeric.
	if _, err := strconv.Atoi(cfg.HTTPPort); err != nil {
		cfg.warn("invalid HTTP_PORT value %q, defaulting to 3000", cfg.HTTPPort)
		cfg.HTTPPort = "3000"
	}

	cfg.LLMMaxAttempts = 4
	if raw := os.Getenv("LLM_MAX_ATTEMPTS"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			cfg.LLMMaxAttempts = n
		} else {
			cfg.warn("invalid LLM_MAX_ATTEMPTS value %q, defaulting to 4", raw)
		}
	}

	cfg.LLMInitialDelay = cfg.duration("LLM_INITIAL_DELAY", time.Second)
	cfg.LLMTimeout = cfg.duration("LLM_TIMEOUT", 30*time.Second)

	if cfg.LLMAPIKey == "" {
		cfg.warn("LLM_API_KEY is not set, shelf life and recipe requests will be rejected upstream")
	}
	return cfg
}

func (c *Config) duration(key string, def time.Duration) time.Duration {
	raw := os.Getenv(key)
	if raw == "" {
		return def
	}
	d, err := time.ParseDuration(raw)
	if err != nil || d <= 0 {
		c.warn("invalid %s value %q, defaulting to %s", key, raw, def)
		return def
	}
	return d
}

func (c *Config) warn(format string, args ...any) {
	c.Warnings = append(c.Warnings, fmt.Sprintf(format, args...))
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
