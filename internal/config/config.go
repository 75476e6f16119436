// Package config loads orchestrator configuration from the environment,
// with an optional YAML overlay for stage-level defaults that don't
// belong in environment variables.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/flowforge/orchestrator/internal/platform/envutil"
)

// Config holds every setting the orchestrator needs to run.
type Config struct {
	DatabaseURL string

	GithubToken         string
	GithubRepo          string
	GithubWebhookSecret string

	LLMEndpoint string

	WorkerPollInterval time.Duration
	MaxAttempts        int

	APIHost string
	APIPort string

	OperatorToken string

	OTelEnabled  bool
	OTelEndpoint string

	RedisAddr string

	Retry RetryDefaults
}

// RetryDefaults carries stage-level retry/rework tuning that is more
// naturally expressed in a file than in individual env vars.
type RetryDefaults struct {
	MaxAttempts    int            `yaml:"max_attempts"`
	MinBackoff     time.Duration  `yaml:"min_backoff"`
	MaxBackoff     time.Duration  `yaml:"max_backoff"`
	JitterFraction float64        `yaml:"jitter_fraction"`
	ReworkCaps     map[string]int `yaml:"rework_caps"`
}

// Load builds a Config from the environment, then applies an optional
// YAML overlay named by CONFIG_FILE (or config.yaml in the working
// directory, if present) for the RetryDefaults section.
func Load() (*Config, error) {
	cfg := &Config{
		DatabaseURL:         getEnv("DATABASE_URL", ""),
		GithubToken:         getEnv("GITHUB_TOKEN", ""),
		GithubRepo:          getEnv("GITHUB_REPO", ""),
		GithubWebhookSecret: getEnv("GITHUB_WEBHOOK_SECRET", ""),
		LLMEndpoint:         getEnv("LLM_ENDPOINT", ""),
		WorkerPollInterval:  time.Duration(envutil.Int("WORKER_POLL_INTERVAL_SECONDS", 5)) * time.Second,
		MaxAttempts:         envutil.Int("MAX_ATTEMPTS", 3),
		APIHost:             getEnv("API_HOST", "0.0.0.0"),
		APIPort:             getEnv("API_PORT", "8080"),
		OperatorToken:       getEnv("OPERATOR_TOKEN", ""),
		OTelEnabled:         strings.EqualFold(getEnv("OTEL_ENABLED", "false"), "true"),
		OTelEndpoint:        getEnv("OTEL_ENDPOINT", ""),
		RedisAddr:           getEnv("REDIS_ADDR", ""),
		Retry: RetryDefaults{
			MaxAttempts:    envutil.Int("MAX_ATTEMPTS", 3),
			MinBackoff:     2 * time.Second,
			MaxBackoff:     2 * time.Minute,
			JitterFraction: 0.2,
			ReworkCaps:     map[string]int{},
		},
	}

	path := getEnv("CONFIG_FILE", "config.yaml")
	if b, err := os.ReadFile(path); err == nil {
		var overlay struct {
			Retry RetryDefaults `yaml:"retry"`
		}
		if err := yaml.Unmarshal(b, &overlay); err != nil {
			return nil, fmt.Errorf("config: parsing %s: %w", path, err)
		}
		if overlay.Retry.MaxAttempts > 0 {
			cfg.Retry.MaxAttempts = overlay.Retry.MaxAttempts
		}
		if overlay.Retry.MinBackoff > 0 {
			cfg.Retry.MinBackoff = overlay.Retry.MinBackoff
		}
		if overlay.Retry.MaxBackoff > 0 {
			cfg.Retry.MaxBackoff = overlay.Retry.MaxBackoff
		}
		if overlay.Retry.JitterFraction > 0 {
			cfg.Retry.JitterFraction = overlay.Retry.JitterFraction
		}
		for stage, cap := range overlay.Retry.ReworkCaps {
			cfg.Retry.ReworkCaps[stage] = cap
		}
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("config: DATABASE_URL is required")
	}
	return cfg, nil
}

func getEnv(name, def string) string {
	if v := strings.TrimSpace(os.Getenv(name)); v != "" {
		return v
	}
	return def
}

