// Package config loads the immutable runtime configuration. The value is
// built once at startup and passed explicitly to each component; no package
// reads process-wide state after construction.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// KnowledgeCutoff is the hard upper bound on retrievable data. Search and
// filing queries are clamped so answers stay reproducible against the
// reference dataset.
const KnowledgeCutoff = "2025-04-07"

// SynthesizerConfig configures the language-synthesis oracle client.
type SynthesizerConfig struct {
	BaseURL  string `json:"base_url" yaml:"base_url"`
	APIKey   string `json:"-" yaml:"-"`
	Model    string `json:"model" yaml:"model"`
	MinDelay time.Duration `json:"min_delay" yaml:"min_delay"`
}

// ResilienceConfig bounds every network-touching call.
type ResilienceConfig struct {
	MaxRetries       int           `json:"max_retries" yaml:"max_retries"`
	RetryBaseDelay   time.Duration `json:"retry_base_delay" yaml:"retry_base_delay"`
	RetryMaxDelay    time.Duration `json:"retry_max_delay" yaml:"retry_max_delay"`
	FailureThreshold int           `json:"failure_threshold" yaml:"failure_threshold"`
	BreakerCooldown  time.Duration `json:"breaker_cooldown" yaml:"breaker_cooldown"`
	HTTPTimeout      time.Duration `json:"http_timeout" yaml:"http_timeout"`
}

// Config is the immutable top-level configuration.
type Config struct {
	SerpAPIKey string `json:"-" yaml:"-"`
	SECAPIKey  string `json:"-" yaml:"-"`
	UserAgent  string `json:"user_agent" yaml:"user_agent"`

	Synthesizer SynthesizerConfig `json:"synthesizer" yaml:"synthesizer"`
	Resilience  ResilienceConfig  `json:"resilience" yaml:"resilience"`

	// MaxToolCalls is the hard upper bound on tool invocations per question.
	MaxToolCalls int `json:"max_tool_calls" yaml:"max_tool_calls"`
}

// Default returns the baseline configuration before environment overrides.
func Default() Config {
	return Config{
		UserAgent: "finbench/1.0 (research agent)",
		Synthesizer: SynthesizerConfig{
			BaseURL:  "https://api.openai.com/v1",
			Model:    "gpt-4o-mini",
			MinDelay: time.Second,
		},
		Resilience: ResilienceConfig{
			MaxRetries:       3,
			RetryBaseDelay:   time.Second,
			RetryMaxDelay:    30 * time.Second,
			FailureThreshold: 5,
			BreakerCooldown:  30 * time.Second,
			HTTPTimeout:      60 * time.Second,
		},
		MaxToolCalls: 10,
	}
}

// Load builds the configuration from defaults plus environment variables.
func Load() (Config, error) {
	cfg := Default()

	cfg.SerpAPIKey = os.Getenv("SERP_API_KEY")
	cfg.SECAPIKey = os.Getenv("SEC_EDGAR_API_KEY")

	if v := os.Getenv("FINBENCH_LLM_BASE_URL"); v != "" {
		cfg.Synthesizer.BaseURL = v
	}
	if v := os.Getenv("FINBENCH_LLM_API_KEY"); v != "" {
		cfg.Synthesizer.APIKey = v
	} else if v := os.Getenv("OPENAI_API_KEY"); v != "" {
		cfg.Synthesizer.APIKey = v
	}
	if v := os.Getenv("FINBENCH_LLM_MODEL"); v != "" {
		cfg.Synthesizer.Model = v
	}
	if v := os.Getenv("FINBENCH_LLM_MIN_DELAY"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return Config{}, fmt.Errorf("invalid FINBENCH_LLM_MIN_DELAY: %w", err)
		}
		cfg.Synthesizer.MinDelay = d
	}
	if v := os.Getenv("FINBENCH_MAX_TOOL_CALLS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return Config{}, fmt.Errorf("invalid FINBENCH_MAX_TOOL_CALLS: %q", v)
		}
		cfg.MaxToolCalls = n
	}

	return cfg, nil
}

// Validate checks invariants that would otherwise surface as runtime faults.
func (c Config) Validate() error {
	if c.MaxToolCalls <= 0 {
		return fmt.Errorf("max_tool_calls must be positive, got %d", c.MaxToolCalls)
	}
	if c.Resilience.MaxRetries < 0 {
		return fmt.Errorf("max_retries must be non-negative, got %d", c.Resilience.MaxRetries)
	}
	if c.Resilience.HTTPTimeout <= 0 {
		return fmt.Errorf("http_timeout must be positive, got %v", c.Resilience.HTTPTimeout)
	}
	return nil
}
