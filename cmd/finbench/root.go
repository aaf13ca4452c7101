package main

import (
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"finbench/internal/agent/loop"
	"finbench/internal/agent/ports"
	"finbench/internal/config"
	finerrors "finbench/internal/errors"
	"finbench/internal/httpclient"
	"finbench/internal/llm"
	"finbench/internal/logging"
	"finbench/internal/toolregistry"
	"finbench/internal/tools/builtin"
	"finbench/internal/transport"
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "finbench",
		Short: "Financial research agent and evaluation harness",
		Long: `finbench runs a tool-using financial research agent (web search, SEC EDGAR,
page extraction, document retrieval) and an evaluation harness that grades
the agent against a dataset of questions with known answers.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	viper.SetEnvPrefix("FINBENCH")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()

	root.AddCommand(newServeCmd())
	root.AddCommand(newEvalCmd())
	root.AddCommand(newAskCmd())
	return root
}

// loadConfig reads defaults, environment, and an optional finbench.yaml.
func loadConfig() (config.Config, error) {
	viper.SetConfigName("finbench")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("$HOME")
	if err := viper.ReadInConfig(); err != nil {
		if _, notFound := err.(viper.ConfigFileNotFoundError); !notFound {
			return config.Config{}, err
		}
	}

	cfg, err := config.Load()
	if err != nil {
		return config.Config{}, err
	}
	if v := viper.GetInt("max_tool_calls"); v > 0 {
		cfg.MaxToolCalls = v
	}
	if v := viper.GetString("user_agent"); v != "" {
		cfg.UserAgent = v
	}
	if v := viper.GetString("synthesizer.model"); v != "" {
		cfg.Synthesizer.Model = v
	}
	return cfg, cfg.Validate()
}

func retryFromConfig(r config.ResilienceConfig) finerrors.RetryConfig {
	return finerrors.RetryConfig{
		MaxAttempts:  r.MaxRetries,
		BaseDelay:    r.RetryBaseDelay,
		MaxDelay:     r.RetryMaxDelay,
		JitterFactor: 0.25,
	}
}

func breakerFromConfig(r config.ResilienceConfig) finerrors.CircuitBreakerConfig {
	return finerrors.CircuitBreakerConfig{
		FailureThreshold: r.FailureThreshold,
		SuccessThreshold: 1,
		Cooldown:         r.BreakerCooldown,
	}
}

// newAskerFactory wires the shared infrastructure (synthesizer, per-endpoint
// breaker clients, rate limiter) and returns a factory producing one fresh
// loop per question. Per-question state (document store, registry, engine)
// is never shared.
func newAskerFactory(cfg config.Config, logger logging.Logger) transport.AskerFactory {
	breaker := breakerFromConfig(cfg.Resilience)
	timeout := cfg.Resilience.HTTPTimeout

	synth := llm.NewOpenAIClient(cfg.Synthesizer, cfg.Resilience, logger)
	retrieveLimiter := httpclient.NewMinDelayLimiter(cfg.Synthesizer.MinDelay)
	searchClient := httpclient.NewWithCircuitBreakerConfig(timeout, logger, "serpapi", breaker)
	edgarClient := httpclient.NewWithCircuitBreakerConfig(timeout, logger, "sec-api", breaker)
	pageClient := httpclient.NewWithCircuitBreakerConfig(timeout, logger, "pages", breaker)

	return func() transport.Asker {
		store := builtin.NewDocStore()
		registry := toolregistry.NewRegistry()
		mustRegister(registry, builtin.NewWebSearchTool(cfg.SerpAPIKey, searchClient, logger))
		mustRegister(registry, builtin.NewEdgarSearchTool(cfg.SECAPIKey, edgarClient, logger))
		mustRegister(registry, builtin.NewParseHTMLTool(store, cfg.UserAgent, pageClient, logger))
		mustRegister(registry, builtin.NewRetrieveTool(store, synth, retrieveLimiter, logger))

		return loop.NewEngine(registry, synth, logger,
			loop.WithMaxToolCalls(cfg.MaxToolCalls),
			loop.WithRetryConfig(retryFromConfig(cfg.Resilience)))
	}
}

// mustRegister panics on duplicate registration; tool names are fixed at
// compile time so a collision is a wiring bug.
func mustRegister(r *toolregistry.Registry, tool ports.ToolExecutor) {
	if err := r.Register(tool); err != nil {
		panic(err)
	}
}

// readinessTimeout bounds how long eval waits for the agent before failing.
const readinessTimeout = 30 * time.Second
