// Package llm implements the language-synthesis oracle client against the
// OpenAI-compatible chat completions API.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"finbench/internal/agent/ports"
	"finbench/internal/config"
	finerrors "finbench/internal/errors"
	"finbench/internal/httpclient"
	"finbench/internal/logging"
)

type openaiClient struct {
	model      string
	apiKey     string
	baseURL    string
	httpClient *http.Client
	limiter    *httpclient.MinDelayLimiter
	retry      finerrors.RetryConfig
	logger     logging.Logger
}

// Option customizes the client.
type Option func(*openaiClient)

// WithHTTPClient injects the HTTP client, used by tests.
func WithHTTPClient(c *http.Client) Option {
	return func(o *openaiClient) { o.httpClient = c }
}

// WithRetryConfig overrides the retry policy.
func WithRetryConfig(rc finerrors.RetryConfig) Option {
	return func(o *openaiClient) { o.retry = rc }
}

// NewOpenAIClient builds a Synthesizer speaking the chat completions API.
// Calls are spaced by a min-delay limiter and retried on transient failures.
func NewOpenAIClient(cfg config.SynthesizerConfig, resilience config.ResilienceConfig, logger logging.Logger, opts ...Option) ports.Synthesizer {
	logger = logging.OrNop(logger)
	c := &openaiClient{
		model:   cfg.Model,
		apiKey:  cfg.APIKey,
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		limiter: httpclient.NewMinDelayLimiter(cfg.MinDelay),
		retry: finerrors.RetryConfig{
			MaxAttempts:  resilience.MaxRetries,
			BaseDelay:    resilience.RetryBaseDelay,
			MaxDelay:     resilience.RetryMaxDelay,
			JitterFactor: 0.25,
		},
		logger: logger,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.httpClient == nil {
		c.httpClient = httpclient.NewWithCircuitBreaker(resilience.HTTPTimeout, logger, "synthesizer")
	}
	return c
}

func (c *openaiClient) Model() string {
	return c.model
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Complete sends one prompt and returns the oracle's reply.
func (c *openaiClient) Complete(ctx context.Context, req ports.SynthesisRequest) (*ports.SynthesisResponse, error) {
	return finerrors.RetryWithResultAndLog(ctx, c.retry, func(ctx context.Context) (*ports.SynthesisResponse, error) {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}
		return c.complete(ctx, req)
	}, c.logger)
}

func (c *openaiClient) complete(ctx context.Context, req ports.SynthesisRequest) (*ports.SynthesisResponse, error) {
	messages := make([]chatMessage, 0, 2)
	if req.System != "" {
		messages = append(messages, chatMessage{Role: "system", Content: req.System})
	}
	messages = append(messages, chatMessage{Role: "user", Content: req.Prompt})

	payload := map[string]any{
		"model":    c.model,
		"messages": messages,
		"stream":   false,
	}
	if req.Temperature > 0 {
		payload["temperature"] = req.Temperature
	}
	if req.MaxTokens > 0 {
		payload["max_tokens"] = req.MaxTokens
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, finerrors.NewPermanentError(err, "encoding completion request")
	}

	endpoint := c.baseURL + "/chat/completions"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, finerrors.NewPermanentError(err, "building completion request")
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	c.logger.Debug("synthesis request: POST %s model=%s prompt_len=%d", endpoint, c.model, len(req.Prompt))

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	respBody, err := httpclient.ReadAllWithLimit(resp.Body, 32<<20)
	if err != nil {
		return nil, finerrors.NewTransientError(err, "reading completion response")
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		c.logger.Debug("synthesis error response [%d]: %s", resp.StatusCode, truncateForLog(respBody))
		return nil, finerrors.FromHTTPStatus("synthesizer", resp.StatusCode)
	}

	var oaiResp struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
		Usage struct {
			PromptTokens     int `json:"prompt_tokens"`
			CompletionTokens int `json:"completion_tokens"`
			TotalTokens     int `json:"total_tokens"`
		} `json:"usage"`
	}
	if err := json.Unmarshal(respBody, &oaiResp); err != nil {
		return nil, &finerrors.MalformedResponseError{Endpoint: "synthesizer", Err: err}
	}
	if len(oaiResp.Choices) == 0 {
		return nil, &finerrors.MalformedResponseError{
			Endpoint: "synthesizer",
			Err:      fmt.Errorf("no choices in completion response"),
		}
	}

	return &ports.SynthesisResponse{
		Content: oaiResp.Choices[0].Message.Content,
		Usage: ports.TokenUsage{
			PromptTokens:     oaiResp.Usage.PromptTokens,
			CompletionTokens: oaiResp.Usage.CompletionTokens,
			TotalTokens:      oaiResp.Usage.TotalTokens,
		},
	}, nil
}

func truncateForLog(b []byte) string {
	const max = 512
	if len(b) <= max {
		return string(b)
	}
	return string(b[:max]) + "...(truncated)"
}
