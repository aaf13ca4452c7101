package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"finbench/internal/agent/ports"
	"finbench/internal/config"
	finerrors "finbench/internal/errors"
	"finbench/internal/httpclient"
	"finbench/internal/logging"
)

// Client talks to a running agent server. Requests are wrapped with timeout,
// retry, and a per-endpoint circuit breaker.
type Client struct {
	baseURL    string
	httpClient *http.Client
	retry      finerrors.RetryConfig
	logger     logging.Logger
}

// ClientOption customizes a Client.
type ClientOption func(*Client)

// WithClientHTTP injects the HTTP client, used by tests.
func WithClientHTTP(c *http.Client) ClientOption {
	return func(cl *Client) { cl.httpClient = c }
}

// WithClientRetry overrides the retry policy.
func WithClientRetry(rc finerrors.RetryConfig) ClientOption {
	return func(cl *Client) { cl.retry = rc }
}

// NewClient builds a client for the agent at baseURL.
func NewClient(baseURL string, resilience config.ResilienceConfig, logger logging.Logger, opts ...ClientOption) *Client {
	logger = logging.OrNop(logger)
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
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
		c.httpClient = httpclient.NewWithCircuitBreakerConfig(resilience.HTTPTimeout, logger, "agent",
			finerrors.CircuitBreakerConfig{
				FailureThreshold: resilience.FailureThreshold,
				SuccessThreshold: 1,
				Cooldown:         resilience.BreakerCooldown,
			})
	}
	return c
}

// Ask sends one question and decodes the answer. Transport-level failures
// and 5xx responses are retried; error envelopes keep their reported kind.
func (c *Client) Ask(ctx context.Context, q ports.Question) (ports.Answer, error) {
	resp, err := finerrors.RetryWithResultAndLog(ctx, c.retry, func(ctx context.Context) (*AskResponse, error) {
		return c.ask(ctx, q)
	}, c.logger)
	if err != nil {
		return ports.Answer{}, err
	}

	sources := make([]ports.Evidence, 0, len(resp.Sources))
	for _, s := range resp.Sources {
		sources = append(sources, ports.Evidence{URL: s.URL, Name: s.Name})
	}
	return ports.Answer{
		Text:       resp.Text,
		Sources:    sources,
		Confidence: ports.Confidence(resp.Confidence),
	}, nil
}

func (c *Client) ask(ctx context.Context, q ports.Question) (*AskResponse, error) {
	body, err := json.Marshal(AskRequest{Question: q.Text, CaseID: q.CaseID})
	if err != nil {
		return nil, finerrors.NewPermanentError(err, "encoding ask request")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/ask", bytes.NewReader(body))
	if err != nil {
		return nil, finerrors.NewPermanentError(err, "building ask request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	respBody, err := httpclient.ReadAllWithLimit(resp.Body, 4<<20)
	if err != nil {
		return nil, finerrors.NewTransientError(err, "reading ask response")
	}

	if resp.StatusCode != http.StatusOK {
		var envelope ErrorResponse
		if jsonErr := json.Unmarshal(respBody, &envelope); jsonErr == nil && envelope.Error != "" {
			return nil, errorFromEnvelope(resp.StatusCode, envelope)
		}
		return nil, finerrors.FromHTTPStatus("agent", resp.StatusCode)
	}

	var answer AskResponse
	if err := json.Unmarshal(respBody, &answer); err != nil {
		return nil, &finerrors.MalformedResponseError{Endpoint: "agent", Err: err}
	}
	return &answer, nil
}

// errorFromEnvelope rebuilds a typed error from the server's envelope so the
// harness counts the right failure kind.
func errorFromEnvelope(status int, envelope ErrorResponse) error {
	base := fmt.Errorf("agent: %s", envelope.Error)
	switch finerrors.Kind(envelope.Kind) {
	case finerrors.KindTransientNetwork, finerrors.KindCircuitOpen, finerrors.KindTimeout:
		return finerrors.NewTransientHTTPError(base, status)
	default:
		return finerrors.NewPermanentHTTPError(base, status)
	}
}

// WaitReady polls readiness with backoff until the server answers or the
// context expires.
func (c *Client) WaitReady(ctx context.Context) error {
	delay := 100 * time.Millisecond
	const maxDelay = 2 * time.Second

	for {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/readyz", nil)
		if err != nil {
			return finerrors.NewPermanentError(err, "building readiness request")
		}

		resp, err := c.httpClient.Do(req)
		if err == nil {
			status := resp.StatusCode
			resp.Body.Close()
			if status == http.StatusOK {
				return nil
			}
		}

		select {
		case <-ctx.Done():
			return finerrors.NewTransientError(ctx.Err(),
				fmt.Sprintf("agent at %s never became ready", c.baseURL))
		case <-time.After(delay):
		}
		if delay < maxDelay {
			delay *= 2
		}
	}
}
