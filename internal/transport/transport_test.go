package transport

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"finbench/internal/agent/ports"
	"finbench/internal/config"
	finerrors "finbench/internal/errors"
)

type stubAsker struct {
	answer ports.Answer
	err    error
	asked  atomic.Int32
	lastQ  ports.Question
}

func (s *stubAsker) Ask(ctx context.Context, q ports.Question) (ports.Answer, error) {
	s.asked.Add(1)
	s.lastQ = q
	if s.err != nil {
		return ports.Answer{}, s.err
	}
	return s.answer, nil
}

func newServerFixture(asker *stubAsker) *httptest.Server {
	srv := NewServer(func() Asker { return asker }, nil)
	return httptest.NewServer(srv.Handler())
}

func fastClientRetry() finerrors.RetryConfig {
	return finerrors.RetryConfig{MaxAttempts: 2, BaseDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond, JitterFactor: 0}
}

func newClientFor(ts *httptest.Server) *Client {
	return NewClient(ts.URL, config.ResilienceConfig{HTTPTimeout: 5 * time.Second}, nil,
		WithClientHTTP(ts.Client()), WithClientRetry(fastClientRetry()))
}

func TestServerAnswersQuestion(t *testing.T) {
	asker := &stubAsker{answer: ports.Answer{
		Text: "$383.3 billion",
		Sources: []ports.Evidence{
			{URL: "https://example.com/a", Name: "Result A", Snippet: "ignored on the wire"},
		},
		Confidence: ports.ConfidenceNormal,
	}}
	ts := newServerFixture(asker)
	defer ts.Close()

	resp, err := http.Post(ts.URL+"/api/ask", "application/json",
		strings.NewReader(`{"question": "What was revenue?", "case_id": "case-7"}`))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body AskResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "$383.3 billion", body.Text)
	require.Len(t, body.Sources, 1)
	assert.Equal(t, "https://example.com/a", body.Sources[0].URL)
	assert.Equal(t, "Result A", body.Sources[0].Name)

	assert.Equal(t, "What was revenue?", asker.lastQ.Text)
	assert.Equal(t, "case-7", asker.lastQ.CaseID)
}

func TestServerRejectsEmptyQuestion(t *testing.T) {
	ts := newServerFixture(&stubAsker{})
	defer ts.Close()

	resp, err := http.Post(ts.URL+"/api/ask", "application/json", strings.NewReader(`{}`))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)

	var envelope ErrorResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&envelope))
	assert.Equal(t, "invalid_arguments", envelope.Kind)
}

func TestServerMapsErrorKinds(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantKind   string
	}{
		{"transient", finerrors.NewTransientError(nil, "upstream flaked"), http.StatusServiceUnavailable, "transient_network_error"},
		{"permanent", finerrors.NewPermanentError(nil, "no tool applicable"), http.StatusInternalServerError, "permanent_error"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := newServerFixture(&stubAsker{err: tt.err})
			defer ts.Close()

			resp, err := http.Post(ts.URL+"/api/ask", "application/json",
				strings.NewReader(`{"question": "q"}`))
			require.NoError(t, err)
			defer resp.Body.Close()
			assert.Equal(t, tt.wantStatus, resp.StatusCode)

			var envelope ErrorResponse
			require.NoError(t, json.NewDecoder(resp.Body).Decode(&envelope))
			assert.Equal(t, tt.wantKind, envelope.Kind)
		})
	}
}

func TestServerReadyz(t *testing.T) {
	ts := newServerFixture(&stubAsker{})
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/readyz")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestClientAskRoundTrip(t *testing.T) {
	asker := &stubAsker{answer: ports.Answer{
		Text:       "42%",
		Sources:    []ports.Evidence{{URL: "https://sec.gov/f", Name: "10-K"}},
		Confidence: ports.ConfidenceDegraded,
	}}
	ts := newServerFixture(asker)
	defer ts.Close()

	client := newClientFor(ts)
	ans, err := client.Ask(context.Background(), ports.Question{Text: "gross margin?", CaseID: "c1"})
	require.NoError(t, err)

	assert.Equal(t, "42%", ans.Text)
	require.Len(t, ans.Sources, 1)
	assert.Equal(t, "https://sec.gov/f", ans.Sources[0].URL)
	assert.True(t, ans.Degraded())
}

func TestClientRetriesTransientServerFailure(t *testing.T) {
	var hits int32
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&hits, 1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		json.NewEncoder(w).Encode(AskResponse{Text: "recovered"})
	}))
	defer backend.Close()

	client := NewClient(backend.URL, config.ResilienceConfig{HTTPTimeout: 5 * time.Second}, nil,
		WithClientHTTP(backend.Client()), WithClientRetry(fastClientRetry()))

	ans, err := client.Ask(context.Background(), ports.Question{Text: "q"})
	require.NoError(t, err)
	assert.Equal(t, "recovered", ans.Text)
	assert.Equal(t, int32(2), atomic.LoadInt32(&hits))
}

func TestClientPreservesErrorKindFromEnvelope(t *testing.T) {
	asker := &stubAsker{err: finerrors.NewPermanentError(nil, "no tool applicable")}
	ts := newServerFixture(asker)
	defer ts.Close()

	client := newClientFor(ts)
	_, err := client.Ask(context.Background(), ports.Question{Text: "q"})
	require.Error(t, err)
	assert.True(t, finerrors.IsPermanent(err))
	assert.Equal(t, int32(1), asker.asked.Load(), "permanent failures are not retried")
}

func TestClientWaitReady(t *testing.T) {
	var ready atomic.Bool
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !ready.Load() {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer backend.Close()

	client := NewClient(backend.URL, config.ResilienceConfig{HTTPTimeout: time.Second}, nil,
		WithClientHTTP(backend.Client()), WithClientRetry(fastClientRetry()))

	go func() {
		time.Sleep(150 * time.Millisecond)
		ready.Store(true)
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, client.WaitReady(ctx))
}

func TestClientWaitReadyTimesOut(t *testing.T) {
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer backend.Close()

	client := NewClient(backend.URL, config.ResilienceConfig{HTTPTimeout: time.Second}, nil,
		WithClientHTTP(backend.Client()), WithClientRetry(fastClientRetry()))

	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()
	err := client.WaitReady(ctx)
	require.Error(t, err)
}

func TestServerGracefulShutdown(t *testing.T) {
	srv := NewServer(func() Asker { return &stubAsker{} }, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- srv.Run(ctx, "127.0.0.1:0")
	}()

	time.Sleep(100 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down")
	}
}
