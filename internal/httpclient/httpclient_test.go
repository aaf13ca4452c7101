package httpclient

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	finerrors "finbench/internal/errors"
	"finbench/internal/logging"
)

func TestReadAllWithLimit(t *testing.T) {
	data, err := ReadAllWithLimit(strings.NewReader("hello"), 10)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(data))

	_, err = ReadAllWithLimit(strings.NewReader("hello world"), 5)
	require.Error(t, err)
	assert.True(t, IsResponseTooLarge(err))

	data, err = ReadAllWithLimit(strings.NewReader("unlimited"), 0)
	require.NoError(t, err)
	assert.Equal(t, "unlimited", string(data))
}

func TestCircuitBreakerTransportOpensOnServerErrors(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	config := finerrors.CircuitBreakerConfig{
		FailureThreshold: 2,
		SuccessThreshold: 1,
		Cooldown:         time.Minute,
	}
	client := NewWithCircuitBreakerConfig(5*time.Second, logging.Nop(), "test-endpoint", config)

	for i := 0; i < 2; i++ {
		resp, err := client.Get(server.URL)
		require.NoError(t, err)
		_ = resp.Body.Close()
	}

	// Breaker is open: the request is rejected before any network I/O
	before := hits.Load()
	_, err := client.Get(server.URL)
	require.Error(t, err)
	assert.Equal(t, before, hits.Load())
}

func TestCircuitBreakerTransportPassesThroughSuccess(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	client := NewWithCircuitBreaker(5*time.Second, logging.Nop(), "test-endpoint")

	for i := 0; i < 10; i++ {
		resp, err := client.Get(server.URL)
		require.NoError(t, err)
		assert.Equal(t, http.StatusOK, resp.StatusCode)
		_ = resp.Body.Close()
	}
}

func TestMinDelayLimiterSpacesCalls(t *testing.T) {
	limiter := NewMinDelayLimiter(20 * time.Millisecond)

	start := time.Now()
	require.NoError(t, limiter.Wait(context.Background()))
	require.NoError(t, limiter.Wait(context.Background()))
	elapsed := time.Since(start)

	assert.GreaterOrEqual(t, elapsed, 20*time.Millisecond)
}

func TestMinDelayLimiterZeroDelayNeverWaits(t *testing.T) {
	limiter := NewMinDelayLimiter(0)

	start := time.Now()
	for i := 0; i < 100; i++ {
		require.NoError(t, limiter.Wait(context.Background()))
	}
	assert.Less(t, time.Since(start), 50*time.Millisecond)
}

func TestMinDelayLimiterHonorsCancellation(t *testing.T) {
	limiter := NewMinDelayLimiter(time.Hour)
	require.NoError(t, limiter.Wait(context.Background()))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	err := limiter.Wait(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
