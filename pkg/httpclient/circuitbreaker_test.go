package httpclient

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sony/gobreaker/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func fastClient() *Client {
	return New(Config{
		Timeout:         time.Second,
		MaxRetries:      0,
		RetryWaitMin:    time.Millisecond,
		RetryWaitMax:    time.Millisecond,
		MaxConnsPerHost: 10,
	})
}

func trippyConfig(name string) CircuitBreakerConfig {
	return CircuitBreakerConfig{
		Name:         name,
		MaxRequests:  1,
		Interval:     time.Minute,
		Timeout:      time.Minute,
		FailureRatio: 0.5,
		MinRequests:  2,
	}
}

func TestCircuitBreakerClient_SuccessPassesThrough(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"data":{"name":"Teatro Municipal"}}`))
	}))
	defer srv.Close()

	cb := NewCircuitBreakerClient(fastClient(), trippyConfig("crm-ok"), discardLogger())

	resp, err := cb.Get(context.Background(), srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	assert.Contains(t, string(body), "Teatro Municipal")
	assert.Equal(t, gobreaker.StateClosed, cb.State())
}

func TestCircuitBreakerClient_OpensAfterFailures(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	cb := NewCircuitBreakerClient(fastClient(), trippyConfig("crm-down"), discardLogger())

	for i := 0; i < 3; i++ {
		_, err := cb.Get(context.Background(), srv.URL)
		require.Error(t, err)
	}

	assert.Equal(t, gobreaker.StateOpen, cb.State())

	// Open breaker must reject without hitting the server.
	before := calls.Load()
	_, err := cb.Get(context.Background(), srv.URL)
	require.ErrorIs(t, err, ErrCircuitOpen)
	assert.Equal(t, before, calls.Load())
}

func TestCircuitBreakerClient_FallbackOnOpen(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	cb := NewCircuitBreakerClient(fastClient(), trippyConfig("crm-fallback"), discardLogger()).
		WithFallback(func(ctx context.Context, err error) (*http.Response, error) {
			return &http.Response{
				StatusCode: http.StatusOK,
				Body:       io.NopCloser(strings.NewReader(`{"data":{"name":"Unknown client"}}`)),
				Header:     http.Header{"Content-Type": []string{"application/json"}},
			}, nil
		})

	for i := 0; i < 3; i++ {
		_, _ = cb.Get(context.Background(), srv.URL)
	}
	require.Equal(t, gobreaker.StateOpen, cb.State())

	resp, err := cb.Get(context.Background(), srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	assert.Contains(t, string(body), "Unknown client")
}

func TestParseResponseError_StructuredBody(t *testing.T) {
	resp := &http.Response{
		StatusCode: http.StatusNotFound,
		Body:       io.NopCloser(strings.NewReader(`{"error":{"code":"NOT_FOUND","message":"client abc not found"}}`)),
	}

	err := ParseResponseError(resp, "crm")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "crm")
	assert.Contains(t, err.Error(), "client abc not found")
}

func TestIsClientError(t *testing.T) {
	assert.True(t, IsClientError(http.StatusBadRequest))
	assert.True(t, IsClientError(http.StatusConflict))
	assert.False(t, IsClientError(http.StatusInternalServerError))
	assert.False(t, IsClientError(http.StatusOK))
}
