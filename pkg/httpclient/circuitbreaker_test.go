package httpclient

import (
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sony/gobreaker/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

func testCBConfig(name string) CircuitBreakerConfig {
	return CircuitBreakerConfig{
		Name:         name,
		MaxRequests:  1,
		Interval:     60 * time.Second,
		Timeout:      1 * time.Second, // Short for tests.
		FailureRatio: 0.5,
		MinRequests:  3,
	}
}

func TestCircuitBreaker_ClosedState_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"lines":[],"version":1}`))
	}))
	defer server.Close()

	client := New(Config{Timeout: 5 * time.Second, MaxRetries: 0, MaxConnsPerHost: 10})
	cb := NewCircuitBreakerClient(client, testCBConfig("test-closed"), testLogger())

	req, err := http.NewRequest(http.MethodGet, server.URL, nil)
	require.NoError(t, err)

	resp, err := cb.Do(context.Background(), req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, gobreaker.StateClosed, cb.State())
}

func TestCircuitBreaker_TripsOnFailures(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`error`))
	}))
	defer server.Close()

	client := New(Config{Timeout: 5 * time.Second, MaxRetries: 0, MaxConnsPerHost: 10})
	cb := NewCircuitBreakerClient(client, testCBConfig("test-trip"), testLogger())

	for i := 0; i < 3; i++ {
		req, _ := http.NewRequest(http.MethodGet, server.URL, nil)
		_, err := cb.Do(context.Background(), req)
		require.Error(t, err) // 500s are treated as errors by the CB.
	}

	assert.Equal(t, gobreaker.StateOpen, cb.State())

	req, _ := http.NewRequest(http.MethodGet, server.URL, nil)
	_, err := cb.Do(context.Background(), req)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrCircuitOpen)
}

func TestCircuitBreaker_4xxNotCountedAsFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
		_, _ = w.Write([]byte(`{"reason":"insufficient stock"}`))
	}))
	defer server.Close()

	client := New(Config{Timeout: 5 * time.Second, MaxRetries: 0, MaxConnsPerHost: 10})
	cb := NewCircuitBreakerClient(client, testCBConfig("test-4xx"), testLogger())

	for i := 0; i < 5; i++ {
		req, _ := http.NewRequest(http.MethodGet, server.URL, nil)
		resp, err := cb.Do(context.Background(), req)
		require.NoError(t, err)
		resp.Body.Close()
	}

	assert.Equal(t, gobreaker.StateClosed, cb.State())
}

func TestCircuitBreaker_OpenStateRejectsWithoutNetworkCall(t *testing.T) {
	var reqCount atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqCount.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	cfg := testCBConfig("test-open-reject")
	cfg.Timeout = 5 * time.Second // Long so it stays open during test.

	client := New(Config{Timeout: 5 * time.Second, MaxRetries: 0, MaxConnsPerHost: 10})
	cb := NewCircuitBreakerClient(client, cfg, testLogger())

	for i := 0; i < 3; i++ {
		req, _ := http.NewRequest(http.MethodGet, server.URL, nil)
		_, _ = cb.Do(context.Background(), req)
	}
	assert.Equal(t, gobreaker.StateOpen, cb.State())

	before := reqCount.Load()
	for i := 0; i < 5; i++ {
		req, _ := http.NewRequest(http.MethodGet, server.URL, nil)
		_, err := cb.Do(context.Background(), req)
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrCircuitOpen)
	}
	assert.Equal(t, before, reqCount.Load())
}

func TestCircuitBreaker_HalfOpenToClosedRecovery(t *testing.T) {
	var failing atomic.Bool
	failing.Store(true)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if failing.Load() {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	cfg := testCBConfig("test-recovery")
	cfg.Timeout = 100 * time.Millisecond

	client := New(Config{Timeout: 5 * time.Second, MaxRetries: 0, MaxConnsPerHost: 10})
	cb := NewCircuitBreakerClient(client, cfg, testLogger())

	for i := 0; i < 3; i++ {
		req, _ := http.NewRequest(http.MethodGet, server.URL, nil)
		_, _ = cb.Do(context.Background(), req)
	}
	assert.Equal(t, gobreaker.StateOpen, cb.State())

	time.Sleep(150 * time.Millisecond)
	failing.Store(false)

	req, _ := http.NewRequest(http.MethodGet, server.URL, nil)
	resp, err := cb.Do(context.Background(), req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, gobreaker.StateClosed, cb.State())
}
