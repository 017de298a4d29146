package middleware

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/UrielMangisto/ShoppingWebsite-sub000/pkg/logger"
)

func TestRequestLoggingSetsCorrelationID(t *testing.T) {
	log := logger.New("test", "error")

	var seen string
	handler := RequestLogging(log)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = logger.CorrelationIDFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health/live", nil))

	assert.NotEmpty(t, seen)
	assert.Equal(t, seen, rec.Header().Get("X-Correlation-ID"))
}

func TestRequestLoggingPropagatesHeader(t *testing.T) {
	log := logger.New("test", "error")

	handler := RequestLogging(log)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/health/live", nil)
	req.Header.Set("X-Correlation-ID", "corr-123")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, "corr-123", rec.Header().Get("X-Correlation-ID"))
}

func TestRequestLoggingStoresScopedLogger(t *testing.T) {
	var buf bytes.Buffer
	log := logger.NewWithWriter("test", "info", &buf)

	handler := RequestLogging(log)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		logger.FromContext(r.Context()).Info("handled")
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/health/ready", nil)
	req.Header.Set("X-Correlation-ID", "corr-456")
	req.Header.Set("X-Session-ID", "sess-789")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	// The handler's own log line carries the request identifiers because
	// FromContext returned the scoped logger, not the default one.
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)
	assert.Contains(t, lines[0], `"msg":"handled"`)
	assert.Contains(t, lines[0], `"correlation_id":"corr-456"`)
	assert.Contains(t, lines[0], `"session_id":"sess-789"`)
	assert.Contains(t, lines[1], `"msg":"http request"`)
	assert.Contains(t, lines[1], `"correlation_id":"corr-456"`)
}

func TestRecovery(t *testing.T) {
	log := logger.New("test", "error")

	handler := Recovery(log)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.JSONEq(t, `{"reason":"internal server error"}`, rec.Body.String())
}

func TestIPAllowlist(t *testing.T) {
	log := logger.New("test", "error")

	r := chi.NewRouter()
	RegisterPprof(r, []string{"127.0.0.0/8"}, log)

	req := httptest.NewRequest(http.MethodGet, "/debug/pprof/cmdline", nil)
	req.RemoteAddr = "127.0.0.1:5555"
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)

	req = httptest.NewRequest(http.MethodGet, "/debug/pprof/cmdline", nil)
	req.RemoteAddr = "10.1.2.3:5555"
	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestIPAllowlistSkipsInvalidCIDR(t *testing.T) {
	log := logger.New("test", "error")

	handler := IPAllowlist([]string{"not-a-cidr", "192.168.0.0/16"}, log)(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
		}))

	req := httptest.NewRequest(http.MethodGet, "/debug/pprof/", nil)
	req.RemoteAddr = "192.168.1.10:2000"
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestPrometheusMetricsMiddleware(t *testing.T) {
	r := chi.NewRouter()
	r.Use(PrometheusMetrics())
	r.Get("/health/live", func(w http.ResponseWriter, req *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health/live", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}
