package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmmcquay/stockfish-mcp/internal/health"
	"github.com/dmmcquay/stockfish-mcp/internal/logging"
	"github.com/dmmcquay/stockfish-mcp/internal/metrics"
)

func newTestServer() *HTTPServer {
	logger := logging.NewLogger("[test] ", "error")
	checker := health.NewChecker(logger, "1.0.0", "abc1234")
	return NewHTTPServer("127.0.0.1:0", logger, checker)
}

func TestRoutes_Health(t *testing.T) {
	s := newTestServer()

	rec := httptest.NewRecorder()
	s.routes().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusOK, rec.Code)

	var report health.Report
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &report))
	assert.Equal(t, health.StatusHealthy, report.Status)
	assert.Equal(t, "1.0.0", report.Version)
}

func TestRoutes_ReadyReflectsChecker(t *testing.T) {
	s := newTestServer()
	s.checker.RegisterCheck("engine", func(ctx context.Context) error {
		return errors.New("engine process exited")
	})

	rec := httptest.NewRecorder()
	s.routes().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ready", nil))

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	var report health.Report
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &report))
	assert.Equal(t, health.StatusUnhealthy, report.Status)
}

func TestRoutes_Metrics(t *testing.T) {
	s := newTestServer()

	rec := httptest.NewRecorder()
	s.routes().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "go_goroutines")
}

func TestStartAndStop(t *testing.T) {
	s := newTestServer()

	require.NoError(t, s.Start())
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		assert.NoError(t, s.Stop(ctx))
	}()

	resp, err := http.Get(fmt.Sprintf("http://%s/health", s.Addr()))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestStart_BindFailure(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	logger := logging.NewLogger("[test] ", "error")
	checker := health.NewChecker(logger, "1.0.0", "abc1234")
	s := NewHTTPServer(ln.Addr().String(), logger, checker)

	assert.Error(t, s.Start())
}

func TestInstrument_RecordsStatusAndCorrelation(t *testing.T) {
	logger := logging.NewLogger("[test] ", "error")
	collector := metrics.NewPrometheusCollector()

	var sawCorrelation bool
	handler := Instrument(logger, collector)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, sawCorrelation = logging.CorrelationIDFromContext(r.Context())
		w.WriteHeader(http.StatusTeapot)
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ready", nil))

	assert.Equal(t, http.StatusTeapot, rec.Code)
	assert.True(t, sawCorrelation)
}

func TestInstrument_PreservesIncomingCorrelationID(t *testing.T) {
	logger := logging.NewLogger("[test] ", "error")
	collector := metrics.NewPrometheusCollector()

	var got string
	handler := Instrument(logger, collector)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got, _ = logging.CorrelationIDFromContext(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req = req.WithContext(logging.ContextWithCorrelationID(req.Context(), "corr_keep"))
	handler.ServeHTTP(httptest.NewRecorder(), req)

	assert.Equal(t, "corr_keep", got)
}

func TestMetricPath_CollapsesUnknownPaths(t *testing.T) {
	assert.Equal(t, "/health", metricPath("/health"))
	assert.Equal(t, "/ready", metricPath("/ready"))
	assert.Equal(t, "/metrics", metricPath("/metrics"))
	assert.Equal(t, "other", metricPath("/favicon.ico"))
	assert.Equal(t, "other", metricPath("/admin"))
}

func TestStatusRecorder_FirstHeaderWins(t *testing.T) {
	rec := httptest.NewRecorder()
	sr := &statusRecorder{ResponseWriter: rec, status: http.StatusOK}

	sr.WriteHeader(http.StatusNotFound)
	sr.WriteHeader(http.StatusInternalServerError)

	assert.Equal(t, http.StatusNotFound, sr.status)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
