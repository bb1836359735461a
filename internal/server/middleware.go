package server

import (
	"net/http"
	"strconv"
	"time"

	"github.com/dmmcquay/stockfish-mcp/internal/logging"
	"github.com/dmmcquay/stockfish-mcp/internal/metrics"
)

// Instrument wraps a handler with correlation IDs, structured request
// logs, and Prometheus timings. The metric path label is collapsed to the
// known endpoints so requests for arbitrary paths cannot grow the
// label set.
func Instrument(logger logging.ContextLogger, collector *metrics.PrometheusCollector) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			ctx := r.Context()
			if _, ok := logging.CorrelationIDFromContext(ctx); !ok {
				ctx = logging.ContextWithCorrelationID(ctx, logging.GenerateCorrelationID())
			}

			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(rec, r.WithContext(ctx))

			elapsed := time.Since(start)
			collector.RecordHTTPRequest(r.Method, metricPath(r.URL.Path), strconv.Itoa(rec.status), elapsed.Seconds())
			logger.WithContext(ctx).Debug("HTTP request",
				"method", r.Method, "path", r.URL.Path, "status", rec.status, "duration", elapsed)
		})
	}
}

func metricPath(path string) string {
	switch path {
	case "/health", "/ready", "/metrics":
		return path
	default:
		return "other"
	}
}

// statusRecorder captures the status code written by the wrapped handler.
type statusRecorder struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
}

func (r *statusRecorder) WriteHeader(status int) {
	if r.wroteHeader {
		return
	}
	r.status = status
	r.wroteHeader = true
	r.ResponseWriter.WriteHeader(status)
}

func (r *statusRecorder) Write(b []byte) (int, error) {
	r.wroteHeader = true
	return r.ResponseWriter.Write(b)
}
