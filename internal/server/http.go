// Package server hosts the operational HTTP sidecar to the MCP stdio
// transport: liveness, readiness, and Prometheus metrics, while tool
// traffic flows over stdin/stdout.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/dmmcquay/stockfish-mcp/internal/health"
	"github.com/dmmcquay/stockfish-mcp/internal/logging"
	"github.com/dmmcquay/stockfish-mcp/internal/metrics"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// HTTPServer serves the /health, /ready, and /metrics endpoints.
type HTTPServer struct {
	server  *http.Server
	logger  logging.ContextLogger
	checker *health.Checker
	addr    string
}

// NewHTTPServer builds the sidecar server around the given health checker.
func NewHTTPServer(addr string, logger logging.ContextLogger, checker *health.Checker) *HTTPServer {
	s := &HTTPServer{
		logger:  logger,
		checker: checker,
	}
	s.server = &http.Server{
		Addr:         addr,
		Handler:      s.routes(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return s
}

func (s *HTTPServer) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.checker.LivenessHandler())
	mux.HandleFunc("/ready", s.checker.ReadinessHandler())
	mux.Handle("/metrics", promhttp.Handler())
	return Instrument(s.logger, metrics.NewPrometheusCollector())(mux)
}

// Start binds the listen address and serves in the background. A bind
// failure is returned synchronously so startup can abort instead of
// discovering the dead endpoint later.
func (s *HTTPServer) Start() error {
	ln, err := net.Listen("tcp", s.server.Addr)
	if err != nil {
		return fmt.Errorf("health server listen on %s: %w", s.server.Addr, err)
	}

	s.addr = ln.Addr().String()
	s.logger.Info("Starting HTTP health and metrics server", "addr", s.addr)

	go func() {
		if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("HTTP server stopped unexpectedly", "error", err)
		}
	}()

	return nil
}

// Addr reports the resolved listen address once Start has bound it.
func (s *HTTPServer) Addr() string {
	return s.addr
}

// Stop drains in-flight requests until the context expires.
func (s *HTTPServer) Stop(ctx context.Context) error {
	s.logger.Info("Stopping HTTP health and metrics server")
	return s.server.Shutdown(ctx)
}
