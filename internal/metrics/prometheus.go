package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	prometheusOnce     sync.Once
	prometheusInstance *PrometheusCollector
)

// PrometheusCollector provides Prometheus metrics for the Stockfish MCP server.
type PrometheusCollector struct {
	// MCP Tool metrics
	toolCallsTotal   *prometheus.CounterVec
	toolErrorsTotal  *prometheus.CounterVec
	toolDurationSecs *prometheus.HistogramVec

	// Rate limit metrics
	rateLimitHitsTotal   *prometheus.CounterVec
	rateLimitChecksTotal prometheus.Counter

	// Engine metrics
	engineStatus        *prometheus.GaugeVec
	engineRestartsTotal prometheus.Counter
	engineHealthChecks  *prometheus.CounterVec

	// Search metrics
	searchDuration     *prometheus.HistogramVec
	searchCandidates   *prometheus.HistogramVec
	bookFallbacksTotal prometheus.Counter

	// HTTP metrics
	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	// Cache metrics
	cacheHitsTotal   prometheus.Counter
	cacheMissesTotal prometheus.Counter
	cacheItems       prometheus.Gauge
}

// NewPrometheusCollector creates a new Prometheus metrics collector (singleton).
func NewPrometheusCollector() *PrometheusCollector {
	prometheusOnce.Do(func() {
		prometheusInstance = &PrometheusCollector{
			// MCP Tool metrics
			toolCallsTotal: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "stockfish_mcp_tool_calls_total",
					Help: "Total number of MCP tool calls",
				},
				[]string{"tool", "status"},
			),
			toolErrorsTotal: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "stockfish_mcp_tool_errors_total",
					Help: "Total number of MCP tool errors",
				},
				[]string{"tool", "error_type"},
			),
			toolDurationSecs: promauto.NewHistogramVec(
				prometheus.HistogramOpts{
					Name:    "stockfish_mcp_tool_duration_seconds",
					Help:    "Duration of MCP tool calls in seconds",
					Buckets: prometheus.DefBuckets,
				},
				[]string{"tool"},
			),

			// Rate limit metrics
			rateLimitHitsTotal: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "stockfish_mcp_rate_limit_hits_total",
					Help: "Total number of rate limit hits",
				},
				[]string{"client", "tool"},
			),
			rateLimitChecksTotal: promauto.NewCounter(
				prometheus.CounterOpts{
					Name: "stockfish_mcp_rate_limit_checks_total",
					Help: "Total number of rate limit checks",
				},
			),

			// Engine metrics
			engineStatus: promauto.NewGaugeVec(
				prometheus.GaugeOpts{
					Name: "stockfish_engine_status",
					Help: "Status of the chess engine (1=running, 0=stopped)",
				},
				[]string{"version"},
			),
			engineRestartsTotal: promauto.NewCounter(
				prometheus.CounterOpts{
					Name: "stockfish_engine_restarts_total",
					Help: "Total number of engine restarts",
				},
			),
			engineHealthChecks: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "stockfish_engine_health_checks_total",
					Help: "Total number of engine health checks",
				},
				[]string{"status"},
			),

			// Search metrics
			searchDuration: promauto.NewHistogramVec(
				prometheus.HistogramOpts{
					Name:    "stockfish_engine_search_duration_seconds",
					Help:    "Duration of engine searches in seconds",
					Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
				},
				[]string{"mode"},
			),
			searchCandidates: promauto.NewHistogramVec(
				prometheus.HistogramOpts{
					Name:    "stockfish_engine_search_candidates",
					Help:    "Number of candidate moves produced per search",
					Buckets: []float64{0, 1, 2, 5, 10, 20, 30},
				},
				[]string{"mode"},
			),
			bookFallbacksTotal: promauto.NewCounter(
				prometheus.CounterOpts{
					Name: "stockfish_engine_book_fallbacks_total",
					Help: "Total number of searches resolved from the opening book",
				},
			),

			// HTTP metrics
			httpRequestsTotal: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "stockfish_mcp_http_requests_total",
					Help: "Total number of HTTP requests",
				},
				[]string{"method", "path", "status"},
			),
			httpRequestDuration: promauto.NewHistogramVec(
				prometheus.HistogramOpts{
					Name:    "stockfish_mcp_http_request_duration_seconds",
					Help:    "Duration of HTTP requests in seconds",
					Buckets: prometheus.DefBuckets,
				},
				[]string{"method", "path"},
			),

			// Cache metrics
			cacheHitsTotal: promauto.NewCounter(
				prometheus.CounterOpts{
					Name: "stockfish_mcp_cache_hits_total",
					Help: "Total number of cache hits",
				},
			),
			cacheMissesTotal: promauto.NewCounter(
				prometheus.CounterOpts{
					Name: "stockfish_mcp_cache_misses_total",
					Help: "Total number of cache misses",
				},
			),
			cacheItems: promauto.NewGauge(
				prometheus.GaugeOpts{
					Name: "stockfish_mcp_cache_items",
					Help: "Current number of items in cache",
				},
			),
		}
	})
	return prometheusInstance
}

// RecordToolCall records a tool call metric.
func (p *PrometheusCollector) RecordToolCall(tool, status string, durationSecs float64) {
	p.toolCallsTotal.WithLabelValues(tool, status).Inc()
	p.toolDurationSecs.WithLabelValues(tool).Observe(durationSecs)

	if status == "error" {
		p.toolErrorsTotal.WithLabelValues(tool, "general").Inc()
	}
}

// RecordRateLimit records a rate limit event.
func (p *PrometheusCollector) RecordRateLimit(client, tool string, hit bool) {
	p.rateLimitChecksTotal.Inc()
	if hit {
		p.rateLimitHitsTotal.WithLabelValues(client, tool).Inc()
	}
}

// RecordEngineStatus records the current engine status.
func (p *PrometheusCollector) RecordEngineStatus(running bool, version string) {
	value := 0.0
	if running {
		value = 1.0
	}
	p.engineStatus.WithLabelValues(version).Set(value)
}

// RecordEngineRestart records an engine restart.
func (p *PrometheusCollector) RecordEngineRestart() {
	p.engineRestartsTotal.Inc()
}

// RecordEngineHealthCheck records a health check result.
func (p *PrometheusCollector) RecordEngineHealthCheck(success bool) {
	status := "success"
	if !success {
		status = "failure"
	}
	p.engineHealthChecks.WithLabelValues(status).Inc()
}

// RecordSearch records a completed search with its duration and the number
// of candidate moves it produced.
func (p *PrometheusCollector) RecordSearch(mode string, durationSecs float64, candidates int) {
	p.searchDuration.WithLabelValues(mode).Observe(durationSecs)
	p.searchCandidates.WithLabelValues(mode).Observe(float64(candidates))
}

// RecordBookFallback records a search answered from the opening book.
func (p *PrometheusCollector) RecordBookFallback() {
	p.bookFallbacksTotal.Inc()
}

// RecordHTTPRequest records an HTTP request.
func (p *PrometheusCollector) RecordHTTPRequest(method, path, status string, durationSecs float64) {
	p.httpRequestsTotal.WithLabelValues(method, path, status).Inc()
	p.httpRequestDuration.WithLabelValues(method, path).Observe(durationSecs)
}

// RecordCacheHit records a cache hit.
func (p *PrometheusCollector) RecordCacheHit() {
	p.cacheHitsTotal.Inc()
}

// RecordCacheMiss records a cache miss.
func (p *PrometheusCollector) RecordCacheMiss() {
	p.cacheMissesTotal.Inc()
}

// SetCacheItems sets the current number of cached entries.
func (p *PrometheusCollector) SetCacheItems(count float64) {
	p.cacheItems.Set(count)
}
