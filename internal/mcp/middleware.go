package mcp

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/dmmcquay/stockfish-mcp/internal/logging"
	"github.com/dmmcquay/stockfish-mcp/internal/metrics"
	"github.com/dmmcquay/stockfish-mcp/internal/ratelimit"
)

// Middleware decorates tool handlers with request logging, budget checks and
// call metrics. Handlers stay plain functions; decoration happens once at
// registration.
type Middleware struct {
	logger  logging.ContextLogger
	metrics *metrics.Collector
	limiter *ratelimit.Limiter
}

// NewMiddleware creates a middleware instance. The limiter may be nil.
func NewMiddleware(logger logging.ContextLogger, collector *metrics.Collector, limiter *ratelimit.Limiter) *Middleware {
	return &Middleware{
		logger:  logger,
		metrics: collector,
		limiter: limiter,
	}
}

// ToolHandler is the function signature for MCP tool handlers.
type ToolHandler func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error)

// clientIDContextKey carries the caller identity used for budgeting.
type clientIDContextKey struct{}

// WithClientID returns a context carrying the caller identity.
func WithClientID(ctx context.Context, clientID string) context.Context {
	return context.WithValue(ctx, clientIDContextKey{}, clientID)
}

// WrapTool decorates a handler with logging, the rate-limit check and call
// metrics.
func (m *Middleware) WrapTool(name string, handler ToolHandler) ToolHandler {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		start := time.Now()
		client := clientFromRequest(ctx, request)
		log := m.logger.WithField("tool", name)

		log.Info("Tool request received", "client", client)

		if m.limiter != nil {
			if ok, err := m.limiter.Allow(client, name); !ok {
				log.Warn("Tool request rejected", "client", client, "error", err)
				m.metrics.RecordToolCall(name, "rate_limited", time.Since(start))
				return nil, fmt.Errorf("tool %s: %w", name, err)
			}
		}

		result, err := handler(ctx, request)
		elapsed := time.Since(start)
		if err != nil {
			log.Error("Tool request failed", "client", client, "error", err, "duration", elapsed)
			m.metrics.RecordToolCall(name, "error", elapsed)
			return result, err
		}

		log.Info("Tool request completed", "client", client, "duration", elapsed)
		m.metrics.RecordToolCall(name, "success", elapsed)
		return result, nil
	}
}

// WrapToolWithRetry additionally retries transient failures with doubling
// backoff. Budget rejections are terminal: retrying them would only spend
// the budget faster.
func (m *Middleware) WrapToolWithRetry(name string, handler ToolHandler, maxRetries int) ToolHandler {
	wrapped := m.WrapTool(name, handler)

	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		backoff := 100 * time.Millisecond
		var lastErr error

		for attempt := 0; attempt <= maxRetries; attempt++ {
			if attempt > 0 {
				m.logger.Debug("Retrying tool request",
					"tool", name, "attempt", attempt, "backoff", backoff)
				select {
				case <-ctx.Done():
					return nil, ctx.Err()
				case <-time.After(backoff):
				}
				if backoff < 5*time.Second {
					backoff *= 2
				}
			}

			result, err := wrapped(ctx, request)
			if err == nil {
				return result, nil
			}
			if errors.Is(err, ratelimit.ErrLimited) {
				return nil, err
			}
			lastErr = err
		}

		return nil, fmt.Errorf("tool %s failed after %d retries: %w", name, maxRetries, lastErr)
	}
}

// clientFromRequest resolves the caller identity: the context value when the
// transport set one, a clientID argument otherwise, "anonymous" failing both.
func clientFromRequest(ctx context.Context, request mcp.CallToolRequest) string {
	if id, ok := ctx.Value(clientIDContextKey{}).(string); ok && id != "" {
		return id
	}
	if args, ok := request.Params.Arguments.(map[string]interface{}); ok {
		if id, ok := args["clientID"].(string); ok && id != "" {
			return id
		}
	}
	return "anonymous"
}
