// Package shutdown coordinates teardown of the server's components. Hooks
// run in reverse registration order, so the engine process (registered
// first) outlives the surfaces built on top of it.
package shutdown

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/dmmcquay/stockfish-mcp/internal/logging"
)

type hook struct {
	name string
	fn   func(context.Context) error
}

// Manager runs registered teardown hooks exactly once, LIFO, inside one
// shared timeout window.
type Manager struct {
	logger logging.ContextLogger

	mu    sync.Mutex
	hooks []hook

	once sync.Once
	done chan struct{}
}

// NewManager creates a shutdown manager.
func NewManager(logger logging.ContextLogger) *Manager {
	return &Manager{
		logger: logger,
		done:   make(chan struct{}),
	}
}

// Register adds a teardown hook. The engine process should be registered
// before anything that depends on it; hooks run in reverse order.
func (m *Manager) Register(name string, fn func(context.Context) error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.hooks = append(m.hooks, hook{name: name, fn: fn})
}

// HandleSignals triggers Shutdown on SIGINT or SIGTERM.
func (m *Manager) HandleSignals() {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		m.logger.Info("Received shutdown signal", "signal", sig)
		m.Shutdown(30 * time.Second)
	}()
}

// Shutdown runs every registered hook in reverse registration order, each
// bounded by whatever remains of the timeout window. Later calls are no-ops.
func (m *Manager) Shutdown(timeout time.Duration) {
	m.once.Do(func() {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		defer close(m.done)

		m.mu.Lock()
		hooks := make([]hook, len(m.hooks))
		copy(hooks, m.hooks)
		m.mu.Unlock()

		m.logger.Info("Shutting down", "components", len(hooks), "timeout", timeout)

		failed := 0
		for i := len(hooks) - 1; i >= 0; i-- {
			h := hooks[i]
			if ctx.Err() != nil {
				m.logger.Error("Shutdown window exhausted", "skipped", h.name)
				failed++
				continue
			}
			start := time.Now()
			if err := runHook(ctx, h); err != nil {
				failed++
				m.logger.Error("Component teardown failed",
					"component", h.name, "error", err, "elapsed", time.Since(start))
			} else {
				m.logger.Info("Component stopped",
					"component", h.name, "elapsed", time.Since(start))
			}
		}

		if failed > 0 {
			m.logger.Error("Shutdown finished with failures", "failed", failed)
		} else {
			m.logger.Info("Shutdown complete")
		}
	})
}

// runHook bounds a single hook so one that ignores its context cannot wedge
// the whole teardown.
func runHook(ctx context.Context, h hook) error {
	errCh := make(chan error, 1)
	go func() { errCh <- h.fn(ctx) }()
	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Done returns a channel closed once Shutdown has finished.
func (m *Manager) Done() <-chan struct{} {
	return m.done
}

// WaitForShutdown blocks until Shutdown has finished.
func (m *Manager) WaitForShutdown() {
	<-m.done
}
