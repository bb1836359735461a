package shutdown

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/dmmcquay/stockfish-mcp/internal/logging"
)

func newTestManager() *Manager {
	return NewManager(logging.NewLogger("[test] ", "error"))
}

func TestShutdown_ReverseOrder(t *testing.T) {
	manager := newTestManager()

	var mu sync.Mutex
	var order []string
	record := func(name string) func(context.Context) error {
		return func(ctx context.Context) error {
			mu.Lock()
			order = append(order, name)
			mu.Unlock()
			return nil
		}
	}

	// The engine must outlive the HTTP surface that fronts it.
	manager.Register("engine", record("engine"))
	manager.Register("http", record("http"))

	manager.Shutdown(5 * time.Second)
	manager.WaitForShutdown()

	assert.Equal(t, []string{"http", "engine"}, order)
}

func TestShutdown_HookErrorDoesNotStopOthers(t *testing.T) {
	manager := newTestManager()
	var engineClosed atomic.Bool

	manager.Register("engine", func(ctx context.Context) error {
		engineClosed.Store(true)
		return nil
	})
	manager.Register("http", func(ctx context.Context) error {
		return errors.New("listener already gone")
	})

	manager.Shutdown(5 * time.Second)
	manager.WaitForShutdown()

	assert.True(t, engineClosed.Load(), "engine hook must run despite http failure")
}

func TestShutdown_Timeout(t *testing.T) {
	manager := newTestManager()

	manager.Register("stuck", func(ctx context.Context) error {
		// Ignores its context on purpose.
		time.Sleep(2 * time.Second)
		return nil
	})

	start := time.Now()
	manager.Shutdown(100 * time.Millisecond)
	manager.WaitForShutdown()

	assert.Less(t, time.Since(start), 500*time.Millisecond,
		"a hook ignoring its context must not hold up teardown")
}

func TestShutdown_TimeoutSkipsRemaining(t *testing.T) {
	manager := newTestManager()
	var lateRan atomic.Bool

	manager.Register("late", func(ctx context.Context) error {
		lateRan.Store(true)
		return nil
	})
	manager.Register("slow", func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})

	manager.Shutdown(50 * time.Millisecond)
	manager.WaitForShutdown()

	assert.False(t, lateRan.Load(), "hooks after the window closes are skipped")
}

func TestShutdown_RunsOnce(t *testing.T) {
	manager := newTestManager()
	var calls atomic.Int32

	manager.Register("engine", func(ctx context.Context) error {
		calls.Add(1)
		time.Sleep(50 * time.Millisecond)
		return nil
	})

	for i := 0; i < 5; i++ {
		go manager.Shutdown(5 * time.Second)
	}
	manager.WaitForShutdown()

	assert.Equal(t, int32(1), calls.Load())
}

func TestShutdown_DoneChannel(t *testing.T) {
	manager := newTestManager()
	manager.Register("engine", func(ctx context.Context) error { return nil })

	select {
	case <-manager.Done():
		t.Fatal("done channel closed before shutdown")
	default:
	}

	manager.Shutdown(time.Second)

	select {
	case <-manager.Done():
	case <-time.After(time.Second):
		t.Fatal("done channel not closed after shutdown")
	}
}
