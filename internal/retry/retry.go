// Package retry provides bounded exponential backoff, used to start the
// engine process when the binary may be briefly unavailable.
package retry

import (
	"context"
	"fmt"
	"math"
	"math/rand/v2"
	"time"

	"github.com/dmmcquay/stockfish-mcp/internal/logging"
)

// Policy describes the backoff schedule for one retried operation.
type Policy struct {
	// Attempts caps the total tries; 0 retries until the context ends.
	Attempts int
	// Base is the wait after the first failure.
	Base time.Duration
	// Cap bounds any single wait; 0 means uncapped.
	Cap time.Duration
	// Factor grows the wait between attempts.
	Factor float64
	// Jitter randomizes each wait by the given fraction (0..1).
	Jitter float64
}

// EngineStartPolicy is the schedule for launching the engine subprocess.
func EngineStartPolicy() Policy {
	return Policy{
		Attempts: 5,
		Base:     500 * time.Millisecond,
		Cap:      10 * time.Second,
		Factor:   2.0,
		Jitter:   0.2,
	}
}

// Do runs op until it succeeds, the attempt budget is spent, or the context
// ends. The returned error wraps the last failure.
func (p Policy) Do(ctx context.Context, logger logging.ContextLogger, name string, op func(context.Context) error) error {
	var lastErr error
	for attempt := 1; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		lastErr = op(ctx)
		if lastErr == nil {
			if attempt > 1 {
				logger.Info("Operation recovered", "op", name, "attempt", attempt)
			}
			return nil
		}

		if p.Attempts > 0 && attempt >= p.Attempts {
			return fmt.Errorf("%s failed after %d attempts: %w", name, attempt, lastErr)
		}

		d := p.wait(attempt)
		logger.Warn("Operation failed, backing off",
			"op", name, "attempt", attempt, "wait", d, "error", lastErr)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(d):
		}
	}
}

// wait computes the backoff before the next try after the given attempt.
func (p Policy) wait(attempt int) time.Duration {
	d := float64(p.Base) * math.Pow(p.Factor, float64(attempt-1))
	if p.Cap > 0 && d > float64(p.Cap) {
		d = float64(p.Cap)
	}
	if p.Jitter > 0 {
		d += d * p.Jitter * (2*rand.Float64() - 1)
	}
	if d < 0 {
		d = 0
	}
	return time.Duration(d)
}
