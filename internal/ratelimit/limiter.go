// Package ratelimit enforces nested call budgets on the MCP tool surface: a
// server-wide budget, per-tool budgets for the tools that pin the engine,
// and a per-client copy of both.
package ratelimit

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dmmcquay/stockfish-mcp/internal/config"
	"github.com/dmmcquay/stockfish-mcp/internal/logging"
)

// ErrLimited is wrapped by every budget rejection.
var ErrLimited = errors.New("rate limited")

// defaultToolBudgets applies when the config names no per-tool budgets, in
// calls per minute. The generate tools hold the engine for a full search per
// call; book loads rewrite engine state. Index and status reads are nearly
// free and stay unbudgeted.
var defaultToolBudgets = map[string]int{
	"generateMoves":          30,
	"generateMovesWithSkill": 30,
	"loadOpeningBook":        6,
}

const (
	janitorInterval = 5 * time.Minute
	clientIdleLimit = 30 * time.Minute
)

type clientBuckets struct {
	global   *Bucket
	tools    map[string]*Bucket
	lastSeen time.Time
}

// Limiter checks tool calls against the configured budgets. A nil Limiter
// allows everything.
type Limiter struct {
	logger  logging.ContextLogger
	perMin  int
	burst   int
	budgets map[string]int

	global *Bucket
	tools  map[string]*Bucket

	mu      sync.Mutex
	clients map[string]*clientBuckets

	stop     chan struct{}
	stopOnce sync.Once
}

// NewLimiter creates a limiter from configuration, or nil when rate limiting
// is disabled.
func NewLimiter(cfg *config.RateLimitConfig, logger logging.ContextLogger) *Limiter {
	if cfg == nil || !cfg.Enabled {
		return nil
	}

	budgets := cfg.PerToolLimits
	if len(budgets) == 0 {
		budgets = defaultToolBudgets
	}

	l := &Limiter{
		logger:  logger,
		perMin:  cfg.RequestsPerMin,
		burst:   cfg.BurstSize,
		budgets: budgets,
		global:  NewBucket(cfg.BurstSize, cfg.RequestsPerMin),
		tools:   make(map[string]*Bucket, len(budgets)),
		clients: make(map[string]*clientBuckets),
		stop:    make(chan struct{}),
	}
	for tool, perMin := range budgets {
		l.tools[tool] = NewBucket(l.toolBurst(perMin), perMin)
	}

	go l.evictIdleClients()
	return l
}

// toolBurst scales the global burst down to a tool's share of the budget.
func (l *Limiter) toolBurst(perMin int) int {
	if l.perMin <= 0 {
		return 1
	}
	b := l.burst * perMin / l.perMin
	if b < 1 {
		b = 1
	}
	return b
}

// Allow reports whether one call of tool by clientID fits the budgets. On
// rejection every token already taken is refunded, so a blocked caller does
// not drain the shared budgets for everyone else.
func (l *Limiter) Allow(clientID, tool string) (bool, error) {
	if l == nil {
		return true, nil
	}

	if !l.global.TryTake() {
		l.logger.Warn("Global rate limit exceeded", "client", clientID, "tool", tool)
		return false, fmt.Errorf("%w: server budget exhausted", ErrLimited)
	}

	toolBucket := l.tools[tool]
	if toolBucket != nil && !toolBucket.TryTake() {
		l.global.Refund()
		l.logger.Warn("Tool rate limit exceeded", "client", clientID, "tool", tool)
		return false, fmt.Errorf("%w: budget exhausted for tool %s", ErrLimited, tool)
	}

	if clientID == "" {
		return true, nil
	}
	if ok, err := l.allowClient(clientID, tool); !ok {
		l.global.Refund()
		if toolBucket != nil {
			toolBucket.Refund()
		}
		return false, err
	}
	return true, nil
}

func (l *Limiter) allowClient(clientID, tool string) (bool, error) {
	l.mu.Lock()
	c, ok := l.clients[clientID]
	if !ok {
		c = &clientBuckets{
			global: NewBucket(l.burst, l.perMin),
			tools:  make(map[string]*Bucket),
		}
		l.clients[clientID] = c
	}
	c.lastSeen = time.Now()

	var toolBucket *Bucket
	if perMin, budgeted := l.budgets[tool]; budgeted {
		toolBucket = c.tools[tool]
		if toolBucket == nil {
			toolBucket = NewBucket(l.toolBurst(perMin), perMin)
			c.tools[tool] = toolBucket
		}
	}
	global := c.global
	l.mu.Unlock()

	if !global.TryTake() {
		l.logger.Warn("Client rate limit exceeded", "client", clientID, "tool", tool)
		return false, fmt.Errorf("%w: client %s over budget", ErrLimited, clientID)
	}
	if toolBucket != nil && !toolBucket.TryTake() {
		global.Refund()
		l.logger.Warn("Client tool rate limit exceeded", "client", clientID, "tool", tool)
		return false, fmt.Errorf("%w: client %s over budget for tool %s", ErrLimited, clientID, tool)
	}
	return true, nil
}

// Reset refills every bucket.
func (l *Limiter) Reset() {
	if l == nil {
		return
	}
	l.global.Refill()
	for _, b := range l.tools {
		b.Refill()
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, c := range l.clients {
		c.global.Refill()
		for _, b := range c.tools {
			b.Refill()
		}
	}
}

// Status reports the budget state for monitoring.
func (l *Limiter) Status() map[string]interface{} {
	if l == nil {
		return map[string]interface{}{"enabled": false}
	}

	l.mu.Lock()
	activeClients := len(l.clients)
	l.mu.Unlock()

	tools := make(map[string]interface{}, len(l.tools))
	for tool, b := range l.tools {
		tools[tool] = map[string]interface{}{
			"budget": l.budgets[tool],
			"tokens": b.Level(),
		}
	}
	return map[string]interface{}{
		"enabled":        true,
		"requestsPerMin": l.perMin,
		"burstSize":      l.burst,
		"globalTokens":   l.global.Level(),
		"activeClients":  activeClients,
		"toolBudgets":    tools,
	}
}

// Close stops the idle-client janitor.
func (l *Limiter) Close() error {
	if l == nil {
		return nil
	}
	l.stopOnce.Do(func() { close(l.stop) })
	return nil
}

// evictIdleClients drops budget tracking for clients not seen within
// clientIdleLimit.
func (l *Limiter) evictIdleClients() {
	ticker := time.NewTicker(janitorInterval)
	defer ticker.Stop()

	for {
		select {
		case <-l.stop:
			return
		case now := <-ticker.C:
			l.mu.Lock()
			for id, c := range l.clients {
				if now.Sub(c.lastSeen) > clientIdleLimit {
					delete(l.clients, id)
					l.logger.Debug("Dropped idle client budget", "client", id)
				}
			}
			l.mu.Unlock()
		}
	}
}
