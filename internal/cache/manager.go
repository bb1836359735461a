package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/dmmcquay/stockfish-mcp/internal/config"
	"github.com/dmmcquay/stockfish-mcp/internal/logging"
)

// Manager handles caching of move analysis results.
type Manager struct {
	cache   *LRU
	logger  logging.ContextLogger
	enabled bool
	ttl     time.Duration
}

// SearchKey identifies an analysis request. Two requests with the same key
// are guaranteed to produce the same ranked move list from a deterministic
// engine configuration.
type SearchKey struct {
	FEN            string `json:"fen"`
	Mode           string `json:"mode"`
	Rating         int    `json:"rating,omitempty"`
	SkillLevel     int    `json:"skillLevel,omitempty"`
	Contempt       int    `json:"contempt,omitempty"`
	MaxDepth       int    `json:"maxDepth,omitempty"`
	MinThinkTimeMs int    `json:"minThinkTimeMs"`
	MaxThinkTimeMs int    `json:"maxThinkTimeMs"`
	UseOpeningBook bool   `json:"useOpeningBook"`
}

// NewManager creates a new cache manager.
func NewManager(cfg *config.CacheConfig, logger logging.ContextLogger) *Manager {
	if cfg == nil || !cfg.Enabled {
		return &Manager{
			enabled: false,
			logger:  logger,
		}
	}

	return &Manager{
		cache:   NewLRU(cfg.MaxEntries),
		logger:  logger,
		enabled: true,
		ttl:     time.Duration(cfg.TTLSeconds) * time.Second,
	}
}

// CacheKey derives a stable key for a search request.
func (m *Manager) CacheKey(key SearchKey) (string, error) {
	data, err := json.Marshal(key)
	if err != nil {
		return "", fmt.Errorf("failed to marshal cache key: %w", err)
	}

	hash := sha256.Sum256(data)
	return hex.EncodeToString(hash[:]), nil
}

// Get retrieves a cached analysis result.
func (m *Manager) Get(key string) (interface{}, bool) {
	if !m.enabled || m.cache == nil {
		return nil, false
	}

	val, ok := m.cache.Get(key)
	if !ok {
		return nil, false
	}

	entry, ok := val.(*timedEntry)
	if !ok {
		return nil, false
	}

	if m.ttl > 0 && time.Since(entry.timestamp) > m.ttl {
		m.cache.Delete(key)
		m.logger.Debug("Cache entry expired", "key", key, "age", time.Since(entry.timestamp))
		return nil, false
	}
	return entry.value, true
}

// Put stores an analysis result in the cache.
func (m *Manager) Put(key string, value interface{}) {
	if !m.enabled || m.cache == nil {
		return
	}

	m.cache.Put(key, &timedEntry{
		value:     value,
		timestamp: time.Now(),
	})
	m.logger.Debug("Cached analysis result", "key", key)
}

// Stats returns cache statistics.
func (m *Manager) Stats() Stats {
	if !m.enabled || m.cache == nil {
		return Stats{}
	}
	return m.cache.Stats()
}

// Clear clears the cache.
func (m *Manager) Clear() {
	if m.cache != nil {
		m.cache.Clear()
	}
}

// IsEnabled returns whether caching is enabled.
func (m *Manager) IsEnabled() bool {
	return m.enabled
}

// timedEntry wraps a value with a timestamp for TTL support.
type timedEntry struct {
	value     interface{}
	timestamp time.Time
}
