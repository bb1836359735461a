package cache

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmmcquay/stockfish-mcp/internal/config"
	"github.com/dmmcquay/stockfish-mcp/internal/logging"
)

func TestLRU_BasicOperations(t *testing.T) {
	cache := NewLRU(3)

	// Test Put and Get
	cache.Put("key1", "value1")
	val, ok := cache.Get("key1")
	assert.True(t, ok)
	assert.Equal(t, "value1", val)

	// Test Get non-existent key
	val, ok = cache.Get("nonexistent")
	assert.False(t, ok)
	assert.Nil(t, val)

	// Test multiple items
	cache.Put("key2", "value2")
	cache.Put("key3", "value3")

	assert.Equal(t, 3, cache.Len())
}

func TestLRU_Eviction(t *testing.T) {
	cache := NewLRU(3)

	cache.Put("key1", "value1")
	cache.Put("key2", "value2")
	cache.Put("key3", "value3")

	// Access key1 to make it recently used
	_, _ = cache.Get("key1")

	// Add a 4th item, should evict key2 (least recently used)
	cache.Put("key4", "value4")

	_, ok := cache.Get("key2")
	assert.False(t, ok, "key2 should have been evicted")

	_, ok = cache.Get("key1")
	assert.True(t, ok, "key1 should still exist")
	_, ok = cache.Get("key3")
	assert.True(t, ok, "key3 should still exist")
	_, ok = cache.Get("key4")
	assert.True(t, ok, "key4 should exist")
}

func TestLRU_UpdateExisting(t *testing.T) {
	cache := NewLRU(3)

	cache.Put("key1", "value1")
	cache.Put("key1", "value2")

	assert.Equal(t, 1, cache.Len())
	val, ok := cache.Get("key1")
	assert.True(t, ok)
	assert.Equal(t, "value2", val)
}

func TestLRU_DeleteAndClear(t *testing.T) {
	cache := NewLRU(0)

	cache.Put("key1", "value1")
	cache.Put("key2", "value2")

	assert.True(t, cache.Delete("key1"))
	assert.False(t, cache.Delete("key1"))
	assert.Equal(t, 1, cache.Len())

	cache.Clear()
	assert.Equal(t, 0, cache.Len())
}

func TestLRU_Stats(t *testing.T) {
	cache := NewLRU(2)

	cache.Put("key1", "value1")
	_, _ = cache.Get("key1")
	_, _ = cache.Get("missing")
	cache.Put("key2", "value2")
	cache.Put("key3", "value3") // evicts key1

	stats := cache.Stats()
	assert.Equal(t, 2, stats.Items)
	assert.Equal(t, int64(1), stats.Hits)
	assert.Equal(t, int64(1), stats.Misses)
	assert.Equal(t, int64(1), stats.Evictions)
	assert.InDelta(t, 0.5, stats.HitRate, 0.001)

	cache.ResetStats()
	stats = cache.Stats()
	assert.Equal(t, int64(0), stats.Hits)
}

func TestLRU_Concurrent(t *testing.T) {
	cache := NewLRU(100)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				key := fmt.Sprintf("key-%d-%d", n, j)
				cache.Put(key, j)
				_, _ = cache.Get(key)
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 100, cache.Len())
}

func newTestManager(t *testing.T, cfg *config.CacheConfig) *Manager {
	t.Helper()
	logger := logging.NewLogger("[cache-test] ", "error")
	return NewManager(cfg, logger)
}

func TestManager_Disabled(t *testing.T) {
	mgr := newTestManager(t, &config.CacheConfig{Enabled: false})

	assert.False(t, mgr.IsEnabled())
	mgr.Put("key", "value")
	_, ok := mgr.Get("key")
	assert.False(t, ok)
}

func TestManager_PutGet(t *testing.T) {
	mgr := newTestManager(t, &config.CacheConfig{
		Enabled:    true,
		MaxEntries: 10,
		TTLSeconds: 300,
	})

	mgr.Put("key", []string{"e2e4", "d2d4"})
	val, ok := mgr.Get("key")
	require.True(t, ok)
	assert.Equal(t, []string{"e2e4", "d2d4"}, val)
}

func TestManager_TTLExpiry(t *testing.T) {
	mgr := newTestManager(t, &config.CacheConfig{
		Enabled:    true,
		MaxEntries: 10,
		TTLSeconds: 1,
	})
	mgr.ttl = 10 * time.Millisecond

	mgr.Put("key", "value")
	_, ok := mgr.Get("key")
	require.True(t, ok)

	time.Sleep(20 * time.Millisecond)
	_, ok = mgr.Get("key")
	assert.False(t, ok, "entry should have expired")
	assert.Equal(t, 0, mgr.cache.Len(), "expired entry should be removed")
}

func TestManager_CacheKey(t *testing.T) {
	mgr := newTestManager(t, &config.CacheConfig{Enabled: true, MaxEntries: 10, TTLSeconds: 60})

	base := SearchKey{
		FEN:            "rnbqkbnr/pppppppp/8/8/8/8/PPPPPPPP/RNBQKBNR w KQkq - 0 1",
		Mode:           "rating",
		Rating:         1500,
		MinThinkTimeMs: 30,
		MaxThinkTimeMs: 1000,
	}

	k1, err := mgr.CacheKey(base)
	require.NoError(t, err)

	k2, err := mgr.CacheKey(base)
	require.NoError(t, err)
	assert.Equal(t, k1, k2, "same request should produce the same key")

	changed := base
	changed.Rating = 1800
	k3, err := mgr.CacheKey(changed)
	require.NoError(t, err)
	assert.NotEqual(t, k1, k3, "different strength should produce a different key")

	booked := base
	booked.UseOpeningBook = true
	k4, err := mgr.CacheKey(booked)
	require.NoError(t, err)
	assert.NotEqual(t, k1, k4, "book flag should produce a different key")
}
