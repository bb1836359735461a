package ratelimit

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestBucket_StartsFull(t *testing.T) {
	b := NewBucket(5, 60)
	assert.InDelta(t, 5.0, b.Level(), 0.01)

	for i := 0; i < 5; i++ {
		assert.True(t, b.TryTake(), "take %d should fit the burst", i)
	}
}

func TestBucket_RejectsWhenEmpty(t *testing.T) {
	b := NewBucket(2, 60)
	now := time.Now()

	assert.True(t, b.tryTakeAt(now))
	assert.True(t, b.tryTakeAt(now))
	assert.False(t, b.tryTakeAt(now), "burst spent, same instant must reject")
}

func TestBucket_SettlesOverTime(t *testing.T) {
	b := NewBucket(2, 60) // one token per second
	now := time.Now()

	assert.True(t, b.tryTakeAt(now))
	assert.True(t, b.tryTakeAt(now))
	assert.False(t, b.tryTakeAt(now))

	// One second later one token has accrued.
	assert.True(t, b.tryTakeAt(now.Add(time.Second)))
	assert.False(t, b.tryTakeAt(now.Add(time.Second)))
}

func TestBucket_LevelCapsAtBurst(t *testing.T) {
	b := NewBucket(3, 6000)
	now := time.Now()

	assert.True(t, b.tryTakeAt(now))
	// Long idle period; the level must not exceed the burst.
	assert.True(t, b.tryTakeAt(now.Add(time.Hour)))
	assert.InDelta(t, 2.0, b.Level(), 0.01)
}

func TestBucket_Refund(t *testing.T) {
	b := NewBucket(2, 60)
	now := time.Now()

	assert.True(t, b.tryTakeAt(now))
	assert.True(t, b.tryTakeAt(now))
	b.Refund()
	assert.True(t, b.tryTakeAt(now.Add(time.Millisecond)))
}

func TestBucket_RefundNeverOverfills(t *testing.T) {
	b := NewBucket(2, 60)
	b.Refund()
	b.Refund()
	assert.InDelta(t, 2.0, b.Level(), 0.01)
}

func TestBucket_Refill(t *testing.T) {
	b := NewBucket(3, 60)
	now := time.Now()
	for i := 0; i < 3; i++ {
		assert.True(t, b.tryTakeAt(now))
	}

	b.Refill()
	assert.InDelta(t, 3.0, b.Level(), 0.01)
}

func TestBucket_MinimumBurst(t *testing.T) {
	b := NewBucket(0, 60)
	assert.True(t, b.TryTake(), "burst is clamped to at least one token")
}

func TestBucket_Concurrent(t *testing.T) {
	b := NewBucket(100, 0) // no refill, fixed pool
	var wg sync.WaitGroup
	var mu sync.Mutex
	taken := 0

	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 10; j++ {
				if b.TryTake() {
					mu.Lock()
					taken++
					mu.Unlock()
				}
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 100, taken, "exactly the pooled tokens may be taken")
}
