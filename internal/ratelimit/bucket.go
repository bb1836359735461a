package ratelimit

import (
	"math"
	"sync"
	"time"
)

// Bucket is a token bucket whose level is settled lazily from the time since
// the last operation, so an idle bucket costs nothing between requests.
type Bucket struct {
	mu    sync.Mutex
	burst float64
	rate  float64 // tokens per second
	level float64
	asOf  time.Time
}

// NewBucket creates a full bucket sustaining perMinute takes with the given
// burst headroom.
func NewBucket(burst, perMinute int) *Bucket {
	if burst < 1 {
		burst = 1
	}
	return &Bucket{
		burst: float64(burst),
		rate:  float64(perMinute) / 60.0,
		level: float64(burst),
		asOf:  time.Now(),
	}
}

// TryTake consumes one token if available.
func (b *Bucket) TryTake() bool {
	return b.tryTakeAt(time.Now())
}

func (b *Bucket) tryTakeAt(now time.Time) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.settle(now)
	if b.level < 1 {
		return false
	}
	b.level--
	return true
}

// Refund returns one token, used when a compound check rejects a request
// further down after this bucket already charged it.
func (b *Bucket) Refund() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.settle(time.Now())
	b.level = math.Min(b.burst, b.level+1)
}

// Level reports the tokens currently available.
func (b *Bucket) Level() float64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.settle(time.Now())
	return b.level
}

// Refill restores the bucket to burst capacity.
func (b *Bucket) Refill() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.level = b.burst
	b.asOf = time.Now()
}

func (b *Bucket) settle(now time.Time) {
	// A now before asOf is left alone so time is never counted twice.
	if elapsed := now.Sub(b.asOf); elapsed > 0 {
		b.level = math.Min(b.burst, b.level+elapsed.Seconds()*b.rate)
		b.asOf = now
	}
}
