package ws

import (
	"math"
	"sync"
	"time"
)

// TokenBucket gates outbound control messages for a single traffic class.
// Each endpoint owns its own bucket so public and user traffic are limited
// independently.
type TokenBucket struct {
	mu         sync.Mutex
	maxTokens  float64
	refillRate float64
	tokens     float64
	lastRefill time.Time

	// Injectable for deterministic tests.
	now   func() time.Time
	sleep func(time.Duration)
}

// NewTokenBucket creates a bucket holding at most maxTokens, refilled at
// refillRate tokens per second. The bucket starts full.
func NewTokenBucket(maxTokens, refillRate float64) *TokenBucket {
	b := &TokenBucket{
		maxTokens:  maxTokens,
		refillRate: refillRate,
		tokens:     maxTokens,
		now:        time.Now,
		sleep:      time.Sleep,
	}
	b.lastRefill = b.now()
	return b
}

// tryConsume refills the bucket for the time elapsed since the last refill
// and deducts one token if available. When no token is available it returns
// the exact duration until the next one. Refill and consumption share one
// critical section.
func (b *TokenBucket) tryConsume() (time.Duration, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.now()
	elapsed := now.Sub(b.lastRefill).Seconds()
	b.tokens = math.Min(b.tokens+elapsed*b.refillRate, b.maxTokens)
	b.lastRefill = now

	if b.tokens >= 1.0 {
		b.tokens -= 1.0
		return 0, true
	}

	wait := time.Duration((1.0 - b.tokens) / b.refillRate * float64(time.Second))
	return wait, false
}

// ConsumeOrWait blocks the calling goroutine until a token is available and
// deducts it. The sleep duration is computed from the current deficit, and
// the bucket is refilled again on wake rather than trusting the sleep to be
// exact. Callers that wake and find the bucket drained by a fresh caller
// simply wait again.
func (b *TokenBucket) ConsumeOrWait() {
	for {
		wait, ok := b.tryConsume()
		if ok {
			return
		}
		b.sleep(wait)
	}
}

// Tokens returns the number of tokens currently in the bucket without
// refilling. Used for stats reporting.
func (b *TokenBucket) Tokens() float64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.tokens
}
