package ws

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeClock drives a TokenBucket deterministically. Sleeps advance the clock
// instead of blocking.
type fakeClock struct {
	mu  sync.Mutex
	t   time.Time
	log []time.Duration
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Unix(1_700_000_000, 0)}
}

func (c *fakeClock) now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) sleep(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
	c.log = append(c.log, d)
}

func (c *fakeClock) advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

func newTestBucket(maxTokens, refillRate float64) (*TokenBucket, *fakeClock) {
	clock := newFakeClock()
	b := NewTokenBucket(maxTokens, refillRate)
	b.now = clock.now
	b.sleep = clock.sleep
	b.lastRefill = clock.now()
	return b, clock
}

func TestTokenBucketBurstBound(t *testing.T) {
	b, _ := newTestBucket(3, 1)

	// A full bucket allows exactly maxTokens immediate consumptions.
	for i := 0; i < 3; i++ {
		wait, ok := b.tryConsume()
		require.True(t, ok, "consumption %d should be immediate", i)
		assert.Zero(t, wait)
	}

	wait, ok := b.tryConsume()
	assert.False(t, ok)
	assert.Equal(t, time.Second, wait)
}

func TestTokenBucketExactWait(t *testing.T) {
	b, clock := newTestBucket(1, 2) // 2 tokens/sec

	_, ok := b.tryConsume()
	require.True(t, ok)

	// Empty bucket: next token in (1.0 - 0) / 2 = 500ms.
	wait, ok := b.tryConsume()
	assert.False(t, ok)
	assert.Equal(t, 500*time.Millisecond, wait)

	// Partial refill: after 250ms there are 0.5 tokens, so 250ms remain.
	clock.advance(250 * time.Millisecond)
	wait, ok = b.tryConsume()
	assert.False(t, ok)
	assert.Equal(t, 250*time.Millisecond, wait)
}

func TestTokenBucketConsumeOrWaitRefillsOnWake(t *testing.T) {
	b, clock := newTestBucket(1, 4) // 250ms per token

	b.ConsumeOrWait()
	b.ConsumeOrWait() // must sleep once, then succeed

	require.Len(t, clock.log, 1)
	assert.Equal(t, 250*time.Millisecond, clock.log[0])
}

func TestTokenBucketRefillCappedAtMax(t *testing.T) {
	b, clock := newTestBucket(2, 10)

	clock.advance(time.Hour)

	// Despite an hour of refill only maxTokens consumptions are immediate.
	count := 0
	for {
		_, ok := b.tryConsume()
		if !ok {
			break
		}
		count++
	}
	assert.Equal(t, 2, count)
}

func TestTokenBucketLongRunRate(t *testing.T) {
	b, clock := newTestBucket(5, 10)

	// Consume greedily over 10 simulated seconds in 100ms steps.
	consumed := 0
	for i := 0; i < 100; i++ {
		clock.advance(100 * time.Millisecond)
		for {
			_, ok := b.tryConsume()
			if !ok {
				break
			}
			consumed++
		}
	}

	// 5 burst tokens plus 10/sec over 10s.
	assert.InDelta(t, 105, consumed, 2)
}

func TestTokenBucketConcurrentConsume(t *testing.T) {
	// Real clock, generous rate: just verifies no token is double-spent and
	// nothing deadlocks under concurrent callers.
	b := NewTokenBucket(4, 1000)

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			b.ConsumeOrWait()
		}()
	}
	wg.Wait()

	assert.LessOrEqual(t, b.Tokens(), 4.0)
}
