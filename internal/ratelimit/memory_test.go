package ratelimit

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

var strict = Policy{Name: "strict", Window: 15 * time.Minute, Max: 5, Message: "slow down"}

func TestMemoryAdmitsExactlyMaxUnderConcurrency(t *testing.T) {
	l := NewMemory()
	const burst = 50

	var allowed, rejected atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < burst; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			d, err := l.Allow(context.Background(), strict, IPKey("10.0.0.1"))
			assert.NoError(t, err)
			if d.Allowed {
				allowed.Add(1)
			} else {
				rejected.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(strict.Max), allowed.Load())
	assert.Equal(t, int32(burst-strict.Max), rejected.Load())
}

func TestMemorySixthRequestRejectedWithRetryAfter(t *testing.T) {
	clock := newFakeClock()
	l := NewMemory(WithClock(clock.Now))
	ctx := context.Background()

	for i := 1; i <= 5; i++ {
		d, err := l.Allow(ctx, strict, "k")
		require.NoError(t, err)
		assert.True(t, d.Allowed)
		assert.Equal(t, 5-i, d.Remaining)
	}

	clock.Advance(10*time.Second + 300*time.Millisecond)
	d, err := l.Allow(ctx, strict, "k")
	require.NoError(t, err)
	assert.False(t, d.Allowed)
	assert.Equal(t, 0, d.Remaining)
	// 15m - 10.3s = 889.7s, rounded up.
	assert.Equal(t, 890, d.RetryAfterSeconds())
}

func TestMemoryWindowRollover(t *testing.T) {
	clock := newFakeClock()
	l := NewMemory(WithClock(clock.Now))
	ctx := context.Background()

	for i := 0; i < 7; i++ {
		_, _ = l.Allow(ctx, strict, "k")
	}

	// Exactly at resetAt the window is still current.
	clock.Advance(strict.Window)
	d, _ := l.Allow(ctx, strict, "k")
	assert.False(t, d.Allowed)

	clock.Advance(time.Millisecond)
	d, _ = l.Allow(ctx, strict, "k")
	assert.True(t, d.Allowed)
	assert.Equal(t, strict.Max-1, d.Remaining)
	assert.Equal(t, clock.Now().Add(strict.Window), d.ResetAt)
}

func TestMemoryKeysAndPoliciesAreIndependent(t *testing.T) {
	l := NewMemory()
	ctx := context.Background()
	one := Policy{Name: "one", Window: time.Minute, Max: 1}
	other := Policy{Name: "other", Window: time.Minute, Max: 1}

	d, _ := l.Allow(ctx, one, "a")
	assert.True(t, d.Allowed)
	d, _ = l.Allow(ctx, one, "a")
	assert.False(t, d.Allowed)

	d, _ = l.Allow(ctx, one, "b")
	assert.True(t, d.Allowed)
	d, _ = l.Allow(ctx, other, "a")
	assert.True(t, d.Allowed)
}

func TestMemorySweepDropsOnlyExpired(t *testing.T) {
	clock := newFakeClock()
	l := NewMemory(WithClock(clock.Now))
	ctx := context.Background()

	_, _ = l.Allow(ctx, Policy{Name: "short", Window: time.Second, Max: 1}, "a")
	_, _ = l.Allow(ctx, Policy{Name: "long", Window: time.Hour, Max: 1}, "a")
	require.Equal(t, 2, l.Len())

	clock.Advance(2 * time.Second)
	assert.Equal(t, 1, l.Sweep())
	assert.Equal(t, 1, l.Len())
}

func TestMemoryJanitorStopsOnClose(t *testing.T) {
	l := NewMemory(WithSweepInterval(time.Millisecond))
	l.Start()
	_, _ = l.Allow(context.Background(), Policy{Name: "p", Window: time.Nanosecond, Max: 1}, "a")

	assert.Eventually(t, func() bool { return l.Len() == 0 }, time.Second, 5*time.Millisecond)
	assert.NoError(t, l.Close())
	assert.NoError(t, l.Close())
}

func TestKeyHelpers(t *testing.T) {
	assert.Equal(t, "ip:1.2.3.4", IPKey("1.2.3.4"))
	assert.Equal(t, "client:1.2.3.4|curl/8", ClientKey("1.2.3.4", "curl/8"))
	assert.Equal(t, "client:1.2.3.4|unknown", ClientKey("1.2.3.4", ""))
	assert.Equal(t, "email:jane@example.com", EmailKey("  Jane@Example.COM "))
}

func TestDefaultPoliciesRelaxGeneralOutsideProduction(t *testing.T) {
	assert.Equal(t, 100, DefaultPolicies(true).General.Max)
	assert.Equal(t, 1000, DefaultPolicies(false).General.Max)
	assert.Equal(t, 5, DefaultPolicies(true).Strict.Max)
}
