package server

import (
	"testing"
	"time"

	"code.cloudfoundry.org/clock/fakeclock"
	"github.com/stretchr/testify/require"
)

func TestRateLimiter_Allow(t *testing.T) {
	clk := fakeclock.NewFakeClock(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	l := NewRateLimiter(2, 2, clk)

	require.True(t, l.Allow("a"))
	require.True(t, l.Allow("a"))
	require.False(t, l.Allow("a"))

	require.True(t, l.Allow("b"), "buckets are per client")

	clk.Increment(500 * time.Millisecond)
	require.True(t, l.Allow("a"))
	require.False(t, l.Allow("a"))
}

func TestRateLimiter_PrunesIdleBuckets(t *testing.T) {
	clk := fakeclock.NewFakeClock(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	l := NewRateLimiter(1, 1, clk)

	require.True(t, l.Allow("idle"))
	clk.Increment(10 * time.Minute)
	require.True(t, l.Allow("fresh"))

	l.mu.Lock()
	defer l.mu.Unlock()
	require.NotContains(t, l.buckets, "idle")
	require.Contains(t, l.buckets, "fresh")
}

func TestNewRateLimiter_MinimumBurst(t *testing.T) {
	l := NewRateLimiter(1, 0, fakeclock.NewFakeClock(time.Now()))
	require.Equal(t, 1, l.burst)
	require.True(t, l.Allow("x"))
}
