// Package system exercises the real-time clock adapter.
package system

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// TestClockNowUTC ensures the clock returns UTC timestamps.
func TestClockNowUTC(t *testing.T) {
	t.Parallel()

	clk := New()
	require.NotNil(t, clk)

	before := time.Now().UTC().Add(-time.Second)
	got := clk.Now()
	after := time.Now().UTC().Add(time.Second)

	require.Equal(t, time.UTC, got.Location())
	require.True(t, got.After(before) && got.Before(after), "expected %v between %v and %v", got, before, after)
}

// TestClockAfterFires checks the timer channel delivers once the duration passes.
func TestClockAfterFires(t *testing.T) {
	t.Parallel()

	clk := New()
	start := time.Now()
	select {
	case <-clk.After(10 * time.Millisecond):
	case <-time.After(time.Second):
		t.Fatal("timer did not fire")
	}
	require.GreaterOrEqual(t, time.Since(start), 10*time.Millisecond)
}
