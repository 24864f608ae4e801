package ratelimit

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLimiterAllow(t *testing.T) {
	t.Parallel()

	// 1 RPS with burst 2: two immediate calls pass, the third is refused.
	l := New(Config{RPS: 1, Burst: 2})
	require.True(t, l.Allow("10.0.0.1"))
	require.True(t, l.Allow("10.0.0.1"))
	require.False(t, l.Allow("10.0.0.1"))
}

func TestLimiterDifferentKeys(t *testing.T) {
	t.Parallel()

	l := New(Config{RPS: 1, Burst: 1})
	require.True(t, l.Allow("a"))
	require.False(t, l.Allow("a"))

	// Key b should not be blocked by a.
	require.True(t, l.Allow("b"))
	require.Equal(t, 2, l.Keys())
}

func TestLimiterDisabled(t *testing.T) {
	t.Parallel()

	l := New(Config{})
	for i := 0; i < 100; i++ {
		require.True(t, l.Allow(""))
	}
	require.Equal(t, 1, l.Keys())
}
