package controller

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLockTablePerConfigExclusion(t *testing.T) {
	locks := newLockTable()

	require.True(t, locks.TryLock("a"))
	require.False(t, locks.TryLock("a"))
	require.True(t, locks.TryLock("b"), "locks are per config, not global")

	locks.Unlock("a")
	require.True(t, locks.TryLock("a"))
}

func TestLockTableUnlockUnheldIsHarmless(t *testing.T) {
	locks := newLockTable()
	locks.Unlock("never-held")
	require.True(t, locks.TryLock("never-held"))
}
