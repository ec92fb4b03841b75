package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalLockerExcludesSecondHolder(t *testing.T) {
	locker := NewLocalLocker()
	ctx := context.Background()

	release, ok, err := locker.TryLock(ctx, "payout-sweep", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	_, ok, err = locker.TryLock(ctx, "payout-sweep", time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)

	_, ok, _ = locker.TryLock(ctx, "other", time.Minute)
	assert.True(t, ok)

	require.NoError(t, release(ctx))
	_, ok, _ = locker.TryLock(ctx, "payout-sweep", time.Minute)
	assert.True(t, ok)
}

func TestLocalLockerExpires(t *testing.T) {
	locker := NewLocalLocker()
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	locker.now = func() time.Time { return now }
	ctx := context.Background()

	staleRelease, ok, _ := locker.TryLock(ctx, "payout-sweep", time.Minute)
	require.True(t, ok)

	now = now.Add(2 * time.Minute)
	_, ok, _ = locker.TryLock(ctx, "payout-sweep", time.Minute)
	require.True(t, ok)

	// A holder whose lease ran out must not free the new holder's lock.
	require.NoError(t, staleRelease(ctx))
	_, ok, _ = locker.TryLock(ctx, "payout-sweep", time.Minute)
	assert.False(t, ok)
}
