package presence

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTracker(t *testing.T) (*miniredis.Miniredis, *Tracker) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return mr, NewTracker(client, 90*time.Second)
}

func TestTouchMarksDeviceOnline(t *testing.T) {
	_, tracker := setupTracker(t)
	ctx := context.Background()

	online, err := tracker.IsOnline(ctx, "dev-1")
	require.NoError(t, err)
	assert.False(t, online)

	require.NoError(t, tracker.Touch(ctx, "dev-1"))

	online, err = tracker.IsOnline(ctx, "dev-1")
	require.NoError(t, err)
	assert.True(t, online)
}

func TestPresenceExpires(t *testing.T) {
	mr, tracker := setupTracker(t)
	ctx := context.Background()

	require.NoError(t, tracker.Touch(ctx, "dev-1"))
	mr.FastForward(91 * time.Second)

	online, err := tracker.IsOnline(ctx, "dev-1")
	require.NoError(t, err)
	assert.False(t, online)
}

func TestLastSeen(t *testing.T) {
	_, tracker := setupTracker(t)
	ctx := context.Background()

	seen, err := tracker.LastSeen(ctx, "dev-1")
	require.NoError(t, err)
	assert.True(t, seen.IsZero())

	before := time.Now().UTC().Add(-time.Second)
	require.NoError(t, tracker.Touch(ctx, "dev-1"))

	seen, err = tracker.LastSeen(ctx, "dev-1")
	require.NoError(t, err)
	assert.True(t, seen.After(before))
}

func TestMarkOffline(t *testing.T) {
	_, tracker := setupTracker(t)
	ctx := context.Background()

	require.NoError(t, tracker.Touch(ctx, "dev-1"))
	require.NoError(t, tracker.MarkOffline(ctx, "dev-1"))

	online, err := tracker.IsOnline(ctx, "dev-1")
	require.NoError(t, err)
	assert.False(t, online)
}
