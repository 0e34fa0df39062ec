package repository

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	srv := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: srv.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return srv, client
}

func TestAttendanceCounterSeedsOnce(t *testing.T) {
	_, client := newRedis(t)
	counter := NewAttendanceCounter(client, "test:counter")
	ctx := context.Background()

	n, err := counter.Next(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, 8, n)

	n, err = counter.Next(ctx, 100)
	require.NoError(t, err)
	assert.Equal(t, 9, n)
}

func TestAttendanceCounterRaiseTo(t *testing.T) {
	_, client := newRedis(t)
	counter := NewAttendanceCounter(client, "test:counter")
	ctx := context.Background()

	_, err := counter.Next(ctx, 0)
	require.NoError(t, err)
	require.NoError(t, counter.RaiseTo(ctx, 20))
	n, err := counter.Next(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, 21, n)

	require.NoError(t, counter.RaiseTo(ctx, 5))
	n, err = counter.Next(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, 22, n)
}

func TestScanThrottleAllow(t *testing.T) {
	srv, client := newRedis(t)
	throttle := NewScanThrottle(client)
	ctx := context.Background()

	ok, err := throttle.Allow(ctx, "door-1", 2*time.Second)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = throttle.Allow(ctx, "door-1", 2*time.Second)
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = throttle.Allow(ctx, "door-2", 2*time.Second)
	require.NoError(t, err)
	assert.True(t, ok)

	srv.FastForward(3 * time.Second)
	ok, err = throttle.Allow(ctx, "door-1", 2*time.Second)
	require.NoError(t, err)
	assert.True(t, ok)
}
