package ratelimit

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenBucket(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	bucket := NewTokenBucket(client, 2, 1, time.Minute)

	now := time.Unix(1_700_000_000, 0)
	bucket.now = func() time.Time { return now }

	allowed, err := bucket.Allow(ctx, Key("u1"))
	require.NoError(t, err)
	assert.True(t, allowed, "first token")
	allowed, _ = bucket.Allow(ctx, Key("u1"))
	assert.True(t, allowed, "second token")
	allowed, _ = bucket.Allow(ctx, Key("u1"))
	assert.False(t, allowed, "bucket drained")

	allowed, _ = bucket.Allow(ctx, Key("u2"))
	assert.True(t, allowed, "buckets are per key")

	// The script takes its clock from the caller, so advancing now refills.
	now = now.Add(1500 * time.Millisecond)
	allowed, _ = bucket.Allow(ctx, Key("u1"))
	assert.True(t, allowed, "refilled after 1.5s at 1 token/s")
}

func TestTokenBucketRedisDown(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	bucket := NewTokenBucket(client, 2, 1, time.Minute)
	mr.Close()

	_, err = bucket.Allow(context.Background(), Key("u1"))
	assert.Error(t, err)
}

func TestLocal(t *testing.T) {
	ctx := context.Background()
	l := NewLocal(2, 0.001)

	a, _ := l.Allow(ctx, "u1")
	b, _ := l.Allow(ctx, "u1")
	c, _ := l.Allow(ctx, "u1")
	assert.True(t, a)
	assert.True(t, b)
	assert.False(t, c)

	other, _ := l.Allow(ctx, "u2")
	assert.True(t, other)
}
