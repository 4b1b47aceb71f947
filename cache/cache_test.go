package cache

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalRateLimiter(t *testing.T) {
	limiter := NewLocalRateLimiter(1, 2)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		ok, err := limiter.Allow(ctx, "voter-a")
		require.NoError(t, err)
		assert.True(t, ok)
	}
	ok, _ := limiter.Allow(ctx, "voter-a")
	assert.False(t, ok, "burst exhausted")

	// 其他键有独立的配额
	ok, _ = limiter.Allow(ctx, "voter-b")
	assert.True(t, ok)
}

func TestLocalRateLimiterUnlimited(t *testing.T) {
	limiter := NewLocalRateLimiter(0, 0)
	for i := 0; i < 100; i++ {
		ok, err := limiter.Allow(context.Background(), "voter")
		require.NoError(t, err)
		require.True(t, ok)
	}
}

func TestLocalRateLimiterEvictsIdleKeys(t *testing.T) {
	limiter := NewLocalRateLimiter(1, 2)
	now := time.Unix(1_700_000_000, 0)
	limiter.now = func() time.Time { return now }
	ctx := context.Background()

	for i := 0; i < 100; i++ {
		ok, err := limiter.Allow(ctx, fmt.Sprintf("voter-%d", i))
		require.NoError(t, err)
		require.True(t, ok)
	}
	assert.Equal(t, 100, limiter.Len())

	now = now.Add(30 * time.Second)
	_, _ = limiter.Allow(ctx, "voter-0")
	assert.Equal(t, 100, limiter.Len(), "nothing idle long enough yet")

	now = now.Add(time.Minute)
	ok, err := limiter.Allow(ctx, "voter-1")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 1, limiter.Len(), "idle keys evicted")
}

func TestRedisBackedComponentsWithoutClient(t *testing.T) {
	ctx := context.Background()

	bloom := NewBloomFilter(nil, "accounts", 5)
	assert.ErrorIs(t, bloom.Add(ctx, "x"), ErrRedisNotAvailable)
	_, err := bloom.Contains(ctx, "x")
	assert.ErrorIs(t, err, ErrRedisNotAvailable)

	_, err = NewTokenBucketRateLimiter(nil, "votes", 1, 1).Allow(ctx, "x")
	assert.ErrorIs(t, err, ErrRedisNotAvailable)
}

func TestBloomOffsetsAreStable(t *testing.T) {
	bf := NewBloomFilter(nil, "accounts", 4)
	a := bf.offsets("candidate")
	b := bf.offsets("candidate")
	assert.Equal(t, a, b)
	assert.Len(t, a, 4)
	for _, off := range a {
		assert.GreaterOrEqual(t, off, int64(0))
		assert.Less(t, off, int64(bloomBits))
	}
}

type payload struct {
	Name string `json:"name"`
}

func TestGetOrLoadFallsBackWithoutRedis(t *testing.T) {
	hc := NewHotCache(nil, NewLocalLockService(), time.Minute, nil)

	calls := 0
	got, err := GetOrLoad(context.Background(), hc, "k", func(context.Context) (*payload, error) {
		calls++
		return &payload{Name: "Smooth"}, nil
	})
	require.NoError(t, err)
	assert.Equal(t, "Smooth", got.Name)
	assert.Equal(t, 1, calls)

	loadErr := errors.New("boom")
	_, err = GetOrLoad(context.Background(), hc, "k", func(context.Context) (*payload, error) {
		return nil, loadErr
	})
	assert.ErrorIs(t, err, loadErr)
}

func TestHotCacheExpirationJitter(t *testing.T) {
	hc := NewHotCache(nil, nil, 100*time.Second, nil)
	for i := 0; i < 50; i++ {
		exp := hc.expiration()
		assert.GreaterOrEqual(t, exp, 100*time.Second)
		assert.Less(t, exp, 110*time.Second)
	}
}
