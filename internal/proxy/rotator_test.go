package proxy

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingSource struct {
	calls  atomic.Int32
	values []string
	err    error
}

func (s *countingSource) Next(ctx context.Context) (string, error) {
	n := int(s.calls.Add(1)) - 1
	if s.err != nil {
		return "", s.err
	}
	if len(s.values) == 0 {
		return "", nil
	}
	return s.values[n%len(s.values)], nil
}

type brokenCache struct{}

func (brokenCache) Get(ctx context.Context, key string) (string, bool, error) {
	return "", false, errors.New("connection reset")
}

func (brokenCache) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	return errors.New("connection reset")
}

func TestAcquireReusesCachedProxy(t *testing.T) {
	ctx := context.Background()
	src := &countingSource{values: []string{"1.2.3.4:8080", "5.6.7.8:8080"}}
	r := NewRotator(NewLocalCache(), src, Config{Enabled: true}, nil)

	first, err := r.Acquire(ctx, false)
	require.NoError(t, err)
	second, err := r.Acquire(ctx, false)
	require.NoError(t, err)

	assert.Equal(t, "1.2.3.4:8080", first)
	assert.Equal(t, first, second)
	assert.Equal(t, int32(1), src.calls.Load())
}

func TestAcquireForceNewBypassesCache(t *testing.T) {
	ctx := context.Background()
	cache := NewLocalCache()
	src := &countingSource{values: []string{"1.2.3.4:8080", "5.6.7.8:8080"}}
	r := NewRotator(cache, src, Config{Enabled: true}, nil)

	_, err := r.Acquire(ctx, false)
	require.NoError(t, err)

	forced, err := r.Acquire(ctx, true)
	require.NoError(t, err)
	assert.Equal(t, "5.6.7.8:8080", forced)
	assert.Equal(t, int32(2), src.calls.Load())

	cached, ok, err := cache.Get(ctx, DefaultCacheKey)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "5.6.7.8:8080", cached)
}

func TestAcquireDisabled(t *testing.T) {
	ctx := context.Background()
	cache := NewLocalCache()
	require.NoError(t, cache.Set(ctx, DefaultCacheKey, "1.2.3.4:8080", 0))
	src := &countingSource{values: []string{"5.6.7.8:8080"}}
	r := NewRotator(cache, src, Config{Enabled: false}, nil)

	for _, force := range []bool{false, true} {
		proxy, err := r.Acquire(ctx, force)
		require.NoError(t, err)
		assert.Empty(t, proxy)
	}
	assert.Equal(t, int32(0), src.calls.Load())
}

func TestAcquireEmptySourceIsNotCached(t *testing.T) {
	ctx := context.Background()
	cache := NewLocalCache()
	src := &countingSource{}
	r := NewRotator(cache, src, Config{Enabled: true}, nil)

	proxy, err := r.Acquire(ctx, false)
	require.NoError(t, err)
	assert.Empty(t, proxy)

	_, ok, err := cache.Get(ctx, DefaultCacheKey)
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = r.Acquire(ctx, false)
	require.NoError(t, err)
	assert.Equal(t, int32(2), src.calls.Load(), "miss should consult the source again")
}

func TestAcquireHonoursTTL(t *testing.T) {
	ctx := context.Background()
	cache, clock := newTestLocalCache()
	src := &countingSource{values: []string{"1.2.3.4:8080", "5.6.7.8:8080"}}
	r := NewRotator(cache, src, Config{Enabled: true, TTL: 30}, nil)

	first, err := r.Acquire(ctx, false)
	require.NoError(t, err)

	clock.Advance(29 * time.Second)
	again, err := r.Acquire(ctx, false)
	require.NoError(t, err)
	assert.Equal(t, first, again)

	clock.Advance(time.Second)
	next, err := r.Acquire(ctx, false)
	require.NoError(t, err)
	assert.Equal(t, "5.6.7.8:8080", next)
}

func TestAcquireUsesOwnCacheKey(t *testing.T) {
	ctx := context.Background()
	cache := NewLocalCache()
	a := NewRotator(cache, StaticSource("1.1.1.1:80"), Config{Enabled: true, CacheKey: "spider-a"}, nil)
	b := NewRotator(cache, StaticSource("2.2.2.2:80"), Config{Enabled: true, CacheKey: "spider-b"}, nil)

	pa, err := a.Acquire(ctx, false)
	require.NoError(t, err)
	pb, err := b.Acquire(ctx, false)
	require.NoError(t, err)

	assert.Equal(t, "1.1.1.1:80", pa)
	assert.Equal(t, "2.2.2.2:80", pb)
}

func TestAcquireBackendErrors(t *testing.T) {
	ctx := context.Background()

	r := NewRotator(brokenCache{}, StaticSource("1.2.3.4:8080"), Config{Enabled: true}, nil)
	_, err := r.Acquire(ctx, false)
	assert.True(t, errors.Is(err, ErrBackendUnavailable))

	// forced acquisition skips the read; a failed write still yields the proxy
	proxy, err := r.Acquire(ctx, true)
	require.NoError(t, err)
	assert.Equal(t, "1.2.3.4:8080", proxy)

	r = NewRotator(NewLocalCache(), &countingSource{err: errors.New("quota exceeded")}, Config{Enabled: true}, nil)
	_, err = r.Acquire(ctx, false)
	assert.True(t, errors.Is(err, ErrBackendUnavailable))
}

func TestAcquireConcurrentForce(t *testing.T) {
	ctx := context.Background()
	cache := NewLocalCache()
	src := &countingSource{values: []string{"1.1.1.1:80", "2.2.2.2:80", "3.3.3.3:80"}}
	r := NewRotator(cache, src, Config{Enabled: true}, nil)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := r.Acquire(ctx, true)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(20), src.calls.Load())
	val, ok, err := cache.Get(ctx, DefaultCacheKey)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Contains(t, src.values, val)
}

func TestRotatorCloseReleasesRedisCache(t *testing.T) {
	mr := miniredis.RunT(t)

	r, err := New(context.Background(), Config{Enabled: true, Host: "1.2.3.4:8080", Cache: "redis://" + mr.Addr()}, nil)
	require.NoError(t, err)

	_, err = r.Acquire(context.Background(), false)
	require.NoError(t, err)
	assert.Positive(t, mr.CurrentConnectionCount())

	require.NoError(t, r.Close())
	assert.Eventually(t, func() bool { return mr.CurrentConnectionCount() == 0 },
		2*time.Second, 10*time.Millisecond)

	local, err := New(context.Background(), Config{Enabled: true, Host: "1.2.3.4:8080"}, nil)
	require.NoError(t, err)
	assert.NoError(t, local.Close())
}
