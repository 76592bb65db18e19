package cache

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"chainvote-backend/config"
	"chainvote-backend/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConnectDisabled(t *testing.T) {
	client, err := Connect(context.Background(), config.RedisConfig{Enabled: false})
	assert.Nil(t, client)
	assert.ErrorIs(t, err, ErrRedisNotAvailable)
	Close(client)
}

func TestLocalLockerSerializes(t *testing.T) {
	locker := NewLocker(nil)
	require.IsType(t, &LocalLocker{}, locker)

	var (
		inside  int32
		maxSeen int32
		wg      sync.WaitGroup
	)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := locker.WithLock(context.Background(), "reconcile", time.Second, func(context.Context) error {
				n := atomic.AddInt32(&inside, 1)
				if n > atomic.LoadInt32(&maxSeen) {
					atomic.StoreInt32(&maxSeen, n)
				}
				time.Sleep(time.Millisecond)
				atomic.AddInt32(&inside, -1)
				return nil
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), maxSeen)
}

func TestLocalLockerTry(t *testing.T) {
	locker := NewLocalLocker()
	ctx := context.Background()

	err := locker.WithLock(ctx, "a", time.Second, func(ctx context.Context) error {
		// 同名锁已被持有
		inner := locker.TryWithLock(ctx, "a", time.Second, func(context.Context) error { return nil })
		assert.ErrorIs(t, inner, ErrLockNotAcquired)
		// 不同名的锁互不影响
		return locker.TryWithLock(ctx, "b", time.Second, func(context.Context) error { return nil })
	})
	assert.NoError(t, err)

	boom := errors.New("boom")
	assert.ErrorIs(t, locker.TryWithLock(ctx, "a", time.Second, func(context.Context) error { return boom }), boom)
}

func TestLocalLockerHonoursContext(t *testing.T) {
	locker := NewLocalLocker()
	release := make(chan struct{})
	held := make(chan struct{})
	go func() {
		_ = locker.WithLock(context.Background(), "x", time.Second, func(context.Context) error {
			close(held)
			<-release
			return nil
		})
	}()
	<-held

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := locker.WithLock(ctx, "x", time.Second, func(context.Context) error { return nil })
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	close(release)
}

func TestLocalRateLimiter(t *testing.T) {
	limiter := NewRateLimiter(nil, "api", 1, 3)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		ok, err := limiter.Allow(ctx, "1.2.3.4")
		require.NoError(t, err)
		assert.True(t, ok)
	}
	ok, _ := limiter.Allow(ctx, "1.2.3.4")
	assert.False(t, ok)

	// 其他客户端有独立的令牌桶
	ok, _ = limiter.Allow(ctx, "5.6.7.8")
	assert.True(t, ok)
}

func TestLocalRateLimiterEvictsIdleClients(t *testing.T) {
	limiter := NewLocalRateLimiter(1, 1)
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	limiter.now = func() time.Time { return now }
	limiter.lastSweep = now
	ctx := context.Background()

	for _, ip := range []string{"10.0.0.1", "10.0.0.2", "10.0.0.3"} {
		ok, err := limiter.Allow(ctx, ip)
		require.NoError(t, err)
		assert.True(t, ok)
	}
	assert.Equal(t, 3, limiter.size())

	now = now.Add(localLimiterIdle / 2)
	_, _ = limiter.Allow(ctx, "10.0.0.1")

	// 只有 10.0.0.1 在空闲期内访问过
	now = now.Add(localLimiterIdle/2 + time.Second)
	_, _ = limiter.Allow(ctx, "10.0.0.4")
	assert.Equal(t, 2, limiter.size())
}

func TestTokenBucketWithoutRedis(t *testing.T) {
	ok, err := NewTokenBucketRateLimiter(nil, "api", 1, 1).Allow(context.Background(), "k")
	assert.False(t, ok)
	assert.ErrorIs(t, err, ErrRedisNotAvailable)
}

func TestBloomFilterWithoutRedis(t *testing.T) {
	bf := NewElectionFilter(nil)
	assert.ErrorIs(t, bf.Add(context.Background(), "x"), ErrRedisNotAvailable)
	_, err := bf.Contains(context.Background(), "x")
	assert.ErrorIs(t, err, ErrRedisNotAvailable)
}

func TestResultsCacheWithoutRedis(t *testing.T) {
	c := NewResultsCache(nil, NewLocalLocker(), time.Minute)
	calls := 0
	loader := func(context.Context) (*models.TallyResult, error) {
		calls++
		return &models.TallyResult{ElectionID: "e1", TotalVotes: int64(calls)}, nil
	}

	r1, err := c.Get(context.Background(), "e1", loader)
	require.NoError(t, err)
	r2, err := c.Get(context.Background(), "e1", loader)
	require.NoError(t, err)

	assert.Equal(t, int64(1), r1.TotalVotes)
	assert.Equal(t, int64(2), r2.TotalVotes)
	c.Invalidate(context.Background(), "e1")
}

func TestMemoryRevocationStore(t *testing.T) {
	store := NewMemoryRevocationStore()
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return now }
	ctx := context.Background()

	require.NoError(t, store.Revoke(ctx, "jti-1", time.Hour))
	revoked, err := store.IsRevoked(ctx, "jti-1")
	require.NoError(t, err)
	assert.True(t, revoked)

	revoked, _ = store.IsRevoked(ctx, "jti-2")
	assert.False(t, revoked)

	now = now.Add(2 * time.Hour)
	revoked, _ = store.IsRevoked(ctx, "jti-1")
	assert.False(t, revoked)
}
