package cache

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/time/rate"
)

// RateLimiter 按键（客户端IP或用户ID）限流
type RateLimiter interface {
	// Allow 判断该键的请求是否允许通过
	Allow(ctx context.Context, key string) (bool, error)
}

// NewRateLimiter Redis可用时使用共享令牌桶，否则使用进程内令牌桶
func NewRateLimiter(client *redis.Client, prefix string, ratePerSecond, burst int) RateLimiter {
	if client == nil {
		return NewLocalRateLimiter(ratePerSecond, burst)
	}
	return NewTokenBucketRateLimiter(client, prefix, ratePerSecond, burst)
}

// 令牌桶算法的Lua脚本，令牌数与时间戳存放在同一个哈希中
const tokenBucketScript = `
local key = KEYS[1]
local now = tonumber(ARGV[1])
local rate = tonumber(ARGV[2])
local burst = tonumber(ARGV[3])

local state = redis.call("hmget", key, "tokens", "ts")
local tokens = tonumber(state[1]) or burst
local last_update = tonumber(state[2]) or now

-- 按经过的时间补充令牌
local elapsed = math.max(0, now - last_update) / 1000
tokens = math.min(burst, tokens + elapsed * rate)

local allowed = 0
if tokens >= 1 then
	tokens = tokens - 1
	allowed = 1
end

redis.call("hset", key, "tokens", tokens, "ts", now)
redis.call("pexpire", key, math.ceil(burst / rate * 1000) + 1000)

return allowed
`

// TokenBucketRateLimiter 基于Redis的令牌桶限流器，多个实例共享同一个桶
type TokenBucketRateLimiter struct {
	redisClient RedisClient
	prefix      string
	rate        int // 每秒生成的令牌数量
	burst       int // 令牌桶最大容量
}

// NewTokenBucketRateLimiter 创建新的令牌桶限流器
func NewTokenBucketRateLimiter(client RedisClient, prefix string, rate, burst int) *TokenBucketRateLimiter {
	return &TokenBucketRateLimiter{
		redisClient: client,
		prefix:      fmt.Sprintf("rate_limit:%s", prefix),
		rate:        rate,
		burst:       burst,
	}
}

// Allow 判断请求是否允许通过
func (l *TokenBucketRateLimiter) Allow(ctx context.Context, key string) (bool, error) {
	if l.redisClient == nil {
		return false, ErrRedisNotAvailable
	}

	now := time.Now().UnixMilli()
	result, err := l.redisClient.Eval(ctx, tokenBucketScript,
		[]string{l.prefix + ":" + key}, now, l.rate, l.burst).Int64()
	if err != nil {
		return false, err
	}
	return result == 1, nil
}

// localLimiterIdle 超过该时长未访问的令牌桶会被回收
const localLimiterIdle = 10 * time.Minute

type localBucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// LocalRateLimiter 进程内令牌桶，每个键一个 rate.Limiter
type LocalRateLimiter struct {
	mu        sync.Mutex
	limiters  map[string]*localBucket
	rate      rate.Limit
	burst     int
	idle      time.Duration
	lastSweep time.Time
	now       func() time.Time
}

// NewLocalRateLimiter 创建进程内限流器
func NewLocalRateLimiter(ratePerSecond, burst int) *LocalRateLimiter {
	return &LocalRateLimiter{
		limiters:  make(map[string]*localBucket),
		rate:      rate.Limit(ratePerSecond),
		burst:     burst,
		idle:      localLimiterIdle,
		lastSweep: time.Now(),
		now:       time.Now,
	}
}

// Allow 判断请求是否允许通过
func (l *LocalRateLimiter) Allow(_ context.Context, key string) (bool, error) {
	l.mu.Lock()
	now := l.now()
	if now.Sub(l.lastSweep) >= l.idle {
		l.sweepLocked(now)
	}
	bucket, ok := l.limiters[key]
	if !ok {
		bucket = &localBucket{limiter: rate.NewLimiter(l.rate, l.burst)}
		l.limiters[key] = bucket
	}
	bucket.lastSeen = now
	l.mu.Unlock()
	return bucket.limiter.AllowN(now, 1), nil
}

// sweepLocked 回收长时间未访问的客户端
func (l *LocalRateLimiter) sweepLocked(now time.Time) {
	for key, bucket := range l.limiters {
		if now.Sub(bucket.lastSeen) >= l.idle {
			delete(l.limiters, key)
		}
	}
	l.lastSweep = now
}

func (l *LocalRateLimiter) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.limiters)
}
