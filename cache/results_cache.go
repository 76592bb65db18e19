package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"math/rand"
	"time"

	"chainvote-backend/models"

	"github.com/redis/go-redis/v9"
)

// ResultsCache 选举计票结果缓存，带击穿保护
type ResultsCache struct {
	redisClient RedisClient
	locker      Locker
	ttl         time.Duration
}

// NewResultsCache 创建计票结果缓存；client 为 nil 时每次直接调用 loader
func NewResultsCache(client *redis.Client, locker Locker, ttl time.Duration) *ResultsCache {
	// nil 的 *redis.Client 不能直接赋给接口，否则接口值非 nil
	if client == nil {
		return newResultsCache(nil, locker, ttl)
	}
	return newResultsCache(client, locker, ttl)
}

func newResultsCache(client RedisClient, locker Locker, ttl time.Duration) *ResultsCache {
	return &ResultsCache{redisClient: client, locker: locker, ttl: ttl}
}

func resultsKey(electionID string) string {
	return fmt.Sprintf("election:%s:results", electionID)
}

// versionKey 每次失效递增，加载前后版本不一致时不回写缓存
func versionKey(electionID string) string {
	return fmt.Sprintf("election:%s:results:version", electionID)
}

// setIfVersionScript 版本号未变化时才写入结果
// KEYS[1] 结果键, KEYS[2] 版本键; ARGV[1] 加载前的版本, ARGV[2] 结果, ARGV[3] 过期毫秒
const setIfVersionScript = `
local current = redis.call('GET', KEYS[2]) or '0'
if current ~= ARGV[1] then
    return 0
end
redis.call('SET', KEYS[1], ARGV[2], 'PX', ARGV[3])
return 1
`

func (c *ResultsCache) version(ctx context.Context, electionID string) (string, error) {
	v, err := c.redisClient.Get(ctx, versionKey(electionID)).Result()
	if errors.Is(err, redis.Nil) {
		return "0", nil
	}
	return v, err
}

func (c *ResultsCache) lookup(ctx context.Context, key string) (*models.TallyResult, bool) {
	data, err := c.redisClient.Get(ctx, key).Result()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			log.Printf("查询缓存失败: %v", err)
		}
		return nil, false
	}
	var result models.TallyResult
	if err := json.Unmarshal([]byte(data), &result); err != nil {
		log.Printf("解析缓存数据失败: %v", err)
		return nil, false
	}
	return &result, true
}

// Get 先查缓存；未命中时在锁内二次检查再加载，避免大量请求同时回源
func (c *ResultsCache) Get(ctx context.Context, electionID string, loader func(ctx context.Context) (*models.TallyResult, error)) (*models.TallyResult, error) {
	if c.redisClient == nil {
		return loader(ctx)
	}

	key := resultsKey(electionID)
	if result, ok := c.lookup(ctx, key); ok {
		return result, nil
	}

	var result *models.TallyResult
	err := c.locker.WithLock(ctx, "cache:"+key, 5*time.Second, func(ctx context.Context) error {
		if cached, ok := c.lookup(ctx, key); ok {
			result = cached
			return nil
		}

		// 先读版本再加载：加载期间有投票失效缓存时，旧结果不会被写回
		version, verErr := c.version(ctx, electionID)
		loaded, err := loader(ctx)
		if err != nil {
			return err
		}
		result = loaded
		if verErr != nil {
			log.Printf("读取缓存版本失败: %v", verErr)
			return nil
		}

		// 随机抖动过期时间，防止缓存雪崩
		jsonData, err := json.Marshal(loaded)
		if err != nil {
			return err
		}
		expiration := c.ttl + time.Duration(rand.Int63n(int64(c.ttl/10)+1))
		err = c.redisClient.Eval(ctx, setIfVersionScript,
			[]string{key, versionKey(electionID)}, version, jsonData, expiration.Milliseconds()).Err()
		if err != nil {
			log.Printf("设置缓存失败: %v", err)
		}
		return nil
	})
	if errors.Is(err, ErrLockNotAcquired) {
		// 拿不到锁时直接回源，宁可多查一次数据库也不返回错误
		return loader(ctx)
	}
	return result, err
}

// Invalidate 投票后递增版本并删除缓存
func (c *ResultsCache) Invalidate(ctx context.Context, electionID string) {
	if c.redisClient == nil {
		return
	}
	if err := c.redisClient.Incr(ctx, versionKey(electionID)).Err(); err != nil {
		log.Printf("递增缓存版本失败: %v", err)
	}
	if err := c.redisClient.Del(ctx, resultsKey(electionID)).Err(); err != nil {
		log.Printf("删除缓存失败: %v", err)
	}
}
