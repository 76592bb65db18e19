package cache

import (
	"context"
	"hash/fnv"

	"github.com/redis/go-redis/v9"
)

// BloomFilter 基于Redis位图的布隆过滤器
type BloomFilter struct {
	redisClient RedisClient
	key         string
	hashCount   int
}

// NewBloomFilter 创建新的布隆过滤器；client 为 nil 时所有操作返回 ErrRedisNotAvailable
func NewBloomFilter(client RedisClient, key string, hashCount int) *BloomFilter {
	return &BloomFilter{
		redisClient: client,
		key:         "bloom:" + key,
		hashCount:   hashCount,
	}
}

// NewElectionFilter 选举ID过滤器
func NewElectionFilter(client *redis.Client) *BloomFilter {
	var rc RedisClient
	// nil 的 *redis.Client 直接赋给接口会得到非 nil 接口值
	if client != nil {
		rc = client
	}
	return NewBloomFilter(rc, "elections", 5)
}

// Add 添加元素到布隆过滤器
// 位图不设置过期时间，过期会让已存在的元素被误判为不存在
func (bf *BloomFilter) Add(ctx context.Context, item string) error {
	if bf.redisClient == nil {
		return ErrRedisNotAvailable
	}

	pipe := bf.redisClient.Pipeline()
	for i := 0; i < bf.hashCount; i++ {
		pipe.SetBit(ctx, bf.key, bf.hash(item, i), 1)
	}
	_, err := pipe.Exec(ctx)
	return err
}

// Contains 检查元素是否可能存在于布隆过滤器中
func (bf *BloomFilter) Contains(ctx context.Context, item string) (bool, error) {
	if bf.redisClient == nil {
		return false, ErrRedisNotAvailable
	}

	pipe := bf.redisClient.Pipeline()
	cmds := make([]*redis.IntCmd, 0, bf.hashCount)
	for i := 0; i < bf.hashCount; i++ {
		cmds = append(cmds, pipe.GetBit(ctx, bf.key, bf.hash(item, i)))
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return false, err
	}

	// 如果任何一个位为0，则元素肯定不存在
	for _, cmd := range cmds {
		if cmd.Val() == 0 {
			return false, nil
		}
	}
	return true, nil
}

// hash 计算哈希值，使用不同的种子
func (bf *BloomFilter) hash(key string, seed int) int64 {
	h := fnv.New64a()
	h.Write([]byte(key))
	h.Write([]byte{byte(seed)})
	return int64(h.Sum64() % uint64(1<<24))
}
