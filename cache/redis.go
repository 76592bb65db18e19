package cache

import (
	"context"
	"log"
	"time"

	"chainvote-backend/config"

	"github.com/redis/go-redis/v9"
)

// Connect 建立Redis连接
//
// Redis 关闭或连接失败时返回 ErrRedisNotAvailable，调用方改用进程内实现
// （限流、锁、令牌吊销、事件总线都有对应的降级版本）。
func Connect(ctx context.Context, cfg config.RedisConfig) (*redis.Client, error) {
	if !cfg.Enabled {
		log.Println("Redis已禁用，使用进程内模式")
		return nil, ErrRedisNotAvailable
	}

	log.Printf("初始化Redis连接, 地址: %s", cfg.Address)
	client := redis.NewClient(&redis.Options{
		Addr:        cfg.Address,
		Password:    cfg.Password,
		DB:          cfg.DB,
		DialTimeout: 3 * time.Second,
		ReadTimeout: 3 * time.Second,
		PoolSize:    10,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		log.Printf("Redis连接失败: %v，将使用进程内模式", err)
		_ = client.Close()
		return nil, ErrRedisNotAvailable
	}

	log.Println("Redis连接初始化成功")
	return client, nil
}

// Close 关闭Redis连接，client 为 nil 时什么也不做
func Close(client *redis.Client) {
	if client == nil {
		return
	}
	if err := client.Close(); err != nil {
		log.Printf("关闭Redis连接错误: %v", err)
		return
	}
	log.Println("Redis连接已关闭")
}
