package mq

import (
	"context"
	"fmt"
	"log"

	"github.com/redis/go-redis/v9"
)

// DefaultChannel 计票事件的发布频道
const DefaultChannel = "chainvote:tally"

// RedisBus 基于 Redis Pub/Sub 的事件总线
type RedisBus struct {
	client  *redis.Client
	channel string
}

// NewRedisBus 创建Redis事件总线
func NewRedisBus(client *redis.Client, channel string) *RedisBus {
	return &RedisBus{client: client, channel: channel}
}

// Publish 发布事件
func (b *RedisBus) Publish(ctx context.Context, event TallyEvent) error {
	payload, err := event.encode()
	if err != nil {
		return fmt.Errorf("序列化事件失败: %w", err)
	}
	if err := b.client.Publish(ctx, b.channel, payload).Err(); err != nil {
		return fmt.Errorf("发布事件失败: %w", err)
	}
	return nil
}

// Subscribe 阻塞接收事件直到 ctx 结束
func (b *RedisBus) Subscribe(ctx context.Context, handler Handler) error {
	pubsub := b.client.Subscribe(ctx, b.channel)
	defer pubsub.Close()

	// 等待订阅确认，连接失败时尽早返回
	if _, err := pubsub.Receive(ctx); err != nil {
		return fmt.Errorf("订阅频道 %s 失败: %w", b.channel, err)
	}
	log.Printf("已订阅频道 %s", b.channel)

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			event, err := decode([]byte(msg.Payload))
			if err != nil {
				log.Printf("解析计票事件失败: %v", err)
				continue
			}
			handler(event)
		}
	}
}
