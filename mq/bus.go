// Package mq 计票更新事件的发布/订阅。
//
// 投票写库后发布一条 TallyEvent，各实例订阅后推送给本机的 WebSocket 与 SSE 连接。
// 事件只用于实时展示，丢失不影响计票结果（计数以数据库为准）。
package mq

import (
	"context"
	"encoding/json"
	"time"

	"chainvote-backend/models"

	"github.com/redis/go-redis/v9"
)

// TallyEvent 一次投票后的计票快照
type TallyEvent struct {
	ElectionID  string              `json:"election_id"`
	CandidateID string              `json:"candidate_id"`
	Tally       *models.TallyResult `json:"tally"`
	At          time.Time           `json:"at"`
}

func (e TallyEvent) encode() ([]byte, error) { return json.Marshal(e) }

func decode(data []byte) (TallyEvent, error) {
	var e TallyEvent
	err := json.Unmarshal(data, &e)
	return e, err
}

// Handler 处理收到的事件
type Handler func(TallyEvent)

// Bus 事件总线
type Bus interface {
	Publish(ctx context.Context, event TallyEvent) error
	// Subscribe 阻塞接收事件直到 ctx 结束
	Subscribe(ctx context.Context, handler Handler) error
}

// NewBus Redis可用时跨实例广播，否则只在进程内广播
func NewBus(client *redis.Client) Bus {
	if client == nil {
		return NewMemoryBus()
	}
	return NewRedisBus(client, DefaultChannel)
}
