package websocket

import (
	"context"
	"log"
	"sync"

	"github.com/gorilla/websocket"

	"chainvote-backend/models"
	"chainvote-backend/mq"
)

// Client 一个订阅某选举实时结果的连接；conn 为 nil 时是 SSE 订阅者
type Client struct {
	ElectionID string

	conn *websocket.Conn
	send chan []byte
}

// Hub 按选举分组维护在线客户端并广播计票更新
type Hub struct {
	clients map[string]map[*Client]bool

	register   chan *Client
	unregister chan *Client
	done       chan struct{}

	mu sync.RWMutex
}

// NewHub 创建 Hub，需调用 Run 后才能注册客户端
func NewHub() *Hub {
	return &Hub{
		clients:    make(map[string]map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
	}
}

// Run 处理注册与注销，ctx 结束时关闭所有客户端后返回
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			if _, ok := h.clients[client.ElectionID]; !ok {
				h.clients[client.ElectionID] = make(map[*Client]bool)
			}
			h.clients[client.ElectionID][client] = true
			n := len(h.clients[client.ElectionID])
			h.mu.Unlock()
			log.Printf("客户端已订阅选举 %s, 当前连接数: %d", client.ElectionID, n)

		case client := <-h.unregister:
			h.mu.Lock()
			h.removeLocked(client)
			h.mu.Unlock()
			log.Printf("客户端已取消订阅选举 %s", client.ElectionID)

		case <-ctx.Done():
			h.mu.Lock()
			for _, clients := range h.clients {
				for client := range clients {
					close(client.send)
				}
			}
			h.clients = make(map[string]map[*Client]bool)
			h.mu.Unlock()
			return
		}
	}
}

// removeLocked 调用方需持有写锁
func (h *Hub) removeLocked(client *Client) {
	clients, ok := h.clients[client.ElectionID]
	if !ok {
		return
	}
	if _, ok := clients[client]; !ok {
		return
	}
	delete(clients, client)
	close(client.send)
	if len(clients) == 0 {
		delete(h.clients, client.ElectionID)
	}
}

// RegisterClient 注册客户端；Hub 已停止时返回 false
func (h *Hub) RegisterClient(client *Client) bool {
	select {
	case h.register <- client:
		return true
	case <-h.done:
		return false
	}
}

// UnregisterClient 注销客户端，可重复调用
func (h *Hub) UnregisterClient(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.done:
	}
}

// Subscribe 以通道形式订阅某选举的消息，返回的函数用于取消订阅
func (h *Hub) Subscribe(electionID string) (<-chan []byte, func(), bool) {
	client := &Client{ElectionID: electionID, send: make(chan []byte, 16)}
	if !h.RegisterClient(client) {
		return nil, func() {}, false
	}
	return client.send, func() { h.UnregisterClient(client) }, true
}

// ClientCount 某选举当前的订阅数
func (h *Hub) ClientCount(electionID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[electionID])
}

// BroadcastToElection 向订阅该选举的所有客户端广播消息
func (h *Hub) BroadcastToElection(electionID string, message *models.WebSocketMessage) {
	payload, err := message.ToJSON()
	if err != nil {
		log.Printf("消息序列化失败: %v", err)
		return
	}

	// 持读锁发送，避免与注销时的 close 并发
	var slow []*Client
	h.mu.RLock()
	for client := range h.clients[electionID] {
		select {
		case client.send <- payload:
		default:
			slow = append(slow, client)
		}
	}
	h.mu.RUnlock()

	// 发送缓冲区已满的客户端直接断开
	if len(slow) > 0 {
		h.mu.Lock()
		for _, client := range slow {
			h.removeLocked(client)
		}
		h.mu.Unlock()
	}
}

// Consume 订阅事件总线并把计票更新转发给本机客户端，阻塞直到 ctx 结束
func (h *Hub) Consume(ctx context.Context, bus mq.Bus) error {
	return bus.Subscribe(ctx, func(event mq.TallyEvent) {
		h.BroadcastToElection(event.ElectionID, &models.WebSocketMessage{
			Type:       models.MessageTallyUpdate,
			ElectionID: event.ElectionID,
			Payload:    event.Tally,
		})
	})
}
