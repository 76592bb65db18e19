package websocket

import (
	"context"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"chainvote-backend/models"
	"chainvote-backend/service"
)

const (
	// 写入超时
	writeWait = 10 * time.Second

	// 读取超时
	pongWait = 60 * time.Second

	// 发送ping间隔时间，必须小于pongWait
	pingPeriod = (pongWait * 9) / 10

	// 客户端只接收推送，读到的消息仅用于保活
	maxMessageSize = 512
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// 跨域由 CORS 中间件统一控制
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// TallyReader 读取选举当前计票结果
type TallyReader interface {
	Tallies(ctx context.Context, electionID string) (*models.TallyResult, error)
}

// Handler WebSocket处理器
type Handler struct {
	hub     *Hub
	tallies TallyReader
}

// NewHandler 创建WebSocket处理器
func NewHandler(hub *Hub, tallies TallyReader) *Handler {
	return &Handler{hub: hub, tallies: tallies}
}

// RegisterRoutes 注册WebSocket路由
func (h *Handler) RegisterRoutes(group *gin.RouterGroup) {
	group.GET("/elections/:id/ws", h.HandleWebSocketConnection)
}

// HandleWebSocketConnection 升级连接，先推送当前结果，之后推送每次计票更新
func (h *Handler) HandleWebSocketConnection(c *gin.Context) {
	electionID := c.Param("id")

	current, err := h.tallies.Tallies(c.Request.Context(), electionID)
	if err != nil {
		if errors.Is(err, service.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "election not found"})
			return
		}
		log.Printf("读取计票结果失败: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Printf("WebSocket升级失败: %v", err)
		return
	}

	client := &Client{
		ElectionID: electionID,
		conn:       conn,
		send:       make(chan []byte, 256),
	}

	hello := &models.WebSocketMessage{Type: models.MessageConnected, ElectionID: electionID, Payload: current}
	if payload, err := hello.ToJSON(); err == nil {
		client.send <- payload
	}

	if !h.hub.RegisterClient(client) {
		conn.Close()
		return
	}

	go h.writePump(client)
	go h.readPump(client)
}

// readPump 读取客户端消息直到连接断开
func (h *Handler) readPump(client *Client) {
	defer func() {
		h.hub.UnregisterClient(client)
		client.conn.Close()
	}()

	client.conn.SetReadLimit(maxMessageSize)
	client.conn.SetReadDeadline(time.Now().Add(pongWait))
	client.conn.SetPongHandler(func(string) error {
		client.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		if _, _, err := client.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("读取WebSocket消息失败: %v", err)
			}
			return
		}
	}
}

// writePump 把 send 通道中的消息逐条写给客户端，并定期发送 ping
func (h *Handler) writePump(client *Client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		client.conn.Close()
	}()

	for {
		select {
		case message, ok := <-client.send:
			client.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				client.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := client.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			client.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := client.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
