package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"time"

	"chainvote-backend/models"
	"chainvote-backend/websocket"

	"github.com/gin-gonic/gin"
)

const sseHeartbeat = 15 * time.Second

// TallyReader 读取选举当前计票结果
type TallyReader interface {
	Tallies(ctx context.Context, electionID string) (*models.TallyResult, error)
}

// SSEHandler 以 Server-Sent Events 推送计票更新，与 WebSocket 共用同一个 Hub
type SSEHandler struct {
	hub       *websocket.Hub
	tallies   TallyReader
	heartbeat time.Duration
}

// NewSSEHandler 创建SSE处理器
func NewSSEHandler(hub *websocket.Hub, tallies TallyReader) *SSEHandler {
	return &SSEHandler{hub: hub, tallies: tallies, heartbeat: sseHeartbeat}
}

// RegisterRoutes 注册SSE路由
func (h *SSEHandler) RegisterRoutes(api *gin.RouterGroup) {
	api.GET("/elections/:id/live", RequireRole(""), h.HandleSSE)
}

// HandleSSE 先推送当前结果，之后推送每次计票更新，直到客户端断开
func (h *SSEHandler) HandleSSE(c *gin.Context) {
	electionID := c.Param("id")

	current, err := h.tallies.Tallies(c.Request.Context(), electionID)
	if err != nil {
		respondError(c, err)
		return
	}

	flusher, ok := c.Writer.(http.Flusher)
	if !ok {
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "streaming unsupported"})
		return
	}

	updates, unsubscribe, ok := h.hub.Subscribe(electionID)
	if !ok {
		c.JSON(http.StatusServiceUnavailable, ErrorResponse{Error: "server is shutting down"})
		return
	}
	defer unsubscribe()

	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")
	c.Writer.Header().Set("X-Accel-Buffering", "no") // 禁用Nginx缓冲
	c.Status(http.StatusOK)

	hello, err := json.Marshal(&models.WebSocketMessage{Type: models.MessageConnected, ElectionID: electionID, Payload: current})
	if err != nil {
		log.Printf("序列化初始数据失败: %v", err)
		return
	}
	if err := writeSSE(c.Writer, flusher, hello); err != nil {
		return
	}
	log.Printf("已建立SSE连接，选举 %s，客户端 %s", electionID, c.ClientIP())

	heartbeat := time.NewTicker(h.heartbeat)
	defer heartbeat.Stop()

	for {
		select {
		case <-c.Request.Context().Done():
			log.Printf("SSE客户端已断开，选举 %s", electionID)
			return
		case msg, ok := <-updates:
			if !ok {
				return
			}
			if err := writeSSE(c.Writer, flusher, msg); err != nil {
				return
			}
		case <-heartbeat.C:
			// 注释行作为心跳
			if _, err := fmt.Fprint(c.Writer, ": ping\n\n"); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

func writeSSE(w http.ResponseWriter, flusher http.Flusher, data []byte) error {
	if _, err := fmt.Fprintf(w, "data: %s\n\n", data); err != nil {
		log.Printf("写入SSE数据失败: %v", err)
		return err
	}
	flusher.Flush()
	return nil
}
