package handlers

import (
	"net/http"
	"runtime"
	"time"

	"chainvote-backend/database"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// SystemInfo contains basic system metrics and information
type SystemInfo struct {
	Status       string    `json:"status"`
	Version      string    `json:"version"`
	Uptime       string    `json:"uptime"`
	StartTime    time.Time `json:"start_time"`
	CurrentTime  time.Time `json:"current_time"`
	GoVersion    string    `json:"go_version"`
	NumGoroutine int       `json:"num_goroutine"`
	NumCPU       int       `json:"num_cpu"`
	DBStatus     string    `json:"db_status"`
	TallyMode    string    `json:"tally_mode"`
	RedisEnabled bool      `json:"redis_enabled"`
}

var (
	startTime = time.Now()
	// Version 应用版本，可通过 -ldflags 注入
	Version = "0.1.0"
)

// HealthHandler 健康检查与系统状态
type HealthHandler struct {
	db           *gorm.DB
	tallyMode    string
	redisEnabled bool
}

// NewHealthHandler 创建健康检查处理器
func NewHealthHandler(db *gorm.DB, tallyMode string, redisEnabled bool) *HealthHandler {
	return &HealthHandler{db: db, tallyMode: tallyMode, redisEnabled: redisEnabled}
}

// RegisterRoutes 注册健康检查路由
func (h *HealthHandler) RegisterRoutes(api *gin.RouterGroup) {
	api.GET("/health", h.HealthCheck)
	api.GET("/status", h.SystemStatus)
}

// HealthCheck 提供基本健康检查端点
func (h *HealthHandler) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
		"time":   time.Now().Format(time.RFC3339),
	})
}

// SystemStatus 提供详细的系统状态信息，数据库不可用时返回 503
func (h *HealthHandler) SystemStatus(c *gin.Context) {
	status, dbStatus, code := "ok", "ok", http.StatusOK
	if err := database.Ping(h.db); err != nil {
		status, dbStatus, code = "degraded", "error", http.StatusServiceUnavailable
	}

	c.JSON(code, SystemInfo{
		Status:       status,
		Version:      Version,
		Uptime:       time.Since(startTime).String(),
		StartTime:    startTime,
		CurrentTime:  time.Now(),
		GoVersion:    runtime.Version(),
		NumGoroutine: runtime.NumGoroutine(),
		NumCPU:       runtime.NumCPU(),
		DBStatus:     dbStatus,
		TallyMode:    h.tallyMode,
		RedisEnabled: h.redisEnabled,
	})
}
