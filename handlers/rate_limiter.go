package handlers

import (
	"log"
	"net/http"

	"chainvote-backend/cache"
	"chainvote-backend/metrics"

	"github.com/gin-gonic/gin"
)

// RateLimitMiddleware 按客户端IP限流；已登录用户按账户限流
// 限流器本身出错时放行，避免 Redis 故障导致整个 API 不可用
func RateLimitMiddleware(limiter cache.RateLimiter, m *metrics.Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := "ip:" + c.ClientIP()
		if session := CurrentSession(c); session.User != nil {
			key = "user:" + session.User.ID
		}

		allowed, err := limiter.Allow(c.Request.Context(), key)
		if err != nil {
			log.Printf("限流检查失败，放行请求: %v", err)
			c.Next()
			return
		}
		if !allowed {
			m.IncRateLimited()
			c.AbortWithStatusJSON(http.StatusTooManyRequests, ErrorResponse{
				Error: "too many requests, please slow down",
			})
			return
		}
		c.Next()
	}
}
