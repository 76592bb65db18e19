package handlers

import (
	"context"
	"net/http"
	"strings"

	"chainvote-backend/models"
	"chainvote-backend/service"

	"github.com/gin-gonic/gin"
)

const sessionKey = "chainvote.session"

// SessionResolver 根据令牌解析会话
type SessionResolver interface {
	Resolve(ctx context.Context, token string) service.Session
}

// bearerToken 优先读取 Authorization 头；EventSource 与 WebSocket 无法设置请求头，
// 因此也接受 access_token 查询参数
func bearerToken(c *gin.Context) string {
	if h := c.GetHeader("Authorization"); h != "" {
		if token, ok := strings.CutPrefix(h, "Bearer "); ok {
			return strings.TrimSpace(token)
		}
		return ""
	}
	return c.Query("access_token")
}

// SessionMiddleware 每个请求解析一次会话并放入上下文
func SessionMiddleware(auth SessionResolver) gin.HandlerFunc {
	return func(c *gin.Context) {
		session := auth.Resolve(c.Request.Context(), bearerToken(c))
		c.Set(sessionKey, session)
		c.Next()
	}
}

// CurrentSession 取出当前请求的会话，没有时视为未登录
func CurrentSession(c *gin.Context) service.Session {
	if v, ok := c.Get(sessionKey); ok {
		if session, ok := v.(service.Session); ok {
			return session
		}
	}
	return service.Anonymous()
}

// RequireRole 路由守卫；role 为空时只要求已登录
func RequireRole(role models.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		decision := service.Guard(CurrentSession(c), role)
		if decision.Allowed() {
			c.Next()
			return
		}

		status := http.StatusForbidden
		message := "you do not have access to this page"
		switch decision.State {
		case service.GuardLoading:
			status = http.StatusServiceUnavailable
			message = "session is still loading, please retry"
			c.Header("Retry-After", "1")
		case service.GuardUnauthenticated:
			status = http.StatusUnauthorized
			message = "please sign in"
		}
		c.AbortWithStatusJSON(status, ErrorResponse{
			Error:    message,
			State:    string(decision.State),
			Redirect: decision.Redirect,
		})
	}
}
