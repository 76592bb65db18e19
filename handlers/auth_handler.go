package handlers

import (
	"net/http"

	"chainvote-backend/models"
	"chainvote-backend/service"

	"github.com/gin-gonic/gin"
)

// AuthResponse 注册或登录成功后返回会话与跳转地址
type AuthResponse struct {
	Session  *service.Session `json:"session"`
	Redirect string           `json:"redirect"`
}

// AuthHandler 处理注册、登录、注销
type AuthHandler struct {
	auth *service.AuthService
}

// NewAuthHandler 创建认证处理器
func NewAuthHandler(auth *service.AuthService) *AuthHandler {
	return &AuthHandler{auth: auth}
}

// RegisterRoutes 注册认证路由
func (h *AuthHandler) RegisterRoutes(api *gin.RouterGroup) {
	auth := api.Group("/auth")
	{
		auth.POST("/:role/signup", h.SignUp)
		auth.POST("/:role/signin", h.SignIn)
		auth.POST("/signout", RequireRole(""), h.SignOut)
		auth.GET("/session", h.Session)
	}
}

func roleParam(c *gin.Context) (models.Role, bool) {
	role := models.Role(c.Param("role"))
	if !role.Valid() {
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "unknown role"})
		return "", false
	}
	return role, true
}

// SignUp 注册并登录，跳转到对应角色的首页
func (h *AuthHandler) SignUp(c *gin.Context) {
	role, ok := roleParam(c)
	if !ok {
		return
	}
	var req models.SignUpRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}

	session, err := h.auth.SignUp(c.Request.Context(), role, req.Email, req.Password, req.Name)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, AuthResponse{Session: session, Redirect: service.DashboardPath(role)})
}

// SignIn 登录；跳转地址由账户本身的角色决定，与路径中的角色无关
func (h *AuthHandler) SignIn(c *gin.Context) {
	if _, ok := roleParam(c); !ok {
		return
	}
	var req models.SignInRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}

	session, err := h.auth.SignIn(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, AuthResponse{Session: session, Redirect: service.DashboardPath(session.Role())})
}

// SignOut 吊销当前令牌
func (h *AuthHandler) SignOut(c *gin.Context) {
	if err := h.auth.SignOut(c.Request.Context(), CurrentSession(c)); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"redirect": service.HomePath})
}

// Session 返回当前会话，未登录时 state 为 anonymous
func (h *AuthHandler) Session(c *gin.Context) {
	c.JSON(http.StatusOK, CurrentSession(c))
}
