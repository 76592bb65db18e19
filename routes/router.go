package routes

import (
	"context"
	"errors"
	"log"
	"net/http"
	"time"

	"chainvote-backend/cache"
	"chainvote-backend/config"
	"chainvote-backend/handlers"
	"chainvote-backend/metrics"
	"chainvote-backend/service"
	"chainvote-backend/websocket"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"gorm.io/gorm"
)

// Server 是HTTP服务器的封装
type Server struct {
	*http.Server
}

// Dependencies 组装路由所需的全部组件
type Dependencies struct {
	Config    *config.Config
	DB        *gorm.DB
	Auth      *service.AuthService
	Elections *service.ElectionService
	Votes     *service.VoteService
	Hub       *websocket.Hub
	Limiter   cache.RateLimiter // 为 nil 时不限流
	Metrics   *metrics.Metrics
	Gatherer  prometheus.Gatherer
	Redis     bool
}

// SetupRouter 设置和配置Gin路由
func SetupRouter(deps Dependencies) *gin.Engine {
	router := gin.New()
	router.Use(gin.Logger(), gin.Recovery(), deps.Metrics.Middleware())

	// 配置CORS中间件
	corsConfig := cors.Config{
		AllowMethods:  []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Content-Type", "Accept", "Authorization"},
		ExposeHeaders: []string{"Content-Length"},
		MaxAge:        12 * time.Hour,
	}
	if allowsAnyOrigin(deps.Config.Server.AllowedOrigins) {
		corsConfig.AllowAllOrigins = true
	} else {
		corsConfig.AllowOrigins = deps.Config.Server.AllowedOrigins
		corsConfig.AllowCredentials = true
	}
	router.Use(cors.New(corsConfig))

	router.GET("/", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"name":    "ChainVote",
			"version": handlers.Version,
			"links": gin.H{
				"company": "/api/auth/company/signin",
				"voter":   "/api/auth/voter/signin",
			},
		})
	})
	if deps.Gatherer != nil {
		router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(deps.Gatherer, promhttp.HandlerOpts{})))
	}

	api := router.Group("/api")
	api.Use(handlers.SessionMiddleware(deps.Auth))
	if deps.Limiter != nil {
		api.Use(handlers.RateLimitMiddleware(deps.Limiter, deps.Metrics))
	}
	{
		handlers.NewHealthHandler(deps.DB, deps.Config.Tally.Mode, deps.Redis).RegisterRoutes(api)
		handlers.NewAuthHandler(deps.Auth).RegisterRoutes(api)
		handlers.NewElectionHandler(deps.Elections, deps.Votes).RegisterRoutes(api)
		handlers.NewSSEHandler(deps.Hub, deps.Elections).RegisterRoutes(api)

		live := api.Group("", handlers.RequireRole(""))
		websocket.NewHandler(deps.Hub, deps.Elections).RegisterRoutes(live)
	}

	router.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, handlers.ErrorResponse{Error: "not found"})
	})

	return router
}

func allowsAnyOrigin(origins []string) bool {
	for _, o := range origins {
		if o == "*" {
			return true
		}
	}
	return len(origins) == 0
}

// StartServer 在单独的goroutine中启动HTTP服务器
func StartServer(addr string, router *gin.Engine) *Server {
	srv := &Server{
		&http.Server{
			Addr:              addr,
			Handler:           router,
			ReadHeaderTimeout: 10 * time.Second,
		},
	}

	go func() {
		log.Printf("服务器启动在 %s", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("服务器启动失败: %v", err)
		}
	}()

	return srv
}

// Stop 在超时内优雅关闭
func (s *Server) Stop(timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	return s.Server.Shutdown(ctx)
}
