package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"chainvote-backend/cache"
	"chainvote-backend/config"
	"chainvote-backend/database"
	"chainvote-backend/models"
	"chainvote-backend/mq"
	"chainvote-backend/repository"
	"chainvote-backend/service"
	"chainvote-backend/websocket"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type testServer struct {
	router    *gin.Engine
	db        *gorm.DB
	hub       *websocket.Hub
	elections *service.ElectionService
}

// SetupTestEnvironment 使用内存 SQLite 和进程内组件组装完整的 API
func SetupTestEnvironment(t *testing.T) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db, err := database.Open(config.DatabaseConfig{
		Driver:   "sqlite",
		DSN:      "file:" + uuid.NewString() + "?mode=memory&cache=shared",
		LogLevel: "silent",
	})
	require.NoError(t, err)
	require.NoError(t, database.Migrate(db))

	electionRepo := repository.NewElectionRepository(db)
	voteRepo := repository.NewVoteRepository(db)
	results := cache.NewResultsCache(nil, cache.NewLocalLocker(), time.Minute)
	bus := mq.NewMemoryBus()

	auth := service.NewAuthService(repository.NewProfileRepository(db), cache.NewMemoryRevocationStore(), config.AuthConfig{
		JWTSecret: "handler-test-secret",
		Issuer:    "chainvote-test",
		TokenTTL:  time.Hour,
	})
	elections := service.NewElectionService(electionRepo, voteRepo, service.NewTallyStrategy(config.TallyModeAtomic, voteRepo), results, nil, time.UTC)
	votes := service.NewVoteService(elections, voteRepo, bus, nil)

	hub := websocket.NewHub()
	ctx, cancel := context.WithCancel(context.Background())
	stopped := make(chan struct{})
	go func() {
		hub.Run(ctx)
		close(stopped)
	}()
	t.Cleanup(func() {
		cancel()
		<-stopped
		database.Close(db)
	})

	router := gin.New()
	api := router.Group("/api")
	api.Use(SessionMiddleware(auth))
	{
		NewHealthHandler(db, config.TallyModeAtomic, false).RegisterRoutes(api)
		NewAuthHandler(auth).RegisterRoutes(api)
		NewElectionHandler(elections, votes).RegisterRoutes(api)
		NewSSEHandler(hub, elections).RegisterRoutes(api)
	}

	return &testServer{router: router, db: db, hub: hub, elections: elections}
}

// do 发送 JSON 请求，token 为空时不带 Authorization 头
func (s *testServer) do(t *testing.T, method, path, token string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, path, &buf)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

// signUp 注册账户并返回令牌
func (s *testServer) signUp(t *testing.T, role models.Role, email string) string {
	t.Helper()
	w := s.do(t, http.MethodPost, "/api/auth/"+string(role)+"/signup", "", gin.H{
		"email":    email,
		"password": "secret1",
		"name":     email,
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var resp AuthResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp.Session.Token
}

// createElection 以公司身份创建一场已开始的选举
func (s *testServer) createElection(t *testing.T, token string, candidates ...string) models.Election {
	t.Helper()
	w := s.do(t, http.MethodPost, "/api/company/elections", token, gin.H{
		"title":      "Board Election",
		"start_date": time.Now().UTC().AddDate(0, 0, -1).Format("2006-01-02"),
		"end_date":   time.Now().UTC().AddDate(0, 0, 7).Format("2006-01-02"),
		"candidates": candidates,
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var resp struct {
		Election models.Election `json:"election"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp.Election
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}
