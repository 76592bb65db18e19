package handlers

import (
	"bufio"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"chainvote-backend/cache"
	"chainvote-backend/models"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRateLimitMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(RateLimitMiddleware(cache.NewLocalRateLimiter(1, 1), nil))
	router.GET("/ping", func(c *gin.Context) { c.Status(http.StatusOK) })

	codes := make([]int, 0, 2)
	for i := 0; i < 2; i++ {
		w := httptest.NewRecorder()
		req, _ := http.NewRequest(http.MethodGet, "/ping", nil)
		router.ServeHTTP(w, req)
		codes = append(codes, w.Code)
	}
	assert.Equal(t, []int{http.StatusOK, http.StatusTooManyRequests}, codes)
}

func TestBearerTokenFromQuery(t *testing.T) {
	s := SetupTestEnvironment(t)
	token := s.signUp(t, models.RoleVoter, "q@example.com")

	w := s.do(t, http.MethodGet, "/api/voter/elections?access_token="+token, "", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	// 非 Bearer 的 Authorization 头不会回退到查询参数
	req, _ := http.NewRequest(http.MethodGet, "/api/voter/elections?access_token="+token, nil)
	req.Header.Set("Authorization", "Basic abc")
	w = httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestSSEStream(t *testing.T) {
	s := SetupTestEnvironment(t)
	company := s.signUp(t, models.RoleCompany, "board@example.com")
	election := s.createElection(t, company, "Alice", "Bob")

	server := httptest.NewServer(s.router)
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, server.URL+"/api/elections/"+election.ID+"/live", nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+company)

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	reader := bufio.NewReader(resp.Body)
	readEvent := func() string {
		for {
			line, err := reader.ReadString('\n')
			require.NoError(t, err)
			if data, ok := strings.CutPrefix(line, "data: "); ok {
				return data
			}
		}
	}

	assert.Contains(t, readEvent(), `"type":"connected"`)

	require.Eventually(t, func() bool { return s.hub.ClientCount(election.ID) == 1 }, time.Second, 10*time.Millisecond)
	s.hub.BroadcastToElection(election.ID, &models.WebSocketMessage{
		Type:       models.MessageTallyUpdate,
		ElectionID: election.ID,
	})
	assert.Contains(t, readEvent(), `"type":"tally_update"`)

	cancel()
	require.Eventually(t, func() bool { return s.hub.ClientCount(election.ID) == 0 }, time.Second, 10*time.Millisecond)
}

func TestSSEUnknownElection(t *testing.T) {
	s := SetupTestEnvironment(t)
	voter := s.signUp(t, models.RoleVoter, "v@example.com")

	w := s.do(t, http.MethodGet, "/api/elections/missing/live", voter, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}
