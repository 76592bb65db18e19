package handlers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"chainvote-backend/models"
	"chainvote-backend/service"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSignUpAndSession(t *testing.T) {
	s := SetupTestEnvironment(t)

	w := s.do(t, http.MethodPost, "/api/auth/company/signup", "", gin.H{
		"email": "acme@example.com", "password": "secret1", "name": "Acme",
	})
	require.Equal(t, http.StatusCreated, w.Code)
	resp := decode[AuthResponse](t, w)
	assert.Equal(t, "/company/dashboard", resp.Redirect)
	assert.Equal(t, models.RoleCompany, resp.Session.Profile.Role)
	assert.NotContains(t, w.Body.String(), "password")

	w = s.do(t, http.MethodGet, "/api/auth/session", resp.Session.Token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	session := decode[service.Session](t, w)
	assert.Equal(t, service.SessionActive, session.State)
	assert.Equal(t, "acme@example.com", session.User.Email)

	w = s.do(t, http.MethodGet, "/api/auth/session", "", nil)
	assert.Equal(t, service.SessionAnonymous, decode[service.Session](t, w).State)
}

func TestSignUpErrors(t *testing.T) {
	s := SetupTestEnvironment(t)
	s.signUp(t, models.RoleVoter, "taken@example.com")

	tests := []struct {
		name         string
		path         string
		body         gin.H
		expectedCode int
	}{
		{"unknown role", "/api/auth/admin/signup", gin.H{"email": "a@example.com", "password": "secret1", "name": "A"}, http.StatusNotFound},
		{"missing name", "/api/auth/voter/signup", gin.H{"email": "a@example.com", "password": "secret1"}, http.StatusBadRequest},
		{"short password", "/api/auth/voter/signup", gin.H{"email": "a@example.com", "password": "123", "name": "A"}, http.StatusBadRequest},
		{"email taken", "/api/auth/company/signup", gin.H{"email": "taken@example.com", "password": "secret1", "name": "A"}, http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := s.do(t, http.MethodPost, tt.path, "", tt.body)
			assert.Equal(t, tt.expectedCode, w.Code, w.Body.String())
			assert.NotEmpty(t, decode[ErrorResponse](t, w).Error)
		})
	}
}

func TestSignInRedirectFollowsStoredRole(t *testing.T) {
	s := SetupTestEnvironment(t)
	s.signUp(t, models.RoleCompany, "board@example.com")

	// 从选民登录入口登录公司账户，仍然进入公司看板
	w := s.do(t, http.MethodPost, "/api/auth/voter/signin", "", gin.H{
		"email": "board@example.com", "password": "secret1",
	})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "/company/dashboard", decode[AuthResponse](t, w).Redirect)

	w = s.do(t, http.MethodPost, "/api/auth/company/signin", "", gin.H{
		"email": "board@example.com", "password": "wrong-password",
	})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "invalid email or password", decode[ErrorResponse](t, w).Error)
}

func TestSignOut(t *testing.T) {
	s := SetupTestEnvironment(t)
	token := s.signUp(t, models.RoleVoter, "voter@example.com")

	w := s.do(t, http.MethodPost, "/api/auth/signout", token, nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = s.do(t, http.MethodGet, "/api/voter/elections", token, nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = s.do(t, http.MethodPost, "/api/auth/signout", "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestRouteGuard(t *testing.T) {
	s := SetupTestEnvironment(t)
	voter := s.signUp(t, models.RoleVoter, "v@example.com")
	company := s.signUp(t, models.RoleCompany, "c@example.com")

	w := s.do(t, http.MethodGet, "/api/company/dashboard", "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	resp := decode[ErrorResponse](t, w)
	assert.Equal(t, string(service.GuardUnauthenticated), resp.State)
	assert.Equal(t, "/", resp.Redirect)

	w = s.do(t, http.MethodGet, "/api/company/dashboard", voter, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, string(service.GuardUnauthorized), decode[ErrorResponse](t, w).State)

	w = s.do(t, http.MethodGet, "/api/voter/elections", company, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = s.do(t, http.MethodGet, "/api/company/dashboard", company, nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

type loadingResolver struct{}

func (loadingResolver) Resolve(context.Context, string) service.Session {
	return service.Session{State: service.SessionLoading}
}

func TestRouteGuardWhileLoading(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(SessionMiddleware(loadingResolver{}))
	router.GET("/voter", RequireRole(models.RoleVoter), func(c *gin.Context) { c.Status(http.StatusOK) })

	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodGet, "/voter", nil)
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Equal(t, "1", w.Header().Get("Retry-After"))
	resp := decode[ErrorResponse](t, w)
	assert.Equal(t, string(service.GuardLoading), resp.State)
	assert.Empty(t, resp.Redirect)
}
