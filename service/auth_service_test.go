package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"chainvote-backend/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSignUpAndResolve(t *testing.T) {
	env := setupTestEnv(t, "atomic")

	session, err := env.authSv.SignUp(t.Context(), models.RoleCompany, " Acme@Example.com ", "secret1", "Acme")
	require.NoError(t, err)
	assert.Equal(t, SessionActive, session.State)
	assert.Equal(t, "acme@example.com", session.User.Email)
	assert.Equal(t, models.RoleCompany, session.Role())
	assert.NotEmpty(t, session.Token)

	resolved := env.authSv.Resolve(t.Context(), session.Token)
	assert.Equal(t, SessionActive, resolved.State)
	assert.Equal(t, session.User.ID, resolved.User.ID)
	assert.Equal(t, models.RoleCompany, resolved.Role())
}

func TestSignUpValidation(t *testing.T) {
	env := setupTestEnv(t, "atomic")

	_, err := env.authSv.SignUp(t.Context(), "admin", "a@example.com", "secret1", "A")
	assert.ErrorIs(t, err, ErrValidation)

	_, err = env.authSv.SignUp(t.Context(), models.RoleVoter, "not-an-email", "secret1", "A")
	assert.ErrorIs(t, err, ErrValidation)

	_, err = env.authSv.SignUp(t.Context(), models.RoleVoter, "a@example.com", "short", "A")
	assert.ErrorIs(t, err, ErrValidation)

	_, err = env.authSv.SignUp(t.Context(), models.RoleVoter, "a@example.com", "secret1", " ")
	assert.ErrorIs(t, err, ErrValidation)
}

func TestSignUpDuplicateEmail(t *testing.T) {
	env := setupTestEnv(t, "atomic")

	_, err := env.authSv.SignUp(t.Context(), models.RoleVoter, "bob@example.com", "secret1", "Bob")
	require.NoError(t, err)

	_, err = env.authSv.SignUp(t.Context(), models.RoleCompany, "BOB@example.com", "secret2", "Bob Inc")
	assert.ErrorIs(t, err, ErrAuthFailed)
}

func TestSignIn(t *testing.T) {
	env := setupTestEnv(t, "atomic")
	_, err := env.authSv.SignUp(t.Context(), models.RoleVoter, "carol@example.com", "secret1", "Carol")
	require.NoError(t, err)

	session, err := env.authSv.SignIn(t.Context(), "carol@example.com", "secret1")
	require.NoError(t, err)
	assert.Equal(t, models.RoleVoter, session.Role())
	assert.Equal(t, "/voter/elections", DashboardPath(session.Role()))

	_, err = env.authSv.SignIn(t.Context(), "carol@example.com", "wrong-password")
	assert.ErrorIs(t, err, ErrAuthFailed)

	_, err = env.authSv.SignIn(t.Context(), "nobody@example.com", "secret1")
	assert.ErrorIs(t, err, ErrAuthFailed)
}

func TestSignOutRevokesToken(t *testing.T) {
	env := setupTestEnv(t, "atomic")
	session, err := env.authSv.SignUp(t.Context(), models.RoleVoter, "dave@example.com", "secret1", "Dave")
	require.NoError(t, err)

	resolved := env.authSv.Resolve(t.Context(), session.Token)
	require.NoError(t, env.authSv.SignOut(t.Context(), resolved))

	assert.Equal(t, SessionAnonymous, env.authSv.Resolve(t.Context(), session.Token).State)

	// 未登录会话注销是无操作
	assert.NoError(t, env.authSv.SignOut(t.Context(), Anonymous()))
}

func TestResolveRejectsBadTokens(t *testing.T) {
	env := setupTestEnv(t, "atomic")
	session, err := env.authSv.SignUp(t.Context(), models.RoleVoter, "erin@example.com", "secret1", "Erin")
	require.NoError(t, err)

	assert.Equal(t, SessionAnonymous, env.authSv.Resolve(t.Context(), "").State)
	assert.Equal(t, SessionAnonymous, env.authSv.Resolve(t.Context(), "garbage").State)

	// 过期
	env.authSv.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
	assert.Equal(t, SessionAnonymous, env.authSv.Resolve(t.Context(), session.Token).State)
}

type failingRevocationStore struct{}

func (failingRevocationStore) Revoke(context.Context, string, time.Duration) error {
	return errors.New("store unavailable")
}

func (failingRevocationStore) IsRevoked(context.Context, string) (bool, error) {
	return false, errors.New("store unavailable")
}

func TestResolveLoadingWhenStoreUnavailable(t *testing.T) {
	env := setupTestEnv(t, "atomic")
	session, err := env.authSv.SignUp(t.Context(), models.RoleVoter, "frank@example.com", "secret1", "Frank")
	require.NoError(t, err)

	env.authSv.revoked = failingRevocationStore{}
	resolved := env.authSv.Resolve(t.Context(), session.Token)
	assert.Equal(t, SessionLoading, resolved.State)
	assert.Equal(t, GuardLoading, Guard(resolved, models.RoleVoter).State)
}

func TestGuard(t *testing.T) {
	company := Session{State: SessionActive, Profile: &models.Profile{ID: "c", Role: models.RoleCompany}}
	voter := Session{State: SessionActive, Profile: &models.Profile{ID: "v", Role: models.RoleVoter}}

	cases := []struct {
		name     string
		session  Session
		required models.Role
		want     Decision
	}{
		{"loading", Session{State: SessionLoading}, models.RoleVoter, Decision{State: GuardLoading}},
		{"anonymous", Anonymous(), models.RoleVoter, Decision{State: GuardUnauthenticated, Redirect: HomePath}},
		{"active without profile", Session{State: SessionActive}, "", Decision{State: GuardUnauthenticated, Redirect: HomePath}},
		{"wrong role", company, models.RoleVoter, Decision{State: GuardUnauthorized, Redirect: HomePath}},
		{"voter page", voter, models.RoleVoter, Decision{State: GuardAuthorized}},
		{"company page", company, models.RoleCompany, Decision{State: GuardAuthorized}},
		{"login only", voter, "", Decision{State: GuardAuthorized}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := Guard(tc.session, tc.required)
			assert.Equal(t, tc.want, got)
			assert.Equal(t, tc.want.State == GuardAuthorized, got.Allowed())
		})
	}
}
