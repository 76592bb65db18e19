package service

import (
	"context"
	"errors"
	"log"
	"net/mail"
	"strings"
	"time"

	"chainvote-backend/cache"
	"chainvote-backend/config"
	"chainvote-backend/models"
	"chainvote-backend/repository"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

// MinPasswordLength 密码最短长度
const MinPasswordLength = 6

// SessionState 会话状态
type SessionState string

const (
	// SessionLoading 身份信息暂时无法确定（存储不可用），调用方应稍后重试
	SessionLoading SessionState = "loading"
	// SessionAnonymous 未登录、令牌无效或已注销
	SessionAnonymous SessionState = "anonymous"
	// SessionActive 已登录
	SessionActive SessionState = "active"
)

// User 是令牌携带的身份
type User struct {
	ID    string `json:"id"`
	Email string `json:"email"`
}

// Session 是每个请求显式携带的会话上下文
type Session struct {
	State     SessionState    `json:"state"`
	User      *User           `json:"user,omitempty"`
	Profile   *models.Profile `json:"profile,omitempty"`
	Token     string          `json:"token,omitempty"`
	ExpiresAt time.Time       `json:"expires_at,omitempty"`

	tokenID string
}

// Role 返回会话角色，未登录时为空
func (s Session) Role() models.Role {
	if s.Profile == nil {
		return ""
	}
	return s.Profile.Role
}

// Anonymous 未登录会话
func Anonymous() Session { return Session{State: SessionAnonymous} }

type sessionClaims struct {
	Role  models.Role `json:"role"`
	Email string      `json:"email"`
	jwt.RegisteredClaims
}

// AuthService 身份提供者：注册、登录、注销与会话解析
type AuthService struct {
	profiles   repository.ProfileRepository
	revoked    cache.RevocationStore
	secret     []byte
	issuer     string
	ttl        time.Duration
	bcryptCost int
	now        func() time.Time
}

// NewAuthService 创建认证服务
func NewAuthService(profiles repository.ProfileRepository, revoked cache.RevocationStore, cfg config.AuthConfig) *AuthService {
	return &AuthService{
		profiles:   profiles,
		revoked:    revoked,
		secret:     []byte(cfg.JWTSecret),
		issuer:     cfg.Issuer,
		ttl:        cfg.TokenTTL,
		bcryptCost: bcrypt.DefaultCost,
		now:        time.Now,
	}
}

func normalizeEmail(email string) (string, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return "", invalid("email", "a valid email address is required")
	}
	return email, nil
}

// SignUp 注册新账户并直接登录
func (s *AuthService) SignUp(ctx context.Context, role models.Role, email, password, name string) (*Session, error) {
	if !role.Valid() {
		return nil, invalid("role", "role must be company or voter")
	}
	email, err := normalizeEmail(email)
	if err != nil {
		return nil, err
	}
	if len(password) < MinPasswordLength {
		return nil, invalid("password", "password must be at least 6 characters")
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, invalid("name", "name is required")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.bcryptCost)
	if err != nil {
		return nil, writeFailed("hash password", err)
	}

	profile := &models.Profile{
		Role:         role,
		Name:         name,
		Email:        email,
		PasswordHash: string(hash),
	}
	if err := s.profiles.Create(ctx, profile); err != nil {
		if repository.IsConflict(err, repository.ConflictEmailExists) {
			return nil, authFailed("an account with this email already exists")
		}
		return nil, writeFailed("create profile", err)
	}

	log.Printf("新账户注册成功: %s (%s)", profile.ID, profile.Role)
	return s.issue(profile)
}

// SignIn 校验邮箱与密码；角色取自账户本身
func (s *AuthService) SignIn(ctx context.Context, email, password string) (*Session, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	profile, err := s.profiles.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, authFailed("invalid email or password")
		}
		return nil, err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(profile.PasswordHash), []byte(password)); err != nil {
		return nil, authFailed("invalid email or password")
	}
	return s.issue(profile)
}

func (s *AuthService) issue(profile *models.Profile) (*Session, error) {
	now := s.now()
	expiresAt := now.Add(s.ttl)
	claims := sessionClaims{
		Role:  profile.Role,
		Email: profile.Email,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   profile.ID,
			Issuer:    s.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return nil, writeFailed("sign token", err)
	}

	return &Session{
		State:     SessionActive,
		User:      &User{ID: profile.ID, Email: profile.Email},
		Profile:   profile,
		Token:     token,
		ExpiresAt: expiresAt,
		tokenID:   claims.ID,
	}, nil
}

// SignOut 吊销当前令牌直到其过期
func (s *AuthService) SignOut(ctx context.Context, session Session) error {
	if session.State != SessionActive || session.tokenID == "" {
		return nil
	}
	ttl := session.ExpiresAt.Sub(s.now())
	if err := s.revoked.Revoke(ctx, session.tokenID, ttl); err != nil {
		return writeFailed("revoke token", err)
	}
	return nil
}

// Resolve 解析 Bearer 令牌得到会话，从不返回错误
//
// 令牌缺失、无效、过期或已吊销时为 anonymous；吊销列表或账户存储
// 暂时不可用时为 loading，由调用方决定稍后重试。
func (s *AuthService) Resolve(ctx context.Context, token string) Session {
	if token == "" {
		return Anonymous()
	}

	claims := &sessionClaims{}
	_, err := jwt.ParseWithClaims(token, claims,
		func(*jwt.Token) (interface{}, error) { return s.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(s.issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		return Anonymous()
	}

	revoked, err := s.revoked.IsRevoked(ctx, claims.ID)
	if err != nil {
		log.Printf("查询令牌吊销状态失败: %v", err)
		return Session{State: SessionLoading}
	}
	if revoked {
		return Anonymous()
	}

	profile, err := s.profiles.GetByID(ctx, claims.Subject)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return Anonymous()
		}
		log.Printf("加载账户失败: %v", err)
		return Session{State: SessionLoading}
	}

	return Session{
		State:     SessionActive,
		User:      &User{ID: profile.ID, Email: profile.Email},
		Profile:   profile,
		ExpiresAt: claims.ExpiresAt.Time,
		tokenID:   claims.ID,
	}
}
