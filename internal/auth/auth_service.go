package auth

import (
	"crypto/subtle"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"siteCMS/internal/config"
)

// TokenIssuer 同时用作 JWT 的 iss 与 aud。
const TokenIssuer = "sitecms-admin"

// MaxPasswordLength 是登录密码允许的最大长度。
const MaxPasswordLength = 1000

var (
	// ErrNotConfigured 表示既没有配置明文密码也没有配置密码哈希。
	ErrNotConfigured = errors.New("admin password is not configured")
	// ErrInvalidCredentials 表示密码错误。
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrInvalidToken 表示令牌无法通过校验。
	ErrInvalidToken = errors.New("invalid admin token")
)

// AdminAuth 负责管理员密码校验与会话 JWT 的签发、校验。
type AdminAuth struct {
	password     string
	passwordHash string
	secret       []byte
	ttl          time.Duration
	allowLegacy  bool
	now          func() time.Time
}

// AdminClaims 是会话令牌中的业务字段。
type AdminClaims struct {
	IsAdmin bool `json:"is_admin"`
	jwt.RegisteredClaims
}

// NewAdminAuth 根据配置构造 AdminAuth。
func NewAdminAuth(cfg config.AdminConfig) (*AdminAuth, error) {
	if strings.TrimSpace(cfg.JWTSecret) == "" {
		return nil, errors.New("jwt secret is required")
	}
	hash := strings.TrimSpace(cfg.PasswordHash)
	if hash != "" {
		if err := validatePasswordHash(hash); err != nil {
			return nil, err
		}
	}
	return &AdminAuth{
		password:     cfg.Password,
		passwordHash: hash,
		secret:       []byte(cfg.JWTSecret),
		ttl:          cfg.TokenTTL(),
		allowLegacy:  cfg.AllowLegacyCookie,
		now:          time.Now,
	}, nil
}

// Configured 报告是否可以登录。
func (a *AdminAuth) Configured() bool {
	return a.password != "" || a.passwordHash != ""
}

// CheckPassword 优先比较明文密码，否则比较 bcrypt 哈希。
func (a *AdminAuth) CheckPassword(password string) error {
	switch {
	case a.password != "":
		if subtle.ConstantTimeCompare([]byte(password), []byte(a.password)) == 1 {
			return nil
		}
		return ErrInvalidCredentials
	case a.passwordHash != "":
		if CheckPasswordHash(password, a.passwordHash) {
			return nil
		}
		return ErrInvalidCredentials
	default:
		return ErrNotConfigured
	}
}

// IssueToken 签发管理员会话令牌。
func (a *AdminAuth) IssueToken() (string, error) {
	now := a.now()
	claims := AdminClaims{
		IsAdmin: true,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    TokenIssuer,
			Audience:  jwt.ClaimStrings{TokenIssuer},
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(a.ttl)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(a.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// ValidateToken 解析并验证会话令牌，要求 is_admin 为 true。
func (a *AdminAuth) ValidateToken(tokenString string) (*AdminClaims, error) {
	if tokenString == "" {
		return nil, ErrInvalidToken
	}

	token, err := jwt.ParseWithClaims(tokenString, &AdminClaims{}, func(token *jwt.Token) (interface{}, error) {
		if token.Method.Alg() != jwt.SigningMethodHS256.Alg() {
			return nil, fmt.Errorf("unexpected signing method: %s", token.Method.Alg())
		}
		return a.secret, nil
	},
		jwt.WithIssuer(TokenIssuer),
		jwt.WithAudience(TokenIssuer),
		jwt.WithTimeFunc(a.now),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	claims, ok := token.Claims.(*AdminClaims)
	if !ok || !token.Valid || !claims.IsAdmin {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// TokenTTL 暴露会话有效期，登录 Cookie 的 Max-Age 与之一致。
func (a *AdminAuth) TokenTTL() time.Duration {
	return a.ttl
}

// AllowLegacyCookie 报告是否接受旧版 admin=1 Cookie。
func (a *AdminAuth) AllowLegacyCookie() bool {
	return a.allowLegacy
}

// ValidateLoginInput 校验登录请求中的密码字段，返回给用户看的错误信息。
func ValidateLoginInput(password string) (string, bool) {
	if password == "" {
		return "Password is required", false
	}
	if len(password) > MaxPasswordLength {
		return "Password too long", false
	}
	return "", true
}
