package api

import (
	"context"
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"siteCMS/internal/api/middleware"
	"siteCMS/internal/auth"
	"siteCMS/internal/metrics"
	"siteCMS/internal/ratelimit"
)

// LoginLimiter 是登录接口需要的限流能力。
type LoginLimiter interface {
	Check(ctx context.Context, clientID string) (ratelimit.Decision, error)
	Reset(ctx context.Context, clientID string) error
}

// AuthHandler 处理管理员登录与退出。
type AuthHandler struct {
	auth          *auth.AdminAuth
	limiter       LoginLimiter
	logger        *slog.Logger
	secureCookies bool
}

// NewAuthHandler 构造认证处理器。secureCookies 为 true 时 Cookie 总是带 Secure。
func NewAuthHandler(adminAuth *auth.AdminAuth, limiter LoginLimiter, logger *slog.Logger, secureCookies bool) *AuthHandler {
	return &AuthHandler{
		auth:          adminAuth,
		limiter:       limiter,
		logger:        logger,
		secureCookies: secureCookies,
	}
}

type loginRequest struct {
	Password string `json:"password"`
}

// Login 校验管理员密码并写入会话 Cookie。
func (h *AuthHandler) Login(c *gin.Context) {
	ctx := c.Request.Context()
	clientID := ratelimit.ClientID(c.Request.Header, c.ClientIP())
	logger := h.loggerFromContext(c).With(slog.String("client_id", clientID))

	decision, err := h.limiter.Check(ctx, clientID)
	if err != nil {
		logger.Warn("login rate limiter unavailable, allowing attempt", slog.Any("error", err))
	}
	setRateLimitHeaders(c, decision)
	if !decision.Allowed {
		retryAfter := int(math.Ceil(decision.RetryAfter.Seconds()))
		logger.Warn("login rate limited", slog.Int("retry_after", retryAfter))
		metrics.ObserveLogin("limited")
		TooManyRequests(c, "Too many login attempts. Please try again later.", retryAfter)
		return
	}

	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "Invalid JSON in request body")
		return
	}
	if msg, ok := auth.ValidateLoginInput(req.Password); !ok {
		BadRequest(c, msg)
		return
	}

	if !h.auth.Configured() {
		logger.Error("admin password is not configured")
		metrics.ObserveLogin("error")
		Internal(c, "Server configuration error")
		return
	}
	if err := h.auth.CheckPassword(req.Password); err != nil {
		logger.Info("login failed: password mismatch", slog.Int("remaining", decision.Remaining))
		metrics.ObserveLogin("invalid")
		InvalidCredentials(c)
		return
	}

	if err := h.limiter.Reset(ctx, clientID); err != nil {
		logger.Warn("reset login attempts failed", slog.Any("error", err))
	}

	token, err := h.auth.IssueToken()
	if err != nil {
		logger.Error("issue admin token failed", slog.Any("error", err))
		metrics.ObserveLogin("error")
		Internal(c, "Internal server error")
		return
	}

	h.setSessionCookies(c, token)
	metrics.ObserveLogin("ok")
	logger.Info("admin logged in")
	c.JSON(http.StatusOK, gin.H{"success": true, "message": "Login successful"})
}

// Logout 清除会话 Cookie。令牌本身在到期前仍然有效。
func (h *AuthHandler) Logout(c *gin.Context) {
	h.clearSessionCookies(c)
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// Session 报告当前请求是否已登录，供前端决定是否跳转登录页。
func (h *AuthHandler) Session(c *gin.Context) {
	token := middleware.AdminToken(c)
	if token == "" {
		c.JSON(http.StatusOK, gin.H{"authenticated": false})
		return
	}
	claims, err := h.auth.ValidateToken(token)
	if err != nil {
		c.JSON(http.StatusOK, gin.H{"authenticated": false})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"authenticated": true,
		"expiresAt":     claims.ExpiresAt.Time.UTC().Format(time.RFC3339),
	})
}

func setRateLimitHeaders(c *gin.Context, d ratelimit.Decision) {
	c.Header("X-RateLimit-Limit", strconv.Itoa(d.Limit))
	c.Header("X-RateLimit-Remaining", strconv.Itoa(d.Remaining))
	if !d.ResetAt.IsZero() {
		c.Header("X-RateLimit-Reset", d.ResetAt.UTC().Format(time.RFC3339))
	}
}

func (h *AuthHandler) setSessionCookies(c *gin.Context, token string) {
	ttl := h.auth.TokenTTL()
	secure := h.secureCookies || isHTTPSRequest(c)
	http.SetCookie(c.Writer, &http.Cookie{
		Name:     middleware.AdminTokenCookie,
		Value:    token,
		MaxAge:   int(ttl.Seconds()),
		Expires:  time.Now().Add(ttl),
		Path:     "/",
		Secure:   secure,
		HttpOnly: true,
		SameSite: http.SameSiteStrictMode,
	})
	if h.auth.AllowLegacyCookie() {
		http.SetCookie(c.Writer, &http.Cookie{
			Name:     middleware.LegacyAdminCookie,
			Value:    "1",
			MaxAge:   int(ttl.Seconds()),
			Path:     "/",
			Secure:   secure,
			HttpOnly: true,
			SameSite: http.SameSiteStrictMode,
		})
	}
}

func (h *AuthHandler) clearSessionCookies(c *gin.Context) {
	secure := h.secureCookies || isHTTPSRequest(c)
	for _, name := range []string{middleware.AdminTokenCookie, middleware.LegacyAdminCookie} {
		http.SetCookie(c.Writer, &http.Cookie{
			Name:     name,
			Value:    "",
			MaxAge:   -1,
			Path:     "/",
			Secure:   secure,
			HttpOnly: true,
			SameSite: http.SameSiteStrictMode,
		})
	}
}

func (h *AuthHandler) loggerFromContext(c *gin.Context) *slog.Logger {
	if logger := middleware.LoggerFromContext(c); logger != nil {
		return logger
	}
	if h.logger != nil {
		return h.logger
	}
	return slog.Default()
}

func isHTTPSRequest(c *gin.Context) bool {
	if c.Request == nil {
		return false
	}
	if c.Request.TLS != nil {
		return true
	}
	return strings.EqualFold(c.Request.Header.Get("X-Forwarded-Proto"), "https")
}
