package middleware

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"siteCMS/internal/auth"
)

// Cookie 名称与旧版前端保持一致。
const (
	AdminTokenCookie  = "admin-token"
	LegacyAdminCookie = "admin"
)

const adminClaimsKey = "adminClaims"

// AdminTokenValidator 是中间件需要的鉴权能力。
type AdminTokenValidator interface {
	ValidateToken(token string) (*auth.AdminClaims, error)
	AllowLegacyCookie() bool
}

func abortUnauthorized(c *gin.Context) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
}

// AdminAuthMiddleware 校验 admin-token Cookie（或 Bearer 令牌）。
// 开启兼容时也接受旧版 admin=1 Cookie。
func AdminAuthMiddleware(validator AdminTokenValidator) gin.HandlerFunc {
	return func(c *gin.Context) {
		if token := AdminToken(c); token != "" {
			claims, err := validator.ValidateToken(token)
			if err == nil {
				c.Set(adminClaimsKey, claims)
				c.Next()
				return
			}
			LoggerFromContext(c).Info("admin token rejected", slog.Any("error", err))
		}

		if validator.AllowLegacyCookie() {
			if v, err := c.Cookie(LegacyAdminCookie); err == nil && v == "1" {
				c.Next()
				return
			}
		}

		abortUnauthorized(c)
	}
}

// AdminToken 优先读取 Cookie，其次读取 Authorization 头。
func AdminToken(c *gin.Context) string {
	if token, err := c.Cookie(AdminTokenCookie); err == nil && strings.TrimSpace(token) != "" {
		return strings.TrimSpace(token)
	}
	parts := strings.Fields(c.GetHeader("Authorization"))
	if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
		return parts[1]
	}
	return ""
}

// AdminClaimsFromContext 返回中间件写入的声明；旧版 Cookie 登录时不存在。
func AdminClaimsFromContext(c *gin.Context) (*auth.AdminClaims, bool) {
	value, ok := c.Get(adminClaimsKey)
	if !ok {
		return nil, false
	}
	claims, ok := value.(*auth.AdminClaims)
	return claims, ok
}
