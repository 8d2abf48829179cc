package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
)

// Error 输出统一的 {"error": msg} 响应体。
func Error(c *gin.Context, status int, msg string) {
	c.JSON(status, gin.H{"error": msg})
}

// ErrorWith 在错误响应中附带额外字段，例如冲突时的当前版本号。
func ErrorWith(c *gin.Context, status int, msg string, extra gin.H) {
	body := gin.H{"error": msg}
	for k, v := range extra {
		body[k] = v
	}
	c.JSON(status, body)
}

// TooManyRequests 写入 Retry-After（秒）并返回 429。
func TooManyRequests(c *gin.Context, msg string, retryAfter int) {
	c.Header("Retry-After", strconv.Itoa(retryAfter))
	ErrorWith(c, http.StatusTooManyRequests, msg, gin.H{"retryAfter": retryAfter})
}

func BadRequest(c *gin.Context, msg string)       { Error(c, http.StatusBadRequest, msg) }
func InvalidCredentials(c *gin.Context)           { Error(c, http.StatusUnauthorized, "Invalid credentials") }
func NotFound(c *gin.Context, msg string)         { Error(c, http.StatusNotFound, msg) }
func PayloadTooLarge(c *gin.Context, msg string)  { Error(c, http.StatusRequestEntityTooLarge, msg) }
func UnsupportedMedia(c *gin.Context, msg string) { Error(c, http.StatusUnsupportedMediaType, msg) }
func Internal(c *gin.Context, msg string)         { Error(c, http.StatusInternalServerError, msg) }
