package middleware

import (
	"bytes"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"

	"siteCMS/internal/auth"
)

type stubValidator struct {
	valid  string
	legacy bool
}

func (v stubValidator) ValidateToken(token string) (*auth.AdminClaims, error) {
	if token != v.valid {
		return nil, errors.New("bad token")
	}
	return &auth.AdminClaims{IsAdmin: true}, nil
}

func (v stubValidator) AllowLegacyCookie() bool { return v.legacy }

func newAdminRouter(v AdminTokenValidator) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(CorrelationIDMiddleware(), SecurityHeaders())
	r.GET("/admin", AdminAuthMiddleware(v), func(c *gin.Context) {
		_, hasClaims := AdminClaimsFromContext(c)
		if hasClaims {
			c.String(http.StatusOK, "claims")
			return
		}
		c.String(http.StatusOK, "legacy")
	})
	return r
}

func TestAdminAuthMiddleware(t *testing.T) {
	cases := []struct {
		name     string
		legacy   bool
		setup    func(r *http.Request)
		wantCode int
		wantBody string
	}{
		{"no credentials", false, func(*http.Request) {}, http.StatusUnauthorized, `{"error":"Unauthorized"}`},
		{"valid cookie", false, func(r *http.Request) { r.AddCookie(&http.Cookie{Name: AdminTokenCookie, Value: "good"}) }, http.StatusOK, "claims"},
		{"valid bearer", false, func(r *http.Request) { r.Header.Set("Authorization", "Bearer good") }, http.StatusOK, "claims"},
		{"invalid cookie", false, func(r *http.Request) { r.AddCookie(&http.Cookie{Name: AdminTokenCookie, Value: "bad"}) }, http.StatusUnauthorized, `{"error":"Unauthorized"}`},
		{"legacy cookie disabled", false, func(r *http.Request) { r.AddCookie(&http.Cookie{Name: LegacyAdminCookie, Value: "1"}) }, http.StatusUnauthorized, `{"error":"Unauthorized"}`},
		{"legacy cookie enabled", true, func(r *http.Request) { r.AddCookie(&http.Cookie{Name: LegacyAdminCookie, Value: "1"}) }, http.StatusOK, "legacy"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r := newAdminRouter(stubValidator{valid: "good", legacy: tc.legacy})
			req := httptest.NewRequest(http.MethodGet, "/admin", nil)
			tc.setup(req)
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)

			if w.Code != tc.wantCode {
				t.Fatalf("status = %d, want %d", w.Code, tc.wantCode)
			}
			if strings.TrimSpace(w.Body.String()) != tc.wantBody {
				t.Fatalf("body = %q, want %q", w.Body.String(), tc.wantBody)
			}
			if w.Header().Get("X-Frame-Options") != "DENY" {
				t.Fatalf("missing security headers: %v", w.Header())
			}
		})
	}
}

func TestCorrelationIDMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(CorrelationIDMiddleware())
	r.GET("/", func(c *gin.Context) { c.String(http.StatusOK, GetCorrelationID(c)) })

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(CorrelationIDHeader, "abc-123")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Body.String() != "abc-123" || w.Header().Get(CorrelationIDHeader) != "abc-123" {
		t.Fatalf("correlation id not propagated: %q", w.Body.String())
	}

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(CorrelationIDHeader, strings.Repeat("x", 200))
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if len(w.Body.String()) != 36 {
		t.Fatalf("oversized id should be replaced by a uuid, got %q", w.Body.String())
	}
}

func TestCorrelationIDMiddleware_RequestIDFallback(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(CorrelationIDMiddleware())
	r.GET("/", func(c *gin.Context) { c.String(http.StatusOK, GetCorrelationID(c)) })

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Request-ID", "proxy-7")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Body.String() != "proxy-7" {
		t.Fatalf("expected X-Request-ID to be reused, got %q", w.Body.String())
	}

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(CorrelationIDHeader, "bad id\n")
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Body.String() == "bad id\n" || len(w.Body.String()) != 36 {
		t.Fatalf("id with control characters should be replaced, got %q", w.Body.String())
	}
}

func TestSlogLoggerMiddleware_LevelsAndQuietPaths(t *testing.T) {
	gin.SetMode(gin.TestMode)
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))

	r := gin.New()
	r.Use(CorrelationIDMiddleware(), SlogLoggerMiddleware(logger))
	r.GET("/health", func(c *gin.Context) { c.Status(http.StatusOK) })
	r.GET("/boom", func(c *gin.Context) {
		LoggerFromContext(c).Info("inside handler")
		c.Status(http.StatusInternalServerError)
	})

	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/health", nil))
	if buf.Len() != 0 {
		t.Fatalf("health checks should not be logged: %s", buf.String())
	}

	req := httptest.NewRequest(http.MethodGet, "/boom", nil)
	req.Header.Set(CorrelationIDHeader, "cid-1")
	r.ServeHTTP(httptest.NewRecorder(), req)
	out := buf.String()
	for _, want := range []string{"inside handler", "correlation_id=cid-1", "level=ERROR", "status=500"} {
		if !strings.Contains(out, want) {
			t.Errorf("log output missing %q:\n%s", want, out)
		}
	}
}
