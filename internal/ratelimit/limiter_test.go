package ratelimit

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"siteCMS/internal/config"
)

func newTestLimiter(t *testing.T) (*Limiter, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return New(client, config.RateLimitConfig{
		Window:      15 * time.Minute,
		MaxAttempts: 5,
		Block:       30 * time.Minute,
	}), mr
}

func TestCheck_BlocksAfterMaxAttempts(t *testing.T) {
	l, _ := newTestLimiter(t)
	ctx := context.Background()

	for i := 1; i <= 5; i++ {
		d, err := l.Check(ctx, "1.2.3.4")
		require.NoError(t, err)
		assert.True(t, d.Allowed, "attempt %d", i)
		assert.Equal(t, 5-i, d.Remaining)
		assert.Equal(t, 5, d.Limit)
	}

	d, err := l.Check(ctx, "1.2.3.4")
	require.NoError(t, err)
	assert.False(t, d.Allowed)
	assert.Equal(t, 0, d.Remaining)
	assert.Equal(t, 30*time.Minute, d.RetryAfter)

	// 其他客户端不受影响
	other, err := l.Check(ctx, "5.6.7.8")
	require.NoError(t, err)
	assert.True(t, other.Allowed)
}

func TestCheck_BlockExpires(t *testing.T) {
	l, mr := newTestLimiter(t)
	ctx := context.Background()

	for i := 0; i < 6; i++ {
		_, err := l.Check(ctx, "c")
		require.NoError(t, err)
	}
	d, err := l.Status(ctx, "c")
	require.NoError(t, err)
	assert.False(t, d.Allowed)

	mr.FastForward(31 * time.Minute)

	d, err = l.Check(ctx, "c")
	require.NoError(t, err)
	assert.True(t, d.Allowed)
	assert.Equal(t, 4, d.Remaining)
}

func TestCheck_WindowExpires(t *testing.T) {
	l, mr := newTestLimiter(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		_, err := l.Check(ctx, "c")
		require.NoError(t, err)
	}
	mr.FastForward(16 * time.Minute)

	d, err := l.Check(ctx, "c")
	require.NoError(t, err)
	assert.True(t, d.Allowed)
	assert.Equal(t, 4, d.Remaining)
}

func TestReset_ClearsAttempts(t *testing.T) {
	l, _ := newTestLimiter(t)
	ctx := context.Background()

	for i := 0; i < 6; i++ {
		_, _ = l.Check(ctx, "c")
	}
	require.NoError(t, l.Reset(ctx, "c"))

	d, err := l.Status(ctx, "c")
	require.NoError(t, err)
	assert.True(t, d.Allowed)
	assert.Equal(t, 5, d.Remaining)
}

func TestCheck_FailsOpenWhenRedisIsDown(t *testing.T) {
	l, mr := newTestLimiter(t)
	mr.Close()

	d, err := l.Check(context.Background(), "c")
	assert.Error(t, err)
	assert.True(t, d.Allowed)
}

func TestClientID(t *testing.T) {
	cases := []struct {
		name     string
		headers  map[string]string
		fallback string
		want     string
	}{
		{"forwarded first", map[string]string{"X-Forwarded-For": " 10.0.0.1 , 10.0.0.2", "X-Real-IP": "9.9.9.9"}, "", "10.0.0.1"},
		{"real ip", map[string]string{"X-Real-IP": "9.9.9.9", "CF-Connecting-IP": "8.8.8.8"}, "", "9.9.9.9"},
		{"cloudflare", map[string]string{"CF-Connecting-IP": "8.8.8.8"}, "127.0.0.1", "8.8.8.8"},
		{"fallback", nil, "127.0.0.1", "127.0.0.1"},
		{"unknown", nil, "", "unknown"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h := http.Header{}
			for k, v := range tc.headers {
				h.Set(k, v)
			}
			assert.Equal(t, tc.want, ClientID(h, tc.fallback))
		})
	}
}
