package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"siteCMS/internal/config"
)

// Decision 是一次登录尝试的限流结果。
type Decision struct {
	Allowed    bool
	Limit      int
	Remaining  int
	ResetAt    time.Time
	RetryAfter time.Duration
}

// Limiter 按客户端统计登录尝试次数，超过上限后封禁一段时间。
// 计数与封禁都保存在 Redis 中，多实例共享。
type Limiter struct {
	client      redis.Cmdable
	window      time.Duration
	block       time.Duration
	maxAttempts int
	prefix      string
	now         func() time.Time
}

// New 构造登录限流器。
func New(client redis.Cmdable, cfg config.RateLimitConfig) *Limiter {
	return &Limiter{
		client:      client,
		window:      cfg.Window,
		block:       cfg.Block,
		maxAttempts: cfg.MaxAttempts,
		prefix:      "login_rate",
		now:         time.Now,
	}
}

func (l *Limiter) countKey(id string) string { return fmt.Sprintf("%s:count:%s", l.prefix, id) }
func (l *Limiter) blockKey(id string) string { return fmt.Sprintf("%s:block:%s", l.prefix, id) }

// Check 记录一次尝试并给出是否放行。
// Redis 出错时放行并返回错误，由调用方记录日志。
func (l *Limiter) Check(ctx context.Context, clientID string) (Decision, error) {
	now := l.now()

	blocked, err := l.client.TTL(ctx, l.blockKey(clientID)).Result()
	if err != nil {
		return l.failOpen(now), fmt.Errorf("read block ttl: %w", err)
	}
	if blocked > 0 {
		return l.denied(now, blocked), nil
	}

	count, err := incrWithTTL(ctx, l.client, l.countKey(clientID), l.window)
	if err != nil {
		return l.failOpen(now), fmt.Errorf("incr login attempts: %w", err)
	}
	if count > int64(l.maxAttempts) {
		pipe := l.client.TxPipeline()
		pipe.Set(ctx, l.blockKey(clientID), count, l.block)
		pipe.Del(ctx, l.countKey(clientID))
		if _, err := pipe.Exec(ctx); err != nil {
			return l.denied(now, l.block), fmt.Errorf("set login block: %w", err)
		}
		return l.denied(now, l.block), nil
	}

	resetIn, err := l.client.TTL(ctx, l.countKey(clientID)).Result()
	if err != nil || resetIn <= 0 {
		resetIn = l.window
	}
	return Decision{
		Allowed:   true,
		Limit:     l.maxAttempts,
		Remaining: l.maxAttempts - int(count),
		ResetAt:   now.Add(resetIn),
	}, nil
}

// Status 返回当前状态，不计入尝试次数。
func (l *Limiter) Status(ctx context.Context, clientID string) (Decision, error) {
	now := l.now()

	blocked, err := l.client.TTL(ctx, l.blockKey(clientID)).Result()
	if err != nil {
		return l.failOpen(now), fmt.Errorf("read block ttl: %w", err)
	}
	if blocked > 0 {
		return l.denied(now, blocked), nil
	}

	count, err := l.client.Get(ctx, l.countKey(clientID)).Int()
	if err != nil && !errors.Is(err, redis.Nil) {
		return l.failOpen(now), fmt.Errorf("read login attempts: %w", err)
	}
	resetIn, err := l.client.TTL(ctx, l.countKey(clientID)).Result()
	if err != nil || resetIn <= 0 {
		resetIn = l.window
	}
	return Decision{
		Allowed:   true,
		Limit:     l.maxAttempts,
		Remaining: max(0, l.maxAttempts-count),
		ResetAt:   now.Add(resetIn),
	}, nil
}

// Reset 在登录成功后清除该客户端的计数与封禁。
func (l *Limiter) Reset(ctx context.Context, clientID string) error {
	if err := l.client.Del(ctx, l.countKey(clientID), l.blockKey(clientID)).Err(); err != nil {
		return fmt.Errorf("reset login attempts: %w", err)
	}
	return nil
}

func (l *Limiter) denied(now time.Time, retryAfter time.Duration) Decision {
	return Decision{
		Allowed:    false,
		Limit:      l.maxAttempts,
		Remaining:  0,
		ResetAt:    now.Add(retryAfter),
		RetryAfter: retryAfter,
	}
}

func (l *Limiter) failOpen(now time.Time) Decision {
	return Decision{
		Allowed:   true,
		Limit:     l.maxAttempts,
		Remaining: l.maxAttempts,
		ResetAt:   now.Add(l.window),
	}
}

// ClientID 依次取 X-Forwarded-For 的第一个地址、X-Real-IP、CF-Connecting-IP，
// 都没有时使用 fallback（通常是连接地址）。
func ClientID(h http.Header, fallback string) string {
	if fwd := h.Get("X-Forwarded-For"); fwd != "" {
		first, _, _ := strings.Cut(fwd, ",")
		if first = strings.TrimSpace(first); first != "" {
			return first
		}
	}
	for _, name := range []string{"X-Real-IP", "CF-Connecting-IP"} {
		if v := strings.TrimSpace(h.Get(name)); v != "" {
			return v
		}
	}
	if fallback != "" {
		return fallback
	}
	return "unknown"
}
