package cache

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// RateLimitResult 单次限流判定结果
type RateLimitResult struct {
	Allowed   bool      `json:"allowed"`   // 是否放行
	Remaining int       `json:"remaining"` // 当前窗口剩余配额
	ResetAt   time.Time `json:"reset_at"`  // 窗口重置时间
}

// RateLimiter 固定窗口限流器。实现必须可注入、不依赖进程级全局计数。
type RateLimiter interface {
	Allow(ctx context.Context, key string) (RateLimitResult, error)
}

// RateLimitRule 固定窗口限流规则
type RateLimitRule struct {
	Prefix        string // 键前缀，区分不同限流场景
	WindowSeconds int    // 窗口长度（秒）
	MaxRequests   int    // 窗口内允许的最大请求数
}

func (r RateLimitRule) window() time.Duration {
	if r.WindowSeconds <= 0 {
		return time.Minute
	}
	return time.Duration(r.WindowSeconds) * time.Second
}

func (r RateLimitRule) max() int {
	if r.MaxRequests <= 0 {
		return 1
	}
	return r.MaxRequests
}

func (r RateLimitRule) buildKey(key string) string {
	if r.Prefix == "" {
		return "ratelimit:" + key
	}
	return fmt.Sprintf("ratelimit:%s:%s", r.Prefix, key)
}

// NewRateLimiter 按配置构建限流器：Redis 可用时用 Redis 存储，
// 否则回落到进程内存实现（单实例部署可接受）。
func NewRateLimiter(rule RateLimitRule) RateLimiter {
	if Enabled() {
		return NewRedisRateLimiter(Client(), rule)
	}
	return NewMemoryRateLimiter(rule)
}

// MemoryRateLimiter 进程内固定窗口限流器，过期窗口惰性清理。
type MemoryRateLimiter struct {
	rule RateLimitRule

	mu      sync.Mutex
	windows map[string]*memoryWindow
}

type memoryWindow struct {
	count   int
	resetAt time.Time
}

// NewMemoryRateLimiter 创建内存限流器
func NewMemoryRateLimiter(rule RateLimitRule) *MemoryRateLimiter {
	return &MemoryRateLimiter{
		rule:    rule,
		windows: make(map[string]*memoryWindow),
	}
}

// Allow 判定一次请求是否放行
func (l *MemoryRateLimiter) Allow(_ context.Context, key string) (RateLimitResult, error) {
	now := time.Now()
	fullKey := l.rule.buildKey(key)

	l.mu.Lock()
	defer l.mu.Unlock()

	w, ok := l.windows[fullKey]
	if !ok || !now.Before(w.resetAt) {
		w = &memoryWindow{resetAt: now.Add(l.rule.window())}
		l.windows[fullKey] = w
		l.sweepLocked(now)
	}
	w.count++

	max := l.rule.max()
	remaining := max - w.count
	if remaining < 0 {
		remaining = 0
	}
	return RateLimitResult{
		Allowed:   w.count <= max,
		Remaining: remaining,
		ResetAt:   w.resetAt,
	}, nil
}

// sweepLocked 惰性清理已过期窗口，防止键集合无限增长
func (l *MemoryRateLimiter) sweepLocked(now time.Time) {
	if len(l.windows) < 4096 {
		return
	}
	for key, w := range l.windows {
		if !now.Before(w.resetAt) {
			delete(l.windows, key)
		}
	}
}

// redisRateLimitScript INCR 与 EXPIRE 原子执行，返回当前计数与剩余 TTL
var redisRateLimitScript = redis.NewScript(`
local current = redis.call("INCR", KEYS[1])
if current == 1 then
	redis.call("EXPIRE", KEYS[1], ARGV[1])
end
local ttl = redis.call("TTL", KEYS[1])
return {current, ttl}
`)

// RedisRateLimiter Redis 固定窗口限流器
type RedisRateLimiter struct {
	client *redis.Client
	rule   RateLimitRule
}

// NewRedisRateLimiter 创建 Redis 限流器
func NewRedisRateLimiter(client *redis.Client, rule RateLimitRule) *RedisRateLimiter {
	return &RedisRateLimiter{client: client, rule: rule}
}

// Allow 判定一次请求是否放行
func (l *RedisRateLimiter) Allow(ctx context.Context, key string) (RateLimitResult, error) {
	if l.client == nil {
		return RateLimitResult{Allowed: true, Remaining: l.rule.max()}, nil
	}
	values, err := redisRateLimitScript.Run(ctx, l.client, []string{l.rule.buildKey(key)}, l.rule.WindowSeconds).Int64Slice()
	if err != nil || len(values) != 2 {
		if err == nil {
			err = fmt.Errorf("unexpected rate limit script result: %v", values)
		}
		return RateLimitResult{}, err
	}

	current := int(values[0])
	ttl := time.Duration(values[1]) * time.Second
	if ttl < 0 {
		ttl = l.rule.window()
	}

	max := l.rule.max()
	remaining := max - current
	if remaining < 0 {
		remaining = 0
	}
	return RateLimitResult{
		Allowed:   current <= max,
		Remaining: remaining,
		ResetAt:   time.Now().Add(ttl),
	}, nil
}
