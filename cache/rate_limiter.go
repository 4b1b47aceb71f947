package cache

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// RateLimiter 按键限流
type RateLimiter interface {
	// Allow 判断 key 的这次请求是否允许通过
	Allow(ctx context.Context, key string) (bool, error)
}

// 令牌桶算法的Lua脚本，时间单位为毫秒
const tokenBucketScript = `
local tokens_key = KEYS[1] .. ":tokens"
local timestamp_key = KEYS[1] .. ":ts"
local now = tonumber(ARGV[1])
local rate = tonumber(ARGV[2])
local burst = tonumber(ARGV[3])
local ttl = tonumber(ARGV[4])

local tokens = tonumber(redis.call("get", tokens_key) or burst)
local last_update = tonumber(redis.call("get", timestamp_key) or now)

local elapsed = math.max(0, now - last_update)
local new_tokens = math.min(burst, tokens + elapsed * rate / 1000)

if new_tokens < 1 then
	return 0
end

new_tokens = new_tokens - 1
redis.call("set", tokens_key, tostring(new_tokens), "PX", ttl)
redis.call("set", timestamp_key, tostring(now), "PX", ttl)
return 1
`

// TokenBucketRateLimiter Redis令牌桶限流器，多实例共享配额
type TokenBucketRateLimiter struct {
	redisClient RedisClient
	prefix      string
	rate        float64 // 每秒生成的令牌数量
	burst       int     // 令牌桶最大容量
	now         func() time.Time
}

// NewTokenBucketRateLimiter 创建新的令牌桶限流器
func NewTokenBucketRateLimiter(client RedisClient, prefix string, perSecond float64, burst int) *TokenBucketRateLimiter {
	return &TokenBucketRateLimiter{
		redisClient: client,
		prefix:      fmt.Sprintf("rate_limit:%s", prefix),
		rate:        perSecond,
		burst:       burst,
		now:         time.Now,
	}
}

// Allow 判断请求是否允许通过
func (l *TokenBucketRateLimiter) Allow(ctx context.Context, key string) (bool, error) {
	if l.redisClient == nil {
		return false, ErrRedisNotAvailable
	}
	if l.rate <= 0 {
		return true, nil
	}

	// 令牌桶从空到满所需的时间再加一秒作为键的过期时间
	ttl := int64(math.Ceil(float64(l.burst)/l.rate*1000)) + 1000
	now := l.now().UnixMilli()

	result, err := l.redisClient.Eval(ctx, tokenBucketScript,
		[]string{l.prefix + ":" + key}, now, l.rate, l.burst, ttl).Int64()
	if err != nil {
		return false, err
	}
	return result == 1, nil
}

// LocalRateLimiter 进程内令牌桶限流器，每个键一个 rate.Limiter
// 空闲超过 idleTTL 的键会被清理，此时它的令牌桶已经回满
type LocalRateLimiter struct {
	mu        sync.Mutex
	limit     rate.Limit
	burst     int
	idleTTL   time.Duration
	lastSweep time.Time
	limiters  map[string]*localBucket
	now       func() time.Time
}

type localBucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewLocalRateLimiter 创建进程内限流器，perSecond<=0 表示不限流
func NewLocalRateLimiter(perSecond float64, burst int) *LocalRateLimiter {
	limit := rate.Limit(perSecond)
	if perSecond <= 0 {
		limit = rate.Inf
	}
	idle := time.Minute
	if perSecond > 0 {
		if refill := time.Duration(float64(burst) / perSecond * float64(time.Second)); refill > idle {
			idle = refill
		}
	}
	return &LocalRateLimiter{
		limit:    limit,
		burst:    burst,
		idleTTL:  idle,
		limiters: make(map[string]*localBucket),
		now:      time.Now,
	}
}

// Allow 判断请求是否允许通过
func (l *LocalRateLimiter) Allow(_ context.Context, key string) (bool, error) {
	if l.limit == rate.Inf {
		return true, nil
	}

	now := l.now()
	l.mu.Lock()
	l.sweepLocked(now)
	b, ok := l.limiters[key]
	if !ok {
		b = &localBucket{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.limiters[key] = b
	}
	b.lastSeen = now
	l.mu.Unlock()
	return b.limiter.AllowN(now, 1), nil
}

// sweepLocked 每隔 idleTTL 清理一次空闲的键
func (l *LocalRateLimiter) sweepLocked(now time.Time) {
	if now.Sub(l.lastSweep) < l.idleTTL {
		return
	}
	l.lastSweep = now
	for key, b := range l.limiters {
		if now.Sub(b.lastSeen) >= l.idleTTL {
			delete(l.limiters, key)
		}
	}
}

// Len 当前跟踪的键数量
func (l *LocalRateLimiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.limiters)
}
