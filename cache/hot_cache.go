package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Locker 按名称互斥执行，DistributedLockService 与 LocalLockService 均满足
type Locker interface {
	WithLock(ctx context.Context, name string, action func() error) error
}

// HotCache 热点缓存管理器，缓存JSON编码的读结果
type HotCache struct {
	redisClient RedisClient
	locker      Locker
	ttl         time.Duration
	logger      *zap.Logger
}

// NewHotCache 创建新的热点缓存管理器
func NewHotCache(client RedisClient, locker Locker, ttl time.Duration, logger *zap.Logger) *HotCache {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HotCache{redisClient: client, locker: locker, ttl: ttl, logger: logger}
}

// Get 读取缓存到 dest，不存在时返回 ErrCacheMiss
func (c *HotCache) Get(ctx context.Context, key string, dest interface{}) error {
	if c.redisClient == nil {
		return ErrRedisNotAvailable
	}
	data, err := c.redisClient.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return ErrCacheMiss
	}
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, dest); err != nil {
		c.logger.Warn("discard undecodable cache entry", zap.String("key", key), zap.Error(err))
		return ErrCacheMiss
	}
	return nil
}

// Set 写入缓存，过期时间带随机抖动避免集中失效
func (c *HotCache) Set(ctx context.Context, key string, value interface{}) error {
	if c.redisClient == nil {
		return ErrRedisNotAvailable
	}
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encode cache entry %s: %w", key, err)
	}
	return c.redisClient.Set(ctx, key, data, c.expiration()).Err()
}

// Invalidate 删除缓存
// 每个键在与 GetOrLoad 相同的锁内删除，避免回填覆盖失效
func (c *HotCache) Invalidate(ctx context.Context, keys ...string) error {
	if c.redisClient == nil {
		return ErrRedisNotAvailable
	}
	if c.locker == nil {
		if len(keys) == 0 {
			return nil
		}
		return c.redisClient.Del(ctx, keys...).Err()
	}
	for _, key := range keys {
		err := c.locker.WithLock(ctx, lockName(key), func() error {
			return c.redisClient.Del(ctx, key).Err()
		})
		if err != nil {
			return fmt.Errorf("invalidate %s: %w", key, err)
		}
	}
	return nil
}

func lockName(key string) string {
	return "cache_lock:" + key
}

func (c *HotCache) expiration() time.Duration {
	jitter := int64(c.ttl / 10)
	if jitter <= 0 {
		return c.ttl
	}
	return c.ttl + time.Duration(rand.Int63n(jitter))
}

// GetOrLoad 读缓存，未命中时在锁内双重检查后调用 loader 并回填
// loader 的错误原样返回且不缓存
func GetOrLoad[T any](ctx context.Context, c *HotCache, key string, loader func(ctx context.Context) (*T, error)) (*T, error) {
	var cached T
	err := c.Get(ctx, key, &cached)
	if err == nil {
		return &cached, nil
	}
	if !errors.Is(err, ErrCacheMiss) {
		c.logger.Warn("cache read failed, falling back to loader", zap.String("key", key), zap.Error(err))
		return loader(ctx)
	}

	var result *T
	load := func() error {
		// 双重检查，可能其他请求已经填充了缓存
		var again T
		if err := c.Get(ctx, key, &again); err == nil {
			result = &again
			return nil
		}

		loaded, err := loader(ctx)
		if err != nil {
			return err
		}
		result = loaded
		if err := c.Set(ctx, key, loaded); err != nil {
			c.logger.Warn("cache write failed", zap.String("key", key), zap.Error(err))
		}
		return nil
	}

	if c.locker == nil {
		err = load()
	} else {
		err = c.locker.WithLock(ctx, lockName(key), load)
	}
	if err != nil {
		return nil, err
	}
	return result, nil
}
