package cache

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisClient 缓存层用到的Redis命令子集，*redis.Client 直接满足
type RedisClient interface {
	// 基本操作
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
	Get(ctx context.Context, key string) *redis.StringCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd

	// 列表操作
	LPush(ctx context.Context, key string, values ...interface{}) *redis.IntCmd
	LTrim(ctx context.Context, key string, start, stop int64) *redis.StatusCmd

	// 管道操作
	Pipeline() redis.Pipeliner

	// 位操作
	SetBit(ctx context.Context, key string, offset int64, value int) *redis.IntCmd
	GetBit(ctx context.Context, key string, offset int64) *redis.IntCmd

	// Lua脚本
	Eval(ctx context.Context, script string, keys []string, args ...interface{}) *redis.Cmd
}

var _ RedisClient = (*redis.Client)(nil)
