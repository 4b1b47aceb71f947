package cache

import "errors"

var (
	// ErrRedisNotAvailable Redis不可用
	ErrRedisNotAvailable = errors.New("redis not available")

	// ErrLockNotAcquired 获取锁失败
	ErrLockNotAcquired = errors.New("lock not acquired")

	// ErrCacheMiss 缓存中不存在该键
	ErrCacheMiss = errors.New("cache miss")
)
