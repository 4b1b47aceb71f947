package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redsync/redsync/v4"
	"github.com/go-redsync/redsync/v4/redis/goredis/v9"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// DistributedLockService 基于Redsync的分布式锁服务，多实例部署时使用
type DistributedLockService struct {
	rs         *redsync.Redsync
	expiry     time.Duration
	tries      int
	retryDelay time.Duration
	logger     *zap.Logger
}

// NewDistributedLockService 创建分布式锁服务
func NewDistributedLockService(client redis.UniversalClient, expiry time.Duration, logger *zap.Logger) *DistributedLockService {
	if expiry <= 0 {
		expiry = 8 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DistributedLockService{
		rs:         redsync.New(goredis.NewPool(client)),
		expiry:     expiry,
		tries:      32,
		retryDelay: 50 * time.Millisecond,
		logger:     logger,
	}
}

func (s *DistributedLockService) newMutex(name string) *redsync.Mutex {
	return s.rs.NewMutex(name,
		redsync.WithExpiry(s.expiry),
		redsync.WithTries(s.tries),
		redsync.WithRetryDelay(s.retryDelay),
		redsync.WithDriftFactor(0.01),
	)
}

// WithLock 在锁内执行操作
func (s *DistributedLockService) WithLock(ctx context.Context, name string, action func() error) error {
	mutex := s.newMutex(name)
	if err := mutex.LockContext(ctx); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return fmt.Errorf("%w: %s: %v", ErrLockNotAcquired, name, err)
	}

	defer func() {
		// 解锁不受调用方取消影响
		if ok, err := mutex.UnlockContext(context.WithoutCancel(ctx)); err != nil || !ok {
			s.logger.Warn("release lock failed", zap.String("lock", name), zap.Bool("released", ok), zap.Error(err))
		}
	}()

	return action()
}
