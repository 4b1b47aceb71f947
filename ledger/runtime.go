package ledger

import (
	"context"
	"sort"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/asmb123/voting-workshop-bhu/address"
)

// Locker 按名称互斥执行
type Locker interface {
	WithLock(ctx context.Context, name string, action func() error) error
}

// Runtime 状态转换的宿主运行时
// 每次转换先按地址加锁，再在一个数据库事务中执行，全部成功或全部回滚
type Runtime struct {
	db     *gorm.DB
	locker Locker
	clock  Clock
	logger *zap.Logger
}

// NewRuntime 创建运行时
func NewRuntime(db *gorm.DB, locker Locker, clock Clock, logger *zap.Logger) *Runtime {
	if clock == nil {
		clock = SystemClock{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Runtime{db: db, locker: locker, clock: clock, logger: logger}
}

// Execute 执行一次原子状态转换
// locks 中的地址按字典序加锁，避免不同转换之间死锁
func (r *Runtime) Execute(ctx context.Context, locks []address.Address, fn func(tx *Tx) error) error {
	names := lockNames(locks)
	return r.withLocks(ctx, names, func() error {
		now := r.clock.Now()
		err := r.db.WithContext(ctx).Transaction(func(gtx *gorm.DB) error {
			return fn(&Tx{db: gtx, now: now})
		})
		if err != nil {
			r.logger.Debug("transition rolled back", zap.Strings("locks", names), zap.Error(err))
		}
		return err
	})
}

// View 只读访问账户，不加锁也不开启事务
func (r *Runtime) View(ctx context.Context, fn func(tx *Tx) error) error {
	return fn(&Tx{db: r.db.WithContext(ctx), now: r.clock.Now(), readOnly: true})
}

func (r *Runtime) withLocks(ctx context.Context, names []string, action func() error) error {
	if len(names) == 0 || r.locker == nil {
		return action()
	}
	return r.locker.WithLock(ctx, names[0], func() error {
		return r.withLocks(ctx, names[1:], action)
	})
}

func lockNames(locks []address.Address) []string {
	seen := make(map[string]bool, len(locks))
	names := make([]string, 0, len(locks))
	for _, addr := range locks {
		name := "account_lock:" + addr.String()
		if !seen[name] {
			seen[name] = true
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}
