package cache

import (
	"context"
	"sync"
)

// LocalLockService 进程内按名称互斥，未配置Redis时代替分布式锁
type LocalLockService struct {
	mu    sync.Mutex
	locks map[string]*localLock
}

type localLock struct {
	ch   chan struct{}
	refs int
}

// NewLocalLockService 创建进程内锁服务
func NewLocalLockService() *LocalLockService {
	return &LocalLockService{locks: make(map[string]*localLock)}
}

func (s *LocalLockService) acquire(name string) *localLock {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.locks[name]
	if !ok {
		l = &localLock{ch: make(chan struct{}, 1)}
		s.locks[name] = l
	}
	l.refs++
	return l
}

func (s *LocalLockService) release(name string, l *localLock) {
	s.mu.Lock()
	defer s.mu.Unlock()
	l.refs--
	if l.refs == 0 {
		delete(s.locks, name)
	}
}

// WithLock 在锁内执行操作，等待期间 ctx 取消则返回 ctx.Err()
func (s *LocalLockService) WithLock(ctx context.Context, name string, action func() error) error {
	l := s.acquire(name)
	defer s.release(name, l)

	select {
	case l.ch <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}
	defer func() { <-l.ch }()

	return action()
}

// Held 返回当前被持有或等待中的锁数量
func (s *LocalLockService) Held() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.locks)
}
