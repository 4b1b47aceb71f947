package ledger

import (
	"sync/atomic"
	"time"
)

// Clock 可信时钟，返回 unix 秒
type Clock interface {
	Now() uint64
}

// SystemClock 使用系统时间
type SystemClock struct{}

// Now 当前 unix 秒
func (SystemClock) Now() uint64 {
	return uint64(time.Now().Unix())
}

// ManualClock 手动设置的时钟，用于测试和回放
type ManualClock struct {
	now atomic.Uint64
}

// NewManualClock 创建手动时钟
func NewManualClock(now uint64) *ManualClock {
	c := &ManualClock{}
	c.now.Store(now)
	return c
}

// Now 当前设置的时间
func (c *ManualClock) Now() uint64 {
	return c.now.Load()
}

// Set 设置时间
func (c *ManualClock) Set(now uint64) {
	c.now.Store(now)
}

// Advance 时间前进 d 秒
func (c *ManualClock) Advance(seconds uint64) {
	c.now.Add(seconds)
}
