package mq

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// 队列名称与默认保留长度
const (
	EventQueueName    = "voting:events"
	DefaultQueueLimit = 10000
)

// ListClient RedisPublisher 用到的列表命令，*redis.Client 直接满足
type ListClient interface {
	LPush(ctx context.Context, key string, values ...interface{}) *redis.IntCmd
	LTrim(ctx context.Context, key string, start, stop int64) *redis.StatusCmd
}

// RedisPublisher 把事件写入Redis列表，下游用 BRPOP 消费
type RedisPublisher struct {
	client ListClient
	queue  string
	limit  int64
}

// NewRedisPublisher 创建Redis列表发布者，limit<=0 使用默认保留长度
func NewRedisPublisher(client ListClient, limit int64) *RedisPublisher {
	if limit <= 0 {
		limit = DefaultQueueLimit
	}
	return &RedisPublisher{client: client, queue: EventQueueName, limit: limit}
}

// Publish 发布事件
func (p *RedisPublisher) Publish(ctx context.Context, ev Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("encode event %s: %w", ev.ID, err)
	}
	if err := p.client.LPush(ctx, p.queue, data).Err(); err != nil {
		return fmt.Errorf("push event %s to %s: %w", ev.ID, p.queue, err)
	}
	// 只保留最近 limit 条，避免无人消费时无限增长
	if err := p.client.LTrim(ctx, p.queue, 0, p.limit-1).Err(); err != nil {
		return fmt.Errorf("trim %s: %w", p.queue, err)
	}
	return nil
}
