package cache

import (
	"context"
	"hash/fnv"

	"github.com/redis/go-redis/v9"
)

const bloomBits = 1 << 24

// BloomFilter 基于Redis位图的布隆过滤器，记录已创建的账户地址
// 过滤器只用于判断“可能存在”，不做过期
type BloomFilter struct {
	redisClient RedisClient
	key         string
	hashCount   int
}

// NewBloomFilter 创建新的布隆过滤器
func NewBloomFilter(client RedisClient, key string, hashCount int) *BloomFilter {
	if hashCount <= 0 {
		hashCount = 5
	}
	return &BloomFilter{
		redisClient: client,
		key:         "bloom:" + key,
		hashCount:   hashCount,
	}
}

// Add 添加元素到布隆过滤器
func (bf *BloomFilter) Add(ctx context.Context, item string) error {
	if bf == nil || bf.redisClient == nil {
		return ErrRedisNotAvailable
	}

	pipe := bf.redisClient.Pipeline()
	for _, offset := range bf.offsets(item) {
		pipe.SetBit(ctx, bf.key, offset, 1)
	}
	_, err := pipe.Exec(ctx)
	return err
}

// Contains 检查元素是否可能存在于布隆过滤器中
func (bf *BloomFilter) Contains(ctx context.Context, item string) (bool, error) {
	if bf == nil || bf.redisClient == nil {
		return false, ErrRedisNotAvailable
	}

	pipe := bf.redisClient.Pipeline()
	cmds := make([]*redis.IntCmd, 0, bf.hashCount)
	for _, offset := range bf.offsets(item) {
		cmds = append(cmds, pipe.GetBit(ctx, bf.key, offset))
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return false, err
	}

	// 任何一位为0则一定不存在
	for _, cmd := range cmds {
		if cmd.Val() == 0 {
			return false, nil
		}
	}
	return true, nil
}

func (bf *BloomFilter) offsets(item string) []int64 {
	out := make([]int64, bf.hashCount)
	for i := range out {
		out[i] = bloomHash(item, i)
	}
	return out
}

// bloomHash 计算哈希值，使用不同的种子
func bloomHash(key string, seed int) int64 {
	h := fnv.New64a()
	h.Write([]byte(key))
	h.Write([]byte{byte(seed)})
	return int64(h.Sum64() % uint64(bloomBits))
}
