package repository

import (
	"context"

	"go.uber.org/zap"

	"github.com/asmb123/voting-workshop-bhu/address"
	"github.com/asmb123/voting-workshop-bhu/cache"
	"github.com/asmb123/voting-workshop-bhu/models"
	"github.com/asmb123/voting-workshop-bhu/mq"
)

// AddressFilter 已创建投票地址的集合，允许误判存在
type AddressFilter interface {
	Add(ctx context.Context, item string) error
	Contains(ctx context.Context, item string) (bool, error)
}

// CachedAccountRepository 实现带缓存的账户仓库
// 缓存在事件发布时失效，因此它同时是一个 mq.Publisher
type CachedAccountRepository struct {
	// 实际数据库操作实现
	db AccountRepository
	// 缓存实现
	cache *cache.HotCache
	// 布隆过滤器
	bloomFilter AddressFilter
	logger      *zap.Logger
}

var _ mq.Publisher = (*CachedAccountRepository)(nil)

// NewCachedAccountRepository 创建带缓存的账户仓库
func NewCachedAccountRepository(db AccountRepository, hc *cache.HotCache, bloom AddressFilter, logger *zap.Logger) *CachedAccountRepository {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CachedAccountRepository{db: db, cache: hc, bloomFilter: bloom, logger: logger}
}

func cacheKey(kind, addr string) string {
	return "account:" + kind + ":" + addr
}

// GetPoll 获取投票账户
// 布隆过滤器判定不存在时绕过缓存直接查库，查到后补记到过滤器
func (r *CachedAccountRepository) GetPoll(ctx context.Context, addr address.Address) (*models.Poll, error) {
	known := true
	if r.bloomFilter != nil {
		exists, err := r.bloomFilter.Contains(ctx, addr.String())
		if err != nil {
			r.logger.Warn("bloom filter check failed", zap.String("address", addr.String()), zap.Error(err))
		}
		known = err == nil && exists
	}

	if !known || r.cache == nil {
		poll, err := r.db.GetPoll(ctx, addr)
		if err != nil {
			return nil, err
		}
		// 只补记过滤器，缓存由下一次读取在锁内回填
		r.rememberAddress(ctx, poll.Address)
		return poll, nil
	}

	return cache.GetOrLoad(ctx, r.cache, cacheKey(models.Poll{}.AccountKind(), addr.String()),
		func(ctx context.Context) (*models.Poll, error) {
			return r.db.GetPoll(ctx, addr)
		})
}

func (r *CachedAccountRepository) rememberAddress(ctx context.Context, addr string) {
	if r.bloomFilter == nil {
		return
	}
	if err := r.bloomFilter.Add(ctx, addr); err != nil {
		r.logger.Warn("bloom filter add failed", zap.String("address", addr), zap.Error(err))
	}
}

// GetCandidate 获取候选人账户
func (r *CachedAccountRepository) GetCandidate(ctx context.Context, addr address.Address) (*models.Candidate, error) {
	if r.cache == nil {
		return r.db.GetCandidate(ctx, addr)
	}
	return cache.GetOrLoad(ctx, r.cache, cacheKey(models.Candidate{}.AccountKind(), addr.String()),
		func(ctx context.Context) (*models.Candidate, error) {
			return r.db.GetCandidate(ctx, addr)
		})
}

// GetParticipation 获取参与记录
func (r *CachedAccountRepository) GetParticipation(ctx context.Context, addr address.Address) (*models.ParticipationRecord, error) {
	if r.cache == nil {
		return r.db.GetParticipation(ctx, addr)
	}
	return cache.GetOrLoad(ctx, r.cache, cacheKey(models.ParticipationRecord{}.AccountKind(), addr.String()),
		func(ctx context.Context) (*models.ParticipationRecord, error) {
			return r.db.GetParticipation(ctx, addr)
		})
}

// Publish 根据事件使受影响账户的缓存失效
func (r *CachedAccountRepository) Publish(ctx context.Context, ev mq.Event) error {
	if ev.Type == mq.EventPollCreated && r.bloomFilter != nil {
		if err := r.bloomFilter.Add(ctx, ev.PollAddress); err != nil {
			return err
		}
	}
	if r.cache == nil {
		return nil
	}

	keys := []string{cacheKey(models.Poll{}.AccountKind(), ev.PollAddress)}
	if ev.CandidateAddress != "" {
		keys = append(keys, cacheKey(models.Candidate{}.AccountKind(), ev.CandidateAddress))
	}
	if ev.ParticipationAddress != "" {
		keys = append(keys, cacheKey(models.ParticipationRecord{}.AccountKind(), ev.ParticipationAddress))
	}
	return r.cache.Invalidate(ctx, keys...)
}
