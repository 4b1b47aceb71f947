package repository

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/asmb123/voting-workshop-bhu/address"
	"github.com/asmb123/voting-workshop-bhu/cache"
	"github.com/asmb123/voting-workshop-bhu/ledger"
	"github.com/asmb123/voting-workshop-bhu/models"
	"github.com/asmb123/voting-workshop-bhu/mq"
)

// fakeAccounts serves polls from a map and counts reads.
type fakeAccounts struct {
	polls map[address.Address]*models.Poll
	reads int
}

func (f *fakeAccounts) GetPoll(_ context.Context, addr address.Address) (*models.Poll, error) {
	f.reads++
	if p, ok := f.polls[addr]; ok {
		return p, nil
	}
	return nil, ledger.ErrAccountNotFound
}

func (f *fakeAccounts) GetCandidate(context.Context, address.Address) (*models.Candidate, error) {
	f.reads++
	return nil, ledger.ErrAccountNotFound
}

func (f *fakeAccounts) GetParticipation(context.Context, address.Address) (*models.ParticipationRecord, error) {
	f.reads++
	return nil, ledger.ErrAccountNotFound
}

// setFilter is an exact in-memory AddressFilter.
type setFilter struct {
	mu    sync.Mutex
	items map[string]bool
	err   error
}

func newSetFilter() *setFilter {
	return &setFilter{items: make(map[string]bool)}
}

func (f *setFilter) Add(_ context.Context, item string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.items[item] = true
	return nil
}

func (f *setFilter) Contains(_ context.Context, item string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return false, f.err
	}
	return f.items[item], nil
}

func TestCachedRepositoryRemembersPollFromStore(t *testing.T) {
	addr := address.PollAddress(1)
	backing := &fakeAccounts{polls: map[address.Address]*models.Poll{
		addr: {Address: addr.String(), PollID: 1, PollEnd: 10},
	}}
	filter := newSetFilter()
	repo := NewCachedAccountRepository(backing, nil, filter, nil)

	poll, err := repo.GetPoll(context.Background(), addr)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), poll.PollID)

	ok, _ := filter.Contains(context.Background(), addr.String())
	assert.True(t, ok, "poll found in the store is added to the filter")
}

func TestCachedRepositoryFilterMissStillReadsStore(t *testing.T) {
	addr := address.PollAddress(2)
	backing := &fakeAccounts{polls: map[address.Address]*models.Poll{
		addr: {Address: addr.String(), PollID: 2},
	}}
	repo := NewCachedAccountRepository(backing, nil, newSetFilter(), nil)

	// 过滤器里没有也必须查库，不能直接判定不存在
	poll, err := repo.GetPoll(context.Background(), addr)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), poll.PollID)
	assert.Equal(t, 1, backing.reads)
}

func TestCachedRepositoryNotFound(t *testing.T) {
	backing := &fakeAccounts{polls: map[address.Address]*models.Poll{}}
	filter := newSetFilter()
	repo := NewCachedAccountRepository(backing, nil, filter, nil)

	_, err := repo.GetPoll(context.Background(), address.PollAddress(3))
	assert.ErrorIs(t, err, ledger.ErrAccountNotFound)
	assert.Empty(t, filter.items)

	_, err = repo.GetCandidate(context.Background(), address.CandidateAddress(3, "Alice"))
	assert.ErrorIs(t, err, ledger.ErrAccountNotFound)
}

func TestCachedRepositoryFilterErrorFallsBackToStore(t *testing.T) {
	addr := address.PollAddress(4)
	backing := &fakeAccounts{polls: map[address.Address]*models.Poll{
		addr: {Address: addr.String(), PollID: 4},
	}}
	filter := newSetFilter()
	filter.err = errors.New("redis down")
	repo := NewCachedAccountRepository(backing, nil, filter, nil)

	poll, err := repo.GetPoll(context.Background(), addr)
	require.NoError(t, err)
	assert.Equal(t, uint64(4), poll.PollID)
}

func TestCachedRepositoryPublish(t *testing.T) {
	filter := newSetFilter()
	repo := NewCachedAccountRepository(&fakeAccounts{}, nil, filter, nil)
	ctx := context.Background()

	created := mq.NewEvent(mq.EventPollCreated, 5)
	created.PollAddress = address.PollAddress(5).String()
	require.NoError(t, repo.Publish(ctx, created))
	ok, _ := filter.Contains(ctx, created.PollAddress)
	assert.True(t, ok)

	// 投票事件不会写入过滤器
	voted := mq.NewEvent(mq.EventVoteCast, 6)
	voted.PollAddress = address.PollAddress(6).String()
	require.NoError(t, repo.Publish(ctx, voted))
	ok, _ = filter.Contains(ctx, voted.PollAddress)
	assert.False(t, ok)

	filter.err = errors.New("redis down")
	assert.Error(t, repo.Publish(ctx, created))
}

func TestCachedRepositoryServesFromCacheUntilInvalidated(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()
	ctx := context.Background()

	addr := address.PollAddress(7)
	backing := &fakeAccounts{polls: map[address.Address]*models.Poll{
		addr: {Address: addr.String(), PollID: 7},
	}}
	hc := cache.NewHotCache(client, cache.NewLocalLockService(), time.Minute, nil)
	repo := NewCachedAccountRepository(backing, hc, cache.NewBloomFilter(client, "polls", 5), nil)

	created := mq.NewEvent(mq.EventPollCreated, 7)
	created.PollAddress = addr.String()
	require.NoError(t, repo.Publish(ctx, created))

	poll, err := repo.GetPoll(ctx, addr)
	require.NoError(t, err)
	assert.Zero(t, poll.TotalVotes)
	key := cacheKey(models.Poll{}.AccountKind(), addr.String())
	assert.True(t, mr.Exists(key))

	// 数据库更新后缓存仍是旧值，直到事件使其失效
	backing.polls[addr] = &models.Poll{Address: addr.String(), PollID: 7, TotalVotes: 1}
	poll, err = repo.GetPoll(ctx, addr)
	require.NoError(t, err)
	assert.Zero(t, poll.TotalVotes)

	voted := mq.NewEvent(mq.EventVoteCast, 7)
	voted.PollAddress = addr.String()
	require.NoError(t, repo.Publish(ctx, voted))
	assert.False(t, mr.Exists(key))

	poll, err = repo.GetPoll(ctx, addr)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), poll.TotalVotes)
}
