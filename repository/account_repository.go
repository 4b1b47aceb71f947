package repository

import (
	"context"

	"github.com/asmb123/voting-workshop-bhu/address"
	"github.com/asmb123/voting-workshop-bhu/ledger"
	"github.com/asmb123/voting-workshop-bhu/models"
)

// AccountRepository 按派生地址读取账户
// 账户不存在时返回包裹 ledger.ErrAccountNotFound 的错误
type AccountRepository interface {
	GetPoll(ctx context.Context, addr address.Address) (*models.Poll, error)
	GetCandidate(ctx context.Context, addr address.Address) (*models.Candidate, error)
	GetParticipation(ctx context.Context, addr address.Address) (*models.ParticipationRecord, error)
}

// LedgerRepository 直接通过运行时的只读视图读取账户
type LedgerRepository struct {
	runtime *ledger.Runtime
}

// NewLedgerRepository 创建账户仓库
func NewLedgerRepository(runtime *ledger.Runtime) *LedgerRepository {
	return &LedgerRepository{runtime: runtime}
}

func view[T ledger.Account](ctx context.Context, rt *ledger.Runtime, addr address.Address) (*T, error) {
	var acct *T
	err := rt.View(ctx, func(tx *ledger.Tx) error {
		var err error
		acct, err = ledger.Load[T](tx, addr)
		return err
	})
	if err != nil {
		return nil, err
	}
	return acct, nil
}

// GetPoll 读取投票账户
func (r *LedgerRepository) GetPoll(ctx context.Context, addr address.Address) (*models.Poll, error) {
	return view[models.Poll](ctx, r.runtime, addr)
}

// GetCandidate 读取候选人账户
func (r *LedgerRepository) GetCandidate(ctx context.Context, addr address.Address) (*models.Candidate, error) {
	return view[models.Candidate](ctx, r.runtime, addr)
}

// GetParticipation 读取参与记录
func (r *LedgerRepository) GetParticipation(ctx context.Context, addr address.Address) (*models.ParticipationRecord, error) {
	return view[models.ParticipationRecord](ctx, r.runtime, addr)
}
