package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/asmb123/voting-workshop-bhu/address"
	"github.com/asmb123/voting-workshop-bhu/config"
	"github.com/asmb123/voting-workshop-bhu/identity"
	"github.com/asmb123/voting-workshop-bhu/ledger"
	"github.com/asmb123/voting-workshop-bhu/models"
	"github.com/asmb123/voting-workshop-bhu/mq"
	"github.com/asmb123/voting-workshop-bhu/repository"
)

const publishTimeout = 5 * time.Second

// CreatePollRequest 创建投票的参数
type CreatePollRequest struct {
	PollID      uint64
	Description string
	PollStart   uint64
	PollEnd     uint64
}

// VoteReceipt 投票成功后的回执
type VoteReceipt struct {
	PollAddress          address.Address `json:"poll_address"`
	CandidateAddress     address.Address `json:"candidate_address"`
	ParticipationAddress address.Address `json:"participation_address"`
	CandidateVotes       uint64          `json:"candidate_votes"`
	TotalVotes           uint64          `json:"total_votes"`
}

// VotingService 投票服务接口
type VotingService interface {
	// 状态转换
	CreatePoll(ctx context.Context, payer identity.Identity, req CreatePollRequest) (*models.Poll, error)
	RegisterCandidate(ctx context.Context, payer identity.Identity, pollID uint64, candidateName string) (*models.Candidate, error)
	CastVote(ctx context.Context, voter identity.Identity, pollID uint64, candidateName string) (*VoteReceipt, error)

	// 查询
	GetPoll(ctx context.Context, pollID uint64) (*models.Poll, error)
	GetCandidate(ctx context.Context, pollID uint64, candidateName string) (*models.Candidate, error)
	GetParticipation(ctx context.Context, pollID uint64, voter identity.Identity) (*models.ParticipationRecord, error)
}

// VotingServiceImpl 投票服务实现
type VotingServiceImpl struct {
	runtime   *ledger.Runtime
	accounts  repository.AccountRepository
	publisher mq.Publisher
	policy    config.WindowPolicy
	logger    *zap.Logger
}

// NewVotingService 创建投票服务
// accounts 为 nil 时直接从运行时读取，publisher 可以为 nil
func NewVotingService(runtime *ledger.Runtime, accounts repository.AccountRepository, publisher mq.Publisher, policy config.WindowPolicy, logger *zap.Logger) VotingService {
	if accounts == nil {
		accounts = repository.NewLedgerRepository(runtime)
	}
	if policy == "" {
		policy = config.WindowEnforce
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &VotingServiceImpl{
		runtime:   runtime,
		accounts:  accounts,
		publisher: publisher,
		policy:    policy,
		logger:    logger,
	}
}

// CreatePoll 创建投票账户
func (s *VotingServiceImpl) CreatePoll(ctx context.Context, payer identity.Identity, req CreatePollRequest) (*models.Poll, error) {
	if req.PollStart > req.PollEnd {
		return nil, ErrPollStartAfterEnd
	}

	pollAddr := address.PollAddress(req.PollID)
	var poll *models.Poll
	err := s.runtime.Execute(ctx, []address.Address{pollAddr}, func(tx *ledger.Tx) error {
		if req.PollEnd <= tx.Now() {
			return ErrPollEndInPast
		}
		// 描述长度在时间检查之后校验
		if len(req.Description) > models.MaxDescriptionLength {
			return ErrDescriptionTooLong
		}
		poll = &models.Poll{
			Address:     pollAddr.String(),
			PollID:      req.PollID,
			Description: req.Description,
			PollStart:   req.PollStart,
			PollEnd:     req.PollEnd,
			Payer:       payer.String(),
		}
		return ledger.CreateExclusive(tx, poll)
	})
	if err != nil {
		return nil, translate(err)
	}

	s.logger.Info("poll created",
		zap.Uint64("poll_id", req.PollID),
		zap.String("poll", poll.Address),
		zap.Uint64("poll_start", req.PollStart),
		zap.Uint64("poll_end", req.PollEnd))

	ev := mq.NewEvent(mq.EventPollCreated, req.PollID)
	ev.PollAddress = poll.Address
	ev.Actor = payer.String()
	s.publish(ctx, ev)
	return poll, nil
}

// RegisterCandidate 为已存在的投票注册候选人
// 注册不受投票时间窗口限制
func (s *VotingServiceImpl) RegisterCandidate(ctx context.Context, payer identity.Identity, pollID uint64, candidateName string) (*models.Candidate, error) {
	if err := validateCandidateName(candidateName); err != nil {
		return nil, err
	}

	pollAddr := address.PollAddress(pollID)
	candidateAddr := address.CandidateAddress(pollID, candidateName)
	var candidate *models.Candidate
	var poll *models.Poll
	err := s.runtime.Execute(ctx, []address.Address{candidateAddr}, func(tx *ledger.Tx) error {
		if _, err := ledger.Load[models.Poll](tx, pollAddr); err != nil {
			return err
		}
		candidate = &models.Candidate{
			Address:       candidateAddr.String(),
			CandidateName: candidateName,
			Payer:         payer.String(),
		}
		if err := ledger.CreateExclusive(tx, candidate); err != nil {
			return err
		}
		if err := ledger.Increment[models.Poll](tx, pollAddr, "candidate_amount"); err != nil {
			return err
		}
		var err error
		poll, err = ledger.Load[models.Poll](tx, pollAddr)
		return err
	})
	if err != nil {
		return nil, translate(err)
	}

	s.logger.Info("candidate registered",
		zap.Uint64("poll_id", pollID),
		zap.String("candidate_name", candidateName),
		zap.String("candidate", candidate.Address),
		zap.Uint64("candidate_amount", poll.CandidateAmount))

	ev := mq.NewEvent(mq.EventCandidateRegistered, pollID)
	ev.PollAddress = poll.Address
	ev.CandidateName = candidateName
	ev.CandidateAddress = candidate.Address
	ev.Actor = payer.String()
	ev.CandidateAmount = poll.CandidateAmount
	ev.TotalVotes = poll.TotalVotes
	s.publish(ctx, ev)
	return candidate, nil
}

// CastVote 以 voter 身份为候选人投一票，每个身份在每个投票中只能投一次
func (s *VotingServiceImpl) CastVote(ctx context.Context, voter identity.Identity, pollID uint64, candidateName string) (*VoteReceipt, error) {
	pollAddr := address.PollAddress(pollID)
	candidateAddr := address.CandidateAddress(pollID, candidateName)
	recordAddr := address.ParticipationAddress(pollID, voter.Bytes())

	receipt := &VoteReceipt{
		PollAddress:          pollAddr,
		CandidateAddress:     candidateAddr,
		ParticipationAddress: recordAddr,
	}
	var candidateAmount uint64
	err := s.runtime.Execute(ctx, []address.Address{recordAddr}, func(tx *ledger.Tx) error {
		poll, err := ledger.Load[models.Poll](tx, pollAddr)
		if err != nil {
			return err
		}
		if _, err := ledger.Load[models.Candidate](tx, candidateAddr); err != nil {
			return err
		}
		if err := s.checkWindow(poll, tx.Now()); err != nil {
			return err
		}

		record, _, err := ledger.LoadOrInit(tx, recordAddr, func() *models.ParticipationRecord {
			return &models.ParticipationRecord{Address: recordAddr.String(), Payer: voter.String()}
		})
		if err != nil {
			return err
		}
		if record.HasParticipated {
			return ErrDuplicateVoteAttempt
		}

		record.HasParticipated = true
		record.PollReference = pollAddr.String()
		if err := ledger.Save(tx, record, "has_participated", "poll_reference"); err != nil {
			return err
		}
		if err := ledger.Increment[models.Candidate](tx, candidateAddr, "candidate_votes"); err != nil {
			return err
		}
		if err := ledger.Increment[models.Poll](tx, pollAddr, "total_votes"); err != nil {
			return err
		}

		// 回执中带上提交后的计数
		candidate, err := ledger.Load[models.Candidate](tx, candidateAddr)
		if err != nil {
			return err
		}
		poll, err = ledger.Load[models.Poll](tx, pollAddr)
		if err != nil {
			return err
		}
		receipt.CandidateVotes = candidate.CandidateVotes
		receipt.TotalVotes = poll.TotalVotes
		candidateAmount = poll.CandidateAmount
		return nil
	})
	if err != nil {
		return nil, translate(err)
	}

	s.logger.Info("voted for candidate",
		zap.Uint64("poll_id", pollID),
		zap.String("candidate_name", candidateName),
		zap.String("voter", voter.String()),
		zap.Uint64("candidate_votes", receipt.CandidateVotes),
		zap.Uint64("total_votes", receipt.TotalVotes))

	ev := mq.NewEvent(mq.EventVoteCast, pollID)
	ev.PollAddress = pollAddr.String()
	ev.CandidateName = candidateName
	ev.CandidateAddress = candidateAddr.String()
	ev.ParticipationAddress = recordAddr.String()
	ev.Actor = voter.String()
	ev.CandidateAmount = candidateAmount
	ev.CandidateVotes = receipt.CandidateVotes
	ev.TotalVotes = receipt.TotalVotes
	s.publish(ctx, ev)
	return receipt, nil
}

// checkWindow 按配置的策略检查投票时间窗口，窗口两端均包含在内
func (s *VotingServiceImpl) checkWindow(poll *models.Poll, now uint64) error {
	if s.policy == config.WindowOpen {
		return nil
	}
	if now < poll.PollStart {
		return ErrPollNotStarted
	}
	if now > poll.PollEnd {
		return ErrPollEnded
	}
	return nil
}

// GetPoll 查询投票
func (s *VotingServiceImpl) GetPoll(ctx context.Context, pollID uint64) (*models.Poll, error) {
	poll, err := s.accounts.GetPoll(ctx, address.PollAddress(pollID))
	return poll, translate(err)
}

// GetCandidate 查询候选人
func (s *VotingServiceImpl) GetCandidate(ctx context.Context, pollID uint64, candidateName string) (*models.Candidate, error) {
	if err := validateCandidateName(candidateName); err != nil {
		return nil, err
	}
	candidate, err := s.accounts.GetCandidate(ctx, address.CandidateAddress(pollID, candidateName))
	return candidate, translate(err)
}

// GetParticipation 查询参与记录
func (s *VotingServiceImpl) GetParticipation(ctx context.Context, pollID uint64, voter identity.Identity) (*models.ParticipationRecord, error) {
	record, err := s.accounts.GetParticipation(ctx, address.ParticipationAddress(pollID, voter.Bytes()))
	return record, translate(err)
}

// publish 提交后发布事件，失败只记录日志
func (s *VotingServiceImpl) publish(ctx context.Context, ev mq.Event) {
	if s.publisher == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()
	if err := s.publisher.Publish(ctx, ev); err != nil {
		s.logger.Warn("publish event failed",
			zap.String("event_id", ev.ID),
			zap.String("type", string(ev.Type)),
			zap.Uint64("poll_id", ev.PollID),
			zap.Error(err))
	}
}

func validateCandidateName(name string) error {
	if name == "" {
		return ErrInvalidCandidateName
	}
	if len(name) > models.MaxCandidateNameLength {
		return ErrCandidateNameTooLong
	}
	return nil
}
