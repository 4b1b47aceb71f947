package mq

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// EventType 事件类型
type EventType string

const (
	EventPollCreated         EventType = "poll_created"
	EventCandidateRegistered EventType = "candidate_registered"
	EventVoteCast            EventType = "vote_cast"
)

// Event 一次状态转换提交后发布的事件
type Event struct {
	ID                   string    `json:"id"`
	Type                 EventType `json:"type"`
	PollID               uint64    `json:"poll_id"`
	PollAddress          string    `json:"poll_address"`
	CandidateName        string    `json:"candidate_name,omitempty"`
	CandidateAddress     string    `json:"candidate_address,omitempty"`
	ParticipationAddress string    `json:"participation_address,omitempty"`
	Actor                string    `json:"actor"`
	CandidateAmount      uint64    `json:"candidate_amount"`
	CandidateVotes       uint64    `json:"candidate_votes"`
	TotalVotes           uint64    `json:"total_votes"`
	Timestamp            int64     `json:"timestamp"`
}

// NewEvent 创建带唯一ID和当前时间的事件
func NewEvent(typ EventType, pollID uint64) Event {
	return Event{
		ID:        uuid.NewString(),
		Type:      typ,
		PollID:    pollID,
		Timestamp: time.Now().Unix(),
	}
}

// Publisher 事件发布者
type Publisher interface {
	Publish(ctx context.Context, ev Event) error
}

// PublisherFunc 函数形式的 Publisher
type PublisherFunc func(ctx context.Context, ev Event) error

// Publish 调用 f
func (f PublisherFunc) Publish(ctx context.Context, ev Event) error {
	return f(ctx, ev)
}

// Fanout 依次发布到所有发布者，某个失败不影响其余发布者
type Fanout []Publisher

// Publish 发布事件，返回所有失败合并后的错误
func (f Fanout) Publish(ctx context.Context, ev Event) error {
	var errs []error
	for _, p := range f {
		if p == nil {
			continue
		}
		if err := p.Publish(ctx, ev); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
