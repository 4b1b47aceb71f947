package models

import (
	"time"
)

// 账户字段长度限制
const (
	MaxDescriptionLength   = 200
	MaxCandidateNameLength = 32
)

// Poll 投票账户，地址为 derive(["poll", poll_id])
type Poll struct {
	Address         string    `gorm:"primaryKey;size:64" json:"address"`
	PollID          uint64    `gorm:"not null" json:"poll_id"`
	Description     string    `gorm:"size:200" json:"description"`
	PollStart       uint64    `gorm:"not null" json:"poll_start"`
	PollEnd         uint64    `gorm:"not null" json:"poll_end"`
	CandidateAmount uint64    `gorm:"not null" json:"candidate_amount"`
	TotalVotes      uint64    `gorm:"not null" json:"total_votes"`
	Payer           string    `gorm:"size:64;not null" json:"payer"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// Candidate 候选人账户，地址为 derive(["poll", poll_id, candidate_name])
type Candidate struct {
	Address        string    `gorm:"primaryKey;size:64" json:"address"`
	CandidateName  string    `gorm:"size:32;not null" json:"candidate_name"`
	CandidateVotes uint64    `gorm:"not null" json:"candidate_votes"`
	Payer          string    `gorm:"size:64;not null" json:"payer"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// ParticipationRecord 参与记录，地址为 derive(["poll", poll_id, voter])
// has_participated 一旦为 true 即为终态
type ParticipationRecord struct {
	Address         string    `gorm:"primaryKey;size:64" json:"address"`
	HasParticipated bool      `gorm:"not null" json:"has_participated"`
	PollReference   string    `gorm:"size:64" json:"poll_reference"`
	Payer           string    `gorm:"size:64;not null" json:"payer"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// AccountKind 账户类型名
func (Poll) AccountKind() string { return "poll" }

// AccountAddress 账户地址
func (p Poll) AccountAddress() string { return p.Address }

// AccountKind 账户类型名
func (Candidate) AccountKind() string { return "candidate" }

// AccountAddress 账户地址
func (c Candidate) AccountAddress() string { return c.Address }

// AccountKind 账户类型名
func (ParticipationRecord) AccountKind() string { return "participation_record" }

// AccountAddress 账户地址
func (r ParticipationRecord) AccountAddress() string { return r.Address }

// All 需要迁移的全部账户模型
func All() []interface{} {
	return []interface{}{&Poll{}, &Candidate{}, &ParticipationRecord{}}
}
