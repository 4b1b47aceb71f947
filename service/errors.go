package service

import (
	"errors"

	"github.com/asmb123/voting-workshop-bhu/ledger"
)

// ErrorKind 业务错误种类
type ErrorKind string

const (
	KindPollStartAfterEnd    ErrorKind = "PollStartAfterEnd"
	KindPollEndInPast        ErrorKind = "PollEndInPast"
	KindAccountNotFound      ErrorKind = "AccountNotFound"
	KindAccountAlreadyInUse  ErrorKind = "AccountAlreadyInUse"
	KindDuplicateVoteAttempt ErrorKind = "DuplicateVoteAttempt"
	KindPollNotStarted       ErrorKind = "PollNotStarted"
	KindPollEnded            ErrorKind = "PollEnded"
	KindDescriptionTooLong   ErrorKind = "DescriptionTooLong"
	KindCandidateNameTooLong ErrorKind = "CandidateNameTooLong"
	KindInvalidCandidateName ErrorKind = "InvalidCandidateName"
)

// VotingError 状态转换失败的类型化错误，按 Kind 比较
type VotingError struct {
	Kind    ErrorKind
	Message string
	cause   error
}

func (e *VotingError) Error() string {
	return e.Message
}

// Unwrap 返回底层原因
func (e *VotingError) Unwrap() error {
	return e.cause
}

// Is 同种类的 VotingError 视为相等
func (e *VotingError) Is(target error) bool {
	t, ok := target.(*VotingError)
	return ok && t.Kind == e.Kind
}

func newKind(kind ErrorKind, message string) *VotingError {
	return &VotingError{Kind: kind, Message: message}
}

// 业务错误定义
var (
	ErrPollStartAfterEnd    = newKind(KindPollStartAfterEnd, "The poll start time must be before the end time.")
	ErrPollEndInPast        = newKind(KindPollEndInPast, "The poll end time must be in the future.")
	ErrAccountNotFound      = newKind(KindAccountNotFound, "The program expected this account to be already initialized.")
	ErrAccountAlreadyInUse  = newKind(KindAccountAlreadyInUse, "The account is already in use.")
	ErrDuplicateVoteAttempt = newKind(KindDuplicateVoteAttempt, "This wallet has already participated in the current poll.")
	ErrPollNotStarted       = newKind(KindPollNotStarted, "The poll has not started yet.")
	ErrPollEnded            = newKind(KindPollEnded, "The poll has already ended.")
	ErrDescriptionTooLong   = newKind(KindDescriptionTooLong, "The poll description exceeds 200 bytes.")
	ErrCandidateNameTooLong = newKind(KindCandidateNameTooLong, "The candidate name exceeds 32 bytes.")
	ErrInvalidCandidateName = newKind(KindInvalidCandidateName, "The candidate name must not be empty.")
)

// withCause 复制 sentinel 并附上原因
func withCause(sentinel *VotingError, cause error) *VotingError {
	return &VotingError{Kind: sentinel.Kind, Message: sentinel.Message, cause: cause}
}

// KindOf 返回错误链中 VotingError 的种类
func KindOf(err error) (ErrorKind, bool) {
	var ve *VotingError
	if errors.As(err, &ve) {
		return ve.Kind, true
	}
	return "", false
}

// translate 把存储层错误映射为业务错误，其他错误原样返回
func translate(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := KindOf(err); ok {
		return err
	}
	switch {
	case errors.Is(err, ledger.ErrAccountNotFound):
		return withCause(ErrAccountNotFound, err)
	case errors.Is(err, ledger.ErrAccountAlreadyInUse):
		return withCause(ErrAccountAlreadyInUse, err)
	}
	return err
}
