package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/asmb123/voting-workshop-bhu/identity"
	"github.com/asmb123/voting-workshop-bhu/service"
)

// 非业务错误的错误码
const (
	CodeInvalidRequest  = "InvalidRequest"
	CodeUnauthenticated = "Unauthenticated"
	CodeRateLimited     = "RateLimited"
	CodeInternal        = "InternalError"
)

// ErrorResponse API错误响应
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// statusForKind 业务错误种类对应的HTTP状态码
func statusForKind(kind service.ErrorKind) int {
	switch kind {
	case service.KindPollStartAfterEnd,
		service.KindPollEndInPast,
		service.KindDescriptionTooLong,
		service.KindCandidateNameTooLong,
		service.KindInvalidCandidateName:
		return http.StatusBadRequest
	case service.KindAccountNotFound:
		return http.StatusNotFound
	case service.KindAccountAlreadyInUse, service.KindDuplicateVoteAttempt:
		return http.StatusConflict
	case service.KindPollNotStarted, service.KindPollEnded:
		return http.StatusForbidden
	}
	return http.StatusInternalServerError
}

// respondError 把错误写成统一的JSON响应并终止处理链
func respondError(c *gin.Context, logger *zap.Logger, err error) {
	var ve *service.VotingError
	switch {
	case errors.As(err, &ve):
		c.AbortWithStatusJSON(statusForKind(ve.Kind), ErrorResponse{Error: ve.Message, Code: string(ve.Kind)})
	case errors.Is(err, identity.ErrUnauthenticated), errors.Is(err, identity.ErrInvalidIdentity):
		c.AbortWithStatusJSON(http.StatusUnauthorized, ErrorResponse{Error: err.Error(), Code: CodeUnauthenticated})
	default:
		logger.Error("request failed",
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.String("request_id", c.GetString(requestIDKey)),
			zap.Error(err))
		c.AbortWithStatusJSON(http.StatusInternalServerError, ErrorResponse{Error: "Internal server error", Code: CodeInternal})
	}
}

func badRequest(c *gin.Context, message string) {
	c.AbortWithStatusJSON(http.StatusBadRequest, ErrorResponse{Error: message, Code: CodeInvalidRequest})
}
