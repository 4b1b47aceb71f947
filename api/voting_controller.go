package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/asmb123/voting-workshop-bhu/identity"
	"github.com/asmb123/voting-workshop-bhu/service"
)

// CreatePollRequest 创建投票请求体，时间为unix秒
type CreatePollRequest struct {
	PollID      *uint64 `json:"poll_id" binding:"required"`
	Description string  `json:"description"`
	PollStart   *uint64 `json:"poll_start" binding:"required"`
	PollEnd     *uint64 `json:"poll_end" binding:"required"`
}

// CandidateRequest 注册候选人和投票的请求体
type CandidateRequest struct {
	CandidateName string `json:"candidate_name" binding:"required"`
}

// VotingController 处理投票相关API请求
type VotingController struct {
	votingService service.VotingService
	logger        *zap.Logger
}

// NewVotingController 创建投票控制器
func NewVotingController(votingService service.VotingService, logger *zap.Logger) *VotingController {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &VotingController{votingService: votingService, logger: logger}
}

// RegisterRoutes 注册API路由
// auth 作用于所有写操作，voteLimit 只作用于投票
func (vc *VotingController) RegisterRoutes(api *gin.RouterGroup, auth, voteLimit gin.HandlerFunc) {
	polls := api.Group("/polls")
	{
		polls.GET("/:id", vc.GetPoll)
		polls.GET("/:id/candidates/:name", vc.GetCandidate)
		polls.GET("/:id/participation/:voter", vc.GetParticipation)

		polls.POST("", auth, vc.CreatePoll)
		polls.POST("/:id/candidates", auth, vc.RegisterCandidate)
		polls.POST("/:id/votes", auth, voteLimit, vc.CastVote)
	}
}

// CreatePoll 创建投票
// @Router /api/polls [post]
func (vc *VotingController) CreatePoll(c *gin.Context) {
	var req CreatePollRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request: "+err.Error())
		return
	}
	payer, ok := CallerIdentity(c)
	if !ok {
		respondError(c, vc.logger, identity.ErrUnauthenticated)
		return
	}

	poll, err := vc.votingService.CreatePoll(c.Request.Context(), payer, service.CreatePollRequest{
		PollID:      *req.PollID,
		Description: req.Description,
		PollStart:   *req.PollStart,
		PollEnd:     *req.PollEnd,
	})
	if err != nil {
		respondError(c, vc.logger, err)
		return
	}
	c.JSON(http.StatusCreated, poll)
}

// RegisterCandidate 注册候选人
// @Router /api/polls/{id}/candidates [post]
func (vc *VotingController) RegisterCandidate(c *gin.Context) {
	pollID, ok := pollIDParam(c)
	if !ok {
		return
	}
	var req CandidateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request: "+err.Error())
		return
	}
	payer, ok := CallerIdentity(c)
	if !ok {
		respondError(c, vc.logger, identity.ErrUnauthenticated)
		return
	}

	candidate, err := vc.votingService.RegisterCandidate(c.Request.Context(), payer, pollID, req.CandidateName)
	if err != nil {
		respondError(c, vc.logger, err)
		return
	}
	c.JSON(http.StatusCreated, candidate)
}

// CastVote 投票，调用方身份即投票人
// @Router /api/polls/{id}/votes [post]
func (vc *VotingController) CastVote(c *gin.Context) {
	pollID, ok := pollIDParam(c)
	if !ok {
		return
	}
	var req CandidateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request: "+err.Error())
		return
	}
	voter, ok := CallerIdentity(c)
	if !ok {
		respondError(c, vc.logger, identity.ErrUnauthenticated)
		return
	}

	receipt, err := vc.votingService.CastVote(c.Request.Context(), voter, pollID, req.CandidateName)
	if err != nil {
		respondError(c, vc.logger, err)
		return
	}
	c.JSON(http.StatusOK, receipt)
}

// GetPoll 查询投票
// @Router /api/polls/{id} [get]
func (vc *VotingController) GetPoll(c *gin.Context) {
	pollID, ok := pollIDParam(c)
	if !ok {
		return
	}
	poll, err := vc.votingService.GetPoll(c.Request.Context(), pollID)
	if err != nil {
		respondError(c, vc.logger, err)
		return
	}
	c.JSON(http.StatusOK, poll)
}

// GetCandidate 查询候选人
// @Router /api/polls/{id}/candidates/{name} [get]
func (vc *VotingController) GetCandidate(c *gin.Context) {
	pollID, ok := pollIDParam(c)
	if !ok {
		return
	}
	candidate, err := vc.votingService.GetCandidate(c.Request.Context(), pollID, c.Param("name"))
	if err != nil {
		respondError(c, vc.logger, err)
		return
	}
	c.JSON(http.StatusOK, candidate)
}

// GetParticipation 查询某个身份在投票中的参与记录
// @Router /api/polls/{id}/participation/{voter} [get]
func (vc *VotingController) GetParticipation(c *gin.Context) {
	pollID, ok := pollIDParam(c)
	if !ok {
		return
	}
	voter, err := identity.Parse(c.Param("voter"))
	if err != nil {
		badRequest(c, "Invalid voter identity")
		return
	}
	record, err := vc.votingService.GetParticipation(c.Request.Context(), pollID, voter)
	if err != nil {
		respondError(c, vc.logger, err)
		return
	}
	c.JSON(http.StatusOK, record)
}

func pollIDParam(c *gin.Context) (uint64, bool) {
	pollID, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		badRequest(c, "Invalid poll ID")
		return 0, false
	}
	return pollID, true
}
