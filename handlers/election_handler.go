package handlers

import (
	"net/http"

	"chainvote-backend/ledger"
	"chainvote-backend/models"
	"chainvote-backend/service"

	"github.com/gin-gonic/gin"
)

// ElectionHandler 公司看板、选民列表、投票页与计票结果
type ElectionHandler struct {
	elections *service.ElectionService
	votes     *service.VoteService
}

// NewElectionHandler 创建选举处理器
func NewElectionHandler(elections *service.ElectionService, votes *service.VoteService) *ElectionHandler {
	return &ElectionHandler{elections: elections, votes: votes}
}

// RegisterRoutes 注册选举相关路由，每组路由带各自的角色守卫
func (h *ElectionHandler) RegisterRoutes(api *gin.RouterGroup) {
	company := api.Group("/company", RequireRole(models.RoleCompany))
	{
		company.POST("/elections", h.CreateElection)
		company.GET("/dashboard", h.Dashboard)
	}

	voter := api.Group("/voter", RequireRole(models.RoleVoter))
	{
		voter.GET("/elections", h.VoterElections)
		voter.GET("/vote/:id", h.Ballot)
		voter.POST("/vote/:id", h.CastVote)
		voter.GET("/success", h.Success)
	}

	api.GET("/elections/:id/results", RequireRole(""), h.Results)
}

// CreateElection 创建选举，成功后跳转回看板
func (h *ElectionHandler) CreateElection(c *gin.Context) {
	var req models.CreateElectionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}

	session := CurrentSession(c)
	election, err := h.elections.CreateElection(c.Request.Context(), session.Profile.ID, req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{
		"election": election,
		"redirect": service.DashboardPath(models.RoleCompany),
	})
}

// Dashboard 公司自己的选举及实时票数
func (h *ElectionHandler) Dashboard(c *gin.Context) {
	session := CurrentSession(c)
	summaries, err := h.elections.ListCompanyElections(c.Request.Context(), session.Profile.ID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"elections": summaries})
}

// VoterElections 选民可见的选举列表
func (h *ElectionHandler) VoterElections(c *gin.Context) {
	session := CurrentSession(c)
	elections, err := h.elections.ListVoterElections(c.Request.Context(), session.Profile.ID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"elections": elections})
}

// Ballot 投票页数据
func (h *ElectionHandler) Ballot(c *gin.Context) {
	session := CurrentSession(c)
	ballot, err := h.elections.GetBallot(c.Request.Context(), c.Param("id"), session.Profile.ID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, ballot)
}

// CastVote 投票并返回回执
func (h *ElectionHandler) CastVote(c *gin.Context) {
	var req models.CastVoteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}

	session := CurrentSession(c)
	receipt, err := h.votes.CastVote(c.Request.Context(), session.Profile.ID, c.Param("id"), req.CandidateID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, receipt)
}

// Success 投票成功页，回显交易哈希与选举名称
func (h *ElectionHandler) Success(c *gin.Context) {
	tx := c.Query("tx")
	if tx == "" {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "missing transaction hash", Field: "tx"})
		return
	}
	if !ledger.IsTxHash(tx) {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid transaction hash", Field: "tx"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"tx": tx, "election": c.Query("election")})
}

// Results 计票结果
func (h *ElectionHandler) Results(c *gin.Context) {
	result, err := h.elections.Tallies(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}
