package models

import (
	"encoding/json"
	"time"
)

// SignUpRequest 注册请求，角色取自路由参数
type SignUpRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required,min=6"`
	Name     string `json:"name" binding:"required"`
}

// SignInRequest 登录请求
type SignInRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

// CreateElectionRequest 创建选举请求
// 日期格式 2006-01-02，时间格式 15:04，时间为空时默认 09:00 / 17:00
type CreateElectionRequest struct {
	Title      string   `json:"title"`
	StartDate  string   `json:"start_date"`
	StartTime  string   `json:"start_time"`
	EndDate    string   `json:"end_date"`
	EndTime    string   `json:"end_time"`
	Candidates []string `json:"candidates"`
}

// CastVoteRequest 投票请求
type CastVoteRequest struct {
	CandidateID string `json:"candidate_id" binding:"required"`
}

// CandidateTally 候选人计票结果
type CandidateTally struct {
	CandidateID string  `json:"candidate_id"`
	Name        string  `json:"name"`
	Votes       int64   `json:"votes"`
	Percentage  float64 `json:"percentage"`
}

// TallyResult 选举计票结果
type TallyResult struct {
	ElectionID string           `json:"election_id"`
	Title      string           `json:"title"`
	Status     ElectionStatus   `json:"status"`
	TotalVotes int64            `json:"total_votes"`
	Candidates []CandidateTally `json:"candidates"`
	UpdatedAt  time.Time        `json:"updated_at"`
}

// ElectionSummary 公司看板中的一行
type ElectionSummary struct {
	Election
	TotalVotes int64 `json:"total_votes"`
}

// VoterElection 选民选举列表中的一行
type VoterElection struct {
	Election
	HasVoted bool `json:"has_voted"`
}

// Ballot 投票页所需数据
type Ballot struct {
	Election   Election    `json:"election"`
	Candidates []Candidate `json:"candidates"`
	HasVoted   bool        `json:"has_voted"`
}

// Receipt 投票成功回执
type Receipt struct {
	TxHash        string `json:"tx_hash"`
	ElectionID    string `json:"election_id"`
	ElectionTitle string `json:"election_title"`
	CandidateID   string `json:"candidate_id"`
	RedirectURL   string `json:"redirect_url"`
}

// WebSocket / SSE 消息类型
const (
	MessageTallyUpdate = "tally_update"
	MessageConnected   = "connected"
)

// WebSocketMessage 定义实时推送消息格式，WebSocket与SSE共用
type WebSocketMessage struct {
	Type       string      `json:"type"`
	ElectionID string      `json:"electionId"`
	Payload    interface{} `json:"payload"`
}

// ToJSON 将消息转换为JSON字节数组
func (m *WebSocketMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}
