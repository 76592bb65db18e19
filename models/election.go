package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Role 账户角色，注册时确定，之后不再变更
type Role string

const (
	RoleCompany Role = "company"
	RoleVoter   Role = "voter"
)

// Valid 是否为已知的两种角色之一
func (r Role) Valid() bool {
	return r == RoleCompany || r == RoleVoter
}

// ElectionStatus 选举状态
type ElectionStatus string

const (
	StatusUpcoming ElectionStatus = "upcoming"
	StatusActive   ElectionStatus = "active"
	StatusClosed   ElectionStatus = "closed" // 目前没有任何流程会写入该状态
)

// Profile 账户：发起选举的公司或参与投票的选民
type Profile struct {
	ID           string    `gorm:"primaryKey;size:36" json:"id"`
	Role         Role      `gorm:"size:16;not null;index" json:"role"`
	Name         string    `gorm:"size:255;not null" json:"name"`
	Email        string    `gorm:"size:255;not null;uniqueIndex" json:"email"`
	PasswordHash string    `gorm:"size:255;not null" json:"-"`
	CreatedAt    time.Time `json:"created_at"`
}

// Election 选举，归属于创建它的公司账户
type Election struct {
	ID              string         `gorm:"primaryKey;size:36" json:"id"`
	CompanyID       string         `gorm:"size:36;not null;index" json:"company_id"`
	Title           string         `gorm:"size:255;not null" json:"title"`
	StartDate       time.Time      `gorm:"not null" json:"start_date"`
	EndDate         time.Time      `gorm:"not null" json:"end_date"`
	ContractAddress string         `gorm:"size:42;not null;uniqueIndex" json:"contract_address"`
	Status          ElectionStatus `gorm:"size:16;not null;default:upcoming" json:"status"`
	Candidates      []Candidate    `gorm:"foreignKey:ElectionID" json:"candidates,omitempty"`
	CreatedAt       time.Time      `gorm:"index" json:"created_at"`
}

// Candidate 候选人，VotesCount 为冗余的票数计数列
type Candidate struct {
	ID         string `gorm:"primaryKey;size:36" json:"id"`
	ElectionID string `gorm:"size:36;not null;index" json:"election_id"`
	Name       string `gorm:"size:255;not null" json:"name"`
	VotesCount int64  `gorm:"not null;default:0" json:"votes_count"`
}

// Vote 投票记录，(voter_id, election_id) 唯一索引保证一人一票
type Vote struct {
	ID          string    `gorm:"primaryKey;size:36" json:"id"`
	VoterID     string    `gorm:"size:36;not null;uniqueIndex:idx_votes_voter_election,priority:1" json:"voter_id"`
	ElectionID  string    `gorm:"size:36;not null;uniqueIndex:idx_votes_voter_election,priority:2;index" json:"election_id"`
	CandidateID string    `gorm:"size:36;not null;index" json:"candidate_id"`
	TxHash      string    `gorm:"size:66;not null;uniqueIndex" json:"tx_hash"`
	CreatedAt   time.Time `json:"created_at"`
}

// VoteUniqueIndex 一人一票唯一索引名
const VoteUniqueIndex = "idx_votes_voter_election"

func newID(id *string) {
	if *id == "" {
		*id = uuid.NewString()
	}
}

func (p *Profile) BeforeCreate(*gorm.DB) error   { newID(&p.ID); return nil }
func (e *Election) BeforeCreate(*gorm.DB) error  { newID(&e.ID); return nil }
func (c *Candidate) BeforeCreate(*gorm.DB) error { newID(&c.ID); return nil }
func (v *Vote) BeforeCreate(*gorm.DB) error      { newID(&v.ID); return nil }

// All 按迁移顺序列出全部持久化模型
func All() []interface{} {
	return []interface{}{&Profile{}, &Election{}, &Candidate{}, &Vote{}}
}
