package service

import (
	"context"
	"math"
	"time"

	"chainvote-backend/config"
	"chainvote-backend/models"
	"chainvote-backend/repository"
)

// TallyStrategy 决定候选人票数如何维护与读取
type TallyStrategy interface {
	Name() string
	// Record 在写入投票记录的事务内调用，votes 绑定该事务；失败不影响投票本身
	Record(ctx context.Context, votes repository.VoteRepository, vote *models.Vote) error
	// Counts 返回该选举各候选人的票数
	Counts(ctx context.Context, electionID string, candidates []models.Candidate) (map[string]int64, error)
}

// NewTallyStrategy 按配置选择计票方式
func NewTallyStrategy(mode string, votes repository.VoteRepository) TallyStrategy {
	if mode == config.TallyModeDerived {
		return &derivedTally{votes: votes}
	}
	return &atomicTally{votes: votes}
}

// atomicTally 维护 votes_count 列，每票在数据库端 +1
type atomicTally struct {
	votes repository.VoteRepository
}

func (t *atomicTally) Name() string { return config.TallyModeAtomic }

func (t *atomicTally) Record(ctx context.Context, votes repository.VoteRepository, vote *models.Vote) error {
	return votes.IncrementCandidateVotes(ctx, vote.CandidateID)
}

func (t *atomicTally) Counts(_ context.Context, _ string, candidates []models.Candidate) (map[string]int64, error) {
	counts := make(map[string]int64, len(candidates))
	for _, c := range candidates {
		counts[c.ID] = c.VotesCount
	}
	return counts, nil
}

// derivedTally 不写计数列，读取时按投票记录分组统计
type derivedTally struct {
	votes repository.VoteRepository
}

func (t *derivedTally) Name() string { return config.TallyModeDerived }

func (t *derivedTally) Record(context.Context, repository.VoteRepository, *models.Vote) error {
	return nil
}

func (t *derivedTally) Counts(ctx context.Context, electionID string, _ []models.Candidate) (map[string]int64, error) {
	return t.votes.CountByCandidate(ctx, electionID)
}

// applyCounts 将票数写回候选人切片并返回总票数
func applyCounts(candidates []models.Candidate, counts map[string]int64) int64 {
	var total int64
	for i := range candidates {
		candidates[i].VotesCount = counts[candidates[i].ID]
		total += candidates[i].VotesCount
	}
	return total
}

// buildTally 计算各候选人得票百分比
func buildTally(election *models.Election, candidates []models.Candidate, counts map[string]int64, now time.Time) *models.TallyResult {
	total := applyCounts(candidates, counts)
	result := &models.TallyResult{
		ElectionID: election.ID,
		Title:      election.Title,
		Status:     election.Status,
		TotalVotes: total,
		Candidates: make([]models.CandidateTally, 0, len(candidates)),
		UpdatedAt:  now,
	}
	for _, c := range candidates {
		pct := 0.0
		if total > 0 {
			pct = math.Round(float64(c.VotesCount)/float64(total)*10000) / 100
		}
		result.Candidates = append(result.Candidates, models.CandidateTally{
			CandidateID: c.ID,
			Name:        c.Name,
			Votes:       c.VotesCount,
			Percentage:  pct,
		})
	}
	return result
}
