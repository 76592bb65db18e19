package repository

import (
	"context"

	"chainvote-backend/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// VoteRepository 投票记录与计票数据访问接口
type VoteRepository interface {
	// Create 写入投票记录；同一选民在同一选举中重复投票时返回 Kind 为
	// ConflictVoteExists 的 *ConflictError
	Create(ctx context.Context, vote *models.Vote) error
	// Cast 在同一事务中写入投票记录并调用 record 更新计数。
	// record 失败只回滚到保存点，投票记录照常提交，错误由调用方自行记录
	Cast(ctx context.Context, vote *models.Vote, record func(tx VoteRepository) error) error
	HasVoted(ctx context.Context, voterID, electionID string) (bool, error)
	// VotedElectionIDs 返回该选民已投过票的选举ID集合
	VotedElectionIDs(ctx context.Context, voterID string) (map[string]bool, error)

	// IncrementCandidateVotes 在数据库端执行 votes_count = votes_count + 1
	IncrementCandidateVotes(ctx context.Context, candidateID string) error
	// CountByCandidate 按候选人统计某选举的投票记录数
	CountByCandidate(ctx context.Context, electionID string) (map[string]int64, error)
	// SetCandidateVotes 直接覆盖计数列
	SetCandidateVotes(ctx context.Context, candidateID string, count int64) error
	// RecountCandidateVotes 按投票记录重算某选举全部候选人的计数列，返回被修正的候选人数
	RecountCandidateVotes(ctx context.Context, electionID string) (int64, error)
}

type voteRepository struct {
	db *gorm.DB
}

// NewVoteRepository 创建基于 gorm 的投票仓储
func NewVoteRepository(db *gorm.DB) VoteRepository {
	return &voteRepository{db: db}
}

func (r *voteRepository) Create(ctx context.Context, vote *models.Vote) error {
	return translate(r.db.WithContext(ctx).Create(vote).Error, ConflictVoteExists)
}

func (r *voteRepository) Cast(ctx context.Context, vote *models.Vote, record func(tx VoteRepository) error) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(vote).Error; err != nil {
			return translate(err, ConflictVoteExists)
		}
		if record == nil {
			return nil
		}
		// 嵌套事务走 SAVEPOINT，计数失败不影响投票记录
		_ = tx.Transaction(func(sp *gorm.DB) error {
			return record(&voteRepository{db: sp})
		})
		return nil
	})
}

func (r *voteRepository) HasVoted(ctx context.Context, voterID, electionID string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.Vote{}).
		Where("voter_id = ? AND election_id = ?", voterID, electionID).
		Count(&count).Error
	return count > 0, err
}

func (r *voteRepository) VotedElectionIDs(ctx context.Context, voterID string) (map[string]bool, error) {
	var ids []string
	err := r.db.WithContext(ctx).Model(&models.Vote{}).
		Where("voter_id = ?", voterID).
		Pluck("election_id", &ids).Error
	if err != nil {
		return nil, err
	}
	voted := make(map[string]bool, len(ids))
	for _, id := range ids {
		voted[id] = true
	}
	return voted, nil
}

func (r *voteRepository) IncrementCandidateVotes(ctx context.Context, candidateID string) error {
	result := r.db.WithContext(ctx).Model(&models.Candidate{}).
		Where("id = ?", candidateID).
		UpdateColumn("votes_count", gorm.Expr("votes_count + ?", 1))
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

type candidateCount struct {
	CandidateID string
	Total       int64
}

func (r *voteRepository) CountByCandidate(ctx context.Context, electionID string) (map[string]int64, error) {
	var rows []candidateCount
	err := r.db.WithContext(ctx).Model(&models.Vote{}).
		Select("candidate_id, COUNT(*) AS total").
		Where("election_id = ?", electionID).
		Group("candidate_id").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	counts := make(map[string]int64, len(rows))
	for _, row := range rows {
		counts[row.CandidateID] = row.Total
	}
	return counts, nil
}

func (r *voteRepository) SetCandidateVotes(ctx context.Context, candidateID string, count int64) error {
	return r.db.WithContext(ctx).Model(&models.Candidate{}).
		Where("id = ?", candidateID).
		UpdateColumn("votes_count", count).Error
}

func (r *voteRepository) RecountCandidateVotes(ctx context.Context, electionID string) (int64, error) {
	var corrected int64
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// 先锁住候选人行：投票事务里的 +1 会等对账提交，
		// 对账的计数语句也能看到锁释放前已提交的投票
		var ids []string
		if err := tx.Model(&models.Candidate{}).
			Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("election_id = ?", electionID).
			Pluck("id", &ids).Error; err != nil {
			return err
		}
		if len(ids) == 0 {
			return nil
		}

		actual := func() *gorm.DB {
			return tx.Model(&models.Vote{}).Select("COUNT(*)").Where("votes.candidate_id = candidates.id")
		}
		result := tx.Model(&models.Candidate{}).
			Where("election_id = ?", electionID).
			Where("votes_count <> (?)", actual()).
			UpdateColumn("votes_count", gorm.Expr("(?)", actual()))
		if result.Error != nil {
			return result.Error
		}
		corrected = result.RowsAffected
		return nil
	})
	return corrected, err
}
