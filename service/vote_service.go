package service

import (
	"context"
	"errors"
	"log"
	"net/url"
	"time"

	"chainvote-backend/cache"
	"chainvote-backend/ledger"
	"chainvote-backend/metrics"
	"chainvote-backend/models"
	"chainvote-backend/mq"
	"chainvote-backend/repository"
)

// VoteService 投票流程：校验、写入投票记录、更新计数、推送实时结果
type VoteService struct {
	elections *ElectionService
	votes     repository.VoteRepository
	tally     TallyStrategy
	results   *cache.ResultsCache
	bus       mq.Bus
	metrics   *metrics.Metrics
}

// NewVoteService 创建投票服务
func NewVoteService(elections *ElectionService, votes repository.VoteRepository, bus mq.Bus, m *metrics.Metrics) *VoteService {
	return &VoteService{
		elections: elections,
		votes:     votes,
		tally:     elections.tally,
		results:   elections.results,
		bus:       bus,
		metrics:   m,
	}
}

// SuccessURL 投票成功页地址
func SuccessURL(txHash, electionTitle string) string {
	return "/voter/success?tx=" + url.QueryEscape(txHash) + "&election=" + url.QueryEscape(electionTitle)
}

// CastVote 为选民投出一票
//
// 投票记录写入成功即视为投票成功：计数更新、缓存失效和事件推送
// 失败只记录日志，不回滚投票。
func (s *VoteService) CastVote(ctx context.Context, voterID, electionID, candidateID string) (*models.Receipt, error) {
	if voterID == "" {
		return nil, invalid("voter_id", "voter is required")
	}
	if candidateID == "" {
		return nil, invalid("candidate_id", "please select a candidate")
	}

	election, err := s.elections.load(ctx, electionID)
	if err != nil {
		return nil, err
	}
	if election.Status != models.StatusActive {
		return nil, invalid("election", "this election is not open for voting")
	}
	candidate, err := s.elections.elections.GetCandidate(ctx, candidateID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, invalid("candidate_id", "candidate does not belong to this election")
		}
		return nil, err
	}
	if candidate.ElectionID != election.ID {
		return nil, invalid("candidate_id", "candidate does not belong to this election")
	}

	vote := &models.Vote{
		VoterID:     voterID,
		ElectionID:  election.ID,
		CandidateID: candidate.ID,
		TxHash:      ledger.NewTxHash(),
	}
	// 投票记录与计数在同一事务提交，对账任务不会看到只完成一半的投票
	var tallyErr error
	err = s.votes.Cast(ctx, vote, func(tx repository.VoteRepository) error {
		tallyErr = s.tally.Record(ctx, tx, vote)
		return tallyErr
	})
	if err != nil {
		if repository.IsConflict(err, repository.ConflictVoteExists) {
			s.metrics.IncDuplicateVote()
			return nil, ErrDuplicateVote
		}
		return nil, writeFailed("cast vote", err)
	}
	if tallyErr != nil {
		s.metrics.IncTallyUpdateFailure()
		log.Printf("更新候选人票数失败 (选举 %s, 候选人 %s): %v", election.ID, candidate.ID, tallyErr)
	}
	s.metrics.IncVoteCast()

	s.results.Invalidate(ctx, election.ID)
	s.publish(ctx, election.ID, candidate.ID)

	log.Printf("投票成功: 选举 %s, 交易哈希 %s", election.ID, vote.TxHash)
	return &models.Receipt{
		TxHash:        vote.TxHash,
		ElectionID:    election.ID,
		ElectionTitle: election.Title,
		CandidateID:   candidate.ID,
		RedirectURL:   SuccessURL(vote.TxHash, election.Title),
	}, nil
}

// publish 推送最新计票快照
func (s *VoteService) publish(ctx context.Context, electionID, candidateID string) {
	if s.bus == nil {
		return
	}
	result, err := s.elections.computeTally(ctx, electionID)
	if err != nil {
		log.Printf("计算实时结果失败: %v", err)
		return
	}
	event := mq.TallyEvent{
		ElectionID:  electionID,
		CandidateID: candidateID,
		Tally:       result,
		At:          time.Now(),
	}
	if err := s.bus.Publish(ctx, event); err != nil {
		log.Printf("发布计票事件失败: %v", err)
	}
}
