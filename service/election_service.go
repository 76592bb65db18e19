package service

import (
	"context"
	"errors"
	"log"
	"strings"
	"time"

	"chainvote-backend/cache"
	"chainvote-backend/ledger"
	"chainvote-backend/metrics"
	"chainvote-backend/models"
	"chainvote-backend/repository"
)

const (
	dateLayout       = "2006-01-02"
	timeLayout       = "15:04"
	defaultStartTime = "09:00"
	defaultEndTime   = "17:00"
	minCandidates    = 2
)

// ElectionService 选举的创建与查询
type ElectionService struct {
	elections repository.ElectionRepository
	votes     repository.VoteRepository
	tally     TallyStrategy
	results   *cache.ResultsCache
	metrics   *metrics.Metrics
	loc       *time.Location
	now       func() time.Time
}

// NewElectionService 创建选举服务；loc 为开始/结束时间所在时区
func NewElectionService(
	elections repository.ElectionRepository,
	votes repository.VoteRepository,
	tally TallyStrategy,
	results *cache.ResultsCache,
	m *metrics.Metrics,
	loc *time.Location,
) *ElectionService {
	if loc == nil {
		loc = time.Local
	}
	return &ElectionService{
		elections: elections,
		votes:     votes,
		tally:     tally,
		results:   results,
		metrics:   m,
		loc:       loc,
		now:       time.Now,
	}
}

// combine 将日期与 HH:MM 时间拼成时间点，时间为空时使用默认值
func combine(date, clock, fallback string, loc *time.Location) (time.Time, error) {
	clock = strings.TrimSpace(clock)
	if clock == "" {
		clock = fallback
	}
	return time.ParseInLocation(dateLayout+" "+timeLayout, strings.TrimSpace(date)+" "+clock, loc)
}

// ClassifyStatus 创建时判定状态：开始时间不晚于当前时间为 active，否则为 upcoming
func ClassifyStatus(start, now time.Time) models.ElectionStatus {
	if !start.After(now) {
		return models.StatusActive
	}
	return models.StatusUpcoming
}

// candidateNames 去掉首尾空白并丢弃空名字
func candidateNames(raw []string) []string {
	names := make([]string, 0, len(raw))
	for _, n := range raw {
		if n = strings.TrimSpace(n); n != "" {
			names = append(names, n)
		}
	}
	return names
}

// CreateElection 校验输入后在一个事务中写入选举与候选人
// 所有校验都在写库之前完成，校验失败时不产生任何记录
func (s *ElectionService) CreateElection(ctx context.Context, companyID string, req models.CreateElectionRequest) (*models.Election, error) {
	if companyID == "" {
		return nil, invalid("company_id", "company is required")
	}
	title := strings.TrimSpace(req.Title)
	if title == "" {
		return nil, invalid("title", "title is required")
	}
	if strings.TrimSpace(req.StartDate) == "" || strings.TrimSpace(req.EndDate) == "" {
		return nil, invalid("dates", "please select start and end dates")
	}
	start, err := combine(req.StartDate, req.StartTime, defaultStartTime, s.loc)
	if err != nil {
		return nil, invalid("start_date", "start must be YYYY-MM-DD with an optional HH:MM time")
	}
	end, err := combine(req.EndDate, req.EndTime, defaultEndTime, s.loc)
	if err != nil {
		return nil, invalid("end_date", "end must be YYYY-MM-DD with an optional HH:MM time")
	}
	if end.Before(start) {
		return nil, invalid("end_date", "end must not be before start")
	}
	names := candidateNames(req.Candidates)
	if len(names) < minCandidates {
		return nil, invalid("candidates", "please add at least 2 candidates")
	}

	election := &models.Election{
		CompanyID:       companyID,
		Title:           title,
		StartDate:       start,
		EndDate:         end,
		ContractAddress: ledger.NewContractAddress(),
		Status:          ClassifyStatus(start, s.now()),
	}
	candidates := make([]models.Candidate, len(names))
	for i, n := range names {
		candidates[i] = models.Candidate{Name: n}
	}

	if err := s.elections.CreateWithCandidates(ctx, election, candidates); err != nil {
		return nil, writeFailed("create election", err)
	}

	s.metrics.IncElectionCreated()
	log.Printf("选举已创建: %s (%s), 状态 %s, 合约地址 %s", election.ID, election.Title, election.Status, election.ContractAddress)
	return election, nil
}

// ListElections 全部选举，按创建时间倒序
func (s *ElectionService) ListElections(ctx context.Context) ([]models.Election, error) {
	return s.elections.List(ctx)
}

// ListCompanyElections 公司看板：自己的选举及各候选人票数与总票数
func (s *ElectionService) ListCompanyElections(ctx context.Context, companyID string) ([]models.ElectionSummary, error) {
	elections, err := s.elections.ListByCompany(ctx, companyID)
	if err != nil {
		return nil, err
	}
	ids := make([]string, len(elections))
	for i, e := range elections {
		ids[i] = e.ID
	}
	grouped, err := s.elections.ListCandidatesFor(ctx, ids)
	if err != nil {
		return nil, err
	}

	summaries := make([]models.ElectionSummary, 0, len(elections))
	for _, e := range elections {
		candidates := grouped[e.ID]
		if candidates == nil {
			candidates = []models.Candidate{}
		}
		counts, err := s.tally.Counts(ctx, e.ID, candidates)
		if err != nil {
			return nil, err
		}
		e.Candidates = candidates
		total := applyCounts(e.Candidates, counts)
		summaries = append(summaries, models.ElectionSummary{Election: e, TotalVotes: total})
	}
	return summaries, nil
}

// ListVoterElections 选民可见的全部选举，并标出已投票的选举
func (s *ElectionService) ListVoterElections(ctx context.Context, voterID string) ([]models.VoterElection, error) {
	elections, err := s.elections.List(ctx)
	if err != nil {
		return nil, err
	}
	voted, err := s.votes.VotedElectionIDs(ctx, voterID)
	if err != nil {
		return nil, err
	}
	out := make([]models.VoterElection, len(elections))
	for i, e := range elections {
		out[i] = models.VoterElection{Election: e, HasVoted: voted[e.ID]}
	}
	return out, nil
}

func (s *ElectionService) load(ctx context.Context, electionID string) (*models.Election, error) {
	election, err := s.elections.GetByID(ctx, electionID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return election, nil
}

// GetBallot 投票页：选举、候选人以及该选民是否已投票
func (s *ElectionService) GetBallot(ctx context.Context, electionID, voterID string) (*models.Ballot, error) {
	election, err := s.load(ctx, electionID)
	if err != nil {
		return nil, err
	}
	candidates, err := s.elections.ListCandidates(ctx, electionID)
	if err != nil {
		return nil, err
	}
	hasVoted, err := s.votes.HasVoted(ctx, voterID, electionID)
	if err != nil {
		return nil, err
	}
	counts, err := s.tally.Counts(ctx, electionID, candidates)
	if err != nil {
		return nil, err
	}
	applyCounts(candidates, counts)
	return &models.Ballot{Election: *election, Candidates: candidates, HasVoted: hasVoted}, nil
}

// Tallies 计票结果，经结果缓存读取
func (s *ElectionService) Tallies(ctx context.Context, electionID string) (*models.TallyResult, error) {
	return s.results.Get(ctx, electionID, func(ctx context.Context) (*models.TallyResult, error) {
		return s.computeTally(ctx, electionID)
	})
}

// computeTally 绕过缓存直接从数据库计算
func (s *ElectionService) computeTally(ctx context.Context, electionID string) (*models.TallyResult, error) {
	election, err := s.load(ctx, electionID)
	if err != nil {
		return nil, err
	}
	candidates, err := s.elections.ListCandidates(ctx, electionID)
	if err != nil {
		return nil, err
	}
	counts, err := s.tally.Counts(ctx, electionID, candidates)
	if err != nil {
		return nil, err
	}
	return buildTally(election, candidates, counts, s.now()), nil
}
