package repository

import (
	"context"
	"log"
	"sync"
	"time"

	"chainvote-backend/models"
)

// ExistenceFilter 存在性过滤器（布隆过滤器），用于拦截不存在的选举ID
type ExistenceFilter interface {
	Add(ctx context.Context, item string) error
	Contains(ctx context.Context, item string) (bool, error)
}

// CachedElectionRepository 在选举仓储前加一层布隆过滤器，防止缓存穿透
//
// 登记失败的选举ID记在 pending 中：本实例查询时绕过过滤器，
// 并由 RetryPending 持续补登，Redis 恢复后其他实例也能查到。
type CachedElectionRepository struct {
	ElectionRepository
	filter ExistenceFilter

	mu      sync.Mutex
	pending map[string]struct{}
}

// NewCachedElectionRepository 创建带过滤器的选举仓储
func NewCachedElectionRepository(repo ElectionRepository, filter ExistenceFilter) *CachedElectionRepository {
	return &CachedElectionRepository{
		ElectionRepository: repo,
		filter:             filter,
		pending:            make(map[string]struct{}),
	}
}

func filterKey(id string) string { return "election:" + id }

// CreateWithCandidates 写库成功后登记到过滤器
func (r *CachedElectionRepository) CreateWithCandidates(ctx context.Context, election *models.Election, candidates []models.Candidate) error {
	if err := r.ElectionRepository.CreateWithCandidates(ctx, election, candidates); err != nil {
		return err
	}
	r.register(ctx, election.ID)
	return nil
}

// register 登记失败时转入 pending，不影响创建结果
func (r *CachedElectionRepository) register(ctx context.Context, id string) {
	if err := r.filter.Add(ctx, filterKey(id)); err != nil {
		log.Printf("更新布隆过滤器失败，稍后重试 (选举 %s): %v", id, err)
		r.mu.Lock()
		r.pending[id] = struct{}{}
		r.mu.Unlock()
	}
}

func (r *CachedElectionRepository) isPending(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.pending[id]
	return ok
}

// GetByID 过滤器判定不存在时直接返回，过滤器不可用或ID待补登时退回数据库
func (r *CachedElectionRepository) GetByID(ctx context.Context, id string) (*models.Election, error) {
	exists, err := r.filter.Contains(ctx, filterKey(id))
	if err == nil && !exists && !r.isPending(id) {
		return nil, ErrNotFound
	}
	return r.ElectionRepository.GetByID(ctx, id)
}

// RetryPending 补登一次 pending 中的选举ID，返回仍未成功的数量
func (r *CachedElectionRepository) RetryPending(ctx context.Context) int {
	r.mu.Lock()
	ids := make([]string, 0, len(r.pending))
	for id := range r.pending {
		ids = append(ids, id)
	}
	r.mu.Unlock()

	remaining := 0
	for _, id := range ids {
		if err := r.filter.Add(ctx, filterKey(id)); err != nil {
			remaining++
			continue
		}
		r.mu.Lock()
		delete(r.pending, id)
		r.mu.Unlock()
	}
	if len(ids) > remaining {
		log.Printf("布隆过滤器补登 %d 个选举", len(ids)-remaining)
	}
	return remaining
}

// Run 按间隔补登，ctx 结束后返回
func (r *CachedElectionRepository) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.RetryPending(ctx)
		}
	}
}

// Prewarm 启动时把已有的选举ID全部写入过滤器
func (r *CachedElectionRepository) Prewarm(ctx context.Context) error {
	ids, err := r.ElectionRepository.ListIDs(ctx)
	if err != nil {
		return err
	}
	for _, id := range ids {
		if err := r.filter.Add(ctx, filterKey(id)); err != nil {
			return err
		}
	}
	log.Printf("布隆过滤器预热完成，共 %d 个选举", len(ids))
	return nil
}
