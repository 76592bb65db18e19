package service

import (
	"context"
	"errors"
	"log"
	"time"

	"chainvote-backend/cache"
	"chainvote-backend/config"
	"chainvote-backend/metrics"
	"chainvote-backend/repository"
)

const reconcileLockName = "tally:reconcile"

// Reconciler 定期按投票记录重新统计票数，修正 votes_count 列的漂移
// （例如投票写入成功但计数更新失败）。多实例部署时通过分布式锁保证同一时刻只有一个实例执行。
type Reconciler struct {
	elections repository.ElectionRepository
	votes     repository.VoteRepository
	results   *cache.ResultsCache
	locker    cache.Locker
	metrics   *metrics.Metrics
	mode      string
	interval  time.Duration
}

// NewReconciler 创建对账任务
func NewReconciler(
	elections repository.ElectionRepository,
	votes repository.VoteRepository,
	results *cache.ResultsCache,
	locker cache.Locker,
	m *metrics.Metrics,
	cfg config.TallyConfig,
) *Reconciler {
	return &Reconciler{
		elections: elections,
		votes:     votes,
		results:   results,
		locker:    locker,
		metrics:   m,
		mode:      cfg.Mode,
		interval:  cfg.ReconcileInterval,
	}
}

// Enabled derived 模式下没有计数列，无需对账
func (r *Reconciler) Enabled() bool {
	return r.mode != config.TallyModeDerived && r.interval > 0
}

// Run 按间隔执行对账，ctx 结束后返回
func (r *Reconciler) Run(ctx context.Context) {
	if !r.Enabled() {
		return
	}
	log.Printf("计票对账任务已启动，间隔 %s", r.interval)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			log.Println("计票对账任务已停止")
			return
		case <-ticker.C:
			if _, err := r.ReconcileOnce(ctx); err != nil && !errors.Is(err, context.Canceled) {
				log.Printf("计票对账失败: %v", err)
			}
		}
	}
}

// ReconcileOnce 执行一轮对账，返回修正的候选人数量
// 其他实例持有锁时直接跳过，返回 0
func (r *Reconciler) ReconcileOnce(ctx context.Context) (int, error) {
	var corrected int
	err := r.locker.TryWithLock(ctx, reconcileLockName, r.lockExpiry(), func(ctx context.Context) error {
		ids, err := r.elections.ListIDs(ctx)
		if err != nil {
			return err
		}
		for _, id := range ids {
			n, err := r.reconcileElection(ctx, id)
			if err != nil {
				return err
			}
			corrected += n
		}
		return nil
	})
	if errors.Is(err, cache.ErrLockNotAcquired) {
		return 0, nil
	}
	if corrected > 0 {
		r.metrics.AddReconcileCorrections(corrected)
		log.Printf("计票对账修正了 %d 个候选人的票数", corrected)
	}
	return corrected, err
}

func (r *Reconciler) reconcileElection(ctx context.Context, electionID string) (int, error) {
	corrected, err := r.votes.RecountCandidateVotes(ctx, electionID)
	if err != nil {
		return 0, err
	}
	if corrected > 0 {
		log.Printf("选举 %s 有 %d 个候选人票数已按投票记录重算", electionID, corrected)
		r.results.Invalidate(ctx, electionID)
	}
	return int(corrected), nil
}

func (r *Reconciler) lockExpiry() time.Duration {
	if r.interval > 0 && r.interval < time.Minute {
		return r.interval
	}
	return time.Minute
}
