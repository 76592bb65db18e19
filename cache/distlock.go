package cache

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/go-redsync/redsync/v4"
	"github.com/go-redsync/redsync/v4/redis/goredis/v9"
	"github.com/redis/go-redis/v9"
)

// Locker 按名称加锁执行操作
type Locker interface {
	// WithLock 阻塞等待锁（受重试次数限制），拿到后执行 action
	WithLock(ctx context.Context, name string, expiry time.Duration, action func(ctx context.Context) error) error
	// TryWithLock 锁被占用时立即返回 ErrLockNotAcquired
	TryWithLock(ctx context.Context, name string, expiry time.Duration, action func(ctx context.Context) error) error
}

// NewLocker Redis可用时返回分布式锁，否则返回进程内锁
func NewLocker(client *redis.Client) Locker {
	if client == nil {
		return NewLocalLocker()
	}
	return NewDistributedLockService(client)
}

// DistributedLockService 基于 redsync 的分布式锁服务
type DistributedLockService struct {
	rs *redsync.Redsync
}

// NewDistributedLockService 使用现有Redis客户端创建分布式锁服务
func NewDistributedLockService(client *redis.Client) *DistributedLockService {
	pool := goredis.NewPool(client)
	log.Println("分布式锁初始化成功")
	return &DistributedLockService{rs: redsync.New(pool)}
}

func (s *DistributedLockService) newMutex(name string, expiry time.Duration, tries int) *redsync.Mutex {
	return s.rs.NewMutex("lock:"+name,
		redsync.WithExpiry(expiry),
		redsync.WithTries(tries),
		redsync.WithRetryDelay(50*time.Millisecond),
		redsync.WithDriftFactor(0.01),
	)
}

// WithLock 在锁内执行操作
func (s *DistributedLockService) WithLock(ctx context.Context, name string, expiry time.Duration, action func(ctx context.Context) error) error {
	mutex := s.newMutex(name, expiry, 5)
	if err := mutex.LockContext(ctx); err != nil {
		if isLockTaken(err) {
			return ErrLockNotAcquired
		}
		return err
	}
	defer func() {
		if _, err := mutex.UnlockContext(context.WithoutCancel(ctx)); err != nil {
			log.Printf("释放分布式锁 %s 失败: %v", name, err)
		}
	}()
	return action(ctx)
}

// TryWithLock 尝试在锁内执行操作，如果获取锁失败立即返回
func (s *DistributedLockService) TryWithLock(ctx context.Context, name string, expiry time.Duration, action func(ctx context.Context) error) error {
	mutex := s.newMutex(name, expiry, 1)
	if err := mutex.TryLockContext(ctx); err != nil {
		if isLockTaken(err) {
			return ErrLockNotAcquired
		}
		return err
	}
	defer func() {
		if _, err := mutex.UnlockContext(context.WithoutCancel(ctx)); err != nil {
			log.Printf("释放分布式锁 %s 失败: %v", name, err)
		}
	}()
	return action(ctx)
}

func isLockTaken(err error) bool {
	var taken *redsync.ErrTaken
	return errors.Is(err, redsync.ErrFailed) || errors.As(err, &taken)
}

// LocalLocker 进程内的命名锁，单实例部署或Redis不可用时使用
type LocalLocker struct {
	mu    sync.Mutex
	locks map[string]chan struct{}
}

// NewLocalLocker 创建进程内锁
func NewLocalLocker() *LocalLocker {
	return &LocalLocker{locks: make(map[string]chan struct{})}
}

func (l *LocalLocker) slot(name string) chan struct{} {
	l.mu.Lock()
	defer l.mu.Unlock()
	ch, ok := l.locks[name]
	if !ok {
		ch = make(chan struct{}, 1)
		l.locks[name] = ch
	}
	return ch
}

// WithLock 等待锁直到 ctx 结束；expiry 对进程内锁无意义
func (l *LocalLocker) WithLock(ctx context.Context, name string, _ time.Duration, action func(ctx context.Context) error) error {
	ch := l.slot(name)
	select {
	case ch <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}
	defer func() { <-ch }()
	return action(ctx)
}

// TryWithLock 锁被占用时立即返回 ErrLockNotAcquired
func (l *LocalLocker) TryWithLock(ctx context.Context, name string, _ time.Duration, action func(ctx context.Context) error) error {
	ch := l.slot(name)
	select {
	case ch <- struct{}{}:
	default:
		return ErrLockNotAcquired
	}
	defer func() { <-ch }()
	return action(ctx)
}
