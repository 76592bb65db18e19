package main

import (
	"context"
	"fmt"
	"log"
	"time"

	"chainvote-backend/cache"
	"chainvote-backend/config"
	"chainvote-backend/database"
	"chainvote-backend/metrics"
	"chainvote-backend/mq"
	"chainvote-backend/repository"
	"chainvote-backend/service"
	"chainvote-backend/websocket"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

const (
	resultsCacheTTL     = 30 * time.Second
	filterRetryInterval = 2 * time.Second
)

// app 持有一次进程运行所需的全部组件
type app struct {
	cfg      *config.Config
	db       *gorm.DB
	redis    *redis.Client
	registry *prometheus.Registry
	metrics  *metrics.Metrics

	auth       *service.AuthService
	elections  *service.ElectionService
	votes      *service.VoteService
	reconciler *service.Reconciler
	filter     *repository.CachedElectionRepository
	hub        *websocket.Hub
	bus        mq.Bus
	limiter    cache.RateLimiter
}

// newApp 打开数据库和Redis并组装各层；Redis不可用时各组件退回进程内实现
func newApp(ctx context.Context, cfg *config.Config) (*app, error) {
	db, err := database.Open(cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("无法初始化数据库: %w", err)
	}
	if err := database.Migrate(db); err != nil {
		database.Close(db)
		return nil, fmt.Errorf("数据库迁移失败: %w", err)
	}
	log.Println("数据库连接初始化成功")

	redisClient, err := cache.Connect(ctx, cfg.Redis)
	if err != nil {
		log.Printf("警告: Redis不可用，使用进程内实现: %v", err)
		redisClient = nil
	} else {
		log.Println("Redis连接初始化成功")
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(registry)

	locker := cache.NewLocker(redisClient)
	results := cache.NewResultsCache(redisClient, locker, resultsCacheTTL)

	var elections repository.ElectionRepository = repository.NewElectionRepository(db)
	var filtered *repository.CachedElectionRepository
	if redisClient != nil {
		cached := repository.NewCachedElectionRepository(elections, cache.NewElectionFilter(redisClient))
		if err := cached.Prewarm(ctx); err != nil {
			log.Printf("警告: 布隆过滤器预热失败，不启用: %v", err)
		} else {
			elections = cached
			filtered = cached
		}
	}
	votes := repository.NewVoteRepository(db)
	tally := service.NewTallyStrategy(cfg.Tally.Mode, votes)
	bus := mq.NewBus(redisClient)

	electionSv := service.NewElectionService(elections, votes, tally, results, m, cfg.Tally.Location())

	a := &app{
		cfg:        cfg,
		db:         db,
		redis:      redisClient,
		registry:   registry,
		metrics:    m,
		auth:       service.NewAuthService(repository.NewProfileRepository(db), cache.NewRevocationStore(redisClient), cfg.Auth),
		elections:  electionSv,
		votes:      service.NewVoteService(electionSv, votes, bus, m),
		reconciler: service.NewReconciler(elections, votes, results, locker, m, cfg.Tally),
		filter:     filtered,
		hub:        websocket.NewHub(),
		bus:        bus,
	}
	if cfg.RateLimit.Enabled {
		a.limiter = cache.NewRateLimiter(redisClient, "api", cfg.RateLimit.Rate, cfg.RateLimit.Burst)
	}
	log.Printf("计票模式: %s", tally.Name())
	return a, nil
}

func (a *app) Close() {
	cache.Close(a.redis)
	database.Close(a.db)
}
