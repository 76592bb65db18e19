package main

import (
	"context"
	"errors"
	"log"
	"os/signal"
	"sync"
	"syscall"

	"chainvote-backend/config"
	"chainvote-backend/database"
	"chainvote-backend/routes"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
)

var configDir string

func main() {
	root := &cobra.Command{
		Use:           "chainvote",
		Short:         "ChainVote election backend",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          runServe,
	}
	root.PersistentFlags().StringVar(&configDir, "config", "", "directory containing config.yaml")

	root.AddCommand(
		&cobra.Command{Use: "serve", Short: "Start the HTTP server", RunE: runServe},
		&cobra.Command{Use: "migrate", Short: "Create or update the database schema", RunE: runMigrate},
		&cobra.Command{Use: "seed", Short: "Insert a demo company, voters and the Board Election", RunE: runSeed},
	)

	if err := root.ExecuteContext(context.Background()); err != nil {
		log.Fatalf("%v", err)
	}
}

func loadConfig() (*config.Config, error) {
	if configDir != "" {
		return config.Load(configDir)
	}
	return config.Load()
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	gin.SetMode(cfg.Server.Mode)

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	if cfg.Database.Seed {
		if err := seed(ctx, a); err != nil {
			log.Printf("警告: 写入演示数据失败: %v", err)
		}
	}

	// 后台任务随 ctx 一起退出
	bgCtx, cancelBg := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	wg.Add(3)
	go func() {
		defer wg.Done()
		a.hub.Run(bgCtx)
	}()
	go func() {
		defer wg.Done()
		if err := a.hub.Consume(bgCtx, a.bus); err != nil && !errors.Is(err, context.Canceled) {
			log.Printf("计票事件订阅结束: %v", err)
		}
	}()
	go func() {
		defer wg.Done()
		a.reconciler.Run(bgCtx)
	}()
	if a.filter != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			a.filter.Run(bgCtx, filterRetryInterval)
		}()
	}

	router := routes.SetupRouter(routes.Dependencies{
		Config:    cfg,
		DB:        a.db,
		Auth:      a.auth,
		Elections: a.elections,
		Votes:     a.votes,
		Hub:       a.hub,
		Limiter:   a.limiter,
		Metrics:   a.metrics,
		Gatherer:  a.registry,
		Redis:     a.redis != nil,
	})
	srv := routes.StartServer(cfg.Server.Address, router)

	<-ctx.Done()
	log.Println("正在关闭服务器...")

	if err := srv.Stop(cfg.Server.ShutdownTimeout); err != nil {
		log.Printf("服务器关闭出错: %v", err)
	}
	cancelBg()
	wg.Wait()

	log.Println("服务器已关闭")
	return nil
}

func runMigrate(_ *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	db, err := database.Open(cfg.Database)
	if err != nil {
		return err
	}
	defer database.Close(db)

	if err := database.Migrate(db); err != nil {
		return err
	}
	log.Println("数据库迁移完成")
	return nil
}

func runSeed(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	a, err := newApp(cmd.Context(), cfg)
	if err != nil {
		return err
	}
	defer a.Close()
	return seed(cmd.Context(), a)
}
