package main

import (
	"context"
	"fmt"
	"time"

	"customs_auction/internal/auction"
	"customs_auction/internal/config"
	"customs_auction/internal/database"
	"customs_auction/internal/jobs"
	"customs_auction/internal/logger"
	"customs_auction/internal/queue"

	rd "github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var rootCmd = &cobra.Command{
	Use:          "customs-auction",
	Short:        "Customs auction bid service",
	SilenceUsage: true,
}

// app 各子命令共用的依赖。
type app struct {
	cfg    config.AppConfig
	log    *zap.Logger
	db     *gorm.DB
	rdb    *rd.Client
	svc    *auction.Service
	events *queue.StreamPublisher
	runner *jobs.Runner
}

// newApp 加载配置、连接数据库与 Redis。withRedis=false 时跳过 Redis（migrate 不需要）。
func newApp(ctx context.Context, withRedis bool) (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	log, err := logger.New(cfg.Env)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	db, err := database.Open(cfg)
	if err != nil {
		return nil, err
	}
	a := &app{cfg: cfg, log: log, db: db}
	if !withRedis {
		return a, nil
	}

	a.rdb = rd.NewClient(&rd.Options{Addr: cfg.RedisAddr, DB: cfg.RedisDB})
	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := a.rdb.Ping(pingCtx).Err(); err != nil {
		a.close()
		return nil, fmt.Errorf("redis ping %s: %w", cfg.RedisAddr, err)
	}

	a.svc = auction.NewService(auction.NewGormStore(db), log)
	a.events = queue.NewStreamPublisher(a.rdb, cfg.BidEventStream)
	a.runner = jobs.NewRunner(a.svc, a.rdb, a.events, cfg.PriceCacheTTL, log)
	return a, nil
}

func (a *app) close() {
	if a.rdb != nil {
		_ = a.rdb.Close()
	}
	if a.db != nil {
		if sqlDB, err := a.db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	}
	_ = a.log.Sync()
}
