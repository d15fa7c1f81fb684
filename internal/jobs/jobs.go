// Package jobs 包装每周开拍/结拍任务：跨实例加锁、执行、发布事件、刷新价格快照。
// HTTP 定时入口与 CLI 共用同一套逻辑。
package jobs

import (
	"context"
	"errors"
	"fmt"
	"time"

	"customs_auction/internal/auction"
	"customs_auction/internal/model"
	"customs_auction/internal/queue"
	rediskey "customs_auction/pkg/redis"

	"github.com/google/uuid"
	rd "github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	JobOpen  = "open-weekly-auctions"
	JobClose = "close-weekly-auctions"

	defaultLockTTL = 5 * time.Minute
)

// ErrAlreadyRunning 其他实例持有同名任务锁。
var ErrAlreadyRunning = errors.New("jobs: another run is in progress")

type Runner struct {
	svc      *auction.Service
	rdb      *rd.Client
	events   queue.Publisher
	priceTTL time.Duration
	lockTTL  time.Duration
	now      func() time.Time
	log      *zap.Logger
}

func NewRunner(svc *auction.Service, rdb *rd.Client, events queue.Publisher, priceTTL time.Duration, log *zap.Logger) *Runner {
	if log == nil {
		log = zap.NewNop()
	}
	return &Runner{
		svc:      svc,
		rdb:      rdb,
		events:   events,
		priceTTL: priceTTL,
		lockTTL:  defaultLockTTL,
		now:      time.Now,
		log:      log.With(zap.String("component", "jobs")),
	}
}

// Open 执行开拍扫描。
func (r *Runner) Open(ctx context.Context) (*auction.LifecycleReport, error) {
	return r.run(ctx, JobOpen, func(ctx context.Context) (*auction.LifecycleReport, error) {
		rep, err := r.svc.OpenScheduled(ctx)
		if rep != nil {
			r.syncPrices(ctx, rep.Opened)
		}
		return rep, err
	})
}

// Close 执行结拍扫描，并为每个成交发布 won 事件。
// 事件发布失败只记日志，成交结果已落库，不回滚。部分拍卖失败时，已结拍的照常发布。
func (r *Runner) Close(ctx context.Context) (*auction.LifecycleReport, error) {
	return r.run(ctx, JobClose, func(ctx context.Context) (*auction.LifecycleReport, error) {
		rep, err := r.svc.CloseFinished(ctx)
		if rep == nil {
			return nil, err
		}
		for _, ev := range queue.WinnerEvents(rep.Winners, r.now()) {
			if err := r.events.Publish(ctx, ev); err != nil {
				r.log.Error("publish winner event failed",
					zap.String("event_id", ev.EventID),
					zap.Uint("auction_id", ev.AuctionID),
					zap.Error(err))
			}
		}
		r.syncPrices(ctx, rep.Closed)
		return rep, err
	})
}

func (r *Runner) run(ctx context.Context, job string, fn func(context.Context) (*auction.LifecycleReport, error)) (*auction.LifecycleReport, error) {
	token := uuid.NewString()
	ok, err := rediskey.AcquireRunLock(ctx, r.rdb, job, token, r.lockTTL)
	if err != nil {
		return nil, fmt.Errorf("acquire %s lock: %w", job, err)
	}
	if !ok {
		return nil, ErrAlreadyRunning
	}
	defer func() {
		// ctx 可能已取消，释放锁用独立的短超时
		relCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := rediskey.ReleaseRunLockIfMatch(relCtx, r.rdb, job, token); err != nil {
			r.log.Warn("release run lock failed", zap.String("job", job), zap.Error(err))
		}
	}()

	start := time.Now()
	rep, err := fn(ctx)
	if err != nil {
		r.log.Error("job failed", zap.String("job", job), zap.Error(err))
		return rep, err
	}
	r.log.Info("job finished",
		zap.String("job", job),
		zap.Int("opened", len(rep.Opened)),
		zap.Int("closed", len(rep.Closed)),
		zap.Int("winners", len(rep.Winners)),
		zap.Int("unsold", len(rep.Unsold)),
		zap.Int("skipped", len(rep.Skipped)),
		zap.Duration("took", time.Since(start)))
	return rep, nil
}

func (r *Runner) syncPrices(ctx context.Context, ids []uint) {
	for _, id := range ids {
		a, err := r.svc.Snapshot(ctx, id)
		if err != nil {
			r.log.Warn("load auction for price state failed", zap.Uint("auction_id", id), zap.Error(err))
			continue
		}
		if err := SyncPrice(ctx, r.rdb, a, r.priceTTL); err != nil {
			r.log.Warn("price state update failed", zap.Uint("auction_id", id), zap.Error(err))
		}
	}
}

// PriceStateOf 由拍卖当前数据生成价格快照。
func PriceStateOf(a *model.Auction) rediskey.PriceState {
	st := rediskey.PriceState{
		AuctionID:    a.ID,
		CurrentPrice: a.CurrentPrice,
		TotalBids:    a.TotalBids,
		Status:       string(a.Status),
		EndDate:      a.EndDate,
		Version:      a.Version,
	}
	if a.LeaderID != nil {
		st.LeaderID = *a.LeaderID
	}
	return st
}

// SyncPrice 把拍卖的最新价格写入 Redis 快照。
func SyncPrice(ctx context.Context, rdb rd.Scripter, a *model.Auction, ttl time.Duration) error {
	_, err := rediskey.PutPriceState(ctx, rdb, PriceStateOf(a), ttl)
	return err
}
