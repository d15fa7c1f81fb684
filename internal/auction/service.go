// Package auction 实现出价受理、防狙击延时、代理出价以及拍卖开/结拍状态机。
// 所有对单个拍卖的修改都在 Store.Update 的串行化边界内完成。
package auction

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"customs_auction/internal/apperr"
	"customs_auction/internal/model"

	"go.uber.org/zap"
)

const (
	defaultMaxRetries = 5
	defaultPageLimit  = 20
	maxPageLimit      = 100
)

type Service struct {
	store      Store
	log        *zap.Logger
	now        func() time.Time
	maxRetries int
}

type Option func(*Service)

// WithClock 替换时间源，测试用。
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func WithMaxRetries(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.maxRetries = n
		}
	}
}

func NewService(store Store, log *zap.Logger, opts ...Option) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	s := &Service{
		store:      store,
		log:        log,
		now:        time.Now,
		maxRetries: defaultMaxRetries,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

func (s *Service) clock() time.Time { return s.now().UTC() }

// update 包装 Store.Update：遇到 ErrConflict 时带退避重试，fn 每次都基于最新提交状态重新执行。
func (s *Service) update(ctx context.Context, auctionID uint, fn func(tx Tx) error) error {
	var err error
	for attempt := 0; attempt < s.maxRetries; attempt++ {
		err = s.store.Update(ctx, auctionID, fn)
		if !errors.Is(err, ErrConflict) {
			return err
		}
		s.log.Debug("auction update conflict, retrying",
			zap.Uint("auction_id", auctionID),
			zap.Int("attempt", attempt+1))

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Duration(attempt+1) * 5 * time.Millisecond):
		}
	}
	return apperr.Wrap(apperr.Internal, "auction update kept conflicting", err)
}

// CreateAuctionInput 创建拍卖的参数。金额单位：分；防狙击参数单位：秒。
type CreateAuctionInput struct {
	Title              string
	Description        string
	SellerID           string
	StartDate          time.Time
	EndDate            time.Time
	StartingPrice      int64
	Increment          int64
	ReservePrice       *int64
	AntiSnipeEnabled   bool
	AntiSnipeThreshold int
	AntiSnipeExtension int
	MaxExtensions      int
}

func (in CreateAuctionInput) validate() error {
	switch {
	case strings.TrimSpace(in.Title) == "":
		return apperr.E(apperr.InvalidInput, "title is required")
	case in.StartingPrice <= 0:
		return apperr.E(apperr.InvalidInput, "starting_price must be > 0")
	case in.Increment <= 0:
		return apperr.E(apperr.InvalidInput, "increment must be > 0")
	case !in.EndDate.After(in.StartDate):
		return apperr.E(apperr.InvalidInput, "end_date must be after start_date")
	case in.ReservePrice != nil && *in.ReservePrice < in.StartingPrice:
		return apperr.E(apperr.InvalidInput, "reserve_price must be >= starting_price")
	case in.MaxExtensions < 0:
		return apperr.E(apperr.InvalidInput, "max_extensions must be >= 0")
	case in.AntiSnipeEnabled && (in.AntiSnipeThreshold <= 0 || in.AntiSnipeExtension <= 0):
		return apperr.E(apperr.InvalidInput, "anti-snipe threshold and extension must be > 0")
	}
	return nil
}

// CreateAuction 开始时间未到的拍卖进入 scheduled，否则直接 active。
func (s *Service) CreateAuction(ctx context.Context, in CreateAuctionInput) (*model.Auction, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}
	now := s.clock()
	status := model.AuctionActive
	if in.StartDate.After(now) {
		status = model.AuctionScheduled
	}
	a := &model.Auction{
		Title:              strings.TrimSpace(in.Title),
		Description:        in.Description,
		SellerID:           in.SellerID,
		StartDate:          in.StartDate.UTC(),
		EndDate:            in.EndDate.UTC(),
		StartingPrice:      in.StartingPrice,
		CurrentPrice:       in.StartingPrice,
		Increment:          in.Increment,
		ReservePrice:       in.ReservePrice,
		Status:             status,
		AntiSnipeEnabled:   in.AntiSnipeEnabled,
		AntiSnipeThreshold: in.AntiSnipeThreshold,
		AntiSnipeExtension: in.AntiSnipeExtension,
		MaxExtensions:      in.MaxExtensions,
	}
	if err := s.store.CreateAuction(ctx, a); err != nil {
		return nil, apperr.Wrap(apperr.Internal, "create auction", err)
	}
	s.log.Info("auction created",
		zap.Uint("auction_id", a.ID),
		zap.String("status", string(a.Status)),
		zap.Time("start_date", a.StartDate),
		zap.Time("end_date", a.EndDate))
	return a, nil
}

// GetAuction 读取拍卖并累加浏览数；浏览数失败不影响读取。
func (s *Service) GetAuction(ctx context.Context, id uint) (*model.Auction, error) {
	a, err := s.store.GetAuction(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.store.IncrViews(ctx, id); err != nil {
		s.log.Warn("increment views failed", zap.Uint("auction_id", id), zap.Error(err))
	} else {
		a.ViewsCount++
	}
	return a, nil
}

// Snapshot 只读，不计浏览。
func (s *Service) Snapshot(ctx context.Context, id uint) (*model.Auction, error) {
	return s.store.GetAuction(ctx, id)
}

func (s *Service) ListAuctions(ctx context.Context, status model.AuctionStatus, limit, offset int) ([]model.Auction, int64, error) {
	if status != "" && !status.Valid() {
		return nil, 0, apperr.E(apperr.InvalidInput, fmt.Sprintf("unknown status %q", status))
	}
	limit, offset = normalizePage(limit, offset)
	return s.store.ListAuctions(ctx, status, limit, offset)
}

// ListBids 出价历史，按时间倒序分页。
func (s *Service) ListBids(ctx context.Context, auctionID uint, limit, offset int) ([]model.Bid, int64, error) {
	if _, err := s.store.GetAuction(ctx, auctionID); err != nil {
		return nil, 0, err
	}
	limit, offset = normalizePage(limit, offset)
	return s.store.ListBids(ctx, auctionID, limit, offset)
}

// LatestBidBy 返回某用户在该拍卖上的最近一次出价，没有时返回 NotFound。
func (s *Service) LatestBidBy(ctx context.Context, auctionID uint, userID string) (*model.Bid, error) {
	return s.store.LatestBidBy(ctx, auctionID, userID)
}

// NormalizePage 把分页参数收敛到 [1, 100] / >= 0。
func NormalizePage(limit, offset int) (int, int) { return normalizePage(limit, offset) }

func normalizePage(limit, offset int) (int, int) {
	if limit <= 0 {
		limit = defaultPageLimit
	}
	if limit > maxPageLimit {
		limit = maxPageLimit
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}

func (s *Service) Pause(ctx context.Context, id uint) (*model.Auction, error) {
	return s.transition(ctx, id, model.AuctionPaused)
}

func (s *Service) Resume(ctx context.Context, id uint) (*model.Auction, error) {
	return s.transition(ctx, id, model.AuctionActive)
}

// Cancel 取消拍卖：领先出价标记为 refunded，代理出价全部失效。
func (s *Service) Cancel(ctx context.Context, id uint) (*model.Auction, error) {
	return s.transition(ctx, id, model.AuctionCancelled)
}

func (s *Service) transition(ctx context.Context, id uint, to model.AuctionStatus) (*model.Auction, error) {
	var out model.Auction
	err := s.update(ctx, id, func(tx Tx) error {
		a := tx.Auction()
		if !a.Status.CanTransition(to) {
			return apperr.E(apperr.InvalidInput, fmt.Sprintf("cannot move auction from %s to %s", a.Status, to))
		}
		now := s.clock()
		if to == model.AuctionCancelled {
			if a.LeadingBidID != nil {
				if err := tx.SetBidStatus(*a.LeadingBidID, model.BidRefunded); err != nil {
					return err
				}
			}
			if err := deactivateAutoBids(tx, now); err != nil {
				return err
			}
			a.ClosedAt = &now
		}
		a.Status = to
		out = *a
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.log.Info("auction status changed", zap.Uint("auction_id", id), zap.String("status", string(to)))
	return &out, nil
}

func deactivateAutoBids(tx Tx, now time.Time) error {
	autos, err := tx.ActiveAutoBids()
	if err != nil {
		return err
	}
	for _, ab := range autos {
		ab.Deactivate(now)
		if err := tx.SaveAutoBid(ab); err != nil {
			return err
		}
	}
	return nil
}
