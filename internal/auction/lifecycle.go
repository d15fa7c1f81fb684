package auction

import (
	"context"
	"errors"
	"time"

	"customs_auction/internal/model"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Winner 结拍产生的成交信息，供下游通知与交付。
type Winner struct {
	AuctionID  uint   `json:"auction_id"`
	Title      string `json:"title"`
	WinnerID   string `json:"winner_id"`
	BidID      uint   `json:"winning_bid_id"`
	Amount     int64  `json:"amount"`
	DeliveryID uint   `json:"delivery_id"`
	QRCode     string `json:"-"`
}

// LifecycleReport 一次开拍/结拍扫描的结果。
type LifecycleReport struct {
	Opened  []uint   `json:"opened,omitempty"`
	Closed  []uint   `json:"closed,omitempty"`
	Winners []Winner `json:"winners,omitempty"`
	// Unsold 无人出价或未达保留价而流拍。
	Unsold []uint `json:"unsold,omitempty"`
	// Skipped 扫描后被其他实例处理或状态已变化。
	Skipped []uint `json:"skipped,omitempty"`
}

// OpenScheduled 将 start_date 已到的 scheduled 拍卖置为 active。
// 幂等：状态判断在串行化边界内进行，重复执行不会重复开拍。
func (s *Service) OpenScheduled(ctx context.Context) (*LifecycleReport, error) {
	now := s.clock()
	ids, err := s.store.DueForOpen(ctx, now)
	if err != nil {
		return nil, err
	}

	report := &LifecycleReport{}
	var errs []error
	for _, id := range ids {
		opened := false
		err := s.update(ctx, id, func(tx Tx) error {
			opened = false
			a := tx.Auction()
			if a.Status != model.AuctionScheduled || a.StartDate.After(now) {
				return nil
			}
			a.Status = model.AuctionActive
			opened = true
			return nil
		})
		if err != nil {
			s.log.Error("open auction failed", zap.Uint("auction_id", id), zap.Error(err))
			errs = append(errs, err)
			continue
		}
		if opened {
			report.Opened = append(report.Opened, id)
		} else {
			report.Skipped = append(report.Skipped, id)
		}
	}
	s.log.Info("open scheduled auctions finished",
		zap.Int("due", len(ids)),
		zap.Int("opened", len(report.Opened)))
	return report, errors.Join(errs...)
}

// CloseFinished 结束 end_date 已过的 active 拍卖。
// 有领先出价且满足保留价时：领先出价置 won，写入 winner，并生成交付记录；
// 否则流拍（completed 且无 winner）。已 completed 的拍卖不会被再次处理。
func (s *Service) CloseFinished(ctx context.Context) (*LifecycleReport, error) {
	now := s.clock()
	ids, err := s.store.DueForClose(ctx, now)
	if err != nil {
		return nil, err
	}

	report := &LifecycleReport{}
	var errs []error
	for _, id := range ids {
		var (
			closed bool
			winner *Winner
		)
		err := s.update(ctx, id, func(tx Tx) error {
			closed, winner = false, nil
			a := tx.Auction()
			if a.Status != model.AuctionActive || !now.After(a.EndDate) {
				return nil
			}

			w, err := settle(tx, a, now)
			if err != nil {
				return err
			}
			if err := deactivateAutoBids(tx, now); err != nil {
				return err
			}
			a.Status = model.AuctionCompleted
			a.ClosedAt = &now
			closed, winner = true, w
			return nil
		})
		if err != nil {
			s.log.Error("close auction failed", zap.Uint("auction_id", id), zap.Error(err))
			errs = append(errs, err)
			continue
		}
		switch {
		case !closed:
			report.Skipped = append(report.Skipped, id)
		case winner != nil:
			report.Closed = append(report.Closed, id)
			report.Winners = append(report.Winners, *winner)
		default:
			report.Closed = append(report.Closed, id)
			report.Unsold = append(report.Unsold, id)
		}
	}
	s.log.Info("close finished auctions done",
		zap.Int("due", len(ids)),
		zap.Int("closed", len(report.Closed)),
		zap.Int("winners", len(report.Winners)))
	return report, errors.Join(errs...)
}

// settle 确定成交者；未达保留价时领先出价回到 valid。
func settle(tx Tx, a *model.Auction, now time.Time) (*Winner, error) {
	if a.LeadingBidID == nil || a.LeaderID == nil {
		return nil, nil
	}
	bidID := *a.LeadingBidID
	if !a.ReserveMet() {
		return nil, tx.SetBidStatus(bidID, model.BidValid)
	}
	if err := tx.SetBidStatus(bidID, model.BidWon); err != nil {
		return nil, err
	}

	winnerID := *a.LeaderID
	a.WinnerID = &winnerID
	a.WinningBidID = &bidID

	d := &model.Delivery{
		CreatedAt:    now,
		UpdatedAt:    now,
		AuctionID:    a.ID,
		WinnerID:     winnerID,
		WinningBidID: bidID,
		Amount:       a.CurrentPrice,
		QRCode:       uuid.NewString(),
		Status:       model.DeliveryPending,
	}
	if err := tx.InsertDelivery(d); err != nil {
		return nil, err
	}
	return &Winner{
		AuctionID:  a.ID,
		Title:      a.Title,
		WinnerID:   winnerID,
		BidID:      bidID,
		Amount:     a.CurrentPrice,
		DeliveryID: d.ID,
		QRCode:     d.QRCode,
	}, nil
}
