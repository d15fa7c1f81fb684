package auction

import (
	"context"
	"time"

	"customs_auction/internal/apperr"
	"customs_auction/internal/model"

	"go.uber.org/zap"
)

// BidInput 一次出价请求，UserID 来自鉴权。
type BidInput struct {
	AuctionID uint
	UserID    string
	Amount    int64
	BidType   model.BidType
	IPAddress string
	UserAgent string
}

// Displacement 记录一次领先者被超越，用于发送被超价通知。
type Displacement struct {
	UserID         string
	BidID          uint
	PreviousAmount int64
	NewAmount      int64
}

// BidResult 出价受理结果。
type BidResult struct {
	Success  bool
	BidID    *uint
	Message  string
	NewPrice int64
	Extended bool
	EndDate  time.Time
	LeaderID string
	Title    string
	// Displaced 按发生顺序列出被超越的领先者（含代理出价造成的）。
	Displaced []Displacement

	sniped bool
}

// extendIfSniped 本次请求中有出价落在防狙击窗口内时顺延一次 end_date。
// 代理出价的连锁加价属于同一请求，不会叠加延时。
func extendIfSniped(a *model.Auction, r *BidResult) {
	if !r.sniped || a.ExtendedCount >= a.MaxExtensions {
		return
	}
	a.EndDate = a.EndDate.Add(time.Duration(a.AntiSnipeExtension) * time.Second)
	a.ExtendedCount++
	r.Extended = true
}

// PlaceBid 受理一次出价：
// 1. 拍卖须为 active 且处于 [start_date, end_date] 内（end_date 已含延时）
// 2. amount >= current_price + increment
// 3. 写入出价为 winning，原领先出价置 outbid，更新价格与计数
// 4. 随后在同一事务内结算代理出价
// 5. 命中防狙击窗口且延长次数未用完时顺延 end_date，每个请求至多一次
// 以上步骤在 Store.Update 内原子完成，冲突时整体重试。
func (s *Service) PlaceBid(ctx context.Context, in BidInput) (*BidResult, error) {
	if in.UserID == "" {
		return nil, apperr.E(apperr.Unauthorized, "authentication required")
	}
	if in.Amount <= 0 {
		return nil, apperr.E(apperr.InvalidInput, "amount must be > 0")
	}
	switch in.BidType {
	case "":
		in.BidType = model.BidManual
	case model.BidManual, model.BidAuto, model.BidSnipe:
	default:
		return nil, apperr.E(apperr.InvalidInput, "bid_type must be one of manual, auto, snipe")
	}

	var res *BidResult
	err := s.update(ctx, in.AuctionID, func(tx Tx) error {
		res = nil
		now := s.clock()
		a := tx.Auction()

		if a.SellerID != "" && a.SellerID == in.UserID {
			return apperr.E(apperr.Forbidden, "sellers cannot bid on their own auction")
		}
		if err := checkOpen(a, now); err != nil {
			return err
		}
		if in.Amount < a.MinNextBid() {
			return rejectAmount(a)
		}
		if a.LeaderID != nil && *a.LeaderID == in.UserID {
			return rejectLeading(a)
		}

		r := &BidResult{Title: a.Title}
		b, err := s.accept(tx, r, in.UserID, in.Amount, in.BidType, now, func(b *model.Bid) {
			b.IPAddress = in.IPAddress
			b.UserAgent = in.UserAgent
		})
		if err != nil {
			return err
		}
		if err := s.resolveProxies(tx, r, now); err != nil {
			return err
		}
		extendIfSniped(a, r)

		id := b.ID
		r.Success = true
		r.BidID = &id
		r.NewPrice = a.CurrentPrice
		r.EndDate = a.EndDate
		if a.LeaderID != nil {
			r.LeaderID = *a.LeaderID
		}
		r.Message = "bid accepted"
		if r.LeaderID != in.UserID {
			r.Message = "bid accepted but immediately outbid by an automatic bid"
		} else if r.Extended {
			r.Message = "bid accepted, auction extended"
		}
		res = r
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("bid accepted",
		zap.Uint("auction_id", in.AuctionID),
		zap.Uint("bid_id", *res.BidID),
		zap.String("user_id", in.UserID),
		zap.Int64("amount", in.Amount),
		zap.Int64("new_price", res.NewPrice),
		zap.Bool("extended", res.Extended))
	return res, nil
}

// checkOpen 判断拍卖此刻是否接受出价。
func checkOpen(a *model.Auction, now time.Time) error {
	switch {
	case a.Status != model.AuctionActive:
		return rejectNotActive(a, "auction is "+string(a.Status))
	case now.Before(a.StartDate):
		return rejectNotActive(a, "auction has not started")
	case now.After(a.EndDate):
		return rejectNotActive(a, "auction has ended")
	}
	return nil
}

// accept 在已通过校验的前提下落一口出价，并维护拍卖上的价格、计数与领先者。
// 防狙击只在这里打标记，延时由 extendIfSniped 按请求结算一次。
func (s *Service) accept(tx Tx, r *BidResult, userID string, amount int64, bt model.BidType, now time.Time, decorate func(*model.Bid)) (*model.Bid, error) {
	a := tx.Auction()

	seen, err := tx.HasBidFrom(userID)
	if err != nil {
		return nil, err
	}

	remaining := a.EndDate.Sub(now)
	b := &model.Bid{
		CreatedAt:     now,
		UpdatedAt:     now,
		AuctionID:     a.ID,
		UserID:        userID,
		Amount:        amount,
		BidType:       bt,
		Status:        model.BidWinning,
		TimeBeforeEnd: int64(remaining / time.Second),
	}
	if decorate != nil {
		decorate(b)
	}

	threshold := time.Duration(a.AntiSnipeThreshold) * time.Second
	if a.AntiSnipeEnabled && remaining <= threshold {
		b.IsSnipe = true
		r.sniped = true
	}

	if err := tx.InsertBid(b); err != nil {
		return nil, err
	}

	if a.LeadingBidID != nil {
		prev := model.BidOutbid
		if a.LeaderID != nil && *a.LeaderID == userID {
			// 代理出价为自己加价：旧出价仍有效，只是不再领先。
			prev = model.BidValid
		} else if a.LeaderID != nil {
			r.Displaced = append(r.Displaced, Displacement{
				UserID:         *a.LeaderID,
				BidID:          *a.LeadingBidID,
				PreviousAmount: a.CurrentPrice,
				NewAmount:      amount,
			})
		}
		if err := tx.SetBidStatus(*a.LeadingBidID, prev); err != nil {
			return nil, err
		}
	}

	a.CurrentPrice = amount
	a.TotalBids++
	if !seen {
		a.UniqueBidders++
	}
	leader := userID
	bidID := b.ID
	a.LeaderID = &leader
	a.LeadingBidID = &bidID
	return b, nil
}
