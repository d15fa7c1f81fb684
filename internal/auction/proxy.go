package auction

import (
	"context"
	"time"

	"customs_auction/internal/apperr"
	"customs_auction/internal/model"

	"go.uber.org/zap"
)

// maxProxyRounds 单次结算中代理出价的最大轮数；正常情况下两轮内即收敛。
const maxProxyRounds = 8

// AutoBidResult 登记代理出价的结果。
type AutoBidResult struct {
	AutoBid   model.AutoBid
	NewPrice  int64
	LeaderID  string
	Extended  bool
	Title     string
	Displaced []Displacement
}

// RegisterAutoBid 登记（或上调）代理出价上限，并立即结算一次。
func (s *Service) RegisterAutoBid(ctx context.Context, auctionID uint, userID string, maxAmount int64) (*AutoBidResult, error) {
	if userID == "" {
		return nil, apperr.E(apperr.Unauthorized, "authentication required")
	}
	if maxAmount <= 0 {
		return nil, apperr.E(apperr.InvalidInput, "max_amount must be > 0")
	}

	var res *AutoBidResult
	err := s.update(ctx, auctionID, func(tx Tx) error {
		res = nil
		now := s.clock()
		a := tx.Auction()
		if a.SellerID != "" && a.SellerID == userID {
			return apperr.E(apperr.Forbidden, "sellers cannot bid on their own auction")
		}
		if err := checkOpen(a, now); err != nil {
			return err
		}
		leading := a.LeaderID != nil && *a.LeaderID == userID
		if !leading && maxAmount < a.MinNextBid() {
			return rejectAmount(a)
		}
		if leading && maxAmount <= a.CurrentPrice {
			return apperr.E(apperr.InvalidInput, "max_amount must exceed your current leading bid")
		}

		autos, err := tx.ActiveAutoBids()
		if err != nil {
			return err
		}
		var mine *model.AutoBid
		for _, ab := range autos {
			if ab.UserID == userID {
				mine = ab
				break
			}
		}
		if mine == nil {
			mine = &model.AutoBid{
				CreatedAt: now,
				UpdatedAt: now,
				AuctionID: a.ID,
				UserID:    userID,
				IsActive:  true,
			}
		} else if maxAmount < mine.MaxAmount {
			return apperr.E(apperr.InvalidInput, "max_amount cannot be lowered")
		}
		mine.MaxAmount = maxAmount
		mine.UpdatedAt = now
		if err := tx.SaveAutoBid(mine); err != nil {
			return err
		}

		r := &BidResult{}
		if err := s.resolveProxies(tx, r, now); err != nil {
			return err
		}
		extendIfSniped(a, r)

		// 重新读取，拿到结算后的 bids_placed / amount_used。
		autos, err = tx.ActiveAutoBids()
		if err != nil {
			return err
		}
		out := *mine
		out.Deactivate(now)
		for _, ab := range autos {
			if ab.ID == mine.ID {
				out = *ab
			}
		}
		res = &AutoBidResult{
			AutoBid:   out,
			NewPrice:  a.CurrentPrice,
			Extended:  r.Extended,
			Title:     a.Title,
			Displaced: r.Displaced,
		}
		if a.LeaderID != nil {
			res.LeaderID = *a.LeaderID
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.log.Info("auto bid registered",
		zap.Uint("auction_id", auctionID),
		zap.String("user_id", userID),
		zap.Int64("max_amount", maxAmount),
		zap.Int64("new_price", res.NewPrice))
	return res, nil
}

// resolveProxies 结算代理出价（经典 proxy bidding）：
//   - 非领先者中上限最高者为挑战者（同额先登记者优先），上限不足下一口的指令失效；
//   - 领先者自身的代理上限 >= 挑战者上限时，领先者代理加价到 min(领先上限, 挑战上限+加价幅度)；
//   - 否则挑战者出价 max(下一口, min(挑战上限, 次高上限+加价幅度))。
func (s *Service) resolveProxies(tx Tx, r *BidResult, now time.Time) error {
	a := tx.Auction()
	for round := 0; round < maxProxyRounds; round++ {
		if now.After(a.EndDate) {
			return nil
		}
		autos, err := tx.ActiveAutoBids()
		if err != nil {
			return err
		}
		leader := ""
		if a.LeaderID != nil {
			leader = *a.LeaderID
		}
		minNext := a.MinNextBid()

		var leaderAuto, best *model.AutoBid
		second := int64(0)
		for _, ab := range autos {
			if ab.UserID == leader {
				leaderAuto = ab
				continue
			}
			if ab.MaxAmount < minNext {
				ab.Deactivate(now)
				if err := tx.SaveAutoBid(ab); err != nil {
					return err
				}
				continue
			}
			if best == nil || ab.MaxAmount > best.MaxAmount {
				if best != nil && best.MaxAmount > second {
					second = best.MaxAmount
				}
				best = ab
			} else if ab.MaxAmount > second {
				second = ab.MaxAmount
			}
		}
		if best == nil {
			return nil
		}

		if leaderAuto != nil && leaderAuto.MaxAmount >= best.MaxAmount {
			target := min(leaderAuto.MaxAmount, best.MaxAmount+a.Increment)
			if target < minNext {
				return nil
			}
			if err := s.placeProxy(tx, r, leaderAuto, target, now); err != nil {
				return err
			}
			continue
		}

		if leaderAuto != nil && leaderAuto.MaxAmount > second {
			second = leaderAuto.MaxAmount
		}
		target := max(minNext, min(best.MaxAmount, second+a.Increment))
		if err := s.placeProxy(tx, r, best, target, now); err != nil {
			return err
		}
	}
	return nil
}

func (s *Service) placeProxy(tx Tx, r *BidResult, ab *model.AutoBid, amount int64, now time.Time) error {
	if _, err := s.accept(tx, r, ab.UserID, amount, model.BidAuto, now, nil); err != nil {
		return err
	}
	ab.BidsPlaced++
	ab.AmountUsed = amount
	ab.UpdatedAt = now
	return tx.SaveAutoBid(ab)
}
