package router

import (
	"errors"
	"net/http"

	"customs_auction/internal/apperr"
	"customs_auction/internal/auction"
	"customs_auction/internal/middleware"
	"customs_auction/internal/model"
	"customs_auction/internal/notify"
	"customs_auction/internal/queue"
	rediskey "customs_auction/pkg/redis"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// placeBid 出价入口。
// 1. 鉴权取 user_id，参数校验
// 2. auction.Service 在单场拍卖的串行化边界内完成校验、写入、防狙击、代理出价结算
// 3. 被超越的领先者写入 outbox stream，异步通知
// 4. 刷新 Redis 价格快照
// 3、4 失败不影响出价结果。
func placeBid(d Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := paramID(c, "id")
		if !ok {
			return
		}
		var req struct {
			Amount  int64  `json:"amount" binding:"required,min=1"`
			BidType string `json:"bid_type" binding:"omitempty,oneof=manual auto snipe"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err.Error())
			return
		}

		res, err := d.Service.PlaceBid(c.Request.Context(), auction.BidInput{
			AuctionID: id,
			UserID:    middleware.UserID(c),
			Amount:    req.Amount,
			BidType:   model.BidType(req.BidType),
			IPAddress: c.ClientIP(),
			UserAgent: c.Request.UserAgent(),
		})
		if err != nil {
			writeError(c, d, err)
			return
		}

		afterBid(c, d, id, res.Title, res.LeaderID, res.Displaced)
		c.JSON(http.StatusCreated, gin.H{
			"success":   true,
			"bid_id":    res.BidID,
			"message":   res.Message,
			"new_price": res.NewPrice,
			"extended":  res.Extended,
			"end_date":  res.EndDate,
			"leader_id": res.LeaderID,
		})
	}
}

// registerAutoBid 登记或上调代理出价上限，登记后立即结算一次。
func registerAutoBid(d Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := paramID(c, "id")
		if !ok {
			return
		}
		var req struct {
			MaxAmount int64 `json:"max_amount" binding:"required,min=1"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err.Error())
			return
		}

		res, err := d.Service.RegisterAutoBid(c.Request.Context(), id, middleware.UserID(c), req.MaxAmount)
		if err != nil {
			writeError(c, d, err)
			return
		}

		afterBid(c, d, id, res.Title, res.LeaderID, res.Displaced)
		c.JSON(http.StatusCreated, gin.H{
			"success":   true,
			"auto_bid":  res.AutoBid,
			"new_price": res.NewPrice,
			"leader_id": res.LeaderID,
			"extended":  res.Extended,
		})
	}
}

// afterBid 发布被超价事件并刷新价格快照。
func afterBid(c *gin.Context, d Deps, auctionID uint, title, leaderID string, displaced []auction.Displacement) {
	ctx := c.Request.Context()
	for _, ev := range queue.OutbidEvents(auctionID, title, leaderID, displaced, d.now()) {
		if err := d.Events.Publish(ctx, ev); err != nil {
			d.Log.Error("publish outbid event failed",
				zap.String("event_id", ev.EventID),
				zap.String("request_id", middleware.GetRequestID(c)),
				zap.Error(err))
		}
	}
	a, err := d.Service.Snapshot(ctx, auctionID)
	if err != nil {
		d.Log.Warn("load auction for price state failed", zap.Uint("auction_id", auctionID), zap.Error(err))
		return
	}
	syncPrice(ctx, d, a)
}

// notifyOutbid 客户端在出价成功后触发，通知上一位领先者。
// 与 outbox 共用事件 ID，同一口被超越的出价无论走哪条路径只通知一次。
func notifyOutbid(d Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := paramID(c, "id")
		if !ok {
			return
		}
		var req struct {
			PreviousBidderID string `json:"previous_bidder_id" binding:"required"`
			NewBidAmount     int64  `json:"new_bid_amount" binding:"required,min=1"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err.Error())
			return
		}
		ctx := c.Request.Context()

		a, err := d.Service.Snapshot(ctx, id)
		if err != nil {
			writeError(c, d, err)
			return
		}
		if a.LeaderID != nil && *a.LeaderID == req.PreviousBidderID {
			writeError(c, d, apperr.E(apperr.InvalidInput, "previous bidder is still leading"))
			return
		}
		bid, err := d.Service.LatestBidBy(ctx, id, req.PreviousBidderID)
		if err != nil {
			writeError(c, d, err)
			return
		}
		if req.NewBidAmount <= bid.Amount {
			writeError(c, d, apperr.E(apperr.InvalidInput, "new_bid_amount must exceed the previous bid"))
			return
		}

		eventID := queue.OutbidEventID(id, bid.ID)
		first, err := rediskey.MarkNotifiedOnce(ctx, d.Redis, eventID)
		if err != nil {
			writeError(c, d, apperr.Wrap(apperr.Internal, "mark notified", err))
			return
		}
		if !first {
			c.JSON(http.StatusOK, gin.H{"success": true, "sent": false, "reason": "already notified"})
			return
		}

		err = d.Notifier.NotifyOutbid(ctx, notify.OutbidNotice{
			UserID:         req.PreviousBidderID,
			AuctionID:      id,
			Title:          a.Title,
			PreviousAmount: bid.Amount,
			NewAmount:      req.NewBidAmount,
		})
		if errors.Is(err, notify.ErrNoContact) {
			c.JSON(http.StatusOK, gin.H{"success": true, "sent": false, "reason": "no contact on file"})
			return
		}
		if err != nil {
			if unmarkErr := rediskey.UnmarkNotified(ctx, d.Redis, eventID); unmarkErr != nil {
				d.Log.Warn("unmark notified failed", zap.String("event_id", eventID), zap.Error(unmarkErr))
			}
			d.Log.Error("outbid notification failed", zap.String("event_id", eventID), zap.Error(err))
			c.JSON(http.StatusBadGateway, gin.H{"error": "notification could not be delivered"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"success": true, "sent": true})
	}
}
