package router

import (
	"context"
	"net/http"
	"time"

	"customs_auction/internal/auction"
	"customs_auction/internal/jobs"
	"customs_auction/internal/middleware"
	"customs_auction/internal/model"
	rediskey "customs_auction/pkg/redis"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// listAuctions 拍卖列表，可按 status 过滤。
func listAuctions(d Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		limit, offset, ok := pageQuery(c)
		if !ok {
			return
		}
		list, total, err := d.Service.ListAuctions(c.Request.Context(), model.AuctionStatus(c.Query("status")), limit, offset)
		if err != nil {
			writeError(c, d, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"data": list, "total": total, "limit": limit, "offset": offset})
	}
}

// getAuction 拍卖详情，同时累加浏览数。
func getAuction(d Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := paramID(c, "id")
		if !ok {
			return
		}
		a, err := d.Service.GetAuction(c.Request.Context(), id)
		if err != nil {
			writeError(c, d, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"data": a})
	}
}

// getPrice 轮询用的实时价格：优先读 Redis 快照，缺失或 Redis 故障时回源数据库并回填。
func getPrice(d Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := paramID(c, "id")
		if !ok {
			return
		}
		ctx := c.Request.Context()
		st, found, err := rediskey.GetPriceState(ctx, d.Redis, id)
		if err != nil {
			d.Log.Warn("price state read failed", zap.Uint("auction_id", id), zap.Error(err))
		}
		if found {
			c.JSON(http.StatusOK, gin.H{"data": st, "source": "cache"})
			return
		}

		a, err := d.Service.Snapshot(ctx, id)
		if err != nil {
			writeError(c, d, err)
			return
		}
		syncPrice(ctx, d, a)
		c.JSON(http.StatusOK, gin.H{"data": jobs.PriceStateOf(a), "source": "db"})
	}
}

// listBids 出价历史，按时间倒序。
func listBids(d Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := paramID(c, "id")
		if !ok {
			return
		}
		limit, offset, ok := pageQuery(c)
		if !ok {
			return
		}
		bids, total, err := d.Service.ListBids(c.Request.Context(), id, limit, offset)
		if err != nil {
			writeError(c, d, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"data": bids, "total": total, "limit": limit, "offset": offset})
	}
}

// createAuction 管理员创建拍卖；start_date 未到时为 scheduled，等待每周开拍任务。
func createAuction(d Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req struct {
			Title              string    `json:"title" binding:"required"`
			Description        string    `json:"description"`
			SellerID           string    `json:"seller_id"`
			StartDate          time.Time `json:"start_date" binding:"required"`
			EndDate            time.Time `json:"end_date" binding:"required"`
			StartingPrice      int64     `json:"starting_price" binding:"required,min=1"`
			Increment          int64     `json:"increment" binding:"required,min=1"`
			ReservePrice       *int64    `json:"reserve_price"`
			AntiSnipeEnabled   bool      `json:"anti_snipe_enabled"`
			AntiSnipeThreshold int       `json:"anti_snipe_threshold"`
			AntiSnipeExtension int       `json:"anti_snipe_extension"`
			MaxExtensions      int       `json:"max_extensions"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err.Error())
			return
		}
		if req.SellerID == "" {
			req.SellerID = middleware.UserID(c)
		}
		a, err := d.Service.CreateAuction(c.Request.Context(), auction.CreateAuctionInput{
			Title:              req.Title,
			Description:        req.Description,
			SellerID:           req.SellerID,
			StartDate:          req.StartDate,
			EndDate:            req.EndDate,
			StartingPrice:      req.StartingPrice,
			Increment:          req.Increment,
			ReservePrice:       req.ReservePrice,
			AntiSnipeEnabled:   req.AntiSnipeEnabled,
			AntiSnipeThreshold: req.AntiSnipeThreshold,
			AntiSnipeExtension: req.AntiSnipeExtension,
			MaxExtensions:      req.MaxExtensions,
		})
		if err != nil {
			writeError(c, d, err)
			return
		}
		syncPrice(c.Request.Context(), d, a)
		c.JSON(http.StatusCreated, gin.H{"data": a})
	}
}

// changeStatus 暂停 / 恢复 / 取消。
func changeStatus(d Deps, fn func(context.Context, uint) (*model.Auction, error)) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := paramID(c, "id")
		if !ok {
			return
		}
		a, err := fn(c.Request.Context(), id)
		if err != nil {
			writeError(c, d, err)
			return
		}
		syncPrice(c.Request.Context(), d, a)
		c.JSON(http.StatusOK, gin.H{"data": a})
	}
}

// syncPrice 刷新价格快照；失败只记日志，数据库才是权威数据。
func syncPrice(ctx context.Context, d Deps, a *model.Auction) {
	if err := jobs.SyncPrice(ctx, d.Redis, a, d.Config.PriceCacheTTL); err != nil {
		d.Log.Warn("price state update failed", zap.Uint("auction_id", a.ID), zap.Error(err))
	}
}
