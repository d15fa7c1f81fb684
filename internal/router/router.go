package router

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"customs_auction/internal/apperr"
	"customs_auction/internal/auction"
	"customs_auction/internal/config"
	"customs_auction/internal/jobs"
	"customs_auction/internal/middleware"
	"customs_auction/internal/queue"

	"github.com/gin-gonic/gin"
	rd "github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Deps handler 依赖，由 cmd/server 组装。
type Deps struct {
	Service  *auction.Service
	Redis    *rd.Client
	Events   queue.Publisher
	Jobs     *jobs.Runner
	Notifier queue.Notifier
	Config   config.AppConfig
	Log      *zap.Logger
	// Now 判断定时窗口用，测试可替换。
	Now func() time.Time
}

func (d Deps) now() time.Time {
	if d.Now != nil {
		return d.Now()
	}
	return time.Now()
}

// Setup 注册全部 HTTP 路由。
func Setup(r *gin.Engine, d Deps) {
	if d.Log == nil {
		d.Log = zap.NewNop()
	}
	r.Use(middleware.RequestID(), middleware.Logger(d.Log), middleware.Recovery(d.Log))

	r.GET("/ping", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"msg": "pong"})
	})

	api := r.Group("/api")
	// 公开只读
	api.GET("/auctions", listAuctions(d))
	api.GET("/auctions/:id", getAuction(d))
	api.GET("/auctions/:id/price", getPrice(d))
	api.GET("/auctions/:id/bids", listBids(d))

	// 需要登录
	authed := api.Group("", middleware.Auth(d.Config.JWTSecret))
	limit := middleware.RedisRateLimit(d.Redis, d.Config.BidRateLimit, d.Config.BidRateWindow, d.Log)
	authed.POST("/auctions/:id/bids", limit, placeBid(d))
	authed.POST("/auctions/:id/autobids", limit, registerAutoBid(d))
	authed.POST("/auctions/:id/notify-outbid", notifyOutbid(d))

	// 管理员
	admin := authed.Group("", middleware.RequireAdmin())
	admin.POST("/auctions", createAuction(d))
	admin.POST("/auctions/:id/pause", changeStatus(d, d.Service.Pause))
	admin.POST("/auctions/:id/resume", changeStatus(d, d.Service.Resume))
	admin.POST("/auctions/:id/cancel", changeStatus(d, d.Service.Cancel))
	admin.POST("/deliveries/validate", validateDelivery(d))
	admin.PATCH("/deliveries/:id/status", advanceDelivery(d))

	// 定时任务：GET 只在每周窗口内执行，POST 强制执行
	cron := api.Group("/cron", middleware.CronAuth(d.Config.CronSecret))
	openJob := cronJob(d, jobs.JobOpen, d.Config.OpenSchedule, d.Jobs.Open)
	closeJob := cronJob(d, jobs.JobClose, d.Config.CloseSchedule, d.Jobs.Close)
	cron.GET("/open-weekly-auctions", openJob)
	cron.POST("/open-weekly-auctions", openJob)
	cron.GET("/close-weekly-auctions", closeJob)
	cron.POST("/close-weekly-auctions", closeJob)
}

// writeError 按错误分类输出 {error}；Internal 错误记日志且不向客户端暴露细节。
// 出价被拒额外带上最新价格。
func writeError(c *gin.Context, d Deps, err error) {
	var rej *auction.RejectionError
	if errors.As(err, &rej) {
		c.JSON(http.StatusBadRequest, gin.H{
			"success":       false,
			"error":         rej.Error(),
			"current_price": rej.CurrentPrice,
			"min_next_bid":  rej.MinNextBid,
			"extended":      false,
		})
		return
	}
	kind := apperr.KindOf(err)
	if kind == apperr.Internal {
		d.Log.Error("request failed",
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.String("request_id", middleware.GetRequestID(c)),
			zap.Error(err))
	}
	c.JSON(kind.HTTPStatus(), gin.H{"error": apperr.Message(err)})
}

func badRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, gin.H{"error": msg})
}

// paramID 解析路径中的数字 ID（32 bit 十进制）。
func paramID(c *gin.Context, name string) (uint, bool) {
	id, err := strconv.ParseUint(c.Param(name), 10, 32)
	if err != nil || id == 0 {
		badRequest(c, name+" must be a positive integer")
		return 0, false
	}
	return uint(id), true
}

// pageQuery 读取 limit/offset，缺省交给 auction.NormalizePage。
func pageQuery(c *gin.Context) (int, int, bool) {
	var limit, offset int
	var err error
	if v := c.Query("limit"); v != "" {
		if limit, err = strconv.Atoi(v); err != nil {
			badRequest(c, "limit must be an integer")
			return 0, 0, false
		}
	}
	if v := c.Query("offset"); v != "" {
		if offset, err = strconv.Atoi(v); err != nil {
			badRequest(c, "offset must be an integer")
			return 0, 0, false
		}
	}
	limit, offset = auction.NormalizePage(limit, offset)
	return limit, offset, true
}
