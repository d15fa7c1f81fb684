package router

import (
	"context"
	"errors"
	"net/http"
	"time"

	"customs_auction/internal/auction"
	"customs_auction/internal/config"
	"customs_auction/internal/jobs"

	"github.com/gin-gonic/gin"
)

// cronJob 定时触发入口。外部调度器可以频繁调用 GET，只有落在每周窗口内才真正执行；
// POST 用于补跑。执行本身幂等，重复触发不会重复开拍或结拍。
func cronJob(d Deps, job string, sched config.Schedule, run func(context.Context) (*auction.LifecycleReport, error)) gin.HandlerFunc {
	return func(c *gin.Context) {
		force := c.Request.Method == http.MethodPost
		loc := d.Config.CronLocation
		if loc == nil {
			loc = time.UTC
		}
		if !force && !sched.Within(d.now(), loc, d.Config.CronWindow) {
			c.JSON(http.StatusOK, gin.H{
				"success":  true,
				"job":      job,
				"skipped":  true,
				"reason":   "outside schedule window",
				"schedule": sched.String(),
			})
			return
		}

		rep, err := run(c.Request.Context())
		if errors.Is(err, jobs.ErrAlreadyRunning) {
			c.JSON(http.StatusOK, gin.H{"success": true, "job": job, "skipped": true, "reason": "already running"})
			return
		}
		if err != nil {
			writeError(c, d, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"success": true, "job": job, "skipped": false, "report": rep})
	}
}
