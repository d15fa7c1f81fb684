package middleware

import (
	"net/http"
	"strconv"
	"time"

	rediskey "customs_auction/pkg/redis"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	rd "github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// luaSlidingWindow：ZSET 滑动窗口，清理过期记录、计数、写入在一个脚本内原子完成。
// KEYS[1]=限流key，ARGV[1]=当前时间(ms)，ARGV[2]=窗口(ms)，ARGV[3]=上限，ARGV[4]=成员
// 放行返回窗口内请求数（>0）；超限返回 -等待毫秒数（最早一条滑出窗口的时间）。
const luaSlidingWindow = `
local key = KEYS[1]
local now = tonumber(ARGV[1])
local windowMs = tonumber(ARGV[2])
local limit = tonumber(ARGV[3])

redis.call('ZREMRANGEBYSCORE', key, '-inf', now - windowMs)

local count = redis.call('ZCARD', key)
if count >= limit then
  local wait = windowMs
  local oldest = redis.call('ZRANGE', key, 0, 0, 'WITHSCORES')
  if oldest[2] then
    wait = tonumber(oldest[2]) + windowMs - now
  end
  if wait < 1 then
    wait = 1
  end
  return -wait
end

redis.call('ZADD', key, now, ARGV[4])
redis.call('PEXPIRE', key, windowMs)
return count + 1
`

// RedisRateLimit 出价限流，按已认证用户计数（未认证时按 IP），多实例共享同一窗口。
// 需挂在 Auth 之后。Redis 故障时放行。
func RedisRateLimit(rdb *rd.Client, limit int, window time.Duration, log *zap.Logger) gin.HandlerFunc {
	if log == nil {
		log = zap.NewNop()
	}
	return func(c *gin.Context) {
		subject := "user:" + UserID(c)
		if UserID(c) == "" {
			subject = "ip:" + c.ClientIP()
		}

		now := time.Now()
		member := uuid.NewString()
		res, err := rdb.Eval(c.Request.Context(), luaSlidingWindow, []string{rediskey.BidRateKey(subject)},
			now.UnixMilli(), window.Milliseconds(), limit, member).Int64()
		if err != nil {
			log.Warn("rate limit unavailable", zap.String("subject", subject), zap.Error(err))
			c.Next()
			return
		}

		if res < 0 {
			waitSec := (-res + 999) / 1000
			c.Header("Retry-After", strconv.FormatInt(waitSec, 10))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "too many bids, please slow down"})
			return
		}
		c.Next()
	}
}
