package redis

import (
	"context"
	"time"

	rd "github.com/redis/go-redis/v9"
)

// luaMarkOnce 通过 SETNX 保证"同一事件只通知一次"。
const luaMarkOnce = `
local key = KEYS[1]
local ttlSec = tonumber(ARGV[1])
if redis.call('SETNX', key, '1') == 1 then
  redis.call('EXPIRE', key, ttlSec)
  return 1
end
return 0
`

const notifiedTTL = 7 * 24 * time.Hour

// MarkNotifiedOnce 幂等占位：
// - 首次标记返回 true，调用方负责发送
// - 重复事件返回 false（不会重复发送）
func MarkNotifiedOnce(ctx context.Context, rdb rd.Scripter, eventID string) (bool, error) {
	ttlSeconds := int64(notifiedTTL / time.Second)
	n, err := rdb.Eval(ctx, luaMarkOnce, []string{NotifiedKey(eventID)}, ttlSeconds).Int()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// UnmarkNotified 发送失败时撤销占位，让消息重投时可以再次尝试。
func UnmarkNotified(ctx context.Context, rdb rd.Cmdable, eventID string) error {
	return rdb.Del(ctx, NotifiedKey(eventID)).Err()
}
