package redis

import (
	"context"
	"time"

	rd "github.com/redis/go-redis/v9"
)

// luaReleaseRunLockIfMatch 仅当锁值匹配 token 时才删除，避免误删其他实例续上的锁。
const luaReleaseRunLockIfMatch = `
local lockKey = KEYS[1]
local token = ARGV[1]
if redis.call('GET', lockKey) == token then
  return redis.call('DEL', lockKey)
end
return 0
`

// AcquireRunLock 抢占定时任务锁；acquired=false 表示其他实例正在执行。
func AcquireRunLock(ctx context.Context, rdb rd.Cmdable, job, token string, ttl time.Duration) (bool, error) {
	return rdb.SetNX(ctx, RunLockKey(job), token, ttl).Result()
}

// ReleaseRunLockIfMatch 安全释放定时任务锁。
func ReleaseRunLockIfMatch(ctx context.Context, rdb rd.Scripter, job, token string) error {
	_, err := rdb.Eval(ctx, luaReleaseRunLockIfMatch, []string{RunLockKey(job)}, token).Int()
	return err
}
