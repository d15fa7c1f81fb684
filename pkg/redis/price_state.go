package redis

import (
	"context"
	"strconv"
	"time"

	rd "github.com/redis/go-redis/v9"
)

// luaPutPriceIfNewer 仅当新快照的 version 不小于已存值时覆盖。
// version 随拍卖每次提交递增，晚到的旧快照（包括结拍前的 active 快照）不会写回。
const luaPutPriceIfNewer = `
local key = KEYS[1]
local version = tonumber(ARGV[1])
local ttlSec = tonumber(ARGV[2])
local stored = tonumber(redis.call('HGET', key, 'version') or '-1')
if version < stored then
  return 0
end
redis.call('HSET', key,
  'version', ARGV[1],
  'auction_id', ARGV[3],
  'current_price', ARGV[4],
  'leader_id', ARGV[5],
  'total_bids', ARGV[6],
  'status', ARGV[7],
  'end_date', ARGV[8])
if ttlSec > 0 then
  redis.call('EXPIRE', key, ttlSec)
end
return 1
`

// PriceState 对应 Redis 内的实时价格快照，供轮询接口读取，权威数据仍在数据库。
type PriceState struct {
	AuctionID    uint      `json:"auction_id"`
	CurrentPrice int64     `json:"current_price"`
	LeaderID     string    `json:"leader_id,omitempty"`
	TotalBids    int       `json:"total_bids"`
	Status       string    `json:"status"`
	EndDate      time.Time `json:"end_date"`
	Version      int64     `json:"version"`
}

// PutPriceState 写入价格快照并刷新 TTL。written=false 表示已有更新的快照。
func PutPriceState(ctx context.Context, rdb rd.Scripter, st PriceState, ttl time.Duration) (bool, error) {
	n, err := rdb.Eval(ctx, luaPutPriceIfNewer, []string{PriceStateKey(st.AuctionID)},
		st.Version,
		int64(ttl/time.Second),
		st.AuctionID,
		st.CurrentPrice,
		st.LeaderID,
		st.TotalBids,
		st.Status,
		st.EndDate.UTC().Unix(),
	).Int()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// GetPriceState 查询价格快照。found=false 表示 key 不存在。
func GetPriceState(ctx context.Context, rdb rd.Cmdable, auctionID uint) (PriceState, bool, error) {
	m, err := rdb.HGetAll(ctx, PriceStateKey(auctionID)).Result()
	if err != nil {
		return PriceState{}, false, err
	}
	if len(m) == 0 {
		return PriceState{}, false, nil
	}

	out := PriceState{
		AuctionID: auctionID,
		LeaderID:  m["leader_id"],
		Status:    m["status"],
	}
	out.CurrentPrice, _ = strconv.ParseInt(m["current_price"], 10, 64)
	out.TotalBids, _ = strconv.Atoi(m["total_bids"])
	out.Version, _ = strconv.ParseInt(m["version"], 10, 64)
	if sec, err := strconv.ParseInt(m["end_date"], 10, 64); err == nil {
		out.EndDate = time.Unix(sec, 0).UTC()
	}
	return out, true, nil
}
