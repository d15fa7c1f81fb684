package redis

import (
	"context"

	rd "github.com/redis/go-redis/v9"
)

// streamMaxLen 事件流近似上限，Relay 正常 ACK 后会 XDEL，这里只兜底堆积。
const streamMaxLen = 100000

// AppendBidEvent 将事件写入 outbox stream，返回 stream entry ID。
func AppendBidEvent(ctx context.Context, rdb rd.Cmdable, stream string, values map[string]any) (string, error) {
	return rdb.XAdd(ctx, &rd.XAddArgs{
		Stream: stream,
		MaxLen: streamMaxLen,
		Approx: true,
		Values: values,
	}).Result()
}
