package redis

import "fmt"

// PriceStateKey 拍卖实时价格快照（hash）。
func PriceStateKey(auctionID uint) string {
	return fmt.Sprintf("customs_auction:price:%d", auctionID)
}

// RunLockKey 定时任务（开拍/结拍）跨实例互斥锁。
func RunLockKey(job string) string {
	return fmt.Sprintf("customs_auction:cron:lock:%s", job)
}

// NotifiedKey 标记某个事件的通知是否已发送过。
func NotifiedKey(eventID string) string {
	return fmt.Sprintf("customs_auction:notified:%s", eventID)
}

// BidRateKey 出价限流窗口，subject 为用户 ID 或 IP。
func BidRateKey(subject string) string {
	return fmt.Sprintf("customs_auction:ratelimit:bid:%s", subject)
}
