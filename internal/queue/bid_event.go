package queue

import (
	"fmt"
	"strconv"
	"time"

	"customs_auction/internal/auction"
)

type EventType string

const (
	EventOutbid EventType = "outbid"
	EventWon    EventType = "won"
)

// BidEvent 是写入 outbox stream 与 Kafka 的出价事件。
// EventID 由业务键派生（同一被超越的出价、同一场成交只有一个 ID），消费端据此去重。
type BidEvent struct {
	EventID        string    `json:"event_id"`
	Type           EventType `json:"type"`
	AuctionID      uint      `json:"auction_id"`
	BidID          uint      `json:"bid_id"`
	UserID         string    `json:"user_id"`
	Amount         int64     `json:"amount"` // 分
	PreviousAmount int64     `json:"previous_amount,omitempty"`
	Title          string    `json:"title"`
	DeliveryID     uint      `json:"delivery_id,omitempty"`
	OccurredAt     time.Time `json:"occurred_at"`
}

// Validate 做最小字段校验，防止消费者处理脏消息。
func (e BidEvent) Validate() error {
	if e.EventID == "" {
		return fmt.Errorf("event_id is required")
	}
	if e.Type != EventOutbid && e.Type != EventWon {
		return fmt.Errorf("unknown event type %q", e.Type)
	}
	if e.AuctionID == 0 {
		return fmt.Errorf("auction_id is required")
	}
	if e.UserID == "" {
		return fmt.Errorf("user_id is required")
	}
	if e.Amount <= 0 {
		return fmt.Errorf("amount must be > 0")
	}
	return nil
}

// Values 转成 stream 字段。
func (e BidEvent) Values() map[string]any {
	return map[string]any{
		"event_id":        e.EventID,
		"type":            string(e.Type),
		"auction_id":      strconv.FormatUint(uint64(e.AuctionID), 10),
		"bid_id":          strconv.FormatUint(uint64(e.BidID), 10),
		"user_id":         e.UserID,
		"amount":          strconv.FormatInt(e.Amount, 10),
		"previous_amount": strconv.FormatInt(e.PreviousAmount, 10),
		"title":           e.Title,
		"delivery_id":     strconv.FormatUint(uint64(e.DeliveryID), 10),
		"occurred_at":     strconv.FormatInt(e.OccurredAt.UTC().Unix(), 10),
	}
}

// OutbidEventID 同一口被超越的出价只通知一次。
func OutbidEventID(auctionID, bidID uint) string {
	return fmt.Sprintf("outbid:%d:%d", auctionID, bidID)
}

// WonEventID 同一场拍卖只发一次成交通知。
func WonEventID(auctionID uint) string {
	return fmt.Sprintf("won:%d", auctionID)
}

// OutbidEvents 由一次出价的 Displaced 生成通知事件。
// 结算后仍领先的用户（被代理出价反超回来）不通知；同一用户只保留最后一次。
func OutbidEvents(auctionID uint, title, leaderID string, displaced []auction.Displacement, now time.Time) []BidEvent {
	last := make(map[string]int, len(displaced))
	for i, d := range displaced {
		last[d.UserID] = i
	}
	out := make([]BidEvent, 0, len(last))
	for i, d := range displaced {
		if d.UserID == leaderID || last[d.UserID] != i {
			continue
		}
		out = append(out, BidEvent{
			EventID:        OutbidEventID(auctionID, d.BidID),
			Type:           EventOutbid,
			AuctionID:      auctionID,
			BidID:          d.BidID,
			UserID:         d.UserID,
			Amount:         d.NewAmount,
			PreviousAmount: d.PreviousAmount,
			Title:          title,
			OccurredAt:     now.UTC(),
		})
	}
	return out
}

// WinnerEvents 由结拍报告生成成交事件。
func WinnerEvents(winners []auction.Winner, now time.Time) []BidEvent {
	out := make([]BidEvent, 0, len(winners))
	for _, w := range winners {
		out = append(out, BidEvent{
			EventID:    WonEventID(w.AuctionID),
			Type:       EventWon,
			AuctionID:  w.AuctionID,
			BidID:      w.BidID,
			UserID:     w.WinnerID,
			Amount:     w.Amount,
			Title:      w.Title,
			DeliveryID: w.DeliveryID,
			OccurredAt: now.UTC(),
		})
	}
	return out
}
