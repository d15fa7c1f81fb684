package model

import "time"

// DeliveryStatus 交付状态：pending → ready → in_transit → delivered，非终态可取消。
type DeliveryStatus string

const (
	DeliveryPending   DeliveryStatus = "pending"
	DeliveryReady     DeliveryStatus = "ready"
	DeliveryInTransit DeliveryStatus = "in_transit"
	DeliveryDelivered DeliveryStatus = "delivered"
	DeliveryCancelled DeliveryStatus = "cancelled"
)

var deliveryTransitions = map[DeliveryStatus][]DeliveryStatus{
	DeliveryPending:   {DeliveryReady, DeliveryCancelled},
	DeliveryReady:     {DeliveryInTransit, DeliveryDelivered, DeliveryCancelled},
	DeliveryInTransit: {DeliveryDelivered, DeliveryCancelled},
}

func (s DeliveryStatus) CanTransition(to DeliveryStatus) bool {
	for _, next := range deliveryTransitions[s] {
		if next == to {
			return true
		}
	}
	return false
}

// Delivery 成交后的取货记录，凭 QRCode 核销。
type Delivery struct {
	ID        uint      `gorm:"primarykey" json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	AuctionID    uint           `gorm:"not null;uniqueIndex" json:"auction_id"`
	WinnerID     string         `gorm:"size:64;not null;index" json:"winner_id"`
	WinningBidID uint           `gorm:"not null" json:"winning_bid_id"`
	Amount       int64          `gorm:"not null" json:"amount"`
	QRCode       string         `gorm:"size:64;not null;uniqueIndex" json:"qr_code"`
	Status       DeliveryStatus `gorm:"size:16;not null;index" json:"status"`
	DeliveredAt  *time.Time     `json:"delivered_at,omitempty"`
}

func (Delivery) TableName() string { return "deliveries" }
