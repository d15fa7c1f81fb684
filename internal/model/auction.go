package model

import (
	"time"

	"gorm.io/gorm"
)

// AuctionStatus 拍卖状态：scheduled → active → completed|cancelled，paused 可往返。
type AuctionStatus string

const (
	AuctionScheduled AuctionStatus = "scheduled"
	AuctionActive    AuctionStatus = "active"
	AuctionPaused    AuctionStatus = "paused"
	AuctionCompleted AuctionStatus = "completed"
	AuctionCancelled AuctionStatus = "cancelled"
)

var auctionTransitions = map[AuctionStatus][]AuctionStatus{
	AuctionScheduled: {AuctionActive, AuctionCancelled},
	AuctionActive:    {AuctionPaused, AuctionCompleted, AuctionCancelled},
	AuctionPaused:    {AuctionActive, AuctionCancelled},
}

// CanTransition 判断状态迁移是否合法；终态（completed/cancelled）不可再迁移。
func (s AuctionStatus) CanTransition(to AuctionStatus) bool {
	for _, next := range auctionTransitions[s] {
		if next == to {
			return true
		}
	}
	return false
}

// Valid reports whether s is a known status.
func (s AuctionStatus) Valid() bool {
	switch s {
	case AuctionScheduled, AuctionActive, AuctionPaused, AuctionCompleted, AuctionCancelled:
		return true
	}
	return false
}

// Auction 拍卖标的。金额单位：分；防狙击阈值与延长时长单位：秒。
type Auction struct {
	ID        uint           `gorm:"primarykey" json:"id"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`

	Title       string `gorm:"size:255;not null" json:"title"`
	Description string `gorm:"type:text" json:"description"`
	SellerID    string `gorm:"size:64;index" json:"seller_id"`

	StartDate time.Time `gorm:"not null;index" json:"start_date"`
	EndDate   time.Time `gorm:"not null;index" json:"end_date"`

	StartingPrice int64  `gorm:"not null" json:"starting_price"`
	CurrentPrice  int64  `gorm:"not null" json:"current_price"`
	Increment     int64  `gorm:"not null" json:"increment"`
	ReservePrice  *int64 `json:"reserve_price,omitempty"`

	Status AuctionStatus `gorm:"size:16;not null;index" json:"status"`

	// 当前领先者，成交后复制到 Winner*。
	LeaderID     *string `gorm:"size:64" json:"leader_id,omitempty"`
	LeadingBidID *uint   `json:"leading_bid_id,omitempty"`
	WinnerID     *string `gorm:"size:64" json:"winner_id,omitempty"`
	WinningBidID *uint   `json:"winning_bid_id,omitempty"`

	AntiSnipeEnabled   bool `gorm:"not null;default:false" json:"anti_snipe_enabled"`
	AntiSnipeThreshold int  `gorm:"not null;default:0" json:"anti_snipe_threshold"`
	AntiSnipeExtension int  `gorm:"not null;default:0" json:"anti_snipe_extension"`
	MaxExtensions      int  `gorm:"not null;default:0" json:"max_extensions"`
	ExtendedCount      int  `gorm:"not null;default:0" json:"extended_count"`

	TotalBids     int   `gorm:"not null;default:0" json:"total_bids"`
	UniqueBidders int   `gorm:"not null;default:0" json:"unique_bidders"`
	ViewsCount    int64 `gorm:"not null;default:0" json:"views_count"`

	// Version 乐观锁版本号，每次提交 +1。
	Version  int64      `gorm:"not null;default:0" json:"-"`
	ClosedAt *time.Time `json:"closed_at,omitempty"`
}

func (Auction) TableName() string { return "auctions" }

// MinNextBid 下一口出价的最低金额。
func (a *Auction) MinNextBid() int64 {
	return a.CurrentPrice + a.Increment
}

// ReserveMet 未设置保留价视为满足。
func (a *Auction) ReserveMet() bool {
	return a.ReservePrice == nil || a.CurrentPrice >= *a.ReservePrice
}
