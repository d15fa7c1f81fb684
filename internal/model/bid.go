package model

import "time"

type BidType string

const (
	BidManual BidType = "manual"
	BidAuto   BidType = "auto"
	BidSnipe  BidType = "snipe"
)

// BidStatus 出价状态：pending → valid|invalid → outbid|winning → won。
type BidStatus string

const (
	BidPending  BidStatus = "pending"
	BidValid    BidStatus = "valid"
	BidOutbid   BidStatus = "outbid"
	BidWinning  BidStatus = "winning"
	BidWon      BidStatus = "won"
	BidInvalid  BidStatus = "invalid"
	BidRefunded BidStatus = "refunded"
)

// Bid 单个用户对单个拍卖的一次出价。
type Bid struct {
	ID        uint      `gorm:"primarykey" json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	AuctionID uint      `gorm:"not null;index:idx_bids_auction_user" json:"auction_id"`
	UserID    string    `gorm:"size:64;not null;index:idx_bids_auction_user" json:"user_id"`
	Amount    int64     `gorm:"not null" json:"amount"`
	BidType   BidType   `gorm:"size:16;not null;default:manual" json:"bid_type"`
	Status    BidStatus `gorm:"size:16;not null;index" json:"status"`

	IPAddress string `gorm:"size:64" json:"ip_address,omitempty"`
	UserAgent string `gorm:"size:255" json:"user_agent,omitempty"`

	IsSnipe bool `gorm:"not null;default:false" json:"is_snipe"`
	// TimeBeforeEnd 出价时距结束的秒数。
	TimeBeforeEnd int64 `gorm:"not null;default:0" json:"time_before_end"`
}

func (Bid) TableName() string { return "bids" }
