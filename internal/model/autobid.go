package model

import "time"

// AutoBid 代理出价指令：在 MaxAmount 以内自动跟价。
type AutoBid struct {
	ID        uint      `gorm:"primarykey" json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	AuctionID uint   `gorm:"not null;index" json:"auction_id"`
	UserID    string `gorm:"size:64;not null;index" json:"user_id"`
	MaxAmount int64  `gorm:"not null" json:"max_amount"`

	BidsPlaced    int        `gorm:"not null;default:0" json:"bids_placed"`
	AmountUsed    int64      `gorm:"not null;default:0" json:"amount_used"`
	IsActive      bool       `gorm:"not null;default:true;index" json:"is_active"`
	DeactivatedAt *time.Time `json:"deactivated_at,omitempty"`
}

func (AutoBid) TableName() string { return "auto_bids" }

func (a *AutoBid) Deactivate(now time.Time) {
	a.IsActive = false
	a.DeactivatedAt = &now
}
