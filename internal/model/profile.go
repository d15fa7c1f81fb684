package model

import "time"

// Profile 用户资料，ID 与鉴权 token 的 sub 一致。
type Profile struct {
	ID        string    `gorm:"primarykey;size:64" json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	FullName string `gorm:"size:128" json:"full_name"`
	Phone    string `gorm:"size:32" json:"phone"`
	Role     string `gorm:"size:16;not null;default:user" json:"role"`
}

func (Profile) TableName() string { return "profiles" }

// All 列出需要迁移的全部模型。
func All() []any {
	return []any{&Auction{}, &Bid{}, &AutoBid{}, &Delivery{}, &Profile{}}
}
