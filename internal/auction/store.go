package auction

import (
	"context"
	"time"

	"customs_auction/internal/model"
)

// Store 是拍卖数据的持久化边界。
// 所有会修改拍卖行（价格、状态、延长次数）的操作都必须经由 Update，
// 由实现保证同一拍卖上的 Update 串行执行。
type Store interface {
	CreateAuction(ctx context.Context, a *model.Auction) error
	GetAuction(ctx context.Context, id uint) (*model.Auction, error)
	ListAuctions(ctx context.Context, status model.AuctionStatus, limit, offset int) ([]model.Auction, int64, error)
	IncrViews(ctx context.Context, id uint) error

	ListBids(ctx context.Context, auctionID uint, limit, offset int) ([]model.Bid, int64, error)
	LatestBidBy(ctx context.Context, auctionID uint, userID string) (*model.Bid, error)

	// DueForOpen 返回 start_date 已到的 scheduled 拍卖。
	DueForOpen(ctx context.Context, now time.Time) ([]uint, error)
	// DueForClose 返回 end_date 已过的 active 拍卖。
	DueForClose(ctx context.Context, now time.Time) ([]uint, error)

	// Update 在单个拍卖的串行化边界内执行 fn。
	// fn 返回 nil 时，对 Tx.Auction() 的修改与暂存写入一并原子提交；
	// 返回错误时全部丢弃。提交时若检测到并发修改返回 ErrConflict。
	Update(ctx context.Context, auctionID uint, fn func(tx Tx) error) error

	UpdateDelivery(ctx context.Context, key DeliveryKey, fn func(d *model.Delivery) error) (*model.Delivery, error)
}

// Tx 是一次 Update 内可见的拍卖视图。
type Tx interface {
	Auction() *model.Auction
	HasBidFrom(userID string) (bool, error)
	InsertBid(b *model.Bid) error
	SetBidStatus(bidID uint, status model.BidStatus) error
	// ActiveAutoBids 按登记先后排序。
	ActiveAutoBids() ([]*model.AutoBid, error)
	SaveAutoBid(a *model.AutoBid) error
	InsertDelivery(d *model.Delivery) error
}

// DeliveryKey 按 ID 或二维码定位交付记录，二者取其一。
type DeliveryKey struct {
	ID     uint
	QRCode string
}
