package auction

import (
	"context"
	"errors"
	"time"

	"customs_auction/internal/apperr"
	"customs_auction/internal/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GormStore 数据库拍卖存储。
// Update 在一个事务内：SELECT ... FOR UPDATE 锁定拍卖行（SQLite 下该子句被忽略，
// 由库级写锁串行），最后按 version 做 CAS 回写；影响行数为 0 即视为并发冲突。
type GormStore struct {
	db *gorm.DB
}

func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

func (s *GormStore) CreateAuction(ctx context.Context, a *model.Auction) error {
	return s.db.WithContext(ctx).Create(a).Error
}

func (s *GormStore) GetAuction(ctx context.Context, id uint) (*model.Auction, error) {
	var a model.Auction
	if err := s.db.WithContext(ctx).First(&a, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrAuctionNotFound
		}
		return nil, err
	}
	return &a, nil
}

func (s *GormStore) ListAuctions(ctx context.Context, status model.AuctionStatus, limit, offset int) ([]model.Auction, int64, error) {
	scope := func() *gorm.DB {
		q := s.db.WithContext(ctx).Model(&model.Auction{})
		if status != "" {
			q = q.Where("status = ?", status)
		}
		return q
	}
	var total int64
	if err := scope().Count(&total).Error; err != nil {
		return nil, 0, err
	}
	var list []model.Auction
	if err := scope().Order("id DESC").Limit(limit).Offset(offset).Find(&list).Error; err != nil {
		return nil, 0, err
	}
	return list, total, nil
}

func (s *GormStore) IncrViews(ctx context.Context, id uint) error {
	return s.db.WithContext(ctx).Model(&model.Auction{}).
		Where("id = ?", id).
		UpdateColumn("views_count", gorm.Expr("views_count + ?", 1)).Error
}

func (s *GormStore) ListBids(ctx context.Context, auctionID uint, limit, offset int) ([]model.Bid, int64, error) {
	scope := func() *gorm.DB {
		return s.db.WithContext(ctx).Model(&model.Bid{}).Where("auction_id = ?", auctionID)
	}
	var total int64
	if err := scope().Count(&total).Error; err != nil {
		return nil, 0, err
	}
	var list []model.Bid
	if err := scope().Order("id DESC").Limit(limit).Offset(offset).Find(&list).Error; err != nil {
		return nil, 0, err
	}
	return list, total, nil
}

func (s *GormStore) LatestBidBy(ctx context.Context, auctionID uint, userID string) (*model.Bid, error) {
	var b model.Bid
	err := s.db.WithContext(ctx).
		Where("auction_id = ? AND user_id = ?", auctionID, userID).
		Order("id DESC").
		First(&b).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.E(apperr.NotFound, "no bid from this user on the auction")
		}
		return nil, err
	}
	return &b, nil
}

func (s *GormStore) DueForOpen(ctx context.Context, now time.Time) ([]uint, error) {
	var ids []uint
	err := s.db.WithContext(ctx).Model(&model.Auction{}).
		Where("status = ? AND start_date <= ?", model.AuctionScheduled, now).
		Order("id ASC").
		Pluck("id", &ids).Error
	return ids, err
}

func (s *GormStore) DueForClose(ctx context.Context, now time.Time) ([]uint, error) {
	var ids []uint
	err := s.db.WithContext(ctx).Model(&model.Auction{}).
		Where("status = ? AND end_date < ?", model.AuctionActive, now).
		Order("id ASC").
		Pluck("id", &ids).Error
	return ids, err
}

func (s *GormStore) Update(ctx context.Context, auctionID uint, fn func(tx Tx) error) error {
	return s.db.WithContext(ctx).Transaction(func(db *gorm.DB) error {
		var a model.Auction
		err := db.Clauses(clause.Locking{Strength: "UPDATE"}).First(&a, auctionID).Error
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrAuctionNotFound
			}
			return err
		}
		version := a.Version

		if err := fn(&gormTx{db: db, auction: &a}); err != nil {
			return err
		}

		res := db.Model(&model.Auction{}).
			Where("id = ? AND version = ?", auctionID, version).
			Updates(auctionColumns(&a, version+1))
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrConflict
		}
		a.Version = version + 1
		return nil
	})
}

// auctionColumns 列出 Update 内允许修改的列；用 map 以便写入零值。
func auctionColumns(a *model.Auction, version int64) map[string]any {
	return map[string]any{
		"status":         a.Status,
		"end_date":       a.EndDate,
		"current_price":  a.CurrentPrice,
		"leader_id":      a.LeaderID,
		"leading_bid_id": a.LeadingBidID,
		"winner_id":      a.WinnerID,
		"winning_bid_id": a.WinningBidID,
		"extended_count": a.ExtendedCount,
		"total_bids":     a.TotalBids,
		"unique_bidders": a.UniqueBidders,
		"closed_at":      a.ClosedAt,
		"version":        version,
		"updated_at":     time.Now().UTC(),
	}
}

func (s *GormStore) UpdateDelivery(ctx context.Context, key DeliveryKey, fn func(d *model.Delivery) error) (*model.Delivery, error) {
	var out model.Delivery
	err := s.db.WithContext(ctx).Transaction(func(db *gorm.DB) error {
		q := db.Clauses(clause.Locking{Strength: "UPDATE"})
		if key.QRCode != "" {
			q = q.Where("qr_code = ?", key.QRCode)
		} else {
			q = q.Where("id = ?", key.ID)
		}
		if err := q.First(&out).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrDeliveryNotFound
			}
			return err
		}
		if err := fn(&out); err != nil {
			return err
		}
		return db.Save(&out).Error
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

type gormTx struct {
	db      *gorm.DB
	auction *model.Auction
}

func (t *gormTx) Auction() *model.Auction { return t.auction }

func (t *gormTx) HasBidFrom(userID string) (bool, error) {
	var n int64
	err := t.db.Model(&model.Bid{}).
		Where("auction_id = ? AND user_id = ?", t.auction.ID, userID).
		Limit(1).
		Count(&n).Error
	return n > 0, err
}

func (t *gormTx) InsertBid(b *model.Bid) error {
	b.AuctionID = t.auction.ID
	return t.db.Create(b).Error
}

func (t *gormTx) SetBidStatus(bidID uint, status model.BidStatus) error {
	return t.db.Model(&model.Bid{}).
		Where("id = ? AND auction_id = ?", bidID, t.auction.ID).
		Update("status", status).Error
}

func (t *gormTx) ActiveAutoBids() ([]*model.AutoBid, error) {
	var list []*model.AutoBid
	err := t.db.
		Where("auction_id = ? AND is_active = ?", t.auction.ID, true).
		Order("created_at ASC, id ASC").
		Find(&list).Error
	return list, err
}

func (t *gormTx) SaveAutoBid(a *model.AutoBid) error {
	a.AuctionID = t.auction.ID
	return t.db.Save(a).Error
}

func (t *gormTx) InsertDelivery(d *model.Delivery) error {
	return t.db.Create(d).Error
}
