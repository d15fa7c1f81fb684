package auction

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"customs_auction/internal/model"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	db, err := gorm.Open(sqlite.Open("file:"+name+"?mode=memory&cache=shared"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatal(err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	if err := db.AutoMigrate(model.All()...); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

func newGormService(t *testing.T) (*Service, *GormStore, *fakeClock) {
	t.Helper()
	store := NewGormStore(newTestDB(t))
	clock := newFakeClock(baseTime)
	return NewService(store, nil, WithClock(clock.Now)), store, clock
}

func TestGormStore_BidAndClose(t *testing.T) {
	s, store, clock := newGormService(t)
	ctx := context.Background()
	a := mustCreate(t, s, defaultInput())

	if _, err := s.PlaceBid(ctx, BidInput{AuctionID: a.ID, UserID: "u1", Amount: 104000}); !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("PlaceBid(104000) error = %v, want ErrInvalidAmount", err)
	}
	first := mustBid(t, s, a.ID, "u1", 105000)
	second := mustBid(t, s, a.ID, "u2", 110000)

	bids := allBids(t, s, a.ID)
	if got := bidByID(bids, *first.BidID).Status; got != model.BidOutbid {
		t.Errorf("first bid status = %s, want outbid", got)
	}
	if got := bidByID(bids, *second.BidID).Status; got != model.BidWinning {
		t.Errorf("second bid status = %s, want winning", got)
	}

	got := mustSnapshot(t, s, a.ID)
	if got.CurrentPrice != 110000 || got.TotalBids != 2 || got.UniqueBidders != 2 || got.Version != 2 {
		t.Errorf("auction = price %d bids %d unique %d version %d", got.CurrentPrice, got.TotalBids, got.UniqueBidders, got.Version)
	}

	clock.Set(a.EndDate.Add(time.Second))
	report, err := s.CloseFinished(ctx)
	if err != nil {
		t.Fatalf("CloseFinished() error = %v", err)
	}
	if len(report.Winners) != 1 || report.Winners[0].WinnerID != "u2" {
		t.Fatalf("winners = %+v", report.Winners)
	}

	var d model.Delivery
	if err := store.db.Where("auction_id = ?", a.ID).First(&d).Error; err != nil {
		t.Fatalf("load delivery: %v", err)
	}
	if d.QRCode != report.Winners[0].QRCode || d.Status != model.DeliveryPending {
		t.Errorf("delivery = %+v", d)
	}

	if _, err := s.AdvanceDelivery(ctx, d.ID, model.DeliveryReady); err != nil {
		t.Fatalf("AdvanceDelivery() error = %v", err)
	}
	if _, err := s.ValidateDeliveryQR(ctx, d.QRCode); err != nil {
		t.Fatalf("ValidateDeliveryQR() error = %v", err)
	}

	report, err = s.CloseFinished(ctx)
	if err != nil || len(report.Closed) != 0 {
		t.Errorf("second CloseFinished() = %+v, %v", report, err)
	}
}

func TestGormStore_ProxyBids(t *testing.T) {
	s, store, _ := newGormService(t)
	a := mustCreate(t, s, defaultInput())

	mustAutoBid(t, s, a.ID, "alice", 150000)
	mustBid(t, s, a.ID, "bob", 110000)
	res := mustAutoBid(t, s, a.ID, "bob", 130000)
	if res.NewPrice != 135000 || res.LeaderID != "alice" {
		t.Fatalf("price %d leader %s, want 135000/alice", res.NewPrice, res.LeaderID)
	}
	if res.AutoBid.IsActive {
		t.Errorf("exhausted auto bid reported active")
	}

	var active int64
	store.db.Model(&model.AutoBid{}).Where("auction_id = ? AND is_active = ?", a.ID, true).Count(&active)
	if active != 1 {
		t.Errorf("active auto bids = %d, want 1", active)
	}
}

func TestGormStore_OpenScheduled(t *testing.T) {
	s, _, clock := newGormService(t)
	in := defaultInput()
	in.StartDate = baseTime.Add(time.Minute)
	a := mustCreate(t, s, in)

	clock.Advance(time.Minute)
	report, err := s.OpenScheduled(context.Background())
	if err != nil {
		t.Fatalf("OpenScheduled() error = %v", err)
	}
	if len(report.Opened) != 1 || report.Opened[0] != a.ID {
		t.Errorf("Opened = %v, want [%d]", report.Opened, a.ID)
	}
	report, _ = s.OpenScheduled(context.Background())
	if len(report.Opened) != 0 {
		t.Errorf("second run opened %v", report.Opened)
	}
}

func TestGormStore_VersionConflict(t *testing.T) {
	_, store, _ := newGormService(t)
	ctx := context.Background()
	a := &model.Auction{
		Title: "conflict", StartDate: baseTime, EndDate: baseTime.Add(time.Hour),
		StartingPrice: 100, CurrentPrice: 100, Increment: 10, Status: model.AuctionActive,
	}
	if err := store.CreateAuction(ctx, a); err != nil {
		t.Fatal(err)
	}

	err := store.Update(ctx, a.ID, func(tx Tx) error {
		// 模拟另一写者在读取后提交了新版本
		if err := tx.(*gormTx).db.Exec("UPDATE auctions SET version = version + 1 WHERE id = ?", a.ID).Error; err != nil {
			return err
		}
		tx.Auction().CurrentPrice = 200
		return nil
	})
	if !errors.Is(err, ErrConflict) {
		t.Fatalf("Update() error = %v, want ErrConflict", err)
	}

	got, err := store.GetAuction(ctx, a.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.CurrentPrice != 100 || got.Version != 0 {
		t.Errorf("conflicting write persisted: price %d version %d", got.CurrentPrice, got.Version)
	}
}

func TestGormStore_ConcurrentBids(t *testing.T) {
	s, _, _ := newGormService(t)
	a := mustCreate(t, s, defaultInput())

	var wg sync.WaitGroup
	start := make(chan struct{})
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			_, _ = s.PlaceBid(context.Background(), BidInput{
				AuctionID: a.ID,
				UserID:    "bidder-" + string(rune('a'+i)),
				Amount:    100000 + 5000*int64(i+1),
			})
		}(i)
	}
	close(start)
	wg.Wait()

	assertSerialized(t, s, a.ID, 150000, "bidder-j")
}

func TestGormStore_NotFound(t *testing.T) {
	s, _, _ := newGormService(t)
	ctx := context.Background()
	if _, err := s.GetAuction(ctx, 42); !errors.Is(err, ErrAuctionNotFound) {
		t.Errorf("GetAuction() error = %v, want ErrAuctionNotFound", err)
	}
	if _, err := s.PlaceBid(ctx, BidInput{AuctionID: 42, UserID: "u1", Amount: 1}); !errors.Is(err, ErrAuctionNotFound) {
		t.Errorf("PlaceBid() error = %v, want ErrAuctionNotFound", err)
	}
	if _, err := s.ValidateDeliveryQR(ctx, "missing"); !errors.Is(err, ErrDeliveryNotFound) {
		t.Errorf("ValidateDeliveryQR() error = %v, want ErrDeliveryNotFound", err)
	}
}
