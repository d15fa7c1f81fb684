package auction

import (
	"context"
	"sync"
	"testing"
	"time"

	"customs_auction/internal/model"
)

var baseTime = time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock(t time.Time) *fakeClock { return &fakeClock{t: t} }

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Set(t time.Time) {
	c.mu.Lock()
	c.t = t
	c.mu.Unlock()
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

func newMemService(t *testing.T) (*Service, *MemStore, *fakeClock) {
	t.Helper()
	store := NewMemStore()
	clock := newFakeClock(baseTime)
	return NewService(store, nil, WithClock(clock.Now)), store, clock
}

// defaultInput 当前价 100000，加价幅度 5000，拍卖一小时后结束。
func defaultInput() CreateAuctionInput {
	return CreateAuctionInput{
		Title:         "Lot 42 - seized electronics",
		SellerID:      "customs-office",
		StartDate:     baseTime.Add(-time.Hour),
		EndDate:       baseTime.Add(time.Hour),
		StartingPrice: 100000,
		Increment:     5000,
	}
}

func mustCreate(t *testing.T, s *Service, in CreateAuctionInput) *model.Auction {
	t.Helper()
	a, err := s.CreateAuction(context.Background(), in)
	if err != nil {
		t.Fatalf("CreateAuction() error = %v", err)
	}
	return a
}

func mustBid(t *testing.T, s *Service, auctionID uint, userID string, amount int64) *BidResult {
	t.Helper()
	res, err := s.PlaceBid(context.Background(), BidInput{AuctionID: auctionID, UserID: userID, Amount: amount})
	if err != nil {
		t.Fatalf("PlaceBid(%s, %d) error = %v", userID, amount, err)
	}
	return res
}

func mustSnapshot(t *testing.T, s *Service, id uint) *model.Auction {
	t.Helper()
	a, err := s.Snapshot(context.Background(), id)
	if err != nil {
		t.Fatalf("Snapshot() error = %v", err)
	}
	return a
}

func allBids(t *testing.T, s *Service, id uint) []model.Bid {
	t.Helper()
	bids, _, err := s.store.ListBids(context.Background(), id, 10000, 0)
	if err != nil {
		t.Fatalf("ListBids() error = %v", err)
	}
	return bids
}

func bidByID(bids []model.Bid, id uint) *model.Bid {
	for i := range bids {
		if bids[i].ID == id {
			return &bids[i]
		}
	}
	return nil
}
