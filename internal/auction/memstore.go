package auction

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"customs_auction/internal/apperr"
	"customs_auction/internal/model"
)

// MemStore 进程内拍卖存储：按拍卖 ID 分片，每个拍卖一把锁。
// Update 在该锁内执行，写入先暂存，fn 成功后一次性提交。
// 适用于单实例部署与测试；多实例必须使用 GormStore。
type MemStore struct {
	mu       sync.RWMutex
	auctions map[uint]*memAuction

	dmu        sync.Mutex
	deliveries map[uint]*model.Delivery
	qrIndex    map[string]uint

	nextAuction  atomic.Uint64
	nextBid      atomic.Uint64
	nextAutoBid  atomic.Uint64
	nextDelivery atomic.Uint64
}

type memAuction struct {
	mu       sync.Mutex
	row      model.Auction
	bids     []*model.Bid
	bidIndex map[uint]*model.Bid
	bidders  map[string]struct{}
	autoBids []*model.AutoBid
}

func NewMemStore() *MemStore {
	return &MemStore{
		auctions:   make(map[uint]*memAuction),
		deliveries: make(map[uint]*model.Delivery),
		qrIndex:    make(map[string]uint),
	}
}

func (m *MemStore) get(id uint) (*memAuction, error) {
	m.mu.RLock()
	rec, ok := m.auctions[id]
	m.mu.RUnlock()
	if !ok {
		return nil, ErrAuctionNotFound
	}
	return rec, nil
}

func (m *MemStore) CreateAuction(_ context.Context, a *model.Auction) error {
	now := time.Now().UTC()
	a.ID = uint(m.nextAuction.Add(1))
	if a.CreatedAt.IsZero() {
		a.CreatedAt = now
	}
	a.UpdatedAt = now

	rec := &memAuction{
		row:      *a,
		bidIndex: make(map[uint]*model.Bid),
		bidders:  make(map[string]struct{}),
	}
	m.mu.Lock()
	m.auctions[a.ID] = rec
	m.mu.Unlock()
	return nil
}

func (m *MemStore) GetAuction(_ context.Context, id uint) (*model.Auction, error) {
	rec, err := m.get(id)
	if err != nil {
		return nil, err
	}
	rec.mu.Lock()
	defer rec.mu.Unlock()
	out := rec.row
	return &out, nil
}

func (m *MemStore) ListAuctions(_ context.Context, status model.AuctionStatus, limit, offset int) ([]model.Auction, int64, error) {
	all := m.snapshot()
	out := make([]model.Auction, 0, len(all))
	for _, a := range all {
		if status == "" || a.Status == status {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	total := int64(len(out))
	return page(out, limit, offset), total, nil
}

func (m *MemStore) IncrViews(_ context.Context, id uint) error {
	rec, err := m.get(id)
	if err != nil {
		return err
	}
	rec.mu.Lock()
	rec.row.ViewsCount++
	rec.mu.Unlock()
	return nil
}

func (m *MemStore) ListBids(_ context.Context, auctionID uint, limit, offset int) ([]model.Bid, int64, error) {
	rec, err := m.get(auctionID)
	if err != nil {
		return nil, 0, err
	}
	rec.mu.Lock()
	out := make([]model.Bid, 0, len(rec.bids))
	for i := len(rec.bids) - 1; i >= 0; i-- {
		out = append(out, *rec.bids[i])
	}
	rec.mu.Unlock()
	return page(out, limit, offset), int64(len(out)), nil
}

func (m *MemStore) LatestBidBy(_ context.Context, auctionID uint, userID string) (*model.Bid, error) {
	rec, err := m.get(auctionID)
	if err != nil {
		return nil, err
	}
	rec.mu.Lock()
	defer rec.mu.Unlock()
	for i := len(rec.bids) - 1; i >= 0; i-- {
		if rec.bids[i].UserID == userID {
			out := *rec.bids[i]
			return &out, nil
		}
	}
	return nil, apperr.E(apperr.NotFound, "no bid from this user on the auction")
}

func (m *MemStore) DueForOpen(_ context.Context, now time.Time) ([]uint, error) {
	var ids []uint
	for _, a := range m.snapshot() {
		if a.Status == model.AuctionScheduled && !a.StartDate.After(now) {
			ids = append(ids, a.ID)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

func (m *MemStore) DueForClose(_ context.Context, now time.Time) ([]uint, error) {
	var ids []uint
	for _, a := range m.snapshot() {
		if a.Status == model.AuctionActive && now.After(a.EndDate) {
			ids = append(ids, a.ID)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

func (m *MemStore) snapshot() []model.Auction {
	m.mu.RLock()
	recs := make([]*memAuction, 0, len(m.auctions))
	for _, rec := range m.auctions {
		recs = append(recs, rec)
	}
	m.mu.RUnlock()

	out := make([]model.Auction, 0, len(recs))
	for _, rec := range recs {
		rec.mu.Lock()
		out = append(out, rec.row)
		rec.mu.Unlock()
	}
	return out
}

func (m *MemStore) Update(ctx context.Context, auctionID uint, fn func(tx Tx) error) error {
	rec, err := m.get(auctionID)
	if err != nil {
		return err
	}
	rec.mu.Lock()
	defer rec.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return err
	}

	tx := &memTx{
		store:    m,
		rec:      rec,
		auction:  rec.row,
		statuses: make(map[uint]model.BidStatus),
	}
	if err := fn(tx); err != nil {
		return err
	}
	return tx.commit()
}

func (m *MemStore) UpdateDelivery(_ context.Context, key DeliveryKey, fn func(d *model.Delivery) error) (*model.Delivery, error) {
	m.dmu.Lock()
	defer m.dmu.Unlock()

	id := key.ID
	if key.QRCode != "" {
		id = m.qrIndex[key.QRCode]
	}
	cur, ok := m.deliveries[id]
	if !ok {
		return nil, ErrDeliveryNotFound
	}
	next := *cur
	if err := fn(&next); err != nil {
		return nil, err
	}
	m.deliveries[id] = &next
	out := next
	return &out, nil
}

// memTx 暂存一次 Update 内的写入。
type memTx struct {
	store   *MemStore
	rec     *memAuction
	auction model.Auction

	newBids    []*model.Bid
	statuses   map[uint]model.BidStatus
	autos      []*model.AutoBid
	autosReady bool
	deliveries []*model.Delivery
}

func (t *memTx) Auction() *model.Auction { return &t.auction }

func (t *memTx) HasBidFrom(userID string) (bool, error) {
	if _, ok := t.rec.bidders[userID]; ok {
		return true, nil
	}
	for _, b := range t.newBids {
		if b.UserID == userID {
			return true, nil
		}
	}
	return false, nil
}

func (t *memTx) InsertBid(b *model.Bid) error {
	b.ID = uint(t.store.nextBid.Add(1))
	b.AuctionID = t.auction.ID
	cp := *b
	t.newBids = append(t.newBids, &cp)
	return nil
}

func (t *memTx) SetBidStatus(bidID uint, status model.BidStatus) error {
	if _, ok := t.rec.bidIndex[bidID]; !ok {
		found := false
		for _, b := range t.newBids {
			if b.ID == bidID {
				found = true
				break
			}
		}
		if !found {
			return fmt.Errorf("bid %d not found on auction %d", bidID, t.auction.ID)
		}
	}
	t.statuses[bidID] = status
	return nil
}

func (t *memTx) loadAutos() {
	if t.autosReady {
		return
	}
	t.autos = make([]*model.AutoBid, 0, len(t.rec.autoBids))
	for _, ab := range t.rec.autoBids {
		cp := *ab
		t.autos = append(t.autos, &cp)
	}
	t.autosReady = true
}

func (t *memTx) ActiveAutoBids() ([]*model.AutoBid, error) {
	t.loadAutos()
	out := make([]*model.AutoBid, 0, len(t.autos))
	for _, ab := range t.autos {
		if ab.IsActive {
			out = append(out, ab)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

func (t *memTx) SaveAutoBid(a *model.AutoBid) error {
	t.loadAutos()
	if a.ID == 0 {
		a.ID = uint(t.store.nextAutoBid.Add(1))
		a.AuctionID = t.auction.ID
		t.autos = append(t.autos, a)
		return nil
	}
	for i, ab := range t.autos {
		if ab.ID == a.ID {
			if ab != a {
				cp := *a
				t.autos[i] = &cp
			}
			return nil
		}
	}
	return fmt.Errorf("auto bid %d not found on auction %d", a.ID, t.auction.ID)
}

func (t *memTx) InsertDelivery(d *model.Delivery) error {
	t.store.dmu.Lock()
	defer t.store.dmu.Unlock()
	for _, existing := range t.store.deliveries {
		if existing.AuctionID == d.AuctionID {
			return apperr.E(apperr.Conflict, "delivery already exists for auction")
		}
	}
	d.ID = uint(t.store.nextDelivery.Add(1))
	cp := *d
	t.deliveries = append(t.deliveries, &cp)
	return nil
}

func (t *memTx) commit() error {
	rec := t.rec
	for _, b := range t.newBids {
		rec.bids = append(rec.bids, b)
		rec.bidIndex[b.ID] = b
		rec.bidders[b.UserID] = struct{}{}
	}
	for id, st := range t.statuses {
		if b, ok := rec.bidIndex[id]; ok {
			b.Status = st
			b.UpdatedAt = time.Now().UTC()
		}
	}
	if t.autosReady {
		rec.autoBids = t.autos
	}
	if len(t.deliveries) > 0 {
		t.store.dmu.Lock()
		for _, d := range t.deliveries {
			t.store.deliveries[d.ID] = d
			t.store.qrIndex[d.QRCode] = d.ID
		}
		t.store.dmu.Unlock()
	}
	t.auction.Version = rec.row.Version + 1
	t.auction.UpdatedAt = time.Now().UTC()
	rec.row = t.auction
	return nil
}

func page[T any](items []T, limit, offset int) []T {
	if offset >= len(items) {
		return []T{}
	}
	end := offset + limit
	if end > len(items) {
		end = len(items)
	}
	return items[offset:end]
}
