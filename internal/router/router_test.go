package router

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"customs_auction/internal/auction"
	"customs_auction/internal/config"
	"customs_auction/internal/jobs"
	"customs_auction/internal/middleware"
	"customs_auction/internal/model"
	"customs_auction/internal/notify"
	"customs_auction/internal/notify/mock"
	"customs_auction/internal/queue"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	rd "github.com/redis/go-redis/v9"
	"go.uber.org/mock/gomock"
)

const (
	testJWTSecret  = "test-jwt-secret"
	testCronSecret = "test-cron-secret"
	testStream     = "bid_events"
)

func init() { gin.SetMode(gin.TestMode) }

type testServer struct {
	t      *testing.T
	now    time.Time
	engine *gin.Engine
	svc    *auction.Service
	rdb    *rd.Client
	deps   Deps
	dir    *mock.MockDirectory
	sender *mock.MockSender
}

// 2026-10-19 是周一，默认时间落在周一 09:00 开拍窗口内
func newTestServer(t *testing.T, tweak ...func(*config.AppConfig)) *testServer {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := rd.NewClient(&rd.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	ts := &testServer{t: t, now: time.Date(2026, 10, 19, 9, 5, 0, 0, time.UTC), rdb: rdb}
	clock := func() time.Time { return ts.now }
	ts.svc = auction.NewService(auction.NewMemStore(), nil, auction.WithClock(clock))

	cfg := config.AppConfig{
		BidRateLimit:  100,
		BidRateWindow: 10 * time.Second,
		PriceCacheTTL: time.Hour,
		JWTSecret:     testJWTSecret,
		CronSecret:    testCronSecret,
		CronLocation:  time.UTC,
		OpenSchedule:  config.Schedule{Weekday: time.Monday, Hour: 9},
		CloseSchedule: config.Schedule{Weekday: time.Sunday, Hour: 20},
		CronWindow:    15 * time.Minute,
	}
	for _, fn := range tweak {
		fn(&cfg)
	}

	ctrl := gomock.NewController(t)
	ts.dir = mock.NewMockDirectory(ctrl)
	ts.sender = mock.NewMockSender(ctrl)

	events := queue.NewStreamPublisher(rdb, testStream)
	ts.deps = Deps{
		Service:  ts.svc,
		Redis:    rdb,
		Events:   events,
		Jobs:     jobs.NewRunner(ts.svc, rdb, events, cfg.PriceCacheTTL, nil),
		Notifier: notify.NewNotifier(ts.dir, ts.sender, nil),
		Config:   cfg,
		Now:      clock,
	}
	ts.engine = gin.New()
	Setup(ts.engine, ts.deps)
	return ts
}

func (ts *testServer) token(userID, role string) string {
	ts.t.Helper()
	tok, err := middleware.IssueToken(testJWTSecret, userID, role, time.Hour)
	if err != nil {
		ts.t.Fatalf("IssueToken() error = %v", err)
	}
	return tok
}

// do 发请求；bearer 为空时不带 Authorization。
func (ts *testServer) do(method, path, bearer string, body any) *httptest.ResponseRecorder {
	ts.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			ts.t.Fatal(err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	w := httptest.NewRecorder()
	ts.engine.ServeHTTP(w, req)
	return w
}

func (ts *testServer) bid(userID string, auctionID uint, amount int64) *httptest.ResponseRecorder {
	return ts.do(http.MethodPost, path("/api/auctions/%d/bids", auctionID), ts.token(userID, middleware.RoleUser),
		gin.H{"amount": amount})
}

func (ts *testServer) createActive() *model.Auction {
	ts.t.Helper()
	a, err := ts.svc.CreateAuction(context.Background(), auction.CreateAuctionInput{
		Title:         "Lote 42",
		SellerID:      "customs-office",
		StartDate:     ts.now.Add(-time.Hour),
		EndDate:       ts.now.Add(time.Hour),
		StartingPrice: 100000,
		Increment:     5000,
	})
	if err != nil {
		ts.t.Fatalf("CreateAuction() error = %v", err)
	}
	return a
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode %q: %v", w.Body.String(), err)
	}
	return out
}

func path(format string, args ...any) string { return fmt.Sprintf(format, args...) }
