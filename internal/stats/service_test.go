package stats_test

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/anjiru/duka-pos/internal/db"
	"github.com/anjiru/duka-pos/internal/stats"
)

type stubQueries struct {
	totalsCalls int
	topCalls    int
}

func (s *stubQueries) GetSalesTotals(_ context.Context, _, _ time.Time) (db.SalesTotals, error) {
	s.totalsCalls++
	return db.SalesTotals{SalesCount: 3, Revenue: 7500, DepositsTaken: 5000, OutstandingDue: 2500}, nil
}

func (s *stubQueries) ListTopItems(_ context.Context, _, _ time.Time, _ int32) ([]db.TopItemRow, error) {
	s.topCalls++
	return []db.TopItemRow{{Description: "Chair", UnitsSold: 12, Revenue: 30000}}, nil
}

func (s *stubQueries) ListDailyRevenue(_ context.Context, from, _ time.Time) ([]db.DailyRevenueRow, error) {
	return []db.DailyRevenueRow{{Day: from, Revenue: 7500, Count: 3}}, nil
}

func newService(t *testing.T) (*stats.Service, *stubQueries) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	queries := &stubQueries{}
	return &stats.Service{Q: queries, R: rdb, TTL: time.Minute, DefaultRange: 30}, queries
}

func TestSalesOverviewCached(t *testing.T) {
	svc, queries := newService(t)
	from := time.Now().Add(-24 * time.Hour).Truncate(24 * time.Hour)
	to := time.Now().Truncate(24 * time.Hour)

	first, err := svc.SalesOverview(context.Background(), from, to)
	if err != nil {
		t.Fatalf("first call: %v", err)
	}
	if first.OutstandingDue != 2500 {
		t.Fatalf("unexpected outstanding: %d", first.OutstandingDue)
	}
	if _, err := svc.SalesOverview(context.Background(), from, to); err != nil {
		t.Fatalf("second call: %v", err)
	}
	if queries.totalsCalls != 1 {
		t.Fatalf("expected 1 DB call, got %d", queries.totalsCalls)
	}
}

func TestTopItemsCachedPerLimit(t *testing.T) {
	svc, queries := newService(t)
	from := time.Now().Add(-48 * time.Hour)
	to := time.Now()

	if _, err := svc.TopItems(context.Background(), from, to, 10); err != nil {
		t.Fatalf("first call: %v", err)
	}
	if _, err := svc.TopItems(context.Background(), from, to, 10); err != nil {
		t.Fatalf("second call: %v", err)
	}
	if _, err := svc.TopItems(context.Background(), from, to, 5); err != nil {
		t.Fatalf("different limit: %v", err)
	}
	if queries.topCalls != 2 {
		t.Fatalf("expected 2 DB calls, got %d", queries.topCalls)
	}
}
