package stats

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/anjiru/duka-pos/internal/db"
)

// Querier defines the database access required for the sales overview.
type Querier interface {
	GetSalesTotals(ctx context.Context, from, to time.Time) (db.SalesTotals, error)
	ListTopItems(ctx context.Context, from, to time.Time, limit int32) ([]db.TopItemRow, error)
	ListDailyRevenue(ctx context.Context, from, to time.Time) ([]db.DailyRevenueRow, error)
}

// Overview is the home-screen stat card payload.
type Overview struct {
	From           time.Time `json:"from"`
	To             time.Time `json:"to"`
	SalesCount     int64     `json:"salesCount"`
	Revenue        int64     `json:"revenue"`
	DepositsTaken  int64     `json:"depositsTaken"`
	OutstandingDue int64     `json:"outstandingDue"`
}

// TopItem is one best-seller row.
type TopItem struct {
	Description string `json:"description"`
	UnitsSold   int64  `json:"unitsSold"`
	Revenue     int64  `json:"revenue"`
}

// DailyPoint is one day's revenue bucket.
type DailyPoint struct {
	Day     string `json:"day"`
	Revenue int64  `json:"revenue"`
	Count   int64  `json:"count"`
}

// Service provides cached access to sales aggregates.
type Service struct {
	Q            Querier
	R            *redis.Client
	TTL          time.Duration
	DefaultRange int
	Now          func() time.Time
}

func (s *Service) now() time.Time {
	if s != nil && s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

func cacheKey(parts ...any) string {
	formatted := make([]string, 0, len(parts))
	for _, part := range parts {
		formatted = append(formatted, fmt.Sprint(part))
	}
	return strings.Join(formatted, ":")
}

// SalesOverview aggregates the ledger between from (inclusive) and to
// (exclusive).
func (s *Service) SalesOverview(ctx context.Context, from, to time.Time) (Overview, error) {
	if s == nil || s.Q == nil {
		return Overview{}, fmt.Errorf("stats service not configured")
	}
	key := cacheKey("stats", "overview", from.Format("2006-01-02"), to.Format("2006-01-02"))
	var cached Overview
	if s.get(ctx, key, &cached) {
		return cached, nil
	}
	totals, err := s.Q.GetSalesTotals(ctx, from, to)
	if err != nil {
		return Overview{}, err
	}
	overview := Overview{
		From:           from,
		To:             to,
		SalesCount:     totals.SalesCount,
		Revenue:        totals.Revenue,
		DepositsTaken:  totals.DepositsTaken,
		OutstandingDue: totals.OutstandingDue,
	}
	s.store(ctx, key, overview)
	return overview, nil
}

// TopItems ranks sale lines by units sold within the range.
func (s *Service) TopItems(ctx context.Context, from, to time.Time, limit int32) ([]TopItem, error) {
	if s == nil || s.Q == nil {
		return nil, fmt.Errorf("stats service not configured")
	}
	if limit <= 0 {
		limit = 10
	}
	key := cacheKey("stats", "top", from.Format("2006-01-02"), to.Format("2006-01-02"), limit)
	var cached []TopItem
	if s.get(ctx, key, &cached) {
		return cached, nil
	}
	rows, err := s.Q.ListTopItems(ctx, from, to, limit)
	if err != nil {
		return nil, err
	}
	items := make([]TopItem, 0, len(rows))
	for _, row := range rows {
		items = append(items, TopItem{Description: row.Description, UnitsSold: row.UnitsSold, Revenue: row.Revenue})
	}
	s.store(ctx, key, items)
	return items, nil
}

// DailyRevenue buckets revenue per calendar day within the range.
func (s *Service) DailyRevenue(ctx context.Context, from, to time.Time) ([]DailyPoint, error) {
	if s == nil || s.Q == nil {
		return nil, fmt.Errorf("stats service not configured")
	}
	key := cacheKey("stats", "daily", from.Format("2006-01-02"), to.Format("2006-01-02"))
	var cached []DailyPoint
	if s.get(ctx, key, &cached) {
		return cached, nil
	}
	rows, err := s.Q.ListDailyRevenue(ctx, from, to)
	if err != nil {
		return nil, err
	}
	points := make([]DailyPoint, 0, len(rows))
	for _, row := range rows {
		points = append(points, DailyPoint{Day: row.Day.Format("2006-01-02"), Revenue: row.Revenue, Count: row.Count})
	}
	s.store(ctx, key, points)
	return points, nil
}

func (s *Service) get(ctx context.Context, key string, dst any) bool {
	if s.R == nil || s.TTL <= 0 {
		return false
	}
	data, err := s.R.Get(ctx, key).Bytes()
	if err != nil {
		return false
	}
	return json.Unmarshal(data, dst) == nil
}

func (s *Service) store(ctx context.Context, key string, value any) {
	if s.R == nil || s.TTL <= 0 {
		return
	}
	data, err := json.Marshal(value)
	if err != nil {
		return
	}
	_ = s.R.Set(ctx, key, data, s.TTL).Err()
}
