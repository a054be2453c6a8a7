package db

import (
	"context"
	"time"
)

// SalesTotals is the aggregate slice of the ledger for one window.
type SalesTotals struct {
	SalesCount     int64
	Revenue        int64
	DepositsTaken  int64
	OutstandingDue int64
}

// GetSalesTotals aggregates non-canceled sales created in [from, to).
func (s *Store) GetSalesTotals(ctx context.Context, from, to time.Time) (SalesTotals, error) {
	var t SalesTotals
	err := s.db.QueryRow(ctx, `
		SELECT count(*),
			coalesce(sum(total), 0),
			coalesce(sum(deposit), 0),
			coalesce(sum(total - deposit), 0)
		FROM sales
		WHERE status <> 'canceled' AND created_at >= $1 AND created_at < $2`,
		from, to).Scan(&t.SalesCount, &t.Revenue, &t.DepositsTaken, &t.OutstandingDue)
	return t, err
}

// TopItemRow is one entry in the best-sellers listing.
type TopItemRow struct {
	Description string
	UnitsSold   int64
	Revenue     int64
}

// ListTopItems ranks sale lines by units sold in [from, to).
func (s *Store) ListTopItems(ctx context.Context, from, to time.Time, limit int32) ([]TopItemRow, error) {
	rows, err := s.db.Query(ctx, `
		SELECT si.description, sum(si.quantity), sum(si.quantity * si.unit_price)
		FROM sale_items si
		JOIN sales sa ON sa.id = si.sale_id
		WHERE sa.status <> 'canceled' AND sa.created_at >= $1 AND sa.created_at < $2
		GROUP BY si.description
		ORDER BY sum(si.quantity) DESC
		LIMIT $3`,
		from, to, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []TopItemRow
	for rows.Next() {
		var r TopItemRow
		if err := rows.Scan(&r.Description, &r.UnitsSold, &r.Revenue); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// DailyRevenueRow is revenue bucketed by calendar day.
type DailyRevenueRow struct {
	Day     time.Time
	Revenue int64
	Count   int64
}

// ListDailyRevenue buckets non-canceled sales per day over [from, to).
func (s *Store) ListDailyRevenue(ctx context.Context, from, to time.Time) ([]DailyRevenueRow, error) {
	rows, err := s.db.Query(ctx, `
		SELECT date_trunc('day', created_at), coalesce(sum(total), 0), count(*)
		FROM sales
		WHERE status <> 'canceled' AND created_at >= $1 AND created_at < $2
		GROUP BY 1
		ORDER BY 1`,
		from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []DailyRevenueRow
	for rows.Next() {
		var r DailyRevenueRow
		if err := rows.Scan(&r.Day, &r.Revenue, &r.Count); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
