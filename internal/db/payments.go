package db

import (
	"context"

	"github.com/jackc/pgx/v5/pgtype"
)

const paymentColumns = `id, sale_id, amount, method, reference, received_by, created_at`

func scanPayment(row interface{ Scan(...any) error }) (Payment, error) {
	var p Payment
	err := row.Scan(&p.ID, &p.SaleID, &p.Amount, &p.Method, &p.Reference, &p.ReceivedBy, &p.CreatedAt)
	return p, err
}

// InsertPaymentParams records a payment against a sale.
type InsertPaymentParams struct {
	SaleID     pgtype.UUID
	Amount     int64
	Method     string
	Reference  pgtype.Text
	ReceivedBy pgtype.Text
}

// InsertPayment appends a payment row.
func (s *Store) InsertPayment(ctx context.Context, arg InsertPaymentParams) (Payment, error) {
	row := s.db.QueryRow(ctx, `
		INSERT INTO payments (sale_id, amount, method, reference, received_by)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING `+paymentColumns,
		arg.SaleID, arg.Amount, arg.Method, arg.Reference, arg.ReceivedBy)
	return scanPayment(row)
}

// ListPaymentsBySale returns the payments of a sale oldest first.
func (s *Store) ListPaymentsBySale(ctx context.Context, saleID pgtype.UUID) ([]Payment, error) {
	rows, err := s.db.Query(ctx, `
		SELECT `+paymentColumns+`
		FROM payments
		WHERE sale_id = $1
		ORDER BY created_at`,
		saleID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Payment
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// SumPaymentsBySale returns the total paid against a sale.
func (s *Store) SumPaymentsBySale(ctx context.Context, saleID pgtype.UUID) (int64, error) {
	var total int64
	err := s.db.QueryRow(ctx, `
		SELECT coalesce(sum(amount), 0) FROM payments WHERE sale_id = $1`, saleID).Scan(&total)
	return total, err
}
