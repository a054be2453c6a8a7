package db

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgtype"
)

const saleColumns = `id, customer_id, reference_number, is_custom, status, payment_mode,
	sales_person_id, total, deposit, delivery_method, delivery_fee, discount_amount,
	tax_inclusive, expected_delivery_date, notes, created_at, updated_at`

func scanSale(row interface{ Scan(...any) error }) (Sale, error) {
	var s Sale
	err := row.Scan(&s.ID, &s.CustomerID, &s.ReferenceNumber, &s.IsCustom, &s.Status, &s.PaymentMode,
		&s.SalesPersonID, &s.Total, &s.Deposit, &s.DeliveryMethod, &s.DeliveryFee, &s.DiscountAmount,
		&s.TaxInclusive, &s.ExpectedDeliveryDate, &s.Notes, &s.CreatedAt, &s.UpdatedAt)
	return s, err
}

// CreateSaleParams carries the insert fields for a sale or made-to-order invoice.
// ReferenceNumber is NULL when unset; the column is unique, and empty strings
// would collide on the second insert.
type CreateSaleParams struct {
	CustomerID           pgtype.UUID
	ReferenceNumber      pgtype.Text
	IsCustom             bool
	Status               string
	PaymentMode          pgtype.Text
	SalesPersonID        pgtype.Text
	Total                int64
	Deposit              int64
	DeliveryMethod       pgtype.Text
	DeliveryFee          int64
	DiscountAmount       int64
	TaxInclusive         bool
	ExpectedDeliveryDate pgtype.Date
	Notes                pgtype.Text
}

// CreateSale inserts a sale row and returns it.
func (s *Store) CreateSale(ctx context.Context, arg CreateSaleParams) (Sale, error) {
	row := s.db.QueryRow(ctx, `
		INSERT INTO sales (customer_id, reference_number, is_custom, status, payment_mode,
			sales_person_id, total, deposit, delivery_method, delivery_fee, discount_amount,
			tax_inclusive, expected_delivery_date, notes)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		RETURNING `+saleColumns,
		arg.CustomerID, arg.ReferenceNumber, arg.IsCustom, arg.Status, arg.PaymentMode,
		arg.SalesPersonID, arg.Total, arg.Deposit, arg.DeliveryMethod, arg.DeliveryFee,
		arg.DiscountAmount, arg.TaxInclusive, arg.ExpectedDeliveryDate, arg.Notes)
	return scanSale(row)
}

// GetSale loads one sale.
func (s *Store) GetSale(ctx context.Context, id pgtype.UUID) (Sale, error) {
	row := s.db.QueryRow(ctx, `SELECT `+saleColumns+` FROM sales WHERE id = $1`, id)
	return scanSale(row)
}

// GetSaleByReference loads a sale by its human reference number.
func (s *Store) GetSaleByReference(ctx context.Context, ref string) (Sale, error) {
	row := s.db.QueryRow(ctx, `SELECT `+saleColumns+` FROM sales WHERE reference_number = $1`, ref)
	return scanSale(row)
}

// ListSalesParams filters the sales listing.
type ListSalesParams struct {
	Status   string
	IsCustom pgtype.Bool
	Limit    int32
	Offset   int32
}

// ListSales returns sales newest first, optionally filtered by status and kind.
func (s *Store) ListSales(ctx context.Context, arg ListSalesParams) ([]Sale, error) {
	rows, err := s.db.Query(ctx, `
		SELECT `+saleColumns+`
		FROM sales
		WHERE ($1 = '' OR status = $1)
		  AND ($2::boolean IS NULL OR is_custom = $2)
		ORDER BY created_at DESC
		LIMIT $3 OFFSET $4`,
		arg.Status, arg.IsCustom, arg.Limit, arg.Offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Sale
	for rows.Next() {
		sl, err := scanSale(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, sl)
	}
	return out, rows.Err()
}

// CountSales returns the number of sales matching the filters.
func (s *Store) CountSales(ctx context.Context, status string, isCustom pgtype.Bool) (int64, error) {
	var total int64
	err := s.db.QueryRow(ctx, `
		SELECT count(*)
		FROM sales
		WHERE ($1 = '' OR status = $1)
		  AND ($2::boolean IS NULL OR is_custom = $2)`,
		status, isCustom).Scan(&total)
	return total, err
}

// CountSalesForDay counts sales created within [dayStart, dayStart+24h),
// used to allocate the next daily reference sequence number.
func (s *Store) CountSalesForDay(ctx context.Context, dayStart time.Time) (int64, error) {
	var total int64
	err := s.db.QueryRow(ctx, `
		SELECT count(*)
		FROM sales
		WHERE created_at >= $1 AND created_at < $1 + interval '1 day'`,
		dayStart).Scan(&total)
	return total, err
}

// UpdateSaleStatus sets the lifecycle status of a sale.
func (s *Store) UpdateSaleStatus(ctx context.Context, id pgtype.UUID, status string) (Sale, error) {
	row := s.db.QueryRow(ctx, `
		UPDATE sales SET status = $2, updated_at = now()
		WHERE id = $1
		RETURNING `+saleColumns,
		id, status)
	return scanSale(row)
}

// UpdateSaleTotals rewrites the money fields after a recompute.
type UpdateSaleTotalsParams struct {
	ID             pgtype.UUID
	Total          int64
	Deposit        int64
	DeliveryFee    int64
	DiscountAmount int64
	TaxInclusive   bool
}

func (s *Store) UpdateSaleTotals(ctx context.Context, arg UpdateSaleTotalsParams) (Sale, error) {
	row := s.db.QueryRow(ctx, `
		UPDATE sales
		SET total = $2, deposit = $3, delivery_fee = $4, discount_amount = $5,
			tax_inclusive = $6, updated_at = now()
		WHERE id = $1
		RETURNING `+saleColumns,
		arg.ID, arg.Total, arg.Deposit, arg.DeliveryFee, arg.DiscountAmount, arg.TaxInclusive)
	return scanSale(row)
}

// UpdateSaleDeposit sets the cumulative deposit and, when settle is true,
// flips the sale to completed in the same statement.
func (s *Store) UpdateSaleDeposit(ctx context.Context, id pgtype.UUID, deposit int64, settle bool) (Sale, error) {
	row := s.db.QueryRow(ctx, `
		UPDATE sales
		SET deposit = $2,
			status = CASE WHEN $3 THEN 'completed' ELSE status END,
			updated_at = now()
		WHERE id = $1
		RETURNING `+saleColumns,
		id, deposit, settle)
	return scanSale(row)
}

const saleItemColumns = `id, sale_id, item_id, description, quantity, unit_price, sort_order`

func scanSaleItem(row interface{ Scan(...any) error }) (SaleItem, error) {
	var si SaleItem
	err := row.Scan(&si.ID, &si.SaleID, &si.ItemID, &si.Description, &si.Quantity, &si.UnitPrice, &si.SortOrder)
	return si, err
}

// CreateSaleItemParams is one line on a sale.
type CreateSaleItemParams struct {
	SaleID      pgtype.UUID
	ItemID      pgtype.UUID
	Description string
	Quantity    int32
	UnitPrice   int64
	SortOrder   int32
}

// CreateSaleItem inserts one sale line.
func (s *Store) CreateSaleItem(ctx context.Context, arg CreateSaleItemParams) (SaleItem, error) {
	row := s.db.QueryRow(ctx, `
		INSERT INTO sale_items (sale_id, item_id, description, quantity, unit_price, sort_order)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING `+saleItemColumns,
		arg.SaleID, arg.ItemID, arg.Description, arg.Quantity, arg.UnitPrice, arg.SortOrder)
	return scanSaleItem(row)
}

// ListSaleItems returns the lines of a sale in display order.
func (s *Store) ListSaleItems(ctx context.Context, saleID pgtype.UUID) ([]SaleItem, error) {
	rows, err := s.db.Query(ctx, `
		SELECT `+saleItemColumns+`
		FROM sale_items
		WHERE sale_id = $1
		ORDER BY sort_order, id`,
		saleID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []SaleItem
	for rows.Next() {
		si, err := scanSaleItem(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, si)
	}
	return out, rows.Err()
}

// DeleteSaleItems removes all lines of a sale, used when replacing the line set.
func (s *Store) DeleteSaleItems(ctx context.Context, saleID pgtype.UUID) error {
	_, err := s.db.Exec(ctx, `DELETE FROM sale_items WHERE sale_id = $1`, saleID)
	return err
}
