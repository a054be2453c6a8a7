package db

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
)

// ErrInsufficientStock is returned when a deduction would drive quantity negative.
var ErrInsufficientStock = errors.New("db: insufficient stock")

const categoryColumns = `id, name, description, created_at`

func scanCategory(row interface{ Scan(...any) error }) (Category, error) {
	var c Category
	err := row.Scan(&c.ID, &c.Name, &c.Description, &c.CreatedAt)
	return c, err
}

// CreateCategory inserts a category.
func (s *Store) CreateCategory(ctx context.Context, name string, description pgtype.Text) (Category, error) {
	row := s.db.QueryRow(ctx, `
		INSERT INTO categories (name, description)
		VALUES ($1, $2)
		RETURNING `+categoryColumns,
		name, description)
	return scanCategory(row)
}

// ListCategories returns all categories ordered by name.
func (s *Store) ListCategories(ctx context.Context) ([]Category, error) {
	rows, err := s.db.Query(ctx, `SELECT `+categoryColumns+` FROM categories ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Category
	for rows.Next() {
		c, err := scanCategory(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// DeleteCategory removes a category. Products keep a NULL category afterwards.
func (s *Store) DeleteCategory(ctx context.Context, id pgtype.UUID) error {
	_, err := s.db.Exec(ctx, `DELETE FROM categories WHERE id = $1`, id)
	return err
}

const productColumns = `id, category_id, name, description, created_at`

func scanProduct(row interface{ Scan(...any) error }) (Product, error) {
	var p Product
	err := row.Scan(&p.ID, &p.CategoryID, &p.Name, &p.Description, &p.CreatedAt)
	return p, err
}

// CreateProduct inserts a product under an optional category.
func (s *Store) CreateProduct(ctx context.Context, categoryID pgtype.UUID, name string, description pgtype.Text) (Product, error) {
	row := s.db.QueryRow(ctx, `
		INSERT INTO products (category_id, name, description)
		VALUES ($1, $2, $3)
		RETURNING `+productColumns,
		categoryID, name, description)
	return scanProduct(row)
}

// ListProducts returns products, optionally restricted to a category.
func (s *Store) ListProducts(ctx context.Context, categoryID pgtype.UUID) ([]Product, error) {
	rows, err := s.db.Query(ctx, `
		SELECT `+productColumns+`
		FROM products
		WHERE $1::uuid IS NULL OR category_id = $1
		ORDER BY name`,
		categoryID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Product
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

const itemColumns = `id, product_id, sku, name, price, quantity, low_stock_threshold, created_at, updated_at`

func scanItem(row interface{ Scan(...any) error }) (Item, error) {
	var it Item
	err := row.Scan(&it.ID, &it.ProductID, &it.SKU, &it.Name, &it.Price, &it.Quantity, &it.LowStockThreshold, &it.CreatedAt, &it.UpdatedAt)
	return it, err
}

// CreateItemParams carries the fields for a new sellable item.
type CreateItemParams struct {
	ProductID         pgtype.UUID
	SKU               pgtype.Text
	Name              string
	Price             int64
	Quantity          int32
	LowStockThreshold int32
}

// CreateItem inserts a sellable item variant.
func (s *Store) CreateItem(ctx context.Context, arg CreateItemParams) (Item, error) {
	row := s.db.QueryRow(ctx, `
		INSERT INTO items (product_id, sku, name, price, quantity, low_stock_threshold)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING `+itemColumns,
		arg.ProductID, arg.SKU, arg.Name, arg.Price, arg.Quantity, arg.LowStockThreshold)
	return scanItem(row)
}

// GetItem loads one item.
func (s *Store) GetItem(ctx context.Context, id pgtype.UUID) (Item, error) {
	row := s.db.QueryRow(ctx, `SELECT `+itemColumns+` FROM items WHERE id = $1`, id)
	return scanItem(row)
}

// ListItems returns items matching an optional search term.
func (s *Store) ListItems(ctx context.Context, term string, limit, offset int32) ([]Item, error) {
	rows, err := s.db.Query(ctx, `
		SELECT `+itemColumns+`
		FROM items
		WHERE $1 = '' OR name ILIKE '%' || $1 || '%' OR sku ILIKE '%' || $1 || '%'
		ORDER BY name
		LIMIT $2 OFFSET $3`,
		term, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Item
	for rows.Next() {
		it, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, it)
	}
	return out, rows.Err()
}

// UpdateItemParams carries mutable item fields.
type UpdateItemParams struct {
	ID                pgtype.UUID
	Name              string
	Price             int64
	LowStockThreshold int32
}

// UpdateItem updates name, price and threshold for an item.
func (s *Store) UpdateItem(ctx context.Context, arg UpdateItemParams) (Item, error) {
	row := s.db.QueryRow(ctx, `
		UPDATE items
		SET name = $2, price = $3, low_stock_threshold = $4, updated_at = now()
		WHERE id = $1
		RETURNING `+itemColumns,
		arg.ID, arg.Name, arg.Price, arg.LowStockThreshold)
	return scanItem(row)
}

// DeductStock atomically removes qty units, failing when stock is short.
func (s *Store) DeductStock(ctx context.Context, id pgtype.UUID, qty int32) (Item, error) {
	row := s.db.QueryRow(ctx, `
		UPDATE items
		SET quantity = quantity - $2, updated_at = now()
		WHERE id = $1 AND quantity >= $2
		RETURNING `+itemColumns,
		id, qty)
	it, err := scanItem(row)
	if errors.Is(err, pgx.ErrNoRows) {
		// no row matched: either the item is unknown or the stock is short
		var exists bool
		if probeErr := s.db.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM items WHERE id = $1)`, id).Scan(&exists); probeErr != nil {
			return Item{}, probeErr
		}
		if !exists {
			return Item{}, pgx.ErrNoRows
		}
		return Item{}, ErrInsufficientStock
	}
	return it, err
}

// AdjustStock adds delta units (restock or correction, may be negative).
func (s *Store) AdjustStock(ctx context.Context, id pgtype.UUID, delta int32) (Item, error) {
	row := s.db.QueryRow(ctx, `
		UPDATE items
		SET quantity = greatest(quantity + $2, 0), updated_at = now()
		WHERE id = $1
		RETURNING `+itemColumns,
		id, delta)
	return scanItem(row)
}

// ListLowStockItems returns items at or below their low stock threshold.
func (s *Store) ListLowStockItems(ctx context.Context) ([]Item, error) {
	rows, err := s.db.Query(ctx, `
		SELECT `+itemColumns+`
		FROM items
		WHERE quantity <= low_stock_threshold
		ORDER BY quantity ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Item
	for rows.Next() {
		it, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, it)
	}
	return out, rows.Err()
}
