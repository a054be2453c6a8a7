package db

import (
	"context"

	"github.com/jackc/pgx/v5/pgtype"
)

const customerColumns = `id, name, company_name, customer_type, attention_name, phone, email, address, created_at`

func scanCustomer(row interface{ Scan(...any) error }) (Customer, error) {
	var c Customer
	err := row.Scan(&c.ID, &c.Name, &c.CompanyName, &c.CustomerType, &c.AttentionName, &c.Phone, &c.Email, &c.Address, &c.CreatedAt)
	return c, err
}

// CreateCustomerParams captures the fields persisted for a new customer.
type CreateCustomerParams struct {
	Name          string
	CompanyName   pgtype.Text
	CustomerType  string
	AttentionName pgtype.Text
	Phone         pgtype.Text
	Email         pgtype.Text
	Address       pgtype.Text
}

// CreateCustomer inserts a customer and returns the stored row.
func (s *Store) CreateCustomer(ctx context.Context, arg CreateCustomerParams) (Customer, error) {
	row := s.db.QueryRow(ctx, `
		INSERT INTO customers (name, company_name, customer_type, attention_name, phone, email, address)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING `+customerColumns,
		arg.Name, arg.CompanyName, arg.CustomerType, arg.AttentionName, arg.Phone, arg.Email, arg.Address)
	return scanCustomer(row)
}

// GetCustomerByID loads one customer.
func (s *Store) GetCustomerByID(ctx context.Context, id pgtype.UUID) (Customer, error) {
	row := s.db.QueryRow(ctx, `SELECT `+customerColumns+` FROM customers WHERE id = $1`, id)
	return scanCustomer(row)
}

// GetCustomerByEmail finds a customer by normalised email.
func (s *Store) GetCustomerByEmail(ctx context.Context, email string) (Customer, error) {
	row := s.db.QueryRow(ctx, `SELECT `+customerColumns+` FROM customers WHERE lower(email) = lower($1)`, email)
	return scanCustomer(row)
}

// GetCustomerByPhone finds a customer by phone number.
func (s *Store) GetCustomerByPhone(ctx context.Context, phone string) (Customer, error) {
	row := s.db.QueryRow(ctx, `SELECT `+customerColumns+` FROM customers WHERE phone = $1`, phone)
	return scanCustomer(row)
}

// SearchCustomers lists customers whose name, phone or email matches the term.
func (s *Store) SearchCustomers(ctx context.Context, term string, limit, offset int32) ([]Customer, error) {
	rows, err := s.db.Query(ctx, `
		SELECT `+customerColumns+`
		FROM customers
		WHERE ($1 = '' OR name ILIKE '%' || $1 || '%' OR phone ILIKE '%' || $1 || '%' OR email ILIKE '%' || $1 || '%')
		ORDER BY name
		LIMIT $2 OFFSET $3`,
		term, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var customers []Customer
	for rows.Next() {
		c, err := scanCustomer(rows)
		if err != nil {
			return nil, err
		}
		customers = append(customers, c)
	}
	return customers, rows.Err()
}

// CountCustomers returns the number of customers matching the term.
func (s *Store) CountCustomers(ctx context.Context, term string) (int64, error) {
	var total int64
	err := s.db.QueryRow(ctx, `
		SELECT count(*)
		FROM customers
		WHERE ($1 = '' OR name ILIKE '%' || $1 || '%' OR phone ILIKE '%' || $1 || '%' OR email ILIKE '%' || $1 || '%')`,
		term).Scan(&total)
	return total, err
}
