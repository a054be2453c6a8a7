package customer

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/anjiru/duka-pos/internal/common"
	"github.com/anjiru/duka-pos/internal/db"
)

type store interface {
	CreateCustomer(ctx context.Context, arg db.CreateCustomerParams) (db.Customer, error)
	GetCustomerByID(ctx context.Context, id pgtype.UUID) (db.Customer, error)
	GetCustomerByEmail(ctx context.Context, email string) (db.Customer, error)
	GetCustomerByPhone(ctx context.Context, phone string) (db.Customer, error)
	SearchCustomers(ctx context.Context, term string, limit, offset int32) ([]db.Customer, error)
	CountCustomers(ctx context.Context, term string) (int64, error)
}

// Service looks up and registers customers. Checkout reuses an existing
// customer when the phone or email already exists rather than creating a
// duplicate row.
type Service struct {
	Store store
}

// Input is the customer payload accepted at checkout and on the customers API.
type Input struct {
	Name          string `json:"name" validate:"required,min=1,max=200"`
	CompanyName   string `json:"companyName" validate:"omitempty,max=200"`
	CustomerType  string `json:"customerType" validate:"omitempty,oneof=individual business"`
	AttentionName string `json:"attentionName" validate:"omitempty,max=200"`
	Phone         string `json:"phone" validate:"omitempty,min=7,max=20"`
	Email         string `json:"email" validate:"omitempty,email"`
	Address       string `json:"address" validate:"omitempty,max=500"`
}

// View is the customer payload returned by the API.
type View struct {
	ID            string `json:"id"`
	Name          string `json:"name"`
	CompanyName   string `json:"companyName,omitempty"`
	CustomerType  string `json:"customerType"`
	AttentionName string `json:"attentionName,omitempty"`
	Phone         string `json:"phone,omitempty"`
	Email         string `json:"email,omitempty"`
	Address       string `json:"address,omitempty"`
}

// Normalize trims fields and lowercases the email.
func (in *Input) Normalize() {
	in.Name = strings.TrimSpace(in.Name)
	in.CompanyName = strings.TrimSpace(in.CompanyName)
	in.AttentionName = strings.TrimSpace(in.AttentionName)
	in.Phone = strings.TrimSpace(in.Phone)
	in.Email = strings.ToLower(strings.TrimSpace(in.Email))
	in.Address = strings.TrimSpace(in.Address)
	if in.CustomerType == "" {
		in.CustomerType = "individual"
	}
}

// Upsert returns the existing customer matching the contact details, or
// creates a new one. Lookup prefers email, then phone.
func (s *Service) Upsert(ctx context.Context, in Input) (db.Customer, error) {
	in.Normalize()
	if in.Phone == "" && in.Email == "" {
		return db.Customer{}, &common.AppError{
			Code:       "BAD_REQUEST",
			Message:    "customer needs a phone number or an email",
			HTTPStatus: http.StatusBadRequest,
		}
	}
	if in.Email != "" {
		existing, err := s.Store.GetCustomerByEmail(ctx, in.Email)
		if err == nil {
			return existing, nil
		}
		if !errors.Is(err, pgx.ErrNoRows) {
			return db.Customer{}, fmt.Errorf("lookup customer by email: %w", err)
		}
	}
	if in.Phone != "" {
		existing, err := s.Store.GetCustomerByPhone(ctx, in.Phone)
		if err == nil {
			return existing, nil
		}
		if !errors.Is(err, pgx.ErrNoRows) {
			return db.Customer{}, fmt.Errorf("lookup customer by phone: %w", err)
		}
	}
	created, err := s.Store.CreateCustomer(ctx, db.CreateCustomerParams{
		Name:          in.Name,
		CompanyName:   optionalText(in.CompanyName),
		CustomerType:  in.CustomerType,
		AttentionName: optionalText(in.AttentionName),
		Phone:         optionalText(in.Phone),
		Email:         optionalText(in.Email),
		Address:       optionalText(in.Address),
	})
	if err != nil {
		return db.Customer{}, fmt.Errorf("create customer: %w", err)
	}
	return created, nil
}

// Get loads one customer by id.
func (s *Service) Get(ctx context.Context, id string) (db.Customer, error) {
	uid, err := db.ToUUID(id)
	if err != nil {
		return db.Customer{}, &common.AppError{Code: "BAD_REQUEST", Message: "invalid customer id", HTTPStatus: http.StatusBadRequest, Err: err}
	}
	row, err := s.Store.GetCustomerByID(ctx, uid)
	if errors.Is(err, pgx.ErrNoRows) {
		return db.Customer{}, &common.AppError{Code: "NOT_FOUND", Message: "customer not found", HTTPStatus: http.StatusNotFound, Err: err}
	}
	return row, err
}

// Search lists customers matching a free-text term.
func (s *Service) Search(ctx context.Context, term string, page, limit int) ([]db.Customer, int64, error) {
	if page < 1 {
		page = 1
	}
	if limit < 1 || limit > 100 {
		limit = 20
	}
	term = strings.TrimSpace(term)
	total, err := s.Store.CountCustomers(ctx, term)
	if err != nil {
		return nil, 0, fmt.Errorf("count customers: %w", err)
	}
	rows, err := s.Store.SearchCustomers(ctx, term, int32(limit), int32((page-1)*limit))
	if err != nil {
		return nil, 0, fmt.Errorf("search customers: %w", err)
	}
	return rows, total, nil
}

// ToView maps the stored row to the API payload.
func ToView(c db.Customer) View {
	return View{
		ID:            db.UUIDString(c.ID),
		Name:          c.Name,
		CompanyName:   c.CompanyName.String,
		CustomerType:  c.CustomerType,
		AttentionName: c.AttentionName.String,
		Phone:         c.Phone.String,
		Email:         c.Email.String,
		Address:       c.Address.String,
	}
}

func optionalText(v string) pgtype.Text {
	if v == "" {
		return pgtype.Text{}
	}
	return pgtype.Text{String: v, Valid: true}
}
