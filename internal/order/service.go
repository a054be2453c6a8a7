package order

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/anjiru/duka-pos/internal/billing"
	"github.com/anjiru/duka-pos/internal/common"
	"github.com/anjiru/duka-pos/internal/customer"
	"github.com/anjiru/duka-pos/internal/db"
	"github.com/anjiru/duka-pos/internal/events"
)

// ErrOverpayment rejects a deposit exceeding the outstanding balance. The
// ledger never clamps: an overpayment is an operator mistake, not a rounding
// artifact.
var ErrOverpayment = &common.AppError{
	Code:       "OVERPAYMENT",
	Message:    "deposit exceeds the outstanding balance",
	HTTPStatus: http.StatusConflict,
}

// LineInput is one made-to-order line in a request payload.
type LineInput struct {
	Description string `json:"description" validate:"required,min=1,max=300"`
	Quantity    int32  `json:"quantity" validate:"gt=0"`
	UnitPrice   int64  `json:"unitPrice" validate:"gte=0"`
}

// Input is the create/update payload for a made-to-order invoice.
type Input struct {
	Customer             customer.Input `json:"customer" validate:"required"`
	Items                []LineInput    `json:"items" validate:"required,min=1,dive"`
	DeliveryFee          int64          `json:"deliveryFee" validate:"gte=0"`
	DiscountAmount       int64          `json:"discountAmount" validate:"gte=0"`
	DepositAmount        int64          `json:"depositAmount" validate:"gte=0"`
	TaxInclusive         bool           `json:"taxInclusive"`
	DeliveryMethod       string         `json:"deliveryMethod" validate:"omitempty,max=100"`
	ExpectedDeliveryDate string         `json:"expectedDeliveryDate" validate:"omitempty,datetime=2006-01-02"`
	PaymentMode          string         `json:"paymentMode" validate:"omitempty,oneof=cash mpesa card"`
	Notes                string         `json:"notes" validate:"omitempty,max=2000"`
}

// View is a full invoice as returned by the API: raw rows plus the summary
// recomputed from them.
type View struct {
	ID              string          `json:"id"`
	ReferenceNumber string          `json:"referenceNumber,omitempty"`
	Status          string          `json:"status"`
	Customer        customer.View   `json:"customer"`
	Items           []LineView      `json:"items"`
	Summary         billing.Summary `json:"summary"`
	PaymentMode     string          `json:"paymentMode,omitempty"`
	DeliveryMethod  string          `json:"deliveryMethod,omitempty"`
	ExpectedDate    string          `json:"expectedDeliveryDate,omitempty"`
	Notes           string          `json:"notes,omitempty"`
	Payments        []PaymentView   `json:"payments,omitempty"`
	CreatedAt       time.Time       `json:"createdAt"`
}

// LineView is one invoice line in a response.
type LineView struct {
	Description string `json:"description"`
	Quantity    int32  `json:"quantity"`
	UnitPrice   int64  `json:"unitPrice"`
	LineTotal   int64  `json:"lineTotal"`
}

// PaymentView is one ledger entry in a response.
type PaymentView struct {
	Amount     int64     `json:"amount"`
	Method     string    `json:"method"`
	Reference  string    `json:"reference,omitempty"`
	ReceivedBy string    `json:"receivedBy,omitempty"`
	ReceivedAt time.Time `json:"receivedAt"`
}

// store is the slice of the data layer the invoice workflows touch. *db.Store
// satisfies it; tests supply an in-memory fake. The customer lookups are
// included so the upsert can run inside the same transaction as the sale.
type store interface {
	CreateSale(ctx context.Context, arg db.CreateSaleParams) (db.Sale, error)
	GetSale(ctx context.Context, id pgtype.UUID) (db.Sale, error)
	ListSales(ctx context.Context, arg db.ListSalesParams) ([]db.Sale, error)
	CountSales(ctx context.Context, status string, isCustom pgtype.Bool) (int64, error)
	UpdateSaleStatus(ctx context.Context, id pgtype.UUID, status string) (db.Sale, error)
	UpdateSaleTotals(ctx context.Context, arg db.UpdateSaleTotalsParams) (db.Sale, error)
	UpdateSaleDeposit(ctx context.Context, id pgtype.UUID, deposit int64, settle bool) (db.Sale, error)
	CreateSaleItem(ctx context.Context, arg db.CreateSaleItemParams) (db.SaleItem, error)
	ListSaleItems(ctx context.Context, saleID pgtype.UUID) ([]db.SaleItem, error)
	DeleteSaleItems(ctx context.Context, saleID pgtype.UUID) error
	InsertPayment(ctx context.Context, arg db.InsertPaymentParams) (db.Payment, error)
	ListPaymentsBySale(ctx context.Context, saleID pgtype.UUID) ([]db.Payment, error)
	CreateCustomer(ctx context.Context, arg db.CreateCustomerParams) (db.Customer, error)
	GetCustomerByID(ctx context.Context, id pgtype.UUID) (db.Customer, error)
	GetCustomerByEmail(ctx context.Context, email string) (db.Customer, error)
	GetCustomerByPhone(ctx context.Context, phone string) (db.Customer, error)
	SearchCustomers(ctx context.Context, term string, limit, offset int32) ([]db.Customer, error)
	CountCustomers(ctx context.Context, term string) (int64, error)
}

// Service creates and maintains made-to-order invoices. Every write runs in
// one transaction; every read recomputes the money summary from the raw rows.
type Service struct {
	Pool   *pgxpool.Pool
	Store  store
	Events *events.Bus
}

// inTx runs fn against a transaction-bound store and commits on success.
// Without a pool the base store is used directly; unit tests rely on that.
func (s *Service) inTx(ctx context.Context, fn func(qtx store) error) error {
	if s.Pool == nil {
		return fn(s.Store)
	}
	tx, err := s.Pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()
	qtx := s.Store
	if base, ok := s.Store.(*db.Store); ok {
		qtx = base.WithTx(tx)
	}
	if err := fn(qtx); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// Create persists a new invoice. The customer upsert, the sale row, the item
// rows and the opening deposit commit or roll back together.
func (s *Service) Create(ctx context.Context, in Input) (View, error) {
	summary, lines, err := s.prepare(in)
	if err != nil {
		return View{}, err
	}
	// The engine clamps an oversized deposit for display; the ledger refuses it.
	if billing.Money(in.DepositAmount) > summary.Total {
		return View{}, ErrOverpayment
	}
	status := db.SaleStatusOngoing
	if summary.Balance == 0 {
		status = db.SaleStatusCompleted
	}
	var (
		sale db.Sale
		cust db.Customer
	)
	err = s.inTx(ctx, func(qtx store) error {
		var err error
		cust, err = (&customer.Service{Store: qtx}).Upsert(ctx, in.Customer)
		if err != nil {
			return err
		}
		sale, err = qtx.CreateSale(ctx, db.CreateSaleParams{
			CustomerID:           cust.ID,
			IsCustom:             true,
			Status:               status,
			PaymentMode:          optionalText(in.PaymentMode),
			SalesPersonID:        cashierText(ctx),
			Total:                int64(summary.Total),
			Deposit:              int64(summary.DepositAmount),
			DeliveryMethod:       optionalText(in.DeliveryMethod),
			DeliveryFee:          in.DeliveryFee,
			DiscountAmount:       in.DiscountAmount,
			TaxInclusive:         in.TaxInclusive,
			ExpectedDeliveryDate: parseDate(in.ExpectedDeliveryDate),
			Notes:                optionalText(in.Notes),
		})
		if err != nil {
			return fmt.Errorf("insert sale: %w", err)
		}
		if err := insertLines(ctx, qtx, sale.ID, lines); err != nil {
			return err
		}
		if summary.DepositAmount > 0 {
			method := in.PaymentMode
			if method == "" {
				method = "cash"
			}
			if _, err := qtx.InsertPayment(ctx, db.InsertPaymentParams{
				SaleID:     sale.ID,
				Amount:     int64(summary.DepositAmount),
				Method:     method,
				ReceivedBy: cashierText(ctx),
			}); err != nil {
				return fmt.Errorf("insert deposit: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return View{}, err
	}

	s.emit(ctx, events.TopicOrderCreated, sale.ID, map[string]any{
		"saleId": db.UUIDString(sale.ID),
		"total":  int64(summary.Total),
	})
	if status == db.SaleStatusCompleted {
		s.emit(ctx, events.TopicOrderCompleted, sale.ID, nil)
	}
	return s.view(sale, cust, saleItemRows(sale.ID, lines), nil, summary), nil
}

// Get loads one invoice and recomputes its summary from the raw rows.
func (s *Service) Get(ctx context.Context, id string) (View, error) {
	uid, err := db.ToUUID(id)
	if err != nil {
		return View{}, badRequest("invalid order id")
	}
	sale, err := s.Store.GetSale(ctx, uid)
	if errors.Is(err, pgx.ErrNoRows) {
		return View{}, notFound(err)
	}
	if err != nil {
		return View{}, err
	}
	return s.load(ctx, sale)
}

// List returns invoices (is_custom only) with recomputed summaries.
func (s *Service) List(ctx context.Context, status string, page, limit int) ([]View, int64, error) {
	if page < 1 {
		page = 1
	}
	if limit < 1 || limit > 100 {
		limit = 20
	}
	isCustom := pgtype.Bool{Bool: true, Valid: true}
	total, err := s.Store.CountSales(ctx, status, isCustom)
	if err != nil {
		return nil, 0, fmt.Errorf("count orders: %w", err)
	}
	sales, err := s.Store.ListSales(ctx, db.ListSalesParams{
		Status:   status,
		IsCustom: isCustom,
		Limit:    int32(limit),
		Offset:   int32((page - 1) * limit),
	})
	if err != nil {
		return nil, 0, fmt.Errorf("list orders: %w", err)
	}
	views := make([]View, 0, len(sales))
	for _, sale := range sales {
		v, err := s.load(ctx, sale)
		if err != nil {
			return nil, 0, err
		}
		views = append(views, v)
	}
	return views, total, nil
}

// Update replaces the lines and modifiers of an ongoing invoice in one
// transaction and recomputes its totals.
func (s *Service) Update(ctx context.Context, id string, in Input) (View, error) {
	uid, err := db.ToUUID(id)
	if err != nil {
		return View{}, badRequest("invalid order id")
	}
	// Deposits are immutable history on update; the stored figure carries over.
	current, err := s.Store.GetSale(ctx, uid)
	if errors.Is(err, pgx.ErrNoRows) {
		return View{}, notFound(err)
	}
	if err != nil {
		return View{}, err
	}
	if current.Status != db.SaleStatusOngoing {
		return View{}, &common.AppError{
			Code:       "CONFLICT",
			Message:    "only ongoing orders can be edited",
			HTTPStatus: http.StatusConflict,
		}
	}
	in.DepositAmount = current.Deposit
	summary, lines, err := s.prepare(in)
	if err != nil {
		return View{}, err
	}
	// An edit may not shrink the total below what the customer already paid;
	// persisting the clamped deposit would silently rewrite the ledger.
	if current.Deposit > int64(summary.Total) {
		return View{}, ErrOverpayment
	}

	var sale db.Sale
	err = s.inTx(ctx, func(qtx store) error {
		if err := qtx.DeleteSaleItems(ctx, uid); err != nil {
			return fmt.Errorf("clear items: %w", err)
		}
		if err := insertLines(ctx, qtx, uid, lines); err != nil {
			return err
		}
		sale, err = qtx.UpdateSaleTotals(ctx, db.UpdateSaleTotalsParams{
			ID:             uid,
			Total:          int64(summary.Total),
			Deposit:        int64(summary.DepositAmount),
			DeliveryFee:    in.DeliveryFee,
			DiscountAmount: in.DiscountAmount,
			TaxInclusive:   in.TaxInclusive,
		})
		if err != nil {
			return fmt.Errorf("update totals: %w", err)
		}
		return nil
	})
	if err != nil {
		return View{}, err
	}

	s.emit(ctx, events.TopicOrderUpdated, sale.ID, map[string]any{
		"saleId": db.UUIDString(sale.ID),
		"total":  int64(summary.Total),
	})
	return s.load(ctx, sale)
}

// Cancel marks an ongoing invoice canceled.
func (s *Service) Cancel(ctx context.Context, id string) (View, error) {
	uid, err := db.ToUUID(id)
	if err != nil {
		return View{}, badRequest("invalid order id")
	}
	sale, err := s.Store.GetSale(ctx, uid)
	if errors.Is(err, pgx.ErrNoRows) {
		return View{}, notFound(err)
	}
	if err != nil {
		return View{}, err
	}
	if sale.Status != db.SaleStatusOngoing {
		return View{}, &common.AppError{
			Code:       "CONFLICT",
			Message:    "only ongoing orders can be canceled",
			HTTPStatus: http.StatusConflict,
		}
	}
	sale, err = s.Store.UpdateSaleStatus(ctx, uid, db.SaleStatusCanceled)
	if err != nil {
		return View{}, fmt.Errorf("cancel order: %w", err)
	}
	s.emit(ctx, events.TopicOrderCanceled, sale.ID, nil)
	return s.load(ctx, sale)
}

// RecordDeposit appends a payment to an ongoing invoice. An amount exceeding
// the outstanding balance is rejected with ErrOverpayment, and a deposit that
// settles the balance completes the order.
func (s *Service) RecordDeposit(ctx context.Context, id string, amount int64, method, reference string) (View, error) {
	if amount <= 0 {
		return View{}, badRequest("deposit amount must be positive")
	}
	uid, err := db.ToUUID(id)
	if err != nil {
		return View{}, badRequest("invalid order id")
	}
	if method == "" {
		method = "cash"
	}

	var (
		sale   db.Sale
		settle bool
	)
	err = s.inTx(ctx, func(qtx store) error {
		var err error
		sale, err = qtx.GetSale(ctx, uid)
		if errors.Is(err, pgx.ErrNoRows) {
			return notFound(err)
		}
		if err != nil {
			return err
		}
		if sale.Status != db.SaleStatusOngoing {
			return &common.AppError{
				Code:       "CONFLICT",
				Message:    "order is not accepting payments",
				HTTPStatus: http.StatusConflict,
			}
		}
		balance := sale.Total - sale.Deposit
		if amount > balance {
			return ErrOverpayment
		}
		newDeposit := sale.Deposit + amount
		settle = newDeposit == sale.Total
		if _, err := qtx.InsertPayment(ctx, db.InsertPaymentParams{
			SaleID:     uid,
			Amount:     amount,
			Method:     method,
			Reference:  optionalText(reference),
			ReceivedBy: cashierText(ctx),
		}); err != nil {
			return fmt.Errorf("insert payment: %w", err)
		}
		sale, err = qtx.UpdateSaleDeposit(ctx, uid, newDeposit, settle)
		if err != nil {
			return fmt.Errorf("update deposit: %w", err)
		}
		return nil
	})
	if err != nil {
		return View{}, err
	}

	s.emit(ctx, events.TopicPaymentRecorded, sale.ID, map[string]any{
		"saleId": db.UUIDString(sale.ID),
		"amount": amount,
		"method": method,
	})
	if settle {
		s.emit(ctx, events.TopicOrderCompleted, sale.ID, nil)
	}
	return s.load(ctx, sale)
}

// prepare validates the payload and computes the summary the write will store.
func (s *Service) prepare(in Input) (billing.Summary, []billing.LineItem, error) {
	lines := make([]billing.LineItem, 0, len(in.Items))
	for i, item := range in.Items {
		desc := strings.TrimSpace(item.Description)
		if desc == "" {
			return billing.Summary{}, nil, badRequest(fmt.Sprintf("items[%d].description is required", i))
		}
		if item.Quantity <= 0 {
			return billing.Summary{}, nil, badRequest(fmt.Sprintf("items[%d].quantity must be positive", i))
		}
		lines = append(lines, billing.LineItem{
			Description: desc,
			Qty:         int64(item.Quantity),
			UnitPrice:   billing.Money(item.UnitPrice),
		})
	}
	summary, err := billing.Compute(lines, billing.Modifiers{
		DeliveryFee:    billing.Money(in.DeliveryFee),
		DiscountAmount: billing.Money(in.DiscountAmount),
		DepositAmount:  billing.Money(in.DepositAmount),
		TaxInclusive:   in.TaxInclusive,
	})
	if err != nil {
		var verr *billing.ValidationError
		if errors.As(err, &verr) {
			return billing.Summary{}, nil, &common.AppError{
				Code:       "VALIDATION",
				Message:    verr.Error(),
				HTTPStatus: http.StatusBadRequest,
				Err:        err,
				Details:    map[string]any{"field": verr.Field},
			}
		}
		return billing.Summary{}, nil, err
	}
	return summary, lines, nil
}

// load assembles a full view, recomputing the summary from the stored rows.
func (s *Service) load(ctx context.Context, sale db.Sale) (View, error) {
	items, err := s.Store.ListSaleItems(ctx, sale.ID)
	if err != nil {
		return View{}, fmt.Errorf("list sale items: %w", err)
	}
	payments, err := s.Store.ListPaymentsBySale(ctx, sale.ID)
	if err != nil {
		return View{}, fmt.Errorf("list payments: %w", err)
	}
	cust, err := s.Store.GetCustomerByID(ctx, sale.CustomerID)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return View{}, fmt.Errorf("load customer: %w", err)
	}
	summary, err := Recompute(sale, items)
	if err != nil {
		return View{}, err
	}
	return s.view(sale, cust, items, payments, summary), nil
}

// Recompute derives the display summary from raw rows. Stored totals are a
// ledger snapshot; presentation always re-derives.
func Recompute(sale db.Sale, items []db.SaleItem) (billing.Summary, error) {
	lines := make([]billing.LineItem, 0, len(items))
	for _, it := range items {
		lines = append(lines, billing.LineItem{
			Description: it.Description,
			Qty:         int64(it.Quantity),
			UnitPrice:   billing.Money(it.UnitPrice),
		})
	}
	return billing.Compute(lines, billing.Modifiers{
		DeliveryFee:    billing.Money(sale.DeliveryFee),
		DiscountAmount: billing.Money(sale.DiscountAmount),
		DepositAmount:  billing.Money(sale.Deposit),
		TaxInclusive:   sale.TaxInclusive,
	})
}

func (s *Service) view(sale db.Sale, cust db.Customer, items []db.SaleItem, payments []db.Payment, summary billing.Summary) View {
	v := View{
		ID:              db.UUIDString(sale.ID),
		ReferenceNumber: sale.ReferenceNumber.String,
		Status:          sale.Status,
		Customer:        customer.ToView(cust),
		Summary:         summary,
		PaymentMode:     sale.PaymentMode.String,
		DeliveryMethod:  sale.DeliveryMethod.String,
		Notes:           sale.Notes.String,
		CreatedAt:       sale.CreatedAt.Time,
	}
	if sale.ExpectedDeliveryDate.Valid {
		v.ExpectedDate = sale.ExpectedDeliveryDate.Time.Format("2006-01-02")
	}
	v.Items = make([]LineView, 0, len(items))
	for _, it := range items {
		v.Items = append(v.Items, LineView{
			Description: it.Description,
			Quantity:    it.Quantity,
			UnitPrice:   it.UnitPrice,
			LineTotal:   int64(it.Quantity) * it.UnitPrice,
		})
	}
	v.Payments = make([]PaymentView, 0, len(payments))
	for _, p := range payments {
		v.Payments = append(v.Payments, PaymentView{
			Amount:     p.Amount,
			Method:     p.Method,
			Reference:  p.Reference.String,
			ReceivedBy: p.ReceivedBy.String,
			ReceivedAt: p.CreatedAt.Time,
		})
	}
	return v
}

func (s *Service) emit(ctx context.Context, topic string, aggregateID pgtype.UUID, payload any) {
	if s.Events == nil {
		return
	}
	_, _ = s.Events.Emit(ctx, topic, aggregateID, payload)
}

func insertLines(ctx context.Context, qtx store, saleID pgtype.UUID, lines []billing.LineItem) error {
	for i, line := range lines {
		if _, err := qtx.CreateSaleItem(ctx, db.CreateSaleItemParams{
			SaleID:      saleID,
			Description: line.Description,
			Quantity:    int32(line.Qty),
			UnitPrice:   int64(line.UnitPrice),
			SortOrder:   int32(i),
		}); err != nil {
			return fmt.Errorf("insert sale item: %w", err)
		}
	}
	return nil
}

func saleItemRows(saleID pgtype.UUID, lines []billing.LineItem) []db.SaleItem {
	rows := make([]db.SaleItem, 0, len(lines))
	for i, line := range lines {
		rows = append(rows, db.SaleItem{
			SaleID:      saleID,
			Description: line.Description,
			Quantity:    int32(line.Qty),
			UnitPrice:   int64(line.UnitPrice),
			SortOrder:   int32(i),
		})
	}
	return rows
}

func cashierText(ctx context.Context) pgtype.Text {
	if id, ok := common.CashierID(ctx); ok && id != "" {
		return pgtype.Text{String: id, Valid: true}
	}
	return pgtype.Text{}
}

func optionalText(v string) pgtype.Text {
	v = strings.TrimSpace(v)
	if v == "" {
		return pgtype.Text{}
	}
	return pgtype.Text{String: v, Valid: true}
}

func parseDate(v string) pgtype.Date {
	v = strings.TrimSpace(v)
	if v == "" {
		return pgtype.Date{}
	}
	t, err := time.Parse("2006-01-02", v)
	if err != nil {
		return pgtype.Date{}
	}
	return pgtype.Date{Time: t, Valid: true}
}

func badRequest(message string) *common.AppError {
	return &common.AppError{Code: "BAD_REQUEST", Message: message, HTTPStatus: http.StatusBadRequest}
}

func notFound(err error) *common.AppError {
	return &common.AppError{Code: "NOT_FOUND", Message: "order not found", HTTPStatus: http.StatusNotFound, Err: err}
}
