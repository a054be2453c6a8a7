package pos

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
	"github.com/anjiru/duka-pos/internal/gateway"
	"github.com/anjiru/duka-pos/internal/inventory"
	"github.com/anjiru/duka-pos/internal/lock"
	"github.com/anjiru/duka-pos/internal/obs"
	"github.com/anjiru/duka-pos/internal/order"
)

// CartLine is one stocked item in a checkout request.
type CartLine struct {
	ItemID   string `json:"itemId" validate:"required,uuid"`
	Quantity int32  `json:"quantity" validate:"gt=0"`
}

// Input is the checkout payload.
type Input struct {
	Customer       customer.Input `json:"customer" validate:"required"`
	Items          []CartLine     `json:"items" validate:"required,min=1,dive"`
	DiscountAmount int64          `json:"discountAmount" validate:"gte=0"`
	DeliveryFee    int64          `json:"deliveryFee" validate:"gte=0"`
	TaxInclusive   bool           `json:"taxInclusive"`
	PaymentMode    string         `json:"paymentMode" validate:"required,oneof=cash mpesa card"`
	Reference      string         `json:"reference" validate:"omitempty,max=100"`
	Notes          string         `json:"notes" validate:"omitempty,max=2000"`
}

// Result is the checkout response: the completed sale plus its summary.
type Result struct {
	SaleID          string           `json:"saleId"`
	ReferenceNumber string           `json:"referenceNumber"`
	Status          string           `json:"status"`
	Customer        customer.View    `json:"customer"`
	Items           []order.LineView `json:"items"`
	Summary         billing.Summary  `json:"summary"`
	PaymentMode     string           `json:"paymentMode"`
	GatewayStatus   string           `json:"gatewayStatus,omitempty"`
	CreatedAt       time.Time        `json:"createdAt"`
}

// store is the slice of the data layer checkout touches. *db.Store satisfies
// it; tests supply an in-memory fake. The customer lookups are included so the
// upsert runs inside the checkout transaction.
type store interface {
	CountSalesForDay(ctx context.Context, day time.Time) (int64, error)
	DeductStock(ctx context.Context, id pgtype.UUID, quantity int32) (db.Item, error)
	CreateSale(ctx context.Context, arg db.CreateSaleParams) (db.Sale, error)
	CreateSaleItem(ctx context.Context, arg db.CreateSaleItemParams) (db.SaleItem, error)
	InsertPayment(ctx context.Context, arg db.InsertPaymentParams) (db.Payment, error)
	UpdateSaleStatus(ctx context.Context, id pgtype.UUID, status string) (db.Sale, error)
	CreateCustomer(ctx context.Context, arg db.CreateCustomerParams) (db.Customer, error)
	GetCustomerByID(ctx context.Context, id pgtype.UUID) (db.Customer, error)
	GetCustomerByEmail(ctx context.Context, email string) (db.Customer, error)
	GetCustomerByPhone(ctx context.Context, phone string) (db.Customer, error)
	SearchCustomers(ctx context.Context, term string, limit, offset int32) ([]db.Customer, error)
	CountCustomers(ctx context.Context, term string) (int64, error)
}

// Service runs walk-in checkouts: a cash sale is paid in full at the counter,
// deducts stock immediately and gets a same-day invoice reference.
type Service struct {
	Pool      *pgxpool.Pool
	Store     store
	Inventory *inventory.Service
	Events    *events.Bus
	Locker    lock.Locker
	Gateway   gateway.Provider
	LockTTL   time.Duration
	Now       func() time.Time
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

// Checkout performs the whole sale in one transaction: customer upsert,
// reference allocation, sale insert, stock deduction per line, sale items and
// the full payment. Any failure rolls everything back. A gateway confirmation
// failure after commit marks the sale failed rather than losing the ledger row.
func (s *Service) Checkout(ctx context.Context, in Input) (Result, error) {
	if err := s.validate(&in); err != nil {
		return Result{}, err
	}

	now := s.clock()
	day := dayStart(now)

	var (
		sale      db.Sale
		cust      db.Customer
		saleItems []db.SaleItem
		summary   billing.Summary
	)
	lockTTL := s.LockTTL
	if lockTTL <= 0 {
		lockTTL = 10 * time.Second
	}
	// The lock spans the count and the insert so the daily sequence is never
	// allocated twice.
	err := s.Locker.WithLock(ctx, referenceLockKey(day), lockTTL, func(ctx context.Context) error {
		return s.inTx(ctx, func(qtx store) error {
			var err error
			cust, err = (&customer.Service{Store: qtx}).Upsert(ctx, in.Customer)
			if err != nil {
				return err
			}

			soFar, err := qtx.CountSalesForDay(ctx, day)
			if err != nil {
				return fmt.Errorf("count sales for day: %w", err)
			}
			reference := ReferenceFor(day, soFar+1)

			lines := make([]billing.LineItem, 0, len(in.Items))
			saleItems = saleItems[:0]
			for i, cartLine := range in.Items {
				itemID, err := db.ToUUID(cartLine.ItemID)
				if err != nil {
					return badRequest(fmt.Sprintf("items[%d].itemId is invalid", i))
				}
				item, err := qtx.DeductStock(ctx, itemID, cartLine.Quantity)
				if errors.Is(err, pgx.ErrNoRows) {
					return &common.AppError{
						Code:       "ITEM_NOT_FOUND",
						Message:    "unknown item in cart",
						HTTPStatus: http.StatusNotFound,
						Err:        err,
						Details:    map[string]any{"itemId": cartLine.ItemID},
					}
				}
				if errors.Is(err, db.ErrInsufficientStock) {
					if obs.StockDeductionConflicts != nil {
						obs.StockDeductionConflicts.Inc()
					}
					return &common.AppError{
						Code:       "OUT_OF_STOCK",
						Message:    "insufficient stock for one or more items",
						HTTPStatus: http.StatusConflict,
						Err:        err,
						Details:    map[string]any{"itemId": cartLine.ItemID},
					}
				}
				if err != nil {
					return fmt.Errorf("deduct stock: %w", err)
				}
				lines = append(lines, billing.LineItem{
					Description: item.Name,
					Qty:         int64(cartLine.Quantity),
					UnitPrice:   billing.Money(item.Price),
				})
				saleItems = append(saleItems, db.SaleItem{
					ItemID:      itemID,
					Description: item.Name,
					Quantity:    cartLine.Quantity,
					UnitPrice:   item.Price,
					SortOrder:   int32(i),
				})
			}

			summary, err = billing.Compute(lines, billing.Modifiers{
				DeliveryFee:    billing.Money(in.DeliveryFee),
				DiscountAmount: billing.Money(in.DiscountAmount),
				TaxInclusive:   in.TaxInclusive,
			})
			if err != nil {
				return err
			}
			// A counter sale is settled in full at checkout.
			summary.DepositAmount = summary.Total
			summary.Balance = 0

			sale, err = qtx.CreateSale(ctx, db.CreateSaleParams{
				CustomerID:      cust.ID,
				ReferenceNumber: pgtype.Text{String: reference, Valid: true},
				Status:          db.SaleStatusCompleted,
				PaymentMode:     pgtype.Text{String: in.PaymentMode, Valid: true},
				SalesPersonID:   cashierText(ctx),
				Total:           int64(summary.Total),
				Deposit:         int64(summary.Total),
				DeliveryFee:     in.DeliveryFee,
				DiscountAmount:  in.DiscountAmount,
				TaxInclusive:    in.TaxInclusive,
				Notes:           optionalText(in.Notes),
			})
			if err != nil {
				return fmt.Errorf("insert sale: %w", err)
			}
			for i := range saleItems {
				saleItems[i].SaleID = sale.ID
				if _, err := qtx.CreateSaleItem(ctx, db.CreateSaleItemParams{
					SaleID:      sale.ID,
					ItemID:      saleItems[i].ItemID,
					Description: saleItems[i].Description,
					Quantity:    saleItems[i].Quantity,
					UnitPrice:   saleItems[i].UnitPrice,
					SortOrder:   saleItems[i].SortOrder,
				}); err != nil {
					return fmt.Errorf("insert sale item: %w", err)
				}
			}
			if summary.Total > 0 {
				if _, err := qtx.InsertPayment(ctx, db.InsertPaymentParams{
					SaleID:     sale.ID,
					Amount:     int64(summary.Total),
					Method:     in.PaymentMode,
					Reference:  optionalText(in.Reference),
					ReceivedBy: cashierText(ctx),
				}); err != nil {
					return fmt.Errorf("insert payment: %w", err)
				}
			}
			return nil
		})
	})
	if err != nil {
		if obs.CheckoutTotal != nil {
			obs.CheckoutTotal.WithLabelValues(in.PaymentMode, "failed").Inc()
		}
		return Result{}, err
	}
	if obs.CheckoutTotal != nil {
		obs.CheckoutTotal.WithLabelValues(in.PaymentMode, "completed").Inc()
	}

	if s.Inventory != nil {
		s.Inventory.InvalidateCaches(ctx)
	}

	result := Result{
		SaleID:          db.UUIDString(sale.ID),
		ReferenceNumber: sale.ReferenceNumber.String,
		Status:          sale.Status,
		Customer:        customer.ToView(cust),
		Summary:         summary,
		PaymentMode:     in.PaymentMode,
		CreatedAt:       sale.CreatedAt.Time,
	}
	result.Items = make([]order.LineView, 0, len(saleItems))
	for _, it := range saleItems {
		result.Items = append(result.Items, order.LineView{
			Description: it.Description,
			Quantity:    it.Quantity,
			UnitPrice:   it.UnitPrice,
			LineTotal:   int64(it.Quantity) * it.UnitPrice,
		})
	}

	// Electronic payments are confirmed after the ledger commit; a gateway
	// error flips the sale to failed instead of dropping the record.
	if in.PaymentMode != "cash" && s.Gateway != nil && summary.Total > 0 {
		charge, chargeErr := s.Gateway.Charge(ctx, gateway.ChargeRequest{
			Amount:    int64(summary.Total),
			Reference: sale.ReferenceNumber.String,
			Phone:     cust.Phone.String,
		})
		if obs.GatewayChargeTotal != nil {
			outcome := charge.Status
			if chargeErr != nil {
				outcome = "error"
			}
			obs.GatewayChargeTotal.WithLabelValues(in.PaymentMode, outcome).Inc()
		}
		if chargeErr != nil || charge.Status == gateway.StatusFailed {
			if failed, markErr := s.Store.UpdateSaleStatus(ctx, sale.ID, db.SaleStatusFailed); markErr == nil {
				sale = failed
			}
			result.Status = db.SaleStatusFailed
			result.GatewayStatus = gateway.StatusFailed
			if chargeErr != nil {
				return result, fmt.Errorf("gateway charge: %w", chargeErr)
			}
			return result, &common.AppError{
				Code:       "PAYMENT_FAILED",
				Message:    "payment gateway declined the charge",
				HTTPStatus: http.StatusBadGateway,
			}
		}
		result.GatewayStatus = charge.Status
	}

	s.emit(ctx, events.TopicSaleCompleted, sale.ID, map[string]any{
		"saleId":    db.UUIDString(sale.ID),
		"reference": sale.ReferenceNumber.String,
		"total":     int64(summary.Total),
	})
	s.emitLowStockAlerts(ctx)
	return result, nil
}

func (s *Service) validate(in *Input) error {
	if len(in.Items) == 0 {
		return badRequest("at least one item is required")
	}
	in.PaymentMode = strings.ToLower(strings.TrimSpace(in.PaymentMode))
	in.Reference = strings.TrimSpace(in.Reference)
	switch in.PaymentMode {
	case "cash":
	case "mpesa", "card":
		if in.Reference == "" {
			return badRequest("reference is required for non-cash payments")
		}
	default:
		return badRequest("payment mode must be cash, mpesa or card")
	}
	if in.DiscountAmount < 0 || in.DeliveryFee < 0 {
		return badRequest("discount and delivery fee must be non-negative")
	}
	return nil
}

// emitLowStockAlerts raises stock.low for items the checkout pushed under
// their threshold.
func (s *Service) emitLowStockAlerts(ctx context.Context) {
	if s.Events == nil || s.Inventory == nil {
		return
	}
	low, err := s.Inventory.LowStock(ctx)
	if err != nil {
		return
	}
	for _, item := range low {
		if obs.LowStockAlertsTotal != nil {
			obs.LowStockAlertsTotal.Inc()
		}
		_, _ = s.Events.Emit(ctx, events.TopicStockLow, item.ID, map[string]any{
			"itemId":   db.UUIDString(item.ID),
			"name":     item.Name,
			"quantity": item.Quantity,
		})
	}
}

func (s *Service) emit(ctx context.Context, topic string, aggregateID pgtype.UUID, payload any) {
	if s.Events == nil {
		return
	}
	_, _ = s.Events.Emit(ctx, topic, aggregateID, payload)
}

func (s *Service) clock() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
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

func badRequest(message string) *common.AppError {
	return &common.AppError{Code: "BAD_REQUEST", Message: message, HTTPStatus: http.StatusBadRequest}
}
