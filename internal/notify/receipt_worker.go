package notify

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/rs/zerolog"

	"github.com/anjiru/duka-pos/internal/common"
	"github.com/anjiru/duka-pos/internal/db"
	"github.com/anjiru/duka-pos/internal/lock"
	"github.com/anjiru/duka-pos/internal/obs"
	"github.com/anjiru/duka-pos/internal/order"
	"github.com/anjiru/duka-pos/internal/queue"
	"github.com/anjiru/duka-pos/internal/receipt"
)

type saleReader interface {
	GetSale(ctx context.Context, id pgtype.UUID) (db.Sale, error)
	ListSaleItems(ctx context.Context, saleID pgtype.UUID) ([]db.SaleItem, error)
	GetCustomerByID(ctx context.Context, id pgtype.UUID) (db.Customer, error)
}

// ReceiptWorker renders and emails a receipt for one completed sale. Work is
// wrapped in a distributed lock per sale so overlapping workers never send a
// customer the same receipt twice.
type ReceiptWorker struct {
	Sales     saleReader
	Renderer  *receipt.Renderer
	Mail      common.EmailSender
	Locker    lock.Locker
	LockTTL   time.Duration
	StoreName string
	LogoURL   string
	Logger    zerolog.Logger
}

// Handle processes one receipt-delivery task. The payload is the sale ID.
// Sales without a customer email are skipped rather than retried.
func (w ReceiptWorker) Handle(ctx context.Context, task queue.Task) error {
	if w.Sales == nil || w.Renderer == nil || w.Mail == nil {
		return errors.New("receipt worker: not fully configured")
	}
	raw := strings.TrimSpace(string(task.Payload))
	if raw == "" {
		return nil
	}
	saleID, err := db.ToUUID(raw)
	if err != nil {
		return fmt.Errorf("receipt worker: bad sale id %q: %w", raw, err)
	}
	ttl := w.LockTTL
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	key := fmt.Sprintf("lock:receipt:%s", raw)
	return w.Locker.WithLock(ctx, key, ttl, func(ctx context.Context) error {
		start := time.Now()
		err := w.deliver(ctx, saleID)
		outcome := "delivered"
		if err != nil {
			outcome = "failed"
		}
		if obs.ReceiptDeliveriesTotal != nil {
			obs.ReceiptDeliveriesTotal.WithLabelValues(outcome).Inc()
		}
		if obs.ReceiptDeliveryLatency != nil {
			obs.ReceiptDeliveryLatency.WithLabelValues(outcome).Observe(float64(time.Since(start).Milliseconds()))
		}
		return err
	})
}

func (w ReceiptWorker) deliver(ctx context.Context, saleID pgtype.UUID) error {
	sale, err := w.Sales.GetSale(ctx, saleID)
	if errors.Is(err, pgx.ErrNoRows) {
		w.Logger.Warn().Str("sale_id", db.UUIDString(saleID)).Msg("receipt delivery: sale not found, dropping")
		return nil
	}
	if err != nil {
		return fmt.Errorf("receipt worker: load sale: %w", err)
	}
	if !sale.CustomerID.Valid {
		w.Logger.Warn().Str("sale_id", db.UUIDString(saleID)).Msg("receipt skipped, sale has no customer")
		return nil
	}
	customer, err := w.Sales.GetCustomerByID(ctx, sale.CustomerID)
	if err != nil {
		return fmt.Errorf("receipt worker: load customer: %w", err)
	}
	to := strings.TrimSpace(customer.Email.String)
	if to == "" {
		w.Logger.Warn().Str("sale_id", db.UUIDString(saleID)).Msg("receipt skipped, customer has no email")
		return nil
	}
	items, err := w.Sales.ListSaleItems(ctx, saleID)
	if err != nil {
		return fmt.Errorf("receipt worker: load items: %w", err)
	}
	summary, err := order.Recompute(sale, items)
	if err != nil {
		return fmt.Errorf("receipt worker: recompute sale %s: %w", db.UUIDString(saleID), err)
	}
	lines := make([]receipt.Line, 0, len(items))
	for _, item := range items {
		lines = append(lines, receipt.Line{
			Description: item.Description,
			Quantity:    item.Quantity,
			UnitPrice:   item.UnitPrice,
			LineTotal:   int64(item.Quantity) * item.UnitPrice,
		})
	}
	html, err := w.Renderer.Render(receipt.Data{
		StoreName:    w.StoreName,
		LogoURL:      w.LogoURL,
		Reference:    sale.ReferenceNumber.String,
		IssuedAt:     sale.CreatedAt.Time,
		CustomerName: customer.Name,
		Contact:      to,
		ServedBy:     sale.SalesPersonID.String,
		PaymentMode:  sale.PaymentMode.String,
		Items:        lines,
		Summary:      summary,
		Notes:        sale.Notes.String,
	})
	if err != nil {
		return fmt.Errorf("receipt worker: render: %w", err)
	}
	subject := "Your receipt"
	if ref := strings.TrimSpace(sale.ReferenceNumber.String); ref != "" {
		subject = fmt.Sprintf("Your receipt %s", ref)
	}
	if err := w.Mail.Send(to, subject, html); err != nil {
		return fmt.Errorf("receipt worker: send: %w", err)
	}
	w.Logger.Info().
		Str("sale_id", db.UUIDString(saleID)).
		Str("reference", sale.ReferenceNumber.String).
		Msg("receipt emailed")
	return nil
}
