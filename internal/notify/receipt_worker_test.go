package notify

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/anjiru/duka-pos/internal/common"
	"github.com/anjiru/duka-pos/internal/db"
	"github.com/anjiru/duka-pos/internal/lock"
	"github.com/anjiru/duka-pos/internal/queue"
	"github.com/anjiru/duka-pos/internal/receipt"
)

type stubSales struct {
	sale     db.Sale
	items    []db.SaleItem
	customer db.Customer
	missing  bool
}

func (s stubSales) GetSale(context.Context, pgtype.UUID) (db.Sale, error) {
	if s.missing {
		return db.Sale{}, pgx.ErrNoRows
	}
	return s.sale, nil
}

func (s stubSales) ListSaleItems(context.Context, pgtype.UUID) ([]db.SaleItem, error) {
	return s.items, nil
}

func (s stubSales) GetCustomerByID(context.Context, pgtype.UUID) (db.Customer, error) {
	return s.customer, nil
}

func testWorker(t *testing.T, sales saleReader, mail common.EmailSender, client *redis.Client) ReceiptWorker {
	t.Helper()
	renderer, err := receipt.NewRenderer()
	require.NoError(t, err)
	return ReceiptWorker{
		Sales:     sales,
		Renderer:  renderer,
		Mail:      mail,
		Locker:    lock.Locker{R: client},
		StoreName: "Duka Yetu",
	}
}

func completedSale(customerID pgtype.UUID) db.Sale {
	return db.Sale{
		ID:              newID(),
		CustomerID:      customerID,
		ReferenceNumber: pgtype.Text{String: "INV-20260829-007", Valid: true},
		Status:          db.SaleStatusCompleted,
		PaymentMode:     pgtype.Text{String: "cash", Valid: true},
		Total:           2784,
		Deposit:         2784,
		CreatedAt:       pgtype.Timestamptz{Time: time.Now(), Valid: true},
	}
}

func TestReceiptWorkerEmailsCustomer(t *testing.T) {
	customerID := newID()
	sale := completedSale(customerID)
	sales := stubSales{
		sale: sale,
		items: []db.SaleItem{
			{SaleID: sale.ID, Description: "Unga 2kg", Quantity: 2, UnitPrice: 1200},
		},
		customer: db.Customer{
			ID:    customerID,
			Name:  "Wanjiku",
			Email: pgtype.Text{String: "wanjiku@example.com", Valid: true},
		},
	}
	mail := &common.InMemoryEmail{}
	w := testWorker(t, sales, mail, testRedis(t))

	task := queue.Task{Kind: receiptDeliveryTask, Payload: []byte(db.UUIDString(sale.ID))}
	require.NoError(t, w.Handle(context.Background(), task))

	require.Len(t, mail.Outbox, 1)
	sent := mail.Outbox[0]
	require.Equal(t, "wanjiku@example.com", sent.To)
	require.Equal(t, "Your receipt INV-20260829-007", sent.Subject)
	require.Contains(t, sent.HTML, "Unga 2kg")
	require.Contains(t, sent.HTML, "INV-20260829-007")
	require.Contains(t, sent.HTML, "KES 2,784")
}

func TestReceiptWorkerSkipsSalesWithoutEmail(t *testing.T) {
	customerID := newID()
	sale := completedSale(customerID)
	sales := stubSales{
		sale:     sale,
		items:    []db.SaleItem{{SaleID: sale.ID, Description: "Mandazi", Quantity: 1, UnitPrice: 50}},
		customer: db.Customer{ID: customerID, Name: "Walk-in", Phone: pgtype.Text{String: "254700000001", Valid: true}},
	}
	mail := &common.InMemoryEmail{}
	w := testWorker(t, sales, mail, testRedis(t))

	task := queue.Task{Kind: receiptDeliveryTask, Payload: []byte(db.UUIDString(sale.ID))}
	require.NoError(t, w.Handle(context.Background(), task))
	require.Empty(t, mail.Outbox)
}

func TestReceiptWorkerDropsMissingSale(t *testing.T) {
	mail := &common.InMemoryEmail{}
	w := testWorker(t, stubSales{missing: true}, mail, testRedis(t))

	task := queue.Task{Kind: receiptDeliveryTask, Payload: []byte(db.UUIDString(newID()))}
	require.NoError(t, w.Handle(context.Background(), task))
	require.Empty(t, mail.Outbox)
}

func TestAlertNotifierLowStock(t *testing.T) {
	mail := &common.InMemoryEmail{}
	n := AlertNotifier{Mail: mail, Enabled: true, Recipient: "owner@duka.co.ke"}

	event := db.DomainEvent{
		ID:      newID(),
		Topic:   "stock.low",
		Payload: []byte(`{"itemId":"abc","name":"Sukari 1kg","quantity":3}`),
	}
	require.NoError(t, n.Notify(context.Background(), event))
	require.Len(t, mail.Outbox, 1)
	require.Equal(t, "owner@duka.co.ke", mail.Outbox[0].To)
	require.Equal(t, "Low stock: Sukari 1kg", mail.Outbox[0].Subject)
	require.Contains(t, mail.Outbox[0].HTML, "Units remaining: 3")

	n.Enabled = false
	require.NoError(t, n.Notify(context.Background(), event))
	require.Len(t, mail.Outbox, 1)
}
