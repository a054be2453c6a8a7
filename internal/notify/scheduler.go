// Package notify delivers receipts and operational alerts for completed
// sales. Delivery runs asynchronously through the redis queue so checkout
// latency never depends on the mail provider.
package notify

import (
	"context"

	"github.com/anjiru/duka-pos/internal/db"
	"github.com/anjiru/duka-pos/internal/events"
	"github.com/anjiru/duka-pos/internal/queue"
)

const receiptDeliveryTask = "receipt-delivery"

// Scheduler enqueues receipt delivery work for completed sales. It implements
// events.DeliveryScheduler and ignores every other topic.
type Scheduler struct {
	Queue       queue.Enqueuer
	MaxAttempts int
}

// Schedule publishes a receipt-delivery task keyed by the event ID so the same
// completion event is delivered at most once.
func (s Scheduler) Schedule(ctx context.Context, event db.DomainEvent) error {
	switch event.Topic {
	case events.TopicSaleCompleted, events.TopicOrderCompleted:
	default:
		return nil
	}
	if s.Queue.R == nil {
		return nil
	}
	saleID := db.UUIDString(event.AggregateID)
	if saleID == "" {
		return nil
	}
	maxAttempts := s.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 6
	}
	return s.Queue.Enqueue(ctx, queue.Task{
		Kind:           receiptDeliveryTask,
		Payload:        []byte(saleID),
		IdempotencyKey: db.UUIDString(event.ID),
		MaxAttempts:    maxAttempts,
	})
}

// ReceiptDeliveryTask returns the queue kind consumed by the receipt worker.
func ReceiptDeliveryTask() string {
	return receiptDeliveryTask
}
