package events

// Topic constants for domain events emitted by the store.
const (
	TopicSaleCompleted   = "sale.completed"
	TopicOrderCreated    = "order.created"
	TopicOrderUpdated    = "order.updated"
	TopicOrderCompleted  = "order.completed"
	TopicOrderCanceled   = "order.canceled"
	TopicPaymentRecorded = "payment.recorded"
	TopicStockLow        = "stock.low"
)

// DefaultTopics returns the canonical list of topics that support notifications.
func DefaultTopics() []string {
	return []string{
		TopicSaleCompleted,
		TopicOrderCreated,
		TopicOrderUpdated,
		TopicOrderCompleted,
		TopicOrderCanceled,
		TopicPaymentRecorded,
		TopicStockLow,
	}
}
