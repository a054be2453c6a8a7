package db

import "github.com/jackc/pgx/v5/pgtype"

// Sale statuses. A sale moves ongoing -> completed as deposits cover the
// total; failed marks a checkout whose post-commit confirmation errored.
const (
	SaleStatusOngoing   = "ongoing"
	SaleStatusCompleted = "completed"
	SaleStatusCanceled  = "canceled"
	SaleStatusFailed    = "failed"
)

// Category groups products on the stock screen.
type Category struct {
	ID          pgtype.UUID
	Name        string
	Description pgtype.Text
	CreatedAt   pgtype.Timestamptz
}

// Product is a named product family under a category.
type Product struct {
	ID          pgtype.UUID
	CategoryID  pgtype.UUID
	Name        string
	Description pgtype.Text
	CreatedAt   pgtype.Timestamptz
}

// Item is a sellable stock-keeping unit with a quantity on hand.
type Item struct {
	ID                pgtype.UUID
	ProductID         pgtype.UUID
	Name              string
	SKU               string
	Price             int64
	Quantity          int32
	LowStockThreshold int32
	CreatedAt         pgtype.Timestamptz
	UpdatedAt         pgtype.Timestamptz
}

// Customer is the counterparty on a sale. Either phone or email is always
// present; receipts are delivered to whichever exists.
type Customer struct {
	ID            pgtype.UUID
	Name          string
	CompanyName   pgtype.Text
	CustomerType  string
	AttentionName pgtype.Text
	Phone         pgtype.Text
	Email         pgtype.Text
	Address       pgtype.Text
	CreatedAt     pgtype.Timestamptz
}

// Sale is one invoice: a walk-in POS sale or a made-to-order invoice with a
// running deposit. Totals are stored for the ledger but presentation always
// recomputes them from the raw items and modifiers.
type Sale struct {
	ID                   pgtype.UUID
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
	CreatedAt            pgtype.Timestamptz
	UpdatedAt            pgtype.Timestamptz
}

// SaleItem is one line on a sale. ItemID is set for stocked POS lines and
// empty for made-to-order descriptions.
type SaleItem struct {
	ID          pgtype.UUID
	SaleID      pgtype.UUID
	ItemID      pgtype.UUID
	Description string
	Quantity    int32
	UnitPrice   int64
	SortOrder   int32
}

// Payment is one ledger entry against a sale.
type Payment struct {
	ID         pgtype.UUID
	SaleID     pgtype.UUID
	Amount     int64
	Method     string
	Reference  pgtype.Text
	ReceivedBy pgtype.Text
	CreatedAt  pgtype.Timestamptz
}

// DomainEvent is a persisted fact emitted by the domain services.
type DomainEvent struct {
	ID          pgtype.UUID
	Topic       string
	AggregateID pgtype.UUID
	Payload     []byte
	OccurredAt  pgtype.Timestamptz
}
