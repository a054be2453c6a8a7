// Package gateway talks to the external payment collectors. The providers are
// collaborators only: they are handed an amount and a reference and report a
// status; settlement and reconciliation stay on the provider side.
package gateway

import "context"

// Charge statuses reported by providers.
const (
	StatusPending   = "pending"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

// ChargeRequest asks a provider to collect an amount against a reference.
type ChargeRequest struct {
	Amount    int64
	Reference string
	Phone     string
	Email     string
}

// ChargeResult is the provider's acknowledgement of a charge request.
type ChargeResult struct {
	Status     string
	ProviderID string
}

// Provider is a payment collector.
type Provider interface {
	Charge(ctx context.Context, req ChargeRequest) (ChargeResult, error)
}

// Nop acknowledges every charge as completed. Used for cash-only deployments
// and in tests.
type Nop struct{}

func (Nop) Charge(context.Context, ChargeRequest) (ChargeResult, error) {
	return ChargeResult{Status: StatusCompleted}, nil
}
