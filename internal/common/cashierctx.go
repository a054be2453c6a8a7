package common

import (
	"context"
	"net/http"
	"strings"
)

type ctxKey string

const cashierIDKey ctxKey = "pos/cashier-id"

// HeaderCashierID carries the identity of the cashier operating the terminal.
// Authentication itself is handled by the managed backend in front of this
// service; we only propagate the identifier for ledger attribution.
const HeaderCashierID = "X-Cashier-ID"

// WithCashierID stores the cashier identifier on the provided context.
func WithCashierID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, cashierIDKey, id)
}

// CashierID extracts the cashier identifier from the context if present.
func CashierID(ctx context.Context) (string, bool) {
	v := ctx.Value(cashierIDKey)
	if v == nil {
		return "", false
	}
	id, ok := v.(string)
	return id, ok && id != ""
}

// CashierMiddleware lifts the cashier header onto the request context.
func CashierMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if id := strings.TrimSpace(r.Header.Get(HeaderCashierID)); id != "" {
			r = r.WithContext(WithCashierID(r.Context(), id))
		}
		next.ServeHTTP(w, r)
	})
}
