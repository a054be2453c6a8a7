package order

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"
)

// ordersRouter mounts the handler under the same patterns cmd/api uses, so
// the URL parameter names the handlers read are exercised end to end.
func ordersRouter(h *Handler) chi.Router {
	r := chi.NewRouter()
	r.Route("/api/v1/orders", func(o chi.Router) {
		o.Post("/", h.Create)
		o.Get("/", h.List)
		o.Get("/{orderID}", h.Get)
		o.Put("/{orderID}", h.Update)
		o.Post("/{orderID}/cancel", h.Cancel)
		o.Post("/{orderID}/payments", h.RecordDeposit)
	})
	return r
}

func TestGetRouteResolvesOrderID(t *testing.T) {
	store := newFakeStore()
	svc := &Service{Store: store}
	created, err := svc.Create(context.Background(), invoiceInput(
		[]LineInput{{Description: "Dining table", Quantity: 1, UnitPrice: 1000}}, 0))
	require.NoError(t, err)

	router := ordersRouter(&Handler{Svc: svc})
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/v1/orders/"+created.ID, nil))
	require.Equal(t, http.StatusOK, rr.Code)

	var body struct {
		Data View `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	require.Equal(t, created.ID, body.Data.ID)
}

func TestPaymentsRouteResolvesOrderID(t *testing.T) {
	store := newFakeStore()
	svc := &Service{Store: store}
	created, err := svc.Create(context.Background(), invoiceInput(
		[]LineInput{{Description: "Dining table", Quantity: 1, UnitPrice: 1000}}, 500))
	require.NoError(t, err)

	router := ordersRouter(&Handler{Svc: svc})
	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/orders/"+created.ID+"/payments",
		strings.NewReader(`{"amount":100,"method":"cash"}`))
	router.ServeHTTP(rr, req)
	require.Equal(t, http.StatusOK, rr.Code)
	require.Len(t, store.payments, 2)
}

func TestCancelRouteResolvesOrderID(t *testing.T) {
	store := newFakeStore()
	svc := &Service{Store: store}
	created, err := svc.Create(context.Background(), invoiceInput(
		[]LineInput{{Description: "Stool", Quantity: 1, UnitPrice: 500}}, 0))
	require.NoError(t, err)

	router := ordersRouter(&Handler{Svc: svc})
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/api/v1/orders/"+created.ID+"/cancel", nil))
	require.Equal(t, http.StatusOK, rr.Code)
}
