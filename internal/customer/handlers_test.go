package customer

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"github.com/anjiru/duka-pos/internal/db"
)

// customersRouter mounts the handler under the same patterns cmd/api uses, so
// the URL parameter name the Get handler reads is exercised end to end.
func customersRouter(h *Handler) chi.Router {
	r := chi.NewRouter()
	r.Route("/api/v1/customers", func(c chi.Router) {
		c.Post("/", h.Create)
		c.Get("/", h.List)
		c.Get("/{customerID}", h.Get)
	})
	return r
}

func TestGetRouteResolvesCustomerID(t *testing.T) {
	store := newFakeStore()
	svc := &Service{Store: store}
	row, err := svc.Upsert(context.Background(), Input{Name: "Wanjiku", Phone: "0712000001"})
	require.NoError(t, err)

	router := customersRouter(&Handler{Svc: svc})
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/v1/customers/"+db.UUIDString(row.ID), nil))
	require.Equal(t, http.StatusOK, rr.Code)

	var body struct {
		Data View `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	require.Equal(t, "Wanjiku", body.Data.Name)
}
