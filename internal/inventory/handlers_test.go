package inventory

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"github.com/anjiru/duka-pos/internal/db"
)

// stockRouter mounts the handler under the same patterns cmd/api uses, so
// the URL parameter names the handlers read are exercised end to end.
func stockRouter(h *Handler) chi.Router {
	r := chi.NewRouter()
	r.Route("/api/v1", func(api chi.Router) {
		api.Route("/categories", func(c chi.Router) {
			c.Post("/", h.CreateCategory)
			c.Get("/", h.ListCategories)
			c.Delete("/{categoryID}", h.DeleteCategory)
		})
		api.Route("/items", func(i chi.Router) {
			i.Post("/", h.CreateItem)
			i.Get("/", h.ListItems)
			i.Get("/{itemID}", h.GetItem)
			i.Patch("/{itemID}", h.UpdateItem)
			i.Post("/{itemID}/restock", h.Restock)
		})
	})
	return r
}

func TestItemRoutesResolveItemID(t *testing.T) {
	store := newFakeStore()
	svc := &Service{Store: store}
	it, err := svc.CreateItem(context.Background(), ItemInput{Name: "Chair", Price: 2500, Quantity: 2})
	require.NoError(t, err)
	id := db.UUIDString(it.ID)

	router := stockRouter(&Handler{Svc: svc})

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/v1/items/"+id, nil))
	require.Equal(t, http.StatusOK, rr.Code)

	var body struct {
		Data ItemView `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	require.Equal(t, "Chair", body.Data.Name)

	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/api/v1/items/"+id+"/restock",
		strings.NewReader(`{"delta":3}`)))
	require.Equal(t, http.StatusOK, rr.Code)
	require.Equal(t, int32(5), store.items[it.ID].Quantity)
}

func TestCategoryRouteResolvesCategoryID(t *testing.T) {
	store := newFakeStore()
	svc := &Service{Store: store}
	cat, err := svc.CreateCategory(context.Background(), CategoryInput{Name: "Furniture"})
	require.NoError(t, err)

	router := stockRouter(&Handler{Svc: svc})
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodDelete, "/api/v1/categories/"+db.UUIDString(cat.ID), nil))
	require.Equal(t, http.StatusNoContent, rr.Code)
}
