package inventory

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	validator "github.com/go-playground/validator/v10"

	"github.com/anjiru/duka-pos/internal/common"
	"github.com/anjiru/duka-pos/internal/db"
)

// Handler exposes the stock management API.
type Handler struct {
	Svc      *Service
	Validate *validator.Validate
}

// CreateCategory handles POST /api/v1/categories.
func (h *Handler) CreateCategory(w http.ResponseWriter, r *http.Request) {
	var payload CategoryInput
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid payload", nil)
		return
	}
	if err := h.validate(payload); err != nil {
		common.JSONError(w, http.StatusBadRequest, "VALIDATION", "invalid category", common.ValidationDetails(err))
		return
	}
	row, err := h.Svc.CreateCategory(r.Context(), payload)
	if err != nil {
		h.writeError(w, err)
		return
	}
	common.JSON(w, http.StatusCreated, map[string]any{"data": categoryView(row)})
}

// ListCategories handles GET /api/v1/categories.
func (h *Handler) ListCategories(w http.ResponseWriter, r *http.Request) {
	rows, err := h.Svc.ListCategories(r.Context())
	if err != nil {
		h.writeError(w, err)
		return
	}
	views := make([]map[string]any, 0, len(rows))
	for _, row := range rows {
		views = append(views, categoryView(row))
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": views})
}

// DeleteCategory handles DELETE /api/v1/categories/{id}.
func (h *Handler) DeleteCategory(w http.ResponseWriter, r *http.Request) {
	if err := h.Svc.DeleteCategory(r.Context(), chi.URLParam(r, "categoryID")); err != nil {
		h.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// CreateProduct handles POST /api/v1/products.
func (h *Handler) CreateProduct(w http.ResponseWriter, r *http.Request) {
	var payload ProductInput
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid payload", nil)
		return
	}
	if err := h.validate(payload); err != nil {
		common.JSONError(w, http.StatusBadRequest, "VALIDATION", "invalid product", common.ValidationDetails(err))
		return
	}
	row, err := h.Svc.CreateProduct(r.Context(), payload)
	if err != nil {
		h.writeError(w, err)
		return
	}
	common.JSON(w, http.StatusCreated, map[string]any{"data": productView(row)})
}

// ListProducts handles GET /api/v1/products with ?category= filter.
func (h *Handler) ListProducts(w http.ResponseWriter, r *http.Request) {
	rows, err := h.Svc.ListProducts(r.Context(), r.URL.Query().Get("category"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	views := make([]map[string]any, 0, len(rows))
	for _, row := range rows {
		views = append(views, productView(row))
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": views})
}

// CreateItem handles POST /api/v1/items.
func (h *Handler) CreateItem(w http.ResponseWriter, r *http.Request) {
	var payload ItemInput
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid payload", nil)
		return
	}
	if err := h.validate(payload); err != nil {
		common.JSONError(w, http.StatusBadRequest, "VALIDATION", "invalid item", common.ValidationDetails(err))
		return
	}
	row, err := h.Svc.CreateItem(r.Context(), payload)
	if err != nil {
		h.writeError(w, err)
		return
	}
	common.JSON(w, http.StatusCreated, map[string]any{"data": ToItemView(row)})
}

// GetItem handles GET /api/v1/items/{id}.
func (h *Handler) GetItem(w http.ResponseWriter, r *http.Request) {
	row, err := h.Svc.GetItem(r.Context(), chi.URLParam(r, "itemID"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": ToItemView(row)})
}

// ListItems handles GET /api/v1/items with ?q=, ?page=, ?limit=.
func (h *Handler) ListItems(w http.ResponseWriter, r *http.Request) {
	page, limit := common.ParsePagination(r, 20)
	rows, err := h.Svc.ListItems(r.Context(), r.URL.Query().Get("q"), page, limit)
	if err != nil {
		h.writeError(w, err)
		return
	}
	views := make([]ItemView, 0, len(rows))
	for _, row := range rows {
		views = append(views, ToItemView(row))
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": views})
}

// UpdateItem handles PUT /api/v1/items/{id}.
func (h *Handler) UpdateItem(w http.ResponseWriter, r *http.Request) {
	var payload ItemUpdate
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid payload", nil)
		return
	}
	if err := h.validate(payload); err != nil {
		common.JSONError(w, http.StatusBadRequest, "VALIDATION", "invalid item", common.ValidationDetails(err))
		return
	}
	row, err := h.Svc.UpdateItem(r.Context(), chi.URLParam(r, "itemID"), payload)
	if err != nil {
		h.writeError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": ToItemView(row)})
}

// Restock handles POST /api/v1/items/{id}/restock.
func (h *Handler) Restock(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Delta int32 `json:"delta"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid payload", nil)
		return
	}
	row, err := h.Svc.Restock(r.Context(), chi.URLParam(r, "itemID"), payload.Delta)
	if err != nil {
		h.writeError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": ToItemView(row)})
}

// LowStock handles GET /api/v1/items/low-stock.
func (h *Handler) LowStock(w http.ResponseWriter, r *http.Request) {
	rows, err := h.Svc.LowStock(r.Context())
	if err != nil {
		h.writeError(w, err)
		return
	}
	views := make([]ItemView, 0, len(rows))
	for _, row := range rows {
		views = append(views, ToItemView(row))
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": views})
}

func (h *Handler) validate(v any) error {
	if h.Validate == nil {
		return nil
	}
	return h.Validate.Struct(v)
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	var appErr *common.AppError
	if errors.As(err, &appErr) {
		status := appErr.HTTPStatus
		if status == 0 {
			status = http.StatusInternalServerError
		}
		common.JSONError(w, status, appErr.Code, appErr.Message, appErr.Details)
		return
	}
	common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "internal error", nil)
}

func categoryView(c db.Category) map[string]any {
	return map[string]any{
		"id":          db.UUIDString(c.ID),
		"name":        c.Name,
		"description": c.Description.String,
	}
}

func productView(p db.Product) map[string]any {
	return map[string]any{
		"id":          db.UUIDString(p.ID),
		"categoryId":  db.UUIDString(p.CategoryID),
		"name":        p.Name,
		"description": p.Description.String,
	}
}
