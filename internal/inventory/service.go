package inventory

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/anjiru/duka-pos/internal/common"
	"github.com/anjiru/duka-pos/internal/db"
)

type store interface {
	CreateCategory(ctx context.Context, name string, description pgtype.Text) (db.Category, error)
	ListCategories(ctx context.Context) ([]db.Category, error)
	DeleteCategory(ctx context.Context, id pgtype.UUID) error
	CreateProduct(ctx context.Context, categoryID pgtype.UUID, name string, description pgtype.Text) (db.Product, error)
	ListProducts(ctx context.Context, categoryID pgtype.UUID) ([]db.Product, error)
	CreateItem(ctx context.Context, arg db.CreateItemParams) (db.Item, error)
	GetItem(ctx context.Context, id pgtype.UUID) (db.Item, error)
	ListItems(ctx context.Context, term string, limit, offset int32) ([]db.Item, error)
	UpdateItem(ctx context.Context, arg db.UpdateItemParams) (db.Item, error)
	AdjustStock(ctx context.Context, id pgtype.UUID, delta int32) (db.Item, error)
	ListLowStockItems(ctx context.Context) ([]db.Item, error)
}

// Service manages the stock catalog: categories, products and sellable items.
type Service struct {
	Store store
	Cache *Cache
}

const (
	lowStockCacheKey = "inventory:items:lowstock"
	itemsCacheKey    = "inventory:items:first-page"
)

// CategoryInput is the payload for creating a category.
type CategoryInput struct {
	Name        string `json:"name" validate:"required,min=1,max=120"`
	Description string `json:"description" validate:"omitempty,max=500"`
}

// ProductInput is the payload for creating a product.
type ProductInput struct {
	CategoryID  string `json:"categoryId" validate:"omitempty,uuid"`
	Name        string `json:"name" validate:"required,min=1,max=200"`
	Description string `json:"description" validate:"omitempty,max=500"`
}

// ItemInput is the payload for creating a sellable item.
type ItemInput struct {
	ProductID         string `json:"productId" validate:"omitempty,uuid"`
	SKU               string `json:"sku" validate:"omitempty,max=64"`
	Name              string `json:"name" validate:"required,min=1,max=200"`
	Price             int64  `json:"price" validate:"gte=0"`
	Quantity          int32  `json:"quantity" validate:"gte=0"`
	LowStockThreshold int32  `json:"lowStockThreshold" validate:"gte=0"`
}

// ItemUpdate is the payload for updating an item.
type ItemUpdate struct {
	Name              string `json:"name" validate:"required,min=1,max=200"`
	Price             int64  `json:"price" validate:"gte=0"`
	LowStockThreshold int32  `json:"lowStockThreshold" validate:"gte=0"`
}

// ItemView is the item payload returned by the API.
type ItemView struct {
	ID                string `json:"id"`
	ProductID         string `json:"productId,omitempty"`
	SKU               string `json:"sku,omitempty"`
	Name              string `json:"name"`
	Price             int64  `json:"price"`
	Quantity          int32  `json:"quantity"`
	LowStockThreshold int32  `json:"lowStockThreshold"`
	LowStock          bool   `json:"lowStock"`
}

// CreateCategory registers a category.
func (s *Service) CreateCategory(ctx context.Context, in CategoryInput) (db.Category, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return db.Category{}, badRequest("name", "category name is required")
	}
	return s.Store.CreateCategory(ctx, name, optionalText(in.Description))
}

// ListCategories returns all categories.
func (s *Service) ListCategories(ctx context.Context) ([]db.Category, error) {
	return s.Store.ListCategories(ctx)
}

// DeleteCategory drops a category, leaving its products uncategorised.
func (s *Service) DeleteCategory(ctx context.Context, id string) error {
	uid, err := db.ToUUID(id)
	if err != nil {
		return badRequest("id", "invalid category id")
	}
	return s.Store.DeleteCategory(ctx, uid)
}

// CreateProduct registers a product, optionally under a category.
func (s *Service) CreateProduct(ctx context.Context, in ProductInput) (db.Product, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return db.Product{}, badRequest("name", "product name is required")
	}
	var categoryID pgtype.UUID
	if in.CategoryID != "" {
		var err error
		categoryID, err = db.ToUUID(in.CategoryID)
		if err != nil {
			return db.Product{}, badRequest("categoryId", "invalid category id")
		}
	}
	return s.Store.CreateProduct(ctx, categoryID, name, optionalText(in.Description))
}

// ListProducts returns products, optionally filtered by category.
func (s *Service) ListProducts(ctx context.Context, categoryID string) ([]db.Product, error) {
	var cid pgtype.UUID
	if categoryID != "" {
		var err error
		cid, err = db.ToUUID(categoryID)
		if err != nil {
			return nil, badRequest("category", "invalid category id")
		}
	}
	return s.Store.ListProducts(ctx, cid)
}

// CreateItem registers a sellable item with an opening quantity.
func (s *Service) CreateItem(ctx context.Context, in ItemInput) (db.Item, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return db.Item{}, badRequest("name", "item name is required")
	}
	if in.Price < 0 || in.Quantity < 0 || in.LowStockThreshold < 0 {
		return db.Item{}, badRequest("item", "price, quantity and threshold must be non-negative")
	}
	var productID pgtype.UUID
	if in.ProductID != "" {
		var err error
		productID, err = db.ToUUID(in.ProductID)
		if err != nil {
			return db.Item{}, badRequest("productId", "invalid product id")
		}
	}
	item, err := s.Store.CreateItem(ctx, db.CreateItemParams{
		ProductID:         productID,
		SKU:               optionalText(strings.TrimSpace(in.SKU)),
		Name:              name,
		Price:             in.Price,
		Quantity:          in.Quantity,
		LowStockThreshold: in.LowStockThreshold,
	})
	if err != nil {
		return db.Item{}, fmt.Errorf("create item: %w", err)
	}
	s.Cache.Invalidate(ctx, itemsCacheKey, lowStockCacheKey)
	return item, nil
}

// GetItem loads one item.
func (s *Service) GetItem(ctx context.Context, id string) (db.Item, error) {
	uid, err := db.ToUUID(id)
	if err != nil {
		return db.Item{}, badRequest("id", "invalid item id")
	}
	item, err := s.Store.GetItem(ctx, uid)
	if errors.Is(err, pgx.ErrNoRows) {
		return db.Item{}, &common.AppError{Code: "NOT_FOUND", Message: "item not found", HTTPStatus: http.StatusNotFound, Err: err}
	}
	return item, err
}

// ListItems returns items matching the search term. The unfiltered first page
// is served from Redis when possible.
func (s *Service) ListItems(ctx context.Context, term string, page, limit int) ([]db.Item, error) {
	if page < 1 {
		page = 1
	}
	if limit < 1 || limit > 200 {
		limit = 50
	}
	term = strings.TrimSpace(term)
	useCache := term == "" && page == 1 && limit == 50
	if useCache {
		var cached []db.Item
		if ok, err := s.Cache.GetJSON(ctx, itemsCacheKey, &cached); err == nil && ok {
			return cached, nil
		}
	}
	items, err := s.Store.ListItems(ctx, term, int32(limit), int32((page-1)*limit))
	if err != nil {
		return nil, fmt.Errorf("list items: %w", err)
	}
	if useCache {
		_ = s.Cache.SetJSON(ctx, itemsCacheKey, items)
	}
	return items, nil
}

// UpdateItem updates name, price and threshold.
func (s *Service) UpdateItem(ctx context.Context, id string, in ItemUpdate) (db.Item, error) {
	uid, err := db.ToUUID(id)
	if err != nil {
		return db.Item{}, badRequest("id", "invalid item id")
	}
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return db.Item{}, badRequest("name", "item name is required")
	}
	if in.Price < 0 || in.LowStockThreshold < 0 {
		return db.Item{}, badRequest("item", "price and threshold must be non-negative")
	}
	item, err := s.Store.UpdateItem(ctx, db.UpdateItemParams{
		ID:                uid,
		Name:              name,
		Price:             in.Price,
		LowStockThreshold: in.LowStockThreshold,
	})
	if errors.Is(err, pgx.ErrNoRows) {
		return db.Item{}, &common.AppError{Code: "NOT_FOUND", Message: "item not found", HTTPStatus: http.StatusNotFound, Err: err}
	}
	if err != nil {
		return db.Item{}, fmt.Errorf("update item: %w", err)
	}
	s.Cache.Invalidate(ctx, itemsCacheKey, lowStockCacheKey)
	return item, nil
}

// Restock adds delta units to an item.
func (s *Service) Restock(ctx context.Context, id string, delta int32) (db.Item, error) {
	if delta == 0 {
		return db.Item{}, badRequest("delta", "adjustment must be non-zero")
	}
	uid, err := db.ToUUID(id)
	if err != nil {
		return db.Item{}, badRequest("id", "invalid item id")
	}
	item, err := s.Store.AdjustStock(ctx, uid, delta)
	if errors.Is(err, pgx.ErrNoRows) {
		return db.Item{}, &common.AppError{Code: "NOT_FOUND", Message: "item not found", HTTPStatus: http.StatusNotFound, Err: err}
	}
	if err != nil {
		return db.Item{}, fmt.Errorf("adjust stock: %w", err)
	}
	s.Cache.Invalidate(ctx, itemsCacheKey, lowStockCacheKey)
	return item, nil
}

// LowStock lists items at or below their threshold, cached briefly.
func (s *Service) LowStock(ctx context.Context) ([]db.Item, error) {
	var cached []db.Item
	if ok, err := s.Cache.GetJSON(ctx, lowStockCacheKey, &cached); err == nil && ok {
		return cached, nil
	}
	items, err := s.Store.ListLowStockItems(ctx)
	if err != nil {
		return nil, fmt.Errorf("list low stock: %w", err)
	}
	_ = s.Cache.SetJSON(ctx, lowStockCacheKey, items)
	return items, nil
}

// InvalidateCaches drops the listing caches, used after checkout deductions.
func (s *Service) InvalidateCaches(ctx context.Context) {
	s.Cache.Invalidate(ctx, itemsCacheKey, lowStockCacheKey)
}

// ToItemView maps the stored row to the API payload.
func ToItemView(it db.Item) ItemView {
	return ItemView{
		ID:                db.UUIDString(it.ID),
		ProductID:         db.UUIDString(it.ProductID),
		SKU:               it.SKU,
		Name:              it.Name,
		Price:             it.Price,
		Quantity:          it.Quantity,
		LowStockThreshold: it.LowStockThreshold,
		LowStock:          it.Quantity <= it.LowStockThreshold,
	}
}

func optionalText(v string) pgtype.Text {
	if v == "" {
		return pgtype.Text{}
	}
	return pgtype.Text{String: v, Valid: true}
}

func badRequest(field, message string) *common.AppError {
	return &common.AppError{
		Code:       "BAD_REQUEST",
		Message:    message,
		HTTPStatus: http.StatusBadRequest,
		Details:    map[string]any{"field": field},
	}
}
