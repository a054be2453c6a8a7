package inventory

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/anjiru/duka-pos/internal/common"
	"github.com/anjiru/duka-pos/internal/db"
)

type fakeStore struct {
	items     map[pgtype.UUID]db.Item
	listCalls int
}

func newFakeStore() *fakeStore {
	return &fakeStore{items: map[pgtype.UUID]db.Item{}}
}

func (f *fakeStore) CreateCategory(_ context.Context, name string, description pgtype.Text) (db.Category, error) {
	return db.Category{ID: newID(), Name: name, Description: description}, nil
}

func (f *fakeStore) ListCategories(_ context.Context) ([]db.Category, error) { return nil, nil }

func (f *fakeStore) DeleteCategory(_ context.Context, _ pgtype.UUID) error { return nil }

func (f *fakeStore) CreateProduct(_ context.Context, categoryID pgtype.UUID, name string, description pgtype.Text) (db.Product, error) {
	return db.Product{ID: newID(), CategoryID: categoryID, Name: name, Description: description}, nil
}

func (f *fakeStore) ListProducts(_ context.Context, _ pgtype.UUID) ([]db.Product, error) {
	return nil, nil
}

func (f *fakeStore) CreateItem(_ context.Context, arg db.CreateItemParams) (db.Item, error) {
	it := db.Item{
		ID:                newID(),
		ProductID:         arg.ProductID,
		SKU:               arg.SKU.String,
		Name:              arg.Name,
		Price:             arg.Price,
		Quantity:          arg.Quantity,
		LowStockThreshold: arg.LowStockThreshold,
	}
	f.items[it.ID] = it
	return it, nil
}

func (f *fakeStore) GetItem(_ context.Context, id pgtype.UUID) (db.Item, error) {
	if it, ok := f.items[id]; ok {
		return it, nil
	}
	return db.Item{}, pgx.ErrNoRows
}

func (f *fakeStore) ListItems(_ context.Context, _ string, _, _ int32) ([]db.Item, error) {
	f.listCalls++
	out := make([]db.Item, 0, len(f.items))
	for _, it := range f.items {
		out = append(out, it)
	}
	return out, nil
}

func (f *fakeStore) UpdateItem(_ context.Context, arg db.UpdateItemParams) (db.Item, error) {
	it, ok := f.items[arg.ID]
	if !ok {
		return db.Item{}, pgx.ErrNoRows
	}
	it.Name = arg.Name
	it.Price = arg.Price
	it.LowStockThreshold = arg.LowStockThreshold
	f.items[arg.ID] = it
	return it, nil
}

func (f *fakeStore) AdjustStock(_ context.Context, id pgtype.UUID, delta int32) (db.Item, error) {
	it, ok := f.items[id]
	if !ok {
		return db.Item{}, pgx.ErrNoRows
	}
	it.Quantity += delta
	if it.Quantity < 0 {
		it.Quantity = 0
	}
	f.items[id] = it
	return it, nil
}

func (f *fakeStore) ListLowStockItems(_ context.Context) ([]db.Item, error) {
	var out []db.Item
	for _, it := range f.items {
		if it.Quantity <= it.LowStockThreshold {
			out = append(out, it)
		}
	}
	return out, nil
}

func newID() pgtype.UUID {
	return pgtype.UUID{Bytes: uuid.New(), Valid: true}
}

func testCache(t *testing.T) *Cache {
	t.Helper()
	srv := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: srv.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewCache(client, 30*time.Second)
}

func TestCreateItemValidatesInput(t *testing.T) {
	svc := &Service{Store: newFakeStore()}

	_, err := svc.CreateItem(context.Background(), ItemInput{Name: "   "})
	var appErr *common.AppError
	require.ErrorAs(t, err, &appErr)
	require.Equal(t, "BAD_REQUEST", appErr.Code)

	_, err = svc.CreateItem(context.Background(), ItemInput{Name: "Sofa", Price: -1})
	require.Error(t, err)
}

func TestRestockAdjustsQuantity(t *testing.T) {
	store := newFakeStore()
	svc := &Service{Store: store}

	it, err := svc.CreateItem(context.Background(), ItemInput{Name: "Chair", Price: 2500, Quantity: 2, LowStockThreshold: 5})
	require.NoError(t, err)

	after, err := svc.Restock(context.Background(), db.UUIDString(it.ID), 10)
	require.NoError(t, err)
	require.Equal(t, int32(12), after.Quantity)
}

func TestLowStockListsItemsAtOrBelowThreshold(t *testing.T) {
	store := newFakeStore()
	svc := &Service{Store: store}

	_, err := svc.CreateItem(context.Background(), ItemInput{Name: "Chair", Price: 2500, Quantity: 2, LowStockThreshold: 5})
	require.NoError(t, err)
	_, err = svc.CreateItem(context.Background(), ItemInput{Name: "Table", Price: 9000, Quantity: 50, LowStockThreshold: 5})
	require.NoError(t, err)

	low, err := svc.LowStock(context.Background())
	require.NoError(t, err)
	require.Len(t, low, 1)
	require.Equal(t, "Chair", low[0].Name)
}

func TestListItemsServesFirstPageFromCache(t *testing.T) {
	store := newFakeStore()
	svc := &Service{Store: store, Cache: testCache(t)}

	_, err := svc.CreateItem(context.Background(), ItemInput{Name: "Chair", Price: 2500, Quantity: 2})
	require.NoError(t, err)

	_, err = svc.ListItems(context.Background(), "", 1, 50)
	require.NoError(t, err)
	_, err = svc.ListItems(context.Background(), "", 1, 50)
	require.NoError(t, err)
	require.Equal(t, 1, store.listCalls)

	// A restock invalidates the cached page.
	items, err := svc.ListItems(context.Background(), "", 1, 50)
	require.NoError(t, err)
	_, err = svc.Restock(context.Background(), db.UUIDString(items[0].ID), 1)
	require.NoError(t, err)
	_, err = svc.ListItems(context.Background(), "", 1, 50)
	require.NoError(t, err)
	require.Equal(t, 2, store.listCalls)
}
