package receipt

import (
	"context"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/anjiru/duka-pos/internal/common"
	"github.com/anjiru/duka-pos/internal/db"
	"github.com/anjiru/duka-pos/internal/order"
)

type saleReader interface {
	GetSale(ctx context.Context, id pgtype.UUID) (db.Sale, error)
	ListSaleItems(ctx context.Context, saleID pgtype.UUID) ([]db.SaleItem, error)
	GetCustomerByID(ctx context.Context, id pgtype.UUID) (db.Customer, error)
}

// Handler serves the printable HTML receipt for a sale.
type Handler struct {
	Sales     saleReader
	Renderer  *Renderer
	StoreName string
	LogoURL   string
}

// Get renders the receipt for the sale in the URL. Totals are recomputed from
// the stored lines, never read back from the sale row.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	saleID, err := db.ToUUID(chi.URLParam(r, "saleID"))
	if err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid sale id", nil)
		return
	}
	sale, err := h.Sales.GetSale(ctx, saleID)
	if errors.Is(err, pgx.ErrNoRows) {
		common.JSONError(w, http.StatusNotFound, "NOT_FOUND", "sale not found", nil)
		return
	}
	if err != nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "failed to load sale", nil)
		return
	}
	items, err := h.Sales.ListSaleItems(ctx, saleID)
	if err != nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "failed to load sale items", nil)
		return
	}
	summary, err := order.Recompute(sale, items)
	if err != nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "failed to compute totals", nil)
		return
	}

	data := Data{
		StoreName:   h.StoreName,
		LogoURL:     h.LogoURL,
		Reference:   sale.ReferenceNumber.String,
		IssuedAt:    sale.CreatedAt.Time,
		ServedBy:    sale.SalesPersonID.String,
		PaymentMode: sale.PaymentMode.String,
		Summary:     summary,
		Notes:       sale.Notes.String,
	}
	if sale.CustomerID.Valid {
		if customer, err := h.Sales.GetCustomerByID(ctx, sale.CustomerID); err == nil {
			data.CustomerName = customer.Name
			switch {
			case customer.Email.Valid && customer.Email.String != "":
				data.Contact = customer.Email.String
			case customer.Phone.Valid:
				data.Contact = customer.Phone.String
			}
		}
	}
	data.Items = make([]Line, 0, len(items))
	for _, item := range items {
		data.Items = append(data.Items, Line{
			Description: item.Description,
			Quantity:    item.Quantity,
			UnitPrice:   item.UnitPrice,
			LineTotal:   int64(item.Quantity) * item.UnitPrice,
		})
	}

	html, err := h.Renderer.Render(data)
	if err != nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "failed to render receipt", nil)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(html))
}
