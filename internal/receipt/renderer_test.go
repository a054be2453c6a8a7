package receipt

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/anjiru/duka-pos/internal/billing"
)

func render(t *testing.T, data Data) string {
	t.Helper()
	r, err := NewRenderer()
	require.NoError(t, err)
	html, err := r.Render(data)
	require.NoError(t, err)
	return html
}

func TestRenderExclusiveTaxLabel(t *testing.T) {
	html := render(t, Data{
		Reference: "INV-20260829-001",
		Items:     []Line{{Description: "Chair", Quantity: 2, UnitPrice: 1000, LineTotal: 2000}},
		Summary: billing.Summary{
			Subtotal: 2000, TaxAmount: 320, Total: 2320, DepositAmount: 2320,
		},
	})
	require.Contains(t, html, "+ VAT 16%")
	require.NotContains(t, html, "(included)")
	require.Contains(t, html, "INV-20260829-001")
	require.Contains(t, html, "KES 2,320")
}

func TestRenderInclusiveTaxLabel(t *testing.T) {
	html := render(t, Data{
		Items: []Line{{Description: "Chair", Quantity: 1, UnitPrice: 2400, LineTotal: 2400}},
		Summary: billing.Summary{
			Subtotal: 2400, TaxAmount: 331, Total: 2400, TaxInclusive: true,
		},
	})
	require.Contains(t, html, "VAT 16% (included)")
	require.False(t, strings.Contains(html, "+ VAT"))
}

func TestRenderBalanceDueProminentWhenOutstanding(t *testing.T) {
	html := render(t, Data{
		Summary: billing.Summary{Total: 2784, DepositAmount: 1000, Balance: 1784},
	})
	require.Contains(t, html, "BALANCE DUE: KES 1,784")
}

func TestRenderOmitsBalanceWhenSettled(t *testing.T) {
	html := render(t, Data{
		Summary: billing.Summary{Total: 2784, DepositAmount: 2784, Balance: 0},
	})
	require.NotContains(t, html, "BALANCE DUE")
}

func TestRenderOmitsZeroDeliveryAndDiscount(t *testing.T) {
	html := render(t, Data{Summary: billing.Summary{Subtotal: 500, TaxAmount: 80, Total: 580}})
	require.NotContains(t, html, "Delivery")
	require.NotContains(t, html, "Discount")

	html = render(t, Data{Summary: billing.Summary{Subtotal: 500, DeliveryFee: 200, DiscountAmount: 100, TaxAmount: 96, Total: 696}})
	require.Contains(t, html, "Delivery")
	require.Contains(t, html, "Discount")
}

func TestFormatMoney(t *testing.T) {
	require.Equal(t, "KES 0", formatMoney(0))
	require.Equal(t, "KES 580", formatMoney(580))
	require.Equal(t, "KES 1,784", formatMoney(1784))
	require.Equal(t, "KES 1,234,567", formatMoney(1234567))
	require.Equal(t, "-KES 5", formatMoney(-5))
}
