package billing

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseAmount(t *testing.T) {
	cases := []struct {
		name    string
		input   string
		want    Money
		wantErr bool
	}{
		{"empty defaults to zero", "", 0, false},
		{"whitespace defaults to zero", "   ", 0, false},
		{"whole", "1500", 1500, false},
		{"fraction rounds", "99.6", 100, false},
		{"fraction rounds down", "99.4", 99, false},
		{"garbage", "12abc", 0, true},
		{"nan", "NaN", 0, true},
		{"infinity", "Inf", 0, true},
		{"negative", "-5", 0, true},
		{"out of range", "1e30", 0, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := ParseAmount("deposit_amount", tc.input)
			if tc.wantErr {
				var verr *ValidationError
				require.ErrorAs(t, err, &verr)
				require.Equal(t, "deposit_amount", verr.Field)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tc.want, got)
		})
	}
}

func TestPercentOf(t *testing.T) {
	require.Equal(t, Money(500), PercentOf(5000, 1000))
	require.Equal(t, Money(0), PercentOf(5000, 0))
	require.Equal(t, Money(0), PercentOf(0, 1000))
	// 12.5% of 999 = 124.875, rounds to 125
	require.Equal(t, Money(125), PercentOf(999, 1250))
}

func TestPercentDiscountFeedsCompute(t *testing.T) {
	// The percent toggle converts once, up front; the calculator itself only
	// ever sees absolute shillings. Both paths must agree.
	items := []LineItem{{Qty: 2, UnitPrice: 1250}}
	subtotal := Money(2500)
	absolute := PercentOf(subtotal, 1000) // 10%
	require.Equal(t, Money(250), absolute)

	fromPercent, err := Compute(items, Modifiers{DiscountAmount: absolute})
	require.NoError(t, err)
	fixed, err := Compute(items, Modifiers{DiscountAmount: 250})
	require.NoError(t, err)
	require.Equal(t, fixed, fromPercent)
}
