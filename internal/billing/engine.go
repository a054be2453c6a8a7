package billing

import "fmt"

// Money represents a monetary value in whole Kenyan Shillings. The domain has
// no sub-unit currency, so every amount entering or leaving the calculator is
// an integer number of shillings.
type Money = int64

// TaxRateBps is the fixed VAT rate applied to every sale, in basis points.
const TaxRateBps = 1600

// LineItem describes one order line used for payment calculation.
type LineItem struct {
	Description string
	Qty         int64
	UnitPrice   Money
}

// Modifiers are the order-level knobs applied on top of the line items. Each
// knob is independent: toggling TaxInclusive never requires the caller to
// adjust DeliveryFee or DiscountAmount.
type Modifiers struct {
	DeliveryFee    Money
	DiscountAmount Money
	DepositAmount  Money
	TaxInclusive   bool
}

// Summary is the fully derived payment breakdown. It is a value object: always
// recomputed from the raw items and modifiers, never stored as authoritative
// state and never mutated after computation.
type Summary struct {
	Subtotal       Money `json:"subtotal"`
	DeliveryFee    Money `json:"delivery_fee"`
	DiscountAmount Money `json:"discount_amount"`
	TaxAmount      Money `json:"tax_amount"`
	Total          Money `json:"total"`
	DepositAmount  Money `json:"deposit_amount"`
	Balance        Money `json:"balance"`
	TaxInclusive   bool  `json:"tax_inclusive"`
}

// Compute derives the payment summary for the given items and modifiers.
//
// The taxable base is subtotal + delivery - discount and may be transiently
// negative when the discount exceeds the goods value; the negative value is
// meaningful for auditing but never leaks into the result: Total, TaxAmount
// and Balance are floored at zero, and the deposit is clamped to [0, Total].
//
// In exclusive mode tax is added on top of the base. In inclusive mode the
// base already contains tax, so tax is disclosed by extraction and the total
// is the base unchanged. TaxAmount and Total round independently; they may
// disagree by one shilling, which is an accepted domain tolerance.
func Compute(items []LineItem, mods Modifiers) (Summary, error) {
	var subtotal Money
	for i, it := range items {
		if it.Qty < 0 {
			return Summary{}, invalidf("items[%d].quantity", i, "must not be negative")
		}
		if it.UnitPrice < 0 {
			return Summary{}, invalidf("items[%d].unit_price", i, "must not be negative")
		}
		subtotal += it.Qty * it.UnitPrice
	}
	if mods.DeliveryFee < 0 {
		return Summary{}, invalid("delivery_fee", "must not be negative")
	}
	if mods.DiscountAmount < 0 {
		return Summary{}, invalid("discount_amount", "must not be negative")
	}
	if mods.DepositAmount < 0 {
		return Summary{}, invalid("deposit_amount", "must not be negative")
	}

	base := subtotal + mods.DeliveryFee - mods.DiscountAmount

	var tax, total Money
	if mods.TaxInclusive {
		tax = base - roundDiv(base*10000, 10000+TaxRateBps)
		total = base
	} else {
		tax = roundDiv(base*TaxRateBps, 10000)
		total = base + tax
	}

	safeTotal := total
	if safeTotal < 0 {
		safeTotal = 0
	}
	if tax < 0 {
		tax = 0
	}
	deposit := mods.DepositAmount
	if deposit > safeTotal {
		deposit = safeTotal
	}

	return Summary{
		Subtotal:       subtotal,
		DeliveryFee:    mods.DeliveryFee,
		DiscountAmount: mods.DiscountAmount,
		TaxAmount:      tax,
		Total:          safeTotal,
		DepositAmount:  deposit,
		Balance:        safeTotal - deposit,
		TaxInclusive:   mods.TaxInclusive,
	}, nil
}

// roundDiv divides n by d rounding to the nearest integer, halves away from
// zero. d must be positive.
func roundDiv(n, d int64) int64 {
	if n >= 0 {
		return (n + d/2) / d
	}
	return -((-n + d/2) / d)
}

func invalid(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}

func invalidf(format string, i int, reason string) error {
	return &ValidationError{Field: fmt.Sprintf(format, i), Reason: reason}
}
