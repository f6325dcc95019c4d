package service

import (
	"github.com/shopspring/decimal"
)

// Totals is the full monetary breakdown of an order.
type Totals struct {
	Subtotal       decimal.Decimal `json:"subtotal"`
	DiscountAmount decimal.Decimal `json:"discount_amount"`
	TaxAmount      decimal.Decimal `json:"tax_amount"`
	ShippingCost   decimal.Decimal `json:"shipping_cost"`
	Total          decimal.Decimal `json:"total"`
}

// ShippingRule maps a discounted subtotal to a shipping cost.
type ShippingRule func(discountedSubtotal decimal.Decimal) decimal.Decimal

// FlatRateShipping charges a flat cost below the free-shipping threshold
// and nothing at or above it.
func FlatRateShipping(flatCost, freeThreshold decimal.Decimal) ShippingRule {
	return func(discountedSubtotal decimal.Decimal) decimal.Decimal {
		if discountedSubtotal.GreaterThanOrEqual(freeThreshold) {
			return decimal.Zero
		}
		return flatCost
	}
}

// ComputeTotals combines frozen line prices, a discount effect, the tax
// rate, and the shipping rule into the final order breakdown. Tax is
// computed on the post-discount subtotal. Every derived amount is rounded
// to 2 decimals exactly once, and the total is floored at zero.
func ComputeTotals(items []LineItem, effect *DiscountEffect, taxRatePercent decimal.Decimal, shipping ShippingRule) Totals {
	subtotal := decimal.Zero
	for _, item := range items {
		subtotal = subtotal.Add(item.UnitPrice.Mul(decimal.NewFromInt(int64(item.Quantity))))
	}
	subtotal = subtotal.Round(2)

	discount := decimal.Zero
	freeShipping := false
	if effect != nil {
		discount = effect.Amount
		freeShipping = effect.FreeShipping
	}
	if discount.GreaterThan(subtotal) {
		discount = subtotal
	}

	discountedSubtotal := subtotal.Sub(discount)
	if discountedSubtotal.IsNegative() {
		discountedSubtotal = decimal.Zero
	}

	taxAmount := discountedSubtotal.Mul(taxRatePercent).Div(decimal.NewFromInt(100)).Round(2)

	shippingCost := decimal.Zero
	if !freeShipping && shipping != nil {
		shippingCost = shipping(discountedSubtotal).Round(2)
	}

	total := discountedSubtotal.Add(taxAmount).Add(shippingCost)
	if total.IsNegative() {
		total = decimal.Zero
	}

	return Totals{
		Subtotal:       subtotal,
		DiscountAmount: discount,
		TaxAmount:      taxAmount,
		ShippingCost:   shippingCost,
		Total:          total,
	}
}
