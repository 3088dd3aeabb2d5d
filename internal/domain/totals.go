package domain

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// DefaultTaxRate is applied when no rate is configured.
var DefaultTaxRate = decimal.RequireFromString("0.08")

// moneyPlaces is the number of decimal places monetary amounts are rounded to.
const moneyPlaces = 2

var (
	// ErrInvalidTaxRate indicates a rate outside [0, 1).
	ErrInvalidTaxRate = errors.New("totals: tax rate must be in [0, 1)")
	// ErrInvalidLineItem indicates a negative price or a quantity below one.
	ErrInvalidLineItem = errors.New("totals: invalid line item")
	// ErrNegativeShipping indicates a negative shipping cost.
	ErrNegativeShipping = errors.New("totals: shipping cost must not be negative")
)

// Totals holds the server computed monetary fields of an order.
type Totals struct {
	Subtotal decimal.Decimal
	Shipping decimal.Decimal
	Tax      decimal.Decimal
	Total    decimal.Decimal
}

// TotalsCalculator derives order totals from line items using exact decimal arithmetic.
type TotalsCalculator struct {
	taxRate decimal.Decimal
}

// NewTotalsCalculator returns a calculator applying the given tax rate.
func NewTotalsCalculator(taxRate decimal.Decimal) (TotalsCalculator, error) {
	if taxRate.IsNegative() || taxRate.GreaterThanOrEqual(decimal.NewFromInt(1)) {
		return TotalsCalculator{}, ErrInvalidTaxRate
	}
	return TotalsCalculator{taxRate: taxRate}, nil
}

// TaxRate returns the configured rate.
func (c TotalsCalculator) TaxRate() decimal.Decimal {
	return c.taxRate
}

// Compute returns subtotal, tax and total for the items. Tax is rounded half away from zero to
// cents before it is added, so Total always equals Subtotal + Shipping + Tax.
func (c TotalsCalculator) Compute(items []OrderItem, shipping decimal.Decimal) (Totals, error) {
	if shipping.IsNegative() {
		return Totals{}, ErrNegativeShipping
	}
	subtotal := decimal.Zero
	for i, item := range items {
		if item.Price.IsNegative() {
			return Totals{}, fmt.Errorf("%w: items[%d] price is negative", ErrInvalidLineItem, i)
		}
		if item.Quantity < 1 {
			return Totals{}, fmt.Errorf("%w: items[%d] quantity must be at least 1", ErrInvalidLineItem, i)
		}
		subtotal = subtotal.Add(item.LineTotal())
	}
	subtotal = subtotal.Round(moneyPlaces)
	shipping = shipping.Round(moneyPlaces)
	tax := subtotal.Mul(c.taxRate).Round(moneyPlaces)

	return Totals{
		Subtotal: subtotal,
		Shipping: shipping,
		Tax:      tax,
		Total:    subtotal.Add(shipping).Add(tax),
	}, nil
}

// Apply copies computed totals onto the order.
func (t Totals) Apply(order *Order) {
	order.Subtotal = t.Subtotal
	order.ShippingCost = t.Shipping
	order.Tax = t.Tax
	order.TotalAmount = t.Total
}
