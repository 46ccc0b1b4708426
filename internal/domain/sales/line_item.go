package sales

import (
	"strings"

	"github.com/crewdesk/backend/internal/domain/shared"
	"github.com/crewdesk/backend/internal/domain/shared/valueobject"
	"github.com/shopspring/decimal"
)

const maxLineItems = 200

var hundred = decimal.NewFromInt(100)

// LineItem is one priced row on a quote or invoice
type LineItem struct {
	Description string          `json:"description"`
	Quantity    decimal.Decimal `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	Amount      decimal.Decimal `json:"amount"`
}

// NewLineItem validates a row and computes its amount
func NewLineItem(description string, quantity, unitPrice decimal.Decimal, cur valueobject.Currency) (LineItem, error) {
	description = strings.TrimSpace(description)
	if description == "" || len(description) > 500 {
		return LineItem{}, shared.InvalidInput("Line item description must be between 1 and 500 characters")
	}
	if !quantity.IsPositive() {
		return LineItem{}, shared.InvalidInput("Line item quantity must be positive")
	}
	if unitPrice.IsNegative() {
		return LineItem{}, shared.InvalidInput("Line item price cannot be negative")
	}
	return LineItem{
		Description: description,
		Quantity:    quantity,
		UnitPrice:   unitPrice,
		Amount:      quantity.Mul(unitPrice).Round(cur.Scale()),
	}, nil
}

// Totals are the computed sums of a document
type Totals struct {
	Subtotal decimal.Decimal
	Tax      decimal.Decimal
	Total    decimal.Decimal
}

// ComputeTotals sums rounded line amounts and applies a percentage tax rate,
// rounding half away from zero to the currency's minor unit.
func ComputeTotals(items []LineItem, taxRate decimal.Decimal, cur valueobject.Currency) Totals {
	scale := cur.Scale()
	subtotal := decimal.Zero
	for _, it := range items {
		subtotal = subtotal.Add(it.Quantity.Mul(it.UnitPrice).Round(scale))
	}
	tax := subtotal.Mul(taxRate).Div(hundred).Round(scale)
	return Totals{
		Subtotal: subtotal,
		Tax:      tax,
		Total:    subtotal.Add(tax),
	}
}

func validateTaxRate(rate decimal.Decimal) error {
	if rate.IsNegative() || rate.GreaterThan(hundred) {
		return shared.InvalidInput("Tax rate must be between 0 and 100")
	}
	return nil
}

func validateItems(items []LineItem) error {
	if len(items) > maxLineItems {
		return shared.InvalidInput("A document can have at most 200 line items")
	}
	return nil
}
