package valueobject

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"golang.org/x/text/currency"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/number"
)

// Currency represents a currency code (ISO 4217)
type Currency string

const (
	USD Currency = "USD"
	CAD Currency = "CAD"
	EUR Currency = "EUR"
	GBP Currency = "GBP"
	AUD Currency = "AUD"
	NZD Currency = "NZD"
	JPY Currency = "JPY"
)

// DefaultCurrency is used when an organization has not picked one
const DefaultCurrency = USD

var currencySymbols = map[Currency]string{
	USD: "$",
	CAD: "CA$",
	EUR: "€",
	GBP: "£",
	AUD: "A$",
	NZD: "NZ$",
	JPY: "¥",
}

// ParseCurrency validates an ISO 4217 code
func ParseCurrency(code string) (Currency, error) {
	code = strings.ToUpper(strings.TrimSpace(code))
	if _, err := currency.ParseISO(code); err != nil {
		return "", fmt.Errorf("unknown currency %q", code)
	}
	return Currency(code), nil
}

// Scale returns the number of minor-unit digits for the currency (2 for USD, 0 for JPY)
func (c Currency) Scale() int32 {
	unit, err := currency.ParseISO(string(c))
	if err != nil {
		return 2
	}
	scale, _ := currency.Standard.Rounding(unit)
	return int32(scale)
}

// Money is an immutable monetary amount
type Money struct {
	amount   decimal.Decimal
	currency Currency
}

// NewMoney creates a new Money with the specified amount and currency
func NewMoney(amount decimal.Decimal, currency Currency) (Money, error) {
	if currency == "" {
		return Money{}, errors.New("currency cannot be empty")
	}
	return Money{amount: amount, currency: currency}, nil
}

// NewMoneyFromString creates Money from a string representation
func NewMoneyFromString(amount string, currency Currency) (Money, error) {
	d, err := decimal.NewFromString(amount)
	if err != nil {
		return Money{}, fmt.Errorf("invalid amount string: %w", err)
	}
	return NewMoney(d, currency)
}

// NewMoneyFromMinor creates Money from an integer amount of minor units (cents)
func NewMoneyFromMinor(minor int64, currency Currency) Money {
	return Money{amount: decimal.New(minor, -currency.Scale()), currency: currency}
}

// MustMoney panics on an invalid amount; for constants and tests
func MustMoney(amount string, currency Currency) Money {
	m, err := NewMoneyFromString(amount, currency)
	if err != nil {
		panic(err)
	}
	return m
}

// Zero returns a zero-value Money in the specified currency
func Zero(currency Currency) Money {
	return Money{amount: decimal.Zero, currency: currency}
}

func (m Money) Amount() decimal.Decimal { return m.amount }
func (m Money) Currency() Currency      { return m.currency }
func (m Money) IsZero() bool            { return m.amount.IsZero() }
func (m Money) IsPositive() bool        { return m.amount.IsPositive() }
func (m Money) IsNegative() bool        { return m.amount.IsNegative() }

// MinorUnits returns the amount in the currency's smallest unit, as Stripe expects
func (m Money) MinorUnits() int64 {
	return m.amount.Shift(m.currency.Scale()).Round(0).IntPart()
}

// Add returns the sum; currencies must match
func (m Money) Add(other Money) (Money, error) {
	if m.currency != other.currency {
		return Money{}, fmt.Errorf("cannot add money with different currencies: %s and %s", m.currency, other.currency)
	}
	return Money{amount: m.amount.Add(other.amount), currency: m.currency}, nil
}

// MustAdd adds two Money values, panics if currencies don't match
func (m Money) MustAdd(other Money) Money {
	result, err := m.Add(other)
	if err != nil {
		panic(err)
	}
	return result
}

// Subtract returns the difference; currencies must match
func (m Money) Subtract(other Money) (Money, error) {
	if m.currency != other.currency {
		return Money{}, fmt.Errorf("cannot subtract money with different currencies: %s and %s", m.currency, other.currency)
	}
	return Money{amount: m.amount.Sub(other.amount), currency: m.currency}, nil
}

// Multiply returns a new Money multiplied by the given factor
func (m Money) Multiply(factor decimal.Decimal) Money {
	return Money{amount: m.amount.Mul(factor), currency: m.currency}
}

// Round rounds half away from zero to the currency scale
func (m Money) Round() Money {
	return Money{amount: m.amount.Round(m.currency.Scale()), currency: m.currency}
}

// Equals returns true if both Money values have the same amount and currency
func (m Money) Equals(other Money) bool {
	return m.currency == other.currency && m.amount.Equal(other.amount)
}

// GreaterThan compares amounts; currencies must match
func (m Money) GreaterThan(other Money) (bool, error) {
	if m.currency != other.currency {
		return false, fmt.Errorf("cannot compare money with different currencies: %s and %s", m.currency, other.currency)
	}
	return m.amount.GreaterThan(other.amount), nil
}

// String returns "12.50 USD"
func (m Money) String() string {
	return fmt.Sprintf("%s %s", m.amount.StringFixed(m.currency.Scale()), m.currency)
}

// Format renders the amount for display in the given BCP 47 locale, e.g. "$1,234.50"
func (m Money) Format(locale string) string {
	return FormatCurrency(m.amount, m.currency, locale)
}

// FormatCurrency renders an amount with its currency symbol and locale digit grouping.
// An empty or unparseable locale falls back to en-US.
func FormatCurrency(amount decimal.Decimal, cur Currency, locale string) string {
	tag := language.AmericanEnglish
	if locale != "" {
		if t, err := language.Parse(locale); err == nil {
			tag = t
		}
	}
	scale := cur.Scale()
	f, _ := amount.Abs().Round(scale).Float64()
	digits := message.NewPrinter(tag).Sprint(number.Decimal(f, number.Scale(int(scale))))

	symbol, ok := currencySymbols[cur]
	if !ok {
		symbol = string(cur) + " "
	}
	if amount.Round(scale).IsNegative() {
		return "-" + symbol + digits
	}
	return symbol + digits
}

// MarshalJSON implements json.Marshaler
func (m Money) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Amount   string   `json:"amount"`
		Currency Currency `json:"currency"`
	}{
		Amount:   m.amount.StringFixed(m.currency.Scale()),
		Currency: m.currency,
	})
}

// UnmarshalJSON implements json.Unmarshaler
func (m *Money) UnmarshalJSON(data []byte) error {
	var v struct {
		Amount   string   `json:"amount"`
		Currency Currency `json:"currency"`
	}
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	amount, err := decimal.NewFromString(v.Amount)
	if err != nil {
		return fmt.Errorf("invalid amount: %w", err)
	}
	if v.Currency == "" {
		v.Currency = DefaultCurrency
	}
	m.amount = amount
	m.currency = v.Currency
	return nil
}

// Value stores the amount only; currency lives in its own column
func (m Money) Value() (driver.Value, error) {
	return m.amount.String(), nil
}
