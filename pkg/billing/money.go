package billing

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
	"golang.org/x/text/currency"
)

// Money is a provider-native decimal amount with an ISO 4217 currency code.
// Amounts are passed to the gateway as-is, without local rounding.
type Money struct {
	Amount   decimal.Decimal
	Currency string
}

// NewMoney parses amount and validates the currency code.
func NewMoney(amount, code string) (Money, error) {
	d, err := decimal.NewFromString(amount)
	if err != nil {
		return Money{}, errors.Join(ErrInvalidMoney, err)
	}
	m := Money{Amount: d, Currency: code}
	if err := m.Validate(); err != nil {
		return Money{}, err
	}
	return m, nil
}

// USD returns amount in US dollars.
func USD(amount decimal.Decimal) Money {
	return Money{Amount: amount, Currency: currency.USD.String()}
}

// Validate checks the currency code is a known ISO code and the amount is not negative.
func (m Money) Validate() error {
	if _, err := currency.ParseISO(m.Currency); err != nil {
		return errors.Join(ErrInvalidMoney, err)
	}
	if m.Amount.IsNegative() {
		return fmt.Errorf("%w: negative amount %s", ErrInvalidMoney, m.Amount)
	}
	return nil
}

// Equal reports whether both amount and currency match.
func (m Money) Equal(o Money) bool {
	return m.Currency == o.Currency && m.Amount.Equal(o.Amount)
}

func (m Money) String() string {
	return m.Amount.StringFixed(2) + " " + m.Currency
}
