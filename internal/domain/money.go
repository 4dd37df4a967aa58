package domain

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// SettlementCurrency is the only currency the gateway partner settles in.
const SettlementCurrency = "INR"

// AmountScale is the number of decimal places the gateway and the stores settle in.
const AmountScale = 2

var (
	ErrNonPositiveAmount = errors.New("amount must be greater than zero")
	ErrAmountPrecision   = errors.New("amount has more than two decimal places")
)

func init() {
	// Amounts go over the wire as JSON numbers, both to merchants and to the gateway.
	decimal.MarshalJSONWithoutQuotes = true
}

// RequirePositive rejects zero and negative amounts.
func RequirePositive(amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return ErrNonPositiveAmount
	}
	return nil
}

// RequireScale rejects amounts that would be rounded when stored.
func RequireScale(amount decimal.Decimal) error {
	if !amount.Equal(amount.Truncate(AmountScale)) {
		return ErrAmountPrecision
	}
	return nil
}

// ParseAmount reads a decimal amount from its textual form.
func ParseAmount(raw string) (decimal.Decimal, error) {
	amount, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, fmt.Errorf("parse amount %q: %w", raw, err)
	}
	return amount, nil
}

// FormatAmount renders an amount with two decimal places and the settlement currency.
func FormatAmount(amount decimal.Decimal) string {
	return fmt.Sprintf("%s %s", amount.StringFixed(2), SettlementCurrency)
}
