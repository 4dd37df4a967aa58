package domain

import (
	"encoding/json"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRequirePositive(t *testing.T) {
	cases := []struct {
		name    string
		amount  decimal.Decimal
		wantErr bool
	}{
		{name: "positive", amount: decimal.NewFromInt(500)},
		{name: "fractional", amount: decimal.RequireFromString("0.01")},
		{name: "zero", amount: decimal.Zero, wantErr: true},
		{name: "negative", amount: decimal.NewFromInt(-5), wantErr: true},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			err := RequirePositive(tc.amount)
			if tc.wantErr {
				assert.ErrorIs(t, err, ErrNonPositiveAmount)
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestRequireScale(t *testing.T) {
	cases := []struct {
		name    string
		amount  string
		wantErr bool
	}{
		{name: "whole", amount: "500"},
		{name: "two places", amount: "10.25"},
		{name: "trailing zeros", amount: "10.500"},
		{name: "sub paisa", amount: "0.001", wantErr: true},
		{name: "three places", amount: "10.005", wantErr: true},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			err := RequireScale(decimal.RequireFromString(tc.amount))
			if tc.wantErr {
				assert.ErrorIs(t, err, ErrAmountPrecision)
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestParseAmount(t *testing.T) {
	amount, err := ParseAmount("1250.50")
	require.NoError(t, err)
	assert.Equal(t, "1250.5", amount.String())

	_, err = ParseAmount("abc")
	assert.Error(t, err)
}

func TestFormatAmount(t *testing.T) {
	assert.Equal(t, "500.00 INR", FormatAmount(decimal.NewFromInt(500)))
	assert.Equal(t, "10.50 INR", FormatAmount(decimal.RequireFromString("10.5")))
}

func TestAmountMarshalsAsNumber(t *testing.T) {
	out, err := json.Marshal(map[string]decimal.Decimal{"amount": decimal.RequireFromString("99.95")})
	require.NoError(t, err)
	assert.JSONEq(t, `{"amount":99.95}`, string(out))
}

func TestParseKindAndStatus(t *testing.T) {
	k, ok := ParseKind(" Payout ")
	assert.True(t, ok)
	assert.Equal(t, KindPayout, k)
	assert.Equal(t, "PAYOUT_", k.Prefix())

	_, ok = ParseKind("refund")
	assert.False(t, ok)

	s, ok := ParseStatus("COMPLETED")
	assert.True(t, ok)
	assert.True(t, s.Terminal())
	assert.False(t, StatusProcessing.Terminal())

	_, ok = ParseStatus("reversed")
	assert.False(t, ok)
}
