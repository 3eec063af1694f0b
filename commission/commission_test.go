package commission

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harperreed/closer/models"
)

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func split(s string) decimal.NullDecimal {
	return decimal.NewNullDecimal(d(s))
}

func TestCalculate(t *testing.T) {
	tests := []struct {
		name   string
		value  string
		rate   string
		split  decimal.NullDecimal
		amount string
		agent  string
	}{
		{"with split", "200000", "3", split("50"), "6000", "3000"},
		{"no split", "100000", "3", decimal.NullDecimal{}, "3000", "3000"},
		{"zero split keeps full commission", "100000", "3", split("0"), "3000", "3000"},
		{"zero value", "0", "3", split("50"), "0", "0"},
		{"zero rate", "450000", "0", decimal.NullDecimal{}, "0", "0"},
		{"fractional rate rounds to cents", "333333", "2.5", split("70"), "8333.33", "5833.33"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := Calculate(d(tt.value), d(tt.rate), tt.split)
			require.NoError(t, err)
			assert.True(t, res.CommissionAmount.Equal(d(tt.amount)), "amount %s", res.CommissionAmount)
			assert.True(t, res.AgentCommission.Equal(d(tt.agent)), "agent %s", res.AgentCommission)
		})
	}
}

func TestCalculateRejectsInvalidInput(t *testing.T) {
	_, err := Calculate(d("-1"), d("3"), decimal.NullDecimal{})
	assert.ErrorIs(t, err, ErrNegativeInput)

	_, err = Calculate(d("1000"), d("-3"), decimal.NullDecimal{})
	assert.ErrorIs(t, err, ErrNegativeInput)

	_, err = Calculate(d("1000"), d("3"), split("-10"))
	assert.ErrorIs(t, err, ErrNegativeInput)

	_, err = Calculate(d("1000"), d("101"), decimal.NullDecimal{})
	assert.ErrorIs(t, err, ErrPercentOutOfRange)

	_, err = Calculate(d("1000"), d("3"), split("150"))
	assert.ErrorIs(t, err, ErrPercentOutOfRange)
}

func TestApply(t *testing.T) {
	deal := &models.Deal{
		DealValue:              d("525000"),
		CommissionRate:         d("2.5"),
		CommissionSplitPercent: split("60"),
	}

	require.NoError(t, Apply(deal))
	assert.Equal(t, "13125", deal.CommissionAmount.String())
	assert.Equal(t, "7875", deal.AgentCommission.String())
}
