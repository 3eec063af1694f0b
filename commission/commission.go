// ABOUTME: Commission derivation from deal value, rate and agent split
// ABOUTME: Pure functions with no I/O, rounded to cents
package commission

import (
	"errors"

	"github.com/harperreed/closer/models"
	"github.com/shopspring/decimal"
)

var (
	ErrNegativeInput     = errors.New("commission inputs must not be negative")
	ErrPercentOutOfRange = errors.New("percentage must be between 0 and 100")
)

var hundred = decimal.NewFromInt(100)

// Result holds the derived commission amounts.
type Result struct {
	CommissionAmount decimal.Decimal `json:"commission_amount"`
	AgentCommission  decimal.Decimal `json:"agent_commission"`
}

// Calculate derives the total commission and the agent's share.
// A missing or zero split means the agent keeps the full commission.
func Calculate(dealValue, ratePercent decimal.Decimal, splitPercent decimal.NullDecimal) (Result, error) {
	if dealValue.IsNegative() || ratePercent.IsNegative() {
		return Result{}, ErrNegativeInput
	}
	if splitPercent.Valid && splitPercent.Decimal.IsNegative() {
		return Result{}, ErrNegativeInput
	}
	if ratePercent.GreaterThan(hundred) || (splitPercent.Valid && splitPercent.Decimal.GreaterThan(hundred)) {
		return Result{}, ErrPercentOutOfRange
	}

	amount := dealValue.Mul(ratePercent).Div(hundred)
	agent := amount
	if splitPercent.Valid && !splitPercent.Decimal.IsZero() {
		agent = amount.Mul(splitPercent.Decimal).Div(hundred)
	}

	return Result{
		CommissionAmount: amount.Round(2),
		AgentCommission:  agent.Round(2),
	}, nil
}

// Apply recomputes the derived commission fields on deal.
func Apply(deal *models.Deal) error {
	res, err := Calculate(deal.DealValue, deal.CommissionRate, deal.CommissionSplitPercent)
	if err != nil {
		return err
	}
	deal.CommissionAmount = res.CommissionAmount
	deal.AgentCommission = res.AgentCommission
	return nil
}
