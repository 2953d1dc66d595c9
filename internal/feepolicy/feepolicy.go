// Package feepolicy computes deposit and withdrawal fee splits.
//
// All functions are pure; rates are injected once at construction so the
// rest of the system never reads fee configuration directly.
package feepolicy

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/flexipay/flexipay/internal/domain"
)

// Policy holds the configured fee rates.
type Policy struct {
	depositRate    decimal.Decimal
	withdrawalRate decimal.Decimal
	withdrawalFix  decimal.Decimal
}

// New parses the configured rates into a Policy.
func New(depositRate, withdrawalRate, withdrawalFixed string) (Policy, error) {
	dr, err := decimal.NewFromString(depositRate)
	if err != nil {
		return Policy{}, fmt.Errorf("deposit fee rate %q: %w", depositRate, err)
	}

	wr, err := decimal.NewFromString(withdrawalRate)
	if err != nil {
		return Policy{}, fmt.Errorf("withdrawal fee rate %q: %w", withdrawalRate, err)
	}

	wf, err := decimal.NewFromString(withdrawalFixed)
	if err != nil {
		return Policy{}, fmt.Errorf("withdrawal fixed fee %q: %w", withdrawalFixed, err)
	}

	return Policy{depositRate: dr, withdrawalRate: wr, withdrawalFix: wf}, nil
}

// FixedFee returns the fixed per-withdrawal fee.
func (p Policy) FixedFee() decimal.Decimal {
	return p.withdrawalFix
}

// DepositSplit splits a confirmed gross deposit into the net amount
// credited to the user and the fee retained.
func (p Policy) DepositSplit(gross decimal.Decimal) (net, fee decimal.Decimal) {
	fee = gross.Mul(p.depositRate).Round(2)
	net = gross.Sub(fee)

	return net, fee
}

// WithdrawalSplit derives, from the total the user wants debited, the
// amount that will actually be paid out and the fee retained.
//
// The contract is totalDebit = amountReceived + (amountReceived*rate + fixed),
// solved for amountReceived. The inverse form is deliberate: users state the
// debit, not the payout.
func (p Policy) WithdrawalSplit(totalDebit decimal.Decimal) (received, fee decimal.Decimal, err error) {
	if totalDebit.LessThanOrEqual(p.withdrawalFix) {
		return decimal.Zero, decimal.Zero, domain.ErrAmountBelowFee
	}

	one := decimal.NewFromInt(1)
	received = totalDebit.Sub(p.withdrawalFix).Div(one.Add(p.withdrawalRate)).Round(2)

	if received.LessThanOrEqual(decimal.Zero) {
		return decimal.Zero, decimal.Zero, domain.ErrAmountBelowFee
	}

	fee = totalDebit.Sub(received)

	return received, fee, nil
}

// RefundTotal is the full reversal of a withdrawal: principal plus fee,
// restoring the original total debit.
func RefundTotal(received, fee decimal.Decimal) decimal.Decimal {
	return received.Add(fee)
}
