// Package finance holds the commission/payout arithmetic shared by
// dispatch-time quoting and post-hoc settlement.
package finance

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// ErrBelowMinimum rejects totals under the minimum transaction amount.
var ErrBelowMinimum = errors.New("amount below minimum transaction amount")

type Config struct {
	CommissionRate decimal.Decimal
	MinTransaction decimal.Decimal
}

func DefaultConfig() Config {
	return Config{
		CommissionRate: decimal.RequireFromString("0.25"),
		MinTransaction: decimal.RequireFromString("10.00"),
	}
}

// Split is the platform/provider division of a collected total.
// Commission + Payout always equals Total exactly.
type Split struct {
	Total      decimal.Decimal `json:"total"`
	Commission decimal.Decimal `json:"commission"`
	Payout     decimal.Decimal `json:"payout"`
}

// CalculateSplits divides a collected amount between platform commission
// and provider payout. The commission is rounded to the minor unit and the
// payout is the exact remainder, so the two always reconcile to the total.
func CalculateSplits(total decimal.Decimal, cfg Config) (Split, error) {
	total = total.Round(2)
	if total.LessThan(cfg.MinTransaction) {
		return Split{}, fmt.Errorf("total %s: %w", total.StringFixed(2), ErrBelowMinimum)
	}
	commission := total.Mul(cfg.CommissionRate).Round(2)
	payout := total.Sub(commission)
	return Split{Total: total, Commission: commission, Payout: payout}, nil
}
