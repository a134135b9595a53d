// Package settlement aggregates accepted, unsettled quotes into daily
// provider payouts using the shared commission arithmetic.
package settlement

import (
	"context"
	"errors"
	"log/slog"

	"github.com/shopspring/decimal"

	"github.com/example/roadside-dispatch/internal/finance"
	"github.com/example/roadside-dispatch/internal/storage"
)

// ProviderPayout is one provider's aggregated settlement for the run.
type ProviderPayout struct {
	ProviderID string          `json:"provider_id"`
	Total      decimal.Decimal `json:"total"`
	Commission decimal.Decimal `json:"commission"`
	Payout     decimal.Decimal `json:"payout"`
	QuoteIDs   []string        `json:"quote_ids"`
}

type Store interface {
	UnsettledItems(ctx context.Context) ([]storage.SettlementItem, error)
	MarkSettled(ctx context.Context, quoteIDs []string) error
}

type Aggregator struct {
	Store  Store
	Cfg    finance.Config
	Logger *slog.Logger
}

func NewAggregator(store Store, cfg finance.Config, logger *slog.Logger) *Aggregator {
	return &Aggregator{Store: store, Cfg: cfg, Logger: logger}
}

// Run sums unsettled accepted quotes per provider, applies the commission
// split and marks the settled quotes. Providers whose aggregate stays under
// the minimum transaction amount are carried over to the next run.
func (a *Aggregator) Run(ctx context.Context) ([]ProviderPayout, error) {
	items, err := a.Store.UnsettledItems(ctx)
	if err != nil {
		return nil, err
	}
	byProvider := make(map[string]*ProviderPayout)
	order := make([]string, 0)
	for _, it := range items {
		p, ok := byProvider[it.ProviderID]
		if !ok {
			p = &ProviderPayout{ProviderID: it.ProviderID, Total: decimal.Zero}
			byProvider[it.ProviderID] = p
			order = append(order, it.ProviderID)
		}
		p.Total = p.Total.Add(it.Amount)
		p.QuoteIDs = append(p.QuoteIDs, it.QuoteID)
	}

	payouts := make([]ProviderPayout, 0, len(order))
	var settled []string
	for _, id := range order {
		p := byProvider[id]
		split, err := finance.CalculateSplits(p.Total, a.Cfg)
		if errors.Is(err, finance.ErrBelowMinimum) {
			a.Logger.Info("settlement carried over", "provider_id", id, "total", p.Total)
			continue
		}
		if err != nil {
			return nil, err
		}
		p.Total = split.Total
		p.Commission = split.Commission
		p.Payout = split.Payout
		payouts = append(payouts, *p)
		settled = append(settled, p.QuoteIDs...)
	}
	if err := a.Store.MarkSettled(ctx, settled); err != nil {
		return nil, err
	}
	a.Logger.Info("settlement run complete", "providers", len(payouts), "quotes", len(settled))
	return payouts, nil
}
