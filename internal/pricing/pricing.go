package pricing

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/example/roadside-dispatch/internal/models"
	"github.com/example/roadside-dispatch/internal/observability"
)

// SubscriptionSource looks up the booker's active subscription. Owned by the
// billing collaborator; a miss simply means no discount.
type SubscriptionSource interface {
	ActiveSubscription(ctx context.Context, bookerID string) (models.Subscription, bool)
}

// Distancer resolves distance and a time estimate; it must never fail
// (fallback-safe).
type Distancer interface {
	Km(ctx context.Context, from, to models.Coord) (float64, int)
}

// Engine computes dynamic quotes and final fares from the injected policy.
// Now is injectable so surge windows are testable.
type Engine struct {
	Cfg      Config
	Subs     SubscriptionSource
	Distance Distancer
	Now      func() time.Time
}

func NewEngine(cfg Config, subs SubscriptionSource, dist Distancer) *Engine {
	return &Engine{Cfg: cfg, Subs: subs, Distance: dist, Now: time.Now}
}

var two = int32(2)

// round applies the documented monetary rounding: half away from zero at
// two decimals (half-up for the non-negative amounts handled here).
func round(d decimal.Decimal) decimal.Decimal { return d.Round(two) }

// GenerateQuote prices a request against the assigned provider:
// base + distance charge, surge first, then the subscription discount,
// rounded half-up to two decimals. The quote is PENDING with a validity
// window.
func (e *Engine) GenerateQuote(ctx context.Context, req models.ServiceRequest, provider models.Provider) models.ServiceQuote {
	now := e.Now()

	var from models.Coord
	if provider.Loc != nil {
		from = *provider.Loc
	}
	km, minutes := e.Distance.Km(ctx, from, req.Location)
	distanceKm := decimal.NewFromFloat(km)

	vc := req.VehicleClass
	if vc == "" {
		vc = e.Cfg.DefaultVehicleClass
	}
	basePrice := e.Cfg.BasePrice(vc, req.ServiceType)
	perKm := e.Cfg.PerKmRate(vc)

	subtotal := basePrice.Add(distanceKm.Mul(perKm))
	if IsPeak(now) {
		subtotal = subtotal.Mul(e.Cfg.PeakMultiplier)
	}

	discount := decimal.Zero
	if e.Subs != nil {
		if sub, ok := e.Subs.ActiveSubscription(ctx, req.BookerID); ok && sub.Active {
			if rate, ok := e.Cfg.PlanDiscounts[sub.Tier]; ok {
				discount = rate
			}
		}
	}
	total := round(subtotal.Mul(decimal.NewFromInt(1).Sub(discount)))

	observability.QuotesGenerated.Inc()
	return models.ServiceQuote{
		ID:                  uuid.NewString(),
		RequestID:           req.ID,
		BasePrice:           basePrice,
		PerKmRate:           perKm,
		DistanceKm:          distanceKm.Round(two),
		TimeEstimateMinutes: minutes,
		DynamicTotal:        total,
		Status:              models.QuotePending,
		ValidUntil:          now.Add(e.Cfg.QuoteValidity),
		CreatedAt:           now,
	}
}

// Finalize reconciles a quote into a binding final fare after the service:
// service portion plus spare parts and platform fee, taxed, then split so
// that payout + expenses + profit equals the total exactly. The quote
// resets to PENDING for customer re-approval.
func (e *Engine) Finalize(quote *models.ServiceQuote, parts []models.SparePart) error {
	if quote.IsFinal {
		return &models.InvalidStateError{Entity: "quote " + quote.ID, From: "FINAL", To: "FINAL"}
	}
	partsTotal := decimal.Zero
	for _, p := range parts {
		if p.Price.IsNegative() {
			return &models.ValidationError{Field: "spare_parts", Reason: "negative price for " + p.Name}
		}
		partsTotal = partsTotal.Add(p.Price)
	}
	partsTotal = round(partsTotal)

	servicePortion := round(quote.BasePrice.Add(quote.DistanceKm.Mul(quote.PerKmRate)))
	taxable := servicePortion.Add(partsTotal).Add(e.Cfg.PlatformFee)
	tax := round(taxable.Mul(e.Cfg.TaxRate))
	total := taxable.Add(tax)

	payout := round(servicePortion.Mul(e.Cfg.ProviderShare)).Add(partsTotal)
	expenses := round(servicePortion.Mul(e.Cfg.ExpenseShare))
	profit := total.Sub(payout).Sub(expenses)

	quote.SpareParts = parts
	quote.SparePartsTotal = partsTotal
	quote.PlatformFee = e.Cfg.PlatformFee
	quote.TaxAmount = tax
	quote.DynamicTotal = total
	quote.ProviderPayout = payout
	quote.ExpensesAmount = expenses
	quote.PlatformProfit = profit
	quote.IsFinal = true
	quote.Status = models.QuotePending
	quote.ValidUntil = e.Now().Add(e.Cfg.QuoteValidity)

	observability.QuotesFinalized.Inc()
	return nil
}
