package pricing

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/roadside-dispatch/internal/models"
)

type fixedDistance struct {
	km      float64
	minutes int
}

func (f fixedDistance) Km(ctx context.Context, from, to models.Coord) (float64, int) {
	return f.km, f.minutes
}

// Monday 12:00, outside both surge windows.
var offPeak = time.Date(2026, 8, 31, 12, 0, 0, 0, time.UTC)

// Monday 09:00, inside the morning surge window.
var morningPeak = time.Date(2026, 8, 31, 9, 0, 0, 0, time.UTC)

func testEngine(now time.Time, dist fixedDistance, subs SubscriptionSource) *Engine {
	e := NewEngine(DefaultConfig(), subs, dist)
	e.Now = func() time.Time { return now }
	return e
}

func towingRequest() models.ServiceRequest {
	return models.ServiceRequest{
		ID:           "req1",
		BookerID:     "b1",
		VehicleClass: models.VehicleFourWheeler,
		ServiceType:  models.ServiceTowing,
		Location:     models.Coord{Lat: 19.0760, Lon: 72.8777},
	}
}

func provider() models.Provider {
	return models.Provider{ID: "p1", Loc: &models.Coord{Lat: 19.09, Lon: 72.88}}
}

func TestGenerateQuoteOffPeak(t *testing.T) {
	e := testEngine(offPeak, fixedDistance{km: 7.5, minutes: 22}, nil)
	q := e.GenerateQuote(context.Background(), towingRequest(), provider())

	// 300 base + 7.5 km * 10/km
	assert.Equal(t, "375.00", q.DynamicTotal.StringFixed(2))
	assert.Equal(t, models.QuotePending, q.Status)
	assert.Equal(t, 22, q.TimeEstimateMinutes)
	assert.Equal(t, offPeak.Add(30*time.Minute), q.ValidUntil)
	assert.False(t, q.IsFinal)
}

func TestGenerateQuotePeakSurge(t *testing.T) {
	e := testEngine(morningPeak, fixedDistance{km: 7.5}, nil)
	q := e.GenerateQuote(context.Background(), towingRequest(), provider())

	// 375 * 1.2
	assert.Equal(t, "450.00", q.DynamicTotal.StringFixed(2))
}

func TestIsPeakWindows(t *testing.T) {
	day := func(d int, h, m int) time.Time { return time.Date(2026, 8, d, h, m, 0, 0, time.UTC) }
	assert.True(t, IsPeak(day(31, 8, 0)))    // Monday 08:00 inclusive
	assert.True(t, IsPeak(day(31, 9, 59)))   // still morning window
	assert.False(t, IsPeak(day(31, 10, 0)))  // 10:00 exclusive
	assert.True(t, IsPeak(day(31, 18, 30)))  // evening window
	assert.True(t, IsPeak(day(31, 20, 59)))  // still evening window
	assert.False(t, IsPeak(day(31, 21, 0)))  // 21:00 exclusive
	assert.False(t, IsPeak(day(30, 9, 0)))   // Sunday morning, no surge
}

type fixedSubs struct{ sub models.Subscription }

func (f fixedSubs) ActiveSubscription(ctx context.Context, bookerID string) (models.Subscription, bool) {
	return f.sub, true
}

func TestGenerateQuoteSubscriptionDiscounts(t *testing.T) {
	cases := []struct {
		tier models.PlanTier
		want string
	}{
		{models.PlanFree, "375.00"},
		{models.PlanBasic, "318.75"},
		{models.PlanPremium, "281.25"},
		{models.PlanGold, "0.00"},
	}
	for _, tc := range cases {
		subs := fixedSubs{sub: models.Subscription{BookerID: "b1", Tier: tc.tier, Active: true}}
		e := testEngine(offPeak, fixedDistance{km: 7.5}, subs)
		q := e.GenerateQuote(context.Background(), towingRequest(), provider())
		assert.Equal(t, tc.want, q.DynamicTotal.StringFixed(2), "tier %s", tc.tier)
	}
}

func TestGenerateQuoteSurgeBeforeDiscount(t *testing.T) {
	subs := fixedSubs{sub: models.Subscription{BookerID: "b1", Tier: models.PlanBasic, Active: true}}
	e := testEngine(morningPeak, fixedDistance{km: 7.5}, subs)
	q := e.GenerateQuote(context.Background(), towingRequest(), provider())

	// (375 * 1.2) * 0.85
	assert.Equal(t, "382.50", q.DynamicTotal.StringFixed(2))
}

func TestGenerateQuoteRoundsHalfUp(t *testing.T) {
	e := testEngine(offPeak, fixedDistance{km: 0.0005}, nil)
	q := e.GenerateQuote(context.Background(), towingRequest(), provider())

	// 300 + 0.0005 * 10 = 300.005 -> 300.01
	assert.Equal(t, "300.01", q.DynamicTotal.StringFixed(2))
}

func TestFinalizeSplitsReconcile(t *testing.T) {
	e := testEngine(offPeak, fixedDistance{km: 7.5}, nil)
	q := e.GenerateQuote(context.Background(), towingRequest(), provider())

	parts := []models.SparePart{
		{Name: "tow hook", Price: decimal.RequireFromString("100.00")},
		{Name: "shackle", Price: decimal.RequireFromString("20.50")},
	}
	require.NoError(t, e.Finalize(&q, parts))

	assert.True(t, q.IsFinal)
	assert.Equal(t, "120.50", q.SparePartsTotal.StringFixed(2))
	assert.Equal(t, "11.00", q.PlatformFee.StringFixed(2))
	// taxable 375 + 120.50 + 11 = 506.50, tax 18%
	assert.Equal(t, "91.17", q.TaxAmount.StringFixed(2))
	assert.Equal(t, "597.67", q.DynamicTotal.StringFixed(2))
	// provider 70% of service portion plus parts at cost
	assert.Equal(t, "383.00", q.ProviderPayout.StringFixed(2))
	assert.Equal(t, "30.00", q.ExpensesAmount.StringFixed(2))

	sum := q.ProviderPayout.Add(q.ExpensesAmount).Add(q.PlatformProfit)
	assert.True(t, sum.Equal(q.DynamicTotal), "payout %s + expenses %s + profit %s != total %s",
		q.ProviderPayout, q.ExpensesAmount, q.PlatformProfit, q.DynamicTotal)
}

func TestFinalizeTwiceRejected(t *testing.T) {
	e := testEngine(offPeak, fixedDistance{km: 7.5}, nil)
	q := e.GenerateQuote(context.Background(), towingRequest(), provider())

	require.NoError(t, e.Finalize(&q, nil))
	err := e.Finalize(&q, nil)
	var serr *models.InvalidStateError
	require.ErrorAs(t, err, &serr)
}

func TestFinalizeNegativePartRejected(t *testing.T) {
	e := testEngine(offPeak, fixedDistance{km: 7.5}, nil)
	q := e.GenerateQuote(context.Background(), towingRequest(), provider())

	err := e.Finalize(&q, []models.SparePart{{Name: "bad", Price: decimal.RequireFromString("-1.00")}})
	var verr *models.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.False(t, q.IsFinal)
}

func TestDefaultVehicleClassFallback(t *testing.T) {
	e := testEngine(offPeak, fixedDistance{km: 0}, nil)
	req := towingRequest()
	req.VehicleClass = ""
	q := e.GenerateQuote(context.Background(), req, provider())

	assert.Equal(t, "300.00", q.DynamicTotal.StringFixed(2))
}
