package pricing

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/example/roadside-dispatch/internal/models"
)

// Config carries the injected pricing policy: base-price and per-km tables
// keyed by vehicle class, subscription discounts, surge policy and the
// final-fare split shares. Tests substitute deterministic tables instead of
// mutating package state.
type Config struct {
	BasePrices    map[models.VehicleClass]map[models.ServiceType]decimal.Decimal
	PerKmRates    map[models.VehicleClass]decimal.Decimal
	PlanDiscounts map[models.PlanTier]decimal.Decimal

	// Peak surge applies on weekdays 08:00-10:00 and 18:00-21:00 local time.
	PeakMultiplier decimal.Decimal

	PlatformFee   decimal.Decimal
	TaxRate       decimal.Decimal
	ProviderShare decimal.Decimal // of the service portion
	ExpenseShare  decimal.Decimal // of the service portion

	QuoteValidity       time.Duration
	DefaultVehicleClass models.VehicleClass
}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

// DefaultConfig returns the production policy tables (amounts in INR).
func DefaultConfig() Config {
	return Config{
		BasePrices: map[models.VehicleClass]map[models.ServiceType]decimal.Decimal{
			models.VehicleTwoWheeler: {
				models.ServiceTowing:       dec("150.00"),
				models.ServiceBatteryJump:  dec("80.00"),
				models.ServiceFlatTire:     dec("100.00"),
				models.ServiceFuelDelivery: dec("70.00"),
				models.ServiceLockout:      dec("120.00"),
				models.ServiceOther:        dec("100.00"),
			},
			models.VehicleThreeWheeler: {
				models.ServiceTowing:       dec("200.00"),
				models.ServiceBatteryJump:  dec("100.00"),
				models.ServiceFlatTire:     dec("120.00"),
				models.ServiceFuelDelivery: dec("90.00"),
				models.ServiceLockout:      dec("150.00"),
				models.ServiceOther:        dec("130.00"),
			},
			models.VehicleFourWheeler: {
				models.ServiceTowing:       dec("300.00"),
				models.ServiceBatteryJump:  dec("150.00"),
				models.ServiceFlatTire:     dec("200.00"),
				models.ServiceFuelDelivery: dec("150.00"),
				models.ServiceLockout:      dec("250.00"),
				models.ServiceOther:        dec("250.00"),
			},
			models.VehicleSUV: {
				models.ServiceTowing:       dec("500.00"),
				models.ServiceBatteryJump:  dec("250.00"),
				models.ServiceFlatTire:     dec("350.00"),
				models.ServiceFuelDelivery: dec("250.00"),
				models.ServiceLockout:      dec("400.00"),
				models.ServiceOther:        dec("400.00"),
			},
			models.VehicleVan: {
				models.ServiceTowing:       dec("600.00"),
				models.ServiceBatteryJump:  dec("300.00"),
				models.ServiceFlatTire:     dec("400.00"),
				models.ServiceFuelDelivery: dec("300.00"),
				models.ServiceLockout:      dec("450.00"),
				models.ServiceOther:        dec("450.00"),
			},
			models.VehicleTruck: {
				models.ServiceTowing:       dec("800.00"),
				models.ServiceBatteryJump:  dec("400.00"),
				models.ServiceFlatTire:     dec("500.00"),
				models.ServiceFuelDelivery: dec("400.00"),
				models.ServiceLockout:      dec("550.00"),
				models.ServiceOther:        dec("600.00"),
			},
			models.VehicleHeavy: {
				models.ServiceTowing:       dec("1200.00"),
				models.ServiceBatteryJump:  dec("600.00"),
				models.ServiceFlatTire:     dec("800.00"),
				models.ServiceFuelDelivery: dec("600.00"),
				models.ServiceLockout:      dec("800.00"),
				models.ServiceOther:        dec("1000.00"),
			},
		},
		PerKmRates: map[models.VehicleClass]decimal.Decimal{
			models.VehicleTwoWheeler:   dec("5.00"),
			models.VehicleThreeWheeler: dec("6.00"),
			models.VehicleFourWheeler:  dec("10.00"),
			models.VehicleSUV:          dec("15.00"),
			models.VehicleVan:          dec("18.00"),
			models.VehicleTruck:        dec("25.00"),
			models.VehicleHeavy:        dec("35.00"),
		},
		PlanDiscounts: map[models.PlanTier]decimal.Decimal{
			models.PlanFree:    dec("0.00"),
			models.PlanBasic:   dec("0.15"),
			models.PlanPremium: dec("0.25"),
			models.PlanGold:    dec("1.00"), // free service
		},
		PeakMultiplier:      dec("1.2"),
		PlatformFee:         dec("11.00"),
		TaxRate:             dec("0.18"),
		ProviderShare:       dec("0.70"),
		ExpenseShare:        dec("0.08"),
		QuoteValidity:       30 * time.Minute,
		DefaultVehicleClass: models.VehicleFourWheeler,
	}
}

// BasePrice resolves the table entry for a vehicle class and service type,
// falling back to the default class and the OTHER row.
func (c Config) BasePrice(vc models.VehicleClass, st models.ServiceType) decimal.Decimal {
	table, ok := c.BasePrices[vc]
	if !ok {
		table = c.BasePrices[c.DefaultVehicleClass]
	}
	if price, ok := table[st]; ok {
		return price
	}
	return table[models.ServiceOther]
}

func (c Config) PerKmRate(vc models.VehicleClass) decimal.Decimal {
	if rate, ok := c.PerKmRates[vc]; ok {
		return rate
	}
	return c.PerKmRates[c.DefaultVehicleClass]
}

// IsPeak reports whether t falls in a weekday surge window.
func IsPeak(t time.Time) bool {
	switch t.Weekday() {
	case time.Saturday, time.Sunday:
		return false
	}
	h := t.Hour()
	return (h >= 8 && h < 10) || (h >= 18 && h < 21)
}
