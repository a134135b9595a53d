package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type Coord struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// ServiceType is the category of roadside assistance requested.
type ServiceType string

const (
	ServiceTowing       ServiceType = "TOWING"
	ServiceFlatTire     ServiceType = "FLAT_TIRE"
	ServiceBatteryJump  ServiceType = "BATTERY_JUMP"
	ServiceFuelDelivery ServiceType = "FUEL_DELIVERY"
	ServiceMechanic     ServiceType = "MECHANIC"
	ServiceLockout      ServiceType = "LOCKOUT"
	ServiceOther        ServiceType = "OTHER"
)

var serviceTypes = map[ServiceType]bool{
	ServiceTowing:       true,
	ServiceFlatTire:     true,
	ServiceBatteryJump:  true,
	ServiceFuelDelivery: true,
	ServiceMechanic:     true,
	ServiceLockout:      true,
	ServiceOther:        true,
}

func ValidServiceType(s ServiceType) bool { return serviceTypes[s] }

type Priority string

const (
	PriorityLow    Priority = "LOW"
	PriorityMedium Priority = "MEDIUM"
	PriorityHigh   Priority = "HIGH"
	PriorityUrgent Priority = "URGENT"
)

// Source tags where a booking entered the system.
type Source string

const (
	SourceApp        Source = "APP"
	SourceIoT        Source = "IOT"
	SourceHelpline   Source = "HELPLINE"
	SourceEscalation Source = "ESCALATION"
)

type VehicleClass string

const (
	VehicleTwoWheeler   VehicleClass = "TWO_WHEELER"
	VehicleThreeWheeler VehicleClass = "THREE_WHEELER"
	VehicleFourWheeler  VehicleClass = "FOUR_WHEELER"
	VehicleSUV          VehicleClass = "SUV"
	VehicleVan          VehicleClass = "VAN"
	VehicleTruck        VehicleClass = "TRUCK"
	VehicleHeavy        VehicleClass = "HEAVY_VEHICLE"
)

type PlanTier string

const (
	PlanFree    PlanTier = "FREE"
	PlanBasic   PlanTier = "BASIC"
	PlanPremium PlanTier = "PREMIUM"
	PlanGold    PlanTier = "GOLD"
)

// ServiceRequest records a single assistance episode. Rows are never
// hard-deleted; history is carried by the status field. Version guards
// concurrent assignment writes (compare-and-swap).
type ServiceRequest struct {
	ID           string        `json:"id"`
	BookerID     string        `json:"booker_id"`
	ProviderID   string        `json:"provider_id,omitempty"`
	VehicleID    string        `json:"vehicle_id,omitempty"`
	VehicleClass VehicleClass  `json:"vehicle_class"`
	ServiceType  ServiceType   `json:"service_type"`
	Status       RequestStatus `json:"status"`
	Priority     Priority      `json:"priority"`
	Location     Coord         `json:"location"`
	Notes        string        `json:"notes,omitempty"`
	Source       Source        `json:"source"`
	Version      int64         `json:"version"`
	CreatedAt    time.Time     `json:"created_at"`
	UpdatedAt    time.Time     `json:"updated_at"`
}

type SparePart struct {
	Name  string          `json:"name"`
	Price decimal.Decimal `json:"price"`
}

// ServiceQuote is one pricing offer for a request. A finalized quote carries
// the itemized final fare and the three-way split; it is immutable afterwards
// except for its status.
type ServiceQuote struct {
	ID                  string          `json:"id"`
	RequestID           string          `json:"request_id"`
	BasePrice           decimal.Decimal `json:"base_price"`
	PerKmRate           decimal.Decimal `json:"per_km_rate"`
	DistanceKm          decimal.Decimal `json:"distance_km"`
	TimeEstimateMinutes int             `json:"time_estimate_minutes"`
	DynamicTotal        decimal.Decimal `json:"dynamic_total"`
	Status              QuoteStatus     `json:"status"`
	ValidUntil          time.Time       `json:"valid_until"`

	SpareParts      []SparePart     `json:"spare_parts,omitempty"`
	SparePartsTotal decimal.Decimal `json:"spare_parts_total"`
	PlatformFee     decimal.Decimal `json:"platform_fee"`
	TaxAmount       decimal.Decimal `json:"tax_amount"`
	IsFinal         bool            `json:"is_final"`
	ProviderPayout  decimal.Decimal `json:"provider_payout"`
	ExpensesAmount  decimal.Decimal `json:"expenses_amount"`
	PlatformProfit  decimal.Decimal `json:"platform_profit"`

	// PaymentRef is the gateway hold placed at acceptance, captured on
	// payment confirmation.
	PaymentRef string `json:"payment_ref,omitempty"`

	Settled   bool      `json:"settled"`
	CreatedAt time.Time `json:"created_at"`
}

// Provider is owned by the identity service; the core only reads these
// fields. Loc is nil when the provider has never reported a position.
type Provider struct {
	ID            string        `json:"id"`
	Verified      bool          `json:"verified"`
	Available     bool          `json:"available"`
	Capabilities  []ServiceType `json:"capabilities,omitempty"`
	Loc           *Coord        `json:"loc,omitempty"`
	Rating        float64       `json:"rating"`
	CompletedJobs int           `json:"completed_jobs"`
	Updated       time.Time     `json:"updated"`
}

// CanServe reports whether the provider's capability list covers the given
// service type. An empty list means the provider takes any job.
func (p Provider) CanServe(st ServiceType) bool {
	if len(p.Capabilities) == 0 {
		return true
	}
	for _, c := range p.Capabilities {
		if c == st {
			return true
		}
	}
	return false
}

// Subscription is owned by the billing service; the pricing engine only
// reads the tier of an active subscription.
type Subscription struct {
	BookerID string    `json:"booker_id"`
	Tier     PlanTier  `json:"tier"`
	Active   bool      `json:"active"`
	EndDate  time.Time `json:"end_date"`
}
