package dispatch

import (
	"github.com/shopspring/decimal"

	"github.com/example/roadside-dispatch/internal/models"
)

type EventKind string

const (
	// EventProviderNotify tells the notification collaborator about a new job.
	EventProviderNotify EventKind = "PROVIDER_NOTIFY"
	// EventRewardCompleted tells the loyalty collaborator a paid service
	// finished.
	EventRewardCompleted EventKind = "REWARD_COMPLETED"
)

// Event is an outbound command emitted by the core and executed by the
// calling layer. Delivery is fire-and-forget: a failed event never rolls
// back the transaction that produced it.
type Event struct {
	Kind        EventKind          `json:"kind"`
	ProviderID  string             `json:"provider_id,omitempty"`
	RequestID   string             `json:"request_id"`
	ServiceType models.ServiceType `json:"service_type,omitempty"`
	QuoteID     string             `json:"quote_id,omitempty"`
	Total       decimal.Decimal    `json:"total,omitempty"`
	DistanceKm  float64            `json:"distance_km,omitempty"`
}
