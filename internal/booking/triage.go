package booking

import (
	"strings"

	"github.com/example/roadside-dispatch/internal/models"
)

// Triage is the keyword classifier's suggestion for an unclassified
// booking. A production deployment swaps this for the external triage
// service; the contract is the same either way.
type Triage struct {
	ServiceType models.ServiceType
	Priority    models.Priority
	Confidence  float64
}

type triageRule struct {
	keyword     string
	serviceType models.ServiceType
	priority    models.Priority
}

// Ordered: first matching keyword wins.
var triageRules = []triageRule{
	{"fire", models.ServiceMechanic, models.PriorityUrgent},
	{"smoke", models.ServiceMechanic, models.PriorityHigh},
	{"ditch", models.ServiceTowing, models.PriorityUrgent},
	{"stuck", models.ServiceTowing, models.PriorityHigh},
	{"flat", models.ServiceFlatTire, models.PriorityMedium},
	{"puncture", models.ServiceFlatTire, models.PriorityMedium},
	{"battery", models.ServiceBatteryJump, models.PriorityLow},
	{"dead", models.ServiceBatteryJump, models.PriorityLow},
	{"fuel", models.ServiceFuelDelivery, models.PriorityLow},
	{"gas", models.ServiceFuelDelivery, models.PriorityLow},
	{"locked", models.ServiceLockout, models.PriorityMedium},
	{"keys", models.ServiceLockout, models.PriorityMedium},
}

// Classify maps free-text notes to a suggested service type and priority.
func Classify(notes string) Triage {
	lower := strings.ToLower(notes)
	for _, r := range triageRules {
		if strings.Contains(lower, r.keyword) {
			return Triage{ServiceType: r.serviceType, Priority: r.priority, Confidence: 0.85}
		}
	}
	return Triage{ServiceType: models.ServiceMechanic, Priority: models.PriorityLow, Confidence: 0.4}
}
