package models

// RequestStatus is the lifecycle state of a ServiceRequest.
type RequestStatus string

const (
	StatusPendingDispatch   RequestStatus = "PENDING_DISPATCH"
	StatusDispatched        RequestStatus = "DISPATCHED"
	StatusArrived           RequestStatus = "ARRIVED"
	StatusServiceInProgress RequestStatus = "SERVICE_IN_PROGRESS"
	StatusAwaitingFinalFare RequestStatus = "AWAITING_FINAL_FARE"
	StatusFinalFarePending  RequestStatus = "FINAL_FARE_PENDING"
	StatusCompleted         RequestStatus = "COMPLETED"
	StatusCancelled         RequestStatus = "CANCELLED"
)

type QuoteStatus string

const (
	QuotePending  QuoteStatus = "PENDING"
	QuoteAccepted QuoteStatus = "ACCEPTED"
	QuoteRejected QuoteStatus = "REJECTED"
)

// requestTransitions is the legal forward edges of the request lifecycle.
// CANCELLED is reachable from every non-terminal state and handled in
// CanTransition rather than listed per state.
var requestTransitions = map[RequestStatus][]RequestStatus{
	StatusPendingDispatch:   {StatusDispatched},
	StatusDispatched:        {StatusArrived},
	StatusArrived:           {StatusServiceInProgress},
	StatusServiceInProgress: {StatusAwaitingFinalFare},
	StatusAwaitingFinalFare: {StatusFinalFarePending},
	StatusFinalFarePending:  {StatusCompleted},
}

func ValidRequestStatus(s RequestStatus) bool {
	switch s {
	case StatusPendingDispatch, StatusDispatched, StatusArrived,
		StatusServiceInProgress, StatusAwaitingFinalFare,
		StatusFinalFarePending, StatusCompleted, StatusCancelled:
		return true
	}
	return false
}

func (s RequestStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

// CanTransition reports whether from -> to is a legal lifecycle edge.
func CanTransition(from, to RequestStatus) bool {
	if to == StatusCancelled {
		return !from.Terminal()
	}
	for _, next := range requestTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Transition applies a status change after checking legality. COMPLETED is
// additionally guarded by the payment-confirmation path; callers outside
// that path must reject it before calling here.
func (r *ServiceRequest) Transition(to RequestStatus) error {
	if !ValidRequestStatus(to) {
		return &ValidationError{Field: "status", Reason: "unknown status " + string(to)}
	}
	if !CanTransition(r.Status, to) {
		return &InvalidStateError{Entity: "request " + r.ID, From: string(r.Status), To: string(to)}
	}
	r.Status = to
	return nil
}

var quoteTransitions = map[QuoteStatus][]QuoteStatus{
	QuotePending: {QuoteAccepted, QuoteRejected},
}

func CanTransitionQuote(from, to QuoteStatus) bool {
	for _, next := range quoteTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}
