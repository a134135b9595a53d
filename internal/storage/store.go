package storage

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"github.com/example/roadside-dispatch/internal/models"
)

var (
	ErrNotFound = errors.New("not found")
	// ErrVersionConflict means a concurrent writer won the compare-and-swap;
	// the caller should re-read and usually treat the loss as a no-op.
	ErrVersionConflict = errors.New("request version conflict")
	// ErrTerminalState means the request was completed or cancelled before
	// the write committed.
	ErrTerminalState = errors.New("request in terminal state")
	// ErrStatusConflict means the conditional status update did not match.
	ErrStatusConflict = errors.New("request status changed")
)

// SettlementItem is one unsettled accepted quote, flattened with the
// provider it pays out to.
type SettlementItem struct {
	QuoteID    string
	RequestID  string
	ProviderID string
	Amount     decimal.Decimal
}

// RequestStore defines persistence for requests and their quotes.
// AssignProvider is the atomicity boundary of dispatch: the assignment CAS
// and the quote insert commit or roll back together.
type RequestStore interface {
	CreateRequest(ctx context.Context, r *models.ServiceRequest) error
	GetRequest(ctx context.Context, id string) (*models.ServiceRequest, error)

	// AssignProvider assigns the provider and persists the quote in one
	// transaction, guarded by the version compare-and-swap. Any still-open
	// quote on the request is superseded (rejected) so at most one active
	// quote exists.
	AssignProvider(ctx context.Context, requestID string, expectedVersion int64, providerID string, quote *models.ServiceQuote) error

	// UpdateRequestStatus applies from -> to only if the row is still in
	// from, returning the updated request.
	UpdateRequestStatus(ctx context.Context, id string, from, to models.RequestStatus) (*models.ServiceRequest, error)
	CancelRequest(ctx context.Context, id string) (*models.ServiceRequest, error)

	GetQuote(ctx context.Context, id string) (*models.ServiceQuote, error)
	// ActiveQuote returns the newest non-rejected quote for a request.
	ActiveQuote(ctx context.Context, requestID string) (*models.ServiceQuote, error)
	UpdateQuote(ctx context.Context, q *models.ServiceQuote) error
	UpdateQuoteStatus(ctx context.Context, id string, from, to models.QuoteStatus) (*models.ServiceQuote, error)

	// StuckDispatched lists requests sitting in DISPATCHED with no progress
	// since the given time, for the escalation sweep.
	StuckDispatched(ctx context.Context, before time.Time) ([]*models.ServiceRequest, error)

	UnsettledItems(ctx context.Context) ([]SettlementItem, error)
	MarkSettled(ctx context.Context, quoteIDs []string) error
}
