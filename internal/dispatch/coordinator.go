package dispatch

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"github.com/example/roadside-dispatch/internal/models"
	"github.com/example/roadside-dispatch/internal/observability"
	"github.com/example/roadside-dispatch/internal/rank"
	"github.com/example/roadside-dispatch/internal/storage"
)

type ResultStatus string

const (
	ResultDispatched ResultStatus = "DISPATCHED"
	ResultNoProvider ResultStatus = "NO_PROVIDER"
)

// Result is the outcome of one dispatch attempt. Events are outbound
// commands for the caller to execute against the notification collaborators;
// the core never fires side effects on its own.
type Result struct {
	Status     ResultStatus    `json:"status"`
	ProviderID string          `json:"provider_id,omitempty"`
	QuoteID    string          `json:"quote_id,omitempty"`
	Total      decimal.Decimal `json:"total"`
	Events     []Event         `json:"-"`
}

type Ranker interface {
	Rank(req models.ServiceRequest) []rank.Candidate
}

type Quoter interface {
	GenerateQuote(ctx context.Context, req models.ServiceRequest, provider models.Provider) models.ServiceQuote
}

// Coordinator orchestrates ranking, assignment, quoting and the outbound
// notification trigger. Assignment and quote persistence share one
// transaction in the store; the distance lookup and notifications stay
// outside the atomicity boundary.
type Coordinator struct {
	Ranker     Ranker
	Quoter     Quoter
	Store      storage.RequestStore
	StuckAfter time.Duration // re-dispatch window for the escalation sweep
}

// TriggerDispatch runs one dispatch attempt. Re-invoking it on an
// already-dispatched request is a safe no-op returning the standing
// assignment, so at-least-once triggers are tolerated.
func (c *Coordinator) TriggerDispatch(ctx context.Context, requestID string) (Result, error) {
	start := time.Now()
	defer func() { observability.DispatchLatency.Observe(time.Since(start).Seconds()) }()

	req, err := c.Store.GetRequest(ctx, requestID)
	if err != nil {
		return Result{}, err
	}
	if req.Status.Terminal() {
		return Result{}, &models.InvalidStateError{Entity: "request " + req.ID, From: string(req.Status), To: string(models.StatusDispatched)}
	}
	if req.Status != models.StatusPendingDispatch {
		return c.standingAssignment(ctx, req)
	}
	return c.assign(ctx, req)
}

// Escalate re-dispatches a request stuck in DISPATCHED past the timeout,
// which may reassign to a different nearest provider. Requests that have
// progressed since are left alone.
func (c *Coordinator) Escalate(ctx context.Context, requestID string) (Result, error) {
	req, err := c.Store.GetRequest(ctx, requestID)
	if err != nil {
		return Result{}, err
	}
	if req.Status != models.StatusDispatched {
		return Result{}, &models.InvalidStateError{Entity: "request " + req.ID, From: string(req.Status), To: string(models.StatusDispatched)}
	}
	stuckAfter := c.StuckAfter
	if stuckAfter <= 0 {
		stuckAfter = 15 * time.Minute
	}
	if time.Since(req.UpdatedAt) < stuckAfter {
		return c.standingAssignment(ctx, req)
	}
	return c.assign(ctx, req)
}

func (c *Coordinator) assign(ctx context.Context, req *models.ServiceRequest) (Result, error) {
	cands := c.Ranker.Rank(*req)
	if len(cands) == 0 {
		observability.DispatchNoCapacity.Inc()
		return Result{Status: ResultNoProvider}, nil
	}
	best := cands[0]

	// Quote generation may hit the external distance API, so it happens
	// before the assignment transaction opens.
	quote := c.Quoter.GenerateQuote(ctx, *req, best.Provider)

	err := c.Store.AssignProvider(ctx, req.ID, req.Version, best.Provider.ID, &quote)
	switch {
	case errors.Is(err, storage.ErrVersionConflict):
		// Lost the race. If another dispatcher won, report its assignment
		// as a no-op success; if the request was cancelled, reject.
		observability.DispatchConflicts.Inc()
		cur, gerr := c.Store.GetRequest(ctx, req.ID)
		if gerr != nil {
			return Result{}, gerr
		}
		if cur.Status.Terminal() {
			return Result{}, &models.InvalidStateError{Entity: "request " + req.ID, From: string(cur.Status), To: string(models.StatusDispatched)}
		}
		return c.standingAssignment(ctx, cur)
	case errors.Is(err, storage.ErrTerminalState):
		return Result{}, &models.InvalidStateError{Entity: "request " + req.ID, From: string(models.StatusCancelled), To: string(models.StatusDispatched)}
	case err != nil:
		return Result{}, err
	}

	observability.DispatchesTotal.Inc()
	return Result{
		Status:     ResultDispatched,
		ProviderID: best.Provider.ID,
		QuoteID:    quote.ID,
		Total:      quote.DynamicTotal,
		Events: []Event{{
			Kind:        EventProviderNotify,
			ProviderID:  best.Provider.ID,
			RequestID:   req.ID,
			ServiceType: req.ServiceType,
			QuoteID:     quote.ID,
			Total:       quote.DynamicTotal,
		}},
	}, nil
}

// standingAssignment reports an already-dispatched request without touching
// it: no new quote, no reassignment, no events.
func (c *Coordinator) standingAssignment(ctx context.Context, req *models.ServiceRequest) (Result, error) {
	res := Result{Status: ResultDispatched, ProviderID: req.ProviderID}
	if q, err := c.Store.ActiveQuote(ctx, req.ID); err == nil {
		res.QuoteID = q.ID
		res.Total = q.DynamicTotal
	}
	return res, nil
}
