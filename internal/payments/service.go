package payments

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/example/roadside-dispatch/internal/dispatch"
	"github.com/example/roadside-dispatch/internal/models"
	"github.com/example/roadside-dispatch/internal/storage"
)

var hundred = decimal.NewFromInt(100)

// Pricer finalizes a quote into a final fare.
type Pricer interface {
	Finalize(q *models.ServiceQuote, parts []models.SparePart) error
}

// Service owns the quote lifecycle and the payment-confirmation path, the
// only route to COMPLETED.
type Service struct {
	Store   storage.RequestStore
	Gateway Gateway // optional; nil skips holds/captures
	Pricer  Pricer
	Logger  *slog.Logger
	Now     func() time.Time
}

func NewService(store storage.RequestStore, gateway Gateway, pricer Pricer, logger *slog.Logger) *Service {
	return &Service{Store: store, Gateway: gateway, Pricer: pricer, Logger: logger, Now: time.Now}
}

// AcceptQuote moves a pending quote to ACCEPTED. Accepting a final fare
// advances the request to FINAL_FARE_PENDING and places a payment hold.
// A gateway failure is absorbed; the hold is retried at capture time.
func (s *Service) AcceptQuote(ctx context.Context, actor models.Actor, quoteID string) (*models.ServiceQuote, error) {
	quote, err := s.Store.GetQuote(ctx, quoteID)
	if err != nil {
		return nil, err
	}
	if quote.Status != models.QuotePending {
		return nil, &models.InvalidStateError{Entity: "quote " + quoteID, From: string(quote.Status), To: string(models.QuoteAccepted)}
	}
	if s.Now().After(quote.ValidUntil) {
		return nil, &models.InvalidStateError{Entity: "quote " + quoteID, From: "EXPIRED", To: string(models.QuoteAccepted)}
	}

	updated, err := s.Store.UpdateQuoteStatus(ctx, quoteID, models.QuotePending, models.QuoteAccepted)
	if err != nil {
		if errors.Is(err, storage.ErrStatusConflict) {
			return nil, &models.InvalidStateError{Entity: "quote " + quoteID, From: string(quote.Status), To: string(models.QuoteAccepted)}
		}
		return nil, err
	}

	if updated.IsFinal {
		if _, err := s.Store.UpdateRequestStatus(ctx, updated.RequestID, models.StatusAwaitingFinalFare, models.StatusFinalFarePending); err != nil && !errors.Is(err, storage.ErrStatusConflict) {
			return nil, err
		}
		if s.Gateway != nil {
			amountMinor := updated.DynamicTotal.Mul(hundred).IntPart()
			if amountMinor > 0 {
				ref, err := s.Gateway.Hold(ctx, amountMinor, "", actor.ID)
				if err != nil {
					s.Logger.Warn("payment hold failed", "quote_id", quoteID, "error", err)
				} else {
					updated.PaymentRef = ref
					if err := s.Store.UpdateQuote(ctx, updated); err != nil {
						s.Logger.Warn("payment ref persist failed", "quote_id", quoteID, "error", err)
					}
				}
			}
		}
	}
	return updated, nil
}

// RejectQuote moves a pending quote to REJECTED and releases any hold.
func (s *Service) RejectQuote(ctx context.Context, actor models.Actor, quoteID string) (*models.ServiceQuote, error) {
	quote, err := s.Store.GetQuote(ctx, quoteID)
	if err != nil {
		return nil, err
	}
	if quote.Status != models.QuotePending {
		return nil, &models.InvalidStateError{Entity: "quote " + quoteID, From: string(quote.Status), To: string(models.QuoteRejected)}
	}
	updated, err := s.Store.UpdateQuoteStatus(ctx, quoteID, models.QuotePending, models.QuoteRejected)
	if err != nil {
		return nil, err
	}
	if updated.PaymentRef != "" && s.Gateway != nil {
		if err := s.Gateway.Cancel(ctx, updated.PaymentRef); err != nil {
			s.Logger.Warn("payment hold release failed", "quote_id", quoteID, "error", err)
		}
	}
	return updated, nil
}

// FinalizeQuote reconciles the quote into a binding final fare after the
// provider reports the work done. Only the assigned provider may finalize,
// and only while the request is in SERVICE_IN_PROGRESS.
func (s *Service) FinalizeQuote(ctx context.Context, actor models.Actor, quoteID string, parts []models.SparePart) (*models.ServiceQuote, error) {
	quote, err := s.Store.GetQuote(ctx, quoteID)
	if err != nil {
		return nil, err
	}
	req, err := s.Store.GetRequest(ctx, quote.RequestID)
	if err != nil {
		return nil, err
	}
	if actor.Role == models.RoleProvider && req.ProviderID != actor.ID {
		return nil, &models.ValidationError{Field: "provider", Reason: "request assigned to another provider"}
	}
	if req.Status != models.StatusServiceInProgress {
		return nil, &models.InvalidStateError{Entity: "request " + req.ID, From: string(req.Status), To: string(models.StatusAwaitingFinalFare)}
	}
	if err := s.Pricer.Finalize(quote, parts); err != nil {
		return nil, err
	}
	// Quote first: the request never advances without a stored final fare.
	if err := s.Store.UpdateQuote(ctx, quote); err != nil {
		return nil, err
	}
	if _, err := s.Store.UpdateRequestStatus(ctx, req.ID, models.StatusServiceInProgress, models.StatusAwaitingFinalFare); err != nil {
		if errors.Is(err, storage.ErrStatusConflict) {
			return nil, &models.InvalidStateError{Entity: "request " + req.ID, From: string(req.Status), To: string(models.StatusAwaitingFinalFare)}
		}
		return nil, err
	}
	s.Logger.Info("quote finalized", "quote_id", quote.ID, "request_id", req.ID, "total", quote.DynamicTotal)
	return quote, nil
}

// ConfirmPayment is called by the payment-webhook collaborator after it has
// verified funds. It captures the hold, completes the request and emits the
// reward event for the loyalty collaborator.
func (s *Service) ConfirmPayment(ctx context.Context, requestID string) (*models.ServiceRequest, []dispatch.Event, error) {
	req, err := s.Store.GetRequest(ctx, requestID)
	if err != nil {
		return nil, nil, err
	}
	if req.Status != models.StatusFinalFarePending {
		return nil, nil, &models.InvalidStateError{Entity: "request " + requestID, From: string(req.Status), To: string(models.StatusCompleted)}
	}

	quote, err := s.Store.ActiveQuote(ctx, requestID)
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		return nil, nil, err
	}
	if quote != nil && quote.PaymentRef != "" && s.Gateway != nil {
		if err := s.Gateway.Capture(ctx, quote.PaymentRef); err != nil {
			// The webhook retries; leave the request uncompleted.
			return nil, nil, err
		}
	}

	updated, err := s.Store.UpdateRequestStatus(ctx, requestID, models.StatusFinalFarePending, models.StatusCompleted)
	if err != nil {
		if errors.Is(err, storage.ErrStatusConflict) {
			return nil, nil, &models.InvalidStateError{Entity: "request " + requestID, From: string(req.Status), To: string(models.StatusCompleted)}
		}
		return nil, nil, err
	}

	events := []dispatch.Event{{Kind: dispatch.EventRewardCompleted, RequestID: requestID}}
	if quote != nil {
		km, _ := quote.DistanceKm.Float64()
		events[0].DistanceKm = km
	}
	s.Logger.Info("payment confirmed", "request_id", requestID)
	return updated, events, nil
}
