package payments

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/example/roadside-dispatch/internal/dispatch"
	"github.com/example/roadside-dispatch/internal/models"
	"github.com/example/roadside-dispatch/internal/storage"
)

type fakeGateway struct {
	holds    int
	captures []string
	cancels  []string
	captureErr error
}

func (f *fakeGateway) Hold(ctx context.Context, amountMinor int64, currency, customerID string) (string, error) {
	f.holds++
	return "pi_test", nil
}

func (f *fakeGateway) Capture(ctx context.Context, id string) error {
	if f.captureErr != nil {
		return f.captureErr
	}
	f.captures = append(f.captures, id)
	return nil
}

func (f *fakeGateway) Cancel(ctx context.Context, id string) error {
	f.cancels = append(f.cancels, id)
	return nil
}

type fakePricer struct{}

func (fakePricer) Finalize(q *models.ServiceQuote, parts []models.SparePart) error {
	if q.IsFinal {
		return &models.InvalidStateError{Entity: "quote " + q.ID, From: "FINAL", To: "FINAL"}
	}
	q.IsFinal = true
	q.Status = models.QuotePending
	q.DynamicTotal = decimal.RequireFromString("597.67")
	q.ValidUntil = time.Now().Add(30 * time.Minute)
	return nil
}

func seed(t *testing.T, store storage.RequestStore, status models.RequestStatus) (*models.ServiceRequest, *models.ServiceQuote) {
	t.Helper()
	ctx := context.Background()
	req := &models.ServiceRequest{
		ID:          "r1",
		BookerID:    "b1",
		ServiceType: models.ServiceTowing,
		Status:      models.StatusPendingDispatch,
		Priority:    models.PriorityMedium,
		CreatedAt:   time.Now(),
		UpdatedAt:   time.Now(),
	}
	if err := store.CreateRequest(ctx, req); err != nil {
		t.Fatal(err)
	}
	quote := &models.ServiceQuote{
		ID:           "q1",
		RequestID:    "r1",
		BasePrice:    decimal.RequireFromString("300.00"),
		PerKmRate:    decimal.RequireFromString("10.00"),
		DistanceKm:   decimal.RequireFromString("7.50"),
		DynamicTotal: decimal.RequireFromString("375.00"),
		Status:       models.QuotePending,
		ValidUntil:   time.Now().Add(30 * time.Minute),
		CreatedAt:    time.Now(),
	}
	if err := store.AssignProvider(ctx, "r1", 0, "p1", quote); err != nil {
		t.Fatal(err)
	}
	for _, next := range []models.RequestStatus{
		models.StatusArrived, models.StatusServiceInProgress,
		models.StatusAwaitingFinalFare, models.StatusFinalFarePending,
	} {
		if status == models.StatusDispatched {
			break
		}
		cur, _ := store.GetRequest(ctx, "r1")
		if _, err := store.UpdateRequestStatus(ctx, "r1", cur.Status, next); err != nil {
			t.Fatal(err)
		}
		if next == status {
			break
		}
	}
	cur, _ := store.GetRequest(ctx, "r1")
	q, _ := store.GetQuote(ctx, "q1")
	return cur, q
}

func newTestService(store storage.RequestStore, gw Gateway) *Service {
	return NewService(store, gw, fakePricer{}, slog.Default())
}

func TestAcceptQuote(t *testing.T) {
	store := storage.NewMemoryStore()
	seed(t, store, models.StatusDispatched)
	svc := newTestService(store, &fakeGateway{})

	q, err := svc.AcceptQuote(context.Background(), models.BookerActor("b1"), "q1")
	if err != nil {
		t.Fatal(err)
	}
	if q.Status != models.QuoteAccepted {
		t.Fatalf("expected ACCEPTED, got %s", q.Status)
	}
}

func TestAcceptQuoteExpired(t *testing.T) {
	store := storage.NewMemoryStore()
	seed(t, store, models.StatusDispatched)
	svc := newTestService(store, &fakeGateway{})
	svc.Now = func() time.Time { return time.Now().Add(time.Hour) }

	_, err := svc.AcceptQuote(context.Background(), models.BookerActor("b1"), "q1")
	var serr *models.InvalidStateError
	if !errors.As(err, &serr) {
		t.Fatalf("expected expiry rejection, got %v", err)
	}
}

func TestAcceptQuoteTwiceRejected(t *testing.T) {
	store := storage.NewMemoryStore()
	seed(t, store, models.StatusDispatched)
	svc := newTestService(store, &fakeGateway{})

	if _, err := svc.AcceptQuote(context.Background(), models.BookerActor("b1"), "q1"); err != nil {
		t.Fatal(err)
	}
	_, err := svc.AcceptQuote(context.Background(), models.BookerActor("b1"), "q1")
	var serr *models.InvalidStateError
	if !errors.As(err, &serr) {
		t.Fatalf("expected InvalidStateError, got %v", err)
	}
}

func TestRejectQuote(t *testing.T) {
	store := storage.NewMemoryStore()
	seed(t, store, models.StatusDispatched)
	svc := newTestService(store, &fakeGateway{})

	q, err := svc.RejectQuote(context.Background(), models.BookerActor("b1"), "q1")
	if err != nil {
		t.Fatal(err)
	}
	if q.Status != models.QuoteRejected {
		t.Fatalf("expected REJECTED, got %s", q.Status)
	}
}

func TestFinalizeQuoteOwnershipAndFlow(t *testing.T) {
	store := storage.NewMemoryStore()
	seed(t, store, models.StatusServiceInProgress)
	svc := newTestService(store, &fakeGateway{})

	var verr *models.ValidationError
	if _, err := svc.FinalizeQuote(context.Background(), models.ProviderActor("intruder"), "q1", nil); !errors.As(err, &verr) {
		t.Fatalf("expected ownership rejection, got %v", err)
	}

	q, err := svc.FinalizeQuote(context.Background(), models.ProviderActor("p1"), "q1", nil)
	if err != nil {
		t.Fatal(err)
	}
	if !q.IsFinal {
		t.Fatal("quote not finalized")
	}
	req, _ := store.GetRequest(context.Background(), "r1")
	if req.Status != models.StatusAwaitingFinalFare {
		t.Fatalf("expected AWAITING_FINAL_FARE, got %s", req.Status)
	}
}

type quoteWriteFailStore struct {
	storage.RequestStore
	err error
}

func (s *quoteWriteFailStore) UpdateQuote(ctx context.Context, q *models.ServiceQuote) error {
	return s.err
}

func TestFinalizeQuoteWriteFailureKeepsRequestInProgress(t *testing.T) {
	inner := storage.NewMemoryStore()
	seed(t, inner, models.StatusServiceInProgress)
	store := &quoteWriteFailStore{RequestStore: inner, err: errors.New("db down")}
	svc := newTestService(store, &fakeGateway{})

	if _, err := svc.FinalizeQuote(context.Background(), models.ProviderActor("p1"), "q1", nil); err == nil {
		t.Fatal("expected quote write failure to propagate")
	}
	req, _ := inner.GetRequest(context.Background(), "r1")
	if req.Status != models.StatusServiceInProgress {
		t.Fatalf("request must stay SERVICE_IN_PROGRESS, got %s", req.Status)
	}
}

func TestFinalizeQuoteRequiresServiceInProgress(t *testing.T) {
	store := storage.NewMemoryStore()
	seed(t, store, models.StatusDispatched)
	svc := newTestService(store, &fakeGateway{})

	_, err := svc.FinalizeQuote(context.Background(), models.ProviderActor("p1"), "q1", nil)
	var serr *models.InvalidStateError
	if !errors.As(err, &serr) {
		t.Fatalf("expected InvalidStateError, got %v", err)
	}
	q, _ := store.GetQuote(context.Background(), "q1")
	if q.IsFinal {
		t.Fatal("quote must not be finalized outside SERVICE_IN_PROGRESS")
	}
}

func TestAcceptFinalFarePlacesHold(t *testing.T) {
	store := storage.NewMemoryStore()
	seed(t, store, models.StatusServiceInProgress)
	gw := &fakeGateway{}
	svc := newTestService(store, gw)

	if _, err := svc.FinalizeQuote(context.Background(), models.ProviderActor("p1"), "q1", nil); err != nil {
		t.Fatal(err)
	}
	q, err := svc.AcceptQuote(context.Background(), models.BookerActor("b1"), "q1")
	if err != nil {
		t.Fatal(err)
	}
	if gw.holds != 1 || q.PaymentRef != "pi_test" {
		t.Fatalf("hold not placed: holds=%d ref=%q", gw.holds, q.PaymentRef)
	}
	req, _ := store.GetRequest(context.Background(), "r1")
	if req.Status != models.StatusFinalFarePending {
		t.Fatalf("expected FINAL_FARE_PENDING, got %s", req.Status)
	}
}

func TestConfirmPaymentCompletes(t *testing.T) {
	store := storage.NewMemoryStore()
	seed(t, store, models.StatusServiceInProgress)
	gw := &fakeGateway{}
	svc := newTestService(store, gw)

	if _, err := svc.FinalizeQuote(context.Background(), models.ProviderActor("p1"), "q1", nil); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.AcceptQuote(context.Background(), models.BookerActor("b1"), "q1"); err != nil {
		t.Fatal(err)
	}

	req, events, err := svc.ConfirmPayment(context.Background(), "r1")
	if err != nil {
		t.Fatal(err)
	}
	if req.Status != models.StatusCompleted {
		t.Fatalf("expected COMPLETED, got %s", req.Status)
	}
	if len(gw.captures) != 1 {
		t.Fatalf("hold not captured: %v", gw.captures)
	}
	if len(events) != 1 || events[0].Kind != dispatch.EventRewardCompleted {
		t.Fatalf("expected reward event, got %+v", events)
	}
}

func TestConfirmPaymentRequiresFinalFarePending(t *testing.T) {
	store := storage.NewMemoryStore()
	seed(t, store, models.StatusDispatched)
	svc := newTestService(store, &fakeGateway{})

	_, _, err := svc.ConfirmPayment(context.Background(), "r1")
	var serr *models.InvalidStateError
	if !errors.As(err, &serr) {
		t.Fatalf("expected InvalidStateError, got %v", err)
	}
}

func TestConfirmPaymentCaptureFailureBlocksCompletion(t *testing.T) {
	store := storage.NewMemoryStore()
	seed(t, store, models.StatusServiceInProgress)
	gw := &fakeGateway{captureErr: errors.New("gateway down")}
	svc := newTestService(store, gw)

	if _, err := svc.FinalizeQuote(context.Background(), models.ProviderActor("p1"), "q1", nil); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.AcceptQuote(context.Background(), models.BookerActor("b1"), "q1"); err != nil {
		t.Fatal(err)
	}

	if _, _, err := svc.ConfirmPayment(context.Background(), "r1"); err == nil {
		t.Fatal("expected capture failure to propagate")
	}
	req, _ := store.GetRequest(context.Background(), "r1")
	if req.Status != models.StatusFinalFarePending {
		t.Fatalf("request must stay FINAL_FARE_PENDING for the retry, got %s", req.Status)
	}
}
