package storage

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/example/roadside-dispatch/internal/models"
)

func newRequest(id string) *models.ServiceRequest {
	return &models.ServiceRequest{
		ID:          id,
		BookerID:    "b1",
		ServiceType: models.ServiceTowing,
		Status:      models.StatusPendingDispatch,
		Priority:    models.PriorityMedium,
		CreatedAt:   time.Now(),
		UpdatedAt:   time.Now(),
	}
}

func newQuote(id, requestID string, created time.Time) *models.ServiceQuote {
	return &models.ServiceQuote{
		ID:           id,
		RequestID:    requestID,
		DynamicTotal: decimal.RequireFromString("375.00"),
		Status:       models.QuotePending,
		ValidUntil:   created.Add(30 * time.Minute),
		CreatedAt:    created,
	}
}

func TestAssignProviderVersionConflict(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	if err := s.CreateRequest(ctx, newRequest("r1")); err != nil {
		t.Fatal(err)
	}

	if err := s.AssignProvider(ctx, "r1", 0, "p1", newQuote("q1", "r1", time.Now())); err != nil {
		t.Fatal(err)
	}
	err := s.AssignProvider(ctx, "r1", 0, "p2", newQuote("q2", "r1", time.Now()))
	if !errors.Is(err, ErrVersionConflict) {
		t.Fatalf("expected ErrVersionConflict, got %v", err)
	}

	r, _ := s.GetRequest(ctx, "r1")
	if r.ProviderID != "p1" || r.Version != 1 {
		t.Fatalf("winner overwritten: %+v", r)
	}
}

func TestAssignProviderTerminal(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	s.CreateRequest(ctx, newRequest("r1"))
	if _, err := s.CancelRequest(ctx, "r1"); err != nil {
		t.Fatal(err)
	}

	err := s.AssignProvider(ctx, "r1", 1, "p1", newQuote("q1", "r1", time.Now()))
	if !errors.Is(err, ErrTerminalState) {
		t.Fatalf("expected ErrTerminalState, got %v", err)
	}
}

func TestAssignProviderSupersedesPendingQuotes(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	s.CreateRequest(ctx, newRequest("r1"))

	if err := s.AssignProvider(ctx, "r1", 0, "p1", newQuote("q1", "r1", time.Now())); err != nil {
		t.Fatal(err)
	}
	if err := s.AssignProvider(ctx, "r1", 1, "p2", newQuote("q2", "r1", time.Now().Add(time.Second))); err != nil {
		t.Fatal(err)
	}

	q1, _ := s.GetQuote(ctx, "q1")
	if q1.Status != models.QuoteRejected {
		t.Fatalf("old quote not superseded: %s", q1.Status)
	}
	active, err := s.ActiveQuote(ctx, "r1")
	if err != nil {
		t.Fatal(err)
	}
	if active.ID != "q2" {
		t.Fatalf("expected q2 active, got %s", active.ID)
	}
}

func TestUpdateRequestStatusConditional(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	s.CreateRequest(ctx, newRequest("r1"))

	if _, err := s.UpdateRequestStatus(ctx, "r1", models.StatusDispatched, models.StatusArrived); !errors.Is(err, ErrStatusConflict) {
		t.Fatalf("expected ErrStatusConflict, got %v", err)
	}
	r, err := s.UpdateRequestStatus(ctx, "r1", models.StatusPendingDispatch, models.StatusDispatched)
	if err != nil {
		t.Fatal(err)
	}
	if r.Status != models.StatusDispatched || r.Version != 1 {
		t.Fatalf("unexpected request: %+v", r)
	}
}

func TestCancelRequestTerminalRejected(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	s.CreateRequest(ctx, newRequest("r1"))
	if _, err := s.CancelRequest(ctx, "r1"); err != nil {
		t.Fatal(err)
	}
	if _, err := s.CancelRequest(ctx, "r1"); !errors.Is(err, ErrTerminalState) {
		t.Fatalf("expected ErrTerminalState, got %v", err)
	}
}

func TestGetRequestNotFound(t *testing.T) {
	s := NewMemoryStore()
	if _, err := s.GetRequest(context.Background(), "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestStuckDispatched(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	s.CreateRequest(ctx, newRequest("stuck"))
	s.CreateRequest(ctx, newRequest("pending"))
	if err := s.AssignProvider(ctx, "stuck", 0, "p1", newQuote("q1", "stuck", time.Now())); err != nil {
		t.Fatal(err)
	}

	got, err := s.StuckDispatched(ctx, time.Now().Add(time.Minute))
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].ID != "stuck" {
		t.Fatalf("expected only the dispatched request, got %+v", got)
	}

	got, err = s.StuckDispatched(ctx, time.Now().Add(-time.Hour))
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 0 {
		t.Fatalf("fresh assignment reported stuck: %+v", got)
	}
}

func TestUnsettledItemsAndMarkSettled(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	s.CreateRequest(ctx, newRequest("r1"))
	if err := s.AssignProvider(ctx, "r1", 0, "p1", newQuote("q1", "r1", time.Now())); err != nil {
		t.Fatal(err)
	}
	if _, err := s.UpdateQuoteStatus(ctx, "q1", models.QuotePending, models.QuoteAccepted); err != nil {
		t.Fatal(err)
	}

	items, err := s.UnsettledItems(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(items) != 1 || items[0].ProviderID != "p1" || !items[0].Amount.Equal(decimal.RequireFromString("375.00")) {
		t.Fatalf("unexpected items: %+v", items)
	}

	if err := s.MarkSettled(ctx, []string{"q1"}); err != nil {
		t.Fatal(err)
	}
	items, _ = s.UnsettledItems(ctx)
	if len(items) != 0 {
		t.Fatalf("settled quote still reported: %+v", items)
	}
}
