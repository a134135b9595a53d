package storage

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/example/roadside-dispatch/internal/models"
)

// MemoryStore is the in-process RequestStore used for tests and local runs.
type MemoryStore struct {
	mu       sync.RWMutex
	requests map[string]*models.ServiceRequest
	quotes   map[string]*models.ServiceQuote
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		requests: make(map[string]*models.ServiceRequest),
		quotes:   make(map[string]*models.ServiceQuote),
	}
}

func (m *MemoryStore) CreateRequest(ctx context.Context, r *models.ServiceRequest) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *r
	m.requests[r.ID] = &cp
	return nil
}

func (m *MemoryStore) GetRequest(ctx context.Context, id string) (*models.ServiceRequest, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.requests[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *r
	return &cp, nil
}

func (m *MemoryStore) AssignProvider(ctx context.Context, requestID string, expectedVersion int64, providerID string, quote *models.ServiceQuote) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.requests[requestID]
	if !ok {
		return ErrNotFound
	}
	if r.Status.Terminal() {
		return ErrTerminalState
	}
	if r.Version != expectedVersion {
		return ErrVersionConflict
	}
	r.ProviderID = providerID
	r.Status = models.StatusDispatched
	r.Version++
	r.UpdatedAt = time.Now()
	for _, q := range m.quotes {
		if q.RequestID == requestID && q.Status == models.QuotePending {
			q.Status = models.QuoteRejected
		}
	}
	cp := *quote
	m.quotes[quote.ID] = &cp
	return nil
}

func (m *MemoryStore) UpdateRequestStatus(ctx context.Context, id string, from, to models.RequestStatus) (*models.ServiceRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.requests[id]
	if !ok {
		return nil, ErrNotFound
	}
	if r.Status != from {
		return nil, ErrStatusConflict
	}
	r.Status = to
	r.Version++
	r.UpdatedAt = time.Now()
	cp := *r
	return &cp, nil
}

func (m *MemoryStore) CancelRequest(ctx context.Context, id string) (*models.ServiceRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.requests[id]
	if !ok {
		return nil, ErrNotFound
	}
	if r.Status.Terminal() {
		return nil, ErrTerminalState
	}
	r.Status = models.StatusCancelled
	r.Version++
	r.UpdatedAt = time.Now()
	cp := *r
	return &cp, nil
}

func (m *MemoryStore) GetQuote(ctx context.Context, id string) (*models.ServiceQuote, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	q, ok := m.quotes[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *q
	return &cp, nil
}

func (m *MemoryStore) ActiveQuote(ctx context.Context, requestID string) (*models.ServiceQuote, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var newest *models.ServiceQuote
	for _, q := range m.quotes {
		if q.RequestID != requestID || q.Status == models.QuoteRejected {
			continue
		}
		if newest == nil || q.CreatedAt.After(newest.CreatedAt) {
			newest = q
		}
	}
	if newest == nil {
		return nil, ErrNotFound
	}
	cp := *newest
	return &cp, nil
}

func (m *MemoryStore) UpdateQuote(ctx context.Context, q *models.ServiceQuote) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.quotes[q.ID]; !ok {
		return ErrNotFound
	}
	cp := *q
	m.quotes[q.ID] = &cp
	return nil
}

func (m *MemoryStore) UpdateQuoteStatus(ctx context.Context, id string, from, to models.QuoteStatus) (*models.ServiceQuote, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	q, ok := m.quotes[id]
	if !ok {
		return nil, ErrNotFound
	}
	if q.Status != from {
		return nil, ErrStatusConflict
	}
	q.Status = to
	cp := *q
	return &cp, nil
}

func (m *MemoryStore) StuckDispatched(ctx context.Context, before time.Time) ([]*models.ServiceRequest, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*models.ServiceRequest
	for _, r := range m.requests {
		if r.Status == models.StatusDispatched && r.UpdatedAt.Before(before) {
			cp := *r
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.Before(out[j].UpdatedAt) })
	return out, nil
}

func (m *MemoryStore) UnsettledItems(ctx context.Context) ([]SettlementItem, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []SettlementItem
	for _, q := range m.quotes {
		if q.Settled || q.Status != models.QuoteAccepted {
			continue
		}
		r, ok := m.requests[q.RequestID]
		if !ok || r.ProviderID == "" {
			continue
		}
		out = append(out, SettlementItem{
			QuoteID:    q.ID,
			RequestID:  q.RequestID,
			ProviderID: r.ProviderID,
			Amount:     q.DynamicTotal,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].QuoteID < out[j].QuoteID })
	return out, nil
}

func (m *MemoryStore) MarkSettled(ctx context.Context, quoteIDs []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, id := range quoteIDs {
		if q, ok := m.quotes[id]; ok {
			q.Settled = true
		}
	}
	return nil
}
