package pricing

import (
	"context"
	"sync"
	"time"

	"github.com/example/roadside-dispatch/internal/models"
)

// MemorySubscriptions is an in-process SubscriptionSource, seeded from the
// billing collaborator or test fixtures.
type MemorySubscriptions struct {
	mu   sync.RWMutex
	subs map[string]models.Subscription
}

func NewMemorySubscriptions() *MemorySubscriptions {
	return &MemorySubscriptions{subs: make(map[string]models.Subscription)}
}

func (m *MemorySubscriptions) Set(sub models.Subscription) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.subs[sub.BookerID] = sub
}

func (m *MemorySubscriptions) ActiveSubscription(ctx context.Context, bookerID string) (models.Subscription, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	sub, ok := m.subs[bookerID]
	if !ok || !sub.Active {
		return models.Subscription{}, false
	}
	if !sub.EndDate.IsZero() && sub.EndDate.Before(time.Now()) {
		return models.Subscription{}, false
	}
	return sub, true
}
