package distance

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/example/roadside-dispatch/internal/geo"
	"github.com/example/roadside-dispatch/internal/models"
)

// Estimator resolves distance for quoting. It prefers the real-routing
// client and falls back to the great-circle value on any error, so a
// third-party outage never turns into a dispatch failure.
type Estimator struct {
	Client Client // optional
	Cache  *Cache // optional
}

// fallback time estimate when no routed duration is available: loading and
// city traffic on top of straight-line distance.
func fallbackMinutes(km float64) int { return int(km*5) + 10 }

// Km returns distance in kilometers and a time estimate in minutes. It
// never fails.
func (e *Estimator) Km(ctx context.Context, from, to models.Coord) (float64, int) {
	if e.Cache != nil {
		if km, minutes, ok := e.Cache.Get(from, to); ok {
			return km, minutes
		}
	}
	if e.Client != nil {
		if km, minutes, err := e.Client.DrivingDistance(ctx, from, to); err == nil {
			if e.Cache != nil {
				e.Cache.Set(from, to, km, minutes)
			}
			return km, minutes
		}
	}
	km := geo.HaversineKm(from.Lat, from.Lon, to.Lat, to.Lon)
	return km, fallbackMinutes(km)
}

// Cache is a tiny in-memory TTL cache for distance lookups keyed by the
// coordinate pair.
type Cache struct {
	mu    sync.RWMutex
	store map[string]cacheEntry
	ttl   time.Duration
}

type cacheEntry struct {
	km      float64
	minutes int
	ts      time.Time
}

func NewCache(ttl time.Duration) *Cache {
	return &Cache{store: make(map[string]cacheEntry), ttl: ttl}
}

func keyFor(a, b models.Coord) string {
	return fmt.Sprintf("%.6f,%.6f->%.6f,%.6f", a.Lat, a.Lon, b.Lat, b.Lon)
}

func (c *Cache) Get(a, b models.Coord) (float64, int, bool) {
	k := keyFor(a, b)
	c.mu.RLock()
	e, ok := c.store[k]
	c.mu.RUnlock()
	if !ok {
		return 0, 0, false
	}
	if time.Since(e.ts) > c.ttl {
		c.mu.Lock()
		delete(c.store, k)
		c.mu.Unlock()
		return 0, 0, false
	}
	return e.km, e.minutes, true
}

func (c *Cache) Set(a, b models.Coord, km float64, minutes int) {
	c.mu.Lock()
	c.store[keyFor(a, b)] = cacheEntry{km: km, minutes: minutes, ts: time.Now()}
	c.mu.Unlock()
}
