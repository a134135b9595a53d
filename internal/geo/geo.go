package geo

import (
	"math"
	"sync"
	"time"

	"github.com/example/roadside-dispatch/internal/models"
)

// Index is the minimal provider lookup surface needed by the ranking engine
// and the HTTP handlers.
type Index interface {
	Nearby(lat, lon float64, limit int) []models.Provider
	Upsert(p models.Provider)
}

type MemoryIndex struct {
	mu        sync.RWMutex
	providers map[string]models.Provider
}

func NewMemoryIndex() *MemoryIndex {
	return &MemoryIndex{providers: make(map[string]models.Provider)}
}

func (g *MemoryIndex) Upsert(p models.Provider) {
	g.mu.Lock()
	defer g.mu.Unlock()
	p.Updated = time.Now()
	g.providers[p.ID] = p
}

// naive scan; in prod use geo-hash or the Redis GEO index
func (g *MemoryIndex) Nearby(lat, lon float64, limit int) []models.Provider {
	g.mu.RLock()
	defer g.mu.RUnlock()
	type pair struct {
		p    models.Provider
		dist float64
	}
	arr := make([]pair, 0, len(g.providers))
	for _, p := range g.providers {
		if p.Loc == nil {
			continue
		}
		arr = append(arr, pair{p, HaversineKm(lat, lon, p.Loc.Lat, p.Loc.Lon)})
	}
	n := limit
	if n > len(arr) {
		n = len(arr)
	}
	// partial selection sort for top-N
	for i := 0; i < n; i++ {
		minIdx := i
		for j := i + 1; j < len(arr); j++ {
			if arr[j].dist < arr[minIdx].dist {
				minIdx = j
			}
		}
		arr[i], arr[minIdx] = arr[minIdx], arr[i]
	}
	out := make([]models.Provider, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, arr[i].p)
	}
	return out
}

// HaversineKm returns the great-circle distance in kilometers on a mean
// Earth radius of 6371 km.
func HaversineKm(lat1, lon1, lat2, lon2 float64) float64 {
	const R = 6371.0
	toRad := func(deg float64) float64 { return deg * math.Pi / 180.0 }
	dLat := toRad(lat2 - lat1)
	dLon := toRad(lon2 - lon1)
	a := math.Sin(dLat/2)*math.Sin(dLat/2) + math.Cos(toRad(lat1))*math.Cos(toRad(lat2))*math.Sin(dLon/2)*math.Sin(dLon/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
	return R * c
}
