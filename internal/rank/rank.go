package rank

import (
	"sort"

	"github.com/example/roadside-dispatch/internal/geo"
	"github.com/example/roadside-dispatch/internal/models"
)

// ProviderSource yields candidate providers around a point. Reads are not
// locked against concurrent availability changes; a provider going offline
// between ranking and assignment surfaces later as a provider-side failure.
type ProviderSource interface {
	Nearby(lat, lon float64, limit int) []models.Provider
}

// Candidate is an eligible provider with its ranking distance.
type Candidate struct {
	Provider   models.Provider
	DistanceKm float64
}

// Engine filters eligible providers and ranks them by great-circle distance.
// Real-distance refinement is left to the pricing pass on the winner so the
// ranking loop stays cheap and deterministic.
type Engine struct {
	Providers ProviderSource
	TopK      int // candidates returned, default 3
	ScanLimit int // providers pulled from the source before filtering
}

// Rank returns up to TopK eligible candidates ordered by ascending distance,
// ties broken by provider id. An empty result means no capacity, not an
// error.
func (e *Engine) Rank(req models.ServiceRequest) []Candidate {
	topK := e.TopK
	if topK <= 0 {
		topK = 3
	}
	scan := e.ScanLimit
	if scan <= 0 {
		scan = 50
	}
	cands := make([]Candidate, 0, topK)
	for _, p := range e.Providers.Nearby(req.Location.Lat, req.Location.Lon, scan) {
		if !p.Verified || !p.Available || p.Loc == nil {
			continue
		}
		if !p.CanServe(req.ServiceType) {
			continue
		}
		d := geo.HaversineKm(req.Location.Lat, req.Location.Lon, p.Loc.Lat, p.Loc.Lon)
		cands = append(cands, Candidate{Provider: p, DistanceKm: d})
	}
	sort.Slice(cands, func(i, j int) bool {
		if cands[i].DistanceKm != cands[j].DistanceKm {
			return cands[i].DistanceKm < cands[j].DistanceKm
		}
		return cands[i].Provider.ID < cands[j].Provider.ID
	})
	if len(cands) > topK {
		cands = cands[:topK]
	}
	return cands
}
