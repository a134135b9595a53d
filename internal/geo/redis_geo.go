package geo

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/example/roadside-dispatch/internal/models"
)

// RedisIndex implements Index on Redis GEO commands. Provider metadata that
// the GEO set cannot hold (verification, availability, capabilities) lives
// in a hash next to it.
type RedisIndex struct {
	client   *redis.Client
	key      string
	radiusKm float64
	ctx      context.Context
}

func NewRedisIndex(addr, password, key string, radiusKm float64) *RedisIndex {
	c := redis.NewClient(&redis.Options{Addr: addr, Password: password})
	if radiusKm <= 0 {
		radiusKm = 25
	}
	return &RedisIndex{client: c, key: key, radiusKm: radiusKm, ctx: context.Background()}
}

func (r *RedisIndex) Upsert(p models.Provider) {
	if p.Loc == nil {
		return
	}
	_, _ = r.client.GeoAdd(r.ctx, r.key, &redis.GeoLocation{
		Longitude: p.Loc.Lon, Latitude: p.Loc.Lat, Name: p.ID,
	}).Result()
	caps := make([]string, 0, len(p.Capabilities))
	for _, c := range p.Capabilities {
		caps = append(caps, string(c))
	}
	_ = r.client.HSet(r.ctx, metaKey(p.ID), map[string]interface{}{
		"verified":     strconv.FormatBool(p.Verified),
		"available":    strconv.FormatBool(p.Available),
		"capabilities": strings.Join(caps, ","),
		"rating":       strconv.FormatFloat(p.Rating, 'f', 2, 64),
		"updated":      time.Now().Format(time.RFC3339),
	}).Err()
}

func (r *RedisIndex) Nearby(lat, lon float64, limit int) []models.Provider {
	res, err := r.client.GeoRadius(r.ctx, r.key, lon, lat, &redis.GeoRadiusQuery{
		Radius: r.radiusKm, Unit: "km", WithCoord: true, WithDist: true, Count: limit, Sort: "ASC",
	}).Result()
	if err != nil {
		return nil
	}
	out := make([]models.Provider, 0, len(res))
	for _, g := range res {
		p := models.Provider{ID: g.Name, Loc: &models.Coord{Lat: g.Latitude, Lon: g.Longitude}}
		if m, err := r.client.HGetAll(r.ctx, metaKey(g.Name)).Result(); err == nil {
			p.Verified = m["verified"] == "true"
			p.Available = m["available"] == "true"
			if v, ok := m["capabilities"]; ok && v != "" {
				for _, c := range strings.Split(v, ",") {
					p.Capabilities = append(p.Capabilities, models.ServiceType(c))
				}
			}
			if v, ok := m["rating"]; ok {
				if f, err := strconv.ParseFloat(v, 64); err == nil {
					p.Rating = f
				}
			}
		}
		out = append(out, p)
	}
	return out
}

func metaKey(id string) string { return "provider:meta:" + id }
