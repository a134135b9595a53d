package main

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/example/roadside-dispatch/internal/models"
)

// fakeUpdater implements RedisUpdater for tests
type fakeUpdater struct {
	failGeo  int // number of times to fail GeoAdd before succeeding
	failH    int // number of times to fail HSet before succeeding
	geoCalls int
	hCalls   int
	lastMeta map[string]interface{}
}

func (f *fakeUpdater) GeoAdd(ctx context.Context, key string, loc *redis.GeoLocation) error {
	f.geoCalls++
	if f.geoCalls <= f.failGeo {
		return errors.New("geo fail")
	}
	return nil
}

func (f *fakeUpdater) HSet(ctx context.Context, key string, values map[string]interface{}) error {
	f.hCalls++
	if f.hCalls <= f.failH {
		return errors.New("hset fail")
	}
	f.lastMeta = values
	return nil
}

func testProvider() *models.Provider {
	return &models.Provider{
		ID:           "p1",
		Verified:     true,
		Available:    true,
		Capabilities: []models.ServiceType{models.ServiceTowing, models.ServiceFlatTire},
		Rating:       4.5,
		Loc:          &models.Coord{Lat: 19.0760, Lon: 72.8777},
	}
}

func TestUpdateRedisWithRetry_SucceedsAfterRetries(t *testing.T) {
	f := &fakeUpdater{failGeo: 1, failH: 1}
	ctx := context.Background()
	start := time.Now()
	if err := updateRedisWithRetry(ctx, f, "providers_geo", testProvider(), 3, 10*time.Millisecond); err != nil {
		t.Fatalf("expected success, got err=%v", err)
	}
	if f.geoCalls < 2 || f.hCalls < 2 {
		t.Fatalf("expected retries, got geo=%d h=%d", f.geoCalls, f.hCalls)
	}
	if time.Since(start) < 10*time.Millisecond {
		t.Fatalf("expected at least one backoff")
	}
}

func TestUpdateRedisWithRetry_FailsWhenExhausted(t *testing.T) {
	f := &fakeUpdater{failGeo: 5, failH: 0}
	ctx := context.Background()
	if err := updateRedisWithRetry(ctx, f, "providers_geo", testProvider(), 3, 5*time.Millisecond); err == nil {
		t.Fatalf("expected error after retries")
	}
}

func TestUpdateRedisWithRetry_WritesMetadata(t *testing.T) {
	f := &fakeUpdater{}
	if err := updateRedisWithRetry(context.Background(), f, "providers_geo", testProvider(), 1, time.Millisecond); err != nil {
		t.Fatal(err)
	}
	if f.lastMeta["verified"] != "true" || f.lastMeta["available"] != "true" {
		t.Fatalf("flags not written: %v", f.lastMeta)
	}
	if f.lastMeta["capabilities"] != "TOWING,FLAT_TIRE" {
		t.Fatalf("capabilities not written: %v", f.lastMeta["capabilities"])
	}
}
