package httpapi

import (
	"net/http"
	"testing"

	"github.com/example/roadside-dispatch/internal/models"
)

func TestMissingActorHeaderRejected(t *testing.T) {
	srv, _, _ := testServer()
	rec := postJSON(t, srv, "/api/v1/bookings", models.Actor{}, map[string]any{
		"service_type": "TOWING", "latitude": 19.0, "longitude": 72.0,
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 without X-Actor-ID, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestActorRoleEnforced(t *testing.T) {
	srv, _, _ := testServer()
	rec := postJSON(t, srv, "/api/v1/requests/r1/status", models.BookerActor("b1"),
		map[string]any{"status": "ARRIVED"})
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for booker on a provider endpoint, got %d", rec.Code)
	}
}

func TestActorRoleHeaderResolvesProvider(t *testing.T) {
	srv, _, _ := testServer()
	// the provider identity passes the role gate and reaches the coordinator
	rec := postJSON(t, srv, "/api/v1/requests/missing/status", models.ProviderActor("p1"),
		map[string]any{"status": "ARRIVED"})
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown request, got %d: %s", rec.Code, rec.Body.String())
	}
}
