package distance

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/example/roadside-dispatch/internal/models"
)

// Client resolves real driving distance between two points.
type Client interface {
	DrivingDistance(ctx context.Context, from, to models.Coord) (km float64, minutes int, err error)
}

// MatrixClient queries a distance-matrix style HTTP API. Any failure is
// expected to be absorbed by the Estimator fallback, so the timeout stays
// short.
type MatrixClient struct {
	Endpoint string
	APIKey   string
	Client   *http.Client
}

func NewMatrixClient(endpoint, apiKey string) *MatrixClient {
	return &MatrixClient{Endpoint: endpoint, APIKey: apiKey, Client: &http.Client{Timeout: 5 * time.Second}}
}

func (m *MatrixClient) DrivingDistance(ctx context.Context, from, to models.Coord) (float64, int, error) {
	url := fmt.Sprintf("%s?origins=%.8f,%.8f&destinations=%.8f,%.8f&mode=driving&key=%s",
		m.Endpoint, from.Lat, from.Lon, to.Lat, to.Lon, m.APIKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, 0, err
	}
	resp, err := m.Client.Do(req)
	if err != nil {
		return 0, 0, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return 0, 0, fmt.Errorf("distance matrix: http %d", resp.StatusCode)
	}
	var out struct {
		Status string `json:"status"`
		Rows   []struct {
			Elements []struct {
				Status   string `json:"status"`
				Distance struct {
					Value int `json:"value"` // meters
				} `json:"distance"`
				Duration struct {
					Value int `json:"value"` // seconds
				} `json:"duration"`
			} `json:"elements"`
		} `json:"rows"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return 0, 0, err
	}
	if out.Status != "OK" || len(out.Rows) == 0 || len(out.Rows[0].Elements) == 0 {
		return 0, 0, fmt.Errorf("distance matrix: status %q", out.Status)
	}
	el := out.Rows[0].Elements[0]
	if el.Status != "OK" {
		return 0, 0, fmt.Errorf("distance matrix: element status %q", el.Status)
	}
	return float64(el.Distance.Value) / 1000.0, el.Duration.Value / 60, nil
}
