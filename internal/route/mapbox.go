package route

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/example/box3-delivery/internal/models"
)

const DefaultMapboxEndpoint = "https://api.mapbox.com"

// MapboxClient queries the Mapbox Directions API.
type MapboxClient struct {
	Endpoint string
	Token    string
	Profile  string
	Client   *http.Client
}

func NewMapboxClient(endpoint, token string, timeout time.Duration) *MapboxClient {
	if endpoint == "" {
		endpoint = DefaultMapboxEndpoint
	}
	return &MapboxClient{Endpoint: endpoint, Token: token, Profile: "driving", Client: &http.Client{Timeout: timeout}}
}

func (m *MapboxClient) Fetch(ctx context.Context, start, end models.Coord) (models.RouteSummary, error) {
	q := url.Values{}
	q.Set("steps", "true")
	q.Set("geometries", "geojson")
	q.Set("access_token", m.Token)
	u := fmt.Sprintf("%s/directions/v5/mapbox/%s/%.6f,%.6f;%.6f,%.6f?%s", m.Endpoint, m.Profile, start.Lon, start.Lat, end.Lon, end.Lat, q.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return models.RouteSummary{}, fmt.Errorf("%w: %v", ErrRouteUnavailable, err)
	}
	resp, err := m.Client.Do(req)
	if err != nil {
		return models.RouteSummary{}, fmt.Errorf("%w: %v", ErrRouteUnavailable, err)
	}
	defer resp.Body.Close()
	return summarize(resp)
}
