package route

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/example/box3-delivery/internal/models"
)

// OSRMClient performs route lookups against an OSRM HTTP server.
type OSRMClient struct {
	Endpoint string
	Client   *http.Client
}

func NewOSRMClient(endpoint string, timeout time.Duration) *OSRMClient {
	return &OSRMClient{Endpoint: endpoint, Client: &http.Client{Timeout: timeout}}
}

func (o *OSRMClient) Fetch(ctx context.Context, start, end models.Coord) (models.RouteSummary, error) {
	// OSRM route query: /route/v1/driving/{lon1},{lat1};{lon2},{lat2}
	u := fmt.Sprintf("%s/route/v1/driving/%.6f,%.6f;%.6f,%.6f?overview=full&geometries=geojson", o.Endpoint, start.Lon, start.Lat, end.Lon, end.Lat)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return models.RouteSummary{}, fmt.Errorf("%w: %v", ErrRouteUnavailable, err)
	}
	resp, err := o.Client.Do(req)
	if err != nil {
		return models.RouteSummary{}, fmt.Errorf("%w: %v", ErrRouteUnavailable, err)
	}
	defer resp.Body.Close()
	return summarize(resp)
}
