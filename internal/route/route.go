package route

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/example/box3-delivery/internal/geo"
	"github.com/example/box3-delivery/internal/models"
)

var ErrRouteUnavailable = errors.New("route unavailable")

// Fetcher resolves a driving route between two points.
type Fetcher interface {
	Fetch(ctx context.Context, start, end models.Coord) (models.RouteSummary, error)
}

// directionsResponse is the GeoJSON shape shared by Mapbox and OSRM.
type directionsResponse struct {
	Code   string `json:"code"`
	Routes []struct {
		Distance float64 `json:"distance"`
		Duration float64 `json:"duration"`
		Geometry struct {
			Coordinates [][2]float64 `json:"coordinates"`
		} `json:"geometry"`
	} `json:"routes"`
}

// summarize takes the first route of a directions response.
func summarize(resp *http.Response) (models.RouteSummary, error) {
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, resp.Body)
		return models.RouteSummary{}, fmt.Errorf("%w: directions status %d", ErrRouteUnavailable, resp.StatusCode)
	}
	var out directionsResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return models.RouteSummary{}, fmt.Errorf("%w: decode directions: %v", ErrRouteUnavailable, err)
	}
	if out.Code != "" && out.Code != "Ok" {
		return models.RouteSummary{}, fmt.Errorf("%w: directions code %s", ErrRouteUnavailable, out.Code)
	}
	if len(out.Routes) == 0 {
		return models.RouteSummary{}, fmt.Errorf("%w: no routes", ErrRouteUnavailable)
	}
	r := out.Routes[0]
	return models.RouteSummary{
		DistanceMeters:  r.Distance,
		DurationSeconds: r.Duration,
		Path:            r.Geometry.Coordinates,
	}, nil
}

// Naive ETA: distance / speed_mps. Used while the directions call is in flight.
func EstimateSeconds(from, to models.Coord, speedMps float64) float64 {
	if speedMps <= 0 {
		speedMps = 8.0 // ~28.8 km/h default city speed
	}
	return geo.Haversine(from.Lat, from.Lon, to.Lat, to.Lon) / speedMps
}
