// Package geo estimates straight-line distances and indexes open delivery points.
package geo

import (
	"context"
	"errors"
	"math"
	"sort"
	"strconv"
	"sync"

	"github.com/example/box3-delivery/internal/models"
)

const EarthRadiusKm = 6371.0

// LocationPermissionText is shown in place of a distance when the viewer's
// location is the (0,0) sentinel.
const LocationPermissionText = "Grant Location Permission!"

var ErrLocationUnavailable = errors.New("location unavailable")

// HaversineKm is the great-circle distance in kilometers.
func HaversineKm(lat1, lon1, lat2, lon2 float64) float64 {
	phi1 := lat1 * math.Pi / 180
	phi2 := lat2 * math.Pi / 180
	dPhi := (lat2 - lat1) * math.Pi / 180
	dLambda := (lon2 - lon1) * math.Pi / 180
	a := math.Sin(dPhi/2)*math.Sin(dPhi/2) + math.Cos(phi1)*math.Cos(phi2)*math.Sin(dLambda/2)*math.Sin(dLambda/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
	return EarthRadiusKm * c
}

// Haversine distance in meters
func Haversine(lat1, lon1, lat2, lon2 float64) float64 {
	return HaversineKm(lat1, lon1, lat2, lon2) * 1000
}

// DistanceKm returns the distance from the reference point to the target,
// rounded to 2 decimals. A reference of exactly (0,0) means the caller has
// no location and yields ErrLocationUnavailable.
func DistanceKm(lat1, lon1, lat2, lon2 float64) (float64, error) {
	if lat1 == 0 && lon1 == 0 {
		return 0, ErrLocationUnavailable
	}
	return math.Round(HaversineKm(lat1, lon1, lat2, lon2)*100) / 100, nil
}

// Estimate is an instant distance for display while a route is fetched.
type Estimate struct {
	Km    float64
	Known bool
}

func EstimateBetween(from, to models.Coord) Estimate {
	km, err := DistanceKm(from.Lat, from.Lon, to.Lat, to.Lon)
	if err != nil {
		return Estimate{}
	}
	return Estimate{Km: km, Known: true}
}

func (e Estimate) String() string {
	if !e.Known {
		return LocationPermissionText
	}
	return strconv.FormatFloat(e.Km, 'f', 2, 64) + " km"
}

// Hit is an open order found near a point.
type Hit struct {
	OrderID    uint64  `json:"order_id"`
	DistanceKm float64 `json:"distance_km"`
}

// Index keeps the delivery destinations of orders that are still in transit.
type Index interface {
	Upsert(ctx context.Context, orderID uint64, c models.Coord) error
	Remove(ctx context.Context, orderID uint64) error
	Nearby(ctx context.Context, c models.Coord, radiusKm float64, limit int) ([]Hit, error)
}

type MemoryIndex struct {
	mu     sync.RWMutex
	points map[uint64]models.Coord
}

func NewMemoryIndex() *MemoryIndex {
	return &MemoryIndex{points: make(map[uint64]models.Coord)}
}

func (g *MemoryIndex) Upsert(_ context.Context, orderID uint64, c models.Coord) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.points[orderID] = c
	return nil
}

func (g *MemoryIndex) Remove(_ context.Context, orderID uint64) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.points, orderID)
	return nil
}

// naive scan; fine for the handful of open orders per region
func (g *MemoryIndex) Nearby(_ context.Context, c models.Coord, radiusKm float64, limit int) ([]Hit, error) {
	g.mu.RLock()
	hits := make([]Hit, 0, len(g.points))
	for id, p := range g.points {
		d := HaversineKm(c.Lat, c.Lon, p.Lat, p.Lon)
		if radiusKm > 0 && d > radiusKm {
			continue
		}
		hits = append(hits, Hit{OrderID: id, DistanceKm: math.Round(d*100) / 100})
	}
	g.mu.RUnlock()

	sort.Slice(hits, func(i, j int) bool {
		if hits[i].DistanceKm == hits[j].DistanceKm {
			return hits[i].OrderID < hits[j].OrderID
		}
		return hits[i].DistanceKm < hits[j].DistanceKm
	})
	if limit > 0 && len(hits) > limit {
		hits = hits[:limit]
	}
	return hits, nil
}
