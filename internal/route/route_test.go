package route

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/box3-delivery/internal/models"
)

const oneRoute = `{"code":"Ok","routes":[{"distance":1523.4,"duration":312.5,"geometry":{"coordinates":[[74.79645,13.00124],[74.8,13.01]]}}]}`

func TestMapboxClientFetch(t *testing.T) {
	var gotPath, gotToken string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotToken = r.URL.Query().Get("access_token")
		_, _ = w.Write([]byte(oneRoute))
	}))
	defer srv.Close()

	c := NewMapboxClient(srv.URL, "pk.test", time.Second)
	got, err := c.Fetch(context.Background(), models.Coord{Lat: 13.00124, Lon: 74.79645}, models.Coord{Lat: 13.01, Lon: 74.8})
	require.NoError(t, err)

	assert.Equal(t, "/directions/v5/mapbox/driving/74.796450,13.001240;74.800000,13.010000", gotPath)
	assert.Equal(t, "pk.test", gotToken)
	assert.Equal(t, 1523.4, got.DistanceMeters)
	assert.Equal(t, 312.5, got.DurationSeconds)
	assert.Equal(t, [][2]float64{{74.79645, 13.00124}, {74.8, 13.01}}, got.Path)
}

func TestFetchFailures(t *testing.T) {
	cases := map[string]struct {
		status int
		body   string
	}{
		"zero routes":    {status: http.StatusOK, body: `{"code":"Ok","routes":[]}`},
		"no route code":  {status: http.StatusOK, body: `{"code":"NoRoute","routes":[]}`},
		"http error":     {status: http.StatusUnauthorized, body: `{"message":"Not Authorized"}`},
		"malformed body": {status: http.StatusOK, body: `{"routes":`},
	}

	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.status)
				_, _ = w.Write([]byte(tc.body))
			}))
			defer srv.Close()

			for _, f := range []Fetcher{NewMapboxClient(srv.URL, "t", time.Second), NewOSRMClient(srv.URL, time.Second)} {
				got, err := f.Fetch(context.Background(), models.Coord{Lat: 1, Lon: 2}, models.Coord{Lat: 3, Lon: 4})
				assert.ErrorIs(t, err, ErrRouteUnavailable)
				assert.Equal(t, models.RouteSummary{}, got)
			}
		})
	}
}

func TestFetchMalformedEndpoint(t *testing.T) {
	for _, f := range []Fetcher{NewMapboxClient("http://[::1", "t", time.Second), NewOSRMClient("http://[::1", time.Second)} {
		_, err := f.Fetch(context.Background(), models.Coord{Lat: 1, Lon: 2}, models.Coord{Lat: 3, Lon: 4})
		assert.ErrorIs(t, err, ErrRouteUnavailable)
	}
}

func TestOSRMClientFetch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.True(t, strings.HasPrefix(r.URL.Path, "/route/v1/driving/2.000000,1.000000;4.000000,3.000000"))
		assert.Equal(t, "geojson", r.URL.Query().Get("geometries"))
		_, _ = w.Write([]byte(oneRoute))
	}))
	defer srv.Close()

	got, err := NewOSRMClient(srv.URL, time.Second).Fetch(context.Background(), models.Coord{Lat: 1, Lon: 2}, models.Coord{Lat: 3, Lon: 4})
	require.NoError(t, err)
	assert.Equal(t, 312.5, got.DurationSeconds)
}

type countingFetcher struct {
	mu    sync.Mutex
	calls int
	err   error
}

func (c *countingFetcher) Fetch(_ context.Context, start, end models.Coord) (models.RouteSummary, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls++
	if c.err != nil {
		return models.RouteSummary{}, c.err
	}
	return models.RouteSummary{DistanceMeters: start.Lat + end.Lat}, nil
}

func TestCachedFetcher(t *testing.T) {
	next := &countingFetcher{}
	f := Cached(next, NewCache(time.Minute))
	a, b := models.Coord{Lat: 1, Lon: 1}, models.Coord{Lat: 2, Lon: 2}

	for i := 0; i < 3; i++ {
		v, err := f.Fetch(context.Background(), a, b)
		require.NoError(t, err)
		assert.Equal(t, 3.0, v.DistanceMeters)
	}
	assert.Equal(t, 1, next.calls)

	next.err = errors.New("boom")
	_, err := f.Fetch(context.Background(), b, a)
	assert.Error(t, err)
	_, err = f.Fetch(context.Background(), b, a)
	assert.Error(t, err)
	assert.Equal(t, 3, next.calls)
}

func TestEstimateSeconds(t *testing.T) {
	from := models.Coord{Lat: 0, Lon: 0}
	to := models.Coord{Lat: 0, Lon: 1}
	assert.InDelta(t, 111195.0/10, EstimateSeconds(from, to, 10), 5)
	assert.InDelta(t, 111195.0/8, EstimateSeconds(from, to, 0), 5)
}
