// Package views streams live route updates to open order-detail screens.
package views

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/example/box3-delivery/internal/geo"
	"github.com/example/box3-delivery/internal/models"
	"github.com/example/box3-delivery/internal/observability"
	"github.com/example/box3-delivery/internal/route"
)

const (
	MsgDistance   = "distance"
	MsgRoute      = "route"
	MsgRouteError = "route_error"

	defaultWriteTimeout = 10 * time.Second
)

// Message is pushed to the client. Route messages carry the generation of
// the position update that produced them.
type Message struct {
	Type       string               `json:"type"`
	Generation uint64               `json:"generation,omitempty"`
	Distance   string               `json:"distance,omitempty"`
	DistanceKm *float64             `json:"distance_km,omitempty"`
	Route      *models.RouteSummary `json:"route,omitempty"`
	Error      string               `json:"error,omitempty"`
}

// Conn is the part of *websocket.Conn a view uses.
type Conn interface {
	ReadJSON(v any) error
	WriteJSON(v any) error
	SetWriteDeadline(t time.Time) error
	Close() error
}

// View is one open order-detail screen.
type View struct {
	ID           string
	dest         models.Coord
	conn         Conn
	writeTimeout time.Duration
	mu           sync.Mutex
	tracker      *route.Tracker
}

// send bounds every write so a stalled client cannot hold the tracker lock
// through a route delivery.
func (v *View) send(m Message) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if err := v.conn.SetWriteDeadline(time.Now().Add(v.writeTimeout)); err != nil {
		return err
	}
	return v.conn.WriteJSON(m)
}

// Registry holds the open views.
type Registry struct {
	fetcher route.Fetcher
	logger  *slog.Logger

	// WriteTimeout bounds each message write to a client.
	WriteTimeout time.Duration

	mu    sync.RWMutex
	views map[string]*View
}

func NewRegistry(f route.Fetcher, logger *slog.Logger) *Registry {
	return &Registry{fetcher: f, logger: logger, WriteTimeout: defaultWriteTimeout, views: make(map[string]*View)}
}

// Serve runs a view until the client goes away. Each position the client
// sends gets an immediate straight-line distance, followed by the route
// once the fetch for that position completes. A fetch overtaken by a newer
// position is dropped.
func (r *Registry) Serve(ctx context.Context, conn Conn, dest models.Coord) error {
	v := &View{ID: uuid.NewString(), dest: dest, conn: conn, writeTimeout: r.WriteTimeout, tracker: route.NewTracker(r.fetcher)}
	r.add(v)
	defer r.remove(v)

	for {
		var pos models.Coord
		if err := conn.ReadJSON(&pos); err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return nil
			}
			return err
		}
		if err := r.update(ctx, v, pos); err != nil {
			return err
		}
	}
}

func (r *Registry) update(ctx context.Context, v *View, pos models.Coord) error {
	est := geo.EstimateBetween(pos, v.dest)
	m := Message{Type: MsgDistance, Distance: est.String()}
	if est.Known {
		km := est.Km
		m.DistanceKm = &km
	}
	if err := v.send(m); err != nil {
		return err
	}
	if !est.Known {
		return nil
	}
	v.tracker.Request(ctx, pos, v.dest, func(res route.Result) {
		out := Message{Type: MsgRoute, Generation: res.Generation}
		if res.Err != nil {
			out.Type = MsgRouteError
			out.Error = res.Err.Error()
			if !errors.Is(res.Err, route.ErrRouteUnavailable) {
				r.logger.Warn("route fetch failed", "view_id", v.ID, "error", res.Err)
			}
		} else {
			rs := res.Route
			out.Route = &rs
		}
		if err := v.send(out); err != nil {
			r.logger.Debug("route view write failed", "view_id", v.ID, "error", err)
		}
	})
	return nil
}

func (r *Registry) add(v *View) {
	r.mu.Lock()
	r.views[v.ID] = v
	r.mu.Unlock()
	observability.RouteViewsOpen.Inc()
	r.logger.Debug("route view opened", "view_id", v.ID)
}

// remove stops the view's tracker first so no result lands after the view
// is gone.
func (r *Registry) remove(v *View) {
	v.tracker.Close()
	r.mu.Lock()
	delete(r.views, v.ID)
	r.mu.Unlock()
	_ = v.conn.Close()
	observability.RouteViewsOpen.Dec()
	r.logger.Debug("route view closed", "view_id", v.ID)
}

func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.views)
}

// CloseAll closes every connection; each Serve loop then returns.
func (r *Registry) CloseAll() {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, v := range r.views {
		_ = v.conn.Close()
	}
}
