package httpapi

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/example/box3-delivery/internal/delivery"
	"github.com/example/box3-delivery/internal/device"
	"github.com/example/box3-delivery/internal/geo"
	"github.com/example/box3-delivery/internal/ledger"
	"github.com/example/box3-delivery/internal/mapslink"
	"github.com/example/box3-delivery/internal/models"
	"github.com/example/box3-delivery/internal/pinning"
	"github.com/example/box3-delivery/internal/route"
	"github.com/example/box3-delivery/internal/views"
)

// maxImageBytes bounds package photo uploads.
const maxImageBytes = 10 << 20

type Server struct {
	Service        *delivery.Service
	Views          *views.Registry
	NearbyRadiusKm float64
	NearbyLimit    int

	auth     ViewerAuth
	logger   *slog.Logger
	mux      *mux.Router
	upgrader websocket.Upgrader
}

func NewServer(svc *delivery.Service, reg *views.Registry, auth ViewerAuth, logger *slog.Logger) *Server {
	s := &Server{
		Service:        svc,
		Views:          reg,
		NearbyRadiusKm: 5,
		NearbyLimit:    20,
		auth:           auth,
		logger:         logger,
		mux:            mux.NewRouter(),
	}
	s.registerMiddleware()
	s.routes()
	return s
}

func (s *Server) routes() {
	s.mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	}).Methods(http.MethodGet)
	s.mux.Handle("/metrics", promhttp.Handler())

	api := s.mux.PathPrefix("/api/v1").Subrouter()
	api.Use(s.viewerMiddleware)
	api.HandleFunc("/orders", s.handleDashboard).Methods(http.MethodGet)
	api.HandleFunc("/orders", s.handleCreateOrder).Methods(http.MethodPost)
	api.HandleFunc("/orders/nearby", s.handleNearby).Methods(http.MethodGet)
	api.HandleFunc("/orders/{id:[0-9]+}", s.handleOrderDetail).Methods(http.MethodGet)
	api.HandleFunc("/orders/{id:[0-9]+}/route", s.handleRoute).Methods(http.MethodGet)
	api.HandleFunc("/orders/{id:[0-9]+}/delivered", s.handleMarkDelivered).Methods(http.MethodPost)
	api.HandleFunc("/orders/{id:[0-9]+}/open", s.handleOpenBox).Methods(http.MethodPost)
	api.HandleFunc("/orders/{id:[0-9]+}/verify", s.handleVerifyPackage).Methods(http.MethodPost)
	api.HandleFunc("/tags", s.handleIssueTag).Methods(http.MethodPost)
	api.HandleFunc("/maps-link", s.handleMapsLink).Methods(http.MethodGet)

	ws := s.mux.PathPrefix("/ws").Subrouter()
	ws.Use(s.viewerMiddleware)
	ws.HandleFunc("/orders/{id:[0-9]+}/route", s.handleRouteView)
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) { s.mux.ServeHTTP(w, r) }

func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	loc, err := locationFromQuery(r)
	if err != nil {
		s.badRequest(w, err)
		return
	}
	d, err := s.Service.Dashboard(r.Context(), mustViewer(r), loc)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

func (s *Server) handleCreateOrder(w http.ResponseWriter, r *http.Request) {
	var in models.NewOrder
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		s.badRequest(w, err)
		return
	}
	o, err := s.Service.CreateOrder(r.Context(), mustViewer(r), in)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, o)
}

func (s *Server) handleNearby(w http.ResponseWriter, r *http.Request) {
	loc, err := locationFromQuery(r)
	if err != nil {
		s.badRequest(w, err)
		return
	}
	radius := s.NearbyRadiusKm
	if v := r.URL.Query().Get("radius_km"); v != "" {
		if radius, err = strconv.ParseFloat(v, 64); err != nil || radius <= 0 {
			s.badRequest(w, errors.New("radius_km must be a positive number"))
			return
		}
	}
	limit := s.NearbyLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		if limit, err = strconv.Atoi(v); err != nil || limit <= 0 {
			s.badRequest(w, errors.New("limit must be a positive integer"))
			return
		}
	}
	rows, err := s.Service.NearbyOrders(r.Context(), mustViewer(r), loc, radius, limit)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"orders": rows})
}

func (s *Server) handleOrderDetail(w http.ResponseWriter, r *http.Request) {
	loc, err := locationFromQuery(r)
	if err != nil {
		s.badRequest(w, err)
		return
	}
	d, err := s.Service.OrderDetail(r.Context(), mustViewer(r), orderID(r), loc)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

func (s *Server) handleRoute(w http.ResponseWriter, r *http.Request) {
	loc, err := locationFromQuery(r)
	if err != nil {
		s.badRequest(w, err)
		return
	}
	rs, err := s.Service.Route(r.Context(), mustViewer(r), orderID(r), loc)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rs)
}

func (s *Server) handleMarkDelivered(w http.ResponseWriter, r *http.Request) {
	o, err := s.Service.MarkDelivered(r.Context(), mustViewer(r), orderID(r))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, o)
}

func (s *Server) handleOpenBox(w http.ResponseWriter, r *http.Request) {
	o, err := s.Service.OpenBox(r.Context(), mustViewer(r), orderID(r))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, o)
}

func (s *Server) handleVerifyPackage(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxImageBytes)
	if err := r.ParseMultipartForm(maxImageBytes); err != nil {
		s.badRequest(w, err)
		return
	}
	f, hdr, err := r.FormFile("image")
	if err != nil {
		s.badRequest(w, err)
		return
	}
	defer f.Close()

	res, err := s.Service.VerifyPackage(r.Context(), mustViewer(r), orderID(r), hdr.Filename, f)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleIssueTag(w http.ResponseWriter, r *http.Request) {
	tag, err := s.Service.IssueTag(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"tag_id": tag})
}

func (s *Server) handleMapsLink(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	var vals [4]float64
	for i, k := range []string{"start_lat", "start_lon", "end_lat", "end_lon"} {
		f, err := strconv.ParseFloat(q.Get(k), 64)
		if err != nil {
			s.badRequest(w, errors.New(k+" must be a number"))
			return
		}
		vals[i] = f
	}
	mode, ok := mapslink.ParseMode(q.Get("mode"))
	if !ok {
		s.badRequest(w, errors.New("unknown travel mode"))
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"url": mapslink.BuildURL(vals[0], vals[1], vals[2], vals[3], mode)})
}

// handleRouteView checks the viewer's access before upgrading, then hands
// the connection to the view registry until the client disconnects.
func (s *Server) handleRouteView(w http.ResponseWriter, r *http.Request) {
	o, err := s.Service.Order(r.Context(), mustViewer(r), orderID(r))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// the upgrader already wrote the response
		s.logger.Debug("websocket upgrade failed", "error", err)
		return
	}
	if err := s.Views.Serve(r.Context(), conn, o.Destination()); err != nil {
		s.logger.Debug("route view ended", "order_id", o.ID, "error", err)
	}
}

type errorBody struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (s *Server) badRequest(w http.ResponseWriter, err error) {
	writeJSON(w, http.StatusBadRequest, errorBody{Error: err.Error()})
}

// writeError maps service errors onto status codes. The body is the notice
// the client shows; upstream failures keep their message so the user can
// retry knowingly.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	code := statusFor(err)
	if code >= http.StatusInternalServerError {
		s.logger.Error("request failed", "route", routeTemplate(r), "status", code, "error", err,
			"request_id", requestIDFromContext(r.Context()))
	}
	writeJSON(w, code, errorBody{Error: err.Error()})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, ledger.ErrOrderNotFound):
		return http.StatusNotFound
	case errors.Is(err, delivery.ErrNotParty),
		errors.Is(err, delivery.ErrActionNotAllowed),
		errors.Is(err, delivery.ErrRFIDMismatch):
		return http.StatusForbidden
	case errors.Is(err, delivery.ErrInvalidOrder):
		return http.StatusBadRequest
	case errors.Is(err, ledger.ErrInvalidTransition):
		return http.StatusConflict
	case errors.Is(err, geo.ErrLocationUnavailable):
		return http.StatusUnprocessableEntity
	case errors.Is(err, route.ErrRouteUnavailable),
		errors.Is(err, ledger.ErrLedgerCallFailed),
		errors.Is(err, device.ErrBackendCallFailed),
		errors.Is(err, pinning.ErrPinFailed):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// locationFromQuery reads lat/lon. Missing coordinates mean the client has
// no location and map to the (0,0) sentinel.
func locationFromQuery(r *http.Request) (models.Coord, error) {
	q := r.URL.Query()
	latS, lonS := q.Get("lat"), q.Get("lon")
	if latS == "" && lonS == "" {
		return models.Coord{}, nil
	}
	lat, err := strconv.ParseFloat(latS, 64)
	if err != nil || lat < -90 || lat > 90 {
		return models.Coord{}, errors.New("lat must be a number in [-90, 90]")
	}
	lon, err := strconv.ParseFloat(lonS, 64)
	if err != nil || lon < -180 || lon > 180 {
		return models.Coord{}, errors.New("lon must be a number in [-180, 180]")
	}
	return models.Coord{Lat: lat, Lon: lon}, nil
}

func orderID(r *http.Request) uint64 {
	id, _ := strconv.ParseUint(mux.Vars(r)["id"], 10, 64)
	return id
}

// mustViewer is only called behind viewerMiddleware.
func mustViewer(r *http.Request) models.Viewer {
	v, _ := viewerFromContext(r.Context())
	return v
}
