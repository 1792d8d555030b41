package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/box3-delivery/internal/authz"
	"github.com/example/box3-delivery/internal/delivery"
	"github.com/example/box3-delivery/internal/device"
	"github.com/example/box3-delivery/internal/geo"
	"github.com/example/box3-delivery/internal/ledger"
	"github.com/example/box3-delivery/internal/models"
	"github.com/example/box3-delivery/internal/pinning"
	"github.com/example/box3-delivery/internal/route"
	"github.com/example/box3-delivery/internal/storage"
	"github.com/example/box3-delivery/internal/views"
)

var (
	testAuth = ViewerAuth{Secret: []byte("test-secret"), Issuer: "box3"}
	customer = models.Viewer{Account: "0xC0FFEE", Role: models.RoleCustomer}
	agent    = models.Viewer{Account: "0xA6E7", Role: models.RoleAgent}
)

type stubDevice struct{ tag string }

func (d stubDevice) IssueTag(context.Context) (string, error) { return "issued-tag", nil }
func (d stubDevice) ReadTag(context.Context) (string, error)  { return d.tag, nil }
func (d stubDevice) ActuateServo(context.Context) error       { return nil }
func (d stubDevice) VerifyPackage(context.Context, string, string) (bool, error) {
	return true, nil
}

type stubPinner struct{}

func (stubPinner) PinFile(_ context.Context, _ string, r io.Reader) (string, error) {
	_, _ = io.Copy(io.Discard, r)
	return "bafytest", nil
}

func (stubPinner) GatewayURL(cid string) string { return "https://gw.example/ipfs/" + cid }

type stubRoutes struct{ err error }

func (s stubRoutes) Fetch(context.Context, models.Coord, models.Coord) (models.RouteSummary, error) {
	if s.err != nil {
		return models.RouteSummary{}, s.err
	}
	return models.RouteSummary{DistanceMeters: 1200, DurationSeconds: 180}, nil
}

func newTestServer(t *testing.T, routes route.Fetcher) (*Server, *storage.MemoryStore) {
	t.Helper()
	policy, err := authz.NewDefault()
	require.NoError(t, err)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	store := storage.NewMemoryStore()
	store.Put(models.Order{ID: 1, CustomerWallet: customer.Account, DeliveryAgentWallet: agent.Account,
		CustomerRFID: "tag-1", DeliveryFees: 3, DeliveryLatitude: 48.8566, DeliveryLongitude: 2.3522})
	svc := &delivery.Service{
		Ledger: store,
		Device: stubDevice{tag: "tag-1"},
		Pinner: stubPinner{},
		Policy: policy,
		Index:  geo.NewMemoryIndex(),
		Routes: routes,
		Logger: logger,
	}
	return NewServer(svc, views.NewRegistry(routes, logger), testAuth, logger), store
}

func do(t *testing.T, s *Server, method, target string, v *models.Viewer, body io.Reader) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, body)
	if v != nil {
		tok, err := testAuth.Sign(*v, time.Hour)
		require.NoError(t, err)
		req.Header.Set("Authorization", "Bearer "+tok)
	}
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body errorBody
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body.Error
}

func TestHealthz(t *testing.T) {
	s, _ := newTestServer(t, stubRoutes{})
	rec := do(t, s, http.MethodGet, "/healthz", nil, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}

func TestAPIRequiresToken(t *testing.T) {
	s, _ := newTestServer(t, stubRoutes{})

	rec := do(t, s, http.MethodGet, "/api/v1/orders", nil, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	other := ViewerAuth{Secret: []byte("other"), Issuer: "box3"}
	tok, err := other.Sign(customer, time.Hour)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodGet, "/api/v1/orders", nil)
	req.Header.Set("Authorization", "Bearer "+tok)
	rec = httptest.NewRecorder()
	s.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestDashboardHandler(t *testing.T) {
	s, _ := newTestServer(t, stubRoutes{})

	rec := do(t, s, http.MethodGet, "/api/v1/orders?lat=51.5074&lon=-0.1278", &customer, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var d delivery.Dashboard
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &d))
	require.Len(t, d.Orders, 1)
	assert.Equal(t, 1, d.Stats.InTransit)
	assert.Contains(t, d.Orders[0].Distance, " km")

	rec = do(t, s, http.MethodGet, "/api/v1/orders", &customer, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &d))
	assert.Equal(t, geo.LocationPermissionText, d.Orders[0].Distance)

	rec = do(t, s, http.MethodGet, "/api/v1/orders?lat=north&lon=1", &customer, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestOrderDetailErrors(t *testing.T) {
	s, _ := newTestServer(t, stubRoutes{})
	stranger := models.Viewer{Account: "0xNOPE", Role: models.RoleCustomer}

	assert.Equal(t, http.StatusNotFound, do(t, s, http.MethodGet, "/api/v1/orders/99", &customer, nil).Code)
	assert.Equal(t, http.StatusForbidden, do(t, s, http.MethodGet, "/api/v1/orders/1", &stranger, nil).Code)
	assert.Equal(t, http.StatusOK, do(t, s, http.MethodGet, "/api/v1/orders/1", &agent, nil).Code)
}

func TestLifecycleHandlers(t *testing.T) {
	s, store := newTestServer(t, stubRoutes{})

	rec := do(t, s, http.MethodPost, "/api/v1/orders/1/open", &customer, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = do(t, s, http.MethodPost, "/api/v1/orders/1/delivered", &customer, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = do(t, s, http.MethodPost, "/api/v1/orders/1/delivered", &agent, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = do(t, s, http.MethodPost, "/api/v1/orders/1/open", &customer, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var o models.Order
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &o))
	assert.True(t, o.FundReleased)

	stored, err := store.GetOrder(context.Background(), 1)
	require.NoError(t, err)
	assert.True(t, stored.OrderDelivered && stored.FundReleased)
}

func TestRouteHandler(t *testing.T) {
	s, _ := newTestServer(t, stubRoutes{})
	rec := do(t, s, http.MethodGet, "/api/v1/orders/1/route", &agent, nil)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	rec = do(t, s, http.MethodGet, "/api/v1/orders/1/route?lat=48.85&lon=2.29", &agent, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var rs models.RouteSummary
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &rs))
	assert.Equal(t, 1200.0, rs.DistanceMeters)

	s, _ = newTestServer(t, stubRoutes{err: fmt.Errorf("%w: no routes", route.ErrRouteUnavailable)})
	rec = do(t, s, http.MethodGet, "/api/v1/orders/1/route?lat=48.85&lon=2.29", &agent, nil)
	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.Contains(t, decodeError(t, rec), "route unavailable")
}

func TestCreateOrderHandler(t *testing.T) {
	s, _ := newTestServer(t, stubRoutes{})
	body := `{"customer_name":"Ada","delivery_agent_wallet":"0xA6E7","delivery_fees":4.5,
		"content":"books","delivery_address":"1 Main St","delivery_latitude":1,"delivery_longitude":2}`

	rec := do(t, s, http.MethodPost, "/api/v1/orders", &customer, strings.NewReader(body))
	require.Equal(t, http.StatusCreated, rec.Code)
	var o models.Order
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &o))
	assert.Equal(t, uint64(2), o.ID)
	assert.Equal(t, "issued-tag", o.CustomerRFID)
	assert.Equal(t, customer.Account, o.CustomerWallet)

	rec = do(t, s, http.MethodPost, "/api/v1/orders", &customer, strings.NewReader(`{"customer_name":"Ada"}`))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, s, http.MethodPost, "/api/v1/orders", &customer, strings.NewReader(`{`))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestVerifyPackageHandler(t *testing.T) {
	s, _ := newTestServer(t, stubRoutes{})
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("image", "box.jpg")
	require.NoError(t, err)
	_, _ = fw.Write([]byte("jpeg bytes"))
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/v1/orders/1/verify", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	tok, err := testAuth.Sign(agent, time.Hour)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+tok)
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var res delivery.Verification
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	assert.Equal(t, delivery.Verification{CID: "bafytest", ImageURL: "https://gw.example/ipfs/bafytest", Valid: true}, res)
}

func TestMapsLinkHandler(t *testing.T) {
	s, _ := newTestServer(t, stubRoutes{})

	rec := do(t, s, http.MethodGet, "/api/v1/maps-link?start_lat=1.5&start_lon=2&end_lat=3&end_lon=4.25&mode=walking", &agent, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "https://www.google.com/maps/dir/?api=1&origin=1.5,2&destination=3,4.25&travelmode=walking", body["url"])

	rec = do(t, s, http.MethodGet, "/api/v1/maps-link?start_lat=1&start_lon=2&end_lat=3&end_lon=4&mode=teleport", &agent, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRouteViewWebsocket(t *testing.T) {
	s, _ := newTestServer(t, stubRoutes{})
	srv := httptest.NewServer(s)
	defer srv.Close()

	tok, err := testAuth.Sign(agent, time.Hour)
	require.NoError(t, err)
	u := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/orders/1/route?token=" + tok
	c, _, err := websocket.DefaultDialer.Dial(u, nil)
	require.NoError(t, err)
	defer c.Close()

	require.NoError(t, c.WriteJSON(models.Coord{Lat: 48.85, Lon: 2.29}))
	require.NoError(t, c.SetReadDeadline(time.Now().Add(2*time.Second)))
	var m views.Message
	require.NoError(t, c.ReadJSON(&m))
	assert.Equal(t, views.MsgDistance, m.Type)
	require.NoError(t, c.ReadJSON(&m))
	assert.Equal(t, views.MsgRoute, m.Type)

	_, resp, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+"/ws/orders/1/route", nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestStatusFor(t *testing.T) {
	cases := map[string]struct {
		err  error
		want int
	}{
		"not found":          {err: fmt.Errorf("%w: 9", ledger.ErrOrderNotFound), want: http.StatusNotFound},
		"not party":          {err: delivery.ErrNotParty, want: http.StatusForbidden},
		"rfid mismatch":      {err: delivery.ErrRFIDMismatch, want: http.StatusForbidden},
		"invalid order":      {err: delivery.ErrInvalidOrder, want: http.StatusBadRequest},
		"invalid transition": {err: ledger.ErrInvalidTransition, want: http.StatusConflict},
		"no location":        {err: geo.ErrLocationUnavailable, want: http.StatusUnprocessableEntity},
		"ledger down":        {err: ledger.ErrLedgerCallFailed, want: http.StatusBadGateway},
		"device down":        {err: device.ErrBackendCallFailed, want: http.StatusBadGateway},
		"pinning down":       {err: pinning.ErrPinFailed, want: http.StatusBadGateway},
		"unknown":            {err: errors.New("boom"), want: http.StatusInternalServerError},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, tc.want, statusFor(tc.err))
		})
	}
}
