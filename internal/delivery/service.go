// Package delivery implements the order flows behind the customer and agent
// dashboards. Every method takes the acting Viewer explicitly.
package delivery

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/example/box3-delivery/internal/escrow"
	"github.com/example/box3-delivery/internal/events"
	"github.com/example/box3-delivery/internal/geo"
	"github.com/example/box3-delivery/internal/ledger"
	"github.com/example/box3-delivery/internal/mapslink"
	"github.com/example/box3-delivery/internal/models"
	"github.com/example/box3-delivery/internal/observability"
	"github.com/example/box3-delivery/internal/route"
	"github.com/example/box3-delivery/internal/stats"
	"github.com/example/box3-delivery/internal/status"
)

var (
	ErrActionNotAllowed = errors.New("action not allowed")
	ErrNotParty         = errors.New("viewer is not a party to this order")
	ErrRFIDMismatch     = errors.New("rfid tag does not match order")
	ErrInvalidOrder     = errors.New("invalid order")
)

// Device is the box controller.
type Device interface {
	IssueTag(ctx context.Context) (string, error)
	ReadTag(ctx context.Context) (string, error)
	ActuateServo(ctx context.Context) error
	VerifyPackage(ctx context.Context, description, imageURL string) (bool, error)
}

type Pinner interface {
	PinFile(ctx context.Context, name string, r io.Reader) (string, error)
	GatewayURL(cid string) string
}

type Authorizer interface {
	Allows(role models.Role, action status.Action) (bool, error)
}

type Service struct {
	Ledger          ledger.Client
	Device          Device
	Pinner          Pinner
	Escrow          escrow.Escrow
	Policy          Authorizer
	Events          events.Publisher
	Index           geo.Index
	Routes          route.Fetcher
	DefaultSpeedMps float64
	Logger          *slog.Logger

	once     sync.Once
	validate *validator.Validate
	now      func() time.Time
}

func (s *Service) init() { s.once.Do(s.setDefaults) }

func (s *Service) setDefaults() {
	if s.validate == nil {
		s.validate = validator.New()
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.Logger == nil {
		s.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if s.Events == nil {
		s.Events = events.Discard{}
	}
	if s.Escrow == nil {
		s.Escrow = escrow.Ledger{}
	}
}

// Row is one order as shown on a dashboard.
type Row struct {
	Order      models.Order  `json:"order"`
	Status     status.Status `json:"status"`
	Action     status.Action `json:"action"`
	Distance   string        `json:"distance"`
	DistanceKm *float64      `json:"distance_km,omitempty"`
	MapsURL    string        `json:"maps_url,omitempty"`
}

type Dashboard struct {
	Viewer models.Viewer        `json:"viewer"`
	Stats  models.StatsSnapshot `json:"stats"`
	Orders []Row                `json:"orders"`
}

// Detail is the order-detail view. ETASeconds is a straight-line estimate;
// the driving route is fetched separately.
type Detail struct {
	Row
	ETASeconds *float64 `json:"eta_seconds,omitempty"`
}

// Dashboard lists the viewer's orders with their status, allowed action and
// approximate distance from loc.
func (s *Service) Dashboard(ctx context.Context, v models.Viewer, loc models.Coord) (Dashboard, error) {
	s.init()
	all, err := s.Ledger.ListOrders(ctx)
	if err != nil {
		return Dashboard{}, err
	}
	mine := make([]models.Order, 0, len(all))
	for _, o := range all {
		if isParty(v, o) {
			mine = append(mine, o)
		}
	}
	rows := make([]Row, 0, len(mine))
	for _, o := range mine {
		r, err := s.row(v, o, loc)
		if err != nil {
			return Dashboard{}, err
		}
		if r.Status.Anomaly {
			s.Logger.Warn("order released before delivery", "order_id", o.ID)
		}
		rows = append(rows, r)
	}
	snap := stats.Aggregate(mine)
	recordStats(v.Role, snap)
	return Dashboard{Viewer: v, Stats: snap, Orders: rows}, nil
}

func (s *Service) OrderDetail(ctx context.Context, v models.Viewer, id uint64, loc models.Coord) (Detail, error) {
	s.init()
	o, err := s.partyOrder(ctx, v, id)
	if err != nil {
		return Detail{}, err
	}
	r, err := s.row(v, o, loc)
	if err != nil {
		return Detail{}, err
	}
	d := Detail{Row: r}
	if !loc.IsUnknown() {
		eta := route.EstimateSeconds(loc, o.Destination(), s.DefaultSpeedMps)
		d.ETASeconds = &eta
	}
	return d, nil
}

// Route fetches the driving route from loc to the order's destination.
func (s *Service) Route(ctx context.Context, v models.Viewer, id uint64, loc models.Coord) (models.RouteSummary, error) {
	s.init()
	if loc.IsUnknown() {
		return models.RouteSummary{}, geo.ErrLocationUnavailable
	}
	o, err := s.partyOrder(ctx, v, id)
	if err != nil {
		return models.RouteSummary{}, err
	}
	return s.Routes.Fetch(ctx, loc, o.Destination())
}

// Order returns the order if v is a party to it.
func (s *Service) Order(ctx context.Context, v models.Viewer, id uint64) (models.Order, error) {
	s.init()
	return s.partyOrder(ctx, v, id)
}

// MarkDelivered records physical delivery. Only the assigned agent may do it,
// and only while the order is in transit.
func (s *Service) MarkDelivered(ctx context.Context, v models.Viewer, id uint64) (models.Order, error) {
	s.init()
	o, err := s.partyOrder(ctx, v, id)
	if err != nil {
		return models.Order{}, err
	}
	if err := s.require(v, o, status.ActionMarkDelivered); err != nil {
		return models.Order{}, err
	}
	if err := s.Ledger.MarkDelivered(ctx, id); err != nil {
		return models.Order{}, err
	}
	o = o.MarkedDelivered()
	s.afterTransition(ctx, models.EventOrderDelivered, o)
	return o, nil
}

// OpenBox checks the tag on the reader against the customer's tag, opens the
// box and then releases the escrowed fee. A failure at any step aborts the
// rest; the order is only reported completed once the ledger accepted the
// release.
func (s *Service) OpenBox(ctx context.Context, v models.Viewer, id uint64) (o models.Order, err error) {
	s.init()
	defer func() { observability.BoxOpens.WithLabelValues(observability.Result(err)).Inc() }()

	o, err = s.partyOrder(ctx, v, id)
	if err != nil {
		return models.Order{}, err
	}
	if err := s.require(v, o, status.ActionOpenBox); err != nil {
		return models.Order{}, err
	}
	tag, err := s.Device.ReadTag(ctx)
	if err != nil {
		return models.Order{}, err
	}
	if o.CustomerRFID == "" || tag != strings.TrimSpace(o.CustomerRFID) {
		return models.Order{}, fmt.Errorf("%w: order %d", ErrRFIDMismatch, id)
	}
	if err := s.Device.ActuateServo(ctx); err != nil {
		return models.Order{}, err
	}
	if err := s.Ledger.ReleaseFunds(ctx, id); err != nil {
		return models.Order{}, err
	}
	o = o.MarkedReleased()
	if o.EscrowRef != "" {
		if err := s.Escrow.Capture(ctx, o.EscrowRef); err != nil {
			// the ledger already released; capture is reconciled out of band
			s.Logger.Error("escrow capture failed", "order_id", id, "escrow_ref", o.EscrowRef, "error", err)
		}
	}
	s.afterTransition(ctx, models.EventOrderCompleted, o)
	return o, nil
}

// CreateOrder validates the input, issues a customer tag if none was given,
// holds the fee and records the order on the ledger.
func (s *Service) CreateOrder(ctx context.Context, v models.Viewer, in models.NewOrder) (models.Order, error) {
	s.init()
	if err := s.allowed(v, status.ActionCreateOrder); err != nil {
		return models.Order{}, err
	}
	in.CustomerWallet = v.Account
	if err := s.validate.Struct(in); err != nil {
		return models.Order{}, fmt.Errorf("%w: %v", ErrInvalidOrder, err)
	}
	if in.CustomerRFID == "" {
		tag, err := s.Device.IssueTag(ctx)
		if err != nil {
			return models.Order{}, err
		}
		in.CustomerRFID = tag
	}
	ref, err := s.Escrow.Hold(ctx, in)
	if err != nil {
		return models.Order{}, err
	}
	in.EscrowRef = ref

	id, err := s.Ledger.CreateOrder(ctx, in)
	if err != nil {
		if ref != "" {
			if cerr := s.Escrow.Cancel(ctx, ref); cerr != nil {
				s.Logger.Error("escrow cancel failed", "escrow_ref", ref, "error", cerr)
			}
		}
		return models.Order{}, err
	}
	o := models.Order{
		ID:                  id,
		CustomerName:        in.CustomerName,
		CustomerWallet:      in.CustomerWallet,
		DeliveryAgentWallet: in.DeliveryAgentWallet,
		CustomerRFID:        in.CustomerRFID,
		DeliveryAgentRFID:   in.DeliveryAgentRFID,
		DeliveryFees:        in.DeliveryFees,
		Content:             in.Content,
		Description:         in.Description,
		DeliveryAddress:     in.DeliveryAddress,
		DeliveryLatitude:    in.DeliveryLatitude,
		DeliveryLongitude:   in.DeliveryLongitude,
		Metadata:            in.Metadata,
		CID:                 in.CID,
		EscrowRef:           in.EscrowRef,
		CreatedAt:           s.now(),
	}
	s.afterTransition(ctx, models.EventOrderCreated, o)
	return o, nil
}

// Verification is the result of checking a package photo against the
// order description.
type Verification struct {
	CID      string `json:"cid"`
	ImageURL string `json:"image_url"`
	Valid    bool   `json:"valid"`
}

// VerifyPackage pins the photo and asks the controller whether it matches
// the order's description. A mismatch is a result, not an error.
func (s *Service) VerifyPackage(ctx context.Context, v models.Viewer, id uint64, name string, image io.Reader) (Verification, error) {
	s.init()
	if err := s.allowed(v, status.ActionVerifyPackage); err != nil {
		return Verification{}, err
	}
	o, err := s.partyOrder(ctx, v, id)
	if err != nil {
		return Verification{}, err
	}
	cid, err := s.Pinner.PinFile(ctx, name, image)
	if err != nil {
		return Verification{}, err
	}
	res := Verification{CID: cid, ImageURL: s.Pinner.GatewayURL(cid)}
	description := o.Description
	if description == "" {
		description = o.Content
	}
	res.Valid, err = s.Device.VerifyPackage(ctx, description, res.ImageURL)
	if err != nil {
		return Verification{}, err
	}
	return res, nil
}

// IssueTag writes a new key to the tag on the reader, used at registration.
func (s *Service) IssueTag(ctx context.Context) (string, error) {
	s.init()
	return s.Device.IssueTag(ctx)
}

// NearbyOrders lists in-transit orders assigned to the agent within radiusKm
// of loc, nearest first.
func (s *Service) NearbyOrders(ctx context.Context, v models.Viewer, loc models.Coord, radiusKm float64, limit int) ([]Row, error) {
	s.init()
	if loc.IsUnknown() {
		return nil, geo.ErrLocationUnavailable
	}
	if s.Index == nil {
		return nil, nil
	}
	hits, err := s.Index.Nearby(ctx, loc, radiusKm, limit)
	if err != nil {
		return nil, err
	}
	out := make([]Row, 0, len(hits))
	for _, h := range hits {
		o, err := s.Ledger.GetOrder(ctx, h.OrderID)
		if errors.Is(err, ledger.ErrOrderNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		if !isParty(v, o) || o.OrderDelivered {
			continue
		}
		r, err := s.row(v, o, loc)
		if err != nil {
			return nil, err
		}
		km := h.DistanceKm
		r.DistanceKm = &km
		out = append(out, r)
	}
	return out, nil
}

// SeedIndex loads every in-transit order from the ledger into the geo index
// so orders created before a restart, or outside this service, are found by
// NearbyOrders. Per-order failures are logged and skipped.
func (s *Service) SeedIndex(ctx context.Context) (int, error) {
	s.init()
	if s.Index == nil {
		return 0, nil
	}
	all, err := s.Ledger.ListOrders(ctx)
	if err != nil {
		return 0, err
	}
	n := 0
	for _, o := range all {
		if status.Of(o).Label != status.LabelInTransit {
			continue
		}
		if err := s.Index.Upsert(ctx, o.ID, o.Destination()); err != nil {
			s.Logger.Warn("geo index seed failed", "order_id", o.ID, "error", err)
			continue
		}
		n++
	}
	return n, nil
}

func (s *Service) row(v models.Viewer, o models.Order, loc models.Coord) (Row, error) {
	st := status.Of(o)
	action := status.ActionNone
	if ok, err := s.permits(v, o, st.Action); err != nil {
		return Row{}, err
	} else if ok {
		action = st.Action
	}
	est := geo.EstimateBetween(loc, o.Destination())
	r := Row{Order: o, Status: st, Action: action, Distance: est.String()}
	if est.Known {
		km := est.Km
		r.DistanceKm = &km
		r.MapsURL = mapslink.BuildURL(loc.Lat, loc.Lon, o.DeliveryLatitude, o.DeliveryLongitude, mapslink.Driving)
	}
	return r, nil
}

// permits combines the state-enabled action with the role policy and the
// viewer's side of the order.
func (s *Service) permits(v models.Viewer, o models.Order, action status.Action) (bool, error) {
	if action == status.ActionNone || !isParty(v, o) {
		return false, nil
	}
	return s.Policy.Allows(v.Role, action)
}

func (s *Service) require(v models.Viewer, o models.Order, action status.Action) error {
	st := status.Of(o)
	if st.Action != action {
		return fmt.Errorf("%w: order %d is %s", ErrActionNotAllowed, o.ID, st.Label)
	}
	ok, err := s.permits(v, o, action)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: %s may not %s", ErrActionNotAllowed, v.Role, action)
	}
	return nil
}

func (s *Service) allowed(v models.Viewer, action status.Action) error {
	ok, err := s.Policy.Allows(v.Role, action)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: %s may not %s", ErrActionNotAllowed, v.Role, action)
	}
	return nil
}

func (s *Service) partyOrder(ctx context.Context, v models.Viewer, id uint64) (models.Order, error) {
	o, err := s.Ledger.GetOrder(ctx, id)
	if err != nil {
		return models.Order{}, err
	}
	if !isParty(v, o) {
		return models.Order{}, fmt.Errorf("%w: order %d", ErrNotParty, id)
	}
	return o, nil
}

// afterTransition keeps the open-order index and the event stream in step.
// Both are best effort once the ledger call has succeeded.
func (s *Service) afterTransition(ctx context.Context, typ models.EventType, o models.Order) {
	if s.Index != nil {
		var err error
		if typ == models.EventOrderCreated {
			err = s.Index.Upsert(ctx, o.ID, o.Destination())
		} else {
			err = s.Index.Remove(ctx, o.ID)
		}
		if err != nil {
			s.Logger.Warn("geo index update failed", "order_id", o.ID, "error", err)
		}
	}
	if err := s.Events.Publish(ctx, models.OrderEvent{Type: typ, Order: o, At: s.now()}); err != nil {
		s.Logger.Warn("publish order event failed", "order_id", o.ID, "type", typ, "error", err)
	}
	s.Logger.Info("order transition", "order_id", o.ID, "type", typ)
}

// isParty matches the viewer's wallet against the side of the order its role
// stands on.
func isParty(v models.Viewer, o models.Order) bool {
	if v.Account == "" {
		return false
	}
	switch v.Role {
	case models.RoleAgent:
		return strings.EqualFold(v.Account, o.DeliveryAgentWallet)
	case models.RoleCustomer:
		return strings.EqualFold(v.Account, o.CustomerWallet)
	default:
		return false
	}
}

func recordStats(role models.Role, snap models.StatsSnapshot) {
	observability.OrdersByStatus.WithLabelValues(string(role), status.LabelInTransit).Set(float64(snap.InTransit))
	observability.OrdersByStatus.WithLabelValues(string(role), status.LabelDelivered).Set(float64(snap.Delivered))
	observability.OrdersByStatus.WithLabelValues(string(role), status.LabelCompleted).Set(float64(snap.Completed))
}
