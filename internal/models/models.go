package models

import "time"

type Coord struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// IsUnknown reports whether c is the (0,0) sentinel used when the device
// could not provide a location.
func (c Coord) IsUnknown() bool { return c.Lat == 0 && c.Lon == 0 }

type Role string

const (
	RoleCustomer Role = "customer"
	RoleAgent    Role = "agent"
)

// Viewer is the identity a request acts as. It is built once per request
// and passed explicitly; nothing below the HTTP layer reads it from globals.
type Viewer struct {
	Account string `json:"account"`
	Role    Role   `json:"role"`
}

// Order is one customer-to-agent delivery as recorded on the ledger.
// Values are copied, never shared: the transition helpers return a new Order.
type Order struct {
	ID                  uint64    `json:"id"`
	CustomerName        string    `json:"customer_name"`
	CustomerWallet      string    `json:"customer_wallet"`
	DeliveryAgentWallet string    `json:"delivery_agent_wallet"`
	CustomerRFID        string    `json:"customer_rfid"`
	DeliveryAgentRFID   string    `json:"delivery_agent_rfid"`
	OrderDelivered      bool      `json:"order_delivered"`
	FundReleased        bool      `json:"fund_released"`
	DeliveryFees        float64   `json:"delivery_fees"`
	Content             string    `json:"content"`
	Description         string    `json:"description"`
	DeliveryAddress     string    `json:"delivery_address"`
	DeliveryLatitude    float64   `json:"delivery_latitude"`
	DeliveryLongitude   float64   `json:"delivery_longitude"`
	Metadata            string    `json:"metadata,omitempty"`
	CID                 string    `json:"cid,omitempty"`
	EscrowRef           string    `json:"escrow_ref,omitempty"`
	CreatedAt           time.Time `json:"created_at"`
}

func (o Order) Destination() Coord {
	return Coord{Lat: o.DeliveryLatitude, Lon: o.DeliveryLongitude}
}

// Consistent reports whether fundReleased implies orderDelivered.
func (o Order) Consistent() bool { return !o.FundReleased || o.OrderDelivered }

func (o Order) MarkedDelivered() Order {
	o.OrderDelivered = true
	return o
}

func (o Order) MarkedReleased() Order {
	o.FundReleased = true
	return o
}

// NewOrder carries the fields a customer supplies when creating an order.
type NewOrder struct {
	CustomerName        string  `json:"customer_name" validate:"required"`
	CustomerWallet      string  `json:"customer_wallet"`
	DeliveryAgentWallet string  `json:"delivery_agent_wallet" validate:"required"`
	CustomerRFID        string  `json:"customer_rfid"`
	DeliveryAgentRFID   string  `json:"delivery_agent_rfid"`
	DeliveryFees        float64 `json:"delivery_fees" validate:"gte=0"`
	Content             string  `json:"content" validate:"required"`
	Description         string  `json:"description"`
	DeliveryAddress     string  `json:"delivery_address" validate:"required"`
	DeliveryLatitude    float64 `json:"delivery_latitude" validate:"gte=-90,lte=90"`
	DeliveryLongitude   float64 `json:"delivery_longitude" validate:"gte=-180,lte=180"`
	Metadata            string  `json:"metadata"`
	CID                 string  `json:"cid"`
	EscrowRef           string  `json:"-"`
}

// RouteSummary is a directions result. Path points are (lon, lat) pairs.
type RouteSummary struct {
	DistanceMeters  float64      `json:"distance_meters"`
	DurationSeconds float64      `json:"duration_seconds"`
	Path            [][2]float64 `json:"path"`
}

type StatsSnapshot struct {
	Total      int     `json:"total"`
	InTransit  int     `json:"in_transit"`
	Delivered  int     `json:"delivered"`
	Completed  int     `json:"completed"`
	TotalValue float64 `json:"total_value"`
}

type EventType string

const (
	EventOrderCreated   EventType = "order.created"
	EventOrderDelivered EventType = "order.delivered"
	EventOrderCompleted EventType = "order.completed"
)

// OrderEvent is published whenever an order changes state.
type OrderEvent struct {
	Type  EventType `json:"type"`
	Order Order     `json:"order"`
	At    time.Time `json:"at"`
}
