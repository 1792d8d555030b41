package ledger

import (
	"bytes"
	"strconv"

	"github.com/example/box3-delivery/internal/models"
)

// rawOrder accepts both the current contract field names and the legacy
// ones (delivered, funds_released, funds, sender, receiver, ...) so the rest
// of the service only ever sees models.Order.
type rawOrder struct {
	ID      flexUint `json:"id"`
	OrderID flexUint `json:"order_id"`

	CustomerName string `json:"customer_name"`
	Name         string `json:"name"`

	CustomerWallet      string `json:"customer_wallet"`
	Sender              string `json:"sender"`
	DeliveryAgentWallet string `json:"delivery_agent_wallet"`
	Receiver            string `json:"receiver"`

	CustomerRFID      string `json:"customer_rfid"`
	DeliveryAgentRFID string `json:"delivery_agent_rfid"`
	DeliveryRFID      string `json:"delivery_rfid"`

	OrderDelivered *bool `json:"order_delivered"`
	Delivered      *bool `json:"delivered"`
	FundReleased   *bool `json:"fund_released"`
	FundsReleased  *bool `json:"funds_released"`

	DeliveryFees *flexFloat `json:"delivery_fees"`
	Funds        *flexFloat `json:"funds"`

	Content         string `json:"content"`
	Description     string `json:"description"`
	DeliveryAddress string `json:"delivery_address"`

	DeliveryLatitude  *flexFloat `json:"delivery_latitude"`
	Latitude          *flexFloat `json:"latitude"`
	DeliveryLongitude *flexFloat `json:"delivery_longitude"`
	Longitude         *flexFloat `json:"longitude"`

	Metadata  string `json:"metadata"`
	CID       string `json:"cid"`
	EscrowRef string `json:"escrow_ref"`
}

func (r rawOrder) toOrder() models.Order {
	id := r.ID
	if id == 0 {
		id = r.OrderID
	}
	return models.Order{
		ID:                  uint64(id),
		CustomerName:        first(r.CustomerName, r.Name),
		CustomerWallet:      first(r.CustomerWallet, r.Sender),
		DeliveryAgentWallet: first(r.DeliveryAgentWallet, r.Receiver),
		CustomerRFID:        r.CustomerRFID,
		DeliveryAgentRFID:   first(r.DeliveryAgentRFID, r.DeliveryRFID),
		OrderDelivered:      firstBool(r.OrderDelivered, r.Delivered),
		FundReleased:        firstBool(r.FundReleased, r.FundsReleased),
		DeliveryFees:        firstFloat(r.DeliveryFees, r.Funds),
		Content:             r.Content,
		Description:         r.Description,
		DeliveryAddress:     r.DeliveryAddress,
		DeliveryLatitude:    firstFloat(r.DeliveryLatitude, r.Latitude),
		DeliveryLongitude:   firstFloat(r.DeliveryLongitude, r.Longitude),
		Metadata:            r.Metadata,
		CID:                 r.CID,
		EscrowRef:           r.EscrowRef,
	}
}

func first(a, b string) string {
	if a != "" {
		return a
	}
	return b
}

func firstBool(a, b *bool) bool {
	if a != nil {
		return *a
	}
	return b != nil && *b
}

func firstFloat(a, b *flexFloat) float64 {
	if a != nil {
		return float64(*a)
	}
	if b != nil {
		return float64(*b)
	}
	return 0
}

// Move u64 and fixed-point values arrive as JSON strings.
type flexFloat float64

func (f *flexFloat) UnmarshalJSON(b []byte) error {
	b = bytes.Trim(b, `"`)
	if len(b) == 0 || string(b) == "null" {
		return nil
	}
	v, err := strconv.ParseFloat(string(b), 64)
	if err != nil {
		return err
	}
	*f = flexFloat(v)
	return nil
}

type flexUint uint64

func (u *flexUint) UnmarshalJSON(b []byte) error {
	b = bytes.Trim(b, `"`)
	if len(b) == 0 || string(b) == "null" {
		return nil
	}
	v, err := strconv.ParseUint(string(b), 10, 64)
	if err != nil {
		return err
	}
	*u = flexUint(v)
	return nil
}
