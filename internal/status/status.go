// Package status maps an order's lifecycle flags onto what the dashboards show.
package status

import "github.com/example/box3-delivery/internal/models"

type Icon string

const (
	IconPackage Icon = "package"
	IconTruck   Icon = "truck"
	IconCheck   Icon = "check"
)

const (
	LabelInTransit = "In Transit"
	LabelDelivered = "Delivered"
	LabelCompleted = "Completed"
)

type Action string

const (
	ActionNone          Action = ""
	ActionMarkDelivered Action = "mark_delivered"
	ActionOpenBox       Action = "open_box"
	ActionCreateOrder   Action = "create_order"
	ActionVerifyPackage Action = "verify_package"
)

// Status is the display form of an order. Action is the action the order's
// state enables; whether a given role may take it is decided by authz.
type Status struct {
	Icon   Icon   `json:"icon"`
	Label  string `json:"label"`
	Action Action `json:"action"`
	// Anomaly is set for fundReleased without orderDelivered, which the
	// ledger should never produce.
	Anomaly bool `json:"anomaly,omitempty"`
}

// Derive checks fundReleased first so an inconsistent record still shows as
// completed.
func Derive(orderDelivered, fundReleased bool) Status {
	switch {
	case fundReleased:
		return Status{Icon: IconCheck, Label: LabelCompleted, Action: ActionNone, Anomaly: !orderDelivered}
	case orderDelivered:
		return Status{Icon: IconTruck, Label: LabelDelivered, Action: ActionOpenBox}
	default:
		return Status{Icon: IconPackage, Label: LabelInTransit, Action: ActionMarkDelivered}
	}
}

func Of(o models.Order) Status { return Derive(o.OrderDelivered, o.FundReleased) }

// Terminal reports whether no further transition is possible.
func (s Status) Terminal() bool { return s.Label == LabelCompleted }
