package shipment

import (
	"monarchmail-be/internal/address"
	"monarchmail-be/internal/shipping"
)

const (
	FlowName    = "shipment"
	StepDetails = "details"
	StepRate    = "rate"

	RoleFrom = "from"
	RoleTo   = "to"

	RecordKind = "pending_shipment"
)

// PendingShipment is the persisted form of a shipment draft. Rate is set
// once a quote has been picked.
type PendingShipment struct {
	From   address.Address `json:"from"`
	To     address.Address `json:"to"`
	Parcel shipping.Parcel `json:"parcel"`
	Rate   *shipping.Rate  `json:"rate,omitempty"`
	Status string          `json:"status"`
}

func (PendingShipment) Kind() string { return RecordKind }
