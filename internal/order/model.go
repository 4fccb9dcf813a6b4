package order

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// DraftRow is one order_drafts record. Payload holds the flow's typed record
// as JSON.
type DraftRow struct {
	ID         uuid.UUID       `db:"id"`
	Kind       string          `db:"kind"`
	OwnerEmail string          `db:"owner_email"`
	Status     string          `db:"status"`
	Step       int             `db:"step"`
	Payload    json.RawMessage `db:"payload"`
	Reference  string          `db:"reference"`
	CreatedAt  time.Time       `db:"created_at"`
	UpdatedAt  time.Time       `db:"updated_at"`
}

func (r *DraftRow) Decode(v any) error {
	return json.Unmarshal(r.Payload, v)
}

var referencePrefix = map[string]string{
	"mailbox_reservation": "MBX",
	"pending_shipment":    "SHP",
}

func prefixFor(kind string) string {
	if p, ok := referencePrefix[kind]; ok {
		return p
	}
	return "DRF"
}
