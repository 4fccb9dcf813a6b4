package shipping

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Parcel dimensions are inches, weight is pounds.
type Parcel struct {
	Length decimal.Decimal `json:"length"`
	Width  decimal.Decimal `json:"width"`
	Height decimal.Decimal `json:"height"`
	Weight decimal.Decimal `json:"weight"`
}

var defaultDims = [3]int64{10, 8, 4}

// WithDefaults fills any missing dimension with the standard 10x8x4 box.
func (p Parcel) WithDefaults() Parcel {
	if !p.Length.IsPositive() {
		p.Length = decimal.NewFromInt(defaultDims[0])
	}
	if !p.Width.IsPositive() {
		p.Width = decimal.NewFromInt(defaultDims[1])
	}
	if !p.Height.IsPositive() {
		p.Height = decimal.NewFromInt(defaultDims[2])
	}
	return p
}

type Rate struct {
	ID            string          `json:"id"`
	Carrier       string          `json:"carrier"`
	Service       string          `json:"service"`
	Amount        decimal.Decimal `json:"amount"`
	Currency      string          `json:"currency"`
	EstimatedDays *int            `json:"estimated_days,omitempty"`
	Guaranteed    bool            `json:"guaranteed"`
}

func (r Rate) carrierKey() string {
	return strings.ToLower(r.Carrier)
}

// Batch is one rate-lookup response. A new lookup replaces it wholesale.
type Batch struct {
	ShipmentID string    `json:"shipment_id"`
	Rates      []Rate    `json:"rates"`
	FetchedAt  time.Time `json:"fetched_at"`
}

func (b *Batch) Find(id string) (Rate, bool) {
	if b == nil {
		return Rate{}, false
	}
	for _, r := range b.Rates {
		if r.ID == id {
			return r, true
		}
	}
	return Rate{}, false
}

type Label struct {
	ID             uuid.UUID       `db:"id" json:"id"`
	OwnerEmail     string          `db:"owner_email" json:"owner_email"`
	DraftID        uuid.UUID       `db:"draft_id" json:"draft_id"`
	RateID         string          `db:"rate_id" json:"rate_id"`
	Carrier        string          `db:"carrier" json:"carrier"`
	Service        string          `db:"service" json:"service"`
	Amount         decimal.Decimal `db:"amount" json:"amount"`
	TrackingNumber string          `db:"tracking_number" json:"tracking_number"`
	LabelURL       string          `db:"label_url" json:"label_url"`
	CreatedAt      time.Time       `db:"created_at" json:"created_at"`
}

// Purchase is what the carrier returns for a bought label.
type Purchase struct {
	TransactionID  string `json:"transaction_id"`
	TrackingNumber string `json:"tracking_number"`
	LabelURL       string `json:"label_url"`
}

var carrierNames = map[string]string{
	"usps":        "USPS",
	"ups":         "UPS",
	"fedex":       "FedEx",
	"dhl_express": "DHL Express",
}

func normalizeCarrier(provider string) string {
	p := strings.TrimSpace(provider)
	if name, ok := carrierNames[strings.ToLower(p)]; ok {
		return name
	}
	return p
}
