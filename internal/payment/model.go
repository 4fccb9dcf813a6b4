package payment

import (
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Checkout types carried in session metadata and read back by the webhook.
const (
	TypeMailboxRental = "mailbox_rental_full"
	TypeShippingLabel = "shipping_label"
)

type LineItem struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Amount      decimal.Decimal `json:"amount"`
	Quantity    int             `json:"quantity"`
}

type CheckoutRequest struct {
	Type          string
	DraftID       uuid.UUID
	CustomerEmail string
	Items         []LineItem
	CouponCode    string
	Discount      decimal.Decimal
	Metadata      map[string]string

	// IdempotencyKey makes a network-level retry of the same submission
	// return the session created the first time.
	IdempotencyKey string
}

func (r CheckoutRequest) Total() decimal.Decimal {
	total := decimal.Zero
	for _, it := range r.Items {
		total = total.Add(it.Amount.Mul(decimal.NewFromInt(int64(it.Quantity))))
	}
	return total.Sub(r.Discount)
}

// ChargeItems returns the line items with the discount taken off them in
// order, so the processor charges exactly Total without needing a coupon of
// its own. Items discounted to nothing are dropped.
func (r CheckoutRequest) ChargeItems() []LineItem {
	remaining := r.Discount
	out := make([]LineItem, 0, len(r.Items))
	for _, it := range r.Items {
		if remaining.IsPositive() && it.Quantity == 1 {
			off := decimal.Min(remaining, it.Amount)
			remaining = remaining.Sub(off)
			it.Amount = it.Amount.Sub(off)
			if r.CouponCode != "" {
				it.Description = strings.TrimSpace(it.Description + " Coupon " + strings.ToUpper(r.CouponCode) + " applied.")
			}
		}
		if it.Amount.IsPositive() {
			out = append(out, it)
		}
	}
	return out
}

type CheckoutSession struct {
	ID  string `json:"id"`
	URL string `json:"url"`
}

// Cents converts a dollar amount to the processor's integer minor units.
func Cents(d decimal.Decimal) int64 {
	return d.Shift(2).Round(0).IntPart()
}
