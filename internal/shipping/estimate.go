package shipping

import (
	"context"
	"strings"

	"monarchmail-be/internal/address"
	"monarchmail-be/internal/apperr"
	"monarchmail-be/internal/logger"

	"go.uber.org/zap"
)

// DefaultOriginZip is the store's own ZIP, used when the calculator is not
// given an origin.
const DefaultOriginZip = "78258"

// EstimateCarriers are always present in an Estimate, nil when a carrier
// returned nothing.
var EstimateCarriers = []string{"usps", "ups", "fedex"}

var ErrEstimateInput = &shippingError{apperr.KindValidation, "shipping: estimate missing destination or weight",
	"Please fill in destination ZIP and weight"}

type EstimateRequest struct {
	FromZip string `json:"from_zip"`
	ToZip   string `json:"to_zip"`
	Parcel
}

type Estimate struct {
	Quotes map[string]*Rate `json:"rates"`
	Best   *Rate            `json:"best,omitempty"`
}

type Estimator struct {
	rates RateLookup
}

func NewEstimator(rates RateLookup) *Estimator {
	return &Estimator{rates: rates}
}

// Estimate quotes a ZIP-to-ZIP parcel and keeps the cheapest rate per carrier.
func (e *Estimator) Estimate(ctx context.Context, req EstimateRequest) (*Estimate, error) {
	log := logger.FromCtx(ctx).With(
		zap.String("service", "Estimator"),
		zap.String("method", "Estimate"),
		zap.String("to_zip", req.ToZip),
	)

	if strings.TrimSpace(req.ToZip) == "" || !req.Weight.IsPositive() {
		return nil, ErrEstimateInput
	}
	from := strings.TrimSpace(req.FromZip)
	if from == "" {
		from = DefaultOriginZip
	}

	batch, err := e.rates.Rates(ctx,
		address.Address{Zip: from, Country: "US"},
		address.Address{Zip: strings.TrimSpace(req.ToZip), Country: "US"},
		req.Parcel,
	)
	if err != nil {
		log.Error("rate lookup failed", zap.Error(err))
		return nil, err
	}

	g := Group(batch)
	out := &Estimate{Quotes: make(map[string]*Rate, len(EstimateCarriers))}
	for _, c := range EstimateCarriers {
		out.Quotes[c] = nil
	}
	for _, r := range g.BestValue {
		key := r.carrierKey()
		if _, ok := out.Quotes[key]; !ok {
			continue
		}
		rate := r
		out.Quotes[key] = &rate
		if out.Best == nil || rate.Amount.LessThan(out.Best.Amount) {
			out.Best = &rate
		}
	}

	log.Info("estimate ready", zap.Bool("has_best", out.Best != nil))
	return out, nil
}
