package shipment

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"monarchmail-be/internal/address"
	"monarchmail-be/internal/apperr"
	"monarchmail-be/internal/logger"
	"monarchmail-be/internal/payment"
	"monarchmail-be/internal/shipping"
	"monarchmail-be/internal/wizard"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type shipmentError struct{ kind, msg, user string }

func (e *shipmentError) Error() string       { return e.msg }
func (e *shipmentError) Kind() string        { return e.kind }
func (e *shipmentError) UserMessage() string { return e.user }

var (
	ErrUnknownRole = &shipmentError{apperr.KindValidation, "shipment: unknown address role",
		"Address role must be from or to."}
	ErrQuoteTooEarly = &shipmentError{apperr.KindConflict, "shipment: quote before details",
		"Please complete the addresses and package details first."}
)

var roles = map[string]wizard.AddressField{
	RoleFrom: {Role: RoleFrom, Prefix: "from_"},
	RoleTo:   {Role: RoleTo, Prefix: "to_"},
}

type Service struct {
	deps      wizard.Deps
	rates     shipping.RateLookup
	addresses address.Repository
}

func NewService(deps wizard.Deps, rates shipping.RateLookup, addresses address.Repository) *Service {
	return &Service{deps: deps, rates: rates, addresses: addresses}
}

// Session is one shipment wizard and the rate batch it is choosing from.
type Session struct {
	*wizard.Controller
	svc *Service

	mu    sync.Mutex
	batch *shipping.Batch
}

func (s *Service) NewSession(owner string) *Session {
	sess := &Session{svc: s}
	sess.Controller = wizard.NewController(sess.flow(), s.deps, owner)
	return sess
}

func (s *Session) currentBatch() *shipping.Batch {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.batch
}

// Quote fetches a fresh batch for the entered addresses and parcel. The new
// batch replaces the previous one, so a rate picked from the old batch has to
// be picked again. Quote is refused while a transition is in flight.
func (s *Session) Quote(ctx context.Context) (shipping.Grouped, error) {
	log := logger.FromCtx(ctx).With(
		zap.String("service", "Shipment"),
		zap.String("method", "Quote"),
	)

	view := s.Snapshot()
	if view.Phase == wizard.PhaseBusy {
		return shipping.Grouped{}, wizard.ErrTransitionInFlight
	}
	if view.Current() != StepRate {
		return shipping.Grouped{}, ErrQuoteTooEarly
	}

	d := s.Draft()
	fields := d.Steps[StepDetails]
	batch, err := s.svc.rates.Rates(ctx,
		roles[RoleFrom].Read(fields),
		roles[RoleTo].Read(fields),
		parcelFrom(fields),
	)
	if err != nil {
		log.Warn("rate lookup failed", zap.Error(err))
		return shipping.Grouped{}, err
	}

	// a submit that started during the lookup keeps the batch it priced
	if id := d.Value(StepRate, "rate_id"); id != "" {
		if _, ok := batch.Find(id); !ok {
			if err := s.Set(StepRate, wizard.Fields{"rate_id": ""}); err != nil {
				log.Warn("quote discarded", zap.Error(err))
				return shipping.Grouped{}, err
			}
		}
	}

	s.mu.Lock()
	s.batch = batch
	s.mu.Unlock()

	log.Info("quote ready", zap.Int("rates", len(batch.Rates)))
	return shipping.Group(batch), nil
}

// UseSavedAddress copies an address book entry into one role and bumps its
// usage counter.
func (s *Session) UseSavedAddress(ctx context.Context, role string, id uuid.UUID) error {
	af, ok := roles[role]
	if !ok {
		return ErrUnknownRole
	}

	saved, err := s.svc.addresses.GetByID(ctx, id, s.Owner())
	if err != nil {
		return err
	}

	addr := saved.Address()
	fields := af.Write(addr)
	fields[af.Prefix+"name"] = addr.Name
	fields[af.Prefix+"company"] = addr.Company
	fields[af.Prefix+"phone"] = addr.Phone
	fields[af.Prefix+"street2"] = addr.Street2
	if err := s.Set(StepDetails, fields); err != nil {
		return err
	}

	if err := s.svc.addresses.IncrementUsage(ctx, id, s.Owner()); err != nil {
		logger.FromCtx(ctx).Warn("failed to bump saved address usage",
			zap.String("address_id", id.String()),
			zap.Error(err),
		)
	}
	return nil
}

func parcelFrom(f wizard.Fields) shipping.Parcel {
	num := func(k string) decimal.Decimal {
		d, err := decimal.NewFromString(strings.TrimSpace(f[k]))
		if err != nil {
			return decimal.Zero
		}
		return d
	}
	return shipping.Parcel{
		Length: num("length"),
		Width:  num("width"),
		Height: num("height"),
		Weight: num("weight"),
	}.WithDefaults()
}

// saveAddresses stores the roles the customer asked to keep. The new id is
// written back so a retried transition does not save twice. Failures are
// logged and do not block the shipment.
func (s *Session) saveAddresses(ctx context.Context, d wizard.Draft) (wizard.Fields, error) {
	fields := d.Steps[StepDetails]
	out := wizard.Fields{}

	for _, role := range []string{RoleFrom, RoleTo} {
		if fields["save_"+role] != "true" || fields["saved_"+role+"_id"] != "" {
			continue
		}
		addr := roles[role].Read(fields)
		label := strings.TrimSpace(fields[role+"_label"])
		if label == "" {
			label = fmt.Sprintf("%s (%s)", addr.Name, addr.City)
		}

		sa := address.NewSavedAddress(d.Owner, label, addr)
		if err := s.svc.addresses.Create(ctx, sa); err != nil {
			logger.FromCtx(ctx).Warn("failed to save address",
				zap.String("role", role),
				zap.Error(err),
			)
			continue
		}
		out["saved_"+role+"_id"] = sa.ID.String()
	}
	return out, nil
}

func (s *Session) encode(d wizard.Draft) (wizard.Record, error) {
	fields := d.Steps[StepDetails]
	rec := PendingShipment{
		From:   roles[RoleFrom].Read(fields),
		To:     roles[RoleTo].Read(fields),
		Parcel: parcelFrom(fields),
		Status: "pending",
	}
	if r, ok := s.currentBatch().Find(d.Value(StepRate, "rate_id")); ok {
		rec.Rate = &r
	}
	return rec, nil
}

func (s *Session) checkout(d wizard.Draft) (payment.CheckoutRequest, error) {
	rateID := d.Value(StepRate, "rate_id")
	r, ok := s.currentBatch().Find(rateID)
	if !ok {
		return payment.CheckoutRequest{}, shipping.ErrRateNotInBatch
	}

	return payment.CheckoutRequest{
		Type:          payment.TypeShippingLabel,
		CustomerEmail: d.Owner,
		Items: []payment.LineItem{{
			Name:        fmt.Sprintf("%s %s shipping label", r.Carrier, r.Service),
			Description: fmt.Sprintf("%s to %s", d.Value(StepDetails, "from_zip"), d.Value(StepDetails, "to_zip")),
			Amount:      r.Amount,
			Quantity:    1,
		}},
		Metadata: map[string]string{
			"rate_id": r.ID,
			"carrier": r.Carrier,
		},
	}, nil
}
