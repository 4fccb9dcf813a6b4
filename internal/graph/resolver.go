package graph

import (
	"context"
	"encoding/json"

	"monarchmail-be/internal/account"
	"monarchmail-be/internal/contact"
	"monarchmail-be/internal/logger"
	"monarchmail-be/internal/mailbox"
	"monarchmail-be/internal/shipment"
	"monarchmail-be/internal/shipping"
	"monarchmail-be/internal/utils"
	"monarchmail-be/internal/wizard"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Resolver serves the same services as the REST routes. Sessions started
// here can be continued over REST and the other way round.
type Resolver struct {
	Mailbox          *mailbox.Service
	MailboxSessions  *wizard.Registry[*mailbox.Session]
	Shipments        *shipment.Service
	ShipmentSessions *wizard.Registry[*shipment.Session]
	Estimator        *shipping.Estimator
	Account          account.Service
	Contact          contact.Service
}

type session interface {
	Set(step wizard.StepName, fields wizard.Fields) error
	Next(ctx context.Context) (wizard.Outcome, error)
	Resolve(ctx context.Context, choice wizard.Choice) (wizard.Outcome, error)
	Back() (int, error)
	Submit(ctx context.Context, nonce string) (string, error)
	Snapshot() wizard.View
}

type sessionView struct {
	ID string `json:"id"`
	wizard.View
	Products []mailbox.Product `json:"products,omitempty"`
	Totals   *mailbox.Totals   `json:"totals,omitempty"`
}

type transition struct {
	Outcome *wizard.Outcome `json:"outcome,omitempty"`
	Session sessionView     `json:"session"`
}

type checkout struct {
	CheckoutURL string `json:"checkout_url"`
}

// flowSession is a loaded session and how to render it.
type flowSession struct {
	session
	view func() sessionView
}

func mailboxView(id uuid.UUID, s *mailbox.Session) sessionView {
	products, totals := s.Quote()
	if products == nil {
		products = []mailbox.Product{}
	}
	return sessionView{ID: id.String(), View: s.Snapshot(), Products: products, Totals: &totals}
}

func shipmentView(id uuid.UUID, s *shipment.Session) sessionView {
	return sessionView{ID: id.String(), View: s.Snapshot()}
}

func owner(ctx context.Context) string {
	return utils.GetUserEmailFromContext(ctx)
}

func (r *Resolver) load(ctx context.Context, flow, rawID string) (*flowSession, error) {
	id, err := uuid.Parse(rawID)
	if err != nil {
		return nil, wizard.ErrSessionNotFound
	}

	switch flow {
	case flowMailbox:
		s, err := r.MailboxSessions.Get(id, owner(ctx))
		if err != nil {
			return nil, err
		}
		return &flowSession{session: s, view: func() sessionView { return mailboxView(id, s) }}, nil
	case flowShipment:
		s, err := r.ShipmentSessions.Get(id, owner(ctx))
		if err != nil {
			return nil, err
		}
		return &flowSession{session: s, view: func() sessionView { return shipmentView(id, s) }}, nil
	default:
		return nil, errBadInput
	}
}

func (r *Resolver) shipmentSession(ctx context.Context, rawID string) (uuid.UUID, *shipment.Session, error) {
	id, err := uuid.Parse(rawID)
	if err != nil {
		return uuid.Nil, nil, wizard.ErrSessionNotFound
	}
	s, err := r.ShipmentSessions.Get(id, owner(ctx))
	return id, s, err
}

func (r *Resolver) queries() map[string]fieldFunc {
	return map[string]fieldFunc{
		"mailbox": func(ctx context.Context, args map[string]any) (any, error) {
			fs, err := r.load(ctx, flowMailbox, str(args, "id"))
			if err != nil {
				return nil, err
			}
			return fs.view(), nil
		},
		"shipment": func(ctx context.Context, args map[string]any) (any, error) {
			fs, err := r.load(ctx, flowShipment, str(args, "id"))
			if err != nil {
				return nil, err
			}
			return fs.view(), nil
		},
		"accountSummary": func(ctx context.Context, _ map[string]any) (any, error) {
			return r.Account.Summary(ctx, owner(ctx))
		},
		"estimateRates": func(ctx context.Context, args map[string]any) (any, error) {
			var req shipping.EstimateRequest
			if err := decodeInput(args["input"], &req); err != nil {
				return nil, err
			}
			return r.Estimator.Estimate(ctx, req)
		},
	}
}

func (r *Resolver) mutations() map[string]fieldFunc {
	return map[string]fieldFunc{
		"startMailbox":    r.startMailbox,
		"startShipment":   r.startShipment,
		"setStep":         r.setStep,
		"next":            r.next,
		"back":            r.back,
		"resolveAddress":  r.resolveAddress,
		"submit":          r.submit,
		"quoteShipment":   r.quoteShipment,
		"useSavedAddress": r.useSavedAddress,
		"submitContact":   r.submitContact,
	}
}

func (r *Resolver) startMailbox(ctx context.Context, _ map[string]any) (any, error) {
	s := r.Mailbox.NewSession(owner(ctx), utils.GetUserNameFromContext(ctx))
	id := r.MailboxSessions.Add(owner(ctx), s)
	logger.FromCtx(ctx).Info("mailbox session started", zap.String("session_id", id.String()))
	return mailboxView(id, s), nil
}

func (r *Resolver) startShipment(ctx context.Context, _ map[string]any) (any, error) {
	s := r.Shipments.NewSession(owner(ctx))
	id := r.ShipmentSessions.Add(owner(ctx), s)
	logger.FromCtx(ctx).Info("shipment session started", zap.String("session_id", id.String()))
	return shipmentView(id, s), nil
}

func (r *Resolver) setStep(ctx context.Context, args map[string]any) (any, error) {
	fs, err := r.load(ctx, flowOf(args), str(args, "id"))
	if err != nil {
		return nil, err
	}

	var fields wizard.Fields
	if err := decodeMap(args["fields"], &fields); err != nil {
		return nil, err
	}
	if err := fs.Set(wizard.StepName(str(args, "step")), fields); err != nil {
		return nil, err
	}
	return fs.view(), nil
}

func (r *Resolver) next(ctx context.Context, args map[string]any) (any, error) {
	fs, err := r.load(ctx, flowOf(args), str(args, "id"))
	if err != nil {
		return nil, err
	}
	out, err := fs.Next(ctx)
	if err != nil {
		return nil, err
	}
	return transition{Outcome: &out, Session: fs.view()}, nil
}

func (r *Resolver) back(ctx context.Context, args map[string]any) (any, error) {
	fs, err := r.load(ctx, flowOf(args), str(args, "id"))
	if err != nil {
		return nil, err
	}
	if _, err := fs.Back(); err != nil {
		return nil, err
	}
	return transition{Session: fs.view()}, nil
}

func (r *Resolver) resolveAddress(ctx context.Context, args map[string]any) (any, error) {
	fs, err := r.load(ctx, flowOf(args), str(args, "id"))
	if err != nil {
		return nil, err
	}

	choice, ok := choices[str(args, "choice")]
	if !ok {
		return nil, errBadInput
	}
	out, err := fs.Resolve(ctx, choice)
	if err != nil {
		return nil, err
	}
	return transition{Outcome: &out, Session: fs.view()}, nil
}

func (r *Resolver) submit(ctx context.Context, args map[string]any) (any, error) {
	fs, err := r.load(ctx, flowOf(args), str(args, "id"))
	if err != nil {
		return nil, err
	}
	url, err := fs.Submit(ctx, str(args, "nonce"))
	if err != nil {
		return nil, err
	}
	return checkout{CheckoutURL: url}, nil
}

func (r *Resolver) quoteShipment(ctx context.Context, args map[string]any) (any, error) {
	_, s, err := r.shipmentSession(ctx, str(args, "id"))
	if err != nil {
		return nil, err
	}
	return s.Quote(ctx)
}

func (r *Resolver) useSavedAddress(ctx context.Context, args map[string]any) (any, error) {
	id, s, err := r.shipmentSession(ctx, str(args, "id"))
	if err != nil {
		return nil, err
	}
	addressID, err := uuid.Parse(str(args, "addressId"))
	if err != nil {
		return nil, errBadInput
	}
	if err := s.UseSavedAddress(ctx, str(args, "role"), addressID); err != nil {
		return nil, err
	}
	return shipmentView(id, s), nil
}

func (r *Resolver) submitContact(ctx context.Context, args map[string]any) (any, error) {
	var in contact.Inquiry
	if err := decodeInput(args["input"], &in); err != nil {
		return nil, err
	}
	return r.Contact.Submit(ctx, in)
}

const (
	flowMailbox  = "MAILBOX"
	flowShipment = "SHIPMENT"
)

var choices = map[string]wizard.Choice{
	"SUGGESTED": wizard.ChoiceSuggested,
	"ORIGINAL":  wizard.ChoiceOriginal,
}

func flowOf(args map[string]any) string { return str(args, "flow") }

func str(args map[string]any, key string) string {
	s, _ := args[key].(string)
	return s
}

// decodeInput fills v from an input object, renaming its camelCase keys to
// the snake_case JSON tags of the domain types.
func decodeInput(in any, v any) error {
	m, ok := in.(map[string]any)
	if !ok {
		return errBadInput
	}
	renamed := make(map[string]any, len(m))
	for k, val := range m {
		renamed[snake(k)] = val
	}
	return decodeMap(renamed, v)
}

func decodeMap(in any, v any) error {
	raw, err := json.Marshal(in)
	if err != nil {
		return errBadInput
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return errBadInput
	}
	return nil
}
