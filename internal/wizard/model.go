package wizard

import (
	"context"
	"strings"

	"monarchmail-be/internal/address"
	"monarchmail-be/internal/payment"

	"github.com/google/uuid"
)

type Status string

const (
	StatusDraft          Status = "draft"
	StatusPendingPayment Status = "pending_payment"
	StatusSubmitted      Status = "submitted"
)

// Draft is the aggregate handed to encoders, hooks and the record store.
// RecordID is uuid.Nil until the first successful save.
type Draft struct {
	RecordID uuid.UUID
	Owner    string
	Step     int
	Steps    map[StepName]Fields
	Status   Status
}

func (d Draft) Value(step StepName, field string) string {
	return d.Steps[step][field]
}

// Record is the typed payload a flow persists for its draft.
type Record interface {
	Kind() string
}

type Persister interface {
	Save(ctx context.Context, d Draft, rec Record) (uuid.UUID, error)
}

// AddressField locates one postal address among a step's fields. Prefix is
// prepended to every field name ("from_" gives "from_street1").
type AddressField struct {
	Role   string
	Prefix string
}

func (a AddressField) Read(f Fields) address.Address {
	p := a.Prefix
	name := f[p+"name"]
	if name == "" {
		name = strings.TrimSpace(f[p+"first_name"] + " " + f[p+"last_name"])
	}
	return address.Address{
		Name:    name,
		Company: f[p+"company"],
		Street1: f[p+"street1"],
		Street2: f[p+"street2"],
		City:    f[p+"city"],
		State:   f[p+"state"],
		Zip:     f[p+"zip"],
		Country: address.NormalizeCountry(f[p+"country"]),
		Phone:   f[p+"phone"],
		Email:   f[p+"email"],
	}
}

// Write returns only the normalised postal fields; names and contact details
// stay as the user typed them.
func (a AddressField) Write(addr address.Address) Fields {
	p := a.Prefix
	out := Fields{
		p + "street1": addr.Street1,
		p + "city":    addr.City,
		p + "state":   addr.State,
		p + "zip":     addr.Zip,
	}
	if addr.Street2 != "" {
		out[p+"street2"] = addr.Street2
	}
	if addr.Country != "" {
		out[p+"country"] = addr.Country
	}
	return out
}

// Hook runs after verification and before persistence. Returned fields are
// merged into the step even when the hook fails, so a retried transition can
// see what already ran.
type Hook func(ctx context.Context, d Draft) (Fields, error)

type Step struct {
	Name      StepName
	Validate  Validator
	Addresses []AddressField
	Hook      Hook
	// Persist marks the step whose exit first creates the record. Every
	// later transition updates it.
	Persist bool
}

type Flow struct {
	Name     string
	Steps    []Step
	Encode   func(Draft) (Record, error)
	Checkout func(Draft) (payment.CheckoutRequest, error)
	// BeforeCheckout is best-effort and cannot fail the submit.
	BeforeCheckout func(ctx context.Context, d Draft)
}

func (f Flow) names() []StepName {
	out := make([]StepName, len(f.Steps))
	for i, s := range f.Steps {
		out[i] = s.Name
	}
	return out
}

func (f Flow) persistFrom() int {
	for i, s := range f.Steps {
		if s.Persist {
			return i + 1
		}
	}
	return 0
}

type Deps struct {
	Verifier address.Verifier
	Store    Persister
	Gateway  payment.Gateway
}

type Choice string

const (
	ChoiceSuggested Choice = "suggested"
	ChoiceOriginal  Choice = "original"
)

// Correction is a paused address review. An entered address that failed
// verification (Valid false) can only be replaced by the suggestion.
type Correction struct {
	Role      string           `json:"role"`
	Entered   address.Address  `json:"entered"`
	Suggested *address.Address `json:"suggested,omitempty"`
	Messages  []string         `json:"messages,omitempty"`
	Valid     bool             `json:"valid"`
	Rejected  bool             `json:"rejected"`
}

type Outcome struct {
	Step       int         `json:"step"`
	Advanced   bool        `json:"advanced"`
	Correction *Correction `json:"correction,omitempty"`
}

type View struct {
	Snapshot
	Phase      Phase       `json:"phase"`
	RecordID   *uuid.UUID  `json:"record_id,omitempty"`
	Status     Status      `json:"status"`
	Correction *Correction `json:"correction,omitempty"`
}
