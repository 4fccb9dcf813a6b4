package shipment

import (
	"monarchmail-be/internal/wizard"
)

var addressFields = []string{"name", "street1", "city", "state", "zip"}

func prefixed(prefix string, names []string) []string {
	out := make([]string, len(names))
	for i, n := range names {
		out[i] = prefix + n
	}
	return out
}

func (s *Session) flow() wizard.Flow {
	required := append(prefixed("from_", addressFields), prefixed("to_", addressFields)...)

	return wizard.Flow{
		Name: FlowName,
		Steps: []wizard.Step{
			{
				Name: StepDetails,
				Validate: wizard.Rules(
					wizard.Required(StepDetails, required...),
					wizard.Positive(StepDetails, "weight", false),
					wizard.Positive(StepDetails, "length", true),
					wizard.Positive(StepDetails, "width", true),
					wizard.Positive(StepDetails, "height", true),
				),
				Addresses: []wizard.AddressField{roles[RoleFrom], roles[RoleTo]},
				Hook:      s.saveAddresses,
				Persist:   true,
			},
			{
				Name: StepRate,
				Validate: wizard.Rules(
					wizard.Required(StepRate, "rate_id"),
					wizard.Check("rate_id", "Please select one of the rates shown.", func(snap wizard.Snapshot) bool {
						id := snap.Value(StepRate, "rate_id")
						if id == "" {
							return true
						}
						_, ok := s.currentBatch().Find(id)
						return ok
					}),
				),
			},
		},
		Encode:   s.encode,
		Checkout: s.checkout,
	}
}
