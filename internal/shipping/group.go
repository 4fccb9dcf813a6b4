package shipping

import (
	"sort"
)

// Grouped is a batch arranged the way the rate picker shows it.
type Grouped struct {
	BestValue  []Rate `json:"best_value"`
	Fastest    []Rate `json:"fastest"`
	Guaranteed []Rate `json:"guaranteed"`
	Cheapest   *Rate  `json:"cheapest,omitempty"`
	All        []Rate `json:"all"`
}

// Group never reorders or mutates the batch itself.
//
// BestValue holds exactly one quote per carrier, the cheapest. Fastest holds
// the quote with the fewest estimated days per carrier, skipping carriers
// that report no estimate at all.
func Group(b *Batch) Grouped {
	var g Grouped
	if b == nil || len(b.Rates) == 0 {
		return g
	}
	g.All = append([]Rate(nil), b.Rates...)

	cheapest := map[string]int{}
	fastest := map[string]int{}
	var order []string

	for i, r := range b.Rates {
		key := r.carrierKey()
		if j, ok := cheapest[key]; !ok {
			cheapest[key] = i
			order = append(order, key)
		} else if r.Amount.LessThan(b.Rates[j].Amount) {
			cheapest[key] = i
		}

		if r.EstimatedDays != nil {
			if j, ok := fastest[key]; !ok || faster(r, b.Rates[j]) {
				fastest[key] = i
			}
		}

		if r.Guaranteed {
			g.Guaranteed = append(g.Guaranteed, r)
		}
		if g.Cheapest == nil || r.Amount.LessThan(g.Cheapest.Amount) {
			c := r
			g.Cheapest = &c
		}
	}

	for _, key := range order {
		g.BestValue = append(g.BestValue, b.Rates[cheapest[key]])
		if i, ok := fastest[key]; ok {
			g.Fastest = append(g.Fastest, b.Rates[i])
		}
	}

	sort.SliceStable(g.BestValue, func(i, j int) bool {
		return g.BestValue[i].Amount.LessThan(g.BestValue[j].Amount)
	})
	sort.SliceStable(g.Fastest, func(i, j int) bool {
		return faster(g.Fastest[i], g.Fastest[j])
	})
	sort.SliceStable(g.Guaranteed, func(i, j int) bool {
		return g.Guaranteed[i].Amount.LessThan(g.Guaranteed[j].Amount)
	})
	return g
}

// faster ranks by estimated days, then price. Both must carry an estimate.
func faster(a, b Rate) bool {
	if *a.EstimatedDays != *b.EstimatedDays {
		return *a.EstimatedDays < *b.EstimatedDays
	}
	return a.Amount.LessThan(b.Amount)
}
