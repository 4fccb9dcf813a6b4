package shipping

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func days(n int) *int { return &n }

func rate(id, carrier, amount string, d *int, guaranteed bool) Rate {
	return Rate{ID: id, Carrier: carrier, Amount: decimal.RequireFromString(amount), EstimatedDays: d, Guaranteed: guaranteed}
}

func TestGroup(t *testing.T) {
	batch := &Batch{Rates: []Rate{
		rate("u1", "USPS", "9.50", days(3), false),
		rate("u2", "USPS", "7.25", nil, false),
		rate("u3", "USPS", "28.00", days(1), true),
		rate("p1", "UPS", "12.00", nil, false),
		rate("p2", "UPS", "15.00", nil, false),
		rate("f1", "FedEx", "31.00", days(1), true),
		rate("f2", "FedEx", "11.00", days(4), false),
		rate("f3", "FedEx", "29.00", days(1), false),
	}}

	g := Group(batch)

	t.Run("BestValueOnePerCarrier", func(t *testing.T) {
		require.Len(t, g.BestValue, 3)
		assert.Equal(t, []string{"u2", "f2", "p1"}, ids(g.BestValue))
	})

	t.Run("FastestSkipsCarriersWithoutDays", func(t *testing.T) {
		require.Len(t, g.Fastest, 2)
		assert.Equal(t, []string{"u3", "f3"}, ids(g.Fastest))
	})

	t.Run("GuaranteedByPrice", func(t *testing.T) {
		assert.Equal(t, []string{"u3", "f1"}, ids(g.Guaranteed))
	})

	t.Run("Cheapest", func(t *testing.T) {
		require.NotNil(t, g.Cheapest)
		assert.Equal(t, "u2", g.Cheapest.ID)
	})

	t.Run("BatchUntouched", func(t *testing.T) {
		assert.Equal(t, "u1", batch.Rates[0].ID)
		assert.Len(t, g.All, 8)
	})

	t.Run("Empty", func(t *testing.T) {
		empty := Group(&Batch{})
		assert.Nil(t, empty.BestValue)
		assert.Nil(t, empty.Cheapest)
		assert.NotPanics(t, func() { Group(nil) })
	})
}

func TestBatch_Find(t *testing.T) {
	b := &Batch{Rates: []Rate{rate("a", "USPS", "1", nil, false)}}

	r, ok := b.Find("a")
	assert.True(t, ok)
	assert.Equal(t, "USPS", r.Carrier)

	_, ok = b.Find("zzz")
	assert.False(t, ok)

	var none *Batch
	_, ok = none.Find("a")
	assert.False(t, ok)
}

func ids(rates []Rate) []string {
	out := make([]string, len(rates))
	for i, r := range rates {
		out[i] = r.ID
	}
	return out
}
