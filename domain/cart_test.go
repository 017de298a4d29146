package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func testPricing() Pricing {
	return Pricing{
		FreeShippingThreshold: 5000, // 50.00
		FlatShippingFee:       500,  // 5.00
	}
}

func TestCartLine_Key(t *testing.T) {
	assert.Equal(t, "l-1", CartLine{LineID: "l-1", TempID: "tmp-1"}.Key())
	assert.Equal(t, "tmp-1", CartLine{TempID: "tmp-1"}.Key())
}

func TestCartLine_Persisted(t *testing.T) {
	assert.True(t, CartLine{LineID: "l-1"}.Persisted())
	assert.False(t, CartLine{TempID: "tmp-1"}.Persisted())
}

func TestCartLine_Subtotal(t *testing.T) {
	l := CartLine{Quantity: 3, UnitPrice: 1999}
	assert.Equal(t, int64(5997), l.Subtotal())
}

func TestComputeTotals_BelowThreshold(t *testing.T) {
	// addItem("p1", 2) at unit price 10.00 -> subtotal 20.00, below the
	// 50.00 threshold, so the flat fee applies.
	s := CartSnapshot{Lines: []CartLine{
		{LineID: "l-1", ProductID: "p1", Quantity: 2, UnitPrice: 1000},
	}}
	totals := s.ComputeTotals(testPricing())

	assert.Equal(t, int64(2000), totals.Subtotal)
	assert.Equal(t, int64(500), totals.Shipping)
	assert.Equal(t, int64(0), totals.Tax)
	assert.Equal(t, int64(2500), totals.Total)
}

func TestComputeTotals_AtThreshold_FreeShipping(t *testing.T) {
	s := CartSnapshot{Lines: []CartLine{
		{LineID: "l-1", ProductID: "p1", Quantity: 5, UnitPrice: 1000},
	}}
	totals := s.ComputeTotals(testPricing())

	assert.Equal(t, int64(5000), totals.Subtotal)
	assert.Equal(t, int64(0), totals.Shipping)
	assert.Equal(t, int64(5000), totals.Total)
}

func TestComputeTotals_WithTax(t *testing.T) {
	p := testPricing()
	p.TaxRateBps = 850 // 8.5%

	s := CartSnapshot{Lines: []CartLine{
		{LineID: "l-1", Quantity: 2, UnitPrice: 1000},
	}}
	totals := s.ComputeTotals(p)

	assert.Equal(t, int64(2000), totals.Subtotal)
	assert.Equal(t, int64(170), totals.Tax)
	assert.Equal(t, int64(2000+500+170), totals.Total)
}

func TestComputeTotals_Invariant(t *testing.T) {
	p := testPricing()
	snapshots := []CartSnapshot{
		{Lines: []CartLine{{Quantity: 1, UnitPrice: 1}}},
		{Lines: []CartLine{{Quantity: 2, UnitPrice: 2499}, {Quantity: 1, UnitPrice: 99}}},
		{Lines: []CartLine{{Quantity: 10, UnitPrice: 10_000}}},
	}

	for _, s := range snapshots {
		totals := s.ComputeTotals(p)

		var want int64
		for _, l := range s.Lines {
			want += int64(l.Quantity) * l.UnitPrice
		}
		assert.Equal(t, want, totals.Subtotal)
		assert.Equal(t, want+totals.Shipping+totals.Tax, totals.Total)
		assert.Equal(t, totals.Shipping == 0, totals.Subtotal >= p.FreeShippingThreshold)
	}
}

func TestFindLine(t *testing.T) {
	s := CartSnapshot{Lines: []CartLine{
		{LineID: "l-1"},
		{TempID: "tmp-2"},
	}}

	assert.Equal(t, 0, s.FindLine("l-1"))
	assert.Equal(t, 1, s.FindLine("tmp-2"))
	assert.Equal(t, -1, s.FindLine("l-9"))
}

func TestClone_IsDeep(t *testing.T) {
	s := CartSnapshot{
		Lines:   []CartLine{{LineID: "l-1", Quantity: 1}},
		Version: 3,
		Pending: map[string]PendingOp{"l-1": PendingUpdate},
	}

	cp := s.Clone()
	cp.Lines[0].Quantity = 99
	cp.Pending["l-1"] = PendingRemove

	assert.Equal(t, 1, s.Lines[0].Quantity)
	assert.Equal(t, PendingUpdate, s.Pending["l-1"])
	assert.Equal(t, 3, cp.Version)
}

func TestOrderStatus(t *testing.T) {
	for _, s := range ValidStatuses() {
		assert.True(t, IsValidStatus(s))
	}
	assert.False(t, IsValidStatus("delivered"))

	assert.True(t, IsTerminalStatus(OrderStatusShipped))
	assert.True(t, IsTerminalStatus(OrderStatusCancelled))
	assert.False(t, IsTerminalStatus(OrderStatusPending))
	assert.False(t, IsTerminalStatus(OrderStatusPaid))
}
