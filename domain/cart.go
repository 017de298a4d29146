package domain

// PendingOp names the kind of mutation awaiting server acknowledgment.
type PendingOp string

const (
	PendingAdd    PendingOp = "add"
	PendingUpdate PendingOp = "update"
	PendingRemove PendingOp = "remove"
	PendingClear  PendingOp = "clear"
)

// PendingCartKey marks a cart-wide pending operation (clear) in the pending
// set, as opposed to a per-line one.
const PendingCartKey = "*"

// CartLine is a single line in the cart. UnitPrice is a server-authoritative
// snapshot in cents of the product price at the time the line was created;
// the client never recomputes it.
type CartLine struct {
	// LineID is assigned by the server when the line is created. It is empty
	// for an optimistic line whose create has not settled yet.
	LineID string `json:"line_id,omitempty"`

	// TempID is a client-generated id identifying an optimistic line until
	// the server assigns a LineID.
	TempID string `json:"temp_id,omitempty"`

	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
	UnitPrice int64  `json:"unit_price"`
}

// Key returns the identifier the engine indexes this line by: the server
// LineID once assigned, the client TempID before that.
func (l CartLine) Key() string {
	if l.LineID != "" {
		return l.LineID
	}
	return l.TempID
}

// Persisted reports whether the line has been acknowledged by the server.
func (l CartLine) Persisted() bool {
	return l.LineID != ""
}

// Subtotal returns quantity * unit price in cents.
func (l CartLine) Subtotal() int64 {
	return int64(l.Quantity) * l.UnitPrice
}

// Pricing holds the externally supplied pricing rules applied to the cart.
// All amounts are cents; the tax rate is in basis points of the subtotal.
type Pricing struct {
	FreeShippingThreshold int64
	FlatShippingFee       int64
	TaxRateBps            int64
}

// Totals are the derived cart amounts in cents, recomputed on every snapshot
// change rather than cached across mutations.
type Totals struct {
	Subtotal int64 `json:"subtotal"`
	Shipping int64 `json:"shipping"`
	Tax      int64 `json:"tax"`
	Total    int64 `json:"total"`
}

// CartSnapshot is the engine's view of the cart. Lines are kept in insertion
// order as reported by the server; Pending maps line keys (or PendingCartKey)
// to the mutation kind awaiting acknowledgment.
type CartSnapshot struct {
	Lines   []CartLine           `json:"lines"`
	Version int                  `json:"version"`
	Pending map[string]PendingOp `json:"pending,omitempty"`
	Totals  Totals               `json:"totals"`
}

// HasPending reports whether any operation is awaiting server acknowledgment.
func (s *CartSnapshot) HasPending() bool {
	return len(s.Pending) > 0
}

// IsEmpty reports whether the cart has no lines.
func (s *CartSnapshot) IsEmpty() bool {
	return len(s.Lines) == 0
}

// FindLine returns the index of the line whose key (line id or temp id)
// matches, or -1 if not present.
func (s *CartSnapshot) FindLine(key string) int {
	for i := range s.Lines {
		if s.Lines[i].Key() == key {
			return i
		}
	}
	return -1
}

// ComputeTotals derives the cart totals under the given pricing rules:
// shipping is zero exactly when the subtotal meets the free-shipping
// threshold, and tax is a flat rate applied to the subtotal.
func (s *CartSnapshot) ComputeTotals(p Pricing) Totals {
	var subtotal int64
	for _, l := range s.Lines {
		subtotal += l.Subtotal()
	}

	var shipping int64
	if subtotal < p.FreeShippingThreshold {
		shipping = p.FlatShippingFee
	}

	tax := subtotal * p.TaxRateBps / 10_000

	return Totals{
		Subtotal: subtotal,
		Shipping: shipping,
		Tax:      tax,
		Total:    subtotal + shipping + tax,
	}
}

// Clone returns a deep copy so subscribers can never mutate engine state.
func (s *CartSnapshot) Clone() CartSnapshot {
	cp := CartSnapshot{
		Version: s.Version,
		Totals:  s.Totals,
	}
	cp.Lines = make([]CartLine, len(s.Lines))
	copy(cp.Lines, s.Lines)
	if len(s.Pending) > 0 {
		cp.Pending = make(map[string]PendingOp, len(s.Pending))
		for k, v := range s.Pending {
			cp.Pending[k] = v
		}
	}
	return cp
}
