package engine

import "github.com/UrielMangisto/ShoppingWebsite-sub000/domain"

// EventKind discriminates subscription events.
type EventKind string

const (
	// EventSnapshot signals that the cart snapshot changed, either
	// optimistically at submission or confirmed at settlement.
	EventSnapshot EventKind = "snapshot"

	// EventMutationFailed signals that a mutation was rejected or failed in
	// transit and the optimistic change was rolled back. The event still
	// carries the (post-rollback) snapshot.
	EventMutationFailed EventKind = "mutation_failed"
)

// MutationFailure describes a failed mutation, carrying the attempted input
// so nothing is silently lost.
type MutationFailure struct {
	Op        domain.PendingOp
	LineKey   string
	ProductID string
	Quantity  int
	Reason    string
	Err       error
}

// Event is delivered to subscribers on every snapshot change and every
// mutation failure. Seq increases monotonically in state-change order so
// subscribers can discard anything older than what they already applied.
type Event struct {
	Seq      uint64
	Kind     EventKind
	Snapshot domain.CartSnapshot
	Failure  *MutationFailure
}

// Subscriber receives engine events. Callbacks run on the engine's dispatch
// goroutine, in order; they must not block for long.
type Subscriber func(Event)
