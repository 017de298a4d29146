// Package engine keeps a local cart snapshot synchronized with a remote
// cart store. Mutations apply to the snapshot immediately and are confirmed
// or rolled back when the server settles them. Rapid quantity changes on the
// same line are coalesced: at most one request per line is in flight, and
// only the newest requested value is ever sent.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"

	"github.com/UrielMangisto/ShoppingWebsite-sub000/domain"
	apperrors "github.com/UrielMangisto/ShoppingWebsite-sub000/pkg/errors"
	"github.com/UrielMangisto/ShoppingWebsite-sub000/pkg/tracing"
	"github.com/UrielMangisto/ShoppingWebsite-sub000/pkg/validator"
	"github.com/UrielMangisto/ShoppingWebsite-sub000/remote"
)

// updateSlot holds the newest requested quantity for a line while a request
// is in flight. A burst of updates overwrites target; the settle loop keeps
// sending until the server's answer matches the slot.
type updateSlot struct {
	target    int
	confirmed int
}

// Config carries the engine's dependencies.
type Config struct {
	Store   remote.Store
	Pricing domain.Pricing
	Logger  *slog.Logger
}

// Engine is the cart synchronization engine. All exported methods are safe
// for concurrent use.
type Engine struct {
	store   remote.Store
	pricing domain.Pricing
	logger  *slog.Logger
	tracer  trace.Tracer

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu   sync.Mutex
	cond *sync.Cond

	lines []domain.CartLine
	// ord records the order in which each line key joined the cart. Entries
	// outlive an optimistic removal so a rollback re-inserts at the right
	// spot even when several removals are in flight.
	ord        map[string]int
	ordSeq     int
	version    int
	pending    map[string]domain.PendingOp
	updates    map[string]*updateSlot
	subs       map[uint64]Subscriber
	nextSubID  uint64
	seq        uint64
	outbox     []Event
	waiters    []chan struct{}
	inCheckout bool
	closed     bool

	dispatchDone chan struct{}
}

// New builds an engine and starts its event dispatcher. The caller owns the
// returned engine and must Close it.
func New(cfg Config) (*Engine, error) {
	if cfg.Store == nil {
		return nil, apperrors.InvalidInput("engine: store is required")
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	ctx, cancel := context.WithCancel(context.Background())
	e := &Engine{
		store:        cfg.Store,
		pricing:      cfg.Pricing,
		logger:       cfg.Logger.With(slog.String("component", "engine")),
		tracer:       tracing.Tracer("cartsync/engine"),
		ctx:          ctx,
		cancel:       cancel,
		ord:          make(map[string]int),
		pending:      make(map[string]domain.PendingOp),
		updates:      make(map[string]*updateSlot),
		subs:         make(map[uint64]Subscriber),
		dispatchDone: make(chan struct{}),
	}
	e.cond = sync.NewCond(&e.mu)

	go e.dispatch()
	return e, nil
}

// Close cancels in-flight requests, waits for every pending mutation to
// settle (all will settle, most with a cancellation error), and stops the
// event dispatcher. The engine rejects all calls afterwards.
func (e *Engine) Close() error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil
	}
	e.closed = true
	e.mu.Unlock()

	e.cancel()
	e.wg.Wait()

	e.mu.Lock()
	e.cond.Broadcast()
	e.mu.Unlock()
	<-e.dispatchDone
	return nil
}

// Subscribe registers fn for snapshot and failure events. The returned
// function removes the subscription.
func (e *Engine) Subscribe(fn Subscriber) func() {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.nextSubID++
	id := e.nextSubID
	e.subs[id] = fn

	return func() {
		e.mu.Lock()
		defer e.mu.Unlock()
		delete(e.subs, id)
	}
}

// Snapshot returns a deep copy of the current cart state with derived
// totals. Callers may retain and mutate it freely.
func (e *Engine) Snapshot() domain.CartSnapshot {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.snapshotLocked()
}

// PendingCount reports how many mutations are awaiting settlement.
func (e *Engine) PendingCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.pending)
}

// Load fetches the server's cart and replaces the local snapshot with it.
// Pending mutations keep settling against the new snapshot; lines they
// referenced may no longer exist, in which case their acknowledgements are
// discarded as stale.
func (e *Engine) Load(ctx context.Context) error {
	ctx, span := e.tracer.Start(ctx, "engine.Load")
	defer span.End()

	e.mu.Lock()
	if err := e.usableLocked(); err != nil {
		e.mu.Unlock()
		return err
	}
	e.mu.Unlock()

	cart, err := e.store.FetchCart(ctx)
	if err != nil {
		return apperrors.Wrap(err, "load cart")
	}

	e.mu.Lock()
	if len(e.pending) > 0 {
		e.logger.Warn("replacing snapshot with mutations still pending",
			slog.Int("pending", len(e.pending)))
	}
	e.lines = cart.Lines
	e.ord = make(map[string]int, len(e.lines))
	for i := range e.lines {
		e.assignOrdLocked(e.lines[i].Key())
	}
	e.version = cart.Version
	e.publishLocked(EventSnapshot, nil)
	e.mu.Unlock()
	return nil
}

// AddItemInput is the request to add a product to the cart. UnitPriceHint,
// when known, makes optimistic totals accurate before the server assigns
// the authoritative price.
type AddItemInput struct {
	ProductID     string `validate:"required"`
	Quantity      int    `validate:"gte=1"`
	UnitPriceHint int64  `validate:"gte=0"`
}

// AddItem optimistically appends a line with a temporary ID and submits the
// creation. On acknowledgement the temporary line is replaced in place by
// the server's line; on failure it is removed and a MutationFailed event is
// published.
func (e *Engine) AddItem(ctx context.Context, input AddItemInput) error {
	_, span := e.tracer.Start(ctx, "engine.AddItem")
	defer span.End()

	if err := validator.Validate(input); err != nil {
		return apperrors.InvalidInput(err.Error())
	}

	e.mu.Lock()
	if err := e.usableLocked(); err != nil {
		e.mu.Unlock()
		return err
	}

	tempID := uuid.New().String()
	e.lines = append(e.lines, domain.CartLine{
		TempID:    tempID,
		ProductID: input.ProductID,
		Quantity:  input.Quantity,
		UnitPrice: input.UnitPriceHint,
	})
	e.assignOrdLocked(tempID)
	e.setPendingLocked(tempID, domain.PendingAdd)
	e.publishLocked(EventSnapshot, nil)
	e.wg.Add(1)
	e.mu.Unlock()

	go e.settleAdd(tempID, input)
	return nil
}

func (e *Engine) settleAdd(tempID string, input AddItemInput) {
	defer e.wg.Done()

	line, err := e.store.CreateLine(e.ctx, input.ProductID, input.Quantity)

	e.mu.Lock()
	defer e.mu.Unlock()
	defer e.settledLocked()

	idx := e.findLineLocked(tempID)
	e.clearPendingLocked(tempID)

	if err != nil {
		if idx >= 0 {
			e.lines = append(e.lines[:idx], e.lines[idx+1:]...)
		}
		delete(e.ord, tempID)
		mutationsTotal.WithLabelValues(string(domain.PendingAdd), resultRolledBack).Inc()
		e.logger.Warn("add item rejected",
			slog.String("product_id", input.ProductID),
			slog.String("error", err.Error()))
		e.publishLocked(EventMutationFailed, &MutationFailure{
			Op:        domain.PendingAdd,
			LineKey:   tempID,
			ProductID: input.ProductID,
			Quantity:  input.Quantity,
			Reason:    failureReason(err),
			Err:       err,
		})
		return
	}

	if idx < 0 {
		// The temporary line is gone, usually because Load replaced the
		// snapshot while the creation was in flight. Nothing to apply.
		staleResponsesTotal.Inc()
		e.logger.Info("discarding stale add acknowledgement",
			slog.String("temp_id", tempID))
		delete(e.ord, tempID)
		e.publishLocked(EventSnapshot, nil)
		return
	}

	// The line's key changes from the temporary ID to the server's; its
	// ordinal carries over.
	e.lines[idx] = line
	e.ord[line.Key()] = e.ord[tempID]
	delete(e.ord, tempID)
	e.version++
	mutationsTotal.WithLabelValues(string(domain.PendingAdd), resultConfirmed).Inc()
	e.publishLocked(EventSnapshot, nil)
}

// SetQuantity changes a persisted line's quantity. The snapshot updates
// immediately. If a quantity update for the line is already in flight, the
// new value replaces the pending one instead of queuing a second request.
func (e *Engine) SetQuantity(ctx context.Context, lineID string, quantity int) error {
	_, span := e.tracer.Start(ctx, "engine.SetQuantity")
	defer span.End()

	if quantity < 1 {
		return apperrors.InvalidInput("quantity must be at least 1")
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.usableLocked(); err != nil {
		return err
	}

	idx := e.findLineLocked(lineID)
	if idx < 0 {
		return apperrors.NotFound("cart line", lineID)
	}
	if !e.lines[idx].Persisted() {
		return apperrors.Conflict("line is still being created")
	}

	if slot, ok := e.updates[lineID]; ok {
		slot.target = quantity
		e.lines[idx].Quantity = quantity
		coalescedIntentsTotal.Inc()
		e.publishLocked(EventSnapshot, nil)
		return nil
	}
	if op, ok := e.pending[lineID]; ok {
		return apperrors.Conflict(fmt.Sprintf("line has a pending %s", op))
	}

	e.updates[lineID] = &updateSlot{
		target:    quantity,
		confirmed: e.lines[idx].Quantity,
	}
	e.lines[idx].Quantity = quantity
	e.setPendingLocked(lineID, domain.PendingUpdate)
	e.publishLocked(EventSnapshot, nil)

	e.wg.Add(1)
	go e.settleUpdate(lineID)
	return nil
}

// settleUpdate drains a line's update slot. Each pass sends the slot's
// current target; a response whose sent value no longer matches the target
// is stale and discarded, and the loop sends again with the newest value.
func (e *Engine) settleUpdate(lineID string) {
	defer e.wg.Done()

	for {
		e.mu.Lock()
		slot, ok := e.updates[lineID]
		if !ok {
			e.mu.Unlock()
			return
		}
		sent := slot.target
		e.mu.Unlock()

		line, err := e.store.UpdateLine(e.ctx, lineID, sent)

		e.mu.Lock()
		if slot.target != sent {
			staleResponsesTotal.Inc()
			e.logger.Info("discarding stale quantity response",
				slog.String("line_id", lineID),
				slog.Int("sent", sent),
				slog.Int("target", slot.target))
			if err != nil {
				// The failure is surfaced, but the newer intent owns the
				// line now, so no rollback happens here.
				e.publishLocked(EventMutationFailed, &MutationFailure{
					Op:       domain.PendingUpdate,
					LineKey:  lineID,
					Quantity: sent,
					Reason:   failureReason(err),
					Err:      err,
				})
			} else {
				// The server applied sent before the newer intent went out,
				// so it is the quantity a later rollback must land on.
				slot.confirmed = line.Quantity
			}
			e.mu.Unlock()
			continue
		}

		idx := e.findLineLocked(lineID)
		delete(e.updates, lineID)
		e.clearPendingLocked(lineID)

		if err != nil {
			if idx >= 0 {
				e.lines[idx].Quantity = slot.confirmed
			}
			mutationsTotal.WithLabelValues(string(domain.PendingUpdate), resultRolledBack).Inc()
			e.logger.Warn("quantity update rejected",
				slog.String("line_id", lineID),
				slog.Int("quantity", sent),
				slog.String("error", err.Error()))
			e.publishLocked(EventMutationFailed, &MutationFailure{
				Op:       domain.PendingUpdate,
				LineKey:  lineID,
				Quantity: sent,
				Reason:   failureReason(err),
				Err:      err,
			})
			e.settledLocked()
			e.mu.Unlock()
			return
		}

		if idx < 0 {
			staleResponsesTotal.Inc()
			e.logger.Info("discarding update acknowledgement for vanished line",
				slog.String("line_id", lineID))
		} else {
			e.lines[idx].Quantity = line.Quantity
			e.lines[idx].UnitPrice = line.UnitPrice
			e.version++
			mutationsTotal.WithLabelValues(string(domain.PendingUpdate), resultConfirmed).Inc()
		}
		e.publishLocked(EventSnapshot, nil)
		e.settledLocked()
		e.mu.Unlock()
		return
	}
}

// RemoveItem optimistically removes a persisted line and submits the
// deletion. On failure the line is re-inserted at its former position.
func (e *Engine) RemoveItem(ctx context.Context, lineID string) error {
	_, span := e.tracer.Start(ctx, "engine.RemoveItem")
	defer span.End()

	e.mu.Lock()
	if err := e.usableLocked(); err != nil {
		e.mu.Unlock()
		return err
	}

	idx := e.findLineLocked(lineID)
	if idx < 0 {
		e.mu.Unlock()
		return apperrors.NotFound("cart line", lineID)
	}
	if !e.lines[idx].Persisted() {
		e.mu.Unlock()
		return apperrors.Conflict("line is still being created")
	}
	if op, ok := e.pending[lineID]; ok {
		e.mu.Unlock()
		return apperrors.Conflict(fmt.Sprintf("line has a pending %s", op))
	}

	removed := e.lines[idx]
	e.lines = append(e.lines[:idx], e.lines[idx+1:]...)
	e.setPendingLocked(lineID, domain.PendingRemove)
	e.publishLocked(EventSnapshot, nil)
	e.wg.Add(1)
	e.mu.Unlock()

	go e.settleRemove(removed)
	return nil
}

func (e *Engine) settleRemove(removed domain.CartLine) {
	defer e.wg.Done()

	err := e.store.DeleteLine(e.ctx, removed.LineID)

	e.mu.Lock()
	defer e.mu.Unlock()
	defer e.settledLocked()

	e.clearPendingLocked(removed.LineID)

	// The server not knowing the line means it is already gone; that is the
	// outcome the caller asked for.
	if err != nil && !errors.Is(err, apperrors.ErrNotFound) {
		pos := e.restorePosLocked(removed.Key())
		e.lines = append(e.lines[:pos], append([]domain.CartLine{removed}, e.lines[pos:]...)...)
		mutationsTotal.WithLabelValues(string(domain.PendingRemove), resultRolledBack).Inc()
		e.logger.Warn("remove rejected",
			slog.String("line_id", removed.LineID),
			slog.String("error", err.Error()))
		e.publishLocked(EventMutationFailed, &MutationFailure{
			Op:        domain.PendingRemove,
			LineKey:   removed.LineID,
			ProductID: removed.ProductID,
			Quantity:  removed.Quantity,
			Reason:    failureReason(err),
			Err:       err,
		})
		return
	}

	delete(e.ord, removed.Key())
	e.version++
	mutationsTotal.WithLabelValues(string(domain.PendingRemove), resultConfirmed).Inc()
	e.publishLocked(EventSnapshot, nil)
}

// restorePosLocked returns the slot where a rolled-back removal re-enters
// the cart: before the first line that joined the cart after it. Ordinals
// are not erased until a removal is confirmed, so concurrent failed removals
// restore in the original order no matter which settles first.
func (e *Engine) restorePosLocked(key string) int {
	ro := e.ord[key]
	for i := range e.lines {
		if e.ord[e.lines[i].Key()] > ro {
			return i
		}
	}
	return len(e.lines)
}

// Clear empties the cart. It requires a settled cart so there is a single
// well-defined state to restore if the server refuses.
func (e *Engine) Clear(ctx context.Context) error {
	_, span := e.tracer.Start(ctx, "engine.Clear")
	defer span.End()

	e.mu.Lock()
	if err := e.usableLocked(); err != nil {
		e.mu.Unlock()
		return err
	}
	if len(e.pending) > 0 {
		n := len(e.pending)
		e.mu.Unlock()
		return apperrors.CartNotSettled(n)
	}
	if len(e.lines) == 0 {
		e.mu.Unlock()
		return nil
	}

	prev := make([]domain.CartLine, len(e.lines))
	copy(prev, e.lines)
	e.lines = nil
	e.setPendingLocked(domain.PendingCartKey, domain.PendingClear)
	e.publishLocked(EventSnapshot, nil)
	e.wg.Add(1)
	e.mu.Unlock()

	go e.settleClear(prev)
	return nil
}

func (e *Engine) settleClear(prev []domain.CartLine) {
	defer e.wg.Done()

	err := e.store.ClearCart(e.ctx)

	e.mu.Lock()
	defer e.mu.Unlock()
	defer e.settledLocked()

	e.clearPendingLocked(domain.PendingCartKey)

	if err != nil {
		e.lines = prev
		mutationsTotal.WithLabelValues(string(domain.PendingClear), resultRolledBack).Inc()
		e.logger.Warn("clear rejected", slog.String("error", err.Error()))
		e.publishLocked(EventMutationFailed, &MutationFailure{
			Op:      domain.PendingClear,
			LineKey: domain.PendingCartKey,
			Reason:  failureReason(err),
			Err:     err,
		})
		return
	}

	e.ord = make(map[string]int)
	e.version++
	mutationsTotal.WithLabelValues(string(domain.PendingClear), resultConfirmed).Inc()
	e.publishLocked(EventSnapshot, nil)
}

// Quiesce blocks until no mutations are pending or ctx is done.
func (e *Engine) Quiesce(ctx context.Context) error {
	e.mu.Lock()
	if len(e.pending) == 0 {
		e.mu.Unlock()
		return nil
	}
	ch := make(chan struct{})
	e.waiters = append(e.waiters, ch)
	e.mu.Unlock()

	select {
	case <-ch:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// BeginCheckout freezes the cart for an order commit. It fails unless the
// cart is settled and non-empty. While a checkout is in progress every
// mutation is rejected, so the returned snapshot stays exact.
func (e *Engine) BeginCheckout() (domain.CartSnapshot, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return domain.CartSnapshot{}, apperrors.Internal(fmt.Errorf("engine is closed"))
	}
	if e.inCheckout {
		return domain.CartSnapshot{}, apperrors.Conflict("checkout already in progress")
	}
	if len(e.pending) > 0 {
		return domain.CartSnapshot{}, apperrors.CartNotSettled(len(e.pending))
	}
	if len(e.lines) == 0 {
		return domain.CartSnapshot{}, apperrors.InvalidInput("cart is empty")
	}

	e.inCheckout = true
	return e.snapshotLocked(), nil
}

// EndCheckout releases the checkout freeze. When committed is true the local
// cart is cleared, mirroring the server consuming it into the order.
func (e *Engine) EndCheckout(committed bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.inCheckout {
		return
	}
	e.inCheckout = false
	if committed {
		e.lines = nil
		e.ord = make(map[string]int)
		e.version++
		e.publishLocked(EventSnapshot, nil)
	}
}

func (e *Engine) usableLocked() error {
	if e.closed {
		return apperrors.Internal(fmt.Errorf("engine is closed"))
	}
	if e.inCheckout {
		return apperrors.Conflict("checkout in progress")
	}
	return nil
}

func (e *Engine) assignOrdLocked(key string) {
	e.ord[key] = e.ordSeq
	e.ordSeq++
}

func (e *Engine) findLineLocked(key string) int {
	for i := range e.lines {
		if e.lines[i].Key() == key {
			return i
		}
	}
	return -1
}

func (e *Engine) setPendingLocked(key string, op domain.PendingOp) {
	e.pending[key] = op
	pendingOps.Set(float64(len(e.pending)))
}

func (e *Engine) clearPendingLocked(key string) {
	delete(e.pending, key)
	pendingOps.Set(float64(len(e.pending)))
}

func (e *Engine) settledLocked() {
	if len(e.pending) != 0 {
		return
	}
	for _, ch := range e.waiters {
		close(ch)
	}
	e.waiters = nil
}

func (e *Engine) snapshotLocked() domain.CartSnapshot {
	snap := domain.CartSnapshot{
		Lines:   make([]domain.CartLine, len(e.lines)),
		Version: e.version,
		Pending: make(map[string]domain.PendingOp, len(e.pending)),
	}
	copy(snap.Lines, e.lines)
	for k, v := range e.pending {
		snap.Pending[k] = v
	}
	snap.Totals = snap.ComputeTotals(e.pricing)
	return snap
}

// publishLocked appends an event to the outbox in state-change order and
// wakes the dispatcher. Must be called with e.mu held.
func (e *Engine) publishLocked(kind EventKind, failure *MutationFailure) {
	e.seq++
	e.outbox = append(e.outbox, Event{
		Seq:      e.seq,
		Kind:     kind,
		Snapshot: e.snapshotLocked(),
		Failure:  failure,
	})
	e.cond.Signal()
}

// dispatch delivers outbox events to subscribers one at a time, preserving
// the order in which state changes happened.
func (e *Engine) dispatch() {
	defer close(e.dispatchDone)

	for {
		e.mu.Lock()
		for len(e.outbox) == 0 && !e.closed {
			e.cond.Wait()
		}
		if len(e.outbox) == 0 && e.closed {
			e.mu.Unlock()
			return
		}
		ev := e.outbox[0]
		e.outbox = e.outbox[1:]
		subs := make([]Subscriber, 0, len(e.subs))
		for _, fn := range e.subs {
			subs = append(subs, fn)
		}
		e.mu.Unlock()

		for _, fn := range subs {
			fn(ev)
		}
	}
}

func failureReason(err error) string {
	if reason, ok := apperrors.RejectionReason(err); ok {
		return reason
	}
	return err.Error()
}
