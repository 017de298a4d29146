// Package order commits settled carts into orders and tracks their lifecycle.
package order

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel/trace"

	"github.com/UrielMangisto/ShoppingWebsite-sub000/domain"
	apperrors "github.com/UrielMangisto/ShoppingWebsite-sub000/pkg/errors"
	"github.com/UrielMangisto/ShoppingWebsite-sub000/pkg/pagination"
	"github.com/UrielMangisto/ShoppingWebsite-sub000/pkg/tracing"
	"github.com/UrielMangisto/ShoppingWebsite-sub000/remote"
)

var commitsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "cartsync_order_commits_total",
		Help: "Order commit attempts by outcome",
	},
	[]string{"result"},
)

func init() {
	prometheus.MustRegister(commitsTotal)
}

// CartGate is the engine's checkout handshake. BeginCheckout freezes the
// cart and hands back the exact snapshot being committed; EndCheckout
// releases the freeze and, on a committed order, clears the local cart.
type CartGate interface {
	BeginCheckout() (domain.CartSnapshot, error)
	EndCheckout(committed bool)
}

// Tracker commits carts into orders and reads order state back from the
// store. Safe for concurrent use.
type Tracker struct {
	store  remote.Store
	gate   CartGate
	logger *slog.Logger
	tracer trace.Tracer

	mu        sync.Mutex
	committed map[string]domain.Order
}

// NewTracker builds a tracker over the given store and cart gate.
func NewTracker(store remote.Store, gate CartGate, logger *slog.Logger) (*Tracker, error) {
	if store == nil {
		return nil, apperrors.InvalidInput("tracker: store is required")
	}
	if gate == nil {
		return nil, apperrors.InvalidInput("tracker: cart gate is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Tracker{
		store:     store,
		gate:      gate,
		logger:    logger.With(slog.String("component", "order_tracker")),
		tracer:    tracing.Tracer("cartsync/order"),
		committed: make(map[string]domain.Order),
	}, nil
}

// Commit turns the current cart into an order, exactly once. The cart must
// be settled and non-empty; it stays frozen for the duration of the request
// so the committed order matches the snapshot the caller last saw. On any
// failure the cart is released unchanged and Commit can be retried.
func (t *Tracker) Commit(ctx context.Context) (domain.Order, error) {
	ctx, span := t.tracer.Start(ctx, "order.Commit")
	defer span.End()

	snap, err := t.gate.BeginCheckout()
	if err != nil {
		commitsTotal.WithLabelValues("rejected").Inc()
		return domain.Order{}, err
	}

	ord, err := t.store.CreateOrder(ctx)
	if err != nil {
		t.gate.EndCheckout(false)
		commitsTotal.WithLabelValues("failed").Inc()
		t.logger.Warn("order commit failed", slog.String("error", err.Error()))
		return domain.Order{}, apperrors.Wrap(err, "commit order")
	}

	t.gate.EndCheckout(true)
	commitsTotal.WithLabelValues("committed").Inc()

	if ord.Total != snap.Totals.Total {
		// The server recomputes totals from its own cart; a mismatch means
		// local pricing rules have drifted from the server's.
		t.logger.Warn("committed order total differs from local snapshot",
			slog.String("order_id", ord.OrderID),
			slog.Int64("order_total", ord.Total),
			slog.Int64("snapshot_total", snap.Totals.Total))
	}
	t.logger.Info("order committed",
		slog.String("order_id", ord.OrderID),
		slog.Int("lines", len(ord.Lines)),
		slog.Int64("total", ord.Total))

	t.mu.Lock()
	t.committed[ord.OrderID] = ord
	t.mu.Unlock()
	return ord, nil
}

// Refresh fetches the order's current state from the server and updates the
// local record.
func (t *Tracker) Refresh(ctx context.Context, orderID string) (domain.Order, error) {
	ctx, span := t.tracer.Start(ctx, "order.Refresh")
	defer span.End()

	ord, err := t.store.GetOrder(ctx, orderID)
	if err != nil {
		return domain.Order{}, err
	}

	t.mu.Lock()
	if prev, ok := t.committed[ord.OrderID]; ok && prev.Status != ord.Status {
		t.logger.Info("order status changed",
			slog.String("order_id", ord.OrderID),
			slog.String("from", prev.Status),
			slog.String("to", ord.Status))
	}
	t.committed[ord.OrderID] = ord
	t.mu.Unlock()
	return ord, nil
}

// List returns the current session's orders.
func (t *Tracker) List(ctx context.Context) ([]domain.Order, error) {
	ctx, span := t.tracer.Start(ctx, "order.List")
	defer span.End()
	return t.store.ListOrders(ctx)
}

// ListAll returns every order in the system, paginated. Requires an admin
// session token.
func (t *Tracker) ListAll(ctx context.Context, params pagination.Params) (pagination.Result[domain.Order], error) {
	ctx, span := t.tracer.Start(ctx, "order.ListAll")
	defer span.End()
	return t.store.ListAllOrders(ctx, params.Normalize())
}

// UpdateStatus sets an order's status on the server. Requires an admin
// session token. Transitions out of a terminal status are rejected locally.
func (t *Tracker) UpdateStatus(ctx context.Context, orderID, status string) (domain.Order, error) {
	ctx, span := t.tracer.Start(ctx, "order.UpdateStatus")
	defer span.End()

	if !domain.IsValidStatus(status) {
		return domain.Order{}, apperrors.InvalidInput(fmt.Sprintf("unknown order status %q", status))
	}

	t.mu.Lock()
	prev, known := t.committed[orderID]
	t.mu.Unlock()
	if known && domain.IsTerminalStatus(prev.Status) {
		return domain.Order{}, apperrors.Conflict(fmt.Sprintf("order is already %s", prev.Status))
	}

	ord, err := t.store.UpdateOrderStatus(ctx, orderID, status)
	if err != nil {
		return domain.Order{}, err
	}

	t.mu.Lock()
	t.committed[ord.OrderID] = ord
	t.mu.Unlock()
	return ord, nil
}

// Progress maps an order status to a completion percentage for display.
func Progress(status string) int {
	switch status {
	case domain.OrderStatusPending:
		return 25
	case domain.OrderStatusPaid:
		return 50
	case domain.OrderStatusShipped:
		return 100
	case domain.OrderStatusCancelled:
		return 0
	default:
		return 0
	}
}
