// Package remote defines the contract the sync engine needs from the
// storefront backend. Implementations are pure request/response with no
// caching; all local state lives in the engine.
package remote

import (
	"context"

	"github.com/UrielMangisto/ShoppingWebsite-sub000/domain"
	"github.com/UrielMangisto/ShoppingWebsite-sub000/pkg/pagination"
)

// Store wraps the server cart/order REST endpoints.
//
// Every call may fail with a transport error (apperrors.ErrNetwork), an
// authorization error (apperrors.ErrUnauthorized), or a domain rejection
// (apperrors.ErrRejected, reason preserved verbatim). Callers distinguish the
// three with errors.Is.
type Store interface {
	// FetchCart returns the full authoritative cart.
	FetchCart(ctx context.Context) (domain.CartSnapshot, error)

	// CreateLine adds a product to the cart and returns the created line
	// with its server-assigned id and unit price snapshot.
	CreateLine(ctx context.Context, productID string, quantity int) (domain.CartLine, error)

	// UpdateLine sets the quantity of an existing line and returns the
	// updated line as the server sees it.
	UpdateLine(ctx context.Context, lineID string, quantity int) (domain.CartLine, error)

	// DeleteLine removes a line from the cart.
	DeleteLine(ctx context.Context, lineID string) error

	// ClearCart removes every line from the cart.
	ClearCart(ctx context.Context) error

	// CreateOrder converts the server-side cart into an order. The server
	// empties the cart as part of order creation.
	CreateOrder(ctx context.Context) (domain.Order, error)

	// GetOrder returns a single order owned by the current session.
	GetOrder(ctx context.Context, orderID string) (domain.Order, error)

	// ListOrders returns the current session's orders.
	ListOrders(ctx context.Context) ([]domain.Order, error)

	// ListAllOrders returns every order in the system (admin only), paginated.
	ListAllOrders(ctx context.Context, params pagination.Params) (pagination.Result[domain.Order], error)

	// UpdateOrderStatus sets an order's status (admin only).
	UpdateOrderStatus(ctx context.Context, orderID, status string) (domain.Order, error)
}
