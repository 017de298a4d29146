package domain

import "time"

// Order status constants. Shipped and Cancelled are terminal; all transitions
// are server-driven, the client only renders them.
const (
	OrderStatusPending   = "pending"
	OrderStatusPaid      = "paid"
	OrderStatusShipped   = "shipped"
	OrderStatusCancelled = "cancelled"
)

// Order is an immutable record created exactly once from a settled, non-empty
// cart at checkout. Lines are a copy of the cart lines at commit time.
type Order struct {
	OrderID   string     `json:"order_id"`
	Status    string     `json:"status"`
	Lines     []CartLine `json:"lines"`
	Total     int64      `json:"total"`
	CreatedAt time.Time  `json:"created_at"`
}

// ValidStatuses returns all valid order statuses.
func ValidStatuses() []string {
	return []string{
		OrderStatusPending,
		OrderStatusPaid,
		OrderStatusShipped,
		OrderStatusCancelled,
	}
}

// IsValidStatus checks if a status string is valid.
func IsValidStatus(status string) bool {
	for _, s := range ValidStatuses() {
		if s == status {
			return true
		}
	}
	return false
}

// IsTerminalStatus reports whether no further transitions can occur.
func IsTerminalStatus(status string) bool {
	return status == OrderStatusShipped || status == OrderStatusCancelled
}
