package orders

import "github.com/freshkart/freshkart-backend/pkg/enums"

// statusTransitions is the manual fulfillment progression. Cancellation is
// reachable from every non-terminal state; delivered and cancelled are final.
var statusTransitions = map[enums.OrderStatus][]enums.OrderStatus{
	enums.OrderStatusPending:        {enums.OrderStatusConfirmed, enums.OrderStatusCancelled},
	enums.OrderStatusConfirmed:      {enums.OrderStatusPreparing, enums.OrderStatusCancelled},
	enums.OrderStatusPreparing:      {enums.OrderStatusOutForDelivery, enums.OrderStatusCancelled},
	enums.OrderStatusOutForDelivery: {enums.OrderStatusDelivered, enums.OrderStatusCancelled},
}

// CanTransition reports whether the fulfillment state machine allows
// moving from one status to another.
func CanTransition(from, to enums.OrderStatus) bool {
	for _, allowed := range statusTransitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}
