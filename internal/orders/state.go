package orders

import "github.com/voltride/ebike-backend/pkg/enums"

var transitions = map[enums.OrderStatus][]enums.OrderStatus{
	enums.OrderStatusAwaitingPayment: {enums.OrderStatusPending, enums.OrderStatusConfirmed, enums.OrderStatusCancelled},
	enums.OrderStatusPending:         {enums.OrderStatusConfirmed, enums.OrderStatusCancelled},
	enums.OrderStatusConfirmed:       {enums.OrderStatusShipped, enums.OrderStatusCancelled},
	enums.OrderStatusShipped:         {enums.OrderStatusDelivered},
}

// CanTransition reports whether an order may move from one status to another.
func CanTransition(from, to enums.OrderStatus) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// CustomerCancellable reports whether the buyer may still cancel on their own.
func CustomerCancellable(status enums.OrderStatus) bool {
	return status == enums.OrderStatusAwaitingPayment || status == enums.OrderStatusPending
}

// InitialStatus is the status a freshly created order starts in.
func InitialStatus(method enums.PaymentMethod) enums.OrderStatus {
	if method.IsOnline() {
		return enums.OrderStatusAwaitingPayment
	}
	return enums.OrderStatusPending
}
