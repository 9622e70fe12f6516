package payloads

import (
	"time"

	"github.com/google/uuid"

	"github.com/voltride/ebike-backend/pkg/enums"
)

// OrderCreatedEvent is emitted once per order produced by checkout.
type OrderCreatedEvent struct {
	OrderID       uuid.UUID           `json:"order_id"`
	OrderNumber   string              `json:"order_number"`
	UserID        uuid.UUID           `json:"user_id"`
	LocationID    uuid.UUID           `json:"location_id"`
	PaymentMethod enums.PaymentMethod `json:"payment_method"`
	Status        enums.OrderStatus   `json:"status"`
	ShippingFee   int64               `json:"shipping_fee"`
	FinalTotal    int64               `json:"final_total"`
}

// OrderStatusChangedEvent reports a forward move in the order lifecycle.
type OrderStatusChangedEvent struct {
	OrderID   uuid.UUID         `json:"order_id"`
	From      enums.OrderStatus `json:"from"`
	To        enums.OrderStatus `json:"to"`
	ChangedAt time.Time         `json:"changed_at"`
}

// OrderCancelledEvent is emitted when an order is cancelled and its stock returned.
type OrderCancelledEvent struct {
	OrderID     uuid.UUID         `json:"order_id"`
	UserID      uuid.UUID         `json:"user_id"`
	From        enums.OrderStatus `json:"from"`
	Reason      string            `json:"reason,omitempty"`
	CancelledAt time.Time         `json:"cancelled_at"`
}

// PaymentStatusEvent carries payment settlement changes.
type PaymentStatusEvent struct {
	PaymentID        uuid.UUID           `json:"payment_id"`
	OrderID          uuid.UUID           `json:"order_id"`
	Status           enums.PaymentStatus `json:"status"`
	Amount           int64               `json:"amount"`
	GatewayOrderCode *int64              `json:"gateway_order_code,omitempty"`
	Reason           string              `json:"reason,omitempty"`
}
