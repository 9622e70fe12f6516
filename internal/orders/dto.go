package orders

import (
	"time"

	"github.com/google/uuid"

	"github.com/voltride/ebike-backend/pkg/db/models"
	"github.com/voltride/ebike-backend/pkg/enums"
	"github.com/voltride/ebike-backend/pkg/types"
)

// OrderLineDTO is the API shape of an order line snapshot.
type OrderLineDTO struct {
	ID            uuid.UUID `json:"id"`
	ProductID     uuid.UUID `json:"product_id"`
	ProductName   string    `json:"product_name"`
	Quantity      int       `json:"quantity"`
	UnitPrice     int64     `json:"unit_price"`
	OriginalPrice int64     `json:"original_price"`
	LineTotal     int64     `json:"line_total"`
}

// OrderDTO is the API shape of an order.
type OrderDTO struct {
	ID                 uuid.UUID             `json:"id"`
	OrderNumber        string                `json:"order_number"`
	UserID             uuid.UUID             `json:"user_id"`
	LocationID         uuid.UUID             `json:"location_id"`
	Status             enums.OrderStatus     `json:"status"`
	PaymentMethod      enums.PaymentMethod   `json:"payment_method"`
	ShippingAddress    types.ShippingAddress `json:"shipping_address"`
	MerchandiseTotal   int64                 `json:"merchandise_total"`
	ShippingFee        int64                 `json:"shipping_fee"`
	DiscountAmount     int64                 `json:"discount_amount"`
	FinalTotal         int64                 `json:"final_total"`
	DistanceKm         float64               `json:"distance_km"`
	Notes              *string               `json:"notes,omitempty"`
	CancellationReason *string               `json:"cancellation_reason,omitempty"`
	CancelledAt        *time.Time            `json:"cancelled_at,omitempty"`
	Lines              []OrderLineDTO        `json:"lines"`
	CreatedAt          time.Time             `json:"created_at"`
	UpdatedAt          time.Time             `json:"updated_at"`
}

// OrderList is a cursor page of orders.
type OrderList struct {
	Orders     []OrderDTO `json:"orders"`
	NextCursor string     `json:"next_cursor,omitempty"`
}

// ListFilters narrows order listings.
type ListFilters struct {
	UserID     *uuid.UUID
	LocationID *uuid.UUID
	Status     *enums.OrderStatus
}

// ToDTO maps the persisted order into its API shape.
func ToDTO(order models.Order) OrderDTO {
	lines := make([]OrderLineDTO, 0, len(order.Lines))
	for _, line := range order.Lines {
		lines = append(lines, OrderLineDTO{
			ID:            line.ID,
			ProductID:     line.ProductID,
			ProductName:   line.ProductName,
			Quantity:      line.Quantity,
			UnitPrice:     line.UnitPrice,
			OriginalPrice: line.OriginalPrice,
			LineTotal:     line.LineTotal,
		})
	}
	return OrderDTO{
		ID:                 order.ID,
		OrderNumber:        order.OrderNumber,
		UserID:             order.UserID,
		LocationID:         order.LocationID,
		Status:             order.Status,
		PaymentMethod:      order.PaymentMethod,
		ShippingAddress:    order.ShippingAddress,
		MerchandiseTotal:   order.MerchandiseTotal,
		ShippingFee:        order.ShippingFee,
		DiscountAmount:     order.DiscountAmount,
		FinalTotal:         order.FinalTotal,
		DistanceKm:         order.DistanceKm,
		Notes:              order.Notes,
		CancellationReason: order.CancellationReason,
		CancelledAt:        order.CancelledAt,
		Lines:              lines,
		CreatedAt:          order.CreatedAt,
		UpdatedAt:          order.UpdatedAt,
	}
}
