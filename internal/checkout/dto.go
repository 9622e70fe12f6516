package checkout

import (
	"github.com/google/uuid"

	"github.com/voltride/ebike-backend/internal/inventory"
	"github.com/voltride/ebike-backend/internal/orders"
	"github.com/voltride/ebike-backend/internal/payments"
	"github.com/voltride/ebike-backend/internal/shipping"
	"github.com/voltride/ebike-backend/pkg/enums"
	pkgerrors "github.com/voltride/ebike-backend/pkg/errors"
	"github.com/voltride/ebike-backend/pkg/types"
)

// CheckoutInput is what the buyer submits.
type CheckoutInput struct {
	ShippingAddress types.ShippingAddress `json:"shipping_address" validate:"required"`
	PaymentMethod   enums.PaymentMethod   `json:"payment_method" validate:"required,oneof=cash payos"`
	Notes           *string               `json:"notes,omitempty" validate:"omitempty,max=500"`
}

// ShippingBreakdown explains how an order total was reached.
type ShippingBreakdown struct {
	DistanceKm       float64            `json:"distance_km"`
	Fee              int64              `json:"fee"`
	Segments         []shipping.Segment `json:"segments,omitempty"`
	MerchandiseTotal int64              `json:"merchandise_total"`
	FinalTotal       int64              `json:"final_total"`
}

// OrderResult is one committed location group.
type OrderResult struct {
	Order            orders.OrderDTO      `json:"order"`
	Shipping         ShippingBreakdown    `json:"shipping"`
	PaymentLink      *payments.LinkResult `json:"payment_link,omitempty"`
	PaymentLinkError string               `json:"payment_link_error,omitempty"`
}

// GroupFailure is a location group whose transaction was rolled back.
type GroupFailure struct {
	LocationID uuid.UUID            `json:"location_id"`
	Code       pkgerrors.Code       `json:"code"`
	Message    string               `json:"message"`
	Shortages  []inventory.Shortage `json:"shortages,omitempty"`
}

// Result is the outcome of a checkout. Orders and Failures may both be non-empty.
type Result struct {
	Orders        []OrderResult  `json:"orders"`
	Failures      []GroupFailure `json:"failures,omitempty"`
	CartConverted bool           `json:"cart_converted"`
}

// PartialSuccess reports whether some groups committed while others failed.
func (r *Result) PartialSuccess() bool {
	return r != nil && len(r.Orders) > 0 && len(r.Failures) > 0
}
