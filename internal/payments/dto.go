package payments

import (
	"time"

	"github.com/google/uuid"

	"github.com/voltride/ebike-backend/pkg/db/models"
	"github.com/voltride/ebike-backend/pkg/enums"
)

// PaymentDTO is the API shape of a payment.
type PaymentDTO struct {
	ID               uuid.UUID           `json:"id"`
	OrderID          uuid.UUID           `json:"order_id"`
	Amount           int64               `json:"amount"`
	Method           enums.PaymentMethod `json:"method"`
	Status           enums.PaymentStatus `json:"status"`
	GatewayOrderCode *int64              `json:"gateway_order_code,omitempty"`
	CheckoutURL      *string             `json:"checkout_url,omitempty"`
	QRCode           *string             `json:"qr_code,omitempty"`
	Notes            *string             `json:"notes,omitempty"`
	CompletedAt      *time.Time          `json:"completed_at,omitempty"`
	CreatedAt        time.Time           `json:"created_at"`
}

// PaymentList is a cursor page of payments.
type PaymentList struct {
	Payments   []PaymentDTO `json:"payments"`
	NextCursor string       `json:"next_cursor,omitempty"`
}

// LinkResult describes the checkout link handed to the buyer.
type LinkResult struct {
	PaymentID   uuid.UUID           `json:"payment_id"`
	OrderID     uuid.UUID           `json:"order_id"`
	OrderCode   int64               `json:"order_code"`
	Amount      int64               `json:"amount"`
	Status      enums.PaymentStatus `json:"status"`
	CheckoutURL string              `json:"checkout_url"`
	QRCode      string              `json:"qr_code,omitempty"`
	Reused      bool                `json:"reused"`
}

// LinkOptions lets callers override the gateway redirect targets.
type LinkOptions struct {
	ReturnURL string
	CancelURL string
	// ForceNew skips reuse of an open link.
	ForceNew bool
}

// ToDTO maps a payment row into its API shape.
func ToDTO(p models.Payment) PaymentDTO {
	return PaymentDTO{
		ID:               p.ID,
		OrderID:          p.OrderID,
		Amount:           p.Amount,
		Method:           p.Method,
		Status:           p.Status,
		GatewayOrderCode: p.GatewayOrderCode,
		CheckoutURL:      p.CheckoutURL,
		QRCode:           p.QRCode,
		Notes:            p.Notes,
		CompletedAt:      p.CompletedAt,
		CreatedAt:        p.CreatedAt,
	}
}
