package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/voltride/ebike-backend/pkg/enums"
)

// Payment is the gateway payment attempt for a single order.
type Payment struct {
	ID               uuid.UUID           `gorm:"column:id;type:uuid;primaryKey"`
	OrderID          uuid.UUID           `gorm:"column:order_id;type:uuid;not null;uniqueIndex:payments_order_id_key"`
	UserID           uuid.UUID           `gorm:"column:user_id;type:uuid;not null"`
	Amount           int64               `gorm:"column:amount;not null"`
	Method           enums.PaymentMethod `gorm:"column:method;type:varchar(16);not null"`
	Status           enums.PaymentStatus `gorm:"column:status;type:varchar(16);not null;index"`
	GatewayOrderCode *int64              `gorm:"column:gateway_order_code;uniqueIndex:payments_gateway_order_code_key"`
	PaymentLinkID    *string             `gorm:"column:payment_link_id"`
	CheckoutURL      *string             `gorm:"column:checkout_url"`
	QRCode           *string             `gorm:"column:qr_code"`
	GatewayResponse  json.RawMessage     `gorm:"column:gateway_response;type:jsonb"`
	Notes            *string             `gorm:"column:notes"`
	ProcessedAt      *time.Time          `gorm:"column:processed_at"`
	CompletedAt      *time.Time          `gorm:"column:completed_at"`
	CreatedAt        time.Time           `gorm:"column:created_at;autoCreateTime;index"`
	UpdatedAt        time.Time           `gorm:"column:updated_at;autoUpdateTime"`
}

func (p *Payment) BeforeCreate(*gorm.DB) error {
	ensureID(&p.ID)
	return nil
}
