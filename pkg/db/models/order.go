package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/voltride/ebike-backend/pkg/enums"
	"github.com/voltride/ebike-backend/pkg/types"
)

// Order is the per-location purchase produced by checkout.
type Order struct {
	ID                 uuid.UUID             `gorm:"column:id;type:uuid;primaryKey"`
	OrderNumber        string                `gorm:"column:order_number;not null;uniqueIndex:orders_order_number_key"`
	UserID             uuid.UUID             `gorm:"column:user_id;type:uuid;not null;index"`
	LocationID         uuid.UUID             `gorm:"column:location_id;type:uuid;not null"`
	ShippingAddress    types.ShippingAddress `gorm:"column:shipping_address;type:jsonb;serializer:json;not null"`
	PaymentMethod      enums.PaymentMethod   `gorm:"column:payment_method;type:varchar(16);not null"`
	Status             enums.OrderStatus     `gorm:"column:status;type:varchar(32);not null;index"`
	MerchandiseTotal   int64                 `gorm:"column:merchandise_total;not null"`
	ShippingFee        int64                 `gorm:"column:shipping_fee;not null;default:0"`
	DiscountAmount     int64                 `gorm:"column:discount_amount;not null;default:0"`
	FinalTotal         int64                 `gorm:"column:final_total;not null"`
	DistanceKm         float64               `gorm:"column:distance_km;not null;default:0"`
	Notes              *string               `gorm:"column:notes"`
	CancellationReason *string               `gorm:"column:cancellation_reason"`
	CancelledAt        *time.Time            `gorm:"column:cancelled_at"`
	Lines              []OrderLine           `gorm:"foreignKey:OrderID;constraint:OnDelete:CASCADE"`
	CreatedAt          time.Time             `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt          time.Time             `gorm:"column:updated_at;autoUpdateTime"`
}

// ComputeFinalTotal returns merchandise + shipping - discount.
func (o Order) ComputeFinalTotal() int64 {
	return o.MerchandiseTotal + o.ShippingFee - o.DiscountAmount
}

func (o *Order) BeforeCreate(*gorm.DB) error {
	ensureID(&o.ID)
	return nil
}

// BeforeSave keeps FinalTotal derived from its parts.
func (o *Order) BeforeSave(*gorm.DB) error {
	o.FinalTotal = o.ComputeFinalTotal()
	return nil
}
