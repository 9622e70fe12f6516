package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// OrderLine is the immutable price snapshot of one product on an order.
type OrderLine struct {
	ID            uuid.UUID `gorm:"column:id;type:uuid;primaryKey"`
	OrderID       uuid.UUID `gorm:"column:order_id;type:uuid;not null;index"`
	ProductID     uuid.UUID `gorm:"column:product_id;type:uuid;not null"`
	ProductName   string    `gorm:"column:product_name;not null"`
	Quantity      int       `gorm:"column:quantity;not null"`
	UnitPrice     int64     `gorm:"column:unit_price;not null"`
	OriginalPrice int64     `gorm:"column:original_price;not null;default:0"`
	LineTotal     int64     `gorm:"column:line_total;not null"`
	CreatedAt     time.Time `gorm:"column:created_at;autoCreateTime"`
}

func (l *OrderLine) BeforeCreate(*gorm.DB) error {
	ensureID(&l.ID)
	l.LineTotal = l.UnitPrice * int64(l.Quantity)
	return nil
}
