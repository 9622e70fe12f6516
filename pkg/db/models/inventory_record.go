package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// DefaultMinStock is the reorder threshold applied when none is configured.
const DefaultMinStock = 5

// InventoryRecord is the stock of one product at one location.
type InventoryRecord struct {
	ID         uuid.UUID `gorm:"column:id;type:uuid;primaryKey"`
	ProductID  uuid.UUID `gorm:"column:product_id;type:uuid;not null;uniqueIndex:idx_inventory_product_location"`
	LocationID uuid.UUID `gorm:"column:location_id;type:uuid;not null;uniqueIndex:idx_inventory_product_location"`
	Stock      int       `gorm:"column:stock;not null;default:0;check:chk_inventory_stock_non_negative,stock >= 0"`
	MinStock   int       `gorm:"column:min_stock;not null;default:5"`
	CreatedAt  time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt  time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

func (r *InventoryRecord) BeforeCreate(*gorm.DB) error {
	ensureID(&r.ID)
	return nil
}
