package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ShippingRateTier charges PricePerKm for every whole km in [MinDistanceKm, MaxDistanceKm).
// A nil MaxDistanceKm makes the tier open-ended.
type ShippingRateTier struct {
	ID            uuid.UUID `gorm:"column:id;type:uuid;primaryKey"`
	MinDistanceKm int       `gorm:"column:min_distance_km;not null"`
	MaxDistanceKm *int      `gorm:"column:max_distance_km"`
	PricePerKm    int64     `gorm:"column:price_per_km;not null"`
	Note          string    `gorm:"column:note;not null;default:''"`
	IsActive      bool      `gorm:"column:is_active;not null;default:true"`
	SortOrder     int       `gorm:"column:sort_order;not null;default:0"`
	CreatedAt     time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt     time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

func (t *ShippingRateTier) BeforeCreate(*gorm.DB) error {
	ensureID(&t.ID)
	return nil
}

// Covers reports whether a whole-km index falls inside the tier.
func (t ShippingRateTier) Covers(km int) bool {
	if km < t.MinDistanceKm {
		return false
	}
	return t.MaxDistanceKm == nil || km < *t.MaxDistanceKm
}
