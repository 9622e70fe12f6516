package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/voltride/ebike-backend/pkg/types"
)

// StoreLocation is a merchant location that holds stock and ships orders.
type StoreLocation struct {
	ID        uuid.UUID `gorm:"column:id;type:uuid;primaryKey"`
	Name      string    `gorm:"column:name;not null"`
	Address   string    `gorm:"column:address;not null"`
	City      string    `gorm:"column:city;not null"`
	Latitude  float64   `gorm:"column:latitude;not null"`
	Longitude float64   `gorm:"column:longitude;not null"`
	IsActive  bool      `gorm:"column:is_active;not null;default:true"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

func (l *StoreLocation) BeforeCreate(*gorm.DB) error {
	ensureID(&l.ID)
	return nil
}

// Coordinates returns the location's position.
func (l StoreLocation) Coordinates() types.Coordinates {
	return types.Coordinates{Lat: l.Latitude, Lng: l.Longitude}
}
