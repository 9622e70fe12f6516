package shipping

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/voltride/ebike-backend/pkg/db/models"
	pkgerrors "github.com/voltride/ebike-backend/pkg/errors"
)

// Repository persists shipping rate tiers.
type Repository struct {
	db *gorm.DB
}

// NewRepository binds a repository to a gorm handle.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// WithTx returns a repository bound to the provided transaction.
func (r *Repository) WithTx(tx *gorm.DB) *Repository {
	if tx == nil {
		return r
	}
	return &Repository{db: tx}
}

// ListActive returns active tiers ordered by lower bound.
func (r *Repository) ListActive(ctx context.Context) ([]models.ShippingRateTier, error) {
	var tiers []models.ShippingRateTier
	err := r.db.WithContext(ctx).
		Where("is_active = ?", true).
		Order("min_distance_km ASC").
		Find(&tiers).Error
	return tiers, err
}

// List returns every tier ordered by lower bound then sort order.
func (r *Repository) List(ctx context.Context) ([]models.ShippingRateTier, error) {
	var tiers []models.ShippingRateTier
	err := r.db.WithContext(ctx).
		Order("min_distance_km ASC").
		Order("sort_order ASC").
		Find(&tiers).Error
	return tiers, err
}

// FindByID loads a tier or returns a not-found error.
func (r *Repository) FindByID(ctx context.Context, id uuid.UUID) (*models.ShippingRateTier, error) {
	var tier models.ShippingRateTier
	if err := r.db.WithContext(ctx).First(&tier, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "shipping rate not found")
		}
		return nil, err
	}
	return &tier, nil
}

// Create inserts a tier.
func (r *Repository) Create(ctx context.Context, tier *models.ShippingRateTier) error {
	return r.db.WithContext(ctx).Create(tier).Error
}

// UpdateMutable persists only the fields that may change after creation.
func (r *Repository) UpdateMutable(ctx context.Context, tier *models.ShippingRateTier) error {
	return r.db.WithContext(ctx).
		Model(&models.ShippingRateTier{}).
		Where("id = ?", tier.ID).
		Updates(map[string]any{
			"price_per_km": tier.PricePerKm,
			"note":         tier.Note,
			"is_active":    tier.IsActive,
		}).Error
}

// Delete removes a tier.
func (r *Repository) Delete(ctx context.Context, id uuid.UUID) error {
	res := r.db.WithContext(ctx).Delete(&models.ShippingRateTier{}, "id = ?", id)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return pkgerrors.New(pkgerrors.CodeNotFound, "shipping rate not found")
	}
	return nil
}
