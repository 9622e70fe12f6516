package shipping

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/voltride/ebike-backend/pkg/db/models"
	pkgerrors "github.com/voltride/ebike-backend/pkg/errors"
	"github.com/voltride/ebike-backend/pkg/types"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// Service prices deliveries and manages the tier schedule.
type Service interface {
	Quote(ctx context.Context, distanceKm float64) (Quote, error)
	QuoteBetween(ctx context.Context, from, to types.Coordinates) (Quote, error)
	ListTiers(ctx context.Context) ([]models.ShippingRateTier, error)
	CreateTier(ctx context.Context, input CreateTierInput) (*models.ShippingRateTier, error)
	UpdateTier(ctx context.Context, id uuid.UUID, input UpdateTierInput) (*models.ShippingRateTier, error)
	DeleteTier(ctx context.Context, id uuid.UUID) error
}

// CreateTierInput describes a new tier.
type CreateTierInput struct {
	MinDistanceKm int
	MaxDistanceKm *int
	PricePerKm    int64
	Note          string
	IsActive      bool
	SortOrder     int
}

// UpdateTierInput carries the mutable tier fields. Bounds are fixed once created.
type UpdateTierInput struct {
	PricePerKm *int64
	Note       *string
	IsActive   *bool
}

type service struct {
	repo     *Repository
	tx       txRunner
	fallback FallbackRate
}

// NewService builds the shipping service.
func NewService(repo *Repository, tx txRunner, fallback FallbackRate) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("shipping repository required")
	}
	if tx == nil {
		return nil, fmt.Errorf("tx runner required")
	}
	if fallback.PerKm < 0 || fallback.MinFee < 0 {
		return nil, fmt.Errorf("fallback rate must be non-negative")
	}
	return &service{repo: repo, tx: tx, fallback: fallback}, nil
}

func (s *service) Quote(ctx context.Context, distanceKm float64) (Quote, error) {
	if distanceKm < 0 {
		return Quote{}, pkgerrors.New(pkgerrors.CodeValidation, "distance must be non-negative")
	}
	tiers, err := s.repo.ListActive(ctx)
	if err != nil {
		return Quote{}, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load shipping rates")
	}
	return Calculate(distanceKm, tiers, s.fallback), nil
}

func (s *service) QuoteBetween(ctx context.Context, from, to types.Coordinates) (Quote, error) {
	return s.Quote(ctx, DistanceKm(from, to))
}

func (s *service) ListTiers(ctx context.Context) ([]models.ShippingRateTier, error) {
	tiers, err := s.repo.List(ctx)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list shipping rates")
	}
	return tiers, nil
}

func (s *service) CreateTier(ctx context.Context, input CreateTierInput) (*models.ShippingRateTier, error) {
	tier := &models.ShippingRateTier{
		MinDistanceKm: input.MinDistanceKm,
		MaxDistanceKm: input.MaxDistanceKm,
		PricePerKm:    input.PricePerKm,
		Note:          strings.TrimSpace(input.Note),
		IsActive:      input.IsActive,
		SortOrder:     input.SortOrder,
	}
	if err := ValidateTier(*tier); err != nil {
		return nil, err
	}

	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		existing, err := repo.ListActive(ctx)
		if err != nil {
			return err
		}
		if tier.IsActive {
			if err := ValidateSchedule(append(existing, *tier)); err != nil {
				return err
			}
		}
		// gorm skips zero-value bools that carry a default tag on insert.
		if err := repo.Create(ctx, tier); err != nil {
			return err
		}
		if !tier.IsActive {
			return tx.WithContext(ctx).Model(tier).Update("is_active", false).Error
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return tier, nil
}

func (s *service) UpdateTier(ctx context.Context, id uuid.UUID, input UpdateTierInput) (*models.ShippingRateTier, error) {
	if id == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "shipping rate id required")
	}

	var updated *models.ShippingRateTier
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		tier, err := repo.FindByID(ctx, id)
		if err != nil {
			return err
		}
		if input.PricePerKm != nil {
			tier.PricePerKm = *input.PricePerKm
		}
		if input.Note != nil {
			tier.Note = strings.TrimSpace(*input.Note)
		}
		if input.IsActive != nil {
			tier.IsActive = *input.IsActive
		}
		if err := ValidateTier(*tier); err != nil {
			return err
		}

		active, err := repo.ListActive(ctx)
		if err != nil {
			return err
		}
		if err := ValidateSchedule(replaceTier(active, *tier)); err != nil {
			return err
		}
		if err := repo.UpdateMutable(ctx, tier); err != nil {
			return err
		}
		updated = tier
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

func (s *service) DeleteTier(ctx context.Context, id uuid.UUID) error {
	if id == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "shipping rate id required")
	}
	return s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		tier, err := repo.FindByID(ctx, id)
		if err != nil {
			return err
		}
		if tier.IsActive {
			active, err := repo.ListActive(ctx)
			if err != nil {
				return err
			}
			tier.IsActive = false
			if err := ValidateSchedule(replaceTier(active, *tier)); err != nil {
				return err
			}
		}
		return repo.Delete(ctx, id)
	})
}

// replaceTier swaps the tier with the same id, or appends it when absent.
func replaceTier(tiers []models.ShippingRateTier, tier models.ShippingRateTier) []models.ShippingRateTier {
	out := make([]models.ShippingRateTier, 0, len(tiers)+1)
	found := false
	for _, t := range tiers {
		if t.ID == tier.ID {
			out = append(out, tier)
			found = true
			continue
		}
		out = append(out, t)
	}
	if !found {
		out = append(out, tier)
	}
	return out
}
