package shipping

import (
	"fmt"

	"github.com/voltride/ebike-backend/pkg/db/models"
	pkgerrors "github.com/voltride/ebike-backend/pkg/errors"
)

const maxNoteLength = 255

// ValidateTier checks a single tier's own bounds.
func ValidateTier(t models.ShippingRateTier) error {
	if t.MinDistanceKm < 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "min distance must be non-negative")
	}
	if t.MaxDistanceKm != nil && *t.MaxDistanceKm <= t.MinDistanceKm {
		return pkgerrors.New(pkgerrors.CodeValidation, "max distance must be greater than min distance")
	}
	if t.PricePerKm < 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "price per km must be non-negative")
	}
	if len(t.Note) > maxNoteLength {
		return pkgerrors.New(pkgerrors.CodeValidation, "note must be at most 255 characters")
	}
	return nil
}

// ValidateSchedule checks that the active tiers start at zero, do not overlap,
// leave no gaps, and that only the last one is open-ended.
func ValidateSchedule(tiers []models.ShippingRateTier) error {
	active := activeSorted(tiers)
	if len(active) == 0 {
		return nil
	}
	if active[0].MinDistanceKm != 0 {
		return scheduleError("first active tier must start at 0 km", active[0])
	}
	for i, tier := range active {
		if err := ValidateTier(tier); err != nil {
			return err
		}
		if i == len(active)-1 {
			break
		}
		next := active[i+1]
		if tier.MaxDistanceKm == nil {
			return scheduleError("only the last active tier may be open-ended", tier)
		}
		switch {
		case next.MinDistanceKm < *tier.MaxDistanceKm:
			return scheduleError(fmt.Sprintf("tier overlaps the tier starting at %d km", next.MinDistanceKm), tier)
		case next.MinDistanceKm > *tier.MaxDistanceKm:
			return scheduleError(fmt.Sprintf("gap between %d km and %d km", *tier.MaxDistanceKm, next.MinDistanceKm), tier)
		}
	}
	return nil
}

func scheduleError(msg string, tier models.ShippingRateTier) error {
	return pkgerrors.New(pkgerrors.CodeValidation, msg).WithDetails(map[string]any{
		"tier_id":         tier.ID,
		"min_distance_km": tier.MinDistanceKm,
		"max_distance_km": tier.MaxDistanceKm,
	})
}
