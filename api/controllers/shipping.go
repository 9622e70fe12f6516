package controllers

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/voltride/ebike-backend/api/responses"
	"github.com/voltride/ebike-backend/api/validators"
	"github.com/voltride/ebike-backend/internal/shipping"
	"github.com/voltride/ebike-backend/pkg/db/models"
	pkgerrors "github.com/voltride/ebike-backend/pkg/errors"
	"github.com/voltride/ebike-backend/pkg/logger"
	"github.com/voltride/ebike-backend/pkg/types"
)

const maxQuoteDistanceKm = 2000

type locationFinder interface {
	FindLocation(ctx context.Context, id uuid.UUID) (*models.StoreLocation, error)
}

type shippingTierResponse struct {
	ID            uuid.UUID `json:"id"`
	MinDistanceKm int       `json:"min_distance_km"`
	MaxDistanceKm *int      `json:"max_distance_km"`
	PricePerKm    int64     `json:"price_per_km"`
	Note          string    `json:"note"`
	IsActive      bool      `json:"is_active"`
	SortOrder     int       `json:"sort_order"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

type createTierRequest struct {
	MinDistanceKm *int   `json:"min_distance_km" validate:"required,min=0"`
	MaxDistanceKm *int   `json:"max_distance_km" validate:"omitempty,min=1"`
	PricePerKm    int64  `json:"price_per_km" validate:"min=0"`
	Note          string `json:"note" validate:"omitempty,max=255"`
	IsActive      *bool  `json:"is_active"`
	SortOrder     int    `json:"sort_order"`
}

type updateTierRequest struct {
	PricePerKm *int64  `json:"price_per_km" validate:"omitempty,min=0"`
	Note       *string `json:"note" validate:"omitempty,max=255"`
	IsActive   *bool   `json:"is_active"`
}

func newShippingTierResponse(t models.ShippingRateTier) shippingTierResponse {
	return shippingTierResponse{
		ID:            t.ID,
		MinDistanceKm: t.MinDistanceKm,
		MaxDistanceKm: t.MaxDistanceKm,
		PricePerKm:    t.PricePerKm,
		Note:          t.Note,
		IsActive:      t.IsActive,
		SortOrder:     t.SortOrder,
		CreatedAt:     t.CreatedAt,
		UpdatedAt:     t.UpdatedAt,
	}
}

// ShippingQuote previews the fee either for a raw distance or for a delivery
// from a store location to the supplied coordinates.
func ShippingQuote(svc shipping.Service, locations locationFinder, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "shipping service unavailable"))
			return
		}

		distance, err := validators.ParseQueryFloat(r, "distance_km", 0, maxQuoteDistanceKm)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if distance != nil {
			quote, err := svc.Quote(r.Context(), *distance)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, err)
				return
			}
			responses.WriteSuccess(w, quote)
			return
		}

		locationID, err := validators.ParseQueryUUID(r, "location_id")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		lat, err := validators.ParseQueryFloat(r, "lat", -90, 90)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		lng, err := validators.ParseQueryFloat(r, "lng", -180, 180)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if locationID == nil || lat == nil || lng == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "distance_km or location_id with lat and lng required"))
			return
		}
		if locations == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "location directory unavailable"))
			return
		}

		location, err := locations.FindLocation(r.Context(), *locationID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		quote, err := svc.QuoteBetween(r.Context(),
			types.Coordinates{Lat: location.Latitude, Lng: location.Longitude},
			types.Coordinates{Lat: *lat, Lng: *lng},
		)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, quote)
	}
}

// AdminListShippingTiers returns every tier ordered by its lower bound.
func AdminListShippingTiers(svc shipping.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "shipping service unavailable"))
			return
		}
		tiers, err := svc.ListTiers(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		out := make([]shippingTierResponse, 0, len(tiers))
		for _, t := range tiers {
			out = append(out, newShippingTierResponse(t))
		}
		responses.WriteSuccess(w, out)
	}
}

// AdminCreateShippingTier adds a tier; overlapping ranges are rejected by the service.
func AdminCreateShippingTier(svc shipping.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "shipping service unavailable"))
			return
		}
		var payload createTierRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		active := true
		if payload.IsActive != nil {
			active = *payload.IsActive
		}
		tier, err := svc.CreateTier(r.Context(), shipping.CreateTierInput{
			MinDistanceKm: *payload.MinDistanceKm,
			MaxDistanceKm: payload.MaxDistanceKm,
			PricePerKm:    payload.PricePerKm,
			Note:          strings.TrimSpace(payload.Note),
			IsActive:      active,
			SortOrder:     payload.SortOrder,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, newShippingTierResponse(*tier))
	}
}

// AdminUpdateShippingTier changes price, note or active flag of a tier.
func AdminUpdateShippingTier(svc shipping.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "shipping service unavailable"))
			return
		}
		tierID, err := validators.ParseUUIDParam(r, "tierId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var payload updateTierRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		tier, err := svc.UpdateTier(r.Context(), tierID, shipping.UpdateTierInput{
			PricePerKm: payload.PricePerKm,
			Note:       payload.Note,
			IsActive:   payload.IsActive,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, newShippingTierResponse(*tier))
	}
}

// AdminDeleteShippingTier removes a tier.
func AdminDeleteShippingTier(svc shipping.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "shipping service unavailable"))
			return
		}
		tierID, err := validators.ParseUUIDParam(r, "tierId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if err := svc.DeleteTier(r.Context(), tierID); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]any{"id": tierID, "deleted": true})
	}
}
