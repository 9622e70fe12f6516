package shipping

import (
	"math"
	"sort"

	"github.com/shopspring/decimal"

	"github.com/voltride/ebike-backend/pkg/db/models"
)

// FallbackRate prices distance when no tier is active.
type FallbackRate struct {
	PerKm           int64
	MinFee          int64
	RoundDistanceUp bool
}

// Segment is the portion of a trip billed by one tier.
type Segment struct {
	FromKm     int   `json:"from_km"`
	ToKm       int   `json:"to_km"`
	PricePerKm int64 `json:"price_per_km"`
	Amount     int64 `json:"amount"`
}

// Quote is a fee with the breakdown that produced it.
type Quote struct {
	DistanceKm   float64   `json:"distance_km"`
	BillableKm   int       `json:"billable_km"`
	Fee          int64     `json:"fee"`
	Segments     []Segment `json:"segments,omitempty"`
	UsedFallback bool      `json:"used_fallback"`
}

// CalculateFee prices distanceKm using the active tiers, or the fallback rate when there are none.
func CalculateFee(distanceKm float64, tiers []models.ShippingRateTier, fallback FallbackRate) int64 {
	return Calculate(distanceKm, tiers, fallback).Fee
}

// Calculate rounds the distance up to whole km and bills each km at the rate of the
// tier it falls into, segment by segment in ascending tier order. When the last
// active tier is closed, distance beyond it is billed at that tier's rate.
func Calculate(distanceKm float64, tiers []models.ShippingRateTier, fallback FallbackRate) Quote {
	if distanceKm < 0 || math.IsNaN(distanceKm) {
		distanceKm = 0
	}
	active := activeSorted(tiers)
	if len(active) == 0 {
		return fallbackQuote(distanceKm, fallback)
	}

	billable := int(math.Ceil(distanceKm))
	quote := Quote{DistanceKm: RoundKm(distanceKm), BillableKm: billable}
	for _, tier := range active {
		if billable <= tier.MinDistanceKm {
			break
		}
		upper := billable
		if tier.MaxDistanceKm != nil && *tier.MaxDistanceKm < upper {
			upper = *tier.MaxDistanceKm
		}
		km := upper - tier.MinDistanceKm
		if km <= 0 {
			continue
		}
		amount := int64(km) * tier.PricePerKm
		quote.Fee += amount
		quote.Segments = append(quote.Segments, Segment{
			FromKm:     tier.MinDistanceKm,
			ToKm:       upper,
			PricePerKm: tier.PricePerKm,
			Amount:     amount,
		})
	}

	// kilometres past a closed last tier keep that tier's rate
	last := active[len(active)-1]
	if last.MaxDistanceKm != nil && billable > *last.MaxDistanceKm {
		km := billable - *last.MaxDistanceKm
		amount := int64(km) * last.PricePerKm
		quote.Fee += amount
		quote.Segments = append(quote.Segments, Segment{
			FromKm:     *last.MaxDistanceKm,
			ToKm:       billable,
			PricePerKm: last.PricePerKm,
			Amount:     amount,
		})
	}
	return quote
}

func fallbackQuote(distanceKm float64, fallback FallbackRate) Quote {
	quote := Quote{DistanceKm: RoundKm(distanceKm), UsedFallback: true}

	var fee decimal.Decimal
	if fallback.RoundDistanceUp {
		quote.BillableKm = int(math.Ceil(distanceKm))
		fee = decimal.NewFromInt(int64(quote.BillableKm)).Mul(decimal.NewFromInt(fallback.PerKm))
	} else {
		quote.BillableKm = int(math.Round(distanceKm))
		fee = decimal.NewFromFloat(distanceKm).Mul(decimal.NewFromInt(fallback.PerKm)).Round(0)
	}

	quote.Fee = fee.IntPart()
	if quote.Fee < fallback.MinFee {
		quote.Fee = fallback.MinFee
	}
	return quote
}

func activeSorted(tiers []models.ShippingRateTier) []models.ShippingRateTier {
	out := make([]models.ShippingRateTier, 0, len(tiers))
	for _, t := range tiers {
		if t.IsActive {
			out = append(out, t)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].MinDistanceKm < out[j].MinDistanceKm
	})
	return out
}
