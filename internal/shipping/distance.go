package shipping

import (
	"math"

	"github.com/shopspring/decimal"

	"github.com/voltride/ebike-backend/pkg/types"
)

// EarthRadiusKm is the mean Earth radius used for great-circle distance.
const EarthRadiusKm = 6371.0

// DistanceKm returns the haversine great-circle distance between two points.
func DistanceKm(from, to types.Coordinates) float64 {
	lat1 := toRadians(from.Lat)
	lat2 := toRadians(to.Lat)
	dLat := toRadians(to.Lat - from.Lat)
	dLng := toRadians(to.Lng - from.Lng)

	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLng/2)*math.Sin(dLng/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
	return EarthRadiusKm * c
}

// RoundKm rounds a distance to two decimals for display and persistence.
func RoundKm(km float64) float64 {
	rounded, _ := decimal.NewFromFloat(km).Round(2).Float64()
	return rounded
}

func toRadians(deg float64) float64 {
	return deg * math.Pi / 180
}
