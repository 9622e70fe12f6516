package types

import "strings"

// ShippingAddress is the delivery destination snapshot stored on each order.
type ShippingAddress struct {
	FullName string   `json:"full_name" validate:"required,max=120"`
	Phone    string   `json:"phone" validate:"required,min=8,max=20"`
	Address  string   `json:"address" validate:"required,max=255"`
	Ward     string   `json:"ward,omitempty" validate:"omitempty,max=120"`
	District string   `json:"district,omitempty" validate:"omitempty,max=120"`
	City     string   `json:"city" validate:"required,max=120"`
	Lat      *float64 `json:"lat,omitempty" validate:"omitempty,latitude"`
	Lng      *float64 `json:"lng,omitempty" validate:"omitempty,longitude"`
}

// GeocodeQuery joins the non-empty address parts into a single geocoder query.
func (a ShippingAddress) GeocodeQuery() string {
	parts := make([]string, 0, 4)
	for _, p := range []string{a.Address, a.Ward, a.District, a.City} {
		if p = strings.TrimSpace(p); p != "" {
			parts = append(parts, p)
		}
	}
	return strings.Join(parts, ", ")
}

// Coordinates returns the caller supplied coordinates, when both are present.
func (a ShippingAddress) Coordinates() (Coordinates, bool) {
	if a.Lat == nil || a.Lng == nil {
		return Coordinates{}, false
	}
	return Coordinates{Lat: *a.Lat, Lng: *a.Lng}, true
}
