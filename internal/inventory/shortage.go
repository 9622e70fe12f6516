package inventory

import (
	"fmt"

	"github.com/google/uuid"

	pkgerrors "github.com/voltride/ebike-backend/pkg/errors"
)

// Shortage describes a line that cannot be fulfilled from current stock.
type Shortage struct {
	ProductID  uuid.UUID `json:"product_id"`
	LocationID uuid.UUID `json:"location_id"`
	Requested  int       `json:"requested"`
	Available  int       `json:"available"`
}

// InsufficientStockError builds the typed error carrying every shortage.
func InsufficientStockError(shortages []Shortage) *pkgerrors.Error {
	msg := "insufficient stock"
	if len(shortages) == 1 {
		s := shortages[0]
		msg = fmt.Sprintf("insufficient stock for product %s: requested %d, available %d", s.ProductID, s.Requested, s.Available)
	} else if len(shortages) > 1 {
		msg = fmt.Sprintf("insufficient stock for %d items", len(shortages))
	}
	return pkgerrors.New(pkgerrors.CodeInsufficientStock, msg).WithDetails(map[string]any{
		"shortages": shortages,
	})
}

// ShortagesFrom extracts the shortages attached to an insufficient stock error.
func ShortagesFrom(err error) []Shortage {
	typed := pkgerrors.As(err)
	if typed == nil || typed.Code() != pkgerrors.CodeInsufficientStock {
		return nil
	}
	details, ok := typed.Details().(map[string]any)
	if !ok {
		return nil
	}
	shortages, _ := details["shortages"].([]Shortage)
	return shortages
}
