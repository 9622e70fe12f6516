package helpers

import (
	"context"

	"github.com/google/uuid"

	"github.com/voltride/ebike-backend/internal/inventory"
	"github.com/voltride/ebike-backend/pkg/db/models"
)

// AvailabilityChecker is the read-only stock check used before any mutation.
type AvailabilityChecker interface {
	IsAvailable(ctx context.Context, productID, locationID uuid.UUID, qty int) (inventory.Availability, error)
}

type stockKey struct {
	productID  uuid.UUID
	locationID uuid.UUID
}

// CollectShortages checks every (product, location) pair and reports all
// shortages together. Quantities for repeated pairs are summed first.
func CollectShortages(ctx context.Context, checker AvailabilityChecker, items []models.CartItem) ([]inventory.Shortage, error) {
	order := make([]stockKey, 0, len(items))
	totals := make(map[stockKey]int, len(items))
	for _, item := range items {
		key := stockKey{productID: item.ProductID, locationID: item.LocationID}
		if _, ok := totals[key]; !ok {
			order = append(order, key)
		}
		totals[key] += item.Quantity
	}

	var shortages []inventory.Shortage
	for _, key := range order {
		qty := totals[key]
		avail, err := checker.IsAvailable(ctx, key.productID, key.locationID, qty)
		if err != nil {
			return nil, err
		}
		if !avail.Available {
			shortages = append(shortages, inventory.Shortage{
				ProductID:  key.productID,
				LocationID: key.locationID,
				Requested:  qty,
				Available:  avail.Stock,
			})
		}
	}
	return shortages, nil
}
