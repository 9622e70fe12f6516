package helpers

import (
	"sort"

	"github.com/google/uuid"

	"github.com/voltride/ebike-backend/pkg/db/models"
)

// PricedLine is a cart line priced from the live catalog.
type PricedLine struct {
	CartItemID    uuid.UUID
	ProductID     uuid.UUID
	ProductName   string
	LocationID    uuid.UUID
	Quantity      int
	UnitPrice     int64
	OriginalPrice int64
}

// LineTotal is unit price times quantity.
func (l PricedLine) LineTotal() int64 {
	return l.UnitPrice * int64(l.Quantity)
}

// LocationGroup is every line shipped from one store location.
type LocationGroup struct {
	LocationID uuid.UUID
	Lines      []PricedLine
	Subtotal   int64
}

// CartItemIDs returns the cart lines covered by the group.
func (g LocationGroup) CartItemIDs() []uuid.UUID {
	ids := make([]uuid.UUID, 0, len(g.Lines))
	for _, l := range g.Lines {
		ids = append(ids, l.CartItemID)
	}
	return ids
}

// PriceLines attaches current catalog prices to each item. Items whose product is
// missing from the catalog map are returned separately.
func PriceLines(items []models.CartItem, products map[uuid.UUID]models.Product) ([]PricedLine, []uuid.UUID) {
	priced := make([]PricedLine, 0, len(items))
	var missing []uuid.UUID
	for _, item := range items {
		product, ok := products[item.ProductID]
		if !ok {
			missing = append(missing, item.ProductID)
			continue
		}
		priced = append(priced, PricedLine{
			CartItemID:    item.ID,
			ProductID:     item.ProductID,
			ProductName:   product.Name,
			LocationID:    item.LocationID,
			Quantity:      item.Quantity,
			UnitPrice:     product.Price,
			OriginalPrice: product.OriginalPrice,
		})
	}
	return priced, missing
}

// GroupByLocation partitions lines by location, ordered by location id so that
// processing order is deterministic.
func GroupByLocation(lines []PricedLine) []LocationGroup {
	index := make(map[uuid.UUID]int)
	groups := make([]LocationGroup, 0)
	for _, line := range lines {
		i, ok := index[line.LocationID]
		if !ok {
			i = len(groups)
			index[line.LocationID] = i
			groups = append(groups, LocationGroup{LocationID: line.LocationID})
		}
		groups[i].Lines = append(groups[i].Lines, line)
		groups[i].Subtotal += line.LineTotal()
	}
	sort.Slice(groups, func(a, b int) bool {
		return groups[a].LocationID.String() < groups[b].LocationID.String()
	})
	return groups
}

// ProductIDs returns the distinct product ids referenced by the items.
func ProductIDs(items []models.CartItem) []uuid.UUID {
	seen := make(map[uuid.UUID]struct{}, len(items))
	ids := make([]uuid.UUID, 0, len(items))
	for _, item := range items {
		if _, ok := seen[item.ProductID]; ok {
			continue
		}
		seen[item.ProductID] = struct{}{}
		ids = append(ids, item.ProductID)
	}
	return ids
}
