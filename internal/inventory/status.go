package inventory

import "github.com/voltride/ebike-backend/pkg/enums"

// StockStatus derives the display status from stock and the reorder threshold.
func StockStatus(stock, threshold int) enums.StockStatus {
	switch {
	case stock <= 0:
		return enums.StockStatusOutOfStock
	case stock <= threshold:
		return enums.StockStatusLowStock
	default:
		return enums.StockStatusInStock
	}
}
