package cart

import (
	cartdto "github.com/voltride/ebike-backend/api/controllers/cart/dto"
	"github.com/voltride/ebike-backend/internal/cart"
)

func toAddItemInput(payload cartdto.AddItemRequest) cart.AddItemInput {
	return cart.AddItemInput{
		ProductID:  payload.ProductID,
		LocationID: payload.LocationID,
		Quantity:   payload.Quantity,
	}
}
