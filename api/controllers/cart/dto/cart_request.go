package cartdto

import "github.com/google/uuid"

// AddItemRequest adds a product stocked at a location to the cart.
type AddItemRequest struct {
	ProductID  uuid.UUID `json:"product_id" validate:"required"`
	LocationID uuid.UUID `json:"location_id" validate:"required"`
	Quantity   int       `json:"quantity" validate:"required,min=1,max=99"`
}

// UpdateItemRequest sets the quantity of an existing line.
type UpdateItemRequest struct {
	Quantity int `json:"quantity" validate:"required,min=1,max=99"`
}
