package cart

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/voltride/ebike-backend/internal/inventory"
	"github.com/voltride/ebike-backend/pkg/db/models"
	pkgerrors "github.com/voltride/ebike-backend/pkg/errors"
)

const maxLineQuantity = 99

type productLoader interface {
	FindProduct(ctx context.Context, id uuid.UUID) (*models.Product, error)
	FindProducts(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]models.Product, error)
}

type locationLoader interface {
	FindLocation(ctx context.Context, id uuid.UUID) (*models.StoreLocation, error)
}

type availabilityChecker interface {
	IsAvailable(ctx context.Context, productID, locationID uuid.UUID, qty int) (inventory.Availability, error)
}

// Service exposes the user's basket with live catalog prices.
type Service interface {
	GetActiveCart(ctx context.Context, userID uuid.UUID) (*View, error)
	AddItem(ctx context.Context, userID uuid.UUID, input AddItemInput) (*View, error)
	UpdateItemQuantity(ctx context.Context, userID, itemID uuid.UUID, qty int) (*View, error)
	RemoveItem(ctx context.Context, userID, itemID uuid.UUID) (*View, error)
}

// AddItemInput identifies the product, location and quantity to add.
type AddItemInput struct {
	ProductID  uuid.UUID
	LocationID uuid.UUID
	Quantity   int
}

// View is the cart priced at read time. Prices are informative only.
type View struct {
	CartID   uuid.UUID  `json:"cart_id"`
	Items    []ItemView `json:"items"`
	Subtotal int64      `json:"subtotal"`
}

// ItemView is a cart line with its current price.
type ItemView struct {
	ID          uuid.UUID `json:"id"`
	ProductID   uuid.UUID `json:"product_id"`
	ProductName string    `json:"product_name"`
	LocationID  uuid.UUID `json:"location_id"`
	Quantity    int       `json:"quantity"`
	UnitPrice   int64     `json:"unit_price"`
	LineTotal   int64     `json:"line_total"`
	Unavailable bool      `json:"unavailable,omitempty"`
}

type service struct {
	repo      Repository
	products  productLoader
	locations locationLoader
	stock     availabilityChecker
}

// NewService builds a cart service backed by the provided stack.
func NewService(repo Repository, products productLoader, locations locationLoader, stock availabilityChecker) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("cart repository required")
	}
	if products == nil {
		return nil, fmt.Errorf("product loader required")
	}
	if locations == nil {
		return nil, fmt.Errorf("location loader required")
	}
	if stock == nil {
		return nil, fmt.Errorf("availability checker required")
	}
	return &service{repo: repo, products: products, locations: locations, stock: stock}, nil
}

func (s *service) GetActiveCart(ctx context.Context, userID uuid.UUID) (*View, error) {
	if userID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "user id required")
	}
	cart, err := s.repo.GetOrCreateActive(ctx, userID)
	if err != nil {
		return nil, err
	}
	return s.view(ctx, cart)
}

func (s *service) AddItem(ctx context.Context, userID uuid.UUID, input AddItemInput) (*View, error) {
	if userID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "user id required")
	}
	if input.ProductID == uuid.Nil || input.LocationID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "product_id and location_id are required")
	}
	if input.Quantity < 1 || input.Quantity > maxLineQuantity {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("quantity must be between 1 and %d", maxLineQuantity))
	}
	if _, err := s.products.FindProduct(ctx, input.ProductID); err != nil {
		return nil, err
	}
	if _, err := s.locations.FindLocation(ctx, input.LocationID); err != nil {
		return nil, err
	}

	cart, err := s.repo.GetOrCreateActive(ctx, userID)
	if err != nil {
		return nil, err
	}

	requested := input.Quantity
	for _, item := range cart.Items {
		if item.ProductID == input.ProductID && item.LocationID == input.LocationID {
			requested += item.Quantity
		}
	}
	if requested > maxLineQuantity {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("quantity must be between 1 and %d", maxLineQuantity))
	}
	if err := s.ensureAvailable(ctx, input.ProductID, input.LocationID, requested); err != nil {
		return nil, err
	}

	if _, err := s.repo.AddQuantity(ctx, cart.ID, input.ProductID, input.LocationID, input.Quantity); err != nil {
		return nil, err
	}
	return s.reload(ctx, userID)
}

func (s *service) UpdateItemQuantity(ctx context.Context, userID, itemID uuid.UUID, qty int) (*View, error) {
	if qty < 1 || qty > maxLineQuantity {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("quantity must be between 1 and %d", maxLineQuantity))
	}
	cart, err := s.repo.FindActiveByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	item, ok := findItem(cart, itemID)
	if !ok {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "cart item not found")
	}
	if err := s.ensureAvailable(ctx, item.ProductID, item.LocationID, qty); err != nil {
		return nil, err
	}
	if err := s.repo.SetQuantity(ctx, cart.ID, itemID, qty); err != nil {
		return nil, err
	}
	return s.reload(ctx, userID)
}

func (s *service) RemoveItem(ctx context.Context, userID, itemID uuid.UUID) (*View, error) {
	cart, err := s.repo.FindActiveByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if _, ok := findItem(cart, itemID); !ok {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "cart item not found")
	}
	if err := s.repo.RemoveItems(ctx, cart.ID, []uuid.UUID{itemID}); err != nil {
		return nil, err
	}
	return s.reload(ctx, userID)
}

func (s *service) ensureAvailable(ctx context.Context, productID, locationID uuid.UUID, qty int) error {
	avail, err := s.stock.IsAvailable(ctx, productID, locationID, qty)
	if err != nil {
		return err
	}
	if !avail.Available {
		return inventory.InsufficientStockError([]inventory.Shortage{{
			ProductID:  productID,
			LocationID: locationID,
			Requested:  qty,
			Available:  avail.Stock,
		}})
	}
	return nil
}

func (s *service) reload(ctx context.Context, userID uuid.UUID) (*View, error) {
	cart, err := s.repo.FindActiveByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	return s.view(ctx, cart)
}

func (s *service) view(ctx context.Context, cart *models.Cart) (*View, error) {
	ids := make([]uuid.UUID, 0, len(cart.Items))
	for _, item := range cart.Items {
		ids = append(ids, item.ProductID)
	}
	products, err := s.products.FindProducts(ctx, ids)
	if err != nil {
		return nil, err
	}

	out := &View{CartID: cart.ID, Items: make([]ItemView, 0, len(cart.Items))}
	for _, item := range cart.Items {
		line := ItemView{
			ID:         item.ID,
			ProductID:  item.ProductID,
			LocationID: item.LocationID,
			Quantity:   item.Quantity,
		}
		if product, ok := products[item.ProductID]; ok {
			line.ProductName = product.Name
			line.UnitPrice = product.Price
			line.LineTotal = product.Price * int64(item.Quantity)
			out.Subtotal += line.LineTotal
		} else {
			line.Unavailable = true
		}
		out.Items = append(out.Items, line)
	}
	return out, nil
}

func findItem(cart *models.Cart, itemID uuid.UUID) (models.CartItem, bool) {
	for _, item := range cart.Items {
		if item.ID == itemID {
			return item, true
		}
	}
	return models.CartItem{}, false
}
