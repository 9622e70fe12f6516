package checkout

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/voltride/ebike-backend/internal/cart"
	"github.com/voltride/ebike-backend/internal/checkout/helpers"
	"github.com/voltride/ebike-backend/internal/inventory"
	"github.com/voltride/ebike-backend/internal/orders"
	"github.com/voltride/ebike-backend/internal/payments"
	"github.com/voltride/ebike-backend/internal/shipping"
	"github.com/voltride/ebike-backend/pkg/db/models"
	"github.com/voltride/ebike-backend/pkg/enums"
	pkgerrors "github.com/voltride/ebike-backend/pkg/errors"
	"github.com/voltride/ebike-backend/pkg/logger"
	"github.com/voltride/ebike-backend/pkg/maps"
	"github.com/voltride/ebike-backend/pkg/outbox"
	"github.com/voltride/ebike-backend/pkg/outbox/payloads"
	"github.com/voltride/ebike-backend/pkg/types"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type catalogReader interface {
	FindProducts(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]models.Product, error)
	FindLocation(ctx context.Context, id uuid.UUID) (*models.StoreLocation, error)
}

// StockLedger is the inventory surface checkout needs: a read-only check for
// the pre-flight and the conditional decrement inside each group transaction.
type StockLedger interface {
	IsAvailable(ctx context.Context, productID, locationID uuid.UUID, qty int) (inventory.Availability, error)
	Reserve(ctx context.Context, tx *gorm.DB, productID, locationID uuid.UUID, qty int) error
}

type feeQuoter interface {
	Quote(ctx context.Context, distanceKm float64) (shipping.Quote, error)
}

type geocoder interface {
	Geocode(ctx context.Context, address string) (*maps.GeocodeResult, error)
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

type linkCreator interface {
	CreatePaymentLink(ctx context.Context, userID, orderID uuid.UUID, opts payments.LinkOptions) (*payments.LinkResult, error)
}

type checkoutCounter interface {
	IncCheckout(outcome string)
}

// Service turns the active cart into one order per store location.
type Service interface {
	Execute(ctx context.Context, userID uuid.UUID, input CheckoutInput) (*Result, error)
}

// ServiceParams wires the checkout dependencies. Geocoder, PaymentLinks and
// Metrics are optional.
type ServiceParams struct {
	TxRunner     txRunner
	Carts        cart.Repository
	Catalog      catalogReader
	Stock        StockLedger
	Shipping     feeQuoter
	Geocoder     geocoder
	Orders       orders.Repository
	Payments     payments.Repository
	Outbox       outboxPublisher
	PaymentLinks linkCreator
	Metrics      checkoutCounter
	Logger       *logger.Logger
	OrderNumbers orders.NumberGenerator
	// AutoPaymentLinks creates gateway links for online orders once committed.
	AutoPaymentLinks bool
}

type service struct {
	tx        txRunner
	carts     cart.Repository
	catalog   catalogReader
	stock     StockLedger
	shipping  feeQuoter
	geocoder  geocoder
	orders    orders.Repository
	payments  payments.Repository
	outbox    outboxPublisher
	links     linkCreator
	metrics   checkoutCounter
	logg      *logger.Logger
	numbers   orders.NumberGenerator
	autoLinks bool
	now       func() time.Time
}

// NewService builds the checkout service.
func NewService(params ServiceParams) (Service, error) {
	if params.TxRunner == nil {
		return nil, fmt.Errorf("tx runner required")
	}
	if params.Carts == nil {
		return nil, fmt.Errorf("cart repository required")
	}
	if params.Catalog == nil {
		return nil, fmt.Errorf("catalog required")
	}
	if params.Stock == nil {
		return nil, fmt.Errorf("stock ledger required")
	}
	if params.Shipping == nil {
		return nil, fmt.Errorf("shipping quoter required")
	}
	if params.Orders == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	if params.Payments == nil {
		return nil, fmt.Errorf("payments repository required")
	}
	if params.Outbox == nil {
		return nil, fmt.Errorf("outbox publisher required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	numbers := params.OrderNumbers
	if numbers == nil {
		numbers = orders.NewNumberGenerator(nil, nil)
	}
	return &service{
		tx:        params.TxRunner,
		carts:     params.Carts,
		catalog:   params.Catalog,
		stock:     params.Stock,
		shipping:  params.Shipping,
		geocoder:  params.Geocoder,
		orders:    params.Orders,
		payments:  params.Payments,
		outbox:    params.Outbox,
		links:     params.PaymentLinks,
		metrics:   params.Metrics,
		logg:      params.Logger,
		numbers:   numbers,
		autoLinks: params.AutoPaymentLinks,
		now:       func() time.Time { return time.Now().UTC() },
	}, nil
}

func (s *service) Execute(ctx context.Context, userID uuid.UUID, input CheckoutInput) (*Result, error) {
	if userID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "user id required")
	}
	if err := validateInput(input); err != nil {
		return nil, err
	}
	ctx = s.logg.WithUserID(ctx, userID.String())

	record, err := s.carts.FindActiveByUser(ctx, userID)
	if err != nil {
		if pkgerrors.IsCode(err, pkgerrors.CodeNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "cart is empty")
		}
		return nil, err
	}
	if len(record.Items) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "cart is empty")
	}

	groups, locations, err := s.preflight(ctx, record.Items)
	if err != nil {
		s.count("rejected")
		return nil, err
	}

	destination, address, err := s.resolveDestination(ctx, input.ShippingAddress)
	if err != nil {
		s.count("rejected")
		return nil, err
	}

	result := &Result{Orders: make([]OrderResult, 0, len(groups))}
	var created []*models.Order
	for _, group := range groups {
		groupCtx := s.logg.WithField(ctx, "location_id", group.LocationID.String())
		order, breakdown, err := s.commitGroup(groupCtx, userID, record.ID, group, locations[group.LocationID], destination, address, input)
		if err != nil {
			s.logg.Warn(s.logg.WithField(groupCtx, "error", err.Error()), "checkout group rolled back")
			result.Failures = append(result.Failures, failureFor(group.LocationID, err))
			continue
		}
		created = append(created, order)
		result.Orders = append(result.Orders, OrderResult{Order: orders.ToDTO(*order), Shipping: breakdown})
	}

	if len(created) == 0 {
		s.count("failed")
		return nil, combinedFailure(result.Failures)
	}

	if len(result.Failures) == 0 {
		err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
			return s.carts.WithTx(tx).MarkConverted(ctx, record.ID, s.now())
		})
		if err != nil {
			s.logg.Error(ctx, "failed to mark cart converted", err)
		} else {
			result.CartConverted = true
		}
	}

	s.attachPaymentLinks(ctx, userID, created, result)

	outcome := "success"
	if result.PartialSuccess() {
		outcome = "partial"
	}
	s.count(outcome)
	s.logg.Info(s.logg.WithFields(ctx, map[string]any{
		"orders":   len(result.Orders),
		"failures": len(result.Failures),
	}), "checkout completed")
	return result, nil
}

// preflight runs every read-only check before anything is written.
func (s *service) preflight(ctx context.Context, items []models.CartItem) ([]helpers.LocationGroup, map[uuid.UUID]*models.StoreLocation, error) {
	products, err := s.catalog.FindProducts(ctx, helpers.ProductIDs(items))
	if err != nil {
		return nil, nil, err
	}
	lines, missing := helpers.PriceLines(items, products)
	if len(missing) > 0 {
		return nil, nil, pkgerrors.New(pkgerrors.CodeValidation, "cart contains unavailable products").
			WithDetails(map[string]any{"product_ids": missing})
	}

	groups := helpers.GroupByLocation(lines)
	locations := make(map[uuid.UUID]*models.StoreLocation, len(groups))
	for _, group := range groups {
		location, err := s.catalog.FindLocation(ctx, group.LocationID)
		if err != nil {
			if pkgerrors.IsCode(err, pkgerrors.CodeNotFound) {
				return nil, nil, pkgerrors.New(pkgerrors.CodeValidation, "store location is not available").
					WithDetails(map[string]any{"location_id": group.LocationID})
			}
			return nil, nil, err
		}
		locations[group.LocationID] = location
	}

	shortages, err := helpers.CollectShortages(ctx, s.stock, items)
	if err != nil {
		return nil, nil, err
	}
	if len(shortages) > 0 {
		return nil, nil, inventory.InsufficientStockError(shortages)
	}
	return groups, locations, nil
}

func (s *service) resolveDestination(ctx context.Context, address types.ShippingAddress) (types.Coordinates, types.ShippingAddress, error) {
	if coords, ok := address.Coordinates(); ok {
		return coords, address, nil
	}
	if s.geocoder == nil {
		return types.Coordinates{}, address, pkgerrors.New(pkgerrors.CodeDependency, "geocoder not configured")
	}
	res, err := s.geocoder.Geocode(ctx, address.GeocodeQuery())
	if err != nil {
		return types.Coordinates{}, address, err
	}
	lat, lng := res.Location.Lat, res.Location.Lng
	address.Lat = &lat
	address.Lng = &lng
	return res.Location, address, nil
}

// commitGroup writes one location group atomically: the order, its lines, every
// stock reservation, the payment row and the outbox event commit together or not at all.
func (s *service) commitGroup(
	ctx context.Context,
	userID, cartID uuid.UUID,
	group helpers.LocationGroup,
	location *models.StoreLocation,
	destination types.Coordinates,
	address types.ShippingAddress,
	input CheckoutInput,
) (*models.Order, ShippingBreakdown, error) {
	distance := shipping.DistanceKm(location.Coordinates(), destination)
	quote, err := s.shipping.Quote(ctx, distance)
	if err != nil {
		return nil, ShippingBreakdown{}, err
	}

	var order *models.Order
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		lines, merchandise, err := s.repriceLines(ctx, group)
		if err != nil {
			return err
		}

		order = &models.Order{
			UserID:           userID,
			LocationID:       group.LocationID,
			ShippingAddress:  address,
			PaymentMethod:    input.PaymentMethod,
			Status:           orders.InitialStatus(input.PaymentMethod),
			MerchandiseTotal: merchandise,
			ShippingFee:      quote.Fee,
			DistanceKm:       shipping.RoundKm(distance),
			Notes:            trimmedNotes(input.Notes),
		}
		if err := s.orders.WithTx(tx).Create(ctx, order, lines, s.numbers); err != nil {
			return err
		}

		for _, line := range order.Lines {
			if err := s.stock.Reserve(ctx, tx, line.ProductID, group.LocationID, line.Quantity); err != nil {
				return err
			}
		}

		if input.PaymentMethod.IsOnline() {
			payment := &models.Payment{
				OrderID: order.ID,
				UserID:  userID,
				Amount:  order.FinalTotal,
				Method:  input.PaymentMethod,
				Status:  enums.PaymentStatusPending,
			}
			if err := s.payments.WithTx(tx).Create(ctx, payment); err != nil {
				return err
			}
		}

		if err := s.carts.WithTx(tx).RemoveItems(ctx, cartID, group.CartItemIDs()); err != nil {
			return err
		}

		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventOrderCreated,
			AggregateType: enums.AggregateOrder,
			AggregateID:   order.ID,
			Actor:         &outbox.ActorRef{UserID: userID, Role: string(enums.UserRoleCustomer)},
			Data: payloads.OrderCreatedEvent{
				OrderID:       order.ID,
				OrderNumber:   order.OrderNumber,
				UserID:        userID,
				LocationID:    group.LocationID,
				PaymentMethod: order.PaymentMethod,
				Status:        order.Status,
				ShippingFee:   order.ShippingFee,
				FinalTotal:    order.FinalTotal,
			},
		})
	})
	if err != nil {
		return nil, ShippingBreakdown{}, err
	}

	return order, ShippingBreakdown{
		DistanceKm:       order.DistanceKm,
		Fee:              quote.Fee,
		Segments:         quote.Segments,
		MerchandiseTotal: order.MerchandiseTotal,
		FinalTotal:       order.FinalTotal,
	}, nil
}

// repriceLines snapshots the live catalog price of every line in the group.
func (s *service) repriceLines(ctx context.Context, group helpers.LocationGroup) ([]models.OrderLine, int64, error) {
	ids := make([]uuid.UUID, 0, len(group.Lines))
	for _, l := range group.Lines {
		ids = append(ids, l.ProductID)
	}
	products, err := s.catalog.FindProducts(ctx, ids)
	if err != nil {
		return nil, 0, err
	}

	lines := make([]models.OrderLine, 0, len(group.Lines))
	var merchandise int64
	for _, l := range group.Lines {
		product, ok := products[l.ProductID]
		if !ok {
			return nil, 0, pkgerrors.New(pkgerrors.CodeValidation, "product is no longer available").
				WithDetails(map[string]any{"product_id": l.ProductID})
		}
		lines = append(lines, models.OrderLine{
			ProductID:     l.ProductID,
			ProductName:   product.Name,
			Quantity:      l.Quantity,
			UnitPrice:     product.Price,
			OriginalPrice: product.OriginalPrice,
		})
		merchandise += product.Price * int64(l.Quantity)
	}
	return lines, merchandise, nil
}

func (s *service) attachPaymentLinks(ctx context.Context, userID uuid.UUID, created []*models.Order, result *Result) {
	if !s.autoLinks || s.links == nil {
		return
	}
	for i, order := range created {
		if !order.PaymentMethod.IsOnline() {
			continue
		}
		link, err := s.links.CreatePaymentLink(ctx, userID, order.ID, payments.LinkOptions{})
		if err != nil {
			s.logg.Warn(s.logg.WithFields(s.logg.WithOrderID(ctx, order.ID.String()), map[string]any{"error": err.Error()}), "payment link creation failed after checkout")
			result.Orders[i].PaymentLinkError = pkgerrors.PublicMessage(err)
			continue
		}
		result.Orders[i].PaymentLink = link
	}
}

func (s *service) count(outcome string) {
	if s.metrics != nil {
		s.metrics.IncCheckout(outcome)
	}
}

func validateInput(input CheckoutInput) error {
	if !input.PaymentMethod.IsValid() {
		return pkgerrors.New(pkgerrors.CodeValidation, "unsupported payment method").
			WithDetails(map[string]any{"payment_method": input.PaymentMethod})
	}
	addr := input.ShippingAddress
	missing := make([]string, 0, 4)
	if strings.TrimSpace(addr.FullName) == "" {
		missing = append(missing, "full_name")
	}
	if strings.TrimSpace(addr.Phone) == "" {
		missing = append(missing, "phone")
	}
	if strings.TrimSpace(addr.Address) == "" {
		missing = append(missing, "address")
	}
	if strings.TrimSpace(addr.City) == "" {
		missing = append(missing, "city")
	}
	if len(missing) > 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "shipping address incomplete").
			WithDetails(map[string]any{"missing": missing})
	}
	if (addr.Lat == nil) != (addr.Lng == nil) {
		return pkgerrors.New(pkgerrors.CodeValidation, "lat and lng must be supplied together")
	}
	return nil
}

func failureFor(locationID uuid.UUID, err error) GroupFailure {
	failure := GroupFailure{LocationID: locationID, Code: pkgerrors.CodeInternal, Message: pkgerrors.PublicMessage(err)}
	if typed := pkgerrors.As(err); typed != nil {
		failure.Code = typed.Code()
	}
	failure.Shortages = inventory.ShortagesFrom(err)
	return failure
}

// combinedFailure is returned when no group committed. Stock failures are merged
// so the buyer sees every shortage at once.
func combinedFailure(failures []GroupFailure) error {
	var shortages []inventory.Shortage
	for _, f := range failures {
		if f.Code != pkgerrors.CodeInsufficientStock {
			return pkgerrors.New(f.Code, f.Message).WithDetails(map[string]any{"failures": failures})
		}
		shortages = append(shortages, f.Shortages...)
	}
	return inventory.InsufficientStockError(shortages)
}

func trimmedNotes(notes *string) *string {
	if notes == nil {
		return nil
	}
	v := strings.TrimSpace(*notes)
	if v == "" {
		return nil
	}
	return &v
}
