package checkout

import (
	"context"
	"fmt"
	"io"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/voltride/ebike-backend/internal/cart"
	"github.com/voltride/ebike-backend/internal/catalog"
	"github.com/voltride/ebike-backend/internal/inventory"
	"github.com/voltride/ebike-backend/internal/orders"
	"github.com/voltride/ebike-backend/internal/payments"
	"github.com/voltride/ebike-backend/internal/shipping"
	"github.com/voltride/ebike-backend/pkg/db"
	"github.com/voltride/ebike-backend/pkg/db/models"
	"github.com/voltride/ebike-backend/pkg/enums"
	pkgerrors "github.com/voltride/ebike-backend/pkg/errors"
	"github.com/voltride/ebike-backend/pkg/logger"
	"github.com/voltride/ebike-backend/pkg/maps"
	"github.com/voltride/ebike-backend/pkg/outbox"
	"github.com/voltride/ebike-backend/pkg/types"
)

// optimisticLedger passes every pre-flight check so that reservation failures
// surface inside the group transactions.
type optimisticLedger struct {
	*inventory.Ledger
}

func (optimisticLedger) IsAvailable(context.Context, uuid.UUID, uuid.UUID, int) (inventory.Availability, error) {
	return inventory.Availability{Available: true}, nil
}

type stubGeocoder struct {
	calls  int
	result *maps.GeocodeResult
	err    error
}

func (g *stubGeocoder) Geocode(context.Context, string) (*maps.GeocodeResult, error) {
	g.calls++
	return g.result, g.err
}

type stubLinks struct {
	err     error
	created []uuid.UUID
}

func (s *stubLinks) CreatePaymentLink(_ context.Context, _ uuid.UUID, orderID uuid.UUID, _ payments.LinkOptions) (*payments.LinkResult, error) {
	if s.err != nil {
		return nil, s.err
	}
	s.created = append(s.created, orderID)
	return &payments.LinkResult{OrderID: orderID, CheckoutURL: "https://pay.payos.vn/web/" + orderID.String()}, nil
}

type fixture struct {
	conn     *gorm.DB
	userID   uuid.UUID
	cartID   uuid.UUID
	ledger   *inventory.Ledger
	geocoder *stubGeocoder
	links    *stubLinks
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	conn, err := gorm.Open(sqlite.Open(fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, conn.AutoMigrate(
		&models.Cart{}, &models.CartItem{}, &models.Product{}, &models.StoreLocation{},
		&models.InventoryRecord{}, &models.Order{}, &models.OrderLine{}, &models.Payment{},
		&models.OutboxEvent{}, &models.ShippingRateTier{},
	))
	f := &fixture{
		conn:     conn,
		userID:   uuid.New(),
		ledger:   inventory.NewLedger(conn),
		geocoder: &stubGeocoder{result: &maps.GeocodeResult{Location: types.Coordinates{Lat: 10.7626, Lng: 106.6602}}},
		links:    &stubLinks{},
	}
	record := &models.Cart{UserID: f.userID, Status: enums.CartStatusActive}
	require.NoError(t, conn.Create(record).Error)
	f.cartID = record.ID
	return f
}

func (f *fixture) service(t *testing.T, stock StockLedger, autoLinks bool) Service {
	t.Helper()
	logg := logger.New(logger.Options{ServiceName: "test", Output: io.Discard})
	txRunner := db.FromConn(f.conn)
	shippingSvc, err := shipping.NewService(shipping.NewRepository(f.conn), txRunner, shipping.FallbackRate{PerKm: 5000, RoundDistanceUp: true})
	require.NoError(t, err)
	if stock == nil {
		stock = f.ledger
	}
	seq := 0
	svc, err := NewService(ServiceParams{
		TxRunner:     txRunner,
		Carts:        cart.NewRepository(f.conn),
		Catalog:      catalog.NewRepository(f.conn),
		Stock:        stock,
		Shipping:     shippingSvc,
		Geocoder:     f.geocoder,
		Orders:       orders.NewRepository(f.conn),
		Payments:     payments.NewRepository(f.conn),
		Outbox:       outbox.NewService(outbox.NewRepository(f.conn), logg),
		PaymentLinks: f.links,
		Logger:       logg,
		OrderNumbers: func() string {
			seq++
			return fmt.Sprintf("ORD20261018%04d", seq)
		},
		AutoPaymentLinks: autoLinks,
	})
	require.NoError(t, err)
	return svc
}

func (f *fixture) location(t *testing.T, name string, lat, lng float64) uuid.UUID {
	t.Helper()
	loc := &models.StoreLocation{Name: name, Address: name, City: "Ho Chi Minh", Latitude: lat, Longitude: lng, IsActive: true}
	require.NoError(t, f.conn.Create(loc).Error)
	return loc.ID
}

func (f *fixture) product(t *testing.T, name string, price int64) uuid.UUID {
	t.Helper()
	p := &models.Product{Name: name, Price: price, OriginalPrice: price, IsActive: true}
	require.NoError(t, f.conn.Create(p).Error)
	return p.ID
}

func (f *fixture) stockAt(t *testing.T, productID, locationID uuid.UUID, stock int) {
	t.Helper()
	require.NoError(t, f.conn.Create(&models.InventoryRecord{ProductID: productID, LocationID: locationID, Stock: stock, MinStock: 1}).Error)
}

func (f *fixture) addToCart(t *testing.T, productID, locationID uuid.UUID, qty int) {
	t.Helper()
	require.NoError(t, f.conn.Create(&models.CartItem{CartID: f.cartID, ProductID: productID, LocationID: locationID, Quantity: qty}).Error)
}

func (f *fixture) currentStock(t *testing.T, productID, locationID uuid.UUID) int {
	t.Helper()
	var record models.InventoryRecord
	require.NoError(t, f.conn.First(&record, "product_id = ? AND location_id = ?", productID, locationID).Error)
	return record.Stock
}

func (f *fixture) count(t *testing.T, model any) int64 {
	t.Helper()
	var n int64
	require.NoError(t, f.conn.Model(model).Count(&n).Error)
	return n
}

func input(method enums.PaymentMethod) CheckoutInput {
	lat, lng := 10.7626, 106.6602
	return CheckoutInput{
		ShippingAddress: types.ShippingAddress{
			FullName: "Le Van C",
			Phone:    "0987654321",
			Address:  "45 Tran Hung Dao",
			City:     "Ho Chi Minh",
			Lat:      &lat,
			Lng:      &lng,
		},
		PaymentMethod: method,
	}
}

func TestExecuteCreatesOneOrderPerLocation(t *testing.T) {
	f := newFixture(t)
	district1 := f.location(t, "District 1", 10.7769, 106.7009)
	thuDuc := f.location(t, "Thu Duc", 10.8494, 106.7537)
	bike := f.product(t, "Trail 500", 12000000)
	helmet := f.product(t, "Helmet", 450000)
	f.stockAt(t, bike, district1, 3)
	f.stockAt(t, helmet, district1, 10)
	f.stockAt(t, helmet, thuDuc, 10)
	f.addToCart(t, bike, district1, 1)
	f.addToCart(t, helmet, district1, 2)
	f.addToCart(t, helmet, thuDuc, 1)

	res, err := f.service(t, nil, false).Execute(context.Background(), f.userID, input(enums.PaymentMethodCash))
	require.NoError(t, err)
	require.Len(t, res.Orders, 2)
	assert.Empty(t, res.Failures)
	assert.True(t, res.CartConverted)

	for _, o := range res.Orders {
		assert.Equal(t, enums.OrderStatusPending, o.Order.Status)
		assert.Equal(t, o.Shipping.MerchandiseTotal+o.Shipping.Fee, o.Order.FinalTotal)
		assert.Greater(t, o.Shipping.Fee, int64(0))
		if o.Order.LocationID == district1 {
			assert.Equal(t, int64(12900000), o.Shipping.MerchandiseTotal)
		}
	}

	assert.Equal(t, 2, f.currentStock(t, bike, district1))
	assert.Equal(t, 8, f.currentStock(t, helmet, district1))
	assert.Equal(t, 9, f.currentStock(t, helmet, thuDuc))
	assert.Equal(t, int64(0), f.count(t, &models.Payment{}))
	assert.Equal(t, int64(0), f.count(t, &models.CartItem{}))
	assert.Equal(t, int64(2), f.count(t, &models.OutboxEvent{}))
	assert.Zero(t, f.geocoder.calls)

	var record models.Cart
	require.NoError(t, f.conn.First(&record, "id = ?", f.cartID).Error)
	assert.Equal(t, enums.CartStatusConverted, record.Status)
}

func TestExecuteOnlineOrdersAwaitPaymentWithPendingPayment(t *testing.T) {
	f := newFixture(t)
	loc := f.location(t, "District 3", 10.7843, 106.6844)
	bike := f.product(t, "Folding 200", 8000000)
	f.stockAt(t, bike, loc, 2)
	f.addToCart(t, bike, loc, 1)

	res, err := f.service(t, nil, true).Execute(context.Background(), f.userID, input(enums.PaymentMethodPayOS))
	require.NoError(t, err)
	require.Len(t, res.Orders, 1)
	order := res.Orders[0]
	assert.Equal(t, enums.OrderStatusAwaitingPayment, order.Order.Status)
	require.NotNil(t, order.PaymentLink)
	assert.Equal(t, []uuid.UUID{order.Order.ID}, f.links.created)

	var payment models.Payment
	require.NoError(t, f.conn.First(&payment, "order_id = ?", order.Order.ID).Error)
	assert.Equal(t, enums.PaymentStatusPending, payment.Status)
	assert.Equal(t, order.Order.FinalTotal, payment.Amount)
}

func TestExecuteLinkFailureDoesNotRollBackOrder(t *testing.T) {
	f := newFixture(t)
	loc := f.location(t, "District 7", 10.7340, 106.7218)
	bike := f.product(t, "Cargo 700", 20000000)
	f.stockAt(t, bike, loc, 1)
	f.addToCart(t, bike, loc, 1)
	f.links.err = pkgerrors.New(pkgerrors.CodeDependency, "payos unavailable")

	res, err := f.service(t, nil, true).Execute(context.Background(), f.userID, input(enums.PaymentMethodPayOS))
	require.NoError(t, err)
	require.Len(t, res.Orders, 1)
	assert.Nil(t, res.Orders[0].PaymentLink)
	assert.Equal(t, "payos unavailable", res.Orders[0].PaymentLinkError)
	assert.Equal(t, int64(1), f.count(t, &models.Order{}))
}

func TestExecuteGroupRollsBackWhenALaterLineFails(t *testing.T) {
	f := newFixture(t)
	loc := f.location(t, "Binh Thanh", 10.8106, 106.7091)
	first := f.product(t, "Battery Pack", 3000000)
	second := f.product(t, "Charger", 800000)
	third := f.product(t, "Lock", 200000)
	f.stockAt(t, first, loc, 5)
	f.stockAt(t, second, loc, 0)
	f.stockAt(t, third, loc, 5)
	f.addToCart(t, first, loc, 1)
	f.addToCart(t, second, loc, 1)
	f.addToCart(t, third, loc, 1)

	svc := f.service(t, optimisticLedger{f.ledger}, false)
	_, err := svc.Execute(context.Background(), f.userID, input(enums.PaymentMethodCash))
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeInsufficientStock))
	shortages := inventory.ShortagesFrom(err)
	require.Len(t, shortages, 1)
	assert.Equal(t, second, shortages[0].ProductID)

	assert.Equal(t, 5, f.currentStock(t, first, loc))
	assert.Equal(t, 0, f.currentStock(t, second, loc))
	assert.Equal(t, 5, f.currentStock(t, third, loc))
	assert.Equal(t, int64(0), f.count(t, &models.Order{}))
	assert.Equal(t, int64(0), f.count(t, &models.OrderLine{}))
	assert.Equal(t, int64(0), f.count(t, &models.OutboxEvent{}))
	assert.Equal(t, int64(3), f.count(t, &models.CartItem{}))
}

func TestExecuteTwoLocationsPartialSuccess(t *testing.T) {
	f := newFixture(t)
	good := f.location(t, "Go Vap", 10.8387, 106.6653)
	bad := f.location(t, "Tan Binh", 10.8015, 106.6527)
	bike := f.product(t, "City 300", 9000000)
	f.stockAt(t, bike, good, 2)
	f.stockAt(t, bike, bad, 0)
	f.addToCart(t, bike, good, 1)
	f.addToCart(t, bike, bad, 1)

	res, err := f.service(t, optimisticLedger{f.ledger}, false).Execute(context.Background(), f.userID, input(enums.PaymentMethodPayOS))
	require.NoError(t, err)
	assert.True(t, res.PartialSuccess())
	require.Len(t, res.Orders, 1)
	require.Len(t, res.Failures, 1)
	assert.Equal(t, good, res.Orders[0].Order.LocationID)
	assert.Equal(t, bad, res.Failures[0].LocationID)
	assert.Equal(t, pkgerrors.CodeInsufficientStock, res.Failures[0].Code)
	require.Len(t, res.Failures[0].Shortages, 1)
	assert.False(t, res.CartConverted)

	assert.Equal(t, 1, f.currentStock(t, bike, good))
	assert.Equal(t, 0, f.currentStock(t, bike, bad))

	var remaining []models.CartItem
	require.NoError(t, f.conn.Find(&remaining, "cart_id = ?", f.cartID).Error)
	require.Len(t, remaining, 1)
	assert.Equal(t, bad, remaining[0].LocationID)

	var record models.Cart
	require.NoError(t, f.conn.First(&record, "id = ?", f.cartID).Error)
	assert.Equal(t, enums.CartStatusActive, record.Status)
	assert.Equal(t, int64(1), f.count(t, &models.Payment{}))
}

func TestExecutePreflightReportsEveryShortage(t *testing.T) {
	f := newFixture(t)
	a := f.location(t, "District 5", 10.7540, 106.6634)
	b := f.location(t, "District 10", 10.7746, 106.6679)
	bike := f.product(t, "Sport 900", 30000000)
	pump := f.product(t, "Pump", 150000)
	f.stockAt(t, bike, a, 1)
	f.stockAt(t, pump, b, 1)
	f.addToCart(t, bike, a, 2)
	f.addToCart(t, pump, b, 3)

	_, err := f.service(t, nil, false).Execute(context.Background(), f.userID, input(enums.PaymentMethodCash))
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeInsufficientStock))
	assert.Len(t, inventory.ShortagesFrom(err), 2)
	assert.Equal(t, int64(0), f.count(t, &models.Order{}))
	assert.Equal(t, 1, f.currentStock(t, bike, a))
	assert.Equal(t, 1, f.currentStock(t, pump, b))
}

func TestExecuteGeocodesAddressWithoutCoordinates(t *testing.T) {
	f := newFixture(t)
	loc := f.location(t, "Phu Nhuan", 10.7991, 106.6803)
	bike := f.product(t, "Kids 100", 4000000)
	f.stockAt(t, bike, loc, 1)
	f.addToCart(t, bike, loc, 1)

	in := input(enums.PaymentMethodCash)
	in.ShippingAddress.Lat, in.ShippingAddress.Lng = nil, nil

	f.geocoder.err = pkgerrors.New(pkgerrors.CodeValidation, "shipping address could not be located")
	_, err := f.service(t, nil, false).Execute(context.Background(), f.userID, in)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
	assert.Equal(t, int64(0), f.count(t, &models.Order{}))
	assert.Equal(t, 1, f.currentStock(t, bike, loc))

	f.geocoder.err = nil
	res, err := f.service(t, nil, false).Execute(context.Background(), f.userID, in)
	require.NoError(t, err)
	require.Len(t, res.Orders, 1)
	assert.Equal(t, 2, f.geocoder.calls)
	require.NotNil(t, res.Orders[0].Order.ShippingAddress.Lat)
	assert.InDelta(t, 10.7626, *res.Orders[0].Order.ShippingAddress.Lat, 1e-9)
}

func TestExecuteValidation(t *testing.T) {
	f := newFixture(t)
	svc := f.service(t, nil, false)

	_, err := svc.Execute(context.Background(), f.userID, input(enums.PaymentMethodCash))
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation), "empty cart")

	bad := input("card")
	_, err = svc.Execute(context.Background(), f.userID, bad)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation), "unknown method")

	noPhone := input(enums.PaymentMethodCash)
	noPhone.ShippingAddress.Phone = ""
	_, err = svc.Execute(context.Background(), f.userID, noPhone)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation), "missing phone")

	_, err = svc.Execute(context.Background(), uuid.New(), input(enums.PaymentMethodCash))
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation), "no cart at all")
}

func TestCombinedFailurePrefersNonStockError(t *testing.T) {
	err := combinedFailure([]GroupFailure{
		{Code: pkgerrors.CodeInsufficientStock},
		{Code: pkgerrors.CodeValidation, Message: "product is no longer available"},
	})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
	details, ok := pkgerrors.As(err).Details().(map[string]any)
	require.True(t, ok)
	assert.Len(t, details["failures"], 2)
}
