package payments

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/voltride/ebike-backend/internal/inventory"
	"github.com/voltride/ebike-backend/internal/orders"
	"github.com/voltride/ebike-backend/pkg/db"
	"github.com/voltride/ebike-backend/pkg/db/models"
	"github.com/voltride/ebike-backend/pkg/enums"
	pkgerrors "github.com/voltride/ebike-backend/pkg/errors"
	"github.com/voltride/ebike-backend/pkg/logger"
	"github.com/voltride/ebike-backend/pkg/outbox"
	"github.com/voltride/ebike-backend/pkg/payos"
	"github.com/voltride/ebike-backend/pkg/types"
)

type stubGateway struct {
	createErrs []error
	requests   []payos.CreatePaymentLinkRequest
	info       *payos.PaymentLinkInfo
	cancelErr  error
	cancelled  []int64
}

func (g *stubGateway) CreatePaymentLink(_ context.Context, req payos.CreatePaymentLinkRequest) (*payos.PaymentLink, error) {
	g.requests = append(g.requests, req)
	if len(g.createErrs) > 0 {
		err := g.createErrs[0]
		g.createErrs = g.createErrs[1:]
		if err != nil {
			return nil, err
		}
	}
	return &payos.PaymentLink{
		OrderCode:     req.OrderCode,
		Amount:        req.Amount,
		PaymentLinkID: fmt.Sprintf("link-%d", len(g.requests)),
		CheckoutURL:   fmt.Sprintf("https://pay.payos.vn/web/link-%d", len(g.requests)),
		QRCode:        "000201010212",
		Status:        payos.LinkStatusPending,
		Raw:           json.RawMessage(`{"status":"PENDING"}`),
	}, nil
}

func (g *stubGateway) GetPaymentLinkInfo(_ context.Context, code int64) (*payos.PaymentLinkInfo, error) {
	if g.info != nil {
		return g.info, nil
	}
	return &payos.PaymentLinkInfo{OrderCode: code, Status: payos.LinkStatusPending}, nil
}

func (g *stubGateway) CancelPaymentLink(_ context.Context, code int64, reason string) (*payos.PaymentLinkInfo, error) {
	if g.cancelErr != nil {
		return nil, g.cancelErr
	}
	g.cancelled = append(g.cancelled, code)
	return &payos.PaymentLinkInfo{OrderCode: code, Status: payos.LinkStatusCancelled, CancellationReason: &reason}, nil
}

type fixture struct {
	conn     *gorm.DB
	svc      Service
	repo     Repository
	gateway  *stubGateway
	userID   uuid.UUID
	location uuid.UUID
	product  uuid.UUID
	seq      int
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	conn, err := gorm.Open(sqlite.Open(fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, conn.AutoMigrate(&models.Order{}, &models.OrderLine{}, &models.Payment{}, &models.InventoryRecord{}, &models.OutboxEvent{}))

	f := &fixture{
		conn:     conn,
		repo:     NewRepository(conn),
		gateway:  &stubGateway{},
		userID:   uuid.New(),
		location: uuid.New(),
		product:  uuid.New(),
	}
	require.NoError(t, conn.Create(&models.InventoryRecord{ProductID: f.product, LocationID: f.location, Stock: 1, MinStock: 1}).Error)

	logg := logger.New(logger.Options{ServiceName: "test", Output: io.Discard})
	publisher := outbox.NewService(outbox.NewRepository(conn), logg)
	txRunner := db.FromConn(conn)
	ordersRepo := orders.NewRepository(conn)
	lifecycle, err := orders.NewService(ordersRepo, txRunner, publisher, inventory.NewLedger(conn), f.repo, SessionCloser{Gateway: f.gateway}, logg)
	require.NoError(t, err)

	svc, err := NewService(f.repo, ordersRepo, lifecycle, f.gateway, txRunner, publisher, logg, Options{
		MinAmount: 1000,
		ReturnURL: "https://shop.voltride.vn/checkout/result",
		CancelURL: "https://shop.voltride.vn/checkout/result",
	})
	require.NoError(t, err)
	f.svc = svc
	return f
}

func (f *fixture) createOrder(t *testing.T, method enums.PaymentMethod, status enums.OrderStatus) *models.Order {
	t.Helper()
	f.seq++
	order := &models.Order{
		UserID:           f.userID,
		LocationID:       f.location,
		ShippingAddress:  types.ShippingAddress{FullName: "Tran Thi B", Phone: "0912345678", Address: "12 Nguyen Hue", City: "Ho Chi Minh"},
		PaymentMethod:    method,
		Status:           status,
		MerchandiseTotal: 300000,
		ShippingFee:      20000,
	}
	lines := []models.OrderLine{{ProductID: f.product, ProductName: "Urban Cruiser", Quantity: 2, UnitPrice: 150000}}
	number := fmt.Sprintf("ORD20261018%04d", f.seq)
	err := f.conn.Transaction(func(tx *gorm.DB) error {
		return orders.NewRepository(tx).Create(context.Background(), order, lines, func() string { return number })
	})
	require.NoError(t, err)
	return order
}

func (f *fixture) createPayment(t *testing.T, order *models.Order, status enums.PaymentStatus, code int64) *models.Payment {
	t.Helper()
	payment := &models.Payment{
		OrderID: order.ID,
		UserID:  order.UserID,
		Amount:  order.FinalTotal,
		Method:  order.PaymentMethod,
		Status:  status,
	}
	if code > 0 {
		payment.GatewayOrderCode = &code
	}
	require.NoError(t, f.repo.Create(context.Background(), payment))
	return payment
}

func (f *fixture) reload(t *testing.T, payment *models.Payment) (*models.Payment, *models.Order) {
	t.Helper()
	var p models.Payment
	require.NoError(t, f.conn.First(&p, "id = ?", payment.ID).Error)
	var o models.Order
	require.NoError(t, f.conn.First(&o, "id = ?", payment.OrderID).Error)
	return &p, &o
}

func (f *fixture) outboxCount(t *testing.T, eventType enums.OutboxEventType) int64 {
	t.Helper()
	var n int64
	require.NoError(t, f.conn.Model(&models.OutboxEvent{}).Where("event_type = ?", eventType).Count(&n).Error)
	return n
}

func (f *fixture) stock(t *testing.T) int {
	t.Helper()
	var record models.InventoryRecord
	require.NoError(t, f.conn.First(&record, "product_id = ? AND location_id = ?", f.product, f.location).Error)
	return record.Stock
}

func TestRepeatedPaidNotificationAppliesOnce(t *testing.T) {
	f := newFixture(t)
	order := f.createOrder(t, enums.PaymentMethodPayOS, enums.OrderStatusAwaitingPayment)
	payment := f.createPayment(t, order, enums.PaymentStatusProcessing, 123456789001)

	paid := Paid{At: time.Date(2026, 10, 18, 3, 0, 0, 0, time.UTC), Amount: payment.Amount, Reference: "FT2629100"}
	outcomes := make([]Outcome, 0, 5)
	for i := 0; i < 5; i++ {
		outcome, err := f.svc.ApplyGatewayStatus(context.Background(), payment.ID, paid, json.RawMessage(`{"code":"00"}`))
		require.NoError(t, err)
		outcomes = append(outcomes, outcome)
	}

	assert.Equal(t, []Outcome{OutcomeApplied, OutcomeDuplicate, OutcomeDuplicate, OutcomeDuplicate, OutcomeDuplicate}, outcomes)
	stored, storedOrder := f.reload(t, payment)
	assert.Equal(t, enums.PaymentStatusCompleted, stored.Status)
	require.NotNil(t, stored.CompletedAt)
	assert.True(t, stored.CompletedAt.Equal(paid.At))
	assert.Equal(t, enums.OrderStatusPending, storedOrder.Status)
	assert.Equal(t, int64(1), f.outboxCount(t, enums.EventPaymentCompleted))
	assert.Equal(t, int64(1), f.outboxCount(t, enums.EventOrderStatusChanged))
}

func TestCompletedPaymentIgnoresLaterFailures(t *testing.T) {
	f := newFixture(t)
	order := f.createOrder(t, enums.PaymentMethodPayOS, enums.OrderStatusAwaitingPayment)
	payment := f.createPayment(t, order, enums.PaymentStatusProcessing, 123456789002)

	_, err := f.svc.ApplyGatewayStatus(context.Background(), payment.ID, Paid{Amount: payment.Amount}, nil)
	require.NoError(t, err)

	for _, status := range []EventStatus{Cancelled{Reason: "late"}, Expired{}, Failed{Code: "99"}, Unknown{Raw: "PROCESSING"}} {
		outcome, err := f.svc.ApplyGatewayStatus(context.Background(), payment.ID, status, nil)
		require.NoError(t, err)
		assert.NotEqual(t, OutcomeApplied, outcome, status.Name())
	}

	stored, storedOrder := f.reload(t, payment)
	assert.Equal(t, enums.PaymentStatusCompleted, stored.Status)
	assert.Equal(t, enums.OrderStatusPending, storedOrder.Status)
}

func TestPaidAfterGatewayCancelStillCompletes(t *testing.T) {
	f := newFixture(t)
	order := f.createOrder(t, enums.PaymentMethodPayOS, enums.OrderStatusAwaitingPayment)
	payment := f.createPayment(t, order, enums.PaymentStatusProcessing, 123456789003)

	outcome, err := f.svc.ApplyGatewayStatus(context.Background(), payment.ID, Cancelled{Reason: "buyer closed tab"}, nil)
	require.NoError(t, err)
	assert.Equal(t, OutcomeApplied, outcome)
	stored, storedOrder := f.reload(t, payment)
	assert.Equal(t, enums.PaymentStatusCancelled, stored.Status)
	assert.Equal(t, enums.OrderStatusAwaitingPayment, storedOrder.Status)

	outcome, err = f.svc.ApplyGatewayStatus(context.Background(), payment.ID, Paid{Amount: payment.Amount}, nil)
	require.NoError(t, err)
	assert.Equal(t, OutcomeApplied, outcome)
	stored, storedOrder = f.reload(t, payment)
	assert.Equal(t, enums.PaymentStatusCompleted, stored.Status)
	assert.Equal(t, enums.OrderStatusPending, storedOrder.Status)
}

func TestUnderpaidNotificationLeavesPaymentOpen(t *testing.T) {
	f := newFixture(t)
	order := f.createOrder(t, enums.PaymentMethodPayOS, enums.OrderStatusAwaitingPayment)
	payment := f.createPayment(t, order, enums.PaymentStatusProcessing, 123456789004)

	outcome, err := f.svc.ApplyGatewayStatus(context.Background(), payment.ID, Paid{Amount: payment.Amount - 1000}, nil)
	require.NoError(t, err)
	assert.Equal(t, OutcomeIgnored, outcome)

	stored, storedOrder := f.reload(t, payment)
	assert.Equal(t, enums.PaymentStatusProcessing, stored.Status)
	assert.Equal(t, enums.OrderStatusAwaitingPayment, storedOrder.Status)
}

func TestCreatePaymentLinkStoresLinkAndReusesIt(t *testing.T) {
	f := newFixture(t)
	order := f.createOrder(t, enums.PaymentMethodPayOS, enums.OrderStatusAwaitingPayment)

	first, err := f.svc.CreatePaymentLink(context.Background(), f.userID, order.ID, LinkOptions{})
	require.NoError(t, err)
	assert.False(t, first.Reused)
	assert.Equal(t, enums.PaymentStatusProcessing, first.Status)
	assert.Equal(t, order.FinalTotal, first.Amount)
	assert.NotZero(t, first.OrderCode)
	assert.Equal(t, "https://pay.payos.vn/web/link-1", first.CheckoutURL)

	require.Len(t, f.gateway.requests, 1)
	req := f.gateway.requests[0]
	assert.Equal(t, "Don "+order.OrderNumber, req.Description)
	assert.Equal(t, order.FinalTotal, req.Amount)
	require.Len(t, req.Items, 1)
	returnURL, err := url.Parse(req.ReturnURL)
	require.NoError(t, err)
	assert.Equal(t, order.ID.String(), returnURL.Query().Get("orderId"))
	assert.Equal(t, "success", returnURL.Query().Get("status"))

	again, err := f.svc.CreatePaymentLink(context.Background(), f.userID, order.ID, LinkOptions{})
	require.NoError(t, err)
	assert.True(t, again.Reused)
	assert.Equal(t, first.OrderCode, again.OrderCode)
	assert.Len(t, f.gateway.requests, 1)

	_, err = f.svc.CreatePaymentLink(context.Background(), f.userID, order.ID, LinkOptions{ForceNew: true})
	require.NoError(t, err)
	assert.Len(t, f.gateway.requests, 2)

	stored, storedOrder := f.reload(t, &models.Payment{ID: first.PaymentID, OrderID: order.ID})
	assert.Equal(t, enums.PaymentStatusProcessing, stored.Status)
	assert.Equal(t, enums.OrderStatusAwaitingPayment, storedOrder.Status)
}

func TestCreatePaymentLinkRegeneratesDuplicateOrderCode(t *testing.T) {
	f := newFixture(t)
	order := f.createOrder(t, enums.PaymentMethodPayOS, enums.OrderStatusAwaitingPayment)
	f.gateway.createErrs = []error{
		pkgerrors.New(pkgerrors.CodeDependency, "payos rejected request").
			WithDetails(map[string]any{"gateway_code": "231", "gateway_message": "order code exists"}),
	}

	res, err := f.svc.CreatePaymentLink(context.Background(), f.userID, order.ID, LinkOptions{})
	require.NoError(t, err)
	require.Len(t, f.gateway.requests, 2)
	assert.Equal(t, f.gateway.requests[1].OrderCode, res.OrderCode)
}

func TestCreatePaymentLinkRejections(t *testing.T) {
	f := newFixture(t)

	cash := f.createOrder(t, enums.PaymentMethodCash, enums.OrderStatusPending)
	_, err := f.svc.CreatePaymentLink(context.Background(), f.userID, cash.ID, LinkOptions{})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	cancelled := f.createOrder(t, enums.PaymentMethodPayOS, enums.OrderStatusCancelled)
	_, err = f.svc.CreatePaymentLink(context.Background(), f.userID, cancelled.ID, LinkOptions{})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeConflict))

	other := f.createOrder(t, enums.PaymentMethodPayOS, enums.OrderStatusAwaitingPayment)
	_, err = f.svc.CreatePaymentLink(context.Background(), uuid.New(), other.ID, LinkOptions{})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))

	assert.Empty(t, f.gateway.requests)
}

func TestVerifyPaymentAppliesPolledStatus(t *testing.T) {
	f := newFixture(t)
	order := f.createOrder(t, enums.PaymentMethodPayOS, enums.OrderStatusAwaitingPayment)
	payment := f.createPayment(t, order, enums.PaymentStatusProcessing, 123456789005)
	f.gateway.info = &payos.PaymentLinkInfo{
		OrderCode:  123456789005,
		Amount:     payment.Amount,
		AmountPaid: payment.Amount,
		Status:     payos.LinkStatusPaid,
		Transactions: []payos.Transaction{{
			Reference:           "FT2629101",
			Amount:              payment.Amount,
			TransactionDateTime: "2026-10-18 10:15:00",
		}},
	}

	dto, err := f.svc.VerifyPayment(context.Background(), f.userID, order.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.PaymentStatusCompleted, dto.Status)
	require.NotNil(t, dto.CompletedAt)
	assert.True(t, dto.CompletedAt.Equal(time.Date(2026, 10, 18, 3, 15, 0, 0, time.UTC)))
}

func TestCancelPaymentLinkCancelsAtGateway(t *testing.T) {
	f := newFixture(t)
	order := f.createOrder(t, enums.PaymentMethodPayOS, enums.OrderStatusAwaitingPayment)
	f.createPayment(t, order, enums.PaymentStatusProcessing, 123456789006)

	dto, err := f.svc.CancelPaymentLink(context.Background(), f.userID, order.ID, "")
	require.NoError(t, err)
	assert.Equal(t, enums.PaymentStatusCancelled, dto.Status)
	assert.Equal(t, []int64{123456789006}, f.gateway.cancelled)
	assert.Equal(t, int64(1), f.outboxCount(t, enums.EventPaymentCancelled))

	_, err = f.svc.CancelPaymentLink(context.Background(), f.userID, order.ID, "")
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeConflict))
}

func TestExpireCancelsStalePaymentAndRestoresStock(t *testing.T) {
	f := newFixture(t)
	order := f.createOrder(t, enums.PaymentMethodPayOS, enums.OrderStatusAwaitingPayment)
	payment := f.createPayment(t, order, enums.PaymentStatusProcessing, 123456789007)

	result, err := f.svc.Expire(context.Background(), payment.ID, "")
	require.NoError(t, err)
	assert.True(t, result.PaymentCancelled)
	assert.True(t, result.OrderCancelled)

	stored, storedOrder := f.reload(t, payment)
	assert.Equal(t, enums.PaymentStatusCancelled, stored.Status)
	assert.Equal(t, enums.OrderStatusCancelled, storedOrder.Status)
	assert.Equal(t, 3, f.stock(t))
	assert.Equal(t, int64(1), f.outboxCount(t, enums.EventPaymentExpired))
	assert.Equal(t, []int64{123456789007}, f.gateway.cancelled)

	again, err := f.svc.Expire(context.Background(), payment.ID, "")
	require.NoError(t, err)
	assert.Equal(t, ExpiryResult{}, again)
	assert.Equal(t, 3, f.stock(t))
	assert.Len(t, f.gateway.cancelled, 1)
}

func TestExpireKeepsLocalCancelWhenGatewayCloseFails(t *testing.T) {
	f := newFixture(t)
	order := f.createOrder(t, enums.PaymentMethodPayOS, enums.OrderStatusAwaitingPayment)
	payment := f.createPayment(t, order, enums.PaymentStatusProcessing, 123456789011)
	f.gateway.cancelErr = pkgerrors.New(pkgerrors.CodeDependency, "payos request failed")

	result, err := f.svc.Expire(context.Background(), payment.ID, "")
	require.NoError(t, err)
	assert.True(t, result.PaymentCancelled)
	assert.True(t, result.OrderCancelled)

	stored, storedOrder := f.reload(t, payment)
	assert.Equal(t, enums.PaymentStatusCancelled, stored.Status)
	assert.Equal(t, enums.OrderStatusCancelled, storedOrder.Status)
}

func TestExpireLeavesCompletedPaymentUntouched(t *testing.T) {
	f := newFixture(t)
	order := f.createOrder(t, enums.PaymentMethodPayOS, enums.OrderStatusAwaitingPayment)
	payment := f.createPayment(t, order, enums.PaymentStatusProcessing, 123456789008)
	_, err := f.svc.ApplyGatewayStatus(context.Background(), payment.ID, Paid{Amount: payment.Amount}, nil)
	require.NoError(t, err)

	result, err := f.svc.Expire(context.Background(), payment.ID, "")
	require.NoError(t, err)
	assert.Equal(t, ExpiryResult{}, result)

	stored, storedOrder := f.reload(t, payment)
	assert.Equal(t, enums.PaymentStatusCompleted, stored.Status)
	assert.Equal(t, enums.OrderStatusPending, storedOrder.Status)
	assert.Equal(t, 1, f.stock(t))
}

func TestExpireClosesOrderAfterGatewayCancel(t *testing.T) {
	f := newFixture(t)
	order := f.createOrder(t, enums.PaymentMethodPayOS, enums.OrderStatusAwaitingPayment)
	payment := f.createPayment(t, order, enums.PaymentStatusCancelled, 123456789009)

	result, err := f.svc.Expire(context.Background(), payment.ID, "")
	require.NoError(t, err)
	assert.False(t, result.PaymentCancelled)
	assert.True(t, result.OrderCancelled)
	assert.Equal(t, 3, f.stock(t))
	assert.Empty(t, f.gateway.cancelled)
}

func TestLocateFallsBackToOrderNumber(t *testing.T) {
	f := newFixture(t)
	order := f.createOrder(t, enums.PaymentMethodPayOS, enums.OrderStatusAwaitingPayment)
	payment := f.createPayment(t, order, enums.PaymentStatusProcessing, 123456789010)

	found, err := f.svc.Locate(context.Background(), 123456789010, "")
	require.NoError(t, err)
	assert.Equal(t, payment.ID, found.ID)

	found, err = f.svc.Locate(context.Background(), 999, order.OrderNumber)
	require.NoError(t, err)
	assert.Equal(t, payment.ID, found.ID)

	_, err = f.svc.Locate(context.Background(), 999, "")
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))
}

func TestForceNewLinkCancelsPreviousLink(t *testing.T) {
	f := newFixture(t)
	order := f.createOrder(t, enums.PaymentMethodPayOS, enums.OrderStatusAwaitingPayment)
	ctx := context.Background()

	first, err := f.svc.CreatePaymentLink(ctx, f.userID, order.ID, LinkOptions{})
	require.NoError(t, err)
	second, err := f.svc.CreatePaymentLink(ctx, f.userID, order.ID, LinkOptions{ForceNew: true})
	require.NoError(t, err)

	assert.Equal(t, []int64{first.OrderCode}, f.gateway.cancelled)
	assert.Len(t, f.gateway.requests, 2)
	found, err := f.svc.Locate(ctx, second.OrderCode, "")
	require.NoError(t, err)
	assert.Equal(t, first.PaymentID, found.ID)
	assert.Equal(t, second.OrderCode, *found.GatewayOrderCode)
}

func TestForceNewLinkKeepsCurrentLinkWhenGatewayCancelFails(t *testing.T) {
	f := newFixture(t)
	order := f.createOrder(t, enums.PaymentMethodPayOS, enums.OrderStatusAwaitingPayment)
	ctx := context.Background()

	first, err := f.svc.CreatePaymentLink(ctx, f.userID, order.ID, LinkOptions{})
	require.NoError(t, err)
	f.gateway.cancelErr = pkgerrors.New(pkgerrors.CodeDependency, "payos request failed")

	_, err = f.svc.CreatePaymentLink(ctx, f.userID, order.ID, LinkOptions{ForceNew: true})
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeDependency))
	assert.Len(t, f.gateway.requests, 1)

	found, err := f.svc.Locate(ctx, first.OrderCode, "FT26101812345")
	require.NoError(t, err)
	assert.Equal(t, first.PaymentID, found.ID)
}

func TestForceNewLinkOnPaidLinkCompletesPayment(t *testing.T) {
	f := newFixture(t)
	order := f.createOrder(t, enums.PaymentMethodPayOS, enums.OrderStatusAwaitingPayment)
	ctx := context.Background()

	first, err := f.svc.CreatePaymentLink(ctx, f.userID, order.ID, LinkOptions{})
	require.NoError(t, err)
	f.gateway.info = &payos.PaymentLinkInfo{
		OrderCode:  first.OrderCode,
		Amount:     first.Amount,
		AmountPaid: first.Amount,
		Status:     payos.LinkStatusPaid,
		Transactions: []payos.Transaction{{
			Reference:           "FT26101812345",
			Amount:              first.Amount,
			TransactionDateTime: "2026-10-18 09:00:00",
		}},
	}

	_, err = f.svc.CreatePaymentLink(ctx, f.userID, order.ID, LinkOptions{ForceNew: true})
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeConflict))
	assert.Len(t, f.gateway.requests, 1)
	assert.Empty(t, f.gateway.cancelled)

	stored, storedOrder := f.reload(t, &models.Payment{ID: first.PaymentID, OrderID: order.ID})
	assert.Equal(t, enums.PaymentStatusCompleted, stored.Status)
	assert.Equal(t, first.OrderCode, *stored.GatewayOrderCode)
	assert.Equal(t, enums.OrderStatusPending, storedOrder.Status)
}

func TestConcurrentPaidNotificationsApplyOnce(t *testing.T) {
	f := newFixture(t)
	sqlDB, err := f.conn.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	order := f.createOrder(t, enums.PaymentMethodPayOS, enums.OrderStatusAwaitingPayment)
	payment := f.createPayment(t, order, enums.PaymentStatusProcessing, 123456789012)
	paid := Paid{At: time.Date(2026, 10, 18, 4, 0, 0, 0, time.UTC), Amount: payment.Amount, Reference: "FT2629102"}

	const deliveries = 16
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		outcomes = map[Outcome]int{}
	)
	for i := 0; i < deliveries; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			outcome, err := f.svc.ApplyGatewayStatus(context.Background(), payment.ID, paid, json.RawMessage(`{"code":"00"}`))
			if err != nil {
				t.Errorf("unexpected apply error: %v", err)
				return
			}
			mu.Lock()
			outcomes[outcome]++
			mu.Unlock()
		}()
	}
	wg.Wait()

	assert.Equal(t, map[Outcome]int{OutcomeApplied: 1, OutcomeDuplicate: deliveries - 1}, outcomes)
	stored, storedOrder := f.reload(t, payment)
	assert.Equal(t, enums.PaymentStatusCompleted, stored.Status)
	assert.Equal(t, enums.OrderStatusPending, storedOrder.Status)
	assert.Equal(t, int64(1), f.outboxCount(t, enums.EventPaymentCompleted))
	assert.Equal(t, int64(1), f.outboxCount(t, enums.EventOrderStatusChanged))
	assert.Equal(t, 1, f.stock(t))
}
