package payments

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand/v2"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/voltride/ebike-backend/internal/orders"
	"github.com/voltride/ebike-backend/pkg/db/models"
	"github.com/voltride/ebike-backend/pkg/enums"
	pkgerrors "github.com/voltride/ebike-backend/pkg/errors"
	"github.com/voltride/ebike-backend/pkg/logger"
	"github.com/voltride/ebike-backend/pkg/outbox"
	"github.com/voltride/ebike-backend/pkg/outbox/payloads"
	"github.com/voltride/ebike-backend/pkg/pagination"
	"github.com/voltride/ebike-backend/pkg/payos"
)

const (
	descriptionPrefix    = "Don "
	maxOrderCodeAttempts = 3
	gatewayCodeDuplicate = "231"
	defaultExpiryNote    = "payment window expired"
	defaultCancelReason  = "cancelled by customer"
	supersededReason     = "replaced by a new payment link"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
	EmitIfNotExists(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// Gateway is the subset of the PayOS client the service drives.
type Gateway interface {
	CreatePaymentLink(ctx context.Context, req payos.CreatePaymentLinkRequest) (*payos.PaymentLink, error)
	GetPaymentLinkInfo(ctx context.Context, orderCode int64) (*payos.PaymentLinkInfo, error)
	CancelPaymentLink(ctx context.Context, orderCode int64, reason string) (*payos.PaymentLinkInfo, error)
}

type orderLifecycle interface {
	AdvanceAfterPayment(ctx context.Context, tx *gorm.DB, orderID uuid.UUID, to enums.OrderStatus) (bool, error)
	CancelUnpaid(ctx context.Context, tx *gorm.DB, orderID uuid.UUID, reason string) (bool, error)
}

// Service manages gateway payment sessions and applies their outcomes.
type Service interface {
	CreatePaymentLink(ctx context.Context, userID, orderID uuid.UUID, opts LinkOptions) (*LinkResult, error)
	GetForOrder(ctx context.Context, userID, orderID uuid.UUID) (*PaymentDTO, error)
	VerifyPayment(ctx context.Context, userID, orderID uuid.UUID) (*PaymentDTO, error)
	CancelPaymentLink(ctx context.Context, userID, orderID uuid.UUID, reason string) (*PaymentDTO, error)
	ListPending(ctx context.Context, params pagination.Params) (*PaymentList, error)

	// Locate finds the payment a gateway notification refers to.
	Locate(ctx context.Context, orderCode int64, reference string) (*models.Payment, error)
	// ApplyGatewayStatus reconciles one gateway outcome in a single transaction.
	ApplyGatewayStatus(ctx context.Context, paymentID uuid.UUID, status EventStatus, raw json.RawMessage) (Outcome, error)
	// Expire cancels a stale payment and, if its order still waits, the order too.
	Expire(ctx context.Context, paymentID uuid.UUID, note string) (ExpiryResult, error)
}

// Options carries the gateway-facing settings.
type Options struct {
	MinAmount       int64
	ReturnURL       string
	CancelURL       string
	PaidOrderStatus enums.OrderStatus
}

// ExpiryResult reports what an expiry pass changed.
type ExpiryResult struct {
	PaymentCancelled bool
	OrderCancelled   bool
}

type service struct {
	repo      Repository
	orders    orders.Repository
	lifecycle orderLifecycle
	gateway   Gateway
	tx        txRunner
	outbox    outboxPublisher
	logg      *logger.Logger
	opts      Options
	now       func() time.Time
	intN      func(int) int
}

// NewService builds the payment service. gateway may be nil when PayOS is not configured;
// link operations then fail with a dependency error.
func NewService(repo Repository, ordersRepo orders.Repository, lifecycle orderLifecycle, gateway Gateway, tx txRunner, publisher outboxPublisher, logg *logger.Logger, opts Options) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("payments repository required")
	}
	if ordersRepo == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	if lifecycle == nil {
		return nil, fmt.Errorf("order lifecycle required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if publisher == nil {
		return nil, fmt.Errorf("outbox publisher required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	if opts.PaidOrderStatus == "" {
		opts.PaidOrderStatus = enums.OrderStatusPending
	}
	if opts.PaidOrderStatus != enums.OrderStatusPending && opts.PaidOrderStatus != enums.OrderStatusConfirmed {
		return nil, fmt.Errorf("paid order status must be pending or confirmed")
	}
	return &service{
		repo:      repo,
		orders:    ordersRepo,
		lifecycle: lifecycle,
		gateway:   gateway,
		tx:        tx,
		outbox:    publisher,
		logg:      logg,
		opts:      opts,
		now:       func() time.Time { return time.Now().UTC() },
		intN:      rand.IntN,
	}, nil
}

func (s *service) CreatePaymentLink(ctx context.Context, userID, orderID uuid.UUID, opts LinkOptions) (*LinkResult, error) {
	order, err := s.orders.FindForUser(ctx, userID, orderID)
	if err != nil {
		return nil, err
	}
	if !order.PaymentMethod.IsOnline() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order is not paid online")
	}
	if order.Status != enums.OrderStatusAwaitingPayment {
		return nil, pkgerrors.New(pkgerrors.CodeConflict, "order is not awaiting payment").
			WithDetails(map[string]any{"status": order.Status})
	}
	if order.FinalTotal < s.opts.MinAmount {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order total is below the gateway minimum").
			WithDetails(map[string]any{"min_amount": s.opts.MinAmount, "amount": order.FinalTotal})
	}

	payment, err := s.ensurePayment(ctx, order)
	if err != nil {
		return nil, err
	}
	if payment.Status == enums.PaymentStatusCompleted {
		return nil, pkgerrors.New(pkgerrors.CodeConflict, "order is already paid")
	}
	if !opts.ForceNew && payment.Status == enums.PaymentStatusProcessing && payment.CheckoutURL != nil && payment.GatewayOrderCode != nil {
		return linkResult(payment, true), nil
	}
	if s.gateway == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "payment gateway not configured")
	}
	if payment.GatewayOrderCode != nil && payment.Status.IsUnsettled() {
		if err := s.retireLink(ctx, payment); err != nil {
			return nil, err
		}
	}

	req := payos.CreatePaymentLinkRequest{
		Amount:      order.FinalTotal,
		Description: truncate(descriptionPrefix+order.OrderNumber, payos.MaxDescriptionLength),
		ReturnURL:   redirectURL(firstNonEmpty(opts.ReturnURL, s.opts.ReturnURL), order.ID, "success"),
		CancelURL:   redirectURL(firstNonEmpty(opts.CancelURL, s.opts.CancelURL), order.ID, "cancelled"),
		BuyerName:   order.ShippingAddress.FullName,
		BuyerPhone:  order.ShippingAddress.Phone,
	}
	for _, line := range order.Lines {
		req.Items = append(req.Items, payos.Item{Name: line.ProductName, Quantity: line.Quantity, Price: line.UnitPrice})
	}

	var link *payos.PaymentLink
	for attempt := 1; ; attempt++ {
		req.OrderCode = NewGatewayOrderCode(s.now(), s.intN)
		link, err = s.gateway.CreatePaymentLink(ctx, req)
		if err == nil {
			break
		}
		if attempt >= maxOrderCodeAttempts || !isDuplicateOrderCode(err) {
			return nil, err
		}
	}

	won, err := s.repo.SaveLink(ctx, payment.ID, LinkRecord{
		GatewayOrderCode: req.OrderCode,
		PaymentLinkID:    link.PaymentLinkID,
		CheckoutURL:      link.CheckoutURL,
		QRCode:           link.QRCode,
		Raw:              link.Raw,
	})
	if err != nil {
		return nil, err
	}
	if !won {
		return nil, pkgerrors.New(pkgerrors.CodeConflict, "order is already paid")
	}

	logCtx := s.logg.WithPaymentID(s.logg.WithOrderID(ctx, order.ID.String()), payment.ID.String())
	s.logg.Info(s.logg.WithField(logCtx, "gateway_order_code", req.OrderCode), "payment link created")

	updated, err := s.repo.FindByID(ctx, payment.ID)
	if err != nil {
		return nil, err
	}
	return linkResult(updated, false), nil
}

// retireLink closes the link currently on file before a replacement is stored.
// Webhooks are matched by the stored order code only, so the old link must not
// stay payable.
func (s *service) retireLink(ctx context.Context, payment *models.Payment) error {
	code := *payment.GatewayOrderCode
	info, err := s.gateway.GetPaymentLinkInfo(ctx, code)
	if err != nil {
		return err
	}
	switch strings.ToUpper(strings.TrimSpace(info.Status)) {
	case payos.LinkStatusPaid:
		if _, err := s.ApplyGatewayStatus(ctx, payment.ID, statusFromLinkInfo(info, s.now()), info.Raw); err != nil {
			return err
		}
		return pkgerrors.New(pkgerrors.CodeConflict, "order is already paid")
	case payos.LinkStatusCancelled, payos.LinkStatusExpired:
		return nil
	}
	if _, err := s.gateway.CancelPaymentLink(ctx, code, supersededReason); err != nil {
		return err
	}
	logCtx := s.logg.WithPaymentID(s.logg.WithOrderID(ctx, payment.OrderID.String()), payment.ID.String())
	s.logg.Info(s.logg.WithField(logCtx, "gateway_order_code", code), "previous payment link cancelled")
	return nil
}

func (s *service) ensurePayment(ctx context.Context, order *models.Order) (*models.Payment, error) {
	payment, err := s.repo.FindByOrderID(ctx, order.ID)
	if err == nil {
		return payment, nil
	}
	if !pkgerrors.IsCode(err, pkgerrors.CodeNotFound) {
		return nil, err
	}
	payment = &models.Payment{
		OrderID: order.ID,
		UserID:  order.UserID,
		Amount:  order.FinalTotal,
		Method:  order.PaymentMethod,
		Status:  enums.PaymentStatusPending,
	}
	if err := s.repo.Create(ctx, payment); err != nil {
		// lost a race with a concurrent first link request
		if existing, findErr := s.repo.FindByOrderID(ctx, order.ID); findErr == nil {
			return existing, nil
		}
		return nil, err
	}
	return payment, nil
}

func (s *service) GetForOrder(ctx context.Context, userID, orderID uuid.UUID) (*PaymentDTO, error) {
	if _, err := s.orders.FindForUser(ctx, userID, orderID); err != nil {
		return nil, err
	}
	payment, err := s.repo.FindByOrderID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	dto := ToDTO(*payment)
	return &dto, nil
}

func (s *service) VerifyPayment(ctx context.Context, userID, orderID uuid.UUID) (*PaymentDTO, error) {
	if _, err := s.orders.FindForUser(ctx, userID, orderID); err != nil {
		return nil, err
	}
	payment, err := s.repo.FindByOrderID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if payment.GatewayOrderCode == nil || payment.Status == enums.PaymentStatusCompleted {
		dto := ToDTO(*payment)
		return &dto, nil
	}
	if s.gateway == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "payment gateway not configured")
	}

	info, err := s.gateway.GetPaymentLinkInfo(ctx, *payment.GatewayOrderCode)
	if err != nil {
		return nil, err
	}
	if _, err := s.ApplyGatewayStatus(ctx, payment.ID, statusFromLinkInfo(info, s.now()), info.Raw); err != nil {
		return nil, err
	}

	payment, err = s.repo.FindByID(ctx, payment.ID)
	if err != nil {
		return nil, err
	}
	dto := ToDTO(*payment)
	return &dto, nil
}

func statusFromLinkInfo(info *payos.PaymentLinkInfo, fallback time.Time) EventStatus {
	paidAt := fallback
	reference := ""
	if n := len(info.Transactions); n > 0 {
		last := info.Transactions[n-1]
		reference = last.Reference
		if t, err := time.ParseInLocation(payos.TransactionTimeLayout, last.TransactionDateTime, vietnamTime); err == nil {
			paidAt = t.UTC()
		}
	}
	reason := ""
	if info.CancellationReason != nil {
		reason = *info.CancellationReason
	}
	status := FromLinkStatus(info.Status, paidAt, info.AmountPaid, reason)
	if paid, ok := status.(Paid); ok {
		paid.Reference = reference
		return paid
	}
	return status
}

func (s *service) CancelPaymentLink(ctx context.Context, userID, orderID uuid.UUID, reason string) (*PaymentDTO, error) {
	if _, err := s.orders.FindForUser(ctx, userID, orderID); err != nil {
		return nil, err
	}
	payment, err := s.repo.FindByOrderID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if !payment.Status.IsUnsettled() {
		return nil, pkgerrors.New(pkgerrors.CodeConflict, "payment can no longer be cancelled").
			WithDetails(map[string]any{"status": payment.Status})
	}
	reason = firstNonEmpty(strings.TrimSpace(reason), defaultCancelReason)

	var raw json.RawMessage
	if payment.GatewayOrderCode != nil {
		if s.gateway == nil {
			return nil, pkgerrors.New(pkgerrors.CodeDependency, "payment gateway not configured")
		}
		info, err := s.gateway.CancelPaymentLink(ctx, *payment.GatewayOrderCode, reason)
		if err != nil {
			return nil, err
		}
		raw = info.Raw
	}

	if _, err := s.ApplyGatewayStatus(ctx, payment.ID, Cancelled{Reason: reason}, raw); err != nil {
		return nil, err
	}
	payment, err = s.repo.FindByID(ctx, payment.ID)
	if err != nil {
		return nil, err
	}
	dto := ToDTO(*payment)
	return &dto, nil
}

func (s *service) ListPending(ctx context.Context, params pagination.Params) (*PaymentList, error) {
	rows, next, err := s.repo.ListUnsettled(ctx, params)
	if err != nil {
		return nil, err
	}
	out := &PaymentList{Payments: make([]PaymentDTO, 0, len(rows)), NextCursor: next}
	for _, row := range rows {
		out.Payments = append(out.Payments, ToDTO(row))
	}
	return out, nil
}

func (s *service) Locate(ctx context.Context, orderCode int64, reference string) (*models.Payment, error) {
	if orderCode > 0 {
		payment, err := s.repo.FindByGatewayOrderCode(ctx, orderCode)
		if err == nil || !pkgerrors.IsCode(err, pkgerrors.CodeNotFound) {
			return payment, err
		}
	}
	if ref := strings.TrimSpace(reference); ref != "" {
		return s.repo.FindByOrderNumber(ctx, ref)
	}
	return nil, pkgerrors.New(pkgerrors.CodeNotFound, "payment not found")
}

func (s *service) Expire(ctx context.Context, paymentID uuid.UUID, note string) (ExpiryResult, error) {
	note = firstNonEmpty(note, defaultExpiryNote)
	var (
		result      ExpiryResult
		sessionCode *int64
	)
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		payment, err := repo.FindByID(ctx, paymentID)
		if err != nil {
			return err
		}
		sessionCode = payment.GatewayOrderCode
		if payment.Status == enums.PaymentStatusCompleted {
			return nil
		}

		won, err := repo.TransitionFromUnsettled(ctx, payment.ID, enums.PaymentStatusCancelled, note, nil)
		if err != nil {
			return err
		}
		if won {
			result.PaymentCancelled = true
			if err := s.emitPaymentEvent(ctx, tx, enums.EventPaymentExpired, payment, enums.PaymentStatusCancelled, note); err != nil {
				return err
			}
		} else if payment.Status.IsUnsettled() {
			// settled by someone else between the read and the update
			return nil
		}

		cancelled, err := s.lifecycle.CancelUnpaid(ctx, tx, payment.OrderID, note)
		if err != nil {
			return err
		}
		result.OrderCancelled = cancelled
		return nil
	})
	if err != nil {
		return result, err
	}
	if result.PaymentCancelled && sessionCode != nil {
		s.closeSession(ctx, paymentID, *sessionCode, note)
	}
	return result, nil
}

// closeSession cancels an expired link at the gateway. Failures are logged: the
// local cancellation is already committed and a late payment is still applied.
func (s *service) closeSession(ctx context.Context, paymentID uuid.UUID, code int64, reason string) {
	if s.gateway == nil {
		return
	}
	logCtx := s.logg.WithField(s.logg.WithPaymentID(ctx, paymentID.String()), "gateway_order_code", code)
	if _, err := s.gateway.CancelPaymentLink(ctx, code, reason); err != nil {
		s.logg.Warn(s.logg.WithField(logCtx, "error", err.Error()), "failed to cancel gateway session")
		return
	}
	s.logg.Info(logCtx, "gateway session cancelled")
}

func (s *service) ApplyGatewayStatus(ctx context.Context, paymentID uuid.UUID, status EventStatus, raw json.RawMessage) (Outcome, error) {
	ctx = s.logg.WithPaymentID(ctx, paymentID.String())
	ctx = s.logg.WithField(ctx, "gateway_status", status.Name())

	outcome := OutcomeIgnored
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		payment, err := repo.FindByID(ctx, paymentID)
		if err != nil {
			return err
		}
		logCtx := s.logg.WithOrderID(ctx, payment.OrderID.String())

		switch st := status.(type) {
		case Paid:
			if payment.Status == enums.PaymentStatusCompleted {
				outcome = OutcomeDuplicate
				return nil
			}
			if st.Amount > 0 && st.Amount < payment.Amount {
				s.logg.Warn(s.logg.WithFields(logCtx, map[string]any{
					"paid_amount":     st.Amount,
					"expected_amount": payment.Amount,
				}), "gateway reported underpayment; payment left open")
				return nil
			}
			at := st.At
			if at.IsZero() {
				at = s.now()
			}
			won, err := repo.MarkCompleted(ctx, payment.ID, at, raw)
			if err != nil {
				return err
			}
			if !won {
				outcome = OutcomeDuplicate
				return nil
			}
			outcome = OutcomeApplied

			advanced, err := s.lifecycle.AdvanceAfterPayment(ctx, tx, payment.OrderID, s.opts.PaidOrderStatus)
			if err != nil {
				return err
			}
			if !advanced {
				order, err := s.orders.WithTx(tx).FindByID(ctx, payment.OrderID)
				if err != nil {
					return err
				}
				if order.Status == enums.OrderStatusCancelled {
					s.logg.Warn(logCtx, "payment completed for a cancelled order; refund required")
				}
			}
			return s.emitPaymentEvent(ctx, tx, enums.EventPaymentCompleted, payment, enums.PaymentStatusCompleted, st.Reference)

		case Cancelled, Expired, Failed:
			to, eventType, note := settledTarget(st)
			won, err := repo.TransitionFromUnsettled(ctx, payment.ID, to, note, raw)
			if err != nil {
				return err
			}
			if !won {
				outcome = OutcomeDuplicate
				return nil
			}
			outcome = OutcomeApplied
			return s.emitPaymentEvent(ctx, tx, eventType, payment, to, note)

		default:
			s.logg.Info(logCtx, "gateway status acknowledged without changes")
			return nil
		}
	})
	if err != nil {
		return "", err
	}
	s.logg.Info(s.logg.WithField(ctx, "outcome", outcome), "gateway status applied")
	return outcome, nil
}

func settledTarget(status EventStatus) (enums.PaymentStatus, enums.OutboxEventType, string) {
	switch st := status.(type) {
	case Cancelled:
		return enums.PaymentStatusCancelled, enums.EventPaymentCancelled, st.Reason
	case Expired:
		return enums.PaymentStatusCancelled, enums.EventPaymentExpired, "payment link expired"
	case Failed:
		note := strings.TrimSpace(strings.Join([]string{st.Code, st.Message}, " "))
		return enums.PaymentStatusFailed, enums.EventPaymentFailed, note
	}
	return "", "", ""
}

func (s *service) emitPaymentEvent(ctx context.Context, tx *gorm.DB, eventType enums.OutboxEventType, payment *models.Payment, status enums.PaymentStatus, reason string) error {
	return s.outbox.EmitIfNotExists(ctx, tx, outbox.DomainEvent{
		EventType:     eventType,
		AggregateType: enums.AggregatePayment,
		AggregateID:   payment.ID,
		OccurredAt:    s.now(),
		Data: payloads.PaymentStatusEvent{
			PaymentID:        payment.ID,
			OrderID:          payment.OrderID,
			Status:           status,
			Amount:           payment.Amount,
			GatewayOrderCode: payment.GatewayOrderCode,
			Reason:           reason,
		},
	})
}

func linkResult(p *models.Payment, reused bool) *LinkResult {
	res := &LinkResult{
		PaymentID: p.ID,
		OrderID:   p.OrderID,
		Amount:    p.Amount,
		Status:    p.Status,
		Reused:    reused,
	}
	if p.GatewayOrderCode != nil {
		res.OrderCode = *p.GatewayOrderCode
	}
	if p.CheckoutURL != nil {
		res.CheckoutURL = *p.CheckoutURL
	}
	if p.QRCode != nil {
		res.QRCode = *p.QRCode
	}
	return res
}

func isDuplicateOrderCode(err error) bool {
	perr := pkgerrors.As(err)
	if perr == nil {
		return false
	}
	details, ok := perr.Details().(map[string]any)
	return ok && details["gateway_code"] == gatewayCodeDuplicate
}

func redirectURL(base string, orderID uuid.UUID, status string) string {
	u, err := url.Parse(base)
	if err != nil || base == "" {
		return base
	}
	q := u.Query()
	q.Set("orderId", orderID.String())
	q.Set("status", status)
	u.RawQuery = q.Encode()
	return u.String()
}

func truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

var vietnamTime = time.FixedZone("ICT", 7*60*60)
