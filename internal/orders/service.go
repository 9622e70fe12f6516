package orders

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/voltride/ebike-backend/pkg/db/models"
	"github.com/voltride/ebike-backend/pkg/enums"
	pkgerrors "github.com/voltride/ebike-backend/pkg/errors"
	"github.com/voltride/ebike-backend/pkg/logger"
	"github.com/voltride/ebike-backend/pkg/outbox"
	"github.com/voltride/ebike-backend/pkg/outbox/payloads"
	"github.com/voltride/ebike-backend/pkg/pagination"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// InventoryReleaser returns reserved stock when an order is cancelled.
type InventoryReleaser interface {
	Release(ctx context.Context, tx *gorm.DB, productID, locationID uuid.UUID, qty int) error
}

const paymentCancelNote = "order cancelled"

// PaymentCanceller closes the unsettled payment attached to a cancelled order
// and returns the gateway order codes of the sessions that were still open.
type PaymentCanceller interface {
	CancelOpenForOrder(ctx context.Context, tx *gorm.DB, orderID uuid.UUID, reason string) ([]int64, error)
}

// SessionCloser cancels a hosted checkout session at the payment gateway.
type SessionCloser interface {
	CancelSession(ctx context.Context, gatewayOrderCode int64, reason string) error
}

// Service exposes order reads and lifecycle transitions.
type Service interface {
	Get(ctx context.Context, userID, orderID uuid.UUID) (*OrderDTO, error)
	List(ctx context.Context, userID uuid.UUID, params pagination.Params, status *enums.OrderStatus) (*OrderList, error)
	AdminGet(ctx context.Context, orderID uuid.UUID) (*OrderDTO, error)
	AdminList(ctx context.Context, params pagination.Params, filters ListFilters) (*OrderList, error)
	Cancel(ctx context.Context, input CancelInput) (*OrderDTO, error)
	UpdateStatus(ctx context.Context, input StatusUpdateInput) (*OrderDTO, error)

	// AdvanceAfterPayment moves an awaiting_payment order to the target status
	// inside the caller's transaction. It reports whether this call won.
	AdvanceAfterPayment(ctx context.Context, tx *gorm.DB, orderID uuid.UUID, to enums.OrderStatus) (bool, error)
	// CancelUnpaid cancels an order still awaiting payment and releases its stock.
	CancelUnpaid(ctx context.Context, tx *gorm.DB, orderID uuid.UUID, reason string) (bool, error)
}

// CancelInput is a buyer or admin cancellation request.
type CancelInput struct {
	OrderID     uuid.UUID
	ActorUserID uuid.UUID
	ActorRole   enums.UserRole
	Reason      string
}

// StatusUpdateInput is an admin-driven lifecycle move.
type StatusUpdateInput struct {
	OrderID     uuid.UUID
	Status      enums.OrderStatus
	ActorUserID uuid.UUID
	Reason      string
}

type service struct {
	repo      Repository
	tx        txRunner
	outbox    outboxPublisher
	inventory InventoryReleaser
	payments  PaymentCanceller
	sessions  SessionCloser
	logg      *logger.Logger
	now       func() time.Time
}

// NewService builds the order service. payments and sessions may be nil when
// no gateway is wired.
func NewService(repo Repository, tx txRunner, outbox outboxPublisher, inventory InventoryReleaser, payments PaymentCanceller, sessions SessionCloser, logg *logger.Logger) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if outbox == nil {
		return nil, fmt.Errorf("outbox publisher required")
	}
	if inventory == nil {
		return nil, fmt.Errorf("inventory releaser required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &service{
		repo:      repo,
		tx:        tx,
		outbox:    outbox,
		inventory: inventory,
		payments:  payments,
		sessions:  sessions,
		logg:      logg,
		now:       func() time.Time { return time.Now().UTC() },
	}, nil
}

func (s *service) Get(ctx context.Context, userID, orderID uuid.UUID) (*OrderDTO, error) {
	if userID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity missing")
	}
	order, err := s.repo.FindForUser(ctx, userID, orderID)
	if err != nil {
		return nil, err
	}
	dto := ToDTO(*order)
	return &dto, nil
}

func (s *service) List(ctx context.Context, userID uuid.UUID, params pagination.Params, status *enums.OrderStatus) (*OrderList, error) {
	if userID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity missing")
	}
	return s.list(ctx, params, ListFilters{UserID: &userID, Status: status})
}

func (s *service) AdminGet(ctx context.Context, orderID uuid.UUID) (*OrderDTO, error) {
	order, err := s.repo.FindByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	dto := ToDTO(*order)
	return &dto, nil
}

func (s *service) AdminList(ctx context.Context, params pagination.Params, filters ListFilters) (*OrderList, error) {
	return s.list(ctx, params, filters)
}

func (s *service) list(ctx context.Context, params pagination.Params, filters ListFilters) (*OrderList, error) {
	if filters.Status != nil && !filters.Status.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid order status filter")
	}
	rows, next, err := s.repo.List(ctx, params, filters)
	if err != nil {
		return nil, err
	}
	out := &OrderList{Orders: make([]OrderDTO, 0, len(rows)), NextCursor: next}
	for _, row := range rows {
		out.Orders = append(out.Orders, ToDTO(row))
	}
	return out, nil
}

func (s *service) Cancel(ctx context.Context, input CancelInput) (*OrderDTO, error) {
	if input.OrderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}
	if input.ActorUserID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity missing")
	}
	isAdmin := input.ActorRole == enums.UserRoleAdmin

	var (
		result   *models.Order
		sessions []int64
	)
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		var (
			order *models.Order
			err   error
		)
		if isAdmin {
			order, err = repo.FindByID(ctx, input.OrderID)
		} else {
			order, err = repo.FindForUser(ctx, input.ActorUserID, input.OrderID)
		}
		if err != nil {
			return err
		}

		allowed := CanTransition(order.Status, enums.OrderStatusCancelled)
		if !isAdmin {
			allowed = CustomerCancellable(order.Status)
		}
		if !allowed {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "order can no longer be cancelled").
				WithDetails(map[string]any{"status": order.Status})
		}

		actor := &outbox.ActorRef{UserID: input.ActorUserID, Role: string(input.ActorRole)}
		won, codes, err := s.cancelTx(ctx, tx, order, input.Reason, actor)
		if err != nil {
			return err
		}
		if !won {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "order status changed concurrently")
		}
		sessions = codes
		result, err = repo.FindByID(ctx, order.ID)
		return err
	})
	if err != nil {
		return nil, err
	}
	s.closeSessions(ctx, result.ID, sessions)
	dto := ToDTO(*result)
	return &dto, nil
}

// closeSessions runs after commit. A session that fails to close is only
// logged; a payment arriving on it later completes against the cancelled order.
func (s *service) closeSessions(ctx context.Context, orderID uuid.UUID, codes []int64) {
	if s.sessions == nil || len(codes) == 0 {
		return
	}
	ctx = s.logg.WithOrderID(ctx, orderID.String())
	for _, code := range codes {
		logCtx := s.logg.WithField(ctx, "gateway_order_code", code)
		if err := s.sessions.CancelSession(ctx, code, paymentCancelNote); err != nil {
			s.logg.Warn(s.logg.WithField(logCtx, "error", err.Error()), "failed to cancel gateway session")
			continue
		}
		s.logg.Info(logCtx, "gateway session cancelled")
	}
}

func (s *service) UpdateStatus(ctx context.Context, input StatusUpdateInput) (*OrderDTO, error) {
	if input.OrderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}
	if !input.Status.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid order status")
	}
	if input.Status == enums.OrderStatusCancelled {
		return s.Cancel(ctx, CancelInput{
			OrderID:     input.OrderID,
			ActorUserID: input.ActorUserID,
			ActorRole:   enums.UserRoleAdmin,
			Reason:      input.Reason,
		})
	}

	var result *models.Order
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		order, err := repo.FindByID(ctx, input.OrderID)
		if err != nil {
			return err
		}
		if !CanTransition(order.Status, input.Status) {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "invalid order status transition").
				WithDetails(map[string]any{"from": order.Status, "to": input.Status})
		}
		actor := &outbox.ActorRef{UserID: input.ActorUserID, Role: string(enums.UserRoleAdmin)}
		won, err := s.transitionTx(ctx, tx, order.ID, order.Status, input.Status, actor)
		if err != nil {
			return err
		}
		if !won {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "order status changed concurrently")
		}
		result, err = repo.FindByID(ctx, order.ID)
		return err
	})
	if err != nil {
		return nil, err
	}
	dto := ToDTO(*result)
	return &dto, nil
}

func (s *service) AdvanceAfterPayment(ctx context.Context, tx *gorm.DB, orderID uuid.UUID, to enums.OrderStatus) (bool, error) {
	if !CanTransition(enums.OrderStatusAwaitingPayment, to) || to == enums.OrderStatusCancelled {
		return false, fmt.Errorf("cannot advance paid order to %s", to)
	}
	return s.transitionTx(ctx, tx, orderID, enums.OrderStatusAwaitingPayment, to, nil)
}

func (s *service) CancelUnpaid(ctx context.Context, tx *gorm.DB, orderID uuid.UUID, reason string) (bool, error) {
	order, err := s.repo.WithTx(tx).FindByID(ctx, orderID)
	if err != nil {
		return false, err
	}
	if order.Status != enums.OrderStatusAwaitingPayment {
		return false, nil
	}
	// the caller owns the payment and its gateway session
	won, _, err := s.cancelTx(ctx, tx, order, reason, nil)
	return won, err
}

func (s *service) transitionTx(ctx context.Context, tx *gorm.DB, orderID uuid.UUID, from, to enums.OrderStatus, actor *outbox.ActorRef) (bool, error) {
	won, err := s.repo.WithTx(tx).TransitionStatus(ctx, orderID, from, to, nil)
	if err != nil || !won {
		return won, err
	}
	err = s.outbox.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     enums.EventOrderStatusChanged,
		AggregateType: enums.AggregateOrder,
		AggregateID:   orderID,
		Actor:         actor,
		Data: payloads.OrderStatusChangedEvent{
			OrderID:   orderID,
			From:      from,
			To:        to,
			ChangedAt: s.now(),
		},
	})
	return err == nil, err
}

// cancelTx wins the conditional status update first; stock is only released
// by the writer that actually performed the cancellation. It returns the
// gateway sessions left open by the payments it closed.
func (s *service) cancelTx(ctx context.Context, tx *gorm.DB, order *models.Order, reason string, actor *outbox.ActorRef) (bool, []int64, error) {
	now := s.now()
	updates := map[string]any{"cancelled_at": now}
	reason = strings.TrimSpace(reason)
	if reason != "" {
		updates["cancellation_reason"] = reason
	}
	won, err := s.repo.WithTx(tx).TransitionStatus(ctx, order.ID, order.Status, enums.OrderStatusCancelled, updates)
	if err != nil || !won {
		return won, nil, err
	}

	for _, line := range order.Lines {
		if err := s.inventory.Release(ctx, tx, line.ProductID, order.LocationID, line.Quantity); err != nil {
			return false, nil, err
		}
	}
	var sessions []int64
	if s.payments != nil {
		sessions, err = s.payments.CancelOpenForOrder(ctx, tx, order.ID, paymentCancelNote)
		if err != nil {
			return false, nil, err
		}
	}

	err = s.outbox.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     enums.EventOrderCancelled,
		AggregateType: enums.AggregateOrder,
		AggregateID:   order.ID,
		Actor:         actor,
		Data: payloads.OrderCancelledEvent{
			OrderID:     order.ID,
			UserID:      order.UserID,
			From:        order.Status,
			Reason:      reason,
			CancelledAt: now,
		},
	})
	if err != nil {
		return false, nil, err
	}
	return true, sessions, nil
}
