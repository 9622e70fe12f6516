package payments

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/voltride/ebike-backend/pkg/db/models"
	"github.com/voltride/ebike-backend/pkg/enums"
	pkgerrors "github.com/voltride/ebike-backend/pkg/errors"
	"github.com/voltride/ebike-backend/pkg/pagination"
)

// Repository is the only writer of the payments table.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, payment *models.Payment) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.Payment, error)
	FindByOrderID(ctx context.Context, orderID uuid.UUID) (*models.Payment, error)
	FindByGatewayOrderCode(ctx context.Context, code int64) (*models.Payment, error)
	FindByOrderNumber(ctx context.Context, orderNumber string) (*models.Payment, error)
	SaveLink(ctx context.Context, id uuid.UUID, link LinkRecord) (bool, error)
	MarkCompleted(ctx context.Context, id uuid.UUID, at time.Time, raw json.RawMessage) (bool, error)
	TransitionFromUnsettled(ctx context.Context, id uuid.UUID, to enums.PaymentStatus, note string, raw json.RawMessage) (bool, error)
	CancelOpenForOrder(ctx context.Context, tx *gorm.DB, orderID uuid.UUID, reason string) ([]int64, error)
	ListUnsettled(ctx context.Context, params pagination.Params) ([]models.Payment, string, error)
	ListExpiryCandidates(ctx context.Context, cutoff time.Time, limit int) ([]models.Payment, error)
}

// LinkRecord is the gateway data stored once a link is created.
type LinkRecord struct {
	GatewayOrderCode int64
	PaymentLinkID    string
	CheckoutURL      string
	QRCode           string
	Raw              json.RawMessage
}

type repository struct {
	db *gorm.DB
}

// NewRepository builds a payments repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, payment *models.Payment) error {
	if err := r.db.WithContext(ctx).Create(payment).Error; err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "create payment")
	}
	return nil
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Payment, error) {
	return r.first(ctx, r.db.Where("id = ?", id))
}

func (r *repository) FindByOrderID(ctx context.Context, orderID uuid.UUID) (*models.Payment, error) {
	return r.first(ctx, r.db.Where("order_id = ?", orderID))
}

func (r *repository) FindByGatewayOrderCode(ctx context.Context, code int64) (*models.Payment, error) {
	return r.first(ctx, r.db.Where("gateway_order_code = ?", code))
}

// FindByOrderNumber resolves a payment through the human readable order number.
func (r *repository) FindByOrderNumber(ctx context.Context, orderNumber string) (*models.Payment, error) {
	sub := r.db.Model(&models.Order{}).Select("id").Where("order_number = ?", orderNumber)
	return r.first(ctx, r.db.Where("order_id IN (?)", sub))
}

func (r *repository) first(ctx context.Context, query *gorm.DB) (*models.Payment, error) {
	var payment models.Payment
	if err := query.WithContext(ctx).First(&payment).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "payment not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load payment")
	}
	return &payment, nil
}

// SaveLink stores a freshly created gateway link and moves the payment to
// processing, unless it has completed in the meantime.
func (r *repository) SaveLink(ctx context.Context, id uuid.UUID, link LinkRecord) (bool, error) {
	now := time.Now().UTC()
	res := r.db.WithContext(ctx).
		Model(&models.Payment{}).
		Where("id = ? AND status <> ?", id, enums.PaymentStatusCompleted).
		Updates(map[string]any{
			"status":             enums.PaymentStatusProcessing,
			"gateway_order_code": link.GatewayOrderCode,
			"payment_link_id":    link.PaymentLinkID,
			"checkout_url":       link.CheckoutURL,
			"qr_code":            link.QRCode,
			"gateway_response":   link.Raw,
			"processed_at":       now,
		})
	if res.Error != nil {
		return false, pkgerrors.Wrap(pkgerrors.CodeInternal, res.Error, "store payment link")
	}
	return res.RowsAffected == 1, nil
}

// MarkCompleted settles the payment exactly once: the update only matches
// rows that are not completed yet.
func (r *repository) MarkCompleted(ctx context.Context, id uuid.UUID, at time.Time, raw json.RawMessage) (bool, error) {
	updates := map[string]any{
		"status":       enums.PaymentStatusCompleted,
		"completed_at": at,
	}
	if len(raw) > 0 {
		updates["gateway_response"] = raw
	}
	res := r.db.WithContext(ctx).
		Model(&models.Payment{}).
		Where("id = ? AND status <> ?", id, enums.PaymentStatusCompleted).
		Updates(updates)
	if res.Error != nil {
		return false, pkgerrors.Wrap(pkgerrors.CodeInternal, res.Error, "complete payment")
	}
	return res.RowsAffected == 1, nil
}

// TransitionFromUnsettled moves a pending or processing payment to a final
// failure status.
func (r *repository) TransitionFromUnsettled(ctx context.Context, id uuid.UUID, to enums.PaymentStatus, note string, raw json.RawMessage) (bool, error) {
	updates := map[string]any{"status": to}
	if note != "" {
		updates["notes"] = note
	}
	if len(raw) > 0 {
		updates["gateway_response"] = raw
	}
	res := r.db.WithContext(ctx).
		Model(&models.Payment{}).
		Where("id = ? AND status IN ?", id, enums.UnsettledPaymentStatuses).
		Updates(updates)
	if res.Error != nil {
		return false, pkgerrors.Wrap(pkgerrors.CodeInternal, res.Error, "update payment status")
	}
	return res.RowsAffected == 1, nil
}

// CancelOpenForOrder closes the unsettled payment of a cancelled order and
// returns the gateway order codes whose links are still open at the gateway.
func (r *repository) CancelOpenForOrder(ctx context.Context, tx *gorm.DB, orderID uuid.UUID, reason string) ([]int64, error) {
	conn := r.db
	if tx != nil {
		conn = tx
	}
	var open []models.Payment
	err := conn.WithContext(ctx).
		Where("order_id = ? AND status IN ?", orderID, enums.UnsettledPaymentStatuses).
		Find(&open).Error
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load order payments")
	}

	var codes []int64
	for _, payment := range open {
		res := conn.WithContext(ctx).
			Model(&models.Payment{}).
			Where("id = ? AND status IN ?", payment.ID, enums.UnsettledPaymentStatuses).
			Updates(map[string]any{
				"status": enums.PaymentStatusCancelled,
				"notes":  reason,
			})
		if res.Error != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, res.Error, "cancel order payment")
		}
		if res.RowsAffected == 1 && payment.GatewayOrderCode != nil {
			codes = append(codes, *payment.GatewayOrderCode)
		}
	}
	return codes, nil
}

func (r *repository) ListUnsettled(ctx context.Context, params pagination.Params) ([]models.Payment, string, error) {
	cursor, err := pagination.ParseCursor(params.Cursor)
	if err != nil {
		return nil, "", pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}
	query := r.db.WithContext(ctx).Where("status IN ?", enums.UnsettledPaymentStatuses)
	if cursor != nil {
		query = query.Where("(created_at, id) < (?, ?)", cursor.CreatedAt, cursor.ID)
	}
	var rows []models.Payment
	err = query.
		Order("created_at DESC, id DESC").
		Limit(pagination.LimitWithBuffer(params.Limit)).
		Find(&rows).Error
	if err != nil {
		return nil, "", pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list unsettled payments")
	}
	page, next := pagination.Trim(rows, params.Limit, func(p models.Payment) pagination.Cursor {
		return pagination.Cursor{CreatedAt: p.CreatedAt, ID: p.ID}
	})
	return page, next, nil
}

// ListExpiryCandidates returns online payments older than cutoff that are
// still unsettled, or that the gateway closed while the order kept waiting.
func (r *repository) ListExpiryCandidates(ctx context.Context, cutoff time.Time, limit int) ([]models.Payment, error) {
	awaiting := r.db.Model(&models.Order{}).Select("id").Where("status = ?", enums.OrderStatusAwaitingPayment)
	var rows []models.Payment
	err := r.db.WithContext(ctx).
		Where("method IN ?", enums.OnlinePaymentMethods()).
		Where("created_at < ?", cutoff).
		Where(r.db.Where("status IN ?", enums.UnsettledPaymentStatuses).
			Or("status IN ? AND order_id IN (?)", []enums.PaymentStatus{enums.PaymentStatusCancelled, enums.PaymentStatusFailed}, awaiting)).
		Order("created_at ASC").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list expiry candidates")
	}
	return rows, nil
}
