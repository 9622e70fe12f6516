package payoswebhook

import (
	"context"
	"encoding/json"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/voltride/ebike-backend/pkg/db/models"
	pkgerrors "github.com/voltride/ebike-backend/pkg/errors"
)

// AuditRepository stores one row per authenticated delivery.
type AuditRepository struct {
	db *gorm.DB
}

func NewAuditRepository(db *gorm.DB) *AuditRepository {
	return &AuditRepository{db: db}
}

// Record inserts the delivery, keeping the first row for a repeated event key.
func (r *AuditRepository) Record(ctx context.Context, eventKey string, orderCode int64, status, outcome string, payload json.RawMessage, receivedAt time.Time) error {
	row := models.PaymentWebhookEvent{
		EventKey:         eventKey,
		GatewayOrderCode: orderCode,
		Status:           status,
		Outcome:          outcome,
		Payload:          payload,
		ReceivedAt:       receivedAt,
	}
	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&row).Error
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "record webhook delivery")
	}
	return nil
}
