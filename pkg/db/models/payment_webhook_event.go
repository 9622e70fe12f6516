package models

import (
	"encoding/json"
	"time"
)

// PaymentWebhookEvent records one authenticated gateway delivery and what was done with it.
type PaymentWebhookEvent struct {
	EventKey         string          `gorm:"column:event_key;primaryKey"`
	GatewayOrderCode int64           `gorm:"column:gateway_order_code;not null;index"`
	Status           string          `gorm:"column:status;type:varchar(16);not null"`
	Outcome          string          `gorm:"column:outcome;type:varchar(32);not null"`
	Payload          json.RawMessage `gorm:"column:payload;type:jsonb;not null"`
	ReceivedAt       time.Time       `gorm:"column:received_at;not null"`
}
