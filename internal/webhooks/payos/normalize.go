package payoswebhook

import (
	"fmt"
	"strings"
	"time"

	"github.com/voltride/ebike-backend/internal/payments"
	"github.com/voltride/ebike-backend/pkg/payos"
)

var gatewayZone = time.FixedZone("ICT", 7*60*60)

// Normalize turns a verified delivery into the internal status union.
// receivedAt is used as settlement time when the gateway omits one.
func Normalize(payload payos.WebhookPayload, data payos.WebhookData, receivedAt time.Time) payments.EventStatus {
	switch strings.ToUpper(strings.TrimSpace(data.Status)) {
	case payos.LinkStatusCancelled:
		return payments.Cancelled{Reason: data.Desc}
	case payos.LinkStatusExpired:
		return payments.Expired{}
	case payos.LinkStatusFailed:
		return payments.Failed{Code: data.Code, Message: data.Desc}
	}

	code := strings.TrimSpace(payload.Code)
	switch {
	case code == payos.CodeSuccess && (data.Code == "" || data.Code == payos.CodeSuccess):
		return payments.Paid{
			At:        settlementTime(data.TransactionDateTime, receivedAt),
			Amount:    data.Amount,
			Reference: data.Reference,
		}
	case code == "":
		return payments.Unknown{Raw: fmt.Sprintf("desc=%s", payload.Desc)}
	case code != payos.CodeSuccess:
		return payments.Failed{Code: code, Message: payload.Desc}
	default:
		return payments.Failed{Code: data.Code, Message: data.Desc}
	}
}

func settlementTime(raw string, fallback time.Time) time.Time {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return fallback.UTC()
	}
	if t, err := time.ParseInLocation(payos.TransactionTimeLayout, raw, gatewayZone); err == nil {
		return t.UTC()
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t.UTC()
	}
	return fallback.UTC()
}

// EventKey identifies one logical delivery for redelivery detection and auditing.
func EventKey(data payos.WebhookData, status payments.EventStatus) string {
	parts := []string{fmt.Sprintf("%d", data.OrderCode), status.Name()}
	if ref := strings.TrimSpace(data.Reference); ref != "" {
		parts = append(parts, ref)
	}
	return strings.Join(parts, ":")
}
