package payoswebhook

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/voltride/ebike-backend/internal/payments"
	"github.com/voltride/ebike-backend/pkg/db/models"
	pkgerrors "github.com/voltride/ebike-backend/pkg/errors"
	"github.com/voltride/ebike-backend/pkg/logger"
	"github.com/voltride/ebike-backend/pkg/payos"
)

// SandboxTestOrderCode is the order code PayOS uses when verifying a webhook URL.
const SandboxTestOrderCode int64 = 123

const (
	OutcomeSandboxTest = "sandbox_test"
	OutcomeRedelivered = "redelivered"
)

type paymentReconciler interface {
	Locate(ctx context.Context, orderCode int64, reference string) (*models.Payment, error)
	ApplyGatewayStatus(ctx context.Context, paymentID uuid.UUID, status payments.EventStatus, raw json.RawMessage) (payments.Outcome, error)
}

type deliveryGuard interface {
	CheckAndMark(ctx context.Context, eventKey string) (bool, error)
	Delete(ctx context.Context, eventKey string) error
}

type auditRecorder interface {
	Record(ctx context.Context, eventKey string, orderCode int64, status, outcome string, payload json.RawMessage, receivedAt time.Time) error
}

type outcomeCounter interface {
	IncWebhook(outcome string)
}

type ServiceParams struct {
	Payments         paymentReconciler
	Audit            auditRecorder
	Guard            deliveryGuard
	Metrics          outcomeCounter
	Logger           *logger.Logger
	ChecksumKey      string
	AllowSandboxTest bool
}

// Service authenticates PayOS deliveries and hands them to the payment reconciler.
type Service struct {
	payments     paymentReconciler
	audit        auditRecorder
	guard        deliveryGuard
	metrics      outcomeCounter
	logg         *logger.Logger
	checksumKey  string
	allowSandbox bool
	now          func() time.Time
}

// Result is what the endpoint acknowledges back to the gateway.
type Result struct {
	Outcome   string     `json:"outcome"`
	OrderCode int64      `json:"order_code,omitempty"`
	PaymentID *uuid.UUID `json:"payment_id,omitempty"`
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Payments == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "payment reconciler required")
	}
	if params.Audit == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "webhook audit required")
	}
	if params.Logger == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "logger required")
	}
	if strings.TrimSpace(params.ChecksumKey) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "payos checksum key required")
	}
	return &Service{
		payments:     params.Payments,
		audit:        params.Audit,
		guard:        params.Guard,
		metrics:      params.Metrics,
		logg:         params.Logger,
		checksumKey:  params.ChecksumKey,
		allowSandbox: params.AllowSandboxTest,
		now:          func() time.Time { return time.Now().UTC() },
	}, nil
}

// HandleDelivery processes one raw webhook body. headerSignature may be empty,
// in which case the signature embedded in the body is used.
func (s *Service) HandleDelivery(ctx context.Context, body []byte, headerSignature string) (*Result, error) {
	receivedAt := s.now()

	var payload payos.WebhookPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid webhook payload")
	}
	if len(payload.Data) == 0 || bytes.Equal(bytes.TrimSpace(payload.Data), []byte("null")) {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "webhook data missing")
	}
	var data payos.WebhookData
	if err := json.Unmarshal(payload.Data, &data); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid webhook data")
	}
	ctx = s.logg.WithField(ctx, "gateway_order_code", data.OrderCode)

	signature := strings.TrimSpace(headerSignature)
	if signature == "" {
		signature = payload.Signature
	}
	if err := payos.VerifyData(s.checksumKey, payload.Data, signature); err != nil {
		if s.allowSandbox && data.OrderCode == SandboxTestOrderCode {
			s.logg.Info(ctx, "payos sandbox test delivery acknowledged")
			s.count(OutcomeSandboxTest)
			return &Result{Outcome: OutcomeSandboxTest, OrderCode: data.OrderCode}, nil
		}
		s.logg.Warn(s.logg.WithFields(ctx, map[string]any{
			"event":         "payos.webhook.rejected",
			"has_signature": signature != "",
			"amount":        data.Amount,
		}), "payos webhook signature rejected")
		s.count("rejected")
		return nil, pkgerrors.Wrap(pkgerrors.CodeUnauthorized, err, "invalid webhook signature")
	}
	if data.OrderCode <= 0 && strings.TrimSpace(data.Reference) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order code missing in webhook data")
	}

	status := Normalize(payload, data, receivedAt)
	eventKey := EventKey(data, status)
	ctx = s.logg.WithFields(ctx, map[string]any{"event_key": eventKey, "gateway_status": status.Name()})

	payment, err := s.payments.Locate(ctx, data.OrderCode, data.Reference)
	if err != nil {
		if !pkgerrors.IsCode(err, pkgerrors.CodeNotFound) {
			return nil, err
		}
		s.logg.Warn(ctx, "payos webhook for unknown payment acknowledged")
		s.record(ctx, eventKey, data.OrderCode, status, string(payments.OutcomeNotFound), body, receivedAt)
		return &Result{Outcome: string(payments.OutcomeNotFound), OrderCode: data.OrderCode}, nil
	}
	ctx = s.logg.WithPaymentID(ctx, payment.ID.String())
	result := &Result{OrderCode: data.OrderCode, PaymentID: &payment.ID}

	if s.guard != nil {
		seen, guardErr := s.guard.CheckAndMark(ctx, eventKey)
		switch {
		case guardErr != nil:
			s.logg.Warn(s.logg.WithField(ctx, "error", guardErr.Error()), "webhook guard unavailable; continuing")
		case seen:
			result.Outcome = OutcomeRedelivered
			s.count(OutcomeRedelivered)
			return result, nil
		}
	}

	outcome, err := s.payments.ApplyGatewayStatus(ctx, payment.ID, status, payload.Data)
	if err != nil {
		if s.guard != nil {
			if delErr := s.guard.Delete(ctx, eventKey); delErr != nil {
				s.logg.Warn(s.logg.WithField(ctx, "error", delErr.Error()), "failed to clear webhook guard")
			}
		}
		return nil, err
	}
	result.Outcome = string(outcome)
	s.record(ctx, eventKey, data.OrderCode, status, result.Outcome, body, receivedAt)
	s.count(result.Outcome)
	s.logg.Info(s.logg.WithField(ctx, "outcome", result.Outcome), fmt.Sprintf("payos webhook %s processed", status.Name()))
	return result, nil
}

// record logs audit failures instead of returning them.
func (s *Service) record(ctx context.Context, eventKey string, orderCode int64, status payments.EventStatus, outcome string, body []byte, receivedAt time.Time) {
	if err := s.audit.Record(ctx, eventKey, orderCode, status.Name(), outcome, json.RawMessage(body), receivedAt); err != nil {
		s.logg.Error(ctx, "failed to audit webhook delivery", err)
	}
}

func (s *Service) count(outcome string) {
	if s.metrics != nil {
		s.metrics.IncWebhook(outcome)
	}
}
