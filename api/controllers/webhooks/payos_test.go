package webhooks

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/voltride/ebike-backend/internal/payments"
	payoswebhook "github.com/voltride/ebike-backend/internal/webhooks/payos"
	"github.com/voltride/ebike-backend/pkg/db/models"
	pkgerrors "github.com/voltride/ebike-backend/pkg/errors"
	"github.com/voltride/ebike-backend/pkg/logger"
	"github.com/voltride/ebike-backend/pkg/payos"
)

const checksumKey = "webhook-test-checksum"

type stubReconciler struct {
	payment *models.Payment
	applied int
}

func (s *stubReconciler) Locate(ctx context.Context, orderCode int64, reference string) (*models.Payment, error) {
	if s.payment == nil || s.payment.GatewayOrderCode == nil || *s.payment.GatewayOrderCode != orderCode {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "payment not found")
	}
	return s.payment, nil
}

func (s *stubReconciler) ApplyGatewayStatus(ctx context.Context, paymentID uuid.UUID, status payments.EventStatus, raw json.RawMessage) (payments.Outcome, error) {
	s.applied++
	return payments.OutcomeApplied, nil
}

type stubAudit struct{ outcomes []string }

func (s *stubAudit) Record(ctx context.Context, eventKey string, orderCode int64, status, outcome string, payload json.RawMessage, receivedAt time.Time) error {
	s.outcomes = append(s.outcomes, outcome)
	return nil
}

func newWebhookService(t *testing.T, reconciler *stubReconciler) *payoswebhook.Service {
	t.Helper()
	svc, err := payoswebhook.NewService(payoswebhook.ServiceParams{
		Payments:    reconciler,
		Audit:       &stubAudit{},
		Logger:      logger.New(logger.Options{ServiceName: "test", Output: io.Discard}),
		ChecksumKey: checksumKey,
	})
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	return svc
}

func signedDelivery(t *testing.T, orderCode int64, amount int64) (body []byte, signature string) {
	t.Helper()
	data, err := json.Marshal(map[string]any{
		"orderCode":           orderCode,
		"amount":              amount,
		"description":         "Don ORD202610180001",
		"accountNumber":       "12345678",
		"reference":           "FT123",
		"transactionDateTime": "2026-10-18 10:00:00",
		"currency":            "VND",
		"paymentLinkId":       "link-1",
		"code":                "00",
		"desc":                "success",
	})
	if err != nil {
		t.Fatalf("marshal data: %v", err)
	}
	signature, err = payos.SignData(checksumKey, data)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	body, err = json.Marshal(map[string]any{
		"code":      "00",
		"desc":      "success",
		"success":   true,
		"data":      json.RawMessage(data),
		"signature": signature,
	})
	if err != nil {
		t.Fatalf("marshal body: %v", err)
	}
	return body, signature
}

func TestPayOSWebhookAppliesSignedDelivery(t *testing.T) {
	code := int64(987654321001)
	reconciler := &stubReconciler{payment: &models.Payment{ID: uuid.New(), GatewayOrderCode: &code}}
	handler := PayOSWebhook(newWebhookService(t, reconciler), nil)

	body, _ := signedDelivery(t, code, 1500000)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/webhooks/payos", bytes.NewReader(body)))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (%s)", rec.Code, rec.Body.String())
	}
	var ack payosAck
	if err := json.Unmarshal(rec.Body.Bytes(), &ack); err != nil {
		t.Fatalf("decode ack: %v", err)
	}
	if ack.Code != "00" || ack.Desc != "success" || !ack.Success {
		t.Fatalf("unexpected ack %+v", ack)
	}
	if reconciler.applied != 1 {
		t.Fatalf("expected one apply, got %d", reconciler.applied)
	}
}

func TestPayOSWebhookPrefersHeaderSignature(t *testing.T) {
	code := int64(987654321002)
	reconciler := &stubReconciler{payment: &models.Payment{ID: uuid.New(), GatewayOrderCode: &code}}
	handler := PayOSWebhook(newWebhookService(t, reconciler), nil)

	body, _ := signedDelivery(t, code, 1500000)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/webhooks/payos", bytes.NewReader(body))
	req.Header.Set("x-payos-signature", "deadbeef")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for bad header signature, got %d", rec.Code)
	}
	if reconciler.applied != 0 {
		t.Fatalf("rejected delivery must not be applied")
	}
}

func TestPayOSWebhookRejectsTamperedAmount(t *testing.T) {
	code := int64(987654321003)
	reconciler := &stubReconciler{payment: &models.Payment{ID: uuid.New(), GatewayOrderCode: &code}}
	handler := PayOSWebhook(newWebhookService(t, reconciler), nil)

	_, signature := signedDelivery(t, code, 1500000)
	tampered, _ := signedDelivery(t, code, 1000)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/webhooks/payos", bytes.NewReader(tampered))
	req.Header.Set("x-signature", signature)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
	if reconciler.applied != 0 {
		t.Fatalf("tampered delivery must not be applied")
	}
}

func TestPayOSWebhookUnknownPaymentIsAcknowledged(t *testing.T) {
	handler := PayOSWebhook(newWebhookService(t, &stubReconciler{}), nil)

	body, _ := signedDelivery(t, 555000111, 20000)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/webhooks/payos", bytes.NewReader(body)))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var ack payosAck
	if err := json.Unmarshal(rec.Body.Bytes(), &ack); err != nil {
		t.Fatalf("decode ack: %v", err)
	}
	if ack.Data == nil || ack.Data.Outcome != string(payments.OutcomeNotFound) {
		t.Fatalf("expected not_found outcome, got %+v", ack.Data)
	}
}

func TestPayOSWebhookMalformedBody(t *testing.T) {
	handler := PayOSWebhook(newWebhookService(t, &stubReconciler{}), nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/webhooks/payos", bytes.NewReader([]byte("{"))))

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}
