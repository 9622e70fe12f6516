package webhooks

import (
	"context"
	"io"
	"net/http"
	"strings"

	"github.com/voltride/ebike-backend/api/responses"
	payoswebhook "github.com/voltride/ebike-backend/internal/webhooks/payos"
	pkgerrors "github.com/voltride/ebike-backend/pkg/errors"
	"github.com/voltride/ebike-backend/pkg/logger"
)

const maxWebhookBodyBytes = 1 << 20

type PayOSWebhookService interface {
	HandleDelivery(ctx context.Context, body []byte, headerSignature string) (*payoswebhook.Result, error)
}

// payosAck is the envelope PayOS expects back; anything else is retried.
type payosAck struct {
	Code    string               `json:"code"`
	Desc    string               `json:"desc"`
	Success bool                 `json:"success"`
	Data    *payoswebhook.Result `json:"data,omitempty"`
}

// PayOSWebhook authenticates and applies PayOS payment notifications.
func PayOSWebhook(svc PayOSWebhookService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "webhook service unavailable"))
			return
		}

		payload, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBodyBytes))
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "read request body"))
			return
		}

		result, err := svc.HandleDelivery(ctx, payload, signatureHeader(r))
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		writeAck(w, result)
	}
}

func signatureHeader(r *http.Request) string {
	for _, name := range []string{"x-payos-signature", "x-signature"} {
		if v := strings.TrimSpace(r.Header.Get(name)); v != "" {
			return v
		}
	}
	return ""
}

func writeAck(w http.ResponseWriter, result *payoswebhook.Result) {
	responses.WriteJSON(w, http.StatusOK, payosAck{Code: "00", Desc: "success", Success: true, Data: result})
}
