package controllers

import (
	"net/http"

	"github.com/voltride/ebike-backend/api/middleware"
	"github.com/voltride/ebike-backend/api/responses"
	"github.com/voltride/ebike-backend/api/validators"
	checkoutsvc "github.com/voltride/ebike-backend/internal/checkout"
	pkgerrors "github.com/voltride/ebike-backend/pkg/errors"
	"github.com/voltride/ebike-backend/pkg/logger"
)

// Checkout converts the caller's cart into one order per fulfilling location.
// A partial success (some locations committed, some rolled back) answers 207
// with both lists so the client can show which orders exist.
func Checkout(svc checkoutsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "checkout service unavailable"))
			return
		}

		userID, ok := middleware.UserUUIDFromContext(r.Context())
		if !ok {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "user context missing"))
			return
		}

		var input checkoutsvc.CheckoutInput
		if err := validators.DecodeJSONBody(r, &input); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := svc.Execute(r.Context(), userID, input)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		status := http.StatusCreated
		if result.PartialSuccess() {
			status = http.StatusMultiStatus
		}
		responses.WriteSuccessStatus(w, status, result)
	}
}
