package controllers

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/farmcart/farmcart-backend/api/middleware"
	"github.com/farmcart/farmcart-backend/api/responses"
	"github.com/farmcart/farmcart-backend/api/validators"
	"github.com/farmcart/farmcart-backend/internal/settlement"
	"github.com/farmcart/farmcart-backend/pkg/enums"
	pkgerrors "github.com/farmcart/farmcart-backend/pkg/errors"
	"github.com/farmcart/farmcart-backend/pkg/logger"
)

type preparePaymentRequest struct {
	OrderID string `json:"order_id" validate:"required,uuid"`
}

// PreparePayment opens a checkout session with the chosen gateway and
// returns the redirect the buyer should follow.
func PreparePayment(svc settlement.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		provider, err := parseProvider(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var req preparePaymentRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		orderID, err := uuid.Parse(req.OrderID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "invalid order id"))
			return
		}

		output, err := svc.Prepare(r.Context(), settlement.PrepareInput{
			OrderID:  orderID,
			UserID:   middleware.UserIDFromContext(r.Context()),
			Provider: provider,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, output)
	}
}

// ApprovePayment is the gateway return leg. The buyer lands here after
// authorizing the charge; the reference parameter name differs per gateway.
func ApprovePayment(svc settlement.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		provider, err := parseProvider(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		rawOrderID := strings.TrimSpace(r.URL.Query().Get("order_id"))
		orderID, err := uuid.Parse(rawOrderID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "order_id query parameter required"))
			return
		}

		output, err := svc.Approve(r.Context(), settlement.ApproveInput{
			OrderID:     orderID,
			Provider:    provider,
			CallbackRef: callbackRef(r, provider),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, output)
	}
}

func parseProvider(r *http.Request) (enums.PaymentProvider, error) {
	raw := strings.TrimSpace(chi.URLParam(r, "provider"))
	provider, err := enums.ParsePaymentProvider(raw)
	if err != nil {
		return "", pkgerrors.Wrap(pkgerrors.CodeValidation, err, "unsupported payment provider")
	}
	return provider, nil
}

func callbackRef(r *http.Request, provider enums.PaymentProvider) string {
	query := r.URL.Query()
	switch provider {
	case enums.PaymentProviderKakaopay:
		return strings.TrimSpace(query.Get("pg_token"))
	case enums.PaymentProviderTosspay:
		return strings.TrimSpace(query.Get("paymentKey"))
	case enums.PaymentProviderNaverpay:
		return strings.TrimSpace(query.Get("paymentId"))
	}
	return ""
}
