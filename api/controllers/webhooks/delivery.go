package webhooks

import (
	"net/http"

	"github.com/farmcart/farmcart-backend/api/responses"
	"github.com/farmcart/farmcart-backend/api/validators"
	"github.com/farmcart/farmcart-backend/internal/delivery"
	"github.com/farmcart/farmcart-backend/pkg/logger"
)

type deliveryWebhookRequest struct {
	CarrierID      string `json:"carrierId" validate:"required,max=64"`
	TrackingNumber string `json:"trackingNumber" validate:"required,max=64"`
}

// DeliveryWebhook is the carrier's nudge that a parcel changed state. The
// payload only identifies the parcel; the reconciler asks the aggregator
// what actually happened.
func DeliveryWebhook(svc delivery.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req deliveryWebhookRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		output, err := svc.Reconcile(r.Context(), req.CarrierID, req.TrackingNumber)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, output)
	}
}
