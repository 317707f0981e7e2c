package controllers

import (
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/farmcart/farmcart-backend/api/middleware"
	"github.com/farmcart/farmcart-backend/api/responses"
	"github.com/farmcart/farmcart-backend/api/validators"
	"github.com/farmcart/farmcart-backend/internal/orders"
	"github.com/farmcart/farmcart-backend/internal/refunds"
	"github.com/farmcart/farmcart-backend/pkg/enums"
	pkgerrors "github.com/farmcart/farmcart-backend/pkg/errors"
	"github.com/farmcart/farmcart-backend/pkg/logger"
	"github.com/farmcart/farmcart-backend/pkg/pagination"
)

type createOrderItem struct {
	ProductID string `json:"product_id" validate:"required,uuid"`
	OptionID  string `json:"option_id,omitempty" validate:"omitempty,uuid"`
	Quantity  int    `json:"quantity" validate:"required,min=1"`
}

type createOrderRequest struct {
	Currency string            `json:"currency,omitempty" validate:"omitempty,len=3"`
	Items    []createOrderItem `json:"items" validate:"required,min=1,dive"`
}

// CreateOrder opens a pending order from the caller's cart snapshot.
func CreateOrder(svc orders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req createOrderRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		input := orders.CreateOrderInput{
			UserID:   middleware.UserIDFromContext(r.Context()),
			Currency: enums.Currency(strings.ToUpper(req.Currency)),
			Items:    make([]orders.OrderItemInput, 0, len(req.Items)),
		}
		for _, item := range req.Items {
			productID, err := uuid.Parse(item.ProductID)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "invalid product id"))
				return
			}
			entry := orders.OrderItemInput{ProductID: productID, Quantity: item.Quantity}
			if item.OptionID != "" {
				optionID, err := uuid.Parse(item.OptionID)
				if err != nil {
					responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "invalid option id"))
					return
				}
				entry.OptionID = &optionID
			}
			input.Items = append(input.Items, entry)
		}

		detail, err := svc.Create(r.Context(), input)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, detail)
	}
}

// ListOrders returns the caller's cursor-paginated order history.
func ListOrders(svc orders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit, err := validators.ParseQueryInt(r, "limit", pagination.DefaultLimit, 1, pagination.MaxLimit)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		params := pagination.Params{
			Limit:  limit,
			Cursor: strings.TrimSpace(r.URL.Query().Get("cursor")),
		}

		filters, err := parseListFilters(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		list, err := svc.List(r.Context(), middleware.UserIDFromContext(r.Context()), params, filters)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, list)
	}
}

// GetOrder returns the full detail of one of the caller's orders.
func GetOrder(svc orders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		orderID, err := validators.ParseUUIDParam(r, "orderID")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		detail, err := svc.Get(r.Context(), orderID, middleware.UserIDFromContext(r.Context()))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, detail)
	}
}

type transitionRequest struct {
	Status string `json:"status" validate:"required"`
}

// TransitionOrder moves the caller's order along the fulfillment chain.
// Only the order's owner (or automation) may move it; cancellation has its
// own endpoint.
func TransitionOrder(svc orders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		orderID, err := validators.ParseUUIDParam(r, "orderID")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var req transitionRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		target, err := enums.ParseOrderStatus(req.Status)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid status"))
			return
		}
		switch target {
		case enums.OrderStatusCanceled, enums.OrderStatusRefunded:
			responses.WriteError(r.Context(), logg, w,
				pkgerrors.New(pkgerrors.CodeValidation, "use the cancel endpoint to void an order"))
			return
		}

		input := orders.TransitionInput{
			OrderID: orderID,
			Target:  target,
			ActorID: middleware.UserIDFromContext(r.Context()),
		}
		if err := svc.Transition(r.Context(), input); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]any{"order_id": orderID, "status": target})
	}
}

type cancelOrderRequest struct {
	Reason string `json:"reason,omitempty" validate:"omitempty,max=500"`
	Refund bool   `json:"refund,omitempty"`
}

// CancelOrder voids an order, refunding through the gateway when settled.
func CancelOrder(svc refunds.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		orderID, err := validators.ParseUUIDParam(r, "orderID")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var req cancelOrderRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		output, err := svc.Cancel(r.Context(), refunds.CancelInput{
			OrderID: orderID,
			ActorID: middleware.UserIDFromContext(r.Context()),
			Reason:  validators.SanitizeString(req.Reason, 500),
			Refund:  req.Refund,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, output)
	}
}

func parseListFilters(r *http.Request) (orders.ListFilters, error) {
	var filters orders.ListFilters

	if raw := strings.TrimSpace(r.URL.Query().Get("status")); raw != "" {
		status, err := enums.ParseOrderStatus(raw)
		if err != nil {
			return filters, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid status filter")
		}
		filters.Status = &status
	}
	if raw := strings.TrimSpace(r.URL.Query().Get("from")); raw != "" {
		from, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return filters, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid from timestamp")
		}
		filters.DateFrom = &from
	}
	if raw := strings.TrimSpace(r.URL.Query().Get("to")); raw != "" {
		to, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return filters, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid to timestamp")
		}
		filters.DateTo = &to
	}
	return filters, nil
}
