package enums

import "fmt"

// OrderStatus tracks the lifecycle of a customer order.
type OrderStatus string

const (
	OrderStatusPending        OrderStatus = "pending"
	OrderStatusPaymentPending OrderStatus = "payment_pending"
	OrderStatusPaid           OrderStatus = "paid"
	OrderStatusPreparing      OrderStatus = "preparing"
	OrderStatusShipping       OrderStatus = "shipping"
	OrderStatusDelivered      OrderStatus = "delivered"
	OrderStatusCanceled       OrderStatus = "canceled"
	OrderStatusRefunded       OrderStatus = "refunded"
)

var validOrderStatuses = []OrderStatus{
	OrderStatusPending,
	OrderStatusPaymentPending,
	OrderStatusPaid,
	OrderStatusPreparing,
	OrderStatusShipping,
	OrderStatusDelivered,
	OrderStatusCanceled,
	OrderStatusRefunded,
}

// String implements fmt.Stringer.
func (o OrderStatus) String() string {
	return string(o)
}

// IsValid reports whether the value is a known OrderStatus.
func (o OrderStatus) IsValid() bool {
	for _, candidate := range validOrderStatuses {
		if candidate == o {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no further transition may leave this status.
func (o OrderStatus) IsTerminal() bool {
	switch o {
	case OrderStatusDelivered, OrderStatusCanceled, OrderStatusRefunded:
		return true
	}
	return false
}

// ParseOrderStatus converts raw input into an OrderStatus. The historical
// spelling "cancelled" is accepted and normalized to "canceled".
func ParseOrderStatus(value string) (OrderStatus, error) {
	if value == "cancelled" {
		return OrderStatusCanceled, nil
	}
	for _, candidate := range validOrderStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid order status %q", value)
}

var orderStatusTransitions = map[OrderStatus][]OrderStatus{
	OrderStatusPending:        {OrderStatusPaymentPending, OrderStatusCanceled, OrderStatusRefunded},
	OrderStatusPaymentPending: {OrderStatusPaid, OrderStatusCanceled, OrderStatusRefunded},
	OrderStatusPaid:           {OrderStatusPreparing, OrderStatusCanceled, OrderStatusRefunded},
	OrderStatusPreparing:      {OrderStatusShipping, OrderStatusCanceled, OrderStatusRefunded},
	OrderStatusShipping:       {OrderStatusDelivered, OrderStatusCanceled, OrderStatusRefunded},
	OrderStatusDelivered:      nil,
	OrderStatusCanceled:       nil,
	OrderStatusRefunded:       nil,
}

// CanTransitionTo reports whether the lifecycle permits moving from o to next.
// A no-op transition to the same status is not permitted here; callers that
// need idempotent re-application check equality first.
func (o OrderStatus) CanTransitionTo(next OrderStatus) bool {
	for _, candidate := range orderStatusTransitions[o] {
		if candidate == next {
			return true
		}
	}
	return false
}
