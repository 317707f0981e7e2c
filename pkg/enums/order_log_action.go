package enums

import "fmt"

// OrderLogAction names the audited operations recorded in order_logs.
type OrderLogAction string

const (
	OrderLogActionCreate     OrderLogAction = "create"
	OrderLogActionSettle     OrderLogAction = "settle"
	OrderLogActionCancel     OrderLogAction = "cancel"
	OrderLogActionRefund     OrderLogAction = "refund"
	OrderLogActionDelivery   OrderLogAction = "delivery_update"
	OrderLogActionTransition OrderLogAction = "status_transition"
)

var validOrderLogActions = []OrderLogAction{
	OrderLogActionCreate,
	OrderLogActionSettle,
	OrderLogActionCancel,
	OrderLogActionRefund,
	OrderLogActionDelivery,
	OrderLogActionTransition,
}

// String implements fmt.Stringer.
func (o OrderLogAction) String() string {
	return string(o)
}

// IsValid reports whether the value is a known OrderLogAction.
func (o OrderLogAction) IsValid() bool {
	for _, candidate := range validOrderLogActions {
		if candidate == o {
			return true
		}
	}
	return false
}

// ParseOrderLogAction converts raw input into an OrderLogAction.
func ParseOrderLogAction(value string) (OrderLogAction, error) {
	for _, candidate := range validOrderLogActions {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid order log action %q", value)
}
