package enums

import "fmt"

// DeliveryStatus is the internal vocabulary carrier events are mapped into.
type DeliveryStatus string

const (
	DeliveryStatusPreparing DeliveryStatus = "preparing"
	DeliveryStatusShipping  DeliveryStatus = "shipping"
	DeliveryStatusDelivered DeliveryStatus = "delivered"
)

var validDeliveryStatuses = []DeliveryStatus{
	DeliveryStatusPreparing,
	DeliveryStatusShipping,
	DeliveryStatusDelivered,
}

// String implements fmt.Stringer.
func (d DeliveryStatus) String() string {
	return string(d)
}

// IsValid reports whether the value is a known DeliveryStatus.
func (d DeliveryStatus) IsValid() bool {
	for _, candidate := range validDeliveryStatuses {
		if candidate == d {
			return true
		}
	}
	return false
}

// OrderStatus maps the delivery vocabulary onto the order lifecycle.
func (d DeliveryStatus) OrderStatus() OrderStatus {
	switch d {
	case DeliveryStatusPreparing:
		return OrderStatusPreparing
	case DeliveryStatusShipping:
		return OrderStatusShipping
	case DeliveryStatusDelivered:
		return OrderStatusDelivered
	}
	return ""
}

// ParseDeliveryStatus converts raw input into a DeliveryStatus.
func ParseDeliveryStatus(value string) (DeliveryStatus, error) {
	for _, candidate := range validDeliveryStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid delivery status %q", value)
}
