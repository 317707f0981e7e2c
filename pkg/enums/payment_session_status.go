package enums

import "fmt"

// PaymentSessionStatus tracks a single charge attempt against a provider.
type PaymentSessionStatus string

const (
	PaymentSessionStatusReady     PaymentSessionStatus = "ready"
	PaymentSessionStatusCompleted PaymentSessionStatus = "completed"
	PaymentSessionStatusCanceled  PaymentSessionStatus = "canceled"
)

var validPaymentSessionStatuses = []PaymentSessionStatus{
	PaymentSessionStatusReady,
	PaymentSessionStatusCompleted,
	PaymentSessionStatusCanceled,
}

// String implements fmt.Stringer.
func (p PaymentSessionStatus) String() string {
	return string(p)
}

// IsValid reports whether the value is a known PaymentSessionStatus.
func (p PaymentSessionStatus) IsValid() bool {
	for _, candidate := range validPaymentSessionStatuses {
		if candidate == p {
			return true
		}
	}
	return false
}

// IsTerminal reports whether the session can no longer change.
func (p PaymentSessionStatus) IsTerminal() bool {
	return p == PaymentSessionStatusCompleted || p == PaymentSessionStatusCanceled
}

// ParsePaymentSessionStatus converts raw input into a PaymentSessionStatus.
// The historical spelling "cancelled" is accepted and normalized.
func ParsePaymentSessionStatus(value string) (PaymentSessionStatus, error) {
	if value == "cancelled" {
		return PaymentSessionStatusCanceled, nil
	}
	for _, candidate := range validPaymentSessionStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid payment session status %q", value)
}
