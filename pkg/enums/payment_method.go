package enums

import "fmt"

// PaymentMethod is how the customer settles an order.
type PaymentMethod string

const (
	PaymentMethodCash  PaymentMethod = "cash"
	PaymentMethodPayOS PaymentMethod = "payos"
)

var validPaymentMethods = []PaymentMethod{
	PaymentMethodCash,
	PaymentMethodPayOS,
}

// String implements fmt.Stringer.
func (m PaymentMethod) String() string {
	return string(m)
}

// IsValid reports whether the value is a known PaymentMethod.
func (m PaymentMethod) IsValid() bool {
	for _, candidate := range validPaymentMethods {
		if candidate == m {
			return true
		}
	}
	return false
}

// IsOnline reports whether the method settles through a payment gateway.
func (m PaymentMethod) IsOnline() bool {
	return m == PaymentMethodPayOS
}

// OnlinePaymentMethods lists the gateway-backed methods.
func OnlinePaymentMethods() []PaymentMethod {
	out := make([]PaymentMethod, 0, len(validPaymentMethods))
	for _, m := range validPaymentMethods {
		if m.IsOnline() {
			out = append(out, m)
		}
	}
	return out
}

// ParsePaymentMethod converts raw input into a PaymentMethod.
func ParsePaymentMethod(value string) (PaymentMethod, error) {
	for _, candidate := range validPaymentMethods {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid payment method %q", value)
}
