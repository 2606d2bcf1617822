package payment

import (
	"strings"

	"github.com/vasiliy-maslov/marketplace-checkout/internal/order"
)

// Gateway names used in logs, metrics and webhook routes.
const (
	GatewayHosted       = "hosted"
	GatewayFormRedirect = "form-redirect"
)

// Vendor vocabularies are translated here and nowhere else. Anything missing
// from a table is rejected rather than stored.
var formStatuses = map[string]order.PaymentStatus{
	"COMPLETE":  order.PaymentCompleted,
	"FAILED":    order.PaymentFailed,
	"CANCELLED": order.PaymentFailed,
	"PENDING":   order.PaymentPending,
}

var hostedStatuses = map[string]order.PaymentStatus{
	"succeeded": order.PaymentCompleted,
	"completed": order.PaymentCompleted,
	"pending":   order.PaymentPending,
	"cancelled": order.PaymentFailed,
	"failed":    order.PaymentFailed,
	"expired":   order.PaymentFailed,
}

func MapFormStatus(raw string) (order.PaymentStatus, bool) {
	s, ok := formStatuses[strings.ToUpper(strings.TrimSpace(raw))]
	return s, ok
}

func MapHostedStatus(raw string) (order.PaymentStatus, bool) {
	s, ok := hostedStatuses[strings.ToLower(strings.TrimSpace(raw))]
	return s, ok
}
