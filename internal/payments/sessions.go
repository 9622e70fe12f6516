package payments

import "context"

// SessionCloser lets the order service close the gateway session of a
// cancelled order without depending on this package.
type SessionCloser struct {
	Gateway Gateway
}

func (c SessionCloser) CancelSession(ctx context.Context, gatewayOrderCode int64, reason string) error {
	_, err := c.Gateway.CancelPaymentLink(ctx, gatewayOrderCode, reason)
	return err
}
