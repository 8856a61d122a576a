package gateway

import (
	"context"
	"fmt"

	"github.com/stripe/stripe-go/v83"
	"github.com/stripe/stripe-go/v83/refund"
)

type StripeRefunder struct{}

// NewStripeRefunder configures the package-level Stripe key.
func NewStripeRefunder(secretKey string) (*StripeRefunder, error) {
	if secretKey == "" {
		return nil, fmt.Errorf("stripe secret key is required")
	}
	stripe.Key = secretKey
	return &StripeRefunder{}, nil
}

// Refund refunds part or all of the original PaymentIntent. The refund payment
// ID is the idempotency key so a redelivered event cannot refund twice.
func (s *StripeRefunder) Refund(ctx context.Context, order RefundOrder) (string, error) {
	if err := order.Validate(); err != nil {
		return "", err
	}
	params := &stripe.RefundParams{
		PaymentIntent: stripe.String(order.SourceGatewayRef),
		Amount:        stripe.Int64(MinorUnits(order.Amount)),
		Reason:        stripe.String("requested_by_customer"),
	}
	params.SetIdempotencyKey("refund-" + order.RefundPaymentID.String())
	params.AddMetadata("refund_payment_id", order.RefundPaymentID.String())
	if order.Reason != "" {
		params.AddMetadata("reason", order.Reason)
	}

	r, err := refund.New(params)
	if err != nil {
		return "", fmt.Errorf("stripe refund for %s: %w", order.SourceGatewayRef, err)
	}
	return r.ID, nil
}
