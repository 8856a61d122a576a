package gateway

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// RefundOrder is a refund the platform has committed to and the gateway must execute.
type RefundOrder struct {
	RefundPaymentID  uuid.UUID
	SourceGatewayRef string
	Amount           decimal.Decimal
	Currency         string
	Reason           string
}

func (o RefundOrder) Validate() error {
	if o.SourceGatewayRef == "" {
		return fmt.Errorf("refund %s: source payment has no gateway reference", o.RefundPaymentID)
	}
	if !o.Amount.IsPositive() {
		return fmt.Errorf("refund %s: amount must be positive", o.RefundPaymentID)
	}
	return nil
}

// MinorUnits converts a two-decimal amount to the gateway's integer unit.
func MinorUnits(amount decimal.Decimal) int64 {
	return amount.Shift(2).Round(0).IntPart()
}

// Refunder executes refunds against the payment gateway and returns its refund ID.
type Refunder interface {
	Refund(ctx context.Context, order RefundOrder) (string, error)
}
