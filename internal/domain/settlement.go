package domain

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// PaymentTransition is the next payment state plus the events to emit after persisting it.
type PaymentTransition struct {
	Payment Payment
	Events  []Event
}

func (t PaymentTransition) Changed() bool { return len(t.Events) > 0 }

type NewCharge struct {
	RequestID  uuid.UUID
	PayerID    uuid.UUID
	PayeeID    *uuid.UUID
	Kind       PaymentKind
	BaseAmount decimal.Decimal
	Currency   string
	CouponID   *uuid.UUID
	Discount   decimal.Decimal
	IsEscrow   bool
	Actor      ActorKind
}

func invalidPaymentTransition(from PaymentStatus, to string) *InvalidTransitionError {
	return &InvalidTransitionError{Entity: "payment", From: string(from), To: to}
}

func paymentEvent(t EventType, p Payment, actor ActorKind, now time.Time, extra map[string]any) Event {
	payload := map[string]any{
		"paymentId": p.ID.String(),
		"kind":      string(p.Kind),
		"amount":    p.Amount.StringFixed(2),
		"currency":  p.Currency,
		"status":    string(p.Status),
	}
	for k, v := range extra {
		payload[k] = v
	}
	return NewEvent(t, p.ServiceRequestID, actor, now, payload)
}

// ClampDiscount keeps a discount within [0, base].
func ClampDiscount(discount, base decimal.Decimal) decimal.Decimal {
	if discount.IsNegative() {
		return decimal.Zero
	}
	if discount.GreaterThan(base) {
		return base
	}
	return discount
}

// NewPayment builds a pending charge. The payable amount never goes below zero.
func NewPayment(in NewCharge, id uuid.UUID, now time.Time) (PaymentTransition, error) {
	if !in.Kind.Valid() || in.Kind == PaymentRefund {
		return PaymentTransition{}, &ValidationError{Field: "kind", Reason: "must be booking_fee, service_fee or cancellation_fee"}
	}
	if !in.BaseAmount.IsPositive() {
		return PaymentTransition{}, &ValidationError{Field: "baseAmount", Reason: "must be greater than 0"}
	}
	if in.BaseAmount.Exponent() < -2 {
		return PaymentTransition{}, &ValidationError{Field: "baseAmount", Reason: "must have at most two decimal places"}
	}
	currency := strings.ToUpper(strings.TrimSpace(in.Currency))
	if len(currency) != 3 {
		return PaymentTransition{}, &ValidationError{Field: "currency", Reason: "must be a 3-letter ISO code"}
	}
	discount := ClampDiscount(in.Discount, in.BaseAmount)
	p := Payment{
		ID:               id,
		ServiceRequestID: in.RequestID,
		PayerID:          in.PayerID,
		PayeeID:          in.PayeeID,
		Amount:           in.BaseAmount.Sub(discount),
		Currency:         currency,
		Kind:             in.Kind,
		Status:           PaymentPending,
		CouponID:         in.CouponID,
		DiscountAmount:   discount,
		OriginalAmount:   in.BaseAmount,
		IsEscrow:         in.IsEscrow,
		Metadata:         NewMetadata(),
		Version:          1,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	extra := map[string]any{"originalAmount": p.OriginalAmount.StringFixed(2), "discountAmount": discount.StringFixed(2)}
	return PaymentTransition{Payment: p, Events: []Event{paymentEvent(EventPaymentInitiated, p, in.Actor, now, extra)}}, nil
}

// ComputeCommission returns the platform cut rounded half-to-even at two decimals and the net payable.
func ComputeCommission(amount, percentage decimal.Decimal) (commission, net decimal.Decimal) {
	commission = amount.Mul(percentage).Div(hundred).RoundBank(2)
	return commission, amount.Sub(commission)
}

// ApplyCommission finalizes commission on a pending service fee. A pinned
// percentage wins over currentRate; finalized amounts are never recomputed.
func ApplyCommission(p Payment, currentRate decimal.Decimal, now time.Time) (PaymentTransition, error) {
	if p.Kind != PaymentServiceFee {
		return PaymentTransition{}, &ValidationError{Field: "kind", Reason: "commission applies to service fees only"}
	}
	if p.HasFinalCommission() {
		return PaymentTransition{Payment: p}, nil
	}
	if p.Status != PaymentPending {
		return PaymentTransition{}, invalidPaymentTransition(p.Status, "commission_applied")
	}
	pct := currentRate
	if p.CommissionPercentage != nil {
		pct = *p.CommissionPercentage
	}
	if pct.IsNegative() || pct.GreaterThan(hundred) {
		return PaymentTransition{}, &ValidationError{Field: "commissionPercentage", Reason: "must be between 0 and 100"}
	}
	commission, net := ComputeCommission(p.Amount, pct)
	next := p
	next.CommissionPercentage = &pct
	next.CommissionAmount = &commission
	next.NetAmount = &net
	next.UpdatedAt = now
	ev := paymentEvent(EventPaymentCommission, next, ActorSystem, now, map[string]any{
		"commissionPercentage": pct.StringFixed(2),
		"commissionAmount":     commission.StringFixed(2),
		"netAmount":            net.StringFixed(2),
	})
	return PaymentTransition{Payment: next, Events: []Event{ev}}, nil
}

func CompletePayment(p Payment, gatewayRef string, now time.Time) (PaymentTransition, error) {
	if p.Status != PaymentPending {
		return PaymentTransition{}, invalidPaymentTransition(p.Status, string(PaymentCompleted))
	}
	next := p
	next.Status = PaymentCompleted
	next.GatewayRef = strings.TrimSpace(gatewayRef)
	next.FailureReason = ""
	next.UpdatedAt = now
	ev := paymentEvent(EventPaymentCompleted, next, ActorSystem, now, map[string]any{"gatewayRef": next.GatewayRef})
	return PaymentTransition{Payment: next, Events: []Event{ev}}, nil
}

func FailPayment(p Payment, reason string, now time.Time) (PaymentTransition, error) {
	if p.Status != PaymentPending {
		return PaymentTransition{}, invalidPaymentTransition(p.Status, string(PaymentFailed))
	}
	next := p
	next.Status = PaymentFailed
	next.FailureReason = strings.TrimSpace(reason)
	next.UpdatedAt = now
	ev := paymentEvent(EventPaymentFailed, next, ActorSystem, now, map[string]any{
		"reason":     next.FailureReason,
		"retryCount": next.RetryCount,
	})
	return PaymentTransition{Payment: next, Events: []Event{ev}}, nil
}

// RetryPayment resets a failed charge to pending, up to MaxPaymentRetries times.
func RetryPayment(p Payment, actor ActorKind, now time.Time) (PaymentTransition, error) {
	if p.Kind == PaymentRefund {
		return PaymentTransition{}, &ValidationError{Field: "kind", Reason: "refunds cannot be retried"}
	}
	if p.Status != PaymentFailed {
		return PaymentTransition{}, invalidPaymentTransition(p.Status, string(PaymentPending))
	}
	if p.RetryCount >= MaxPaymentRetries {
		return PaymentTransition{}, &RetryExhaustedError{PaymentID: p.ID, RetryCount: p.RetryCount}
	}
	next := p
	next.RetryCount++
	next.Status = PaymentPending
	next.UpdatedAt = now
	ev := paymentEvent(EventPaymentRetried, next, actor, now, map[string]any{"retryCount": next.RetryCount})
	return PaymentTransition{Payment: next, Events: []Event{ev}}, nil
}

// RefundPayment returns the refunded original plus a new pending refund entry
// with payer and payee swapped.
func RefundPayment(p Payment, refundID uuid.UUID, reason string, actor ActorKind, now time.Time) (PaymentTransition, Payment, error) {
	if p.Kind == PaymentRefund {
		return PaymentTransition{}, Payment{}, &ValidationError{Field: "kind", Reason: "a refund cannot be refunded"}
	}
	if p.Status != PaymentCompleted {
		return PaymentTransition{}, Payment{}, invalidPaymentTransition(p.Status, string(PaymentRefunded))
	}
	reason = strings.TrimSpace(reason)

	original := p
	original.Status = PaymentRefunded
	original.RefundReason = reason
	original.UpdatedAt = now

	sourceID := p.ID
	refund := Payment{
		ID:                refundID,
		ServiceRequestID:  p.ServiceRequestID,
		Amount:            p.Amount,
		Currency:          p.Currency,
		Kind:              PaymentRefund,
		Status:            PaymentPending,
		DiscountAmount:    decimal.Zero,
		OriginalAmount:    p.Amount,
		RefundOfPaymentID: &sourceID,
		RefundReason:      reason,
		GatewayRef:        "",
		Metadata:          NewMetadata().With("sourceGatewayRef", StringValue(p.GatewayRef)),
		Version:           1,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	if p.PayeeID != nil {
		refund.PayerID = *p.PayeeID
	}
	payee := p.PayerID
	refund.PayeeID = &payee

	events := []Event{
		paymentEvent(EventPaymentRefunded, original, actor, now, map[string]any{"reason": reason, "refundPaymentId": refundID.String()}),
		paymentEvent(EventRefundCreated, refund, actor, now, map[string]any{
			"refundOfPaymentId": sourceID.String(),
			"sourceGatewayRef":  p.GatewayRef,
			"reason":            reason,
		}),
	}
	return PaymentTransition{Payment: original, Events: events}, refund, nil
}

// ScheduleEscrow sets the release date on a completed escrowed payment.
func ScheduleEscrow(p Payment, releaseDate time.Time, now time.Time) (PaymentTransition, error) {
	if !p.IsEscrow {
		return PaymentTransition{}, &ValidationError{Field: "isEscrow", Reason: "payment is not held in escrow"}
	}
	if p.Status != PaymentCompleted {
		return PaymentTransition{}, invalidPaymentTransition(p.Status, "escrow_release_scheduled")
	}
	if releaseDate.IsZero() {
		return PaymentTransition{}, &ValidationError{Field: "releaseDate", Reason: "is required"}
	}
	next := p
	at := releaseDate.UTC()
	next.EscrowReleaseDate = &at
	next.UpdatedAt = now
	ev := paymentEvent(EventEscrowScheduled, next, ActorSystem, now, map[string]any{
		"releaseDate": at.Format(time.RFC3339),
		"gatewayRef":  p.GatewayRef,
	})
	if next.NetAmount != nil {
		ev.Payload["netAmount"] = next.NetAmount.StringFixed(2)
	}
	return PaymentTransition{Payment: next, Events: []Event{ev}}, nil
}

// CancelPayment voids a charge that was never collected.
func CancelPayment(p Payment, actor ActorKind, now time.Time) (PaymentTransition, error) {
	if p.Status != PaymentPending && p.Status != PaymentFailed {
		return PaymentTransition{}, invalidPaymentTransition(p.Status, string(PaymentCancelled))
	}
	next := p
	next.Status = PaymentCancelled
	next.UpdatedAt = now
	return PaymentTransition{Payment: next, Events: []Event{paymentEvent(EventPaymentCancelled, next, actor, now, nil)}}, nil
}
