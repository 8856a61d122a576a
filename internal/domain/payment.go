package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type PaymentKind string

const (
	PaymentBookingFee      PaymentKind = "booking_fee"
	PaymentServiceFee      PaymentKind = "service_fee"
	PaymentCancellationFee PaymentKind = "cancellation_fee"
	PaymentRefund          PaymentKind = "refund"
)

func (k PaymentKind) Valid() bool {
	switch k {
	case PaymentBookingFee, PaymentServiceFee, PaymentCancellationFee, PaymentRefund:
		return true
	}
	return false
}

type PaymentStatus string

const (
	PaymentPending   PaymentStatus = "pending"
	PaymentCompleted PaymentStatus = "completed"
	PaymentFailed    PaymentStatus = "failed"
	PaymentRefunded  PaymentStatus = "refunded"
	PaymentCancelled PaymentStatus = "cancelled"
)

func (s PaymentStatus) IsTerminal() bool {
	return s == PaymentCompleted || s == PaymentRefunded || s == PaymentCancelled
}

// MaxPaymentRetries caps caller-invoked retries of a failed charge.
const MaxPaymentRetries = 3

type Payment struct {
	ID                   uuid.UUID        `json:"id"`
	ServiceRequestID     uuid.UUID        `json:"serviceRequestId"`
	PayerID              uuid.UUID        `json:"payerId"`
	PayeeID              *uuid.UUID       `json:"payeeId"`
	Amount               decimal.Decimal  `json:"amount"`
	Currency             string           `json:"currency"`
	Kind                 PaymentKind      `json:"kind"`
	Status               PaymentStatus    `json:"status"`
	CommissionPercentage *decimal.Decimal `json:"commissionPercentage,omitempty"`
	CommissionAmount     *decimal.Decimal `json:"commissionAmount,omitempty"`
	NetAmount            *decimal.Decimal `json:"netAmount,omitempty"`
	CouponID             *uuid.UUID       `json:"couponId,omitempty"`
	DiscountAmount       decimal.Decimal  `json:"discountAmount"`
	OriginalAmount       decimal.Decimal  `json:"originalAmount"`
	RetryCount           int              `json:"retryCount"`
	FailureReason        string           `json:"failureReason,omitempty"`
	GatewayRef           string           `json:"gatewayRef,omitempty"`
	RefundOfPaymentID    *uuid.UUID       `json:"refundOfPaymentId,omitempty"`
	RefundReason         string           `json:"refundReason,omitempty"`
	IsEscrow             bool             `json:"isEscrow"`
	EscrowReleaseDate    *time.Time       `json:"escrowReleaseDate,omitempty"`
	Metadata             Metadata         `json:"metadata"`
	Version              int              `json:"version"`
	CreatedAt            time.Time        `json:"createdAt"`
	UpdatedAt            time.Time        `json:"updatedAt"`
}

// HasFinalCommission is true once commission amounts were computed.
func (p Payment) HasFinalCommission() bool {
	return p.CommissionAmount != nil && p.NetAmount != nil
}

type PaymentGuard struct {
	Status  PaymentStatus
	Version int
}

func (p Payment) Guard() PaymentGuard {
	return PaymentGuard{Status: p.Status, Version: p.Version}
}

type PaymentRepository interface {
	Create(ctx context.Context, p *Payment) error
	GetByID(ctx context.Context, id uuid.UUID) (*Payment, error)
	ListByRequest(ctx context.Context, requestID uuid.UUID) ([]Payment, error)
	// UpdateIf writes next only if the stored row still matches guard.
	UpdateIf(ctx context.Context, next *Payment, guard PaymentGuard) (bool, error)
	// CreateRefund marks original refunded (guarded) and inserts refund as one unit.
	// It returns false when the guard no longer matches or a refund already exists.
	CreateRefund(ctx context.Context, original *Payment, guard PaymentGuard, refund *Payment) (bool, error)
	FindRefundOf(ctx context.Context, paymentID uuid.UUID) (*Payment, error)
}

// ProviderRepository exposes the provider's current commission rate.
type ProviderRepository interface {
	// CommissionRate returns the rate and false when the provider has none configured.
	CommissionRate(ctx context.Context, caID uuid.UUID) (decimal.Decimal, bool, error)
}
