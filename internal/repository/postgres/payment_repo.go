package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"caconnect-backend/internal/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
)

const paymentColumns = `id, service_request_id, payer_id, payee_id, amount, currency, kind, status,
	commission_percentage, commission_amount, net_amount, coupon_id, discount_amount, original_amount,
	retry_count, failure_reason, gateway_ref, refund_of_payment_id, refund_reason, is_escrow,
	escrow_release_date, metadata, version, created_at, updated_at`

// errStaleRefund aborts the refund transaction when it lost a race.
var errStaleRefund = errors.New("refund source changed")

type paymentRepository struct {
	db *pgxpool.Pool
}

func NewPaymentRepository(db *pgxpool.Pool) domain.PaymentRepository {
	return &paymentRepository{db: db}
}

func insertPayment(ctx context.Context, q DBTX, p *domain.Payment) error {
	_, err := q.Exec(ctx, `
		INSERT INTO payments (`+paymentColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20,
			$21, $22, $23, $24, $25)`,
		p.ID, p.ServiceRequestID, p.PayerID, toPgUUID(p.PayeeID), toNumeric(p.Amount), p.Currency,
		string(p.Kind), string(p.Status), toNullNumeric(p.CommissionPercentage),
		toNullNumeric(p.CommissionAmount), toNullNumeric(p.NetAmount), toPgUUID(p.CouponID),
		toNumeric(p.DiscountAmount), toNumeric(p.OriginalAmount), p.RetryCount, p.FailureReason,
		p.GatewayRef, toPgUUID(p.RefundOfPaymentID), p.RefundReason, p.IsEscrow, p.EscrowReleaseDate,
		p.Metadata, p.Version, p.CreatedAt, p.UpdatedAt,
	)
	return err
}

func (r *paymentRepository) Create(ctx context.Context, p *domain.Payment) error {
	if err := insertPayment(ctx, conn(ctx, r.db), p); err != nil {
		return fmt.Errorf("insert payment: %w", err)
	}
	return nil
}

func (r *paymentRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Payment, error) {
	row := conn(ctx, r.db).QueryRow(ctx, `SELECT `+paymentColumns+` FROM payments WHERE id = $1`, id)
	p, err := scanPayment(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.NewNotFound("payment", id)
	}
	if err != nil {
		return nil, fmt.Errorf("get payment: %w", err)
	}
	return p, nil
}

func (r *paymentRepository) ListByRequest(ctx context.Context, requestID uuid.UUID) ([]domain.Payment, error) {
	rows, err := conn(ctx, r.db).Query(ctx,
		`SELECT `+paymentColumns+` FROM payments WHERE service_request_id = $1 ORDER BY created_at`, requestID)
	if err != nil {
		return nil, fmt.Errorf("list payments: %w", err)
	}
	defer rows.Close()

	var out []domain.Payment
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, fmt.Errorf("scan payment: %w", err)
		}
		out = append(out, *p)
	}
	return out, rows.Err()
}

func updatePayment(ctx context.Context, q DBTX, next *domain.Payment, guard domain.PaymentGuard) (bool, error) {
	tag, err := q.Exec(ctx, `
		UPDATE payments SET
			status = $2, commission_percentage = $3, commission_amount = $4, net_amount = $5,
			retry_count = $6, failure_reason = $7, gateway_ref = $8, refund_reason = $9,
			escrow_release_date = $10, metadata = $11, updated_at = $12, version = version + 1
		WHERE id = $1 AND status = $13 AND version = $14`,
		next.ID, string(next.Status), toNullNumeric(next.CommissionPercentage),
		toNullNumeric(next.CommissionAmount), toNullNumeric(next.NetAmount), next.RetryCount,
		next.FailureReason, next.GatewayRef, next.RefundReason, next.EscrowReleaseDate, next.Metadata,
		next.UpdatedAt, string(guard.Status), guard.Version,
	)
	if err != nil {
		return false, err
	}
	if tag.RowsAffected() == 0 {
		return false, nil
	}
	next.Version = guard.Version + 1
	return true, nil
}

func (r *paymentRepository) UpdateIf(ctx context.Context, next *domain.Payment, guard domain.PaymentGuard) (bool, error) {
	ok, err := updatePayment(ctx, conn(ctx, r.db), next, guard)
	if err != nil {
		return false, fmt.Errorf("update payment: %w", err)
	}
	return ok, nil
}

// CreateRefund flips the source payment and inserts the refund entry in one transaction.
// The partial unique index on refund_of_payment_id rejects a second refund.
func (r *paymentRepository) CreateRefund(ctx context.Context, original *domain.Payment, guard domain.PaymentGuard, refund *domain.Payment) (bool, error) {
	err := withTx(ctx, r.db, func(q DBTX) error {
		ok, err := updatePayment(ctx, q, original, guard)
		if err != nil {
			return err
		}
		if !ok {
			return errStaleRefund
		}
		if err := insertPayment(ctx, q, refund); err != nil {
			if isUniqueViolation(err) {
				return errStaleRefund
			}
			return err
		}
		return nil
	})
	if errors.Is(err, errStaleRefund) {
		original.Version = guard.Version
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("create refund: %w", err)
	}
	return true, nil
}

func (r *paymentRepository) FindRefundOf(ctx context.Context, paymentID uuid.UUID) (*domain.Payment, error) {
	row := conn(ctx, r.db).QueryRow(ctx,
		`SELECT `+paymentColumns+` FROM payments WHERE refund_of_payment_id = $1`, paymentID)
	p, err := scanPayment(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find refund: %w", err)
	}
	return p, nil
}

func scanPayment(row pgx.Row) (*domain.Payment, error) {
	var (
		p                                  domain.Payment
		payee, coupon, refundOf            pgtype.UUID
		amount, discount, original         pgtype.Numeric
		commissionPct, commission, netAmnt pgtype.Numeric
		kind, status                       string
		releaseDate                        *time.Time
	)
	err := row.Scan(
		&p.ID, &p.ServiceRequestID, &p.PayerID, &payee, &amount, &p.Currency, &kind, &status,
		&commissionPct, &commission, &netAmnt, &coupon, &discount, &original, &p.RetryCount,
		&p.FailureReason, &p.GatewayRef, &refundOf, &p.RefundReason, &p.IsEscrow, &releaseDate,
		&p.Metadata, &p.Version, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	p.PayeeID = fromPgUUID(payee)
	p.CouponID = fromPgUUID(coupon)
	p.RefundOfPaymentID = fromPgUUID(refundOf)
	p.Amount = fromNumeric(amount)
	p.DiscountAmount = fromNumeric(discount)
	p.OriginalAmount = fromNumeric(original)
	p.CommissionPercentage = fromNullNumeric(commissionPct)
	p.CommissionAmount = fromNullNumeric(commission)
	p.NetAmount = fromNullNumeric(netAmnt)
	p.Kind = domain.PaymentKind(kind)
	p.Status = domain.PaymentStatus(status)
	p.EscrowReleaseDate = releaseDate
	return &p, nil
}
