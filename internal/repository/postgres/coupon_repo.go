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

const couponColumns = `id, code, discount_type, discount_value, max_discount_amount, min_order_amount,
	max_usage_limit, usage_count, max_usage_per_user, valid_from, valid_until, is_active,
	applicable_service_types, created_by, created_at, updated_at`

type couponRepository struct {
	db *pgxpool.Pool
}

func NewCouponRepository(db *pgxpool.Pool) domain.CouponRepository {
	return &couponRepository{db: db}
}

func (r *couponRepository) Create(ctx context.Context, c *domain.Coupon) error {
	types := c.ApplicableServiceTypes
	if types == nil {
		types = []string{}
	}
	_, err := conn(ctx, r.db).Exec(ctx, `
		INSERT INTO coupons (`+couponColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)`,
		c.ID, c.Code, string(c.DiscountType), toNumeric(c.DiscountValue), toNullNumeric(c.MaxDiscountAmount),
		toNumeric(c.MinOrderAmount), toPgInt4(c.MaxUsageLimit), c.UsageCount, toPgInt4(c.MaxUsagePerUser),
		c.ValidFrom, c.ValidUntil, c.IsActive, types, toPgUUID(c.CreatedBy), c.CreatedAt, c.UpdatedAt,
	)
	if isUniqueViolation(err) {
		return &domain.ConflictError{Entity: "coupon", ID: c.ID, Reason: fmt.Sprintf("code %s already exists", c.Code)}
	}
	if err != nil {
		return fmt.Errorf("insert coupon: %w", err)
	}
	return nil
}

func (r *couponRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Coupon, error) {
	c, err := scanCoupon(conn(ctx, r.db).QueryRow(ctx, `SELECT `+couponColumns+` FROM coupons WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.NewNotFound("coupon", id)
	}
	if err != nil {
		return nil, fmt.Errorf("get coupon: %w", err)
	}
	return c, nil
}

func (r *couponRepository) GetByCode(ctx context.Context, code string) (*domain.Coupon, error) {
	c, err := scanCoupon(conn(ctx, r.db).QueryRow(ctx, `SELECT `+couponColumns+` FROM coupons WHERE code = $1`, code))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, &domain.NotFoundError{Entity: "coupon", ID: code}
	}
	if err != nil {
		return nil, fmt.Errorf("get coupon by code: %w", err)
	}
	return c, nil
}

func (r *couponRepository) List(ctx context.Context, filter domain.CouponFilter) ([]domain.Coupon, int64, error) {
	active := pgtype.Bool{}
	if filter.Active != nil {
		active = pgtype.Bool{Bool: *filter.Active, Valid: true}
	}
	q := conn(ctx, r.db)

	var total int64
	if err := q.QueryRow(ctx,
		`SELECT COUNT(*) FROM coupons WHERE ($1::boolean IS NULL OR is_active = $1)`, active,
	).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count coupons: %w", err)
	}

	rows, err := q.Query(ctx, `
		SELECT `+couponColumns+` FROM coupons
		WHERE ($1::boolean IS NULL OR is_active = $1)
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3`, active, filter.Limit, filter.Offset)
	if err != nil {
		return nil, 0, fmt.Errorf("list coupons: %w", err)
	}
	defer rows.Close()

	coupons := []domain.Coupon{}
	for rows.Next() {
		c, err := scanCoupon(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan coupon: %w", err)
		}
		coupons = append(coupons, *c)
	}
	return coupons, total, rows.Err()
}

func (r *couponRepository) SetActive(ctx context.Context, id uuid.UUID, active bool, now time.Time) (*domain.Coupon, error) {
	c, err := scanCoupon(conn(ctx, r.db).QueryRow(ctx, `
		UPDATE coupons SET is_active = $2, updated_at = $3 WHERE id = $1
		RETURNING `+couponColumns, id, active, now))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.NewNotFound("coupon", id)
	}
	if err != nil {
		return nil, fmt.Errorf("set coupon active: %w", err)
	}
	return c, nil
}

func countUserUsages(ctx context.Context, q DBTX, couponID, userID uuid.UUID) (int, error) {
	var n int
	err := q.QueryRow(ctx,
		`SELECT COUNT(*) FROM coupon_usages WHERE coupon_id = $1 AND user_id = $2`, couponID, userID,
	).Scan(&n)
	return n, err
}

func (r *couponRepository) CountUserUsages(ctx context.Context, couponID, userID uuid.UUID) (int, error) {
	n, err := countUserUsages(ctx, conn(ctx, r.db), couponID, userID)
	if err != nil {
		return 0, fmt.Errorf("count coupon usages: %w", err)
	}
	return n, nil
}

func (r *couponRepository) ListUsages(ctx context.Context, couponID uuid.UUID) ([]domain.CouponUsage, error) {
	rows, err := conn(ctx, r.db).Query(ctx, `
		SELECT id, coupon_id, user_id, service_request_id, payment_id, original_amount,
			discount_amount, final_amount, used_at
		FROM coupon_usages WHERE coupon_id = $1 ORDER BY used_at`, couponID)
	if err != nil {
		return nil, fmt.Errorf("list coupon usages: %w", err)
	}
	defer rows.Close()

	var out []domain.CouponUsage
	for rows.Next() {
		var (
			u                         domain.CouponUsage
			paymentID                 pgtype.UUID
			original, discount, final pgtype.Numeric
		)
		if err := rows.Scan(&u.ID, &u.CouponID, &u.UserID, &u.ServiceRequestID, &paymentID,
			&original, &discount, &final, &u.UsedAt); err != nil {
			return nil, fmt.Errorf("scan coupon usage: %w", err)
		}
		u.PaymentID = fromPgUUID(paymentID)
		u.OriginalAmount = fromNumeric(original)
		u.DiscountAmount = fromNumeric(discount)
		u.FinalAmount = fromNumeric(final)
		out = append(out, u)
	}
	return out, rows.Err()
}

// Redeem relies on the conditional increment for the global cap: the UPDATE takes
// the coupon row lock, so concurrent redemptions queue behind it and re-evaluate
// usage_count < max_usage_limit against the committed value. The per-user count
// is read after the lock is held for the same reason.
func (r *couponRepository) Redeem(ctx context.Context, code string, red domain.CouponRedemption) (*domain.Coupon, error) {
	var redeemed *domain.Coupon
	err := withTx(ctx, r.db, func(q DBTX) error {
		var couponID uuid.UUID
		err := q.QueryRow(ctx, `
			UPDATE coupons SET usage_count = usage_count + 1, updated_at = $2
			WHERE code = $1 AND (max_usage_limit IS NULL OR usage_count < max_usage_limit)
			RETURNING id`, code, red.Usage.UsedAt).Scan(&couponID)
		if errors.Is(err, pgx.ErrNoRows) {
			var exists bool
			if err := q.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM coupons WHERE code = $1)`, code).Scan(&exists); err != nil {
				return err
			}
			if !exists {
				return &domain.NotFoundError{Entity: "coupon", ID: code}
			}
			return &domain.CouponExhaustedError{Code: code}
		}
		if err != nil {
			return err
		}

		if red.MaxUsagePerUser != nil {
			n, err := countUserUsages(ctx, q, couponID, red.Usage.UserID)
			if err != nil {
				return err
			}
			if n >= *red.MaxUsagePerUser {
				return &domain.CouponIneligibleError{Code: code, Reason: domain.CouponUserLimitReached}
			}
		}

		u := red.Usage
		_, err = q.Exec(ctx, `
			INSERT INTO coupon_usages (id, coupon_id, user_id, service_request_id, payment_id,
				original_amount, discount_amount, final_amount, used_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
			u.ID, couponID, u.UserID, u.ServiceRequestID, toPgUUID(u.PaymentID),
			toNumeric(u.OriginalAmount), toNumeric(u.DiscountAmount), toNumeric(u.FinalAmount), u.UsedAt)
		if isUniqueViolation(err) {
			return &domain.CouponIneligibleError{Code: code, Reason: domain.CouponAlreadyRedeemed}
		}
		if err != nil {
			return err
		}

		redeemed, err = scanCoupon(q.QueryRow(ctx, `SELECT `+couponColumns+` FROM coupons WHERE id = $1`, couponID))
		return err
	})
	if err != nil {
		if domain.IsExpected(err) {
			return nil, err
		}
		return nil, fmt.Errorf("redeem coupon: %w", err)
	}
	return redeemed, nil
}

func scanCoupon(row pgx.Row) (*domain.Coupon, error) {
	var (
		c                         domain.Coupon
		discountType              string
		value, maxDiscount, floor pgtype.Numeric
		maxUsage, maxPerUser      pgtype.Int4
		createdBy                 pgtype.UUID
	)
	err := row.Scan(
		&c.ID, &c.Code, &discountType, &value, &maxDiscount, &floor, &maxUsage, &c.UsageCount,
		&maxPerUser, &c.ValidFrom, &c.ValidUntil, &c.IsActive, &c.ApplicableServiceTypes, &createdBy,
		&c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	c.DiscountType = domain.DiscountType(discountType)
	c.DiscountValue = fromNumeric(value)
	c.MaxDiscountAmount = fromNullNumeric(maxDiscount)
	c.MinOrderAmount = fromNumeric(floor)
	c.MaxUsageLimit = fromPgInt4(maxUsage)
	c.MaxUsagePerUser = fromPgInt4(maxPerUser)
	c.CreatedBy = fromPgUUID(createdBy)
	return &c, nil
}
