package memory

import (
	"context"
	"fmt"
	"slices"
	"time"

	"caconnect-backend/internal/domain"

	"github.com/google/uuid"
)

type couponRepo struct{ s *Store }

func (r couponRepo) Create(ctx context.Context, c *domain.Coupon) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, existing := range r.s.coupons {
		if existing.Code == c.Code {
			return &domain.ConflictError{Entity: "coupon", ID: existing.ID, Reason: fmt.Sprintf("code %s already exists", c.Code)}
		}
	}
	r.s.coupons[c.ID] = cloneCoupon(*c)
	return nil
}

func (r couponRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Coupon, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	c, ok := r.s.coupons[id]
	if !ok {
		return nil, domain.NewNotFound("coupon", id)
	}
	out := cloneCoupon(c)
	return &out, nil
}

func (r couponRepo) GetByCode(ctx context.Context, code string) (*domain.Coupon, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	c, ok := r.byCodeLocked(code)
	if !ok {
		return nil, &domain.NotFoundError{Entity: "coupon", ID: code}
	}
	out := cloneCoupon(c)
	return &out, nil
}

func (r couponRepo) byCodeLocked(code string) (domain.Coupon, bool) {
	for _, c := range r.s.coupons {
		if c.Code == code {
			return c, true
		}
	}
	return domain.Coupon{}, false
}

func (r couponRepo) List(ctx context.Context, filter domain.CouponFilter) ([]domain.Coupon, int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var all []domain.Coupon
	for _, c := range r.s.coupons {
		if filter.Active != nil && c.IsActive != *filter.Active {
			continue
		}
		all = append(all, cloneCoupon(c))
	}
	slices.SortFunc(all, func(a, b domain.Coupon) int { return b.CreatedAt.Compare(a.CreatedAt) })
	total := int64(len(all))
	if filter.Offset >= len(all) {
		return []domain.Coupon{}, total, nil
	}
	end := len(all)
	if filter.Limit > 0 && filter.Offset+filter.Limit < end {
		end = filter.Offset + filter.Limit
	}
	return all[filter.Offset:end], total, nil
}

func (r couponRepo) SetActive(ctx context.Context, id uuid.UUID, active bool, now time.Time) (*domain.Coupon, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	c, ok := r.s.coupons[id]
	if !ok {
		return nil, domain.NewNotFound("coupon", id)
	}
	c.IsActive = active
	c.UpdatedAt = now
	r.s.coupons[id] = c
	out := cloneCoupon(c)
	return &out, nil
}

func (r couponRepo) CountUserUsages(ctx context.Context, couponID, userID uuid.UUID) (int, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return r.countUserLocked(couponID, userID), nil
}

func (r couponRepo) countUserLocked(couponID, userID uuid.UUID) int {
	n := 0
	for _, u := range r.s.usages {
		if u.CouponID == couponID && u.UserID == userID {
			n++
		}
	}
	return n
}

func (r couponRepo) ListUsages(ctx context.Context, couponID uuid.UUID) ([]domain.CouponUsage, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []domain.CouponUsage
	for _, u := range r.s.usages {
		if u.CouponID == couponID {
			out = append(out, u)
		}
	}
	return out, nil
}

func (r couponRepo) Redeem(ctx context.Context, code string, red domain.CouponRedemption) (*domain.Coupon, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	c, ok := r.byCodeLocked(code)
	if !ok {
		return nil, &domain.NotFoundError{Entity: "coupon", ID: code}
	}
	if c.MaxUsageLimit != nil && c.UsageCount >= *c.MaxUsageLimit {
		return nil, &domain.CouponExhaustedError{Code: c.Code}
	}
	if red.MaxUsagePerUser != nil && r.countUserLocked(c.ID, red.Usage.UserID) >= *red.MaxUsagePerUser {
		return nil, &domain.CouponIneligibleError{Code: c.Code, Reason: domain.CouponUserLimitReached}
	}
	for _, u := range r.s.usages {
		if u.CouponID == c.ID && u.ServiceRequestID == red.Usage.ServiceRequestID {
			return nil, &domain.CouponIneligibleError{Code: c.Code, Reason: domain.CouponAlreadyRedeemed}
		}
	}

	c.UsageCount++
	c.UpdatedAt = red.Usage.UsedAt
	r.s.coupons[c.ID] = c
	usage := red.Usage
	usage.CouponID = c.ID
	r.s.usages = append(r.s.usages, usage)
	out := cloneCoupon(c)
	return &out, nil
}

func cloneCoupon(c domain.Coupon) domain.Coupon {
	c.ApplicableServiceTypes = slices.Clone(c.ApplicableServiceTypes)
	return c
}
