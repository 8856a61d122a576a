package v1

import (
	"net/http"
	"strconv"

	"caconnect-backend/internal/domain"
	"caconnect-backend/internal/usecase"
	"caconnect-backend/pkg/utils"

	"github.com/google/uuid"
)

// AdminCouponHandler handles admin coupon management endpoints.
// Thin handler layer: all rules live in the usecase.
type AdminCouponHandler struct {
	couponUC *usecase.CouponUsecase
}

// NewAdminCouponHandler creates a new AdminCouponHandler.
func NewAdminCouponHandler(uc *usecase.CouponUsecase) *AdminCouponHandler {
	return &AdminCouponHandler{couponUC: uc}
}

// ListCoupons returns paginated list of all coupons.
// GET /api/v1/admin/coupons?page=1&limit=20&active=true
func (h *AdminCouponHandler) ListCoupons(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	page := utils.ParseInt(q.Get("page"), 1)
	if page < 1 {
		page = 1
	}
	limit := utils.ParseInt(q.Get("limit"), 20)
	if limit < 1 || limit > 100 {
		limit = 20
	}
	filter := domain.CouponFilter{Limit: limit, Offset: (page - 1) * limit}
	if raw := q.Get("active"); raw != "" {
		active, err := strconv.ParseBool(raw)
		if err != nil {
			badRequest(w, "active", "must be true or false")
			return
		}
		filter.Active = &active
	}

	coupons, total, err := h.couponUC.ListCoupons(r.Context(), filter)
	if err != nil {
		writeError(w, r, err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"data":       coupons,
		"pagination": domain.NewPagination(page, limit, total),
	})
}

// CreateCoupon creates a new coupon.
// POST /api/v1/admin/coupons
func (h *AdminCouponHandler) CreateCoupon(w http.ResponseWriter, r *http.Request) {
	var req usecase.CreateCouponRequest
	if !decodeOrBadRequest(w, r, &req) {
		return
	}
	actor, ok := actorOrUnauthorized(w, r)
	if !ok {
		return
	}
	var createdBy *uuid.UUID
	if actor.ID != uuid.Nil {
		createdBy = &actor.ID
	}

	coupon, err := h.couponUC.CreateCoupon(r.Context(), req, createdBy)
	if err != nil {
		writeError(w, r, err)
		return
	}
	utils.WriteJSON(w, http.StatusCreated, coupon)
}

// GetCoupon returns a single coupon by ID.
// GET /api/v1/admin/coupons/{id}
func (h *AdminCouponHandler) GetCoupon(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	coupon, err := h.couponUC.GetCoupon(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, coupon)
}

type couponStatusReq struct {
	IsActive *bool `json:"isActive"`
}

// SetStatus activates or retires a coupon.
// PATCH /api/v1/admin/coupons/{id}/status
func (h *AdminCouponHandler) SetStatus(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var req couponStatusReq
	if !decodeOrBadRequest(w, r, &req) {
		return
	}
	if req.IsActive == nil {
		badRequest(w, "isActive", "is required")
		return
	}
	coupon, err := h.couponUC.SetActive(r.Context(), id, *req.IsActive)
	if err != nil {
		writeError(w, r, err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, coupon)
}

// ListUsages returns the redemption ledger of a coupon.
// GET /api/v1/admin/coupons/{id}/usages
func (h *AdminCouponHandler) ListUsages(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	usages, err := h.couponUC.ListUsages(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, map[string]interface{}{"data": usages})
}
