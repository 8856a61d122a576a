package v1

import (
	"net/http"

	"caconnect-backend/internal/usecase"
	"caconnect-backend/pkg/utils"

	"github.com/shopspring/decimal"
)

type CouponHandler struct {
	couponUC *usecase.CouponUsecase
}

func NewCouponHandler(uc *usecase.CouponUsecase) *CouponHandler {
	return &CouponHandler{couponUC: uc}
}

type validateCouponReq struct {
	Code        string          `json:"code"`
	OrderAmount decimal.Decimal `json:"orderAmount"`
	Category    string          `json:"category"`
}

// Validate previews a coupon for the calling client without redeeming it.
// POST /api/v1/coupons/validate
func (h *CouponHandler) Validate(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorOrUnauthorized(w, r)
	if !ok {
		return
	}
	var req validateCouponReq
	if !decodeOrBadRequest(w, r, &req) {
		return
	}
	if req.Code == "" {
		badRequest(w, "code", "is required")
		return
	}

	coupon, elig, discount, err := h.couponUC.ValidateCode(r.Context(), req.Code, actor.ID, req.OrderAmount, req.Category)
	if err != nil {
		writeError(w, r, err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"code":           coupon.Code,
		"eligible":       elig.Eligible,
		"reason":         elig.Reason,
		"discountAmount": discount.StringFixed(2),
		"finalAmount":    req.OrderAmount.Sub(discount).StringFixed(2),
	})
}
