package v1

import (
	"net/http"
	"strings"
	"time"

	"caconnect-backend/internal/domain"
	"caconnect-backend/internal/usecase"
	"caconnect-backend/pkg/utils"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// PaymentHandler exposes settlement commands. Gateway outcomes, commission and
// escrow scheduling are platform-only and guarded at the router.
type PaymentHandler struct {
	settlement *usecase.SettlementUsecase
	lifecycle  *usecase.LifecycleUsecase
}

func NewPaymentHandler(settlement *usecase.SettlementUsecase, lifecycle *usecase.LifecycleUsecase) *PaymentHandler {
	return &PaymentHandler{settlement: settlement, lifecycle: lifecycle}
}

type chargeReq struct {
	Kind       string          `json:"kind"`
	BaseAmount decimal.Decimal `json:"baseAmount"`
	Currency   string          `json:"currency"`
	CouponCode string          `json:"couponCode"`
	IsEscrow   bool            `json:"isEscrow"`
}

// Charge initiates a pending payment against a request.
// POST /api/v1/requests/{id}/payments
func (h *PaymentHandler) Charge(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorOrUnauthorized(w, r)
	if !ok {
		return
	}
	requestID, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var req chargeReq
	if !decodeOrBadRequest(w, r, &req) {
		return
	}
	kind := domain.PaymentKind(req.Kind)
	if !kind.Valid() || kind == domain.PaymentRefund {
		badRequest(w, "kind", "must be booking_fee, service_fee or cancellation_fee")
		return
	}
	p, err := h.settlement.InitiateCharge(r.Context(), usecase.ChargeInput{
		RequestID:  requestID,
		Kind:       kind,
		BaseAmount: req.BaseAmount,
		Currency:   strings.ToUpper(strings.TrimSpace(req.Currency)),
		CouponCode: req.CouponCode,
		IsEscrow:   req.IsEscrow,
		Actor:      actor,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	utils.WriteJSON(w, http.StatusCreated, p)
}

// ListForRequest returns every payment on a request.
// GET /api/v1/requests/{id}/payments
func (h *PaymentHandler) ListForRequest(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorOrUnauthorized(w, r)
	if !ok {
		return
	}
	requestID, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	req, err := h.lifecycle.Get(r.Context(), requestID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := domain.Authorize(*req, actor); err != nil {
		writeError(w, r, domain.NewNotFound("service_request", requestID))
		return
	}
	payments, err := h.settlement.ListForRequest(r.Context(), requestID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, map[string]interface{}{"data": payments})
}

// Get returns one payment to its payer, its payee or the platform.
// GET /api/v1/payments/{id}
func (h *PaymentHandler) Get(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorOrUnauthorized(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	p, err := h.settlement.Get(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if !canSeePayment(*p, actor) {
		writeError(w, r, domain.NewNotFound("payment", id))
		return
	}
	utils.WriteJSON(w, http.StatusOK, p)
}

func canSeePayment(p domain.Payment, actor domain.Actor) bool {
	switch actor.Kind {
	case domain.ActorSystem:
		return true
	case domain.ActorClient:
		return p.PayerID == actor.ID
	case domain.ActorProvider:
		return p.PayeeID != nil && *p.PayeeID == actor.ID
	}
	return false
}

// ApplyCommission stamps the commission split on a service fee.
// POST /api/v1/payments/{id}/commission
func (h *PaymentHandler) ApplyCommission(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	h.respond(w, r, func() (*domain.Payment, error) { return h.settlement.ApplyCommission(r.Context(), id) })
}

type gatewayResultReq struct {
	GatewayRef string `json:"gatewayRef"`
	Reason     string `json:"reason"`
}

// Complete records a gateway success.
// POST /api/v1/payments/{id}/complete
func (h *PaymentHandler) Complete(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var req gatewayResultReq
	if !decodeOrBadRequest(w, r, &req) {
		return
	}
	h.respond(w, r, func() (*domain.Payment, error) { return h.settlement.MarkCompleted(r.Context(), id, req.GatewayRef) })
}

// Fail records a gateway failure.
// POST /api/v1/payments/{id}/fail
func (h *PaymentHandler) Fail(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var req gatewayResultReq
	if !decodeOrBadRequest(w, r, &req) {
		return
	}
	h.respond(w, r, func() (*domain.Payment, error) { return h.settlement.MarkFailed(r.Context(), id, req.Reason) })
}

// Retry puts a failed payment back to pending.
// POST /api/v1/payments/{id}/retry
func (h *PaymentHandler) Retry(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorOrUnauthorized(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	if !h.owns(w, r, id, actor) {
		return
	}
	h.respond(w, r, func() (*domain.Payment, error) { return h.settlement.Retry(r.Context(), id, actor.Kind) })
}

type refundReq struct {
	Reason string `json:"reason"`
}

// Refund creates a refund for a completed payment.
// POST /api/v1/payments/{id}/refund
func (h *PaymentHandler) Refund(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorOrUnauthorized(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var req refundReq
	if !decodeOrBadRequest(w, r, &req) {
		return
	}
	if !h.owns(w, r, id, actor) {
		return
	}
	original, refund, err := h.settlement.Refund(r.Context(), id, req.Reason, actor.Kind)
	if err != nil {
		writeError(w, r, err)
		return
	}
	utils.WriteJSON(w, http.StatusCreated, map[string]interface{}{
		"payment": original,
		"refund":  refund,
	})
}

type escrowReq struct {
	ReleaseDate time.Time `json:"releaseDate"`
}

// ScheduleEscrow sets the release date of an escrowed payment.
// POST /api/v1/payments/{id}/escrow
func (h *PaymentHandler) ScheduleEscrow(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var req escrowReq
	if !decodeOrBadRequest(w, r, &req) {
		return
	}
	if req.ReleaseDate.IsZero() {
		badRequest(w, "releaseDate", "is required")
		return
	}
	h.respond(w, r, func() (*domain.Payment, error) {
		return h.settlement.ScheduleEscrowRelease(r.Context(), id, req.ReleaseDate.UTC())
	})
}

// owns answers 404 unless the actor can see the payment.
func (h *PaymentHandler) owns(w http.ResponseWriter, r *http.Request, id uuid.UUID, actor domain.Actor) bool {
	p, err := h.settlement.Get(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return false
	}
	if !canSeePayment(*p, actor) {
		writeError(w, r, domain.NewNotFound("payment", id))
		return false
	}
	return true
}

func (h *PaymentHandler) respond(w http.ResponseWriter, r *http.Request, fn func() (*domain.Payment, error)) {
	p, err := fn()
	if err != nil {
		writeError(w, r, err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, p)
}
