package v1

import (
	"net/http"

	"caconnect-backend/internal/delivery/http/middleware"
	"caconnect-backend/internal/domain"
)

type Handlers struct {
	Requests     *RequestHandler
	Payments     *PaymentHandler
	Coupons      *CouponHandler
	AdminCoupons *AdminCouponHandler
	Ratings      *RatingHandler
}

// RegisterRoutes mounts the /api/v1 surface on mux.
func RegisterRoutes(mux *http.ServeMux, h Handlers) {
	auth := func(fn http.HandlerFunc, kinds ...domain.ActorKind) http.Handler {
		if len(kinds) == 0 {
			return middleware.AuthMiddleware(fn)
		}
		return middleware.AuthMiddleware(middleware.RequireActor(kinds...)(fn))
	}
	admin := func(fn http.HandlerFunc) http.Handler {
		return middleware.AuthMiddleware(middleware.AdminMiddleware(fn))
	}
	client, provider, system := domain.ActorClient, domain.ActorProvider, domain.ActorSystem

	// --- Requests ---
	mux.Handle("POST /api/v1/requests", auth(h.Requests.Submit, client))
	mux.Handle("GET /api/v1/requests/{id}", auth(h.Requests.Get))
	mux.Handle("POST /api/v1/requests/{id}/accept", auth(h.Requests.Accept, provider))
	mux.Handle("POST /api/v1/requests/{id}/start", auth(h.Requests.Start, provider))
	mux.Handle("POST /api/v1/requests/{id}/reject", auth(h.Requests.Reject, provider))
	mux.Handle("POST /api/v1/requests/{id}/cancel", auth(h.Requests.Cancel))
	mux.Handle("POST /api/v1/requests/{id}/escalate", auth(h.Requests.Escalate))
	mux.Handle("POST /api/v1/requests/{id}/complete", auth(h.Requests.Complete))

	// --- Payments ---
	mux.Handle("POST /api/v1/requests/{id}/payments", auth(h.Payments.Charge))
	mux.Handle("GET /api/v1/requests/{id}/payments", auth(h.Payments.ListForRequest))
	mux.Handle("GET /api/v1/payments/{id}", auth(h.Payments.Get))
	mux.Handle("POST /api/v1/payments/{id}/commission", auth(h.Payments.ApplyCommission, system))
	mux.Handle("POST /api/v1/payments/{id}/complete", auth(h.Payments.Complete, system))
	mux.Handle("POST /api/v1/payments/{id}/fail", auth(h.Payments.Fail, system))
	mux.Handle("POST /api/v1/payments/{id}/escrow", auth(h.Payments.ScheduleEscrow, system))
	mux.Handle("POST /api/v1/payments/{id}/retry", auth(h.Payments.Retry))
	mux.Handle("POST /api/v1/payments/{id}/refund", auth(h.Payments.Refund))

	// --- Coupons ---
	mux.Handle("POST /api/v1/coupons/validate", auth(h.Coupons.Validate, client))
	mux.Handle("GET /api/v1/admin/coupons", admin(h.AdminCoupons.ListCoupons))
	mux.Handle("POST /api/v1/admin/coupons", admin(h.AdminCoupons.CreateCoupon))
	mux.Handle("GET /api/v1/admin/coupons/{id}", admin(h.AdminCoupons.GetCoupon))
	mux.Handle("PATCH /api/v1/admin/coupons/{id}/status", admin(h.AdminCoupons.SetStatus))
	mux.Handle("GET /api/v1/admin/coupons/{id}/usages", admin(h.AdminCoupons.ListUsages))

	// --- Ratings ---
	mux.HandleFunc("GET /api/v1/providers/{id}/rating", h.Ratings.GetRating)
	mux.HandleFunc("POST /api/v1/providers/rank", h.Ratings.Rank)
	mux.Handle("POST /api/v1/providers/{id}/reviews", auth(h.Ratings.SubmitReview, client))
}
