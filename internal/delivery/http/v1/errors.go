package v1

import (
	"errors"
	"net/http"

	"caconnect-backend/internal/delivery/http/middleware"
	"caconnect-backend/internal/domain"
	"caconnect-backend/pkg/logger"
	"caconnect-backend/pkg/utils"

	"github.com/google/uuid"
)

type errorBody struct {
	Error  string `json:"error"`
	Kind   string `json:"kind"`
	Field  string `json:"field,omitempty"`
	Reason string `json:"reason,omitempty"`
}

// writeError maps domain error kinds onto HTTP statuses. Anything unexpected
// is logged and answered with a generic 500.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	body := errorBody{Error: err.Error()}
	status := http.StatusInternalServerError

	var (
		validation *domain.ValidationError
		ineligible *domain.CouponIneligibleError
	)
	switch {
	case errors.As(err, &validation):
		status, body.Kind, body.Field = http.StatusBadRequest, "validation", validation.Field
	case errors.As(err, &ineligible):
		status, body.Kind, body.Reason = http.StatusUnprocessableEntity, "coupon_ineligible", string(ineligible.Reason)
	case errors.Is(err, domain.ErrCouponExhausted):
		status, body.Kind = http.StatusConflict, "coupon_exhausted"
	case errors.Is(err, domain.ErrInvalidTransition):
		status, body.Kind = http.StatusConflict, "invalid_transition"
	case errors.Is(err, domain.ErrConflict):
		status, body.Kind = http.StatusConflict, "conflict"
	case errors.Is(err, domain.ErrRetryExhausted):
		status, body.Kind = http.StatusConflict, "retry_exhausted"
	case errors.Is(err, domain.ErrNotFound):
		status, body.Kind = http.StatusNotFound, "not_found"
	default:
		logger.WithContext(r.Context()).Error().Err(err).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Msg("Request failed")
		body = errorBody{Error: "Internal server error", Kind: "internal"}
	}
	utils.WriteJSON(w, status, body)
}

func badRequest(w http.ResponseWriter, field, reason string) {
	utils.WriteJSON(w, http.StatusBadRequest, errorBody{Error: field + ": " + reason, Kind: "validation", Field: field})
}

// pathID parses the named path segment as a UUID, answering 400 on failure.
func pathID(w http.ResponseWriter, r *http.Request, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(r.PathValue(name))
	if err != nil {
		badRequest(w, name, "must be a UUID")
		return uuid.Nil, false
	}
	return id, true
}

func actorOrUnauthorized(w http.ResponseWriter, r *http.Request) (domain.Actor, bool) {
	actor, ok := middleware.ActorFrom(r.Context())
	if !ok {
		utils.WriteError(w, http.StatusUnauthorized, "Unauthorized")
		return domain.Actor{}, false
	}
	return actor, true
}

func decodeOrBadRequest(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	if err := utils.DecodeJSON(r, dst); err != nil {
		badRequest(w, "body", err.Error())
		return false
	}
	return true
}
