package v1

import (
	"context"
	"net/http"

	"caconnect-backend/internal/domain"
	"caconnect-backend/internal/usecase"
	"caconnect-backend/pkg/utils"

	"github.com/google/uuid"
)

// RequestHandler exposes the request lifecycle commands.
type RequestHandler struct {
	lifecycle *usecase.LifecycleUsecase
}

func NewRequestHandler(uc *usecase.LifecycleUsecase) *RequestHandler {
	return &RequestHandler{lifecycle: uc}
}

type submitRequestReq struct {
	ServiceID string                      `json:"serviceId"`
	Purpose   string                      `json:"purpose"`
	Notes     string                      `json:"notes"`
	Metadata  map[string]domain.MetaValue `json:"metadata"`
}

// Submit opens a request for the calling client.
// POST /api/v1/requests
func (h *RequestHandler) Submit(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorOrUnauthorized(w, r)
	if !ok {
		return
	}
	var req submitRequestReq
	if !decodeOrBadRequest(w, r, &req) {
		return
	}
	serviceID, err := uuid.Parse(req.ServiceID)
	if err != nil {
		badRequest(w, "serviceId", "must be a UUID")
		return
	}

	meta := domain.NewMetadata()
	for k, v := range req.Metadata {
		meta = meta.With(k, v)
	}
	created, err := h.lifecycle.Submit(r.Context(), usecase.SubmitInput{
		ClientID:  actor.ID,
		ServiceID: serviceID,
		Purpose:   req.Purpose,
		Notes:     req.Notes,
		Metadata:  meta,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	utils.WriteJSON(w, http.StatusCreated, created)
}

// Get returns a request visible to its client, its provider or the platform.
// GET /api/v1/requests/{id}
func (h *RequestHandler) Get(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorOrUnauthorized(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	req, err := h.lifecycle.Get(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if !canView(*req, actor) {
		// Same answer as a missing row so IDs cannot be probed.
		writeError(w, r, domain.NewNotFound("service_request", id))
		return
	}
	utils.WriteJSON(w, http.StatusOK, req)
}

func canView(req domain.ServiceRequest, actor domain.Actor) bool {
	switch actor.Kind {
	case domain.ActorSystem:
		return true
	case domain.ActorClient:
		return req.ClientID == actor.ID
	case domain.ActorProvider:
		// Pending requests are open to every provider.
		return req.Status == domain.RequestPending || req.IsAssignedTo(actor.ID)
	}
	return false
}

// Accept claims a pending request for the calling provider.
// POST /api/v1/requests/{id}/accept
func (h *RequestHandler) Accept(w http.ResponseWriter, r *http.Request) {
	h.providerCommand(w, r, h.lifecycle.Accept)
}

// Start moves an accepted request into progress.
// POST /api/v1/requests/{id}/start
func (h *RequestHandler) Start(w http.ResponseWriter, r *http.Request) {
	h.providerCommand(w, r, h.lifecycle.Start)
}

func (h *RequestHandler) providerCommand(w http.ResponseWriter, r *http.Request, fn func(ctx context.Context, requestID, providerID uuid.UUID) (*domain.ServiceRequest, error)) {
	actor, ok := actorOrUnauthorized(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	req, err := fn(r.Context(), id, actor.ID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, req)
}

type rejectReq struct {
	Reason  string `json:"reason"`
	Routing string `json:"routing"`
}

// Reject declines a request. Routing defaults to returning it to the pool.
// POST /api/v1/requests/{id}/reject
func (h *RequestHandler) Reject(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorOrUnauthorized(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var req rejectReq
	if !decodeOrBadRequest(w, r, &req) {
		return
	}
	routing := domain.RejectRouting(req.Routing)
	if req.Routing == "" {
		routing = domain.RejectReturnToPending
	}
	if !routing.Valid() {
		badRequest(w, "routing", "must be return_to_pending or terminal")
		return
	}
	updated, err := h.lifecycle.Reject(r.Context(), id, actor.ID, req.Reason, routing)
	if err != nil {
		writeError(w, r, err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, updated)
}

type cancelReq struct {
	Reason string `json:"reason"`
	Policy string `json:"policy"`
}

// Cancel closes a request on behalf of the caller.
// POST /api/v1/requests/{id}/cancel
func (h *RequestHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorOrUnauthorized(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var req cancelReq
	if !decodeOrBadRequest(w, r, &req) {
		return
	}
	policy, known := domain.CancellationPolicyByName(req.Policy)
	if !known {
		badRequest(w, "policy", "must be none, after_acceptance or after_start")
		return
	}
	updated, err := h.lifecycle.Cancel(r.Context(), id, actor, req.Reason, policy)
	if err != nil {
		writeError(w, r, err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, updated)
}

// Escalate flags a request for platform attention.
// POST /api/v1/requests/{id}/escalate
func (h *RequestHandler) Escalate(w http.ResponseWriter, r *http.Request) {
	h.actorCommand(w, r, h.lifecycle.Escalate)
}

// Complete closes a request as delivered.
// POST /api/v1/requests/{id}/complete
func (h *RequestHandler) Complete(w http.ResponseWriter, r *http.Request) {
	h.actorCommand(w, r, h.lifecycle.Complete)
}

func (h *RequestHandler) actorCommand(w http.ResponseWriter, r *http.Request, fn func(ctx context.Context, requestID uuid.UUID, actor domain.Actor) (*domain.ServiceRequest, error)) {
	actor, ok := actorOrUnauthorized(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	req, err := fn(r.Context(), id, actor)
	if err != nil {
		writeError(w, r, err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, req)
}
