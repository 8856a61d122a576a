package v1

import (
	"net/http"

	"caconnect-backend/internal/usecase"
	"caconnect-backend/pkg/utils"

	"github.com/google/uuid"
)

// maxRankBatch bounds a single ranking call.
const maxRankBatch = 200

type RatingHandler struct {
	ratingUC *usecase.RatingUsecase
}

func NewRatingHandler(uc *usecase.RatingUsecase) *RatingHandler {
	return &RatingHandler{ratingUC: uc}
}

// GetRating returns the live rating summary of a provider.
// GET /api/v1/providers/{id}/rating
func (h *RatingHandler) GetRating(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	summary, err := h.ratingUC.Aggregate(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, summary)
}

type rankReq struct {
	ProviderIDs []uuid.UUID `json:"providerIds"`
}

// Rank orders the given providers best first.
// POST /api/v1/providers/rank
func (h *RatingHandler) Rank(w http.ResponseWriter, r *http.Request) {
	var req rankReq
	if !decodeOrBadRequest(w, r, &req) {
		return
	}
	if len(req.ProviderIDs) > maxRankBatch {
		badRequest(w, "providerIds", "too many providers")
		return
	}
	ranked, err := h.ratingUC.Rank(r.Context(), req.ProviderIDs)
	if err != nil {
		writeError(w, r, err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, map[string]interface{}{"data": ranked})
}

type reviewReq struct {
	RequestID *uuid.UUID `json:"requestId"`
	Rating    int        `json:"rating"`
	Comment   string     `json:"comment"`
}

// SubmitReview records the calling client's review of a provider.
// POST /api/v1/providers/{id}/reviews
func (h *RatingHandler) SubmitReview(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorOrUnauthorized(w, r)
	if !ok {
		return
	}
	caID, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var req reviewReq
	if !decodeOrBadRequest(w, r, &req) {
		return
	}
	review, err := h.ratingUC.SubmitReview(r.Context(), usecase.ReviewInput{
		CaID:      caID,
		ClientID:  actor.ID,
		RequestID: req.RequestID,
		Rating:    req.Rating,
		Comment:   req.Comment,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	utils.WriteJSON(w, http.StatusCreated, review)
}
