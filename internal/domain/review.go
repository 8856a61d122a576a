package domain

import (
	"cmp"
	"context"
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type Review struct {
	ID               uuid.UUID  `json:"id"`
	CaID             uuid.UUID  `json:"caId"`
	ClientID         uuid.UUID  `json:"clientId"`
	ServiceRequestID *uuid.UUID `json:"serviceRequestId,omitempty"`
	Rating           int        `json:"rating"`
	Verified         bool       `json:"verified"`
	Comment          string     `json:"comment,omitempty"`
	CreatedAt        time.Time  `json:"createdAt"`
}

// RatingSummary is always derived from the current review rows.
type RatingSummary struct {
	CaID                uuid.UUID       `json:"caId"`
	AverageRating       decimal.Decimal `json:"averageRating"`
	ReviewCount         int             `json:"reviewCount"`
	VerifiedRating      decimal.Decimal `json:"verifiedRating"`
	VerifiedReviewCount int             `json:"verifiedReviewCount"`

	// exact sums behind the rounded averages, used for ranking
	ratingTotal   int64
	verifiedTotal int64
}

func ValidRating(r int) bool { return r >= 1 && r <= 5 }

// Summarize averages all reviews and the verified subset. The exported averages are
// rounded to two decimals for display; ranking compares the exact sums.
func Summarize(caID uuid.UUID, reviews []Review) RatingSummary {
	s := RatingSummary{CaID: caID, AverageRating: decimal.Zero, VerifiedRating: decimal.Zero}
	var total, verifiedTotal int64
	for _, r := range reviews {
		total += int64(r.Rating)
		s.ReviewCount++
		if r.Verified {
			verifiedTotal += int64(r.Rating)
			s.VerifiedReviewCount++
		}
	}
	s.ratingTotal, s.verifiedTotal = total, verifiedTotal
	if s.ReviewCount > 0 {
		s.AverageRating = decimal.NewFromInt(total).Div(decimal.NewFromInt(int64(s.ReviewCount))).Round(2)
	}
	if s.VerifiedReviewCount > 0 {
		s.VerifiedRating = decimal.NewFromInt(verifiedTotal).Div(decimal.NewFromInt(int64(s.VerifiedReviewCount))).Round(2)
	}
	return s
}

// CompareRanking orders a before b when a should rank higher. Providers with verified
// reviews come first, then higher verified rating, then higher overall average.
// Counts and the provider ID break any remaining tie so the order is total.
func CompareRanking(a, b RatingSummary) int {
	aVerified, bVerified := a.VerifiedReviewCount > 0, b.VerifiedReviewCount > 0
	if aVerified != bVerified {
		if aVerified {
			return -1
		}
		return 1
	}
	if aVerified {
		if c := compareMean(b.verifiedTotal, b.VerifiedReviewCount, a.verifiedTotal, a.VerifiedReviewCount); c != 0 {
			return c
		}
	}
	if c := compareMean(b.ratingTotal, b.ReviewCount, a.ratingTotal, a.ReviewCount); c != 0 {
		return c
	}
	if c := cmp.Compare(b.VerifiedReviewCount, a.VerifiedReviewCount); c != 0 {
		return c
	}
	if c := cmp.Compare(b.ReviewCount, a.ReviewCount); c != 0 {
		return c
	}
	return cmp.Compare(a.CaID.String(), b.CaID.String())
}

// compareMean compares sumA/countA with sumB/countB without rounding. An empty set
// averages to zero.
func compareMean(sumA int64, countA int, sumB int64, countB int) int {
	switch {
	case countA == 0 && countB == 0:
		return 0
	case countA == 0:
		return cmp.Compare(0, sumB)
	case countB == 0:
		return cmp.Compare(sumA, 0)
	}
	return cmp.Compare(sumA*int64(countB), sumB*int64(countA))
}

// RankSummaries returns a sorted copy.
func RankSummaries(in []RatingSummary) []RatingSummary {
	out := slices.Clone(in)
	slices.SortStableFunc(out, CompareRanking)
	return out
}

type ReviewRepository interface {
	Create(ctx context.Context, r *Review) error
	ListByProvider(ctx context.Context, caID uuid.UUID) ([]Review, error)
	ListByProviders(ctx context.Context, caIDs []uuid.UUID) (map[uuid.UUID][]Review, error)
	ExistsForRequest(ctx context.Context, clientID, requestID uuid.UUID) (bool, error)
}
