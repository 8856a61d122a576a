package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"caconnect-backend/internal/domain"
	"caconnect-backend/pkg/utils"

	"github.com/google/uuid"
)

func TestAuthAndRoleMiddleware(t *testing.T) {
	utils.SetSecret("middleware-secret")
	provider := uuid.New()
	providerToken, _ := utils.GenerateJWT(provider.String(), "ca", time.Minute)
	adminToken, _ := utils.GenerateJWT("ops", "admin", time.Minute)
	oddToken, _ := utils.GenerateJWT(uuid.NewString(), "auditor", time.Minute)

	var seen domain.Actor
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = ActorFrom(r.Context())
		w.WriteHeader(http.StatusNoContent)
	})
	handler := AuthMiddleware(RequireActor(domain.ActorProvider, domain.ActorSystem)(inner))
	adminOnly := AuthMiddleware(AdminMiddleware(inner))

	tests := []struct {
		name    string
		handler http.Handler
		token   string
		want    int
	}{
		{"no token", handler, "", http.StatusUnauthorized},
		{"unknown role", handler, oddToken, http.StatusForbidden},
		{"provider allowed", handler, providerToken, http.StatusNoContent},
		{"provider on admin route", adminOnly, providerToken, http.StatusForbidden},
		{"admin allowed", adminOnly, adminToken, http.StatusNoContent},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodPost, "/api/v1/requests/x/accept", nil)
			if tt.token != "" {
				r.Header.Set("Authorization", "Bearer "+tt.token)
			}
			w := httptest.NewRecorder()
			tt.handler.ServeHTTP(w, r)
			if w.Code != tt.want {
				t.Fatalf("expected %d, got %d (%s)", tt.want, w.Code, w.Body.String())
			}
		})
	}

	r := httptest.NewRequest(http.MethodPost, "/", nil)
	r.Header.Set("Authorization", "Bearer "+providerToken)
	handler.ServeHTTP(httptest.NewRecorder(), r)
	if seen.Kind != domain.ActorProvider || seen.ID != provider {
		t.Fatalf("expected provider actor in context, got %+v", seen)
	}
}

func TestRateLimiterRejectsBurst(t *testing.T) {
	rl := NewRateLimiter(context.Background(), 1, 2, time.Minute, time.Minute)
	defer rl.Shutdown()
	handler := rl.Middleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		r := httptest.NewRequest(http.MethodGet, "/health", nil)
		r.Header.Set("X-Forwarded-For", "203.0.113.7, 10.0.0.1")
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, r)
		codes = append(codes, w.Code)
	}
	if codes[0] != http.StatusOK || codes[1] != http.StatusOK || codes[2] != http.StatusTooManyRequests {
		t.Fatalf("unexpected status sequence %v", codes)
	}
}

func TestGetClientIP(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.RemoteAddr = "192.0.2.10:5555"
	if got := getClientIP(r); got != "192.0.2.10" {
		t.Fatalf("expected host without port, got %s", got)
	}
	r.Header.Set("X-Forwarded-For", "198.51.100.2, 10.0.0.1")
	if got := getClientIP(r); got != "198.51.100.2" {
		t.Fatalf("expected first forwarded hop, got %s", got)
	}
}
