package utils

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestExtractClaimsRoundTrip(t *testing.T) {
	SetSecret("test-secret")
	token, err := GenerateJWT("6f1c2b8e-58a4-4c1b-9d5e-1f0f2a3b4c5d", "provider", time.Minute)
	if err != nil {
		t.Fatalf("generate failed: %v", err)
	}

	tests := []struct {
		name   string
		header string
		cookie string
	}{
		{"bearer header", "Bearer " + token, ""},
		{"cookie", "", token},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest("GET", "/", nil)
			if tt.header != "" {
				r.Header.Set("Authorization", tt.header)
			}
			if tt.cookie != "" {
				r.AddCookie(&http.Cookie{Name: "accessToken", Value: tt.cookie})
			}
			claims, err := ExtractClaims(r)
			if err != nil {
				t.Fatalf("extract failed: %v", err)
			}
			if claims.Role != "provider" || claims.UserID != "6f1c2b8e-58a4-4c1b-9d5e-1f0f2a3b4c5d" {
				t.Fatalf("unexpected claims %+v", claims)
			}
		})
	}
}

func TestExtractClaimsRejectsForeignSignature(t *testing.T) {
	SetSecret("one")
	token, _ := GenerateJWT("someone", "client", time.Minute)
	SetSecret("two")

	r := httptest.NewRequest("GET", "/", nil)
	r.Header.Set("Authorization", "Bearer "+token)
	if _, err := ExtractClaims(r); err == nil {
		t.Fatalf("expected signature failure")
	}
}
