package config

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func TestEnvHelpers(t *testing.T) {
	t.Setenv("TEST_DURATION", "90s")
	t.Setenv("TEST_BAD_DURATION", "soon")
	t.Setenv("TEST_DECIMAL", "8.50")
	t.Setenv("TEST_BOOL", "true")
	t.Setenv("TEST_INT32", "12")

	if got := getDurationEnv("TEST_DURATION", time.Second); got != 90*time.Second {
		t.Fatalf("expected 90s, got %s", got)
	}
	if got := getDurationEnv("TEST_BAD_DURATION", time.Second); got != time.Second {
		t.Fatalf("expected fallback, got %s", got)
	}
	if got := getDecimalEnv("TEST_DECIMAL", decimal.Zero); got.StringFixed(2) != "8.50" {
		t.Fatalf("expected 8.50, got %s", got)
	}
	if got := getDecimalEnv("TEST_MISSING_DECIMAL", decimal.NewFromInt(10)); !got.Equal(decimal.NewFromInt(10)) {
		t.Fatalf("expected fallback 10, got %s", got)
	}
	if !getBoolEnv("TEST_BOOL", false) {
		t.Fatalf("expected true")
	}
	if got := getInt32Env("TEST_INT32", 1); got != 12 {
		t.Fatalf("expected 12, got %d", got)
	}
}
