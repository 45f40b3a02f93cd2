package tenanttoken

import (
	"errors"
	"testing"
	"time"
)

func TestGenerateParseRoundTrip(t *testing.T) {
	token, err := Generate("secret", "acme", time.Minute)
	if err != nil {
		t.Fatalf("generate failed: %v", err)
	}

	tenantID, err := Parse("secret", token)
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	if tenantID != "acme" {
		t.Fatalf("unexpected tenant %q", tenantID)
	}
}

func TestParseWrongSecret(t *testing.T) {
	token, err := Generate("secret", "acme", time.Minute)
	if err != nil {
		t.Fatalf("generate failed: %v", err)
	}

	if _, err := Parse("other-secret", token); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken, got %v", err)
	}
}

func TestParseExpiredToken(t *testing.T) {
	token, err := Generate("secret", "acme", -time.Minute)
	if err != nil {
		t.Fatalf("generate failed: %v", err)
	}

	if _, err := Parse("secret", token); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken for expired token, got %v", err)
	}
}

func TestGenerateRejectsEmptyTenant(t *testing.T) {
	if _, err := Generate("secret", "", time.Minute); err == nil {
		t.Fatal("expected error for empty tenant")
	}
}

func TestParseGarbage(t *testing.T) {
	if _, err := Parse("secret", "not.a.token"); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken, got %v", err)
	}
}
