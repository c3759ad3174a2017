package utils

import (
	"testing"

	"bandmate-backend/config"

	"github.com/google/uuid"
)

func TestGenerateInviteToken(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		token, err := GenerateInviteToken()
		if err != nil {
			t.Fatalf("failed to generate token: %v", err)
		}
		if !ValidInviteToken(token) {
			t.Fatalf("generated token %q fails its own validation", token)
		}
		if seen[token] {
			t.Fatalf("duplicate token generated: %q", token)
		}
		seen[token] = true
	}
}

func TestValidInviteToken(t *testing.T) {
	cases := []struct {
		token string
		want  bool
	}{
		{"", false},
		{"abc", false},
		{"0123456789abcdef0123456789abcdef0123456789abcdef0123456789abcdef", true},
		{"0123456789ABCDEF0123456789ABCDEF0123456789ABCDEF0123456789ABCDEF", false}, // uppercase
		{"0123456789abcdef0123456789abcdef0123456789abcdef0123456789abcde", false},  // 63 chars
		{"g123456789abcdef0123456789abcdef0123456789abcdef0123456789abcdef", false}, // non-hex
	}

	for _, tc := range cases {
		if got := ValidInviteToken(tc.token); got != tc.want {
			t.Errorf("ValidInviteToken(%q) = %v, want %v", tc.token, got, tc.want)
		}
	}
}

func TestNormalizeEmail(t *testing.T) {
	if got := NormalizeEmail("  Alice@Example.COM "); got != "alice@example.com" {
		t.Errorf("unexpected normalization: %q", got)
	}
}

func TestJWTRoundTrip(t *testing.T) {
	config.Load()

	userID := uuid.New()
	token, err := GenerateToken(userID, "alice@example.com")
	if err != nil {
		t.Fatalf("failed to generate token: %v", err)
	}

	gotID, gotEmail, err := ParseToken(token)
	if err != nil {
		t.Fatalf("failed to parse token: %v", err)
	}
	if gotID != userID {
		t.Errorf("expected user id %s, got %s", userID, gotID)
	}
	if gotEmail != "alice@example.com" {
		t.Errorf("expected email round-tripped, got %q", gotEmail)
	}

	if _, _, err := ParseToken("garbage"); err == nil {
		t.Error("expected error for garbage token")
	}
}
