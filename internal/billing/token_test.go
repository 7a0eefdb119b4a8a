package billing

import (
	"encoding/base64"
	"errors"
	"strings"
	"testing"
	"time"
)

func TestTokenRoundTrip(t *testing.T) {
	issuer := NewTokenIssuer("test-secret", "https://coachpipe.app", 24*time.Hour)
	now := time.Now()
	expiresAt := now.Add(time.Hour)

	token := issuer.Sign("u_abc123", "+15551234567", expiresAt)
	claims, err := issuer.Verify(token, now)
	if err != nil {
		t.Fatalf("Verify failed: %v", err)
	}
	if claims.UserID != "u_abc123" {
		t.Errorf("UserID = %q, want u_abc123", claims.UserID)
	}
	if claims.Phone != "+15551234567" {
		t.Errorf("Phone = %q, want +15551234567", claims.Phone)
	}
	if claims.ExpiresAt.UnixMilli() != expiresAt.UnixMilli() {
		t.Errorf("ExpiresAt = %v, want %v", claims.ExpiresAt, expiresAt)
	}
}

func TestTokenWireFormat(t *testing.T) {
	issuer := NewTokenIssuer("test-secret", "https://coachpipe.app", 24*time.Hour)
	expiresAt := time.UnixMilli(1767225600000)

	token := issuer.Sign("u_abc", "+15551234567", expiresAt)
	decoded, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		t.Fatalf("token is not base64url: %v", err)
	}

	parts := strings.Split(string(decoded), ":")
	if len(parts) != 4 {
		t.Fatalf("expected userID:phone:expiry:signature, got %d parts", len(parts))
	}
	if parts[0] != "u_abc" || parts[1] != "+15551234567" || parts[2] != "1767225600000" {
		t.Errorf("unexpected payload: %v", parts[:3])
	}
	if len(parts[3]) != 64 {
		t.Errorf("expected 64-char hex signature, got %d chars", len(parts[3]))
	}
}

func TestTokenExpired(t *testing.T) {
	issuer := NewTokenIssuer("test-secret", "https://coachpipe.app", 24*time.Hour)
	now := time.Now()

	token := issuer.Sign("u_abc", "+15551234567", now.Add(-time.Minute))
	_, err := issuer.Verify(token, now)
	if !errors.Is(err, ErrTokenExpired) {
		t.Errorf("expected ErrTokenExpired, got %v", err)
	}
}

func TestTokenTamperRejected(t *testing.T) {
	issuer := NewTokenIssuer("test-secret", "https://coachpipe.app", 24*time.Hour)
	now := time.Now()
	token := issuer.Sign("u_abc", "+15551234567", now.Add(time.Hour))

	decoded, _ := base64.RawURLEncoding.DecodeString(token)
	tampered := strings.Replace(string(decoded), "u_abc", "u_xyz", 1)
	forged := base64.RawURLEncoding.EncodeToString([]byte(tampered))

	if _, err := issuer.Verify(forged, now); !errors.Is(err, ErrTokenInvalid) {
		t.Errorf("expected ErrTokenInvalid for tampered payload, got %v", err)
	}
}

func TestTokenWrongSecretRejected(t *testing.T) {
	now := time.Now()
	token := NewTokenIssuer("secret-a", "https://coachpipe.app", time.Hour).
		Sign("u_abc", "+15551234567", now.Add(time.Hour))

	verifier := NewTokenIssuer("secret-b", "https://coachpipe.app", time.Hour)
	if _, err := verifier.Verify(token, now); !errors.Is(err, ErrTokenInvalid) {
		t.Errorf("expected ErrTokenInvalid for wrong secret, got %v", err)
	}
}

func TestTokenGarbageRejected(t *testing.T) {
	issuer := NewTokenIssuer("test-secret", "https://coachpipe.app", time.Hour)
	for _, token := range []string{"", "not base64!!!", base64.RawURLEncoding.EncodeToString([]byte("no-colons-here"))} {
		if _, err := issuer.Verify(token, time.Now()); !errors.Is(err, ErrTokenInvalid) {
			t.Errorf("Verify(%q): expected ErrTokenInvalid, got %v", token, err)
		}
	}
}

func TestCheckoutURL(t *testing.T) {
	issuer := NewTokenIssuer("test-secret", "https://coachpipe.app/", 24*time.Hour)
	url := issuer.CheckoutURL("u_abc", "+15551234567")

	if !strings.HasPrefix(url, "https://coachpipe.app/checkout?token=") {
		t.Fatalf("unexpected checkout URL: %q", url)
	}
	token := strings.TrimPrefix(url, "https://coachpipe.app/checkout?token=")
	claims, err := issuer.Verify(token, time.Now())
	if err != nil {
		t.Fatalf("issued link token failed verification: %v", err)
	}
	if claims.UserID != "u_abc" {
		t.Errorf("UserID = %q, want u_abc", claims.UserID)
	}
}
