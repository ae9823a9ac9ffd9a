package auth

import (
	"errors"
	"testing"
	"time"
)

func newTestIssuer(clock func() time.Time) *SessionIssuer {
	return NewSessionIssuer(SessionIssuerConfig{
		SigningSecret: []byte("test-secret"),
		Issuer:        "nextup-auth",
		Audience:      "nextup-api",
		TokenTTL:      time.Hour,
		Clock:         clock,
	})
}

func TestIssueAndValidateRoundTrip(t *testing.T) {
	issuer := newTestIssuer(func() time.Time { return time.Unix(1700000000, 0) })

	token, expiresIn, err := issuer.Issue("1001", "viewer_one", true)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if expiresIn != 3600 {
		t.Fatalf("expected 3600 seconds expiry, got %d", expiresIn)
	}

	claims, err := issuer.Validate(token)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if claims.Subject != "1001" {
		t.Fatalf("unexpected subject %q", claims.Subject)
	}
	if claims.Username != "viewer_one" {
		t.Fatalf("unexpected username %q", claims.Username)
	}
	if !claims.Admin {
		t.Fatalf("expected admin claim")
	}
}

func TestValidateRejectsExpiredToken(t *testing.T) {
	now := time.Unix(1700000000, 0)
	issuer := newTestIssuer(func() time.Time { return now })

	token, _, err := issuer.Issue("1001", "viewer_one", false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	now = now.Add(2 * time.Hour)
	if _, err := issuer.Validate(token); !errors.Is(err, ErrExpiredSessionToken) {
		t.Fatalf("expected expired token error, got %v", err)
	}
}

func TestValidateRejectsTokenSignedWithDifferentSecret(t *testing.T) {
	clock := func() time.Time { return time.Unix(1700000000, 0) }
	issuer := newTestIssuer(clock)
	other := NewSessionIssuer(SessionIssuerConfig{
		SigningSecret: []byte("other-secret"),
		Issuer:        "nextup-auth",
		Audience:      "nextup-api",
		TokenTTL:      time.Hour,
		Clock:         clock,
	})

	token, _, err := other.Issue("1001", "viewer_one", false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := issuer.Validate(token); !errors.Is(err, ErrInvalidSessionToken) {
		t.Fatalf("expected invalid token error, got %v", err)
	}
}

func TestValidateRejectsGarbageToken(t *testing.T) {
	issuer := newTestIssuer(nil)
	if _, err := issuer.Validate("not-a-jwt"); !errors.Is(err, ErrInvalidSessionToken) {
		t.Fatalf("expected invalid token error, got %v", err)
	}
	if _, err := issuer.Validate(""); !errors.Is(err, ErrInvalidSessionToken) {
		t.Fatalf("expected invalid token error for empty input, got %v", err)
	}
}

func TestIssueRequiresSubject(t *testing.T) {
	issuer := newTestIssuer(nil)
	if _, _, err := issuer.Issue("", "viewer_one", false); err == nil {
		t.Fatalf("expected error for empty subject")
	}
}
