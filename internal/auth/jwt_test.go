package auth

import (
	"errors"
	"strings"
	"testing"
	"time"

	"erlessed-biometric/internal/config"
)

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	m, err := NewManager(config.AuthConfig{
		JWTSecret:      "secret",
		JWTIssuer:      "issuer",
		JWTAudience:    "aud",
		AccessTokenTTL: 15 * time.Minute,
		ActionTokenTTL: 15 * time.Minute,
	})
	if err != nil {
		t.Fatalf("manager: %v", err)
	}
	return m
}

func TestIssueAndVerifyAccessToken(t *testing.T) {
	m := newTestManager(t)

	now := time.Unix(1700000000, 0).UTC()
	tok, err := m.IssueAccess(now, "user-1", "doctor")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	claims, err := m.Verify(tok, TokenTypeAccess, now.Add(1*time.Minute))
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if claims.UserID != "user-1" || claims.Role != "doctor" {
		t.Fatalf("unexpected claims: %+v", claims)
	}
}

func TestVerifyRejectsWrongTokenType(t *testing.T) {
	m := newTestManager(t)
	now := time.Now()
	tok, err := m.IssueActionToken(now, "u", "care_manager", "approve_reset")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if _, err := m.Verify(tok, TokenTypeAccess, now); err == nil {
		t.Fatalf("expected token_type mismatch")
	}
}

func TestActionTokenValidImmediately(t *testing.T) {
	m := newTestManager(t)
	now := time.Unix(1700000000, 0).UTC()

	tok, err := m.IssueActionToken(now, "U1", "care_manager", "approve_reset")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	claims, err := m.VerifyActionToken(tok, now)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if claims.UserID != "U1" || claims.Role != "care_manager" || claims.Action != "approve_reset" {
		t.Fatalf("unexpected claims: %+v", claims)
	}
	if claims.ExpiresAt-claims.IssuedAt != int64((15 * time.Minute).Seconds()) {
		t.Fatalf("expected 15m lifetime, got %ds", claims.ExpiresAt-claims.IssuedAt)
	}
	if claims.TokenID == "" {
		t.Fatalf("expected jti")
	}
}

func TestActionTokenExpiresAfterWindow(t *testing.T) {
	m := newTestManager(t)
	now := time.Unix(1700000000, 0).UTC()

	tok, err := m.IssueActionToken(now, "U1", "care_manager", "approve_reset")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	if _, err := m.VerifyActionToken(tok, now.Add(14*time.Minute)); err != nil {
		t.Fatalf("expected still valid at 14m: %v", err)
	}

	_, err = m.VerifyActionToken(tok, now.Add(15*time.Minute+time.Second))
	if !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken, got %v", err)
	}
	if !strings.HasPrefix(err.Error(), "invalid or expired token") {
		t.Fatalf("unexpected message %q", err.Error())
	}
}

func TestActionTokenRejectsForeignSecret(t *testing.T) {
	m := newTestManager(t)
	other, err := NewManager(config.AuthConfig{JWTSecret: "other", JWTIssuer: "issuer", JWTAudience: "aud"})
	if err != nil {
		t.Fatalf("manager: %v", err)
	}
	now := time.Now()
	tok, err := other.IssueActionToken(now, "U1", "insurer", "approve_reset")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if _, err := m.VerifyActionToken(tok, now); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken, got %v", err)
	}
}

func TestIssueActionTokenRequiresAction(t *testing.T) {
	m := newTestManager(t)
	if _, err := m.IssueActionToken(time.Now(), "U1", "insurer", ""); err == nil {
		t.Fatalf("expected error for empty action")
	}
}

func TestNewManagerDefaultsActionTTL(t *testing.T) {
	m, err := NewManager(config.AuthConfig{JWTSecret: "secret"})
	if err != nil {
		t.Fatalf("manager: %v", err)
	}
	if m.ActionTokenTTL() != DefaultActionTokenTTL {
		t.Fatalf("expected default ttl, got %v", m.ActionTokenTTL())
	}
}
