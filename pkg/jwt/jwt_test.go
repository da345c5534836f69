package jwt

import (
	"errors"
	"testing"
	"time"
)

func TestManager_RoundTrip(t *testing.T) {
	m, err := NewManager("test-secret", time.Hour, "tidechat")
	if err != nil {
		t.Fatalf("NewManager() error: %v", err)
	}

	token, expiresAt, err := m.Generate("user-1", "alice")
	if err != nil {
		t.Fatalf("Generate() error: %v", err)
	}
	if expiresAt <= time.Now().Unix() {
		t.Errorf("expiresAt = %d, want future timestamp", expiresAt)
	}

	claims, err := m.Verify(token)
	if err != nil {
		t.Fatalf("Verify() error: %v", err)
	}
	if claims.UserID != "user-1" || claims.Username != "alice" {
		t.Errorf("claims = %+v, want user-1/alice", claims)
	}
	if claims.Issuer != "tidechat" {
		t.Errorf("issuer = %q, want tidechat", claims.Issuer)
	}
}

func TestManager_RejectsInvalidTokens(t *testing.T) {
	m, err := NewManager("test-secret", time.Hour, "tidechat")
	if err != nil {
		t.Fatalf("NewManager() error: %v", err)
	}

	if _, err := m.Verify("not-a-token"); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("Verify(garbage) = %v, want ErrInvalidToken", err)
	}

	other, _ := NewManager("other-secret", time.Hour, "tidechat")
	forged, _, err := other.Generate("user-1", "alice")
	if err != nil {
		t.Fatalf("Generate() error: %v", err)
	}
	if _, err := m.Verify(forged); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("Verify(wrong secret) = %v, want ErrInvalidToken", err)
	}
}

func TestManager_RejectsExpiredToken(t *testing.T) {
	m, err := NewManager("test-secret", -time.Minute, "tidechat")
	if err != nil {
		t.Fatalf("NewManager() error: %v", err)
	}

	token, _, err := m.Generate("user-1", "alice")
	if err != nil {
		t.Fatalf("Generate() error: %v", err)
	}
	if _, err := m.Verify(token); !errors.Is(err, ErrExpiredToken) {
		t.Errorf("Verify(expired) = %v, want ErrExpiredToken", err)
	}
}

func TestNewManager_RequiresSecret(t *testing.T) {
	if _, err := NewManager("", time.Hour, "tidechat"); err == nil {
		t.Error("NewManager(empty secret) succeeded, want error")
	}
}
