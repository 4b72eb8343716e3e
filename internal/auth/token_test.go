package auth

import (
	"errors"
	"testing"
	"time"
)

func newTestManager(t *testing.T, clock func() time.Time) *Manager {
	t.Helper()
	manager, err := NewManager(ManagerConfig{
		SigningSecret: []byte("test-secret"),
		Issuer:        "lireddit-test",
		TokenTTL:      time.Hour,
		Clock:         clock,
	})
	if err != nil {
		t.Fatalf("unexpected manager error: %v", err)
	}
	return manager
}

func TestManagerRoundTrip(t *testing.T) {
	now := time.Unix(1700000000, 0)
	manager := newTestManager(t, func() time.Time { return now })

	token, expiresAt, err := manager.Issue(42)
	if err != nil {
		t.Fatalf("unexpected issue error: %v", err)
	}
	if !expiresAt.Equal(now.Add(time.Hour)) {
		t.Fatalf("unexpected expiry %v", expiresAt)
	}

	userID, err := manager.Validate(token)
	if err != nil {
		t.Fatalf("unexpected validate error: %v", err)
	}
	if userID != 42 {
		t.Fatalf("expected user 42, got %d", userID)
	}
}

func TestManagerRejectsExpiredToken(t *testing.T) {
	now := time.Unix(1700000000, 0)
	manager := newTestManager(t, func() time.Time { return now })
	token, _, err := manager.Issue(7)
	if err != nil {
		t.Fatalf("unexpected issue error: %v", err)
	}

	now = now.Add(2 * time.Hour)
	if _, err := manager.Validate(token); !errors.Is(err, ErrExpiredToken) {
		t.Fatalf("expected expired token error, got %v", err)
	}
}

func TestManagerRejectsForeignSignature(t *testing.T) {
	manager := newTestManager(t, nil)
	other, err := NewManager(ManagerConfig{SigningSecret: []byte("other-secret"), Issuer: "lireddit-test"})
	if err != nil {
		t.Fatalf("unexpected manager error: %v", err)
	}
	token, _, err := other.Issue(1)
	if err != nil {
		t.Fatalf("unexpected issue error: %v", err)
	}
	if _, err := manager.Validate(token); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected invalid token error, got %v", err)
	}
}

func TestManagerRejectsEmptyInput(t *testing.T) {
	manager := newTestManager(t, nil)
	if _, err := manager.Validate("  "); !errors.Is(err, ErrMissingToken) {
		t.Fatalf("expected missing token error, got %v", err)
	}
	if _, _, err := manager.Issue(0); !errors.Is(err, ErrInvalidUserID) {
		t.Fatalf("expected invalid user id error, got %v", err)
	}
	if _, err := NewManager(ManagerConfig{}); !errors.Is(err, ErrMissingSigningSecret) {
		t.Fatalf("expected missing secret error, got %v", err)
	}
}
