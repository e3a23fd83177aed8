package store

import (
	"testing"
	"time"
)

func newTestSessionStore(t *testing.T, ttl time.Duration) *JWTSessionStore {
	t.Helper()
	s, err := NewJWTSessionStore("unit-test-secret", ttl, NewMemoryTokenRevoker(), JWTOptions{})
	if err != nil {
		t.Fatalf("new session store: %v", err)
	}
	return s
}

func TestJWTSessionRoundTrip(t *testing.T) {
	s := newTestSessionStore(t, time.Minute)
	token, err := s.NewSession("user-1")
	if err != nil {
		t.Fatalf("new session: %v", err)
	}
	userID, ok, err := s.GetUserIDByToken(token)
	if err != nil {
		t.Fatalf("get user by token: %v", err)
	}
	if !ok || userID != "user-1" {
		t.Fatalf("got (%q, %v), want (user-1, true)", userID, ok)
	}
}

func TestJWTSessionRejectsTampering(t *testing.T) {
	s := newTestSessionStore(t, time.Minute)
	token, err := s.NewSession("user-1")
	if err != nil {
		t.Fatalf("new session: %v", err)
	}
	tampered := token[:len(token)-2] + "xx"
	if _, ok, _ := s.GetUserIDByToken(tampered); ok {
		t.Fatalf("tampered token accepted")
	}

	other, err := NewJWTSessionStore("different-secret", time.Minute, nil, JWTOptions{})
	if err != nil {
		t.Fatalf("new session store: %v", err)
	}
	if _, ok, _ := other.GetUserIDByToken(token); ok {
		t.Fatalf("token accepted across signing secrets")
	}
}

func TestJWTSessionDeleteRevokes(t *testing.T) {
	s := newTestSessionStore(t, time.Minute)
	token, err := s.NewSession("user-1")
	if err != nil {
		t.Fatalf("new session: %v", err)
	}
	if err := s.DeleteSession(token); err != nil {
		t.Fatalf("delete session: %v", err)
	}
	if _, ok, _ := s.GetUserIDByToken(token); ok {
		t.Fatalf("revoked token still accepted")
	}
}
