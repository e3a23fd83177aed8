package store

import (
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
)

func TestMemoryTokenRevoker(t *testing.T) {
	r := NewMemoryTokenRevoker()
	if err := r.Revoke("jti-1", time.Minute); err != nil {
		t.Fatalf("revoke: %v", err)
	}
	revoked, err := r.IsRevoked("jti-1")
	if err != nil {
		t.Fatalf("is revoked: %v", err)
	}
	if !revoked {
		t.Fatalf("expected jti-1 to be revoked")
	}
	revoked, err = r.IsRevoked("jti-2")
	if err != nil {
		t.Fatalf("is revoked: %v", err)
	}
	if revoked {
		t.Fatalf("jti-2 was never revoked")
	}
}

func TestMemoryTokenRevokerIgnoresNonPositiveTTL(t *testing.T) {
	r := NewMemoryTokenRevoker()
	if err := r.Revoke("jti-1", 0); err != nil {
		t.Fatalf("revoke: %v", err)
	}
	if revoked, _ := r.IsRevoked("jti-1"); revoked {
		t.Fatalf("zero-ttl revocation should be a no-op")
	}
}

func TestRedisTokenRevoker(t *testing.T) {
	redis := miniredis.RunT(t)
	r := NewRedisTokenRevoker(redis.Addr(), "")
	if err := r.Revoke("jti-1", time.Minute); err != nil {
		t.Fatalf("revoke: %v", err)
	}
	revoked, err := r.IsRevoked("jti-1")
	if err != nil {
		t.Fatalf("is revoked: %v", err)
	}
	if !revoked {
		t.Fatalf("expected jti-1 to be revoked")
	}

	redis.FastForward(2 * time.Minute)
	revoked, err = r.IsRevoked("jti-1")
	if err != nil {
		t.Fatalf("is revoked after expiry: %v", err)
	}
	if revoked {
		t.Fatalf("revocation should expire with the token")
	}
}
