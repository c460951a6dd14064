package auth

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

func TestRevoke_and_IsRevoked(t *testing.T) {
	store := NewRevocations()

	jti := "token-abc-123"
	store.Revoke(jti, "user-1", time.Now().Add(1*time.Hour))

	if !store.IsRevoked(jti) {
		t.Errorf("expected JTI %q to be revoked", jti)
	}
	if store.IsRevoked("unknown-jti") {
		t.Error("expected unknown JTI to not be revoked")
	}
}

func TestSweep(t *testing.T) {
	store := NewRevocations()
	now := time.Now()
	store.Revoke("expired", "u", now.Add(-time.Minute))
	store.Revoke("live", "u", now.Add(time.Hour))

	if removed := store.Sweep(now); removed != 1 {
		t.Errorf("expected 1 removed, got %d", removed)
	}
	if store.IsRevoked("expired") {
		t.Error("expired entry should be swept")
	}
	if !store.IsRevoked("live") {
		t.Error("live entry should remain")
	}
	if store.Count() != 1 {
		t.Errorf("expected count 1, got %d", store.Count())
	}
}

func TestRun_StopsOnCancel(t *testing.T) {
	store := NewRevocations()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		store.Run(ctx, time.Millisecond)
		close(done)
	}()
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestRevocations_Concurrent(t *testing.T) {
	store := NewRevocations()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			jti := string(rune('a' + i%26))
			store.Revoke(jti, "u", time.Now().Add(time.Hour))
			store.IsRevoked(jti)
		}(i)
	}
	wg.Wait()
	if store.Count() != 26 {
		t.Errorf("expected 26 distinct entries, got %d", store.Count())
	}
}

func TestTokens_Recheck(t *testing.T) {
	now := time.Date(2026, 5, 1, 8, 0, 0, 0, time.UTC)
	tokens := NewTokens([]byte("recheck-test-signing-key-0123456"), time.Hour, NewRevocations())
	tokens.now = func() time.Time { return now }

	signed, _, err := tokens.Issue(Session{UserID: "u-1", ProfileID: "p-1", Role: RoleNurse})
	if err != nil {
		t.Fatal(err)
	}
	claims, err := tokens.Verify(signed)
	if err != nil {
		t.Fatal(err)
	}
	if err := tokens.Recheck(claims); err != nil {
		t.Fatalf("fresh token: %v", err)
	}

	tokens.Revoke(claims)
	if err := tokens.Recheck(claims); !errors.Is(err, ErrRevokedToken) {
		t.Errorf("after sign-out: %v, want ErrRevokedToken", err)
	}

	other, _, err := tokens.Issue(Session{UserID: "u-2", ProfileID: "p-2", Role: RoleDoctor})
	if err != nil {
		t.Fatal(err)
	}
	otherClaims, err := tokens.Verify(other)
	if err != nil {
		t.Fatal(err)
	}
	now = now.Add(2 * time.Hour)
	if err := tokens.Recheck(otherClaims); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("after expiry: %v, want ErrInvalidToken", err)
	}
}
