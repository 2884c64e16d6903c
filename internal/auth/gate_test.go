package auth

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestGateSessionWinsOverToken(t *testing.T) {
	sessions := newFakeSessions()
	codec := newTestCodec(t, time.Now)
	gate := NewGate(sessions, codec, newTestCipher(t))
	ctx := context.Background()

	sid, _ := sessions.Create(ctx, SessionData{UserID: "alice", Role: RoleAdmin, Authenticated: true, Policy: Extended})
	token, _, err := codec.Sign("bob", RoleUser, "")
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}

	id, err := gate.Resolve(ctx, sid, token)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if id.ID != "alice" || id.Role != RoleAdmin || id.Source != SourceSession {
		t.Fatalf("expected session identity, got %+v", id)
	}
}

func TestGateFallsBackToToken(t *testing.T) {
	sessions := newFakeSessions()
	codec := newTestCodec(t, time.Now)
	cipher := newTestCipher(t)
	gate := NewGate(sessions, codec, cipher)
	ctx := context.Background()

	anon, _ := sessions.Create(ctx, SessionData{ForgerySecret: "s"})
	blob, err := cipher.Encrypt("bob@example.com")
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}
	token, _, _ := codec.Sign("bob", RoleUser, blob)

	for _, sid := range []string{"", anon, "unknown-session"} {
		id, err := gate.Resolve(ctx, sid, token)
		if err != nil {
			t.Fatalf("Resolve(sid=%q): %v", sid, err)
		}
		if id.ID != "bob" || id.Source != SourceToken || id.Email != "bob@example.com" {
			t.Fatalf("unexpected identity %+v", id)
		}
	}
}

func TestGateRejectsWithoutCredentials(t *testing.T) {
	sessions := newFakeSessions()
	gate := NewGate(sessions, newTestCodec(t, time.Now), newTestCipher(t))
	anon, _ := sessions.Create(context.Background(), SessionData{})

	_, err := gate.Resolve(context.Background(), anon, "")
	if !errors.Is(err, ErrUnauthenticated) {
		t.Fatalf("expected ErrUnauthenticated, got %v", err)
	}
	if ReasonOf(err) != ReasonMissingCredential {
		t.Fatalf("unexpected reason %q", ReasonOf(err))
	}
}

func TestGateCorruptedEmailClaim(t *testing.T) {
	codec := newTestCodec(t, time.Now)
	gate := NewGate(newFakeSessions(), codec, newTestCipher(t))
	token, _, _ := codec.Sign("bob", RoleUser, "00ff:deadbeef")

	_, err := gate.Resolve(context.Background(), "", token)
	if ReasonOf(err) != ReasonCorruptedClaim {
		t.Fatalf("expected %q, got %q (%v)", ReasonCorruptedClaim, ReasonOf(err), err)
	}
}

func TestGateExpiredToken(t *testing.T) {
	issued := time.Now().Add(-2 * time.Hour)
	signer := newTestCodec(t, func() time.Time { return issued })
	token, _, _ := signer.Sign("bob", RoleUser, "")

	gate := NewGate(newFakeSessions(), newTestCodec(t, time.Now), newTestCipher(t))
	_, err := gate.Resolve(context.Background(), "", "  "+token+" ")
	if ReasonOf(err) != ReasonExpired {
		t.Fatalf("expected %q, got %q (%v)", ReasonExpired, ReasonOf(err), err)
	}
}

func TestGateSessionStoreFailureIsInternal(t *testing.T) {
	sessions := newFakeSessions()
	sessions.readErr = errors.New("connection refused")
	gate := NewGate(sessions, newTestCodec(t, time.Now), newTestCipher(t))

	_, err := gate.Resolve(context.Background(), "sid-1", "")
	if err == nil || errors.Is(err, ErrUnauthenticated) {
		t.Fatalf("expected internal error, got %v", err)
	}
}
