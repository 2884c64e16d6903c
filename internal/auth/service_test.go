package auth

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
)

func TestRegisterFirstUserIsAdmin(t *testing.T) {
	ts := newTestService(t)
	ctx := context.Background()

	first, err := ts.svc.Register(ctx, RegisterRequest{Username: "root", Email: "root@example.com", Password: "pw-1"})
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if first.Role != RoleAdmin {
		t.Fatalf("expected first user to be admin, got %s", first.Role)
	}
	second, err := ts.svc.Register(ctx, RegisterRequest{Username: "bob", Email: "bob@example.com", Password: "pw-2"})
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if second.Role != RoleUser {
		t.Fatalf("expected second user to be user, got %s", second.Role)
	}
	if second.PasswordHash == "pw-2" || second.PasswordHash == "" {
		t.Fatalf("password must be stored hashed")
	}
}

func TestRegisterConcurrentSingleAdmin(t *testing.T) {
	ts := newTestService(t)
	ctx := context.Background()

	const n = 8
	var wg sync.WaitGroup
	roles := make(chan Role, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			u, err := ts.svc.Register(ctx, RegisterRequest{
				Username: fmt.Sprintf("user%d", i),
				Email:    fmt.Sprintf("user%d@example.com", i),
				Password: "secret",
			})
			if err != nil {
				t.Errorf("Register %d: %v", i, err)
				return
			}
			roles <- u.Role
		}(i)
	}
	wg.Wait()
	close(roles)

	admins := 0
	for r := range roles {
		if r == RoleAdmin {
			admins++
		}
	}
	if admins != 1 {
		t.Fatalf("expected exactly one admin, got %d", admins)
	}
}

func TestRegisterValidationAndConflict(t *testing.T) {
	ts := newTestService(t)
	ctx := context.Background()

	bad := []RegisterRequest{
		{Email: "a@example.com", Password: "pw"},
		{Username: "a", Password: "pw"},
		{Username: "a", Email: "a@example.com"},
		{Username: "a", Email: "not-an-email", Password: "pw"},
	}
	for _, req := range bad {
		if _, err := ts.svc.Register(ctx, req); !errors.Is(err, ErrValidation) {
			t.Fatalf("Register(%+v): expected ErrValidation, got %v", req, err)
		}
	}

	if _, err := ts.svc.Register(ctx, RegisterRequest{Username: "alice", Email: "alice@example.com", Password: "pw"}); err != nil {
		t.Fatalf("Register: %v", err)
	}
	_, err := ts.svc.Register(ctx, RegisterRequest{Username: "alice", Email: "other@example.com", Password: "pw"})
	if !errors.Is(err, ErrAlreadyExists) {
		t.Fatalf("expected ErrAlreadyExists for username, got %v", err)
	}
	_, err = ts.svc.Register(ctx, RegisterRequest{Username: "alice2", Email: "alice@example.com", Password: "pw"})
	if !errors.Is(err, ErrAlreadyExists) {
		t.Fatalf("expected ErrAlreadyExists for email, got %v", err)
	}
}

func TestLoginWithTokenCarriesEncryptedEmail(t *testing.T) {
	ts := newTestService(t)
	ctx := context.Background()
	if _, err := ts.svc.Register(ctx, RegisterRequest{Username: "alice", Email: "alice@example.com", Password: "pw"}); err != nil {
		t.Fatalf("Register: %v", err)
	}

	res, err := ts.svc.Login(ctx, LoginRequest{Identifier: "alice@example.com", Password: "pw"})
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if res.Persistent || res.Token == "" || res.ExpiresAt.IsZero() {
		t.Fatalf("expected token login, got %+v", res)
	}
	claims, err := ts.codec.Verify(res.Token)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if claims.EncryptedEmail == "" || claims.EncryptedEmail == "alice@example.com" {
		t.Fatalf("email must travel encrypted, got %q", claims.EncryptedEmail)
	}
	email, err := ts.cipher.Decrypt(claims.EncryptedEmail)
	if err != nil || email != "alice@example.com" {
		t.Fatalf("Decrypt: %q, %v", email, err)
	}
}

func TestLoginTokenDowngradesExistingSession(t *testing.T) {
	ts := newTestService(t)
	ctx := context.Background()
	if _, err := ts.svc.Register(ctx, RegisterRequest{Username: "alice", Email: "alice@example.com", Password: "pw"}); err != nil {
		t.Fatalf("Register: %v", err)
	}
	sid, _ := ts.sessions.Create(ctx, SessionData{UserID: "someone", Role: RoleAdmin, Authenticated: true, ForgerySecret: "fs", Policy: Extended})

	res, err := ts.svc.Login(ctx, LoginRequest{Identifier: "alice", Password: "pw", SessionID: sid})
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if res.SessionID != sid {
		t.Fatalf("expected session %q to be reported, got %q", sid, res.SessionID)
	}
	data, _ := ts.sessions.Read(ctx, sid)
	if data.Authenticated || data.UserID != "" || data.Policy != Ephemeral {
		t.Fatalf("session should be anonymous and ephemeral, got %+v", data)
	}
	if data.ForgerySecret != "fs" {
		t.Fatalf("forgery secret must survive, got %q", data.ForgerySecret)
	}
}

func TestLoginPersistentRotatesSession(t *testing.T) {
	ts := newTestService(t)
	ctx := context.Background()
	u, err := ts.svc.Register(ctx, RegisterRequest{Username: "alice", Email: "alice@example.com", Password: "pw"})
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	old, _ := ts.sessions.Create(ctx, SessionData{ForgerySecret: "fs"})

	res, err := ts.svc.Login(ctx, LoginRequest{Identifier: "alice", Password: "pw", Persistent: true, SessionID: old})
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if !res.Persistent || res.Token != "" || res.SessionID == "" || res.SessionID == old {
		t.Fatalf("unexpected result %+v", res)
	}
	if _, err := ts.sessions.Read(ctx, old); !errors.Is(err, ErrNotFound) {
		t.Fatalf("old session should be destroyed, got %v", err)
	}
	data, err := ts.sessions.Read(ctx, res.SessionID)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	want := SessionData{UserID: u.ID, Role: RoleAdmin, Authenticated: true, ForgerySecret: "fs", Policy: Extended}
	if data != want {
		t.Fatalf("session = %+v, want %+v", data, want)
	}
}

func TestLoginFailuresLookTheSame(t *testing.T) {
	ts := newTestService(t)
	ctx := context.Background()
	if _, err := ts.svc.Register(ctx, RegisterRequest{Username: "alice", Email: "alice@example.com", Password: "pw"}); err != nil {
		t.Fatalf("Register: %v", err)
	}

	_, unknown := ts.svc.Login(ctx, LoginRequest{Identifier: "nobody", Password: "pw"})
	_, wrong := ts.svc.Login(ctx, LoginRequest{Identifier: "alice", Password: "nope"})
	for _, err := range []error{unknown, wrong} {
		if !errors.Is(err, ErrUnauthenticated) || ReasonOf(err) != ReasonInvalidCredentials {
			t.Fatalf("expected invalid credentials, got %v", err)
		}
	}
	if unknown.Error() != wrong.Error() {
		t.Fatalf("failures must be indistinguishable: %q vs %q", unknown, wrong)
	}

	if _, err := ts.svc.Login(ctx, LoginRequest{Identifier: "alice"}); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}
}

func TestLogoutIsIdempotent(t *testing.T) {
	ts := newTestService(t)
	ctx := context.Background()
	sid, _ := ts.sessions.Create(ctx, SessionData{UserID: "u", Role: RoleUser, Authenticated: true})

	for i := 0; i < 2; i++ {
		if err := ts.svc.Logout(ctx, sid); err != nil {
			t.Fatalf("Logout #%d: %v", i+1, err)
		}
	}
	if err := ts.svc.Logout(ctx, ""); err != nil {
		t.Fatalf("Logout without session: %v", err)
	}
}

func TestDeleteUser(t *testing.T) {
	ts := newTestService(t)
	ctx := context.Background()
	u, err := ts.svc.Register(ctx, RegisterRequest{Username: "alice", Email: "alice@example.com", Password: "pw"})
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	n, err := ts.svc.DeleteUser(ctx, u.ID)
	if err != nil || n != 1 {
		t.Fatalf("DeleteUser: %d, %v", n, err)
	}
	if _, err := ts.svc.DeleteUser(ctx, u.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound on second delete, got %v", err)
	}
	if _, err := ts.svc.Profile(ctx, u.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound from Profile, got %v", err)
	}
}
