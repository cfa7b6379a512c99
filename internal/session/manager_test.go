package session

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/matheus3301/gravvy/internal/bus"
)

func signedToken(t *testing.T, exp time.Time) string {
	t.Helper()
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   "+15551234567",
		ExpiresAt: jwt.NewNumericDate(exp),
	})
	s, err := tok.SignedString([]byte("test-secret"))
	if err != nil {
		t.Fatal(err)
	}
	return s
}

func nextAuth(t *testing.T, ch <-chan bus.Event) bus.AuthState {
	t.Helper()
	select {
	case evt := <-ch:
		state, ok := evt.Payload.(bus.AuthState)
		if !ok {
			t.Fatalf("payload = %#v", evt.Payload)
		}
		return state
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for auth.changed")
	}
	return bus.AuthState{}
}

func TestSignInOpaqueToken(t *testing.T) {
	b := bus.New()
	ch, unsub := b.Subscribe(bus.AuthChanged, 4)
	defer unsub()

	a := NewManager(b)
	if err := a.SignIn("+15551234567", "abc123"); err != nil {
		t.Fatalf("SignIn() error = %v", err)
	}
	state := nextAuth(t, ch)
	if !state.Authenticated || state.Phone != "+15551234567" {
		t.Errorf("state = %+v", state)
	}
	if !state.ExpiresAt.IsZero() {
		t.Errorf("opaque token has expiry %v", state.ExpiresAt)
	}
	if a.Token() != "abc123" {
		t.Errorf("Token() = %q", a.Token())
	}
}

func TestSignInRejectsBadInput(t *testing.T) {
	a := NewManager(bus.New())
	if err := a.SignIn("5551234567", "tok"); err == nil {
		t.Error("expected error for non-E.164 phone")
	}
	if err := a.SignIn("+15551234567", ""); err == nil {
		t.Error("expected error for empty token")
	}
	if a.State().Authenticated {
		t.Error("authenticated after failed sign in")
	}
}

func TestJWTExpiry(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	a := NewManager(bus.New())
	a.now = func() time.Time { return now }

	tok := signedToken(t, now.Add(time.Hour))
	if err := a.SignIn("+15551234567", tok); err != nil {
		t.Fatal(err)
	}
	if got := a.State().ExpiresAt; !got.Equal(now.Add(time.Hour)) {
		t.Errorf("ExpiresAt = %v", got)
	}
	if a.Token() != tok {
		t.Error("valid token not returned")
	}

	now = now.Add(2 * time.Hour)
	if a.Token() != "" {
		t.Error("expired token still returned")
	}
	if a.State().Authenticated {
		t.Error("expired token reported as authenticated")
	}
}

func TestInvalidateKeepsPhone(t *testing.T) {
	b := bus.New()
	a := NewManager(b)
	if err := a.SignIn("+15551234567", "tok"); err != nil {
		t.Fatal(err)
	}

	ch, unsub := b.Subscribe(bus.AuthChanged, 4)
	defer unsub()
	a.Invalidate()
	state := nextAuth(t, ch)
	if state.Authenticated {
		t.Error("still authenticated after Invalidate")
	}
	if state.Phone != "+15551234567" {
		t.Errorf("Phone = %q, want kept", state.Phone)
	}

	a.Invalidate()
	select {
	case evt := <-ch:
		t.Errorf("second Invalidate published %v", evt)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestSignOut(t *testing.T) {
	b := bus.New()
	a := NewManager(b)
	if err := a.SignIn("+15551234567", "tok"); err != nil {
		t.Fatal(err)
	}

	ch, unsub := b.Subscribe(bus.AuthChanged, 4)
	defer unsub()
	a.SignOut()
	state := nextAuth(t, ch)
	if state.Authenticated || state.Phone != "" {
		t.Errorf("state after SignOut = %+v", state)
	}
	if a.Token() != "" || a.Phone() != "" {
		t.Error("credentials kept after SignOut")
	}
}
