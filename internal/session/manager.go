package session

import (
	"errors"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/matheus3301/gravvy/internal/bus"
)

// ErrSignedOut is returned by operations that need a signed-in user.
var ErrSignedOut = errors.New("not signed in")

// Manager holds the signed-in user and their API token. Every change publishes
// bus.AuthChanged. It satisfies remote.TokenSource.
type Manager struct {
	mu        sync.RWMutex
	phone     string
	token     string
	expiresAt time.Time
	bus       *bus.Bus
	now       func() time.Time
}

// NewManager creates a signed-out Manager publishing on b.
func NewManager(b *bus.Bus) *Manager {
	return &Manager{bus: b, now: time.Now}
}

// SignIn records phone as the signed-in user. When the token is a JWT its
// "exp" claim sets the expiry; opaque tokens never expire locally.
func (m *Manager) SignIn(phone, token string) error {
	if err := ValidatePhone(phone); err != nil {
		return err
	}
	if token == "" {
		return errors.New("empty token")
	}
	expires := tokenExpiry(token)

	m.mu.Lock()
	m.phone = phone
	m.token = token
	m.expiresAt = expires
	state := m.stateLocked()
	m.mu.Unlock()

	m.bus.Emit(bus.AuthChanged, state)
	return nil
}

// SignOut forgets the user and token.
func (m *Manager) SignOut() {
	m.mu.Lock()
	wasIn := m.token != "" || m.phone != ""
	m.phone, m.token, m.expiresAt = "", "", time.Time{}
	state := m.stateLocked()
	m.mu.Unlock()

	if wasIn {
		m.bus.Emit(bus.AuthChanged, state)
	}
}

// Invalidate drops the token after the server rejected it. The phone is
// kept so the user can sign in again to the same account.
func (m *Manager) Invalidate() {
	m.mu.Lock()
	if m.token == "" {
		m.mu.Unlock()
		return
	}
	m.token, m.expiresAt = "", time.Time{}
	state := m.stateLocked()
	m.mu.Unlock()

	m.bus.Emit(bus.AuthChanged, state)
}

// Token returns the current token, or "" when signed out or expired.
func (m *Manager) Token() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.expiredLocked() {
		return ""
	}
	return m.token
}

// Phone returns the signed-in phone number, if any.
func (m *Manager) Phone() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.phone
}

// State returns a snapshot of the authentication state.
func (m *Manager) State() bus.AuthState {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.stateLocked()
}

func (m *Manager) stateLocked() bus.AuthState {
	return bus.AuthState{
		Phone:         m.phone,
		Authenticated: m.token != "" && !m.expiredLocked(),
		ExpiresAt:     m.expiresAt,
	}
}

func (m *Manager) expiredLocked() bool {
	return !m.expiresAt.IsZero() && !m.now().Before(m.expiresAt)
}

// tokenExpiry reads the exp claim without verifying the signature. The
// server remains the authority on validity.
func tokenExpiry(token string) time.Time {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return time.Time{}
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return time.Time{}
	}
	return exp.Time.UTC()
}
