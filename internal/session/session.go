package session

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"time"

	"storefront-service/internal/kv"
	"storefront-service/internal/models"
	"storefront-service/internal/util"

	"go.uber.org/zap"
)

// ErrInvalidCredentials is returned by Login on a password mismatch.
var ErrInvalidCredentials = errors.New("invalid credentials")

const sessionMarker = "valid"

// Manager issues and validates admin session tokens. A live session:{token}
// key is the sole proof of authentication; no identity is encoded.
type Manager struct {
	store    kv.Store
	password string
	ttl      time.Duration
	devMode  bool
	logger   *zap.Logger
}

// NewManager creates a session manager. When devMode is true, a backend
// failure during Check is bypassed with a warning instead of failing closed.
func NewManager(store kv.Store, password string, ttl time.Duration, devMode bool) *Manager {
	return &Manager{
		store:    store,
		password: password,
		ttl:      ttl,
		devMode:  devMode,
		logger:   util.GetLogger(),
	}
}

// Login compares the supplied password to the configured secret and, on
// match, stores an opaque random token with the session TTL.
func (m *Manager) Login(ctx context.Context, password string) (string, error) {
	if m.password == "" {
		m.logger.Warn("Admin password not configured, rejecting login")
		return "", ErrInvalidCredentials
	}
	if subtle.ConstantTimeCompare([]byte(password), []byte(m.password)) != 1 {
		return "", ErrInvalidCredentials
	}

	token, err := generateToken()
	if err != nil {
		return "", fmt.Errorf("failed to generate session token: %w", err)
	}

	key := models.PrefixSession + token
	if err := m.store.Put(ctx, key, []byte(sessionMarker), m.ttl); err != nil {
		return "", fmt.Errorf("failed to store session: %w", err)
	}

	m.logger.Info("Admin session created")
	return token, nil
}

// Check reports whether the token maps to a live session key. A backend
// error fails closed in production and open in development.
func (m *Manager) Check(ctx context.Context, token string) (bool, error) {
	if token == "" {
		return false, nil
	}

	_, err := m.store.Get(ctx, models.PrefixSession+token)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, kv.ErrNotFound) {
		return false, nil
	}

	if m.devMode {
		m.logger.Warn("Session backend unavailable, allowing request in development mode",
			zap.Error(err))
		return true, nil
	}
	return false, fmt.Errorf("session backend unavailable: %w", err)
}

// Logout deletes the session key. Deleting a token that never existed is
// not an error.
func (m *Manager) Logout(ctx context.Context, token string) error {
	if token == "" {
		return nil
	}
	return m.store.Delete(ctx, models.PrefixSession+token)
}

// TTL returns the configured session lifetime.
func (m *Manager) TTL() time.Duration {
	return m.ttl
}

// generateToken returns 32 bytes of entropy, URL-safe base64 encoded.
func generateToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// CookieName is the admin session cookie.
const CookieName = "admin_session"

// SetCookie issues the session cookie to the admin browser.
func SetCookie(w http.ResponseWriter, token string, ttl time.Duration) {
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    token,
		Path:     "/",
		MaxAge:   int(ttl.Seconds()),
		HttpOnly: true,
		Secure:   true,
		SameSite: http.SameSiteStrictMode,
	})
}

// ClearCookie removes the session cookie regardless of whether one was set.
func ClearCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   true,
		SameSite: http.SameSiteStrictMode,
	})
}
