// Package auth guards the app with a single password. The bcrypt hash
// lives in the repository; login issues bearer tokens held in memory with
// a TTL, so every token dies with the process or its deadline.
package auth

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/noteforest/noteforest/internal/apperr"
)

// MinPasswordLength is the minimum accepted password length.
const MinPasswordLength = 8

// CredentialStore persists the single password hash.
type CredentialStore interface {
	PasswordHash(ctx context.Context) (string, error)
	SetPasswordHash(ctx context.Context, hash string) error
}

// Manager owns password verification and the live token table.
type Manager struct {
	store  CredentialStore
	ttl    time.Duration
	logger *slog.Logger
	now    func() time.Time

	mu       sync.Mutex
	sessions map[string]time.Time // token -> expiry
}

// NewManager creates a Manager issuing tokens valid for ttl.
func NewManager(store CredentialStore, ttl time.Duration, logger *slog.Logger) *Manager {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		store:    store,
		ttl:      ttl,
		logger:   logger,
		now:      time.Now,
		sessions: make(map[string]time.Time),
	}
}

// PasswordSet reports whether a password has been configured.
func (m *Manager) PasswordSet(ctx context.Context) (bool, error) {
	hash, err := m.store.PasswordHash(ctx)
	if err != nil {
		return false, fmt.Errorf("auth: read password hash: %w", err)
	}
	return hash != "", nil
}

// Setup stores the initial password. Refused once a password exists;
// changing it goes through the repository directly (there is no remote
// reset path on purpose).
func (m *Manager) Setup(ctx context.Context, password string) error {
	if len(password) < MinPasswordLength {
		return fmt.Errorf("auth: password must be at least %d characters: %w", MinPasswordLength, apperr.ErrValidation)
	}
	set, err := m.PasswordSet(ctx)
	if err != nil {
		return err
	}
	if set {
		return fmt.Errorf("auth: password already configured: %w", apperr.ErrValidation)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("auth: hash password: %w", err)
	}
	if err := m.store.SetPasswordHash(ctx, string(hash)); err != nil {
		return fmt.Errorf("auth: store password hash: %w", err)
	}
	return nil
}

// Login verifies the password and issues a fresh bearer token.
func (m *Manager) Login(ctx context.Context, password string) (string, error) {
	hash, err := m.store.PasswordHash(ctx)
	if err != nil {
		return "", fmt.Errorf("auth: read password hash: %w", err)
	}
	if hash == "" {
		return "", fmt.Errorf("auth: no password configured: %w", apperr.ErrUnauthorized)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)); err != nil {
		return "", fmt.Errorf("auth: invalid password: %w", apperr.ErrUnauthorized)
	}

	token := uuid.NewString()
	m.mu.Lock()
	m.sessions[token] = m.now().Add(m.ttl)
	m.mu.Unlock()
	return token, nil
}

// Validate reports whether the token is live. An expired token is removed
// on sight.
func (m *Manager) Validate(token string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	expiry, ok := m.sessions[token]
	if !ok {
		return false
	}
	if m.now().After(expiry) {
		delete(m.sessions, token)
		return false
	}
	return true
}

// Logout invalidates the token. Unknown tokens are a no-op.
func (m *Manager) Logout(token string) {
	m.mu.Lock()
	delete(m.sessions, token)
	m.mu.Unlock()
}

// Prune drops expired tokens and returns how many were removed.
func (m *Manager) Prune() int {
	now := m.now()
	m.mu.Lock()
	defer m.mu.Unlock()
	removed := 0
	for token, expiry := range m.sessions {
		if now.After(expiry) {
			delete(m.sessions, token)
			removed++
		}
	}
	return removed
}

// ActiveSessions returns the number of live tokens.
func (m *Manager) ActiveSessions() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// StartPruning prunes expired tokens on the interval until ctx is done.
func (m *Manager) StartPruning(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Hour
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := m.Prune(); n > 0 {
				m.logger.Debug("auth: pruned expired sessions", slog.Int("count", n))
			}
		}
	}
}
