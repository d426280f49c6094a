package auth

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"sync"
	"time"

	"minicap/pkg/models"
)

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrTokenExpired = errors.New("token expired")
)

// Manager issues and validates control API tokens.
// A manager without an admin key accepts every request.
type Manager struct {
	adminKey string
	tokens   map[string]*models.APIToken // token -> APIToken
	mu       sync.RWMutex
	now      func() time.Time

	// Config
	defaultExpiration time.Duration
	maxExpiration     time.Duration
}

// New creates a new auth manager guarded by adminKey
func New(adminKey string) *Manager {
	return &Manager{
		adminKey:          adminKey,
		tokens:            make(map[string]*models.APIToken),
		now:               time.Now,
		defaultExpiration: 1 * time.Hour,
		maxExpiration:     24 * time.Hour,
	}
}

// Enabled reports whether requests need credentials
func (m *Manager) Enabled() bool {
	return m.adminKey != ""
}

// IsAdmin checks key against the admin key in constant time
func (m *Manager) IsAdmin(key string) bool {
	if !m.Enabled() || key == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(key), []byte(m.adminKey)) == 1
}

// IssueToken creates a new token. expiresIn <= 0 uses the default expiration.
func (m *Manager) IssueToken(label string, expiresIn time.Duration, issuedTo string) (*models.APIToken, error) {
	tokenBytes := make([]byte, 32)
	if _, err := rand.Read(tokenBytes); err != nil {
		return nil, fmt.Errorf("failed to generate token: %w", err)
	}

	expiration := expiresIn
	if expiration <= 0 {
		expiration = m.defaultExpiration
	}
	if expiration > m.maxExpiration {
		expiration = m.maxExpiration
	}

	now := m.now()
	token := &models.APIToken{
		Token:     hex.EncodeToString(tokenBytes),
		Label:     label,
		CreatedAt: now,
		ExpiresAt: now.Add(expiration),
		IssuedTo:  issuedTo,
	}

	m.mu.Lock()
	m.tokens[token.Token] = token
	m.mu.Unlock()

	return token, nil
}

// Authorize accepts the admin key or an unexpired issued token
func (m *Manager) Authorize(credential string) error {
	if !m.Enabled() {
		return nil
	}
	if m.IsAdmin(credential) {
		return nil
	}

	m.mu.RLock()
	token, exists := m.tokens[credential]
	m.mu.RUnlock()

	if !exists {
		return ErrInvalidToken
	}
	if !token.IsValid(m.now()) {
		return ErrTokenExpired
	}
	return nil
}

// RevokeToken revokes a token
func (m *Manager) RevokeToken(tokenString string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	_, exists := m.tokens[tokenString]
	delete(m.tokens, tokenString)
	return exists
}

// CleanupExpiredTokens removes all expired tokens (call periodically)
func (m *Manager) CleanupExpiredTokens() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	removed := 0
	for tokenString, token := range m.tokens {
		if !token.IsValid(now) {
			delete(m.tokens, tokenString)
			removed++
		}
	}
	return removed
}

// GetTokenCount returns the number of issued tokens
func (m *Manager) GetTokenCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.tokens)
}
