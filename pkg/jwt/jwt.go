package jwt

import (
	"crypto/rand"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrExpiredToken = errors.New("token has expired")
	ErrRevokedToken = errors.New("token has been revoked")
)

const TokenTypeAccess = "access"

// Claims are the claims of an access token.
type Claims struct {
	jwt.RegisteredClaims
	AccountID string `json:"account_id"`
	Email     string `json:"email"`
	Type      string `json:"type"`
	// IssuedNano has sub-second precision so a logout followed by an
	// immediate login does not reject the fresh token.
	IssuedNano int64 `json:"iat_ns"`
}

// Manager signs and validates HS256 access tokens.
type Manager struct {
	secret         []byte
	accessDuration time.Duration
	issuer         string
	now            func() time.Time

	// account id -> tokens issued at or before this instant are rejected
	revokedBefore map[string]time.Time
	mu            sync.RWMutex
}

// NewManager creates a manager. An empty secret generates a random one,
// which invalidates outstanding tokens on restart.
func NewManager(secret string, accessDuration time.Duration, issuer string) (*Manager, error) {
	key := []byte(secret)
	if len(key) == 0 {
		key = make([]byte, 32)
		if _, err := rand.Read(key); err != nil {
			return nil, fmt.Errorf("failed to generate signing key: %w", err)
		}
	}

	return &Manager{
		secret:         key,
		accessDuration: accessDuration,
		issuer:         issuer,
		now:            time.Now,
		revokedBefore:  make(map[string]time.Time),
	}, nil
}

// GenerateAccessToken signs an access token for an account.
func (m *Manager) GenerateAccessToken(accountID, email string) (token string, expiresAt int64, err error) {
	now := m.now()
	exp := now.Add(m.accessDuration)

	claims := &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    m.issuer,
			Subject:   accountID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
		AccountID:  accountID,
		Email:      email,
		Type:       TokenTypeAccess,
		IssuedNano: now.UnixNano(),
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secret)
	if err != nil {
		return "", 0, err
	}
	return signed, exp.Unix(), nil
}

// ValidateToken parses tokenString and checks signature, expiry and revocation.
func (m *Manager) ValidateToken(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return m.secret, nil
	}, jwt.WithTimeFunc(m.now), jwt.WithIssuer(m.issuer))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredToken
		}
		return nil, ErrInvalidToken
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid || claims.Type != TokenTypeAccess {
		return nil, ErrInvalidToken
	}

	if m.isRevoked(claims.AccountID, claims.IssuedNano) {
		return nil, ErrRevokedToken
	}

	return claims, nil
}

// RevokeAccountTokens rejects every token issued to accountID so far.
func (m *Manager) RevokeAccountTokens(accountID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.revokedBefore[accountID] = m.now()
}

func (m *Manager) isRevoked(accountID string, issuedNano int64) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	at, ok := m.revokedBefore[accountID]
	return ok && issuedNano <= at.UnixNano()
}

// CleanupExpiredRevocations forgets revocations older than the token
// lifetime; every token they covered has expired by then.
func (m *Manager) CleanupExpiredRevocations() {
	m.mu.Lock()
	defer m.mu.Unlock()
	cutoff := m.now().Add(-m.accessDuration)
	for id, at := range m.revokedBefore {
		if at.Before(cutoff) {
			delete(m.revokedBefore, id)
		}
	}
}
