// Package token issues and verifies the signed access and refresh credentials.
package token

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Kind distinguishes access tokens from refresh tokens.
type Kind string

const (
	KindAccess  Kind = "access"
	KindRefresh Kind = "refresh"
)

const defaultIssuer = "portfolio-advisor"

// ErrInvalidToken is wrapped by every verification failure.
var ErrInvalidToken = errors.New("invalid token")

// Config carries signing secrets and lifetimes.
type Config struct {
	AccessSecret  string
	AccessTTL     time.Duration
	RefreshSecret string
	RefreshTTL    time.Duration
	Issuer        string
}

// Claims is the JWT payload shared by both token kinds.
type Claims struct {
	Kind Kind `json:"kind"`
	jwt.RegisteredClaims
}

// UserID returns the subject as a numeric user id.
func (c *Claims) UserID() (int64, error) {
	id, err := strconv.ParseInt(c.Subject, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%w: bad subject", ErrInvalidToken)
	}
	return id, nil
}

// Manager signs and verifies tokens. It holds no mutable state and is safe for concurrent use.
type Manager struct {
	cfg Config
	now func() time.Time
}

func NewManager(cfg Config) (*Manager, error) {
	if strings.TrimSpace(cfg.AccessSecret) == "" {
		return nil, errors.New("access token secret is required")
	}
	if strings.TrimSpace(cfg.RefreshSecret) == "" {
		return nil, errors.New("refresh token secret is required")
	}
	if cfg.AccessTTL <= 0 {
		return nil, errors.New("access token expiry must be positive")
	}
	if cfg.RefreshTTL <= 0 {
		return nil, errors.New("refresh token expiry must be positive")
	}
	if cfg.Issuer == "" {
		cfg.Issuer = defaultIssuer
	}
	return &Manager{cfg: cfg, now: time.Now}, nil
}

func (m *Manager) IssueAccess(userID int64) (string, error) {
	return m.issue(userID, KindAccess)
}

func (m *Manager) IssueRefresh(userID int64) (string, error) {
	return m.issue(userID, KindRefresh)
}

// AccessTTL reports the lifetime of access tokens, used for cookie max-age.
func (m *Manager) AccessTTL() time.Duration { return m.cfg.AccessTTL }

// RefreshTTL reports the lifetime of refresh tokens.
func (m *Manager) RefreshTTL() time.Duration { return m.cfg.RefreshTTL }

func (m *Manager) issue(userID int64, kind Kind) (string, error) {
	if userID <= 0 {
		return "", fmt.Errorf("issue %s token: invalid user id %d", kind, userID)
	}
	secret, ttl := m.params(kind)
	now := m.now()
	claims := Claims{
		Kind: kind,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatInt(userID, 10),
			Issuer:    m.cfg.Issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			ID:        uuid.NewString(),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	if err != nil {
		return "", fmt.Errorf("sign %s token: %w", kind, err)
	}
	return signed, nil
}

// Verify checks signature, expiry, issuer and kind, returning the decoded claims.
func (m *Manager) Verify(raw string, kind Kind) (*Claims, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, fmt.Errorf("%w: empty", ErrInvalidToken)
	}
	secret, _ := m.params(kind)

	claims := &Claims{}
	_, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (interface{}, error) {
		return []byte(secret), nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(m.cfg.Issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(m.now),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if claims.Kind != kind {
		return nil, fmt.Errorf("%w: expected %s token", ErrInvalidToken, kind)
	}
	if _, err := claims.UserID(); err != nil {
		return nil, err
	}
	return claims, nil
}

func (m *Manager) params(kind Kind) (string, time.Duration) {
	if kind == KindRefresh {
		return m.cfg.RefreshSecret, m.cfg.RefreshTTL
	}
	return m.cfg.AccessSecret, m.cfg.AccessTTL
}
