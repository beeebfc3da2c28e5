package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/sahana-project/ewaste-api/types"
)

// DefaultTokenTTL is how long an issued session token stays valid.
const DefaultTokenTTL = 30 * 24 * time.Hour

// Identity is what a verified token asserts about its bearer.
type Identity struct {
	AccountID uuid.UUID
	Role      types.Role
	IssuedAt  time.Time
	ExpiresAt time.Time
}

type claims struct {
	Role types.Role `json:"role"`
	jwt.RegisteredClaims
}

// TokenIssuer signs and verifies HS256 session tokens.
type TokenIssuer struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewTokenIssuer constructs a TokenIssuer. The secret must be non-empty; a
// non-positive ttl falls back to DefaultTokenTTL.
func NewTokenIssuer(secret string, ttl time.Duration) (*TokenIssuer, error) {
	if strings.TrimSpace(secret) == "" {
		return nil, errors.New("jwt secret is required")
	}
	if ttl <= 0 {
		ttl = DefaultTokenTTL
	}
	return &TokenIssuer{
		secret: []byte(secret),
		ttl:    ttl,
		now:    time.Now,
	}, nil
}

// WithClock returns a copy of the issuer that reads time from now.
func (t *TokenIssuer) WithClock(now func() time.Time) *TokenIssuer {
	clone := *t
	clone.now = now
	return &clone
}

// TTL returns the lifetime of issued tokens.
func (t *TokenIssuer) TTL() time.Duration {
	return t.ttl
}

// Issue creates a signed token for the account.
func (t *TokenIssuer) Issue(accountID uuid.UUID, role types.Role) (string, error) {
	now := t.now()
	c := claims{
		Role: role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   accountID.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(t.ttl)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, c)
	signed, err := token.SignedString(t.secret)
	if err != nil {
		return "", fmt.Errorf("signing token: %w", err)
	}
	return signed, nil
}

// Verify checks signature, algorithm, and expiry. Any malformed, expired, or
// tampered token yields ok=false; it never returns an error.
func (t *TokenIssuer) Verify(tokenString string) (Identity, bool) {
	var c claims
	token, err := jwt.ParseWithClaims(tokenString, &c, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("invalid signing method")
		}
		return t.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Name}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(t.now),
	)
	if err != nil || !token.Valid {
		return Identity{}, false
	}

	accountID, err := uuid.Parse(strings.TrimSpace(c.Subject))
	if err != nil || !c.Role.Valid() {
		return Identity{}, false
	}

	identity := Identity{AccountID: accountID, Role: c.Role}
	if c.IssuedAt != nil {
		identity.IssuedAt = c.IssuedAt.Time
	}
	if c.ExpiresAt != nil {
		identity.ExpiresAt = c.ExpiresAt.Time
	}
	return identity, true
}
