package auth

import (
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/sahana-project/ewaste-api/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-secret-key"

func TestNewTokenIssuerRequiresSecret(t *testing.T) {
	_, err := NewTokenIssuer("  ", time.Hour)
	assert.Error(t, err)

	issuer, err := NewTokenIssuer(testSecret, 0)
	require.NoError(t, err)
	assert.Equal(t, DefaultTokenTTL, issuer.TTL())
}

func TestIssueAndVerify(t *testing.T) {
	fixed := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	issuer, err := NewTokenIssuer(testSecret, DefaultTokenTTL)
	require.NoError(t, err)
	issuer = issuer.WithClock(func() time.Time { return fixed })

	accountID := uuid.New()
	token, err := issuer.Issue(accountID, types.RoleCollector)
	require.NoError(t, err)
	require.NotEmpty(t, token)

	identity, ok := issuer.Verify(token)
	require.True(t, ok)
	assert.Equal(t, accountID, identity.AccountID)
	assert.Equal(t, types.RoleCollector, identity.Role)
	assert.Equal(t, fixed.Unix(), identity.IssuedAt.Unix())
	assert.Equal(t, fixed.Add(30*24*time.Hour).Unix(), identity.ExpiresAt.Unix())
}

func TestVerifyWrongSecret(t *testing.T) {
	issuer, _ := NewTokenIssuer("secret1", time.Hour)
	other, _ := NewTokenIssuer("secret2", time.Hour)

	token, err := issuer.Issue(uuid.New(), types.RoleUser)
	require.NoError(t, err)

	_, ok := other.Verify(token)
	assert.False(t, ok)
}

func TestVerifyExpired(t *testing.T) {
	issued := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	issuer, _ := NewTokenIssuer(testSecret, time.Hour)

	token, err := issuer.WithClock(func() time.Time { return issued }).Issue(uuid.New(), types.RoleUser)
	require.NoError(t, err)

	_, ok := issuer.WithClock(func() time.Time { return issued.Add(59 * time.Minute) }).Verify(token)
	assert.True(t, ok)

	_, ok = issuer.WithClock(func() time.Time { return issued.Add(2 * time.Hour) }).Verify(token)
	assert.False(t, ok)
}

func TestVerifyMalformed(t *testing.T) {
	issuer, _ := NewTokenIssuer(testSecret, time.Hour)

	for _, token := range []string{"", "not-a-token", "a.b.c"} {
		_, ok := issuer.Verify(token)
		assert.False(t, ok, "token %q", token)
	}
}

func TestVerifyTampered(t *testing.T) {
	issuer, _ := NewTokenIssuer(testSecret, time.Hour)
	token, err := issuer.Issue(uuid.New(), types.RoleUser)
	require.NoError(t, err)

	parts := strings.Split(token, ".")
	require.Len(t, parts, 3)

	forged := claims{
		Role: types.RoleAdmin,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   uuid.NewString(),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
	forgedToken, err := jwt.NewWithClaims(jwt.SigningMethodHS256, forged).SignedString([]byte("attacker"))
	require.NoError(t, err)
	forgedParts := strings.Split(forgedToken, ".")

	spliced := parts[0] + "." + forgedParts[1] + "." + parts[2]
	_, ok := issuer.Verify(spliced)
	assert.False(t, ok)
}

func TestVerifyRejectsNoneAlgorithm(t *testing.T) {
	issuer, _ := NewTokenIssuer(testSecret, time.Hour)
	c := claims{
		Role: types.RoleAdmin,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   uuid.NewString(),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodNone, c).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	_, ok := issuer.Verify(token)
	assert.False(t, ok)
}

func TestVerifyRejectsUnknownRole(t *testing.T) {
	issuer, _ := NewTokenIssuer(testSecret, time.Hour)
	c := claims{
		Role: types.Role("root"),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   uuid.NewString(),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, c).SignedString([]byte(testSecret))
	require.NoError(t, err)

	_, ok := issuer.Verify(token)
	assert.False(t, ok)
}
