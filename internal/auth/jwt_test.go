package auth

import (
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testSecret = strings.Repeat("k", 32)

func TestJWTManager_RoundTrip(t *testing.T) {
	m := NewJWTManager(testSecret, "civitas", time.Minute)

	token, err := m.GenerateAccessToken("user-1", "ada@example.com")
	require.NoError(t, err)

	claims, err := m.ValidateAccessToken(token)
	require.NoError(t, err)
	assert.Equal(t, "user-1", claims.Subject)
	assert.Equal(t, "ada@example.com", claims.Email)
	assert.Equal(t, "civitas", claims.Issuer)
}

func TestJWTManager_Rejects(t *testing.T) {
	m := NewJWTManager(testSecret, "civitas", time.Minute)
	good, err := m.GenerateAccessToken("user-1", "")
	require.NoError(t, err)

	expired := NewJWTManager(testSecret, "civitas", time.Minute)
	expired.now = func() time.Time { return time.Now().Add(-time.Hour) }
	old, err := expired.GenerateAccessToken("user-1", "")
	require.NoError(t, err)

	otherIssuer, err := NewJWTManager(testSecret, "someone-else", time.Minute).GenerateAccessToken("user-1", "")
	require.NoError(t, err)

	otherKey, err := NewJWTManager(strings.Repeat("x", 32), "civitas", time.Minute).GenerateAccessToken("user-1", "")
	require.NoError(t, err)

	noSubject, err := m.GenerateAccessToken("", "")
	require.NoError(t, err)

	none, err := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.RegisteredClaims{
		Subject:   "user-1",
		Issuer:    "civitas",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Minute)),
	}).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	tests := map[string]string{
		"expired":      old,
		"wrong issuer": otherIssuer,
		"wrong key":    otherKey,
		"no subject":   noSubject,
		"alg none":     none,
		"garbage":      "not.a.token",
		"tampered":     good + "x",
	}
	for name, token := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := m.ValidateAccessToken(token)
			assert.Error(t, err)
		})
	}
}

func TestJWTManager_TokenValidator(t *testing.T) {
	m := NewJWTManager(testSecret, "civitas", time.Minute)
	token, err := m.GenerateAccessToken("user-9", "grace@example.com")
	require.NoError(t, err)

	claims, err := m.TokenValidator()(token)
	require.NoError(t, err)
	assert.Equal(t, "user-9", claims.Subject)
	assert.Equal(t, "grace@example.com", claims.Email)

	_, err = m.TokenValidator()("bad")
	assert.Error(t, err)
}
