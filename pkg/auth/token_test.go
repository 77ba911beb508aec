package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/storefront-backend/pkg/config"
)

func signer(t *testing.T, issuer string) *Signer {
	t.Helper()
	s, err := NewSigner(config.JWTConfig{Secret: "secret", Issuer: issuer})
	require.NoError(t, err)
	return s
}

func TestSignAndVerify(t *testing.T) {
	s := signer(t, "storefront-admin")
	token, err := s.Sign(time.Now(), "ops@example.com", RoleAdmin, 30*time.Minute)
	require.NoError(t, err)

	claims, err := s.Verify(token)
	require.NoError(t, err)
	assert.True(t, claims.IsAdmin())
	assert.Equal(t, "ops@example.com", claims.Subject)
	assert.NotEmpty(t, claims.ID)
}

func TestVerifyRejects(t *testing.T) {
	s := signer(t, "storefront-admin")
	now := time.Now()

	wrongIssuer, err := signer(t, "other").Sign(now, "x", RoleAdmin, time.Minute)
	require.NoError(t, err)
	expired, err := s.Sign(now.Add(-2*time.Hour), "x", RoleAdmin, time.Minute)
	require.NoError(t, err)
	noExpiry, err := jwt.NewWithClaims(jwt.SigningMethodHS256, AdminClaims{
		Role:             RoleAdmin,
		RegisteredClaims: jwt.RegisteredClaims{Issuer: "storefront-admin"},
	}).SignedString([]byte("secret"))
	require.NoError(t, err)
	otherAlg, err := jwt.NewWithClaims(jwt.SigningMethodHS512, AdminClaims{
		Role:             RoleAdmin,
		RegisteredClaims: jwt.RegisteredClaims{Issuer: "storefront-admin", ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour))},
	}).SignedString([]byte("secret"))
	require.NoError(t, err)

	for name, token := range map[string]string{
		"wrong issuer":    wrongIssuer,
		"expired":         expired,
		"no expiry":       noExpiry,
		"other algorithm": otherAlg,
		"garbage":         "not.a.jwt",
		"empty":           "",
	} {
		_, err := s.Verify(token)
		assert.Error(t, err, name)
	}
}

func TestVerifyToleratesSmallClockSkew(t *testing.T) {
	s := signer(t, "storefront-admin")
	// expired five seconds ago, inside the leeway
	token, err := s.Sign(time.Now().Add(-time.Minute-5*time.Second), "x", RoleAdmin, time.Minute)
	require.NoError(t, err)
	_, err = s.Verify(token)
	assert.NoError(t, err)
}

func TestSignValidates(t *testing.T) {
	_, err := NewSigner(config.JWTConfig{Issuer: "x"})
	assert.Error(t, err)

	s := signer(t, "storefront-admin")
	_, err = s.Sign(time.Now(), "x", "", time.Minute)
	assert.Error(t, err)
	_, err = s.Sign(time.Now(), "x", RoleAdmin, 0)
	assert.Error(t, err)
}
