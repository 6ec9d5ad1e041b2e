package services

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-secret-key-for-jwt-signing-32-chars"

func TestNewAdminTokenService(t *testing.T) {
	_, err := NewAdminTokenService("", "ops")
	assert.Error(t, err)

	svc, err := NewAdminTokenService(testSecret, "")
	require.NoError(t, err)
	assert.NotNil(t, svc)
}

func TestAdminTokenRoundTrip(t *testing.T) {
	svc, err := NewAdminTokenService(testSecret, "wb-tariffs-sync")
	require.NoError(t, err)

	token, err := svc.GenerateAdminToken("operator", time.Hour)
	require.NoError(t, err)

	claims, err := svc.ValidateAdminToken(token)
	require.NoError(t, err)
	assert.Equal(t, "operator", claims.Subject)
	assert.Equal(t, "wb-tariffs-sync", claims.Issuer)
	assert.NotEmpty(t, claims.ID)
}

func TestValidateAdminToken(t *testing.T) {
	svc, err := NewAdminTokenService(testSecret, "wb-tariffs-sync")
	require.NoError(t, err)

	other, err := NewAdminTokenService("another-secret-another-secret-123", "wb-tariffs-sync")
	require.NoError(t, err)
	foreign, err := other.GenerateAdminToken("operator", time.Hour)
	require.NoError(t, err)

	expired, err := svc.GenerateAdminToken("operator", -time.Minute)
	require.NoError(t, err)

	wrongIssuer, err := NewAdminTokenService(testSecret, "someone-else")
	require.NoError(t, err)
	wrongIssuerToken, err := wrongIssuer.GenerateAdminToken("operator", time.Hour)
	require.NoError(t, err)

	noExpiry, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"iss": "wb-tariffs-sync",
		"sub": "operator",
	}).SignedString([]byte(testSecret))
	require.NoError(t, err)

	noneAlg, err := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.MapClaims{
		"iss": "wb-tariffs-sync",
		"exp": time.Now().Add(time.Hour).Unix(),
	}).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	tests := []struct {
		name    string
		token   string
		wantErr error
	}{
		{"garbage", "not-a-token", ErrTokenInvalid},
		{"signed with another secret", foreign, ErrTokenInvalid},
		{"expired", expired, ErrTokenExpired},
		{"wrong issuer", wrongIssuerToken, ErrTokenInvalid},
		{"missing expiry", noExpiry, ErrTokenInvalid},
		{"alg none", noneAlg, ErrTokenInvalid},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			claims, err := svc.ValidateAdminToken(tt.token)
			assert.Nil(t, claims)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestValidateAdminTokenAcceptsRegisteredClaimsOnly(t *testing.T) {
	svc, err := NewAdminTokenService(testSecret, "wb-tariffs-sync")
	require.NoError(t, err)

	// minted outside the service, e.g. by an operator's own tooling
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   "ops",
		Issuer:    "wb-tariffs-sync",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}).SignedString([]byte(testSecret))
	require.NoError(t, err)

	claims, err := svc.ValidateAdminToken(token)
	require.NoError(t, err)
	assert.Equal(t, "ops", claims.Subject)

	noIssuerCheck, err := NewAdminTokenService(testSecret, "")
	require.NoError(t, err)
	bare, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   "ops",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}).SignedString([]byte(testSecret))
	require.NoError(t, err)

	claims, err = noIssuerCheck.ValidateAdminToken(bare)
	require.NoError(t, err)
	assert.Equal(t, "ops", claims.Subject)
}
