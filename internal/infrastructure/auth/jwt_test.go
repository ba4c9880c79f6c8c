package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/supplychain/backend/internal/infrastructure/config"
)

const testSecret = "test-secret-key-at-least-32-chars"

func newTestJWTService() *JWTService {
	return NewJWTService(config.JWTConfig{
		Enabled:      true,
		Secret:       testSecret,
		Issuer:       "wallet-auth",
		AddressClaim: "address",
	})
}

func signClaims(t *testing.T, method jwt.SigningMethod, key any, claims jwt.MapClaims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(method, claims).SignedString(key)
	require.NoError(t, err)
	return token
}

func TestNewJWTService_DefaultAddressClaim(t *testing.T) {
	svc := NewJWTService(config.JWTConfig{Secret: "s"})
	assert.Equal(t, "address", svc.addressClaim)
	assert.Equal(t, []byte("s"), svc.secret)
}

func TestValidateAccessToken_Success(t *testing.T) {
	svc := newTestJWTService()

	token, err := svc.IssueToken("  0xAbCd  ", time.Minute)
	require.NoError(t, err)

	claims, err := svc.ValidateAccessToken(token)

	require.NoError(t, err)
	assert.Equal(t, "0xabcd", claims.Address)
	assert.Equal(t, "wallet-auth", claims.Issuer)
	assert.NotEmpty(t, claims.TokenID)
	assert.True(t, claims.ExpiresAt.After(time.Now()))
}

func TestValidateAccessToken_CustomAddressClaim(t *testing.T) {
	svc := NewJWTService(config.JWTConfig{Secret: testSecret, AddressClaim: "wallet"})
	token := signClaims(t, jwt.SigningMethodHS256, []byte(testSecret), jwt.MapClaims{
		"wallet": "0xBEEF",
		"exp":    time.Now().Add(time.Minute).Unix(),
	})

	claims, err := svc.ValidateAccessToken(token)

	require.NoError(t, err)
	assert.Equal(t, "0xbeef", claims.Address)
}

func TestValidateAccessToken_ExpiredToken(t *testing.T) {
	svc := newTestJWTService()
	token, err := svc.IssueToken("0xaa", -time.Hour)
	require.NoError(t, err)

	_, err = svc.ValidateAccessToken(token)

	assert.ErrorIs(t, err, ErrExpiredToken)
}

func TestValidateAccessToken_NotYetValid(t *testing.T) {
	svc := newTestJWTService()
	token := signClaims(t, jwt.SigningMethodHS256, []byte(testSecret), jwt.MapClaims{
		"address": "0xaa",
		"iss":     "wallet-auth",
		"nbf":     time.Now().Add(time.Hour).Unix(),
	})

	_, err := svc.ValidateAccessToken(token)

	assert.ErrorIs(t, err, ErrTokenNotYetValid)
}

func TestValidateAccessToken_InvalidToken(t *testing.T) {
	svc := newTestJWTService()

	_, err := svc.ValidateAccessToken("invalid-token")

	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestValidateAccessToken_WrongIssuer(t *testing.T) {
	svc := newTestJWTService()
	other := NewJWTService(config.JWTConfig{Secret: testSecret, Issuer: "someone-else"})
	token, err := other.IssueToken("0xaa", time.Minute)
	require.NoError(t, err)

	_, err = svc.ValidateAccessToken(token)

	assert.ErrorIs(t, err, ErrInvalidIssuer)
}

func TestValidateAccessToken_DifferentSecret(t *testing.T) {
	svc := newTestJWTService()
	other := NewJWTService(config.JWTConfig{Secret: "another-secret-key-at-least-32ch", Issuer: "wallet-auth"})
	token, err := other.IssueToken("0xaa", time.Minute)
	require.NoError(t, err)

	_, err = svc.ValidateAccessToken(token)

	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestValidateAccessToken_RejectsOtherAlgorithms(t *testing.T) {
	svc := newTestJWTService()
	token := signClaims(t, jwt.SigningMethodHS512, []byte(testSecret), jwt.MapClaims{
		"address": "0xaa",
		"iss":     "wallet-auth",
	})

	_, err := svc.ValidateAccessToken(token)

	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestValidateAccessToken_MissingAddress(t *testing.T) {
	svc := newTestJWTService()
	token := signClaims(t, jwt.SigningMethodHS256, []byte(testSecret), jwt.MapClaims{
		"iss": "wallet-auth",
		"sub": "user-1",
	})

	_, err := svc.ValidateAccessToken(token)

	assert.ErrorIs(t, err, ErrMissingAddress)
}
