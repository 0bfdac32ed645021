package jwt

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testAccessSecret  = "test-access-secret-key-for-testing-purposes"
	testRefreshSecret = "test-refresh-secret-key-for-testing-purposes"
	testEmail         = "asha@example.com"
)

func newTestService() *Service {
	return NewService(testAccessSecret, testRefreshSecret, time.Hour, 24*time.Hour)
}

func TestNewService(t *testing.T) {
	service := newTestService()

	assert.NotNil(t, service)
	assert.Equal(t, testAccessSecret, service.accessSecret)
	assert.Equal(t, testRefreshSecret, service.refreshSecret)
	assert.Equal(t, time.Hour, service.AccessTokenExpiry())
	assert.Equal(t, 24*time.Hour, service.refreshTokenExpiry)
}

func TestGenerateAccessToken(t *testing.T) {
	service := newTestService()
	userID := uuid.New()
	roles := []string{"user", "admin"}

	token, err := service.GenerateAccessToken(userID, testEmail, roles)
	require.NoError(t, err)
	assert.NotEmpty(t, token)

	claims, err := service.ValidateAccessToken(token)
	require.NoError(t, err)
	assert.Equal(t, userID, claims.UserID)
	assert.Equal(t, testEmail, claims.Email)
	assert.Equal(t, roles, claims.Roles)
	assert.Equal(t, AccessToken, claims.TokenType)
	assert.Equal(t, Issuer, claims.Issuer)
	assert.Equal(t, userID.String(), claims.Subject)
	assert.True(t, claims.HasRole("admin"))
	assert.False(t, claims.HasRole("driver"))
}

func TestGenerateRefreshToken(t *testing.T) {
	service := newTestService()
	userID := uuid.New()

	token, err := service.GenerateRefreshToken(userID, testEmail)
	require.NoError(t, err)

	claims, err := service.ValidateRefreshToken(token)
	require.NoError(t, err)
	assert.Equal(t, userID, claims.UserID)
	assert.Equal(t, testEmail, claims.Email)
	assert.Empty(t, claims.Roles)
	assert.Equal(t, RefreshToken, claims.TokenType)
}

func TestTokenTypeMismatch(t *testing.T) {
	service := NewService("same-secret", "same-secret", time.Hour, time.Hour)
	userID := uuid.New()

	accessToken, err := service.GenerateAccessToken(userID, testEmail, []string{"user"})
	require.NoError(t, err)
	_, err = service.ValidateRefreshToken(accessToken)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "invalid token type")

	refreshToken, err := service.GenerateRefreshToken(userID, testEmail)
	require.NoError(t, err)
	_, err = service.ValidateAccessToken(refreshToken)
	assert.Error(t, err)
}

func TestValidateAccessToken_WrongSecret(t *testing.T) {
	service := newTestService()
	other := NewService("another-secret", testRefreshSecret, time.Hour, time.Hour)

	token, err := other.GenerateAccessToken(uuid.New(), testEmail, []string{"user"})
	require.NoError(t, err)

	_, err = service.ValidateAccessToken(token)
	assert.Error(t, err)
}

func TestValidateAccessToken_Expired(t *testing.T) {
	expiredService := NewService(testAccessSecret, testRefreshSecret, -time.Hour, time.Hour)

	token, err := expiredService.GenerateAccessToken(uuid.New(), testEmail, []string{"user"})
	require.NoError(t, err)

	_, err = newTestService().ValidateAccessToken(token)
	require.Error(t, err)
	assert.ErrorIs(t, err, jwt.ErrTokenExpired)
	assert.True(t, expiredService.IsTokenExpired(token))
}

func TestValidateAccessToken_WrongIssuer(t *testing.T) {
	claims := Claims{
		UserID:    uuid.New(),
		Email:     testEmail,
		TokenType: AccessToken,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
			Issuer:    "someone-else",
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testAccessSecret))
	require.NoError(t, err)

	_, err = newTestService().ValidateAccessToken(token)
	assert.Error(t, err)
}

func TestValidateAccessToken_RejectsNoneAlgorithm(t *testing.T) {
	claims := Claims{UserID: uuid.New(), TokenType: AccessToken}
	token, err := jwt.NewWithClaims(jwt.SigningMethodNone, claims).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	_, err = newTestService().ValidateAccessToken(token)
	assert.Error(t, err)
}

func TestValidateAccessToken_Malformed(t *testing.T) {
	service := newTestService()

	for _, token := range []string{"", "not-a-token", "a.b.c"} {
		_, err := service.ValidateAccessToken(token)
		assert.Error(t, err, token)
	}
}

func TestIsTokenExpired(t *testing.T) {
	service := newTestService()

	token, err := service.GenerateAccessToken(uuid.New(), testEmail, []string{"user"})
	require.NoError(t, err)

	assert.False(t, service.IsTokenExpired(token))
	assert.True(t, service.IsTokenExpired("garbage"))
}
