package auth_test

import (
	"testing"
	"time"

	"taskboard/internal/auth"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const secret = "test-secret-key"

func TestGenerateAndParseToken(t *testing.T) {
	userID := uuid.New()
	token, err := auth.GenerateToken(secret, auth.Subject{UserID: userID, Role: "manager"}, 24*time.Hour)

	assert.NoError(t, err)
	assert.NotEmpty(t, token)

	claims, err := auth.ParseToken(secret, token)

	require.NoError(t, err)
	assert.Equal(t, userID, claims.User())
	assert.Equal(t, "manager", claims.Role)
}

func TestParseToken_InvalidToken(t *testing.T) {
	_, err := auth.ParseToken(secret, "invalid-token")

	assert.Error(t, err)
	assert.Equal(t, "invalid token", err.Error())
}

func TestParseToken_WrongSecret(t *testing.T) {
	token, err := auth.GenerateToken("other", auth.Subject{UserID: uuid.New()}, time.Hour)
	require.NoError(t, err)

	_, err = auth.ParseToken(secret, token)

	assert.ErrorIs(t, err, auth.ErrInvalidToken)
}

func TestParseToken_ExpiredToken(t *testing.T) {
	claims := jwt.MapClaims{
		"user_id": uuid.NewString(),
		"exp":     time.Now().Add(-1 * time.Hour).Unix(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	expiredToken, _ := token.SignedString([]byte(secret))

	_, err := auth.ParseToken(secret, expiredToken)

	assert.Error(t, err)
	assert.Equal(t, "invalid token", err.Error())
}

func TestParseToken_MissingClaims(t *testing.T) {
	claims := jwt.MapClaims{
		"exp": time.Now().Add(24 * time.Hour).Unix(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenWithoutUserID, _ := token.SignedString([]byte(secret))

	_, err := auth.ParseToken(secret, tokenWithoutUserID)

	assert.Error(t, err)
	assert.Equal(t, "invalid claims", err.Error())
}
