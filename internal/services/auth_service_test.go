package services

import (
	"context"
	"testing"
	"time"

	duet_errors "duet-chat/pkg/errors"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJWTAuthenticatorRoundTrip(t *testing.T) {
	auth := NewJWTAuthenticator("secret")
	userID := uuid.New()

	token, err := auth.Issue(userID, time.Hour)
	require.NoError(t, err)

	got, err := auth.Authenticate(context.Background(), token)
	require.NoError(t, err)
	assert.Equal(t, userID, got)
}

func TestJWTAuthenticatorAcceptsSubjectOnly(t *testing.T) {
	userID := uuid.New()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   userID.String(),
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}).SignedString([]byte("secret"))
	require.NoError(t, err)

	got, err := NewJWTAuthenticator("secret").Authenticate(context.Background(), token)
	require.NoError(t, err)
	assert.Equal(t, userID, got)
}

func TestJWTAuthenticatorRejects(t *testing.T) {
	auth := NewJWTAuthenticator("secret")
	userID := uuid.New()

	expired, err := auth.Issue(userID, -time.Minute)
	require.NoError(t, err)
	otherKey, err := NewJWTAuthenticator("other").Issue(userID, time.Hour)
	require.NoError(t, err)
	notAUser, err := jwt.NewWithClaims(jwt.SigningMethodHS256, SessionClaims{UserID: "bob"}).SignedString([]byte("secret"))
	require.NoError(t, err)

	for name, credential := range map[string]string{
		"empty":     "",
		"garbage":   "not-a-token",
		"expired":   expired,
		"wrong key": otherKey,
		"bad id":    notAUser,
	} {
		t.Run(name, func(t *testing.T) {
			_, err := auth.Authenticate(context.Background(), credential)
			assert.ErrorIs(t, err, duet_errors.ErrUnauthorized)
		})
	}
}

func TestUserContext(t *testing.T) {
	_, ok := UserIDFromContext(context.Background())
	assert.False(t, ok)

	userID := uuid.New()
	got, ok := UserIDFromContext(WithUserContext(context.Background(), userID))
	assert.True(t, ok)
	assert.Equal(t, userID, got)
}
