package services

import (
	"context"
	"time"

	duet_errors "duet-chat/pkg/errors"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Authenticator resolves an opaque session credential to a user id.
// It is shared by the HTTP middleware and the websocket handshake.
type Authenticator interface {
	Authenticate(ctx context.Context, credential string) (uuid.UUID, error)
}

// SessionClaims is the token issued by the account service. Older tokens
// carry the user in "userId", newer ones in the registered subject.
type SessionClaims struct {
	UserID string `json:"userId,omitempty"`
	jwt.RegisteredClaims
}

type JWTAuthenticator struct {
	secret []byte
}

func NewJWTAuthenticator(secret string) *JWTAuthenticator {
	return &JWTAuthenticator{secret: []byte(secret)}
}

func (a *JWTAuthenticator) Authenticate(_ context.Context, credential string) (uuid.UUID, error) {
	if credential == "" || len(a.secret) == 0 {
		return uuid.Nil, duet_errors.ErrUnauthorized
	}

	parsed, err := jwt.ParseWithClaims(credential, &SessionClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, duet_errors.ErrUnauthorized
		}
		return a.secret, nil
	})
	if err != nil {
		return uuid.Nil, duet_errors.ErrUnauthorized
	}

	claims, ok := parsed.Claims.(*SessionClaims)
	if !ok || !parsed.Valid {
		return uuid.Nil, duet_errors.ErrUnauthorized
	}

	subject := claims.UserID
	if subject == "" {
		subject = claims.Subject
	}
	userID, err := uuid.Parse(subject)
	if err != nil || userID == uuid.Nil {
		return uuid.Nil, duet_errors.ErrUnauthorized
	}
	return userID, nil
}

// Issue signs a session token for userID. Used by the dev seed and tests;
// production tokens come from the account service.
func (a *JWTAuthenticator) Issue(userID uuid.UUID, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := SessionClaims{
		UserID: userID.String(),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID.String(),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
}

type ctxKey string

var userIDKey ctxKey = "user_id"

func WithUserContext(ctx context.Context, userID uuid.UUID) context.Context {
	return context.WithValue(ctx, userIDKey, userID)
}

func UserIDFromContext(ctx context.Context) (uuid.UUID, bool) {
	value := ctx.Value(userIDKey)
	if value == nil {
		return uuid.Nil, false
	}
	userID, ok := value.(uuid.UUID)
	return userID, ok
}
