package middleware

import (
	"context"
	"net/http"
	"strings"

	"duet-chat/internal/services"
	"duet-chat/internal/transport/httpdto"
	"duet-chat/pkg/logger"

	"github.com/gin-gonic/gin"
)

// AuthMiddleware resolves the session credential and puts the user id on
// the request context. Anything else is answered with 401.
func AuthMiddleware(auth services.Authenticator, cookieName string) gin.HandlerFunc {
	return func(c *gin.Context) {
		credential := ExtractCredential(c.Request, cookieName)
		userID, err := auth.Authenticate(c.Request.Context(), credential)
		if err != nil {
			c.JSON(http.StatusUnauthorized, httpdto.NewErrorResponse("unauthorized", "UNAUTHORIZED"))
			c.Abort()
			return
		}

		ctx := services.WithUserContext(c.Request.Context(), userID)
		ctx = context.WithValue(ctx, logger.UserIdKey, userID.String())
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

// ExtractCredential reads the session credential from the cookie, a bearer
// Authorization header or the token query parameter, in that order.
func ExtractCredential(r *http.Request, cookieName string) string {
	if cookieName != "" {
		if cookie, err := r.Cookie(cookieName); err == nil && cookie.Value != "" {
			return cookie.Value
		}
	}
	if token := extractBearer(r.Header.Get("Authorization")); token != "" {
		return token
	}
	return r.URL.Query().Get("token")
}

func extractBearer(value string) string {
	parts := strings.SplitN(value, " ", 2)
	if len(parts) != 2 {
		return ""
	}
	if !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}
