package middleware

import (
	"duet-chat/internal/transport/httpdto"
	duet_errors "duet-chat/pkg/errors"
	"duet-chat/pkg/logger"

	"github.com/gin-gonic/gin"
)

// ErrorHandler renders errors handlers attached with c.Error and did not
// answer themselves.
func ErrorHandler(l *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) == 0 || c.Writer.Written() {
			return
		}

		err := c.Errors.Last().Err
		status := duet_errors.HTTPStatus(err)
		if l != nil && status >= 500 {
			l.WithContext(c.Request.Context()).Error("request error: " + err.Error())
		}
		message := err.Error()
		if status >= 500 {
			message = "internal server error"
		}
		c.JSON(status, httpdto.NewErrorResponse(message, duet_errors.Code(err)))
	}
}
