package middleware

import (
	"net/http"

	"duet-chat/internal/transport/httpdto"

	"github.com/gin-gonic/gin"
)

// BodyLimitMiddleware caps request bodies at limit bytes. A declared length
// over the cap is answered with 413 straight away; otherwise reads past the
// cap fail with *http.MaxBytesError. A limit <= 0 disables the check.
func BodyLimitMiddleware(limit int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		if limit <= 0 || c.Request.Body == nil {
			c.Next()
			return
		}
		if c.Request.ContentLength > limit {
			c.JSON(http.StatusRequestEntityTooLarge, httpdto.NewErrorResponse("request body too large", "PAYLOAD_TOO_LARGE"))
			c.Abort()
			return
		}
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, limit)
		c.Next()
	}
}
